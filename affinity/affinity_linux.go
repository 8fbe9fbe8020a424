//go:build linux

// Linux implementation using sched_setaffinity via golang.org/x/sys/unix,
// avoiding cgo: x/sys is already a dependency of this module and gives
// the same syscall without a C toolchain.
package affinity

import "golang.org/x/sys/unix"

func setAffinityPlatform(cpuID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	return unix.SchedSetaffinity(0, &set)
}
