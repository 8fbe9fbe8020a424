//go:build !linux && !windows
// +build !linux,!windows

// Fallback for platforms without a sched_setaffinity or SetThreadAffinityMask
// equivalent; SetAffinity's callers already treat a non-nil error as
// advisory.
package affinity

import "errors"

func setAffinityPlatform(cpuID int) error {
	return errors.New("affinity: not supported on this platform")
}
