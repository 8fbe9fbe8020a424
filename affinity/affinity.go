// Package affinity pins the calling OS thread to a logical CPU, a
// best-effort tuning knob endpoint.WithNUMANode exposes for the
// TcpServer accept-loop worker pool. Platform-specific implementations
// live in separate files guarded by build tags.
package affinity

// SetAffinity pins the current OS thread to cpuID on supported platforms.
// On unsupported platforms it returns an error; callers treat that as
// advisory since affinity never affects correctness.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}
