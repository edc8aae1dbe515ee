//go:build linux

package sched

import "golang.org/x/sys/unix"

// pinToCore binds the calling goroutine's underlying OS thread to a
// single CPU core. The caller must have already called
// runtime.LockOSThread. Returns nil on platforms/kernels that reject
// the affinity mask (e.g. cgroup cpuset restrictions) — pinning is a
// scheduling hint, not a correctness requirement.
func pinToCore(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}
