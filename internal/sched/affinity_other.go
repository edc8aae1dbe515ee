//go:build !linux

package sched

// pinToCore is a no-op outside Linux; other platforms lack a portable
// equivalent of sched_setaffinity and the pool still functions
// correctly (just without a pinning guarantee).
func pinToCore(core int) error {
	return nil
}
