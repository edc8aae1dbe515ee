package spin

import "sync/atomic"

// pauseSink absorbs the store below so the compiler can't prove the
// spin loop body is dead and elide it entirely.
var pauseSink atomic.Uint64

// cpuPause is the realtime-safe spin primitive: a single atomic op with
// no ordering requirement, cheap enough to approximate the PAUSE/YIELD
// instruction the original C++ core issues directly, portable across
// every GOARCH without cgo or assembly stubs.
func cpuPause() {
	pauseSink.Add(1)
}
