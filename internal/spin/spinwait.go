// Package spin provides a realtime-safe busy-wait primitive used to
// synchronise the scheduler and the sample-rate coupling buffer without
// ever taking an OS lock on the audio thread.
package spin

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Mode selects how AdaptiveWait schedules its backoff.
type Mode int

const (
	// FixedBackoff issues 8*2^i pause rounds for i in [0,10], then yields
	// to the OS scheduler on every subsequent round. This is the default.
	FixedBackoff Mode = iota
	// Benchmarked derives the same schedule from a one-time measurement
	// of pause latency, capped at half an audio block's duration.
	Benchmarked
)

const maxFixedIteration = 10

// AdaptiveWait is an exponential-backoff spin-wait. Iteration i issues
// 8*2^i pause cycles; after maxFixedIteration rounds (~8192 pauses) it
// falls back to runtime.Gosched() so the caller never starves the OS
// scheduler under pathological contention. Safe to call from a
// realtime audio thread: no allocation, no syscall on the fast path.
type AdaptiveWait struct {
	mode          Mode
	maxIterations int
}

var (
	benchmarked         atomic.Bool
	avgPauseNanoseconds atomic.Uint64 // fixed-point nanoseconds * 1, stored as bits via math.Float64bits would be overkill; store as uint64 ns
)

// New creates an AdaptiveWait in the given mode.
func New(mode Mode) *AdaptiveWait {
	w := &AdaptiveWait{mode: mode, maxIterations: maxFixedIteration}
	if mode == Benchmarked {
		ensureBenchmarked()
	}
	return w
}

// Configure recalculates the spin budget for Benchmarked mode so it
// never exceeds half the audio block period. FixedBackoff ignores this.
func (w *AdaptiveWait) Configure(samplesPerBlock int, sampleRate float64) {
	if w.mode != Benchmarked || samplesPerBlock <= 0 || sampleRate <= 0 {
		return
	}
	ensureBenchmarked()
	blockSeconds := float64(samplesPerBlock) / sampleRate
	budgetNs := blockSeconds / 2.0 * 1e9
	w.maxIterations = calculateMaxIterations(budgetNs)
}

// Wait blocks the caller until predicate returns true.
func (w *AdaptiveWait) Wait(predicate func() bool) {
	iteration := 0
	limit := w.maxIterations
	if w.mode == FixedBackoff {
		limit = maxFixedIteration
	}
	for !predicate() {
		if iteration > limit {
			runtime.Gosched()
			continue
		}
		pauseCount := 8 << uint(iteration)
		for i := 0; i < pauseCount; i++ {
			cpuPause()
		}
		iteration++
	}
}

// WaitForInt32 waits until the atomic int32 equals want.
func WaitForInt32(w *AdaptiveWait, v *atomic.Int32, want int32) {
	w.Wait(func() bool { return v.Load() == want })
}

// WaitForBool waits until the atomic bool equals want.
func WaitForBool(w *AdaptiveWait, v *atomic.Bool, want bool) {
	w.Wait(func() bool { return v.Load() == want })
}

func ensureBenchmarked() {
	if benchmarked.Load() {
		return
	}
	if benchmarked.CompareAndSwap(false, true) {
		avgPauseNanoseconds.Store(uint64(benchmarkPauseLatency()))
	}
}

// benchmarkPauseLatency measures the average duration of a single
// cpuPause() call, run a few times to smooth out scheduling noise.
func benchmarkPauseLatency() int64 {
	const samples = 3
	const iterationsToTest = maxFixedIteration
	start := time.Now()
	for s := 0; s < samples; s++ {
		for iter := 0; iter < iterationsToTest; iter++ {
			pauseCount := 8 << uint(iter)
			for i := 0; i < pauseCount; i++ {
				cpuPause()
			}
		}
	}
	elapsed := time.Since(start)
	totalPauses := int64(0)
	for iter := 0; iter < iterationsToTest; iter++ {
		totalPauses += int64(8 << uint(iter))
	}
	totalPauses *= samples
	if totalPauses == 0 {
		return 1
	}
	ns := elapsed.Nanoseconds() / totalPauses
	if ns < 1 {
		ns = 1
	}
	return ns
}

func calculateMaxIterations(budgetNanoseconds float64) int {
	avgPauseNs := float64(avgPauseNanoseconds.Load())
	if avgPauseNs <= 0 {
		avgPauseNs = 1
	}
	cumulative := 0.0
	iteration := 0
	for cumulative < budgetNanoseconds && iteration < 100 {
		pauseCount := float64(int64(8) << uint(iteration))
		iterationTime := pauseCount * avgPauseNs
		if cumulative+iterationTime > budgetNanoseconds {
			break
		}
		cumulative += iterationTime
		iteration++
	}
	if iteration < 1 {
		iteration = 1
	}
	return iteration
}
