// Package syncbuf implements the sample-rate-coupling buffer that joins
// two realtime callbacks running at independent, drifting rates and
// block sizes (spec §4.3).
package syncbuf

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/obsrt/rtcore/internal/ring"
)

// alpha is the occupancy-target slack factor; the C++ core uses ~1.001.
const alpha = 1.001

// Buffer couples a writer (e.g. a physical device callback) and a
// reader (e.g. a plugin graph) running at independent rates/blocks.
type Buffer struct {
	ring *ring.Ring

	mu sync.Mutex // guards the fields below; only touched off the RT path

	channels       int
	writerRate     float64
	readerRate     float64
	writerBlock    int
	readerBlock    int
	interpolators  []lagrangeResampler
	smoothedFactor float64
	prepared       atomic.Bool

	scratch [][]float32 // peek scratch, sized to the worst-case read window
}

// New creates an unprepared Buffer. Call Prepare before first use.
func New() *Buffer {
	b := &Buffer{smoothedFactor: 1.0}
	return b
}

// Prepare (re)configures the buffer for the given channel count, block
// sizes and sample rates. It records the target configuration and, if
// anything changed, clears Prepared(); it does not allocate. It takes
// the same mutex Reconcile holds while allocating, so a call can block
// until a concurrent Reconcile finishes; it is not realtime-safe. Call
// Reconcile from a non-RT thread afterward to perform that allocation
// and restore Prepared().
func (b *Buffer) Prepare(channels int, writerBlock, readerBlock int, writerRate, readerRate float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	changed := channels != b.channels ||
		writerBlock != b.writerBlock || readerBlock != b.readerBlock ||
		writerRate != b.writerRate || readerRate != b.readerRate

	b.channels = channels
	b.writerBlock = writerBlock
	b.readerBlock = readerBlock
	b.writerRate = writerRate
	b.readerRate = readerRate

	if !changed && b.ring != nil {
		return
	}
	b.prepared.Store(false)
}

// Reconcile performs the actual (re)allocation flagged by Prepare. Must
// be run off the RT thread; restores Prepared() on completion.
func (b *Buffer) Reconcile() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.prepared.Load() {
		return
	}

	capacity := minimumRingCapacity(b.writerBlock, b.readerBlock, b.writerRate, b.readerRate)
	if b.ring == nil {
		b.ring = ring.New(b.channels, capacity)
	} else {
		b.ring.GrowCapacity(b.channels, capacity)
	}

	b.interpolators = make([]lagrangeResampler, b.channels)
	b.scratch = make([][]float32, b.channels)
	scratchLen := maxReadWindow(b.readerBlock, b.writerRate, b.readerRate)
	for ch := range b.scratch {
		b.scratch[ch] = make([]float32, scratchLen)
	}
	b.smoothedFactor = 1.0
	b.prepared.Store(true)
}

// Prepared reports whether the buffer is ready for RT reads/writes.
func (b *Buffer) Prepared() bool { return b.prepared.Load() }

func minimumRingCapacity(writerBlock, readerBlock int, writerRate, readerRate float64) int {
	writerSamplesForReaderBlock := int(math.Ceil(float64(readerBlock) / readerRate * writerRate))
	base := writerSamplesForReaderBlock
	if writerBlock > base {
		base = writerBlock
	}
	return 3 * base
}

func maxReadWindow(readerBlock int, writerRate, readerRate float64) int {
	n := int(math.Ceil(float64(readerBlock)*(writerRate/readerRate)*alpha)) + 4
	if n < readerBlock {
		n = readerBlock
	}
	return n
}

// Write pushes writer-rate samples into the ring. Silently dropped
// (per spec's overrun policy) if the buffer isn't prepared or is full.
func (b *Buffer) Write(channels [][]float32, numChannels, numSamples int) int {
	if !b.prepared.Load() {
		return 0
	}
	return b.ring.Write(channels, numChannels, numSamples)
}

// Read produces exactly readerBlock samples per channel into out,
// resampled from writer rate to reader rate and drift-corrected. Safe
// to call from the reader's realtime thread.
func (b *Buffer) Read(out [][]float32, numChannels int) {
	if !b.prepared.Load() {
		for ch := 0; ch < numChannels && ch < len(out); ch++ {
			clearFloat32(out[ch][:b.readerBlock])
		}
		return
	}

	factor := b.updateRateFactor()
	ratio := (b.writerRate / b.readerRate) * factor

	nominal := int(math.Ceil(float64(b.readerBlock) * ratio))
	if nominal > len(b.scratch[0]) {
		nominal = len(b.scratch[0])
	}

	got := b.ring.Read(b.scratch, numChannels, nominal, false)

	maxConsumed := 0
	chCount := numChannels
	if chCount > b.channels {
		chCount = b.channels
	}
	for ch := 0; ch < chCount; ch++ {
		consumed := b.interpolators[ch].process(b.scratch[ch][:got], out[ch][:b.readerBlock], ratio)
		if consumed > maxConsumed {
			maxConsumed = consumed
		}
	}
	b.ring.AdvanceRead(maxConsumed)
}

// updateRateFactor applies the occupancy-driven drift correction and
// single-pole-smooths the result with a time constant of one reader
// block, as specified in spec §4.3.
func (b *Buffer) updateRateFactor() float64 {
	occupancy := b.ring.NumReady()
	tMin := int(math.Ceil(alpha * float64(b.readerBlock) * b.writerRate / b.readerRate))

	target := 1.0
	switch {
	case occupancy < tMin:
		target = 1.0 / alpha
	case occupancy > 2*maxInt(tMin, b.writerBlock):
		target = alpha
	}

	// Single-pole smoother, time constant of one reader block: the
	// smoothing coefficient is fixed at 1 reader-block worth of
	// correction per reader-block call, i.e. one pole update per call.
	const smoothing = 0.5
	b.smoothedFactor += (target - b.smoothedFactor) * smoothing
	return b.smoothedFactor
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clearFloat32(s []float32) {
	for i := range s {
		s[i] = 0
	}
}

// Occupancy returns the current number of writer-rate samples held in
// the ring, for monitoring/testing.
func (b *Buffer) Occupancy() int {
	if b.ring == nil {
		return 0
	}
	return b.ring.NumReady()
}
