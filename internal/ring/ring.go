// Package ring implements a lock-free, single-producer/single-consumer
// multichannel float32 ring buffer, the backing store for the
// sample-rate-coupling sync buffer.
package ring

import "sync/atomic"

// Ring is an SPSC multichannel ring buffer. One goroutine may call
// Write, a different goroutine may call Read/Peek/AdvanceRead
// concurrently; neither path allocates or blocks.
type Ring struct {
	data     [][]float32 // data[channel][index]
	channels int
	size     uint64 // capacity, not a power of 2 requirement

	head atomic.Uint64 // write index, advanced by the producer
	tail atomic.Uint64 // read index, advanced by the consumer

	prepared atomic.Bool
}

// New creates a ring sized for the given channel count and capacity.
// capacity is the number of samples per channel; one slot is reserved
// to disambiguate full from empty, so FreeSpace() never reaches
// capacity.
func New(channels, capacity int) *Ring {
	r := &Ring{
		channels: channels,
		size:     uint64(capacity),
	}
	r.allocate(channels, capacity)
	r.prepared.Store(true)
	return r
}

func (r *Ring) allocate(channels, capacity int) {
	data := make([][]float32, channels)
	for ch := range data {
		data[ch] = make([]float32, capacity)
	}
	r.data = data
	r.channels = channels
	r.size = uint64(capacity)
}

// Prepared reports whether the ring is ready for RT use. Cleared by
// GrowCapacity's caller before reallocation and restored afterward.
func (r *Ring) Prepared() bool { return r.prepared.Load() }

// GrowCapacity reallocates the ring to hold at least capacity samples
// per channel. Must be called from a non-RT thread: it clears Prepared
// for the duration of the copy so RT readers/writers see dropped
// writes and silent reads instead of touching a buffer mid-resize.
func (r *Ring) GrowCapacity(channels, capacity int) {
	r.prepared.Store(false)
	defer r.prepared.Store(true)

	old := r.data
	oldSize := r.size
	head := r.head.Load()
	tail := r.tail.Load()
	ready := r.readyLocked(head, tail, oldSize)

	r.allocate(channels, capacity)
	r.head.Store(0)
	r.tail.Store(0)

	n := ready
	if uint64(capacity) < n {
		n = uint64(capacity)
	}
	copyChannels := channels
	if len(old) < copyChannels {
		copyChannels = len(old)
	}
	for ch := 0; ch < copyChannels; ch++ {
		for i := uint64(0); i < n; i++ {
			idx := (tail + i) % oldSize
			r.data[ch][i] = old[ch][idx]
		}
	}
	r.head.Store(n)
}

// Reset empties the ring without reallocating.
func (r *Ring) Reset() {
	r.head.Store(0)
	r.tail.Store(0)
}

// Channels returns the channel count.
func (r *Ring) Channels() int { return r.channels }

func (r *Ring) readyLocked(head, tail, size uint64) uint64 {
	if size == 0 {
		return 0
	}
	return (head - tail + size) % size
}

// NumReady returns the number of samples per channel available to read.
func (r *Ring) NumReady() int {
	if !r.prepared.Load() {
		return 0
	}
	head := r.head.Load()
	tail := r.tail.Load()
	return int(r.readyLocked(head, tail, r.size))
}

// FreeSpace returns the number of samples per channel that can be
// written before the ring is full.
func (r *Ring) FreeSpace() int {
	if !r.prepared.Load() || r.size == 0 {
		return 0
	}
	return int(r.size) - r.NumReady() - 1
}

// Write copies up to numSamples samples per channel from channels into
// the ring. channels must have at least numChannels slices, each with
// at least numSamples samples. Returns the number of samples actually
// written; fewer than requested when the ring is near full (the tail
// of the write is dropped, per spec.md's overrun policy) or not yet
// prepared.
func (r *Ring) Write(channels [][]float32, numChannels, numSamples int) int {
	if !r.prepared.Load() {
		return 0
	}
	free := r.FreeSpace()
	n := numSamples
	if free < n {
		n = free
	}
	if n <= 0 {
		return 0
	}

	head := r.head.Load()
	chCount := numChannels
	if chCount > r.channels {
		chCount = r.channels
	}
	for ch := 0; ch < chCount; ch++ {
		src := channels[ch]
		dst := r.data[ch]
		for i := 0; i < n; i++ {
			dst[(head+uint64(i))%r.size] = src[i]
		}
	}
	r.head.Store(head + uint64(n)) // release: publishes the samples above
	return n
}

// Read copies up to numSamples samples per channel into out. When
// advance is true the read pointer moves forward by the number of
// samples returned (a normal consuming read); when false the ring is
// only peeked, used by SyncBuffer to look ahead before deciding how
// many writer-rate samples an interpolation pass actually consumed.
func (r *Ring) Read(out [][]float32, numChannels, numSamples int, advance bool) int {
	if !r.prepared.Load() {
		for ch := 0; ch < numChannels && ch < len(out); ch++ {
			clear(out[ch][:numSamples])
		}
		return 0
	}
	ready := r.NumReady() // acquire: pairs with Write's release store
	n := numSamples
	if ready < n {
		n = ready
	}

	tail := r.tail.Load()
	chCount := numChannels
	if chCount > r.channels {
		chCount = r.channels
	}
	for ch := 0; ch < chCount; ch++ {
		dst := out[ch]
		src := r.data[ch]
		for i := 0; i < n; i++ {
			dst[i] = src[(tail+uint64(i))%r.size]
		}
	}
	if advance {
		r.tail.Store(tail + uint64(n))
	}
	return n
}

// AdvanceRead moves the read pointer forward by n samples, used after
// a Read(..., advance=false) peek once the caller knows how many
// writer-rate samples its interpolation pass consumed.
func (r *Ring) AdvanceRead(n int) {
	if n <= 0 {
		return
	}
	tail := r.tail.Load()
	ready := r.NumReady()
	if n > ready {
		n = ready
	}
	r.tail.Store(tail + uint64(n))
}
