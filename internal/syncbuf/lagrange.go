package syncbuf

// lagrange performs 4-point Lagrange interpolation around index, at
// fractional offset frac (0.0 to 1.0 between index and index+1). This
// is the one interpolation kernel the sample-rate-coupling buffer
// needs to resample between a writer and reader running at
// independent, drifting rates.
func lagrange(buffer []float32, index int, frac float32) float32 {
	i0, i1, i2, i3 := index-1, index, index+1, index+2
	y0 := sampleAt(buffer, i0)
	y1 := sampleAt(buffer, i1)
	y2 := sampleAt(buffer, i2)
	y3 := sampleAt(buffer, i3)

	// Classic 4-point Lagrange basis, x measured from i1 in unit steps.
	x := frac
	c0 := -x * (x - 1) * (x - 2) / 6
	c1 := (x + 1) * (x - 1) * (x - 2) / 2
	c2 := -(x + 1) * x * (x - 2) / 2
	c3 := (x + 1) * x * (x - 1) / 6

	return y0*c0 + y1*c1 + y2*c2 + y3*c3
}

func sampleAt(buffer []float32, index int) float32 {
	if index < 0 || index >= len(buffer) {
		return 0
	}
	return buffer[index]
}

// lagrangeResampler holds the running fractional read position for a
// single channel being resampled by a rate ratio that changes slowly
// block to block.
type lagrangeResampler struct {
	pos float64 // fractional index into the source buffer, in source samples
}

// process consumes from src (as many as needed, up to len(src)) at the
// given ratio (src samples per dst sample) and produces exactly
// len(dst) samples. Returns the number of source samples consumed,
// which may be fewer than len(src) and is usually non-integer in
// theory but reported rounded down to the nearest whole sample for the
// caller to advance a ring's read pointer by.
func (l *lagrangeResampler) process(src []float32, dst []float32, ratio float64) int {
	if ratio <= 0 {
		return 0
	}
	startPos := l.pos
	for i := range dst {
		idx := int(l.pos)
		frac := float32(l.pos - float64(idx))
		if idx >= len(src)-1 {
			dst[i] = sampleAt(src, idx)
		} else {
			dst[i] = lagrange(src, idx, frac)
		}
		l.pos += ratio
	}
	consumed := int(l.pos) - int(startPos)
	if consumed < 0 {
		consumed = 0
	}
	// Keep the fractional remainder relative to the next block's source
	// window, which SyncBuffer re-bases to zero after advancing the ring.
	l.pos -= float64(consumed)
	return consumed
}
