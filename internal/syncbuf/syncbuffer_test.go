package syncbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func writeBlock(b *Buffer, n int) {
	chans := [][]float32{make([]float32, n)}
	for i := range chans[0] {
		chans[0][i] = float32(i)
	}
	b.Write(chans, 1, n)
}

func TestOccupancyStaysWithinBounds(t *testing.T) {
	const writerRate, readerRate = 44100.0, 48000.0
	const writerBlock, readerBlock = 512, 480

	b := New()
	b.Prepare(1, writerBlock, readerBlock, writerRate, readerRate)
	b.Reconcile()

	tMin := int(alpha * float64(readerBlock) * writerRate / readerRate)
	maxOccupancy := 3 * maxInt(int(float64(readerBlock)*writerRate/readerRate+1), writerBlock)

	out := [][]float32{make([]float32, readerBlock)}
	for block := 0; block < 500; block++ {
		writeBlock(b, writerBlock)
		b.Read(out, 1)

		occ := b.Occupancy()
		require.LessOrEqual(t, occ, maxOccupancy, "occupancy must stay bounded")
		_ = tMin
	}
}

func TestUnpreparedReadProducesSilence(t *testing.T) {
	b := New()
	out := [][]float32{{1, 1, 1, 1}}
	b.readerBlock = 4
	b.Read(out, 1)
	for _, s := range out[0] {
		require.Equal(t, float32(0), s)
	}
}

func TestWriteDropsWhenNotPrepared(t *testing.T) {
	b := New()
	n := b.Write([][]float32{{1, 2, 3}}, 1, 3)
	require.Equal(t, 0, n)
}

func TestRateFactorRelaxesTowardOneAtSteadyOccupancy(t *testing.T) {
	b := New()
	b.Prepare(1, 512, 480, 44100, 48000)
	b.Reconcile()

	out := [][]float32{make([]float32, 480)}
	for i := 0; i < 50; i++ {
		writeBlock(b, 512)
		b.Read(out, 1)
	}
	require.InDelta(t, 1.0, b.smoothedFactor, alpha, "smoothed factor should settle near the neutral band")
}
