package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mono(samples ...float32) [][]float32 {
	return [][]float32{samples}
}

func TestWriteReadRoundTrip(t *testing.T) {
	r := New(1, 16)
	in := mono(1, 2, 3, 4, 5)
	n := r.Write(in, 1, 5)
	require.Equal(t, 5, n)
	require.Equal(t, 5, r.NumReady())

	out := [][]float32{make([]float32, 5)}
	got := r.Read(out, 1, 5, true)
	require.Equal(t, 5, got)
	require.Equal(t, []float32{1, 2, 3, 4, 5}, out[0])
	require.Equal(t, 0, r.NumReady())
}

func TestPeekDoesNotAdvance(t *testing.T) {
	r := New(1, 16)
	r.Write(mono(1, 2, 3), 1, 3)

	out := [][]float32{make([]float32, 3)}
	r.Read(out, 1, 3, false)
	require.Equal(t, 3, r.NumReady(), "peek must not consume")

	r.AdvanceRead(2)
	require.Equal(t, 1, r.NumReady())
}

func TestOverrunDropsTail(t *testing.T) {
	r := New(1, 4) // 3 usable slots (one reserved)
	n := r.Write(mono(1, 2, 3, 4, 5), 1, 5)
	require.Equal(t, 3, n)
	require.Equal(t, 3, r.NumReady())
	require.Equal(t, 0, r.FreeSpace())
}

func TestUnderrunReturnsFewer(t *testing.T) {
	r := New(1, 8)
	r.Write(mono(1, 2), 1, 2)

	out := [][]float32{make([]float32, 5)}
	n := r.Read(out, 1, 5, true)
	require.Equal(t, 2, n)
}

func TestGrowCapacityPreservesReadyData(t *testing.T) {
	r := New(2, 8)
	r.Write([][]float32{{1, 2, 3}, {10, 20, 30}}, 2, 3)

	r.GrowCapacity(2, 32)
	require.True(t, r.Prepared())
	require.Equal(t, 3, r.NumReady())

	out := [][]float32{make([]float32, 3), make([]float32, 3)}
	r.Read(out, 2, 3, true)
	require.Equal(t, []float32{1, 2, 3}, out[0])
	require.Equal(t, []float32{10, 20, 30}, out[1])
}

func TestResetClearsOccupancy(t *testing.T) {
	r := New(1, 8)
	r.Write(mono(1, 2, 3), 1, 3)
	r.Reset()
	require.Equal(t, 0, r.NumReady())
}
