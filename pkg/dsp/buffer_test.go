package dsp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClearZeroesBuffer(t *testing.T) {
	buf := []float32{1, 2, 3}
	Clear(buf)
	require.Equal(t, []float32{0, 0, 0}, buf)
}

func TestAddSumsIntoDestination(t *testing.T) {
	dst := []float32{1, 2, 3}
	Add(dst, []float32{1, 1, 1})
	require.Equal(t, []float32{2, 3, 4}, dst)
}

func TestScaleMultipliesInPlace(t *testing.T) {
	buf := []float32{1, 2, 3}
	Scale(buf, 2)
	require.Equal(t, []float32{2, 4, 6}, buf)
}

func TestMixBlendsTwoSources(t *testing.T) {
	dst := make([]float32, 2)
	Mix(dst, []float32{0, 0}, []float32{1, 1}, 0.5)
	require.InDeltaSlice(t, []float64{0.5, 0.5}, toFloat64(dst), 1e-6)
}

func TestPeakFindsMaxAbsoluteValue(t *testing.T) {
	require.Equal(t, float32(3), Peak([]float32{-3, 1, 2}))
}

func TestRMSOfConstantBufferEqualsItsMagnitude(t *testing.T) {
	require.InDelta(t, 2.0, float64(RMS([]float32{2, 2, 2, 2})), 1e-6)
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
