package syncbuf

import "testing"

func TestLagrangeReproducesLinearRampExactly(t *testing.T) {
	buf := []float32{0, 1, 2, 3, 4, 5}
	got := lagrange(buf, 2, 0.5)
	want := float32(2.5)
	if diff := got - want; diff > 1e-5 || diff < -1e-5 {
		t.Fatalf("lagrange(buf, 2, 0.5) = %v, want %v", got, want)
	}
}

func TestLagrangeResamplerPassthroughAtUnitRatio(t *testing.T) {
	src := []float32{0, 1, 2, 3, 4, 5, 6, 7}
	dst := make([]float32, 4)
	var r lagrangeResampler

	consumed := r.process(src, dst, 1.0)
	if consumed != 4 {
		t.Fatalf("consumed = %d, want 4", consumed)
	}
	for i, v := range dst {
		if diff := v - float32(i); diff > 1e-4 || diff < -1e-4 {
			t.Fatalf("dst[%d] = %v, want %v", i, v, i)
		}
	}
}
