package spin

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitReturnsImmediatelyWhenTrue(t *testing.T) {
	w := New(FixedBackoff)
	start := time.Now()
	w.Wait(func() bool { return true })
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitBlocksUntilPredicateFlips(t *testing.T) {
	w := New(FixedBackoff)
	var flag atomic.Bool

	go func() {
		time.Sleep(5 * time.Millisecond)
		flag.Store(true)
	}()

	WaitForBool(w, &flag, true)
	require.True(t, flag.Load())
}

func TestBenchmarkedConfigureProducesPositiveBudget(t *testing.T) {
	w := New(Benchmarked)
	w.Configure(512, 44100)
	require.GreaterOrEqual(t, w.maxIterations, 1)
}
