package sched

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRunExecutesInDependencyOrder(t *testing.T) {
	var mu sync.Mutex
	var order []int
	record := func(i int) func() {
		return func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}
	}

	// 0 and 1 have no dependencies; 2 depends on both.
	runs := []func(){record(0), record(1), record(2)}
	dependsOn := [][]int{{}, {}, {0, 1}}
	g := NewDependencyTaskGraph(runs, dependsOn)

	pool := New(2, false, zerolog.Nop())
	pool.Start()
	defer pool.Stop()

	pool.Run(g)

	require.True(t, g.AllCompleted())
	require.Equal(t, 2, indexOf(order, 2))
}

func TestRunWithoutStartNeverClaimsTasks(t *testing.T) {
	ran := atomic.Bool{}
	g := NewDependencyTaskGraph([]func(){func() { ran.Store(true) }}, [][]int{{}})

	pool := New(1, false, zerolog.Nop())
	pool.wait.Configure(64, 48000)

	done := make(chan struct{})
	go func() {
		pool.Run(g)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Run returned without a started pool to claim its task")
	case <-time.After(20 * time.Millisecond):
	}
	require.False(t, ran.Load())
}

func TestRunOnEmptyGraphReturnsImmediately(t *testing.T) {
	g := NewDependencyTaskGraph(nil, nil)
	pool := New(1, false, zerolog.Nop())
	pool.Run(g) // no Start(): must still return since there are no tasks to wait on
	require.True(t, g.AllCompleted())
}

func indexOf(s []int, v int) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func TestPhysicalCoreCountIsPositive(t *testing.T) {
	require.Greater(t, PhysicalCoreCount(), 0)
}
