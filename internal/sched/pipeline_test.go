package sched

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipelinerRunsAllSubmittedJobs(t *testing.T) {
	p := NewPipeliner(4, 16)
	var count atomic.Int64
	for i := 0; i < 50; i++ {
		p.Submit(func() { count.Add(1) })
	}
	p.Close()
	require.Equal(t, int64(50), count.Load())
}
