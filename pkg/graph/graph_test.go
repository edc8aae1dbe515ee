package graph

import (
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/obsrt/rtcore/pkg/midi"
)

type gainProcessor struct {
	gain float32
	ran  atomic.Int32
}

func (g *gainProcessor) Prepare(sampleRate float64, blockSize int) error { return nil }
func (g *gainProcessor) Latency() int                                   { return 0 }
func (g *gainProcessor) Release()                                       {}
func (g *gainProcessor) Process(in, out [][]float32, events *midi.EventQueue) {
	g.ran.Add(1)
	for ch := range out {
		if ch >= len(in) {
			continue
		}
		for i := range out[ch] {
			if i < len(in[ch]) {
				out[ch][i] = in[ch][i] * g.gain
			}
		}
	}
}

func TestAddNodeAndConnectionAreListed(t *testing.T) {
	g := New(2, false, zerolog.Nop())
	a := g.AddNode(&gainProcessor{gain: 0.5}, false)
	b := g.AddNode(&gainProcessor{gain: 2.0}, false)
	g.AddConnection(Connection{Source: a, Destination: b})

	require.Len(t, g.GetNodes(), 2)
	require.Len(t, g.GetConnections(), 1)
}

func TestPrepareCompilesScheduleAndProcessRuns(t *testing.T) {
	g := New(2, false, zerolog.Nop())
	p1 := &gainProcessor{gain: 0.5}
	p2 := &gainProcessor{gain: 2.0}
	a := g.AddNode(p1, false)
	b := g.AddNode(p2, false)
	g.AddConnection(Connection{Source: a, Destination: b})

	require.NoError(t, g.Prepare(48000, 64, 1))
	g.Start()
	defer g.Stop()

	in := [][]float32{make([]float32, 64)}
	out := [][]float32{make([]float32, 64)}
	for i := range in[0] {
		in[0][i] = 1.0
	}

	g.Process(in, out, midi.NewEventQueue())

	require.GreaterOrEqual(t, p1.ran.Load(), int32(1))
	require.GreaterOrEqual(t, p2.ran.Load(), int32(1))
}

func TestRemoveNodeDropsDanglingConnections(t *testing.T) {
	g := New(1, false, zerolog.Nop())
	a := g.AddNode(&gainProcessor{gain: 1}, false)
	b := g.AddNode(&gainProcessor{gain: 1}, false)
	g.AddConnection(Connection{Source: a, Destination: b})
	g.RemoveNode(b)
	require.Empty(t, g.GetConnections())
}
