// Package graph is the public processor graph: a set of nodes wired
// together by connections, partitioned and scheduled by the internal
// DAG partitioner and realtime thread pool (spec §4.4/§4.5).
package graph

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/obsrt/rtcore/internal/graph/extract"
	"github.com/obsrt/rtcore/internal/sched"
	"github.com/obsrt/rtcore/pkg/dsp"
	"github.com/obsrt/rtcore/pkg/midi"
)

// NodeID identifies a node within a ProcessorGraph.
type NodeID uint64

// Processor is one unit of audio work in the graph. Process must be
// realtime-safe: no allocation, no blocking, no locks held across the
// call other than ones the processor privately owns.
type Processor interface {
	Prepare(sampleRate float64, blockSize int) error
	Process(in, out [][]float32, events *midi.EventQueue)
	Latency() int
	Release()
}

// Connection wires one node's output to another node's input.
type Connection struct {
	Source      NodeID
	Destination NodeID
}

type node struct {
	id        NodeID
	processor Processor
	isIO      bool
}

// compiledTask is one subgraph's precompiled execution unit: the
// resolved node pointers and their working buffers, baked in once by
// Prepare so Process's task closures never dereference g.nodes (and
// never take g.mu) on the RT thread.
type compiledTask struct {
	nodes     []*node
	buffers   [][][]float32 // per-node working buffer, aligned with nodes
	dependsOn []int         // subgraph indices this subgraph reads from
	isRoot    bool          // true if it reads the graph's external input
}

// snapshot is the immutable, atomically-published view of the graph's
// compiled schedule consumed by Process — the Go-native analog of the
// original's AtomicSharedPtr<Topology> (see DESIGN.md's
// pkg/graph.ProcessorGraph entry: atomic.Pointer[T] plus the GC is the
// whole mechanism, no hazard pointers or epoch reclamation needed).
//
// curIn/curEvents are set by Process immediately before
// publishing the task graph to the pool, and read back by the task
// closures below; since Process always finishes dispatching the prior
// block before touching them again, and the pool's own atomic publish
// of the task graph is the happens-before edge workers rely on, no
// separate synchronization is needed for these fields.
type snapshot struct {
	tasks       []*compiledTask
	sinkIndices []int // subgraphs with no dependents; their output feeds the graph's external out
	taskGraph   *sched.DependencyTaskGraph

	curIn     [][]float32
	curEvents *midi.EventQueue
}

// ProcessorGraph owns the node set, connection set, and a compiled
// schedule. Structural edits (AddNode, RemoveNode, AddConnection,
// RemoveConnection) mark the graph dirty; the next Prepare call
// recompiles the schedule and publishes a fresh snapshot. Process
// never blocks on structural edits — it always reads whatever snapshot
// was most recently published.
type ProcessorGraph struct {
	mu          sync.Mutex // guards nodes/connections; never held during Process
	nodes       map[NodeID]*node
	connections []Connection
	nextID      uint64
	dirty       atomic.Bool

	current atomic.Pointer[snapshot]

	pool        *sched.RealtimeThreadPool
	sampleRate  float64
	blockSize   int
	numChannels int

	log zerolog.Logger
}

// New creates an empty graph dispatched across numWorkers pinned
// workers.
func New(numWorkers int, pin bool, log zerolog.Logger) *ProcessorGraph {
	g := &ProcessorGraph{
		nodes: make(map[NodeID]*node),
		pool:  sched.New(numWorkers, pin, log),
		log:   log,
	}
	g.dirty.Store(true)
	return g
}

// AddNode registers a processor and returns its graph-local ID.
func (g *ProcessorGraph) AddNode(p Processor, isIO bool) NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	id := NodeID(g.nextID)
	g.nodes[id] = &node{id: id, processor: p, isIO: isIO}
	g.dirty.Store(true)
	return id
}

// RemoveNode deletes a node and any connections touching it.
func (g *ProcessorGraph) RemoveNode(id NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.nodes, id)
	kept := g.connections[:0]
	for _, c := range g.connections {
		if c.Source != id && c.Destination != id {
			kept = append(kept, c)
		}
	}
	g.connections = kept
	g.dirty.Store(true)
}

// AddConnection wires source to destination.
func (g *ProcessorGraph) AddConnection(c Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connections = append(g.connections, c)
	g.dirty.Store(true)
}

// RemoveConnection removes a matching connection, if present.
func (g *ProcessorGraph) RemoveConnection(c Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, existing := range g.connections {
		if existing == c {
			g.connections = append(g.connections[:i], g.connections[i+1:]...)
			break
		}
	}
	g.dirty.Store(true)
}

// GetNodes returns a snapshot copy of the current node ID set.
func (g *ProcessorGraph) GetNodes() []NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	return ids
}

// GetConnections returns a snapshot copy of the current connection set.
func (g *ProcessorGraph) GetConnections() []Connection {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Connection(nil), g.connections...)
}

// Prepare recompiles the schedule if the graph is dirty, prepares
// every processor for the given format, and publishes a fresh
// snapshot. Must be called off the RT thread (it allocates).
func (g *ProcessorGraph) Prepare(sampleRate float64, blockSize, numChannels int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sampleRate = sampleRate
	g.blockSize = blockSize
	g.numChannels = numChannels
	g.pool.Configure(blockSize, sampleRate)

	if !g.dirty.Load() {
		return nil
	}

	var nodeIDs []uint64
	ioNodes := map[uint64]bool{}
	for id, n := range g.nodes {
		nodeIDs = append(nodeIDs, uint64(id))
		if n.isIO {
			ioNodes[uint64(id)] = true
		}
		if err := n.processor.Prepare(sampleRate, blockSize); err != nil {
			return err
		}
	}
	conns := make([]extract.Connection, len(g.connections))
	for i, c := range g.connections {
		conns[i] = extract.Connection{Source: uint64(c.Source), Destination: uint64(c.Destination)}
	}

	plan := extract.BuildPlan(nodeIDs, conns, ioNodes, sched.PhysicalCoreCount())

	buffers := make(map[NodeID][][]float32, len(g.nodes))
	for id := range g.nodes {
		chans := make([][]float32, numChannels)
		for ch := range chans {
			chans[ch] = make([]float32, blockSize)
		}
		buffers[NodeID(id)] = chans
	}

	snap := compileSnapshot(plan.Subgraphs, g.nodes, buffers)
	g.current.Store(snap)
	g.dirty.Store(false)
	return nil
}

// compileSnapshot resolves every subgraph's node pointers and working
// buffers once, and builds the closures and dependency graph Process
// will dispatch every block. Called only from Prepare, under g.mu —
// the RT path never reaches back into the nodes map this builds from.
func compileSnapshot(subs []extract.PlanSubgraph, nodes map[NodeID]*node, buffers map[NodeID][][]float32) *snapshot {
	snap := &snapshot{
		tasks: make([]*compiledTask, len(subs)),
	}

	hasDependent := make([]bool, len(subs))
	dependsOn := make([][]int, len(subs))
	for i, sg := range subs {
		t := &compiledTask{
			nodes:     make([]*node, len(sg.NodeIDs)),
			buffers:   make([][][]float32, len(sg.NodeIDs)),
			dependsOn: sg.DependsOn,
			isRoot:    len(sg.DependsOn) == 0,
		}
		for j, id := range sg.NodeIDs {
			t.nodes[j] = nodes[NodeID(id)]
			t.buffers[j] = buffers[NodeID(id)]
		}
		snap.tasks[i] = t
		dependsOn[i] = sg.DependsOn
		for _, dep := range sg.DependsOn {
			hasDependent[dep] = true
		}
	}
	for i, has := range hasDependent {
		if !has {
			snap.sinkIndices = append(snap.sinkIndices, i)
		}
	}

	runs := make([]func(), len(snap.tasks))
	for i, t := range snap.tasks {
		t := t
		runs[i] = func() { runCompiledTask(snap, t) }
	}
	snap.taskGraph = sched.NewDependencyTaskGraph(runs, dependsOn)

	return snap
}

// runCompiledTask executes one subgraph's chain of nodes in order,
// feeding each node's output buffer to the next. A root subgraph reads
// the block's external input; a dependent subgraph reads the last
// buffer of the (single) subgraph it depends on.
func runCompiledTask(snap *snapshot, t *compiledTask) {
	var in [][]float32
	if t.isRoot {
		in = snap.curIn
	} else {
		dep := snap.tasks[t.dependsOn[0]]
		in = dep.buffers[len(dep.buffers)-1]
	}
	for i, n := range t.nodes {
		if n == nil {
			continue
		}
		buf := t.buffers[i]
		n.processor.Process(in, buf, snap.curEvents)
		in = buf
	}
}

// Process runs one audio callback's worth of work through the
// compiled schedule. Realtime-safe: reads the published snapshot with
// a single atomic load, never touches g.mu, and performs no
// allocation — the task graph, buffers, and node references were all
// built once by Prepare.
func (g *ProcessorGraph) Process(in, out [][]float32, events *midi.EventQueue) {
	snap := g.current.Load()
	if snap == nil {
		return
	}

	snap.curIn = in
	snap.curEvents = events

	g.pool.Run(snap.taskGraph)

	for ch := range out {
		dsp.Clear(out[ch])
	}
	for _, idx := range snap.sinkIndices {
		t := snap.tasks[idx]
		if len(t.buffers) == 0 {
			continue
		}
		mixChannels(out, t.buffers[len(t.buffers)-1])
	}
}

// ReportLatency returns the largest latency, in samples, that any
// single node reports. Latencies of nodes in series are not summed, so
// a chain of latent nodes reports only its largest member. Supplements the
// original per-node latency plumbing the distilled spec omitted.
func (g *ProcessorGraph) ReportLatency() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	max := 0
	for _, n := range g.nodes {
		l := n.processor.Latency()
		if l > max {
			max = l
		}
	}
	return max
}

// Start brings up the worker pool. Call once before the first Process.
func (g *ProcessorGraph) Start() { g.pool.Start() }

// Stop tears down the worker pool and releases every processor.
func (g *ProcessorGraph) Stop() {
	g.pool.Stop()
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range g.nodes {
		n.processor.Release()
	}
}

// mixChannels adds src into dst, channel by channel, bounded by the
// shorter of the two. Used to sum every sink subgraph's output into
// the graph's external output buffer.
func mixChannels(dst, src [][]float32) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for ch := 0; ch < n; ch++ {
		dsp.Add(dst[ch], src[ch])
	}
}
