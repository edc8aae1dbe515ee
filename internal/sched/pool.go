package sched

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/obsrt/rtcore/internal/spin"
)

// PhysicalCoreCount returns the host's physical (non-hyperthreaded)
// core count, falling back to GOMAXPROCS when the platform query
// fails. Used to size the pool the way the original C++ core sized
// itself off std::thread::hardware_concurrency, but preferring
// physical cores since hyperthread siblings don't help a
// compute-bound, cache-sensitive DSP workload.
func PhysicalCoreCount() int {
	n, err := cpu.Counts(false)
	if err != nil || n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// RealtimeThreadPool is a fixed set of long-lived, pinned worker
// goroutines that continuously scan a published DependencyTaskGraph
// for runnable tasks. There is no per-block goroutine spawning and no
// blocking suspension on the RT thread: workers claim tasks via CAS
// and the producer joins completion with an adaptive spin-wait.
type RealtimeThreadPool struct {
	numWorkers int
	pin        bool
	log        zerolog.Logger

	wait *spin.AdaptiveWait

	mu      sync.Mutex
	started bool
	done    chan struct{}

	// active is the graph currently being dispatched, or nil between
	// Run calls. Workers poll it; Run publishes and clears it.
	active atomic.Pointer[DependencyTaskGraph]
}

// New creates a pool with numWorkers goroutines. When pin is true,
// each worker locks its OS thread and attempts to pin it to a distinct
// core (Linux only; a no-op elsewhere).
func New(numWorkers int, pin bool, log zerolog.Logger) *RealtimeThreadPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &RealtimeThreadPool{
		numWorkers: numWorkers,
		pin:        pin,
		log:        log,
		wait:       spin.New(spin.FixedBackoff),
	}
}

// Configure propagates the realtime block budget to the pool's
// completion-wait strategy.
func (p *RealtimeThreadPool) Configure(samplesPerBlock int, sampleRate float64) {
	p.wait.Configure(samplesPerBlock, sampleRate)
}

// Start spins up the worker goroutines and blocks until every one has
// pinned its OS thread. Safe to call once.
func (p *RealtimeThreadPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.done = make(chan struct{})

	var ready sync.WaitGroup
	ready.Add(p.numWorkers)
	for i := 0; i < p.numWorkers; i++ {
		go func(id int) {
			if p.pin {
				runtime.LockOSThread()
				if err := pinToCore(id % runtime.NumCPU()); err != nil {
					p.log.Debug().Err(err).Int("worker", id).Msg("affinity pinning unavailable")
				}
			}
			ready.Done()
			p.workerLoop()
		}(i)
	}
	ready.Wait()
}

// workerLoop runs for the lifetime of the pool. It never blocks: with
// no graph published, or no claimable task in the published graph, it
// yields the scheduler slice and polls again.
func (p *RealtimeThreadPool) workerLoop() {
	for {
		select {
		case <-p.done:
			return
		default:
		}

		graph := p.active.Load()
		if graph == nil || !p.claimAndRunOne(graph) {
			runtime.Gosched()
		}
	}
}

// claimAndRunOne scans the graph once for a task whose dependencies
// have all completed and that no other worker has claimed yet. It
// runs at most one task per call so that, between tasks, a worker
// re-checks p.done and re-reads the freshest graph pointer.
func (p *RealtimeThreadPool) claimAndRunOne(graph *DependencyTaskGraph) bool {
	for i, task := range graph.Tasks {
		if task.Completed() || !task.Ready() {
			continue
		}
		if task.TryClaim() {
			task.Run()
			graph.Complete(i)
			return true
		}
	}
	return false
}

// Stop signals every worker to exit.
func (p *RealtimeThreadPool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	close(p.done)
	p.started = false
}

// Run executes graph to completion: it resets every task's dependency
// count, publishes the graph to the pinned workers, and joins via an
// adaptive spin-wait on the graph's completion counter — the RT
// thread never blocks on a channel, mutex, or WaitGroup. Start must
// have been called first so workers are actually polling; otherwise
// this call never returns.
func (p *RealtimeThreadPool) Run(graph *DependencyTaskGraph) {
	graph.Reset()
	if len(graph.Tasks) == 0 {
		return
	}

	p.active.Store(graph)
	p.wait.Wait(graph.AllCompleted)
	p.active.Store(nil)
}
