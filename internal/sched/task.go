// Package sched implements the dependency-aware realtime worker pool:
// a fixed set of worker goroutines that each claim any task whose
// dependencies have all completed (there is no per-level barrier),
// using adaptive spin-waiting instead of channels/mutexes on the hot
// path (spec §4.5).
package sched

import "sync/atomic"

// Task is one schedulable unit of work: process a single subgraph.
// Run must be realtime-safe — no allocation, no blocking syscalls.
type Task struct {
	Run func()

	pendingDeps atomic.Int32
	initialDeps int32
	completed   atomic.Bool
	claimed     atomic.Bool
}

// NewTask wraps run with a dependency counter initialized to
// numDependencies. A task with zero dependencies is immediately
// eligible.
func NewTask(run func(), numDependencies int) *Task {
	t := &Task{Run: run, initialDeps: int32(numDependencies)}
	t.pendingDeps.Store(int32(numDependencies))
	return t
}

// Ready reports whether every dependency has completed.
func (t *Task) Ready() bool { return t.pendingDeps.Load() == 0 }

// Completed reports whether Run has finished.
func (t *Task) Completed() bool { return t.completed.Load() }

// TryClaim attempts to exclusively claim this task for execution via
// CAS, returning true exactly once across any number of racing
// callers.
func (t *Task) TryClaim() bool {
	return t.claimed.CompareAndSwap(false, true)
}

// release decrements the dependency counter, called by a finished
// dependency once per dependent.
func (t *Task) release() {
	t.pendingDeps.Add(-1)
}

// Reset restores the task to its pre-execution state for reuse across
// process() calls.
func (t *Task) Reset() {
	t.pendingDeps.Store(t.initialDeps)
	t.completed.Store(false)
	t.claimed.Store(false)
}

// DependencyTaskGraph holds one schedule: tasks plus the forward edges
// used to release dependents when a task completes.
type DependencyTaskGraph struct {
	Tasks []*Task
	// Dependents[i] lists indices into Tasks that depend on Tasks[i].
	Dependents [][]int

	// completedCount lets the pool's producer join on a single atomic
	// load instead of rescanning Tasks every spin iteration.
	completedCount atomic.Int32
}

// NewDependencyTaskGraph builds a graph from per-task run functions and
// dependency index lists (indices into the same Tasks slice).
func NewDependencyTaskGraph(runs []func(), dependsOn [][]int) *DependencyTaskGraph {
	g := &DependencyTaskGraph{
		Tasks:      make([]*Task, len(runs)),
		Dependents: make([][]int, len(runs)),
	}
	for i, run := range runs {
		g.Tasks[i] = NewTask(run, len(dependsOn[i]))
	}
	for i, deps := range dependsOn {
		for _, dep := range deps {
			g.Dependents[dep] = append(g.Dependents[dep], i)
		}
	}
	return g
}

// Complete marks task i as finished and releases every dependent's
// counter. Safe to call concurrently from multiple workers as long as
// each index completes at most once.
func (g *DependencyTaskGraph) Complete(i int) {
	g.Tasks[i].completed.Store(true)
	g.completedCount.Add(1)
	for _, dependent := range g.Dependents[i] {
		g.Tasks[dependent].release()
	}
}

// AllCompleted reports whether every task in the graph has finished.
func (g *DependencyTaskGraph) AllCompleted() bool {
	return g.completedCount.Load() == int32(len(g.Tasks))
}

// Reset restores every task, and the completion counter, for reuse on
// the next Process call.
func (g *DependencyTaskGraph) Reset() {
	g.completedCount.Store(0)
	for _, t := range g.Tasks {
		t.Reset()
	}
}
