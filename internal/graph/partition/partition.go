// Package partition implements the DAG partitioner: it decomposes a
// directed acyclic graph of processing nodes into linear chains
// ("subgraphs"), assigns each an ALAP topological level, and
// load-balances levels across a known worker count (spec §4.4).
//
// Grounded on the original C++ DagPartitioner (sequential tracing path
// only — the parallel-tracing mode was never enabled by default in the
// source and is intentionally not carried forward, spec §9).
package partition

import "sort"

// NodeID identifies a node to the partitioner. The partitioner is
// agnostic to what a node actually is; callers (subgraph extraction)
// map their own node identifiers to/from this type.
type NodeID uint64

// Node describes one graph node's adjacency, as seen by the
// partitioner: who it feeds and who feeds it. Excluded I/O nodes may
// appear in these lists; the partitioner checks each neighbour against
// the excluded set itself.
type Node struct {
	ID         NodeID
	OutputsTo  []NodeID
	InputsFrom []NodeID
}

// Subgraph is a maximal linear chain of nodes plus its place in the
// inter-subgraph dependency DAG.
type Subgraph struct {
	NodeIDs    []NodeID
	DependsOn  []int // indices into the returned []Subgraph
	Dependents []int
	Level      int
}

// Partition decomposes nodes into subgraphs, builds the inter-subgraph
// dependency DAG, and assigns ALAP levels. excluded marks I/O boundary
// nodes, which never appear in any returned subgraph. numWorkers, if
// >0, triggers worker-aware load balancing across levels; pass 0 to
// skip it (matches spec's numWorkers == SIZE_MAX meaning "don't
// balance").
func Partition(nodes map[NodeID]Node, excluded map[NodeID]bool, numWorkers int) []Subgraph {
	p := &partitioner{nodes: nodes, excluded: excluded, visited: map[NodeID]bool{}}
	p.extractSubgraphs()
	p.buildDependencies()
	p.assignLevels()
	if numWorkers > 0 {
		p.balance(numWorkers)
	}
	return p.subgraphs
}

type partitioner struct {
	nodes    map[NodeID]Node
	excluded map[NodeID]bool
	visited  map[NodeID]bool
	current  []NodeID
	subs     []Subgraph

	subgraphs []Subgraph
}

func (p *partitioner) isExcluded(id NodeID) bool { return p.excluded[id] }

func (p *partitioner) nonExcludedOutputCount(n Node) int {
	count := 0
	for _, out := range n.OutputsTo {
		if !p.isExcluded(out) {
			count++
		}
	}
	return count
}

// extractSubgraphs finds endpoints (fan-out != 1) and traces backwards
// along single-in/single-out chains, exactly as the original
// traceBackwards does.
func (p *partitioner) extractSubgraphs() {
	if len(p.nodes) == 0 {
		return
	}

	var endpoints []NodeID
	for id, n := range p.nodes {
		if p.isExcluded(id) {
			continue
		}
		if p.nonExcludedOutputCount(n) != 1 {
			endpoints = append(endpoints, id)
		}
	}
	// Deterministic order for reproducible scheduling.
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i] < endpoints[j] })

	for _, id := range endpoints {
		if !p.visited[id] {
			p.current = p.current[:0]
			p.traceBackwards(id)
		}
	}

	// Side-effect processors reachable only forward from an input that
	// was never traced (e.g. a node with inputs but whose sole output
	// is excluded and whose fan-out was already 1 so it wasn't an
	// endpoint by itself, reached via another branch).
	var remaining []NodeID
	for id, n := range p.nodes {
		if !p.isExcluded(id) && !p.visited[id] && len(n.InputsFrom) > 0 {
			remaining = append(remaining, id)
		}
	}
	sort.Slice(remaining, func(i, j int) bool { return remaining[i] < remaining[j] })
	for _, id := range remaining {
		if !p.visited[id] {
			p.current = p.current[:0]
			p.traceBackwards(id)
		}
	}

	// Orphans: no connections at all.
	var orphans []NodeID
	for id := range p.nodes {
		if !p.isExcluded(id) && !p.visited[id] {
			orphans = append(orphans, id)
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i] < orphans[j] })
	for _, id := range orphans {
		p.subgraphs = append(p.subgraphs, Subgraph{NodeIDs: []NodeID{id}})
		p.visited[id] = true
	}
}

func (p *partitioner) traceBackwards(id NodeID) {
	if p.visited[id] {
		p.finalizeCurrent()
		return
	}
	if p.isExcluded(id) {
		p.finalizeCurrent()
		return
	}
	n, ok := p.nodes[id]
	if !ok {
		return
	}
	if len(p.current) > 0 && p.nonExcludedOutputCount(n) != 1 {
		// A fan-out node ends the chain being built; it is an endpoint
		// itself and starts its own chain when its turn comes.
		p.finalizeCurrent()
		return
	}

	if len(n.InputsFrom) != 1 {
		// Join point (or a source with no predecessor): finalize
		// whatever chain we were building, then this node becomes its
		// own single-node subgraph, then recurse into each predecessor
		// with a fresh chain.
		p.finalizeCurrent()

		p.current = []NodeID{id}
		p.visited[id] = true
		p.finalizeCurrent()

		preds := append([]NodeID(nil), n.InputsFrom...)
		sort.Slice(preds, func(i, j int) bool { return preds[i] < preds[j] })
		for _, pred := range preds {
			p.current = p.current[:0]
			p.traceBackwards(pred)
		}
		return
	}

	// Exactly one predecessor: extend the chain and keep walking
	// upstream.
	p.current = append(p.current, id)
	p.visited[id] = true
	p.traceBackwards(n.InputsFrom[0])
}

func (p *partitioner) finalizeCurrent() {
	if len(p.current) == 0 {
		return
	}
	// p.current holds the chain in trace (downstream-first) order;
	// store it upstream-first, which is its execution order.
	ids := make([]NodeID, len(p.current))
	for i, id := range p.current {
		ids[len(ids)-1-i] = id
	}
	sg := Subgraph{NodeIDs: ids}
	p.subgraphs = append(p.subgraphs, sg)
	p.current = p.current[:0]
}

// buildDependencies computes, for every pair (i,j), whether j depends
// on i because some node in i has an edge into some node in j.
// O(V^2) as spec.md explicitly permits.
func (p *partitioner) buildDependencies() {
	memberOf := make(map[NodeID]int, len(p.nodes))
	for i, sg := range p.subgraphs {
		for _, id := range sg.NodeIDs {
			memberOf[id] = i
		}
	}

	n := len(p.subgraphs)
	adjacency := make([]map[int]bool, n)
	for i := range adjacency {
		adjacency[i] = map[int]bool{}
	}

	for i, sg := range p.subgraphs {
		for _, id := range sg.NodeIDs {
			node, ok := p.nodes[id]
			if !ok {
				continue
			}
			for _, out := range node.OutputsTo {
				if j, ok := memberOf[out]; ok && j != i {
					adjacency[i][j] = true
				}
			}
		}
	}

	for i := 0; i < n; i++ {
		js := make([]int, 0, len(adjacency[i]))
		for j := range adjacency[i] {
			js = append(js, j)
		}
		sort.Ints(js)
		for _, j := range js {
			p.subgraphs[j].DependsOn = append(p.subgraphs[j].DependsOn, i)
			p.subgraphs[i].Dependents = append(p.subgraphs[i].Dependents, j)
		}
	}
}

// assignLevels computes ASAP levels to find maxLevel, breaks any
// remaining cycle by collapsing unassigned subgraphs to maxLevel+1,
// then re-derives ALAP levels working backward from sinks.
func (p *partitioner) assignLevels() {
	n := len(p.subgraphs)
	if n == 0 {
		return
	}

	// ASAP pass: find the critical path length.
	asapAssigned := make([]bool, n)
	asapLevel := make([]int, n)
	changed := true
	for changed {
		changed = false
		for i := 0; i < n; i++ {
			if asapAssigned[i] {
				continue
			}
			canAssign := true
			maxDep := -1
			for _, dep := range p.subgraphs[i].DependsOn {
				if !asapAssigned[dep] {
					canAssign = false
					break
				}
				if asapLevel[dep] > maxDep {
					maxDep = asapLevel[dep]
				}
			}
			if canAssign {
				asapLevel[i] = maxDep + 1
				asapAssigned[i] = true
				changed = true
			}
		}
	}

	maxLevel := 0
	for i := range p.subgraphs {
		if asapAssigned[i] && asapLevel[i] > maxLevel {
			maxLevel = asapLevel[i]
		}
	}
	// Cycle-breaking: anything ASAP couldn't reach is part of a cycle;
	// collapse it to a single common level past the acyclic critical
	// path and drop its back-edges from further level assignment (they
	// simply never influence the ALAP pass below because we now treat
	// the node's level as fixed).
	cyclic := make([]bool, n)
	for i := range p.subgraphs {
		if !asapAssigned[i] {
			cyclic[i] = true
			asapLevel[i] = maxLevel + 1
			asapAssigned[i] = true
		}
	}
	for i := range p.subgraphs {
		if asapLevel[i] > maxLevel {
			maxLevel = asapLevel[i]
		}
	}

	// ALAP pass over the acyclic portion: sinks at maxLevel, everything
	// else at min(dependent level) - 1.
	alapAssigned := make([]bool, n)
	for i := range p.subgraphs {
		if cyclic[i] {
			p.subgraphs[i].Level = maxLevel
			alapAssigned[i] = true
		}
	}
	for i := range p.subgraphs {
		if !cyclic[i] && len(p.subgraphs[i].Dependents) == 0 {
			p.subgraphs[i].Level = maxLevel
			alapAssigned[i] = true
		}
	}

	changed = true
	for changed {
		changed = false
		for i := range p.subgraphs {
			if alapAssigned[i] {
				continue
			}
			canAssign := true
			minDep := int(^uint(0) >> 1) // max int
			for _, dep := range p.subgraphs[i].Dependents {
				if !alapAssigned[dep] {
					canAssign = false
					break
				}
				if p.subgraphs[dep].Level < minDep {
					minDep = p.subgraphs[dep].Level
				}
			}
			if canAssign {
				p.subgraphs[i].Level = minDep - 1
				alapAssigned[i] = true
				changed = true
			}
		}
	}
	for i := range p.subgraphs {
		if !alapAssigned[i] {
			p.subgraphs[i].Level = 0
			alapAssigned[i] = true
		}
	}
}

// balance sweeps levels from maxLevel down to 1, pulling subgraphs
// with positive slack to earlier levels whenever a level holds more
// than numWorkers subgraphs. Level 0 is a fixed point.
func (p *partitioner) balance(numWorkers int) {
	n := len(p.subgraphs)
	if n == 0 {
		return
	}
	maxLevel := 0
	for _, sg := range p.subgraphs {
		if sg.Level > maxLevel {
			maxLevel = sg.Level
		}
	}

	stabilityLimit := n*2 + maxLevel + 10
	iterations := 0
	for level := maxLevel; level >= 1 && iterations < stabilityLimit; level, iterations = level-1, iterations+1 {
		var atLevel []int
		for i, sg := range p.subgraphs {
			if sg.Level == level {
				atLevel = append(atLevel, i)
			}
		}
		if len(atLevel) <= numWorkers {
			continue
		}

		type slackEntry struct {
			idx, slack int
		}
		entries := make([]slackEntry, 0, len(atLevel))
		for _, idx := range atLevel {
			sg := p.subgraphs[idx]
			slack := 0
			if len(sg.DependsOn) == 0 {
				slack = sg.Level
			} else {
				maxDepLevel := -1
				for _, dep := range sg.DependsOn {
					if p.subgraphs[dep].Level > maxDepLevel {
						maxDepLevel = p.subgraphs[dep].Level
					}
				}
				slack = sg.Level - maxDepLevel - 1
			}
			entries = append(entries, slackEntry{idx, slack})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].slack > entries[j].slack })

		excess := len(entries) - numWorkers
		for i := 0; i < excess; i++ {
			if entries[i].slack > 0 {
				p.subgraphs[entries[i].idx].Level = level - 1
			}
		}
	}
}
