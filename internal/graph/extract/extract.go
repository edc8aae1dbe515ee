// Package extract adapts a processor/connection graph (the public
// pkg/graph representation) into the node/edge shape the partitioner
// operates on, and maps partitioner results back.
package extract

import (
	"sort"

	"github.com/obsrt/rtcore/internal/graph/partition"
)

// Connection is one directed edge in the caller's graph, keyed by the
// caller's own node identifiers.
type Connection struct {
	Source      uint64
	Destination uint64
}

// Extract builds partitioner input from a flat node ID list and a
// connection list. ioNodes marks node IDs that represent I/O endpoints
// (device inputs/outputs) and must never be merged into a processing
// subgraph.
func Extract(nodeIDs []uint64, connections []Connection, ioNodes map[uint64]bool) map[partition.NodeID]partition.Node {
	nodes := make(map[partition.NodeID]partition.Node, len(nodeIDs))
	for _, id := range nodeIDs {
		nodes[partition.NodeID(id)] = partition.Node{ID: partition.NodeID(id)}
	}
	for _, c := range connections {
		src, dst := partition.NodeID(c.Source), partition.NodeID(c.Destination)
		if srcNode, ok := nodes[src]; ok {
			srcNode.OutputsTo = append(srcNode.OutputsTo, dst)
			nodes[src] = srcNode
		}
		if dstNode, ok := nodes[dst]; ok {
			dstNode.InputsFrom = append(dstNode.InputsFrom, src)
			nodes[dst] = dstNode
		}
	}
	return nodes
}

func excludedSet(ioNodes map[uint64]bool) map[partition.NodeID]bool {
	out := make(map[partition.NodeID]bool, len(ioNodes))
	for id, v := range ioNodes {
		if v {
			out[partition.NodeID(id)] = true
		}
	}
	return out
}

// Plan is the result of extracting and partitioning a graph, ready to
// drive a scheduler: one entry per subgraph, topologically leveled and
// worker-balanced.
type Plan struct {
	Subgraphs []PlanSubgraph
}

// PlanSubgraph is one linear chain of nodes (in execution order) plus
// the indices (into Plan.Subgraphs) of the subgraphs it depends on.
type PlanSubgraph struct {
	NodeIDs   []uint64
	DependsOn []int
	Level     int
}

// BuildPlan runs the partitioner over a caller graph and numWorkers,
// returning a scheduling plan addressed purely in terms of the
// caller's own node IDs.
func BuildPlan(nodeIDs []uint64, connections []Connection, ioNodes map[uint64]bool, numWorkers int) Plan {
	nodes := Extract(nodeIDs, connections, ioNodes)
	excluded := excludedSet(ioNodes)
	subs := partition.Partition(nodes, excluded, numWorkers)

	plan := Plan{Subgraphs: make([]PlanSubgraph, len(subs))}
	for i, sg := range subs {
		ids := make([]uint64, len(sg.NodeIDs))
		for j, id := range sg.NodeIDs {
			ids[j] = uint64(id)
		}
		deps := append([]int(nil), sg.DependsOn...)
		sort.Ints(deps)
		plan.Subgraphs[i] = PlanSubgraph{NodeIDs: ids, DependsOn: deps, Level: sg.Level}
	}
	return plan
}
