package engine

import (
	"sort"

	"github.com/ipcviz/backend/internal/shared/id"
	"github.com/ipcviz/backend/internal/shared/types"
)

// The analyzer reads a full store snapshot and never mutates it. Nodes are
// all process ids; edges are the from->to pairs of every connection in the
// active state (an active connection models "from is engaged with to").

type waitEdge struct {
	to     string
	connID string
}

const (
	colorWhite = 0 // unvisited
	colorGray  = 1 // on the recursion stack
	colorBlack = 2 // fully explored
)

// DetectCycles finds every cycle in the wait-for graph of the snapshot.
// Each cycle lists its processes with the first repeated at the end and the
// connection ids along the edges. Deterministic for a given snapshot: nodes
// are visited in sorted order and adjacency lists are sorted.
func DetectCycles(snap types.Snapshot) []types.DeadlockCycle {
	adj, order := buildWaitGraph(snap)

	color := make(map[string]int, len(order))
	var cycles []types.DeadlockCycle

	type frame struct {
		node  string
		edges []waitEdge
		idx   int
	}

	for _, start := range order {
		if color[start] != colorWhite {
			continue
		}

		stack := []frame{{node: start, edges: adj[start]}}
		color[start] = colorGray
		path := []string{start}
		pathEdges := []string{}

		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			if f.idx < len(f.edges) {
				e := f.edges[f.idx]
				f.idx++
				switch color[e.to] {
				case colorWhite:
					color[e.to] = colorGray
					stack = append(stack, frame{node: e.to, edges: adj[e.to]})
					path = append(path, e.to)
					pathEdges = append(pathEdges, e.connID)
				case colorGray:
					// Back edge: the cycle is the path suffix from the
					// first occurrence of e.to, closed by this edge.
					k := indexOf(path, e.to)
					procs := make([]string, 0, len(path)-k+1)
					procs = append(procs, path[k:]...)
					procs = append(procs, e.to)
					conns := make([]string, 0, len(pathEdges)-k+1)
					conns = append(conns, pathEdges[k:]...)
					conns = append(conns, e.connID)
					cycles = append(cycles, types.DeadlockCycle{
						ID:            id.NewCycleID().String(),
						ProcessIDs:    procs,
						ConnectionIDs: conns,
						DetectedAt:    snap.TakenAt,
					})
				}
			} else {
				color[f.node] = colorBlack
				stack = stack[:len(stack)-1]
				path = path[:len(stack)]
				if len(pathEdges) > len(stack)-1 && len(stack) > 0 {
					pathEdges = pathEdges[:len(stack)-1]
				} else if len(stack) == 0 {
					pathEdges = pathEdges[:0]
				}
			}
		}
	}

	return cycles
}

// HasCycle reports whether the wait-for graph contains any cycle. Cheaper
// than DetectCycles when only the boolean matters.
func HasCycle(snap types.Snapshot) bool {
	return len(DetectCycles(snap)) > 0
}

// Saturated implements the secondary population-saturation alarm: true when
// every process in the population is touched by some active connection and
// more than one process exists. This is a conservative "everyone is busy"
// signal that can false-positive on acyclic states; cycle detection is the
// authoritative deadlock test.
func Saturated(snap types.Snapshot) bool {
	if len(snap.Processes) <= 1 {
		return false
	}
	touched := make(map[string]bool)
	for _, c := range snap.Connections {
		if c.State != types.ConnectionActive {
			continue
		}
		touched[c.From] = true
		touched[c.To] = true
	}
	if len(touched) == 0 {
		return false
	}
	for _, p := range snap.Processes {
		if !touched[p.ID] {
			return false
		}
	}
	return true
}

// SuggestMitigations returns the static, type-dependent strategy list for a
// cycle, derived from the types of its implicated connections.
func SuggestMitigations(snap types.Snapshot, cycle types.DeadlockCycle) []string {
	connTypes := make(map[string]types.ConnectionType, len(snap.Connections))
	for _, c := range snap.Connections {
		connTypes[c.ID] = c.Type
	}

	seen := make(map[types.ConnectionType]bool)
	var suggestions []string
	add := func(ss ...string) { suggestions = append(suggestions, ss...) }

	for _, cid := range cycle.ConnectionIDs {
		t := connTypes[cid]
		if seen[t] {
			continue
		}
		seen[t] = true
		switch t {
		case types.TypeQueue:
			add(
				"Increase queue capacity to reduce producer blocking",
				"Add timeouts to send and consume operations",
			)
		case types.TypePipe:
			add("Use asynchronous pipe operation so neither endpoint waits")
		case types.TypeMemory:
			add(
				"Acquire shared-memory regions in a fixed global order",
				"Prefer read access and shorten writer hold times",
			)
		}
	}
	return suggestions
}

func buildWaitGraph(snap types.Snapshot) (map[string][]waitEdge, []string) {
	adj := make(map[string][]waitEdge, len(snap.Processes))
	order := make([]string, 0, len(snap.Processes))
	for _, p := range snap.Processes {
		adj[p.ID] = nil
		order = append(order, p.ID)
	}
	sort.Strings(order)

	for _, c := range snap.Connections {
		if c.State != types.ConnectionActive {
			continue
		}
		if _, ok := adj[c.From]; !ok {
			continue
		}
		if _, ok := adj[c.To]; !ok {
			continue
		}
		adj[c.From] = append(adj[c.From], waitEdge{to: c.To, connID: c.ID})
	}
	for pid := range adj {
		edges := adj[pid]
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].to != edges[j].to {
				return edges[i].to < edges[j].to
			}
			return edges[i].connID < edges[j].connID
		})
	}
	return adj, order
}

func indexOf(path []string, node string) int {
	for i, p := range path {
		if p == node {
			return i
		}
	}
	return 0
}
