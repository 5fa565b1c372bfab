// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package graph implements a small directed graph over comparable ids.
// Nodes live in an arena addressed by their insertion index, edges are
// kept in a separate list, which keeps ordering deterministic.
package graph

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrCycleDetected is matched by every CycleError.
var ErrCycleDetected = errors.New("cycle detected")

// CycleError lists the nodes that could not be ordered, in insertion order.
type CycleError[ID comparable] struct {
	Nodes []ID
}

func (e *CycleError[ID]) Error() string {
	names := make([]string, 0, len(e.Nodes))
	for _, n := range e.Nodes {
		names = append(names, fmt.Sprint(n))
	}
	return fmt.Sprintf("%s among [%s]", ErrCycleDetected, strings.Join(names, ", "))
}

// Is makes errors.Is(err, ErrCycleDetected) hold.
func (e *CycleError[ID]) Is(target error) bool {
	return target == ErrCycleDetected
}

// Edge is a directed edge between two arena indices.
type Edge struct {
	From, To int
}

// AdjacencyGraph is a directed graph. The zero value is not usable,
// create one with New.
type AdjacencyGraph[ID comparable] struct {
	nodes []ID
	index map[ID]int
	edges []Edge
	seen  map[Edge]struct{}
}

// New creates an empty graph.
func New[ID comparable]() *AdjacencyGraph[ID] {
	return &AdjacencyGraph[ID]{
		index: make(map[ID]int),
		seen:  make(map[Edge]struct{}),
	}
}

// AddNode adds id to the graph and returns its arena index.
// Adding an existing node returns the existing index.
func (g *AdjacencyGraph[ID]) AddNode(id ID) int {
	if idx, ok := g.index[id]; ok {
		return idx
	}
	g.nodes = append(g.nodes, id)
	g.index[id] = len(g.nodes) - 1
	return len(g.nodes) - 1
}

// AddEdge adds a from→to edge, adding missing nodes. Duplicate edges are ignored.
func (g *AdjacencyGraph[ID]) AddEdge(from, to ID) {
	e := Edge{From: g.AddNode(from), To: g.AddNode(to)}
	if _, ok := g.seen[e]; ok {
		return
	}
	g.seen[e] = struct{}{}
	g.edges = append(g.edges, e)
}

// HasNode reports whether id is in the graph.
func (g *AdjacencyGraph[ID]) HasNode(id ID) bool {
	_, ok := g.index[id]
	return ok
}

// HasEdge reports whether a from→to edge exists.
func (g *AdjacencyGraph[ID]) HasEdge(from, to ID) bool {
	f, ok := g.index[from]
	if !ok {
		return false
	}
	t, ok := g.index[to]
	if !ok {
		return false
	}
	_, ok = g.seen[Edge{From: f, To: t}]
	return ok
}

// Len returns the number of nodes.
func (g *AdjacencyGraph[ID]) Len() int {
	return len(g.nodes)
}

// Nodes returns the nodes in insertion order.
func (g *AdjacencyGraph[ID]) Nodes() []ID {
	return append([]ID(nil), g.nodes...)
}

// Edges returns the edges as arena indices in insertion order.
func (g *AdjacencyGraph[ID]) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// Node returns the id stored at an arena index.
func (g *AdjacencyGraph[ID]) Node(idx int) ID {
	return g.nodes[idx]
}

// Index returns the arena index of id.
func (g *AdjacencyGraph[ID]) Index(id ID) (int, bool) {
	idx, ok := g.index[id]
	return idx, ok
}

// Successors returns the direct successors of id in edge insertion order.
func (g *AdjacencyGraph[ID]) Successors(id ID) []ID {
	idx, ok := g.index[id]
	if !ok {
		return nil
	}
	var out []ID
	for _, e := range g.edges {
		if e.From == idx {
			out = append(out, g.nodes[e.To])
		}
	}
	return out
}

// Predecessors returns the direct predecessors of id in edge insertion order.
func (g *AdjacencyGraph[ID]) Predecessors(id ID) []ID {
	idx, ok := g.index[id]
	if !ok {
		return nil
	}
	var out []ID
	for _, e := range g.edges {
		if e.To == idx {
			out = append(out, g.nodes[e.From])
		}
	}
	return out
}

// TopologicalOrder orders the nodes so every edge points forward. Among
// nodes that are ready at the same time the one inserted first wins, so
// identical graphs always produce identical orders. If a cycle prevents
// ordering every node, a *CycleError with the remaining nodes is returned.
func (g *AdjacencyGraph[ID]) TopologicalOrder() ([]ID, error) {
	n := len(g.nodes)
	indegree := make([]int, n)
	adjacent := make([][]int, n)
	for _, e := range g.edges {
		indegree[e.To]++
		adjacent[e.From] = append(adjacent[e.From], e.To)
	}

	ready := newIndexHeap(n)
	for idx := 0; idx < n; idx++ {
		if indegree[idx] == 0 {
			ready.push(idx)
		}
	}

	order := make([]ID, 0, n)
	for ready.len() > 0 {
		idx := ready.pop()
		order = append(order, g.nodes[idx])
		for _, to := range adjacent[idx] {
			indegree[to]--
			if indegree[to] == 0 {
				ready.push(to)
			}
		}
	}

	if len(order) < n {
		cycle := &CycleError[ID]{}
		for idx := 0; idx < n; idx++ {
			if indegree[idx] > 0 {
				cycle.Nodes = append(cycle.Nodes, g.nodes[idx])
			}
		}
		return nil, cycle
	}
	return order, nil
}
