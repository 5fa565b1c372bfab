// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package graph

import (
	"fmt"
	"io"

	dgraph "github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
	"github.com/pkg/errors"
)

// WriteDOT writes the graph in Graphviz DOT format. Nodes are keyed by
// arena index and labelled with their id.
func (g *AdjacencyGraph[ID]) WriteDOT(w io.Writer, label string) error {
	out := dgraph.New(dgraph.IntHash, dgraph.Directed())
	for idx, id := range g.nodes {
		if err := out.AddVertex(idx, dgraph.VertexAttribute("label", fmt.Sprint(id))); err != nil {
			return errors.Wrapf(err, "add node %v", id)
		}
	}
	for _, e := range g.edges {
		if err := out.AddEdge(e.From, e.To); err != nil {
			return errors.Wrapf(err, "add edge %v -> %v", g.nodes[e.From], g.nodes[e.To])
		}
	}
	return draw.DOT(out, w, draw.GraphAttribute("label", label))
}
