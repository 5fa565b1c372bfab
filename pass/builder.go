// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pass

import (
	"io"

	"github.com/pkg/errors"

	"github.com/devblok/framegraph/graph"
	"github.com/devblok/framegraph/resource"
)

// ErrDuplicatePass is returned when two passes share a uid.
var ErrDuplicatePass = errors.New("duplicate render pass")

// ResourceTable answers whether a resource is declared.
// *resource.Manager satisfies it.
type ResourceTable interface {
	Has(id resource.ID) bool
}

// Builder collects render passes and builds the frame graph from them.
type Builder struct {
	table  ResourceTable
	passes []*RenderPass
	index  map[resource.ID]int
}

// NewBuilder creates a Builder validating references against table.
func NewBuilder(table ResourceTable) *Builder {
	return &Builder{
		table: table,
		index: make(map[resource.ID]int),
	}
}

// AddPass adds a render pass.
func (b *Builder) AddPass(p *RenderPass) error {
	if _, ok := b.index[p.UID]; ok {
		return errors.Wrapf(ErrDuplicatePass, "render pass %q", p.UID)
	}
	b.index[p.UID] = len(b.passes)
	b.passes = append(b.passes, p)
	return nil
}

// Build collects the subpasses of every pass and orders the passes by
// the same rule subpasses are ordered by.
func (b *Builder) Build() (*FrameGraph, error) {
	g := graph.New[resource.ID]()
	for _, p := range b.passes {
		if err := p.CollectSubpasses(b); err != nil {
			return nil, err
		}
		g.AddNode(p.UID)
	}
	for _, writer := range b.passes {
		for _, reader := range b.passes {
			if writer == reader {
				continue
			}
			for _, a := range writer.Attachments() {
				if a.Written && reader.ReadsResource(a.ID) {
					g.AddEdge(writer.UID, reader.UID)
					break
				}
			}
		}
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, errors.Wrap(err, "frame graph")
	}
	passes := make([]*RenderPass, 0, len(order))
	for _, uid := range order {
		passes = append(passes, b.passes[b.index[uid]])
	}
	return &FrameGraph{passes: passes, graph: g}, nil
}

// FrameGraph is an ordered set of render passes.
type FrameGraph struct {
	passes []*RenderPass
	graph  *graph.AdjacencyGraph[resource.ID]
}

// Passes returns the passes in execution order.
func (f *FrameGraph) Passes() []*RenderPass {
	return append([]*RenderPass(nil), f.passes...)
}

// Pass returns the pass with uid.
func (f *FrameGraph) Pass(uid resource.ID) (*RenderPass, bool) {
	for _, p := range f.passes {
		if p.UID == uid {
			return p, true
		}
	}
	return nil, false
}

// WriteDOT writes the pass graph in Graphviz DOT format.
func (f *FrameGraph) WriteDOT(w io.Writer) error {
	return f.graph.WriteDOT(w, "frame")
}
