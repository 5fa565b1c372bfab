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

// Errors reported while assembling render passes.
var (
	ErrDuplicateSubpass         = errors.New("duplicate subpass")
	ErrUnknownResourceReference = errors.New("unknown resource reference")
	ErrUnknownSubpass           = errors.New("unknown subpass")
)

// Attachment is a resource touched by the subpasses of a pass.
type Attachment struct {
	ID    resource.ID
	Usage Usage

	// FirstWrite is set when the first subpass to touch the resource,
	// in execution order, writes it.
	FirstWrite bool
	Read       bool
	Written    bool
}

// RenderPass is a group of subpasses sharing attachments. Its UID is the
// id its native render pass is registered under.
type RenderPass struct {
	UID  resource.ID
	Name string

	subpasses   map[SubpassID]*Subpass
	order       []SubpassID
	graph       *graph.AdjacencyGraph[SubpassID]
	attachments []Attachment
	sorted      []SubpassID

	// inferred is cleared whenever a subpass is added, until the edges
	// of graph are inferred again.
	inferred bool
}

// NewRenderPass creates an empty render pass.
func NewRenderPass(uid resource.ID, name string) *RenderPass {
	return &RenderPass{
		UID:       uid,
		Name:      name,
		subpasses: make(map[SubpassID]*Subpass),
		graph:     graph.New[SubpassID](),
	}
}

// AddSubpass registers a copy of s as a node of the pass graph. Later
// changes to s are not seen by the pass.
func (p *RenderPass) AddSubpass(s *Subpass) error {
	if s == nil || s.UID == "" {
		return errors.Errorf("render pass %q: subpass without uid", p.UID)
	}
	if _, ok := p.subpasses[s.UID]; ok {
		return errors.Wrapf(ErrDuplicateSubpass, "render pass %q: subpass %q", p.UID, s.UID)
	}
	p.subpasses[s.UID] = s.clone()
	p.order = append(p.order, s.UID)
	p.inferred = false
	p.sorted = nil
	p.attachments = nil
	return nil
}

// Subpass returns the subpass with uid.
func (p *RenderPass) Subpass(uid SubpassID) (*Subpass, bool) {
	s, ok := p.subpasses[uid]
	return s, ok
}

// Subpasses returns the subpasses in the order they were added.
func (p *RenderPass) Subpasses() []*Subpass {
	out := make([]*Subpass, 0, len(p.order))
	for _, uid := range p.order {
		out = append(out, p.subpasses[uid])
	}
	return out
}

// CollectSubpasses validates every reference against the builder's
// resource table and infers the subpass graph: an edge X→Y exists for
// every X writing a resource Y reads, including X reading its own write,
// which is a cycle. The graph is sorted immediately, so a cycle fails here.
func (p *RenderPass) CollectSubpasses(b *Builder) error {
	for _, uid := range p.order {
		s := p.subpasses[uid]
		for _, ref := range append(append([]ResourceRef(nil), s.Reads...), s.Writes...) {
			if !b.table.Has(ref.ID) {
				return errors.Wrapf(ErrUnknownResourceReference, "render pass %q: subpass %q references %q", p.UID, uid, ref.ID)
			}
		}
	}

	p.inferred = false
	return p.sort()
}

// inferEdges rebuilds the subpass graph from the references of every
// subpass, unless it is current.
func (p *RenderPass) inferEdges() {
	if p.inferred {
		return
	}
	g := graph.New[SubpassID]()
	for _, uid := range p.order {
		g.AddNode(uid)
	}
	for _, writer := range p.order {
		for _, reader := range p.order {
			if dependsOn(p.subpasses[reader], p.subpasses[writer]) {
				g.AddEdge(writer, reader)
			}
		}
	}
	p.graph = g
	p.inferred = true
	p.sorted = nil
	p.attachments = nil
}

// sort orders the inferred graph and collects the attachments.
func (p *RenderPass) sort() error {
	p.inferEdges()
	sorted, err := p.graph.TopologicalOrder()
	if err != nil {
		return errors.Wrapf(err, "render pass %q", p.UID)
	}
	p.sorted = sorted
	p.attachments = collectAttachments(p.sortedSubpasses())
	return nil
}

// dependsOn reports whether reader reads anything writer writes.
func dependsOn(reader, writer *Subpass) bool {
	for _, w := range writer.Writes {
		if reader.ReadsResource(w.ID) {
			return true
		}
	}
	return false
}

func collectAttachments(subpasses []*Subpass) []Attachment {
	var out []Attachment
	index := make(map[resource.ID]int)
	touch := func(ref ResourceRef, write bool) {
		idx, ok := index[ref.ID]
		if !ok {
			index[ref.ID] = len(out)
			out = append(out, Attachment{ID: ref.ID, FirstWrite: write})
			idx = len(out) - 1
		}
		a := &out[idx]
		a.Usage |= ref.Usage
		if write {
			a.Written = true
		} else {
			a.Read = true
		}
	}
	for _, s := range subpasses {
		for _, r := range s.Reads {
			touch(r, false)
		}
		for _, w := range s.Writes {
			touch(w, true)
		}
	}
	return out
}

func (p *RenderPass) sortedSubpasses() []*Subpass {
	out := make([]*Subpass, 0, len(p.sorted))
	for _, uid := range p.sorted {
		out = append(out, p.subpasses[uid])
	}
	return out
}

// TopologicallySortedSubpasses returns the subpasses in execution order.
// Edges are inferred first if subpasses were added since the pass was
// last collected, so the order never ignores a dependency.
func (p *RenderPass) TopologicallySortedSubpasses() ([]*Subpass, error) {
	if !p.inferred || p.sorted == nil {
		if err := p.sort(); err != nil {
			return nil, err
		}
	}
	return p.sortedSubpasses(), nil
}

// SubpassIndex returns the execution index of a subpass.
func (p *RenderPass) SubpassIndex(uid SubpassID) (uint32, error) {
	sorted, err := p.TopologicallySortedSubpasses()
	if err != nil {
		return 0, err
	}
	for i, s := range sorted {
		if s.UID == uid {
			return uint32(i), nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownSubpass, "render pass %q: subpass %q", p.UID, uid)
}

// Attachments returns every resource touched by the subpasses, in the
// order they are first touched during execution. It is empty while the
// subpasses form a cycle.
func (p *RenderPass) Attachments() []Attachment {
	if _, err := p.TopologicallySortedSubpasses(); err != nil {
		return nil
	}
	return append([]Attachment(nil), p.attachments...)
}

// Graph returns the subpass graph.
func (p *RenderPass) Graph() *graph.AdjacencyGraph[SubpassID] {
	p.inferEdges()
	return p.graph
}

// WritesResource reports whether any subpass writes id.
func (p *RenderPass) WritesResource(id resource.ID) bool {
	for _, s := range p.subpasses {
		if s.WritesResource(id) {
			return true
		}
	}
	return false
}

// ReadsResource reports whether any subpass reads id.
func (p *RenderPass) ReadsResource(id resource.ID) bool {
	for _, s := range p.subpasses {
		if s.ReadsResource(id) {
			return true
		}
	}
	return false
}

// WriteDOT writes the subpass graph in Graphviz DOT format.
func (p *RenderPass) WriteDOT(w io.Writer) error {
	name := p.Name
	if name == "" {
		name = string(p.UID)
	}
	return p.Graph().WriteDOT(w, name)
}
