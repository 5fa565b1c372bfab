// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/framegraph/assets"
	"github.com/devblok/framegraph/pass"
	"github.com/devblok/framegraph/resource"
)

// Step is a named opcode.
type Step struct {
	Name string
	Op   Op
}

// Program is a sequence of opcodes.
type Program struct {
	steps []Step
}

// NewProgram creates a program from steps.
func NewProgram(steps ...Step) *Program {
	return &Program{steps: append([]Step(nil), steps...)}
}

// Then appends an opcode.
func (p *Program) Then(name string, op Op) *Program {
	p.steps = append(p.steps, Step{Name: name, Op: op})
	return p
}

// Append appends the steps of other.
func (p *Program) Append(other *Program) *Program {
	p.steps = append(p.steps, other.steps...)
	return p
}

// Steps returns the steps in execution order.
func (p *Program) Steps() []Step {
	return append([]Step(nil), p.steps...)
}

// Execute runs every step in order. The first failing step stops the
// program; the frame is then abandoned so the next one can begin.
func (p *Program) Execute(g *GlobalContext, m *resource.Manager, s *assets.Storage, st *State) error {
	for i, step := range p.steps {
		if err := step.Op(g, m, s, st); err != nil {
			g.log.WithFields(log.Fields{
				"step":  i,
				"op":    step.Name,
				"phase": st.Phase,
			}).WithError(err).Warn("frame aborted")
			g.abort(st)
			return errors.Wrap(err, step.Name)
		}
	}
	return nil
}

// RecordPass builds the program drawing one render pass: the pass is
// bound on the framebuffer fb selects, and the steps of each subpass run
// in execution order with NextSubpass between them. Subpasses without
// steps are still advanced through.
func RecordPass(rp *pass.RenderPass, fb FramebufferSelector, steps map[pass.SubpassID][]Step) (*Program, error) {
	if fb == nil {
		return nil, errors.Errorf("render pass %q has no framebuffer", rp.UID)
	}
	sorted, err := rp.TopologicallySortedSubpasses()
	if err != nil {
		return nil, err
	}
	for uid := range steps {
		if _, ok := rp.Subpass(uid); !ok {
			return nil, errors.Wrapf(pass.ErrUnknownSubpass, "render pass %q: subpass %q", rp.UID, uid)
		}
	}

	p := NewProgram().Then("BindRenderPass", BindRenderPass(rp.UID, fb))
	for i, s := range sorted {
		if i > 0 {
			p.Then("NextSubpass", NextSubpass())
		}
		p.steps = append(p.steps, steps[s.UID]...)
	}
	return p.Then("UnbindRenderPass", UnbindRenderPass()), nil
}

// FrameProgram wraps pass programs into a complete frame, from acquiring
// the image to presenting it.
func FrameProgram(passes ...*Program) *Program {
	p := NewProgram().
		Then("BeginGraphicsFrame", BeginGraphicsFrame()).
		Then("BeginFrameCommandBuffers", BeginFrameCommandBuffers())
	for _, pp := range passes {
		p.Append(pp)
	}
	return p.
		Then("EndFrameCommandBuffers", EndFrameCommandBuffers()).
		Then("EndGraphicsFrame", EndGraphicsFrame()).
		Then("Present", Present())
}

// RecordGraph records every pass of fg in execution order and wraps them
// into a frame program. Each pass needs a framebuffer selector.
func RecordGraph(fg *pass.FrameGraph, framebuffers map[resource.ID]FramebufferSelector, steps map[pass.SubpassID][]Step) (*Program, error) {
	var programs []*Program
	for _, rp := range fg.Passes() {
		fb, ok := framebuffers[rp.UID]
		if !ok || fb == nil {
			return nil, errors.Errorf("render pass %q has no framebuffer", rp.UID)
		}
		own := make(map[pass.SubpassID][]Step)
		for _, s := range rp.Subpasses() {
			if st, ok := steps[s.UID]; ok {
				own[s.UID] = st
			}
		}
		p, err := RecordPass(rp, fb, own)
		if err != nil {
			return nil, err
		}
		programs = append(programs, p)
	}
	return FrameProgram(programs...), nil
}

// DeclareRenderPasses registers the native render pass of every pass of
// fg on m under the pass uid.
func DeclareRenderPasses(fg *pass.FrameGraph, m *resource.Manager, g *GlobalContext) error {
	for _, rp := range fg.Passes() {
		desc, err := rp.Describe(m, g.Swapchain().Format)
		if err != nil {
			return err
		}
		if err := m.Register(rp.UID, desc); err != nil {
			return errors.Wrapf(err, "render pass %q", rp.UID)
		}
	}
	return nil
}
