// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"github.com/pkg/errors"

	"github.com/devblok/framegraph/assets"
	"github.com/devblok/framegraph/gfx"
	"github.com/devblok/framegraph/resource"
)

// Errors reported while recording and submitting frames.
var (
	ErrInvalidTransition  = errors.New("invalid frame state transition")
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	ErrFrameTimeout       = errors.New("frame timed out")
	ErrPipelineMismatch   = errors.New("pipeline does not belong to the active subpass")
)

// Phase is the stage of frame recording the State is in.
type Phase int

// Frame phases, in the order a frame goes through them. A render pass
// may be bound again after it was unbound.
const (
	PhaseIdle Phase = iota
	PhaseFrameBegun
	PhaseRecording
	PhaseSubpassActive
	PhasePassUnbound
	PhaseRecorded
	PhaseFrameEnded
	PhasePresented
)

var phaseNames = [...]string{
	PhaseIdle:          "Idle",
	PhaseFrameBegun:    "FrameBegun",
	PhaseRecording:     "Recording",
	PhaseSubpassActive: "SubpassActive",
	PhasePassUnbound:   "PassUnbound",
	PhaseRecorded:      "Recorded",
	PhaseFrameEnded:    "FrameEnded",
	PhasePresented:     "Presented",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "Phase(?)"
	}
	return phaseNames[p]
}

// State is what the opcodes of a frame have bound so far.
type State struct {
	Phase      Phase
	Frame      *FrameContext
	ImageIndex uint32

	Pass        resource.ID
	RenderPass  *resource.RenderPassState
	FrameBuffer *resource.FrameBufferState
	Subpass     uint32
	Pipeline    *resource.PipelineState
	Material    *assets.Material
	Mesh        *assets.Mesh

	// uploads are committed once the transfer work is submitted.
	uploads []upload

	// fenceReset is set between resetting the frame fence and the
	// submission that signals it again.
	fenceReset bool

	// transferSubmitted is set once the transfer batch, which waits on
	// the image available semaphore, is queued.
	transferSubmitted bool
}

type upload struct {
	texture *assets.Texture
	image   gfx.Image
}

// NewState returns an idle State.
func NewState() *State {
	return &State{}
}

// expect fails with ErrInvalidTransition unless the state is in one of phases.
func (s *State) expect(op string, phases ...Phase) error {
	for _, p := range phases {
		if s.Phase == p {
			return nil
		}
	}
	return errors.Wrapf(ErrInvalidTransition, "%s in phase %s", op, s.Phase)
}

func (s *State) unbindPass() {
	s.Pass = ""
	s.RenderPass = nil
	s.FrameBuffer = nil
	s.Subpass = 0
	s.unbindSubpass()
}

func (s *State) unbindSubpass() {
	s.Pipeline = nil
	s.Material = nil
	s.Mesh = nil
}

func (s *State) reset() {
	*s = State{}
}
