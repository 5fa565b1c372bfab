// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package resource

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Adapter creates and destroys the native objects of one resource kind.
// Initialize may leave handles partially filled when it fails; the
// manager then calls Deinitialize with them, which has to destroy exactly
// what was created and reset every handle to null.
type Adapter[D Description, H any] interface {

	// Initialize creates native objects for desc into handles.
	// Dependencies are already initialized and can be obtained from m.
	Initialize(desc D, handles *H, m *Manager, ctx Context) error

	// Deinitialize destroys what Initialize created.
	Deinitialize(desc D, handles *H, m *Manager, ctx Context) error
}

// Binding maps a resource kind to its description, handles and adapter.
type Binding[D Description, H any] struct {
	Kind    Kind
	Adapter Adapter[D, H]
}

// Bindings of every resource kind.
var (
	Buffers         = Binding[BufferDescription, BufferHandles]{KindBuffer, BufferAdapter{}}
	BufferViews     = Binding[BufferViewDescription, BufferViewHandles]{KindBufferView, BufferViewAdapter{}}
	Images          = Binding[ImageDescription, ImageHandles]{KindImage, ImageAdapter{}}
	ImageViews      = Binding[ImageViewDescription, ImageViewHandles]{KindImageView, ImageViewAdapter{}}
	RenderPasses    = Binding[RenderPassDescription, RenderPassHandles]{KindRenderPass, RenderPassAdapter{}}
	FrameBuffers    = Binding[FrameBufferDescription, FrameBufferHandles]{KindFrameBuffer, FrameBufferAdapter{}}
	Pipelines       = Binding[PipelineDescription, PipelineHandles]{KindPipeline, PipelineAdapter{}}
	PipelineLayouts = Binding[PipelineLayoutDescription, PipelineLayoutHandles]{KindPipelineLayout, PipelineLayoutAdapter{}}
	ShaderModules   = Binding[ShaderModuleDescription, ShaderModuleHandles]{KindShaderModule, ShaderModuleAdapter{}}
	DescriptorPools = Binding[DescriptorPoolDescription, DescriptorPoolHandles]{KindDescriptorPool, DescriptorPoolAdapter{}}
)

// States of every resource kind.
type (
	BufferState         = State[BufferDescription, BufferHandles]
	BufferViewState     = State[BufferViewDescription, BufferViewHandles]
	ImageState          = State[ImageDescription, ImageHandles]
	ImageViewState      = State[ImageViewDescription, ImageViewHandles]
	RenderPassState     = State[RenderPassDescription, RenderPassHandles]
	FrameBufferState    = State[FrameBufferDescription, FrameBufferHandles]
	PipelineState       = State[PipelineDescription, PipelineHandles]
	PipelineLayoutState = State[PipelineLayoutDescription, PipelineLayoutHandles]
	ShaderModuleState   = State[ShaderModuleDescription, ShaderModuleHandles]
	DescriptorPoolState = State[DescriptorPoolDescription, DescriptorPoolHandles]
)

// Get returns the state of id, creating it and its dependencies first if
// needed. Concurrent calls for the same id create it once; every caller
// receives the same *State.
func Get[D Description, H any](m *Manager, b Binding[D, H], id ID, ctx Context) (*State[D, H], error) {
	return get(m, b, id, ctx, true)
}

func lookup[D Description, H any](m *Manager, b Binding[D, H], id ID) (*State[D, H], bool, error) {
	m.mutex.RLock()
	e, ok := m.entries[id]
	m.mutex.RUnlock()
	if !ok {
		return nil, false, nil
	}
	state, ok := e.state.(*State[D, H])
	if !ok {
		return nil, true, errors.Wrapf(ErrKindMismatch, "resource %q is a %s, requested %s", id, e.kind, b.Kind)
	}
	return state, true, nil
}

func get[D Description, H any](m *Manager, b Binding[D, H], id ID, ctx Context, walk bool) (*State[D, H], error) {
	if state, ok, err := lookup(m, b, id); ok {
		return state, err
	}
	if _, err := m.description(id, b.Kind); err != nil {
		return nil, err
	}
	if walk {
		if err := m.checkClosure(id); err != nil {
			return nil, err
		}
	}

	v, err, _ := m.group.Do(string(id), func() (interface{}, error) {
		if state, ok, err := lookup(m, b, id); ok {
			return state, err
		}
		return create(m, b, id, ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*State[D, H]), nil
}

func create[D Description, H any](m *Manager, b Binding[D, H], id ID, ctx Context) (*State[D, H], error) {
	generic, err := m.description(id, b.Kind)
	if err != nil {
		return nil, err
	}
	desc := generic.(D)

	deps := desc.Dependencies()
	for _, dep := range deps {
		if err := m.resolve(dep, ctx); err != nil {
			return nil, &DependencyError{ID: id, Dependency: dep.ID, Err: err}
		}
	}

	state := &State[D, H]{Description: desc}
	if err := b.Adapter.Initialize(desc, &state.Handles, m, ctx); err != nil {
		if rerr := b.Adapter.Deinitialize(desc, &state.Handles, m, ctx); rerr != nil {
			m.log.WithError(rerr).WithField("id", id).Warn("rollback of failed resource incomplete")
		}
		var zero H
		state.Handles = zero
		m.log.WithError(err).WithFields(log.Fields{"id": id, "kind": b.Kind}).Warn("resource creation rolled back")
		if isResourceError(err) {
			return nil, errors.Wrapf(err, "%s %q", b.Kind, id)
		}
		return nil, &CreationError{ID: id, Kind: b.Kind, Err: err}
	}
	state.initialized = true

	var swapchain bool
	if sd, ok := generic.(swapchainDependent); ok {
		swapchain = sd.SwapchainDependent()
	}
	m.store(id, &entry{
		kind:      b.Kind,
		state:     state,
		deps:      deps,
		swapchain: swapchain,
		release: func(ctx Context) error {
			err := b.Adapter.Deinitialize(state.Description, &state.Handles, m, ctx)
			var zero H
			state.Handles = zero
			state.initialized = false
			return err
		},
	})
	m.log.WithFields(log.Fields{"id": id, "kind": b.Kind}).Debug("resource created")
	return state, nil
}

// isResourceError reports whether err already carries a resource error.
// Everything else coming out of an adapter is a driver failure.
func isResourceError(err error) bool {
	for _, target := range []error{
		ErrUnknownResource,
		ErrDependencyNotFound,
		ErrKindMismatch,
		ErrBackendCreationFailure,
		ErrLifecycleViolation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Buffer returns the state of buffer id.
func (m *Manager) Buffer(id ID, ctx Context) (*BufferState, error) {
	return Get(m, Buffers, id, ctx)
}

// BufferView returns the state of buffer view id.
func (m *Manager) BufferView(id ID, ctx Context) (*BufferViewState, error) {
	return Get(m, BufferViews, id, ctx)
}

// Image returns the state of image id.
func (m *Manager) Image(id ID, ctx Context) (*ImageState, error) {
	return Get(m, Images, id, ctx)
}

// ImageView returns the state of image view id.
func (m *Manager) ImageView(id ID, ctx Context) (*ImageViewState, error) {
	return Get(m, ImageViews, id, ctx)
}

// RenderPass returns the state of render pass id.
func (m *Manager) RenderPass(id ID, ctx Context) (*RenderPassState, error) {
	return Get(m, RenderPasses, id, ctx)
}

// FrameBuffer returns the state of framebuffer id.
func (m *Manager) FrameBuffer(id ID, ctx Context) (*FrameBufferState, error) {
	return Get(m, FrameBuffers, id, ctx)
}

// Pipeline returns the state of pipeline id.
func (m *Manager) Pipeline(id ID, ctx Context) (*PipelineState, error) {
	return Get(m, Pipelines, id, ctx)
}

// PipelineLayout returns the state of pipeline layout id.
func (m *Manager) PipelineLayout(id ID, ctx Context) (*PipelineLayoutState, error) {
	return Get(m, PipelineLayouts, id, ctx)
}

// ShaderModule returns the state of shader module id.
func (m *Manager) ShaderModule(id ID, ctx Context) (*ShaderModuleState, error) {
	return Get(m, ShaderModules, id, ctx)
}

// DescriptorPool returns the state of descriptor pool id.
func (m *Manager) DescriptorPool(id ID, ctx Context) (*DescriptorPoolState, error) {
	return Get(m, DescriptorPools, id, ctx)
}
