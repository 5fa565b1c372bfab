// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package resource mediates the lifecycle of GPU resources. Resources are
// declared up front as descriptions keyed by ID and created lazily, at most
// once, the first time they are requested. Dependencies between resources
// are resolved recursively before the dependent resource is created.
package resource

import "github.com/devblok/framegraph/gfx"

// ID names a resource. IDs are unique within a Manager.
type ID string

// Kind is the logical kind of a resource.
type Kind int

// Resource kinds.
const (
	KindBuffer Kind = iota
	KindBufferView
	KindImage
	KindImageView
	KindRenderPass
	KindFrameBuffer
	KindPipeline
	KindPipelineLayout
	KindShaderModule
	KindDescriptorPool
)

func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindBufferView:
		return "buffer view"
	case KindImage:
		return "image"
	case KindImageView:
		return "image view"
	case KindRenderPass:
		return "render pass"
	case KindFrameBuffer:
		return "framebuffer"
	case KindPipeline:
		return "pipeline"
	case KindPipelineLayout:
		return "pipeline layout"
	case KindShaderModule:
		return "shader module"
	case KindDescriptorPool:
		return "descriptor pool"
	}
	return "unknown"
}

// Dependency is a resource another resource needs to exist first.
type Dependency struct {
	ID   ID
	Kind Kind
}

// Description declares a resource. The set of implementations is closed.
type Description interface {

	// Kind returns the kind of resource described.
	Kind() Kind

	// Dependencies lists resources that have to be initialized
	// before this one.
	Dependencies() []Dependency

	description()
}

// swapchainDependent is implemented by descriptions whose native objects
// are derived from the current swapchain.
type swapchainDependent interface {
	SwapchainDependent() bool
}

// Context is the device capability adapters create resources with.
type Context interface {

	// Driver returns the device driver.
	Driver() gfx.Driver

	// Swapchain returns the current swapchain. It is the zero value
	// when no swapchain exists.
	Swapchain() gfx.SwapchainState
}

// State is a live resource: its description and the native handles
// created for it.
type State[D Description, H any] struct {
	Description D
	Handles     H

	initialized bool
}

// Initialized reports whether the handles are valid.
func (s *State[D, H]) Initialized() bool {
	return s != nil && s.initialized
}

// Check returns ErrLifecycleViolation when the state is not usable.
func (s *State[D, H]) Check() error {
	if !s.Initialized() {
		return ErrLifecycleViolation
	}
	return nil
}
