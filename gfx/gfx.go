// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the device capability that renderers are built against.
// Every native object is referred to by an opaque handle whose zero value is
// the null handle. Concrete drivers (vkr for Vulkan) map handles to their own
// objects; nothing above this package touches the native API.
package gfx

// Handle is an opaque reference to a native object owned by a Driver.
type Handle uint64

// NullHandle never refers to a live object.
const NullHandle Handle = 0

// Handle types for every native object kind. The zero value is null.
type (
	Buffer              Handle
	BufferView          Handle
	Image               Handle
	ImageView           Handle
	Sampler             Handle
	RenderPass          Handle
	Framebuffer         Handle
	ShaderModule        Handle
	DescriptorSetLayout Handle
	PipelineLayout      Handle
	Pipeline            Handle
	DescriptorPool      Handle
	DescriptorSet       Handle
	CommandBuffer       Handle
	Semaphore           Handle
	Fence               Handle
	Swapchain           Handle
)

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release()
}

// Queue selects one of the device queues.
type Queue int

// Device queues. Drivers may alias them onto the same native queue.
const (
	GraphicsQueue Queue = iota
	TransferQueue
	PresentQueue
)

func (q Queue) String() string {
	switch q {
	case GraphicsQueue:
		return "graphics"
	case TransferQueue:
		return "transfer"
	case PresentQueue:
		return "present"
	}
	return "unknown"
}

// Result is the non-error outcome of acquire and present operations.
type Result int

// Results that callers need to react to.
const (
	Success Result = iota
	Suboptimal
	OutOfDate
	NotReady
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Suboptimal:
		return "suboptimal"
	case OutOfDate:
		return "out of date"
	case NotReady:
		return "not ready"
	}
	return "unknown"
}

// NeedsRecreate reports whether the swapchain has to be rebuilt.
func (r Result) NeedsRecreate() bool {
	return r == Suboptimal || r == OutOfDate
}
