// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "time"

// Device creates and destroys native objects. Destroying a null
// handle is a no-op.
type Device interface {

	// CreateBuffer creates a buffer and binds memory to it.
	CreateBuffer(info BufferInfo) (Buffer, error)

	// DestroyBuffer destroys the buffer and frees its memory.
	DestroyBuffer(b Buffer)

	// WriteBuffer copies data into a host visible buffer at offset.
	WriteBuffer(b Buffer, offset uint64, data []byte) error

	CreateBufferView(info BufferViewInfo) (BufferView, error)
	DestroyBufferView(v BufferView)

	// CreateImage creates an image and binds device local memory to it.
	CreateImage(info ImageInfo) (Image, error)

	// DestroyImage destroys the image and frees its memory.
	DestroyImage(i Image)

	CreateSampler(info SamplerInfo) (Sampler, error)
	DestroySampler(s Sampler)

	CreateImageView(info ImageViewInfo) (ImageView, error)
	DestroyImageView(v ImageView)

	CreateRenderPass(info RenderPassInfo) (RenderPass, error)
	DestroyRenderPass(rp RenderPass)

	CreateFramebuffer(info FramebufferInfo) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)

	// CreateShaderModule creates a module from SPIR-V byte code.
	CreateShaderModule(code []byte) (ShaderModule, error)
	DestroyShaderModule(sm ShaderModule)

	CreateDescriptorSetLayout(info DescriptorSetLayoutInfo) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(l DescriptorSetLayout)

	CreatePipelineLayout(info PipelineLayoutInfo) (PipelineLayout, error)
	DestroyPipelineLayout(l PipelineLayout)

	CreateGraphicsPipeline(info GraphicsPipelineInfo) (Pipeline, error)
	DestroyPipeline(p Pipeline)

	CreateDescriptorPool(info DescriptorPoolInfo) (DescriptorPool, error)

	// DestroyDescriptorPool destroys the pool and every set allocated from it.
	DestroyDescriptorPool(p DescriptorPool)

	// AllocateDescriptorSets allocates one set per layout from the pool.
	AllocateDescriptorSets(pool DescriptorPool, layouts []DescriptorSetLayout) ([]DescriptorSet, error)

	// UpdateDescriptorSets applies the writes.
	UpdateDescriptorSets(writes []DescriptorWrite)

	// WaitIdle blocks until the device has finished all submitted work.
	WaitIdle() error
}

// Sync creates and waits on synchronization primitives.
type Sync interface {
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	// CreateFence creates a fence, optionally already signalled.
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)

	// WaitFence blocks until the fence is signalled or the timeout
	// passes, in which case ErrTimeout is returned.
	WaitFence(f Fence, timeout time.Duration) error

	// ResetFence returns the fence to the unsignalled state.
	ResetFence(f Fence) error
}

// Commands records command buffers.
type Commands interface {

	// AllocateCommandBuffer allocates a primary command buffer
	// from the pool of the given queue.
	AllocateCommandBuffer(q Queue) (CommandBuffer, error)
	FreeCommandBuffer(q Queue, cb CommandBuffer)

	// BeginCommandBuffer resets and begins recording.
	BeginCommandBuffer(cb CommandBuffer) error
	EndCommandBuffer(cb CommandBuffer) error

	CmdBeginRenderPass(cb CommandBuffer, begin RenderPassBegin)
	CmdNextSubpass(cb CommandBuffer)
	CmdEndRenderPass(cb CommandBuffer)
	CmdBindPipeline(cb CommandBuffer, p Pipeline)
	CmdSetViewport(cb CommandBuffer, vp Viewport)
	CmdSetScissor(cb CommandBuffer, scissor Rect2D)
	CmdBindDescriptorSets(cb CommandBuffer, layout PipelineLayout, first uint32, sets []DescriptorSet)
	CmdBindVertexBuffers(cb CommandBuffer, first uint32, buffers []Buffer, offsets []uint64)
	CmdBindIndexBuffer(cb CommandBuffer, b Buffer, offset uint64, t IndexType)
	CmdPushConstants(cb CommandBuffer, layout PipelineLayout, stages ShaderStage, offset uint32, data []byte)
	CmdDraw(cb CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32)
	CmdDrawIndexed(cb CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)

	// CmdPipelineBarrier records an image layout transition.
	CmdPipelineBarrier(cb CommandBuffer, barrier ImageBarrier)

	// CmdCopyBufferToImage copies from src into dst, which has to be in layout.
	CmdCopyBufferToImage(cb CommandBuffer, src Buffer, dst Image, layout ImageLayout, region BufferImageCopy)
}

// Queues submits recorded work.
type Queues interface {

	// Submit submits work to the queue.
	Submit(q Queue, info SubmitInfo) error
}

// Presenter owns the swapchain and presentation.
type Presenter interface {

	// CreateSwapchain creates a swapchain for the driver's surface.
	CreateSwapchain(info SwapchainInfo) (SwapchainState, error)

	// DestroySwapchain destroys the swapchain. Its images are owned by it.
	DestroySwapchain(sc Swapchain)

	// AcquireNextImage acquires the next presentable image and signals
	// the semaphore once it can be rendered to.
	AcquireNextImage(sc Swapchain, timeout time.Duration, signal Semaphore) (uint32, Result, error)

	// Present queues the image for presentation.
	Present(info PresentInfo) (Result, error)
}

// Driver is the full native capability set the renderer consumes.
type Driver interface {
	Device
	Sync
	Commands
	Queues
	Presenter

	// Destroy destroys the logical device and everything it owns.
	Destroy()
}
