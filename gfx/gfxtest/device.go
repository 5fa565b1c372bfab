// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfxtest

import (
	"time"

	"github.com/devblok/framegraph/gfx"
	"github.com/pkg/errors"
)

var _ gfx.Driver = (*Driver)(nil)

// CreateBuffer implements gfx.Device.
func (d *Driver) CreateBuffer(info gfx.BufferInfo) (gfx.Buffer, error) {
	h, err := d.create("CreateBuffer", "Buffer", info)
	if err != nil {
		return 0, err
	}
	d.mutex.Lock()
	d.buffers[gfx.Buffer(h)] = make([]byte, info.Size)
	d.mutex.Unlock()
	return gfx.Buffer(h), nil
}

// DestroyBuffer implements gfx.Device.
func (d *Driver) DestroyBuffer(b gfx.Buffer) {
	d.destroy(gfx.Handle(b))
	d.mutex.Lock()
	delete(d.buffers, b)
	d.mutex.Unlock()
}

// WriteBuffer implements gfx.Device.
func (d *Driver) WriteBuffer(b gfx.Buffer, offset uint64, data []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.failure("WriteBuffer"); err != nil {
		return err
	}
	buf, ok := d.buffers[b]
	if !ok {
		return errors.Errorf("gfxtest: buffer %d is not live", b)
	}
	if offset+uint64(len(data)) > uint64(len(buf)) {
		return errors.Errorf("gfxtest: write of %d bytes at %d overflows buffer of %d", len(data), offset, len(buf))
	}
	copy(buf[offset:], data)
	return nil
}

// CreateBufferView implements gfx.Device.
func (d *Driver) CreateBufferView(info gfx.BufferViewInfo) (gfx.BufferView, error) {
	if !d.IsLive(gfx.Handle(info.Buffer)) {
		return 0, errors.Errorf("gfxtest: buffer view over dead buffer %d", info.Buffer)
	}
	h, err := d.create("CreateBufferView", "BufferView", info)
	return gfx.BufferView(h), err
}

// DestroyBufferView implements gfx.Device.
func (d *Driver) DestroyBufferView(v gfx.BufferView) { d.destroy(gfx.Handle(v)) }

// CreateImage implements gfx.Device.
func (d *Driver) CreateImage(info gfx.ImageInfo) (gfx.Image, error) {
	h, err := d.create("CreateImage", "Image", info)
	return gfx.Image(h), err
}

// DestroyImage implements gfx.Device.
func (d *Driver) DestroyImage(i gfx.Image) { d.destroy(gfx.Handle(i)) }

// CreateSampler implements gfx.Device.
func (d *Driver) CreateSampler(info gfx.SamplerInfo) (gfx.Sampler, error) {
	h, err := d.create("CreateSampler", "Sampler", info)
	return gfx.Sampler(h), err
}

// DestroySampler implements gfx.Device.
func (d *Driver) DestroySampler(s gfx.Sampler) { d.destroy(gfx.Handle(s)) }

// CreateImageView implements gfx.Device.
func (d *Driver) CreateImageView(info gfx.ImageViewInfo) (gfx.ImageView, error) {
	if !d.IsLive(gfx.Handle(info.Image)) {
		return 0, errors.Errorf("gfxtest: image view over dead image %d", info.Image)
	}
	h, err := d.create("CreateImageView", "ImageView", info)
	return gfx.ImageView(h), err
}

// DestroyImageView implements gfx.Device.
func (d *Driver) DestroyImageView(v gfx.ImageView) { d.destroy(gfx.Handle(v)) }

// CreateRenderPass implements gfx.Device.
func (d *Driver) CreateRenderPass(info gfx.RenderPassInfo) (gfx.RenderPass, error) {
	h, err := d.create("CreateRenderPass", "RenderPass", info)
	return gfx.RenderPass(h), err
}

// DestroyRenderPass implements gfx.Device.
func (d *Driver) DestroyRenderPass(rp gfx.RenderPass) { d.destroy(gfx.Handle(rp)) }

// CreateFramebuffer implements gfx.Device.
func (d *Driver) CreateFramebuffer(info gfx.FramebufferInfo) (gfx.Framebuffer, error) {
	if !d.IsLive(gfx.Handle(info.RenderPass)) {
		return 0, errors.Errorf("gfxtest: framebuffer for dead render pass %d", info.RenderPass)
	}
	for _, v := range info.Attachments {
		if !d.IsLive(gfx.Handle(v)) {
			return 0, errors.Errorf("gfxtest: framebuffer with dead attachment %d", v)
		}
	}
	h, err := d.create("CreateFramebuffer", "Framebuffer", info)
	return gfx.Framebuffer(h), err
}

// DestroyFramebuffer implements gfx.Device.
func (d *Driver) DestroyFramebuffer(fb gfx.Framebuffer) { d.destroy(gfx.Handle(fb)) }

// CreateShaderModule implements gfx.Device.
func (d *Driver) CreateShaderModule(code []byte) (gfx.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return 0, gfx.NewNativeError("CreateShaderModule", -1000012000, "invalid byte code")
	}
	h, err := d.create("CreateShaderModule", "ShaderModule", append([]byte(nil), code...))
	return gfx.ShaderModule(h), err
}

// DestroyShaderModule implements gfx.Device.
func (d *Driver) DestroyShaderModule(sm gfx.ShaderModule) { d.destroy(gfx.Handle(sm)) }

// CreateDescriptorSetLayout implements gfx.Device.
func (d *Driver) CreateDescriptorSetLayout(info gfx.DescriptorSetLayoutInfo) (gfx.DescriptorSetLayout, error) {
	h, err := d.create("CreateDescriptorSetLayout", "DescriptorSetLayout", info)
	return gfx.DescriptorSetLayout(h), err
}

// DestroyDescriptorSetLayout implements gfx.Device.
func (d *Driver) DestroyDescriptorSetLayout(l gfx.DescriptorSetLayout) { d.destroy(gfx.Handle(l)) }

// CreatePipelineLayout implements gfx.Device.
func (d *Driver) CreatePipelineLayout(info gfx.PipelineLayoutInfo) (gfx.PipelineLayout, error) {
	h, err := d.create("CreatePipelineLayout", "PipelineLayout", info)
	return gfx.PipelineLayout(h), err
}

// DestroyPipelineLayout implements gfx.Device.
func (d *Driver) DestroyPipelineLayout(l gfx.PipelineLayout) { d.destroy(gfx.Handle(l)) }

// CreateGraphicsPipeline implements gfx.Device.
func (d *Driver) CreateGraphicsPipeline(info gfx.GraphicsPipelineInfo) (gfx.Pipeline, error) {
	h, err := d.create("CreateGraphicsPipeline", "Pipeline", info)
	return gfx.Pipeline(h), err
}

// DestroyPipeline implements gfx.Device.
func (d *Driver) DestroyPipeline(p gfx.Pipeline) { d.destroy(gfx.Handle(p)) }

// CreateDescriptorPool implements gfx.Device.
func (d *Driver) CreateDescriptorPool(info gfx.DescriptorPoolInfo) (gfx.DescriptorPool, error) {
	h, err := d.create("CreateDescriptorPool", "DescriptorPool", info)
	return gfx.DescriptorPool(h), err
}

// DestroyDescriptorPool implements gfx.Device. Sets allocated from
// the pool are freed with it.
func (d *Driver) DestroyDescriptorPool(p gfx.DescriptorPool) {
	if p == 0 {
		return
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.forget(gfx.Handle(p))
	for h, o := range d.live {
		if set, ok := o.info.(descriptorSet); ok && set.pool == p {
			d.forget(h)
		}
	}
}

type descriptorSet struct {
	pool   gfx.DescriptorPool
	layout gfx.DescriptorSetLayout
}

// AllocateDescriptorSets implements gfx.Device.
func (d *Driver) AllocateDescriptorSets(pool gfx.DescriptorPool, layouts []gfx.DescriptorSetLayout) ([]gfx.DescriptorSet, error) {
	d.mutex.Lock()
	if err := d.failure("AllocateDescriptorSets"); err != nil {
		d.mutex.Unlock()
		return nil, err
	}
	d.mutex.Unlock()
	sets := make([]gfx.DescriptorSet, 0, len(layouts))
	for _, l := range layouts {
		h, err := d.create("AllocateDescriptorSet", "DescriptorSet", descriptorSet{pool: pool, layout: l})
		if err != nil {
			return nil, err
		}
		sets = append(sets, gfx.DescriptorSet(h))
	}
	return sets, nil
}

// UpdateDescriptorSets implements gfx.Device.
func (d *Driver) UpdateDescriptorSets(writes []gfx.DescriptorWrite) {
	d.record(0, "UpdateDescriptorSets", writes)
}

// WaitIdle implements gfx.Device.
func (d *Driver) WaitIdle() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.waitIdle++
	return d.failure("WaitIdle")
}

// CreateSemaphore implements gfx.Sync.
func (d *Driver) CreateSemaphore() (gfx.Semaphore, error) {
	h, err := d.create("CreateSemaphore", "Semaphore", nil)
	return gfx.Semaphore(h), err
}

// DestroySemaphore implements gfx.Sync.
func (d *Driver) DestroySemaphore(s gfx.Semaphore) { d.destroy(gfx.Handle(s)) }

// CreateFence implements gfx.Sync.
func (d *Driver) CreateFence(signaled bool) (gfx.Fence, error) {
	h, err := d.create("CreateFence", "Fence", nil)
	if err != nil {
		return 0, err
	}
	d.mutex.Lock()
	d.fences[gfx.Fence(h)] = signaled
	d.mutex.Unlock()
	return gfx.Fence(h), nil
}

// DestroyFence implements gfx.Sync.
func (d *Driver) DestroyFence(f gfx.Fence) {
	d.destroy(gfx.Handle(f))
	d.mutex.Lock()
	delete(d.fences, f)
	d.mutex.Unlock()
}

// FenceSignaled reports the state of a fence.
func (d *Driver) FenceSignaled(f gfx.Fence) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.fences[f]
}

// WaitFence implements gfx.Sync. Work completes at submission time, so
// an unsignalled fence that was never submitted also times out.
func (d *Driver) WaitFence(f gfx.Fence, timeout time.Duration) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.failure("WaitFence"); err != nil {
		return err
	}
	if d.hungFences || !d.fences[f] {
		return gfx.ErrTimeout
	}
	return nil
}

// ResetFence implements gfx.Sync.
func (d *Driver) ResetFence(f gfx.Fence) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if _, ok := d.fences[f]; !ok {
		return errors.Errorf("gfxtest: reset of dead fence %d", f)
	}
	d.fences[f] = false
	return nil
}

// AllocateCommandBuffer implements gfx.Commands.
func (d *Driver) AllocateCommandBuffer(q gfx.Queue) (gfx.CommandBuffer, error) {
	h, err := d.create("AllocateCommandBuffer", "CommandBuffer", q)
	return gfx.CommandBuffer(h), err
}

// FreeCommandBuffer implements gfx.Commands.
func (d *Driver) FreeCommandBuffer(q gfx.Queue, cb gfx.CommandBuffer) { d.destroy(gfx.Handle(cb)) }

// BeginCommandBuffer implements gfx.Commands.
func (d *Driver) BeginCommandBuffer(cb gfx.CommandBuffer) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.failure("BeginCommandBuffer"); err != nil {
		return err
	}
	if d.recording[cb] {
		return errors.Errorf("gfxtest: command buffer %d already recording", cb)
	}
	d.recording[cb] = true
	d.commands = append(d.commands, Command{Buffer: cb, Op: "Begin"})
	return nil
}

// EndCommandBuffer implements gfx.Commands.
func (d *Driver) EndCommandBuffer(cb gfx.CommandBuffer) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.failure("EndCommandBuffer"); err != nil {
		return err
	}
	if !d.recording[cb] {
		return errors.Errorf("gfxtest: command buffer %d is not recording", cb)
	}
	d.recording[cb] = false
	d.commands = append(d.commands, Command{Buffer: cb, Op: "End"})
	return nil
}

// CmdBeginRenderPass implements gfx.Commands.
func (d *Driver) CmdBeginRenderPass(cb gfx.CommandBuffer, begin gfx.RenderPassBegin) {
	d.record(cb, "BeginRenderPass", begin)
}

// CmdNextSubpass implements gfx.Commands.
func (d *Driver) CmdNextSubpass(cb gfx.CommandBuffer) { d.record(cb, "NextSubpass") }

// CmdEndRenderPass implements gfx.Commands.
func (d *Driver) CmdEndRenderPass(cb gfx.CommandBuffer) { d.record(cb, "EndRenderPass") }

// CmdBindPipeline implements gfx.Commands.
func (d *Driver) CmdBindPipeline(cb gfx.CommandBuffer, p gfx.Pipeline) {
	d.record(cb, "BindPipeline", p)
}

// CmdSetViewport implements gfx.Commands.
func (d *Driver) CmdSetViewport(cb gfx.CommandBuffer, vp gfx.Viewport) {
	d.record(cb, "SetViewport", vp)
}

// CmdSetScissor implements gfx.Commands.
func (d *Driver) CmdSetScissor(cb gfx.CommandBuffer, scissor gfx.Rect2D) {
	d.record(cb, "SetScissor", scissor)
}

// CmdBindDescriptorSets implements gfx.Commands.
func (d *Driver) CmdBindDescriptorSets(cb gfx.CommandBuffer, layout gfx.PipelineLayout, first uint32, sets []gfx.DescriptorSet) {
	d.record(cb, "BindDescriptorSets", layout, first, sets)
}

// CmdBindVertexBuffers implements gfx.Commands.
func (d *Driver) CmdBindVertexBuffers(cb gfx.CommandBuffer, first uint32, buffers []gfx.Buffer, offsets []uint64) {
	d.record(cb, "BindVertexBuffers", first, buffers, offsets)
}

// CmdBindIndexBuffer implements gfx.Commands.
func (d *Driver) CmdBindIndexBuffer(cb gfx.CommandBuffer, b gfx.Buffer, offset uint64, t gfx.IndexType) {
	d.record(cb, "BindIndexBuffer", b, offset, t)
}

// CmdPushConstants implements gfx.Commands.
func (d *Driver) CmdPushConstants(cb gfx.CommandBuffer, layout gfx.PipelineLayout, stages gfx.ShaderStage, offset uint32, data []byte) {
	d.record(cb, "PushConstants", layout, stages, offset, append([]byte(nil), data...))
}

// CmdDraw implements gfx.Commands.
func (d *Driver) CmdDraw(cb gfx.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	d.record(cb, "Draw", vertexCount, instanceCount, firstVertex, firstInstance)
}

// CmdDrawIndexed implements gfx.Commands.
func (d *Driver) CmdDrawIndexed(cb gfx.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	d.record(cb, "DrawIndexed", indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

// CmdPipelineBarrier implements gfx.Commands.
func (d *Driver) CmdPipelineBarrier(cb gfx.CommandBuffer, barrier gfx.ImageBarrier) {
	d.record(cb, "PipelineBarrier", barrier)
}

// CmdCopyBufferToImage implements gfx.Commands.
func (d *Driver) CmdCopyBufferToImage(cb gfx.CommandBuffer, src gfx.Buffer, dst gfx.Image, layout gfx.ImageLayout, region gfx.BufferImageCopy) {
	d.record(cb, "CopyBufferToImage", src, dst, layout, region)
}

// Submit implements gfx.Queues. The submitted work completes immediately.
func (d *Driver) Submit(q gfx.Queue, info gfx.SubmitInfo) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.failure("Submit"); err != nil {
		return err
	}
	if d.failQueues[q] {
		return gfx.NewNativeError("Submit", ErrorCode, "injected queue failure")
	}
	for _, cb := range info.CommandBuffers {
		if d.recording[cb] {
			return errors.Errorf("gfxtest: submit of command buffer %d still recording", cb)
		}
	}
	d.submissions = append(d.submissions, Submission{Queue: q, Info: info})
	if info.Fence != 0 {
		d.fences[info.Fence] = true
	}
	return nil
}

// CreateSwapchain implements gfx.Presenter.
func (d *Driver) CreateSwapchain(info gfx.SwapchainInfo) (gfx.SwapchainState, error) {
	h, err := d.create("CreateSwapchain", "Swapchain", info)
	if err != nil {
		return gfx.SwapchainState{}, err
	}
	count := info.MinImageCount
	if count == 0 {
		count = 2
	}
	images := make([]gfx.Image, 0, count)
	d.mutex.Lock()
	for i := uint32(0); i < count; i++ {
		d.next++
		d.live[d.next] = object{kind: "SwapchainImage", info: gfx.Swapchain(h)}
		images = append(images, gfx.Image(d.next))
	}
	d.swapImages[gfx.Swapchain(h)] = images
	d.mutex.Unlock()
	return gfx.SwapchainState{
		Swapchain:  gfx.Swapchain(h),
		Images:     images,
		Format:     info.Format,
		ColorSpace: info.ColorSpace,
		Extent:     info.Extent,
	}, nil
}

// DestroySwapchain implements gfx.Presenter.
func (d *Driver) DestroySwapchain(sc gfx.Swapchain) {
	if sc == 0 {
		return
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	for _, img := range d.swapImages[sc] {
		d.forget(gfx.Handle(img))
	}
	delete(d.swapImages, sc)
	d.forget(gfx.Handle(sc))
}

// AcquireNextImage implements gfx.Presenter. Images are handed out
// round robin.
func (d *Driver) AcquireNextImage(sc gfx.Swapchain, timeout time.Duration, signal gfx.Semaphore) (uint32, gfx.Result, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.failure("AcquireNextImage"); err != nil {
		return 0, gfx.Success, err
	}
	images, ok := d.swapImages[sc]
	if !ok {
		return 0, gfx.Success, errors.Errorf("gfxtest: acquire from dead swapchain %d", sc)
	}
	result := gfx.Success
	if len(d.acquire) > 0 {
		result = d.acquire[0]
		d.acquire = d.acquire[1:]
	}
	if result == gfx.OutOfDate {
		return 0, result, nil
	}
	idx := d.imageIndex % uint32(len(images))
	d.imageIndex++
	return idx, result, nil
}

// Present implements gfx.Presenter.
func (d *Driver) Present(info gfx.PresentInfo) (gfx.Result, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.failure("Present"); err != nil {
		return gfx.Success, err
	}
	d.presents = append(d.presents, info)
	result := gfx.Success
	if len(d.present) > 0 {
		result = d.present[0]
		d.present = d.present[1:]
	}
	return result, nil
}

// Destroy implements gfx.Driver.
func (d *Driver) Destroy() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.destroyed = true
}

// Destroyed reports whether Destroy was called.
func (d *Driver) Destroyed() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.destroyed
}
