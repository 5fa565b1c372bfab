// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/framegraph/gfx"
)

type commandBuffer struct {
	buffer vk.CommandBuffer
	family uint32

	// err is the first handle that failed to resolve while recording.
	// EndCommandBuffer reports it.
	err error
}

func (cb *commandBuffer) destroy(d *Driver) {
	if pool, ok := d.pools[cb.family]; ok {
		vk.FreeCommandBuffers(d.cfg.Device, pool, 1, []vk.CommandBuffer{cb.buffer})
	}
}

func (cb *commandBuffer) fail(err error) {
	if cb.err == nil {
		cb.err = err
	}
}

// AllocateCommandBuffer implements gfx.Commands.
func (d *Driver) AllocateCommandBuffer(q gfx.Queue) (gfx.CommandBuffer, error) {
	family := d.family(q)
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.pools[family],
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if err := check("vk.AllocateCommandBuffers()", vk.AllocateCommandBuffers(d.cfg.Device, &cbai, buffers)); err != nil {
		return 0, err
	}
	return gfx.CommandBuffer(d.objects.put(&commandBuffer{buffer: buffers[0], family: family})), nil
}

// FreeCommandBuffer implements gfx.Commands.
func (d *Driver) FreeCommandBuffer(q gfx.Queue, cb gfx.CommandBuffer) {
	if o, ok := take[*commandBuffer](d.objects, gfx.Handle(cb)); ok {
		o.destroy(d)
	}
}

// BeginCommandBuffer implements gfx.Commands.
func (d *Driver) BeginCommandBuffer(cb gfx.CommandBuffer) error {
	o, ok := lookup[*commandBuffer](d.objects, gfx.Handle(cb))
	if !ok {
		return errors.Wrapf(ErrInvalidHandle, "command buffer %d", cb)
	}
	o.err = nil
	if err := check("vk.ResetCommandBuffer()", vk.ResetCommandBuffer(o.buffer, 0)); err != nil {
		return err
	}
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	return check("vk.BeginCommandBuffer()", vk.BeginCommandBuffer(o.buffer, &cbbi))
}

// EndCommandBuffer implements gfx.Commands. Commands that referenced dead
// handles were skipped; the first such failure is returned here.
func (d *Driver) EndCommandBuffer(cb gfx.CommandBuffer) error {
	o, ok := lookup[*commandBuffer](d.objects, gfx.Handle(cb))
	if !ok {
		return errors.Wrapf(ErrInvalidHandle, "command buffer %d", cb)
	}
	if err := check("vk.EndCommandBuffer()", vk.EndCommandBuffer(o.buffer)); err != nil {
		return err
	}
	if o.err != nil {
		return errors.Wrap(o.err, "recording")
	}
	return nil
}

// recording returns the command buffer under cb, or nil if it is gone.
func (d *Driver) recording(cb gfx.CommandBuffer) *commandBuffer {
	o, ok := lookup[*commandBuffer](d.objects, gfx.Handle(cb))
	if !ok {
		d.log.WithField("commandBuffer", cb).Error("recording into dead command buffer")
		return nil
	}
	return o
}

// resolve looks h up as T, marking the command buffer failed if it is gone.
func resolve[T object](d *Driver, cb *commandBuffer, h gfx.Handle, kind string) (T, bool) {
	o, ok := lookup[T](d.objects, h)
	if !ok {
		cb.fail(errors.Wrapf(ErrInvalidHandle, "%s %d", kind, h))
	}
	return o, ok
}

// CmdBeginRenderPass implements gfx.Commands.
func (d *Driver) CmdBeginRenderPass(cb gfx.CommandBuffer, begin gfx.RenderPassBegin) {
	o := d.recording(cb)
	if o == nil {
		return
	}
	rp, ok := resolve[*renderPass](d, o, gfx.Handle(begin.RenderPass), "render pass")
	if !ok {
		return
	}
	fb, ok := resolve[*framebuffer](d, o, gfx.Handle(begin.Framebuffer), "framebuffer")
	if !ok {
		return
	}
	clearValues := make([]vk.ClearValue, len(begin.ClearValues))
	for idx, cv := range begin.ClearValues {
		if cv.DepthStencil {
			clearValues[idx].SetDepthStencil(cv.Depth, cv.Stencil)
		} else {
			clearValues[idx].SetColor(cv.Color[:])
		}
	}
	vk.CmdBeginRenderPass(o.buffer, &vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      rp.pass,
		Framebuffer:     fb.framebuffer,
		RenderArea:      vkRect(begin.Area),
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}, vk.SubpassContentsInline)
}

// CmdNextSubpass implements gfx.Commands.
func (d *Driver) CmdNextSubpass(cb gfx.CommandBuffer) {
	if o := d.recording(cb); o != nil {
		vk.CmdNextSubpass(o.buffer, vk.SubpassContentsInline)
	}
}

// CmdEndRenderPass implements gfx.Commands.
func (d *Driver) CmdEndRenderPass(cb gfx.CommandBuffer) {
	if o := d.recording(cb); o != nil {
		vk.CmdEndRenderPass(o.buffer)
	}
}

// CmdBindPipeline implements gfx.Commands.
func (d *Driver) CmdBindPipeline(cb gfx.CommandBuffer, p gfx.Pipeline) {
	o := d.recording(cb)
	if o == nil {
		return
	}
	if native, ok := resolve[*pipeline](d, o, gfx.Handle(p), "pipeline"); ok {
		vk.CmdBindPipeline(o.buffer, vk.PipelineBindPointGraphics, native.pipeline)
	}
}

// CmdSetViewport implements gfx.Commands.
func (d *Driver) CmdSetViewport(cb gfx.CommandBuffer, vp gfx.Viewport) {
	if o := d.recording(cb); o != nil {
		vk.CmdSetViewport(o.buffer, 0, 1, []vk.Viewport{{
			X:        vp.X,
			Y:        vp.Y,
			Width:    vp.Width,
			Height:   vp.Height,
			MinDepth: vp.MinDepth,
			MaxDepth: vp.MaxDepth,
		}})
	}
}

// CmdSetScissor implements gfx.Commands.
func (d *Driver) CmdSetScissor(cb gfx.CommandBuffer, scissor gfx.Rect2D) {
	if o := d.recording(cb); o != nil {
		vk.CmdSetScissor(o.buffer, 0, 1, []vk.Rect2D{vkRect(scissor)})
	}
}

// CmdBindDescriptorSets implements gfx.Commands.
func (d *Driver) CmdBindDescriptorSets(cb gfx.CommandBuffer, layout gfx.PipelineLayout, first uint32, sets []gfx.DescriptorSet) {
	o := d.recording(cb)
	if o == nil || len(sets) == 0 {
		return
	}
	l, ok := resolve[*pipelineLayout](d, o, gfx.Handle(layout), "pipeline layout")
	if !ok {
		return
	}
	natives := make([]vk.DescriptorSet, 0, len(sets))
	for _, s := range sets {
		set, ok := resolve[*descriptorSet](d, o, gfx.Handle(s), "descriptor set")
		if !ok {
			return
		}
		natives = append(natives, set.set)
	}
	vk.CmdBindDescriptorSets(o.buffer, vk.PipelineBindPointGraphics, l.layout,
		first, uint32(len(natives)), natives, 0, nil)
}

// CmdBindVertexBuffers implements gfx.Commands.
func (d *Driver) CmdBindVertexBuffers(cb gfx.CommandBuffer, first uint32, buffers []gfx.Buffer, offsets []uint64) {
	o := d.recording(cb)
	if o == nil || len(buffers) == 0 {
		return
	}
	natives := make([]vk.Buffer, 0, len(buffers))
	nativeOffsets := make([]vk.DeviceSize, len(buffers))
	for idx, b := range buffers {
		buf, ok := resolve[*buffer](d, o, gfx.Handle(b), "buffer")
		if !ok {
			return
		}
		natives = append(natives, buf.buffer)
		if idx < len(offsets) {
			nativeOffsets[idx] = vk.DeviceSize(offsets[idx])
		}
	}
	vk.CmdBindVertexBuffers(o.buffer, first, uint32(len(natives)), natives, nativeOffsets)
}

// CmdBindIndexBuffer implements gfx.Commands.
func (d *Driver) CmdBindIndexBuffer(cb gfx.CommandBuffer, b gfx.Buffer, offset uint64, t gfx.IndexType) {
	o := d.recording(cb)
	if o == nil {
		return
	}
	if buf, ok := resolve[*buffer](d, o, gfx.Handle(b), "buffer"); ok {
		vk.CmdBindIndexBuffer(o.buffer, buf.buffer, vk.DeviceSize(offset), vkIndexType(t))
	}
}

// CmdPushConstants implements gfx.Commands.
func (d *Driver) CmdPushConstants(cb gfx.CommandBuffer, layout gfx.PipelineLayout, stages gfx.ShaderStage, offset uint32, data []byte) {
	o := d.recording(cb)
	if o == nil || len(data) == 0 {
		return
	}
	if l, ok := resolve[*pipelineLayout](d, o, gfx.Handle(layout), "pipeline layout"); ok {
		vk.CmdPushConstants(o.buffer, l.layout, vkShaderStages(stages), offset,
			uint32(len(data)), unsafe.Pointer(&data[0]))
	}
}

// CmdDraw implements gfx.Commands.
func (d *Driver) CmdDraw(cb gfx.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if o := d.recording(cb); o != nil {
		vk.CmdDraw(o.buffer, vertexCount, instanceCount, firstVertex, firstInstance)
	}
}

// CmdDrawIndexed implements gfx.Commands.
func (d *Driver) CmdDrawIndexed(cb gfx.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if o := d.recording(cb); o != nil {
		vk.CmdDrawIndexed(o.buffer, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	}
}

// imageMemoryBarrier converts a whole image transition.
func imageMemoryBarrier(native vk.Image, barrier gfx.ImageBarrier) vk.ImageMemoryBarrier {
	return vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vkAccess(barrier.SrcAccess),
		DstAccessMask:       vkAccess(barrier.DstAccess),
		OldLayout:           vkLayout(barrier.OldLayout),
		NewLayout:           vkLayout(barrier.NewLayout),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               native,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vkAspect(barrier.Aspect),
			LevelCount: orOne(barrier.MipCount),
			LayerCount: orOne(barrier.LayerCount),
		},
	}
}

// CmdPipelineBarrier implements gfx.Commands.
func (d *Driver) CmdPipelineBarrier(cb gfx.CommandBuffer, barrier gfx.ImageBarrier) {
	o := d.recording(cb)
	if o == nil {
		return
	}
	img, ok := resolve[*image](d, o, gfx.Handle(barrier.Image), "image")
	if !ok {
		return
	}
	vk.CmdPipelineBarrier(o.buffer,
		vkPipelineStages(barrier.SrcStage), vkPipelineStages(barrier.DstStage),
		0, 0, nil, 0, nil,
		1, []vk.ImageMemoryBarrier{imageMemoryBarrier(img.image, barrier)})
}

// CmdCopyBufferToImage implements gfx.Commands.
func (d *Driver) CmdCopyBufferToImage(cb gfx.CommandBuffer, src gfx.Buffer, dst gfx.Image, layout gfx.ImageLayout, region gfx.BufferImageCopy) {
	o := d.recording(cb)
	if o == nil {
		return
	}
	buf, ok := resolve[*buffer](d, o, gfx.Handle(src), "buffer")
	if !ok {
		return
	}
	img, ok := resolve[*image](d, o, gfx.Handle(dst), "image")
	if !ok {
		return
	}
	vk.CmdCopyBufferToImage(o.buffer, buf.buffer, img.image, vkLayout(layout), 1, []vk.BufferImageCopy{{
		BufferOffset: vk.DeviceSize(region.BufferOffset),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vkAspect(region.Aspect),
			LayerCount: 1,
		},
		ImageExtent: vkExtent3D(region.Extent),
	}})
}

// Submit implements gfx.Queues.
func (d *Driver) Submit(q gfx.Queue, info gfx.SubmitInfo) error {
	buffers := make([]vk.CommandBuffer, 0, len(info.CommandBuffers))
	for _, cb := range info.CommandBuffers {
		o, ok := lookup[*commandBuffer](d.objects, gfx.Handle(cb))
		if !ok {
			return errors.Wrapf(ErrInvalidHandle, "command buffer %d", cb)
		}
		buffers = append(buffers, o.buffer)
	}
	wait, err := d.semaphores(info.Wait)
	if err != nil {
		return err
	}
	signal, err := d.semaphores(info.Signal)
	if err != nil {
		return err
	}
	stages := make([]vk.PipelineStageFlags, len(wait))
	for idx := range stages {
		stage := gfx.PipelineStageTopOfPipe
		if idx < len(info.WaitStages) {
			stage = info.WaitStages[idx]
		}
		stages[idx] = vkPipelineStages(stage)
	}

	var native vk.Fence
	if info.Fence != 0 {
		f, ok := lookup[*fence](d.objects, gfx.Handle(info.Fence))
		if !ok {
			return errors.Wrapf(ErrInvalidHandle, "fence %d", info.Fence)
		}
		native = f.fence
	}

	submitInfo := []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(buffers)),
		PCommandBuffers:      buffers,
		SignalSemaphoreCount: uint32(len(signal)),
		PSignalSemaphores:    signal,
	}}
	return check("vk.QueueSubmit()", vk.QueueSubmit(d.queue(q), 1, submitInfo, native))
}

func (d *Driver) semaphores(handles []gfx.Semaphore) ([]vk.Semaphore, error) {
	if len(handles) == 0 {
		return nil, nil
	}
	out := make([]vk.Semaphore, 0, len(handles))
	for _, h := range handles {
		s, ok := lookup[*semaphore](d.objects, gfx.Handle(h))
		if !ok {
			return nil, errors.Wrapf(ErrInvalidHandle, "semaphore %d", h)
		}
		out = append(out, s.semaphore)
	}
	return out, nil
}
