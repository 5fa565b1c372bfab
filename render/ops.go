// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/framegraph/assets"
	"github.com/devblok/framegraph/gfx"
	"github.com/devblok/framegraph/model"
	"github.com/devblok/framegraph/resource"
)

// Op is a single step of frame recording.
type Op func(g *GlobalContext, m *resource.Manager, s *assets.Storage, st *State) error

// FramebufferSelector picks the framebuffer to render into for the
// acquired swapchain image.
type FramebufferSelector func(imageIndex uint32) resource.ID

// Framebuffer always selects id.
func Framebuffer(id resource.ID) FramebufferSelector {
	return func(uint32) resource.ID { return id }
}

// PerImage selects ids[imageIndex], one framebuffer per swapchain image.
// Without ids there is nothing to select and the selector is nil.
func PerImage(ids ...resource.ID) FramebufferSelector {
	if len(ids) == 0 {
		return nil
	}
	ids = append([]resource.ID(nil), ids...)
	return func(imageIndex uint32) resource.ID {
		return ids[int(imageIndex)%len(ids)]
	}
}

// BeginGraphicsFrame waits until the current frame context is free and
// acquires the next swapchain image. An out of date swapchain is
// recreated and the frame fails with ErrSwapchainOutOfDate.
func BeginGraphicsFrame() Op {
	return func(g *GlobalContext, m *resource.Manager, s *assets.Storage, st *State) error {
		if err := st.expect("BeginGraphicsFrame", PhaseIdle, PhasePresented); err != nil {
			return err
		}
		frame := g.CurrentFrameContext()
		drv := g.driver

		if err := drv.WaitFence(frame.InFlight, g.cfg.FrameTimeout); err != nil {
			if errors.Is(err, gfx.ErrTimeout) {
				return errors.Wrapf(ErrFrameTimeout, "frame %d after %s", frame.Index, g.cfg.FrameTimeout)
			}
			return errors.Wrap(err, "wait for frame")
		}

		idx, result, err := drv.AcquireNextImage(g.swapchain.Swapchain, g.cfg.FrameTimeout, frame.ImageAvailable)
		if err != nil {
			if errors.Is(err, gfx.ErrTimeout) {
				return errors.Wrapf(ErrFrameTimeout, "acquire image for frame %d", frame.Index)
			}
			return errors.Wrap(err, "acquire image")
		}
		if result == gfx.OutOfDate {
			if err := g.RecreateSwapchain(m); err != nil {
				return err
			}
			return ErrSwapchainOutOfDate
		}

		st.reset()
		st.Phase = PhaseFrameBegun
		st.Frame = frame
		st.ImageIndex = idx
		g.imageIndex = idx
		return nil
	}
}

// BeginFrameCommandBuffers starts recording the frame's command buffers.
func BeginFrameCommandBuffers() Op {
	return func(g *GlobalContext, m *resource.Manager, s *assets.Storage, st *State) error {
		if err := st.expect("BeginFrameCommandBuffers", PhaseFrameBegun); err != nil {
			return err
		}
		if err := g.driver.BeginCommandBuffer(st.Frame.Transfer); err != nil {
			return errors.Wrap(err, "begin transfer commands")
		}
		if err := g.driver.BeginCommandBuffer(st.Frame.Graphics); err != nil {
			g.driver.EndCommandBuffer(st.Frame.Transfer)
			return errors.Wrap(err, "begin graphics commands")
		}
		st.Phase = PhaseRecording
		return nil
	}
}

// BindRenderPass begins a render pass on the framebuffer fb selects and
// makes its first subpass active. Viewport and scissor cover the framebuffer.
func BindRenderPass(pass resource.ID, fb FramebufferSelector) Op {
	return func(g *GlobalContext, m *resource.Manager, s *assets.Storage, st *State) error {
		if err := st.expect("BindRenderPass", PhaseRecording, PhasePassUnbound); err != nil {
			return err
		}
		if fb == nil {
			return errors.Errorf("render pass %q bound without a framebuffer selector", pass)
		}
		rp, err := m.RenderPass(pass, g)
		if err != nil {
			return err
		}
		fbID := fb(st.ImageIndex)
		framebuffer, err := m.FrameBuffer(fbID, g)
		if err != nil {
			return err
		}
		if framebuffer.Description.RenderPass != pass {
			return errors.Errorf("framebuffer %q was made for render pass %q, not %q", fbID, framebuffer.Description.RenderPass, pass)
		}

		cb := st.Frame.Graphics
		extent := framebuffer.Handles.Extent
		g.driver.CmdBeginRenderPass(cb, gfx.RenderPassBegin{
			RenderPass:  rp.Handles.RenderPass,
			Framebuffer: framebuffer.Handles.Framebuffer,
			Area:        gfx.Rect2D{Extent: extent},
			ClearValues: rp.Handles.ClearValues,
		})
		g.driver.CmdSetViewport(cb, gfx.Viewport{
			Width:    float32(extent.Width),
			Height:   float32(extent.Height),
			MaxDepth: 1,
		})
		g.driver.CmdSetScissor(cb, gfx.Rect2D{Extent: extent})

		st.unbindPass()
		st.Pass = pass
		st.RenderPass = rp
		st.FrameBuffer = framebuffer
		st.Phase = PhaseSubpassActive
		return nil
	}
}

func bindPipeline(g *GlobalContext, m *resource.Manager, st *State, id resource.ID) error {
	p, err := m.Pipeline(id, g)
	if err != nil {
		return err
	}
	if p.Description.RenderPass != st.Pass || p.Description.Subpass != st.Subpass {
		return errors.Wrapf(ErrPipelineMismatch, "pipeline %q is for subpass %d of %q, subpass %d of %q is active",
			id, p.Description.Subpass, p.Description.RenderPass, st.Subpass, st.Pass)
	}
	g.driver.CmdBindPipeline(st.Frame.Graphics, p.Handles.Pipeline)
	st.Pipeline = p
	st.Material = nil
	return nil
}

// BindPipeline binds a pipeline made for the active subpass.
func BindPipeline(id resource.ID) Op {
	return func(g *GlobalContext, m *resource.Manager, s *assets.Storage, st *State) error {
		if err := st.expect("BindPipeline", PhaseSubpassActive); err != nil {
			return err
		}
		return bindPipeline(g, m, st, id)
	}
}

// UseMaterialWithPipeline binds the material's pipeline, when it names
// one, and its descriptor sets. Each frame in flight binds its own copy
// of the sets, which is written again whenever a bound resource was
// recreated since the copy was last written.
func UseMaterialWithPipeline(name string) Op {
	return func(g *GlobalContext, m *resource.Manager, s *assets.Storage, st *State) error {
		if err := st.expect("UseMaterialWithPipeline", PhaseSubpassActive); err != nil {
			return err
		}
		mat, err := s.Material(name)
		if err != nil {
			return err
		}
		if mat.Pipeline != "" {
			if err := bindPipeline(g, m, st, mat.Pipeline); err != nil {
				return err
			}
		}
		if st.Pipeline == nil {
			return errors.Wrapf(ErrInvalidTransition, "material %q used without a pipeline", name)
		}

		if mat.DescriptorPool != "" {
			pool, err := m.DescriptorPool(mat.DescriptorPool, g)
			if err != nil {
				return err
			}
			n := st.Frame.Index
			writes, bound, err := materialWrites(g, m, mat, pool, n)
			if err != nil {
				return errors.Wrapf(err, "material %q", name)
			}
			if pool.Handles.Copies() > 0 && !pool.Handles.WrittenWith(n, bound) {
				g.driver.UpdateDescriptorSets(writes)
				pool.Handles.MarkWritten(n, bound)
				g.log.WithFields(log.Fields{
					"material": name,
					"copy":     pool.Handles.Copy(n),
				}).Debug("descriptor sets written")
			}
			g.driver.CmdBindDescriptorSets(st.Frame.Graphics, pool.Handles.Layout, pool.Handles.FirstSet, pool.Handles.SetGroup(n))
		}
		st.Material = mat
		return nil
	}
}

// materialWrites resolves the material's bindings into writes for copy n
// of the pool's sets. bound lists the handles the writes reference, so a
// copy written before its resources were recreated can be told apart.
func materialWrites(g *GlobalContext, m *resource.Manager, mat *assets.Material, pool *resource.DescriptorPoolState, n int) (writes []gfx.DescriptorWrite, bound []gfx.Handle, err error) {
	bound = []gfx.Handle{}
	sets := pool.Handles.SetGroup(n)
	for _, b := range mat.Bindings {
		if int(b.Set) >= len(sets) {
			return nil, nil, errors.Errorf("binding %d refers to set %d, the pool holds %d", b.Binding, b.Set, pool.Handles.Group)
		}
		w := gfx.DescriptorWrite{Set: sets[b.Set], Binding: b.Binding, Type: b.Type}
		switch b.Type {
		case gfx.DescriptorUniformBuffer, gfx.DescriptorStorageBuffer,
			gfx.DescriptorUniformBufferDynamic, gfx.DescriptorStorageBufferDynamic:
			buf, err := m.Buffer(b.Buffer, g)
			if err != nil {
				return nil, nil, err
			}
			rng := b.Range
			if rng == 0 {
				rng = buf.Description.Size - b.Offset
			}
			w.Buffers = []gfx.DescriptorBufferInfo{{Buffer: buf.Handles.Buffer, Offset: b.Offset, Range: rng}}
			bound = append(bound, gfx.Handle(buf.Handles.Buffer))
		default:
			view, err := m.ImageView(b.Image, g)
			if err != nil {
				return nil, nil, err
			}
			img, err := m.Image(view.Description.Image, g)
			if err != nil {
				return nil, nil, err
			}
			layout := gfx.LayoutShaderReadOnly
			if b.Type == gfx.DescriptorStorageImage {
				layout = gfx.LayoutGeneral
			}
			w.Images = []gfx.DescriptorImageInfo{{Sampler: img.Handles.Sampler, View: view.Handles.View, Layout: layout}}
			bound = append(bound, gfx.Handle(view.Handles.View), gfx.Handle(img.Handles.Sampler))
		}
		writes = append(writes, w)
	}
	return writes, bound, nil
}

// UploadTexture records the copy of a texture's staging buffer into its
// image on the transfer command buffer. Nothing is recorded once the
// current image holds the texels.
func UploadTexture(name string) Op {
	return func(g *GlobalContext, m *resource.Manager, s *assets.Storage, st *State) error {
		if err := st.expect("UploadTexture", PhaseRecording, PhasePassUnbound); err != nil {
			return err
		}
		tex, err := s.Texture(name)
		if err != nil {
			return err
		}
		img, err := m.Image(tex.Image, g)
		if err != nil {
			return err
		}
		if tex.Uploaded(img.Handles.Image) {
			return nil
		}
		for _, u := range st.uploads {
			if u.image == img.Handles.Image {
				return nil
			}
		}
		staging, err := m.Buffer(tex.Staging, g)
		if err != nil {
			return err
		}

		cb := st.Frame.Transfer
		g.driver.CmdPipelineBarrier(cb, gfx.ImageBarrier{
			Image:      img.Handles.Image,
			Aspect:     gfx.AspectColor,
			OldLayout:  gfx.LayoutUndefined,
			NewLayout:  gfx.LayoutTransferDst,
			SrcStage:   gfx.PipelineStageTopOfPipe,
			DstStage:   gfx.PipelineStageTransfer,
			DstAccess:  gfx.AccessTransferWrite,
			MipCount:   1,
			LayerCount: 1,
		})
		g.driver.CmdCopyBufferToImage(cb, staging.Handles.Buffer, img.Handles.Image, gfx.LayoutTransferDst, gfx.BufferImageCopy{
			Aspect: gfx.AspectColor,
			Extent: img.Handles.Extent,
		})
		g.driver.CmdPipelineBarrier(cb, gfx.ImageBarrier{
			Image:      img.Handles.Image,
			Aspect:     gfx.AspectColor,
			OldLayout:  gfx.LayoutTransferDst,
			NewLayout:  img.Handles.Layout,
			SrcStage:   gfx.PipelineStageTransfer,
			DstStage:   gfx.PipelineStageFragmentShader,
			SrcAccess:  gfx.AccessTransferWrite,
			DstAccess:  gfx.AccessShaderRead,
			MipCount:   1,
			LayerCount: 1,
		})
		st.uploads = append(st.uploads, upload{texture: tex, image: img.Handles.Image})
		return nil
	}
}

// UseMesh binds the vertex and index buffers of a mesh and pushes its
// transform when the pipeline layout declares push constants.
func UseMesh(name string) Op {
	return func(g *GlobalContext, m *resource.Manager, s *assets.Storage, st *State) error {
		if err := st.expect("UseMesh", PhaseSubpassActive); err != nil {
			return err
		}
		if st.Pipeline == nil {
			return errors.Wrapf(ErrInvalidTransition, "mesh %q used without a pipeline", name)
		}
		mesh, err := s.Mesh(name)
		if err != nil {
			return err
		}
		vertices, err := m.Buffer(mesh.VertexBuffer, g)
		if err != nil {
			return err
		}
		indices, err := m.Buffer(mesh.IndexBuffer, g)
		if err != nil {
			return err
		}

		cb := st.Frame.Graphics
		g.driver.CmdBindVertexBuffers(cb, 0, []gfx.Buffer{vertices.Handles.Buffer}, []uint64{0})
		g.driver.CmdBindIndexBuffer(cb, indices.Handles.Buffer, 0, mesh.IndexType)

		layout, err := m.PipelineLayout(st.Pipeline.Description.Layout, g)
		if err != nil {
			return err
		}
		if ranges := layout.Handles.PushConstants; len(ranges) > 0 {
			if ranges[0].Size < model.PushConstantSize {
				return errors.Errorf("push constant range of %d bytes cannot hold a transform", ranges[0].Size)
			}
			g.driver.CmdPushConstants(cb, layout.Handles.Layout, ranges[0].Stages, ranges[0].Offset, model.Mat4Bytes(mesh.Transform.Matrix()))
		}
		st.Mesh = mesh
		return nil
	}
}

// DrawIndexed draws the bound mesh.
func DrawIndexed() Op {
	return func(g *GlobalContext, m *resource.Manager, s *assets.Storage, st *State) error {
		if err := st.expect("DrawIndexed", PhaseSubpassActive); err != nil {
			return err
		}
		if st.Mesh == nil {
			return errors.Wrap(ErrInvalidTransition, "DrawIndexed without a mesh")
		}
		g.driver.CmdDrawIndexed(st.Frame.Graphics, st.Mesh.IndexCount, 1, 0, 0, 0)
		return nil
	}
}

// DrawQuad draws six vertices without buffers, for pipelines generating
// a full screen quad in the vertex shader.
func DrawQuad() Op {
	return func(g *GlobalContext, m *resource.Manager, s *assets.Storage, st *State) error {
		if err := st.expect("DrawQuad", PhaseSubpassActive); err != nil {
			return err
		}
		if st.Pipeline == nil {
			return errors.Wrap(ErrInvalidTransition, "DrawQuad without a pipeline")
		}
		g.driver.CmdDraw(st.Frame.Graphics, 6, 1, 0, 0)
		return nil
	}
}

// NextSubpass makes the next subpass of the bound render pass active.
func NextSubpass() Op {
	return func(g *GlobalContext, m *resource.Manager, s *assets.Storage, st *State) error {
		if err := st.expect("NextSubpass", PhaseSubpassActive); err != nil {
			return err
		}
		if int(st.Subpass)+1 >= len(st.RenderPass.Description.Subpasses) {
			return errors.Wrapf(ErrInvalidTransition, "NextSubpass past the last of %d subpasses", len(st.RenderPass.Description.Subpasses))
		}
		g.driver.CmdNextSubpass(st.Frame.Graphics)
		st.Subpass++
		st.unbindSubpass()
		return nil
	}
}

// UnbindRenderPass ends the bound render pass. Every subpass must have run.
func UnbindRenderPass() Op {
	return func(g *GlobalContext, m *resource.Manager, s *assets.Storage, st *State) error {
		if err := st.expect("UnbindRenderPass", PhaseSubpassActive); err != nil {
			return err
		}
		if n := len(st.RenderPass.Description.Subpasses); int(st.Subpass) != n-1 {
			return errors.Wrapf(ErrInvalidTransition, "UnbindRenderPass in subpass %d of %d", st.Subpass, n)
		}
		g.driver.CmdEndRenderPass(st.Frame.Graphics)
		st.unbindPass()
		st.Phase = PhasePassUnbound
		return nil
	}
}

// EndFrameCommandBuffers finishes recording.
func EndFrameCommandBuffers() Op {
	return func(g *GlobalContext, m *resource.Manager, s *assets.Storage, st *State) error {
		if err := st.expect("EndFrameCommandBuffers", PhaseRecording, PhasePassUnbound); err != nil {
			return err
		}
		if err := g.driver.EndCommandBuffer(st.Frame.Transfer); err != nil {
			return errors.Wrap(err, "end transfer commands")
		}
		st.Phase = PhaseRecorded
		if err := g.driver.EndCommandBuffer(st.Frame.Graphics); err != nil {
			return errors.Wrap(err, "end graphics commands")
		}
		return nil
	}
}

// EndGraphicsFrame submits the transfer work, waiting for the acquired
// image, then the graphics work, waiting for the transfers. The graphics
// submission signals the frame fence.
func EndGraphicsFrame() Op {
	return func(g *GlobalContext, m *resource.Manager, s *assets.Storage, st *State) error {
		if err := st.expect("EndGraphicsFrame", PhaseRecorded); err != nil {
			return err
		}
		frame := st.Frame
		if err := g.driver.Submit(gfx.TransferQueue, gfx.SubmitInfo{
			CommandBuffers: []gfx.CommandBuffer{frame.Transfer},
			Wait:           []gfx.Semaphore{frame.ImageAvailable},
			WaitStages:     []gfx.PipelineStage{gfx.PipelineStageTransfer},
			Signal:         []gfx.Semaphore{frame.TransferCompleted},
		}); err != nil {
			return errors.Wrap(err, "submit transfer")
		}
		st.transferSubmitted = true
		for _, u := range st.uploads {
			u.texture.MarkUploaded(u.image)
		}
		st.uploads = nil

		if err := g.driver.ResetFence(frame.InFlight); err != nil {
			return errors.Wrap(err, "reset frame fence")
		}
		st.fenceReset = true
		if err := g.driver.Submit(gfx.GraphicsQueue, gfx.SubmitInfo{
			CommandBuffers: []gfx.CommandBuffer{frame.Graphics},
			Wait:           []gfx.Semaphore{frame.TransferCompleted},
			WaitStages:     []gfx.PipelineStage{gfx.PipelineStageFragmentShader | gfx.PipelineStageColorAttachmentOutput},
			Signal:         []gfx.Semaphore{frame.RenderCompleted},
			Fence:          frame.InFlight,
		}); err != nil {
			return errors.Wrap(err, "submit graphics")
		}
		st.fenceReset = false
		st.Phase = PhaseFrameEnded
		return nil
	}
}

// Present queues the rendered image for presentation and moves on to the
// next frame context. A suboptimal or out of date swapchain is recreated.
func Present() Op {
	return func(g *GlobalContext, m *resource.Manager, s *assets.Storage, st *State) error {
		if err := st.expect("Present", PhaseFrameEnded); err != nil {
			return err
		}
		result, err := g.driver.Present(gfx.PresentInfo{
			Wait:       []gfx.Semaphore{st.Frame.RenderCompleted},
			Swapchain:  g.swapchain.Swapchain,
			ImageIndex: st.ImageIndex,
		})
		g.advance()
		st.Phase = PhasePresented
		if err != nil {
			return errors.Wrap(err, "present")
		}
		if result.NeedsRecreate() {
			g.log.WithField("result", result).Info("recreating swapchain after present")
			if err := g.RecreateSwapchain(m); err != nil {
				return err
			}
		}
		return nil
	}
}

// abort brings the frame back to a state the next frame can start from.
// Recording command buffers are ended and a fence that was reset but not
// submitted is replaced. A semaphore left signalled without a waiter is
// replaced: the image available one when nothing was submitted, the
// transfer completed one when only the transfer batch was.
func (g *GlobalContext) abort(st *State) {
	if st.Frame == nil || st.Phase == PhaseIdle || st.Phase == PhasePresented {
		return
	}
	frame := st.Frame
	logger := g.log.WithFields(log.Fields{"frame": frame.Index, "phase": st.Phase})

	switch st.Phase {
	case PhaseRecording, PhaseSubpassActive, PhasePassUnbound:
		if st.Phase == PhaseSubpassActive {
			g.driver.CmdEndRenderPass(frame.Graphics)
		}
		for _, cb := range []gfx.CommandBuffer{frame.Transfer, frame.Graphics} {
			if err := g.driver.EndCommandBuffer(cb); err != nil {
				logger.WithError(err).Debug("end command buffer")
			}
		}
	}

	switch {
	case st.transferSubmitted && st.Phase < PhaseFrameEnded:
		// The queued transfer batch consumes the image available
		// semaphore and signals one nothing will wait on.
		if err := g.driver.WaitIdle(); err != nil {
			logger.WithError(err).Warn("wait for transfer batch")
		}
		if err := g.replaceSemaphore(&frame.TransferCompleted); err != nil {
			logger.WithError(err).Warn("replace transfer completed semaphore")
		}
	case st.Phase < PhaseFrameEnded:
		if err := g.replaceSemaphore(&frame.ImageAvailable); err != nil {
			logger.WithError(err).Warn("replace image available semaphore")
		}
	}
	if st.fenceReset {
		if err := g.replaceFence(&frame.InFlight); err != nil {
			logger.WithError(err).Warn("replace frame fence")
		}
	}
	st.reset()
}
