// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package resource

import (
	"github.com/devblok/framegraph/gfx"
	"github.com/pkg/errors"
)

// RenderPassAdapter creates native render passes and keeps their clear values.
type RenderPassAdapter struct{}

// Initialize implements Adapter.
func (RenderPassAdapter) Initialize(desc RenderPassDescription, h *RenderPassHandles, m *Manager, ctx Context) error {
	if len(desc.Subpasses) == 0 {
		return errors.New("render pass without subpasses")
	}
	info := gfx.RenderPassInfo{
		Attachments:  make([]gfx.AttachmentInfo, 0, len(desc.Attachments)),
		Subpasses:    make([]gfx.SubpassInfo, 0, len(desc.Subpasses)),
		Dependencies: desc.SubpassDependencies,
	}
	clears := make([]gfx.ClearValue, 0, len(desc.Attachments))
	for _, a := range desc.Attachments {
		info.Attachments = append(info.Attachments, gfx.AttachmentInfo{
			Format:         a.Format,
			Samples:        orOne(a.Samples),
			LoadOp:         a.LoadOp,
			StoreOp:        a.StoreOp,
			StencilLoadOp:  a.StencilLoadOp,
			StencilStoreOp: a.StencilStoreOp,
			InitialLayout:  a.InitialLayout,
			FinalLayout:    a.FinalLayout,
		})
		clear := a.Clear
		clear.DepthStencil = a.Format.IsDepthStencil()
		clears = append(clears, clear)
	}
	for _, s := range desc.Subpasses {
		for _, ref := range append(append(append([]gfx.AttachmentRef(nil), s.Input...), s.Color...), derefAttachment(s.DepthStencil)...) {
			if int(ref.Attachment) >= len(desc.Attachments) {
				return errors.Errorf("subpass %q references attachment %d of %d", s.Name, ref.Attachment, len(desc.Attachments))
			}
		}
		info.Subpasses = append(info.Subpasses, gfx.SubpassInfo{
			Input:        s.Input,
			Color:        s.Color,
			DepthStencil: s.DepthStencil,
		})
	}

	rp, err := ctx.Driver().CreateRenderPass(info)
	if err != nil {
		return err
	}
	h.RenderPass = rp
	h.ClearValues = clears
	return nil
}

// Deinitialize implements Adapter.
func (RenderPassAdapter) Deinitialize(desc RenderPassDescription, h *RenderPassHandles, m *Manager, ctx Context) error {
	ctx.Driver().DestroyRenderPass(h.RenderPass)
	*h = RenderPassHandles{}
	return nil
}

func derefAttachment(ref *gfx.AttachmentRef) []gfx.AttachmentRef {
	if ref == nil {
		return nil
	}
	return []gfx.AttachmentRef{*ref}
}

// FrameBufferAdapter creates framebuffers over image views.
type FrameBufferAdapter struct{}

// Initialize implements Adapter.
func (FrameBufferAdapter) Initialize(desc FrameBufferDescription, h *FrameBufferHandles, m *Manager, ctx Context) error {
	rp, err := m.RenderPass(desc.RenderPass, ctx)
	if err != nil {
		return err
	}
	if len(desc.Attachments) != len(rp.Description.Attachments) {
		return errors.Errorf("framebuffer has %d attachments, render pass %q expects %d",
			len(desc.Attachments), desc.RenderPass, len(rp.Description.Attachments))
	}

	views := make([]gfx.ImageView, 0, len(desc.Attachments))
	for _, id := range desc.Attachments {
		view, err := m.ImageView(id, ctx)
		if err != nil {
			return err
		}
		views = append(views, view.Handles.View)
	}

	extent := desc.Extent
	if extent.Width == 0 {
		sc := ctx.Swapchain()
		if sc.Swapchain == 0 {
			return errors.New("framebuffer follows the swapchain extent but there is no swapchain")
		}
		extent = sc.Extent
	}

	fb, err := ctx.Driver().CreateFramebuffer(gfx.FramebufferInfo{
		RenderPass:  rp.Handles.RenderPass,
		Attachments: views,
		Extent:      extent,
		Layers:      orOne(desc.Layers),
	})
	if err != nil {
		return err
	}
	h.Framebuffer = fb
	h.Extent = extent
	return nil
}

// Deinitialize implements Adapter.
func (FrameBufferAdapter) Deinitialize(desc FrameBufferDescription, h *FrameBufferHandles, m *Manager, ctx Context) error {
	ctx.Driver().DestroyFramebuffer(h.Framebuffer)
	*h = FrameBufferHandles{}
	return nil
}
