// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pass

import (
	"github.com/pkg/errors"

	"github.com/devblok/framegraph/gfx"
	"github.com/devblok/framegraph/resource"
)

// DescriptionLookup resolves resource descriptions.
// *resource.Manager satisfies it.
type DescriptionLookup interface {
	Lookup(id resource.ID) (resource.Description, bool)
}

// image follows a view to its image and returns the format the
// attachment is going to have.
func image(lookup DescriptionLookup, id resource.ID, swapchainFormat gfx.Format) (resource.ImageDescription, gfx.Format, error) {
	desc, ok := lookup.Lookup(id)
	if !ok {
		return resource.ImageDescription{}, gfx.FormatUndefined, errors.Wrapf(ErrUnknownResourceReference, "attachment %q", id)
	}
	var format gfx.Format
	if view, ok := desc.(resource.ImageViewDescription); ok {
		format = view.Format
		if desc, ok = lookup.Lookup(view.Image); !ok {
			return resource.ImageDescription{}, gfx.FormatUndefined, errors.Wrapf(ErrUnknownResourceReference, "image %q of attachment %q", view.Image, id)
		}
	}
	img, ok := desc.(resource.ImageDescription)
	if !ok {
		return resource.ImageDescription{}, gfx.FormatUndefined, errors.Wrapf(resource.ErrKindMismatch, "attachment %q is a %s", id, desc.Kind())
	}
	if format == gfx.FormatUndefined {
		format = img.Format
	}
	if format == gfx.FormatUndefined && img.Swapchain {
		format = swapchainFormat
	}
	return img, format, nil
}

func finalLayout(img resource.ImageDescription, format gfx.Format) gfx.ImageLayout {
	switch {
	case img.Bindings&resource.BindPresentSource != 0:
		return gfx.LayoutPresentSrc
	case img.Bindings&(resource.BindSampled|resource.BindInputAttachment) != 0:
		if format.HasDepth() {
			return gfx.LayoutDepthStencilReadOnly
		}
		return gfx.LayoutShaderReadOnly
	case format.HasDepth():
		return gfx.LayoutDepthStencilAttachment
	}
	return gfx.LayoutColorAttachment
}

// Describe synthesizes the native render pass of p. Only references used
// as attachments become render pass attachments. An attachment first
// written in the pass is cleared, anything else is loaded. Subpasses and
// their dependencies follow execution order.
func (p *RenderPass) Describe(lookup DescriptionLookup, swapchainFormat gfx.Format) (resource.RenderPassDescription, error) {
	sorted, err := p.TopologicallySortedSubpasses()
	if err != nil {
		return resource.RenderPassDescription{}, err
	}

	var desc resource.RenderPassDescription
	index := make(map[resource.ID]uint32)
	formats := make(map[resource.ID]gfx.Format)
	for _, a := range p.attachments {
		if !a.Usage.Attachment() {
			continue
		}
		img, format, err := image(lookup, a.ID, swapchainFormat)
		if err != nil {
			return resource.RenderPassDescription{}, errors.Wrapf(err, "render pass %q", p.UID)
		}

		ad := resource.AttachmentDescription{
			Resource:       a.ID,
			Format:         format,
			Samples:        img.Samples,
			LoadOp:         gfx.LoadOpLoad,
			StoreOp:        gfx.StoreOpStore,
			StencilLoadOp:  gfx.LoadOpDontCare,
			StencilStoreOp: gfx.StoreOpDontCare,
			InitialLayout:  img.Bindings.Layout(),
			FinalLayout:    finalLayout(img, format),
			Clear:          img.Clear,
		}
		if a.FirstWrite {
			ad.LoadOp = gfx.LoadOpClear
			ad.InitialLayout = gfx.LayoutUndefined
		}
		if format.HasStencil() {
			ad.StencilLoadOp = ad.LoadOp
			ad.StencilStoreOp = ad.StoreOp
		}
		index[a.ID] = uint32(len(desc.Attachments))
		formats[a.ID] = format
		desc.Attachments = append(desc.Attachments, ad)
	}

	for _, s := range sorted {
		sd := resource.SubpassDescription{Name: s.Name}
		for _, r := range s.Reads {
			idx, ok := index[r.ID]
			if !ok {
				continue
			}
			if r.Usage&UsageInputAttachment != 0 {
				layout := gfx.LayoutShaderReadOnly
				if formats[r.ID].HasDepth() {
					layout = gfx.LayoutDepthStencilReadOnly
				}
				sd.Input = append(sd.Input, gfx.AttachmentRef{Attachment: idx, Layout: layout})
			}
			if r.Usage&UsageDepthAttachment != 0 && !s.WritesResource(r.ID) {
				sd.DepthStencil = &gfx.AttachmentRef{Attachment: idx, Layout: gfx.LayoutDepthStencilReadOnly}
			}
		}
		for _, w := range s.Writes {
			idx, ok := index[w.ID]
			if !ok {
				continue
			}
			if w.Usage&UsageColorAttachment != 0 {
				sd.Color = append(sd.Color, gfx.AttachmentRef{Attachment: idx, Layout: gfx.LayoutColorAttachment})
			}
			if w.Usage&UsageDepthAttachment != 0 {
				sd.DepthStencil = &gfx.AttachmentRef{Attachment: idx, Layout: gfx.LayoutDepthStencilAttachment}
			}
		}
		desc.Subpasses = append(desc.Subpasses, sd)
	}

	desc.SubpassDependencies = append(desc.SubpassDependencies, gfx.SubpassDependency{
		Src:       gfx.SubpassExternal,
		Dst:       0,
		SrcStage:  gfx.PipelineStageColorAttachmentOutput | gfx.PipelineStageLateFragmentTests,
		DstStage:  gfx.PipelineStageColorAttachmentOutput | gfx.PipelineStageEarlyFragmentTests,
		DstAccess: gfx.AccessColorAttachmentWrite | gfx.AccessDepthStencilAttachmentWrite,
	})
	position := make(map[SubpassID]uint32, len(sorted))
	for i, s := range sorted {
		position[s.UID] = uint32(i)
	}
	for _, e := range p.graph.Edges() {
		from, to := p.graph.Node(e.From), p.graph.Node(e.To)
		desc.SubpassDependencies = append(desc.SubpassDependencies, gfx.SubpassDependency{
			Src:       position[from],
			Dst:       position[to],
			SrcStage:  gfx.PipelineStageColorAttachmentOutput | gfx.PipelineStageLateFragmentTests,
			DstStage:  gfx.PipelineStageFragmentShader,
			SrcAccess: gfx.AccessColorAttachmentWrite | gfx.AccessDepthStencilAttachmentWrite,
			DstAccess: gfx.AccessInputAttachmentRead | gfx.AccessShaderRead,
		})
	}
	return desc, nil
}
