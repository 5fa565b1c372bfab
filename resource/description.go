// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package resource

import "github.com/devblok/framegraph/gfx"

// BufferDescription declares a buffer.
type BufferDescription struct {
	Size        uint64
	Usage       gfx.BufferUsage
	HostVisible bool

	// InitialData is uploaded after creation when set. It requires
	// a host visible buffer.
	InitialData []byte
}

// BufferHandles are the native objects of a buffer.
type BufferHandles struct {
	Buffer gfx.Buffer
}

func (BufferDescription) Kind() Kind                 { return KindBuffer }
func (BufferDescription) Dependencies() []Dependency { return nil }
func (BufferDescription) description()               {}

// BufferViewDescription declares a texel view over a buffer.
type BufferViewDescription struct {
	Buffer ID
	Format gfx.Format
	Offset uint64

	// Range of zero covers the rest of the buffer.
	Range uint64
}

// BufferViewHandles are the native objects of a buffer view.
type BufferViewHandles struct {
	View gfx.BufferView
}

func (BufferViewDescription) Kind() Kind { return KindBufferView }
func (d BufferViewDescription) Dependencies() []Dependency {
	return []Dependency{{ID: d.Buffer, Kind: KindBuffer}}
}
func (BufferViewDescription) description() {}

// ImageBinding is a bitmask declaring how an image is going to be used.
type ImageBinding uint32

// Image binding intents.
const (
	BindSampled ImageBinding = 1 << iota
	BindInputAttachment
	BindCopySource
	BindCopyTarget
	BindColorAttachment
	BindDepthAttachment
	BindPresentSource
)

// Usage derives native usage flags from the binding intents.
func (b ImageBinding) Usage() gfx.ImageUsage {
	var usage gfx.ImageUsage
	if b&BindSampled != 0 {
		usage |= gfx.ImageUsageSampled
	}
	if b&BindInputAttachment != 0 {
		usage |= gfx.ImageUsageInputAttachment
	}
	if b&BindCopySource != 0 {
		usage |= gfx.ImageUsageTransferSrc
	}
	if b&BindCopyTarget != 0 {
		usage |= gfx.ImageUsageTransferDst
	}
	if b&(BindColorAttachment|BindPresentSource) != 0 {
		usage |= gfx.ImageUsageColorAttachment
	}
	if b&BindDepthAttachment != 0 {
		usage |= gfx.ImageUsageDepthStencilAttachment
	}
	return usage
}

// Layout derives the layout the image rests in between uses. Attachment
// intents take precedence over shader reads, which take precedence over copies.
func (b ImageBinding) Layout() gfx.ImageLayout {
	switch {
	case b&BindPresentSource != 0:
		return gfx.LayoutPresentSrc
	case b&BindDepthAttachment != 0:
		return gfx.LayoutDepthStencilAttachment
	case b&BindColorAttachment != 0:
		return gfx.LayoutColorAttachment
	case b&(BindSampled|BindInputAttachment) != 0:
		return gfx.LayoutShaderReadOnly
	case b&BindCopyTarget != 0:
		return gfx.LayoutTransferDst
	case b&BindCopySource != 0:
		return gfx.LayoutTransferSrc
	}
	return gfx.LayoutGeneral
}

// ImageDescription declares an image.
type ImageDescription struct {
	Type   gfx.ImageType
	Format gfx.Format

	// Extent with a zero width follows the swapchain extent.
	Extent      gfx.Extent3D
	MipLevels   uint32
	ArrayLayers uint32
	Samples     uint32
	Cube        bool
	Bindings    ImageBinding

	// Sampler is created alongside the image when set.
	Sampler *gfx.SamplerInfo

	// Clear is the value the image is cleared to when it is
	// first written in a render pass.
	Clear gfx.ClearValue

	// Swapchain marks an image owned by the swapchain. SwapchainIndex
	// selects which one. Such images are borrowed, never destroyed.
	Swapchain      bool
	SwapchainIndex uint32
}

// ImageHandles are the native objects of an image.
type ImageHandles struct {
	Image   gfx.Image
	Sampler gfx.Sampler

	// Format and Extent record what was created, which may differ
	// from the description for swapchain images.
	Format   gfx.Format
	Extent   gfx.Extent3D
	Layout   gfx.ImageLayout
	Borrowed bool
}

func (ImageDescription) Kind() Kind                 { return KindImage }
func (ImageDescription) Dependencies() []Dependency { return nil }
func (ImageDescription) description()               {}

// SwapchainDependent reports whether the image must be recreated with the swapchain.
func (d ImageDescription) SwapchainDependent() bool {
	return d.Swapchain || d.Extent.Width == 0
}

// ImageViewDescription declares a view over an image.
type ImageViewDescription struct {
	Image ID

	// Format of undefined uses the image format.
	Format     gfx.Format
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
}

// ImageViewHandles are the native objects of an image view.
type ImageViewHandles struct {
	View   gfx.ImageView
	Type   gfx.ImageViewType
	Aspect gfx.ImageAspect
	Format gfx.Format
}

func (ImageViewDescription) Kind() Kind { return KindImageView }
func (d ImageViewDescription) Dependencies() []Dependency {
	return []Dependency{{ID: d.Image, Kind: KindImage}}
}
func (ImageViewDescription) description() {}

// AttachmentDescription is one attachment of a render pass.
type AttachmentDescription struct {
	Resource       ID
	Format         gfx.Format
	Samples        uint32
	LoadOp         gfx.LoadOp
	StoreOp        gfx.StoreOp
	StencilLoadOp  gfx.LoadOp
	StencilStoreOp gfx.StoreOp
	InitialLayout  gfx.ImageLayout
	FinalLayout    gfx.ImageLayout
	Clear          gfx.ClearValue
}

// SubpassDescription lists attachment references of one subpass.
type SubpassDescription struct {
	Name         string
	Input        []gfx.AttachmentRef
	Color        []gfx.AttachmentRef
	DepthStencil *gfx.AttachmentRef
}

// RenderPassDescription declares a native render pass.
type RenderPassDescription struct {
	Attachments         []AttachmentDescription
	Subpasses           []SubpassDescription
	SubpassDependencies []gfx.SubpassDependency
}

// RenderPassHandles are the native objects of a render pass.
type RenderPassHandles struct {
	RenderPass  gfx.RenderPass
	ClearValues []gfx.ClearValue
}

func (RenderPassDescription) Kind() Kind { return KindRenderPass }
func (d RenderPassDescription) Dependencies() []Dependency {
	return nil
}
func (RenderPassDescription) description() {}

// FrameBufferDescription declares a framebuffer.
type FrameBufferDescription struct {
	RenderPass  ID
	Attachments []ID

	// Extent with a zero width follows the swapchain extent.
	Extent gfx.Extent2D
	Layers uint32
}

// FrameBufferHandles are the native objects of a framebuffer.
type FrameBufferHandles struct {
	Framebuffer gfx.Framebuffer
	Extent      gfx.Extent2D
}

func (FrameBufferDescription) Kind() Kind { return KindFrameBuffer }
func (d FrameBufferDescription) Dependencies() []Dependency {
	deps := make([]Dependency, 0, len(d.Attachments)+1)
	deps = append(deps, Dependency{ID: d.RenderPass, Kind: KindRenderPass})
	for _, a := range d.Attachments {
		deps = append(deps, Dependency{ID: a, Kind: KindImageView})
	}
	return deps
}
func (FrameBufferDescription) description() {}

// SwapchainDependent reports whether the framebuffer follows the swapchain extent.
func (d FrameBufferDescription) SwapchainDependent() bool {
	return d.Extent.Width == 0
}

// CodeSource provides shader byte code.
type CodeSource interface {
	Code() ([]byte, error)
}

// StaticCode is byte code held in memory.
type StaticCode []byte

// Code implements CodeSource.
func (c StaticCode) Code() ([]byte, error) {
	return c, nil
}

// ShaderStageDescription is one stage of a shader program.
type ShaderStageDescription struct {
	Stage      gfx.ShaderStage
	EntryPoint string
	Source     CodeSource
}

// ShaderModuleDescription declares the stages of a shader program together
// with the interface it exposes.
type ShaderModuleDescription struct {
	Stages []ShaderStageDescription

	// Sets are the descriptor set layouts the shader declares, by set index.
	Sets             [][]gfx.DescriptorBinding
	PushConstants    []gfx.PushConstantRange
	VertexBindings   []gfx.VertexBinding
	VertexAttributes []gfx.VertexAttribute
}

// ShaderModuleHandles are the native objects of a shader program,
// one module per stage.
type ShaderModuleHandles struct {
	Modules []gfx.ShaderModule
}

func (ShaderModuleDescription) Kind() Kind                 { return KindShaderModule }
func (ShaderModuleDescription) Dependencies() []Dependency { return nil }
func (ShaderModuleDescription) description()               {}

// PipelineLayoutDescription declares a pipeline layout. Descriptor set
// layouts of Base come first and are shared with it, followed by the sets
// owned by this layout: Sets when given, otherwise those of ShaderModule
// past the ones Base provides.
type PipelineLayoutDescription struct {
	Base          ID
	ShaderModule  ID
	Sets          [][]gfx.DescriptorBinding
	PushConstants []gfx.PushConstantRange
}

// PipelineLayoutHandles are the native objects of a pipeline layout.
type PipelineLayoutHandles struct {
	Layout        gfx.PipelineLayout
	SystemSets    []gfx.DescriptorSetLayout
	OwnedSets     []gfx.DescriptorSetLayout
	OwnedBindings [][]gfx.DescriptorBinding
	PushConstants []gfx.PushConstantRange
}

func (PipelineLayoutDescription) Kind() Kind { return KindPipelineLayout }
func (d PipelineLayoutDescription) Dependencies() []Dependency {
	var deps []Dependency
	if d.Base != "" {
		deps = append(deps, Dependency{ID: d.Base, Kind: KindPipelineLayout})
	}
	if d.ShaderModule != "" {
		deps = append(deps, Dependency{ID: d.ShaderModule, Kind: KindShaderModule})
	}
	return deps
}
func (PipelineLayoutDescription) description() {}

// PipelineDescription declares a graphics pipeline.
type PipelineDescription struct {
	Layout       ID
	RenderPass   ID
	ShaderModule ID
	Subpass      uint32

	Topology         gfx.Topology
	CullMode         gfx.CullMode
	ClockwiseFront   bool
	DepthTest        bool
	DepthWrite       bool
	ColorAttachments uint32
	Blend            bool
}

// PipelineHandles are the native objects of a pipeline.
type PipelineHandles struct {
	Pipeline gfx.Pipeline
	Layout   gfx.PipelineLayout
}

func (PipelineDescription) Kind() Kind { return KindPipeline }
func (d PipelineDescription) Dependencies() []Dependency {
	return []Dependency{
		{ID: d.Layout, Kind: KindPipelineLayout},
		{ID: d.RenderPass, Kind: KindRenderPass},
		{ID: d.ShaderModule, Kind: KindShaderModule},
	}
}
func (PipelineDescription) description() {}

// DescriptorPoolDescription declares a descriptor pool sized for the sets
// a pipeline layout owns, with SetsPerLayout copies of each.
type DescriptorPoolDescription struct {
	Layout        ID
	SetsPerLayout uint32
}

// DescriptorPoolHandles are the native objects of a descriptor pool.
// Sets holds SetsPerLayout groups of the owned set layouts, group after group.
type DescriptorPoolHandles struct {
	Pool     gfx.DescriptorPool
	Sets     []gfx.DescriptorSet
	Layout   gfx.PipelineLayout
	FirstSet uint32
	Group    int

	// Bound holds, per copy of the sets, the handles last written into
	// it. A nil entry was never written.
	Bound [][]gfx.Handle
}

func (DescriptorPoolDescription) Kind() Kind { return KindDescriptorPool }
func (d DescriptorPoolDescription) Dependencies() []Dependency {
	return []Dependency{{ID: d.Layout, Kind: KindPipelineLayout}}
}
func (DescriptorPoolDescription) description() {}

// SetGroup returns the sets of copy n.
func (h DescriptorPoolHandles) SetGroup(n int) []gfx.DescriptorSet {
	if h.Group == 0 || len(h.Sets) == 0 {
		return nil
	}
	n = h.Copy(n)
	return h.Sets[n*h.Group : (n+1)*h.Group]
}

// Copies returns how many copies of the set group the pool holds.
func (h DescriptorPoolHandles) Copies() int {
	if h.Group == 0 {
		return 0
	}
	return len(h.Sets) / h.Group
}

// Copy maps a frame index onto one of the copies.
func (h DescriptorPoolHandles) Copy(n int) int {
	copies := h.Copies()
	if copies == 0 {
		return 0
	}
	return n % copies
}

// WrittenWith reports whether copy n was last written with exactly the
// handles in bound.
func (h DescriptorPoolHandles) WrittenWith(n int, bound []gfx.Handle) bool {
	n = h.Copy(n)
	if n >= len(h.Bound) || h.Bound[n] == nil || len(h.Bound[n]) != len(bound) {
		return false
	}
	for i := range bound {
		if h.Bound[n][i] != bound[i] {
			return false
		}
	}
	return true
}

// MarkWritten records the handles copy n was written with.
func (h *DescriptorPoolHandles) MarkWritten(n int, bound []gfx.Handle) {
	if h.Copies() == 0 {
		return
	}
	n = h.Copy(n)
	if len(h.Bound) < h.Copies() {
		h.Bound = append(h.Bound, make([][]gfx.Handle, h.Copies()-len(h.Bound))...)
	}
	h.Bound[n] = append([]gfx.Handle{}, bound...)
}
