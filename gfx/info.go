// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// BufferUsage is a bitmask of buffer usages.
type BufferUsage uint32

// Buffer usage bits.
const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniformTexel
	BufferUsageStorageTexel
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndex
	BufferUsageVertex
)

// ImageUsage is a bitmask of image usages.
type ImageUsage uint32

// Image usage bits.
const (
	ImageUsageTransferSrc ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageDepthStencilAttachment
	ImageUsageTransientAttachment
	ImageUsageInputAttachment
)

// ImageLayout is the memory layout an image is in.
type ImageLayout int

// Image layouts.
const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutDepthStencilReadOnly
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresentSrc
)

// ImageType is the dimensionality of an image.
type ImageType int

// Image dimensionalities. The zero value is 2D.
const (
	ImageType2D ImageType = iota
	ImageType1D
	ImageType3D
)

// ImageViewType is the kind of view over an image.
type ImageViewType int

// Image view types.
const (
	ViewType1D ImageViewType = iota
	ViewType2D
	ViewType3D
	ViewTypeCube
	ViewType1DArray
	ViewType2DArray
	ViewTypeCubeArray
)

// ImageAspect is a bitmask of image aspects.
type ImageAspect uint32

// Image aspect bits.
const (
	AspectColor ImageAspect = 1 << iota
	AspectDepth
	AspectStencil
)

// ShaderStage is a bitmask of shader stages.
type ShaderStage uint32

// Shader stage bits.
const (
	StageVertex ShaderStage = 1 << iota
	StageTessellationControl
	StageTessellationEvaluation
	StageGeometry
	StageFragment
	StageCompute

	StageAllGraphics = StageVertex | StageTessellationControl | StageTessellationEvaluation |
		StageGeometry | StageFragment
)

// DescriptorType is the type of a descriptor binding.
type DescriptorType int

// Descriptor types.
const (
	DescriptorSampler DescriptorType = iota
	DescriptorCombinedImageSampler
	DescriptorSampledImage
	DescriptorStorageImage
	DescriptorUniformTexelBuffer
	DescriptorStorageTexelBuffer
	DescriptorUniformBuffer
	DescriptorStorageBuffer
	DescriptorUniformBufferDynamic
	DescriptorStorageBufferDynamic
	DescriptorInputAttachment
)

// LoadOp describes what happens to attachment contents at pass start.
type LoadOp int

// Load operations.
const (
	LoadOpDontCare LoadOp = iota
	LoadOpLoad
	LoadOpClear
)

// StoreOp describes what happens to attachment contents at pass end.
type StoreOp int

// Store operations.
const (
	StoreOpDontCare StoreOp = iota
	StoreOpStore
)

// PipelineStage is a bitmask of pipeline stages used for synchronization.
type PipelineStage uint32

// Pipeline stage bits.
const (
	PipelineStageTopOfPipe PipelineStage = 1 << iota
	PipelineStageVertexInput
	PipelineStageVertexShader
	PipelineStageFragmentShader
	PipelineStageEarlyFragmentTests
	PipelineStageLateFragmentTests
	PipelineStageColorAttachmentOutput
	PipelineStageTransfer
	PipelineStageBottomOfPipe
)

// Access is a bitmask of memory access types.
type Access uint32

// Access bits.
const (
	AccessInputAttachmentRead Access = 1 << iota
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessTransferRead
	AccessTransferWrite
	AccessMemoryRead
)

// IndexType is the width of indices in an index buffer.
type IndexType int

// Index widths.
const (
	IndexUint16 IndexType = iota
	IndexUint32
)

// Size returns the byte size of a single index.
func (t IndexType) Size() uint32 {
	if t == IndexUint16 {
		return 2
	}
	return 4
}

// Topology is the primitive topology of a pipeline.
type Topology int

// Primitive topologies.
const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
	TopologyLineList
	TopologyPointList
)

// CullMode selects faces to cull.
type CullMode int

// Cull modes.
const (
	CullNone CullMode = iota
	CullFront
	CullBack
)

// Filter is a sampler filter mode.
type Filter int

// Filters.
const (
	FilterNearest Filter = iota
	FilterLinear
)

// AddressMode is a sampler addressing mode.
type AddressMode int

// Address modes.
const (
	AddressRepeat AddressMode = iota
	AddressMirroredRepeat
	AddressClampToEdge
	AddressClampToBorder
)

// SubpassExternal refers to operations outside of the render pass.
const SubpassExternal = ^uint32(0)

// Extent2D is a two dimensional size.
type Extent2D struct {
	Width, Height uint32
}

// Extent3D is a three dimensional size.
type Extent3D struct {
	Width, Height, Depth uint32
}

// Rect2D is an area with an offset.
type Rect2D struct {
	X, Y   int32
	Extent Extent2D
}

// Viewport describes the viewport transform.
type Viewport struct {
	X, Y, Width, Height, MinDepth, MaxDepth float32
}

// BufferInfo describes a buffer to create.
type BufferInfo struct {
	Size  uint64
	Usage BufferUsage

	// HostVisible places the buffer in host-visible, coherent memory.
	HostVisible bool
}

// BufferViewInfo describes a texel view over a buffer.
type BufferViewInfo struct {
	Buffer Buffer
	Format Format
	Offset uint64
	Range  uint64
}

// ImageInfo describes an image to create.
type ImageInfo struct {
	Type           ImageType
	Format         Format
	Extent         Extent3D
	MipLevels      uint32
	ArrayLayers    uint32
	Samples        uint32
	Usage          ImageUsage
	InitialLayout  ImageLayout
	CubeCompatible bool
}

// SamplerInfo describes a sampler.
type SamplerInfo struct {
	MagFilter     Filter
	MinFilter     Filter
	AddressMode   AddressMode
	MaxAnisotropy float32
	MaxLod        float32
}

// ImageViewInfo describes a view over an image.
type ImageViewInfo struct {
	Image      Image
	Type       ImageViewType
	Format     Format
	Aspect     ImageAspect
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
}

// AttachmentInfo describes a single render pass attachment.
type AttachmentInfo struct {
	Format         Format
	Samples        uint32
	LoadOp         LoadOp
	StoreOp        StoreOp
	StencilLoadOp  LoadOp
	StencilStoreOp StoreOp
	InitialLayout  ImageLayout
	FinalLayout    ImageLayout
}

// AttachmentRef refers to an attachment from within a subpass.
type AttachmentRef struct {
	Attachment uint32
	Layout     ImageLayout
}

// SubpassInfo lists the attachments a subpass uses.
type SubpassInfo struct {
	Input        []AttachmentRef
	Color        []AttachmentRef
	DepthStencil *AttachmentRef
}

// SubpassDependency is an execution and memory dependency between subpasses.
type SubpassDependency struct {
	Src, Dst             uint32
	SrcStage, DstStage   PipelineStage
	SrcAccess, DstAccess Access
}

// RenderPassInfo describes a render pass.
type RenderPassInfo struct {
	Attachments  []AttachmentInfo
	Subpasses    []SubpassInfo
	Dependencies []SubpassDependency
}

// FramebufferInfo describes a framebuffer.
type FramebufferInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent2D
	Layers      uint32
}

// DescriptorBinding is a single binding in a descriptor set layout.
type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

// DescriptorSetLayoutInfo describes a descriptor set layout.
type DescriptorSetLayoutInfo struct {
	Bindings []DescriptorBinding
}

// PushConstantRange is a range of push constants visible to stages.
type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

// PipelineLayoutInfo describes a pipeline layout.
type PipelineLayoutInfo struct {
	SetLayouts    []DescriptorSetLayout
	PushConstants []PushConstantRange
}

// ShaderStageInfo is one programmable stage of a pipeline.
type ShaderStageInfo struct {
	Stage      ShaderStage
	Module     ShaderModule
	EntryPoint string
}

// VertexBinding describes a vertex buffer binding.
type VertexBinding struct {
	Binding     uint32
	Stride      uint32
	PerInstance bool
}

// VertexAttribute describes a single vertex attribute.
type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

// GraphicsPipelineInfo describes a graphics pipeline.
type GraphicsPipelineInfo struct {
	Layout           PipelineLayout
	RenderPass       RenderPass
	Subpass          uint32
	Stages           []ShaderStageInfo
	VertexBindings   []VertexBinding
	VertexAttributes []VertexAttribute
	Topology         Topology
	CullMode         CullMode
	ClockwiseFront   bool
	DepthTest        bool
	DepthWrite       bool
	ColorAttachments uint32
	Blend            bool
}

// DescriptorPoolSize is the number of descriptors of a type in a pool.
type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

// DescriptorPoolInfo describes a descriptor pool.
type DescriptorPoolInfo struct {
	MaxSets uint32
	Sizes   []DescriptorPoolSize
}

// DescriptorBufferInfo points a descriptor at a buffer range.
type DescriptorBufferInfo struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
}

// DescriptorImageInfo points a descriptor at an image view.
type DescriptorImageInfo struct {
	Sampler Sampler
	View    ImageView
	Layout  ImageLayout
}

// DescriptorWrite updates one binding of a descriptor set.
type DescriptorWrite struct {
	Set     DescriptorSet
	Binding uint32
	Type    DescriptorType
	Buffers []DescriptorBufferInfo
	Images  []DescriptorImageInfo
}

// ClearValue is the clear value of one attachment. DepthStencil selects
// which part of the value is used.
type ClearValue struct {
	Color        [4]float32
	Depth        float32
	Stencil      uint32
	DepthStencil bool
}

// RenderPassBegin describes the start of a render pass instance.
type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Area        Rect2D
	ClearValues []ClearValue
}

// SubmitInfo describes a queue submission.
type SubmitInfo struct {
	CommandBuffers []CommandBuffer
	Wait           []Semaphore
	WaitStages     []PipelineStage
	Signal         []Semaphore

	// Fence is signalled once the submission completes. May be null.
	Fence Fence
}

// PresentInfo describes a presentation request.
type PresentInfo struct {
	Wait       []Semaphore
	Swapchain  Swapchain
	ImageIndex uint32
}

// SwapchainInfo describes a swapchain to create.
type SwapchainInfo struct {
	Extent        Extent2D
	Format        Format
	ColorSpace    ColorSpace
	MinImageCount uint32
	Old           Swapchain
}

// SwapchainState is a created swapchain and the images it owns.
type SwapchainState struct {
	Swapchain  Swapchain
	Images     []Image
	Format     Format
	ColorSpace ColorSpace
	Extent     Extent2D
}

// ImageBarrier transitions the whole of an image between layouts.
type ImageBarrier struct {
	Image                Image
	Aspect               ImageAspect
	OldLayout, NewLayout ImageLayout
	SrcStage, DstStage   PipelineStage
	SrcAccess, DstAccess Access
	MipCount             uint32
	LayerCount           uint32
}

// BufferImageCopy copies tightly packed texels from a buffer into the
// first mip level of an image.
type BufferImageCopy struct {
	BufferOffset uint64
	Aspect       ImageAspect
	Extent       Extent3D
}
