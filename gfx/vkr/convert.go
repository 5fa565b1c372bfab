// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/framegraph/gfx"
)

var formats = map[gfx.Format]vk.Format{
	gfx.FormatUndefined:          vk.FormatUndefined,
	gfx.FormatR8Unorm:            vk.FormatR8Unorm,
	gfx.FormatR8G8B8A8Unorm:      vk.FormatR8g8b8a8Unorm,
	gfx.FormatR8G8B8A8Srgb:       vk.FormatR8g8b8a8Srgb,
	gfx.FormatB8G8R8A8Unorm:      vk.FormatB8g8r8a8Unorm,
	gfx.FormatB8G8R8A8Srgb:       vk.FormatB8g8r8a8Srgb,
	gfx.FormatR16G16B16A16Sfloat: vk.FormatR16g16b16a16Sfloat,
	gfx.FormatR32Sfloat:          vk.FormatR32Sfloat,
	gfx.FormatR32G32Sfloat:       vk.FormatR32g32Sfloat,
	gfx.FormatR32G32B32Sfloat:    vk.FormatR32g32b32Sfloat,
	gfx.FormatR32G32B32A32Sfloat: vk.FormatR32g32b32a32Sfloat,
	gfx.FormatD16Unorm:           vk.FormatD16Unorm,
	gfx.FormatD32Sfloat:          vk.FormatD32Sfloat,
	gfx.FormatS8Uint:             vk.FormatS8Uint,
	gfx.FormatD24UnormS8Uint:     vk.FormatD24UnormS8Uint,
	gfx.FormatD32SfloatS8Uint:    vk.FormatD32SfloatS8Uint,
}

func vkFormat(f gfx.Format) vk.Format {
	return formats[f]
}

// gfxFormat maps a native format back, reporting false for formats the
// renderer does not know.
func gfxFormat(f vk.Format) (gfx.Format, bool) {
	for g, n := range formats {
		if n == f && g != gfx.FormatUndefined {
			return g, true
		}
	}
	return gfx.FormatUndefined, false
}

func vkColorSpace(gfx.ColorSpace) vk.ColorSpace {
	return vk.ColorSpaceSrgbNonlinear
}

// mask translates every set bit of v through table.
func mask[T ~uint32](v T, table map[T]uint32) uint32 {
	var out uint32
	for bit, native := range table {
		if v&bit != 0 {
			out |= native
		}
	}
	return out
}

var bufferUsages = map[gfx.BufferUsage]uint32{
	gfx.BufferUsageTransferSrc:  uint32(vk.BufferUsageTransferSrcBit),
	gfx.BufferUsageTransferDst:  uint32(vk.BufferUsageTransferDstBit),
	gfx.BufferUsageUniformTexel: uint32(vk.BufferUsageUniformTexelBufferBit),
	gfx.BufferUsageStorageTexel: uint32(vk.BufferUsageStorageTexelBufferBit),
	gfx.BufferUsageUniform:      uint32(vk.BufferUsageUniformBufferBit),
	gfx.BufferUsageStorage:      uint32(vk.BufferUsageStorageBufferBit),
	gfx.BufferUsageIndex:        uint32(vk.BufferUsageIndexBufferBit),
	gfx.BufferUsageVertex:       uint32(vk.BufferUsageVertexBufferBit),
}

var imageUsages = map[gfx.ImageUsage]uint32{
	gfx.ImageUsageTransferSrc:            uint32(vk.ImageUsageTransferSrcBit),
	gfx.ImageUsageTransferDst:            uint32(vk.ImageUsageTransferDstBit),
	gfx.ImageUsageSampled:                uint32(vk.ImageUsageSampledBit),
	gfx.ImageUsageStorage:                uint32(vk.ImageUsageStorageBit),
	gfx.ImageUsageColorAttachment:        uint32(vk.ImageUsageColorAttachmentBit),
	gfx.ImageUsageDepthStencilAttachment: uint32(vk.ImageUsageDepthStencilAttachmentBit),
	gfx.ImageUsageTransientAttachment:    uint32(vk.ImageUsageTransientAttachmentBit),
	gfx.ImageUsageInputAttachment:        uint32(vk.ImageUsageInputAttachmentBit),
}

var aspects = map[gfx.ImageAspect]uint32{
	gfx.AspectColor:   uint32(vk.ImageAspectColorBit),
	gfx.AspectDepth:   uint32(vk.ImageAspectDepthBit),
	gfx.AspectStencil: uint32(vk.ImageAspectStencilBit),
}

var shaderStages = map[gfx.ShaderStage]uint32{
	gfx.StageVertex:                 uint32(vk.ShaderStageVertexBit),
	gfx.StageTessellationControl:    uint32(vk.ShaderStageTessellationControlBit),
	gfx.StageTessellationEvaluation: uint32(vk.ShaderStageTessellationEvaluationBit),
	gfx.StageGeometry:               uint32(vk.ShaderStageGeometryBit),
	gfx.StageFragment:               uint32(vk.ShaderStageFragmentBit),
	gfx.StageCompute:                uint32(vk.ShaderStageComputeBit),
}

var pipelineStages = map[gfx.PipelineStage]uint32{
	gfx.PipelineStageTopOfPipe:             uint32(vk.PipelineStageTopOfPipeBit),
	gfx.PipelineStageVertexInput:           uint32(vk.PipelineStageVertexInputBit),
	gfx.PipelineStageVertexShader:          uint32(vk.PipelineStageVertexShaderBit),
	gfx.PipelineStageFragmentShader:        uint32(vk.PipelineStageFragmentShaderBit),
	gfx.PipelineStageEarlyFragmentTests:    uint32(vk.PipelineStageEarlyFragmentTestsBit),
	gfx.PipelineStageLateFragmentTests:     uint32(vk.PipelineStageLateFragmentTestsBit),
	gfx.PipelineStageColorAttachmentOutput: uint32(vk.PipelineStageColorAttachmentOutputBit),
	gfx.PipelineStageTransfer:              uint32(vk.PipelineStageTransferBit),
	gfx.PipelineStageBottomOfPipe:          uint32(vk.PipelineStageBottomOfPipeBit),
}

var accesses = map[gfx.Access]uint32{
	gfx.AccessInputAttachmentRead:         uint32(vk.AccessInputAttachmentReadBit),
	gfx.AccessShaderRead:                  uint32(vk.AccessShaderReadBit),
	gfx.AccessShaderWrite:                 uint32(vk.AccessShaderWriteBit),
	gfx.AccessColorAttachmentRead:         uint32(vk.AccessColorAttachmentReadBit),
	gfx.AccessColorAttachmentWrite:        uint32(vk.AccessColorAttachmentWriteBit),
	gfx.AccessDepthStencilAttachmentRead:  uint32(vk.AccessDepthStencilAttachmentReadBit),
	gfx.AccessDepthStencilAttachmentWrite: uint32(vk.AccessDepthStencilAttachmentWriteBit),
	gfx.AccessTransferRead:                uint32(vk.AccessTransferReadBit),
	gfx.AccessTransferWrite:               uint32(vk.AccessTransferWriteBit),
	gfx.AccessMemoryRead:                  uint32(vk.AccessMemoryReadBit),
}

func vkBufferUsage(u gfx.BufferUsage) vk.BufferUsageFlags {
	return vk.BufferUsageFlags(mask(u, bufferUsages))
}

func vkImageUsage(u gfx.ImageUsage) vk.ImageUsageFlags {
	return vk.ImageUsageFlags(mask(u, imageUsages))
}

func vkAspect(a gfx.ImageAspect) vk.ImageAspectFlags {
	return vk.ImageAspectFlags(mask(a, aspects))
}

func vkShaderStages(s gfx.ShaderStage) vk.ShaderStageFlags {
	return vk.ShaderStageFlags(mask(s, shaderStages))
}

func vkPipelineStages(s gfx.PipelineStage) vk.PipelineStageFlags {
	return vk.PipelineStageFlags(mask(s, pipelineStages))
}

func vkAccess(a gfx.Access) vk.AccessFlags {
	return vk.AccessFlags(mask(a, accesses))
}

func vkLayout(l gfx.ImageLayout) vk.ImageLayout {
	switch l {
	case gfx.LayoutGeneral:
		return vk.ImageLayoutGeneral
	case gfx.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case gfx.LayoutDepthStencilAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case gfx.LayoutDepthStencilReadOnly:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case gfx.LayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case gfx.LayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case gfx.LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case gfx.LayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

func vkImageType(t gfx.ImageType) vk.ImageType {
	switch t {
	case gfx.ImageType1D:
		return vk.ImageType1d
	case gfx.ImageType3D:
		return vk.ImageType3d
	}
	return vk.ImageType2d
}

func vkViewType(t gfx.ImageViewType) vk.ImageViewType {
	switch t {
	case gfx.ViewType1D:
		return vk.ImageViewType1d
	case gfx.ViewType3D:
		return vk.ImageViewType3d
	case gfx.ViewTypeCube:
		return vk.ImageViewTypeCube
	case gfx.ViewType1DArray:
		return vk.ImageViewType1dArray
	case gfx.ViewType2DArray:
		return vk.ImageViewType2dArray
	case gfx.ViewTypeCubeArray:
		return vk.ImageViewTypeCubeArray
	}
	return vk.ImageViewType2d
}

func vkDescriptorType(t gfx.DescriptorType) vk.DescriptorType {
	switch t {
	case gfx.DescriptorSampler:
		return vk.DescriptorTypeSampler
	case gfx.DescriptorCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	case gfx.DescriptorSampledImage:
		return vk.DescriptorTypeSampledImage
	case gfx.DescriptorStorageImage:
		return vk.DescriptorTypeStorageImage
	case gfx.DescriptorUniformTexelBuffer:
		return vk.DescriptorTypeUniformTexelBuffer
	case gfx.DescriptorStorageTexelBuffer:
		return vk.DescriptorTypeStorageTexelBuffer
	case gfx.DescriptorStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case gfx.DescriptorUniformBufferDynamic:
		return vk.DescriptorTypeUniformBufferDynamic
	case gfx.DescriptorStorageBufferDynamic:
		return vk.DescriptorTypeStorageBufferDynamic
	case gfx.DescriptorInputAttachment:
		return vk.DescriptorTypeInputAttachment
	}
	return vk.DescriptorTypeUniformBuffer
}

func vkLoadOp(op gfx.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case gfx.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	case gfx.LoadOpClear:
		return vk.AttachmentLoadOpClear
	}
	return vk.AttachmentLoadOpDontCare
}

func vkStoreOp(op gfx.StoreOp) vk.AttachmentStoreOp {
	if op == gfx.StoreOpStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

func vkTopology(t gfx.Topology) vk.PrimitiveTopology {
	switch t {
	case gfx.TopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case gfx.TopologyLineList:
		return vk.PrimitiveTopologyLineList
	case gfx.TopologyPointList:
		return vk.PrimitiveTopologyPointList
	}
	return vk.PrimitiveTopologyTriangleList
}

func vkCullMode(m gfx.CullMode) vk.CullModeFlags {
	switch m {
	case gfx.CullFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case gfx.CullBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

func vkFrontFace(clockwise bool) vk.FrontFace {
	if clockwise {
		return vk.FrontFaceClockwise
	}
	return vk.FrontFaceCounterClockwise
}

func vkFilter(f gfx.Filter) vk.Filter {
	if f == gfx.FilterLinear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

func vkMipmapMode(f gfx.Filter) vk.SamplerMipmapMode {
	if f == gfx.FilterLinear {
		return vk.SamplerMipmapModeLinear
	}
	return vk.SamplerMipmapModeNearest
}

func vkAddressMode(m gfx.AddressMode) vk.SamplerAddressMode {
	switch m {
	case gfx.AddressMirroredRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	case gfx.AddressClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case gfx.AddressClampToBorder:
		return vk.SamplerAddressModeClampToBorder
	}
	return vk.SamplerAddressModeRepeat
}

func vkIndexType(t gfx.IndexType) vk.IndexType {
	if t == gfx.IndexUint16 {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}

// vkSamples treats zero as a single sample.
func vkSamples(n uint32) vk.SampleCountFlagBits {
	switch n {
	case 2:
		return vk.SampleCount2Bit
	case 4:
		return vk.SampleCount4Bit
	case 8:
		return vk.SampleCount8Bit
	case 16:
		return vk.SampleCount16Bit
	}
	return vk.SampleCount1Bit
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

func vkExtent2D(e gfx.Extent2D) vk.Extent2D {
	return vk.Extent2D{Width: e.Width, Height: e.Height}
}

func vkExtent3D(e gfx.Extent3D) vk.Extent3D {
	depth := e.Depth
	if depth == 0 {
		depth = 1
	}
	return vk.Extent3D{Width: e.Width, Height: e.Height, Depth: depth}
}

func vkRect(r gfx.Rect2D) vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: r.X, Y: r.Y},
		Extent: vkExtent2D(r.Extent),
	}
}

// orOne replaces a zero count with one.
func orOne(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	return n
}

// result maps the non-error results of acquire and present.
func result(r vk.Result) (gfx.Result, bool) {
	switch r {
	case vk.Success:
		return gfx.Success, true
	case vk.Suboptimal:
		return gfx.Suboptimal, true
	case vk.ErrorOutOfDate:
		return gfx.OutOfDate, true
	case vk.NotReady, vk.Timeout:
		return gfx.NotReady, true
	}
	return gfx.Success, false
}

// check returns nil on success and a gfx.NativeError otherwise.
func check(op string, res vk.Result) error {
	if res == vk.Success {
		return nil
	}
	return gfx.NewNativeError(op, int32(res), resultMessage(res))
}

func resultMessage(res vk.Result) string {
	if err := vk.Error(res); err != nil {
		return err.Error()
	}
	return ""
}
