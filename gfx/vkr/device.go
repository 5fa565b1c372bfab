// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"time"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/framegraph/core"
	"github.com/devblok/framegraph/gfx"
)

type buffer struct {
	buffer vk.Buffer
	memory Memory
}

func (b *buffer) destroy(d *Driver) {
	vk.DestroyBuffer(d.cfg.Device, b.buffer, nil)
	b.memory.Release()
}

type bufferView struct{ view vk.BufferView }

func (v *bufferView) destroy(d *Driver) { vk.DestroyBufferView(d.cfg.Device, v.view, nil) }

type image struct {
	image  vk.Image
	memory Memory

	// owned by a swapchain
	presentable bool
}

func (i *image) destroy(d *Driver) {
	if i.presentable {
		return
	}
	vk.DestroyImage(d.cfg.Device, i.image, nil)
	i.memory.Release()
}

type sampler struct{ sampler vk.Sampler }

func (s *sampler) destroy(d *Driver) { vk.DestroySampler(d.cfg.Device, s.sampler, nil) }

type imageView struct{ view vk.ImageView }

func (v *imageView) destroy(d *Driver) { vk.DestroyImageView(d.cfg.Device, v.view, nil) }

type renderPass struct{ pass vk.RenderPass }

func (p *renderPass) destroy(d *Driver) { vk.DestroyRenderPass(d.cfg.Device, p.pass, nil) }

type framebuffer struct{ framebuffer vk.Framebuffer }

func (f *framebuffer) destroy(d *Driver) { vk.DestroyFramebuffer(d.cfg.Device, f.framebuffer, nil) }

type shaderModule struct{ module vk.ShaderModule }

func (m *shaderModule) destroy(d *Driver) { vk.DestroyShaderModule(d.cfg.Device, m.module, nil) }

type setLayout struct{ layout vk.DescriptorSetLayout }

func (l *setLayout) destroy(d *Driver) { vk.DestroyDescriptorSetLayout(d.cfg.Device, l.layout, nil) }

type pipelineLayout struct{ layout vk.PipelineLayout }

func (l *pipelineLayout) destroy(d *Driver) { vk.DestroyPipelineLayout(d.cfg.Device, l.layout, nil) }

type pipeline struct{ pipeline vk.Pipeline }

func (p *pipeline) destroy(d *Driver) { vk.DestroyPipeline(d.cfg.Device, p.pipeline, nil) }

type descriptorPool struct {
	pool vk.DescriptorPool
	sets []gfx.Handle
}

func (p *descriptorPool) destroy(d *Driver) { vk.DestroyDescriptorPool(d.cfg.Device, p.pool, nil) }

// descriptorSet is freed together with its pool.
type descriptorSet struct{ set vk.DescriptorSet }

func (*descriptorSet) destroy(*Driver) {}

type semaphore struct{ semaphore vk.Semaphore }

func (s *semaphore) destroy(d *Driver) { vk.DestroySemaphore(d.cfg.Device, s.semaphore, nil) }

type fence struct{ fence vk.Fence }

func (f *fence) destroy(d *Driver) { vk.DestroyFence(d.cfg.Device, f.fence, nil) }

// CreateBuffer implements gfx.Device.
func (d *Driver) CreateBuffer(info gfx.BufferInfo) (gfx.Buffer, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       vkBufferUsage(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var native vk.Buffer
	if err := check("vk.CreateBuffer()", vk.CreateBuffer(d.cfg.Device, &createInfo, nil, &native)); err != nil {
		return 0, err
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.cfg.Device, native, &req)
	req.Deref()

	memory, err := d.allocator.Malloc(req, memoryProperties(info.HostVisible))
	if err != nil {
		vk.DestroyBuffer(d.cfg.Device, native, nil)
		return 0, err
	}
	if err := check("vk.BindBufferMemory()", vk.BindBufferMemory(d.cfg.Device, native, memory.Get(), 0)); err != nil {
		vk.DestroyBuffer(d.cfg.Device, native, nil)
		memory.Release()
		return 0, err
	}
	return gfx.Buffer(d.objects.put(&buffer{buffer: native, memory: memory})), nil
}

// DestroyBuffer implements gfx.Device.
func (d *Driver) DestroyBuffer(b gfx.Buffer) {
	if o, ok := take[*buffer](d.objects, gfx.Handle(b)); ok {
		o.destroy(d)
	}
}

// WriteBuffer implements gfx.Device.
func (d *Driver) WriteBuffer(b gfx.Buffer, offset uint64, data []byte) error {
	o, ok := lookup[*buffer](d.objects, gfx.Handle(b))
	if !ok {
		return errors.Wrapf(ErrInvalidHandle, "buffer %d", b)
	}
	return o.memory.Write(offset, data)
}

// CreateBufferView implements gfx.Device.
func (d *Driver) CreateBufferView(info gfx.BufferViewInfo) (gfx.BufferView, error) {
	b, ok := lookup[*buffer](d.objects, gfx.Handle(info.Buffer))
	if !ok {
		return 0, errors.Wrapf(ErrInvalidHandle, "buffer %d", info.Buffer)
	}
	size := vk.DeviceSize(info.Range)
	if size == 0 {
		size = vk.DeviceSize(vk.MaxUint64)
	}
	createInfo := vk.BufferViewCreateInfo{
		SType:  vk.StructureTypeBufferViewCreateInfo,
		Buffer: b.buffer,
		Format: vkFormat(info.Format),
		Offset: vk.DeviceSize(info.Offset),
		Range:  size,
	}
	var view vk.BufferView
	if err := check("vk.CreateBufferView()", vk.CreateBufferView(d.cfg.Device, &createInfo, nil, &view)); err != nil {
		return 0, err
	}
	return gfx.BufferView(d.objects.put(&bufferView{view: view})), nil
}

// DestroyBufferView implements gfx.Device.
func (d *Driver) DestroyBufferView(v gfx.BufferView) {
	if o, ok := take[*bufferView](d.objects, gfx.Handle(v)); ok {
		o.destroy(d)
	}
}

// CreateImage implements gfx.Device. Images always start out undefined;
// the requested layout is reached through barriers or render passes.
func (d *Driver) CreateImage(info gfx.ImageInfo) (gfx.Image, error) {
	createInfo := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vkImageType(info.Type),
		Format:        vkFormat(info.Format),
		Extent:        vkExtent3D(info.Extent),
		MipLevels:     orOne(info.MipLevels),
		ArrayLayers:   orOne(info.ArrayLayers),
		Samples:       vkSamples(info.Samples),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vkImageUsage(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if info.CubeCompatible {
		createInfo.Flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}
	var native vk.Image
	if err := check("vk.CreateImage()", vk.CreateImage(d.cfg.Device, &createInfo, nil, &native)); err != nil {
		return 0, err
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.cfg.Device, native, &req)
	req.Deref()

	memory, err := d.allocator.Malloc(req, memoryProperties(false))
	if err != nil {
		vk.DestroyImage(d.cfg.Device, native, nil)
		return 0, err
	}
	if err := check("vk.BindImageMemory()", vk.BindImageMemory(d.cfg.Device, native, memory.Get(), 0)); err != nil {
		vk.DestroyImage(d.cfg.Device, native, nil)
		memory.Release()
		return 0, err
	}
	return gfx.Image(d.objects.put(&image{image: native, memory: memory})), nil
}

// DestroyImage implements gfx.Device. Swapchain images are left to
// their swapchain.
func (d *Driver) DestroyImage(i gfx.Image) {
	o, ok := lookup[*image](d.objects, gfx.Handle(i))
	if !ok || o.presentable {
		return
	}
	if o, ok := take[*image](d.objects, gfx.Handle(i)); ok {
		o.destroy(d)
	}
}

// CreateSampler implements gfx.Device.
func (d *Driver) CreateSampler(info gfx.SamplerInfo) (gfx.Sampler, error) {
	address := vkAddressMode(info.AddressMode)
	createInfo := vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        vkFilter(info.MagFilter),
		MinFilter:        vkFilter(info.MinFilter),
		MipmapMode:       vkMipmapMode(info.MinFilter),
		AddressModeU:     address,
		AddressModeV:     address,
		AddressModeW:     address,
		AnisotropyEnable: vkBool(info.MaxAnisotropy > 1),
		MaxAnisotropy:    info.MaxAnisotropy,
		CompareOp:        vk.CompareOpAlways,
		MaxLod:           info.MaxLod,
		BorderColor:      vk.BorderColorIntOpaqueBlack,
	}
	var native vk.Sampler
	if err := check("vk.CreateSampler()", vk.CreateSampler(d.cfg.Device, &createInfo, nil, &native)); err != nil {
		return 0, err
	}
	return gfx.Sampler(d.objects.put(&sampler{sampler: native})), nil
}

// DestroySampler implements gfx.Device.
func (d *Driver) DestroySampler(s gfx.Sampler) {
	if o, ok := take[*sampler](d.objects, gfx.Handle(s)); ok {
		o.destroy(d)
	}
}

// CreateImageView implements gfx.Device.
func (d *Driver) CreateImageView(info gfx.ImageViewInfo) (gfx.ImageView, error) {
	img, ok := lookup[*image](d.objects, gfx.Handle(info.Image))
	if !ok {
		return 0, errors.Wrapf(ErrInvalidHandle, "image %d", info.Image)
	}
	aspect := info.Aspect
	if aspect == 0 {
		aspect = info.Format.Aspect()
	}
	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.image,
		ViewType: vkViewType(info.Type),
		Format:   vkFormat(info.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vkAspect(aspect),
			BaseMipLevel:   info.BaseMip,
			LevelCount:     orOne(info.MipCount),
			BaseArrayLayer: info.BaseLayer,
			LayerCount:     orOne(info.LayerCount),
		},
	}
	var view vk.ImageView
	if err := check("vk.CreateImageView()", vk.CreateImageView(d.cfg.Device, &createInfo, nil, &view)); err != nil {
		return 0, err
	}
	return gfx.ImageView(d.objects.put(&imageView{view: view})), nil
}

// DestroyImageView implements gfx.Device.
func (d *Driver) DestroyImageView(v gfx.ImageView) {
	if o, ok := take[*imageView](d.objects, gfx.Handle(v)); ok {
		o.destroy(d)
	}
}

func attachmentRefs(refs []gfx.AttachmentRef) []vk.AttachmentReference {
	if len(refs) == 0 {
		return nil
	}
	out := make([]vk.AttachmentReference, 0, len(refs))
	for _, ref := range refs {
		out = append(out, vk.AttachmentReference{
			Attachment: ref.Attachment,
			Layout:     vkLayout(ref.Layout),
		})
	}
	return out
}

// renderPassCreateInfo converts info without touching the device.
func renderPassCreateInfo(info gfx.RenderPassInfo) vk.RenderPassCreateInfo {
	attachments := make([]vk.AttachmentDescription, 0, len(info.Attachments))
	for _, a := range info.Attachments {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         vkFormat(a.Format),
			Samples:        vkSamples(a.Samples),
			LoadOp:         vkLoadOp(a.LoadOp),
			StoreOp:        vkStoreOp(a.StoreOp),
			StencilLoadOp:  vkLoadOp(a.StencilLoadOp),
			StencilStoreOp: vkStoreOp(a.StencilStoreOp),
			InitialLayout:  vkLayout(a.InitialLayout),
			FinalLayout:    vkLayout(a.FinalLayout),
		})
	}

	subpasses := make([]vk.SubpassDescription, 0, len(info.Subpasses))
	for _, sp := range info.Subpasses {
		desc := vk.SubpassDescription{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			InputAttachmentCount: uint32(len(sp.Input)),
			PInputAttachments:    attachmentRefs(sp.Input),
			ColorAttachmentCount: uint32(len(sp.Color)),
			PColorAttachments:    attachmentRefs(sp.Color),
		}
		if sp.DepthStencil != nil {
			desc.PDepthStencilAttachment = &vk.AttachmentReference{
				Attachment: sp.DepthStencil.Attachment,
				Layout:     vkLayout(sp.DepthStencil.Layout),
			}
		}
		subpasses = append(subpasses, desc)
	}

	dependencies := make([]vk.SubpassDependency, 0, len(info.Dependencies))
	for _, dep := range info.Dependencies {
		dependencies = append(dependencies, vk.SubpassDependency{
			SrcSubpass:    dep.Src,
			DstSubpass:    dep.Dst,
			SrcStageMask:  vkPipelineStages(dep.SrcStage),
			DstStageMask:  vkPipelineStages(dep.DstStage),
			SrcAccessMask: vkAccess(dep.SrcAccess),
			DstAccessMask: vkAccess(dep.DstAccess),
		})
	}

	return vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}
}

// CreateRenderPass implements gfx.Device.
func (d *Driver) CreateRenderPass(info gfx.RenderPassInfo) (gfx.RenderPass, error) {
	createInfo := renderPassCreateInfo(info)
	var native vk.RenderPass
	if err := check("vk.CreateRenderPass()", vk.CreateRenderPass(d.cfg.Device, &createInfo, nil, &native)); err != nil {
		return 0, err
	}
	return gfx.RenderPass(d.objects.put(&renderPass{pass: native})), nil
}

// DestroyRenderPass implements gfx.Device.
func (d *Driver) DestroyRenderPass(rp gfx.RenderPass) {
	if o, ok := take[*renderPass](d.objects, gfx.Handle(rp)); ok {
		o.destroy(d)
	}
}

// CreateFramebuffer implements gfx.Device.
func (d *Driver) CreateFramebuffer(info gfx.FramebufferInfo) (gfx.Framebuffer, error) {
	rp, ok := lookup[*renderPass](d.objects, gfx.Handle(info.RenderPass))
	if !ok {
		return 0, errors.Wrapf(ErrInvalidHandle, "render pass %d", info.RenderPass)
	}
	views := make([]vk.ImageView, 0, len(info.Attachments))
	for _, a := range info.Attachments {
		v, ok := lookup[*imageView](d.objects, gfx.Handle(a))
		if !ok {
			return 0, errors.Wrapf(ErrInvalidHandle, "image view %d", a)
		}
		views = append(views, v.view)
	}
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.pass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           info.Extent.Width,
		Height:          info.Extent.Height,
		Layers:          orOne(info.Layers),
	}
	var native vk.Framebuffer
	if err := check("vk.CreateFramebuffer()", vk.CreateFramebuffer(d.cfg.Device, &createInfo, nil, &native)); err != nil {
		return 0, err
	}
	return gfx.Framebuffer(d.objects.put(&framebuffer{framebuffer: native})), nil
}

// DestroyFramebuffer implements gfx.Device.
func (d *Driver) DestroyFramebuffer(fb gfx.Framebuffer) {
	if o, ok := take[*framebuffer](d.objects, gfx.Handle(fb)); ok {
		o.destroy(d)
	}
}

// CreateShaderModule implements gfx.Device.
func (d *Driver) CreateShaderModule(code []byte) (gfx.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return 0, errors.Errorf("vkr: shader byte code of %d bytes is not SPIR-V", len(code))
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    core.SliceUint32(code),
	}
	var native vk.ShaderModule
	if err := check("vk.CreateShaderModule()", vk.CreateShaderModule(d.cfg.Device, &createInfo, nil, &native)); err != nil {
		return 0, err
	}
	return gfx.ShaderModule(d.objects.put(&shaderModule{module: native})), nil
}

// DestroyShaderModule implements gfx.Device.
func (d *Driver) DestroyShaderModule(sm gfx.ShaderModule) {
	if o, ok := take[*shaderModule](d.objects, gfx.Handle(sm)); ok {
		o.destroy(d)
	}
}

// CreateDescriptorSetLayout implements gfx.Device.
func (d *Driver) CreateDescriptorSetLayout(info gfx.DescriptorSetLayoutInfo) (gfx.DescriptorSetLayout, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, 0, len(info.Bindings))
	for _, b := range info.Bindings {
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vkDescriptorType(b.Type),
			DescriptorCount: orOne(b.Count),
			StageFlags:      vkShaderStages(b.Stages),
		})
	}
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var native vk.DescriptorSetLayout
	if err := check("vk.CreateDescriptorSetLayout()",
		vk.CreateDescriptorSetLayout(d.cfg.Device, &createInfo, nil, &native)); err != nil {
		return 0, err
	}
	return gfx.DescriptorSetLayout(d.objects.put(&setLayout{layout: native})), nil
}

// DestroyDescriptorSetLayout implements gfx.Device.
func (d *Driver) DestroyDescriptorSetLayout(l gfx.DescriptorSetLayout) {
	if o, ok := take[*setLayout](d.objects, gfx.Handle(l)); ok {
		o.destroy(d)
	}
}

func (d *Driver) setLayouts(layouts []gfx.DescriptorSetLayout) ([]vk.DescriptorSetLayout, error) {
	out := make([]vk.DescriptorSetLayout, 0, len(layouts))
	for _, l := range layouts {
		o, ok := lookup[*setLayout](d.objects, gfx.Handle(l))
		if !ok {
			return nil, errors.Wrapf(ErrInvalidHandle, "descriptor set layout %d", l)
		}
		out = append(out, o.layout)
	}
	return out, nil
}

// CreatePipelineLayout implements gfx.Device.
func (d *Driver) CreatePipelineLayout(info gfx.PipelineLayoutInfo) (gfx.PipelineLayout, error) {
	layouts, err := d.setLayouts(info.SetLayouts)
	if err != nil {
		return 0, err
	}
	ranges := make([]vk.PushConstantRange, 0, len(info.PushConstants))
	for _, r := range info.PushConstants {
		ranges = append(ranges, vk.PushConstantRange{
			StageFlags: vkShaderStages(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		})
	}
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(layouts)),
		PSetLayouts:            layouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}
	var native vk.PipelineLayout
	if err := check("vk.CreatePipelineLayout()", vk.CreatePipelineLayout(d.cfg.Device, &createInfo, nil, &native)); err != nil {
		return 0, err
	}
	return gfx.PipelineLayout(d.objects.put(&pipelineLayout{layout: native})), nil
}

// DestroyPipelineLayout implements gfx.Device.
func (d *Driver) DestroyPipelineLayout(l gfx.PipelineLayout) {
	if o, ok := take[*pipelineLayout](d.objects, gfx.Handle(l)); ok {
		o.destroy(d)
	}
}

// CreateGraphicsPipeline implements gfx.Device. Viewport and scissor are
// dynamic state.
func (d *Driver) CreateGraphicsPipeline(info gfx.GraphicsPipelineInfo) (gfx.Pipeline, error) {
	layout, ok := lookup[*pipelineLayout](d.objects, gfx.Handle(info.Layout))
	if !ok {
		return 0, errors.Wrapf(ErrInvalidHandle, "pipeline layout %d", info.Layout)
	}
	rp, ok := lookup[*renderPass](d.objects, gfx.Handle(info.RenderPass))
	if !ok {
		return 0, errors.Wrapf(ErrInvalidHandle, "render pass %d", info.RenderPass)
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, 0, len(info.Stages))
	for _, s := range info.Stages {
		module, ok := lookup[*shaderModule](d.objects, gfx.Handle(s.Module))
		if !ok {
			return 0, errors.Wrapf(ErrInvalidHandle, "shader module %d", s.Module)
		}
		entry := s.EntryPoint
		if entry == "" {
			entry = "main"
		}
		stages = append(stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFlagBits(vkShaderStages(s.Stage)),
			Module: module.module,
			PName:  core.SafeString(entry),
		})
	}

	createInfo := graphicsPipelineCreateInfo(info)
	createInfo.StageCount = uint32(len(stages))
	createInfo.PStages = stages
	createInfo.Layout = layout.layout
	createInfo.RenderPass = rp.pass

	natives := make([]vk.Pipeline, 1)
	if err := check("vk.CreateGraphicsPipelines()", vk.CreateGraphicsPipelines(d.cfg.Device,
		d.pipelineCache, 1, []vk.GraphicsPipelineCreateInfo{createInfo}, nil, natives)); err != nil {
		return 0, err
	}
	return gfx.Pipeline(d.objects.put(&pipeline{pipeline: natives[0]})), nil
}

// graphicsPipelineCreateInfo converts the fixed function state of info.
func graphicsPipelineCreateInfo(info gfx.GraphicsPipelineInfo) vk.GraphicsPipelineCreateInfo {
	bindings := make([]vk.VertexInputBindingDescription, 0, len(info.VertexBindings))
	for _, b := range info.VertexBindings {
		rate := vk.VertexInputRateVertex
		if b.PerInstance {
			rate = vk.VertexInputRateInstance
		}
		bindings = append(bindings, vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: rate,
		})
	}
	attributes := make([]vk.VertexInputAttributeDescription, 0, len(info.VertexAttributes))
	for _, a := range info.VertexAttributes {
		attributes = append(attributes, vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   vkFormat(a.Format),
			Offset:   a.Offset,
		})
	}

	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, info.ColorAttachments)
	for idx := range blendAttachments {
		blendAttachments[idx] = vk.PipelineColorBlendAttachmentState{
			ColorWriteMask: 0xF,
			BlendEnable:    vkBool(info.Blend),
		}
		if info.Blend {
			blendAttachments[idx].SrcColorBlendFactor = vk.BlendFactorSrcAlpha
			blendAttachments[idx].DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			blendAttachments[idx].ColorBlendOp = vk.BlendOpAdd
			blendAttachments[idx].SrcAlphaBlendFactor = vk.BlendFactorOne
			blendAttachments[idx].DstAlphaBlendFactor = vk.BlendFactorZero
			blendAttachments[idx].AlphaBlendOp = vk.BlendOpAdd
		}
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}

	return vk.GraphicsPipelineCreateInfo{
		SType: vk.StructureTypeGraphicsPipelineCreateInfo,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(bindings)),
			PVertexBindingDescriptions:      bindings,
			VertexAttributeDescriptionCount: uint32(len(attributes)),
			PVertexAttributeDescriptions:    attributes,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vkTopology(info.Topology),
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vkCullMode(info.CullMode),
			FrontFace:   vkFrontFace(info.ClockwiseFront),
			LineWidth:   1.0,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  vkBool(info.DepthTest),
			DepthWriteEnable: vkBool(info.DepthWrite),
			DepthCompareOp:   vk.CompareOpLessOrEqual,
			MaxDepthBounds:   1.0,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			LogicOp:         vk.LogicOpCopy,
			AttachmentCount: uint32(len(blendAttachments)),
			PAttachments:    blendAttachments,
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(dynamicStates)),
			PDynamicStates:    dynamicStates,
		},
		Subpass: info.Subpass,
	}
}

// DestroyPipeline implements gfx.Device.
func (d *Driver) DestroyPipeline(p gfx.Pipeline) {
	if o, ok := take[*pipeline](d.objects, gfx.Handle(p)); ok {
		o.destroy(d)
	}
}

// CreateDescriptorPool implements gfx.Device.
func (d *Driver) CreateDescriptorPool(info gfx.DescriptorPoolInfo) (gfx.DescriptorPool, error) {
	sizes := make([]vk.DescriptorPoolSize, 0, len(info.Sizes))
	for _, s := range info.Sizes {
		sizes = append(sizes, vk.DescriptorPoolSize{
			Type:            vkDescriptorType(s.Type),
			DescriptorCount: s.Count,
		})
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       info.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var native vk.DescriptorPool
	if err := check("vk.CreateDescriptorPool()", vk.CreateDescriptorPool(d.cfg.Device, &createInfo, nil, &native)); err != nil {
		return 0, err
	}
	return gfx.DescriptorPool(d.objects.put(&descriptorPool{pool: native})), nil
}

// DestroyDescriptorPool implements gfx.Device.
func (d *Driver) DestroyDescriptorPool(p gfx.DescriptorPool) {
	o, ok := take[*descriptorPool](d.objects, gfx.Handle(p))
	if !ok {
		return
	}
	for _, set := range o.sets {
		take[*descriptorSet](d.objects, set)
	}
	o.destroy(d)
}

// AllocateDescriptorSets implements gfx.Device.
func (d *Driver) AllocateDescriptorSets(pool gfx.DescriptorPool, layouts []gfx.DescriptorSetLayout) ([]gfx.DescriptorSet, error) {
	p, ok := lookup[*descriptorPool](d.objects, gfx.Handle(pool))
	if !ok {
		return nil, errors.Wrapf(ErrInvalidHandle, "descriptor pool %d", pool)
	}
	natives, err := d.setLayouts(layouts)
	if err != nil {
		return nil, err
	}
	sets := make([]vk.DescriptorSet, len(natives))
	for idx := range natives {
		dsai := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     p.pool,
			DescriptorSetCount: 1,
			PSetLayouts:        natives[idx : idx+1],
		}
		if err := check("vk.AllocateDescriptorSets()", vk.AllocateDescriptorSets(d.cfg.Device, &dsai, &sets[idx])); err != nil {
			return nil, err
		}
	}
	out := make([]gfx.DescriptorSet, 0, len(sets))
	for _, set := range sets {
		h := d.objects.put(&descriptorSet{set: set})
		p.sets = append(p.sets, h)
		out = append(out, gfx.DescriptorSet(h))
	}
	return out, nil
}

// UpdateDescriptorSets implements gfx.Device. Writes naming dead handles
// are dropped with a warning.
func (d *Driver) UpdateDescriptorSets(writes []gfx.DescriptorWrite) {
	natives := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		native, err := d.descriptorWrite(w)
		if err != nil {
			d.log.WithError(err).Warn("descriptor write dropped")
			continue
		}
		natives = append(natives, native)
	}
	if len(natives) > 0 {
		vk.UpdateDescriptorSets(d.cfg.Device, uint32(len(natives)), natives, 0, nil)
	}
}

func (d *Driver) descriptorWrite(w gfx.DescriptorWrite) (vk.WriteDescriptorSet, error) {
	set, ok := lookup[*descriptorSet](d.objects, gfx.Handle(w.Set))
	if !ok {
		return vk.WriteDescriptorSet{}, errors.Wrapf(ErrInvalidHandle, "descriptor set %d", w.Set)
	}
	native := vk.WriteDescriptorSet{
		SType:          vk.StructureTypeWriteDescriptorSet,
		DstSet:         set.set,
		DstBinding:     w.Binding,
		DescriptorType: vkDescriptorType(w.Type),
	}
	if len(w.Buffers) > 0 {
		infos := make([]vk.DescriptorBufferInfo, 0, len(w.Buffers))
		for _, b := range w.Buffers {
			o, ok := lookup[*buffer](d.objects, gfx.Handle(b.Buffer))
			if !ok {
				return vk.WriteDescriptorSet{}, errors.Wrapf(ErrInvalidHandle, "buffer %d", b.Buffer)
			}
			size := vk.DeviceSize(b.Range)
			if size == 0 {
				size = vk.DeviceSize(vk.MaxUint64)
			}
			infos = append(infos, vk.DescriptorBufferInfo{
				Buffer: o.buffer,
				Offset: vk.DeviceSize(b.Offset),
				Range:  size,
			})
		}
		native.DescriptorCount = uint32(len(infos))
		native.PBufferInfo = infos
		return native, nil
	}

	infos := make([]vk.DescriptorImageInfo, 0, len(w.Images))
	for _, i := range w.Images {
		info := vk.DescriptorImageInfo{ImageLayout: vkLayout(i.Layout)}
		if i.Sampler != 0 {
			s, ok := lookup[*sampler](d.objects, gfx.Handle(i.Sampler))
			if !ok {
				return vk.WriteDescriptorSet{}, errors.Wrapf(ErrInvalidHandle, "sampler %d", i.Sampler)
			}
			info.Sampler = s.sampler
		}
		if i.View != 0 {
			v, ok := lookup[*imageView](d.objects, gfx.Handle(i.View))
			if !ok {
				return vk.WriteDescriptorSet{}, errors.Wrapf(ErrInvalidHandle, "image view %d", i.View)
			}
			info.ImageView = v.view
		}
		infos = append(infos, info)
	}
	native.DescriptorCount = uint32(len(infos))
	native.PImageInfo = infos
	return native, nil
}

// WaitIdle implements gfx.Device.
func (d *Driver) WaitIdle() error {
	return check("vk.DeviceWaitIdle()", vk.DeviceWaitIdle(d.cfg.Device))
}

// CreateSemaphore implements gfx.Sync.
func (d *Driver) CreateSemaphore() (gfx.Semaphore, error) {
	createInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var native vk.Semaphore
	if err := check("vk.CreateSemaphore()", vk.CreateSemaphore(d.cfg.Device, &createInfo, nil, &native)); err != nil {
		return 0, err
	}
	return gfx.Semaphore(d.objects.put(&semaphore{semaphore: native})), nil
}

// DestroySemaphore implements gfx.Sync.
func (d *Driver) DestroySemaphore(s gfx.Semaphore) {
	if o, ok := take[*semaphore](d.objects, gfx.Handle(s)); ok {
		o.destroy(d)
	}
}

// CreateFence implements gfx.Sync.
func (d *Driver) CreateFence(signaled bool) (gfx.Fence, error) {
	createInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		createInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var native vk.Fence
	if err := check("vk.CreateFence()", vk.CreateFence(d.cfg.Device, &createInfo, nil, &native)); err != nil {
		return 0, err
	}
	return gfx.Fence(d.objects.put(&fence{fence: native})), nil
}

// DestroyFence implements gfx.Sync.
func (d *Driver) DestroyFence(f gfx.Fence) {
	if o, ok := take[*fence](d.objects, gfx.Handle(f)); ok {
		o.destroy(d)
	}
}

// WaitFence implements gfx.Sync.
func (d *Driver) WaitFence(f gfx.Fence, timeout time.Duration) error {
	o, ok := lookup[*fence](d.objects, gfx.Handle(f))
	if !ok {
		return errors.Wrapf(ErrInvalidHandle, "fence %d", f)
	}
	res := vk.WaitForFences(d.cfg.Device, 1, []vk.Fence{o.fence}, vk.True, timeoutNanos(timeout))
	if res == vk.Timeout {
		return gfx.ErrTimeout
	}
	return check("vk.WaitForFences()", res)
}

// timeoutNanos treats a negative timeout as infinite.
func timeoutNanos(timeout time.Duration) uint64 {
	if timeout < 0 {
		return vk.MaxUint64
	}
	return uint64(timeout.Nanoseconds())
}

// ResetFence implements gfx.Sync.
func (d *Driver) ResetFence(f gfx.Fence) error {
	o, ok := lookup[*fence](d.objects, gfx.Handle(f))
	if !ok {
		return errors.Wrapf(ErrInvalidHandle, "fence %d", f)
	}
	return check("vk.ResetFences()", vk.ResetFences(d.cfg.Device, 1, []vk.Fence{o.fence}))
}
