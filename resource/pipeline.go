// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package resource

import (
	"sort"

	"github.com/devblok/framegraph/gfx"
	"github.com/pkg/errors"
)

// ShaderModuleAdapter creates one shader module per stage.
type ShaderModuleAdapter struct{}

// Initialize implements Adapter.
func (ShaderModuleAdapter) Initialize(desc ShaderModuleDescription, h *ShaderModuleHandles, m *Manager, ctx Context) error {
	if len(desc.Stages) == 0 {
		return errors.New("shader without stages")
	}
	drv := ctx.Driver()
	for _, stage := range desc.Stages {
		if stage.Source == nil {
			return errors.Errorf("stage %#x has no byte code source", stage.Stage)
		}
		code, err := stage.Source.Code()
		if err != nil {
			return errors.Wrapf(err, "load byte code of stage %#x", stage.Stage)
		}
		module, err := drv.CreateShaderModule(code)
		if err != nil {
			return err
		}
		h.Modules = append(h.Modules, module)
	}
	return nil
}

// Deinitialize implements Adapter.
func (ShaderModuleAdapter) Deinitialize(desc ShaderModuleDescription, h *ShaderModuleHandles, m *Manager, ctx Context) error {
	drv := ctx.Driver()
	for _, module := range h.Modules {
		drv.DestroyShaderModule(module)
	}
	h.Modules = nil
	return nil
}

// PipelineLayoutAdapter creates pipeline layouts. Descriptor set layouts
// of the base layout are shared, the rest are owned.
type PipelineLayoutAdapter struct{}

// Initialize implements Adapter.
func (PipelineLayoutAdapter) Initialize(desc PipelineLayoutDescription, h *PipelineLayoutHandles, m *Manager, ctx Context) error {
	var system []gfx.DescriptorSetLayout
	if desc.Base != "" {
		base, err := m.PipelineLayout(desc.Base, ctx)
		if err != nil {
			return err
		}
		system = append(system, base.Handles.SystemSets...)
		system = append(system, base.Handles.OwnedSets...)
	}

	owned := desc.Sets
	pushConstants := desc.PushConstants
	if desc.ShaderModule != "" {
		shader, err := m.ShaderModule(desc.ShaderModule, ctx)
		if err != nil {
			return err
		}
		if len(owned) == 0 && len(shader.Description.Sets) > len(system) {
			owned = shader.Description.Sets[len(system):]
		}
		if len(pushConstants) == 0 {
			pushConstants = shader.Description.PushConstants
		}
	}

	drv := ctx.Driver()
	h.SystemSets = system
	for _, bindings := range owned {
		layout, err := drv.CreateDescriptorSetLayout(gfx.DescriptorSetLayoutInfo{Bindings: bindings})
		if err != nil {
			return errors.Wrap(err, "create descriptor set layout")
		}
		h.OwnedSets = append(h.OwnedSets, layout)
		h.OwnedBindings = append(h.OwnedBindings, bindings)
	}

	sets := make([]gfx.DescriptorSetLayout, 0, len(system)+len(h.OwnedSets))
	sets = append(sets, system...)
	sets = append(sets, h.OwnedSets...)
	layout, err := drv.CreatePipelineLayout(gfx.PipelineLayoutInfo{
		SetLayouts:    sets,
		PushConstants: pushConstants,
	})
	if err != nil {
		return err
	}
	h.Layout = layout
	h.PushConstants = pushConstants
	return nil
}

// Deinitialize implements Adapter. Only the owned set layouts are destroyed.
func (PipelineLayoutAdapter) Deinitialize(desc PipelineLayoutDescription, h *PipelineLayoutHandles, m *Manager, ctx Context) error {
	drv := ctx.Driver()
	drv.DestroyPipelineLayout(h.Layout)
	for _, layout := range h.OwnedSets {
		drv.DestroyDescriptorSetLayout(layout)
	}
	*h = PipelineLayoutHandles{}
	return nil
}

// PipelineAdapter creates graphics pipelines.
type PipelineAdapter struct{}

// Initialize implements Adapter.
func (PipelineAdapter) Initialize(desc PipelineDescription, h *PipelineHandles, m *Manager, ctx Context) error {
	layout, err := m.PipelineLayout(desc.Layout, ctx)
	if err != nil {
		return err
	}
	rp, err := m.RenderPass(desc.RenderPass, ctx)
	if err != nil {
		return err
	}
	shader, err := m.ShaderModule(desc.ShaderModule, ctx)
	if err != nil {
		return err
	}
	if int(desc.Subpass) >= len(rp.Description.Subpasses) {
		return errors.Errorf("subpass %d outside of render pass %q", desc.Subpass, desc.RenderPass)
	}

	stages := make([]gfx.ShaderStageInfo, 0, len(shader.Handles.Modules))
	for i, stage := range shader.Description.Stages {
		entry := stage.EntryPoint
		if entry == "" {
			entry = "main"
		}
		stages = append(stages, gfx.ShaderStageInfo{
			Stage:      stage.Stage,
			Module:     shader.Handles.Modules[i],
			EntryPoint: entry,
		})
	}

	colors := desc.ColorAttachments
	if colors == 0 {
		colors = uint32(len(rp.Description.Subpasses[desc.Subpass].Color))
	}
	pipeline, err := ctx.Driver().CreateGraphicsPipeline(gfx.GraphicsPipelineInfo{
		Layout:           layout.Handles.Layout,
		RenderPass:       rp.Handles.RenderPass,
		Subpass:          desc.Subpass,
		Stages:           stages,
		VertexBindings:   shader.Description.VertexBindings,
		VertexAttributes: shader.Description.VertexAttributes,
		Topology:         desc.Topology,
		CullMode:         desc.CullMode,
		ClockwiseFront:   desc.ClockwiseFront,
		DepthTest:        desc.DepthTest,
		DepthWrite:       desc.DepthWrite,
		ColorAttachments: colors,
		Blend:            desc.Blend,
	})
	if err != nil {
		return err
	}
	h.Pipeline = pipeline
	h.Layout = layout.Handles.Layout
	return nil
}

// Deinitialize implements Adapter.
func (PipelineAdapter) Deinitialize(desc PipelineDescription, h *PipelineHandles, m *Manager, ctx Context) error {
	ctx.Driver().DestroyPipeline(h.Pipeline)
	*h = PipelineHandles{}
	return nil
}

// PoolSizes aggregates descriptor counts by type over the bindings of
// every set, multiplied by copies. Sizes are ordered by descriptor type.
func PoolSizes(sets [][]gfx.DescriptorBinding, copies uint32) []gfx.DescriptorPoolSize {
	counts := make(map[gfx.DescriptorType]uint32)
	for _, bindings := range sets {
		for _, b := range bindings {
			counts[b.Type] += orOne(b.Count) * copies
		}
	}
	sizes := make([]gfx.DescriptorPoolSize, 0, len(counts))
	for t, n := range counts {
		sizes = append(sizes, gfx.DescriptorPoolSize{Type: t, Count: n})
	}
	sort.Slice(sizes, func(i, j int) bool {
		return sizes[i].Type < sizes[j].Type
	})
	return sizes
}

// DescriptorPoolAdapter creates a descriptor pool for the sets a pipeline
// layout owns and allocates them.
type DescriptorPoolAdapter struct{}

// Initialize implements Adapter.
func (DescriptorPoolAdapter) Initialize(desc DescriptorPoolDescription, h *DescriptorPoolHandles, m *Manager, ctx Context) error {
	layout, err := m.PipelineLayout(desc.Layout, ctx)
	if err != nil {
		return err
	}
	owned := layout.Handles.OwnedSets
	if len(owned) == 0 {
		return errors.Errorf("pipeline layout %q owns no descriptor sets", desc.Layout)
	}
	copies := orOne(desc.SetsPerLayout)

	drv := ctx.Driver()
	pool, err := drv.CreateDescriptorPool(gfx.DescriptorPoolInfo{
		MaxSets: uint32(len(owned)) * copies,
		Sizes:   PoolSizes(layout.Handles.OwnedBindings, copies),
	})
	if err != nil {
		return err
	}
	h.Pool = pool

	layouts := make([]gfx.DescriptorSetLayout, 0, len(owned)*int(copies))
	for i := uint32(0); i < copies; i++ {
		layouts = append(layouts, owned...)
	}
	sets, err := drv.AllocateDescriptorSets(pool, layouts)
	if err != nil {
		return errors.Wrap(err, "allocate descriptor sets")
	}
	h.Sets = sets
	h.Layout = layout.Handles.Layout
	h.FirstSet = uint32(len(layout.Handles.SystemSets))
	h.Group = len(owned)
	return nil
}

// Deinitialize implements Adapter. Sets are freed with the pool.
func (DescriptorPoolAdapter) Deinitialize(desc DescriptorPoolDescription, h *DescriptorPoolHandles, m *Manager, ctx Context) error {
	ctx.Driver().DestroyDescriptorPool(h.Pool)
	*h = DescriptorPoolHandles{}
	return nil
}
