// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render_test

import (
	"fmt"
	"image"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	glm "github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/framegraph/assets"
	"github.com/devblok/framegraph/core"
	"github.com/devblok/framegraph/gfx"
	"github.com/devblok/framegraph/gfx/gfxtest"
	"github.com/devblok/framegraph/model"
	"github.com/devblok/framegraph/pass"
	"github.com/devblok/framegraph/render"
	"github.com/devblok/framegraph/resource"
)

var spirv = resource.StaticCode{0x03, 0x02, 0x23, 0x07, 0, 0, 1, 0}

type scene struct {
	drv *gfxtest.Driver
	g   *render.GlobalContext
	m   *resource.Manager
	s   *assets.Storage
	fg  *pass.FrameGraph
}

func mustRegister(c *qt.C, m *resource.Manager, id resource.ID, desc resource.Description) {
	c.Helper()
	c.Assert(m.Register(id, desc), qt.IsNil)
}

// newScene declares a two subpass render pass drawing a quad into an
// offscreen image and composing it onto the swapchain.
func newScene(c *qt.C) *scene {
	logger := log.New()
	logger.SetLevel(log.DebugLevel)

	drv := gfxtest.New()
	g, err := render.NewGlobalContext(drv, core.RendererConfiguration{
		SwapchainSize:  2,
		ScreenWidth:    640,
		ScreenHeight:   480,
		FramesInFlight: 2,
		FrameTimeout:   10 * time.Millisecond,
	}, render.WithLogger(logger))
	c.Assert(err, qt.IsNil)
	c.Assert(g.CreateSwapchain(gfx.Extent2D{Width: 640, Height: 480}, gfx.FormatB8G8R8A8Unorm, gfx.ColorSpaceSrgbNonlinear), qt.IsNil)

	m := resource.NewManager(resource.WithLogger(logger))
	mustRegister(c, m, "color", resource.ImageDescription{
		Type:     gfx.ImageType2D,
		Format:   gfx.FormatR16G16B16A16Sfloat,
		Bindings: resource.BindColorAttachment | resource.BindInputAttachment,
	})
	mustRegister(c, m, "color/view", resource.ImageViewDescription{Image: "color"})
	for i := 0; i < 2; i++ {
		back := resource.ID(fmt.Sprintf("backbuffer/%d", i))
		mustRegister(c, m, back, resource.ImageDescription{
			Bindings:       resource.BindPresentSource,
			Swapchain:      true,
			SwapchainIndex: uint32(i),
		})
		mustRegister(c, m, back+"/view", resource.ImageViewDescription{Image: back})
	}

	rp := pass.NewRenderPass("scene", "Scene")
	c.Assert(rp.AddSubpass(pass.NewSubpass("geometry", "Geometry").
		Write("color/view", pass.UsageColorAttachment)), qt.IsNil)
	c.Assert(rp.AddSubpass(pass.NewSubpass("compose", "Compose").
		Read("color/view", pass.UsageInputAttachment).
		Write("backbuffer/0/view", pass.UsageColorAttachment)), qt.IsNil)
	b := pass.NewBuilder(m)
	c.Assert(b.AddPass(rp), qt.IsNil)
	fg, err := b.Build()
	c.Assert(err, qt.IsNil)
	c.Assert(render.DeclareRenderPasses(fg, m, g), qt.IsNil)

	for i := 0; i < 2; i++ {
		mustRegister(c, m, resource.ID(fmt.Sprintf("fb/%d", i)), resource.FrameBufferDescription{
			RenderPass:  "scene",
			Attachments: []resource.ID{"color/view", resource.ID(fmt.Sprintf("backbuffer/%d/view", i))},
		})
	}
	mustRegister(c, m, "shader", resource.ShaderModuleDescription{
		Stages: []resource.ShaderStageDescription{
			{Stage: gfx.StageVertex, Source: spirv},
			{Stage: gfx.StageFragment, Source: spirv},
		},
		Sets: [][]gfx.DescriptorBinding{
			{{Binding: 0, Type: gfx.DescriptorUniformBuffer, Stages: gfx.StageVertex}},
		},
		PushConstants:    []gfx.PushConstantRange{{Stages: gfx.StageVertex, Size: model.PushConstantSize}},
		VertexBindings:   model.VertexBindings(),
		VertexAttributes: model.VertexAttributes(),
	})
	mustRegister(c, m, "layout", resource.PipelineLayoutDescription{ShaderModule: "shader"})
	mustRegister(c, m, "geometry-pipeline", resource.PipelineDescription{
		Layout:       "layout",
		RenderPass:   "scene",
		ShaderModule: "shader",
	})
	mustRegister(c, m, "compose-pipeline", resource.PipelineDescription{
		Layout:       "layout",
		RenderPass:   "scene",
		ShaderModule: "shader",
		Subpass:      1,
	})
	mustRegister(c, m, "pool", resource.DescriptorPoolDescription{Layout: "layout", SetsPerLayout: 2})
	mustRegister(c, m, "uniforms", resource.BufferDescription{
		Size:        64,
		Usage:       gfx.BufferUsageUniform,
		HostVisible: true,
	})

	s := assets.NewStorage(assets.WithLogger(logger))
	_, err = s.AddMesh(m, "quad", model.Quad())
	c.Assert(err, qt.IsNil)
	s.AddMaterial(assets.Material{
		Name:           "flat",
		Pipeline:       "geometry-pipeline",
		DescriptorPool: "pool",
		Bindings: []assets.MaterialBinding{
			{Set: 0, Binding: 0, Type: gfx.DescriptorUniformBuffer, Buffer: "uniforms"},
		},
	})
	return &scene{drv: drv, g: g, m: m, s: s, fg: fg}
}

func (sc *scene) frame(c *qt.C) *render.Program {
	p, err := render.RecordGraph(sc.fg, map[resource.ID]render.FramebufferSelector{
		"scene": render.PerImage("fb/0", "fb/1"),
	}, map[pass.SubpassID][]render.Step{
		"geometry": {
			{Name: "UseMaterialWithPipeline", Op: render.UseMaterialWithPipeline("flat")},
			{Name: "UseMesh", Op: render.UseMesh("quad")},
			{Name: "DrawIndexed", Op: render.DrawIndexed()},
		},
		"compose": {
			{Name: "BindPipeline", Op: render.BindPipeline("compose-pipeline")},
			{Name: "DrawQuad", Op: render.DrawQuad()},
		},
	})
	c.Assert(err, qt.IsNil)
	return p
}

func (sc *scene) run(p *render.Program, st *render.State) error {
	return p.Execute(sc.g, sc.m, sc.s, st)
}

func stepNames(p *render.Program) []string {
	var names []string
	for _, s := range p.Steps() {
		names = append(names, s.Name)
	}
	return names
}

func TestRecordGraph(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	c.Assert(stepNames(sc.frame(c)), qt.DeepEquals, []string{
		"BeginGraphicsFrame",
		"BeginFrameCommandBuffers",
		"BindRenderPass",
		"UseMaterialWithPipeline",
		"UseMesh",
		"DrawIndexed",
		"NextSubpass",
		"BindPipeline",
		"DrawQuad",
		"UnbindRenderPass",
		"EndFrameCommandBuffers",
		"EndGraphicsFrame",
		"Present",
	})
}

func TestRecordPassUnknownSubpass(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	rp, ok := sc.fg.Pass("scene")
	c.Assert(ok, qt.IsTrue)
	_, err := render.RecordPass(rp, render.Framebuffer("fb/0"), map[pass.SubpassID][]render.Step{
		"lighting": {{Name: "DrawQuad", Op: render.DrawQuad()}},
	})
	c.Assert(err, qt.ErrorIs, pass.ErrUnknownSubpass)
}

func TestRecordGraphMissingFramebuffer(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	_, err := render.RecordGraph(sc.fg, nil, nil)
	c.Assert(err, qt.ErrorMatches, `render pass "scene" has no framebuffer`)
}

func TestPerImageWithoutFramebuffers(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	c.Assert(render.PerImage(), qt.IsNil)

	rp, ok := sc.fg.Pass("scene")
	c.Assert(ok, qt.IsTrue)
	_, err := render.RecordPass(rp, render.PerImage(), nil)
	c.Assert(err, qt.ErrorMatches, `render pass "scene" has no framebuffer`)

	p := render.NewProgram().
		Then("BeginGraphicsFrame", render.BeginGraphicsFrame()).
		Then("BeginFrameCommandBuffers", render.BeginFrameCommandBuffers()).
		Then("BindRenderPass", render.BindRenderPass("scene", render.PerImage()))
	st := render.NewState()
	c.Assert(sc.run(p, st), qt.ErrorMatches, `BindRenderPass: render pass "scene" bound without a framebuffer selector`)
	c.Assert(st.Phase, qt.Equals, render.PhaseIdle)
}

func TestDeclaredRenderPass(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	rp, err := sc.m.RenderPass("scene", sc.g)
	c.Assert(err, qt.IsNil)
	c.Assert(rp.Description.Attachments, qt.HasLen, 2)
	c.Assert(rp.Description.Attachments[1].Format, qt.Equals, gfx.FormatB8G8R8A8Unorm)
	c.Assert(rp.Description.Attachments[1].FinalLayout, qt.Equals, gfx.LayoutPresentSrc)
	c.Assert(rp.Description.Subpasses, qt.HasLen, 2)
	c.Assert(rp.Description.Subpasses[1].Input, qt.HasLen, 1)
}

func TestFrame(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	p := sc.frame(c)
	st := render.NewState()

	frame := sc.g.CurrentFrameContext()
	c.Assert(sc.run(p, st), qt.IsNil)
	c.Assert(st.Phase, qt.Equals, render.PhasePresented)
	c.Assert(sc.g.Presented(), qt.Equals, uint64(1))
	c.Assert(sc.g.CurrentFrameContext().Index, qt.Equals, 1)

	c.Assert(sc.drv.CommandOps(frame.Graphics), qt.DeepEquals, []string{
		"Begin",
		"BeginRenderPass",
		"SetViewport",
		"SetScissor",
		"BindPipeline",
		"BindDescriptorSets",
		"BindVertexBuffers",
		"BindIndexBuffer",
		"PushConstants",
		"DrawIndexed",
		"NextSubpass",
		"BindPipeline",
		"Draw",
		"EndRenderPass",
		"End",
	})
	c.Assert(sc.drv.CommandOps(frame.Transfer), qt.DeepEquals, []string{"Begin", "End"})

	subs := sc.drv.Submissions()
	c.Assert(subs, qt.HasLen, 2)
	c.Assert(subs[0].Queue, qt.Equals, gfx.TransferQueue)
	c.Assert(subs[0].Info.Wait, qt.DeepEquals, []gfx.Semaphore{frame.ImageAvailable})
	c.Assert(subs[0].Info.Signal, qt.DeepEquals, []gfx.Semaphore{frame.TransferCompleted})
	c.Assert(subs[1].Queue, qt.Equals, gfx.GraphicsQueue)
	c.Assert(subs[1].Info.Wait, qt.DeepEquals, []gfx.Semaphore{frame.TransferCompleted})
	c.Assert(subs[1].Info.Signal, qt.DeepEquals, []gfx.Semaphore{frame.RenderCompleted})
	c.Assert(subs[1].Info.Fence, qt.Equals, frame.InFlight)
	c.Assert(sc.drv.FenceSignaled(frame.InFlight), qt.IsTrue)

	presents := sc.drv.Presents()
	c.Assert(presents, qt.HasLen, 1)
	c.Assert(presents[0].ImageIndex, qt.Equals, uint32(0))
	c.Assert(presents[0].Wait, qt.DeepEquals, []gfx.Semaphore{frame.RenderCompleted})

	// The second frame uses the other frame context and swapchain image.
	c.Assert(sc.run(p, st), qt.IsNil)
	presents = sc.drv.Presents()
	c.Assert(presents, qt.HasLen, 2)
	c.Assert(presents[1].ImageIndex, qt.Equals, uint32(1))
	c.Assert(sc.drv.Created("Framebuffer"), qt.Equals, 2)
	c.Assert(sc.drv.CommandOps(0), qt.DeepEquals, []string{"UpdateDescriptorSets", "UpdateDescriptorSets"})
}

// descriptorUpdates returns the writes of every UpdateDescriptorSets call.
func descriptorUpdates(drv *gfxtest.Driver) [][]gfx.DescriptorWrite {
	var updates [][]gfx.DescriptorWrite
	for _, cmd := range drv.Commands() {
		if cmd.Op == "UpdateDescriptorSets" {
			updates = append(updates, cmd.Args[0].([]gfx.DescriptorWrite))
		}
	}
	return updates
}

func TestMaterialWritesEveryFrameCopy(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	p := sc.frame(c)
	st := render.NewState()
	c.Assert(sc.run(p, st), qt.IsNil)
	c.Assert(sc.run(p, st), qt.IsNil)

	pool, err := sc.m.DescriptorPool("pool", sc.g)
	c.Assert(err, qt.IsNil)
	buf, err := sc.m.Buffer("uniforms", sc.g)
	c.Assert(err, qt.IsNil)
	bound := []gfx.Handle{gfx.Handle(buf.Handles.Buffer)}
	c.Assert(pool.Handles.WrittenWith(0, bound), qt.IsTrue)
	c.Assert(pool.Handles.WrittenWith(1, bound), qt.IsTrue)

	updates := descriptorUpdates(sc.drv)
	c.Assert(updates, qt.HasLen, 2)
	for i, writes := range updates {
		c.Assert(writes, qt.HasLen, 1)
		c.Check(writes[0].Set, qt.Equals, pool.Handles.SetGroup(i)[0])
		c.Check(writes[0].Buffers, qt.DeepEquals, []gfx.DescriptorBufferInfo{{Buffer: buf.Handles.Buffer, Range: 64}})
	}

	// Both copies are current, so the next frame only binds.
	c.Assert(sc.run(p, st), qt.IsNil)
	c.Assert(descriptorUpdates(sc.drv), qt.HasLen, 2)
}

func TestInputAttachmentMaterialFollowsRecreatedView(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	mustRegister(c, sc.m, "compose-shader", resource.ShaderModuleDescription{
		Stages: []resource.ShaderStageDescription{
			{Stage: gfx.StageVertex, Source: spirv},
			{Stage: gfx.StageFragment, Source: spirv},
		},
		Sets: [][]gfx.DescriptorBinding{
			{{Binding: 0, Type: gfx.DescriptorInputAttachment, Stages: gfx.StageFragment}},
		},
	})
	mustRegister(c, sc.m, "compose-layout", resource.PipelineLayoutDescription{ShaderModule: "compose-shader"})
	mustRegister(c, sc.m, "compose-input-pipeline", resource.PipelineDescription{
		Layout:       "compose-layout",
		RenderPass:   "scene",
		ShaderModule: "compose-shader",
		Subpass:      1,
	})
	mustRegister(c, sc.m, "compose-pool", resource.DescriptorPoolDescription{Layout: "compose-layout", SetsPerLayout: 2})
	sc.s.AddMaterial(assets.Material{
		Name:           "compose",
		Pipeline:       "compose-input-pipeline",
		DescriptorPool: "compose-pool",
		Bindings: []assets.MaterialBinding{
			{Set: 0, Binding: 0, Type: gfx.DescriptorInputAttachment, Image: "color/view"},
		},
	})
	p, err := render.RecordGraph(sc.fg, map[resource.ID]render.FramebufferSelector{
		"scene": render.PerImage("fb/0", "fb/1"),
	}, map[pass.SubpassID][]render.Step{
		"geometry": {
			{Name: "BindPipeline", Op: render.BindPipeline("geometry-pipeline")},
			{Name: "UseMesh", Op: render.UseMesh("quad")},
			{Name: "DrawIndexed", Op: render.DrawIndexed()},
		},
		"compose": {
			{Name: "UseMaterialWithPipeline", Op: render.UseMaterialWithPipeline("compose")},
			{Name: "DrawQuad", Op: render.DrawQuad()},
		},
	})
	c.Assert(err, qt.IsNil)
	st := render.NewState()

	// viewsIn returns the image views written by the last descriptor update.
	viewsIn := func() []gfx.ImageView {
		updates := descriptorUpdates(sc.drv)
		c.Assert(updates, qt.Not(qt.HasLen), 0)
		var views []gfx.ImageView
		for _, w := range updates[len(updates)-1] {
			for _, info := range w.Images {
				views = append(views, info.View)
			}
		}
		return views
	}

	c.Assert(sc.run(p, st), qt.IsNil)
	before, err := sc.m.ImageView("color/view", sc.g)
	c.Assert(err, qt.IsNil)
	stale := before.Handles.View
	c.Assert(viewsIn(), qt.DeepEquals, []gfx.ImageView{stale})

	c.Assert(sc.g.RecreateSwapchain(sc.m), qt.IsNil)
	c.Assert(sc.drv.IsLive(gfx.Handle(stale)), qt.IsFalse)

	// Both frame contexts bind sets that point at the recreated view.
	for i := 0; i < 2; i++ {
		c.Assert(sc.run(p, st), qt.IsNil)
		after, err := sc.m.ImageView("color/view", sc.g)
		c.Assert(err, qt.IsNil)
		c.Assert(after.Handles.View, qt.Not(qt.Equals), stale)
		c.Assert(sc.drv.IsLive(gfx.Handle(after.Handles.View)), qt.IsTrue)
		c.Assert(viewsIn(), qt.DeepEquals, []gfx.ImageView{after.Handles.View})
	}
	c.Assert(descriptorUpdates(sc.drv), qt.HasLen, 3)
}

func TestRecreateReleasesSwapchainResourcesFirst(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	c.Assert(sc.run(sc.frame(c), render.NewState()), qt.IsNil)
	c.Assert(sc.g.RecreateSwapchain(sc.m), qt.IsNil)

	order := sc.drv.Destructions()
	first := func(kind string) int {
		for i, k := range order {
			if k == kind {
				return i
			}
		}
		return -1
	}
	last := func(kind string) int {
		for i := len(order) - 1; i >= 0; i-- {
			if order[i] == kind {
				return i
			}
		}
		return -1
	}
	c.Assert(first("Swapchain"), qt.Not(qt.Equals), -1)
	c.Assert(last("ImageView") < first("SwapchainImage"), qt.IsTrue, qt.Commentf("%v", order))
	c.Assert(last("Framebuffer") < first("SwapchainImage"), qt.IsTrue, qt.Commentf("%v", order))
}

func TestPushesMeshTransform(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	mesh, err := sc.s.Mesh("quad")
	c.Assert(err, qt.IsNil)
	mesh.Transform.SetPosition(glm.Translate3D(1, 2, 3))
	c.Assert(sc.run(sc.frame(c), render.NewState()), qt.IsNil)

	for _, cmd := range sc.drv.Commands() {
		if cmd.Op == "PushConstants" {
			c.Assert(cmd.Args[3], qt.DeepEquals, model.Mat4Bytes(mesh.Transform.Matrix()))
			return
		}
	}
	c.Fatal("no push constants recorded")
}

func TestInvalidTransitions(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)

	tests := []struct {
		about string
		op    render.Op
	}{
		{"present before a frame", render.Present()},
		{"bind pass before recording", render.BindRenderPass("scene", render.Framebuffer("fb/0"))},
		{"draw outside of a pass", render.DrawQuad()},
		{"end a frame never begun", render.EndGraphicsFrame()},
	}
	for _, test := range tests {
		c.Run(test.about, func(c *qt.C) {
			err := test.op(sc.g, sc.m, sc.s, render.NewState())
			c.Assert(err, qt.ErrorIs, render.ErrInvalidTransition)
		})
	}
}

func framePrefix() *render.Program {
	return render.NewProgram().
		Then("BeginGraphicsFrame", render.BeginGraphicsFrame()).
		Then("BeginFrameCommandBuffers", render.BeginFrameCommandBuffers()).
		Then("BindRenderPass", render.BindRenderPass("scene", render.PerImage("fb/0", "fb/1")))
}

func TestUnbindBeforeLastSubpass(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	p := framePrefix().Then("UnbindRenderPass", render.UnbindRenderPass())
	err := sc.run(p, render.NewState())
	c.Assert(err, qt.ErrorIs, render.ErrInvalidTransition)
	c.Assert(err, qt.ErrorMatches, `UnbindRenderPass: UnbindRenderPass in subpass 0 of 2: .*`)
}

func TestNextSubpassPastLast(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	p := framePrefix().
		Then("NextSubpass", render.NextSubpass()).
		Then("NextSubpass", render.NextSubpass())
	c.Assert(sc.run(p, render.NewState()), qt.ErrorIs, render.ErrInvalidTransition)
}

func TestPipelineMismatch(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	p := framePrefix().Then("BindPipeline", render.BindPipeline("compose-pipeline"))
	c.Assert(sc.run(p, render.NewState()), qt.ErrorIs, render.ErrPipelineMismatch)
}

func TestDrawWithoutMesh(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	p := framePrefix().
		Then("BindPipeline", render.BindPipeline("geometry-pipeline")).
		Then("DrawIndexed", render.DrawIndexed())
	c.Assert(sc.run(p, render.NewState()), qt.ErrorIs, render.ErrInvalidTransition)
}

func TestFramebufferOfOtherPass(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	mustRegister(c, sc.m, "other", resource.RenderPassDescription{
		Attachments: []resource.AttachmentDescription{{Format: gfx.FormatB8G8R8A8Unorm}},
		Subpasses:   []resource.SubpassDescription{{Color: []gfx.AttachmentRef{{Attachment: 0}}}},
	})
	p := render.NewProgram().
		Then("BeginGraphicsFrame", render.BeginGraphicsFrame()).
		Then("BeginFrameCommandBuffers", render.BeginFrameCommandBuffers()).
		Then("BindRenderPass", render.BindRenderPass("other", render.Framebuffer("fb/0")))
	c.Assert(sc.run(p, render.NewState()), qt.ErrorMatches, `.*framebuffer "fb/0" was made for render pass "scene", not "other"`)
}

func TestFrameTimeout(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	sc.drv.HangFences(true)
	st := render.NewState()
	c.Assert(sc.run(sc.frame(c), st), qt.ErrorIs, render.ErrFrameTimeout)
	c.Assert(st.Phase, qt.Equals, render.PhaseIdle)
	c.Assert(sc.drv.Presents(), qt.HasLen, 0)

	sc.drv.HangFences(false)
	c.Assert(sc.run(sc.frame(c), st), qt.IsNil)
}

func TestOutOfDateAcquireRecreatesSwapchain(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	old := sc.g.Swapchain().Swapchain
	sc.drv.QueueAcquireResults(gfx.OutOfDate)

	st := render.NewState()
	c.Assert(sc.run(sc.frame(c), st), qt.ErrorIs, render.ErrSwapchainOutOfDate)
	c.Assert(sc.drv.Created("Swapchain"), qt.Equals, 2)
	c.Assert(sc.drv.WaitIdleCalls(), qt.Equals, 1)
	c.Assert(sc.drv.IsLive(gfx.Handle(old)), qt.IsFalse)
	info := sc.drv.Info(gfx.Handle(sc.g.Swapchain().Swapchain)).(gfx.SwapchainInfo)
	c.Assert(info.Old, qt.Equals, old)

	c.Assert(sc.run(sc.frame(c), st), qt.IsNil)
	c.Assert(sc.drv.Presents(), qt.HasLen, 1)
}

func TestSuboptimalPresentRecreatesSwapchain(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	sc.drv.QueuePresentResults(gfx.Suboptimal)
	p := sc.frame(c)
	st := render.NewState()

	c.Assert(sc.run(p, st), qt.IsNil)
	c.Assert(sc.drv.Created("Swapchain"), qt.Equals, 2)
	c.Assert(sc.drv.Live("Framebuffer"), qt.Equals, 0)

	sc.g.SetExtent(gfx.Extent2D{Width: 800, Height: 600})
	sc.drv.QueuePresentResults(gfx.OutOfDate)
	c.Assert(sc.run(p, st), qt.IsNil)
	c.Assert(sc.g.Swapchain().Extent, qt.Equals, gfx.Extent2D{Width: 800, Height: 600})

	c.Assert(sc.run(p, st), qt.IsNil)
	fb, err := sc.m.FrameBuffer("fb/0", sc.g)
	c.Assert(err, qt.IsNil)
	c.Assert(fb.Handles.Extent, qt.Equals, gfx.Extent2D{Width: 800, Height: 600})
}

func TestAbortedFrameReplacesSemaphore(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	frame := sc.g.CurrentFrameContext()
	acquired := frame.ImageAvailable

	p := framePrefix().Then("UseMesh", render.UseMesh("missing"))
	st := render.NewState()
	err := sc.run(p, st)
	c.Assert(err, qt.ErrorIs, render.ErrInvalidTransition)

	c.Assert(st.Phase, qt.Equals, render.PhaseIdle)
	c.Assert(sc.drv.IsLive(gfx.Handle(acquired)), qt.IsFalse)
	c.Assert(frame.ImageAvailable, qt.Not(qt.Equals), acquired)
	c.Assert(sc.drv.Live("Semaphore"), qt.Equals, 6)
	c.Assert(sc.drv.CommandOps(frame.Graphics)[len(sc.drv.CommandOps(frame.Graphics))-2:], qt.DeepEquals, []string{"EndRenderPass", "End"})

	// The same frame context records the next frame.
	c.Assert(sc.g.CurrentFrameContext(), qt.Equals, frame)
	c.Assert(sc.run(sc.frame(c), st), qt.IsNil)
}

func TestMissingAssetAbortsFrame(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	p := framePrefix().
		Then("BindPipeline", render.BindPipeline("geometry-pipeline")).
		Then("UseMesh", render.UseMesh("missing"))
	st := render.NewState()
	c.Assert(sc.run(p, st), qt.ErrorIs, assets.ErrAssetNotFound)
	c.Assert(sc.run(sc.frame(c), st), qt.IsNil)
}

func TestSubmitFailureLeavesFrameReusable(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	frame := sc.g.CurrentFrameContext()

	sc.drv.Fail("Submit")
	st := render.NewState()
	c.Assert(sc.run(sc.frame(c), st), qt.ErrorMatches, `EndGraphicsFrame: submit transfer: .*`)
	c.Assert(sc.drv.FenceSignaled(frame.InFlight), qt.IsTrue)

	sc.drv.Clear("Submit")
	c.Assert(sc.run(sc.frame(c), st), qt.IsNil)
	c.Assert(sc.drv.Presents(), qt.HasLen, 1)
}

func TestGraphicsSubmitFailureAfterTransfer(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	frame := sc.g.CurrentFrameContext()
	acquired := frame.ImageAvailable
	transferred := frame.TransferCompleted

	sc.drv.FailQueue(gfx.GraphicsQueue)
	st := render.NewState()
	c.Assert(sc.run(sc.frame(c), st), qt.ErrorMatches, `EndGraphicsFrame: submit graphics: .*`)
	c.Assert(st.Phase, qt.Equals, render.PhaseIdle)

	subs := sc.drv.Submissions()
	c.Assert(subs, qt.HasLen, 1)
	c.Assert(subs[0].Info.Wait, qt.DeepEquals, []gfx.Semaphore{acquired})

	// The queued transfer batch still owns the acquire semaphore; the one
	// it signalled has no waiter and is swapped out after the device idles.
	c.Assert(sc.drv.WaitIdleCalls(), qt.Equals, 1)
	c.Assert(frame.ImageAvailable, qt.Equals, acquired)
	c.Assert(sc.drv.IsLive(gfx.Handle(acquired)), qt.IsTrue)
	c.Assert(frame.TransferCompleted, qt.Not(qt.Equals), transferred)
	c.Assert(sc.drv.IsLive(gfx.Handle(transferred)), qt.IsFalse)
	c.Assert(sc.drv.FenceSignaled(frame.InFlight), qt.IsTrue)
	c.Assert(sc.drv.Live("Semaphore"), qt.Equals, 6)

	sc.drv.ClearQueue(gfx.GraphicsQueue)
	c.Assert(sc.run(sc.frame(c), st), qt.IsNil)
	subs = sc.drv.Submissions()
	c.Assert(subs[len(subs)-1].Info.Wait, qt.DeepEquals, []gfx.Semaphore{frame.TransferCompleted})
	c.Assert(sc.drv.Presents(), qt.HasLen, 1)
}

// withUpload uploads the texture before the render pass is bound.
func withUpload(p *render.Program, texture string) *render.Program {
	steps := p.Steps()
	return render.NewProgram(steps[:2]...).
		Then("UploadTexture", render.UploadTexture(texture)).
		Append(render.NewProgram(steps[2:]...))
}

func TestUploadTexture(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	tex, err := sc.s.AddTexture(sc.m, "checker", image.NewRGBA(image.Rect(0, 0, 4, 2)), gfx.SamplerInfo{MagFilter: gfx.FilterLinear})
	c.Assert(err, qt.IsNil)
	p := withUpload(sc.frame(c), "checker")
	st := render.NewState()

	frame := sc.g.CurrentFrameContext()
	c.Assert(sc.run(p, st), qt.IsNil)
	c.Assert(sc.drv.CommandOps(frame.Transfer), qt.DeepEquals, []string{
		"Begin",
		"PipelineBarrier",
		"CopyBufferToImage",
		"PipelineBarrier",
		"End",
	})
	img, err := sc.m.Image("checker", sc.g)
	c.Assert(err, qt.IsNil)
	staging, err := sc.m.Buffer("checker/staging", sc.g)
	c.Assert(err, qt.IsNil)
	c.Assert(tex.Uploaded(img.Handles.Image), qt.IsTrue)
	c.Assert(sc.drv.BufferData(staging.Handles.Buffer), qt.HasLen, 4*2*4)

	var barriers []gfx.ImageBarrier
	for _, cmd := range sc.drv.Commands() {
		switch cmd.Op {
		case "PipelineBarrier":
			barriers = append(barriers, cmd.Args[0].(gfx.ImageBarrier))
		case "CopyBufferToImage":
			c.Assert(cmd.Args[0], qt.Equals, staging.Handles.Buffer)
			c.Assert(cmd.Args[1], qt.Equals, img.Handles.Image)
			c.Assert(cmd.Args[3].(gfx.BufferImageCopy).Extent, qt.Equals, gfx.Extent3D{Width: 4, Height: 2, Depth: 1})
		}
	}
	c.Assert(barriers, qt.HasLen, 2)
	c.Assert(barriers[0].NewLayout, qt.Equals, gfx.LayoutTransferDst)
	c.Assert(barriers[1].NewLayout, qt.Equals, gfx.LayoutShaderReadOnly)

	// The next frame finds the texels in place.
	next := sc.g.CurrentFrameContext()
	c.Assert(sc.run(p, st), qt.IsNil)
	c.Assert(sc.drv.CommandOps(next.Transfer), qt.DeepEquals, []string{"Begin", "End"})
}

func TestUploadTextureRetriedAfterAbort(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	tex, err := sc.s.AddTexture(sc.m, "checker", image.NewRGBA(image.Rect(0, 0, 2, 2)), gfx.SamplerInfo{})
	c.Assert(err, qt.IsNil)
	p := withUpload(sc.frame(c), "checker")
	st := render.NewState()

	sc.drv.Fail("Submit")
	c.Assert(sc.run(p, st), qt.Not(qt.IsNil))
	img, err := sc.m.Image("checker", sc.g)
	c.Assert(err, qt.IsNil)
	c.Assert(tex.Uploaded(img.Handles.Image), qt.IsFalse)

	sc.drv.Clear("Submit")
	c.Assert(sc.run(p, st), qt.IsNil)
	c.Assert(tex.Uploaded(img.Handles.Image), qt.IsTrue)
}

func TestUploadTextureInsideRenderPass(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	_, err := sc.s.AddTexture(sc.m, "checker", image.NewRGBA(image.Rect(0, 0, 2, 2)), gfx.SamplerInfo{})
	c.Assert(err, qt.IsNil)
	p := framePrefix().Then("UploadTexture", render.UploadTexture("checker"))
	c.Assert(sc.run(p, render.NewState()), qt.ErrorIs, render.ErrInvalidTransition)
}

func TestDestroy(t *testing.T) {
	c := qt.New(t)
	sc := newScene(c)
	c.Assert(sc.run(sc.frame(c), render.NewState()), qt.IsNil)
	c.Assert(sc.g.Destroy(sc.m), qt.IsNil)
	c.Assert(sc.drv.LiveKinds(), qt.HasLen, 0)
}

func TestNewGlobalContextDefaults(t *testing.T) {
	c := qt.New(t)
	drv := gfxtest.New()
	g, err := render.NewGlobalContext(drv, core.RendererConfiguration{})
	c.Assert(err, qt.IsNil)
	c.Assert(g.FramesInFlight(), qt.Equals, render.DefaultFramesInFlight)
	c.Assert(g.Configuration().FrameTimeout, qt.Equals, render.DefaultFrameTimeout)
	c.Assert(drv.Live("Fence"), qt.Equals, 2)
	c.Assert(drv.Live("Semaphore"), qt.Equals, 6)
	c.Assert(drv.Live("CommandBuffer"), qt.Equals, 4)
}

func TestNewGlobalContextRollsBack(t *testing.T) {
	c := qt.New(t)
	drv := gfxtest.New()
	drv.Fail("CreateFence")
	_, err := render.NewGlobalContext(drv, core.RendererConfiguration{FramesInFlight: 3})
	c.Assert(err, qt.ErrorMatches, `frame context 0: create fence: .*`)
	c.Assert(drv.LiveKinds(), qt.HasLen, 0)
}
