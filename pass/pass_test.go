// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pass_test

import (
	"bytes"
	"math/rand"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"

	"github.com/devblok/framegraph/gfx"
	"github.com/devblok/framegraph/graph"
	"github.com/devblok/framegraph/pass"
	"github.com/devblok/framegraph/resource"
)

func newTable(c *qt.C, ids ...resource.ID) *resource.Manager {
	m := resource.NewManager()
	for _, id := range ids {
		c.Assert(m.Register(id, resource.BufferDescription{Size: 16}), qt.IsNil)
	}
	return m
}

func sortedIDs(c *qt.C, rp *pass.RenderPass) []pass.SubpassID {
	sorted, err := rp.TopologicallySortedSubpasses()
	c.Assert(err, qt.IsNil)
	ids := make([]pass.SubpassID, 0, len(sorted))
	for _, s := range sorted {
		ids = append(ids, s.UID)
	}
	return ids
}

func TestLinearChain(t *testing.T) {
	c := qt.New(t)
	b := pass.NewBuilder(newTable(c, "r1", "r2"))

	rp := pass.NewRenderPass("main", "main")
	// Added out of order on purpose.
	c.Assert(rp.AddSubpass(pass.NewSubpass("C", "c").Read("r2", pass.UsageSampled)), qt.IsNil)
	c.Assert(rp.AddSubpass(pass.NewSubpass("A", "a").Write("r1", pass.UsageColorAttachment)), qt.IsNil)
	c.Assert(rp.AddSubpass(pass.NewSubpass("B", "b").
		Read("r1", pass.UsageSampled).
		Write("r2", pass.UsageColorAttachment)), qt.IsNil)

	c.Assert(rp.CollectSubpasses(b), qt.IsNil)
	c.Assert(sortedIDs(c, rp), qt.DeepEquals, []pass.SubpassID{"A", "B", "C"})
	c.Assert(rp.Graph().HasEdge("A", "B"), qt.IsTrue)
	c.Assert(rp.Graph().HasEdge("B", "C"), qt.IsTrue)
	c.Assert(rp.Graph().HasEdge("A", "C"), qt.IsFalse)

	idx, err := rp.SubpassIndex("C")
	c.Assert(err, qt.IsNil)
	c.Assert(idx, qt.Equals, uint32(2))
	_, err = rp.SubpassIndex("Z")
	c.Assert(errors.Is(err, pass.ErrUnknownSubpass), qt.IsTrue)
}

func TestIndependentSubpassesKeepInsertionOrder(t *testing.T) {
	c := qt.New(t)
	b := pass.NewBuilder(newTable(c, "r1", "r2"))

	rp := pass.NewRenderPass("main", "")
	c.Assert(rp.AddSubpass(pass.NewSubpass("first", "").Write("r1", pass.UsageColorAttachment)), qt.IsNil)
	c.Assert(rp.AddSubpass(pass.NewSubpass("second", "").Write("r2", pass.UsageColorAttachment)), qt.IsNil)
	c.Assert(rp.CollectSubpasses(b), qt.IsNil)
	c.Assert(sortedIDs(c, rp), qt.DeepEquals, []pass.SubpassID{"first", "second"})
}

func TestSelfReadAfterWriteIsCycle(t *testing.T) {
	c := qt.New(t)
	b := pass.NewBuilder(newTable(c, "r"))

	rp := pass.NewRenderPass("main", "")
	c.Assert(rp.AddSubpass(pass.NewSubpass("S", "").
		Read("r", pass.UsageInputAttachment).
		Write("r", pass.UsageColorAttachment)), qt.IsNil)

	err := rp.CollectSubpasses(b)
	c.Assert(err, qt.ErrorIs, graph.ErrCycleDetected)

	var cycle *graph.CycleError[pass.SubpassID]
	c.Assert(errors.As(err, &cycle), qt.IsTrue)
	c.Assert(cycle.Nodes, qt.DeepEquals, []pass.SubpassID{"S"})
}

func TestMutualDependencyIsCycle(t *testing.T) {
	c := qt.New(t)
	b := pass.NewBuilder(newTable(c, "r1", "r2"))

	rp := pass.NewRenderPass("main", "")
	c.Assert(rp.AddSubpass(pass.NewSubpass("X", "").Read("r2", pass.UsageSampled).Write("r1", pass.UsageColorAttachment)), qt.IsNil)
	c.Assert(rp.AddSubpass(pass.NewSubpass("Y", "").Read("r1", pass.UsageSampled).Write("r2", pass.UsageColorAttachment)), qt.IsNil)

	c.Assert(rp.CollectSubpasses(b), qt.ErrorIs, graph.ErrCycleDetected)
	_, err := rp.TopologicallySortedSubpasses()
	c.Assert(err, qt.ErrorIs, graph.ErrCycleDetected)
}

func TestSortWithoutCollectInfersEdges(t *testing.T) {
	c := qt.New(t)
	rp := pass.NewRenderPass("main", "")
	c.Assert(rp.AddSubpass(pass.NewSubpass("B", "").Read("r", pass.UsageSampled)), qt.IsNil)
	c.Assert(rp.AddSubpass(pass.NewSubpass("A", "").Write("r", pass.UsageColorAttachment)), qt.IsNil)
	c.Assert(sortedIDs(c, rp), qt.DeepEquals, []pass.SubpassID{"A", "B"})
	c.Assert(rp.Graph().HasEdge("A", "B"), qt.IsTrue)

	c.Assert(rp.AddSubpass(pass.NewSubpass("S", "").
		Read("x", pass.UsageInputAttachment).
		Write("x", pass.UsageColorAttachment)), qt.IsNil)
	_, err := rp.TopologicallySortedSubpasses()
	c.Assert(err, qt.ErrorIs, graph.ErrCycleDetected)
	c.Assert(rp.Attachments(), qt.HasLen, 0)
}

func TestSubpassAddedAfterCollect(t *testing.T) {
	c := qt.New(t)
	b := pass.NewBuilder(newTable(c, "r1", "r2"))

	rp := pass.NewRenderPass("main", "")
	c.Assert(rp.AddSubpass(pass.NewSubpass("A", "").Write("r1", pass.UsageColorAttachment)), qt.IsNil)
	c.Assert(rp.CollectSubpasses(b), qt.IsNil)

	// C reads what the later added B writes, so B has to run first.
	c.Assert(rp.AddSubpass(pass.NewSubpass("C", "").Read("r2", pass.UsageSampled)), qt.IsNil)
	c.Assert(rp.AddSubpass(pass.NewSubpass("B", "").
		Read("r1", pass.UsageSampled).
		Write("r2", pass.UsageColorAttachment)), qt.IsNil)
	c.Assert(sortedIDs(c, rp), qt.DeepEquals, []pass.SubpassID{"A", "B", "C"})
	c.Assert(rp.Graph().HasEdge("B", "C"), qt.IsTrue)
	c.Assert(rp.Attachments(), qt.HasLen, 2)
}

func TestSortedOrderRespectsEveryEdge(t *testing.T) {
	c := qt.New(t)
	rnd := rand.New(rand.NewSource(7))

	const n = 24
	ids := make([]resource.ID, n)
	for i := range ids {
		ids[i] = resource.ID(rune('a' + i))
	}
	b := pass.NewBuilder(newTable(c, ids...))

	// Subpass i writes ids[i] and reads a random subset of earlier
	// writes, which keeps the graph acyclic.
	rp := pass.NewRenderPass("main", "")
	perm := rnd.Perm(n)
	for _, i := range perm {
		s := pass.NewSubpass(pass.SubpassID(ids[i]), "").Write(ids[i], pass.UsageColorAttachment)
		for j := 0; j < i; j++ {
			if rnd.Intn(3) == 0 {
				s.Read(ids[j], pass.UsageSampled)
			}
		}
		c.Assert(rp.AddSubpass(s), qt.IsNil)
	}
	c.Assert(rp.CollectSubpasses(b), qt.IsNil)

	order := sortedIDs(c, rp)
	c.Assert(order, qt.HasLen, n)
	position := make(map[pass.SubpassID]int)
	for i, id := range order {
		position[id] = i
	}
	g := rp.Graph()
	for _, e := range g.Edges() {
		from, to := g.Node(e.From), g.Node(e.To)
		c.Assert(position[from] < position[to], qt.IsTrue, qt.Commentf("%s -> %s", from, to))
	}
}

func TestDuplicateSubpass(t *testing.T) {
	c := qt.New(t)
	rp := pass.NewRenderPass("main", "")
	c.Assert(rp.AddSubpass(pass.NewSubpass("S", "")), qt.IsNil)
	c.Assert(rp.AddSubpass(pass.NewSubpass("S", "other")), qt.ErrorIs, pass.ErrDuplicateSubpass)
	c.Assert(rp.Subpasses(), qt.HasLen, 1)
	c.Assert(rp.AddSubpass(pass.NewSubpass("", "")), qt.Not(qt.IsNil))
}

func TestSubpassIsCopiedOnAdd(t *testing.T) {
	c := qt.New(t)
	rp := pass.NewRenderPass("main", "")
	s := pass.NewSubpass("S", "").Write("r", pass.UsageColorAttachment)
	c.Assert(rp.AddSubpass(s), qt.IsNil)
	s.Read("r", pass.UsageSampled)

	added, ok := rp.Subpass("S")
	c.Assert(ok, qt.IsTrue)
	c.Assert(added.Reads, qt.HasLen, 0)
}

func TestUnknownResourceReference(t *testing.T) {
	c := qt.New(t)
	b := pass.NewBuilder(newTable(c, "known"))

	rp := pass.NewRenderPass("main", "")
	c.Assert(rp.AddSubpass(pass.NewSubpass("S", "").
		Read("known", pass.UsageSampled).
		Write("missing", pass.UsageColorAttachment)), qt.IsNil)
	c.Assert(rp.CollectSubpasses(b), qt.ErrorIs, pass.ErrUnknownResourceReference)
}

func TestAttachmentsAccumulate(t *testing.T) {
	c := qt.New(t)
	b := pass.NewBuilder(newTable(c, "gbuffer", "depth", "out"))

	rp := pass.NewRenderPass("main", "")
	c.Assert(rp.AddSubpass(pass.NewSubpass("light", "").
		Read("gbuffer", pass.UsageInputAttachment).
		Read("depth", pass.UsageInputAttachment).
		Write("out", pass.UsageColorAttachment)), qt.IsNil)
	c.Assert(rp.AddSubpass(pass.NewSubpass("geometry", "").
		Write("gbuffer", pass.UsageColorAttachment).
		Write("depth", pass.UsageDepthAttachment)), qt.IsNil)
	c.Assert(rp.CollectSubpasses(b), qt.IsNil)

	c.Assert(rp.Attachments(), qt.DeepEquals, []pass.Attachment{
		{ID: "gbuffer", Usage: pass.UsageColorAttachment | pass.UsageInputAttachment, FirstWrite: true, Read: true, Written: true},
		{ID: "depth", Usage: pass.UsageDepthAttachment | pass.UsageInputAttachment, FirstWrite: true, Read: true, Written: true},
		{ID: "out", Usage: pass.UsageColorAttachment, FirstWrite: true, Written: true},
	})
	c.Assert(rp.ReadsResource("depth"), qt.IsTrue)
	c.Assert(rp.WritesResource("out"), qt.IsTrue)
	c.Assert(rp.ReadsResource("out"), qt.IsFalse)
}

func deferredTable(c *qt.C) *resource.Manager {
	m := resource.NewManager()
	register := func(id resource.ID, desc resource.Description) {
		c.Assert(m.Register(id, desc), qt.IsNil)
	}
	register("swapchain", resource.ImageDescription{Swapchain: true, Bindings: resource.BindPresentSource})
	register("swapchain/view", resource.ImageViewDescription{Image: "swapchain"})
	register("albedo", resource.ImageDescription{
		Format:   gfx.FormatR8G8B8A8Unorm,
		Bindings: resource.BindColorAttachment | resource.BindInputAttachment,
		Clear:    gfx.ClearValue{Color: [4]float32{0, 0, 0, 1}},
	})
	register("albedo/view", resource.ImageViewDescription{Image: "albedo"})
	register("depth", resource.ImageDescription{
		Format:   gfx.FormatD24UnormS8Uint,
		Bindings: resource.BindDepthAttachment,
		Clear:    gfx.ClearValue{Depth: 1, DepthStencil: true},
	})
	register("depth/view", resource.ImageViewDescription{Image: "depth"})
	register("texture", resource.ImageDescription{Format: gfx.FormatR8G8B8A8Srgb, Bindings: resource.BindSampled})
	return m
}

func deferredPass(c *qt.C) *pass.RenderPass {
	rp := pass.NewRenderPass("deferred", "deferred")
	c.Assert(rp.AddSubpass(pass.NewSubpass("compose", "compose").
		Read("albedo/view", pass.UsageInputAttachment).
		Write("swapchain/view", pass.UsageColorAttachment)), qt.IsNil)
	c.Assert(rp.AddSubpass(pass.NewSubpass("geometry", "geometry").
		Read("texture", pass.UsageSampled).
		Write("albedo/view", pass.UsageColorAttachment).
		Write("depth/view", pass.UsageDepthAttachment)), qt.IsNil)
	return rp
}

func TestDescribe(t *testing.T) {
	c := qt.New(t)
	table := deferredTable(c)
	rp := deferredPass(c)
	c.Assert(rp.CollectSubpasses(pass.NewBuilder(table)), qt.IsNil)

	desc, err := rp.Describe(table, gfx.FormatB8G8R8A8Srgb)
	c.Assert(err, qt.IsNil)

	// The sampled texture is not an attachment.
	c.Assert(desc.Attachments, qt.DeepEquals, []resource.AttachmentDescription{{
		Resource:       "albedo/view",
		Format:         gfx.FormatR8G8B8A8Unorm,
		LoadOp:         gfx.LoadOpClear,
		StoreOp:        gfx.StoreOpStore,
		StencilLoadOp:  gfx.LoadOpDontCare,
		StencilStoreOp: gfx.StoreOpDontCare,
		InitialLayout:  gfx.LayoutUndefined,
		FinalLayout:    gfx.LayoutShaderReadOnly,
		Clear:          gfx.ClearValue{Color: [4]float32{0, 0, 0, 1}},
	}, {
		Resource:       "depth/view",
		Format:         gfx.FormatD24UnormS8Uint,
		LoadOp:         gfx.LoadOpClear,
		StoreOp:        gfx.StoreOpStore,
		StencilLoadOp:  gfx.LoadOpClear,
		StencilStoreOp: gfx.StoreOpStore,
		InitialLayout:  gfx.LayoutUndefined,
		FinalLayout:    gfx.LayoutDepthStencilAttachment,
		Clear:          gfx.ClearValue{Depth: 1, DepthStencil: true},
	}, {
		Resource:       "swapchain/view",
		Format:         gfx.FormatB8G8R8A8Srgb,
		LoadOp:         gfx.LoadOpClear,
		StoreOp:        gfx.StoreOpStore,
		StencilLoadOp:  gfx.LoadOpDontCare,
		StencilStoreOp: gfx.StoreOpDontCare,
		InitialLayout:  gfx.LayoutUndefined,
		FinalLayout:    gfx.LayoutPresentSrc,
	}})

	c.Assert(desc.Subpasses, qt.DeepEquals, []resource.SubpassDescription{{
		Name:         "geometry",
		Color:        []gfx.AttachmentRef{{Attachment: 0, Layout: gfx.LayoutColorAttachment}},
		DepthStencil: &gfx.AttachmentRef{Attachment: 1, Layout: gfx.LayoutDepthStencilAttachment},
	}, {
		Name:  "compose",
		Input: []gfx.AttachmentRef{{Attachment: 0, Layout: gfx.LayoutShaderReadOnly}},
		Color: []gfx.AttachmentRef{{Attachment: 2, Layout: gfx.LayoutColorAttachment}},
	}})

	c.Assert(desc.SubpassDependencies, qt.HasLen, 2)
	c.Assert(desc.SubpassDependencies[0].Src, qt.Equals, gfx.SubpassExternal)
	c.Assert(desc.SubpassDependencies[1].Src, qt.Equals, uint32(0))
	c.Assert(desc.SubpassDependencies[1].Dst, qt.Equals, uint32(1))
}

func TestDescribeLoadsPreviouslyWrittenAttachment(t *testing.T) {
	c := qt.New(t)
	table := deferredTable(c)
	rp := pass.NewRenderPass("overlay", "")
	c.Assert(rp.AddSubpass(pass.NewSubpass("ui", "").
		Read("albedo/view", pass.UsageInputAttachment).
		Write("swapchain/view", pass.UsageColorAttachment)), qt.IsNil)
	c.Assert(rp.CollectSubpasses(pass.NewBuilder(table)), qt.IsNil)

	desc, err := rp.Describe(table, gfx.FormatB8G8R8A8Unorm)
	c.Assert(err, qt.IsNil)
	c.Assert(desc.Attachments[0].LoadOp, qt.Equals, gfx.LoadOpLoad)
	c.Assert(desc.Attachments[0].InitialLayout, qt.Equals, gfx.LayoutColorAttachment)
	c.Assert(desc.Attachments[1].Format, qt.Equals, gfx.FormatB8G8R8A8Unorm)
}

func TestDescribeRejectsNonImageAttachment(t *testing.T) {
	c := qt.New(t)
	table := deferredTable(c)
	c.Assert(table.Register("buffer", resource.BufferDescription{Size: 4}), qt.IsNil)

	rp := pass.NewRenderPass("bad", "")
	c.Assert(rp.AddSubpass(pass.NewSubpass("s", "").Write("buffer", pass.UsageColorAttachment)), qt.IsNil)
	c.Assert(rp.CollectSubpasses(pass.NewBuilder(table)), qt.IsNil)

	_, err := rp.Describe(table, gfx.FormatB8G8R8A8Unorm)
	c.Assert(err, qt.ErrorIs, resource.ErrKindMismatch)
}

func TestBuilderOrdersPasses(t *testing.T) {
	c := qt.New(t)
	b := pass.NewBuilder(newTable(c, "shadow", "scene", "post"))

	post := pass.NewRenderPass("post", "")
	c.Assert(post.AddSubpass(pass.NewSubpass("tonemap", "").Read("scene", pass.UsageSampled).Write("post", pass.UsageColorAttachment)), qt.IsNil)
	scene := pass.NewRenderPass("scene", "")
	c.Assert(scene.AddSubpass(pass.NewSubpass("draw", "").Read("shadow", pass.UsageSampled).Write("scene", pass.UsageColorAttachment)), qt.IsNil)
	shadow := pass.NewRenderPass("shadow", "")
	c.Assert(shadow.AddSubpass(pass.NewSubpass("depth", "").Write("shadow", pass.UsageDepthAttachment)), qt.IsNil)

	for _, p := range []*pass.RenderPass{post, scene, shadow} {
		c.Assert(b.AddPass(p), qt.IsNil)
	}
	c.Assert(b.AddPass(pass.NewRenderPass("post", "")), qt.ErrorIs, pass.ErrDuplicatePass)

	fg, err := b.Build()
	c.Assert(err, qt.IsNil)
	var order []resource.ID
	for _, p := range fg.Passes() {
		order = append(order, p.UID)
	}
	c.Assert(order, qt.DeepEquals, []resource.ID{"shadow", "scene", "post"})

	p, ok := fg.Pass("scene")
	c.Assert(ok, qt.IsTrue)
	c.Assert(p, qt.Equals, scene)

	var buf bytes.Buffer
	c.Assert(fg.WriteDOT(&buf), qt.IsNil)
	c.Assert(buf.String(), qt.Contains, "digraph")
}

func TestBuilderFailsOnSubpassCycle(t *testing.T) {
	c := qt.New(t)
	b := pass.NewBuilder(newTable(c, "r"))
	rp := pass.NewRenderPass("main", "")
	c.Assert(rp.AddSubpass(pass.NewSubpass("S", "").Read("r", pass.UsageSampled).Write("r", pass.UsageStorage)), qt.IsNil)
	c.Assert(b.AddPass(rp), qt.IsNil)

	_, err := b.Build()
	c.Assert(err, qt.ErrorIs, graph.ErrCycleDetected)
}

func TestRenderPassWriteDOT(t *testing.T) {
	c := qt.New(t)
	table := deferredTable(c)
	rp := deferredPass(c)
	c.Assert(rp.CollectSubpasses(pass.NewBuilder(table)), qt.IsNil)

	var buf bytes.Buffer
	c.Assert(rp.WriteDOT(&buf), qt.IsNil)
	c.Assert(buf.String(), qt.Contains, "geometry")
	c.Assert(buf.String(), qt.Contains, "compose")
}

func BenchmarkCollectSubpasses(b *testing.B) {
	m := resource.NewManager()
	const n = 64
	ids := make([]resource.ID, n)
	for i := range ids {
		ids[i] = resource.ID(rune(0x100 + i))
		if err := m.Register(ids[i], resource.BufferDescription{Size: 4}); err != nil {
			b.Fatal(err)
		}
	}
	rp := pass.NewRenderPass("bench", "")
	for i := 0; i < n; i++ {
		s := pass.NewSubpass(pass.SubpassID(ids[i]), "").Write(ids[i], pass.UsageColorAttachment)
		if i > 0 {
			s.Read(ids[i-1], pass.UsageSampled)
		}
		if err := rp.AddSubpass(s); err != nil {
			b.Fatal(err)
		}
	}
	builder := pass.NewBuilder(m)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := rp.CollectSubpasses(builder); err != nil {
			b.Fatal(err)
		}
	}
}
