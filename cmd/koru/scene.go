// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/framegraph/assets"
	"github.com/devblok/framegraph/gfx"
	"github.com/devblok/framegraph/model"
	"github.com/devblok/framegraph/pass"
	"github.com/devblok/framegraph/render"
	"github.com/devblok/framegraph/resource"
	"github.com/devblok/framegraph/utility/kar"
)

const (
	shaderName  = "textured"
	textureFile = "textures/checker.png"
)

type scene struct {
	m     *resource.Manager
	s     *assets.Storage
	frame *render.Program
}

func backbuffer(i int) resource.ID {
	return resource.ID(fmt.Sprintf("backbuffer/%d", i))
}

func framebuffer(i int) resource.ID {
	return resource.ID(fmt.Sprintf("fb/%d", i))
}

// checkerboard is used when the archive carries no texture.
func checkerboard(size, cell int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.RGBA{R: 40, G: 40, B: 40, A: 255}
			if (x/cell+y/cell)%2 == 0 {
				c = color.RGBA{R: 220, G: 220, B: 220, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// newScene declares a single pass drawing a textured quad straight into
// the swapchain image.
func newScene(g *render.GlobalContext, m *resource.Manager, archive *kar.Archive, logger log.FieldLogger) (*scene, error) {
	if archive == nil {
		return nil, errors.New("no asset archive, use -archive or KORU_ASSET_ARCHIVE")
	}
	s := assets.NewStorage(assets.WithArchive(archive), assets.WithLogger(logger))

	images := len(g.Swapchain().Images)
	for i := 0; i < images; i++ {
		if err := m.Register(backbuffer(i), resource.ImageDescription{
			Bindings:       resource.BindPresentSource,
			Swapchain:      true,
			SwapchainIndex: uint32(i),
		}); err != nil {
			return nil, err
		}
		if err := m.Register(backbuffer(i)+"/view", resource.ImageViewDescription{Image: backbuffer(i)}); err != nil {
			return nil, err
		}
	}

	rp := pass.NewRenderPass("quad", "Quad")
	if err := rp.AddSubpass(pass.NewSubpass("draw", "Draw").
		Write(backbuffer(0)+"/view", pass.UsageColorAttachment)); err != nil {
		return nil, err
	}
	b := pass.NewBuilder(m)
	if err := b.AddPass(rp); err != nil {
		return nil, err
	}
	fg, err := b.Build()
	if err != nil {
		return nil, err
	}
	if l, ok := logger.(*log.Logger); ok && l.IsLevelEnabled(log.DebugLevel) {
		var dot bytes.Buffer
		if err := fg.WriteDOT(&dot); err == nil {
			l.WithField("dot", dot.String()).Debug("frame graph")
		}
	}
	if err := render.DeclareRenderPasses(fg, m, g); err != nil {
		return nil, err
	}

	fbs := make([]resource.ID, images)
	for i := range fbs {
		fbs[i] = framebuffer(i)
		if err := m.Register(fbs[i], resource.FrameBufferDescription{
			RenderPass:  "quad",
			Attachments: []resource.ID{backbuffer(i) + "/view"},
		}); err != nil {
			return nil, err
		}
	}

	stages, err := s.ShaderStages(shaderName)
	if err != nil {
		return nil, err
	}
	declarations := []struct {
		id   resource.ID
		desc resource.Description
	}{
		{"shader", resource.ShaderModuleDescription{
			Stages: stages,
			Sets: [][]gfx.DescriptorBinding{
				{{Binding: 0, Type: gfx.DescriptorCombinedImageSampler, Stages: gfx.StageFragment}},
			},
			PushConstants:    []gfx.PushConstantRange{{Stages: gfx.StageVertex, Size: model.PushConstantSize}},
			VertexBindings:   model.VertexBindings(),
			VertexAttributes: model.VertexAttributes(),
		}},
		{"layout", resource.PipelineLayoutDescription{ShaderModule: "shader"}},
		{"pipeline", resource.PipelineDescription{
			Layout:       "layout",
			RenderPass:   "quad",
			ShaderModule: "shader",
			Blend:        true,
		}},
		{"pool", resource.DescriptorPoolDescription{Layout: "layout", SetsPerLayout: uint32(g.FramesInFlight())}},
	}
	for _, d := range declarations {
		if err := m.Register(d.id, d.desc); err != nil {
			return nil, err
		}
	}

	sampler := gfx.SamplerInfo{MagFilter: gfx.FilterNearest, MinFilter: gfx.FilterLinear, AddressMode: gfx.AddressRepeat}
	if _, err := archive.Stat(textureFile); err == nil {
		_, err = s.LoadTexture(m, "checker", textureFile, sampler)
		if err != nil {
			return nil, err
		}
	} else if _, err := s.AddTexture(m, "checker", checkerboard(256, 32), sampler); err != nil {
		return nil, err
	}
	if _, err := s.AddMesh(m, "quad", model.Quad()); err != nil {
		return nil, err
	}
	s.AddMaterial(assets.Material{
		Name:           "textured",
		Pipeline:       "pipeline",
		DescriptorPool: "pool",
		Bindings: []assets.MaterialBinding{
			{Set: 0, Binding: 0, Type: gfx.DescriptorCombinedImageSampler, Image: "checker/view"},
		},
	})

	draw, err := render.RecordPass(rp, render.PerImage(fbs...), map[pass.SubpassID][]render.Step{
		"draw": {
			{Name: "UseMaterialWithPipeline", Op: render.UseMaterialWithPipeline("textured")},
			{Name: "UseMesh", Op: render.UseMesh("quad")},
			{Name: "DrawIndexed", Op: render.DrawIndexed()},
		},
	})
	if err != nil {
		return nil, err
	}
	upload := render.NewProgram().Then("UploadTexture", render.UploadTexture("checker"))

	return &scene{
		m:     m,
		s:     s,
		frame: render.FrameProgram(upload, draw),
	}, nil
}
