// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package resource

import (
	"github.com/devblok/framegraph/gfx"
	"github.com/pkg/errors"
)

// ImageAdapter creates images and their samplers. Swapchain images are
// borrowed from the current swapchain.
type ImageAdapter struct{}

// Initialize implements Adapter.
func (ImageAdapter) Initialize(desc ImageDescription, h *ImageHandles, m *Manager, ctx Context) error {
	drv := ctx.Driver()
	h.Layout = desc.Bindings.Layout()

	if desc.Swapchain {
		sc := ctx.Swapchain()
		if int(desc.SwapchainIndex) >= len(sc.Images) {
			return errors.Errorf("swapchain image %d out of %d", desc.SwapchainIndex, len(sc.Images))
		}
		h.Image = sc.Images[desc.SwapchainIndex]
		h.Borrowed = true
		h.Format = sc.Format
		h.Extent = gfx.Extent3D{Width: sc.Extent.Width, Height: sc.Extent.Height, Depth: 1}
	} else {
		extent := desc.Extent
		if extent.Width == 0 {
			sc := ctx.Swapchain()
			if sc.Swapchain == 0 {
				return errors.New("image follows the swapchain extent but there is no swapchain")
			}
			extent = gfx.Extent3D{Width: sc.Extent.Width, Height: sc.Extent.Height, Depth: 1}
		}
		if extent.Height == 0 {
			extent.Height = 1
		}
		if extent.Depth == 0 {
			extent.Depth = 1
		}

		image, err := drv.CreateImage(gfx.ImageInfo{
			Type:           desc.Type,
			Format:         desc.Format,
			Extent:         extent,
			MipLevels:      orOne(desc.MipLevels),
			ArrayLayers:    arrayLayers(desc),
			Samples:        orOne(desc.Samples),
			Usage:          desc.Bindings.Usage(),
			InitialLayout:  h.Layout,
			CubeCompatible: desc.Cube,
		})
		if err != nil {
			return err
		}
		h.Image = image
		h.Format = desc.Format
		h.Extent = extent
	}

	if desc.Sampler != nil {
		sampler, err := drv.CreateSampler(*desc.Sampler)
		if err != nil {
			return errors.Wrap(err, "create sampler")
		}
		h.Sampler = sampler
	}
	return nil
}

// Deinitialize implements Adapter.
func (ImageAdapter) Deinitialize(desc ImageDescription, h *ImageHandles, m *Manager, ctx Context) error {
	drv := ctx.Driver()
	if h.Sampler != 0 {
		drv.DestroySampler(h.Sampler)
	}
	if h.Image != 0 && !h.Borrowed {
		drv.DestroyImage(h.Image)
	}
	*h = ImageHandles{}
	return nil
}

func orOne(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	return v
}

func arrayLayers(desc ImageDescription) uint32 {
	if desc.ArrayLayers == 0 && desc.Cube {
		return 6
	}
	return orOne(desc.ArrayLayers)
}

// ViewType derives the view type of an image from its dimensionality and
// the number of layers viewed.
func ViewType(t gfx.ImageType, cube bool, layers uint32) gfx.ImageViewType {
	switch t {
	case gfx.ImageType1D:
		if layers > 1 {
			return gfx.ViewType1DArray
		}
		return gfx.ViewType1D
	case gfx.ImageType3D:
		return gfx.ViewType3D
	}
	if cube && layers%6 == 0 {
		if layers > 6 {
			return gfx.ViewTypeCubeArray
		}
		return gfx.ViewTypeCube
	}
	if layers > 1 {
		return gfx.ViewType2DArray
	}
	return gfx.ViewType2D
}

// ImageViewAdapter creates views over images.
type ImageViewAdapter struct{}

// Initialize implements Adapter.
func (ImageViewAdapter) Initialize(desc ImageViewDescription, h *ImageViewHandles, m *Manager, ctx Context) error {
	image, err := m.Image(desc.Image, ctx)
	if err != nil {
		return err
	}
	if err := image.Check(); err != nil {
		return errors.Wrapf(err, "image %q", desc.Image)
	}

	total := arrayLayers(image.Description)
	if image.Description.Swapchain {
		total = 1
	}
	if desc.BaseLayer >= total {
		return errors.Errorf("base layer %d outside of %d layers", desc.BaseLayer, total)
	}
	layers := desc.LayerCount
	if layers == 0 {
		layers = total - desc.BaseLayer
	}
	levels := orOne(image.Description.MipLevels)
	if desc.BaseMip >= levels {
		return errors.Errorf("base mip %d outside of %d levels", desc.BaseMip, levels)
	}
	mips := desc.MipCount
	if mips == 0 {
		mips = levels - desc.BaseMip
	} else if desc.BaseMip+mips > levels {
		return errors.Errorf("mips %d to %d outside of %d levels", desc.BaseMip, desc.BaseMip+mips, levels)
	}
	format := desc.Format
	if format == gfx.FormatUndefined {
		format = image.Handles.Format
	}

	h.Type = ViewType(image.Description.Type, image.Description.Cube, layers)
	h.Aspect = format.Aspect()
	h.Format = format
	view, err := ctx.Driver().CreateImageView(gfx.ImageViewInfo{
		Image:      image.Handles.Image,
		Type:       h.Type,
		Format:     format,
		Aspect:     h.Aspect,
		BaseMip:    desc.BaseMip,
		MipCount:   mips,
		BaseLayer:  desc.BaseLayer,
		LayerCount: layers,
	})
	if err != nil {
		return err
	}
	h.View = view
	return nil
}

// Deinitialize implements Adapter.
func (ImageViewAdapter) Deinitialize(desc ImageViewDescription, h *ImageViewHandles, m *Manager, ctx Context) error {
	ctx.Driver().DestroyImageView(h.View)
	*h = ImageViewHandles{}
	return nil
}
