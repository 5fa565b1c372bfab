// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package assets

import (
	"bytes"
	"image"
	_ "image/jpeg" // decoders
	_ "image/png"
	"io"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp" // decoders
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/devblok/framegraph/gfx"
	"github.com/devblok/framegraph/resource"
)

// Texture is an image sampled by materials. Its texels live in a
// staging buffer until the image is uploaded by a frame.
type Texture struct {
	Name    string
	Image   resource.ID
	View    resource.ID
	Staging resource.ID
	Extent  gfx.Extent3D

	uploaded atomic.Uint64
}

// Uploaded reports whether the texels were copied into img.
func (t *Texture) Uploaded(img gfx.Image) bool {
	return img != 0 && gfx.Image(t.uploaded.Load()) == img
}

// MarkUploaded records that the texels were copied into img. An image
// created later, after a release, is uploaded again.
func (t *Texture) MarkUploaded(img gfx.Image) {
	t.uploaded.Store(uint64(img))
}

// DecodeTexture decodes a png, jpeg, bmp, tiff or webp image into
// tightly packed RGBA texels.
func DecodeTexture(r io.Reader) (*image.RGBA, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode texture")
	}
	if rgba, ok := src.(*image.RGBA); ok && rgba.Stride == 4*rgba.Rect.Dx() && rgba.Rect.Min == (image.Point{}) {
		return rgba, nil
	}
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Copy(dst, image.Point{}, src, bounds, draw.Src, nil)
	log.WithFields(log.Fields{
		"format": format,
		"width":  bounds.Dx(),
		"height": bounds.Dy(),
	}).Debug("texture converted to rgba")
	return dst, nil
}

// AddTexture declares the staging buffer, image and view of img on m and
// stores the texture under name. They are named "<name>/staging",
// "<name>" and "<name>/view".
func (s *Storage) AddTexture(m *resource.Manager, name string, img *image.RGBA, sampler gfx.SamplerInfo) (*Texture, error) {
	width, height := img.Rect.Dx(), img.Rect.Dy()
	if width == 0 || height == 0 {
		return nil, errors.Errorf("texture %q is empty", name)
	}
	tex := &Texture{
		Name:    name,
		Image:   resource.ID(name),
		View:    resource.ID(name + "/view"),
		Staging: resource.ID(name + "/staging"),
		Extent:  gfx.Extent3D{Width: uint32(width), Height: uint32(height), Depth: 1},
	}
	texels := img.Pix[:4*width*height]
	if err := m.Register(tex.Staging, resource.BufferDescription{
		Size:        uint64(len(texels)),
		Usage:       gfx.BufferUsageTransferSrc,
		HostVisible: true,
		InitialData: append([]byte(nil), texels...),
	}); err != nil {
		return nil, errors.Wrapf(err, "texture %q", name)
	}
	if err := m.Register(tex.Image, resource.ImageDescription{
		Type:     gfx.ImageType2D,
		Format:   gfx.FormatR8G8B8A8Unorm,
		Extent:   tex.Extent,
		Bindings: resource.BindSampled | resource.BindCopyTarget,
		Sampler:  &sampler,
	}); err != nil {
		return nil, errors.Wrapf(err, "texture %q", name)
	}
	if err := m.Register(tex.View, resource.ImageViewDescription{
		Image:  tex.Image,
		Format: gfx.FormatR8G8B8A8Unorm,
	}); err != nil {
		return nil, errors.Wrapf(err, "texture %q", name)
	}

	s.mutex.Lock()
	s.textures[name] = tex
	s.mutex.Unlock()
	s.log.WithFields(log.Fields{
		"texture": name,
		"width":   width,
		"height":  height,
	}).Debug("texture added")
	return tex, nil
}

// LoadTexture decodes the image at path in the archive and adds it
// under name.
func (s *Storage) LoadTexture(m *resource.Manager, name, path string, sampler gfx.SamplerInfo) (*Texture, error) {
	if s.archive == nil {
		return nil, ErrNoArchive
	}
	data, err := s.archive.ReadAll(path)
	if err != nil {
		return nil, errors.Wrapf(err, "texture %q", name)
	}
	img, err := DecodeTexture(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "texture %q", name)
	}
	return s.AddTexture(m, name, img, sampler)
}

// Texture returns the texture with name.
func (s *Storage) Texture(name string) (*Texture, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	tex, ok := s.textures[name]
	if !ok {
		return nil, errors.Wrapf(ErrAssetNotFound, "texture %q", name)
	}
	return tex, nil
}
