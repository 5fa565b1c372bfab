// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// Format is a pixel or vertex attribute format.
type Format int

// Supported formats.
const (
	FormatUndefined Format = iota
	FormatR8Unorm
	FormatR8G8B8A8Unorm
	FormatR8G8B8A8Srgb
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8Srgb
	FormatR16G16B16A16Sfloat
	FormatR32Sfloat
	FormatR32G32Sfloat
	FormatR32G32B32Sfloat
	FormatR32G32B32A32Sfloat
	FormatD16Unorm
	FormatD32Sfloat
	FormatS8Uint
	FormatD24UnormS8Uint
	FormatD32SfloatS8Uint
)

var formatNames = map[Format]string{
	FormatUndefined:          "undefined",
	FormatR8Unorm:            "r8_unorm",
	FormatR8G8B8A8Unorm:      "r8g8b8a8_unorm",
	FormatR8G8B8A8Srgb:       "r8g8b8a8_srgb",
	FormatB8G8R8A8Unorm:      "b8g8r8a8_unorm",
	FormatB8G8R8A8Srgb:       "b8g8r8a8_srgb",
	FormatR16G16B16A16Sfloat: "r16g16b16a16_sfloat",
	FormatR32Sfloat:          "r32_sfloat",
	FormatR32G32Sfloat:       "r32g32_sfloat",
	FormatR32G32B32Sfloat:    "r32g32b32_sfloat",
	FormatR32G32B32A32Sfloat: "r32g32b32a32_sfloat",
	FormatD16Unorm:           "d16_unorm",
	FormatD32Sfloat:          "d32_sfloat",
	FormatS8Uint:             "s8_uint",
	FormatD24UnormS8Uint:     "d24_unorm_s8_uint",
	FormatD32SfloatS8Uint:    "d32_sfloat_s8_uint",
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return "unknown"
}

// HasDepth reports whether the format carries a depth component.
func (f Format) HasDepth() bool {
	switch f {
	case FormatD16Unorm, FormatD32Sfloat, FormatD24UnormS8Uint, FormatD32SfloatS8Uint:
		return true
	}
	return false
}

// HasStencil reports whether the format carries a stencil component.
func (f Format) HasStencil() bool {
	switch f {
	case FormatS8Uint, FormatD24UnormS8Uint, FormatD32SfloatS8Uint:
		return true
	}
	return false
}

// IsDepthStencil reports whether the format is usable as a depth/stencil attachment.
func (f Format) IsDepthStencil() bool {
	return f.HasDepth() || f.HasStencil()
}

// Aspect derives the image aspect mask from the format.
func (f Format) Aspect() ImageAspect {
	if !f.IsDepthStencil() {
		return AspectColor
	}
	var aspect ImageAspect
	if f.HasDepth() {
		aspect |= AspectDepth
	}
	if f.HasStencil() {
		aspect |= AspectStencil
	}
	return aspect
}

// ColorSpace is the presentation colour space of a swapchain.
type ColorSpace int

// Colour spaces.
const (
	ColorSpaceSrgbNonlinear ColorSpace = iota
)
