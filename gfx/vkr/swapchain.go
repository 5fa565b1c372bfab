// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/framegraph/gfx"
)

type swapchain struct {
	swapchain vk.Swapchain
	images    []gfx.Handle
}

func (s *swapchain) destroy(d *Driver) {
	for _, h := range s.images {
		take[*image](d.objects, h)
	}
	vk.DestroySwapchain(d.cfg.Device, s.swapchain, nil)
}

// CreateSwapchain implements gfx.Presenter. The extent follows the surface
// whenever the surface dictates one.
func (d *Driver) CreateSwapchain(info gfx.SwapchainInfo) (gfx.SwapchainState, error) {
	var caps vk.SurfaceCapabilities
	if err := check("vk.GetPhysicalDeviceSurfaceCapabilities()",
		vk.GetPhysicalDeviceSurfaceCapabilities(d.cfg.PhysicalDevice, d.cfg.Surface, &caps)); err != nil {
		return gfx.SwapchainState{}, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	compositeAlphaFlags := []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	}
	for _, flag := range compositeAlphaFlags {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	var old vk.Swapchain
	if info.Old != 0 {
		o, ok := lookup[*swapchain](d.objects, gfx.Handle(info.Old))
		if !ok {
			return gfx.SwapchainState{}, errors.Wrapf(ErrInvalidHandle, "swapchain %d", info.Old)
		}
		old = o.swapchain
	}

	extent := swapchainExtent(info.Extent, caps.CurrentExtent, caps.MinImageExtent, caps.MaxImageExtent)
	scci := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.cfg.Surface,
		MinImageCount:    imageCount(info.MinImageCount, caps.MinImageCount, caps.MaxImageCount),
		ImageFormat:      vkFormat(info.Format),
		ImageColorSpace:  vkColorSpace(info.ColorSpace),
		ImageExtent:      vkExtent2D(extent),
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     vk.SurfaceTransformIdentityBit,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		OldSwapchain:     old,
	}
	if d.cfg.GraphicsFamily != d.cfg.PresentFamily {
		scci.ImageSharingMode = vk.SharingModeConcurrent
		scci.QueueFamilyIndexCount = 2
		scci.PQueueFamilyIndices = []uint32{d.cfg.GraphicsFamily, d.cfg.PresentFamily}
	}

	var native vk.Swapchain
	if err := check("vk.CreateSwapchain()", vk.CreateSwapchain(d.cfg.Device, &scci, nil, &native)); err != nil {
		return gfx.SwapchainState{}, err
	}

	var numImages uint32
	if err := check("vk.GetSwapchainImages()", vk.GetSwapchainImages(d.cfg.Device, native, &numImages, nil)); err != nil {
		vk.DestroySwapchain(d.cfg.Device, native, nil)
		return gfx.SwapchainState{}, err
	}
	natives := make([]vk.Image, numImages)
	if err := check("vk.GetSwapchainImages()", vk.GetSwapchainImages(d.cfg.Device, native, &numImages, natives)); err != nil {
		vk.DestroySwapchain(d.cfg.Device, native, nil)
		return gfx.SwapchainState{}, err
	}

	sc := &swapchain{swapchain: native}
	state := gfx.SwapchainState{
		Swapchain:  gfx.Swapchain(d.objects.put(sc)),
		Format:     info.Format,
		ColorSpace: info.ColorSpace,
		Extent:     extent,
	}
	for _, img := range natives {
		h := d.objects.put(&image{image: img, presentable: true})
		sc.images = append(sc.images, h)
		state.Images = append(state.Images, gfx.Image(h))
	}

	d.log.WithFields(log.Fields{
		"width":  extent.Width,
		"height": extent.Height,
		"images": numImages,
		"format": info.Format,
	}).Debug("swapchain created")
	return state, nil
}

// swapchainExtent returns the surface's current extent when it has one,
// otherwise the requested extent clamped to the supported range.
func swapchainExtent(requested gfx.Extent2D, current, min, max vk.Extent2D) gfx.Extent2D {
	if current.Width != vk.MaxUint32 {
		return gfx.Extent2D{Width: current.Width, Height: current.Height}
	}
	return gfx.Extent2D{
		Width:  clamp(requested.Width, min.Width, max.Width),
		Height: clamp(requested.Height, min.Height, max.Height),
	}
}

// imageCount clamps the requested image count to the surface limits. A
// maximum of zero means no limit.
func imageCount(requested, min, max uint32) uint32 {
	if requested < min {
		requested = min
	}
	if max > 0 && requested > max {
		requested = max
	}
	return requested
}

func clamp(v, min, max uint32) uint32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// DestroySwapchain implements gfx.Presenter.
func (d *Driver) DestroySwapchain(sc gfx.Swapchain) {
	if o, ok := take[*swapchain](d.objects, gfx.Handle(sc)); ok {
		o.destroy(d)
	}
}

// AcquireNextImage implements gfx.Presenter.
func (d *Driver) AcquireNextImage(sc gfx.Swapchain, timeout time.Duration, signal gfx.Semaphore) (uint32, gfx.Result, error) {
	o, ok := lookup[*swapchain](d.objects, gfx.Handle(sc))
	if !ok {
		return 0, gfx.Success, errors.Wrapf(ErrInvalidHandle, "swapchain %d", sc)
	}
	var sem vk.Semaphore
	if signal != 0 {
		s, ok := lookup[*semaphore](d.objects, gfx.Handle(signal))
		if !ok {
			return 0, gfx.Success, errors.Wrapf(ErrInvalidHandle, "semaphore %d", signal)
		}
		sem = s.semaphore
	}

	var idx uint32
	res := vk.AcquireNextImage(d.cfg.Device, o.swapchain, timeoutNanos(timeout), sem, nil, &idx)
	if res == vk.Timeout {
		return 0, gfx.NotReady, gfx.ErrTimeout
	}
	if r, ok := result(res); ok {
		return idx, r, nil
	}
	return 0, gfx.Success, check("vk.AcquireNextImage()", res)
}

// Present implements gfx.Presenter.
func (d *Driver) Present(info gfx.PresentInfo) (gfx.Result, error) {
	o, ok := lookup[*swapchain](d.objects, gfx.Handle(info.Swapchain))
	if !ok {
		return gfx.Success, errors.Wrapf(ErrInvalidHandle, "swapchain %d", info.Swapchain)
	}
	wait, err := d.semaphores(info.Wait)
	if err != nil {
		return gfx.Success, err
	}
	res := vk.QueuePresent(d.presentQueue, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(wait)),
		PWaitSemaphores:    wait,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{o.swapchain},
		PImageIndices:      []uint32{info.ImageIndex},
	})
	if r, ok := result(res); ok {
		return r, nil
	}
	return gfx.Success, check("vk.QueuePresent()", res)
}
