// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vkr implements gfx.Driver on top of Vulkan. Native objects live
// in a handle registry; the renderer only ever sees gfx handles.
package vkr

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/framegraph/gfx"
)

// ErrInvalidHandle is returned when a handle does not name a live object
// of the expected kind.
var ErrInvalidHandle = errors.New("vkr: invalid handle")

var _ gfx.Driver = (*Driver)(nil)

// Config holds the native objects a Driver is created over. The driver
// takes ownership of Device; the instance level objects stay with the caller.
type Config struct {
	Device         vk.Device
	PhysicalDevice vk.PhysicalDevice
	Surface        vk.Surface
	GraphicsFamily uint32
	PresentFamily  uint32
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger of the driver.
func WithLogger(l log.FieldLogger) Option {
	return func(d *Driver) {
		d.log = l
	}
}

// Driver is a Vulkan gfx.Driver.
type Driver struct {
	cfg       Config
	log       log.FieldLogger
	allocator *MemoryAllocator
	objects   *registry

	graphicsQueue vk.Queue
	presentQueue  vk.Queue

	// pools per queue family
	pools         map[uint32]vk.CommandPool
	pipelineCache vk.PipelineCache
}

// New creates a driver over the logical device in cfg, fetching its queues
// and creating a resettable command pool per distinct queue family.
func New(cfg Config, opts ...Option) (*Driver, error) {
	if cfg.Device == nil || cfg.PhysicalDevice == nil {
		return nil, errors.New("vkr: device not set")
	}
	d := &Driver{
		cfg:       cfg,
		log:       log.StandardLogger(),
		allocator: NewMemoryAllocator(cfg.Device, cfg.PhysicalDevice),
		objects:   newRegistry(),
		pools:     make(map[uint32]vk.CommandPool),
	}
	for _, opt := range opts {
		opt(d)
	}

	vk.GetDeviceQueue(cfg.Device, cfg.GraphicsFamily, 0, &d.graphicsQueue)
	vk.GetDeviceQueue(cfg.Device, cfg.PresentFamily, 0, &d.presentQueue)

	for _, family := range []uint32{cfg.GraphicsFamily, cfg.PresentFamily} {
		if _, ok := d.pools[family]; ok {
			continue
		}
		pool, err := d.createCommandPool(family)
		if err != nil {
			d.destroyPools()
			return nil, err
		}
		d.pools[family] = pool
	}

	pcci := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	if err := check("vk.CreatePipelineCache()", vk.CreatePipelineCache(cfg.Device, &pcci, nil, &d.pipelineCache)); err != nil {
		d.destroyPools()
		return nil, err
	}

	d.log.WithFields(log.Fields{
		"graphicsFamily": cfg.GraphicsFamily,
		"presentFamily":  cfg.PresentFamily,
	}).Debug("vulkan driver created")
	return d, nil
}

func (d *Driver) createCommandPool(family uint32) (vk.CommandPool, error) {
	createInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: family,
	}
	var pool vk.CommandPool
	if err := check("vk.CreateCommandPool()", vk.CreateCommandPool(d.cfg.Device, &createInfo, nil, &pool)); err != nil {
		return nil, err
	}
	return pool, nil
}

func (d *Driver) destroyPools() {
	for family, pool := range d.pools {
		vk.DestroyCommandPool(d.cfg.Device, pool, nil)
		delete(d.pools, family)
	}
}

// family returns the queue family that serves q. Transfer work runs on the
// graphics family so uploaded images need no ownership transfer.
func (d *Driver) family(q gfx.Queue) uint32 {
	if q == gfx.PresentQueue {
		return d.cfg.PresentFamily
	}
	return d.cfg.GraphicsFamily
}

func (d *Driver) queue(q gfx.Queue) vk.Queue {
	if q == gfx.PresentQueue {
		return d.presentQueue
	}
	return d.graphicsQueue
}

// SurfaceFormat picks the swapchain format for the surface. BGRA8 unorm is
// preferred; otherwise the first format the renderer knows is used.
func (d *Driver) SurfaceFormat() (gfx.Format, gfx.ColorSpace, error) {
	var count uint32
	if err := check("vk.GetPhysicalDeviceSurfaceFormats()",
		vk.GetPhysicalDeviceSurfaceFormats(d.cfg.PhysicalDevice, d.cfg.Surface, &count, nil)); err != nil {
		return gfx.FormatUndefined, 0, err
	}
	surfaceFormats := make([]vk.SurfaceFormat, count)
	if err := check("vk.GetPhysicalDeviceSurfaceFormats()",
		vk.GetPhysicalDeviceSurfaceFormats(d.cfg.PhysicalDevice, d.cfg.Surface, &count, surfaceFormats)); err != nil {
		return gfx.FormatUndefined, 0, err
	}
	native := make([]vk.Format, 0, count)
	for idx := range surfaceFormats {
		surfaceFormats[idx].Deref()
		native = append(native, surfaceFormats[idx].Format)
	}
	format, ok := chooseSurfaceFormat(native)
	if !ok {
		return gfx.FormatUndefined, 0, errors.New("vkr: surface has no supported format")
	}
	return format, gfx.ColorSpaceSrgbNonlinear, nil
}

func chooseSurfaceFormat(native []vk.Format) (gfx.Format, bool) {
	if len(native) == 1 && native[0] == vk.FormatUndefined {
		return gfx.FormatB8G8R8A8Unorm, true
	}
	var fallback gfx.Format
	found := false
	for _, f := range native {
		if f == vk.FormatB8g8r8a8Unorm {
			return gfx.FormatB8G8R8A8Unorm, true
		}
		if g, ok := gfxFormat(f); ok && !found && !g.IsDepthStencil() {
			fallback, found = g, true
		}
	}
	return fallback, found
}

// Objects returns the number of live native objects.
func (d *Driver) Objects() int {
	return d.objects.len()
}

// Destroy waits for the device, destroys every object still registered,
// newest first, then the command pools and the logical device.
func (d *Driver) Destroy() {
	if d.cfg.Device == nil {
		return
	}
	vk.DeviceWaitIdle(d.cfg.Device)
	leaked := d.objects.drain()
	if len(leaked) > 0 {
		d.log.WithField("count", len(leaked)).Warn("destroying objects left alive")
	}
	for _, o := range leaked {
		o.destroy(d)
	}
	d.destroyPools()
	vk.DestroyPipelineCache(d.cfg.Device, d.pipelineCache, nil)
	vk.DestroyDevice(d.cfg.Device, nil)
	d.cfg.Device = nil
	d.log.Debug("vulkan driver destroyed")
}
