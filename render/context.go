// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package render records and submits frames. A frame is a Program of
// opcodes run against a GlobalContext; each opcode advances a State
// machine and fails when issued out of order.
package render

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/framegraph/core"
	"github.com/devblok/framegraph/gfx"
	"github.com/devblok/framegraph/resource"
)

// Defaults used when the configuration leaves a value unset.
const (
	DefaultFramesInFlight = 2
	DefaultFrameTimeout   = time.Second
)

// FrameContext holds the per frame objects. There is one per frame in flight.
type FrameContext struct {
	Index int

	Graphics gfx.CommandBuffer
	Transfer gfx.CommandBuffer

	ImageAvailable    gfx.Semaphore
	TransferCompleted gfx.Semaphore
	RenderCompleted   gfx.Semaphore

	// InFlight is signalled when the GPU is done with the frame.
	// It is created signalled so the first wait passes.
	InFlight gfx.Fence
}

func newFrameContext(drv gfx.Driver, index int) (*FrameContext, error) {
	f := &FrameContext{Index: index}
	var err error
	if f.Graphics, err = drv.AllocateCommandBuffer(gfx.GraphicsQueue); err != nil {
		return nil, errors.Wrap(err, "allocate graphics command buffer")
	}
	if f.Transfer, err = drv.AllocateCommandBuffer(gfx.TransferQueue); err != nil {
		f.destroy(drv)
		return nil, errors.Wrap(err, "allocate transfer command buffer")
	}
	for _, s := range []*gfx.Semaphore{&f.ImageAvailable, &f.TransferCompleted, &f.RenderCompleted} {
		if *s, err = drv.CreateSemaphore(); err != nil {
			f.destroy(drv)
			return nil, errors.Wrap(err, "create semaphore")
		}
	}
	if f.InFlight, err = drv.CreateFence(true); err != nil {
		f.destroy(drv)
		return nil, errors.Wrap(err, "create fence")
	}
	return f, nil
}

func (f *FrameContext) destroy(drv gfx.Driver) {
	drv.DestroyFence(f.InFlight)
	drv.DestroySemaphore(f.RenderCompleted)
	drv.DestroySemaphore(f.TransferCompleted)
	drv.DestroySemaphore(f.ImageAvailable)
	drv.FreeCommandBuffer(gfx.TransferQueue, f.Transfer)
	drv.FreeCommandBuffer(gfx.GraphicsQueue, f.Graphics)
	*f = FrameContext{Index: f.Index}
}

// Option configures a GlobalContext.
type Option func(*GlobalContext)

// WithLogger sets the logger of the context.
func WithLogger(l log.FieldLogger) Option {
	return func(g *GlobalContext) {
		g.log = l
	}
}

// GlobalContext owns the driver, the swapchain and the frame contexts.
// It implements resource.Context. Frames are recorded from a single
// goroutine.
type GlobalContext struct {
	driver gfx.Driver
	cfg    core.RendererConfiguration
	log    log.FieldLogger

	swapchain gfx.SwapchainState
	extent    gfx.Extent2D
	frames    []*FrameContext

	current    int
	imageIndex uint32
	presented  uint64
}

// NewGlobalContext creates the frame contexts. The swapchain is created
// separately with CreateSwapchain.
func NewGlobalContext(driver gfx.Driver, cfg core.RendererConfiguration, opts ...Option) (*GlobalContext, error) {
	if cfg.FramesInFlight < 1 {
		cfg.FramesInFlight = DefaultFramesInFlight
	}
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = DefaultFrameTimeout
	}
	g := &GlobalContext{
		driver: driver,
		cfg:    cfg,
		log:    log.StandardLogger(),
		extent: gfx.Extent2D{Width: cfg.ScreenWidth, Height: cfg.ScreenHeight},
	}
	for _, opt := range opts {
		opt(g)
	}
	if err := g.createFrames(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *GlobalContext) createFrames() error {
	g.frames = make([]*FrameContext, 0, g.cfg.FramesInFlight)
	for i := 0; i < g.cfg.FramesInFlight; i++ {
		f, err := newFrameContext(g.driver, i)
		if err != nil {
			g.destroyFrames()
			return errors.Wrapf(err, "frame context %d", i)
		}
		g.frames = append(g.frames, f)
	}
	g.current = 0
	return nil
}

func (g *GlobalContext) destroyFrames() {
	for _, f := range g.frames {
		f.destroy(g.driver)
	}
	g.frames = nil
}

// Driver implements resource.Context.
func (g *GlobalContext) Driver() gfx.Driver {
	return g.driver
}

// Swapchain implements resource.Context.
func (g *GlobalContext) Swapchain() gfx.SwapchainState {
	return g.swapchain
}

// Configuration returns the renderer configuration in use.
func (g *GlobalContext) Configuration() core.RendererConfiguration {
	return g.cfg
}

// CreateSwapchain creates the swapchain, replacing the current one.
func (g *GlobalContext) CreateSwapchain(extent gfx.Extent2D, format gfx.Format, colorSpace gfx.ColorSpace) error {
	old := g.swapchain.Swapchain
	sc, err := g.driver.CreateSwapchain(gfx.SwapchainInfo{
		Extent:        extent,
		Format:        format,
		ColorSpace:    colorSpace,
		MinImageCount: g.cfg.SwapchainSize,
		Old:           old,
	})
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	g.driver.DestroySwapchain(old)
	g.swapchain = sc
	g.extent = extent
	g.log.WithFields(log.Fields{
		"width":  extent.Width,
		"height": extent.Height,
		"format": format,
		"images": len(sc.Images),
	}).Info("swapchain created")
	return nil
}

// SetExtent sets the extent the next swapchain recreation uses,
// typically after the window was resized.
func (g *GlobalContext) SetExtent(extent gfx.Extent2D) {
	g.extent = extent
}

// RecreateSwapchain waits for the device to become idle, releases every
// resource that depends on the swapchain, so it is created again on next
// use, and then recreates the swapchain and the frame contexts.
func (g *GlobalContext) RecreateSwapchain(m *resource.Manager) error {
	if err := g.driver.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait idle")
	}
	if m != nil {
		if err := m.InvalidateSwapchain(g); err != nil {
			return errors.Wrap(err, "invalidate swapchain resources")
		}
	}
	if err := g.CreateSwapchain(g.extent, g.swapchain.Format, g.swapchain.ColorSpace); err != nil {
		return err
	}
	g.destroyFrames()
	return g.createFrames()
}

// CurrentFrameContext returns the frame context of the frame being recorded.
func (g *GlobalContext) CurrentFrameContext() *FrameContext {
	return g.frames[g.current]
}

// FramesInFlight returns the number of frame contexts.
func (g *GlobalContext) FramesInFlight() int {
	return len(g.frames)
}

// ImageIndex returns the swapchain image acquired for the current frame.
func (g *GlobalContext) ImageIndex() uint32 {
	return g.imageIndex
}

// Presented returns the number of frames presented.
func (g *GlobalContext) Presented() uint64 {
	return g.presented
}

func (g *GlobalContext) advance() {
	g.current = (g.current + 1) % len(g.frames)
	g.presented++
}

// replaceSemaphore swaps a semaphore left signalled by an aborted frame
// for a fresh one.
func (g *GlobalContext) replaceSemaphore(s *gfx.Semaphore) error {
	fresh, err := g.driver.CreateSemaphore()
	if err != nil {
		return err
	}
	g.driver.DestroySemaphore(*s)
	*s = fresh
	return nil
}

// replaceFence swaps a fence that was reset but never submitted for a
// signalled one.
func (g *GlobalContext) replaceFence(f *gfx.Fence) error {
	fresh, err := g.driver.CreateFence(true)
	if err != nil {
		return err
	}
	g.driver.DestroyFence(*f)
	*f = fresh
	return nil
}

// Destroy waits for the device, releases every resource of m and
// destroys the frame contexts and the swapchain.
func (g *GlobalContext) Destroy(m *resource.Manager) error {
	var first error
	if err := g.driver.WaitIdle(); err != nil {
		first = errors.Wrap(err, "wait idle")
	}
	if m != nil {
		if err := m.ReleaseAll(g); err != nil && first == nil {
			first = errors.Wrap(err, "release resources")
		}
	}
	g.destroyFrames()
	g.driver.DestroySwapchain(g.swapchain.Swapchain)
	g.swapchain = gfx.SwapchainState{}
	return first
}
