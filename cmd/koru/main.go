// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"bytes"
	"flag"
	"os"
	"runtime"

	"github.com/gobuffalo/packd"
	"github.com/gobuffalo/packr"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/devblok/framegraph/core"
	"github.com/devblok/framegraph/device"
	"github.com/devblok/framegraph/gfx"
	"github.com/devblok/framegraph/render"
	"github.com/devblok/framegraph/resource"
	"github.com/devblok/framegraph/utility/kar"
)

func init() {
	runtime.LockOSThread()
}

const (
	defaultEnv     = "default.env"
	defaultArchive = "default.kar"
)

var (
	envFile     = flag.String("env", "", "Env file overriding the built-in configuration")
	archiveFile = flag.String("archive", "", "Asset archive to load instead of the built-in one")
)

// box holds the configuration and assets the binary falls back to.
var box = packr.NewBox("./assets")

func loadConfiguration() (core.Configuration, error) {
	if *envFile != "" {
		return core.LoadConfiguration(*envFile)
	}
	if !box.Has(defaultEnv) {
		return core.LoadConfiguration()
	}
	// godotenv reads files, so the built-in env is spilled to a temporary one
	data, err := box.Find(defaultEnv)
	if err != nil {
		return core.Configuration{}, errors.Wrap(err, "built-in env")
	}
	tmp, err := os.CreateTemp("", "koru-*.env")
	if err != nil {
		return core.Configuration{}, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return core.Configuration{}, err
	}
	if err := tmp.Close(); err != nil {
		return core.Configuration{}, err
	}
	return core.LoadConfiguration(tmp.Name())
}

func listBox(logger log.FieldLogger) {
	err := box.Walk(func(path string, f packd.File) error {
		logger.WithField("file", path).Debug("built-in asset")
		return nil
	})
	if err != nil {
		logger.WithError(err).Warn("listing built-in assets")
	}
}

// openArchive opens the archive named by the flag or the configuration,
// falling back to the built-in one. A nil archive means none was found.
func openArchive(cfg core.RendererConfiguration) (*kar.Archive, error) {
	path := *archiveFile
	if path == "" {
		path = cfg.AssetArchive
	}
	if path != "" {
		return kar.OpenFile(path)
	}
	if !box.Has(defaultArchive) {
		return nil, nil
	}
	data, err := box.Find(defaultArchive)
	if err != nil {
		return nil, errors.Wrap(err, "built-in archive")
	}
	return kar.Open(bytes.NewReader(data))
}

func newWindow(cfg core.RendererConfiguration) (*sdl.Window, error) {
	return sdl.CreateWindow("Koru3D",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.ScreenWidth),
		int32(cfg.ScreenHeight),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
}

func main() {
	flag.Parse()

	cfg, err := loadConfiguration()
	if err != nil {
		log.WithError(err).Fatal("configuration")
	}
	logger, err := core.NewLogger(cfg.Log)
	if err != nil {
		log.WithError(err).Fatal("logger")
	}
	listBox(logger)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("koru exited")
	}
}

func run(cfg core.Configuration, logger *log.Logger) error {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return errors.Wrap(err, "sdl.Init()")
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		return errors.Wrap(err, "sdl.VulkanLoadLibrary()")
	}
	defer sdl.VulkanUnloadLibrary()

	window, err := newWindow(cfg.Renderer)
	if err != nil {
		return errors.Wrap(err, "sdl.CreateWindow()")
	}
	defer window.Destroy()

	instance, err := device.NewInstance(cfg.Instance,
		sdl.VulkanGetVkGetInstanceProcAddr(),
		window.VulkanGetInstanceExtensions(),
		device.WithLogger(logger))
	if err != nil {
		return err
	}
	defer instance.Destroy()

	surface, err := window.VulkanCreateSurface(instance.Handle())
	if err != nil {
		return errors.Wrap(err, "sdl.VulkanCreateSurface()")
	}
	instance.SetSurface(surface)

	index, err := device.SelectPhysicalDevice(instance.PhysicalDevices(), cfg.Renderer.DeviceExtensions)
	if err != nil {
		return err
	}
	dev, err := instance.CreateDevice(index, cfg.Renderer)
	if err != nil {
		return err
	}
	defer dev.Destroy()

	driver, err := dev.NewDriver()
	if err != nil {
		return err
	}
	format, colorSpace, err := driver.SurfaceFormat()
	if err != nil {
		return err
	}

	g, err := render.NewGlobalContext(driver, cfg.Renderer, render.WithLogger(logger))
	if err != nil {
		return err
	}
	m := resource.NewManager(resource.WithLogger(logger))
	defer func() {
		if err := g.Destroy(m); err != nil {
			logger.WithError(err).Warn("render context teardown")
		}
	}()
	if err := g.CreateSwapchain(windowExtent(window), format, colorSpace); err != nil {
		return err
	}

	archive, err := openArchive(cfg.Renderer)
	if err != nil {
		return errors.Wrap(err, "open asset archive")
	}
	if archive != nil {
		defer archive.Close()
	}

	sc, err := newScene(g, m, archive, logger)
	if err != nil {
		return err
	}

	return loop(cfg.Time, window, g, sc, logger)
}

func windowExtent(window *sdl.Window) gfx.Extent2D {
	w, h := window.VulkanGetDrawableSize()
	return gfx.Extent2D{Width: uint32(w), Height: uint32(h)}
}

func loop(cfg core.TimeConfiguration, window *sdl.Window, g *render.GlobalContext, sc *scene, logger log.FieldLogger) error {
	t := core.NewTime(cfg)
	defer t.Stop()
	st := render.NewState()

	frames := t.FpsTicker()
	events := t.EventTicker()
	for {
		select {
		case <-events.C:
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.KeyboardEvent:
					if et.Keysym.Sym == sdl.K_ESCAPE {
						return nil
					}
				case *sdl.QuitEvent:
					return nil
				case *sdl.WindowEvent:
					if et.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
						g.SetExtent(windowExtent(window))
						if err := g.RecreateSwapchain(sc.m); err != nil {
							return err
						}
					}
				}
			}
		case <-frames.C:
			err := sc.frame.Execute(g, sc.m, sc.s, st)
			switch {
			case err == nil:
				t.Frame()
				if t.Frames()%600 == 0 {
					logger.WithField("fps", t.MeasuredFps()).Debug("frame rate")
				}
			case errors.Is(err, render.ErrSwapchainOutOfDate), errors.Is(err, render.ErrFrameTimeout):
				logger.WithError(err).Debug("frame skipped")
			default:
				return err
			}
		}
	}
}
