// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"strconv"
	"strings"
	"time"

	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Renderer RendererConfiguration
	Instance InstanceConfiguration
	Log      LogConfiguration
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the delay between window event polls in milliseconds
	EventPollDelay int
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	SwapchainSize    uint32
	DeviceExtensions []string

	ScreenWidth  uint32
	ScreenHeight uint32

	// FramesInFlight is the number of frames recorded ahead of the GPU.
	FramesInFlight int

	// FrameTimeout bounds the wait for a frame slot to be released by the GPU.
	FrameTimeout time.Duration

	// AssetArchive is a path to the kar archive holding shaders and meshes.
	AssetArchive string
}

// InstanceConfiguration is used to configure the graphics API instance
type InstanceConfiguration struct {
	ApplicationName string
	DebugMode       bool
	Extensions      []string
	Layers          []string
}

// LogConfiguration is used to configure logging
type LogConfiguration struct {
	Level string
	JSON  bool
}

// DefaultConfiguration returns the configuration used when nothing is overridden
func DefaultConfiguration() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			EventPollDelay:  5,
		},
		Renderer: RendererConfiguration{
			SwapchainSize:    3,
			DeviceExtensions: []string{"VK_KHR_swapchain"},
			ScreenWidth:      800,
			ScreenHeight:     600,
			FramesInFlight:   2,
			FrameTimeout:     time.Second,
		},
		Instance: InstanceConfiguration{
			ApplicationName: "Koru3D",
		},
		Log: LogConfiguration{
			Level: "info",
		},
	}
}

// Environment variables overriding the configuration.
const (
	EnvFramesPerSecond  = "KORU_FPS"
	EnvEventPollDelay   = "KORU_EVENT_POLL_DELAY"
	EnvSwapchainSize    = "KORU_SWAPCHAIN_SIZE"
	EnvDeviceExtensions = "KORU_DEVICE_EXTENSIONS"
	EnvScreenWidth      = "KORU_SCREEN_WIDTH"
	EnvScreenHeight     = "KORU_SCREEN_HEIGHT"
	EnvFramesInFlight   = "KORU_FRAMES_IN_FLIGHT"
	EnvFrameTimeout     = "KORU_FRAME_TIMEOUT"
	EnvAssetArchive     = "KORU_ASSET_ARCHIVE"
	EnvDebugMode        = "KORU_DEBUG"
	EnvLayers           = "KORU_LAYERS"
	EnvLogLevel         = "KORU_LOG_LEVEL"
	EnvLogJSON          = "KORU_LOG_JSON"
)

// LoadConfiguration overlays the default configuration with values from
// the given env files and the process environment, which wins.
func LoadConfiguration(files ...string) (Configuration, error) {
	cfg := DefaultConfiguration()

	values := map[string]string{}
	if len(files) > 0 {
		read, err := godotenv.Read(files...)
		if err != nil {
			return cfg, errors.Wrap(err, "read env files")
		}
		values = read
	}
	o := overlay{values: values}

	o.int(EnvFramesPerSecond, &cfg.Time.FramesPerSecond)
	o.int(EnvEventPollDelay, &cfg.Time.EventPollDelay)
	o.uint32(EnvSwapchainSize, &cfg.Renderer.SwapchainSize)
	o.list(EnvDeviceExtensions, &cfg.Renderer.DeviceExtensions)
	o.uint32(EnvScreenWidth, &cfg.Renderer.ScreenWidth)
	o.uint32(EnvScreenHeight, &cfg.Renderer.ScreenHeight)
	o.int(EnvFramesInFlight, &cfg.Renderer.FramesInFlight)
	o.duration(EnvFrameTimeout, &cfg.Renderer.FrameTimeout)
	o.string(EnvAssetArchive, &cfg.Renderer.AssetArchive)
	o.bool(EnvDebugMode, &cfg.Instance.DebugMode)
	o.list(EnvLayers, &cfg.Instance.Layers)
	o.string(EnvLogLevel, &cfg.Log.Level)
	o.bool(EnvLogJSON, &cfg.Log.JSON)
	if o.err != nil {
		return cfg, o.err
	}

	if cfg.Renderer.FramesInFlight < 1 {
		return cfg, errors.Errorf("%s must be at least 1, got %d", EnvFramesInFlight, cfg.Renderer.FramesInFlight)
	}
	return cfg, nil
}

// overlay applies string values onto typed fields, keeping the first error.
type overlay struct {
	values map[string]string
	err    error
}

func (o *overlay) lookup(key string) (string, bool) {
	if v := envy.Get(key, ""); v != "" {
		return v, true
	}
	v, ok := o.values[key]
	return v, ok && v != ""
}

func (o *overlay) fail(key string, err error) {
	if o.err == nil {
		o.err = errors.Wrapf(err, "parse %s", key)
	}
}

func (o *overlay) string(key string, dst *string) {
	if v, ok := o.lookup(key); ok {
		*dst = v
	}
}

func (o *overlay) list(key string, dst *[]string) {
	v, ok := o.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
}

func (o *overlay) int(key string, dst *int) {
	v, ok := o.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		o.fail(key, err)
		return
	}
	*dst = n
}

func (o *overlay) uint32(key string, dst *uint32) {
	v, ok := o.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		o.fail(key, err)
		return
	}
	*dst = uint32(n)
}

func (o *overlay) bool(key string, dst *bool) {
	v, ok := o.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		o.fail(key, err)
		return
	}
	*dst = b
}

func (o *overlay) duration(key string, dst *time.Duration) {
	v, ok := o.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		o.fail(key, err)
		return
	}
	*dst = d
}
