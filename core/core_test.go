// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/gobuffalo/envy"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/framegraph/core"
)

func writeEnv(c *qt.C, content string) string {
	path := filepath.Join(c.TempDir(), "koru.env")
	c.Assert(os.WriteFile(path, []byte(content), 0o600), qt.IsNil)
	return path
}

func TestLoadConfigurationDefaults(t *testing.T) {
	c := qt.New(t)
	cfg, err := core.LoadConfiguration()
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Renderer.FramesInFlight, qt.Equals, core.DefaultConfiguration().Renderer.FramesInFlight)
	c.Assert(cfg.Renderer.DeviceExtensions, qt.DeepEquals, []string{"VK_KHR_swapchain"})
}

func TestLoadConfigurationFromFile(t *testing.T) {
	c := qt.New(t)
	path := writeEnv(c, `
KORU_FPS=144
KORU_SCREEN_WIDTH=1280
KORU_SCREEN_HEIGHT=720
KORU_FRAMES_IN_FLIGHT=3
KORU_FRAME_TIMEOUT=250ms
KORU_DEVICE_EXTENSIONS=VK_KHR_swapchain, VK_KHR_maintenance1
KORU_ASSET_ARCHIVE=assets.kar
KORU_LOG_JSON=true
`)
	cfg, err := core.LoadConfiguration(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Time.FramesPerSecond, qt.Equals, 144)
	c.Assert(cfg.Renderer.ScreenWidth, qt.Equals, uint32(1280))
	c.Assert(cfg.Renderer.ScreenHeight, qt.Equals, uint32(720))
	c.Assert(cfg.Renderer.FramesInFlight, qt.Equals, 3)
	c.Assert(cfg.Renderer.FrameTimeout, qt.Equals, 250*time.Millisecond)
	c.Assert(cfg.Renderer.DeviceExtensions, qt.DeepEquals, []string{"VK_KHR_swapchain", "VK_KHR_maintenance1"})
	c.Assert(cfg.Renderer.AssetArchive, qt.Equals, "assets.kar")
	c.Assert(cfg.Log.JSON, qt.IsTrue)
}

func TestLoadConfigurationEnvironmentWins(t *testing.T) {
	c := qt.New(t)
	path := writeEnv(c, "KORU_SCREEN_WIDTH=1280\n")
	envy.Temp(func() {
		envy.Set(core.EnvScreenWidth, "1920")
		cfg, err := core.LoadConfiguration(path)
		c.Assert(err, qt.IsNil)
		c.Assert(cfg.Renderer.ScreenWidth, qt.Equals, uint32(1920))
	})
}

func TestLoadConfigurationErrors(t *testing.T) {
	c := qt.New(t)

	_, err := core.LoadConfiguration(filepath.Join(c.TempDir(), "missing.env"))
	c.Assert(err, qt.ErrorMatches, "read env files: .*")

	_, err = core.LoadConfiguration(writeEnv(c, "KORU_FRAME_TIMEOUT=soon\n"))
	c.Assert(err, qt.ErrorMatches, "parse KORU_FRAME_TIMEOUT: .*")

	_, err = core.LoadConfiguration(writeEnv(c, "KORU_FRAMES_IN_FLIGHT=0\n"))
	c.Assert(err, qt.ErrorMatches, "KORU_FRAMES_IN_FLIGHT must be at least 1, got 0")
}

func TestNewLogger(t *testing.T) {
	c := qt.New(t)
	logger, err := core.NewLogger(core.LogConfiguration{Level: "debug", JSON: true})
	c.Assert(err, qt.IsNil)
	c.Assert(logger.GetLevel(), qt.Equals, log.DebugLevel)
	_, ok := logger.Formatter.(*log.JSONFormatter)
	c.Assert(ok, qt.IsTrue)

	_, err = core.NewLogger(core.LogConfiguration{Level: "loud"})
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestTime(t *testing.T) {
	c := qt.New(t)
	tm := core.NewTime(core.TimeConfiguration{FramesPerSecond: 1000, EventPollDelay: 1})
	defer tm.Stop()

	c.Assert(tm.Fps(), qt.Equals, 1000)
	<-tm.FpsTicker().C
	<-tm.EventTicker().C
	tm.Frame()
	tm.Frame()
	c.Assert(tm.Frames(), qt.Equals, uint64(2))
	c.Assert(tm.MeasuredFps() > 0, qt.IsTrue)
}

func TestSliceUint32(t *testing.T) {
	c := qt.New(t)
	words := core.SliceUint32([]byte{1, 0, 0, 0, 2, 0, 0, 0, 3})
	c.Assert(words, qt.HasLen, 2)
	c.Assert(core.SliceUint32([]byte{1, 2}), qt.HasLen, 0)
}

func TestSafeStrings(t *testing.T) {
	c := qt.New(t)
	c.Assert(core.SafeStrings([]string{"a", "b\x00"}), qt.DeepEquals, []string{"a\x00", "b\x00"})
	c.Assert(core.TrimString("VK_KHR_swapchain\x00\x00junk"), qt.Equals, "VK_KHR_swapchain")
}

func BenchmarkLoadConfiguration(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := core.LoadConfiguration(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSliceUint32(b *testing.B) {
	for _, size := range []int{100, 1000, 100000} {
		data := make([]byte, size)
		b.Run(strconv.Itoa(size), func(b *testing.B) {
			for idx := 0; idx < b.N; idx++ {
				core.SliceUint32(data)
			}
		})
	}
}
