// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"encoding/json"
	"flag"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/devblok/framegraph/core"
	"github.com/devblok/framegraph/device"
)

var (
	debug = flag.Bool("debug", false, "Enable the validation layer")
	pick  = flag.Bool("select", false, "Print only the device that would be picked for rendering")
)

func main() {
	flag.Parse()

	cfg := core.DefaultConfiguration()
	cfg.Instance.DebugMode = *debug
	logger := log.New()
	logger.SetOutput(os.Stderr)

	instance, err := device.NewInstance(cfg.Instance, nil, nil, device.WithLogger(logger))
	if err != nil {
		logger.WithError(err).Fatal("vulkan instance")
	}
	defer instance.Destroy()

	infos := instance.PhysicalDevices()
	var out interface{} = infos
	if *pick {
		idx, err := device.SelectPhysicalDevice(infos, cfg.Renderer.DeviceExtensions)
		if err != nil {
			logger.WithError(err).Error("select device")
			return
		}
		out = infos[idx]
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.WithError(err).Error("encode devices")
	}
}
