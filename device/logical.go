// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/framegraph/core"
	"github.com/devblok/framegraph/gfx/vkr"
)

// Device is a logical device with its graphics and present queue families.
type Device struct {
	Info           PhysicalDeviceInfo
	GraphicsFamily uint32
	PresentFamily  uint32

	log            log.FieldLogger
	surface        vk.Surface
	physicalDevice vk.PhysicalDevice
	logicalDevice  vk.Device
	driver         *vkr.Driver
}

// CreateDevice creates a logical device on the physical device at index
// with one queue per distinct family and the configured device extensions.
func (v *Instance) CreateDevice(index int, cfg core.RendererConfiguration) (*Device, error) {
	if v.surface == nil {
		return nil, errors.New("surface not set")
	}
	families, err := v.QueueFamilies(index)
	if err != nil {
		return nil, err
	}
	graphics, present, err := SelectQueueFamilies(families)
	if err != nil {
		return nil, errors.Wrapf(err, "physical device %d", index)
	}

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: graphics,
		QueueCount:       1,
		PQueuePriorities: []float32{1},
	}}
	if present != graphics {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: present,
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		})
	}

	extensions := core.SafeStrings(cfg.DeviceExtensions)
	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}
	pd := v.availableDevices[index]
	var logicalDevice vk.Device
	if err := check("vk.CreateDevice()", vk.CreateDevice(pd, &dci, nil, &logicalDevice)); err != nil {
		return nil, err
	}

	d := &Device{
		Info:           describe(pd),
		GraphicsFamily: graphics,
		PresentFamily:  present,
		log:            v.log,
		surface:        v.surface,
		physicalDevice: pd,
		logicalDevice:  logicalDevice,
	}
	v.log.WithFields(log.Fields{
		"device":   d.Info.Name,
		"type":     d.Info.Type,
		"graphics": graphics,
		"present":  present,
	}).Info("logical device created")
	return d, nil
}

// NewDriver creates the vkr driver over the device. The driver takes over
// the logical device; destroying the Device destroys the driver.
func (d *Device) NewDriver(opts ...vkr.Option) (*vkr.Driver, error) {
	if d.driver != nil {
		return nil, errors.New("driver already created")
	}
	if d.logicalDevice == nil {
		return nil, errors.New("device destroyed")
	}
	opts = append([]vkr.Option{vkr.WithLogger(d.log)}, opts...)
	driver, err := vkr.New(vkr.Config{
		Device:         d.logicalDevice,
		PhysicalDevice: d.physicalDevice,
		Surface:        d.surface,
		GraphicsFamily: d.GraphicsFamily,
		PresentFamily:  d.PresentFamily,
	}, opts...)
	if err != nil {
		return nil, err
	}
	d.driver = driver
	return driver, nil
}

// Destroy destroys the driver, if one was created, and the logical device.
func (d *Device) Destroy() {
	if d.driver != nil {
		d.driver.Destroy()
		d.driver = nil
	} else if d.logicalDevice != nil {
		vk.DestroyDevice(d.logicalDevice, nil)
	}
	d.logicalDevice = nil
}
