// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	"unsafe"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/framegraph/core"
	"github.com/devblok/framegraph/gfx"
)

const (
	validationLayer      = "VK_LAYER_KHRONOS_validation"
	debugReportExtension = "VK_EXT_debug_report"
)

// Option configures an Instance.
type Option func(*Instance)

// WithLogger sets the logger of the instance and of devices created from it.
func WithLogger(l log.FieldLogger) Option {
	return func(i *Instance) {
		i.log = l
	}
}

// Instance describes a Vulkan API Instance
type Instance struct {
	configuration core.InstanceConfiguration
	log           log.FieldLogger

	availableDevices []vk.PhysicalDevice
	surface          vk.Surface
	instance         vk.Instance
}

// NewInstance loads Vulkan through procAddr, or the default loader when it
// is nil, and creates an instance with the configured and given extensions.
func NewInstance(cfg core.InstanceConfiguration, procAddr unsafe.Pointer, extensions []string, opts ...Option) (*Instance, error) {
	v := &Instance{
		log: log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}

	cfg.Extensions = append(append([]string(nil), cfg.Extensions...), extensions...)
	cfg.Layers = append([]string(nil), cfg.Layers...)
	if cfg.DebugMode {
		cfg.Layers = append(cfg.Layers, validationLayer)
		cfg.Extensions = append(cfg.Extensions, debugReportExtension)
	}
	cfg.Extensions = core.SafeStrings(cfg.Extensions)
	cfg.Layers = core.SafeStrings(cfg.Layers)
	v.configuration = cfg

	if procAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return nil, errors.Wrap(err, "vk.SetDefaultGetInstanceProcAddr()")
		}
	} else {
		vk.SetGetInstanceProcAddr(procAddr)
	}
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "vk.Init()")
	}

	name := cfg.ApplicationName
	if name == "" {
		name = "framegraph"
	}
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         vk.MakeVersion(1, 0, 0),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PApplicationName:   core.SafeString(name),
		PEngineName:        "framegraph\x00",
	}
	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(cfg.Extensions)),
		PpEnabledExtensionNames: cfg.Extensions,
		EnabledLayerCount:       uint32(len(cfg.Layers)),
		PpEnabledLayerNames:     cfg.Layers,
	}
	if err := check("vk.CreateInstance()", vk.CreateInstance(&instanceInfo, nil, &v.instance)); err != nil {
		return nil, err
	}
	vk.InitInstance(v.instance)

	var deviceCount uint32
	if err := check("vk.EnumeratePhysicalDevices()", vk.EnumeratePhysicalDevices(v.instance, &deviceCount, nil)); err != nil {
		vk.DestroyInstance(v.instance, nil)
		return nil, err
	}
	v.availableDevices = make([]vk.PhysicalDevice, deviceCount)
	if err := check("vk.EnumeratePhysicalDevices()", vk.EnumeratePhysicalDevices(v.instance, &deviceCount, v.availableDevices)); err != nil {
		vk.DestroyInstance(v.instance, nil)
		return nil, err
	}

	v.log.WithFields(log.Fields{
		"devices":    deviceCount,
		"extensions": len(cfg.Extensions),
		"layers":     len(cfg.Layers),
	}).Debug("vulkan instance created")
	return v, nil
}

// Handle returns the native instance, as window toolkits need it to create
// surfaces.
func (v *Instance) Handle() vk.Instance {
	return v.instance
}

// PhysicalDevices describes every physical device, in enumeration order.
func (v *Instance) PhysicalDevices() []PhysicalDeviceInfo {
	pdi := make([]PhysicalDeviceInfo, len(v.availableDevices))
	for i, pd := range v.availableDevices {
		pdi[i] = describe(pd)
	}
	return pdi
}

func describe(pd vk.PhysicalDevice) PhysicalDeviceInfo {
	var info PhysicalDeviceInfo

	// Get extension info
	var numDeviceExtensions uint32
	if vk.EnumerateDeviceExtensionProperties(pd, "", &numDeviceExtensions, nil) != vk.Success {
		info.Invalid = true
	}
	deviceExt := make([]vk.ExtensionProperties, numDeviceExtensions)
	if vk.EnumerateDeviceExtensionProperties(pd, "", &numDeviceExtensions, deviceExt) != vk.Success {
		info.Invalid = true
	}
	for _, ext := range deviceExt {
		ext.Deref()
		info.Extensions = append(info.Extensions, vk.ToString(ext.ExtensionName[:]))
	}

	// Get layers info
	var numDeviceLayers uint32
	if vk.EnumerateDeviceLayerProperties(pd, &numDeviceLayers, nil) != vk.Success {
		info.Invalid = true
	}
	deviceLayers := make([]vk.LayerProperties, numDeviceLayers)
	if vk.EnumerateDeviceLayerProperties(pd, &numDeviceLayers, deviceLayers) != vk.Success {
		info.Invalid = true
	}
	for _, layer := range deviceLayers {
		layer.Deref()
		info.Layers = append(info.Layers, vk.ToString(layer.LayerName[:]))
	}

	// Get memory info
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &memoryProperties)
	memoryProperties.Deref()
	for iMem := uint32(0); iMem < memoryProperties.MemoryHeapCount; iMem++ {
		memoryProperties.MemoryHeaps[iMem].Deref()
		info.Memory += uint64(memoryProperties.MemoryHeaps[iMem].Size)
	}

	// Get general device info
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &properties)
	properties.Deref()
	info.ID = int(properties.DeviceID)
	info.VendorID = int(properties.VendorID)
	info.Name = vk.ToString(properties.DeviceName[:])
	info.DriverVersion = int(properties.DriverVersion)
	info.Type = deviceType(properties.DeviceType)
	return info
}

func deviceType(t vk.PhysicalDeviceType) DeviceType {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return DeviceTypeIntegrated
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return DeviceTypeDiscrete
	case vk.PhysicalDeviceTypeVirtualGpu:
		return DeviceTypeVirtual
	case vk.PhysicalDeviceTypeCpu:
		return DeviceTypeCPU
	}
	return DeviceTypeOther
}

// SetSurface sets the surface created by the window toolkit. The instance
// destroys it.
func (v *Instance) SetSurface(pSurface unsafe.Pointer) {
	v.surface = vk.SurfaceFromPointer(uintptr(pSurface))
}

// QueueFamilies describes the queue families of the physical device at
// index. Present support is checked against the surface.
func (v *Instance) QueueFamilies(index int) ([]QueueFamily, error) {
	if index < 0 || index >= len(v.availableDevices) {
		return nil, errors.Errorf("physical device %d out of range", index)
	}
	pd := v.availableDevices[index]

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, queueFamilies)

	families := make([]QueueFamily, 0, queueFamilyCount)
	for i := uint32(0); i < queueFamilyCount; i++ {
		queueFamilies[i].Deref()
		family := QueueFamily{
			Index:    i,
			Count:    queueFamilies[i].QueueCount,
			Graphics: queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0,
		}
		if v.surface != nil {
			var supportsPresent vk.Bool32
			if err := check("vk.GetPhysicalDeviceSurfaceSupport()",
				vk.GetPhysicalDeviceSurfaceSupport(pd, i, v.surface, &supportsPresent)); err != nil {
				return nil, err
			}
			family.Present = supportsPresent.B()
		}
		families = append(families, family)
	}
	return families, nil
}

// Destroy destroys the surface and the instance. Devices created from the
// instance have to be destroyed first.
func (v *Instance) Destroy() {
	if v.instance == nil {
		return
	}
	if v.surface != nil {
		vk.DestroySurface(v.instance, v.surface, nil)
		v.surface = nil
	}
	v.availableDevices = nil
	vk.DestroyInstance(v.instance, nil)
	v.instance = nil
}

// check returns nil on success and a gfx.NativeError otherwise.
func check(op string, res vk.Result) error {
	if err := vk.Error(res); err != nil {
		return gfx.NewNativeError(op, int32(res), err.Error())
	}
	return nil
}
