// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package device bootstraps Vulkan: it creates the instance, describes and
// selects physical devices and queue families, and creates the logical
// device a vkr driver runs on.
package device

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/devblok/framegraph/core"
)

var (
	// ErrNoSuitableDevice is returned when no physical device qualifies.
	ErrNoSuitableDevice = errors.New("no suitable physical device")

	// ErrNoQueueFamily is returned when graphics or present support is missing.
	ErrNoQueueFamily = errors.New("no suitable queue family")
)

// DeviceType is the kind of a physical device.
type DeviceType int

// Device kinds, in no particular order.
const (
	DeviceTypeOther DeviceType = iota
	DeviceTypeIntegrated
	DeviceTypeDiscrete
	DeviceTypeVirtual
	DeviceTypeCPU
)

var deviceTypeNames = map[DeviceType]string{
	DeviceTypeOther:      "other",
	DeviceTypeIntegrated: "integrated",
	DeviceTypeDiscrete:   "discrete",
	DeviceTypeVirtual:    "virtual",
	DeviceTypeCPU:        "cpu",
}

func (t DeviceType) String() string {
	if n, ok := deviceTypeNames[t]; ok {
		return n
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (t DeviceType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// rank orders device types by preference, higher is better.
func (t DeviceType) rank() int {
	switch t {
	case DeviceTypeDiscrete:
		return 4
	case DeviceTypeIntegrated:
		return 3
	case DeviceTypeVirtual:
		return 2
	case DeviceTypeCPU:
		return 1
	}
	return 0
}

// PhysicalDeviceInfo describes available physical properties of a rendering device
type PhysicalDeviceInfo struct {
	ID            int
	VendorID      int
	DriverVersion int
	Name          string
	Type          DeviceType
	Invalid       bool
	Extensions    []string
	Layers        []string
	Memory        uint64
}

// HasExtensions reports whether every extension in names is supported.
func (p PhysicalDeviceInfo) HasExtensions(names []string) bool {
	supported := make(map[string]bool, len(p.Extensions))
	for _, ext := range p.Extensions {
		supported[ext] = true
	}
	for _, name := range names {
		if !supported[core.TrimString(name)] {
			return false
		}
	}
	return true
}

// SelectPhysicalDevice returns the index of the best device in infos that
// supports every required extension. Discrete devices beat integrated ones,
// then virtual, then cpu; more memory breaks ties.
func SelectPhysicalDevice(infos []PhysicalDeviceInfo, required []string) (int, error) {
	candidates := make([]int, 0, len(infos))
	for idx, info := range infos {
		if info.Invalid || !info.HasExtensions(required) {
			continue
		}
		candidates = append(candidates, idx)
	}
	if len(candidates) == 0 {
		return 0, errors.Wrapf(ErrNoSuitableDevice, "%d devices, required extensions %v", len(infos), required)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := infos[candidates[i]], infos[candidates[j]]
		if a.Type.rank() != b.Type.rank() {
			return a.Type.rank() > b.Type.rank()
		}
		return a.Memory > b.Memory
	})
	return candidates[0], nil
}

// QueueFamily describes the capabilities of one queue family.
type QueueFamily struct {
	Index    uint32
	Count    uint32
	Graphics bool
	Present  bool
}

// SelectQueueFamilies picks the graphics and present families. A family
// doing both is preferred over two separate ones.
func SelectQueueFamilies(families []QueueFamily) (graphics, present uint32, err error) {
	var foundGraphics, foundPresent bool
	for _, f := range families {
		if f.Count == 0 {
			continue
		}
		if f.Graphics && f.Present {
			return f.Index, f.Index, nil
		}
		if f.Graphics && !foundGraphics {
			graphics, foundGraphics = f.Index, true
		}
		if f.Present && !foundPresent {
			present, foundPresent = f.Index, true
		}
	}
	if !foundGraphics || !foundPresent {
		return 0, 0, errors.Wrapf(ErrNoQueueFamily, "graphics %v, present %v", foundGraphics, foundPresent)
	}
	return graphics, present, nil
}
