// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// ErrNoMemoryType is returned when no memory type satisfies a request.
var ErrNoMemoryType = errors.New("suitable memory type not found")

// Memory defines a usable memory region.
type Memory struct {
	device vk.Device
	memory vk.DeviceMemory
	size   vk.DeviceSize
	mapped bool
}

// Get returns the vulkan memory handle.
func (m *Memory) Get() vk.DeviceMemory {
	return m.memory
}

// Len returns the size of the allocation.
func (m *Memory) Len() uint64 {
	return uint64(m.size)
}

// Write maps the memory, copies data to offset and unmaps it again.
func (m *Memory) Write(offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if offset+uint64(len(data)) > uint64(m.size) {
		return errors.Errorf("write of %d bytes at %d overflows memory of %d", len(data), offset, m.size)
	}
	var mapped unsafe.Pointer
	if err := check("vk.MapMemory()", vk.MapMemory(m.device, m.memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &mapped)); err != nil {
		return err
	}
	m.mapped = true
	copy(unsafe.Slice((*byte)(mapped), len(data)), data)
	m.Unmap()
	return nil
}

// Unmap removes the memory mapping if it was mapped.
func (m *Memory) Unmap() {
	if m.mapped {
		vk.UnmapMemory(m.device, m.memory)
		m.mapped = false
	}
}

// Release frees memory after unmapping it if previously mapped.
func (m *Memory) Release() {
	if m.memory == nil {
		return
	}
	m.Unmap()
	vk.FreeMemory(m.device, m.memory, nil)
	m.memory = nil
}

// MemoryAllocator is responsible returning usable
// memory for any resources that may need it.
type MemoryAllocator struct {
	device        vk.Device
	memProperties vk.PhysicalDeviceMemoryProperties
}

// NewMemoryAllocator creates a new memory allocator. Allocates for the logical device,
// reads memory properties of the physical device to influence allocation.
func NewMemoryAllocator(device vk.Device, phyDevice vk.PhysicalDevice) *MemoryAllocator {
	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(phyDevice, &memProperties)
	memProperties.Deref()
	for idx := uint32(0); idx < memProperties.MemoryTypeCount; idx++ {
		memProperties.MemoryTypes[idx].Deref()
	}

	return &MemoryAllocator{
		device:        device,
		memProperties: memProperties,
	}
}

// Malloc returns a usable memory chunk ready for use.
func (ma *MemoryAllocator) Malloc(req vk.MemoryRequirements, prop vk.MemoryPropertyFlagBits) (Memory, error) {
	memTypeIdx, err := findMemoryType(ma.memoryTypes(), req.MemoryTypeBits, vk.MemoryPropertyFlags(prop))
	if err != nil {
		return Memory{}, err
	}

	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: memTypeIdx,
	}

	var memory vk.DeviceMemory
	if err := check("vk.AllocateMemory()", vk.AllocateMemory(ma.device, &mai, nil, &memory)); err != nil {
		return Memory{}, err
	}
	return Memory{
		device: ma.device,
		memory: memory,
		size:   req.Size,
	}, nil
}

func (ma *MemoryAllocator) memoryTypes() []vk.MemoryPropertyFlags {
	types := make([]vk.MemoryPropertyFlags, ma.memProperties.MemoryTypeCount)
	for idx := range types {
		types[idx] = ma.memProperties.MemoryTypes[idx].PropertyFlags
	}
	return types
}

// findMemoryType returns the first memory type allowed by filter that has
// every property in prop.
func findMemoryType(types []vk.MemoryPropertyFlags, filter uint32, prop vk.MemoryPropertyFlags) (uint32, error) {
	for idx := uint32(0); idx < uint32(len(types)); idx++ {
		if filter&(1<<idx) != 0 && types[idx]&prop == prop {
			return idx, nil
		}
	}
	return 0, errors.Wrapf(ErrNoMemoryType, "filter %#x, properties %#x", filter, prop)
}

func memoryProperties(hostVisible bool) vk.MemoryPropertyFlagBits {
	if hostVisible {
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	return vk.MemoryPropertyDeviceLocalBit
}
