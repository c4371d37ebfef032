//go:build vulkan

package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/weqqr/videoland/rhi"
)

// allocator hands out device memory one allocation per resource and
// tracks totals so leaks surface at device close.
type allocator struct {
	device   vk.Device
	memProps vk.PhysicalDeviceMemoryProperties

	mu        sync.Mutex
	count     int
	totalSize int64
}

func newAllocator(device vk.Device, physicalDevice vk.PhysicalDevice) *allocator {
	a := &allocator{device: device}
	vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &a.memProps)
	a.memProps.Deref()
	return a
}

// findMemoryType picks a memory type allowed by typeBits that carries
// all the wanted property flags.
func (a *allocator) findMemoryType(typeBits uint32, props vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < a.memProps.MemoryTypeCount; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		a.memProps.MemoryTypes[i].Deref()
		if a.memProps.MemoryTypes[i].PropertyFlags&props == props {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: type bits %#x, properties %#x", rhi.ErrNoMatchingMemoryType, typeBits, props)
}

// allocate binds a fresh device memory block for the given
// requirements.
func (a *allocator) allocate(req vk.MemoryRequirements, props vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	typeIndex, err := a.findMemoryType(req.MemoryTypeBits, props)
	if err != nil {
		return vk.DeviceMemory(vk.NullHandle), err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: typeIndex,
	}
	var memory vk.DeviceMemory
	switch res := vk.AllocateMemory(a.device, &allocInfo, nil, &memory); res {
	case vk.Success:
	case vk.ErrorOutOfDeviceMemory:
		return vk.DeviceMemory(vk.NullHandle), fmt.Errorf("%w: %d bytes", rhi.ErrOutOfDeviceMemory, req.Size)
	case vk.ErrorOutOfHostMemory:
		return vk.DeviceMemory(vk.NullHandle), fmt.Errorf("%w: %d bytes", rhi.ErrOutOfHostMemory, req.Size)
	default:
		return vk.DeviceMemory(vk.NullHandle), fmt.Errorf("vulkan: vkAllocateMemory: %v", vk.Error(res))
	}

	a.mu.Lock()
	a.count++
	a.totalSize += int64(req.Size)
	a.mu.Unlock()
	return memory, nil
}

func (a *allocator) free(memory vk.DeviceMemory, size int64) {
	vk.FreeMemory(a.device, memory, nil)

	a.mu.Lock()
	a.count--
	a.totalSize -= size
	a.mu.Unlock()
}

func (a *allocator) liveAllocations() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}
