//go:build vulkan

package vulkan

import (
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/weqqr/videoland/rhi"
)

// buffer is a linear allocation. Host buffers stay persistently mapped
// for their whole lifetime; coherent memory makes writes visible
// without explicit flushes.
type buffer struct {
	device   *Device
	handle   vk.Buffer
	memory   vk.DeviceMemory
	size     int64
	memSize  int64
	location rhi.BufferLocation
	mapped   unsafe.Pointer

	mu        sync.Mutex
	destroyed bool
}

// CreateBuffer creates a buffer of desc.Size bytes and binds fresh
// memory to it.
func (d *Device) CreateBuffer(desc rhi.BufferDesc) (rhi.Buffer, error) {
	if desc.Size <= 0 {
		return nil, fmt.Errorf("vulkan: buffer %q has size %d", desc.Label, desc.Size)
	}

	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       mapBufferUsage(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if res := vk.CreateBuffer(d.handle, &info, nil, &handle); res != vk.Success {
		return nil, fmt.Errorf("vulkan: vkCreateBuffer: %v", vk.Error(res))
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle, handle, &req)
	req.Deref()

	props := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if desc.Location == rhi.LocationHost {
		props = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}

	memory, err := d.allocator.allocate(req, props)
	if err != nil {
		vk.DestroyBuffer(d.handle, handle, nil)
		return nil, err
	}
	if res := vk.BindBufferMemory(d.handle, handle, memory, 0); res != vk.Success {
		d.allocator.free(memory, int64(req.Size))
		vk.DestroyBuffer(d.handle, handle, nil)
		return nil, fmt.Errorf("vulkan: vkBindBufferMemory: %v", vk.Error(res))
	}

	b := &buffer{
		device:   d,
		handle:   handle,
		memory:   memory,
		size:     desc.Size,
		memSize:  int64(req.Size),
		location: desc.Location,
	}

	if desc.Location == rhi.LocationHost {
		var ptr unsafe.Pointer
		if res := vk.MapMemory(d.handle, memory, 0, vk.DeviceSize(desc.Size), 0, &ptr); res != vk.Success {
			d.allocator.free(memory, int64(req.Size))
			vk.DestroyBuffer(d.handle, handle, nil)
			return nil, fmt.Errorf("vulkan: vkMapMemory: %v", vk.Error(res))
		}
		b.mapped = ptr
	}
	return b, nil
}

func (b *buffer) Size() int64 {
	return b.size
}

func (b *buffer) Location() rhi.BufferLocation {
	return b.location
}

// Write copies data into the mapped memory at offset.
func (b *buffer) Write(offset int64, data []byte) error {
	if b.location != rhi.LocationHost {
		return rhi.ErrBufferNotHostVisible
	}
	if offset < 0 || offset+int64(len(data)) > b.size {
		return fmt.Errorf("vulkan: write of %d bytes at offset %d exceeds buffer size %d", len(data), offset, b.size)
	}
	if len(data) == 0 {
		return nil
	}
	vk.Memcopy(unsafe.Add(b.mapped, offset), data)
	return nil
}

// Read copies len(data) bytes out of the mapped memory at offset.
func (b *buffer) Read(offset int64, data []byte) error {
	if b.location != rhi.LocationHost {
		return rhi.ErrBufferNotHostVisible
	}
	if offset < 0 || offset+int64(len(data)) > b.size {
		return fmt.Errorf("vulkan: read of %d bytes at offset %d exceeds buffer size %d", len(data), offset, b.size)
	}
	if len(data) == 0 {
		return nil
	}
	src := unsafe.Slice((*byte)(unsafe.Add(b.mapped, offset)), len(data))
	copy(data, src)
	return nil
}

// Destroy queues the buffer and its memory for deferred release.
func (b *buffer) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	b.mu.Unlock()

	d := b.device
	handle := b.handle
	memory := b.memory
	mapped := b.mapped
	memSize := b.memSize
	d.deferRelease(func() {
		if mapped != nil {
			vk.UnmapMemory(d.handle, memory)
		}
		vk.DestroyBuffer(d.handle, handle, nil)
		d.allocator.free(memory, memSize)
	})
}

func mapBufferUsage(usage rhi.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits
	if usage&rhi.BufferUsageVertex != 0 {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if usage&rhi.BufferUsageIndex != 0 {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if usage&rhi.BufferUsageUniform != 0 {
		flags |= vk.BufferUsageUniformBufferBit
	}
	if usage&rhi.BufferUsageTransferSrc != 0 {
		flags |= vk.BufferUsageTransferSrcBit
	}
	if usage&rhi.BufferUsageTransferDst != 0 {
		flags |= vk.BufferUsageTransferDstBit
	}
	return vk.BufferUsageFlags(flags)
}
