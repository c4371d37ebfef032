//go:build vulkan

// Copyright 2026 The videoland Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"fmt"
	"sync"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/weqqr/videoland"
	"github.com/weqqr/videoland/rhi"
)

// waitSlice bounds a single vkWaitForFences call so WaitUntil can
// re-check the timeline; a waited fence may be retired and recycled by
// a concurrent waiter.
const waitSlice = 10 * time.Millisecond

// Device is an opened Vulkan device: one graphics queue, a command
// buffer per frame slot, and a fence-backed submission timeline.
type Device struct {
	instance *instance
	surface  vk.Surface
	adapter  *adapter

	handle vk.Device
	queue  vk.Queue

	allocator *allocator
	swapchain *swapchain

	commandPool vk.CommandPool

	// pipelineLayout is shared by every pipeline: one push-constant
	// block, no descriptor sets. Sharing it lets SetPushConstants
	// record before any pipeline is bound.
	pipelineLayout vk.PipelineLayout

	renderPassMu sync.Mutex
	renderPasses map[renderPassKey]vk.RenderPass

	waitTimeout time.Duration

	// mu guards the frame loop and lifecycle state.
	mu         sync.Mutex
	frames     [rhi.FrameLatency]frameSlot
	frameIndex uint64
	closed     bool

	// subMu guards the submission timeline.
	subMu     sync.Mutex
	submitted uint64
	completed uint64
	pending   []pendingSubmission
	fencePool []vk.Fence

	// gcMu guards the deferred-release queue.
	gcMu      sync.Mutex
	graveyard []deferredRelease
}

// frameSlot is one ring entry: the command buffer recorded for every
// FrameLatency-th frame and the submission that last used it.
type frameSlot struct {
	commandBuffer  vk.CommandBuffer
	lastSubmission rhi.SubmissionID
}

// pendingSubmission is an in-flight submission and the fence that
// signals its completion.
type pendingSubmission struct {
	id    uint64
	fence vk.Fence
}

// deferredRelease is one queued resource release tagged with the frame
// it was requested on.
type deferredRelease struct {
	frame   uint64
	release func()
}

func newDevice(inst *instance, surface vk.Surface, ad *adapter, opts *rhi.Options) (*Device, error) {
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: ad.queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}
	extensions := []string{safeString(vk.KhrSwapchainExtensionName)}

	deviceInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
	}

	var handle vk.Device
	if res := vk.CreateDevice(ad.physicalDevice, &deviceInfo, nil, &handle); res != vk.Success {
		return nil, fmt.Errorf("%w: vkCreateDevice: %v", rhi.ErrInitializationFailed, vk.Error(res))
	}

	var queue vk.Queue
	vk.GetDeviceQueue(handle, ad.queueFamily, 0, &queue)

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: ad.queueFamily,
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(handle, &poolInfo, nil, &pool); res != vk.Success {
		vk.DestroyDevice(handle, nil)
		return nil, fmt.Errorf("%w: vkCreateCommandPool: %v", rhi.ErrInitializationFailed, vk.Error(res))
	}

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: rhi.FrameLatency,
	}
	ring := make([]vk.CommandBuffer, rhi.FrameLatency)
	if res := vk.AllocateCommandBuffers(handle, &allocInfo, ring); res != vk.Success {
		vk.DestroyCommandPool(handle, pool, nil)
		vk.DestroyDevice(handle, nil)
		return nil, fmt.Errorf("%w: vkAllocateCommandBuffers: %v", rhi.ErrInitializationFailed, vk.Error(res))
	}

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		PushConstantRangeCount: 1,
		PPushConstantRanges: []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
			Offset:     0,
			Size:       rhi.PushConstantSize,
		}},
	}
	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(handle, &layoutInfo, nil, &layout); res != vk.Success {
		vk.DestroyCommandPool(handle, pool, nil)
		vk.DestroyDevice(handle, nil)
		return nil, fmt.Errorf("%w: vkCreatePipelineLayout: %v", rhi.ErrInitializationFailed, vk.Error(res))
	}

	d := &Device{
		instance:       inst,
		surface:        surface,
		adapter:        ad,
		handle:         handle,
		queue:          queue,
		commandPool:    pool,
		pipelineLayout: layout,
		renderPasses:   make(map[renderPassKey]vk.RenderPass),
		waitTimeout:    rhi.DefaultWaitTimeout,
	}
	if opts.WaitTimeout > 0 {
		d.waitTimeout = opts.WaitTimeout
	}
	for i := range d.frames {
		d.frames[i].commandBuffer = ring[i]
	}
	d.allocator = newAllocator(handle, ad.physicalDevice)
	d.swapchain = &swapchain{device: d, presentMode: opts.PresentMode}

	videoland.Logger().Info("vulkan device opened", "adapter", ad.name)
	return d, nil
}

// Adapter returns information about the selected physical device.
func (d *Device) Adapter() rhi.AdapterInfo {
	return rhi.AdapterInfo{
		Name:        d.adapter.name,
		QueueFamily: d.adapter.queueFamily,
	}
}

// ConfigureSwapchain builds or rebuilds the swapchain. Frames acquired
// before the call become invalid.
func (d *Device) ConfigureSwapchain(extent rhi.Extent2D, frameCount uint32) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return rhi.ErrContextClosed
	}
	d.mu.Unlock()
	return d.swapchain.configure(extent, frameCount)
}

// AcquireNextFrame blocks until the driver hands out a swapchain image.
func (d *Device) AcquireNextFrame() (*rhi.Frame, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, rhi.ErrContextClosed
	}
	d.mu.Unlock()
	return d.swapchain.acquire()
}

// submit queues one command buffer on the graphics queue and extends
// the timeline. The returned ID is reached once its fence signals.
func (d *Device) submit(cb vk.CommandBuffer, wait, signal []vk.Semaphore, waitStages []vk.PipelineStageFlags) (rhi.SubmissionID, error) {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	fence, err := d.acquireFenceLocked()
	if err != nil {
		return 0, err
	}

	info := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb},
		SignalSemaphoreCount: uint32(len(signal)),
		PSignalSemaphores:    signal,
	}
	if res := vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{info}, fence); res != vk.Success {
		d.fencePool = append(d.fencePool, fence)
		return 0, fmt.Errorf("%w: vkQueueSubmit: %v", rhi.ErrRecordingFailed, vk.Error(res))
	}

	d.submitted++
	d.pending = append(d.pending, pendingSubmission{id: d.submitted, fence: fence})
	return rhi.SubmissionID(d.submitted), nil
}

func (d *Device) acquireFenceLocked() (vk.Fence, error) {
	if n := len(d.fencePool); n > 0 {
		fence := d.fencePool[n-1]
		d.fencePool = d.fencePool[:n-1]
		return fence, nil
	}
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	var fence vk.Fence
	if res := vk.CreateFence(d.handle, &info, nil, &fence); res != vk.Success {
		return vk.Fence(vk.NullHandle), fmt.Errorf("%w: vkCreateFence: %v", rhi.ErrInitializationFailed, vk.Error(res))
	}
	return fence, nil
}

// retireLocked advances the completed counter past every signaled
// fence. Fences signal in submission order, so the scan stops at the
// first unsignaled one.
func (d *Device) retireLocked() {
	for len(d.pending) > 0 {
		head := d.pending[0]
		if vk.GetFenceStatus(d.handle, head.fence) != vk.Success {
			break
		}
		vk.ResetFences(d.handle, 1, []vk.Fence{head.fence})
		d.fencePool = append(d.fencePool, head.fence)
		d.completed = head.id
		d.pending = d.pending[1:]
	}
}

// WaitUntil blocks until the submission counter reaches id or the
// timeout elapses. A non-positive timeout uses the device default.
// ErrWaitTimeout means the device is hung or lost; callers treat it as
// fatal.
func (d *Device) WaitUntil(id rhi.SubmissionID, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = d.waitTimeout
	}
	deadline := time.Now().Add(timeout)

	for {
		d.subMu.Lock()
		d.retireLocked()
		if rhi.SubmissionID(d.completed) >= id {
			d.subMu.Unlock()
			return nil
		}
		fence := vk.Fence(vk.NullHandle)
		found := false
		for _, p := range d.pending {
			if rhi.SubmissionID(p.id) >= id {
				fence = p.fence
				found = true
				break
			}
		}
		d.subMu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w: submission %d not reached after %v", rhi.ErrWaitTimeout, id, timeout)
		}

		if !found {
			// Not submitted yet; poll until the submitter catches up.
			time.Sleep(time.Millisecond)
			continue
		}

		if remaining > waitSlice {
			remaining = waitSlice
		}
		res := vk.WaitForFences(d.handle, 1, []vk.Fence{fence}, vk.True, uint64(remaining.Nanoseconds()))
		if res != vk.Success && res != vk.Timeout {
			return fmt.Errorf("%w: vkWaitForFences: %v", rhi.ErrWaitTimeout, vk.Error(res))
		}
	}
}

// SubmissionCounter returns the last completed submission value.
func (d *Device) SubmissionCounter() rhi.SubmissionID {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	d.retireLocked()
	return rhi.SubmissionID(d.completed)
}

// WaitIdle blocks until the graphics queue drains.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return rhi.ErrContextClosed
	}
	d.mu.Unlock()

	if res := vk.QueueWaitIdle(d.queue); res != vk.Success {
		return fmt.Errorf("vulkan: vkQueueWaitIdle: %v", vk.Error(res))
	}

	d.subMu.Lock()
	d.retireLocked()
	d.subMu.Unlock()
	return nil
}

// deferRelease queues a release tagged with the current frame index.
func (d *Device) deferRelease(fn func()) {
	d.mu.Lock()
	frame := d.frameIndex
	d.mu.Unlock()

	d.gcMu.Lock()
	d.graveyard = append(d.graveyard, deferredRelease{frame: frame, release: fn})
	d.gcMu.Unlock()
}

// CollectGarbage releases queued resources at least frameDiff frames
// old. frameDiff 0 releases everything pending and is only safe on an
// idle device.
func (d *Device) CollectGarbage(frameDiff uint64) {
	d.mu.Lock()
	current := d.frameIndex
	d.mu.Unlock()

	d.gcMu.Lock()
	kept := d.graveyard[:0]
	var ready []func()
	for _, entry := range d.graveyard {
		if current-entry.frame >= frameDiff {
			ready = append(ready, entry.release)
		} else {
			kept = append(kept, entry)
		}
	}
	d.graveyard = kept
	d.gcMu.Unlock()

	for _, release := range ready {
		release()
	}
}

// Close waits for the device to idle, releases every pending resource,
// and tears down the device and instance. Safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	vk.DeviceWaitIdle(d.handle)

	d.subMu.Lock()
	d.retireLocked()
	for _, p := range d.pending {
		vk.DestroyFence(d.handle, p.fence, nil)
	}
	d.pending = nil
	for _, fence := range d.fencePool {
		vk.DestroyFence(d.handle, fence, nil)
	}
	d.fencePool = nil
	d.subMu.Unlock()

	d.CollectGarbage(0)

	d.renderPassMu.Lock()
	for _, pass := range d.renderPasses {
		vk.DestroyRenderPass(d.handle, pass, nil)
	}
	d.renderPasses = nil
	d.renderPassMu.Unlock()

	d.swapchain.destroy()

	vk.DestroyPipelineLayout(d.handle, d.pipelineLayout, nil)
	vk.DestroyCommandPool(d.handle, d.commandPool, nil)

	if n := d.allocator.liveAllocations(); n > 0 {
		videoland.Logger().Warn("vulkan device closed with live allocations", "count", n)
	}

	vk.DestroyDevice(d.handle, nil)
	d.instance.destroy(d.surface)

	videoland.Logger().Info("vulkan device closed")
	return nil
}
