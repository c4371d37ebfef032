//go:build vulkan

// Copyright 2026 The videoland Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/weqqr/videoland"
	"github.com/weqqr/videoland/rhi"
)

// init registers the vulkan backend on package import.
func init() {
	rhi.Register(rhi.BackendVulkan, func() rhi.Backend {
		return &Backend{}
	})
}

// Backend opens Vulkan devices. The window adapter must point the
// loader at the windowing system's vkGetInstanceProcAddr before Open
// runs; see the package documentation.
type Backend struct{}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return rhi.BackendVulkan
}

// Open initializes the Vulkan loader, creates an instance and a
// surface for window, selects an adapter, and opens a device on it.
func (b *Backend) Open(window rhi.WindowHandle, opts *rhi.Options) (rhi.Device, error) {
	if window == nil {
		return nil, fmt.Errorf("%w: vulkan backend needs a window", rhi.ErrInitializationFailed)
	}
	if opts == nil {
		defaults := rhi.DefaultOptions()
		opts = &defaults
	}

	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("%w: %v", rhi.ErrDriverUnavailable, err)
	}

	inst, err := createInstance(window, opts)
	if err != nil {
		return nil, err
	}

	surfacePtr, err := window.CreateSurface(uintptr(unsafe.Pointer(inst.handle)))
	if err != nil {
		inst.destroy(vk.NullSurface)
		return nil, fmt.Errorf("%w: surface creation: %v", rhi.ErrInitializationFailed, err)
	}
	surface := vk.SurfaceFromPointer(surfacePtr)

	ad, err := selectAdapter(inst.handle, surface)
	if err != nil {
		inst.destroy(surface)
		return nil, err
	}
	videoland.Logger().Info("vulkan adapter selected",
		"name", ad.name,
		"queue_family", ad.queueFamily)

	device, err := newDevice(inst, surface, ad, opts)
	if err != nil {
		inst.destroy(surface)
		return nil, err
	}
	return device, nil
}
