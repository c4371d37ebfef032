// Copyright 2026 The videoland Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import "errors"

// Errors reported by backends and the Context façade. Backends wrap
// these sentinels with driver detail (fmt.Errorf("...: %w", Err...)),
// so callers match with errors.Is.
var (
	// ErrDriverUnavailable is returned when the backend's driver library
	// cannot be located or loaded on this system.
	ErrDriverUnavailable = errors.New("rhi: driver unavailable")

	// ErrInitializationFailed is returned when the driver rejects
	// instance creation.
	ErrInitializationFailed = errors.New("rhi: instance initialization failed")

	// ErrNoSuitableDevice is returned when no adapter exposes a queue
	// family supporting both graphics and presentation to the surface.
	ErrNoSuitableDevice = errors.New("rhi: no suitable device")

	// ErrOutOfDeviceMemory is returned when a device-local allocation
	// cannot be satisfied.
	ErrOutOfDeviceMemory = errors.New("rhi: out of device memory")

	// ErrOutOfHostMemory is returned when a host-visible allocation
	// cannot be satisfied.
	ErrOutOfHostMemory = errors.New("rhi: out of host memory")

	// ErrNoMatchingMemoryType is returned when the requested usage and
	// locality combination maps to no memory type on the adapter. This
	// is a configuration error, not a transient condition; do not retry.
	ErrNoMatchingMemoryType = errors.New("rhi: no matching memory type")

	// ErrSwapchainOutOfDate is returned by acquire or present when the
	// surface has changed since the last configure. Recoverable:
	// reconfigure the swapchain and retry.
	ErrSwapchainOutOfDate = errors.New("rhi: swapchain out of date")

	// ErrRecordingFailed is returned when the driver rejects command
	// buffer recording.
	ErrRecordingFailed = errors.New("rhi: command recording failed")

	// ErrPipelineCreationFailed is returned when pipeline compilation or
	// linking fails. The wrapped detail carries the backend diagnostic
	// when one is available.
	ErrPipelineCreationFailed = errors.New("rhi: pipeline creation failed")

	// ErrWaitTimeout is returned when a GPU wait does not complete
	// within its timeout. Fatal: a wedged device cannot safely continue,
	// terminate the render loop and tear down.
	ErrWaitTimeout = errors.New("rhi: gpu wait timed out")

	// ErrBackendNotAvailable is returned when no backend is registered
	// or the requested backend name is unknown.
	ErrBackendNotAvailable = errors.New("rhi: no backend available")

	// ErrBufferNotHostVisible is returned by Write and Read on buffers
	// allocated with LocationDevice.
	ErrBufferNotHostVisible = errors.New("rhi: buffer is not host-visible")

	// ErrContextClosed is returned by operations on a closed Context.
	ErrContextClosed = errors.New("rhi: context is closed")

	// ErrSwapchainNotConfigured is returned by acquire before the first
	// Configure call.
	ErrSwapchainNotConfigured = errors.New("rhi: swapchain not configured")
)
