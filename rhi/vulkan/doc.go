// Copyright 2026 The videoland Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package vulkan provides the Vulkan rendering backend.
//
// The backend drives a single graphics queue through the goki/vulkan
// bindings and implements the rhi.Device contract: resource creation,
// swapchain presentation, command recording, and a monotonic
// submission timeline backed by fences.
//
// # Registration and Selection
//
// The backend is automatically registered when this package is
// imported with the "vulkan" build tag:
//
//	// Build with: go build -tags vulkan
//	import _ "github.com/weqqr/videoland/rhi/vulkan"
//
// Without the tag, a stub registration is compiled instead so that
// rhi.Get(rhi.BackendVulkan) returns nil gracefully and backend
// selection falls through to the next registered backend.
//
// # Loader Setup
//
// The Vulkan loader needs the windowing system's instance proc
// address before the backend opens. With GLFW:
//
//	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
//
// The windowing adapter that implements rhi.WindowHandle is expected
// to do this during window creation, before rhi.CreateContext runs.
//
// # Frame Images
//
// Acquired frame images need no explicit layout management:
// BeginCommandBuffer records a transition into LayoutGeneral and
// SubmitFrame records the transition to the presentable layout.
// Offscreen render targets are the caller's to transition with
// TextureBarrier.
//
// # Thread Safety
//
// Resource creation, buffer mapping, and WaitUntil may be called from
// multiple goroutines. Swapchain configuration, frame acquisition,
// command recording, and submission must stay on one goroutine.
package vulkan
