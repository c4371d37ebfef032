// Package videoland is a GPU rendering hardware interface (RHI) for Go.
//
// # Overview
//
// videoland lets renderer code allocate GPU buffers and textures, compile
// pipelines, record command buffers and present frames without depending
// on the explicit graphics API underneath. The rhi package defines the
// abstraction; backends implement it:
//
//   - rhi/vulkan: the hardware backend (cgo, github.com/goki/vulkan),
//     enabled with the "vulkan" build tag
//   - rhi/mock: a synchronous in-memory backend for tests and headless use
//
// # Quick Start
//
//	import (
//	    "github.com/weqqr/videoland/rhi"
//	    _ "github.com/weqqr/videoland/rhi/vulkan"
//	)
//
//	ctx, err := rhi.CreateContext(window, rhi.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctx.Close()
//
//	frame, err := ctx.AcquireNextFrame()
//	cb, _ := ctx.BeginCommandBuffer(frame)
//	cb.BeginRendering(rhi.RenderPassDesc{ColorTarget: frame.View})
//	// ... record draws ...
//	cb.EndRendering()
//	ctx.SubmitFrame(cb, frame)
//
// # Synchronization model
//
// One graphics+present queue, one submitting goroutine. Every submission
// increments a monotonic counter; waiting for a counter value blocks
// until all submissions with values at or below it have retired on the
// GPU. Resource destruction is deferred through a frame-tagged queue so
// a handle may be released immediately after submit without racing
// in-flight GPU work.
//
// # Logging
//
// videoland is silent by default. Install a logger with SetLogger to see
// driver diagnostics and lifecycle events; backends share it through
// Logger.
package videoland

// Version information
const (
	// Version is the current version of the library
	Version = "0.2.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 2

	// VersionPatch is the patch version
	VersionPatch = 0
)
