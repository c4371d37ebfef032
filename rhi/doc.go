// Package rhi defines the rendering hardware interface: device and
// resource abstractions that let renderer code allocate buffers and
// textures, build pipelines, record command buffers and present frames
// without depending on the graphics API underneath.
//
// # Architecture
//
// The package is split into a capability layer and a convenience layer:
//
//   - Capability interfaces (Device, Buffer, Texture, TextureView,
//     Pipeline, ShaderModule, CommandBuffer) are implemented once per
//     backend. Backends register themselves in an init function; the
//     concrete backend is chosen at build configuration time via build
//     tags, not swapped at runtime.
//   - Context is the façade renderer code talks to. It owns the device,
//     deduplicates pipeline creation, and provides staging upload
//     helpers on top of the raw capability surface.
//
// # Frame lifecycle
//
//	frame, err := ctx.AcquireNextFrame()      // blocks until an image is ready
//	cb, err := ctx.BeginCommandBuffer(frame)  // rotates the per-frame ring
//	cb.BeginRendering(...)                    // thin, order-sensitive appends
//	cb.EndRendering()
//	err = ctx.SubmitFrame(cb, frame)          // submit + present + sweep
//
// Recording operations perform no cross-call validation: binding a
// pipeline before drawing is the caller's responsibility, exactly as it
// is on the underlying APIs.
//
// # Synchronization
//
// Submissions are totally ordered by a monotonically increasing
// counter. WaitUntil(v, timeout) returns once every submission with a
// value at or below v has retired; on a healthy device it never times
// out. A timed-out wait means a wedged device and is fatal: tear the
// context down rather than retrying.
//
// Resource destruction is deferred. Destroy marks the resource and
// enqueues it tagged with the current frame index; the backing store is
// released only once enough frames have elapsed that no in-flight
// submission can still reference it.
package rhi
