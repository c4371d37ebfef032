package rhi

import "time"

// DefaultWaitTimeout bounds WaitUntil when no explicit deadline is
// given. A wait exceeding it reports ErrWaitTimeout, which indicates a
// hung or lost device; callers treat it as fatal.
const DefaultWaitTimeout = 5 * time.Second

// WindowHandle is the surface source a backend opens a device against.
// Windowing packages adapt their window type to this interface; the
// mock backend accepts any value, including nil.
type WindowHandle interface {
	// InstanceExtensions returns the instance extension names the
	// windowing system needs for surface creation.
	InstanceExtensions() []string

	// CreateSurface creates a presentable surface on the given
	// instance and returns its handle.
	CreateSurface(instance uintptr) (uintptr, error)
}

// Backend creates devices. Implementations register themselves with
// Register, typically from an init function, and are selected by name
// or by registration priority.
type Backend interface {
	// Name returns the backend identifier used for registry lookup,
	// such as "vulkan" or "mock".
	Name() string

	// Open initializes the backend against the given window and
	// returns a device. It fails with ErrDriverUnavailable when the
	// underlying driver cannot be loaded, ErrInitializationFailed when
	// instance or device setup fails, and ErrNoSuitableDevice when no
	// adapter supports the required queue operations.
	Open(window WindowHandle, opts *Options) (Device, error)
}

// Device is one opened adapter: the factory for resources, the
// swapchain owner, and the single submission point.
//
// Thread Safety: resource creation and buffer mapping may be called
// from multiple goroutines. Swapchain configuration, frame acquisition,
// command recording, and submission must stay on one goroutine.
type Device interface {
	// Adapter returns information about the physical adapter.
	Adapter() AdapterInfo

	// CreateBuffer creates a buffer of desc.Size bytes.
	CreateBuffer(desc BufferDesc) (Buffer, error)

	// CreateTexture creates a texture and its backing memory.
	CreateTexture(desc TextureDesc) (Texture, error)

	// CreateTextureView creates a view over texture.
	CreateTextureView(texture Texture, desc TextureViewDesc) (TextureView, error)

	// CreateShaderModule creates a shader module from SPIR-V bytecode.
	CreateShaderModule(desc ShaderModuleDesc) (ShaderModule, error)

	// CreatePipeline creates a graphics pipeline. Compilation or
	// linking failures report ErrPipelineCreationFailed.
	CreatePipeline(desc PipelineDesc) (Pipeline, error)

	// ConfigureSwapchain builds or rebuilds the swapchain at the given
	// extent with frameCount images. Rebuilding invalidates every Frame
	// and frame view acquired before the call. A zero extent fails.
	ConfigureSwapchain(extent Extent2D, frameCount uint32) error

	// AcquireNextFrame blocks until a swapchain image is available and
	// returns it. ErrSwapchainOutOfDate means the surface no longer
	// matches the swapchain; reconfigure and retry.
	AcquireNextFrame() (*Frame, error)

	// BeginCommandBuffer starts recording the command buffer for the
	// given frame and transitions the frame's image into
	// LayoutGeneral. The returned buffer is valid until SubmitFrame.
	BeginCommandBuffer(frame *Frame) (CommandBuffer, error)

	// SubmitFrame transitions the frame's image to LayoutPresent,
	// finishes recording, submits the buffer, presents the frame, and
	// returns the submission's counter value.
	SubmitFrame(cb CommandBuffer, frame *Frame) (SubmissionID, error)

	// ImmediateBuffer starts recording a one-off command buffer outside
	// the frame loop, for uploads and other setup work.
	ImmediateBuffer() (CommandBuffer, error)

	// SubmitImmediate submits a buffer started with ImmediateBuffer,
	// waits for it to retire, and returns its counter value. One-off
	// work is complete when the call returns.
	SubmitImmediate(cb CommandBuffer) (SubmissionID, error)

	// WaitUntil blocks until the submission counter reaches id or the
	// timeout elapses. A non-positive timeout uses DefaultWaitTimeout.
	// ErrWaitTimeout is fatal: the device is considered lost.
	WaitUntil(id SubmissionID, timeout time.Duration) error

	// SubmissionCounter returns the last completed submission value.
	SubmissionCounter() SubmissionID

	// CollectGarbage destroys resources whose deferred release is at
	// least frameDiff frames old. A frameDiff of 0 releases everything
	// pending; callers must only pass 0 after the device is idle.
	CollectGarbage(frameDiff uint64)

	// WaitIdle blocks until all submitted work has retired.
	WaitIdle() error

	// Close waits for the device to idle, releases all pending
	// resources, destroys the swapchain, and tears down the device and
	// instance in that order.
	Close() error
}

// Buffer is a linear memory allocation.
type Buffer interface {
	// Size returns the buffer size in bytes.
	Size() int64

	// Location returns the memory locality the buffer was created with.
	Location() BufferLocation

	// Write copies data into the buffer at offset. Fails with
	// ErrBufferNotHostVisible on device-local buffers.
	Write(offset int64, data []byte) error

	// Read copies len(data) bytes from the buffer at offset into data.
	// Fails with ErrBufferNotHostVisible on device-local buffers.
	Read(offset int64, data []byte) error

	// Destroy queues the buffer for deferred release. The memory is
	// reclaimed once the frames that may reference it have retired.
	Destroy()
}

// Texture is an image allocation.
type Texture interface {
	// Extent returns the texture size in pixels.
	Extent() Extent2D

	// Format returns the pixel format.
	Format() TextureFormat

	// Destroy queues the texture for deferred release.
	Destroy()
}

// TextureView is a shader- or attachment-visible view of a texture.
// Views borrowed from the swapchain do not own their image; Destroy on
// them is a no-op and the swapchain reclaims them on reconfigure.
type TextureView interface {
	// Destroy queues the view for deferred release if the view owns
	// its image view object.
	Destroy()
}

// ShaderModule is compiled shader bytecode loaded into the device.
type ShaderModule interface {
	// Destroy queues the module for deferred release. Pipelines created
	// from it remain valid.
	Destroy()
}

// Pipeline is a compiled graphics pipeline.
type Pipeline interface {
	// Destroy queues the pipeline for deferred release.
	Destroy()
}

// CommandBuffer records GPU commands between a begin and a submit.
// Recording calls do not validate against device state and do not
// return errors; invalid sequences surface at submission as
// ErrRecordingFailed or as driver errors.
type CommandBuffer interface {
	// TextureBarrier transitions texture from the old to the new
	// layout, ordering prior accesses against subsequent ones. Frame
	// images need no barriers: BeginCommandBuffer moves the acquired
	// image into LayoutGeneral and SubmitFrame moves it to
	// LayoutPresent.
	TextureBarrier(texture Texture, oldLayout, newLayout TextureLayout)

	// BeginRendering starts a render pass over desc's attachments,
	// clearing them to desc's clear values. Attachments render in
	// LayoutGeneral; transition offscreen targets there first.
	BeginRendering(desc RenderPassDesc)

	// EndRendering ends the current render pass.
	EndRendering()

	// SetViewport sets the viewport and scissor to cover extent.
	SetViewport(extent Extent2D)

	// BindPipeline binds a graphics pipeline for subsequent draws.
	BindPipeline(pipeline Pipeline)

	// BindVertexBuffer binds buffer as the vertex source at binding 0.
	BindVertexBuffer(buffer Buffer)

	// BindIndexBuffer binds buffer as the index source.
	BindIndexBuffer(buffer Buffer, format IndexFormat)

	// SetPushConstants writes data into the bound pipeline's
	// push-constant block at offset. offset+len(data) must not exceed
	// PushConstantSize.
	SetPushConstants(offset uint32, data []byte)

	// Draw draws vertexCount vertices starting at firstVertex.
	Draw(vertexCount, firstVertex uint32)

	// DrawIndexed draws indexCount indices starting at firstIndex.
	DrawIndexed(indexCount, firstIndex uint32)

	// CopyBufferToBuffer copies size bytes between buffers.
	CopyBufferToBuffer(src Buffer, srcOffset int64, dst Buffer, dstOffset int64, size int64)

	// CopyBufferToTexture copies tightly packed pixels from src into
	// dst, which must be in LayoutTransferDst.
	CopyBufferToTexture(src Buffer, dst Texture)
}
