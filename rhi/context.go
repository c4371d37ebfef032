package rhi

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/fnv"
	"image"
	"sync"
	"sync/atomic"

	"golang.org/x/image/draw"

	"github.com/weqqr/videoland"
)

// Context is the convenience layer over a Device: it selects a
// backend, owns a pipeline cache, and provides upload helpers and the
// frame loop with deferred-destruction sweeps built in.
//
// Thread Safety:
// Resource creation, uploads, and pipeline lookup are safe for
// concurrent use. The frame loop (AcquireFrame, BeginFrame,
// SubmitFrame) and Reconfigure must stay on one goroutine.
type Context struct {
	backend Backend
	device  Device
	opts    Options

	// mu protects the closed flag.
	mu     sync.Mutex
	closed bool

	// cacheMu protects the pipeline cache and shader hash table.
	cacheMu    sync.RWMutex
	pipelines  map[uint64]Pipeline
	shaderHash map[ShaderModule]uint64

	// hits and misses count pipeline cache outcomes (atomic for
	// lock-free reads).
	hits   uint64
	misses uint64
}

// CreateContext selects a backend, opens a device on window, and
// returns the context wrapping it.
//
// Backend selection honors WithBackend when given; otherwise the
// highest-priority registered backend wins. The swapchain is not
// configured yet; call Configure with the window's framebuffer extent
// before the first AcquireFrame.
//
// Returns ErrBackendNotAvailable when no backend matches, and passes
// through the backend's Open error otherwise.
func CreateContext(window WindowHandle, options ...Option) (*Context, error) {
	opts := DefaultOptions()
	for _, opt := range options {
		opt(&opts)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var backend Backend
	if opts.Backend != "" {
		backend = Get(opts.Backend)
		if backend == nil {
			return nil, fmt.Errorf("%w: %q is not registered", ErrBackendNotAvailable, opts.Backend)
		}
	} else {
		backend = Default()
		if backend == nil {
			return nil, ErrBackendNotAvailable
		}
	}

	device, err := backend.Open(window, &opts)
	if err != nil {
		return nil, err
	}

	videoland.Logger().Info("device opened",
		"backend", backend.Name(),
		"adapter", device.Adapter().Name)

	return &Context{
		backend:    backend,
		device:     device,
		opts:       opts,
		pipelines:  make(map[uint64]Pipeline),
		shaderHash: make(map[ShaderModule]uint64),
	}, nil
}

// Device returns the underlying device for calls the context does not
// wrap.
func (c *Context) Device() Device {
	return c.device
}

// BackendName returns the registry name of the selected backend.
func (c *Context) BackendName() string {
	return c.backend.Name()
}

// Options returns the resolved options the context was created with.
func (c *Context) Options() Options {
	return c.opts
}

// Configure builds or rebuilds the swapchain at extent. Frames and
// frame views acquired before the call are invalid afterwards.
func (c *Context) Configure(extent Extent2D) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.device.ConfigureSwapchain(extent, c.opts.FrameCount)
}

// AcquireFrame blocks until a swapchain image is available.
// ErrSwapchainOutOfDate means the surface changed under the swapchain;
// call Configure with the new extent and retry.
func (c *Context) AcquireFrame() (*Frame, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.device.AcquireNextFrame()
}

// BeginFrame starts recording commands for the acquired frame.
func (c *Context) BeginFrame(frame *Frame) (CommandBuffer, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.device.BeginCommandBuffer(frame)
}

// SubmitFrame submits the frame's commands, presents it, and sweeps
// resources whose deferred release is older than the frame latency.
func (c *Context) SubmitFrame(cb CommandBuffer, frame *Frame) (SubmissionID, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	id, err := c.device.SubmitFrame(cb, frame)
	if err != nil {
		return id, err
	}
	c.device.CollectGarbage(FrameLatency)
	return id, nil
}

// WaitUntil blocks until the submission counter reaches id, bounded by
// the configured wait timeout. ErrWaitTimeout is fatal.
func (c *Context) WaitUntil(id SubmissionID) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.device.WaitUntil(id, c.opts.WaitTimeout)
}

// SubmissionCounter returns the last completed submission value.
func (c *Context) SubmissionCounter() SubmissionID {
	return c.device.SubmissionCounter()
}

// WaitIdle blocks until all submitted work has retired.
func (c *Context) WaitIdle() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.device.WaitIdle()
}

// Close tears the context down: waits for the device to idle, destroys
// cached pipelines, releases everything still pending deferred
// destruction, and closes the device. Safe to call more than once.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.device.WaitIdle(); err != nil {
		return err
	}

	c.cacheMu.Lock()
	for _, p := range c.pipelines {
		p.Destroy()
	}
	c.pipelines = make(map[uint64]Pipeline)
	c.shaderHash = make(map[ShaderModule]uint64)
	c.cacheMu.Unlock()

	c.device.CollectGarbage(0)
	return c.device.Close()
}

// checkOpen reports ErrContextClosed after Close.
func (c *Context) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	return nil
}

// =============================================================================
// Resource Creation
// =============================================================================

// CreateBuffer creates a buffer on the underlying device.
func (c *Context) CreateBuffer(desc BufferDesc) (Buffer, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.device.CreateBuffer(desc)
}

// CreateTexture creates a texture on the underlying device.
func (c *Context) CreateTexture(desc TextureDesc) (Texture, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.device.CreateTexture(desc)
}

// CreateTextureView creates a view over a texture.
func (c *Context) CreateTextureView(texture Texture, desc TextureViewDesc) (TextureView, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.device.CreateTextureView(texture, desc)
}

// CreateShaderModule creates a shader module and records its bytecode
// hash for pipeline cache lookup.
func (c *Context) CreateShaderModule(desc ShaderModuleDesc) (ShaderModule, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	module, err := c.device.CreateShaderModule(desc)
	if err != nil {
		return nil, err
	}
	c.cacheMu.Lock()
	c.shaderHash[module] = hashBytes(desc.SPIRV)
	c.cacheMu.Unlock()
	return module, nil
}

// =============================================================================
// Pipeline Cache
// =============================================================================

// GetOrCreatePipeline returns a cached pipeline or creates a new one.
//
// Pipeline creation is expensive because it involves shader compilation
// and validation, so pipelines are stored indexed by descriptor hash.
// The lookup uses double-check locking: a read-locked fast path, then a
// write-locked re-check before creating.
//
// Shader modules must have been created through CreateShaderModule so
// their bytecode hashes are known; unknown modules hash to zero and may
// collide, so descriptors mixing them bypass meaningful caching.
func (c *Context) GetOrCreatePipeline(desc PipelineDesc) (Pipeline, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	descHash := c.hashPipelineDesc(&desc)

	// Fast path: read lock
	c.cacheMu.RLock()
	if pipeline, ok := c.pipelines[descHash]; ok {
		c.cacheMu.RUnlock()
		atomic.AddUint64(&c.hits, 1)
		return pipeline, nil
	}
	c.cacheMu.RUnlock()

	// Slow path: write lock with double-check
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	if pipeline, ok := c.pipelines[descHash]; ok {
		atomic.AddUint64(&c.hits, 1)
		return pipeline, nil
	}

	pipeline, err := c.device.CreatePipeline(desc)
	if err != nil {
		return nil, err
	}

	c.pipelines[descHash] = pipeline
	atomic.AddUint64(&c.misses, 1)

	return pipeline, nil
}

// PipelineCacheStats returns the pipeline cache hit and miss counts.
func (c *Context) PipelineCacheStats() (hits, misses uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses)
}

// PipelineCount returns the number of cached pipelines.
func (c *Context) PipelineCount() int {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return len(c.pipelines)
}

// hashPipelineDesc computes an FNV-1a hash over the fields that affect
// pipeline state.
func (c *Context) hashPipelineDesc(desc *PipelineDesc) uint64 {
	h := fnv.New64a()

	c.cacheMu.RLock()
	hashWriteUint64(h, c.shaderHash[desc.VertexShader])
	hashWriteUint64(h, c.shaderHash[desc.FragmentShader])
	c.cacheMu.RUnlock()

	hashWriteUint32(h, desc.VertexLayout.Stride)
	hashWriteUint32(h, uint32(len(desc.VertexLayout.Attributes)))
	for i := range desc.VertexLayout.Attributes {
		attr := &desc.VertexLayout.Attributes[i]
		hashWriteUint32(h, attr.Location)
		hashWriteUint32(h, attr.Offset)
		hashWriteUint32(h, uint32(attr.Format))
	}

	hashWriteUint32(h, uint32(desc.ColorFormat))
	hashWriteUint32(h, uint32(desc.DepthFormat))

	return h.Sum64()
}

// hashBytes computes an FNV-1a hash of a byte slice.
func hashBytes(data []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(data)
	return h.Sum64()
}

// hashWriteUint32 writes a uint32 to the hash.
func hashWriteUint32(h hash.Hash64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = h.Write(buf[:])
}

// hashWriteUint64 writes a uint64 to the hash.
func hashWriteUint64(h hash.Hash64, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.Write(buf[:])
}

// =============================================================================
// Uploads
// =============================================================================

// ImmediateSubmit records commands through fn into a one-off command
// buffer and submits it outside the frame ring. The work has retired
// on the GPU when the call returns, so resources it produced are safe
// to use in the next frame submission.
func (c *Context) ImmediateSubmit(fn func(cb CommandBuffer)) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	cb, err := c.device.ImmediateBuffer()
	if err != nil {
		return err
	}
	fn(cb)
	_, err = c.device.SubmitImmediate(cb)
	return err
}

// UploadBuffer creates a device-local buffer holding data.
//
// The data travels through a host-visible staging buffer and a one-off
// copy submission, which has retired when the call returns. The
// staging buffer is released through the deferred-destruction queue.
func (c *Context) UploadBuffer(data []byte, usage BufferUsage) (Buffer, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("rhi: cannot upload an empty buffer")
	}

	staging, err := c.device.CreateBuffer(BufferDesc{
		Label:    "upload staging",
		Size:     int64(len(data)),
		Usage:    BufferUsageTransferSrc,
		Location: LocationHost,
	})
	if err != nil {
		return nil, err
	}
	if err := staging.Write(0, data); err != nil {
		staging.Destroy()
		return nil, err
	}

	dst, err := c.device.CreateBuffer(BufferDesc{
		Label:    "upload destination",
		Size:     int64(len(data)),
		Usage:    usage | BufferUsageTransferDst,
		Location: LocationDevice,
	})
	if err != nil {
		staging.Destroy()
		return nil, err
	}

	cb, err := c.device.ImmediateBuffer()
	if err != nil {
		staging.Destroy()
		dst.Destroy()
		return nil, err
	}
	cb.CopyBufferToBuffer(staging, 0, dst, 0, int64(len(data)))
	if _, err := c.device.SubmitImmediate(cb); err != nil {
		staging.Destroy()
		dst.Destroy()
		return nil, err
	}

	staging.Destroy()
	return dst, nil
}

// UploadTexture creates a sampled RGBA texture holding img's pixels.
//
// Non-RGBA images are converted first. The pixels travel through a
// staging buffer and a one-off submission that also transitions the
// texture into LayoutShaderReadOnly.
func (c *Context) UploadTexture(img image.Image) (Texture, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	extent := Extent2D{Width: uint32(bounds.Dx()), Height: uint32(bounds.Dy())}
	if extent.IsZero() {
		return nil, fmt.Errorf("rhi: cannot upload an empty image")
	}

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*bounds.Dx() {
		converted := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(converted, converted.Bounds(), img, bounds.Min, draw.Src)
		rgba = converted
	}

	staging, err := c.device.CreateBuffer(BufferDesc{
		Label:    "texture staging",
		Size:     int64(len(rgba.Pix)),
		Usage:    BufferUsageTransferSrc,
		Location: LocationHost,
	})
	if err != nil {
		return nil, err
	}
	if err := staging.Write(0, rgba.Pix); err != nil {
		staging.Destroy()
		return nil, err
	}

	texture, err := c.device.CreateTexture(TextureDesc{
		Label:  "uploaded texture",
		Extent: extent,
		Format: FormatRGBA8Unorm,
		Usage:  TextureUsageSampled | TextureUsageTransferDst,
	})
	if err != nil {
		staging.Destroy()
		return nil, err
	}

	cb, err := c.device.ImmediateBuffer()
	if err != nil {
		staging.Destroy()
		texture.Destroy()
		return nil, err
	}
	cb.TextureBarrier(texture, LayoutUndefined, LayoutTransferDst)
	cb.CopyBufferToTexture(staging, texture)
	cb.TextureBarrier(texture, LayoutTransferDst, LayoutShaderReadOnly)
	if _, err := c.device.SubmitImmediate(cb); err != nil {
		staging.Destroy()
		texture.Destroy()
		return nil, err
	}

	staging.Destroy()
	return texture, nil
}

// UploadTextureScaled resamples img to extent with a bilinear filter
// before uploading. Images already at extent upload directly.
func (c *Context) UploadTextureScaled(img image.Image, extent Extent2D) (Texture, error) {
	bounds := img.Bounds()
	if uint32(bounds.Dx()) == extent.Width && uint32(bounds.Dy()) == extent.Height {
		return c.UploadTexture(img)
	}
	if extent.IsZero() {
		return nil, fmt.Errorf("rhi: cannot scale to an empty extent")
	}

	scaled := image.NewRGBA(image.Rect(0, 0, int(extent.Width), int(extent.Height)))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, bounds, draw.Src, nil)
	return c.UploadTexture(scaled)
}

// ReadBuffer copies a device buffer's contents back to the host.
//
// Device-local buffers are read through a staging copy; host-visible
// buffers read directly. The source buffer must have been created with
// BufferUsageTransferSrc for the staged path.
func (c *Context) ReadBuffer(buffer Buffer) ([]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	data := make([]byte, buffer.Size())
	if buffer.Location() == LocationHost {
		if err := buffer.Read(0, data); err != nil {
			return nil, err
		}
		return data, nil
	}

	staging, err := c.device.CreateBuffer(BufferDesc{
		Label:    "readback staging",
		Size:     buffer.Size(),
		Usage:    BufferUsageTransferDst,
		Location: LocationHost,
	})
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	cb, err := c.device.ImmediateBuffer()
	if err != nil {
		return nil, err
	}
	cb.CopyBufferToBuffer(buffer, 0, staging, 0, buffer.Size())
	if _, err := c.device.SubmitImmediate(cb); err != nil {
		return nil, err
	}

	if err := staging.Read(0, data); err != nil {
		return nil, err
	}
	return data, nil
}
