package mock

import (
	"fmt"
	"sync"

	"github.com/weqqr/videoland/rhi"
)

// CreateBuffer allocates an in-memory buffer. Device-local buffers get
// backing storage too so copies move real bytes; they just refuse
// direct host access.
func (d *Device) CreateBuffer(desc rhi.BufferDesc) (rhi.Buffer, error) {
	if desc.Size <= 0 {
		return nil, fmt.Errorf("mock: buffer size must be positive, got %d", desc.Size)
	}
	return &buffer{
		device:   d,
		size:     desc.Size,
		usage:    desc.Usage,
		location: desc.Location,
		data:     make([]byte, desc.Size),
	}, nil
}

// CreateTexture allocates an in-memory texture. Depth formats carry no
// pixel storage.
func (d *Device) CreateTexture(desc rhi.TextureDesc) (rhi.Texture, error) {
	if desc.Extent.IsZero() {
		return nil, fmt.Errorf("mock: texture extent %v", desc.Extent)
	}
	if desc.Format == rhi.FormatUnknown {
		return nil, fmt.Errorf("mock: texture format is unknown")
	}
	t := &texture{
		device: d,
		extent: desc.Extent,
		format: desc.Format,
		usage:  desc.Usage,
		layout: rhi.LayoutUndefined,
	}
	if bpp := desc.Format.BytesPerPixel(); bpp > 0 {
		t.data = make([]byte, int(desc.Extent.Width)*int(desc.Extent.Height)*int(bpp))
	}
	return t, nil
}

// CreateTextureView wraps a mock texture in a view.
func (d *Device) CreateTextureView(tex rhi.Texture, desc rhi.TextureViewDesc) (rhi.TextureView, error) {
	mt, ok := tex.(*texture)
	if !ok {
		return nil, fmt.Errorf("mock: texture from another backend")
	}
	format := desc.Format
	if format == rhi.FormatUnknown {
		format = mt.format
	}
	return &textureView{
		device:  d,
		texture: mt,
		format:  format,
	}, nil
}

// CreateShaderModule checks the bytecode shape and stores it.
func (d *Device) CreateShaderModule(desc rhi.ShaderModuleDesc) (rhi.ShaderModule, error) {
	if len(desc.SPIRV) == 0 {
		return nil, fmt.Errorf("%w: empty shader bytecode", rhi.ErrPipelineCreationFailed)
	}
	if len(desc.SPIRV)%4 != 0 {
		return nil, fmt.Errorf("%w: shader bytecode size %d is not a multiple of 4", rhi.ErrPipelineCreationFailed, len(desc.SPIRV))
	}
	return &shaderModule{device: d, label: desc.Label}, nil
}

// CreatePipeline checks the descriptor and returns an opaque pipeline.
func (d *Device) CreatePipeline(desc rhi.PipelineDesc) (rhi.Pipeline, error) {
	if desc.VertexShader == nil || desc.FragmentShader == nil {
		return nil, fmt.Errorf("%w: pipeline needs both shader stages", rhi.ErrPipelineCreationFailed)
	}
	if desc.ColorFormat == rhi.FormatUnknown {
		return nil, fmt.Errorf("%w: pipeline needs a color format", rhi.ErrPipelineCreationFailed)
	}
	return &pipeline{device: d, label: desc.Label}, nil
}

// =============================================================================
// Resources
// =============================================================================

type buffer struct {
	device   *Device
	size     int64
	usage    rhi.BufferUsage
	location rhi.BufferLocation

	mu        sync.Mutex
	data      []byte
	destroyed bool
}

func (b *buffer) Size() int64 { return b.size }

func (b *buffer) Location() rhi.BufferLocation { return b.location }

func (b *buffer) Write(offset int64, data []byte) error {
	if b.location != rhi.LocationHost {
		return rhi.ErrBufferNotHostVisible
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if offset < 0 || offset+int64(len(data)) > b.size {
		return fmt.Errorf("mock: write of %d bytes at offset %d exceeds buffer size %d", len(data), offset, b.size)
	}
	copy(b.data[offset:], data)
	return nil
}

func (b *buffer) Read(offset int64, data []byte) error {
	if b.location != rhi.LocationHost {
		return rhi.ErrBufferNotHostVisible
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if offset < 0 || offset+int64(len(data)) > b.size {
		return fmt.Errorf("mock: read of %d bytes at offset %d exceeds buffer size %d", len(data), offset, b.size)
	}
	copy(data, b.data[offset:])
	return nil
}

func (b *buffer) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	b.mu.Unlock()

	b.device.deferRelease(func() {
		b.mu.Lock()
		b.data = nil
		b.mu.Unlock()
	})
}

// copyTo moves bytes between mock buffers regardless of location.
func (b *buffer) copyTo(dst *buffer, srcOffset, dstOffset, size int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b != dst {
		dst.mu.Lock()
		defer dst.mu.Unlock()
	}
	if srcOffset < 0 || srcOffset+size > b.size {
		return fmt.Errorf("%w: copy source range [%d, %d) exceeds buffer size %d", rhi.ErrRecordingFailed, srcOffset, srcOffset+size, b.size)
	}
	if dstOffset < 0 || dstOffset+size > dst.size {
		return fmt.Errorf("%w: copy destination range [%d, %d) exceeds buffer size %d", rhi.ErrRecordingFailed, dstOffset, dstOffset+size, dst.size)
	}
	if b.data == nil || dst.data == nil {
		return fmt.Errorf("%w: copy touches a released buffer", rhi.ErrRecordingFailed)
	}
	copy(dst.data[dstOffset:dstOffset+size], b.data[srcOffset:srcOffset+size])
	return nil
}

type texture struct {
	device *Device
	extent rhi.Extent2D
	format rhi.TextureFormat
	usage  rhi.TextureUsage

	mu        sync.Mutex
	data      []byte
	layout    rhi.TextureLayout
	destroyed bool
}

func (t *texture) Extent() rhi.Extent2D { return t.extent }

func (t *texture) Format() rhi.TextureFormat { return t.format }

func (t *texture) Destroy() {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	t.destroyed = true
	t.mu.Unlock()

	t.device.deferRelease(func() {
		t.mu.Lock()
		t.data = nil
		t.mu.Unlock()
	})
}

// Layout returns the texture's current layout. Tests use it to verify
// barrier execution.
func (t *texture) Layout() rhi.TextureLayout {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.layout
}

// Pixels returns a copy of the texture's pixel storage.
func (t *texture) Pixels() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, len(t.data))
	copy(out, t.data)
	return out
}

// transition validates oldLayout against the current layout and moves
// to newLayout, the way a validation layer checks barriers.
func (t *texture) transition(oldLayout, newLayout rhi.TextureLayout) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.layout != oldLayout {
		return fmt.Errorf("%w: barrier expects layout %v, texture is in %v", rhi.ErrRecordingFailed, oldLayout, t.layout)
	}
	t.layout = newLayout
	return nil
}

// copyFrom fills the texture's pixel storage from a buffer. The
// texture must be in LayoutTransferDst.
func (t *texture) copyFrom(b *buffer) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.layout != rhi.LayoutTransferDst {
		return fmt.Errorf("%w: copy destination must be in %v, texture is in %v", rhi.ErrRecordingFailed, rhi.LayoutTransferDst, t.layout)
	}
	if t.data == nil {
		return fmt.Errorf("%w: copy into a released or depth texture", rhi.ErrRecordingFailed)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return fmt.Errorf("%w: copy from a released buffer", rhi.ErrRecordingFailed)
	}
	if int64(len(t.data)) > b.size {
		return fmt.Errorf("%w: texture needs %d bytes, buffer holds %d", rhi.ErrRecordingFailed, len(t.data), b.size)
	}
	copy(t.data, b.data)
	return nil
}

type textureView struct {
	device  *Device
	texture *texture
	format  rhi.TextureFormat

	// borrowed marks swapchain views; the swapchain owns their images
	// and Destroy is a no-op.
	borrowed   bool
	generation uint64

	mu        sync.Mutex
	destroyed bool
}

func (v *textureView) Destroy() {
	if v.borrowed {
		return
	}
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return
	}
	v.destroyed = true
	v.mu.Unlock()

	v.device.deferRelease(func() {})
}

type shaderModule struct {
	device *Device
	label  string

	mu        sync.Mutex
	destroyed bool
}

func (m *shaderModule) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	m.mu.Unlock()

	m.device.deferRelease(func() {})
}

type pipeline struct {
	device *Device
	label  string

	mu        sync.Mutex
	destroyed bool
}

func (p *pipeline) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	p.mu.Unlock()

	p.device.deferRelease(func() {})
}
