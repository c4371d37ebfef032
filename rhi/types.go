// Copyright 2026 The videoland Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import "fmt"

// SubmissionID is a value of the device's monotonic submission counter,
// returned by submit operations and consumed by WaitUntil. IDs are
// strictly increasing; waiting for an ID guarantees retirement of every
// submission with an equal or lower ID.
type SubmissionID uint64

// FrameLatency is the number of frames that may be in flight at once.
// It sizes the per-frame command buffer ring and is the age threshold
// for the deferred-destruction sweep.
const FrameLatency = 2

// PushConstantSize is the size in bytes of the push-constant block
// visible to the vertex and fragment stages of every pipeline.
const PushConstantSize = 256

// Extent2D is a width/height pair in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether either dimension is zero. A zero extent is not
// presentable; swapchain configuration rejects it.
func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Color is an RGBA color with float32 channels in [0, 1].
type Color struct {
	R, G, B, A float32
}

// TextureFormat identifies the pixel format of a texture.
type TextureFormat uint8

const (
	// FormatUnknown is the zero value; creation rejects it.
	FormatUnknown TextureFormat = iota

	// FormatBGRA8Srgb is the surface color format. Swapchain images and
	// pipelines rendering to them use this format.
	FormatBGRA8Srgb

	// FormatRGBA8Unorm is the format of sampled textures uploaded from
	// CPU-side images.
	FormatRGBA8Unorm

	// FormatD24UnormS8Uint is the depth/stencil attachment format.
	FormatD24UnormS8Uint
)

// String returns the format name.
func (f TextureFormat) String() string {
	switch f {
	case FormatBGRA8Srgb:
		return "BGRA8Srgb"
	case FormatRGBA8Unorm:
		return "RGBA8Unorm"
	case FormatD24UnormS8Uint:
		return "D24UnormS8Uint"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(f))
	}
}

// HasDepth reports whether the format carries a depth aspect.
func (f TextureFormat) HasDepth() bool {
	return f == FormatD24UnormS8Uint
}

// BytesPerPixel returns the per-pixel byte size for buffer/texture copy
// sizing. Depth formats are not copyable from buffers and return 0.
func (f TextureFormat) BytesPerPixel() uint32 {
	switch f {
	case FormatBGRA8Srgb, FormatRGBA8Unorm:
		return 4
	default:
		return 0
	}
}

// TextureLayout describes how a texture's memory is arranged for a
// class of accesses. Recording a barrier transitions between layouts;
// the backend maps these onto its own layout and access flags.
type TextureLayout uint8

const (
	// LayoutUndefined is the initial layout; contents are unspecified.
	LayoutUndefined TextureLayout = iota

	// LayoutGeneral permits any access. Frame images are rendered in
	// this layout.
	LayoutGeneral

	// LayoutColorAttachment is optimal for color rendering.
	LayoutColorAttachment

	// LayoutDepthStencilAttachment is optimal for depth/stencil tests.
	LayoutDepthStencilAttachment

	// LayoutTransferSrc is required for copy reads.
	LayoutTransferSrc

	// LayoutTransferDst is required for copy writes.
	LayoutTransferDst

	// LayoutShaderReadOnly is optimal for sampling.
	LayoutShaderReadOnly

	// LayoutPresent is the layout the presentation engine consumes.
	LayoutPresent
)

// String returns the layout name.
func (l TextureLayout) String() string {
	switch l {
	case LayoutUndefined:
		return "Undefined"
	case LayoutGeneral:
		return "General"
	case LayoutColorAttachment:
		return "ColorAttachment"
	case LayoutDepthStencilAttachment:
		return "DepthStencilAttachment"
	case LayoutTransferSrc:
		return "TransferSrc"
	case LayoutTransferDst:
		return "TransferDst"
	case LayoutShaderReadOnly:
		return "ShaderReadOnly"
	case LayoutPresent:
		return "Present"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(l))
	}
}

// BufferLocation is the memory locality class of a buffer.
type BufferLocation uint8

const (
	// LocationDevice places the buffer in device-local memory for fast
	// GPU access. Not host-visible: Write and Read fail.
	LocationDevice BufferLocation = iota

	// LocationHost places the buffer in host-visible memory for CPU
	// writes and readback, typically as a staging intermediate.
	LocationHost
)

// String returns the location name.
func (l BufferLocation) String() string {
	switch l {
	case LocationDevice:
		return "Device"
	case LocationHost:
		return "Host"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(l))
	}
}

// BufferUsage is a bitmask of the ways a buffer may be used.
type BufferUsage uint8

const (
	// BufferUsageVertex allows binding as a vertex buffer.
	BufferUsageVertex BufferUsage = 1 << iota

	// BufferUsageIndex allows binding as an index buffer.
	BufferUsageIndex

	// BufferUsageUniform allows binding as a uniform source.
	BufferUsageUniform

	// BufferUsageTransferSrc allows the buffer as a copy source.
	BufferUsageTransferSrc

	// BufferUsageTransferDst allows the buffer as a copy destination.
	BufferUsageTransferDst
)

// TextureUsage is a bitmask of the ways a texture may be used.
type TextureUsage uint8

const (
	// TextureUsageRenderTarget allows rendering color output into the
	// texture.
	TextureUsageRenderTarget TextureUsage = 1 << iota

	// TextureUsageDepthStencil allows use as a depth/stencil attachment.
	TextureUsageDepthStencil

	// TextureUsageSampled allows sampling from shaders.
	TextureUsageSampled

	// TextureUsageTransferSrc allows the texture as a copy source.
	TextureUsageTransferSrc

	// TextureUsageTransferDst allows the texture as a copy destination.
	TextureUsageTransferDst
)

// IndexFormat is the element width of an index buffer.
type IndexFormat uint8

const (
	// IndexFormatUint16 indexes with 16-bit elements.
	IndexFormatUint16 IndexFormat = iota

	// IndexFormatUint32 indexes with 32-bit elements.
	IndexFormatUint32
)

// VertexFormat is the component layout of one vertex attribute.
type VertexFormat uint8

const (
	// VertexFormatFloat32x2 is two 32-bit floats.
	VertexFormatFloat32x2 VertexFormat = iota

	// VertexFormatFloat32x3 is three 32-bit floats.
	VertexFormatFloat32x3

	// VertexFormatFloat32x4 is four 32-bit floats.
	VertexFormatFloat32x4
)

// Size returns the attribute size in bytes.
func (f VertexFormat) Size() uint32 {
	switch f {
	case VertexFormatFloat32x2:
		return 8
	case VertexFormatFloat32x3:
		return 12
	case VertexFormatFloat32x4:
		return 16
	default:
		return 0
	}
}

// VertexAttribute describes one attribute within a vertex.
type VertexAttribute struct {
	// Location is the shader input location.
	Location uint32

	// Offset is the byte offset within the vertex.
	Offset uint32

	// Format is the component layout.
	Format VertexFormat
}

// VertexLayout describes the vertex buffer consumed by a pipeline.
type VertexLayout struct {
	// Stride is the byte distance between consecutive vertices.
	Stride uint32

	// Attributes are the per-vertex inputs.
	Attributes []VertexAttribute
}

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	// Label is an optional debug name.
	Label string

	// Size is the buffer size in bytes. Immutable after creation.
	Size int64

	// Usage is the allowed usage mask.
	Usage BufferUsage

	// Location selects device-local or host-visible memory.
	Location BufferLocation
}

// TextureDesc describes a texture to create.
type TextureDesc struct {
	// Label is an optional debug name.
	Label string

	// Extent is the texture size in pixels.
	Extent Extent2D

	// Format is the pixel format.
	Format TextureFormat

	// Usage is the allowed usage mask.
	Usage TextureUsage
}

// TextureViewDesc describes a view over a texture.
type TextureViewDesc struct {
	// Format overrides the texture format when non-zero; the zero value
	// inherits the texture's own format.
	Format TextureFormat
}

// ShaderModuleDesc describes a shader module to create. The bytecode is
// an opaque SPIR-V blob from an external compiler (or the bundled
// shaderc translator).
type ShaderModuleDesc struct {
	// Label is an optional debug name.
	Label string

	// SPIRV is the module bytecode. Length must be a multiple of 4.
	SPIRV []byte
}

// PipelineDesc describes a graphics pipeline: a vertex+fragment program
// pair plus the fixed-function state it runs with. Every pipeline gets
// a PushConstantSize push-constant block visible to both stages.
type PipelineDesc struct {
	// Label is an optional debug name.
	Label string

	// VertexShader supplies the vertex stage (entry point "vs_main").
	VertexShader ShaderModule

	// FragmentShader supplies the fragment stage (entry point "fs_main").
	FragmentShader ShaderModule

	// VertexLayout is the vertex buffer layout. An empty layout (zero
	// stride, no attributes) builds a bufferless pipeline for
	// full-screen or vertex-index-driven draws.
	VertexLayout VertexLayout

	// ColorFormat is the render target format the pipeline outputs to.
	ColorFormat TextureFormat

	// DepthFormat enables depth testing when non-zero.
	DepthFormat TextureFormat
}

// RenderPassDesc describes one BeginRendering scope.
type RenderPassDesc struct {
	// ColorTarget is the color attachment. Required.
	ColorTarget TextureView

	// DepthTarget is the depth attachment. Optional.
	DepthTarget TextureView

	// Extent is the render area, typically the frame extent.
	Extent Extent2D

	// ClearColor is the color the target is cleared to at pass start.
	ClearColor Color

	// ClearDepth is the depth clear value. The zero value is a valid
	// clear; pipelines using reversed depth pass 0, conventional depth
	// passes 1.
	ClearDepth float32
}

// AdapterInfo describes the physical adapter a device was created on.
type AdapterInfo struct {
	// Name is the driver-reported adapter name.
	Name string

	// QueueFamily is the index of the graphics+present queue family.
	QueueFamily uint32
}

// Frame is one acquired swapchain image, valid from AcquireNextFrame
// until the SubmitFrame that presents it. Frames obtained before a
// reconfigure are invalid afterwards.
type Frame struct {
	// Index is the image index within the swapchain.
	Index uint32

	// View is a borrowed, non-owning view of the frame image. Destroy
	// on it is a no-op; the swapchain owns the underlying image.
	View TextureView

	// Extent is the frame size in pixels.
	Extent Extent2D
}
