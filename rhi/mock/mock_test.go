package mock

import (
	"bytes"
	"errors"
	"testing"

	"github.com/weqqr/videoland/rhi"
)

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	d := newDevice(nil)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func submitFrame(t *testing.T, d *Device) {
	t.Helper()
	frame, err := d.AcquireNextFrame()
	if err != nil {
		t.Fatalf("AcquireNextFrame() error = %v", err)
	}
	cb, err := d.BeginCommandBuffer(frame)
	if err != nil {
		t.Fatalf("BeginCommandBuffer() error = %v", err)
	}
	if _, err := d.SubmitFrame(cb, frame); err != nil {
		t.Fatalf("SubmitFrame() error = %v", err)
	}
}

func mustBuffer(t *testing.T, d *Device, size int64, usage rhi.BufferUsage, loc rhi.BufferLocation) rhi.Buffer {
	t.Helper()
	b, err := d.CreateBuffer(rhi.BufferDesc{Size: size, Usage: usage, Location: loc})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	return b
}

func TestBackendName(t *testing.T) {
	b := &Backend{}
	if b.Name() != rhi.BackendMock {
		t.Errorf("Name() = %q, want %q", b.Name(), rhi.BackendMock)
	}
}

func TestBackendRegistered(t *testing.T) {
	if !rhi.IsRegistered(rhi.BackendMock) {
		t.Error("IsRegistered(mock) = false, want true after import")
	}
}

func TestOpenNilWindow(t *testing.T) {
	b := &Backend{}
	opts := rhi.DefaultOptions()
	dev, err := b.Open(nil, &opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if dev == nil {
		t.Fatal("Open() = nil device")
	}
	_ = dev.Close()
}

func TestCommandBufferOps(t *testing.T) {
	d := newTestDevice(t)

	vs, err := d.CreateShaderModule(rhi.ShaderModuleDesc{SPIRV: []byte{1, 0, 0, 0}})
	if err != nil {
		t.Fatalf("CreateShaderModule() error = %v", err)
	}
	fs, err := d.CreateShaderModule(rhi.ShaderModuleDesc{SPIRV: []byte{2, 0, 0, 0}})
	if err != nil {
		t.Fatalf("CreateShaderModule() error = %v", err)
	}
	p, err := d.CreatePipeline(rhi.PipelineDesc{
		VertexShader:   vs,
		FragmentShader: fs,
		ColorFormat:    rhi.FormatBGRA8Srgb,
	})
	if err != nil {
		t.Fatalf("CreatePipeline() error = %v", err)
	}

	tex, err := d.CreateTexture(rhi.TextureDesc{
		Extent: rhi.Extent2D{Width: 4, Height: 4},
		Format: rhi.FormatRGBA8Unorm,
		Usage:  rhi.TextureUsageRenderTarget,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	view, err := d.CreateTextureView(tex, rhi.TextureViewDesc{})
	if err != nil {
		t.Fatalf("CreateTextureView() error = %v", err)
	}
	vbuf := mustBuffer(t, d, 36, rhi.BufferUsageVertex, rhi.LocationDevice)

	cb, err := d.ImmediateBuffer()
	if err != nil {
		t.Fatalf("ImmediateBuffer() error = %v", err)
	}
	cb.TextureBarrier(tex, rhi.LayoutUndefined, rhi.LayoutGeneral)
	cb.BeginRendering(rhi.RenderPassDesc{
		ColorTarget: view,
		Extent:      rhi.Extent2D{Width: 4, Height: 4},
		ClearColor:  rhi.Color{R: 0.1, G: 0.2, B: 0.3, A: 1},
	})
	cb.SetViewport(rhi.Extent2D{Width: 4, Height: 4})
	cb.BindPipeline(p)
	cb.BindVertexBuffer(vbuf)
	cb.SetPushConstants(0, []byte{1, 2, 3, 4})
	cb.Draw(3, 0)
	cb.EndRendering()

	if _, err := d.SubmitImmediate(cb); err != nil {
		t.Fatalf("SubmitImmediate() error = %v", err)
	}

	want := []string{
		"texture_barrier",
		"begin_rendering",
		"set_viewport",
		"bind_pipeline",
		"bind_vertex_buffer",
		"push_constants",
		"draw",
		"end_rendering",
	}
	got := cb.(*commandBuffer).Ops()
	if len(got) != len(want) {
		t.Fatalf("Ops() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Ops()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	push := cb.(*commandBuffer).PushConstantData()
	if !bytes.Equal(push[:4], []byte{1, 2, 3, 4}) {
		t.Errorf("PushConstantData()[:4] = %v, want [1 2 3 4]", push[:4])
	}
}

func TestSubmitTwice(t *testing.T) {
	d := newTestDevice(t)

	cb, err := d.ImmediateBuffer()
	if err != nil {
		t.Fatalf("ImmediateBuffer() error = %v", err)
	}
	if _, err := d.SubmitImmediate(cb); err != nil {
		t.Fatalf("SubmitImmediate() error = %v", err)
	}
	if _, err := d.SubmitImmediate(cb); !errors.Is(err, rhi.ErrRecordingFailed) {
		t.Errorf("second SubmitImmediate() error = %v, want ErrRecordingFailed", err)
	}
}

func TestBarrierLayoutMismatch(t *testing.T) {
	d := newTestDevice(t)

	tex, err := d.CreateTexture(rhi.TextureDesc{
		Extent: rhi.Extent2D{Width: 2, Height: 2},
		Format: rhi.FormatRGBA8Unorm,
		Usage:  rhi.TextureUsageSampled,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}

	cb, err := d.ImmediateBuffer()
	if err != nil {
		t.Fatalf("ImmediateBuffer() error = %v", err)
	}
	// The texture starts in LayoutUndefined; claiming LayoutGeneral is
	// the kind of mistake a validation layer flags.
	cb.TextureBarrier(tex, rhi.LayoutGeneral, rhi.LayoutPresent)

	if _, err := d.SubmitImmediate(cb); !errors.Is(err, rhi.ErrRecordingFailed) {
		t.Errorf("SubmitImmediate() error = %v, want ErrRecordingFailed", err)
	}
}

func TestBarrierSequence(t *testing.T) {
	d := newTestDevice(t)

	tex, err := d.CreateTexture(rhi.TextureDesc{
		Extent: rhi.Extent2D{Width: 2, Height: 2},
		Format: rhi.FormatRGBA8Unorm,
		Usage:  rhi.TextureUsageSampled | rhi.TextureUsageTransferDst,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}

	cb, err := d.ImmediateBuffer()
	if err != nil {
		t.Fatalf("ImmediateBuffer() error = %v", err)
	}
	cb.TextureBarrier(tex, rhi.LayoutUndefined, rhi.LayoutTransferDst)
	cb.TextureBarrier(tex, rhi.LayoutTransferDst, rhi.LayoutShaderReadOnly)
	if _, err := d.SubmitImmediate(cb); err != nil {
		t.Fatalf("SubmitImmediate() error = %v", err)
	}

	if got := tex.(*texture).Layout(); got != rhi.LayoutShaderReadOnly {
		t.Errorf("Layout() = %v, want %v", got, rhi.LayoutShaderReadOnly)
	}
}

func TestUnbalancedRenderingScope(t *testing.T) {
	d := newTestDevice(t)

	tex, err := d.CreateTexture(rhi.TextureDesc{
		Extent: rhi.Extent2D{Width: 2, Height: 2},
		Format: rhi.FormatBGRA8Srgb,
		Usage:  rhi.TextureUsageRenderTarget,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	view, err := d.CreateTextureView(tex, rhi.TextureViewDesc{})
	if err != nil {
		t.Fatalf("CreateTextureView() error = %v", err)
	}

	cb, err := d.ImmediateBuffer()
	if err != nil {
		t.Fatalf("ImmediateBuffer() error = %v", err)
	}
	cb.BeginRendering(rhi.RenderPassDesc{ColorTarget: view})

	if _, err := d.SubmitImmediate(cb); !errors.Is(err, rhi.ErrRecordingFailed) {
		t.Errorf("SubmitImmediate() error = %v, want ErrRecordingFailed", err)
	}
}

func TestDrawOutsideRenderingScope(t *testing.T) {
	d := newTestDevice(t)

	cb, err := d.ImmediateBuffer()
	if err != nil {
		t.Fatalf("ImmediateBuffer() error = %v", err)
	}
	cb.Draw(3, 0)

	if _, err := d.SubmitImmediate(cb); !errors.Is(err, rhi.ErrRecordingFailed) {
		t.Errorf("SubmitImmediate() error = %v, want ErrRecordingFailed", err)
	}
}

func TestCopyInsideRenderingScope(t *testing.T) {
	d := newTestDevice(t)

	tex, err := d.CreateTexture(rhi.TextureDesc{
		Extent: rhi.Extent2D{Width: 2, Height: 2},
		Format: rhi.FormatBGRA8Srgb,
		Usage:  rhi.TextureUsageRenderTarget,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	view, err := d.CreateTextureView(tex, rhi.TextureViewDesc{})
	if err != nil {
		t.Fatalf("CreateTextureView() error = %v", err)
	}
	src := mustBuffer(t, d, 4, rhi.BufferUsageTransferSrc, rhi.LocationHost)
	dst := mustBuffer(t, d, 4, rhi.BufferUsageTransferDst, rhi.LocationDevice)

	cb, err := d.ImmediateBuffer()
	if err != nil {
		t.Fatalf("ImmediateBuffer() error = %v", err)
	}
	cb.BeginRendering(rhi.RenderPassDesc{ColorTarget: view})
	cb.CopyBufferToBuffer(src, 0, dst, 0, 4)
	cb.EndRendering()

	if _, err := d.SubmitImmediate(cb); !errors.Is(err, rhi.ErrRecordingFailed) {
		t.Errorf("SubmitImmediate() error = %v, want ErrRecordingFailed", err)
	}
}

func TestCopyBufferOutOfRange(t *testing.T) {
	d := newTestDevice(t)

	src := mustBuffer(t, d, 4, rhi.BufferUsageTransferSrc, rhi.LocationHost)
	dst := mustBuffer(t, d, 4, rhi.BufferUsageTransferDst, rhi.LocationDevice)

	cb, err := d.ImmediateBuffer()
	if err != nil {
		t.Fatalf("ImmediateBuffer() error = %v", err)
	}
	cb.CopyBufferToBuffer(src, 0, dst, 0, 8)

	if _, err := d.SubmitImmediate(cb); !errors.Is(err, rhi.ErrRecordingFailed) {
		t.Errorf("SubmitImmediate() error = %v, want ErrRecordingFailed", err)
	}
}

func TestCopyBufferToTextureRequiresTransferDst(t *testing.T) {
	d := newTestDevice(t)

	tex, err := d.CreateTexture(rhi.TextureDesc{
		Extent: rhi.Extent2D{Width: 2, Height: 2},
		Format: rhi.FormatRGBA8Unorm,
		Usage:  rhi.TextureUsageTransferDst,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	src := mustBuffer(t, d, 16, rhi.BufferUsageTransferSrc, rhi.LocationHost)

	cb, err := d.ImmediateBuffer()
	if err != nil {
		t.Fatalf("ImmediateBuffer() error = %v", err)
	}
	// No barrier into LayoutTransferDst first.
	cb.CopyBufferToTexture(src, tex)

	if _, err := d.SubmitImmediate(cb); !errors.Is(err, rhi.ErrRecordingFailed) {
		t.Errorf("SubmitImmediate() error = %v, want ErrRecordingFailed", err)
	}
}

func TestPushConstantOverflow(t *testing.T) {
	d := newTestDevice(t)

	cb, err := d.ImmediateBuffer()
	if err != nil {
		t.Fatalf("ImmediateBuffer() error = %v", err)
	}
	cb.SetPushConstants(rhi.PushConstantSize-4, make([]byte, 8))

	if _, err := d.SubmitImmediate(cb); !errors.Is(err, rhi.ErrRecordingFailed) {
		t.Errorf("SubmitImmediate() error = %v, want ErrRecordingFailed", err)
	}
}

func TestShaderModuleValidation(t *testing.T) {
	d := newTestDevice(t)

	if _, err := d.CreateShaderModule(rhi.ShaderModuleDesc{}); !errors.Is(err, rhi.ErrPipelineCreationFailed) {
		t.Errorf("CreateShaderModule(empty) error = %v, want ErrPipelineCreationFailed", err)
	}
	if _, err := d.CreateShaderModule(rhi.ShaderModuleDesc{SPIRV: []byte{1, 2, 3}}); !errors.Is(err, rhi.ErrPipelineCreationFailed) {
		t.Errorf("CreateShaderModule(misaligned) error = %v, want ErrPipelineCreationFailed", err)
	}
}

func TestPipelineValidation(t *testing.T) {
	d := newTestDevice(t)

	vs, err := d.CreateShaderModule(rhi.ShaderModuleDesc{SPIRV: []byte{1, 0, 0, 0}})
	if err != nil {
		t.Fatalf("CreateShaderModule() error = %v", err)
	}

	if _, err := d.CreatePipeline(rhi.PipelineDesc{VertexShader: vs, ColorFormat: rhi.FormatBGRA8Srgb}); !errors.Is(err, rhi.ErrPipelineCreationFailed) {
		t.Errorf("CreatePipeline(no fragment) error = %v, want ErrPipelineCreationFailed", err)
	}
	if _, err := d.CreatePipeline(rhi.PipelineDesc{VertexShader: vs, FragmentShader: vs}); !errors.Is(err, rhi.ErrPipelineCreationFailed) {
		t.Errorf("CreatePipeline(no color format) error = %v, want ErrPipelineCreationFailed", err)
	}
}

// Releases partition by age: entries older than frameDiff go, younger
// ones stay.
func TestCollectGarbagePartition(t *testing.T) {
	d := newTestDevice(t)

	early := mustBuffer(t, d, 4, rhi.BufferUsageVertex, rhi.LocationHost)
	early.Destroy()

	if err := d.ConfigureSwapchain(rhi.Extent2D{Width: 8, Height: 8}, 2); err != nil {
		t.Fatalf("ConfigureSwapchain() error = %v", err)
	}
	submitFrame(t, d)
	submitFrame(t, d)

	late := mustBuffer(t, d, 4, rhi.BufferUsageVertex, rhi.LocationHost)
	late.Destroy()

	if got := d.PendingReleases(); got != 2 {
		t.Fatalf("PendingReleases() = %d, want 2", got)
	}

	d.CollectGarbage(2)
	if got := d.PendingReleases(); got != 1 {
		t.Errorf("PendingReleases() = %d after CollectGarbage(2), want 1", got)
	}

	d.CollectGarbage(0)
	if got := d.PendingReleases(); got != 0 {
		t.Errorf("PendingReleases() = %d after CollectGarbage(0), want 0", got)
	}
}

func TestSubmitFrameStaleGeneration(t *testing.T) {
	d := newTestDevice(t)

	if err := d.ConfigureSwapchain(rhi.Extent2D{Width: 8, Height: 8}, 2); err != nil {
		t.Fatalf("ConfigureSwapchain() error = %v", err)
	}
	frame, err := d.AcquireNextFrame()
	if err != nil {
		t.Fatalf("AcquireNextFrame() error = %v", err)
	}
	cb, err := d.BeginCommandBuffer(frame)
	if err != nil {
		t.Fatalf("BeginCommandBuffer() error = %v", err)
	}

	if err := d.ConfigureSwapchain(rhi.Extent2D{Width: 16, Height: 16}, 2); err != nil {
		t.Fatalf("ConfigureSwapchain() error = %v", err)
	}

	if _, err := d.SubmitFrame(cb, frame); !errors.Is(err, rhi.ErrSwapchainOutOfDate) {
		t.Errorf("SubmitFrame(stale) error = %v, want ErrSwapchainOutOfDate", err)
	}
}

func TestFrameIndexCountsFrames(t *testing.T) {
	d := newTestDevice(t)

	if err := d.ConfigureSwapchain(rhi.Extent2D{Width: 8, Height: 8}, 2); err != nil {
		t.Fatalf("ConfigureSwapchain() error = %v", err)
	}

	// Immediate submissions advance the counter but not the frame
	// index.
	cb, err := d.ImmediateBuffer()
	if err != nil {
		t.Fatalf("ImmediateBuffer() error = %v", err)
	}
	if _, err := d.SubmitImmediate(cb); err != nil {
		t.Fatalf("SubmitImmediate() error = %v", err)
	}
	if got := d.FrameIndex(); got != 0 {
		t.Errorf("FrameIndex() = %d after immediate submit, want 0", got)
	}

	submitFrame(t, d)
	if got := d.FrameIndex(); got != 1 {
		t.Errorf("FrameIndex() = %d after one frame, want 1", got)
	}
}

func TestDeviceClosedOps(t *testing.T) {
	d := newDevice(nil)
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}

	if _, err := d.AcquireNextFrame(); !errors.Is(err, rhi.ErrContextClosed) {
		t.Errorf("AcquireNextFrame() error = %v after Close, want ErrContextClosed", err)
	}
	if err := d.WaitIdle(); !errors.Is(err, rhi.ErrContextClosed) {
		t.Errorf("WaitIdle() error = %v after Close, want ErrContextClosed", err)
	}
	if err := d.ConfigureSwapchain(rhi.Extent2D{Width: 8, Height: 8}, 2); !errors.Is(err, rhi.ErrContextClosed) {
		t.Errorf("ConfigureSwapchain() error = %v after Close, want ErrContextClosed", err)
	}
}
