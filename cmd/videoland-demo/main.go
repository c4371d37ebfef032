//go:build vulkan

// Command videoland-demo renders a depth-tested colored triangle and
// drives the full frame loop: swapchain configuration, resize
// handling, and per-frame garbage collection.
package main

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/weqqr/videoland"
	"github.com/weqqr/videoland/rhi"
	_ "github.com/weqqr/videoland/rhi/mock"
	"github.com/weqqr/videoland/rhi/shaderc"
	_ "github.com/weqqr/videoland/rhi/vulkan"
)

//go:embed triangle.wgsl
var triangleWGSL string

func init() {
	// GLFW event handling must stay on the thread that runs main.
	runtime.LockOSThread()
}

func main() {
	var (
		configPath = flag.String("config", "videoland.yaml", "path to the YAML config")
		width      = flag.Int("width", 1280, "window width")
		height     = flag.Int("height", 720, "window height")
		verbose    = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	videoland.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*configPath, *width, *height); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string, width, height int) error {
	opts, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	win, err := newWindow(width, height, "videoland demo")
	if err != nil {
		return err
	}
	defer win.destroy()

	ctx, err := rhi.CreateContext(win, rhi.WithOptions(opts))
	if err != nil {
		return err
	}
	defer ctx.Close()

	app, err := newApp(ctx, win)
	if err != nil {
		return err
	}
	defer app.destroy()

	for !win.handle.ShouldClose() {
		glfw.PollEvents()
		if err := app.drawFrame(); err != nil {
			return err
		}
	}
	return ctx.WaitIdle()
}

// window adapts a GLFW window to rhi.WindowHandle.
type window struct {
	handle *glfw.Window
}

func newWindow(width, height int, title string) (*window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw init: %w", err)
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	handle, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("create window: %w", err)
	}

	// The Vulkan loader resolves through GLFW before any backend call.
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())

	return &window{handle: handle}, nil
}

func (w *window) InstanceExtensions() []string {
	return w.handle.GetRequiredInstanceExtensions()
}

func (w *window) CreateSurface(instance uintptr) (uintptr, error) {
	return w.handle.CreateWindowSurface(vk.Instance(unsafe.Pointer(instance)), nil)
}

func (w *window) framebufferExtent() rhi.Extent2D {
	width, height := w.handle.GetFramebufferSize()
	return rhi.Extent2D{Width: uint32(width), Height: uint32(height)}
}

func (w *window) destroy() {
	w.handle.Destroy()
	glfw.Terminate()
}

// app owns the demo's GPU resources and the swapchain-tracking state.
type app struct {
	ctx *rhi.Context
	win *window

	shader   rhi.ShaderModule
	pipeline rhi.Pipeline
	vertices rhi.Buffer

	depth       rhi.Texture
	depthView   rhi.TextureView
	depthLayout rhi.TextureLayout
	extent      rhi.Extent2D
}

func newApp(ctx *rhi.Context, win *window) (*app, error) {
	a := &app{ctx: ctx, win: win}

	spirv, err := shaderc.Compile(triangleWGSL)
	if err != nil {
		return nil, err
	}
	// One module carries both entry points.
	a.shader, err = ctx.CreateShaderModule(rhi.ShaderModuleDesc{Label: "triangle", SPIRV: spirv})
	if err != nil {
		return nil, err
	}

	a.pipeline, err = ctx.GetOrCreatePipeline(rhi.PipelineDesc{
		Label:          "triangle",
		VertexShader:   a.shader,
		FragmentShader: a.shader,
		VertexLayout: rhi.VertexLayout{
			Stride: 24,
			Attributes: []rhi.VertexAttribute{
				{Location: 0, Offset: 0, Format: rhi.VertexFormatFloat32x3},
				{Location: 1, Offset: 12, Format: rhi.VertexFormatFloat32x3},
			},
		},
		ColorFormat: rhi.FormatBGRA8Srgb,
		DepthFormat: rhi.FormatD24UnormS8Uint,
	})
	if err != nil {
		return nil, err
	}

	a.vertices, err = ctx.UploadBuffer(triangleVertices(), rhi.BufferUsageVertex)
	if err != nil {
		return nil, err
	}

	if err := a.configure(win.framebufferExtent()); err != nil {
		return nil, err
	}
	return a, nil
}

// configure rebuilds the swapchain and the depth attachment at extent.
func (a *app) configure(extent rhi.Extent2D) error {
	if extent.IsZero() {
		return nil
	}
	if err := a.ctx.Configure(extent); err != nil {
		return err
	}

	if a.depthView != nil {
		a.depthView.Destroy()
	}
	if a.depth != nil {
		a.depth.Destroy()
	}
	depth, err := a.ctx.CreateTexture(rhi.TextureDesc{
		Label:  "demo depth",
		Extent: extent,
		Format: rhi.FormatD24UnormS8Uint,
		Usage:  rhi.TextureUsageDepthStencil,
	})
	if err != nil {
		return err
	}
	view, err := a.ctx.CreateTextureView(depth, rhi.TextureViewDesc{})
	if err != nil {
		depth.Destroy()
		return err
	}

	a.depth = depth
	a.depthView = view
	a.depthLayout = rhi.LayoutUndefined
	a.extent = extent
	return nil
}

func (a *app) drawFrame() error {
	extent := a.win.framebufferExtent()
	if extent.IsZero() {
		// Minimized; park until the window comes back.
		glfw.WaitEvents()
		return nil
	}
	if extent != a.extent {
		return a.configure(extent)
	}

	frame, err := a.ctx.AcquireFrame()
	if errors.Is(err, rhi.ErrSwapchainOutOfDate) {
		return a.configure(extent)
	}
	if err != nil {
		return err
	}

	cb, err := a.ctx.BeginFrame(frame)
	if errors.Is(err, rhi.ErrSwapchainOutOfDate) {
		return a.configure(extent)
	}
	if err != nil {
		return err
	}

	cb.TextureBarrier(a.depth, a.depthLayout, rhi.LayoutDepthStencilAttachment)
	a.depthLayout = rhi.LayoutDepthStencilAttachment

	cb.BeginRendering(rhi.RenderPassDesc{
		ColorTarget: frame.View,
		DepthTarget: a.depthView,
		Extent:      frame.Extent,
		ClearColor:  rhi.Color{R: 0.1, G: 0.12, B: 0.16, A: 1},
		ClearDepth:  1,
	})
	cb.SetViewport(frame.Extent)
	cb.BindPipeline(a.pipeline)
	cb.BindVertexBuffer(a.vertices)
	cb.Draw(3, 0)
	cb.EndRendering()

	if _, err := a.ctx.SubmitFrame(cb, frame); err != nil {
		if errors.Is(err, rhi.ErrSwapchainOutOfDate) {
			return a.configure(extent)
		}
		return err
	}
	return nil
}

func (a *app) destroy() {
	if err := a.ctx.WaitIdle(); err != nil {
		videoland.Logger().Warn("wait idle at shutdown", "error", err)
	}
	if a.depthView != nil {
		a.depthView.Destroy()
	}
	if a.depth != nil {
		a.depth.Destroy()
	}
	if a.vertices != nil {
		a.vertices.Destroy()
	}
	if a.shader != nil {
		a.shader.Destroy()
	}
}

// triangleVertices packs three vertices as interleaved position and
// color, matching the pipeline's vertex layout.
func triangleVertices() []byte {
	verts := []float32{
		0.0, -0.5, 0.5, 1.0, 0.25, 0.25,
		0.5, 0.5, 0.5, 0.25, 1.0, 0.25,
		-0.5, 0.5, 0.5, 0.25, 0.25, 1.0,
	}
	buf := make([]byte, 4*len(verts))
	for i, v := range verts {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
