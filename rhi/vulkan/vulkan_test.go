//go:build vulkan

package vulkan

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/weqqr/videoland/rhi"
)

func TestBytesToBytecode(t *testing.T) {
	// SPIR-V magic followed by one synthetic word.
	data := []byte{
		0x03, 0x02, 0x23, 0x07,
		0x78, 0x56, 0x34, 0x12,
	}
	words := bytesToBytecode(data)
	if len(words) != 2 {
		t.Fatalf("bytesToBytecode() len = %d, want 2", len(words))
	}
	if words[0] != 0x07230203 {
		t.Errorf("words[0] = %#x, want 0x07230203", words[0])
	}
	if words[1] != 0x12345678 {
		t.Errorf("words[1] = %#x, want 0x12345678", words[1])
	}
}

func TestSafeString(t *testing.T) {
	got := safeString("VK_KHR_swapchain")
	if got != "VK_KHR_swapchain\x00" {
		t.Errorf("safeString() = %q, want trailing NUL", got)
	}
	if safeString(got) != got {
		t.Error("safeString() re-terminated an already terminated string")
	}
}

func TestSafeStrings(t *testing.T) {
	got := safeStrings([]string{"a", "b\x00"})
	want := []string{"a\x00", "b\x00"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("safeStrings()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMapFormat(t *testing.T) {
	tests := []struct {
		format rhi.TextureFormat
		want   vk.Format
	}{
		{rhi.FormatBGRA8Srgb, vk.FormatB8g8r8a8Srgb},
		{rhi.FormatRGBA8Unorm, vk.FormatR8g8b8a8Unorm},
		{rhi.FormatD24UnormS8Uint, vk.FormatD24UnormS8Uint},
	}
	for _, tt := range tests {
		got, err := mapFormat(tt.format)
		if err != nil {
			t.Errorf("mapFormat(%v) error = %v", tt.format, err)
			continue
		}
		if got != tt.want {
			t.Errorf("mapFormat(%v) = %v, want %v", tt.format, got, tt.want)
		}
	}

	if _, err := mapFormat(rhi.FormatUnknown); err == nil {
		t.Error("mapFormat(unknown) error = nil, want error")
	}
}

func TestMapVertexFormat(t *testing.T) {
	tests := []struct {
		format rhi.VertexFormat
		want   vk.Format
	}{
		{rhi.VertexFormatFloat32x2, vk.FormatR32g32Sfloat},
		{rhi.VertexFormatFloat32x3, vk.FormatR32g32b32Sfloat},
		{rhi.VertexFormatFloat32x4, vk.FormatR32g32b32a32Sfloat},
	}
	for _, tt := range tests {
		if got := mapVertexFormat(tt.format); got != tt.want {
			t.Errorf("mapVertexFormat(%v) = %v, want %v", tt.format, got, tt.want)
		}
	}
}

func TestMapBufferUsageCombines(t *testing.T) {
	got := mapBufferUsage(rhi.BufferUsageVertex | rhi.BufferUsageTransferDst)
	want := vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit | vk.BufferUsageTransferDstBit)
	if got != want {
		t.Errorf("mapBufferUsage(vertex|transferDst) = %#x, want %#x", got, want)
	}
}

func TestMapTextureUsageCombines(t *testing.T) {
	got := mapTextureUsage(rhi.TextureUsageSampled | rhi.TextureUsageTransferDst)
	want := vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageTransferDstBit)
	if got != want {
		t.Errorf("mapTextureUsage(sampled|transferDst) = %#x, want %#x", got, want)
	}
}

func TestAspectFor(t *testing.T) {
	if got := aspectFor(rhi.FormatD24UnormS8Uint); got != vk.ImageAspectFlags(vk.ImageAspectDepthBit|vk.ImageAspectStencilBit) {
		t.Errorf("aspectFor(depth) = %#x, want depth|stencil", got)
	}
	if got := aspectFor(rhi.FormatRGBA8Unorm); got != vk.ImageAspectFlags(vk.ImageAspectColorBit) {
		t.Errorf("aspectFor(color) = %#x, want color", got)
	}
}

func TestMapLayout(t *testing.T) {
	tests := []struct {
		layout rhi.TextureLayout
		want   vk.ImageLayout
	}{
		{rhi.LayoutUndefined, vk.ImageLayoutUndefined},
		{rhi.LayoutGeneral, vk.ImageLayoutGeneral},
		{rhi.LayoutTransferDst, vk.ImageLayoutTransferDstOptimal},
		{rhi.LayoutShaderReadOnly, vk.ImageLayoutShaderReadOnlyOptimal},
		{rhi.LayoutPresent, vk.ImageLayoutPresentSrc},
	}
	for _, tt := range tests {
		if got := mapLayout(tt.layout); got != tt.want {
			t.Errorf("mapLayout(%v) = %v, want %v", tt.layout, got, tt.want)
		}
	}
}

func TestLayoutSync(t *testing.T) {
	// Undefined sources must not carry an access scope.
	stage, access := layoutSync(vk.ImageLayoutUndefined)
	if stage != vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit) {
		t.Errorf("layoutSync(undefined) stage = %#x, want top of pipe", stage)
	}
	if access != 0 {
		t.Errorf("layoutSync(undefined) access = %#x, want 0", access)
	}

	stage, access = layoutSync(vk.ImageLayoutTransferDstOptimal)
	if stage != vk.PipelineStageFlags(vk.PipelineStageTransferBit) {
		t.Errorf("layoutSync(transferDst) stage = %#x, want transfer", stage)
	}
	if access != vk.AccessFlags(vk.AccessTransferWriteBit) {
		t.Errorf("layoutSync(transferDst) access = %#x, want transfer write", access)
	}

	stage, _ = layoutSync(vk.ImageLayoutPresentSrc)
	if stage != vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit) {
		t.Errorf("layoutSync(present) stage = %#x, want bottom of pipe", stage)
	}
}

func TestBackendName(t *testing.T) {
	b := &Backend{}
	if b.Name() != rhi.BackendVulkan {
		t.Errorf("Name() = %q, want %q", b.Name(), rhi.BackendVulkan)
	}
}

func TestCreateShaderModuleRejectsOddLength(t *testing.T) {
	d := &Device{}
	_, err := d.CreateShaderModule(rhi.ShaderModuleDesc{SPIRV: []byte{1, 2, 3}})
	if !errors.Is(err, rhi.ErrPipelineCreationFailed) {
		t.Errorf("CreateShaderModule(3 bytes) error = %v, want ErrPipelineCreationFailed", err)
	}
	_, err = d.CreateShaderModule(rhi.ShaderModuleDesc{})
	if !errors.Is(err, rhi.ErrPipelineCreationFailed) {
		t.Errorf("CreateShaderModule(empty) error = %v, want ErrPipelineCreationFailed", err)
	}
}
