//go:build vulkan

package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/weqqr/videoland/rhi"
)

// texture is an image with a dedicated memory allocation.
type texture struct {
	device *Device
	handle vk.Image
	memory vk.DeviceMemory
	size   int64
	extent rhi.Extent2D
	format rhi.TextureFormat

	mu        sync.Mutex
	destroyed bool
}

// textureView is an image view. Views borrowed from the swapchain do
// not own their image view object; the swapchain reclaims them on
// reconfigure and Destroy on them is a no-op.
type textureView struct {
	device   *Device
	handle   vk.ImageView
	image    vk.Image
	vkFormat vk.Format
	extent   rhi.Extent2D

	borrowed   bool
	generation uint64

	mu        sync.Mutex
	destroyed bool
}

// CreateTexture creates a device-local image and binds fresh memory to
// it.
func (d *Device) CreateTexture(desc rhi.TextureDesc) (rhi.Texture, error) {
	if desc.Extent.IsZero() {
		return nil, fmt.Errorf("vulkan: texture %q has zero extent", desc.Label)
	}
	format, err := mapFormat(desc.Format)
	if err != nil {
		return nil, err
	}

	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         mapTextureUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var image vk.Image
	if res := vk.CreateImage(d.handle, &info, nil, &image); res != vk.Success {
		return nil, fmt.Errorf("vulkan: vkCreateImage: %v", vk.Error(res))
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle, image, &req)
	req.Deref()

	memory, err := d.allocator.allocate(req, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(d.handle, image, nil)
		return nil, err
	}
	if res := vk.BindImageMemory(d.handle, image, memory, 0); res != vk.Success {
		d.allocator.free(memory, int64(req.Size))
		vk.DestroyImage(d.handle, image, nil)
		return nil, fmt.Errorf("vulkan: vkBindImageMemory: %v", vk.Error(res))
	}

	return &texture{
		device: d,
		handle: image,
		memory: memory,
		size:   int64(req.Size),
		extent: desc.Extent,
		format: desc.Format,
	}, nil
}

// CreateTextureView creates a view over tex. An unset desc.Format
// inherits the texture's format.
func (d *Device) CreateTextureView(tex rhi.Texture, desc rhi.TextureViewDesc) (rhi.TextureView, error) {
	t, ok := tex.(*texture)
	if !ok {
		return nil, fmt.Errorf("vulkan: texture from another backend")
	}

	viewFormat := desc.Format
	if viewFormat == rhi.FormatUnknown {
		viewFormat = t.format
	}
	format, err := mapFormat(viewFormat)
	if err != nil {
		return nil, err
	}

	handle, err := createImageView(d.handle, t.handle, format, aspectFor(viewFormat))
	if err != nil {
		return nil, err
	}

	return &textureView{
		device:   d,
		handle:   handle,
		image:    t.handle,
		vkFormat: format,
		extent:   t.extent,
	}, nil
}

func (t *texture) Extent() rhi.Extent2D {
	return t.extent
}

func (t *texture) Format() rhi.TextureFormat {
	return t.format
}

// Destroy queues the image and its memory for deferred release.
func (t *texture) Destroy() {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	t.destroyed = true
	t.mu.Unlock()

	d := t.device
	handle := t.handle
	memory := t.memory
	size := t.size
	d.deferRelease(func() {
		vk.DestroyImage(d.handle, handle, nil)
		d.allocator.free(memory, size)
	})
}

// Destroy queues the view for deferred release. Borrowed swapchain
// views are owned by the swapchain and ignore the call.
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

	d := v.device
	handle := v.handle
	d.deferRelease(func() {
		vk.DestroyImageView(d.handle, handle, nil)
	})
}

func createImageView(device vk.Device, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(device, &info, nil, &view); res != vk.Success {
		return vk.ImageView(vk.NullHandle), fmt.Errorf("vulkan: vkCreateImageView: %v", vk.Error(res))
	}
	return view, nil
}

func mapFormat(format rhi.TextureFormat) (vk.Format, error) {
	switch format {
	case rhi.FormatBGRA8Srgb:
		return vk.FormatB8g8r8a8Srgb, nil
	case rhi.FormatRGBA8Unorm:
		return vk.FormatR8g8b8a8Unorm, nil
	case rhi.FormatD24UnormS8Uint:
		return vk.FormatD24UnormS8Uint, nil
	default:
		return vk.FormatUndefined, fmt.Errorf("vulkan: unsupported texture format %v", format)
	}
}

// aspectFor returns the image aspect a format's views and barriers
// operate on.
func aspectFor(format rhi.TextureFormat) vk.ImageAspectFlags {
	if format.HasDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func mapTextureUsage(usage rhi.TextureUsage) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits
	if usage&rhi.TextureUsageRenderTarget != 0 {
		flags |= vk.ImageUsageColorAttachmentBit
	}
	if usage&rhi.TextureUsageDepthStencil != 0 {
		flags |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if usage&rhi.TextureUsageSampled != 0 {
		flags |= vk.ImageUsageSampledBit
	}
	if usage&rhi.TextureUsageTransferSrc != 0 {
		flags |= vk.ImageUsageTransferSrcBit
	}
	if usage&rhi.TextureUsageTransferDst != 0 {
		flags |= vk.ImageUsageTransferDstBit
	}
	return vk.ImageUsageFlags(flags)
}

func mapLayout(layout rhi.TextureLayout) vk.ImageLayout {
	switch layout {
	case rhi.LayoutGeneral:
		return vk.ImageLayoutGeneral
	case rhi.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case rhi.LayoutDepthStencilAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case rhi.LayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case rhi.LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case rhi.LayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case rhi.LayoutPresent:
		return vk.ImageLayoutPresentSrc
	default:
		return vk.ImageLayoutUndefined
	}
}
