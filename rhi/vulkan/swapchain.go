//go:build vulkan

package vulkan

import (
	"fmt"
	"math"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/weqqr/videoland"
	"github.com/weqqr/videoland/rhi"
)

// swapchain owns the presentable images, their borrowed views, and the
// per-image semaphore pairs. Every reconfigure bumps the generation;
// frames acquired under an older generation are rejected at recording
// time.
type swapchain struct {
	device      *Device
	presentMode rhi.PresentMode

	mu          sync.Mutex
	handle      vk.Swapchain
	format      vk.Format
	extent      rhi.Extent2D
	images      []vk.Image
	views       []*textureView
	acquireSems []vk.Semaphore
	renderSems  []vk.Semaphore
	spareSem    vk.Semaphore
	generation  uint64
	configured  bool
}

func (s *swapchain) configure(extent rhi.Extent2D, frameCount uint32) error {
	if extent.IsZero() {
		return fmt.Errorf("%w: swapchain extent %v", rhi.ErrInitializationFailed, extent)
	}
	if frameCount < 1 {
		return fmt.Errorf("%w: swapchain needs at least 1 image", rhi.ErrInitializationFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.device

	// In-flight frames may still reference the old images.
	vk.DeviceWaitIdle(d.handle)

	var caps vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(d.adapter.physicalDevice, d.surface, &caps); res != vk.Success {
		return fmt.Errorf("%w: vkGetPhysicalDeviceSurfaceCapabilitiesKHR: %v", rhi.ErrInitializationFailed, vk.Error(res))
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	format, colorSpace := chooseSurfaceFormat(d.adapter.physicalDevice, d.surface)
	mode := choosePresentMode(d.adapter.physicalDevice, d.surface, s.presentMode)
	vkExtent := clampExtent(caps, extent)

	imageCount := frameCount
	if imageCount < caps.MinImageCount {
		imageCount = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    imageCount,
		ImageFormat:      format,
		ImageColorSpace:  colorSpace,
		ImageExtent:      vkExtent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      mode,
		Clipped:          vk.True,
		OldSwapchain:     s.handle,
	}

	var handle vk.Swapchain
	if res := vk.CreateSwapchain(d.handle, &createInfo, nil, &handle); res != vk.Success {
		return fmt.Errorf("%w: vkCreateSwapchainKHR: %v", rhi.ErrInitializationFailed, vk.Error(res))
	}

	oldHandle := s.handle
	s.releaseLocked()
	if oldHandle != vk.NullSwapchain {
		vk.DestroySwapchain(d.handle, oldHandle, nil)
	}

	s.handle = handle
	s.format = format
	s.extent = rhi.Extent2D{Width: vkExtent.Width, Height: vkExtent.Height}
	s.generation++
	s.configured = false

	var count uint32
	vk.GetSwapchainImages(d.handle, s.handle, &count, nil)
	s.images = make([]vk.Image, count)
	vk.GetSwapchainImages(d.handle, s.handle, &count, s.images)

	s.views = make([]*textureView, count)
	for i, image := range s.images {
		view, err := createImageView(d.handle, image, format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			return err
		}
		s.views[i] = &textureView{
			device:     d,
			handle:     view,
			image:      image,
			vkFormat:   format,
			extent:     s.extent,
			borrowed:   true,
			generation: s.generation,
		}
	}

	s.acquireSems = make([]vk.Semaphore, count)
	s.renderSems = make([]vk.Semaphore, count)
	for i := range s.acquireSems {
		var err error
		if s.acquireSems[i], err = createSemaphore(d.handle); err != nil {
			return err
		}
		if s.renderSems[i], err = createSemaphore(d.handle); err != nil {
			return err
		}
	}
	spare, err := createSemaphore(d.handle)
	if err != nil {
		return err
	}
	s.spareSem = spare

	s.configured = true
	videoland.Logger().Info("swapchain configured",
		"width", s.extent.Width,
		"height", s.extent.Height,
		"images", count,
		"present_mode", string(s.presentMode))
	return nil
}

// acquire blocks until the driver hands out an image, then moves the
// signaled semaphore into the image's slot so the submit for this
// frame can wait on it. The displaced semaphore becomes the spare for
// the next acquire.
func (s *swapchain) acquire() (*rhi.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured {
		return nil, rhi.ErrSwapchainNotConfigured
	}

	var index uint32
	res := vk.AcquireNextImage(s.device.handle, s.handle, vk.MaxUint64, s.spareSem, vk.Fence(vk.NullHandle), &index)
	switch res {
	case vk.Success:
	case vk.Suboptimal:
		videoland.Logger().Warn("suboptimal acquire, swapchain should be reconfigured")
	case vk.ErrorOutOfDate:
		return nil, rhi.ErrSwapchainOutOfDate
	default:
		return nil, fmt.Errorf("vulkan: vkAcquireNextImageKHR: %v", vk.Error(res))
	}

	s.acquireSems[index], s.spareSem = s.spareSem, s.acquireSems[index]

	return &rhi.Frame{
		Index:  index,
		View:   s.views[index],
		Extent: s.extent,
	}, nil
}

// present queues the image for display, waiting on the frame's render
// semaphore.
func (s *swapchain) present(index uint32) error {
	s.mu.Lock()
	handle := s.handle
	sem := s.renderSems[index]
	s.mu.Unlock()

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{sem},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{handle},
		PImageIndices:      []uint32{index},
	}
	switch res := vk.QueuePresent(s.device.queue, &presentInfo); res {
	case vk.Success:
		return nil
	case vk.Suboptimal:
		videoland.Logger().Warn("suboptimal present, swapchain should be reconfigured")
		return nil
	case vk.ErrorOutOfDate:
		return rhi.ErrSwapchainOutOfDate
	default:
		return fmt.Errorf("vulkan: vkQueuePresent: %v", vk.Error(res))
	}
}

// frameSync returns the semaphore pair for one image: the acquire
// semaphore the submit must wait on and the render semaphore the
// present waits on.
func (s *swapchain) frameSync(index uint32) (acquire, render vk.Semaphore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquireSems[index], s.renderSems[index]
}

func (s *swapchain) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// releaseLocked destroys the views and semaphores of the current
// configuration. The swapchain handle itself stays; reconfigure hands
// it to the driver as OldSwapchain before destroying it.
func (s *swapchain) releaseLocked() {
	dev := s.device.handle
	for _, view := range s.views {
		vk.DestroyImageView(dev, view.handle, nil)
	}
	s.views = nil
	s.images = nil
	for _, sem := range s.acquireSems {
		vk.DestroySemaphore(dev, sem, nil)
	}
	s.acquireSems = nil
	for _, sem := range s.renderSems {
		vk.DestroySemaphore(dev, sem, nil)
	}
	s.renderSems = nil
	if s.spareSem != vk.Semaphore(vk.NullHandle) {
		vk.DestroySemaphore(dev, s.spareSem, nil)
		s.spareSem = vk.Semaphore(vk.NullHandle)
	}
}

func (s *swapchain) destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked()
	if s.handle != vk.NullSwapchain {
		vk.DestroySwapchain(s.device.handle, s.handle, nil)
		s.handle = vk.NullSwapchain
	}
	s.configured = false
}

func chooseSurfaceFormat(device vk.PhysicalDevice, surface vk.Surface) (vk.Format, vk.ColorSpace) {
	var count uint32
	vk.GetPhysicalDeviceSurfaceFormats(device, surface, &count, nil)
	formats := make([]vk.SurfaceFormat, count)
	vk.GetPhysicalDeviceSurfaceFormats(device, surface, &count, formats)

	for i := range formats {
		formats[i].Deref()
		if formats[i].Format == vk.FormatB8g8r8a8Srgb && formats[i].ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return formats[i].Format, formats[i].ColorSpace
		}
	}

	formats[0].Deref()
	return formats[0].Format, formats[0].ColorSpace
}

func choosePresentMode(device vk.PhysicalDevice, surface vk.Surface, wanted rhi.PresentMode) vk.PresentMode {
	target := vk.PresentModeFifo
	switch wanted {
	case rhi.PresentModeMailbox:
		target = vk.PresentModeMailbox
	case rhi.PresentModeImmediate:
		target = vk.PresentModeImmediate
	}
	if target == vk.PresentModeFifo {
		return target
	}

	var count uint32
	vk.GetPhysicalDeviceSurfacePresentModes(device, surface, &count, nil)
	modes := make([]vk.PresentMode, count)
	vk.GetPhysicalDeviceSurfacePresentModes(device, surface, &count, modes)

	for _, mode := range modes {
		if mode == target {
			return target
		}
	}
	videoland.Logger().Warn("present mode not supported, falling back to fifo",
		"wanted", string(wanted))
	return vk.PresentModeFifo
}

// clampExtent resolves the swapchain extent. When the surface reports
// a fixed current extent the driver dictates the size; otherwise the
// request is clamped to the supported range.
func clampExtent(caps vk.SurfaceCapabilities, requested rhi.Extent2D) vk.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}

	extent := vk.Extent2D{Width: requested.Width, Height: requested.Height}
	if extent.Width < caps.MinImageExtent.Width {
		extent.Width = caps.MinImageExtent.Width
	}
	if extent.Width > caps.MaxImageExtent.Width {
		extent.Width = caps.MaxImageExtent.Width
	}
	if extent.Height < caps.MinImageExtent.Height {
		extent.Height = caps.MinImageExtent.Height
	}
	if extent.Height > caps.MaxImageExtent.Height {
		extent.Height = caps.MaxImageExtent.Height
	}
	return extent
}

func createSemaphore(device vk.Device) (vk.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var sem vk.Semaphore
	if res := vk.CreateSemaphore(device, &info, nil, &sem); res != vk.Success {
		return vk.Semaphore(vk.NullHandle), fmt.Errorf("%w: vkCreateSemaphore: %v", rhi.ErrInitializationFailed, vk.Error(res))
	}
	return sem, nil
}
