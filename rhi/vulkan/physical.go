//go:build vulkan

package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/weqqr/videoland"
	"github.com/weqqr/videoland/rhi"
)

// adapter is a selected physical device and the queue family that
// carries both graphics and present work.
type adapter struct {
	physicalDevice vk.PhysicalDevice
	name           string
	queueFamily    uint32
}

// selectAdapter returns the first enumerated physical device that has
// a graphics queue family able to present to surface, supports the
// swapchain extension, and exposes at least one surface format and
// present mode.
func selectAdapter(instance vk.Instance, surface vk.Surface) (*adapter, error) {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(instance, &count, nil); res != vk.Success {
		return nil, fmt.Errorf("%w: vkEnumeratePhysicalDevices: %v", rhi.ErrNoSuitableDevice, vk.Error(res))
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: no Vulkan devices present", rhi.ErrNoSuitableDevice)
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(instance, &count, devices); res != vk.Success {
		return nil, fmt.Errorf("%w: vkEnumeratePhysicalDevices: %v", rhi.ErrNoSuitableDevice, vk.Error(res))
	}

	for _, device := range devices {
		name := deviceName(device)

		family, ok := findQueueFamily(device, surface)
		if !ok {
			videoland.Logger().Debug("adapter rejected: no graphics+present queue family", "name", name)
			continue
		}
		if !hasSwapchainExtension(device) {
			videoland.Logger().Debug("adapter rejected: no swapchain extension", "name", name)
			continue
		}
		if !surfaceCompatible(device, surface) {
			videoland.Logger().Debug("adapter rejected: surface has no formats or present modes", "name", name)
			continue
		}

		return &adapter{
			physicalDevice: device,
			name:           name,
			queueFamily:    family,
		}, nil
	}

	return nil, fmt.Errorf("%w: %d devices enumerated, none can render and present", rhi.ErrNoSuitableDevice, count)
}

func deviceName(device vk.PhysicalDevice) string {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(device, &props)
	props.Deref()
	return vk.ToString(props.DeviceName[:])
}

// findQueueFamily returns the first queue family that supports both
// graphics commands and presentation to surface. Keeping the two on
// one queue sidesteps cross-queue image ownership transfers.
func findQueueFamily(device vk.PhysicalDevice, surface vk.Surface) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, families)

	for i := range families {
		families[i].Deref()
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		var hasPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &hasPresent)
		if hasPresent.B() {
			return uint32(i), true
		}
	}
	return 0, false
}

func hasSwapchainExtension(device vk.PhysicalDevice) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success {
		return false
	}
	extensions := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, extensions); res != vk.Success {
		return false
	}

	for i := range extensions {
		extensions[i].Deref()
		if vk.ToString(extensions[i].ExtensionName[:]) == vk.KhrSwapchainExtensionName {
			return true
		}
	}
	return false
}

func surfaceCompatible(device vk.PhysicalDevice, surface vk.Surface) bool {
	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(device, surface, &formatCount, nil)

	var modeCount uint32
	vk.GetPhysicalDeviceSurfacePresentModes(device, surface, &modeCount, nil)

	return formatCount > 0 && modeCount > 0
}
