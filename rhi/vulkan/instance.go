//go:build vulkan

package vulkan

import (
	"fmt"
	"strings"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/weqqr/videoland"
	"github.com/weqqr/videoland/rhi"
)

const validationLayerName = "VK_LAYER_KHRONOS_validation"

// instance wraps the Vulkan instance together with the optional debug
// callback installed for validation output.
type instance struct {
	handle     vk.Instance
	validation bool
	debug      vk.DebugReportCallback
}

// safeString returns s with the NUL terminator the C side expects.
func safeString(s string) string {
	if strings.HasSuffix(s, "\x00") {
		return s
	}
	return s + "\x00"
}

func safeStrings(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = safeString(s)
	}
	return out
}

func createInstance(window rhi.WindowHandle, opts *rhi.Options) (*instance, error) {
	extensions := safeStrings(window.InstanceExtensions())

	var layers []string
	validation := opts.Validation
	if validation {
		if hasValidationLayer() {
			layers = append(layers, safeString(validationLayerName))
			extensions = append(extensions, safeString(vk.ExtDebugReportExtensionName))
		} else {
			videoland.Logger().Warn("validation requested but layer is not installed",
				"layer", validationLayerName)
			validation = false
		}
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   safeString(opts.AppName),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        safeString("videoland"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.ApiVersion11,
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	var handle vk.Instance
	if res := vk.CreateInstance(&createInfo, nil, &handle); res != vk.Success {
		return nil, fmt.Errorf("%w: vkCreateInstance: %v", rhi.ErrInitializationFailed, vk.Error(res))
	}
	if err := vk.InitInstance(handle); err != nil {
		vk.DestroyInstance(handle, nil)
		return nil, fmt.Errorf("%w: %v", rhi.ErrInitializationFailed, err)
	}

	inst := &instance{handle: handle, validation: validation}
	if validation {
		if err := inst.installDebugCallback(); err != nil {
			vk.DestroyInstance(handle, nil)
			return nil, err
		}
		videoland.Logger().Info("vulkan validation enabled")
	}
	return inst, nil
}

// hasValidationLayer reports whether the Khronos validation layer is
// available on this system.
func hasValidationLayer() bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return false
	}

	for i := range available {
		available[i].Deref()
		if vk.ToString(available[i].LayerName[:]) == validationLayerName {
			return true
		}
	}
	return false
}

func (in *instance) installDebugCallback() error {
	createInfo := vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(vk.DebugReportErrorBit |
			vk.DebugReportWarningBit |
			vk.DebugReportPerformanceWarningBit),
		PfnCallback: debugReportCallback,
	}
	if res := vk.CreateDebugReportCallback(in.handle, &createInfo, nil, &in.debug); res != vk.Success {
		return fmt.Errorf("%w: vkCreateDebugReportCallbackEXT: %v", rhi.ErrInitializationFailed, vk.Error(res))
	}
	return nil
}

// debugReportCallback routes driver validation output to the package
// logger.
func debugReportCallback(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint64, messageCode int32,
	layerPrefix string, message string, userData unsafe.Pointer) vk.Bool32 {

	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		videoland.Logger().Error("vulkan validation",
			"layer", layerPrefix, "code", messageCode, "message", message)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		videoland.Logger().Warn("vulkan validation",
			"layer", layerPrefix, "code", messageCode, "message", message)
	default:
		videoland.Logger().Debug("vulkan validation",
			"layer", layerPrefix, "code", messageCode, "message", message)
	}
	return vk.Bool32(vk.False)
}

// destroy tears down the surface, the debug callback, and the
// instance, in that order.
func (in *instance) destroy(surface vk.Surface) {
	if surface != vk.NullSurface {
		vk.DestroySurface(in.handle, surface, nil)
	}
	if in.validation {
		vk.DestroyDebugReportCallback(in.handle, in.debug, nil)
	}
	vk.DestroyInstance(in.handle, nil)
}
