//go:build !vulkan

package vulkan

import "github.com/weqqr/videoland/rhi"

// init registers a nil-returning factory when the vulkan tag is not
// set. This allows code to compile without the Vulkan driver while
// still allowing rhi.Get(rhi.BackendVulkan) to return nil gracefully.
func init() {
	rhi.Register(rhi.BackendVulkan, func() rhi.Backend {
		return nil
	})
}
