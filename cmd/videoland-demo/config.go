//go:build vulkan

package main

import (
	"errors"
	"os"

	"github.com/weqqr/videoland"
	"github.com/weqqr/videoland/rhi"
)

// loadConfig reads the YAML config at path, falling back to the
// defaults when the file does not exist.
//
// Example config:
//
//	app_name: videoland demo
//	backend: vulkan
//	frame_count: 2
//	present_mode: mailbox
//	validation: true
func loadConfig(path string) (rhi.Options, error) {
	opts, err := rhi.LoadOptions(path)
	if errors.Is(err, os.ErrNotExist) {
		videoland.Logger().Info("no config file, using defaults", "path", path)
		return rhi.DefaultOptions(), nil
	}
	return opts, err
}
