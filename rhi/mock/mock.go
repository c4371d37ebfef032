// Package mock provides an in-memory rhi backend.
//
// The mock backend completes every submission synchronously: by the
// time SubmitFrame or SubmitImmediate returns, the recorded commands
// have executed and the submission counter has advanced. Buffer copies
// move real bytes, so upload and readback paths can be tested without
// a GPU. Rendering commands are recorded but produce no pixels.
//
// The backend registers itself as "mock" on import:
//
//	import _ "github.com/weqqr/videoland/rhi/mock"
package mock

import (
	"github.com/weqqr/videoland/rhi"
)

func init() {
	rhi.Register(rhi.BackendMock, func() rhi.Backend {
		return &Backend{}
	})
}

// Backend creates mock devices. The window handle is ignored; nil is
// accepted.
type Backend struct{}

// Name returns "mock".
func (b *Backend) Name() string {
	return rhi.BackendMock
}

// Open returns a new mock device. It never fails.
func (b *Backend) Open(window rhi.WindowHandle, opts *rhi.Options) (rhi.Device, error) {
	_ = window
	return newDevice(opts), nil
}
