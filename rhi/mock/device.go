package mock

import (
	"fmt"
	"sync"
	"time"

	"github.com/weqqr/videoland/rhi"
)

// Device is the mock device. Submissions execute on the calling
// goroutine, so the submission counter always equals the number of
// submits made.
type Device struct {
	waitTimeout time.Duration

	// mu guards swapchain and frame-loop state.
	mu         sync.Mutex
	configured bool
	extent     rhi.Extent2D
	frameCount uint32
	nextImage  uint32
	generation uint64
	views      []*textureView
	frameIndex uint64
	closed     bool

	// subMu guards the submission counter; subCond wakes WaitUntil
	// callers when it advances.
	subMu   sync.Mutex
	subCond *sync.Cond
	counter uint64

	// gcMu guards the deferred-release queue.
	gcMu      sync.Mutex
	graveyard []deferredRelease
}

// deferredRelease is one queued resource release tagged with the frame
// it was requested on.
type deferredRelease struct {
	frame   uint64
	release func()
}

func newDevice(opts *rhi.Options) *Device {
	timeout := rhi.DefaultWaitTimeout
	if opts != nil && opts.WaitTimeout > 0 {
		timeout = opts.WaitTimeout
	}
	d := &Device{waitTimeout: timeout}
	d.subCond = sync.NewCond(&d.subMu)
	return d
}

// Adapter returns a fixed mock adapter description.
func (d *Device) Adapter() rhi.AdapterInfo {
	return rhi.AdapterInfo{Name: "mock adapter", QueueFamily: 0}
}

// ConfigureSwapchain resets the simulated swapchain. Acquire order
// restarts at image 0 and previously acquired frames become invalid.
func (d *Device) ConfigureSwapchain(extent rhi.Extent2D, frameCount uint32) error {
	if extent.IsZero() {
		return fmt.Errorf("%w: swapchain extent %v", rhi.ErrInitializationFailed, extent)
	}
	if frameCount < 1 {
		return fmt.Errorf("%w: swapchain needs at least 1 image", rhi.ErrInitializationFailed)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return rhi.ErrContextClosed
	}

	d.generation++
	d.extent = extent
	d.frameCount = frameCount
	d.nextImage = 0
	d.configured = true

	views := make([]*textureView, frameCount)
	for i := range views {
		views[i] = &textureView{
			device:     d,
			borrowed:   true,
			generation: d.generation,
			format:     rhi.FormatBGRA8Srgb,
		}
	}
	d.views = views
	return nil
}

// AcquireNextFrame hands out swapchain images round-robin starting at
// index 0.
func (d *Device) AcquireNextFrame() (*rhi.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, rhi.ErrContextClosed
	}
	if !d.configured {
		return nil, rhi.ErrSwapchainNotConfigured
	}

	index := d.nextImage
	d.nextImage = (d.nextImage + 1) % d.frameCount
	return &rhi.Frame{
		Index:  index,
		View:   d.views[index],
		Extent: d.extent,
	}, nil
}

// BeginCommandBuffer starts recording for an acquired frame. Frames
// from before the last reconfigure are rejected. Beginning a frame
// advances the frame index that tags deferred releases, so a resource
// destroyed while this frame records ages against this frame.
func (d *Device) BeginCommandBuffer(frame *rhi.Frame) (rhi.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, rhi.ErrContextClosed
	}
	if frame == nil {
		return nil, fmt.Errorf("%w: nil frame", rhi.ErrRecordingFailed)
	}
	view, ok := frame.View.(*textureView)
	if !ok || view.generation != d.generation {
		return nil, rhi.ErrSwapchainOutOfDate
	}
	d.frameIndex++
	return newCommandBuffer(d), nil
}

// SubmitFrame executes the recorded commands and advances the
// submission counter.
func (d *Device) SubmitFrame(cb rhi.CommandBuffer, frame *rhi.Frame) (rhi.SubmissionID, error) {
	mcb, ok := cb.(*commandBuffer)
	if !ok {
		return 0, fmt.Errorf("%w: command buffer from another backend", rhi.ErrRecordingFailed)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, rhi.ErrContextClosed
	}
	if frame == nil {
		d.mu.Unlock()
		return 0, fmt.Errorf("%w: nil frame", rhi.ErrRecordingFailed)
	}
	if view, ok := frame.View.(*textureView); !ok || view.generation != d.generation {
		d.mu.Unlock()
		return 0, rhi.ErrSwapchainOutOfDate
	}
	d.mu.Unlock()

	if err := mcb.finish(); err != nil {
		return 0, err
	}
	if err := mcb.execute(); err != nil {
		return 0, err
	}
	return d.advanceCounter(), nil
}

// ImmediateBuffer starts recording a one-off command buffer.
func (d *Device) ImmediateBuffer() (rhi.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, rhi.ErrContextClosed
	}
	return newCommandBuffer(d), nil
}

// SubmitImmediate executes a one-off command buffer and advances the
// submission counter. It does not count a frame.
func (d *Device) SubmitImmediate(cb rhi.CommandBuffer) (rhi.SubmissionID, error) {
	mcb, ok := cb.(*commandBuffer)
	if !ok {
		return 0, fmt.Errorf("%w: command buffer from another backend", rhi.ErrRecordingFailed)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, rhi.ErrContextClosed
	}
	d.mu.Unlock()

	if err := mcb.finish(); err != nil {
		return 0, err
	}
	if err := mcb.execute(); err != nil {
		return 0, err
	}
	return d.advanceCounter(), nil
}

func (d *Device) advanceCounter() rhi.SubmissionID {
	d.subMu.Lock()
	d.counter++
	id := rhi.SubmissionID(d.counter)
	d.subCond.Broadcast()
	d.subMu.Unlock()
	return id
}

// WaitUntil blocks until the counter reaches id. Since the mock
// completes synchronously, waiting for an already-returned ID never
// blocks; waiting for a future ID blocks until another goroutine
// submits or the timeout fires.
func (d *Device) WaitUntil(id rhi.SubmissionID, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = d.waitTimeout
	}
	expire := time.Now().Add(timeout)

	// Wake the cond loop when the deadline passes; Wait has no
	// timeout of its own.
	timer := time.AfterFunc(timeout, func() {
		d.subMu.Lock()
		d.subCond.Broadcast()
		d.subMu.Unlock()
	})
	defer timer.Stop()

	d.subMu.Lock()
	defer d.subMu.Unlock()
	for rhi.SubmissionID(d.counter) < id {
		if !time.Now().Before(expire) {
			return fmt.Errorf("%w: submission %d not reached after %v", rhi.ErrWaitTimeout, id, timeout)
		}
		d.subCond.Wait()
	}
	return nil
}

// SubmissionCounter returns the number of completed submissions.
func (d *Device) SubmissionCounter() rhi.SubmissionID {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	return rhi.SubmissionID(d.counter)
}

// WaitIdle returns immediately: mock submissions complete before the
// submit call returns.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return rhi.ErrContextClosed
	}
	return nil
}

// deferRelease queues a release tagged with the current frame index.
func (d *Device) deferRelease(fn func()) {
	d.mu.Lock()
	frame := d.frameIndex
	d.mu.Unlock()

	d.gcMu.Lock()
	d.graveyard = append(d.graveyard, deferredRelease{frame: frame, release: fn})
	d.gcMu.Unlock()
}

// CollectGarbage releases queued resources at least frameDiff frames
// old. frameDiff 0 releases everything pending.
func (d *Device) CollectGarbage(frameDiff uint64) {
	d.mu.Lock()
	current := d.frameIndex
	d.mu.Unlock()

	d.gcMu.Lock()
	kept := d.graveyard[:0]
	var ready []func()
	for _, entry := range d.graveyard {
		if current-entry.frame >= frameDiff {
			ready = append(ready, entry.release)
		} else {
			kept = append(kept, entry)
		}
	}
	d.graveyard = kept
	d.gcMu.Unlock()

	for _, release := range ready {
		release()
	}
}

// Close releases all pending resources and marks the device closed.
// Safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.configured = false
	d.views = nil
	d.mu.Unlock()

	d.CollectGarbage(0)
	return nil
}

// PendingReleases returns the number of resources queued for deferred
// release. Tests use it to observe the destruction queue.
func (d *Device) PendingReleases() int {
	d.gcMu.Lock()
	defer d.gcMu.Unlock()
	return len(d.graveyard)
}

// FrameIndex returns the number of frames begun so far.
func (d *Device) FrameIndex() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frameIndex
}
