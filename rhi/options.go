package rhi

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PresentMode selects how presentation paces against the display.
type PresentMode string

const (
	// PresentModeFIFO queues presents behind vertical blank. Always
	// supported; the default.
	PresentModeFIFO PresentMode = "fifo"

	// PresentModeMailbox replaces the queued image instead of waiting,
	// trading tearing-free low latency for extra image traffic.
	PresentModeMailbox PresentMode = "mailbox"

	// PresentModeImmediate presents without waiting for vertical blank
	// and may tear.
	PresentModeImmediate PresentMode = "immediate"
)

// Options holds device creation settings. The zero value is not
// usable; start from DefaultOptions or load a config file.
type Options struct {
	// AppName is reported to the driver for tooling and diagnostics.
	AppName string `yaml:"app_name"`

	// Backend forces a backend by registry name. Empty selects by
	// registration priority.
	Backend string `yaml:"backend"`

	// FrameCount is the number of swapchain images requested. The
	// driver may round it up.
	FrameCount uint32 `yaml:"frame_count"`

	// PresentMode selects the presentation pacing.
	PresentMode PresentMode `yaml:"present_mode"`

	// Validation enables driver validation layers and routes their
	// output to the package logger. Slows everything down.
	Validation bool `yaml:"validation"`

	// WaitTimeout bounds WaitUntil calls made without an explicit
	// deadline. Zero means DefaultWaitTimeout. Not a config-file
	// setting; use WithWaitTimeout.
	WaitTimeout time.Duration `yaml:"-"`
}

// DefaultOptions returns the settings used when no overrides are given.
func DefaultOptions() Options {
	return Options{
		AppName:     "videoland",
		FrameCount:  FrameLatency,
		PresentMode: PresentModeFIFO,
		WaitTimeout: DefaultWaitTimeout,
	}
}

// LoadOptions reads a YAML config file and returns the options it
// carries layered over the defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("rhi: failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("rhi: failed to parse config file: %w", err)
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// Validate checks the options for values no backend can honor.
func (o *Options) Validate() error {
	if o.FrameCount < 1 {
		return fmt.Errorf("rhi: frame_count must be at least 1, got %d", o.FrameCount)
	}
	switch o.PresentMode {
	case PresentModeFIFO, PresentModeMailbox, PresentModeImmediate:
	case "":
		o.PresentMode = PresentModeFIFO
	default:
		return fmt.Errorf("rhi: unknown present_mode %q", o.PresentMode)
	}
	if o.WaitTimeout < 0 {
		return fmt.Errorf("rhi: wait_timeout must not be negative, got %v", o.WaitTimeout)
	}
	if o.WaitTimeout == 0 {
		o.WaitTimeout = DefaultWaitTimeout
	}
	return nil
}

// Option configures Options during context creation.
// Use functional options to customize device behavior.
//
// Example:
//
//	// Defaults: priority backend, FIFO, two frames in flight
//	ctx, err := rhi.CreateContext(window)
//
//	// Forced backend with validation
//	ctx, err := rhi.CreateContext(window,
//		rhi.WithBackend(rhi.BackendVulkan),
//		rhi.WithValidation(true))
type Option func(*Options)

// WithAppName sets the application name reported to the driver.
func WithAppName(name string) Option {
	return func(o *Options) {
		o.AppName = name
	}
}

// WithBackend forces a backend by registry name.
func WithBackend(name string) Option {
	return func(o *Options) {
		o.Backend = name
	}
}

// WithFrameCount sets the number of swapchain images requested.
func WithFrameCount(n uint32) Option {
	return func(o *Options) {
		o.FrameCount = n
	}
}

// WithPresentMode sets the presentation pacing.
func WithPresentMode(mode PresentMode) Option {
	return func(o *Options) {
		o.PresentMode = mode
	}
}

// WithValidation enables or disables driver validation layers.
func WithValidation(enabled bool) Option {
	return func(o *Options) {
		o.Validation = enabled
	}
}

// WithWaitTimeout bounds WaitUntil calls made without an explicit
// deadline.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.WaitTimeout = d
	}
}

// WithOptions replaces the whole option set, typically with values
// loaded from a config file. Later options still apply on top.
//
// Example:
//
//	opts, err := rhi.LoadOptions("videoland.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	ctx, err := rhi.CreateContext(window, rhi.WithOptions(opts))
func WithOptions(opts Options) Option {
	return func(o *Options) {
		*o = opts
	}
}
