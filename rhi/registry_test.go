package rhi

import (
	"testing"
)

type fakeBackend struct {
	name string
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Open(window WindowHandle, opts *Options) (Device, error) {
	return nil, ErrDriverUnavailable
}

// swapRegistry replaces the registry with an empty one for the test
// and restores it on cleanup. Backends register themselves from init
// (the mock backend does, in this test binary), so tests must not
// mutate the shared map.
func swapRegistry(t *testing.T) {
	t.Helper()
	registryMu.Lock()
	saved := backends
	backends = make(map[string]BackendFactory)
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		backends = saved
		registryMu.Unlock()
	})
}

func TestRegisterAndGet(t *testing.T) {
	swapRegistry(t)

	Register("fake", func() Backend {
		return &fakeBackend{name: "fake"}
	})

	b := Get("fake")
	if b == nil {
		t.Fatal("Get(fake) = nil, want backend")
	}
	if b.Name() != "fake" {
		t.Errorf("Name() = %q, want %q", b.Name(), "fake")
	}
}

func TestGetUnknown(t *testing.T) {
	swapRegistry(t)

	if b := Get("does-not-exist"); b != nil {
		t.Errorf("Get(does-not-exist) = %v, want nil", b)
	}
}

func TestUnregister(t *testing.T) {
	swapRegistry(t)

	Register("fake", func() Backend {
		return &fakeBackend{name: "fake"}
	})
	Unregister("fake")

	if IsRegistered("fake") {
		t.Error("IsRegistered(fake) = true after Unregister")
	}
	if b := Get("fake"); b != nil {
		t.Errorf("Get(fake) = %v after Unregister, want nil", b)
	}
}

func TestAvailable(t *testing.T) {
	swapRegistry(t)

	Register("fake-a", func() Backend { return &fakeBackend{name: "fake-a"} })
	Register("fake-b", func() Backend { return &fakeBackend{name: "fake-b"} })

	names := Available()
	found := make(map[string]bool, len(names))
	for _, n := range names {
		found[n] = true
	}
	if !found["fake-a"] || !found["fake-b"] {
		t.Errorf("Available() = %v, want it to contain fake-a and fake-b", names)
	}
}

func TestIsRegistered(t *testing.T) {
	swapRegistry(t)

	if IsRegistered("fake") {
		t.Fatal("IsRegistered(fake) = true before Register")
	}
	Register("fake", func() Backend { return &fakeBackend{name: "fake"} })

	if !IsRegistered("fake") {
		t.Error("IsRegistered(fake) = false after Register")
	}
}

func TestDefaultPriority(t *testing.T) {
	swapRegistry(t)

	Register(BackendVulkan, func() Backend { return &fakeBackend{name: BackendVulkan} })
	Register(BackendMock, func() Backend { return &fakeBackend{name: BackendMock} })

	b := Default()
	if b == nil {
		t.Fatal("Default() = nil, want backend")
	}
	if b.Name() != BackendVulkan {
		t.Errorf("Default().Name() = %q, want %q", b.Name(), BackendVulkan)
	}
}

// A backend compiled out registers a nil-returning factory; Default
// must skip it and fall through to the next priority entry.
func TestDefaultSkipsNilFactories(t *testing.T) {
	swapRegistry(t)

	Register(BackendVulkan, func() Backend { return nil })
	Register(BackendMock, func() Backend { return &fakeBackend{name: BackendMock} })

	b := Default()
	if b == nil {
		t.Fatal("Default() = nil, want mock backend")
	}
	if b.Name() != BackendMock {
		t.Errorf("Default().Name() = %q, want %q", b.Name(), BackendMock)
	}
}

func TestDefaultEmpty(t *testing.T) {
	swapRegistry(t)

	if b := Default(); b != nil {
		t.Errorf("Default() = %v with empty registry, want nil", b)
	}
}

func TestMustDefaultPanics(t *testing.T) {
	swapRegistry(t)

	defer func() {
		if r := recover(); r == nil {
			t.Error("MustDefault() did not panic with empty registry")
		}
	}()
	MustDefault()
}
