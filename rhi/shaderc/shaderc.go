// Package shaderc translates WGSL shader source into the SPIR-V
// bytecode shader modules are created from.
//
// Translation runs entirely in-process through gogpu/naga, so shaders
// can ship as source and compile at startup. Applications with
// precompiled SPIR-V can skip this package and hand bytecode straight
// to CreateShaderModule.
package shaderc

import (
	"fmt"
	"os"
	"sync"

	"github.com/gogpu/naga"
	"golang.org/x/sync/errgroup"
)

// Compile translates a single WGSL source into SPIR-V bytecode.
func Compile(source string) ([]byte, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("shaderc: %w", err)
	}
	return spirv, nil
}

// CompileFile reads a WGSL source file and translates it.
func CompileFile(path string) ([]byte, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shaderc: %w", err)
	}
	return Compile(string(source))
}

// MustCompile is Compile for shaders known at build time; it panics on
// translation errors.
func MustCompile(source string) []byte {
	spirv, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return spirv
}

// CompileAll translates a set of named WGSL sources concurrently.
// On error the failing shader's name is part of the message and no
// partial result is returned.
func CompileAll(sources map[string]string) (map[string][]byte, error) {
	var mu sync.Mutex
	compiled := make(map[string][]byte, len(sources))

	var g errgroup.Group
	for name, source := range sources {
		g.Go(func() error {
			spirv, err := Compile(source)
			if err != nil {
				return fmt.Errorf("shader %q: %w", name, err)
			}
			mu.Lock()
			compiled[name] = spirv
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return compiled, nil
}
