package shaderc

import (
	"strings"
	"testing"
)

const doubleShaderWGSL = `
struct Data {
    values: array<u32, 64>,
}

@group(0) @binding(0) var<storage, read_write> data: Data;

@compute @workgroup_size(64)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
    data.values[id.x] = data.values[id.x] * 2u;
}
`

// compileOrSkip translates source, skipping the test when the failure
// is a known translator limitation rather than a shaderc defect.
func compileOrSkip(t *testing.T, source string) []byte {
	t.Helper()
	spirv, err := Compile(source)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
			t.Skipf("translator limitation: %v", err)
		}
		t.Fatalf("Compile() error = %v", err)
	}
	return spirv
}

func TestCompile(t *testing.T) {
	spirv := compileOrSkip(t, doubleShaderWGSL)
	if len(spirv) < 4 {
		t.Fatalf("Compile() returned %d bytes, want at least a magic word", len(spirv))
	}
	if len(spirv)%4 != 0 {
		t.Errorf("Compile() returned %d bytes, want a word multiple", len(spirv))
	}

	magic := uint32(spirv[0]) | uint32(spirv[1])<<8 | uint32(spirv[2])<<16 | uint32(spirv[3])<<24
	if magic != 0x07230203 {
		t.Errorf("SPIR-V magic = %#08x, want 0x07230203", magic)
	}
}

func TestCompileInvalidSource(t *testing.T) {
	if _, err := Compile("@compute fn ("); err == nil {
		t.Error("Compile(invalid) error = nil, want error")
	}
}

func TestCompileAll(t *testing.T) {
	compileOrSkip(t, doubleShaderWGSL)

	compiled, err := CompileAll(map[string]string{
		"first":  doubleShaderWGSL,
		"second": doubleShaderWGSL,
	})
	if err != nil {
		t.Fatalf("CompileAll() error = %v", err)
	}
	for _, name := range []string{"first", "second"} {
		if len(compiled[name]) == 0 {
			t.Errorf("CompileAll()[%q] is empty", name)
		}
	}
}

func TestCompileAllNamesFailingShader(t *testing.T) {
	_, err := CompileAll(map[string]string{
		"broken": "@compute fn (",
	})
	if err == nil {
		t.Fatal("CompileAll() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("CompileAll() error = %v, want the shader name in the message", err)
	}
}

func TestCompileFileMissing(t *testing.T) {
	if _, err := CompileFile("testdata/does-not-exist.wgsl"); err == nil {
		t.Error("CompileFile(missing) error = nil, want error")
	}
}
