package target

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTarget(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestBuiltinDescriptionIsValid(t *testing.T) {
	d := X8664()
	if err := d.Validate(); err != nil {
		t.Fatalf("builtin description must validate: %v", err)
	}
	if len(d.GP) != 8 || len(d.FP) != 8 {
		t.Fatalf("expected 8 allocatable registers per class, got %d gp / %d fp", len(d.GP), len(d.FP))
	}
}

func TestLoadOverridesRegisterSet(t *testing.T) {
	path := writeTarget(t, `
[target]
name = "x86_64-tiny"

[registers]
gp = ["rbx", "r12"]
callee_saved = ["rbx", "r12"]
`)
	d, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if d.Name != "x86_64-tiny" {
		t.Fatalf("expected overridden name, got %q", d.Name)
	}
	if len(d.GP) != 2 || !d.GP[0].CalleeSaved {
		t.Fatalf("expected 2 callee-saved gp registers, got %+v", d.GP)
	}
	// Untouched fields keep the x86-64 defaults.
	if d.PtrSize != 8 || d.RetGP != "rax" {
		t.Fatalf("expected defaults to survive, got ptr=%d ret=%s", d.PtrSize, d.RetGP)
	}
}

func TestLoadRejectsMissingSection(t *testing.T) {
	path := writeTarget(t, `[registers]
gp = ["rbx"]
`)
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected an error for a file without [target]")
	}
}

func TestLoadRejectsEmptyRegisterSet(t *testing.T) {
	path := writeTarget(t, `
[target]
name = "broken"

[registers]
gp = []
`)
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected an error for an empty gp set")
	}
}

func TestValidateCatchesDuplicates(t *testing.T) {
	d := X8664()
	d.GP = append(d.GP, Reg{Name: "rbx", Class: ClassGP})
	if err := d.Validate(); err == nil {
		t.Fatalf("expected duplicate register rejection")
	}
}
