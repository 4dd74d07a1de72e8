package driver

import (
	"context"
	"testing"

	"kiln/internal/diag"
	"kiln/internal/ir"
	"kiln/internal/target"
	"kiln/internal/types"
)

// addOne builds: fn name(x: i64) -> i64 { x + 1 }
func addOne(tin *types.Interner, name string) *ir.Func {
	b := tin.Builtins()
	f := ir.NewFunc(name, b.I64)
	f.Exported = true
	x := f.NewLocal(ir.Local{Name: "x", Declared: b.I64, Flags: ir.LocalFlagParam})
	y := f.NewLocal(ir.Local{Name: "y"})
	entry := f.NewBlock()
	f.Push(entry, ir.Assign(y, ir.Binary(ir.OpAdd, ir.Copy(x), ir.TypedIntConst(1, b.I64))))
	f.SetTerm(entry, ir.RetVal(ir.Copy(y)))
	return f
}

func hasDiagCode(diags []diag.Diagnostic, code diag.Code) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestCompileModuleProducesArtifacts(t *testing.T) {
	tin := types.NewInterner()
	m := &Module{Name: "m", Funcs: []*ir.Func{addOne(tin, "m.a"), addOne(tin, "m.b")}}

	res, err := CompileModule(context.Background(), m, tin, Options{})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if !res.Ok {
		t.Fatalf("expected clean module, got diagnostics %v", res.Diagnostics)
	}
	for _, fr := range res.Funcs {
		if fr.Artifact == nil {
			t.Fatalf("expected an artifact for %s", fr.Func.Name)
		}
		if len(fr.Artifact.Text) == 0 {
			t.Fatalf("expected non-empty text for %s", fr.Func.Name)
		}
		if len(fr.Timing.Phases) < 3 {
			t.Fatalf("expected infer/borrow/codegen phases recorded, got %v", fr.Timing.Phases)
		}
	}
}

func TestFailedFunctionDoesNotBlockSiblings(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()

	bad := ir.NewFunc("m.bad", b.I64)
	x := bad.NewLocal(ir.Local{Name: "x", Declared: b.I64, Flags: ir.LocalFlagParam})
	entry := bad.NewBlock()
	then := bad.NewBlock()
	els := bad.NewBlock()
	bad.SetTerm(entry, ir.If(ir.Copy(x), then, els)) // i64 condition
	bad.SetTerm(then, ir.RetVal(ir.TypedIntConst(1, b.I64)))
	bad.SetTerm(els, ir.RetVal(ir.TypedIntConst(2, b.I64)))

	m := &Module{Name: "m", Funcs: []*ir.Func{bad, addOne(tin, "m.good")}}
	res, err := CompileModule(context.Background(), m, tin, Options{})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if res.Ok {
		t.Fatalf("expected module errors")
	}
	if !hasDiagCode(res.Diagnostics, diag.TypeMismatch) {
		t.Fatalf("expected a type mismatch, got %v", res.Diagnostics)
	}
	if res.Funcs[0].Artifact != nil {
		t.Fatalf("expected no artifact for the failing function")
	}
	if res.Funcs[1].Artifact == nil {
		t.Fatalf("expected the clean sibling to compile")
	}
}

func TestOwnershipErrorSkipsCodegen(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()
	buf := tin.RegisterNamed(types.NamedInfo{
		Name:   "Buffer",
		Fields: []types.Field{{Name: "len", Type: b.I64}},
	})

	f := ir.NewFunc("m.leak", b.Unit)
	src := f.NewLocal(ir.Local{Name: "src", Declared: buf, Flags: ir.LocalFlagParam})
	a := f.NewLocal(ir.Local{Name: "a"})
	c := f.NewLocal(ir.Local{Name: "c"})
	entry := f.NewBlock()
	f.Push(entry, ir.Assign(a, ir.Use(ir.Move(src))))
	f.Push(entry, ir.Assign(c, ir.Use(ir.Move(src))))
	f.SetTerm(entry, ir.Ret())

	m := &Module{Name: "m", Funcs: []*ir.Func{f}}
	res, err := CompileModule(context.Background(), m, tin, Options{})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if !hasDiagCode(res.Diagnostics, diag.OwnDoubleMove) {
		t.Fatalf("expected a double move diagnostic, got %v", res.Diagnostics)
	}
	if res.Funcs[0].Artifact != nil {
		t.Fatalf("expected codegen to be skipped after ownership errors")
	}
}

func TestSignaturesVisibleBeforeBodies(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()

	caller := ir.NewFunc("m.caller", b.I64)
	x := caller.NewLocal(ir.Local{Name: "x", Declared: b.I64, Flags: ir.LocalFlagParam})
	r := caller.NewLocal(ir.Local{Name: "r"})
	entry := caller.NewBlock()
	caller.Push(entry, ir.Call(r, "m.callee", ir.Copy(x)))
	caller.SetTerm(entry, ir.RetVal(ir.Copy(r)))

	// The callee comes after its caller in module order: the publish
	// barrier must still make its signature visible.
	m := &Module{Name: "m", Funcs: []*ir.Func{caller, addOne(tin, "m.callee")}}
	res, err := CompileModule(context.Background(), m, tin, Options{})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if !res.Ok {
		t.Fatalf("expected clean module, got %v", res.Diagnostics)
	}
	if len(res.Funcs[0].Artifact.Relocations) != 1 || res.Funcs[0].Artifact.Relocations[0] != "m.callee" {
		t.Fatalf("expected a relocation for m.callee, got %v", res.Funcs[0].Artifact.Relocations)
	}
}

func TestRegisterExhaustionAbortsRun(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()

	desc := target.X8664()
	desc.FP = nil

	f := ir.NewFunc("m.flt", b.F64)
	x := f.NewLocal(ir.Local{Name: "x", Declared: b.F64, Flags: ir.LocalFlagParam})
	y := f.NewLocal(ir.Local{Name: "y"})
	entry := f.NewBlock()
	f.Push(entry, ir.Assign(y, ir.Binary(ir.OpAdd, ir.Copy(x), ir.FloatConst(1))))
	f.SetTerm(entry, ir.RetVal(ir.Copy(y)))

	m := &Module{Name: "m", Funcs: []*ir.Func{f}}
	res, err := CompileModule(context.Background(), m, tin, Options{Target: desc})
	if err == nil {
		t.Fatalf("expected an internal limit error")
	}
	if !hasDiagCode(res.Diagnostics, diag.GenRegisterExhaustion) {
		t.Fatalf("expected the limit to be recorded, got %v", res.Diagnostics)
	}
}

func TestCachedRecompilationSkipsEmission(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	cache, err := OpenAsmCache("kiln-test")
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}

	tin := types.NewInterner()
	m := &Module{Name: "m", Funcs: []*ir.Func{addOne(tin, "m.a")}}
	opts := Options{Cache: cache}

	first, err := CompileModule(context.Background(), m, tin, opts)
	if err != nil {
		t.Fatalf("first compile failed: %v", err)
	}
	if first.Funcs[0].Cached {
		t.Fatalf("first run must not hit the cache")
	}

	second, err := CompileModule(context.Background(), m, tin, opts)
	if err != nil {
		t.Fatalf("second compile failed: %v", err)
	}
	if !second.Funcs[0].Cached {
		t.Fatalf("second run should be served from the cache")
	}
	if string(second.Funcs[0].Artifact.Text) != string(first.Funcs[0].Artifact.Text) {
		t.Fatalf("cached text differs from emitted text")
	}
}
