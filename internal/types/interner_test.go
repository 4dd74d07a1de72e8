package types

import "testing"

func TestInternDeduplicates(t *testing.T) {
	in := NewInterner()
	a := in.Intern(MakeArray(in.Builtins().I32, 4))
	b := in.Intern(MakeArray(in.Builtins().I32, 4))
	if a != b {
		t.Fatalf("array types should be deduplicated: %v vs %v", a, b)
	}
	c := in.Intern(MakeArray(in.Builtins().I32, 5))
	if a == c {
		t.Fatalf("different lengths must not share a TypeID")
	}
}

func TestRefMutabilityDistinct(t *testing.T) {
	in := NewInterner()
	shared := in.Intern(MakeRef(in.Builtins().I32, false, NoRegionID))
	mut := in.Intern(MakeRef(in.Builtins().I32, true, NoRegionID))
	if shared == mut {
		t.Fatalf("mutable and immutable references must differ")
	}
}

func TestFreshVarsDistinct(t *testing.T) {
	in := NewInterner()
	v1 := in.FreshVar()
	v2 := in.FreshVar()
	if v1 == v2 {
		t.Fatalf("fresh variables must be distinct")
	}
	id1, ok := in.VarID(v1)
	if !ok {
		t.Fatalf("expected a variable")
	}
	id2, _ := in.VarID(v2)
	if id1 == id2 {
		t.Fatalf("variable ids must be distinct")
	}
}

func TestRegisterFnDedup(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	f1 := in.RegisterFn([]TypeID{b.I32, b.Bool}, b.Unit)
	f2 := in.RegisterFn([]TypeID{b.I32, b.Bool}, b.Unit)
	if f1 != f2 {
		t.Fatalf("identical signatures should intern to one id")
	}
	f3 := in.RegisterFn([]TypeID{b.I32}, b.Unit)
	if f1 == f3 {
		t.Fatalf("different arity should differ")
	}
	info, ok := in.FnInfoOf(f1)
	if !ok || len(info.Params) != 2 || info.Result != b.Unit {
		t.Fatalf("unexpected fn info %+v", info)
	}
}

func TestNamedTypesCompareByNameAndArgs(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	list32 := in.RegisterNamed(NamedInfo{Name: "List", Args: []TypeID{b.I32}})
	list32b := in.RegisterNamed(NamedInfo{Name: "List", Args: []TypeID{b.I32}})
	list64 := in.RegisterNamed(NamedInfo{Name: "List", Args: []TypeID{b.I64}})
	if list32 != list32b {
		t.Fatalf("same name and args should dedup")
	}
	if list32 == list64 {
		t.Fatalf("different args must not dedup")
	}
}

func TestIsCopy(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	if !in.IsCopy(b.I32) || !in.IsCopy(b.Bool) || !in.IsCopy(b.F64) {
		t.Fatalf("primitives are copy")
	}
	shared := in.Intern(MakeRef(b.I32, false, NoRegionID))
	if !in.IsCopy(shared) {
		t.Fatalf("shared references are copy")
	}
	mut := in.Intern(MakeRef(b.I32, true, NoRegionID))
	if in.IsCopy(mut) {
		t.Fatalf("mutable references are not copy")
	}
	box := in.RegisterNamed(NamedInfo{Name: "Box", Args: []TypeID{b.I32}})
	if in.IsCopy(box) {
		t.Fatalf("named aggregates move")
	}
}

func TestIsLinear(t *testing.T) {
	in := NewInterner()
	tok := in.RegisterNamed(NamedInfo{Name: "Token", Linear: true})
	if !in.IsLinear(tok) {
		t.Fatalf("expected linear kind")
	}
	if in.IsLinear(in.Builtins().I32) {
		t.Fatalf("i32 is not linear")
	}
}

func TestFormat(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	cases := []struct {
		id   TypeID
		want string
	}{
		{b.I32, "i32"},
		{b.F64, "f64"},
		{in.Intern(MakeRef(b.I32, true, NoRegionID)), "&mut i32"},
		{in.Intern(MakeArray(b.U8, ArrayUnknownLength)), "[u8; _]"},
		{in.RegisterTuple([]TypeID{b.I32, b.Bool}), "(i32, bool)"},
		{in.RegisterFn([]TypeID{b.I32}, b.Bool), "fn(i32) -> bool"},
	}
	for _, c := range cases {
		if got := in.String(c.id); got != c.want {
			t.Fatalf("expected %q, got %q", c.want, got)
		}
	}
}
