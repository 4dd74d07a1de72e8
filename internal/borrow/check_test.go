package borrow

import (
	"testing"

	"kiln/internal/diag"
	"kiln/internal/ir"
	"kiln/internal/types"
)

func runCheck(t *testing.T, f *ir.Func, tin *types.Interner) (*Result, *diag.Bag) {
	t.Helper()
	bag := diag.NewBag(64)
	res := Check(f, tin, diag.BagReporter{Bag: bag})
	return res, bag
}

func hasCode(bag *diag.Bag, code diag.Code) bool {
	for _, d := range bag.Items() {
		if d.Code == code {
			return true
		}
	}
	return false
}

func countCode(bag *diag.Bag, code diag.Code) int {
	n := 0
	for _, d := range bag.Items() {
		if d.Code == code {
			n++
		}
	}
	return n
}

func bufferType(tin *types.Interner) types.TypeID {
	return tin.RegisterNamed(types.NamedInfo{Name: "Buffer"})
}

func tokenType(tin *types.Interner) types.TypeID {
	return tin.RegisterNamed(types.NamedInfo{Name: "Token", Linear: true})
}

func TestUseAfterMove(t *testing.T) {
	tin := types.NewInterner()
	buf := bufferType(tin)
	f := ir.NewFunc("demo", tin.Builtins().Unit)
	x := f.NewLocal(ir.Local{Name: "x", Type: buf, Flags: ir.LocalFlagParam})
	y := f.NewLocal(ir.Local{Name: "y", Type: buf})
	z := f.NewLocal(ir.Local{Name: "z", Type: buf})
	entry := f.NewBlock()
	f.Push(entry, ir.Assign(y, ir.Use(ir.Move(x))))
	f.Push(entry, ir.Assign(z, ir.Use(ir.Copy(x))))
	f.SetTerm(entry, ir.Ret())

	res, bag := runCheck(t, f, tin)
	if res.Ok || !hasCode(bag, diag.OwnUseAfterMove) {
		t.Fatalf("expected use-after-move, got %v", bag.Items())
	}
}

func TestDoubleMove(t *testing.T) {
	tin := types.NewInterner()
	buf := bufferType(tin)
	f := ir.NewFunc("demo", tin.Builtins().Unit)
	x := f.NewLocal(ir.Local{Name: "x", Type: buf, Flags: ir.LocalFlagParam})
	y := f.NewLocal(ir.Local{Name: "y", Type: buf})
	z := f.NewLocal(ir.Local{Name: "z", Type: buf})
	entry := f.NewBlock()
	f.Push(entry, ir.Assign(y, ir.Use(ir.Move(x))))
	f.Push(entry, ir.Assign(z, ir.Use(ir.Move(x))))
	f.SetTerm(entry, ir.Ret())

	res, bag := runCheck(t, f, tin)
	if res.Ok || !hasCode(bag, diag.OwnDoubleMove) {
		t.Fatalf("expected double move, got %v", bag.Items())
	}
}

func TestUseBeforeInit(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()
	f := ir.NewFunc("demo", b.I32)
	x := f.NewLocal(ir.Local{Name: "x", Type: b.I32})
	entry := f.NewBlock()
	f.SetTerm(entry, ir.RetVal(ir.Copy(x)))

	res, bag := runCheck(t, f, tin)
	if res.Ok || !hasCode(bag, diag.OwnUseBeforeInit) {
		t.Fatalf("expected use-before-init, got %v", bag.Items())
	}
}

func TestCopyTypesNeverMove(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()
	f := ir.NewFunc("demo", b.I32)
	x := f.NewLocal(ir.Local{Name: "x", Type: b.I32, Flags: ir.LocalFlagParam})
	y := f.NewLocal(ir.Local{Name: "y", Type: b.I32})
	entry := f.NewBlock()
	f.Push(entry, ir.Assign(y, ir.Use(ir.Move(x))))
	f.SetTerm(entry, ir.RetVal(ir.Copy(x)))

	res, bag := runCheck(t, f, tin)
	if !res.Ok {
		t.Fatalf("copy types stay usable after a move, got %v", bag.Items())
	}
}

func TestConflictingMutableBorrows(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()
	refMut := tin.Intern(types.MakeRef(b.I32, true, types.NoRegionID))
	f := ir.NewFunc("demo", b.I32)
	x := f.NewLocal(ir.Local{Name: "x", Type: b.I32, Flags: ir.LocalFlagParam})
	r1 := f.NewLocal(ir.Local{Name: "r1", Type: refMut})
	r2 := f.NewLocal(ir.Local{Name: "r2", Type: refMut})
	y := f.NewLocal(ir.Local{Name: "y", Type: b.I32})
	entry := f.NewBlock()
	f.Push(entry, ir.Assign(r1, ir.Ref(x, true)))
	f.Push(entry, ir.Assign(r2, ir.Ref(x, true)))
	deref := ir.Place{Local: r1, Proj: []ir.PlaceProj{{Kind: ir.PlaceProjDeref}}}
	f.Push(entry, ir.Assign(y, ir.Use(ir.CopyPlace(deref))))
	f.SetTerm(entry, ir.RetVal(ir.Copy(y)))

	res, bag := runCheck(t, f, tin)
	if res.Ok || !hasCode(bag, diag.OwnConflictingBorrow) {
		t.Fatalf("expected conflicting borrows, got %v", bag.Items())
	}
}

func TestMutableThenSharedBorrowConflicts(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()
	refMut := tin.Intern(types.MakeRef(b.I32, true, types.NoRegionID))
	ref := tin.Intern(types.MakeRef(b.I32, false, types.NoRegionID))
	f := ir.NewFunc("demo", b.I32)
	x := f.NewLocal(ir.Local{Name: "x", Type: b.I32, Flags: ir.LocalFlagParam})
	a := f.NewLocal(ir.Local{Name: "a", Type: refMut})
	s := f.NewLocal(ir.Local{Name: "s", Type: ref})
	y := f.NewLocal(ir.Local{Name: "y", Type: b.I32})
	entry := f.NewBlock()
	f.Push(entry, ir.Assign(a, ir.Ref(x, true)))
	f.Push(entry, ir.Assign(s, ir.Ref(x, false)))
	// Keep both alive past the second borrow.
	derefA := ir.Place{Local: a, Proj: []ir.PlaceProj{{Kind: ir.PlaceProjDeref}}}
	f.Push(entry, ir.Assign(y, ir.Use(ir.CopyPlace(derefA))))
	f.SetTerm(entry, ir.RetVal(ir.Copy(y)))

	res, bag := runCheck(t, f, tin)
	if res.Ok || !hasCode(bag, diag.OwnConflictingBorrow) {
		t.Fatalf("expected a mutable/shared conflict, got %v", bag.Items())
	}
	for _, d := range bag.Items() {
		if d.Code == diag.OwnConflictingBorrow && len(d.Notes) == 0 {
			t.Fatalf("expected the conflict to name the earlier borrow site")
		}
	}
}

func TestNonLexicalBorrowEnds(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()
	refMut := tin.Intern(types.MakeRef(b.I32, true, types.NoRegionID))
	f := ir.NewFunc("demo", b.I32)
	x := f.NewLocal(ir.Local{Name: "x", Type: b.I32, Flags: ir.LocalFlagParam})
	r1 := f.NewLocal(ir.Local{Name: "r1", Type: refMut})
	r2 := f.NewLocal(ir.Local{Name: "r2", Type: refMut})
	y := f.NewLocal(ir.Local{Name: "y", Type: b.I32})
	z := f.NewLocal(ir.Local{Name: "z", Type: b.I32})
	entry := f.NewBlock()
	deref1 := ir.Place{Local: r1, Proj: []ir.PlaceProj{{Kind: ir.PlaceProjDeref}}}
	deref2 := ir.Place{Local: r2, Proj: []ir.PlaceProj{{Kind: ir.PlaceProjDeref}}}
	f.Push(entry, ir.Assign(r1, ir.Ref(x, true)))
	f.Push(entry, ir.Assign(y, ir.Use(ir.CopyPlace(deref1)))) // last use of r1
	f.Push(entry, ir.Assign(r2, ir.Ref(x, true)))
	f.Push(entry, ir.Assign(z, ir.Use(ir.CopyPlace(deref2))))
	f.SetTerm(entry, ir.RetVal(ir.Copy(z)))

	res, bag := runCheck(t, f, tin)
	if !res.Ok {
		t.Fatalf("the first borrow ends at its last use; expected no errors, got %v", bag.Items())
	}
}

func TestSharedBorrowsCoexist(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()
	ref := tin.Intern(types.MakeRef(b.I32, false, types.NoRegionID))
	f := ir.NewFunc("demo", b.I32)
	x := f.NewLocal(ir.Local{Name: "x", Type: b.I32, Flags: ir.LocalFlagParam})
	r1 := f.NewLocal(ir.Local{Name: "r1", Type: ref})
	r2 := f.NewLocal(ir.Local{Name: "r2", Type: ref})
	y := f.NewLocal(ir.Local{Name: "y", Type: b.I32})
	entry := f.NewBlock()
	deref1 := ir.Place{Local: r1, Proj: []ir.PlaceProj{{Kind: ir.PlaceProjDeref}}}
	f.Push(entry, ir.Assign(r1, ir.Ref(x, false)))
	f.Push(entry, ir.Assign(r2, ir.Ref(x, false)))
	f.Push(entry, ir.Assign(y, ir.Binary(ir.OpAdd, ir.CopyPlace(deref1),
		ir.CopyPlace(ir.Place{Local: r2, Proj: []ir.PlaceProj{{Kind: ir.PlaceProjDeref}}}))))
	f.SetTerm(entry, ir.RetVal(ir.Copy(y)))

	res, bag := runCheck(t, f, tin)
	if !res.Ok {
		t.Fatalf("shared borrows coexist; expected no errors, got %v", bag.Items())
	}
}

func TestMoveWhileBorrowed(t *testing.T) {
	tin := types.NewInterner()
	buf := bufferType(tin)
	ref := tin.Intern(types.MakeRef(buf, false, types.NoRegionID))
	f := ir.NewFunc("demo", tin.Builtins().Unit)
	x := f.NewLocal(ir.Local{Name: "x", Type: buf, Flags: ir.LocalFlagParam})
	r := f.NewLocal(ir.Local{Name: "r", Type: ref})
	y := f.NewLocal(ir.Local{Name: "y", Type: buf})
	r2 := f.NewLocal(ir.Local{Name: "r2", Type: ref})
	entry := f.NewBlock()
	f.Push(entry, ir.Assign(r, ir.Ref(x, false)))
	f.Push(entry, ir.Assign(y, ir.Use(ir.Move(x))))
	f.Push(entry, ir.Assign(r2, ir.Use(ir.Copy(r)))) // keeps the borrow live past the move
	f.SetTerm(entry, ir.Ret())

	res, bag := runCheck(t, f, tin)
	if res.Ok || !hasCode(bag, diag.OwnMovedWhileBorrowed) {
		t.Fatalf("expected moved-while-borrowed, got %v", bag.Items())
	}
}

func TestReturnRefToLocal(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()
	ref := tin.Intern(types.MakeRef(b.I32, false, types.NoRegionID))
	f := ir.NewFunc("demo", ref)
	x := f.NewLocal(ir.Local{Name: "x", Type: b.I32})
	r := f.NewLocal(ir.Local{Name: "r", Type: ref})
	entry := f.NewBlock()
	f.Push(entry, ir.Assign(x, ir.Use(ir.TypedIntConst(5, b.I32))))
	f.Push(entry, ir.Assign(r, ir.Ref(x, false)))
	f.SetTerm(entry, ir.RetVal(ir.Move(r)))

	res, bag := runCheck(t, f, tin)
	if res.Ok || !hasCode(bag, diag.OwnRefOutlivesReferent) {
		t.Fatalf("expected ref-outlives-referent, got %v", bag.Items())
	}
}

func TestReturnReborrowOfParamIsFine(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()
	ref := tin.Intern(types.MakeRef(b.I32, false, types.NoRegionID))
	f := ir.NewFunc("demo", ref)
	p := f.NewLocal(ir.Local{Name: "p", Type: ref, Flags: ir.LocalFlagParam})
	r := f.NewLocal(ir.Local{Name: "r", Type: ref})
	entry := f.NewBlock()
	reborrow := ir.Place{Local: p, Proj: []ir.PlaceProj{{Kind: ir.PlaceProjDeref}}}
	f.Push(entry, ir.AssignPlace(ir.Place{Local: r}, ir.RValue{
		Kind: ir.RValueRef,
		Ref:  ir.RefRV{Place: reborrow, Mutable: false},
	}))
	f.SetTerm(entry, ir.RetVal(ir.Move(r)))

	res, bag := runCheck(t, f, tin)
	if !res.Ok {
		t.Fatalf("reborrowing caller storage escapes safely, got %v", bag.Items())
	}
}

func TestBorrowOutlivesInnerScope(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()
	ref := tin.Intern(types.MakeRef(b.I32, false, types.NoRegionID))
	f := ir.NewFunc("demo", b.Unit)
	inner := f.NewScope(0)
	r := f.NewLocal(ir.Local{Name: "r", Type: ref, Scope: 0})
	x := f.NewLocal(ir.Local{Name: "x", Type: b.I32, Scope: inner})
	entry := f.NewBlock()
	f.Push(entry, ir.Assign(x, ir.Use(ir.TypedIntConst(1, b.I32))))
	f.Push(entry, ir.Assign(r, ir.Ref(x, false)))
	f.SetTerm(entry, ir.Ret())

	res, bag := runCheck(t, f, tin)
	if res.Ok || !hasCode(bag, diag.OwnRefOutlivesReferent) {
		t.Fatalf("expected ref-outlives-referent for an inner-scope referent, got %v", bag.Items())
	}
}

func TestConditionalMoveMergesRestrictive(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()
	buf := bufferType(tin)
	f := ir.NewFunc("demo", b.Unit)
	cond := f.NewLocal(ir.Local{Name: "cond", Type: b.Bool, Flags: ir.LocalFlagParam})
	x := f.NewLocal(ir.Local{Name: "x", Type: buf, Flags: ir.LocalFlagParam})
	y := f.NewLocal(ir.Local{Name: "y", Type: buf})
	z := f.NewLocal(ir.Local{Name: "z", Type: buf})
	entry := f.NewBlock()
	then := f.NewBlock()
	join := f.NewBlock()
	f.SetTerm(entry, ir.If(ir.Copy(cond), then, join))
	f.Push(then, ir.Assign(y, ir.Use(ir.Move(x))))
	f.SetTerm(then, ir.Goto(join))
	f.Push(join, ir.Assign(z, ir.Use(ir.Copy(x))))
	f.SetTerm(join, ir.Ret())

	res, bag := runCheck(t, f, tin)
	if res.Ok || !hasCode(bag, diag.OwnUseAfterMove) {
		t.Fatalf("expected use-after-move at the join, got %v", bag.Items())
	}
}

func TestPartialMove(t *testing.T) {
	tin := types.NewInterner()
	buf := bufferType(tin)
	pair := tin.RegisterNamed(types.NamedInfo{
		Name: "PairBuf",
		Fields: []types.Field{
			{Name: "a", Type: buf},
			{Name: "b", Type: buf},
		},
	})
	f := ir.NewFunc("demo", tin.Builtins().Unit)
	p := f.NewLocal(ir.Local{Name: "p", Type: pair, Flags: ir.LocalFlagParam})
	a := f.NewLocal(ir.Local{Name: "a", Type: buf})
	q := f.NewLocal(ir.Local{Name: "q", Type: pair})
	entry := f.NewBlock()
	fieldA := ir.Place{Local: p, Proj: []ir.PlaceProj{{Kind: ir.PlaceProjField, FieldIdx: 0}}}
	f.Push(entry, ir.Assign(a, ir.Use(ir.MovePlace(fieldA))))
	f.Push(entry, ir.Assign(q, ir.Use(ir.Copy(p))))
	f.SetTerm(entry, ir.Ret())

	res, bag := runCheck(t, f, tin)
	if res.Ok || !hasCode(bag, diag.OwnUsePartiallyMoved) {
		t.Fatalf("expected use of partially moved value, got %v", bag.Items())
	}
}

func TestFieldWriteRestoresOwnership(t *testing.T) {
	tin := types.NewInterner()
	buf := bufferType(tin)
	pair := tin.RegisterNamed(types.NamedInfo{
		Name: "PairBuf2",
		Fields: []types.Field{
			{Name: "a", Type: buf},
			{Name: "b", Type: buf},
		},
	})
	f := ir.NewFunc("demo", tin.Builtins().Unit)
	p := f.NewLocal(ir.Local{Name: "p", Type: pair, Flags: ir.LocalFlagParam})
	a := f.NewLocal(ir.Local{Name: "a", Type: buf})
	q := f.NewLocal(ir.Local{Name: "q", Type: pair})
	entry := f.NewBlock()
	fieldA := ir.Place{Local: p, Proj: []ir.PlaceProj{{Kind: ir.PlaceProjField, FieldIdx: 0}}}
	f.Push(entry, ir.Assign(a, ir.Use(ir.MovePlace(fieldA))))
	f.Push(entry, ir.AssignPlace(fieldA, ir.Use(ir.Move(a))))
	f.Push(entry, ir.Assign(q, ir.Use(ir.Move(p))))
	f.SetTerm(entry, ir.Ret())

	res, bag := runCheck(t, f, tin)
	if !res.Ok {
		t.Fatalf("writing the field back restores the whole value, got %v", bag.Items())
	}
}

func TestLinearMustBeConsumedOnEveryPath(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()
	tok := tokenType(tin)
	f := ir.NewFunc("demo", b.Unit)
	cond := f.NewLocal(ir.Local{Name: "cond", Type: b.Bool, Flags: ir.LocalFlagParam})
	token := f.NewLocal(ir.Local{Name: "token", Type: tok, Flags: ir.LocalFlagParam})
	entry := f.NewBlock()
	then := f.NewBlock()
	els := f.NewBlock()
	f.SetTerm(entry, ir.If(ir.Copy(cond), then, els))
	f.Push(then, ir.Drop(token))
	f.SetTerm(then, ir.Ret())
	f.SetTerm(els, ir.Ret())

	res, bag := runCheck(t, f, tin)
	if res.Ok || !hasCode(bag, diag.OwnLinearNotConsumed) {
		t.Fatalf("expected linear-not-consumed on the else path, got %v", bag.Items())
	}
	if n := countCode(bag, diag.OwnLinearNotConsumed); n != 1 {
		t.Fatalf("the consuming path is fine; expected exactly one error, got %d", n)
	}
}

func TestLinearDoubleConsume(t *testing.T) {
	tin := types.NewInterner()
	tok := tokenType(tin)
	f := ir.NewFunc("demo", tin.Builtins().Unit)
	token := f.NewLocal(ir.Local{Name: "token", Type: tok, Flags: ir.LocalFlagParam})
	entry := f.NewBlock()
	f.Push(entry, ir.Drop(token))
	f.Push(entry, ir.Drop(token))
	f.SetTerm(entry, ir.Ret())

	res, bag := runCheck(t, f, tin)
	if res.Ok || !hasCode(bag, diag.OwnDoubleConsume) {
		t.Fatalf("expected double consume, got %v", bag.Items())
	}
}

func TestLinearConsumedByMove(t *testing.T) {
	tin := types.NewInterner()
	tok := tokenType(tin)
	f := ir.NewFunc("demo", tin.Builtins().Unit)
	token := f.NewLocal(ir.Local{Name: "token", Type: tok, Flags: ir.LocalFlagParam})
	sink := f.NewLocal(ir.Local{Name: "sink", Type: tok})
	entry := f.NewBlock()
	f.Push(entry, ir.Assign(sink, ir.Use(ir.Move(token))))
	f.Push(entry, ir.Drop(sink))
	f.SetTerm(entry, ir.Ret())

	res, bag := runCheck(t, f, tin)
	if !res.Ok {
		t.Fatalf("moving transfers the consumption duty, got %v", bag.Items())
	}
}

func TestAssignWhileBorrowed(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()
	ref := tin.Intern(types.MakeRef(b.I32, false, types.NoRegionID))
	f := ir.NewFunc("demo", b.I32)
	x := f.NewLocal(ir.Local{Name: "x", Type: b.I32, Flags: ir.LocalFlagParam})
	r := f.NewLocal(ir.Local{Name: "r", Type: ref})
	y := f.NewLocal(ir.Local{Name: "y", Type: b.I32})
	entry := f.NewBlock()
	deref := ir.Place{Local: r, Proj: []ir.PlaceProj{{Kind: ir.PlaceProjDeref}}}
	f.Push(entry, ir.Assign(r, ir.Ref(x, false)))
	f.Push(entry, ir.Assign(x, ir.Use(ir.TypedIntConst(7, b.I32))))
	f.Push(entry, ir.Assign(y, ir.Use(ir.CopyPlace(deref))))
	f.SetTerm(entry, ir.RetVal(ir.Copy(y)))

	res, bag := runCheck(t, f, tin)
	if res.Ok || !hasCode(bag, diag.OwnConflictingBorrow) {
		t.Fatalf("expected conflict when assigning to a borrowed local, got %v", bag.Items())
	}
}

func TestWriteThroughSharedRefRejected(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()
	ref := tin.Intern(types.MakeRef(b.I32, false, types.NoRegionID))
	f := ir.NewFunc("demo", b.Unit)
	x := f.NewLocal(ir.Local{Name: "x", Type: b.I32, Flags: ir.LocalFlagParam})
	r := f.NewLocal(ir.Local{Name: "r", Type: ref})
	entry := f.NewBlock()
	deref := ir.Place{Local: r, Proj: []ir.PlaceProj{{Kind: ir.PlaceProjDeref}}}
	f.Push(entry, ir.Assign(r, ir.Ref(x, false)))
	f.Push(entry, ir.AssignPlace(deref, ir.Use(ir.TypedIntConst(9, b.I32))))
	f.SetTerm(entry, ir.Ret())

	res, bag := runCheck(t, f, tin)
	if res.Ok || !hasCode(bag, diag.OwnConflictingBorrow) {
		t.Fatalf("expected rejection of a write through a shared reference, got %v", bag.Items())
	}
}
