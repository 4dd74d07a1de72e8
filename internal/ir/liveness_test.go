package ir

import (
	"testing"

	"kiln/internal/types"
)

func TestLivenessStraightLine(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()
	f := NewFunc("f", b.I32)
	x := f.NewLocal(Local{Name: "x", Declared: b.I32})
	y := f.NewLocal(Local{Name: "y", Declared: b.I32})
	b0 := f.NewBlock()
	f.Push(b0, Assign(x, Use(IntConst(5))))
	f.Push(b0, Assign(y, Binary(OpAdd, Copy(x), IntConst(1))))
	f.SetTerm(b0, RetVal(Copy(y)))

	lv := ComputeLiveness(f)
	if lv.LiveInAt(b0, x) {
		t.Fatalf("x is defined before use, must not be live-in")
	}
	if lv.LiveOutAt(b0, y) {
		t.Fatalf("nothing is live after return")
	}
}

func TestLivenessAcrossLoop(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()
	f := NewFunc("loop", b.I32)
	i := f.NewLocal(Local{Name: "i", Declared: b.I32})
	c := f.NewLocal(Local{Name: "c", Declared: b.Bool})
	b0 := f.NewBlock()
	b1 := f.NewBlock() // header
	b2 := f.NewBlock() // body
	b3 := f.NewBlock() // exit
	f.Push(b0, Assign(i, Use(IntConst(0))))
	f.SetTerm(b0, Goto(b1))
	f.Push(b1, Assign(c, Binary(OpLt, Copy(i), IntConst(10))))
	f.SetTerm(b1, If(Copy(c), b2, b3))
	f.Push(b2, Assign(i, Binary(OpAdd, Copy(i), IntConst(1))))
	f.SetTerm(b2, Goto(b1))
	f.SetTerm(b3, RetVal(Copy(i)))

	lv := ComputeLiveness(f)
	// i is used in the header and the body on the next iteration: it must be
	// live around the back-edge.
	if !lv.LiveOutAt(b2, i) {
		t.Fatalf("i must be live out of the loop body")
	}
	if !lv.LiveInAt(b1, i) {
		t.Fatalf("i must be live into the loop header")
	}
	if lv.LiveOutAt(b3, i) {
		t.Fatalf("i is dead after the final return")
	}
}

func TestUsesAndDefs(t *testing.T) {
	in := Assign(LocalID(0), Binary(OpAdd, Copy(LocalID(1)), Copy(LocalID(2))))
	defs := in.Defs()
	if len(defs) != 1 || defs[0] != 0 {
		t.Fatalf("expected def of _0, got %v", defs)
	}
	uses := in.Uses()
	if len(uses) != 2 {
		t.Fatalf("expected 2 uses, got %v", uses)
	}
}

func TestProjectedWriteIsUseNotDef(t *testing.T) {
	p := Place{Local: 0, Proj: []PlaceProj{{Kind: PlaceProjField, FieldIdx: 1}}}
	in := AssignPlace(p, Use(IntConst(1)))
	if len(in.Defs()) != 0 {
		t.Fatalf("write through projection must not count as a full definition")
	}
	uses := in.Uses()
	if len(uses) != 1 || uses[0] != 0 {
		t.Fatalf("expected base local use, got %v", uses)
	}
}
