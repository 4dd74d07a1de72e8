package ir

import (
	"testing"

	"kiln/internal/types"
)

// buildDiamond returns a function shaped:
//
//	b0: if c -> b1 else b2
//	b1: goto b3
//	b2: goto b3
//	b3: return
func buildDiamond(t *testing.T) *Func {
	t.Helper()
	tin := types.NewInterner()
	f := NewFunc("diamond", tin.Builtins().Unit)
	c := f.NewLocal(Local{Name: "c", Declared: tin.Builtins().Bool})
	b0 := f.NewBlock()
	b1 := f.NewBlock()
	b2 := f.NewBlock()
	b3 := f.NewBlock()
	f.Push(b0, Assign(c, Use(BoolConst(true))))
	f.SetTerm(b0, If(Copy(c), b1, b2))
	f.SetTerm(b1, Goto(b3))
	f.SetTerm(b2, Goto(b3))
	f.SetTerm(b3, Ret())
	return f
}

func TestReversePostorderDiamond(t *testing.T) {
	f := buildDiamond(t)
	rpo := ReversePostorder(f)
	if len(rpo) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(rpo))
	}
	if rpo[0] != 0 {
		t.Fatalf("entry must come first, got b%d", rpo[0])
	}
	if rpo[3] != 3 {
		t.Fatalf("join must come last, got b%d", rpo[3])
	}
}

func TestReversePostorderLoopTerminates(t *testing.T) {
	tin := types.NewInterner()
	f := NewFunc("loop", tin.Builtins().Unit)
	c := f.NewLocal(Local{Name: "c", Declared: tin.Builtins().Bool})
	b0 := f.NewBlock()
	b1 := f.NewBlock() // header
	b2 := f.NewBlock() // body, back-edge to header
	b3 := f.NewBlock() // exit
	f.Push(b0, Assign(c, Use(BoolConst(true))))
	f.SetTerm(b0, Goto(b1))
	f.SetTerm(b1, If(Copy(c), b2, b3))
	f.SetTerm(b2, Goto(b1))
	f.SetTerm(b3, Ret())

	rpo := ReversePostorder(f)
	if len(rpo) != 4 {
		t.Fatalf("expected all 4 blocks visited, got %d", len(rpo))
	}
}

func TestPredecessors(t *testing.T) {
	f := buildDiamond(t)
	preds := Predecessors(f)
	if len(preds[3]) != 2 {
		t.Fatalf("join expects 2 predecessors, got %d", len(preds[3]))
	}
	if len(preds[0]) != 0 {
		t.Fatalf("entry expects no predecessors")
	}
}

func TestPointMapMonotone(t *testing.T) {
	f := buildDiamond(t)
	pm := BuildPointMap(f)
	// b0 has one instruction + terminator, b1..b3 just terminators.
	if pm.Total() != 2+1+1+1 {
		t.Fatalf("expected 5 points, got %d", pm.Total())
	}
	prev := -1
	for bi := range f.Blocks {
		for i := 0; i <= len(f.Blocks[bi].Instrs); i++ {
			idx := pm.Index(Point{Block: BlockID(bi), Index: i})
			if idx <= prev {
				t.Fatalf("point indices must be strictly increasing, got %d after %d", idx, prev)
			}
			prev = idx
		}
	}
}

func TestValidateCatchesBadTarget(t *testing.T) {
	tin := types.NewInterner()
	f := NewFunc("bad", tin.Builtins().Unit)
	b0 := f.NewBlock()
	f.SetTerm(b0, Goto(BlockID(7)))
	if err := Validate(f); err == nil {
		t.Fatalf("expected validation error for invalid block target")
	}
}

func TestValidateCatchesUnterminated(t *testing.T) {
	tin := types.NewInterner()
	f := NewFunc("open", tin.Builtins().Unit)
	f.NewBlock()
	if err := Validate(f); err == nil {
		t.Fatalf("expected validation error for unterminated block")
	}
}

func TestValidateCatchesBadLocal(t *testing.T) {
	tin := types.NewInterner()
	f := NewFunc("badlocal", tin.Builtins().Unit)
	b0 := f.NewBlock()
	f.Push(b0, Assign(LocalID(3), Use(IntConst(1))))
	f.SetTerm(b0, Ret())
	if err := Validate(f); err == nil {
		t.Fatalf("expected validation error for invalid local ID")
	}
}
