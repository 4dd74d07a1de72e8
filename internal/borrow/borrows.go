package borrow

import (
	"kiln/internal/ir"
	"kiln/internal/source"
	"kiln/internal/types"
)

// Borrow records one reference taken inside the function. The borrow is
// live from its creation point until the last use of the borrowing local;
// the end is non-lexical and comes from liveness, not scope.
type Borrow struct {
	ID       int
	Borrower ir.LocalID
	Base     ir.Place
	Mutable  bool
	Region   types.RegionID
	Point    ir.Point
	Span     source.Span
}

// collectBorrows scans the body for reference-taking assignments.
func collectBorrows(f *ir.Func, regions []types.RegionID) (all []Borrow, byBase map[ir.LocalID][]int, byBorrower map[ir.LocalID]int) {
	byBase = make(map[ir.LocalID][]int)
	byBorrower = make(map[ir.LocalID]int)
	for bi := range f.Blocks {
		for ii := range f.Blocks[bi].Instrs {
			in := &f.Blocks[bi].Instrs[ii]
			if in.Kind != ir.InstrAssign || in.Assign.Src.Kind != ir.RValueRef {
				continue
			}
			if !in.Assign.Dst.Direct() {
				continue
			}
			borrower := in.Assign.Dst.Local
			b := Borrow{
				ID:       len(all),
				Borrower: borrower,
				Base:     in.Assign.Src.Ref.Place,
				Mutable:  in.Assign.Src.Ref.Mutable,
				Region:   regions[f.Locals[borrower].Scope],
				Point:    ir.Point{Block: ir.BlockID(bi), Index: ii},
				Span:     in.Span,
			}
			all = append(all, b)
			byBase[b.Base.Local] = append(byBase[b.Base.Local], b.ID)
			// Последняя запись выигрывает: локал-ссылка обычно
			// инициализируется одним заимствованием.
			byBorrower[borrower] = b.ID
		}
	}
	return all, byBase, byBorrower
}

// liveMap holds per-point liveness: which locals are live immediately
// before each program point executes.
type liveMap struct {
	pm   *ir.PointMap
	live [][]bool
}

// computePointLiveness refines block-level liveness down to instruction
// granularity with one backward sweep per block.
func computePointLiveness(f *ir.Func, pm *ir.PointMap, lv *ir.Liveness) *liveMap {
	lm := &liveMap{pm: pm, live: make([][]bool, pm.Total())}
	nLocals := len(f.Locals)
	for bi := range f.Blocks {
		b := &f.Blocks[bi]
		cur := make([]bool, nLocals)
		copy(cur, lv.LiveOut[bi])

		termIdx := pm.Index(f.TerminatorPoint(ir.BlockID(bi)))
		for _, u := range b.Term.Uses() {
			cur[u] = true
		}
		lm.live[termIdx] = snapshot(cur)

		for ii := len(b.Instrs) - 1; ii >= 0; ii-- {
			in := &b.Instrs[ii]
			for _, d := range in.Defs() {
				cur[d] = false
			}
			for _, u := range in.Uses() {
				cur[u] = true
			}
			lm.live[pm.Index(ir.Point{Block: ir.BlockID(bi), Index: ii})] = snapshot(cur)
		}
	}
	return lm
}

func snapshot(v []bool) []bool {
	out := make([]bool, len(v))
	copy(out, v)
	return out
}

// liveAt reports whether the local is live going into the point.
func (lm *liveMap) liveAt(p ir.Point, l ir.LocalID) bool {
	idx := lm.pm.Index(p)
	if idx < 0 || idx >= len(lm.live) {
		return false
	}
	return lm.live[idx][l]
}
