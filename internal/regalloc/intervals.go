// Package regalloc maps function locals to machine registers with a linear
// scan over live intervals. Values that do not fit a register (aggregates)
// and intervals that lose the scan get frame slots instead.
package regalloc

import (
	"sort"

	"kiln/internal/ir"
	"kiln/internal/target"
)

// Interval is the live range of one local over the flattened program
// points of its function.
type Interval struct {
	Local ir.LocalID
	Start int
	End   int
	Class target.RegClass
}

// buildIntervals derives one interval per local from block-level liveness
// refined with per-point uses and defs. Locals live across a whole block
// (live-in and live-out) cover every point of it, which is what extends
// intervals over loop bodies.
func buildIntervals(f *ir.Func, pm *ir.PointMap, lv *ir.Liveness, wanted func(ir.LocalID) (target.RegClass, bool)) []Interval {
	starts := make([]int, len(f.Locals))
	ends := make([]int, len(f.Locals))
	for i := range starts {
		starts[i] = -1
		ends[i] = -1
	}
	extend := func(l ir.LocalID, p int) {
		if starts[l] == -1 || p < starts[l] {
			starts[l] = p
		}
		if p > ends[l] {
			ends[l] = p
		}
	}

	for _, b := range ir.ReversePostorder(f) {
		first, last := pm.BlockRange(f, b)
		for l := range f.Locals {
			if lv.LiveIn[b][l] {
				extend(ir.LocalID(l), first)
			}
			if lv.LiveOut[b][l] {
				extend(ir.LocalID(l), last)
			}
		}
		blk := &f.Blocks[b]
		for ii := range blk.Instrs {
			p := pm.Index(ir.Point{Block: b, Index: ii})
			for _, u := range blk.Instrs[ii].Uses() {
				extend(u, p)
			}
			for _, d := range blk.Instrs[ii].Defs() {
				extend(d, p)
			}
		}
		tp := pm.Index(f.TerminatorPoint(b))
		for _, u := range blk.Term.Uses() {
			extend(u, tp)
		}
	}

	// Parameters are live from function entry even before their first use.
	for _, p := range f.Params {
		if starts[p] != -1 {
			extend(p, 0)
		}
	}

	var out []Interval
	for l := range f.Locals {
		if starts[l] == -1 {
			continue
		}
		class, ok := wanted(ir.LocalID(l))
		if !ok {
			continue
		}
		out = append(out, Interval{Local: ir.LocalID(l), Start: starts[l], End: ends[l], Class: class})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].Local < out[j].Local
	})
	return out
}
