package ir

// Liveness is the per-block result of the backward liveness dataflow.
// Indexing is [block][local].
type Liveness struct {
	LiveIn  [][]bool
	LiveOut [][]bool
}

// LiveOutAt reports whether local is live at exit of block.
func (lv *Liveness) LiveOutAt(b BlockID, l LocalID) bool {
	return lv.LiveOut[b][l]
}

// LiveInAt reports whether local is live at entry of block.
func (lv *Liveness) LiveInAt(b BlockID, l LocalID) bool {
	return lv.LiveIn[b][l]
}

// ComputeLiveness runs the classic backward dataflow to a fixed point:
// live_out[B] = union of live_in of successors, live_in[B] = gen[B] union
// (live_out[B] minus kill[B]). A worklist keyed by block id guarantees
// termination on cyclic CFGs.
func ComputeLiveness(f *Func) *Liveness {
	nb, nl := len(f.Blocks), len(f.Locals)
	gen := makeBoolMatrix(nb, nl)
	kill := makeBoolMatrix(nb, nl)

	for bi := range f.Blocks {
		b := &f.Blocks[bi]
		// walk backwards so upward-exposed uses survive earlier kills
		for _, u := range b.Term.Uses() {
			gen[bi][u] = true
		}
		for i := len(b.Instrs) - 1; i >= 0; i-- {
			for _, d := range b.Instrs[i].Defs() {
				kill[bi][d] = true
				gen[bi][d] = false
			}
			for _, u := range b.Instrs[i].Uses() {
				gen[bi][u] = true
			}
		}
	}

	preds := Predecessors(f)
	lv := &Liveness{
		LiveIn:  makeBoolMatrix(nb, nl),
		LiveOut: makeBoolMatrix(nb, nl),
	}

	work := make([]BlockID, 0, nb)
	inWork := make([]bool, nb)
	for i := nb - 1; i >= 0; i-- {
		work = append(work, BlockID(i))
		inWork[i] = true
	}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		inWork[b] = false

		out := lv.LiveOut[b]
		for _, s := range f.Blocks[b].Term.Successors() {
			for l, live := range lv.LiveIn[s] {
				if live {
					out[l] = true
				}
			}
		}
		changed := false
		in := lv.LiveIn[b]
		for l := 0; l < nl; l++ {
			next := gen[b][l] || (out[l] && !kill[b][l])
			if next != in[l] {
				in[l] = next
				changed = true
			}
		}
		if changed {
			for _, p := range preds[b] {
				if !inWork[p] {
					work = append(work, p)
					inWork[p] = true
				}
			}
		}
	}
	return lv
}

func makeBoolMatrix(rows, cols int) [][]bool {
	m := make([][]bool, rows)
	for i := range m {
		m[i] = make([]bool, cols)
	}
	return m
}
