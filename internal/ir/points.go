package ir

// Point addresses one program point: an instruction inside a block, or the
// block's terminator when Index equals the instruction count.
type Point struct {
	Block BlockID
	Index int
}

// TerminatorPoint returns the point of a block's terminator.
func (f *Func) TerminatorPoint(b BlockID) Point {
	return Point{Block: b, Index: len(f.Blocks[b].Instrs)}
}

// PointMap assigns every program point a monotonically increasing index in
// block-declaration order. The code generator and the region inference both
// key their interval math on these indices.
type PointMap struct {
	base  []int
	total int
}

// BuildPointMap indexes all points of the function.
func BuildPointMap(f *Func) *PointMap {
	pm := &PointMap{base: make([]int, len(f.Blocks))}
	n := 0
	for i := range f.Blocks {
		pm.base[i] = n
		n += len(f.Blocks[i].Instrs) + 1 // +1 for the terminator
	}
	pm.total = n
	return pm
}

// Index returns the global index of a point.
func (pm *PointMap) Index(p Point) int {
	return pm.base[p.Block] + p.Index
}

// BlockRange returns the half-open global index range [first, last] covered
// by a block, terminator included.
func (pm *PointMap) BlockRange(f *Func, b BlockID) (first, last int) {
	first = pm.base[b]
	last = pm.base[b] + len(f.Blocks[b].Instrs)
	return first, last
}

// Total returns the number of program points in the function.
func (pm *PointMap) Total() int {
	return pm.total
}
