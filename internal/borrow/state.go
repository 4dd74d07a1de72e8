package borrow

import "math/bits"

// State is the ownership state of one local at one program point.
type State uint8

const (
	// StateUninit: storage exists, no value yet.
	StateUninit State = iota
	// StateOwned: the local holds a live value.
	StateOwned
	// StatePartiallyMoved: some fields were moved out, the rest remain.
	StatePartiallyMoved
	// StateMoved: the value left; the storage must not be read.
	StateMoved
	// StateConsumed: a linear value was consumed; it must not be touched
	// or consumed again.
	StateConsumed
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "uninitialized"
	case StateOwned:
		return "owned"
	case StatePartiallyMoved:
		return "partially moved"
	case StateMoved:
		return "moved"
	case StateConsumed:
		return "consumed"
	default:
		return "invalid"
	}
}

// localFact is the dataflow fact for one local: its state plus the bitmask
// of moved-out fields when partially moved.
type localFact struct {
	state       State
	movedFields uint64
}

// merge combines facts arriving over two CFG edges, keeping the more
// restrictive of the two so no path can smuggle an invalid use past the
// checker.
func merge(a, b localFact) localFact {
	if a.state == b.state {
		if a.state == StatePartiallyMoved {
			a.movedFields |= b.movedFields
		}
		return a
	}
	ra, rb := restrictiveness(a.state), restrictiveness(b.state)
	out := a
	if rb > ra {
		out = b
	}
	if out.state == StatePartiallyMoved {
		out.movedFields = a.movedFields | b.movedFields
	}
	return out
}

// restrictiveness orders states so merge can pick the one that forbids
// more. A path where the value is gone dominates a path where it is owned.
func restrictiveness(s State) int {
	switch s {
	case StateOwned:
		return 0
	case StatePartiallyMoved:
		return 1
	case StateMoved:
		return 2
	case StateConsumed:
		return 3
	case StateUninit:
		return 4
	default:
		return 5
	}
}

type factVec []localFact

func (v factVec) clone() factVec {
	out := make(factVec, len(v))
	copy(out, v)
	return out
}

func (v factVec) equal(o factVec) bool {
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

func mergeVec(dst, src factVec) {
	for i := range dst {
		dst[i] = merge(dst[i], src[i])
	}
}

// movedFieldIndices lists the indices set in a moved-fields mask.
func movedFieldIndices(mask uint64) []int {
	out := make([]int, 0, bits.OnesCount64(mask))
	for mask != 0 {
		i := bits.TrailingZeros64(mask)
		out = append(out, i)
		mask &^= 1 << i
	}
	return out
}
