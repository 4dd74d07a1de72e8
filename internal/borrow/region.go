// Package borrow enforces the ownership rules over function bodies: every
// value has exactly one owner, moves invalidate the source, borrows may not
// conflict, and references may not outlive their referent. Checking is a
// forward dataflow over the control-flow graph; borrow lifetimes are
// non-lexical and end at the last use of the reference.
package borrow

import (
	"fmt"

	"fortio.org/safecast"

	"kiln/internal/ir"
	"kiln/internal/types"
)

// Arena owns the lifetime regions of one function. Regions form a tree
// rooted at the static region; a child region is strictly shorter-lived
// than its parent.
type Arena struct {
	parents []types.RegionID
}

// NewArena seeds the arena with the invalid slot and the static root.
func NewArena() *Arena {
	a := &Arena{}
	a.parents = append(a.parents, types.NoRegionID)   // slot 0: invalid
	a.parents = append(a.parents, types.RegionStatic) // static is its own parent
	return a
}

// New allocates a region nested inside parent.
func (a *Arena) New(parent types.RegionID) types.RegionID {
	n, err := safecast.Conv[uint32](len(a.parents))
	if err != nil {
		panic(fmt.Errorf("region overflow: %w", err))
	}
	id := types.RegionID(n)
	a.parents = append(a.parents, parent)
	return id
}

// Parent returns the enclosing region.
func (a *Arena) Parent(r types.RegionID) types.RegionID {
	if int(r) >= len(a.parents) {
		return types.NoRegionID
	}
	return a.parents[r]
}

// Len reports the number of allocated regions, the static root included.
func (a *Arena) Len() int { return len(a.parents) - 1 }

// Outlives reports whether r lives at least as long as s: r is s itself or
// one of its ancestors.
func (a *Arena) Outlives(r, s types.RegionID) bool {
	if r == types.NoRegionID || s == types.NoRegionID {
		return false
	}
	for {
		if s == r {
			return true
		}
		parent := a.Parent(s)
		if parent == s || parent == types.NoRegionID {
			return false
		}
		s = parent
	}
}

// scopeRegions maps every scope of the function to a region mirroring the
// scope tree. The function body hangs off the static root: locals live for
// at most one call frame.
func scopeRegions(f *ir.Func, a *Arena) []types.RegionID {
	regions := make([]types.RegionID, len(f.ScopeParents))
	for s, parent := range f.ScopeParents {
		if ir.ScopeID(s) == parent {
			regions[s] = a.New(types.RegionStatic)
			continue
		}
		regions[s] = a.New(regions[parent])
	}
	return regions
}
