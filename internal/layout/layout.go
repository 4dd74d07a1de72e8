// Package layout computes sizes, alignments and field offsets for resolved
// types. Results are fixed at type-resolution time; code generation only
// reads them back and never recomputes.
package layout

import (
	"fmt"
	"sync"

	"kiln/internal/types"
)

// TypeLayout is the ABI layout of a type.
type TypeLayout struct {
	Size  int
	Align int

	// Struct and tuple only: byte offset of each field/element.
	FieldOffsets []int
}

// Engine computes memory layout for types on a target with the given
// pointer width. One Engine is shared by all compilation workers, so the
// cache is guarded.
type Engine struct {
	Types    *types.Interner
	PtrSize  int
	PtrAlign int

	mu    sync.RWMutex
	cache map[types.TypeID]TypeLayout
}

// New creates an Engine. ptrSize is in bytes (8 on every supported target).
func New(typesIn *types.Interner, ptrSize int) *Engine {
	return &Engine{
		Types:    typesIn,
		PtrSize:  ptrSize,
		PtrAlign: ptrSize,
		cache:    make(map[types.TypeID]TypeLayout, 256),
	}
}

// Of computes and caches the layout of a type. Unresolved types (inference
// variables, unknown array lengths) are an error: layout runs strictly after
// inference succeeded.
func (e *Engine) Of(id types.TypeID) (TypeLayout, error) {
	e.mu.RLock()
	l, ok := e.cache[id]
	e.mu.RUnlock()
	if ok {
		return l, nil
	}
	l, err := e.compute(id)
	if err != nil {
		return TypeLayout{}, err
	}
	e.mu.Lock()
	e.cache[id] = l
	e.mu.Unlock()
	return l, nil
}

// FieldOffset returns the byte offset of field index i in a named aggregate
// or tuple.
func (e *Engine) FieldOffset(id types.TypeID, i int) (int, error) {
	l, err := e.Of(id)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= len(l.FieldOffsets) {
		return 0, fmt.Errorf("layout: field index %d out of range for %s", i, e.Types.String(id))
	}
	return l.FieldOffsets[i], nil
}

// ElemStride returns the distance between consecutive elements of an array
// type.
func (e *Engine) ElemStride(id types.TypeID) (int, error) {
	tt, ok := e.Types.Lookup(id)
	if !ok || tt.Kind != types.KindArray {
		return 0, fmt.Errorf("layout: %s is not an array", e.Types.String(id))
	}
	el, err := e.Of(tt.Elem)
	if err != nil {
		return 0, err
	}
	return alignUp(el.Size, el.Align), nil
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + align - rem
}
