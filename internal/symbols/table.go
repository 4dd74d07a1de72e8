// Package symbols holds the table of resolved signatures shared by
// concurrently compiled functions. The table is append-only: signatures are
// published before any function body is checked, and readers never observe
// a partially written entry.
package symbols

import (
	"fmt"
	"sync"

	"kiln/internal/source"
	"kiln/internal/types"
)

// SymbolID identifies a published symbol.
type SymbolID uint32

// NoSymbolID marks the absence of a symbol.
const NoSymbolID SymbolID = 0

func (id SymbolID) IsValid() bool { return id != NoSymbolID }

// FuncSig is the resolved signature of a function: the declared contract
// callers are typed against.
type FuncSig struct {
	Name     string
	Params   []types.TypeID
	Result   types.TypeID
	Exported bool
	Span     source.Span
}

// Table maps fully-qualified names to resolved signatures.
// Запись — только до барьера (Publish), чтение — конкурентное после него.
type Table struct {
	mu     sync.RWMutex
	byName map[string]SymbolID
	sigs   []FuncSig
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		byName: make(map[string]SymbolID, 64),
		sigs:   make([]FuncSig, 1), // reserve 0 as invalid sentinel
	}
}

// Publish registers a signature under its fully-qualified name. Publishing
// the same name twice is an error: the table is append-only.
func (t *Table) Publish(sig FuncSig) (SymbolID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byName[sig.Name]; ok {
		return NoSymbolID, fmt.Errorf("symbols: duplicate symbol %q", sig.Name)
	}
	id := SymbolID(len(t.sigs))
	t.sigs = append(t.sigs, sig)
	t.byName[sig.Name] = id
	return id, nil
}

// Lookup finds a signature by fully-qualified name.
func (t *Table) Lookup(name string) (FuncSig, SymbolID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byName[name]
	if !ok {
		return FuncSig{}, NoSymbolID, false
	}
	return t.sigs[id], id, true
}

// Get returns the signature for a SymbolID.
func (t *Table) Get(id SymbolID) (FuncSig, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !id.IsValid() || int(id) >= len(t.sigs) {
		return FuncSig{}, false
	}
	return t.sigs[id], true
}

// Len reports the number of published symbols.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sigs) - 1
}
