// Package ir defines the typed intermediate representation consumed by the
// inference engine, the borrow checker and the code generator. The front end
// produces one Func per source function, already split into basic blocks
// with explicit terminators.
package ir

import (
	"kiln/internal/source"
	"kiln/internal/types"
)

type FuncID int32
type BlockID int32
type LocalID int32
type ScopeID int32

const (
	NoFuncID  FuncID  = -1
	NoBlockID BlockID = -1
	NoLocalID LocalID = -1
)

func (id BlockID) IsValid() bool { return id != NoBlockID }
func (id LocalID) IsValid() bool { return id != NoLocalID }

type LocalFlags uint8

const (
	// LocalFlagParam marks function parameters.
	LocalFlagParam LocalFlags = 1 << iota
	// LocalFlagModuleLet marks module-scope let bindings, the designated
	// generalization points for inference.
	LocalFlagModuleLet
)

// Local is a storage location tracked by every pass. Declared holds the
// explicit annotation when the source carried one; Type is attached by the
// inference engine and is authoritative afterwards.
type Local struct {
	Name     string
	Declared types.TypeID
	Type     types.TypeID
	Flags    LocalFlags
	Scope    ScopeID
	Span     source.Span
}

func (l *Local) IsParam() bool { return l.Flags&LocalFlagParam != 0 }

// Func is one compilation unit. Scopes form a tree: ScopeParents[s] is the
// parent of scope s, with scope 0 (the function body) its own parent.
type Func struct {
	ID   FuncID
	Name string
	Span source.Span

	// Exported reports whether the symbol is externally visible.
	Exported bool

	Result types.TypeID

	Params       []LocalID
	Locals       []Local
	Blocks       []Block
	ScopeParents []ScopeID
	Entry        BlockID
}

// NewFunc returns an empty function with the body scope preallocated.
func NewFunc(name string, result types.TypeID) *Func {
	return &Func{
		ID:           NoFuncID,
		Name:         name,
		Result:       result,
		ScopeParents: []ScopeID{0},
		Entry:        NoBlockID,
	}
}

// NewScope introduces a child scope of parent and returns its id.
func (f *Func) NewScope(parent ScopeID) ScopeID {
	id := ScopeID(len(f.ScopeParents))
	f.ScopeParents = append(f.ScopeParents, parent)
	return id
}

// NewLocal appends a local and returns its id.
func (f *Func) NewLocal(l Local) LocalID {
	id := LocalID(len(f.Locals))
	f.Locals = append(f.Locals, l)
	if l.Flags&LocalFlagParam != 0 {
		f.Params = append(f.Params, id)
	}
	return id
}

// NewBlock appends an empty block and returns its id. The first block
// becomes the entry.
func (f *Func) NewBlock() BlockID {
	id := BlockID(len(f.Blocks))
	f.Blocks = append(f.Blocks, Block{ID: id})
	if f.Entry == NoBlockID {
		f.Entry = id
	}
	return id
}

// Block is a basic block: straight-line instructions plus one terminator.
type Block struct {
	ID     BlockID
	Instrs []Instr
	Term   Terminator
}

func (b *Block) Terminated() bool {
	if b == nil {
		return true
	}
	return b.Term.Kind != TermNone
}

// Push appends an instruction.
func (f *Func) Push(b BlockID, in Instr) {
	f.Blocks[b].Instrs = append(f.Blocks[b].Instrs, in)
}

// SetTerm sets the block terminator.
func (f *Func) SetTerm(b BlockID, t Terminator) {
	f.Blocks[b].Term = t
}

// ScopeWithin reports whether inner is scope outer or nested inside it.
func (f *Func) ScopeWithin(inner, outer ScopeID) bool {
	for {
		if inner == outer {
			return true
		}
		parent := f.ScopeParents[inner]
		if parent == inner {
			return false
		}
		inner = parent
	}
}
