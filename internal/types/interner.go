package types

import (
	"fmt"

	"fortio.org/safecast"
)

// Builtins stores TypeIDs for common primitive types.
type Builtins struct {
	Invalid TypeID
	Unit    TypeID
	Bool    TypeID
	I8      TypeID
	I16     TypeID
	I32     TypeID
	I64     TypeID
	U8      TypeID
	U16     TypeID
	U32     TypeID
	U64     TypeID
	F32     TypeID
	F64     TypeID
}

// Interner provides stable TypeIDs by hashing structural descriptors.
type Interner struct {
	types    []Type
	index    map[typeKey]TypeID
	builtins Builtins
	fns      []FnInfo
	tuples   []TupleInfo
	named    []NamedInfo
	nextVar  uint32
}

// NewInterner constructs an interner seeded with built-in primitives.
func NewInterner() *Interner {
	in := &Interner{
		index: make(map[typeKey]TypeID, 64),
	}
	in.fns = append(in.fns, FnInfo{}) // reserve 0 as invalid sentinel
	in.tuples = append(in.tuples, TupleInfo{})
	in.named = append(in.named, NamedInfo{})
	in.builtins.Invalid = in.internRaw(Type{Kind: KindInvalid})
	in.builtins.Unit = in.Intern(Type{Kind: KindUnit})
	in.builtins.Bool = in.Intern(Type{Kind: KindBool})
	in.builtins.I8 = in.Intern(MakeInt(Width8))
	in.builtins.I16 = in.Intern(MakeInt(Width16))
	in.builtins.I32 = in.Intern(MakeInt(Width32))
	in.builtins.I64 = in.Intern(MakeInt(Width64))
	in.builtins.U8 = in.Intern(MakeUint(Width8))
	in.builtins.U16 = in.Intern(MakeUint(Width16))
	in.builtins.U32 = in.Intern(MakeUint(Width32))
	in.builtins.U64 = in.Intern(MakeUint(Width64))
	in.builtins.F32 = in.Intern(MakeFloat(Width32))
	in.builtins.F64 = in.Intern(MakeFloat(Width64))
	return in
}

// Builtins returns TypeIDs for primitive types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Intern ensures the provided descriptor has a stable TypeID.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	key := typeKey(t)
	if id, ok := in.index[key]; ok {
		return id
	}
	return in.internRaw(t)
}

// internRaw adds the descriptor to the storage without consulting the map.
func (in *Interner) internRaw(t Type) TypeID {
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	key := typeKey(t)
	in.index[key] = id
	return id
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic("types: invalid TypeID")
	}
	return tt
}

// FreshVar mints a new inference variable. Every call returns a distinct
// TypeID; variables never compare equal by structure.
func (in *Interner) FreshVar() TypeID {
	id := in.internRaw(Type{Kind: KindVar, Payload: in.nextVar})
	in.nextVar++
	return id
}

// VarID returns the variable identifier when id denotes an inference
// variable.
func (in *Interner) VarID(id TypeID) (uint32, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindVar {
		return 0, false
	}
	return tt.Payload, true
}

// IsCopy reports whether values of the type duplicate freely on use.
// Primitives and shared references are copy; everything owning storage
// moves.
func (in *Interner) IsCopy(id TypeID) bool {
	tt, ok := in.Lookup(id)
	if !ok {
		return false
	}
	switch tt.Kind {
	case KindUnit, KindBool, KindInt, KindUint, KindFloat, KindFn:
		return true
	case KindRef:
		return !tt.Mutable
	default:
		return false
	}
}

// IsLinear reports whether the type carries the linear ownership kind: its
// values must be consumed exactly once.
func (in *Interner) IsLinear(id TypeID) bool {
	info, ok := in.NamedInfoOf(id)
	return ok && info.Linear
}

type typeKey Type
