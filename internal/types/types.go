package types

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// RegionID identifies a lifetime region. The arena of regions is owned by
// the borrow checker; types only carry the annotation.
type RegionID uint32

// NoRegionID marks an unannotated region. RegionStatic is the whole-program
// root every other region descends from.
const (
	NoRegionID   RegionID = 0
	RegionStatic RegionID = 1
)

// Kind enumerates all supported kinds of types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUnit
	KindBool
	KindInt
	KindUint
	KindFloat
	KindNamed
	KindFn
	KindRef
	KindArray
	KindTuple
	KindVar
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnit:
		return "unit"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindNamed:
		return "named"
	case KindFn:
		return "fn"
	case KindRef:
		return "ref"
	case KindArray:
		return "array"
	case KindTuple:
		return "tuple"
	case KindVar:
		return "var"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Width captures the precision of integers/floats.
type Width uint8

const (
	WidthAny Width = 0
	Width8   Width = 8
	Width16  Width = 16
	Width32  Width = 32
	Width64  Width = 64
)

// ArrayUnknownLength marks array types whose length is still to be inferred.
// It unifies with any concrete length.
const ArrayUnknownLength = ^uint32(0)

// Type is a compact descriptor for any supported type. Composite payloads
// (function signatures, tuple elements, named aggregates, variable ids) live
// in side tables addressed by Payload.
type Type struct {
	Kind    Kind
	Elem    TypeID   // element type for refs and arrays
	Count   uint32   // for arrays (ArrayUnknownLength until inferred)
	Width   Width    // for numeric primitives
	Mutable bool     // for references
	Region  RegionID // for references
	Payload uint32   // side-table slot for fn/tuple/named, variable id for vars
}

// Descriptor helpers ---------------------------------------------------------

// MakeInt describes a signed integer of the given width.
func MakeInt(width Width) Type {
	return Type{Kind: KindInt, Width: width}
}

// MakeUint describes an unsigned integer type.
func MakeUint(width Width) Type {
	return Type{Kind: KindUint, Width: width}
}

// MakeFloat describes a floating-point type.
func MakeFloat(width Width) Type {
	return Type{Kind: KindFloat, Width: width}
}

// MakeArray describes an array of element type. Use ArrayUnknownLength for
// lengths the inference engine still has to pin down.
func MakeArray(elem TypeID, count uint32) Type {
	return Type{Kind: KindArray, Elem: elem, Count: count}
}

// MakeRef describes &T or &mut T depending on the mutable flag.
func MakeRef(elem TypeID, mutable bool, region RegionID) Type {
	return Type{Kind: KindRef, Elem: elem, Mutable: mutable, Region: region}
}
