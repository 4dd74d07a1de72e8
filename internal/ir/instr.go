package ir

import (
	"kiln/internal/source"
	"kiln/internal/types"
)

// PlaceProjKind distinguishes place projections.
type PlaceProjKind uint8

const (
	PlaceProjDeref PlaceProjKind = iota
	PlaceProjField
	PlaceProjIndex
)

type PlaceProj struct {
	Kind PlaceProjKind

	FieldIdx   int
	IndexLocal LocalID
}

// Place names a storage location: a local plus zero or more projections.
type Place struct {
	Local LocalID
	Proj  []PlaceProj
}

func (p Place) IsValid() bool { return p.Local != NoLocalID }

// Direct reports whether the place is a whole local without projections.
func (p Place) Direct() bool { return len(p.Proj) == 0 }

// OperandKind distinguishes operand types.
type OperandKind uint8

const (
	// OperandConst represents a constant operand.
	OperandConst OperandKind = iota
	// OperandCopy reads a place without transferring ownership.
	OperandCopy
	// OperandMove reads a place and transfers ownership out of it.
	OperandMove
)

// Operand is a value read by an instruction.
type Operand struct {
	Kind OperandKind

	Const Const
	Place Place
}

// ConstKind distinguishes constant kinds.
type ConstKind uint8

const (
	ConstInt ConstKind = iota
	ConstUint
	ConstFloat
	ConstBool
	ConstUnit
)

// Const is a literal. Type may carry a typed-literal annotation (e.g. 5i64);
// NoTypeID leaves the literal's type to structural inference.
type Const struct {
	Kind ConstKind
	Type types.TypeID

	IntValue   int64
	UintValue  uint64
	FloatValue float64
	BoolValue  bool
}

// BinOp enumerates binary operators.
type BinOp uint8

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

// IsComparison reports whether the operator yields bool.
func (op BinOp) IsComparison() bool {
	return op >= OpEq
}

func (op BinOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpRem:
		return "%"
	case OpAnd:
		return "&"
	case OpOr:
		return "|"
	case OpXor:
		return "^"
	case OpShl:
		return "<<"
	case OpShr:
		return ">>"
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	}
	return "?"
}

// UnOp enumerates unary operators.
type UnOp uint8

const (
	OpNeg UnOp = iota
	OpNot
)

// RValueKind distinguishes right-hand value kinds.
type RValueKind uint8

const (
	// RValueUse forwards an operand unchanged.
	RValueUse RValueKind = iota
	// RValueUnary applies a unary operator.
	RValueUnary
	// RValueBinary applies a binary operator.
	RValueBinary
	// RValueRef takes a reference to a place (&p or &mut p).
	RValueRef
	// RValueTuple builds a tuple from operands.
	RValueTuple
	// RValueArray builds an array from operands.
	RValueArray
	// RValueStruct builds a named aggregate from operands in field order.
	RValueStruct
	// RValueCast converts an operand to a target numeric type.
	RValueCast
)

// RValue is the right-hand side of an assignment.
type RValue struct {
	Kind RValueKind

	Use    Operand
	Unary  UnaryRV
	Binary BinaryRV
	Ref    RefRV
	Tuple  AggregateRV
	Array  AggregateRV
	Struct StructRV
	Cast   CastRV
}

type UnaryRV struct {
	Op      UnOp
	Operand Operand
}

type BinaryRV struct {
	Op    BinOp
	Left  Operand
	Right Operand
}

type RefRV struct {
	Place   Place
	Mutable bool
}

type AggregateRV struct {
	Elems []Operand
}

type StructRV struct {
	Type   types.TypeID
	Fields []Operand
}

type CastRV struct {
	Value  Operand
	Target types.TypeID
}

// InstrKind enumerates instruction kinds.
type InstrKind uint8

const (
	// InstrAssign stores an rvalue into a place.
	InstrAssign InstrKind = iota
	// InstrCall invokes a function by symbol name.
	InstrCall
	// InstrDestructure binds a tuple pattern: every destination receives
	// the corresponding element of the source tuple.
	InstrDestructure
	// InstrDrop ends a value's life explicitly; for linear values it is a
	// consumption point.
	InstrDrop
	// InstrEndBorrow releases the borrow held by a reference local.
	InstrEndBorrow
	// InstrNop does nothing.
	InstrNop
)

type Instr struct {
	Kind InstrKind
	Span source.Span

	Assign      AssignInstr
	Call        CallInstr
	Destructure DestructureInstr
	Drop        DropInstr
	EndBorrow   EndBorrowInstr
}

type AssignInstr struct {
	Dst Place
	Src RValue
}

type CallInstr struct {
	HasDst bool
	Dst    Place
	Callee string // fully-qualified symbol name, resolved via symbols.Table
	Args   []Operand
}

type DestructureInstr struct {
	Dsts []Place
	Src  Operand
}

type DropInstr struct {
	Place Place
}

type EndBorrowInstr struct {
	Place Place
}
