package ir

import "kiln/internal/types"

// Construction helpers used by the front-end bridge and throughout tests.

// IntConst is an untyped integer literal operand.
func IntConst(v int64) Operand {
	return Operand{Kind: OperandConst, Const: Const{Kind: ConstInt, IntValue: v}}
}

// TypedIntConst is an integer literal with an explicit suffix type.
func TypedIntConst(v int64, t types.TypeID) Operand {
	return Operand{Kind: OperandConst, Const: Const{Kind: ConstInt, IntValue: v, Type: t}}
}

// FloatConst is an untyped float literal operand.
func FloatConst(v float64) Operand {
	return Operand{Kind: OperandConst, Const: Const{Kind: ConstFloat, FloatValue: v}}
}

// BoolConst is a boolean literal operand.
func BoolConst(v bool) Operand {
	return Operand{Kind: OperandConst, Const: Const{Kind: ConstBool, BoolValue: v}}
}

// UnitConst is the unit literal operand.
func UnitConst() Operand {
	return Operand{Kind: OperandConst, Const: Const{Kind: ConstUnit}}
}

// Copy reads a local without moving out of it.
func Copy(l LocalID) Operand {
	return Operand{Kind: OperandCopy, Place: Place{Local: l}}
}

// Move reads a local and transfers ownership.
func Move(l LocalID) Operand {
	return Operand{Kind: OperandMove, Place: Place{Local: l}}
}

// CopyPlace reads a projected place without moving.
func CopyPlace(p Place) Operand {
	return Operand{Kind: OperandCopy, Place: p}
}

// MovePlace reads a projected place and transfers ownership.
func MovePlace(p Place) Operand {
	return Operand{Kind: OperandMove, Place: p}
}

// Use wraps an operand as a pass-through rvalue.
func Use(o Operand) RValue {
	return RValue{Kind: RValueUse, Use: o}
}

// Binary builds a binary-operator rvalue.
func Binary(op BinOp, l, r Operand) RValue {
	return RValue{Kind: RValueBinary, Binary: BinaryRV{Op: op, Left: l, Right: r}}
}

// Unary builds a unary-operator rvalue.
func Unary(op UnOp, o Operand) RValue {
	return RValue{Kind: RValueUnary, Unary: UnaryRV{Op: op, Operand: o}}
}

// Ref takes a reference to a whole local.
func Ref(l LocalID, mutable bool) RValue {
	return RValue{Kind: RValueRef, Ref: RefRV{Place: Place{Local: l}, Mutable: mutable}}
}

// Tuple builds a tuple rvalue.
func Tuple(elems ...Operand) RValue {
	return RValue{Kind: RValueTuple, Tuple: AggregateRV{Elems: elems}}
}

// Assign stores an rvalue into a whole local.
func Assign(dst LocalID, src RValue) Instr {
	return Instr{Kind: InstrAssign, Assign: AssignInstr{Dst: Place{Local: dst}, Src: src}}
}

// AssignPlace stores an rvalue into a projected place.
func AssignPlace(dst Place, src RValue) Instr {
	return Instr{Kind: InstrAssign, Assign: AssignInstr{Dst: dst, Src: src}}
}

// Call invokes callee and stores the result in dst.
func Call(dst LocalID, callee string, args ...Operand) Instr {
	return Instr{Kind: InstrCall, Call: CallInstr{
		HasDst: true,
		Dst:    Place{Local: dst},
		Callee: callee,
		Args:   args,
	}}
}

// CallVoid invokes callee and discards the result.
func CallVoid(callee string, args ...Operand) Instr {
	return Instr{Kind: InstrCall, Call: CallInstr{Callee: callee, Args: args}}
}

// Destructure binds a tuple pattern to whole locals.
func Destructure(src Operand, dsts ...LocalID) Instr {
	places := make([]Place, len(dsts))
	for i, d := range dsts {
		places[i] = Place{Local: d}
	}
	return Instr{Kind: InstrDestructure, Destructure: DestructureInstr{Dsts: places, Src: src}}
}

// Drop ends the value held by a local.
func Drop(l LocalID) Instr {
	return Instr{Kind: InstrDrop, Drop: DropInstr{Place: Place{Local: l}}}
}

// EndBorrow releases the borrow held by a reference local.
func EndBorrow(l LocalID) Instr {
	return Instr{Kind: InstrEndBorrow, EndBorrow: EndBorrowInstr{Place: Place{Local: l}}}
}

// RetVal terminates with a return of an operand.
func RetVal(o Operand) Terminator {
	return Terminator{Kind: TermReturn, Return: ReturnTerm{HasValue: true, Value: o}}
}

// Ret terminates with a bare return.
func Ret() Terminator {
	return Terminator{Kind: TermReturn}
}

// Goto terminates with an unconditional jump.
func Goto(b BlockID) Terminator {
	return Terminator{Kind: TermGoto, Goto: GotoTerm{Target: b}}
}

// If terminates with a conditional branch.
func If(cond Operand, then, els BlockID) Terminator {
	return Terminator{Kind: TermIf, If: IfTerm{Cond: cond, Then: then, Else: els}}
}
