package ir

import (
	"fmt"
	"strings"

	"kiln/internal/types"
)

// Print renders a stable textual dump of the function. The driver hashes
// this form for the artifact cache, so the output must be deterministic.
func Print(f *Func, tin *types.Interner) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "fn %s -> %s {\n", f.Name, typeName(tin, f.Result))
	for i, l := range f.Locals {
		kind := "let"
		if l.IsParam() {
			kind = "param"
		}
		fmt.Fprintf(&sb, "  %s _%d %s: %s\n", kind, i, l.Name, typeName(tin, l.Type))
	}
	for bi := range f.Blocks {
		b := &f.Blocks[bi]
		fmt.Fprintf(&sb, "b%d:\n", b.ID)
		for ii := range b.Instrs {
			fmt.Fprintf(&sb, "  %s\n", printInstr(&b.Instrs[ii]))
		}
		fmt.Fprintf(&sb, "  %s\n", printTerm(b.Term))
	}
	sb.WriteString("}\n")
	return sb.String()
}

func typeName(tin *types.Interner, id types.TypeID) string {
	if tin == nil || id == types.NoTypeID {
		return "_"
	}
	return tin.String(id)
}

func printInstr(in *Instr) string {
	switch in.Kind {
	case InstrAssign:
		return fmt.Sprintf("%s = %s", printPlace(in.Assign.Dst), printRValue(in.Assign.Src))
	case InstrCall:
		args := make([]string, len(in.Call.Args))
		for i, a := range in.Call.Args {
			args[i] = printOperand(a)
		}
		call := fmt.Sprintf("call %s(%s)", in.Call.Callee, strings.Join(args, ", "))
		if in.Call.HasDst {
			return printPlace(in.Call.Dst) + " = " + call
		}
		return call
	case InstrDestructure:
		dsts := make([]string, len(in.Destructure.Dsts))
		for i, d := range in.Destructure.Dsts {
			dsts[i] = printPlace(d)
		}
		return fmt.Sprintf("(%s) = %s", strings.Join(dsts, ", "), printOperand(in.Destructure.Src))
	case InstrDrop:
		return "drop " + printPlace(in.Drop.Place)
	case InstrEndBorrow:
		return "end_borrow " + printPlace(in.EndBorrow.Place)
	case InstrNop:
		return "nop"
	}
	return "<?>"
}

func printTerm(t Terminator) string {
	switch t.Kind {
	case TermReturn:
		if t.Return.HasValue {
			return "return " + printOperand(t.Return.Value)
		}
		return "return"
	case TermGoto:
		return fmt.Sprintf("goto b%d", t.Goto.Target)
	case TermIf:
		return fmt.Sprintf("if %s -> b%d else b%d", printOperand(t.If.Cond), t.If.Then, t.If.Else)
	case TermUnreachable:
		return "unreachable"
	}
	return "<unterminated>"
}

func printPlace(p Place) string {
	s := fmt.Sprintf("_%d", p.Local)
	for _, proj := range p.Proj {
		switch proj.Kind {
		case PlaceProjDeref:
			s = "*" + s
		case PlaceProjField:
			s = fmt.Sprintf("%s.%d", s, proj.FieldIdx)
		case PlaceProjIndex:
			s = fmt.Sprintf("%s[_%d]", s, proj.IndexLocal)
		}
	}
	return s
}

func printOperand(o Operand) string {
	switch o.Kind {
	case OperandConst:
		return printConst(o.Const)
	case OperandCopy:
		return "copy " + printPlace(o.Place)
	case OperandMove:
		return "move " + printPlace(o.Place)
	}
	return "<?>"
}

func printConst(c Const) string {
	switch c.Kind {
	case ConstInt:
		return fmt.Sprintf("%d", c.IntValue)
	case ConstUint:
		return fmt.Sprintf("%du", c.UintValue)
	case ConstFloat:
		return fmt.Sprintf("%g", c.FloatValue)
	case ConstBool:
		return fmt.Sprintf("%t", c.BoolValue)
	case ConstUnit:
		return "()"
	}
	return "<?>"
}

func printRValue(rv RValue) string {
	switch rv.Kind {
	case RValueUse:
		return printOperand(rv.Use)
	case RValueUnary:
		op := "-"
		if rv.Unary.Op == OpNot {
			op = "!"
		}
		return op + printOperand(rv.Unary.Operand)
	case RValueBinary:
		return fmt.Sprintf("%s %s %s", printOperand(rv.Binary.Left), rv.Binary.Op, printOperand(rv.Binary.Right))
	case RValueRef:
		if rv.Ref.Mutable {
			return "&mut " + printPlace(rv.Ref.Place)
		}
		return "&" + printPlace(rv.Ref.Place)
	case RValueTuple:
		return "(" + printOperands(rv.Tuple.Elems) + ")"
	case RValueArray:
		return "[" + printOperands(rv.Array.Elems) + "]"
	case RValueStruct:
		return fmt.Sprintf("struct#%d{%s}", rv.Struct.Type, printOperands(rv.Struct.Fields))
	case RValueCast:
		return fmt.Sprintf("%s as #%d", printOperand(rv.Cast.Value), rv.Cast.Target)
	}
	return "<?>"
}

func printOperands(ops []Operand) string {
	parts := make([]string, len(ops))
	for i, o := range ops {
		parts[i] = printOperand(o)
	}
	return strings.Join(parts, ", ")
}
