package x64

import (
	"fmt"

	"kiln/internal/ir"
	"kiln/internal/types"
)

// operandType resolves an operand's value type without emitting code.
func (e *emitter) operandType(o ir.Operand) types.TypeID {
	if o.Kind == ir.OperandConst {
		if o.Const.Type != types.NoTypeID {
			return o.Const.Type
		}
		b := e.tin.Builtins()
		switch o.Const.Kind {
		case ir.ConstBool:
			return b.Bool
		case ir.ConstUnit:
			return b.Unit
		case ir.ConstFloat:
			return b.F64
		case ir.ConstUint:
			return b.U64
		default:
			return b.I64
		}
	}
	return e.placeValueType(o.Place)
}

// call lowers a function call. Register arguments are staged through the
// stack so that loading one argument cannot clobber an argument register
// already filled: every argument is pushed in order, then popped in reverse
// straight into its target register.
func (e *emitter) call(c *ir.CallInstr) error {
	type staged struct {
		op  ir.Operand
		reg string // target register, empty for stack arguments
		fp  bool
	}

	var regArgs []staged
	var stackArgs []ir.Operand
	gp, fp := 0, 0
	for _, a := range c.Args {
		ty := e.operandType(a)
		tt, ok := e.tin.Lookup(ty)
		if ok && tt.Kind == types.KindUnit {
			continue
		}
		if ok && (tt.Kind == types.KindNamed || tt.Kind == types.KindTuple || tt.Kind == types.KindArray) {
			return fmt.Errorf("aggregate argument to %s: pass by reference", c.Callee)
		}
		if e.isFloat(ty) {
			if fp < len(e.desc.ArgsFP) {
				regArgs = append(regArgs, staged{op: a, reg: e.desc.ArgsFP[fp], fp: true})
				fp++
			} else {
				stackArgs = append(stackArgs, a)
			}
			continue
		}
		if gp < len(e.desc.ArgsGP) {
			regArgs = append(regArgs, staged{op: a, reg: e.desc.ArgsGP[gp]})
			gp++
		} else {
			stackArgs = append(stackArgs, a)
		}
	}

	// Live caller-saved registers survive the call on the stack.
	saves := e.clobbered
	pad := (len(saves)+len(stackArgs))%2 == 1
	for _, r := range saves {
		if isXMM(r) {
			e.printf("\tsub rsp, 8")
			e.printf("\tmovsd qword ptr [rsp], %s", r)
		} else {
			e.printf("\tpush %s", r)
		}
	}
	if pad {
		e.printf("\tsub rsp, 8")
	}

	// Stack arguments go last-to-first so the first overflow argument ends
	// up at the lowest address.
	for i := len(stackArgs) - 1; i >= 0; i-- {
		if err := e.pushOperand(stackArgs[i]); err != nil {
			return err
		}
	}
	for _, s := range regArgs {
		if err := e.pushOperand(s.op); err != nil {
			return err
		}
	}
	for i := len(regArgs) - 1; i >= 0; i-- {
		s := regArgs[i]
		if s.fp {
			e.printf("\tmovsd %s, qword ptr [rsp]", s.reg)
			e.printf("\tadd rsp, 8")
		} else {
			e.printf("\tpop %s", s.reg)
		}
	}

	e.printf("\tcall %s", c.Callee)
	e.reloc[c.Callee] = true

	drop := 8 * len(stackArgs)
	if pad {
		drop += 8
	}
	if drop > 0 {
		e.printf("\tadd rsp, %d", drop)
	}
	for i := len(saves) - 1; i >= 0; i-- {
		r := saves[i]
		if isXMM(r) {
			e.printf("\tmovsd %s, qword ptr [rsp]", r)
			e.printf("\tadd rsp, 8")
		} else {
			e.printf("\tpop %s", r)
		}
	}

	if !c.HasDst {
		return nil
	}
	ty := e.placeValueType(c.Dst)
	if ty == types.NoTypeID {
		ty = e.typeOf(c.Dst.Local)
	}
	tt, ok := e.tin.Lookup(ty)
	if ok && tt.Kind == types.KindUnit {
		return nil
	}
	if ok && (tt.Kind == types.KindNamed || tt.Kind == types.KindTuple || tt.Kind == types.KindArray) {
		return fmt.Errorf("aggregate result from %s: return by reference", c.Callee)
	}
	if e.isFloat(ty) {
		return e.store(c.Dst, e.desc.RetFP, ty)
	}
	return e.store(c.Dst, e.desc.RetGP, ty)
}

// pushOperand materializes an operand and pushes it as one 8-byte slot.
func (e *emitter) pushOperand(o ir.Operand) error {
	r, ty, err := e.loadOperand(o, 0)
	if err != nil {
		return err
	}
	if r == "" {
		e.printf("\tpush 0")
		return nil
	}
	if e.isFloat(ty) {
		e.printf("\tsub rsp, 8")
		w, err := e.widthOf(ty)
		if err != nil {
			return err
		}
		if w == 4 {
			e.printf("\tmovss dword ptr [rsp], %s", r)
		} else {
			e.printf("\tmovsd qword ptr [rsp], %s", r)
		}
		return nil
	}
	e.printf("\tpush %s", r)
	return nil
}
