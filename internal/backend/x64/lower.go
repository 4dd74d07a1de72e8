package x64

import (
	"fmt"

	"kiln/internal/ir"
	"kiln/internal/regalloc"
	"kiln/internal/types"
)

func (e *emitter) instr(in *ir.Instr) error {
	switch in.Kind {
	case ir.InstrAssign:
		return e.assign(&in.Assign)
	case ir.InstrCall:
		return e.call(&in.Call)
	case ir.InstrDestructure:
		return e.destructure(&in.Destructure)
	case ir.InstrDrop, ir.InstrEndBorrow, ir.InstrNop:
		// No runtime effect in the current ABI.
		return nil
	}
	return fmt.Errorf("unknown instruction kind %d", in.Kind)
}

func (e *emitter) terminator(t ir.Terminator) error {
	switch t.Kind {
	case ir.TermGoto:
		e.printf("\tjmp .L%s_b%d", e.label, t.Goto.Target)
		return nil
	case ir.TermIf:
		r, _, err := e.loadOperand(t.If.Cond, 0)
		if err != nil {
			return err
		}
		e.printf("\ttest %s, %s", sized(r, 1), sized(r, 1))
		e.printf("\tjnz .L%s_b%d", e.label, t.If.Then)
		e.printf("\tjmp .L%s_b%d", e.label, t.If.Else)
		return nil
	case ir.TermReturn:
		if t.Return.HasValue {
			r, ty, err := e.loadOperand(t.Return.Value, 0)
			if err != nil {
				return err
			}
			if r != "" {
				if e.isFloat(ty) {
					if e.desc.RetFP != r {
						e.printf("\tmovsd %s, %s", e.desc.RetFP, r)
					}
				} else if e.desc.RetGP != r {
					e.printf("\tmov %s, %s", e.desc.RetGP, r)
				}
			}
		}
		e.printf("\tjmp .Lret_%s", e.label)
		return nil
	case ir.TermUnreachable:
		e.printf("\tud2")
		return nil
	}
	return fmt.Errorf("unknown terminator kind %d", t.Kind)
}

// ---------------------------------------------------------------------------
// Assignments

func (e *emitter) assign(a *ir.AssignInstr) error {
	src := &a.Src
	switch src.Kind {
	case ir.RValueUse:
		return e.assignUse(a.Dst, src.Use)
	case ir.RValueUnary:
		return e.assignUnary(a.Dst, src.Unary)
	case ir.RValueBinary:
		return e.assignBinary(a.Dst, src.Binary)
	case ir.RValueRef:
		return e.assignRef(a.Dst, src.Ref)
	case ir.RValueTuple:
		return e.assignAggregate(a.Dst, src.Tuple.Elems, aggTuple)
	case ir.RValueArray:
		return e.assignAggregate(a.Dst, src.Array.Elems, aggArray)
	case ir.RValueStruct:
		return e.assignAggregate(a.Dst, src.Struct.Fields, aggStruct)
	case ir.RValueCast:
		return e.assignCast(a.Dst, src.Cast)
	}
	return fmt.Errorf("unknown rvalue kind %d", src.Kind)
}

func (e *emitter) assignUse(dst ir.Place, o ir.Operand) error {
	if o.Kind != ir.OperandConst {
		ty := e.placeValueType(o.Place)
		if ty != types.NoTypeID {
			if w, err := e.widthOf(ty); err == nil && w > 8 {
				return e.blockCopy(dst, o.Place, w)
			}
		}
	}
	r, ty, err := e.loadOperand(o, 0)
	if err != nil {
		return err
	}
	if r == "" {
		return nil // unit
	}
	return e.store(dst, r, ty)
}

// placeValueType resolves the type a place reads, following projections.
func (e *emitter) placeValueType(p ir.Place) types.TypeID {
	cur := e.typeOf(p.Local)
	for _, proj := range p.Proj {
		switch proj.Kind {
		case ir.PlaceProjDeref:
			tt, ok := e.tin.Lookup(cur)
			if !ok || tt.Kind != types.KindRef {
				return types.NoTypeID
			}
			cur = tt.Elem
		case ir.PlaceProjField:
			ft, err := e.fieldType(cur, proj.FieldIdx)
			if err != nil {
				return types.NoTypeID
			}
			cur = ft
		case ir.PlaceProjIndex:
			tt, ok := e.tin.Lookup(cur)
			if !ok || tt.Kind != types.KindArray {
				return types.NoTypeID
			}
			cur = tt.Elem
		}
	}
	return cur
}

// blockCopy moves an aggregate between two static frame places in 8-byte
// chunks with a smaller tail.
func (e *emitter) blockCopy(dst, src ir.Place, size int) error {
	sd, _, err := e.frameDisp(src)
	if err != nil {
		return err
	}
	dd, _, err := e.frameDisp(dst)
	if err != nil {
		return err
	}
	off := 0
	for _, chunk := range []int{8, 4, 2, 1} {
		for size-off >= chunk {
			e.printf("\tmov %s, %s", sized("rax", chunk), memOperand(chunk, fmt.Sprintf("[rbp%+d]", sd+off)))
			e.printf("\tmov %s, %s", memOperand(chunk, fmt.Sprintf("[rbp%+d]", dd+off)), sized("rax", chunk))
			off += chunk
		}
	}
	return nil
}

// frameDisp resolves a place made of frame storage plus static field
// projections into an rbp-relative displacement.
func (e *emitter) frameDisp(p ir.Place) (int, types.TypeID, error) {
	loc := e.asg.Locs[p.Local]
	if loc.Kind != regalloc.LocStack {
		return 0, 0, fmt.Errorf("local %d is not frame storage", p.Local)
	}
	disp := int(loc.Offset) - 8*len(e.savedGP)
	cur := e.typeOf(p.Local)
	for _, proj := range p.Proj {
		if proj.Kind != ir.PlaceProjField {
			return 0, 0, fmt.Errorf("dynamic projection on aggregate place")
		}
		off, err := e.lay.FieldOffset(cur, proj.FieldIdx)
		if err != nil {
			return 0, 0, err
		}
		disp += off
		cur, err = e.fieldType(cur, proj.FieldIdx)
		if err != nil {
			return 0, 0, err
		}
	}
	return disp, cur, nil
}

func (e *emitter) assignUnary(dst ir.Place, u ir.UnaryRV) error {
	r, ty, err := e.loadOperand(u.Operand, 0)
	if err != nil {
		return err
	}
	w, err := e.widthOf(ty)
	if err != nil {
		return err
	}
	switch u.Op {
	case ir.OpNeg:
		if e.isFloat(ty) {
			sub := "subsd"
			if w == 4 {
				sub = "subss"
			}
			e.printf("\txorps xmm1, xmm1")
			e.printf("\t%s xmm1, %s", sub, r)
			return e.store(dst, "xmm1", ty)
		}
		e.printf("\tneg %s", sized(r, w))
		return e.store(dst, r, ty)
	case ir.OpNot:
		e.printf("\txor %s, 1", sized(r, 1))
		return e.store(dst, r, ty)
	}
	return fmt.Errorf("unknown unary op %d", u.Op)
}

func (e *emitter) assignBinary(dst ir.Place, b ir.BinaryRV) error {
	l, ty, err := e.loadOperand(b.Left, 0)
	if err != nil {
		return err
	}
	r, _, err := e.loadOperand(b.Right, 1)
	if err != nil {
		return err
	}
	if e.isFloat(ty) {
		return e.binaryFloat(dst, b.Op, l, r, ty)
	}
	return e.binaryInt(dst, b.Op, l, r, ty)
}

func (e *emitter) binaryFloat(dst ir.Place, op ir.BinOp, l, r string, ty types.TypeID) error {
	w, err := e.widthOf(ty)
	if err != nil {
		return err
	}
	suffix := "sd"
	if w == 4 {
		suffix = "ss"
	}
	if op.IsComparison() {
		e.printf("\tucomi%s %s, %s", suffix, l, r)
		cc, err := floatCond(op)
		if err != nil {
			return err
		}
		e.printf("\tset%s al", cc)
		return e.store(dst, "rax", e.tin.Builtins().Bool)
	}
	var mn string
	switch op {
	case ir.OpAdd:
		mn = "add" + suffix
	case ir.OpSub:
		mn = "sub" + suffix
	case ir.OpMul:
		mn = "mul" + suffix
	case ir.OpDiv:
		mn = "div" + suffix
	default:
		return fmt.Errorf("operator %s not defined on %s", op, e.tin.String(ty))
	}
	e.printf("\t%s %s, %s", mn, l, r)
	return e.store(dst, l, ty)
}

func (e *emitter) binaryInt(dst ir.Place, op ir.BinOp, l, r string, ty types.TypeID) error {
	w, err := e.widthOf(ty)
	if err != nil {
		return err
	}
	signed := e.isSigned(ty)
	if op.IsComparison() {
		e.printf("\tcmp %s, %s", sized(l, w), sized(r, w))
		cc, err := intCond(op, signed)
		if err != nil {
			return err
		}
		e.printf("\tset%s al", cc)
		return e.store(dst, "rax", e.tin.Builtins().Bool)
	}
	switch op {
	case ir.OpAdd:
		e.printf("\tadd %s, %s", sized(l, w), sized(r, w))
	case ir.OpSub:
		e.printf("\tsub %s, %s", sized(l, w), sized(r, w))
	case ir.OpAnd:
		e.printf("\tand %s, %s", sized(l, w), sized(r, w))
	case ir.OpOr:
		e.printf("\tor %s, %s", sized(l, w), sized(r, w))
	case ir.OpXor:
		e.printf("\txor %s, %s", sized(l, w), sized(r, w))
	case ir.OpShl:
		e.printf("\tshl %s, cl", sized(l, w))
	case ir.OpShr:
		if signed {
			e.printf("\tsar %s, cl", sized(l, w))
		} else {
			e.printf("\tshr %s, cl", sized(l, w))
		}
	case ir.OpMul:
		ow := e.widenSmall(l, r, w, signed)
		e.printf("\timul %s, %s", sized(l, ow), sized(r, ow))
	case ir.OpDiv, ir.OpRem:
		ow := e.widenSmall(l, r, w, signed)
		if signed {
			if ow == 8 {
				e.printf("\tcqo")
			} else {
				e.printf("\tcdq")
			}
			e.printf("\tidiv %s", sized(r, ow))
		} else {
			e.printf("\txor edx, edx")
			e.printf("\tdiv %s", sized(r, ow))
		}
		if op == ir.OpRem {
			// Address arithmetic in store may use rdx; stash the
			// remainder in rax first (the quotient there is dead).
			e.printf("\tmov rax, rdx")
			return e.store(dst, "rax", ty)
		}
	default:
		return fmt.Errorf("operator %s not defined on %s", op, e.tin.String(ty))
	}
	return e.store(dst, l, ty)
}

// widenSmall extends sub-dword operands to 32 bits for operations without
// narrow encodings. Returns the width to operate at.
func (e *emitter) widenSmall(l, r string, w int, signed bool) int {
	if w >= 4 {
		return w
	}
	ext := "movzx"
	if signed {
		ext = "movsx"
	}
	e.printf("\t%s %s, %s", ext, sized(l, 4), sized(l, w))
	e.printf("\t%s %s, %s", ext, sized(r, 4), sized(r, w))
	return 4
}

func intCond(op ir.BinOp, signed bool) (string, error) {
	switch op {
	case ir.OpEq:
		return "e", nil
	case ir.OpNe:
		return "ne", nil
	case ir.OpLt:
		if signed {
			return "l", nil
		}
		return "b", nil
	case ir.OpLe:
		if signed {
			return "le", nil
		}
		return "be", nil
	case ir.OpGt:
		if signed {
			return "g", nil
		}
		return "a", nil
	case ir.OpGe:
		if signed {
			return "ge", nil
		}
		return "ae", nil
	}
	return "", fmt.Errorf("operator %s is not a comparison", op)
}

func floatCond(op ir.BinOp) (string, error) {
	switch op {
	case ir.OpEq:
		return "e", nil
	case ir.OpNe:
		return "ne", nil
	case ir.OpLt:
		return "b", nil
	case ir.OpLe:
		return "be", nil
	case ir.OpGt:
		return "a", nil
	case ir.OpGe:
		return "ae", nil
	}
	return "", fmt.Errorf("operator %s is not a comparison", op)
}

func (e *emitter) assignRef(dst ir.Place, ref ir.RefRV) error {
	vl, err := e.resolvePlace(ref.Place)
	if err != nil {
		return err
	}
	if vl.addr == "" {
		return fmt.Errorf("reference to non-memory place %d", ref.Place.Local)
	}
	e.printf("\tlea rax, %s", vl.addr)
	refTy := e.placeValueType(dst)
	if refTy == types.NoTypeID {
		refTy = e.typeOf(dst.Local)
	}
	return e.store(dst, "rax", refTy)
}

type aggKind uint8

const (
	aggTuple aggKind = iota
	aggArray
	aggStruct
)

func (e *emitter) assignAggregate(dst ir.Place, elems []ir.Operand, kind aggKind) error {
	disp, ty, err := e.frameDisp(dst)
	if err != nil {
		return err
	}
	lo, err := e.lay.Of(ty)
	if err != nil {
		return err
	}
	stride := 0
	if kind == aggArray {
		stride, err = e.lay.ElemStride(ty)
		if err != nil {
			return err
		}
	}
	for i, o := range elems {
		off := 0
		if kind == aggArray {
			off = i * stride
		} else {
			if i >= len(lo.FieldOffsets) {
				return fmt.Errorf("element %d out of range for %s", i, e.tin.String(ty))
			}
			off = lo.FieldOffsets[i]
		}
		r, ety, err := e.loadOperand(o, 0)
		if err != nil {
			return err
		}
		if r == "" {
			continue
		}
		w, err := e.widthOf(ety)
		if err != nil {
			return err
		}
		if w > 8 {
			if o.Kind == ir.OperandConst {
				return fmt.Errorf("aggregate constant element")
			}
			return fmt.Errorf("nested aggregate construction: flatten in the front end")
		}
		addr := fmt.Sprintf("[rbp%+d]", disp+off)
		if e.isFloat(ety) {
			mov := "movsd"
			if w == 4 {
				mov = "movss"
			}
			e.printf("\t%s %s, %s", mov, memOperand(w, addr), r)
		} else {
			e.printf("\tmov %s, %s", memOperand(w, addr), sized(r, w))
		}
	}
	return nil
}

func (e *emitter) assignCast(dst ir.Place, c ir.CastRV) error {
	r, from, err := e.loadOperand(c.Value, 0)
	if err != nil {
		return err
	}
	wf, err := e.widthOf(from)
	if err != nil {
		return err
	}
	wt, err := e.widthOf(c.Target)
	if err != nil {
		return err
	}
	ff, ft := e.isFloat(from), e.isFloat(c.Target)
	switch {
	case ff && ft:
		if wf == 8 && wt == 4 {
			e.printf("\tcvtsd2ss %s, %s", r, r)
		} else if wf == 4 && wt == 8 {
			e.printf("\tcvtss2sd %s, %s", r, r)
		}
		return e.store(dst, r, c.Target)
	case ff && !ft:
		cvt := "cvttsd2si"
		if wf == 4 {
			cvt = "cvttss2si"
		}
		e.printf("\t%s rax, %s", cvt, r)
		return e.store(dst, "rax", c.Target)
	case !ff && ft:
		e.extendTo64(r, wf, e.isSigned(from))
		cvt := "cvtsi2sd"
		if wt == 4 {
			cvt = "cvtsi2ss"
		}
		e.printf("\t%s xmm0, %s", cvt, r)
		return e.store(dst, "xmm0", c.Target)
	default:
		if wt > wf {
			e.extendVal(r, wf, wt, e.isSigned(from))
		}
		return e.store(dst, r, c.Target)
	}
}

func (e *emitter) extendTo64(r string, w int, signed bool) {
	if w == 8 {
		return
	}
	e.extendVal(r, w, 8, signed)
}

func (e *emitter) extendVal(r string, from, to int, signed bool) {
	if signed {
		if from == 4 && to == 8 {
			e.printf("\tmovsxd %s, %s", sized(r, 8), sized(r, 4))
			return
		}
		e.printf("\tmovsx %s, %s", sized(r, to), sized(r, from))
		return
	}
	if from == 4 {
		// A 32-bit mov zero-extends into the full register.
		e.printf("\tmov %s, %s", sized(r, 4), sized(r, 4))
		return
	}
	if to == 8 {
		e.printf("\tmovzx %s, %s", sized(r, 8), sized(r, from))
		return
	}
	e.printf("\tmovzx %s, %s", sized(r, to), sized(r, from))
}

func (e *emitter) destructure(d *ir.DestructureInstr) error {
	if d.Src.Kind == ir.OperandConst {
		return fmt.Errorf("destructure of constant")
	}
	disp, ty, err := e.frameDisp(d.Src.Place)
	if err != nil {
		return err
	}
	lo, err := e.lay.Of(ty)
	if err != nil {
		return err
	}
	for i, dst := range d.Dsts {
		if !dst.IsValid() {
			continue // wildcard binding
		}
		if i >= len(lo.FieldOffsets) {
			return fmt.Errorf("element %d out of range for %s", i, e.tin.String(ty))
		}
		ety, err := e.fieldType(ty, i)
		if err != nil {
			return err
		}
		w, err := e.widthOf(ety)
		if err != nil {
			return err
		}
		if w > 8 {
			return e.blockCopy(dst, ir.Place{Local: d.Src.Place.Local, Proj: append(append([]ir.PlaceProj{}, d.Src.Place.Proj...), ir.PlaceProj{Kind: ir.PlaceProjField, FieldIdx: i})}, w)
		}
		addr := fmt.Sprintf("[rbp%+d]", disp+lo.FieldOffsets[i])
		if e.isFloat(ety) {
			mov := "movsd"
			if w == 4 {
				mov = "movss"
			}
			e.printf("\t%s xmm0, %s", mov, memOperand(w, addr))
			if err := e.store(dst, "xmm0", ety); err != nil {
				return err
			}
			continue
		}
		e.printf("\tmov %s, %s", sized("rax", w), memOperand(w, addr))
		if err := e.store(dst, "rax", ety); err != nil {
			return err
		}
	}
	return nil
}
