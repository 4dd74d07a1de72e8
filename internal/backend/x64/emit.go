package x64

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"kiln/internal/ir"
	"kiln/internal/layout"
	"kiln/internal/regalloc"
	"kiln/internal/target"
	"kiln/internal/types"
)

// EmitFunc lowers one function to assembly text. The register assignment
// must come from the same function and target description.
func EmitFunc(f *ir.Func, tin *types.Interner, lay *layout.Engine, desc *target.Desc, asg *regalloc.Assignment) (*Artifact, error) {
	e := &emitter{
		f:     f,
		tin:   tin,
		lay:   lay,
		desc:  desc,
		asg:   asg,
		pool:  make(map[poolKey]string),
		reloc: make(map[string]bool),
	}
	e.prepare()
	if err := e.emit(); err != nil {
		return nil, err
	}

	var relocs []string
	for s := range e.reloc {
		relocs = append(relocs, s)
	}
	sort.Strings(relocs)
	return &Artifact{
		Symbol:      f.Name,
		Global:      f.Exported,
		Text:        e.buf.Bytes(),
		Relocations: relocs,
	}, nil
}

type poolKey struct {
	bits uint64
	wide bool
}

type emitter struct {
	f    *ir.Func
	tin  *types.Interner
	lay  *layout.Engine
	desc *target.Desc
	asg  *regalloc.Assignment

	buf       bytes.Buffer
	label     string
	savedGP   []string
	clobbered []string // caller-saved registers in use, saved around calls
	frameSub  int64
	pool      map[poolKey]string
	poolOrder []poolKey
	reloc     map[string]bool
}

func (e *emitter) prepare() {
	e.label = sanitize(e.f.Name)
	for _, r := range e.asg.UsedCalleeSaved {
		if !isXMM(r) {
			e.savedGP = append(e.savedGP, r)
		}
	}
	seen := make(map[string]bool)
	for _, loc := range e.asg.Locs {
		if loc.Kind != regalloc.LocReg || seen[loc.Reg] {
			continue
		}
		seen[loc.Reg] = true
		if r, ok := e.desc.RegByName(loc.Reg); ok && !r.CalleeSaved {
			e.clobbered = append(e.clobbered, loc.Reg)
		}
	}
	sort.Strings(e.clobbered)

	// Keep rsp 16-byte aligned: return address plus rbp push restore
	// alignment, so pushes and the frame area together must stay a
	// multiple of 16.
	total := int64(8*len(e.savedGP)) + e.asg.FrameBytes
	if rem := total % 16; rem != 0 {
		e.frameSub = e.asg.FrameBytes + (16 - rem)
	} else {
		e.frameSub = e.asg.FrameBytes
	}
}

func (e *emitter) emit() error {
	e.printf("\t.text")
	if e.f.Exported {
		e.printf("\t.globl %s", e.f.Name)
	}
	e.printf("%s:", e.f.Name)
	e.printf("\tpush rbp")
	e.printf("\tmov rbp, rsp")
	for _, r := range e.savedGP {
		e.printf("\tpush %s", r)
	}
	if e.frameSub > 0 {
		e.printf("\tsub rsp, %d", e.frameSub)
	}
	if err := e.emitParams(); err != nil {
		return err
	}

	for _, b := range ir.ReversePostorder(e.f) {
		e.printf(".L%s_b%d:", e.label, b)
		blk := &e.f.Blocks[b]
		for ii := range blk.Instrs {
			if err := e.instr(&blk.Instrs[ii]); err != nil {
				return fmt.Errorf("x64: %s block %d instr %d: %w", e.f.Name, b, ii, err)
			}
		}
		if err := e.terminator(blk.Term); err != nil {
			return fmt.Errorf("x64: %s block %d terminator: %w", e.f.Name, b, err)
		}
	}

	e.printf(".Lret_%s:", e.label)
	if e.frameSub > 0 {
		e.printf("\tadd rsp, %d", e.frameSub)
	}
	for i := len(e.savedGP) - 1; i >= 0; i-- {
		e.printf("\tpop %s", e.savedGP[i])
	}
	e.printf("\tpop rbp")
	e.printf("\tret")

	e.emitPool()
	return nil
}

// emitParams moves incoming arguments into their assigned homes. Params are
// processed in reverse declaration order: the only register that is both an
// argument register and allocatable is freed before any home write could
// clobber it.
func (e *emitter) emitParams() error {
	type incoming struct {
		local ir.LocalID
		reg   string // empty when passed on the stack
		slot  int    // stack slot index for overflow params
		fp    bool
	}
	var ins []incoming
	gp, fp, slot := 0, 0, 0
	for _, p := range e.f.Params {
		ty := e.typeOf(p)
		tt, ok := e.tin.Lookup(ty)
		if ok && tt.Kind == types.KindUnit {
			continue
		}
		if ok && (tt.Kind == types.KindNamed || tt.Kind == types.KindTuple || tt.Kind == types.KindArray) {
			return fmt.Errorf("aggregate parameter %s: pass by reference", e.f.Locals[p].Name)
		}
		if e.isFloat(ty) {
			if fp < len(e.desc.ArgsFP) {
				ins = append(ins, incoming{local: p, reg: e.desc.ArgsFP[fp], fp: true})
				fp++
			} else {
				ins = append(ins, incoming{local: p, slot: slot, fp: true})
				slot++
			}
			continue
		}
		if gp < len(e.desc.ArgsGP) {
			ins = append(ins, incoming{local: p, reg: e.desc.ArgsGP[gp]})
			gp++
		} else {
			ins = append(ins, incoming{local: p, slot: slot})
			slot++
		}
	}
	for i := len(ins) - 1; i >= 0; i-- {
		in := ins[i]
		loc := e.asg.Locs[in.local]
		if loc.Kind == regalloc.LocNone {
			continue
		}
		src := in.reg
		if src == "" {
			// Overflow arguments sit above the saved rbp and return
			// address.
			addr := fmt.Sprintf("[rbp%+d]", 16+8*in.slot)
			if in.fp {
				e.printf("\tmovsd xmm0, %s", memOperand(8, addr))
				src = "xmm0"
			} else {
				e.printf("\tmov rax, %s", memOperand(8, addr))
				src = "rax"
			}
		}
		switch loc.Kind {
		case regalloc.LocReg:
			if loc.Reg == src {
				break
			}
			if in.fp {
				e.printf("\tmovsd %s, %s", loc.Reg, src)
			} else {
				e.printf("\tmov %s, %s", loc.Reg, src)
			}
		case regalloc.LocStack:
			if in.fp {
				e.printf("\tmovsd %s, %s", memOperand(8, e.stackAddr(loc.Offset)), src)
			} else {
				e.printf("\tmov %s, %s", memOperand(8, e.stackAddr(loc.Offset)), src)
			}
		}
	}
	return nil
}

func (e *emitter) emitPool() {
	if len(e.poolOrder) == 0 {
		return
	}
	e.printf("\t.section .rodata")
	for i, k := range e.poolOrder {
		e.printf(".LC_%s_%d:", e.label, i)
		if k.wide {
			e.printf("\t.quad 0x%016x", k.bits)
		} else {
			e.printf("\t.long 0x%08x", uint32(k.bits))
		}
	}
	e.printf("\t.text")
}

func (e *emitter) printf(format string, args ...any) {
	fmt.Fprintf(&e.buf, format+"\n", args...)
}

func sanitize(name string) string {
	return strings.NewReplacer(".", "_", "/", "_", "-", "_").Replace(name)
}

// ---------------------------------------------------------------------------
// Types and storage

func (e *emitter) typeOf(l ir.LocalID) types.TypeID { return e.f.Locals[l].Type }

func (e *emitter) widthOf(ty types.TypeID) (int, error) {
	lo, err := e.lay.Of(ty)
	if err != nil {
		return 0, err
	}
	return lo.Size, nil
}

func (e *emitter) isFloat(ty types.TypeID) bool {
	tt, ok := e.tin.Lookup(ty)
	return ok && tt.Kind == types.KindFloat
}

func (e *emitter) isSigned(ty types.TypeID) bool {
	tt, ok := e.tin.Lookup(ty)
	return ok && tt.Kind == types.KindInt
}

// stackAddr translates a frame-base offset from the allocator into an
// rbp-relative operand: the callee-saved save area sits between rbp and the
// locals.
func (e *emitter) stackAddr(off int32) string {
	real := int(off) - 8*len(e.savedGP)
	return fmt.Sprintf("[rbp%+d]", real)
}

// valLoc is where a place's value currently is: a register, or a memory
// operand address.
type valLoc struct {
	reg  string
	addr string
	ty   types.TypeID
}

// resolvePlace locates a place. Projections may emit address arithmetic
// through rcx and rdx; rax and xmm0 stay untouched.
func (e *emitter) resolvePlace(p ir.Place) (valLoc, error) {
	ty := e.typeOf(p.Local)
	loc := e.asg.Locs[p.Local]
	if p.Direct() {
		switch loc.Kind {
		case regalloc.LocReg:
			return valLoc{reg: loc.Reg, ty: ty}, nil
		case regalloc.LocStack:
			return valLoc{addr: e.stackAddr(loc.Offset), ty: ty}, nil
		default:
			return valLoc{ty: ty}, nil
		}
	}

	// Establish a base address in rcx, then fold projections into a
	// displacement where they are static.
	disp := 0
	base := ""
	cur := ty
	for pi, proj := range p.Proj {
		switch proj.Kind {
		case ir.PlaceProjDeref:
			tt, ok := e.tin.Lookup(cur)
			if !ok || tt.Kind != types.KindRef {
				return valLoc{}, fmt.Errorf("deref of non-reference %s", e.tin.String(cur))
			}
			if pi == 0 {
				switch loc.Kind {
				case regalloc.LocReg:
					e.printf("\tmov rcx, %s", loc.Reg)
				case regalloc.LocStack:
					e.printf("\tmov rcx, %s", memOperand(8, e.stackAddr(loc.Offset)))
				default:
					return valLoc{}, fmt.Errorf("deref of storage-less local %d", p.Local)
				}
			} else {
				e.printf("\tmov rcx, %s", memOperand(8, fmt.Sprintf("[%s%+d]", base, disp)))
				disp = 0
			}
			base = "rcx"
			cur = tt.Elem
		case ir.PlaceProjField:
			if pi == 0 {
				if loc.Kind != regalloc.LocStack {
					return valLoc{}, fmt.Errorf("field access on non-memory local %d", p.Local)
				}
				base = "rbp"
				disp = int(loc.Offset) - 8*len(e.savedGP)
			}
			off, err := e.lay.FieldOffset(cur, proj.FieldIdx)
			if err != nil {
				return valLoc{}, err
			}
			disp += off
			cur, err = e.fieldType(cur, proj.FieldIdx)
			if err != nil {
				return valLoc{}, err
			}
		case ir.PlaceProjIndex:
			if pi == 0 {
				if loc.Kind != regalloc.LocStack {
					return valLoc{}, fmt.Errorf("index access on non-memory local %d", p.Local)
				}
				base = "rbp"
				disp = int(loc.Offset) - 8*len(e.savedGP)
			}
			stride, err := e.lay.ElemStride(cur)
			if err != nil {
				return valLoc{}, err
			}
			if base != "rcx" {
				e.printf("\tlea rcx, [%s%+d]", base, disp)
				base, disp = "rcx", 0
			} else if disp != 0 {
				e.printf("\tlea rcx, [rcx%+d]", disp)
				disp = 0
			}
			if err := e.loadIndex(proj.IndexLocal); err != nil {
				return valLoc{}, err
			}
			e.printf("\timul rdx, rdx, %d", stride)
			e.printf("\tadd rcx, rdx")
			tt, ok := e.tin.Lookup(cur)
			if !ok || tt.Kind != types.KindArray {
				return valLoc{}, fmt.Errorf("index of non-array %s", e.tin.String(cur))
			}
			cur = tt.Elem
		}
	}
	return valLoc{addr: fmt.Sprintf("[%s%+d]", base, disp), ty: cur}, nil
}

func (e *emitter) fieldType(ty types.TypeID, idx int) (types.TypeID, error) {
	if info, ok := e.tin.NamedInfoOf(ty); ok {
		if idx >= len(info.Fields) {
			return 0, fmt.Errorf("field %d out of range for %s", idx, e.tin.String(ty))
		}
		return info.Fields[idx].Type, nil
	}
	if info, ok := e.tin.TupleInfoOf(ty); ok {
		if idx >= len(info.Elems) {
			return 0, fmt.Errorf("element %d out of range for %s", idx, e.tin.String(ty))
		}
		return info.Elems[idx], nil
	}
	return 0, fmt.Errorf("field access on %s", e.tin.String(ty))
}

// loadIndex puts an index local's value, zero-extended, into rdx.
func (e *emitter) loadIndex(l ir.LocalID) error {
	loc := e.asg.Locs[l]
	w, err := e.widthOf(e.typeOf(l))
	if err != nil {
		return err
	}
	switch loc.Kind {
	case regalloc.LocReg:
		e.printf("\tmov rdx, %s", loc.Reg)
	case regalloc.LocStack:
		if w == 8 {
			e.printf("\tmov rdx, %s", memOperand(8, e.stackAddr(loc.Offset)))
		} else {
			e.printf("\tmovzx rdx, %s", memOperand(w, e.stackAddr(loc.Offset)))
		}
	default:
		return fmt.Errorf("index local %d has no storage", l)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Operand load/store through the scratch registers

var scratchGP = [2]string{"rax", "rcx"}
var scratchFP = [2]string{"xmm0", "xmm1"}

// loadOperand brings an operand's value into scratch slot 0 or 1 and
// returns the register holding it plus the value type. Slot 1 loads must
// not follow address arithmetic for slot 0 (rcx would be clobbered), so
// callers load slot 0 first.
func (e *emitter) loadOperand(o ir.Operand, slot int) (string, types.TypeID, error) {
	switch o.Kind {
	case ir.OperandConst:
		return e.loadConst(o.Const, slot)
	case ir.OperandCopy, ir.OperandMove:
		vl, err := e.resolvePlace(o.Place)
		if err != nil {
			return "", 0, err
		}
		return e.loadVal(vl, slot)
	}
	return "", 0, fmt.Errorf("unknown operand kind %d", o.Kind)
}

func (e *emitter) loadVal(vl valLoc, slot int) (string, types.TypeID, error) {
	w, err := e.widthOf(vl.ty)
	if err != nil {
		return "", 0, err
	}
	if e.isFloat(vl.ty) {
		dst := scratchFP[slot]
		mov := "movsd"
		if w == 4 {
			mov = "movss"
		}
		switch {
		case vl.reg != "":
			e.printf("\t%s %s, %s", mov, dst, vl.reg)
		case vl.addr != "":
			e.printf("\t%s %s, %s", mov, dst, memOperand(w, vl.addr))
		}
		return dst, vl.ty, nil
	}
	dst := scratchGP[slot]
	switch {
	case vl.reg != "":
		e.printf("\tmov %s, %s", sized(dst, w), sized(vl.reg, w))
	case vl.addr != "":
		e.printf("\tmov %s, %s", sized(dst, w), memOperand(w, vl.addr))
	}
	return dst, vl.ty, nil
}

func (e *emitter) loadConst(c ir.Const, slot int) (string, types.TypeID, error) {
	b := e.tin.Builtins()
	switch c.Kind {
	case ir.ConstBool:
		ty := b.Bool
		v := 0
		if c.BoolValue {
			v = 1
		}
		e.printf("\tmov %s, %d", sized(scratchGP[slot], 4), v)
		return scratchGP[slot], ty, nil
	case ir.ConstUnit:
		return "", b.Unit, nil
	case ir.ConstFloat:
		ty := c.Type
		if ty == types.NoTypeID {
			ty = b.F64
		}
		w, err := e.widthOf(ty)
		if err != nil {
			return "", 0, err
		}
		dst := scratchFP[slot]
		if w == 4 {
			lbl := e.poolLabel(uint64(math.Float32bits(float32(c.FloatValue))), false)
			e.printf("\tmovss %s, dword ptr [rip+%s]", dst, lbl)
		} else {
			lbl := e.poolLabel(math.Float64bits(c.FloatValue), true)
			e.printf("\tmovsd %s, qword ptr [rip+%s]", dst, lbl)
		}
		return dst, ty, nil
	case ir.ConstUint:
		ty := c.Type
		if ty == types.NoTypeID {
			ty = b.U64
		}
		e.printf("\tmov %s, %d", scratchGP[slot], c.UintValue)
		return scratchGP[slot], ty, nil
	default:
		ty := c.Type
		if ty == types.NoTypeID {
			ty = b.I64
		}
		e.printf("\tmov %s, %d", scratchGP[slot], c.IntValue)
		return scratchGP[slot], ty, nil
	}
}

func (e *emitter) poolLabel(bits uint64, wide bool) string {
	k := poolKey{bits: bits, wide: wide}
	if lbl, ok := e.pool[k]; ok {
		return lbl
	}
	lbl := fmt.Sprintf(".LC_%s_%d", e.label, len(e.poolOrder))
	e.pool[k] = lbl
	e.poolOrder = append(e.poolOrder, k)
	return lbl
}

// store writes scratch register src into the destination place.
func (e *emitter) store(dst ir.Place, src string, ty types.TypeID) error {
	vl, err := e.resolvePlace(dst)
	if err != nil {
		return err
	}
	w, err := e.widthOf(ty)
	if err != nil {
		return err
	}
	if e.isFloat(ty) {
		mov := "movsd"
		if w == 4 {
			mov = "movss"
		}
		switch {
		case vl.reg != "":
			e.printf("\t%s %s, %s", mov, vl.reg, src)
		case vl.addr != "":
			e.printf("\t%s %s, %s", mov, memOperand(w, vl.addr), src)
		}
		return nil
	}
	switch {
	case vl.reg != "":
		e.printf("\tmov %s, %s", sized(vl.reg, w), sized(src, w))
	case vl.addr != "":
		e.printf("\tmov %s, %s", memOperand(w, vl.addr), sized(src, w))
	}
	return nil
}
