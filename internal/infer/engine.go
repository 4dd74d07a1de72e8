// Package infer implements type inference over function bodies: Robinson
// unification with an occurs check, fed by four evidence sources in
// decreasing certainty (annotations, structure, signatures, patterns).
// Inference never mutates the body beyond attaching resolved types to its
// locals, so function bodies can be checked in parallel against a shared
// read-only symbol table.
package infer

import (
	"fmt"

	"fortio.org/safecast"

	"kiln/internal/diag"
	"kiln/internal/ir"
	"kiln/internal/source"
	"kiln/internal/symbols"
	"kiln/internal/types"
)

// Scheme is a polymorphic type: a body quantified over the variables still
// free at a module-level let binding. Generalization happens only there;
// anywhere else a residual variable is a hard error.
type Scheme struct {
	Quantified []uint32
	Body       types.TypeID
}

// Instantiate replaces every quantified variable with a fresh one.
func Instantiate(tin *types.Interner, sc Scheme) types.TypeID {
	if len(sc.Quantified) == 0 {
		return sc.Body
	}
	s := NewSubst()
	for _, v := range sc.Quantified {
		s.Bind(v, tin.FreshVar())
	}
	return s.Apply(tin, sc.Body)
}

// Result carries the outcome of inference for one function.
type Result struct {
	// LocalTypes is the fully substituted type per local, indexed by
	// LocalID. Mirrors what was attached to the function's locals.
	LocalTypes []types.TypeID
	// Evidence records the strongest source each local's type came from.
	Evidence []Evidence
	// Schemes holds the generalized types of module-level let bindings.
	Schemes map[ir.LocalID]Scheme
	// Ok is false when any error diagnostic was reported.
	Ok bool
}

// Certainty returns the confidence attached to a local's inferred type.
func (r *Result) Certainty(l ir.LocalID) float64 {
	if int(l) >= len(r.Evidence) {
		return 0
	}
	return r.Evidence[l].Certainty()
}

// Check runs inference over one function body and attaches resolved types
// to its locals. Errors are reported exhaustively: a failed constraint does
// not stop the walk.
func Check(f *ir.Func, tin *types.Interner, syms *symbols.Table, rep diag.Reporter) *Result {
	e := &engine{
		f:    f,
		tin:  tin,
		syms: syms,
		rep:  rep,
		uni:  NewUnifier(tin),
		tys:  make([]types.TypeID, len(f.Locals)),
		ev:   make([]Evidence, len(f.Locals)),
	}
	e.seed()
	for _, b := range ir.ReversePostorder(f) {
		e.checkBlock(&f.Blocks[b])
	}
	return e.finish()
}

type engine struct {
	f    *ir.Func
	tin  *types.Interner
	syms *symbols.Table
	rep  diag.Reporter
	uni  *Unifier

	tys []types.TypeID
	ev  []Evidence
	bad bool
}

// seed assigns every local its starting type: the annotation when declared,
// a fresh variable otherwise.
func (e *engine) seed() {
	for i := range e.f.Locals {
		l := &e.f.Locals[i]
		if l.Declared != types.NoTypeID {
			e.tys[i] = l.Declared
			e.ev[i] = EvidenceAnnotation
		} else {
			e.tys[i] = e.tin.FreshVar()
		}
	}
}

func (e *engine) checkBlock(b *ir.Block) {
	for i := range b.Instrs {
		e.checkInstr(&b.Instrs[i])
	}
	e.checkTerm(b.Term)
}

func (e *engine) checkInstr(in *ir.Instr) {
	sp := e.spanOf(in)
	switch in.Kind {
	case ir.InstrAssign:
		rty, rev, ok := e.rvalueType(&in.Assign.Src, sp)
		if !ok {
			return
		}
		dty, ok := e.placeType(in.Assign.Dst, sp)
		if !ok {
			return
		}
		e.unifyAssign(in.Assign.Dst, dty, rty, rev, sp)
	case ir.InstrCall:
		e.checkCall(&in.Call, sp)
	case ir.InstrDestructure:
		e.checkDestructure(&in.Destructure, sp)
	case ir.InstrDrop, ir.InstrEndBorrow, ir.InstrNop:
		// Ownership bookkeeping; nothing to type.
	}
}

// unifyAssign constrains a destination place against the incoming type and
// records the evidence on the base local.
func (e *engine) unifyAssign(dst ir.Place, dty, rty types.TypeID, rev Evidence, sp source.Span) {
	if err := e.uni.Unify(dty, rty); err != nil {
		code := err.Code
		local := &e.f.Locals[dst.Local]
		if dst.Direct() && local.Declared != types.NoTypeID && code == diag.TypeMismatch {
			code = diag.TypeAnnotationConflict
		}
		diag.ReportError(e.rep, code, sp, err.Msg).
			WithNote(local.Span, fmt.Sprintf("%s declared here", local.Name)).
			Emit()
		e.bad = true
		return
	}
	e.noteEvidence(dst.Local, rev)
}

func (e *engine) checkCall(call *ir.CallInstr, sp source.Span) {
	sig, _, ok := e.syms.Lookup(call.Callee)
	if !ok {
		e.errorf(diag.TypeUnknownCallee, sp, "unknown function %q", call.Callee)
		return
	}
	if len(call.Args) != len(sig.Params) {
		diag.ReportError(e.rep, diag.TypeArityMismatch, sp,
			fmt.Sprintf("%s expects %d arguments, got %d", sig.Name, len(sig.Params), len(call.Args))).
			WithNote(sig.Span, "declared here").
			Emit()
		e.bad = true
		return
	}
	for i, arg := range call.Args {
		aty, _, ok := e.operandType(arg, sp)
		if !ok {
			continue
		}
		if err := e.uni.Unify(sig.Params[i], aty); err != nil {
			diag.ReportError(e.rep, err.Code, sp,
				fmt.Sprintf("argument %d to %s: %s", i+1, sig.Name, err.Msg)).
				WithNote(sig.Span, "declared here").
				Emit()
			e.bad = true
			continue
		}
		if arg.Kind != ir.OperandConst {
			e.noteEvidence(arg.Place.Local, EvidenceContract)
		}
	}
	if !call.HasDst {
		return
	}
	dty, ok := e.placeType(call.Dst, sp)
	if !ok {
		return
	}
	result := sig.Result
	if result == types.NoTypeID {
		result = e.tin.Builtins().Unit
	}
	e.unifyAssign(call.Dst, dty, result, EvidenceContract, sp)
}

// checkDestructure types a tuple pattern: the source must be a tuple of as
// many elements as there are destinations, and each destination takes the
// matching element type.
func (e *engine) checkDestructure(d *ir.DestructureInstr, sp source.Span) {
	sty, _, ok := e.operandType(d.Src, sp)
	if !ok {
		return
	}
	elems := make([]types.TypeID, len(d.Dsts))
	for i, dst := range d.Dsts {
		dty, ok := e.placeType(dst, sp)
		if !ok {
			return
		}
		elems[i] = dty
	}
	if err := e.uni.Unify(e.tin.RegisterTuple(elems), sty); err != nil {
		e.report(err, sp)
		return
	}
	for _, dst := range d.Dsts {
		e.noteEvidence(dst.Local, EvidencePattern)
	}
}

func (e *engine) checkTerm(t ir.Terminator) {
	sp := t.Span
	if sp.Empty() {
		sp = e.f.Span
	}
	switch t.Kind {
	case ir.TermReturn:
		expected := e.f.Result
		if expected == types.NoTypeID {
			expected = e.tin.Builtins().Unit
		}
		if !t.Return.HasValue {
			if resolved := e.uni.Subst.Apply(e.tin, expected); resolved != e.tin.Builtins().Unit {
				e.errorf(diag.TypeMismatch, sp,
					"function returns %s but return carries no value", e.tin.String(resolved))
			}
			return
		}
		vty, _, ok := e.operandType(t.Return.Value, sp)
		if !ok {
			return
		}
		if err := e.uni.Unify(expected, vty); err != nil {
			e.errorf(err.Code, sp, "return value: %s", err.Msg)
		}
	case ir.TermIf:
		cty, _, ok := e.operandType(t.If.Cond, sp)
		if !ok {
			return
		}
		if err := e.uni.Unify(e.tin.Builtins().Bool, cty); err != nil {
			e.errorf(err.Code, sp, "branch condition: %s", err.Msg)
		}
	}
}

// rvalueType computes the type produced by an rvalue, emitting constraints
// along the way.
func (e *engine) rvalueType(rv *ir.RValue, sp source.Span) (types.TypeID, Evidence, bool) {
	switch rv.Kind {
	case ir.RValueUse:
		return e.operandType(rv.Use, sp)
	case ir.RValueUnary:
		oty, _, ok := e.operandType(rv.Unary.Operand, sp)
		if !ok {
			return types.NoTypeID, EvidenceNone, false
		}
		if rv.Unary.Op == ir.OpNot {
			boolTy := e.tin.Builtins().Bool
			if err := e.uni.Unify(boolTy, oty); err != nil {
				e.report(err, sp)
				return types.NoTypeID, EvidenceNone, false
			}
			return boolTy, EvidenceStructural, true
		}
		return oty, EvidenceStructural, true
	case ir.RValueBinary:
		lty, _, ok := e.operandType(rv.Binary.Left, sp)
		if !ok {
			return types.NoTypeID, EvidenceNone, false
		}
		rty, _, ok := e.operandType(rv.Binary.Right, sp)
		if !ok {
			return types.NoTypeID, EvidenceNone, false
		}
		if err := e.uni.Unify(lty, rty); err != nil {
			diag.ReportError(e.rep, err.Code, sp,
				fmt.Sprintf("operands of %s: %s", rv.Binary.Op, err.Msg)).Emit()
			e.bad = true
			return types.NoTypeID, EvidenceNone, false
		}
		if rv.Binary.Op.IsComparison() {
			return e.tin.Builtins().Bool, EvidenceStructural, true
		}
		return lty, EvidenceStructural, true
	case ir.RValueRef:
		pty, ok := e.placeType(rv.Ref.Place, sp)
		if !ok {
			return types.NoTypeID, EvidenceNone, false
		}
		return e.tin.Intern(types.MakeRef(pty, rv.Ref.Mutable, types.NoRegionID)), EvidenceStructural, true
	case ir.RValueTuple:
		elems := make([]types.TypeID, len(rv.Tuple.Elems))
		for i, o := range rv.Tuple.Elems {
			oty, _, ok := e.operandType(o, sp)
			if !ok {
				return types.NoTypeID, EvidenceNone, false
			}
			elems[i] = oty
		}
		return e.tin.RegisterTuple(elems), EvidenceStructural, true
	case ir.RValueArray:
		return e.arrayType(&rv.Array, sp)
	case ir.RValueStruct:
		return e.structType(&rv.Struct, sp)
	case ir.RValueCast:
		if _, _, ok := e.operandType(rv.Cast.Value, sp); !ok {
			return types.NoTypeID, EvidenceNone, false
		}
		return rv.Cast.Target, EvidenceStructural, true
	default:
		return types.NoTypeID, EvidenceNone, false
	}
}

// arrayType types an array literal: all elements unify, the length is the
// element count.
func (e *engine) arrayType(agg *ir.AggregateRV, sp source.Span) (types.TypeID, Evidence, bool) {
	elem := e.tin.FreshVar()
	for _, o := range agg.Elems {
		oty, _, ok := e.operandType(o, sp)
		if !ok {
			return types.NoTypeID, EvidenceNone, false
		}
		if err := e.uni.Unify(elem, oty); err != nil {
			diag.ReportError(e.rep, err.Code, sp,
				fmt.Sprintf("array elements disagree: %s", err.Msg)).Emit()
			e.bad = true
			return types.NoTypeID, EvidenceNone, false
		}
	}
	count, err := safecast.Conv[uint32](len(agg.Elems))
	if err != nil {
		panic(fmt.Errorf("array length overflow: %w", err))
	}
	return e.tin.Intern(types.MakeArray(elem, count)), EvidenceStructural, true
}

func (e *engine) structType(st *ir.StructRV, sp source.Span) (types.TypeID, Evidence, bool) {
	info, ok := e.tin.NamedInfoOf(st.Type)
	if !ok {
		e.errorf(diag.TypeMismatch, sp, "%s is not a named aggregate", e.tin.String(st.Type))
		return types.NoTypeID, EvidenceNone, false
	}
	if len(st.Fields) != len(info.Fields) {
		e.errorf(diag.TypeArityMismatch, sp,
			"%s has %d fields, literal provides %d", info.Name, len(info.Fields), len(st.Fields))
		return types.NoTypeID, EvidenceNone, false
	}
	for i, o := range st.Fields {
		oty, _, ok := e.operandType(o, sp)
		if !ok {
			return types.NoTypeID, EvidenceNone, false
		}
		if err := e.uni.Unify(info.Fields[i].Type, oty); err != nil {
			diag.ReportError(e.rep, err.Code, sp,
				fmt.Sprintf("field %s of %s: %s", info.Fields[i].Name, info.Name, err.Msg)).Emit()
			e.bad = true
			return types.NoTypeID, EvidenceNone, false
		}
	}
	return st.Type, EvidenceStructural, true
}

func (e *engine) operandType(o ir.Operand, sp source.Span) (types.TypeID, Evidence, bool) {
	switch o.Kind {
	case ir.OperandConst:
		ty, ev := e.constType(o.Const)
		return ty, ev, true
	case ir.OperandCopy, ir.OperandMove:
		ty, ok := e.placeType(o.Place, sp)
		return ty, EvidenceStructural, ok
	default:
		return types.NoTypeID, EvidenceNone, false
	}
}

// constType types a literal. Typed literals carry their suffix type;
// untyped numeric literals only mint a variable the context must pin down,
// so they contribute no structural evidence of their own.
func (e *engine) constType(c ir.Const) (types.TypeID, Evidence) {
	if c.Type != types.NoTypeID {
		return c.Type, EvidenceStructural
	}
	switch c.Kind {
	case ir.ConstBool:
		return e.tin.Builtins().Bool, EvidenceStructural
	case ir.ConstUnit:
		return e.tin.Builtins().Unit, EvidenceStructural
	default:
		return e.tin.FreshVar(), EvidenceNone
	}
}

// placeType walks a place's projections under the current substitution.
// Projecting through a still-unresolved type is an error: field and element
// access need the base shape known.
func (e *engine) placeType(p ir.Place, sp source.Span) (types.TypeID, bool) {
	ty := e.tys[p.Local]
	for _, proj := range p.Proj {
		resolved := e.uni.Subst.Resolve(e.tin, ty)
		tt, ok := e.tin.Lookup(resolved)
		if !ok || tt.Kind == types.KindVar {
			e.errorf(diag.TypeCannotInfer, sp,
				"cannot project through unresolved type of %s", e.localName(p.Local))
			return types.NoTypeID, false
		}
		switch proj.Kind {
		case ir.PlaceProjDeref:
			if tt.Kind != types.KindRef {
				e.errorf(diag.TypeMismatch, sp, "cannot dereference %s", e.tin.String(resolved))
				return types.NoTypeID, false
			}
			ty = tt.Elem
		case ir.PlaceProjField:
			info, ok := e.tin.NamedInfoOf(resolved)
			if !ok || proj.FieldIdx >= len(info.Fields) {
				e.errorf(diag.TypeMismatch, sp, "%s has no field %d", e.tin.String(resolved), proj.FieldIdx)
				return types.NoTypeID, false
			}
			ty = info.Fields[proj.FieldIdx].Type
		case ir.PlaceProjIndex:
			if tt.Kind != types.KindArray {
				e.errorf(diag.TypeMismatch, sp, "cannot index %s", e.tin.String(resolved))
				return types.NoTypeID, false
			}
			if proj.IndexLocal.IsValid() {
				if err := e.uni.Unify(e.tin.Builtins().U64, e.tys[proj.IndexLocal]); err != nil {
					e.errorf(err.Code, sp, "array index: %s", err.Msg)
					return types.NoTypeID, false
				}
				e.noteEvidence(proj.IndexLocal, EvidenceStructural)
			}
			ty = tt.Elem
		}
	}
	return ty, true
}

// finish applies the final substitution, attaches types to the function's
// locals and flags every binding inference could not pin down. Module-level
// lets generalize over their residual variables instead of failing.
func (e *engine) finish() *Result {
	res := &Result{
		LocalTypes: make([]types.TypeID, len(e.f.Locals)),
		Evidence:   e.ev,
	}
	for i := range e.f.Locals {
		l := &e.f.Locals[i]
		final := e.uni.Subst.Apply(e.tin, e.tys[i])
		free := FreeVars(e.tin, e.uni.Subst, final)
		if len(free) > 0 {
			if l.Flags&ir.LocalFlagModuleLet != 0 {
				if res.Schemes == nil {
					res.Schemes = make(map[ir.LocalID]Scheme)
				}
				res.Schemes[ir.LocalID(i)] = Scheme{Quantified: free, Body: final}
			} else {
				diag.ReportError(e.rep, diag.TypeCannotInfer, l.Span,
					fmt.Sprintf("cannot infer the type of %s", l.Name)).
					WithFix(fmt.Sprintf("annotate %s with its intended type", l.Name)).
					Emit()
				e.bad = true
			}
		}
		res.LocalTypes[i] = final
		l.Type = final
	}
	res.Ok = !e.bad
	return res
}

func (e *engine) noteEvidence(l ir.LocalID, ev Evidence) {
	if l.IsValid() && ev > e.ev[l] {
		e.ev[l] = ev
	}
}

func (e *engine) spanOf(in *ir.Instr) source.Span {
	if !in.Span.Empty() {
		return in.Span
	}
	return e.f.Span
}

func (e *engine) localName(l ir.LocalID) string {
	if !l.IsValid() || int(l) >= len(e.f.Locals) {
		return "<local>"
	}
	if n := e.f.Locals[l].Name; n != "" {
		return n
	}
	return fmt.Sprintf("_%d", l)
}

func (e *engine) report(err *UnifyError, sp source.Span) {
	diag.ReportError(e.rep, err.Code, sp, err.Msg).Emit()
	e.bad = true
}

func (e *engine) errorf(code diag.Code, sp source.Span, format string, args ...any) {
	diag.ReportError(e.rep, code, sp, fmt.Sprintf(format, args...)).Emit()
	e.bad = true
}
