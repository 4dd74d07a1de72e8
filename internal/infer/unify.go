package infer

import (
	"fmt"

	"kiln/internal/diag"
	"kiln/internal/types"
)

// UnifyError explains why two types refused to unify. Left and Right are
// resolved under the substitution at the moment of failure.
type UnifyError struct {
	Code  diag.Code
	Left  types.TypeID
	Right types.TypeID
	Msg   string
}

func (e *UnifyError) Error() string { return e.Msg }

// Unifier solves type equations into a shared substitution. It is not safe
// for concurrent use; every function body gets its own.
type Unifier struct {
	Types *types.Interner
	Subst *Subst
}

func NewUnifier(tin *types.Interner) *Unifier {
	return &Unifier{Types: tin, Subst: NewSubst()}
}

// Unify makes a and b equal under the substitution, binding variables as
// needed, or reports why it cannot. On failure the substitution keeps any
// bindings made before the conflict.
func (u *Unifier) Unify(a, b types.TypeID) *UnifyError {
	a = u.Subst.Resolve(u.Types, a)
	b = u.Subst.Resolve(u.Types, b)
	if a == b {
		return nil
	}
	ta, okA := u.Types.Lookup(a)
	tb, okB := u.Types.Lookup(b)
	if !okA || !okB {
		return u.mismatch(a, b)
	}
	if ta.Kind == types.KindVar {
		return u.bindVar(ta.Payload, a, b)
	}
	if tb.Kind == types.KindVar {
		return u.bindVar(tb.Payload, b, a)
	}
	if ta.Kind != tb.Kind {
		return u.mismatch(a, b)
	}
	switch ta.Kind {
	case types.KindRef:
		if ta.Mutable != tb.Mutable {
			return &UnifyError{
				Code: diag.TypeMutabilityMismatch, Left: a, Right: b,
				Msg: fmt.Sprintf("reference mutability mismatch: %s vs %s",
					u.Types.String(a), u.Types.String(b)),
			}
		}
		return u.Unify(ta.Elem, tb.Elem)
	case types.KindArray:
		// An unknown length unifies with any concrete length.
		if ta.Count != tb.Count &&
			ta.Count != types.ArrayUnknownLength &&
			tb.Count != types.ArrayUnknownLength {
			return &UnifyError{
				Code: diag.TypeArraySizeMismatch, Left: a, Right: b,
				Msg: fmt.Sprintf("array length mismatch: %s vs %s",
					u.Types.String(a), u.Types.String(b)),
			}
		}
		return u.Unify(ta.Elem, tb.Elem)
	case types.KindTuple:
		ia, _ := u.Types.TupleInfoOf(a)
		ib, _ := u.Types.TupleInfoOf(b)
		if len(ia.Elems) != len(ib.Elems) {
			return &UnifyError{
				Code: diag.TypeTupleSizeMismatch, Left: a, Right: b,
				Msg: fmt.Sprintf("tuple size mismatch: %s has %d elements, %s has %d",
					u.Types.String(a), len(ia.Elems), u.Types.String(b), len(ib.Elems)),
			}
		}
		for i := range ia.Elems {
			if err := u.Unify(ia.Elems[i], ib.Elems[i]); err != nil {
				return err
			}
		}
		return nil
	case types.KindFn:
		ia, _ := u.Types.FnInfoOf(a)
		ib, _ := u.Types.FnInfoOf(b)
		if len(ia.Params) != len(ib.Params) {
			return &UnifyError{
				Code: diag.TypeArityMismatch, Left: a, Right: b,
				Msg: fmt.Sprintf("function arity mismatch: %s vs %s",
					u.Types.String(a), u.Types.String(b)),
			}
		}
		for i := range ia.Params {
			if err := u.Unify(ia.Params[i], ib.Params[i]); err != nil {
				return err
			}
		}
		return u.Unify(ia.Result, ib.Result)
	case types.KindNamed:
		ia, _ := u.Types.NamedInfoOf(a)
		ib, _ := u.Types.NamedInfoOf(b)
		if ia.Name != ib.Name {
			return u.mismatch(a, b)
		}
		if len(ia.Args) != len(ib.Args) {
			return &UnifyError{
				Code: diag.TypeGenericArityMismatch, Left: a, Right: b,
				Msg: fmt.Sprintf("%s expects %d generic arguments, got %d",
					ia.Name, len(ia.Args), len(ib.Args)),
			}
		}
		for i := range ia.Args {
			if err := u.Unify(ia.Args[i], ib.Args[i]); err != nil {
				return err
			}
		}
		return nil
	default:
		// Scalars with equal descriptors share an id; reaching here means
		// the widths differ.
		return u.mismatch(a, b)
	}
}

func (u *Unifier) bindVar(v uint32, a, b types.TypeID) *UnifyError {
	if occursIn(u.Types, u.Subst, v, b) {
		return &UnifyError{
			Code: diag.TypeInfinite, Left: a, Right: b,
			Msg: fmt.Sprintf("cannot construct the infinite type %s = %s",
				u.Types.String(a), u.Types.String(b)),
		}
	}
	u.Subst.Bind(v, b)
	return nil
}

func (u *Unifier) mismatch(a, b types.TypeID) *UnifyError {
	return &UnifyError{
		Code: diag.TypeMismatch, Left: a, Right: b,
		Msg: fmt.Sprintf("type mismatch: expected %s, got %s",
			u.Types.String(a), u.Types.String(b)),
	}
}
