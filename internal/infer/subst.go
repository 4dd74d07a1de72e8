package infer

import (
	"slices"

	"kiln/internal/types"
)

// Subst maps inference variable ids to the types they resolved to. Bindings
// may chain through further variables; Apply chases chains and rebuilds
// composite types bottom-up through the interner.
type Subst struct {
	bindings map[uint32]types.TypeID
}

func NewSubst() *Subst {
	return &Subst{bindings: make(map[uint32]types.TypeID, 16)}
}

// Bind records v := to. The caller runs the occurs check first.
func (s *Subst) Bind(v uint32, to types.TypeID) {
	s.bindings[v] = to
}

// Binding returns the direct binding for a variable id, if any.
func (s *Subst) Binding(v uint32) (types.TypeID, bool) {
	to, ok := s.bindings[v]
	return to, ok
}

// Resolve chases variable bindings until it hits a non-variable type or an
// unbound variable. It does not descend into composites.
func (s *Subst) Resolve(tin *types.Interner, id types.TypeID) types.TypeID {
	for {
		tt, ok := tin.Lookup(id)
		if !ok || tt.Kind != types.KindVar {
			return id
		}
		next, ok := s.bindings[tt.Payload]
		if !ok {
			return id
		}
		id = next
	}
}

// Apply substitutes through the whole type. Composites whose parts changed
// are re-interned; untouched types keep their id.
func (s *Subst) Apply(tin *types.Interner, id types.TypeID) types.TypeID {
	id = s.Resolve(tin, id)
	tt, ok := tin.Lookup(id)
	if !ok {
		return id
	}
	switch tt.Kind {
	case types.KindRef:
		elem := s.Apply(tin, tt.Elem)
		if elem == tt.Elem {
			return id
		}
		return tin.Intern(types.MakeRef(elem, tt.Mutable, tt.Region))
	case types.KindArray:
		elem := s.Apply(tin, tt.Elem)
		if elem == tt.Elem {
			return id
		}
		return tin.Intern(types.MakeArray(elem, tt.Count))
	case types.KindTuple:
		info, _ := tin.TupleInfoOf(id)
		elems, changed := s.applyAll(tin, info.Elems)
		if !changed {
			return id
		}
		return tin.RegisterTuple(elems)
	case types.KindFn:
		info, _ := tin.FnInfoOf(id)
		params, changed := s.applyAll(tin, info.Params)
		result := s.Apply(tin, info.Result)
		if !changed && result == info.Result {
			return id
		}
		return tin.RegisterFn(params, result)
	case types.KindNamed:
		info, _ := tin.NamedInfoOf(id)
		args, changed := s.applyAll(tin, info.Args)
		if !changed {
			return id
		}
		fields := slices.Clone(info.Fields)
		for i := range fields {
			fields[i].Type = s.Apply(tin, fields[i].Type)
		}
		return tin.RegisterNamed(types.NamedInfo{
			Name:   info.Name,
			Args:   args,
			Fields: fields,
			Linear: info.Linear,
		})
	default:
		return id
	}
}

func (s *Subst) applyAll(tin *types.Interner, ids []types.TypeID) ([]types.TypeID, bool) {
	changed := false
	out := ids
	for i, id := range ids {
		applied := s.Apply(tin, id)
		if applied == id {
			continue
		}
		if !changed {
			out = slices.Clone(ids)
			changed = true
		}
		out[i] = applied
	}
	return out, changed
}

// occursIn reports whether variable v appears anywhere inside id under the
// current substitution. Binding a variable to a type containing itself would
// build an infinite type.
func occursIn(tin *types.Interner, s *Subst, v uint32, id types.TypeID) bool {
	id = s.Resolve(tin, id)
	tt, ok := tin.Lookup(id)
	if !ok {
		return false
	}
	switch tt.Kind {
	case types.KindVar:
		return tt.Payload == v
	case types.KindRef, types.KindArray:
		return occursIn(tin, s, v, tt.Elem)
	case types.KindTuple:
		info, _ := tin.TupleInfoOf(id)
		for _, e := range info.Elems {
			if occursIn(tin, s, v, e) {
				return true
			}
		}
	case types.KindFn:
		info, _ := tin.FnInfoOf(id)
		for _, p := range info.Params {
			if occursIn(tin, s, v, p) {
				return true
			}
		}
		return occursIn(tin, s, v, info.Result)
	case types.KindNamed:
		info, _ := tin.NamedInfoOf(id)
		for _, a := range info.Args {
			if occursIn(tin, s, v, a) {
				return true
			}
		}
	}
	return false
}

// FreeVars collects the unbound variable ids inside id, in first-seen order.
func FreeVars(tin *types.Interner, s *Subst, id types.TypeID) []uint32 {
	var out []uint32
	seen := make(map[uint32]bool)
	var walk func(types.TypeID)
	walk = func(id types.TypeID) {
		id = s.Resolve(tin, id)
		tt, ok := tin.Lookup(id)
		if !ok {
			return
		}
		switch tt.Kind {
		case types.KindVar:
			if !seen[tt.Payload] {
				seen[tt.Payload] = true
				out = append(out, tt.Payload)
			}
		case types.KindRef, types.KindArray:
			walk(tt.Elem)
		case types.KindTuple:
			info, _ := tin.TupleInfoOf(id)
			for _, e := range info.Elems {
				walk(e)
			}
		case types.KindFn:
			info, _ := tin.FnInfoOf(id)
			for _, p := range info.Params {
				walk(p)
			}
			walk(info.Result)
		case types.KindNamed:
			info, _ := tin.NamedInfoOf(id)
			for _, a := range info.Args {
				walk(a)
			}
		}
	}
	walk(id)
	return out
}
