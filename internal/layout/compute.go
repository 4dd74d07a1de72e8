package layout

import (
	"fmt"

	"kiln/internal/types"
)

func (e *Engine) compute(id types.TypeID) (TypeLayout, error) {
	if id == types.NoTypeID {
		return TypeLayout{Size: 0, Align: 1}, nil
	}
	tt, ok := e.Types.Lookup(id)
	if !ok {
		return TypeLayout{}, fmt.Errorf("layout: unknown TypeID %d", id)
	}

	switch tt.Kind {
	case types.KindUnit:
		return TypeLayout{Size: 0, Align: 1}, nil

	case types.KindBool:
		return TypeLayout{Size: 1, Align: 1}, nil

	case types.KindInt, types.KindUint, types.KindFloat:
		if tt.Width == types.WidthAny {
			return TypeLayout{}, fmt.Errorf("layout: %s has no fixed width", e.Types.String(id))
		}
		n := int(tt.Width) / 8
		return TypeLayout{Size: n, Align: n}, nil

	case types.KindRef, types.KindFn:
		return TypeLayout{Size: e.PtrSize, Align: e.PtrAlign}, nil

	case types.KindArray:
		if tt.Count == types.ArrayUnknownLength {
			return TypeLayout{}, fmt.Errorf("layout: array %s has uninferred length", e.Types.String(id))
		}
		el, err := e.Of(tt.Elem)
		if err != nil {
			return TypeLayout{}, err
		}
		stride := alignUp(el.Size, el.Align)
		return TypeLayout{Size: stride * int(tt.Count), Align: el.Align}, nil

	case types.KindTuple:
		info, _ := e.Types.TupleInfoOf(id)
		return e.recordLayout(info.Elems)

	case types.KindNamed:
		info, _ := e.Types.NamedInfoOf(id)
		fields := make([]types.TypeID, len(info.Fields))
		for i := range info.Fields {
			fields[i] = info.Fields[i].Type
		}
		return e.recordLayout(fields)

	case types.KindVar:
		return TypeLayout{}, fmt.Errorf("layout: unresolved inference variable %s", e.Types.String(id))

	default:
		return TypeLayout{}, fmt.Errorf("layout: unsupported kind %v", tt.Kind)
	}
}

// recordLayout lays fields out in declaration order with natural alignment,
// padding between fields and at the tail.
func (e *Engine) recordLayout(fields []types.TypeID) (TypeLayout, error) {
	offsets := make([]int, len(fields))
	size := 0
	align := 1
	for i, f := range fields {
		fl, err := e.Of(f)
		if err != nil {
			return TypeLayout{}, err
		}
		size = alignUp(size, fl.Align)
		offsets[i] = size
		size += fl.Size
		if fl.Align > align {
			align = fl.Align
		}
	}
	size = alignUp(size, align)
	return TypeLayout{Size: size, Align: align, FieldOffsets: offsets}, nil
}
