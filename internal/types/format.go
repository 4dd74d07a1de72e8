package types

import (
	"fmt"
	"strings"
)

// String renders a human-readable form of the type for diagnostics.
func (in *Interner) String(id TypeID) string {
	tt, ok := in.Lookup(id)
	if !ok {
		return "<invalid>"
	}
	switch tt.Kind {
	case KindUnit:
		return "()"
	case KindBool:
		return "bool"
	case KindInt:
		return fmt.Sprintf("i%d", tt.Width)
	case KindUint:
		return fmt.Sprintf("u%d", tt.Width)
	case KindFloat:
		return fmt.Sprintf("f%d", tt.Width)
	case KindVar:
		return fmt.Sprintf("'t%d", tt.Payload)
	case KindRef:
		if tt.Mutable {
			return "&mut " + in.String(tt.Elem)
		}
		return "&" + in.String(tt.Elem)
	case KindArray:
		if tt.Count == ArrayUnknownLength {
			return fmt.Sprintf("[%s; _]", in.String(tt.Elem))
		}
		return fmt.Sprintf("[%s; %d]", in.String(tt.Elem), tt.Count)
	case KindTuple:
		info, _ := in.TupleInfoOf(id)
		parts := make([]string, len(info.Elems))
		for i, e := range info.Elems {
			parts[i] = in.String(e)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case KindFn:
		info, _ := in.FnInfoOf(id)
		parts := make([]string, len(info.Params))
		for i, p := range info.Params {
			parts[i] = in.String(p)
		}
		return "fn(" + strings.Join(parts, ", ") + ") -> " + in.String(info.Result)
	case KindNamed:
		info, _ := in.NamedInfoOf(id)
		if len(info.Args) == 0 {
			return info.Name
		}
		parts := make([]string, len(info.Args))
		for i, a := range info.Args {
			parts[i] = in.String(a)
		}
		return info.Name + "<" + strings.Join(parts, ", ") + ">"
	default:
		return "<invalid>"
	}
}
