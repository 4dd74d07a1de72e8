package types

import (
	"fmt"
	"slices"

	"fortio.org/safecast"
)

// TupleInfo stores element types for tuple types.
type TupleInfo struct {
	Elems []TypeID
}

// RegisterTuple creates or finds a tuple type.
func (in *Interner) RegisterTuple(elems []TypeID) TypeID {
	for id := TypeID(1); int(id) < len(in.types); id++ {
		tt := in.types[id]
		if tt.Kind != KindTuple {
			continue
		}
		if slices.Equal(in.tuples[tt.Payload].Elems, elems) {
			return id
		}
	}
	in.tuples = append(in.tuples, TupleInfo{Elems: slices.Clone(elems)})
	slot, err := safecast.Conv[uint32](len(in.tuples) - 1)
	if err != nil {
		panic(fmt.Errorf("tuple info overflow: %w", err))
	}
	return in.internRaw(Type{Kind: KindTuple, Payload: slot})
}

// TupleInfoOf retrieves tuple metadata by TypeID.
func (in *Interner) TupleInfoOf(id TypeID) (*TupleInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindTuple {
		return nil, false
	}
	return &in.tuples[tt.Payload], true
}
