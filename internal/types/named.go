package types

import (
	"fmt"
	"slices"

	"fortio.org/safecast"
)

// Field describes one field of a named aggregate.
type Field struct {
	Name string
	Type TypeID
}

// NamedInfo stores metadata for named aggregates (structs and enums).
// Linear marks the linear ownership kind: values must be consumed exactly
// once.
type NamedInfo struct {
	Name   string
	Args   []TypeID // generic arguments, positional
	Fields []Field
	Linear bool
}

// RegisterNamed creates or finds a named aggregate type. Two named types are
// the same type only when base name and generic arguments both match.
func (in *Interner) RegisterNamed(info NamedInfo) TypeID {
	for id := TypeID(1); int(id) < len(in.types); id++ {
		tt := in.types[id]
		if tt.Kind != KindNamed {
			continue
		}
		have := in.named[tt.Payload]
		if have.Name == info.Name && slices.Equal(have.Args, info.Args) {
			return id
		}
	}
	in.named = append(in.named, NamedInfo{
		Name:   info.Name,
		Args:   slices.Clone(info.Args),
		Fields: slices.Clone(info.Fields),
		Linear: info.Linear,
	})
	slot, err := safecast.Conv[uint32](len(in.named) - 1)
	if err != nil {
		panic(fmt.Errorf("named info overflow: %w", err))
	}
	return in.internRaw(Type{Kind: KindNamed, Payload: slot})
}

// NamedInfoOf retrieves named aggregate metadata by TypeID.
func (in *Interner) NamedInfoOf(id TypeID) (*NamedInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindNamed {
		return nil, false
	}
	return &in.named[tt.Payload], true
}

// FieldIndex finds a field by name in a named aggregate.
func (in *Interner) FieldIndex(id TypeID, name string) (int, bool) {
	info, ok := in.NamedInfoOf(id)
	if !ok {
		return 0, false
	}
	for i := range info.Fields {
		if info.Fields[i].Name == name {
			return i, true
		}
	}
	return 0, false
}
