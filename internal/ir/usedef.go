package ir

// appendPlaceReads collects locals read when a place is loaded: the base
// local plus any index locals in projections.
func appendPlaceReads(dst []LocalID, p Place) []LocalID {
	if !p.IsValid() {
		return dst
	}
	dst = append(dst, p.Local)
	for _, proj := range p.Proj {
		if proj.Kind == PlaceProjIndex && proj.IndexLocal.IsValid() {
			dst = append(dst, proj.IndexLocal)
		}
	}
	return dst
}

func appendOperandReads(dst []LocalID, o Operand) []LocalID {
	switch o.Kind {
	case OperandCopy, OperandMove:
		return appendPlaceReads(dst, o.Place)
	default:
		return dst
	}
}

func appendRValueReads(dst []LocalID, rv RValue) []LocalID {
	switch rv.Kind {
	case RValueUse:
		return appendOperandReads(dst, rv.Use)
	case RValueUnary:
		return appendOperandReads(dst, rv.Unary.Operand)
	case RValueBinary:
		dst = appendOperandReads(dst, rv.Binary.Left)
		return appendOperandReads(dst, rv.Binary.Right)
	case RValueRef:
		return appendPlaceReads(dst, rv.Ref.Place)
	case RValueTuple:
		for _, e := range rv.Tuple.Elems {
			dst = appendOperandReads(dst, e)
		}
		return dst
	case RValueArray:
		for _, e := range rv.Array.Elems {
			dst = appendOperandReads(dst, e)
		}
		return dst
	case RValueStruct:
		for _, e := range rv.Struct.Fields {
			dst = appendOperandReads(dst, e)
		}
		return dst
	case RValueCast:
		return appendOperandReads(dst, rv.Cast.Value)
	default:
		return dst
	}
}

// Uses returns the locals an instruction reads. A write through a projected
// place counts as a read of the base local.
func (in Instr) Uses() []LocalID {
	var dst []LocalID
	switch in.Kind {
	case InstrAssign:
		dst = appendRValueReads(dst, in.Assign.Src)
		if !in.Assign.Dst.Direct() {
			dst = appendPlaceReads(dst, in.Assign.Dst)
		}
	case InstrCall:
		for _, a := range in.Call.Args {
			dst = appendOperandReads(dst, a)
		}
		if in.Call.HasDst && !in.Call.Dst.Direct() {
			dst = appendPlaceReads(dst, in.Call.Dst)
		}
	case InstrDestructure:
		dst = appendOperandReads(dst, in.Destructure.Src)
		for _, d := range in.Destructure.Dsts {
			if !d.Direct() {
				dst = appendPlaceReads(dst, d)
			}
		}
	case InstrDrop:
		dst = appendPlaceReads(dst, in.Drop.Place)
	case InstrEndBorrow:
		dst = appendPlaceReads(dst, in.EndBorrow.Place)
	}
	return dst
}

// Defs returns the locals an instruction fully defines. Only unprojected
// destinations count as definitions.
func (in Instr) Defs() []LocalID {
	var dst []LocalID
	switch in.Kind {
	case InstrAssign:
		if in.Assign.Dst.Direct() {
			dst = append(dst, in.Assign.Dst.Local)
		}
	case InstrCall:
		if in.Call.HasDst && in.Call.Dst.Direct() {
			dst = append(dst, in.Call.Dst.Local)
		}
	case InstrDestructure:
		for _, d := range in.Destructure.Dsts {
			if d.Direct() {
				dst = append(dst, d.Local)
			}
		}
	}
	return dst
}

// Uses returns the locals a terminator reads.
func (t Terminator) Uses() []LocalID {
	var dst []LocalID
	switch t.Kind {
	case TermReturn:
		if t.Return.HasValue {
			dst = appendOperandReads(dst, t.Return.Value)
		}
	case TermIf:
		dst = appendOperandReads(dst, t.If.Cond)
	}
	return dst
}
