package ir

import "kiln/internal/source"

type TermKind uint8

const (
	TermNone TermKind = iota
	TermReturn
	TermGoto
	TermIf
	TermUnreachable
)

type Terminator struct {
	Kind TermKind
	Span source.Span

	Return ReturnTerm
	Goto   GotoTerm
	If     IfTerm
}

type ReturnTerm struct {
	HasValue bool
	Value    Operand
}

type GotoTerm struct {
	Target BlockID
}

type IfTerm struct {
	Cond Operand
	Then BlockID
	Else BlockID
}

// Successors returns the control-flow targets of the terminator.
func (t Terminator) Successors() []BlockID {
	switch t.Kind {
	case TermGoto:
		return []BlockID{t.Goto.Target}
	case TermIf:
		return []BlockID{t.If.Then, t.If.Else}
	default:
		return nil
	}
}
