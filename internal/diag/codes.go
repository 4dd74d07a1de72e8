package diag

import (
	"fmt"
)

type Code uint16

const (
	// Неизвестная ошибка - на первое время
	UnknownCode Code = 0

	// Type inference (4000-4099)
	TypeInfo                 Code = 4000
	TypeMismatch             Code = 4001
	TypeArityMismatch        Code = 4002
	TypeInfinite             Code = 4003
	TypeCannotInfer          Code = 4004
	TypeArraySizeMismatch    Code = 4005
	TypeTupleSizeMismatch    Code = 4006
	TypeMutabilityMismatch   Code = 4007
	TypeGenericArityMismatch Code = 4008
	TypeAnnotationConflict   Code = 4009
	TypeUnknownCallee        Code = 4010

	// Ownership & borrows (5000-5099)
	OwnInfo                Code = 5000
	OwnUseAfterMove        Code = 5001
	OwnUsePartiallyMoved   Code = 5002
	OwnUseBeforeInit       Code = 5003
	OwnDoubleMove          Code = 5004
	OwnConflictingBorrow   Code = 5005
	OwnMovedWhileBorrowed  Code = 5006
	OwnRefOutlivesReferent Code = 5007
	OwnLinearNotConsumed   Code = 5008
	OwnDoubleConsume       Code = 5009

	// Codegen internal limits (7000-7099). These abort the run; they are
	// recorded here only so operators can look them up with `kiln explain`.
	GenInfo               Code = 7000
	GenRegisterExhaustion Code = 7001
	GenFrameOverflow      Code = 7002
)

func (c Code) String() string {
	return fmt.Sprintf("K%04d", uint16(c))
}

// Explain returns a one-paragraph description for a code, or "" when the
// code is not documented.
func Explain(c Code) string {
	switch c {
	case TypeMismatch:
		return "Two types were required to be equal but cannot be unified. The message shows both sides as far as inference resolved them."
	case TypeArityMismatch:
		return "A function type was unified against another with a different number of parameters."
	case TypeInfinite:
		return "A type variable would have to contain itself (for example v = List<v>). The occurs-check rejects such infinite types."
	case TypeCannotInfer:
		return "A binding still contains unresolved type variables at the end of the function body. Add an explicit annotation."
	case TypeArraySizeMismatch:
		return "Two array types with known lengths disagree on the length."
	case TypeTupleSizeMismatch:
		return "Two tuple types have a different number of elements."
	case TypeMutabilityMismatch:
		return "A shared reference was unified against a mutable reference. Reference types only unify when mutability matches exactly."
	case TypeGenericArityMismatch:
		return "A named type was applied to the wrong number of generic arguments."
	case TypeAnnotationConflict:
		return "An explicit annotation is authoritative; evidence from the initializer does not unify with it."
	case TypeUnknownCallee:
		return "A call names a function that the symbol table does not know about."
	case OwnUseAfterMove:
		return "A value was read after ownership of it had been moved elsewhere."
	case OwnUsePartiallyMoved:
		return "The whole value was required, but one of its fields had already been moved out."
	case OwnUseBeforeInit:
		return "A storage location was read on a path where it was never assigned."
	case OwnDoubleMove:
		return "Ownership of the same value was moved twice."
	case OwnConflictingBorrow:
		return "A mutable borrow overlaps another borrow of the same location. At most one mutable borrow, or any number of shared borrows, may be live at a time."
	case OwnMovedWhileBorrowed:
		return "A value was moved while a live borrow of it still existed."
	case OwnRefOutlivesReferent:
		return "A reference escapes the region of the value it points into, for example returning a reference to a local."
	case OwnLinearNotConsumed:
		return "A linear value reached the end of its scope without being consumed on some path."
	case OwnDoubleConsume:
		return "A linear value was consumed more than once on some path."
	case GenRegisterExhaustion:
		return "Internal limit: a register class ran out beyond what spilling can absorb. This indicates a compiler defect."
	case GenFrameOverflow:
		return "Internal limit: spill slots exceeded the maximum stack frame size for the target."
	}
	return ""
}
