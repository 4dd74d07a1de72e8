package infer

// Evidence ranks where a binding's type came from. An explicit annotation is
// authoritative; everything else is ordered by how directly it pins the type
// down. When several sources contribute to the same local the strongest one
// is recorded.
type Evidence uint8

const (
	EvidenceNone Evidence = iota
	// EvidencePattern: the type fell out of a destructuring pattern.
	EvidencePattern
	// EvidenceContract: the type came from a callee or caller signature.
	EvidenceContract
	// EvidenceStructural: the type came from a literal or operator shape.
	EvidenceStructural
	// EvidenceAnnotation: the source spelled the type out.
	EvidenceAnnotation
)

// Certainty is the confidence attached to debug metadata for the binding.
func (e Evidence) Certainty() float64 {
	switch e {
	case EvidenceAnnotation:
		return 1.0
	case EvidenceStructural:
		return 0.95
	case EvidenceContract:
		return 0.90
	case EvidencePattern:
		return 0.85
	default:
		return 0
	}
}

func (e Evidence) String() string {
	switch e {
	case EvidenceAnnotation:
		return "annotation"
	case EvidenceStructural:
		return "structural"
	case EvidenceContract:
		return "contract"
	case EvidencePattern:
		return "pattern"
	default:
		return "none"
	}
}
