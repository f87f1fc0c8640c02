package semantics

// TruthValue is a Belnap four-valued truth status for a claim.
//
// The four values form a bilattice: the truth order ranks how true a
// claim is (False below Neither/Both below True), the knowledge order
// ranks how much information backs it (Neither below True/False below
// Both). Both marks a contradiction: independent evidence supports the
// claim and its negation at the same time.
type TruthValue string

const (
	Neither TruthValue = "neither"
	True    TruthValue = "true"
	False   TruthValue = "false"
	Both    TruthValue = "both"
)

func ValidTruthValue(v string) bool {
	switch TruthValue(v) {
	case Neither, True, False, Both:
		return true
	}
	return false
}

// Supported reports whether the value carries evidence for the claim.
func (v TruthValue) Supported() bool {
	return v == True || v == Both
}

// Countered reports whether the value carries evidence against the claim.
func (v TruthValue) Countered() bool {
	return v == False || v == Both
}

// Contradictory reports whether the value demands credal treatment.
func (v TruthValue) Contradictory() bool {
	return v == Both
}

func fromEvidence(supported, countered bool) TruthValue {
	switch {
	case supported && countered:
		return Both
	case supported:
		return True
	case countered:
		return False
	default:
		return Neither
	}
}

// And is conjunction in the truth order: the result is supported only
// when both operands are, and countered when either is.
func And(a, b TruthValue) TruthValue {
	return fromEvidence(a.Supported() && b.Supported(), a.Countered() || b.Countered())
}

// Or is disjunction in the truth order, dual to And.
func Or(a, b TruthValue) TruthValue {
	return fromEvidence(a.Supported() || b.Supported(), a.Countered() && b.Countered())
}

// Not swaps evidence for with evidence against. It is an involution.
func Not(a TruthValue) TruthValue {
	return fromEvidence(a.Countered(), a.Supported())
}

// Consensus keeps only the evidence both operands agree on
// (meet in the knowledge order).
func Consensus(a, b TruthValue) TruthValue {
	return fromEvidence(a.Supported() && b.Supported(), a.Countered() && b.Countered())
}

// Gullibility accepts evidence from either operand, possibly
// manufacturing a contradiction (join in the knowledge order).
func Gullibility(a, b TruthValue) TruthValue {
	return fromEvidence(a.Supported() || b.Supported(), a.Countered() || b.Countered())
}

// Probability collapses a status to a scalar forecast that the claim
// holds. Both and Neither are maximally uninformative and map to 0.5.
func (v TruthValue) Probability() float64 {
	switch v {
	case True:
		return 0.9
	case False:
		return 0.1
	default:
		return 0.5
	}
}
