package semantics

const (
	DefaultTau      = 0.68
	DefaultTauPrime = 0.32
)

// Thresholds holds the evidence cutoffs for status assignment.
// Tau is the high bar strong evidence must clear, TauPrime the low bar
// opposing evidence must stay under. Valid thresholds satisfy
// TauPrime < 0.5 < Tau.
type Thresholds struct {
	Tau      float64 `json:"tau" yaml:"tau"`
	TauPrime float64 `json:"tau_prime" yaml:"tau_prime"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Tau: DefaultTau, TauPrime: DefaultTauPrime}
}

func (t Thresholds) Valid() bool {
	return t.TauPrime < 0.5 && t.Tau > 0.5
}

// AssignStatus maps a support/countersupport score pair in [0, 1] to a
// Belnap status. A claim is True when support is strong and opposition
// weak, False in the mirrored case, Both when both sides are strongly
// supported at once, and Neither otherwise.
func AssignStatus(support, counter float64, t Thresholds) TruthValue {
	switch {
	case support >= t.Tau && counter < t.TauPrime:
		return True
	case counter >= t.Tau && support < t.TauPrime:
		return False
	case support >= t.Tau && counter >= t.Tau:
		return Both
	default:
		return Neither
	}
}
