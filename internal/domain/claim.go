package domain

import (
	"github.com/google/uuid"

	"github.com/x0rium/robust-semantic-agent/internal/semantics"
)

// RegionFunc is a claim's footprint in state space: it reports whether
// a state satisfies the claim.
type RegionFunc func(x []float64) bool

// Claim is an exogenous assertion about the hidden state, attributed to
// a source and carrying a Belnap status. When Scored is set, Support
// and Counter hold evidence scores in [0, 1] and the status is
// recomputed from thresholds instead of trusted as-is.
type Claim struct {
	ID        uuid.UUID            `json:"id"`
	Statement string               `json:"statement"`
	Source    string               `json:"source"`
	Status    semantics.TruthValue `json:"status"`
	Support   float64              `json:"support,omitempty"`
	Counter   float64              `json:"counter,omitempty"`
	Scored    bool                 `json:"scored,omitempty"`
	Region    RegionFunc           `json:"-"`
}

// NewClaim builds a claim with a fixed status and no evidence scores.
func NewClaim(statement, source string, status semantics.TruthValue, region RegionFunc) Claim {
	return Claim{
		ID:        uuid.New(),
		Statement: statement,
		Source:    source,
		Status:    status,
		Region:    region,
	}
}

// NewScoredClaim builds a claim whose status is derived from evidence
// scores at integration time.
func NewScoredClaim(statement, source string, support, counter float64, region RegionFunc) Claim {
	return Claim{
		ID:        uuid.New(),
		Statement: statement,
		Source:    source,
		Support:   support,
		Counter:   counter,
		Scored:    true,
		Region:    region,
	}
}
