package domain

// StepDiagnostics reports what the controller did during one decision
// step. Recovered failures appear here rather than as returned errors.
type StepDiagnostics struct {
	Step         int       `json:"step"`
	BeliefMean   []float64 `json:"belief_mean"`
	ESS          float64   `json:"ess"`
	Resampled    bool      `json:"resampled"`
	Degenerate   bool      `json:"degenerate,omitempty"`
	RiskScore    float64   `json:"risk_score"`
	ClaimsSeen   int       `json:"claims_seen,omitempty"`
	CredalActive bool      `json:"credal_active,omitempty"`
	CredalSize   int       `json:"credal_size,omitempty"`

	Queried       bool    `json:"queried,omitempty"`
	EVI           float64 `json:"evi,omitempty"`
	EntropyBefore float64 `json:"entropy_before,omitempty"`
	EntropyAfter  float64 `json:"entropy_after,omitempty"`

	Desired          []float64   `json:"desired"`
	FilterActive     bool        `json:"filter_active,omitempty"`
	Slack            float64     `json:"slack,omitempty"`
	SolverIterations int         `json:"solver_iterations,omitempty"`
	Relaxed          bool        `json:"relaxed,omitempty"`
	EmergencyStop    bool        `json:"emergency_stop,omitempty"`
	Failure          FailureKind `json:"failure,omitempty"`
}

// StepRecord pairs the controller's view of a step with the simulator's
// ground truth for logging.
type StepRecord struct {
	Step        int             `json:"step"`
	State       []float64       `json:"state"`
	Action      []float64       `json:"action"`
	Observation []float64       `json:"observation"`
	Reward      float64         `json:"reward"`
	Diagnostics StepDiagnostics `json:"diagnostics"`
}

// ClaimOutcome records how a scored claim fared against ground truth,
// feeding threshold calibration.
type ClaimOutcome struct {
	Statement string  `json:"statement"`
	Source    string  `json:"source"`
	Support   float64 `json:"support"`
	Counter   float64 `json:"counter"`
	Truth     bool    `json:"truth"`
}

// EpisodeRecord is one completed episode, serialised as a single JSONL
// line by the recorder.
type EpisodeRecord struct {
	ID                string         `json:"id"`
	Seed              uint64         `json:"seed"`
	Steps             []StepRecord   `json:"steps"`
	ClaimOutcomes     []ClaimOutcome `json:"claim_outcomes,omitempty"`
	Return            float64        `json:"return"`
	DiscountedReturn  float64        `json:"discounted_return"`
	Length            int            `json:"length"`
	GoalReached       bool           `json:"goal_reached"`
	Violations        int            `json:"violations"`
	Queries           int            `json:"queries"`
	FilterActivations int            `json:"filter_activations"`
	EmergencyStops    int            `json:"emergency_stops"`
}
