package domain

// StateEstimate is the summary the controller hands the nominal policy.
// When contradictory claims force a credal set, Mean is the
// conservative lower-expectation estimate and CredalActive is set.
type StateEstimate struct {
	Mean         []float64
	Covariance   [][]float64
	CredalActive bool
}

// Policy proposes a nominal action before safety filtering.
type Policy interface {
	Action(est StateEstimate) []float64
}

// Oracle answers a query action with an extra observation of the true
// state at the given noise level, typically below the nominal
// observation noise.
type Oracle interface {
	Observe(noise float64) []float64
}

// Barrier is a safety certificate: states with Value > 0 are forbidden,
// the safe set is the non-positive sublevel set.
type Barrier interface {
	Value(x []float64) float64
	Gradient(x []float64) []float64
}

// StepOutcome is what the environment returns after executing an action.
type StepOutcome struct {
	Observation []float64
	Reward      float64
	Claims      []Claim
	State       []float64
	Done        bool
	GoalReached bool
	Violated    bool
}

// Environment is the simulated world the runner drives. It also serves
// as the controller's query oracle.
type Environment interface {
	Oracle
	Reset() []float64
	Step(action []float64) (StepOutcome, error)
	Barrier() Barrier
	State() []float64
}

// Recorder persists finished episodes.
type Recorder interface {
	Record(ep *EpisodeRecord) error
	Close() error
}
