package sim

import (
	"math"

	"github.com/x0rium/robust-semantic-agent/internal/domain"
)

// Stats summarises a batch of episodes. Rates are per step except
// GoalRate, which is per episode.
type Stats struct {
	Episodes         int     `json:"episodes"`
	TotalSteps       int     `json:"total_steps"`
	MeanReturn       float64 `json:"mean_return"`
	StdReturn        float64 `json:"std_return"`
	MeanLength       float64 `json:"mean_length"`
	GoalRate         float64 `json:"goal_rate"`
	Violations       int     `json:"violations"`
	ViolationRate    float64 `json:"violation_rate"`
	FilterActiveRate float64 `json:"filter_active_rate"`
	EmergencyStops   int     `json:"emergency_stops"`
	Queries          int     `json:"queries"`
	QueryRate        float64 `json:"query_rate"`

	// MeanEntropyReduction averages the relative weight-entropy drop
	// over queried steps. Zero when nothing queried.
	MeanEntropyReduction float64 `json:"mean_entropy_reduction"`
}

// Summarize aggregates episode records into batch statistics.
func Summarize(records []domain.EpisodeRecord) Stats {
	s := Stats{Episodes: len(records)}
	if len(records) == 0 {
		return s
	}

	filterSteps := 0
	goals := 0
	entropySum := 0.0
	entropyN := 0

	for _, ep := range records {
		s.TotalSteps += ep.Length
		s.MeanReturn += ep.Return
		s.Violations += ep.Violations
		s.EmergencyStops += ep.EmergencyStops
		s.Queries += ep.Queries
		filterSteps += ep.FilterActivations
		if ep.GoalReached {
			goals++
		}
		for _, st := range ep.Steps {
			d := st.Diagnostics
			if d.Queried && d.EntropyBefore > 0 {
				entropySum += (d.EntropyBefore - d.EntropyAfter) / d.EntropyBefore
				entropyN++
			}
		}
	}

	n := float64(len(records))
	s.MeanReturn /= n
	s.MeanLength = float64(s.TotalSteps) / n
	s.GoalRate = float64(goals) / n

	varSum := 0.0
	for _, ep := range records {
		d := ep.Return - s.MeanReturn
		varSum += d * d
	}
	s.StdReturn = math.Sqrt(varSum / n)

	if s.TotalSteps > 0 {
		steps := float64(s.TotalSteps)
		s.ViolationRate = float64(s.Violations) / steps
		s.FilterActiveRate = float64(filterSteps) / steps
		s.QueryRate = float64(s.Queries) / steps
	}
	if entropyN > 0 {
		s.MeanEntropyReduction = entropySum / float64(entropyN)
	}
	return s
}
