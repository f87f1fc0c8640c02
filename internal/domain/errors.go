package domain

import "errors"

var (
	// ErrInvalidInput marks malformed caller input (nil, wrong
	// dimension, non-finite values). Raised before any belief state is
	// touched, so a failed step never corrupts the tracker.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSolverFailure marks a safety program that could not be solved.
	// The step still completes with the emergency-stop action.
	ErrSolverFailure = errors.New("safety solver failure")

	// ErrNumericDegeneracy marks a belief update that collapsed the
	// weight distribution beyond recovery and forced a uniform reset.
	ErrNumericDegeneracy = errors.New("numeric degeneracy")
)

// FailureKind labels a recovered per-step failure in diagnostics.
type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailureSolver     FailureKind = "solver_failure"
	FailureDegeneracy FailureKind = "numeric_degeneracy"
)
