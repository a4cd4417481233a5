package filter

import "gonum.org/v1/gonum/mat"

// DistParameter is an externally owned probability distribution parameter.
// Value yields a valid probability vector: non-negative entries summing to 1.
// The filter trusts this contract and does not re-validate it.
type DistParameter interface {
	// Value returns the current parameter value
	Value() mat.Vector
	// Set overwrites the parameter value
	Set(mat.Vector) error
}

// MatrixParameter is an externally owned stochastic matrix parameter.
// Value yields a row-stochastic matrix: each row is a probability
// distribution over next states.
type MatrixParameter interface {
	// Value returns the current parameter value
	Value() mat.Matrix
	// Set overwrites the parameter value
	Set(mat.Matrix) error
}

// DiscreteFilter estimates a probability distribution over discrete states
// from a trajectory of per-state likelihood observations.
type DiscreteFilter interface {
	// Process filters a batch of likelihood trajectories and returns
	// the estimated state trajectory together with the per-step
	// control trajectories
	Process(likelihood []*mat.Dense) ([]*mat.Dense, [][]*mat.Dense, error)
	// Reset marks the filter state for a fresh pull of the initial
	// state parameter on the next Process call
	Reset()
	// EstimatedState returns the current estimated state
	EstimatedState() mat.Matrix
}

// TransitionModel gives direct access to transition dynamics.
// The base dual transition filter does not implement it: concrete
// specializations that own their transition matrix do.
type TransitionModel interface {
	// Matrix returns the transition matrix
	Matrix() mat.Matrix
	// SetMatrix sets the transition matrix
	SetMatrix(mat.Matrix) error
}
