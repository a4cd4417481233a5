package noise

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// None is the no-noise stand-in: sampling yields nothing and perturbing a
// likelihood trajectory leaves it untouched.
type None struct{}

// NewNone creates new None noise and returns it
func NewNone() (*None, error) {
	return &None{}, nil
}

// Sample returns zero size vector.
func (e *None) Sample() mat.Vector {
	sample := &mat.VecDense{}

	return sample
}

// Perturb leaves m unchanged.
func (e *None) Perturb(m *mat.Dense) error {
	return nil
}

// Cov returns zero size covariance matrix.
func (e *None) Cov() mat.Symmetric {
	cov := &mat.SymDense{}

	return cov
}

// Mean returns None mean.
func (e *None) Mean() []float64 {
	var mean []float64

	return mean
}

// Reset does nothing
func (e *None) Reset() error {
	return nil
}

// String implements the Stringer interface.
func (e *None) String() string {
	return fmt.Sprintf("None{\nMean=%v\nCov=%v\n}", e.Mean(), mat.Formatted(e.Cov(), mat.Prefix("    "), mat.Squeeze()))
}
