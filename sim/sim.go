package sim

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-dualfilter/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// tol is the tolerance used when validating probability sums
const tol = 1e-6

// Dist implements filter.DistParameter: a fixed-value probability vector
// used in tests and examples in place of a learned parameterization.
type Dist struct {
	val *mat.VecDense
}

// NewDist creates a new Dist parameter and returns it.
// It returns error if v is not a valid probability vector.
func NewDist(v mat.Vector) (*Dist, error) {
	if err := validateDist(v); err != nil {
		return nil, err
	}

	return &Dist{
		val: mat.VecDenseCopyOf(v),
	}, nil
}

// Value returns the current parameter value
func (d *Dist) Value() mat.Vector {
	return mat.VecDenseCopyOf(d.val)
}

// Set overwrites the parameter value.
// It returns error if v is not a valid probability vector of the same length.
func (d *Dist) Set(v mat.Vector) error {
	if v.Len() != d.val.Len() {
		return fmt.Errorf("invalid distribution length: %d != %d", v.Len(), d.val.Len())
	}

	if err := validateDist(v); err != nil {
		return err
	}

	d.val = mat.VecDenseCopyOf(v)

	return nil
}

// Stochastic implements filter.MatrixParameter: a fixed-value row-stochastic
// matrix used in tests and examples in place of a learned parameterization.
type Stochastic struct {
	val *mat.Dense
}

// NewStochastic creates a new Stochastic parameter and returns it.
// It returns error if m is not square or not row-stochastic.
func NewStochastic(m *mat.Dense) (*Stochastic, error) {
	if err := validateStochastic(m); err != nil {
		return nil, err
	}

	return &Stochastic{
		val: mat.DenseCopyOf(m),
	}, nil
}

// Value returns the current parameter value
func (s *Stochastic) Value() mat.Matrix {
	return mat.DenseCopyOf(s.val)
}

// Set overwrites the parameter value.
// It returns error if m is not row-stochastic or its dimensions changed.
func (s *Stochastic) Set(m mat.Matrix) error {
	r, c := m.Dims()
	vr, vc := s.val.Dims()
	if r != vr || c != vc {
		return fmt.Errorf("invalid matrix dimensions: [%d x %d]", r, c)
	}

	d := mat.DenseCopyOf(m)
	if err := validateStochastic(d); err != nil {
		return err
	}

	s.val = d

	return nil
}

func validateDist(v mat.Vector) error {
	if v == nil || v.Len() == 0 {
		return fmt.Errorf("invalid distribution: %v", v)
	}

	sum := 0.0
	for i := 0; i < v.Len(); i++ {
		if v.AtVec(i) < 0 {
			return fmt.Errorf("negative probability at %d: %f", i, v.AtVec(i))
		}
		sum += v.AtVec(i)
	}

	if math.Abs(sum-1.0) > tol {
		return fmt.Errorf("distribution does not sum to 1: %f", sum)
	}

	return nil
}

func validateStochastic(m *mat.Dense) error {
	if m == nil || m.IsEmpty() {
		return fmt.Errorf("invalid matrix: %v", m)
	}

	r, c := m.Dims()
	if r != c {
		return fmt.Errorf("invalid matrix dimensions: [%d x %d]", r, c)
	}

	if floats.Min(m.RawMatrix().Data) < 0 {
		return fmt.Errorf("negative transition probability")
	}

	for i, sum := range matrix.RowSums(m) {
		if math.Abs(sum-1.0) > tol {
			return fmt.Errorf("row %d does not sum to 1: %f", i, sum)
		}
	}

	return nil
}
