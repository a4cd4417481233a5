package estimate

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Dist is a batched estimate of a distribution over discrete states.
// Every row holds the estimated distribution of one batch element.
type Dist struct {
	// val is the estimated distribution
	val *mat.Dense
}

// NewDist returns a Dist estimate for the given batched value.
// It returns error if val is nil or empty.
func NewDist(val *mat.Dense) (*Dist, error) {
	if val == nil || val.IsEmpty() {
		return nil, fmt.Errorf("invalid estimate value: %v", val)
	}

	return &Dist{
		val: mat.DenseCopyOf(val),
	}, nil
}

// Val returns the estimated distribution.
func (d *Dist) Val() *mat.Dense {
	return mat.DenseCopyOf(d.val)
}

// Row returns the estimated distribution of batch element b.
func (d *Dist) Row(b int) mat.Vector {
	return mat.VecDenseCopyOf(d.val.RowView(b))
}

// Squeeze returns the estimate with the batch dimension dropped when the
// batch holds a single element, the full batched value otherwise.
func (d *Dist) Squeeze() mat.Matrix {
	batch, _ := d.val.Dims()
	if batch == 1 {
		return mat.VecDenseCopyOf(d.val.RowView(0))
	}

	return d.Val()
}
