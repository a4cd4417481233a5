package dtf

import (
	"fmt"

	filter "github.com/milosgajdos/go-dualfilter"
	"github.com/milosgajdos/go-dualfilter/matrix"
	"gonum.org/v1/gonum/mat"
)

// DTF is a Dual Transition Filter: a recursive estimator of a probability
// distribution over discrete states. Instead of a forward belief update it
// runs a backward (adjoint) recursion over dual functions: at every step the
// backward solve is re-run over the whole window of observations seen so far
// in the call, which makes Process quadratic in the horizon. That expanding
// window recomputation is part of the estimator, not an optimization target.
type DTF struct {
	// d is the state dimension
	d int
	// skipFirst selects the predicted state when storing internal state
	skipFirst bool
	// initParam is the initial state distribution parameter
	initParam filter.DistParameter
	// matParam is the transition matrix parameter
	matParam filter.MatrixParameter
	// est is the current batched estimated state
	est *mat.Dense
	// initialized tracks whether est was pulled from initParam
	initialized bool
	// terminal is the boundary condition of the backward recursion
	terminal *mat.Dense
}

// New creates a new DTF and returns it.
// It accepts the following parameters:
//   - d:         state dimension
//   - skipFirst: store the predicted state instead of the estimated one
//   - init:      initial state distribution parameter
//   - trans:     transition matrix parameter
//
// It returns error if d is not positive or either parameter is nil.
func New(d int, skipFirst bool, init filter.DistParameter, trans filter.MatrixParameter) (*DTF, error) {
	if d <= 0 {
		return nil, fmt.Errorf("invalid state dimension: %d", d)
	}

	if init == nil {
		return nil, fmt.Errorf("invalid initial state parameter: %v", init)
	}

	if trans == nil {
		return nil, fmt.Errorf("invalid transition matrix parameter: %v", trans)
	}

	return &DTF{
		d:         d,
		skipFirst: skipFirst,
		initParam: init,
		matParam:  trans,
		terminal:  matrix.Eye(d),
	}, nil
}

// Process filters a batch of likelihood trajectories. likelihood is indexed
// by time: likelihood[t] holds one (batch x d) matrix of per-state
// likelihoods in [0,1]. It returns the estimated state trajectory, one
// (batch x d) distribution per step, and the per-step control trajectories:
// the trajectory for step k covers the expanding window of length k+1.
// As a side effect the internal estimated state moves to the last step.
// It returns error if the trajectory is empty or its dimensions do not
// match the filter state dimension.
// Numerical degeneracies are not errors: a zero-sum renormalization
// propagates NaN to the caller.
func (f *DTF) Process(likelihood []*mat.Dense) ([]*mat.Dense, [][]*mat.Dense, error) {
	horizon := len(likelihood)
	if horizon == 0 {
		return nil, nil, fmt.Errorf("invalid likelihood trajectory: empty")
	}

	batch, d := likelihood[0].Dims()
	if d != f.d {
		return nil, nil, fmt.Errorf("invalid likelihood dimension: %d != %d", d, f.d)
	}

	for t := range likelihood {
		r, c := likelihood[t].Dims()
		if r != batch || c != f.d {
			return nil, nil, fmt.Errorf("invalid likelihood dimensions at step %d: [%d x %d]", t, r, c)
		}
	}

	trans := f.matParam.Value()
	if r, c := trans.Dims(); r != f.d || c != f.d {
		return nil, nil, fmt.Errorf("invalid transition matrix dimensions: [%d x %d]", r, c)
	}

	// emission difference: map [0,1] likelihoods to [-1,1] signals
	emission := make([]*mat.Dense, horizon)
	for t := range likelihood {
		e := &mat.Dense{}
		e.Scale(2.0, likelihood[t])
		e.Apply(func(_, _ int, v float64) float64 { return v - 1.0 }, e)
		emission[t] = e
	}

	// the initial state stays fixed for the whole call
	init := f.internalEstimatedState(batch)

	// slot 0 holds the pre-call state; slots 1..horizon get filled below
	estTraj := make([]*mat.Dense, horizon+1)
	estTraj[0] = mat.DenseCopyOf(init)

	controls := make([][]*mat.Dense, 0, horizon)

	for k := 0; k < horizon; k++ {
		duals, ctrl := f.backwardPass(emission[:k+1], estTraj[:k+1], trans)
		estTraj[k+1] = f.combine(init, duals[0], ctrl)
		controls = append(controls, ctrl)
	}

	f.est = mat.DenseCopyOf(estTraj[horizon])

	return estTraj[1:], controls, nil
}

// backwardPass runs the backward (adjoint) recursion over a window of w
// observations. emission and dist both hold w time steps of (batch x d)
// matrices; dist is the trajectory of estimates produced so far in this
// call, slot 0 being the pre-call state. It returns the dual function
// trajectory (w+1 steps of batched d x d matrices, the last one being the
// identity boundary condition) and the control trajectory (w steps).
func (f *DTF) backwardPass(emission, dist []*mat.Dense, trans mat.Matrix) ([]matrix.Batch, []*mat.Dense) {
	w := len(emission)
	batch, _ := emission[0].Dims()

	duals := make([]matrix.Batch, w+1)
	duals[w] = matrix.NewBatch(batch, f.d, f.d)
	for b := 0; b < batch; b++ {
		duals[w][b].Copy(f.terminal)
	}

	ctrl := make([]*mat.Dense, w)

	for j := w; j >= 1; j-- {
		pastDual := matrix.OneTransition(trans, duals[j])
		control := computeControl(pastDual, emission[j-1], dist[j-1])
		duals[j-1] = backwardStep(pastDual, emission[j-1], control)
		ctrl[j-1] = control
	}

	return duals, ctrl
}

// combine forms the next estimated state from the initial distribution, the
// dual function at time 0 and the accumulated controls: it propagates the
// initial state through the dual function, subtracts the summed controls
// and renormalizes.
func (f *DTF) combine(init *mat.Dense, dual matrix.Batch, ctrl []*mat.Dense) *mat.Dense {
	terminal := matrix.BatchVecMul(init, dual)
	for j := range ctrl {
		terminal.Sub(terminal, ctrl[j])
	}

	return clampNormalize(terminal)
}

// computeControl computes the per-step control vector from the propagated
// dual functions, the emission difference and the past estimated
// distribution. Batch rows whose emission variance denominator is exactly
// zero get a zero control; the mask is applied per row, other rows are
// unaffected.
func computeControl(pastDual matrix.Batch, emission, past *mat.Dense) *mat.Dense {
	batch, d := emission.Dims()
	_, _, k := pastDual.Dims()

	control := mat.NewDense(batch, k, nil)
	termA := &mat.VecDense{}
	termB := &mat.VecDense{}
	scaled := &mat.Dense{}

	for b := 0; b < batch; b++ {
		expected := mat.Dot(past.RowView(b), emission.RowView(b))
		den := 1.0 - expected*expected

		if den == 0 {
			// control stays zero for this row
			continue
		}

		// past * dual, scaled by the expected emission
		termA.MulVec(pastDual[b].T(), past.RowView(b))
		termA.ScaleVec(expected, termA)

		// past * (dual with every row i scaled by emission_i)
		scaled.CloneFrom(pastDual[b])
		for i := 0; i < d; i++ {
			e := emission.At(b, i)
			for j := 0; j < k; j++ {
				scaled.Set(i, j, scaled.At(i, j)*e)
			}
		}
		termB.MulVec(scaled.T(), past.RowView(b))

		for j := 0; j < k; j++ {
			control.Set(b, j, (termA.AtVec(j)-termB.AtVec(j))/den)
		}
	}

	return control
}

// backwardStep moves the dual function one step back in time:
// out[b] = pastDual[b] + emission[b] x control[b].
func backwardStep(pastDual matrix.Batch, emission, control *mat.Dense) matrix.Batch {
	out := matrix.BatchOuter(emission, control)
	for b := range out {
		out[b].Add(pastDual[b], out[b])
	}

	return out
}

// clampNormalize floors negative entries of m at zero and rescales every
// row to sum to 1. Small negative residues from the control subtraction are
// expected here and clamped. The division is deliberately unguarded: a row
// that clamps to all zeros renormalizes to NaN, which is the filter's
// failure signal.
func clampNormalize(m *mat.Dense) *mat.Dense {
	m.Apply(func(_, _ int, v float64) float64 {
		if v < 0 {
			return 0
		}
		return v
	}, m)

	sums := matrix.RowSums(m)
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, m.At(i, j)/sums[i])
		}
	}

	return m
}

// UpdateDistribution recovers a state distribution from a batched dual
// function and an estimator vector by solving the per-row least squares
// problem dual[b]^T * x = estimator[b], then clamping and renormalizing the
// solution. It is an alternate formulation kept alongside the backward
// recursion; Process never calls it.
// It returns error if the batch sizes do not match or a solve fails.
func UpdateDistribution(dual matrix.Batch, estimator *mat.Dense) (*mat.Dense, error) {
	batch, k := estimator.Dims()
	n, d, k2 := dual.Dims()
	if n != batch || k2 != k {
		return nil, fmt.Errorf("invalid estimator dimensions: [%d x %d]", batch, k)
	}

	out := mat.NewDense(batch, d, nil)
	x := &mat.VecDense{}
	for b := 0; b < batch; b++ {
		if err := x.SolveVec(dual[b].T(), estimator.RowView(b)); err != nil {
			return nil, fmt.Errorf("least squares solve failed: %v", err)
		}
		for j := 0; j < d; j++ {
			out.Set(b, j, x.AtVec(j))
		}
	}

	return clampNormalize(out), nil
}

// internalEstimatedState returns the internal estimated state, lazily
// pulling it from the initial state parameter broadcast across the batch.
// Once initialized the stored state is returned as is: a later call with a
// different batch size does not reshape it.
func (f *DTF) internalEstimatedState(batch int) *mat.Dense {
	if !f.initialized {
		init := f.initParam.Value()
		f.est = mat.NewDense(batch, f.d, nil)
		for b := 0; b < batch; b++ {
			for j := 0; j < f.d; j++ {
				f.est.Set(b, j, init.AtVec(j))
			}
		}
		f.initialized = true
	}

	return f.est
}

// SetInternalState stores the given state as the internal estimated state:
// the predicted one when the filter was configured with skipFirst, the
// estimated one otherwise. Process does not use it; it serves callers that
// drive the two-trajectory update themselves.
func (f *DTF) SetInternalState(estimated, predicted *mat.Dense) {
	if f.skipFirst {
		f.est = mat.DenseCopyOf(predicted)
		return
	}
	f.est = mat.DenseCopyOf(estimated)
}

// Reset marks the filter for a fresh pull of the initial state parameter.
// The intermediate getter call refreshes the stored state right away so
// that accessors observe the initial distribution; the flag is then cleared
// again so the next Process call re-initializes with its own batch size.
// Reset is idempotent.
func (f *DTF) Reset() {
	batch := 1
	if f.est != nil {
		batch, _ = f.est.Dims()
	}

	f.initialized = false
	f.internalEstimatedState(batch)
	f.initialized = false
}

// EstimatedState returns the current estimated state, lazily initializing
// it with batch size 1 if needed. A single-element batch is squeezed to a
// vector; larger batches are returned as a (batch x d) matrix.
func (f *DTF) EstimatedState() mat.Matrix {
	est := f.internalEstimatedState(1)

	batch, _ := est.Dims()
	if batch == 1 {
		return mat.VecDenseCopyOf(est.RowView(0))
	}

	return mat.DenseCopyOf(est)
}

// SetEstimatedState forwards state to the initial state parameter setter.
// It returns error if the parameter rejects the value.
func (f *DTF) SetEstimatedState(state mat.Vector) error {
	return f.initParam.Set(state)
}

// InitParameter returns the initial state distribution parameter.
func (f *DTF) InitParameter() filter.DistParameter {
	return f.initParam
}

// MatrixParameter returns the transition matrix parameter.
func (f *DTF) MatrixParameter() filter.MatrixParameter {
	return f.matParam
}
