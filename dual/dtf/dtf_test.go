package dtf

import (
	"math"
	"os"
	"testing"

	filter "github.com/milosgajdos/go-dualfilter"
	"github.com/milosgajdos/go-dualfilter/matrix"
	"github.com/milosgajdos/go-dualfilter/sim"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

type badMatParam struct {
	filter.MatrixParameter
}

func (p *badMatParam) Value() mat.Matrix {
	return mat.NewDense(3, 2, nil)
}

var (
	uniform2 *sim.Dist
	eye2     *sim.Stochastic
	eye3     *sim.Stochastic
)

func setup() {
	uniform2, _ = sim.NewDist(mat.NewVecDense(2, []float64{0.5, 0.5}))
	eye2, _ = sim.NewStochastic(mat.NewDense(2, 2, []float64{1, 0, 0, 1}))
	eye3, _ = sim.NewStochastic(mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}))
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	f, err := New(2, false, uniform2, eye2)
	assert.NoError(err)
	assert.NotNil(f)

	// invalid state dimension
	f, err = New(0, false, uniform2, eye2)
	assert.Nil(f)
	assert.Error(err)

	// missing initial state parameter
	f, err = New(2, false, nil, eye2)
	assert.Nil(f)
	assert.Error(err)

	// missing transition matrix parameter
	f, err = New(2, false, uniform2, nil)
	assert.Nil(f)
	assert.Error(err)
}

func TestProcessShapes(t *testing.T) {
	assert := assert.New(t)

	f, err := New(2, false, uniform2, eye2)
	assert.NoError(err)

	// empty trajectory
	est, ctrl, err := f.Process(nil)
	assert.Nil(est)
	assert.Nil(ctrl)
	assert.Error(err)

	// state dimension mismatch
	est, ctrl, err = f.Process([]*mat.Dense{mat.NewDense(1, 3, nil)})
	assert.Nil(est)
	assert.Nil(ctrl)
	assert.Error(err)

	// inconsistent batch across steps
	est, ctrl, err = f.Process([]*mat.Dense{
		mat.NewDense(2, 2, nil),
		mat.NewDense(1, 2, nil),
	})
	assert.Nil(est)
	assert.Nil(ctrl)
	assert.Error(err)

	// transition matrix dimensions do not match the filter
	f, err = New(2, false, uniform2, &badMatParam{})
	assert.NoError(err)
	est, ctrl, err = f.Process([]*mat.Dense{mat.NewDense(1, 2, nil)})
	assert.Nil(est)
	assert.Nil(ctrl)
	assert.Error(err)
}

// Boundary case: identity transitions and a non-informative likelihood of
// 0.5 per state map to a zero emission difference, so the expected emission
// is 0, the denominator is 1 and the control vanishes. The estimate must
// stay at the initial distribution.
func TestProcessTerminalBoundary(t *testing.T) {
	assert := assert.New(t)

	f, err := New(2, false, uniform2, eye2)
	assert.NoError(err)

	lik := []*mat.Dense{mat.NewDense(1, 2, []float64{0.5, 0.5})}
	est, ctrl, err := f.Process(lik)
	assert.NoError(err)
	assert.Len(est, 1)
	assert.Len(ctrl, 1)
	assert.Len(ctrl[0], 1)

	delta := 1e-12
	assert.InDeltaSlice([]float64{0.5, 0.5}, est[0].RawRowView(0), delta)
	assert.InDeltaSlice([]float64{0, 0}, ctrl[0][0].RawRowView(0), delta)
}

// A likelihood of 1 for every state makes the expected emission exactly 1
// and the control denominator exactly 0: that batch row must get a zero
// control, while the other row in the same call keeps its finite nonzero
// control.
func TestProcessZeroDenominatorMask(t *testing.T) {
	assert := assert.New(t)

	f, err := New(2, false, uniform2, eye2)
	assert.NoError(err)

	lik := []*mat.Dense{mat.NewDense(2, 2, []float64{
		1.0, 1.0,
		1.0, 0.5,
	})}
	est, ctrl, err := f.Process(lik)
	assert.NoError(err)

	delta := 1e-12
	// masked row: zero control, estimate untouched
	assert.InDeltaSlice([]float64{0, 0}, ctrl[0][0].RawRowView(0), delta)
	assert.InDeltaSlice([]float64{0.5, 0.5}, est[0].RawRowView(0), delta)
	// unmasked row: hand computed control and estimate
	assert.InDeltaSlice([]float64{-1.0 / 3, 1.0 / 3}, ctrl[0][0].RawRowView(1), delta)
	assert.InDeltaSlice([]float64{2.0 / 3, 1.0 / 3}, est[0].RawRowView(1), delta)

	for _, v := range est[0].RawMatrix().Data {
		assert.False(math.IsNaN(v))
		assert.False(math.IsInf(v, 0))
	}
}

func TestProcessWindowGrowth(t *testing.T) {
	assert := assert.New(t)

	f, err := New(2, false, uniform2, eye2)
	assert.NoError(err)

	horizon, batch := 3, 2
	lik := make([]*mat.Dense, horizon)
	for t := range lik {
		lik[t] = mat.NewDense(batch, 2, []float64{0.6, 0.4, 0.5, 0.5})
	}

	est, ctrl, err := f.Process(lik)
	assert.NoError(err)
	assert.Len(est, horizon)
	assert.Len(ctrl, horizon)

	for k := 0; k < horizon; k++ {
		assert.Len(ctrl[k], k+1)
		for j := range ctrl[k] {
			r, c := ctrl[k][j].Dims()
			assert.Equal(batch, r)
			assert.Equal(2, c)
		}
	}
}

func TestProcessProbabilityInvariant(t *testing.T) {
	assert := assert.New(t)

	init, err := sim.NewDist(mat.NewVecDense(3, []float64{0.2, 0.3, 0.5}))
	assert.NoError(err)
	trans, err := sim.NewStochastic(mat.NewDense(3, 3, []float64{
		0.7, 0.2, 0.1,
		0.1, 0.8, 0.1,
		0.25, 0.25, 0.5,
	}))
	assert.NoError(err)

	f, err := New(3, false, init, trans)
	assert.NoError(err)

	lik := []*mat.Dense{
		mat.NewDense(2, 3, []float64{0.55, 0.5, 0.45, 0.5, 0.6, 0.4}),
		mat.NewDense(2, 3, []float64{0.45, 0.55, 0.5, 0.4, 0.5, 0.6}),
		mat.NewDense(2, 3, []float64{0.5, 0.45, 0.55, 0.6, 0.4, 0.5}),
	}

	est, _, err := f.Process(lik)
	assert.NoError(err)

	for t := range est {
		for i, sum := range matrix.RowSums(est[t]) {
			assert.InDelta(1.0, sum, 1e-6)
			for _, v := range est[t].RawRowView(i) {
				assert.True(v >= 0)
			}
		}
	}
}

// End to end trace: with identity transitions, a point-mass initial state
// and fully confident likelihoods, every backward step hits the masked
// denominator, all controls vanish and the point mass persists.
func TestProcessEndToEnd(t *testing.T) {
	assert := assert.New(t)

	init, err := sim.NewDist(mat.NewVecDense(3, []float64{1, 0, 0}))
	assert.NoError(err)

	f, err := New(3, false, init, eye3)
	assert.NoError(err)

	lik := []*mat.Dense{
		mat.NewDense(1, 3, []float64{1, 0, 0}),
		mat.NewDense(1, 3, []float64{1, 0, 0}),
	}

	est, ctrl, err := f.Process(lik)
	assert.NoError(err)
	assert.Len(est, 2)

	delta := 1e-12
	for t := range est {
		assert.InDeltaSlice([]float64{1, 0, 0}, est[t].RawRowView(0), delta)
	}
	for k := range ctrl {
		for j := range ctrl[k] {
			assert.InDeltaSlice([]float64{0, 0, 0}, ctrl[k][j].RawRowView(0), delta)
		}
	}
}

func TestStatePersistence(t *testing.T) {
	assert := assert.New(t)

	init, _ := sim.NewDist(mat.NewVecDense(2, []float64{0.5, 0.5}))
	f, err := New(2, false, init, eye2)
	assert.NoError(err)

	lik := []*mat.Dense{
		mat.NewDense(1, 2, []float64{0.7, 0.3}),
		mat.NewDense(1, 2, []float64{0.6, 0.4}),
	}

	est, _, err := f.Process(lik)
	assert.NoError(err)

	// internal state moved to the last processed step
	last := est[len(est)-1].RawRowView(0)
	state := f.EstimatedState().(*mat.VecDense)
	assert.InDeltaSlice(last, state.RawVector().Data, 1e-12)

	// the second call continues from the first call's last output: it must
	// match a fresh filter whose initial parameter is that very state
	est2, _, err := f.Process(lik)
	assert.NoError(err)

	contInit, err := sim.NewDist(state)
	assert.NoError(err)
	cont, err := New(2, false, contInit, eye2)
	assert.NoError(err)
	est2Fresh, _, err := cont.Process(lik)
	assert.NoError(err)

	for t := range est2 {
		assert.InDeltaSlice(est2Fresh[t].RawRowView(0), est2[t].RawRowView(0), 1e-12)
	}
}

func TestReset(t *testing.T) {
	assert := assert.New(t)

	init, _ := sim.NewDist(mat.NewVecDense(2, []float64{0.5, 0.5}))
	f, err := New(2, false, init, eye2)
	assert.NoError(err)

	lik := []*mat.Dense{mat.NewDense(1, 2, []float64{0.7, 0.3})}

	first, _, err := f.Process(lik)
	assert.NoError(err)

	// after reset the next call re-pulls the initial parameter and must
	// reproduce the first call exactly
	f.Reset()
	again, _, err := f.Process(lik)
	assert.NoError(err)
	assert.InDeltaSlice(first[0].RawRowView(0), again[0].RawRowView(0), 1e-12)

	// reset is idempotent
	f.Reset()
	f.Reset()
	again, _, err = f.Process(lik)
	assert.NoError(err)
	assert.InDeltaSlice(first[0].RawRowView(0), again[0].RawRowView(0), 1e-12)
}

func TestEstimatedState(t *testing.T) {
	assert := assert.New(t)

	init, _ := sim.NewDist(mat.NewVecDense(2, []float64{0.3, 0.7}))
	f, err := New(2, false, init, eye2)
	assert.NoError(err)

	// lazy initialization squeezes a single element batch to a vector
	state, ok := f.EstimatedState().(*mat.VecDense)
	assert.True(ok)
	assert.InDeltaSlice([]float64{0.3, 0.7}, state.RawVector().Data, 1e-12)

	// a batched call keeps the batch dimension
	f2, err := New(2, false, init, eye2)
	assert.NoError(err)
	_, _, err = f2.Process([]*mat.Dense{mat.NewDense(3, 2, []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5})})
	assert.NoError(err)
	m, ok := f2.EstimatedState().(*mat.Dense)
	assert.True(ok)
	r, c := m.Dims()
	assert.Equal(3, r)
	assert.Equal(2, c)

	// the setter forwards to the initial state parameter
	assert.NoError(f.SetEstimatedState(mat.NewVecDense(2, []float64{0.9, 0.1})))
	assert.InDeltaSlice([]float64{0.9, 0.1}, init.Value().(*mat.VecDense).RawVector().Data, 1e-12)
	assert.Error(f.SetEstimatedState(mat.NewVecDense(2, []float64{0.9, 0.9})))

	assert.Equal(init, f.InitParameter())
	assert.Equal(eye2, f.MatrixParameter())
}

func TestSetInternalState(t *testing.T) {
	assert := assert.New(t)

	estimated := mat.NewDense(1, 2, []float64{0.8, 0.2})
	predicted := mat.NewDense(1, 2, []float64{0.1, 0.9})

	f, err := New(2, false, uniform2, eye2)
	assert.NoError(err)
	// initialize first so the stored state is observable
	f.EstimatedState()
	f.SetInternalState(estimated, predicted)
	state := f.EstimatedState().(*mat.VecDense)
	assert.InDeltaSlice([]float64{0.8, 0.2}, state.RawVector().Data, 1e-12)

	f, err = New(2, true, uniform2, eye2)
	assert.NoError(err)
	f.EstimatedState()
	f.SetInternalState(estimated, predicted)
	state = f.EstimatedState().(*mat.VecDense)
	assert.InDeltaSlice([]float64{0.1, 0.9}, state.RawVector().Data, 1e-12)
}

func TestUpdateDistribution(t *testing.T) {
	assert := assert.New(t)

	// identity duals: the estimator passes through clamp and renormalize
	duals := matrix.Batch{matrix.Eye(3), matrix.Eye(3)}
	estimator := mat.NewDense(2, 3, []float64{
		0.2, 0.3, 0.5,
		-1.0, 1.0, 1.0,
	})

	out, err := UpdateDistribution(duals, estimator)
	assert.NoError(err)
	assert.InDeltaSlice([]float64{0.2, 0.3, 0.5}, out.RawRowView(0), 1e-12)
	assert.InDeltaSlice([]float64{0, 0.5, 0.5}, out.RawRowView(1), 1e-12)

	// diagonal dual: solution is rescaled per component then renormalized
	duals = matrix.Batch{mat.NewDense(2, 2, []float64{2, 0, 0, 4})}
	estimator = mat.NewDense(1, 2, []float64{1, 1})
	out, err = UpdateDistribution(duals, estimator)
	assert.NoError(err)
	assert.InDeltaSlice([]float64{2.0 / 3, 1.0 / 3}, out.RawRowView(0), 1e-12)

	// batch size mismatch
	out, err = UpdateDistribution(duals, mat.NewDense(3, 2, nil))
	assert.Nil(out)
	assert.Error(err)
}
