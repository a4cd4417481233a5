package sim

import (
	"fmt"

	"github.com/milosgajdos/go-dualfilter/rand"
	"gonum.org/v1/gonum/mat"
)

// Chain simulates a batch of independent discrete Markov chains sharing one
// transition matrix. It emits one-hot per-state likelihood trajectories of
// the kind the dual transition filter consumes.
type Chain struct {
	// trans is the shared transition matrix
	trans *mat.Dense
	// states holds the current state of every chain in the batch
	states []int
}

// NewChain creates a batch of chains with initial states drawn from init
// and returns it.
// It returns error if batch is not positive, the dimensions of init and
// trans do not match, or the initial draw fails.
func NewChain(init mat.Vector, trans *mat.Dense, batch int) (*Chain, error) {
	if batch <= 0 {
		return nil, fmt.Errorf("invalid batch size: %d", batch)
	}

	r, c := trans.Dims()
	if r != c || r != init.Len() {
		return nil, fmt.Errorf("invalid transition matrix dimensions: [%d x %d]", r, c)
	}

	weights := make([]float64, init.Len())
	for i := range weights {
		weights[i] = init.AtVec(i)
	}

	states, err := rand.RouletteDrawN(weights, batch)
	if err != nil {
		return nil, err
	}

	return &Chain{
		trans:  mat.DenseCopyOf(trans),
		states: states,
	}, nil
}

// States returns the current state of every chain in the batch.
func (c *Chain) States() []int {
	states := make([]int, len(c.states))
	copy(states, c.states)

	return states
}

// Step advances every chain one transition and returns the one-hot
// likelihood observation of the new states: row b has 1 at the state chain
// b moved to and 0 elsewhere.
// It returns error if a transition draw fails.
func (c *Chain) Step() (*mat.Dense, error) {
	_, d := c.trans.Dims()
	lik := mat.NewDense(len(c.states), d, nil)

	for b := range c.states {
		next, err := rand.RouletteDrawN(c.trans.RawRowView(c.states[b]), 1)
		if err != nil {
			return nil, err
		}
		c.states[b] = next[0]
		lik.Set(b, next[0], 1.0)
	}

	return lik, nil
}

// Simulate advances the chains horizon steps and returns the likelihood
// trajectory together with the true state paths, both indexed by time.
// It returns error if horizon is not positive or a step fails.
func (c *Chain) Simulate(horizon int) ([]*mat.Dense, [][]int, error) {
	if horizon <= 0 {
		return nil, nil, fmt.Errorf("invalid horizon: %d", horizon)
	}

	lik := make([]*mat.Dense, horizon)
	states := make([][]int, horizon)
	for t := 0; t < horizon; t++ {
		l, err := c.Step()
		if err != nil {
			return nil, nil, err
		}
		lik[t] = l
		states[t] = c.States()
	}

	return lik, states, nil
}
