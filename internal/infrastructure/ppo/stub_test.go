package ppo

import (
	"github.com/Ashirog1/rl4co/internal/domain/nco"
	"github.com/Ashirog1/rl4co/internal/infrastructure/tensor"
)

// stubState doubles as batch and state: per-instance log-probabilities under
// the current stub policy, critic values, and realized rewards.
type stubState struct {
	logProbs []float64
	values   []float64
	rewards  []float64
}

func (s *stubState) Len() int { return len(s.logProbs) }

func (s *stubState) Subset(idx []int) nco.State {
	sub := &stubState{
		logProbs: make([]float64, len(idx)),
		values:   make([]float64, len(idx)),
		rewards:  make([]float64, len(idx)),
	}
	for i, j := range idx {
		sub.logProbs[i] = s.logProbs[j]
		sub.values[i] = s.values[j]
		sub.rewards[i] = s.rewards[j]
	}
	return sub
}

// stubEnv passes the batch through as state and reads rewards back from it.
type stubEnv struct{}

func (e *stubEnv) Name() string { return "stub" }

func (e *stubEnv) Reset(batch nco.Batch) (nco.State, error) {
	return batch.(*stubState), nil
}

func (e *stubEnv) Reward(state nco.State, actions [][]int) ([]float64, error) {
	return state.(*stubState).rewards, nil
}

// stubPolicy reports the state's fixed log-probabilities and records backward
// calls. It carries one scalar parameter so optimizers have something to step.
type stubPolicy struct {
	param         *tensor.Tensor
	backwardCalls int
	lastUpstream  []float64
}

func newStubPolicy() *stubPolicy {
	return &stubPolicy{param: tensor.New(1, 1)}
}

func (p *stubPolicy) Decode(state nco.State, env nco.Environment, opts nco.DecodeOptions) (*nco.PolicyOutput, error) {
	st := state.(*stubState)
	n := st.Len()

	out := &nco.PolicyOutput{
		Actions:       opts.Actions,
		LogLikelihood: append([]float64(nil), st.logProbs...),
	}
	if out.Actions == nil {
		out.Actions = make([][]int, n)
		for i := range out.Actions {
			out.Actions[i] = []int{i}
		}
	}
	if opts.ReturnEntropy {
		out.Entropy = make([]float64, n)
		for i := range out.Entropy {
			out.Entropy[i] = -st.logProbs[i]
		}
	}
	return out, nil
}

func (p *stubPolicy) Parameters() []*tensor.Tensor { return []*tensor.Tensor{p.param} }

func (p *stubPolicy) BackwardLogLikelihood(state nco.State, actions [][]int, upstream []float64) error {
	p.backwardCalls++
	p.lastUpstream = append([]float64(nil), upstream...)
	for _, u := range upstream {
		p.param.Grad[0] += u
	}
	return nil
}

// stubCritic reports the state's fixed values.
type stubCritic struct {
	param         *tensor.Tensor
	backwardCalls int
}

func newStubCritic() *stubCritic {
	return &stubCritic{param: tensor.New(1, 1)}
}

func (c *stubCritic) Estimate(state nco.State) ([]float64, error) {
	return append([]float64(nil), state.(*stubState).values...), nil
}

func (c *stubCritic) Parameters() []*tensor.Tensor { return []*tensor.Tensor{c.param} }

func (c *stubCritic) Backward(state nco.State, upstream []float64) error {
	c.backwardCalls++
	for _, u := range upstream {
		c.param.Grad[0] += u
	}
	return nil
}

// countingOptimizer counts Step calls.
type countingOptimizer struct {
	steps int
	lr    float64
}

func (o *countingOptimizer) Step()            { o.steps++ }
func (o *countingOptimizer) ZeroGrad()        {}
func (o *countingOptimizer) SetLR(lr float64) { o.lr = lr }
func (o *countingOptimizer) LR() float64      { return o.lr }
