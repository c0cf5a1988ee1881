// Package nco provides domain types for neural combinatorial optimization training.
package nco

import "errors"

// Domain errors.
var (
	// ErrMiniBatchKind signals a mini-batch size that is neither an integer
	// count nor a fraction. This is a caller configuration error.
	ErrMiniBatchKind = errors.New("mini_batch_size must be an integer or a fraction")

	// ErrEmptyBatch signals a problem batch with no instances.
	ErrEmptyBatch = errors.New("problem batch is empty")
)

// Batch is a batch of raw problem instances, prior to environment reset.
type Batch interface {
	// Len returns the number of instances in the batch.
	Len() int
}

// State is the environment-owned state of a batch of problem instances.
// The representation is opaque to the trainer; it only needs to take
// index subsets for mini-batching.
type State interface {
	// Len returns the number of instances in the state.
	Len() int

	// Subset returns a view of the state restricted to the given instance
	// indices. The returned state is independent of later mutations of idx.
	Subset(idx []int) State
}

// Environment produces initial states from problem batches and scores
// complete solutions. It owns instance representation and feasibility.
type Environment interface {
	// Name returns the environment name (e.g. "tsp").
	Name() string

	// Reset initializes the environment state for a batch of instances.
	Reset(batch Batch) (State, error)

	// Reward returns the per-instance reward for complete action sequences.
	Reward(state State, actions [][]int) ([]float64, error)
}

// DecodeType selects how the policy chooses actions during decoding.
type DecodeType string

const (
	// DecodeSampling samples actions from the policy distribution.
	DecodeSampling DecodeType = "sampling"
	// DecodeGreedy takes the most likely action at every step.
	DecodeGreedy DecodeType = "greedy"
)

// DecodeOptions controls a policy decode call.
type DecodeOptions struct {
	// Type selects sampling or greedy decoding. Ignored in score-only mode.
	Type DecodeType

	// Actions, when non-nil, switches the policy to score-only mode: the
	// given action sequences are evaluated under the current parameters
	// instead of sampling new ones.
	Actions [][]int

	// ReturnEntropy requests the per-instance entropy estimate. The
	// estimate is a single-sample Monte Carlo proxy for the entropy of the
	// distribution over complete solutions, not a per-step entropy sum.
	ReturnEntropy bool
}

// PolicyOutput is the result of a policy decode call.
type PolicyOutput struct {
	// Actions holds one complete action sequence per instance.
	Actions [][]int

	// LogLikelihood holds the per-instance sum of per-step log-probabilities
	// of the decoded (or given) action sequence.
	LogLikelihood []float64

	// Entropy holds the per-instance entropy estimate when requested.
	Entropy []float64

	// Reward holds the per-instance realized reward. Filled only in full
	// decode mode, when an environment is supplied.
	Reward []float64
}

// Policy constructs solutions autoregressively and scores given solutions.
type Policy interface {
	// Decode runs the policy over the state. With opts.Actions set it
	// evaluates the given sequences (score-only mode); otherwise it decodes
	// new action sequences per opts.Type.
	Decode(state State, env Environment, opts DecodeOptions) (*PolicyOutput, error)
}

// Critic estimates the expected reward of problem instances.
type Critic interface {
	// Estimate returns one value estimate per instance.
	Estimate(state State) ([]float64, error)
}

// Rollout is one collected training batch: the environment state, the action
// sequences produced by the behaviour policy, their summed log-probabilities
// under that policy, and the realized rewards. Immutable after collection;
// every inner epoch reads the same rollout.
type Rollout struct {
	State       State
	Actions     [][]int
	OldLogProbs []float64
	Rewards     []float64
}

// Len returns the number of instances in the rollout.
func (r *Rollout) Len() int {
	return len(r.Actions)
}

// MeanReward returns the mean realized reward of the rollout.
func (r *Rollout) MeanReward() float64 {
	if len(r.Rewards) == 0 {
		return 0
	}
	var sum float64
	for _, rw := range r.Rewards {
		sum += rw
	}
	return sum / float64(len(r.Rewards))
}

// LossComponents bundles the loss terms of one mini-batch update. Only Total
// is backpropagated; the last mini-batch's components are kept for reporting.
type LossComponents struct {
	Surrogate float64 `json:"surrogateLoss"`
	Value     float64 `json:"valueLoss"`
	Entropy   float64 `json:"entropy"`
	Total     float64 `json:"loss"`
}
