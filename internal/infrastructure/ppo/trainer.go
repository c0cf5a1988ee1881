package ppo

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/Ashirog1/rl4co/internal/domain/nco"
	"github.com/Ashirog1/rl4co/internal/infrastructure/policy"
	"github.com/Ashirog1/rl4co/internal/infrastructure/tensor"
)

// TrainablePolicy is a policy the trainer can optimize: the decode contract
// plus parameter access and exact manual backpropagation of weighted
// log-likelihoods.
type TrainablePolicy interface {
	nco.Policy

	// Parameters returns the trainable parameters.
	Parameters() []*tensor.Tensor

	// BackwardLogLikelihood accumulates the gradient of
	// sum_i upstream[i] * logLikelihood(actions[i] | state_i).
	BackwardLogLikelihood(state nco.State, actions [][]int, upstream []float64) error
}

// TrainableCritic is a critic the trainer can optimize.
type TrainableCritic interface {
	nco.Critic

	// Parameters returns the trainable parameters.
	Parameters() []*tensor.Tensor

	// Backward accumulates the gradient of sum_i upstream[i] * value_i.
	Backward(state nco.State, upstream []float64) error
}

// StepResult is the report of one outer training step: the rollout's mean
// reward plus the loss components of the step's last mini-batch (kept as-is,
// not an epoch-wide average).
type StepResult struct {
	MeanReward   float64
	Loss         nco.LossComponents
	ClipFraction float64
	NumUpdates   int
	LR           float64
}

// Trainer runs PPO outer steps: collect a rollout under the current policy,
// then for K inner epochs re-partition it into shuffled mini-batches and
// apply one synchronous optimizer step per mini-batch.
type Trainer struct {
	cfg    nco.PPOConfig
	env    nco.Environment
	policy TrainablePolicy
	critic TrainableCritic

	params []*tensor.Tensor
	opt    tensor.Optimizer
	sched  nco.Schedule
	rng    *rand.Rand
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithSchedule attaches a learning-rate schedule. Only step-count schedules
// are advanced by the epoch-boundary hook.
func WithSchedule(s nco.Schedule) Option {
	return func(t *Trainer) { t.sched = s }
}

// WithSeed fixes the mini-batch shuffle RNG.
func WithSeed(seed int64) Option {
	return func(t *Trainer) { t.rng = rand.New(rand.NewSource(seed)) }
}

// WithOptimizer replaces the default Adam optimizer. The optimizer must have
// been built over the joint policy and critic parameters.
func WithOptimizer(opt tensor.Optimizer) Option {
	return func(t *Trainer) { t.opt = opt }
}

// NewTrainer creates a PPO trainer. The configuration is validated, with
// documented defaults substituted for recoverable mistakes; a mini-batch size
// of an unknown kind is a fatal configuration error. A nil critic is derived
// structurally from the policy.
func NewTrainer(env nco.Environment, pol TrainablePolicy, critic TrainableCritic, cfg nco.PPOConfig, opts ...Option) (*Trainer, error) {
	validated, err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	if critic == nil {
		ap, ok := pol.(*policy.AttentionPolicy)
		if !ok {
			return nil, fmt.Errorf("ppo: no critic supplied and none derivable from %T", pol)
		}
		log.Printf("ppo: creating critic network for %s", env.Name())
		critic = policy.NewCriticFromPolicy(ap)
	}

	t := &Trainer{
		cfg:    validated,
		env:    env,
		policy: pol,
		critic: critic,
		params: append(pol.Parameters(), critic.Parameters()...),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.opt == nil {
		t.opt = tensor.NewAdam(t.params, validated.LearningRate)
	}
	return t, nil
}

// Config returns the validated configuration.
func (t *Trainer) Config() nco.PPOConfig { return t.cfg }

// Policy returns the trained policy.
func (t *Trainer) Policy() TrainablePolicy { return t.policy }

// Critic returns the trained critic.
func (t *Trainer) Critic() TrainableCritic { return t.critic }

// TrainingStep runs one outer step over a problem batch. The rollout is
// collected once and consumed read-only; mini-batch updates run strictly
// sequentially, one optimizer step per mini-batch, for PPOEpochs passes over
// independently reshuffled partitions.
func (t *Trainer) TrainingStep(batch nco.Batch) (*StepResult, error) {
	rollout, err := Collect(t.policy, t.env, batch)
	if err != nil {
		return nil, err
	}

	batchSize := rollout.Len()
	size := t.cfg.MiniBatchSize.Resolve(batchSize)

	res := &StepResult{
		MeanReward: rollout.MeanReward(),
		LR:         t.opt.LR(),
	}

	var clipFracSum float64
	for epoch := 0; epoch < t.cfg.PPOEpochs; epoch++ {
		for _, idx := range partition(t.rng, batchSize, size) {
			mb := gather(rollout, idx)
			loss, err := computeLoss(t.policy, t.critic, t.env, t.cfg, mb)
			if err != nil {
				return nil, err
			}
			if err := t.applyGradients(mb, loss); err != nil {
				return nil, err
			}
			res.Loss = loss.components
			clipFracSum += loss.clipFraction
			res.NumUpdates++
		}
	}
	if res.NumUpdates > 0 {
		res.ClipFraction = clipFracSum / float64(res.NumUpdates)
	}
	return res, nil
}

// applyGradients zeroes the accumulated gradients, backpropagates the total
// loss once through policy and critic, clips the joint global gradient norm
// when configured, and applies one optimizer step.
func (t *Trainer) applyGradients(mb *minibatch, loss *lossResult) error {
	t.opt.ZeroGrad()
	if err := t.policy.BackwardLogLikelihood(mb.state, mb.actions, loss.gradLogLik); err != nil {
		return err
	}
	if err := t.critic.Backward(mb.state, loss.gradValue); err != nil {
		return err
	}
	if t.cfg.MaxGradNorm > 0 {
		tensor.ClipGradNorm(t.params, t.cfg.MaxGradNorm)
	}
	t.opt.Step()
	return nil
}

// OnEpochEnd is the outer-epoch boundary hook. Only step-count schedules
// carry an Advance capability; other schedule kinds are left untouched.
func (t *Trainer) OnEpochEnd() {
	if s, ok := t.sched.(nco.StepCountSchedule); ok {
		t.opt.SetLR(s.Advance())
	}
}
