// Package training provides the training application service: it wires the
// environment, policy, critic and trainer together, drives the outer training
// loop and persists run metadata and per-step metrics.
package training

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/Ashirog1/rl4co/internal/domain/nco"
	policyinfra "github.com/Ashirog1/rl4co/internal/infrastructure/policy"
	"github.com/Ashirog1/rl4co/internal/infrastructure/ppo"
	"github.com/Ashirog1/rl4co/internal/infrastructure/routing"
	"github.com/Ashirog1/rl4co/internal/infrastructure/runstore"
)

// RunConfig describes one training run.
type RunConfig struct {
	// NumNodes is the problem size of each generated instance.
	NumNodes int `json:"numNodes"`

	// BatchSize is the number of instances per outer step.
	BatchSize int `json:"batchSize"`

	// Epochs is the number of outer epochs.
	Epochs int `json:"epochs"`

	// StepsPerEpoch is the number of outer steps per epoch.
	StepsPerEpoch int `json:"stepsPerEpoch"`

	// Seed seeds instance generation, policy initialization and mini-batch
	// shuffling.
	Seed int64 `json:"seed"`

	// PPO is the trainer configuration.
	PPO nco.PPOConfig `json:"ppo"`

	// Policy is the policy configuration.
	Policy policyinfra.Config `json:"policy"`

	// LRMilestones, when non-empty, attaches a multi-step learning-rate
	// schedule decaying by LRGamma at each listed epoch.
	LRMilestones []int   `json:"lrMilestones,omitempty"`
	LRGamma      float64 `json:"lrGamma,omitempty"`

	// CheckpointPath, when set, receives the final parameters.
	CheckpointPath string `json:"checkpointPath,omitempty"`
}

// DefaultRunConfig returns a small TSP training setup.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		NumNodes:      20,
		BatchSize:     64,
		Epochs:        10,
		StepsPerEpoch: 50,
		Seed:          42,
		PPO:           nco.DefaultPPOConfig(),
		Policy:        policyinfra.DefaultConfig(),
		LRGamma:       0.1,
	}
}

// Progress is invoked after every persisted outer step.
type Progress func(m *nco.StepMetrics)

// Service drives training runs against a metrics store.
type Service struct {
	store runstore.Store
}

// NewService creates a training service.
func NewService(store runstore.Store) *Service {
	return &Service{store: store}
}

// Run executes a full training run and returns its record. Cancellation is
// honored between outer steps; completed steps stay persisted.
func (s *Service) Run(ctx context.Context, cfg RunConfig, progress Progress) (*nco.TrainingRun, error) {
	if cfg.NumNodes < 2 {
		return nil, fmt.Errorf("training: need at least 2 nodes, got %d", cfg.NumNodes)
	}
	if cfg.BatchSize <= 0 || cfg.Epochs <= 0 || cfg.StepsPerEpoch <= 0 {
		return nil, fmt.Errorf("training: batch size, epochs and steps must be positive")
	}

	env := routing.NewEnv()
	pol := policyinfra.New(cfg.Policy, cfg.Seed)
	critic := policyinfra.NewCriticFromPolicy(pol)

	opts := []ppo.Option{ppo.WithSeed(cfg.Seed)}
	if len(cfg.LRMilestones) > 0 {
		opts = append(opts, ppo.WithSchedule(
			nco.NewMultiStepSchedule(cfg.PPO.LearningRate, cfg.LRGamma, cfg.LRMilestones)))
	}
	trainer, err := ppo.NewTrainer(env, pol, critic, cfg.PPO, opts...)
	if err != nil {
		return nil, err
	}

	run := &nco.TrainingRun{
		ID:        uuid.NewString(),
		Env:       env.Name(),
		Config:    trainer.Config(),
		Seed:      cfg.Seed,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		return nil, err
	}

	dataRNG := rand.New(rand.NewSource(cfg.Seed))
	step := 0
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		for i := 0; i < cfg.StepsPerEpoch; i++ {
			if err := ctx.Err(); err != nil {
				return run, err
			}

			batch := routing.GenerateBatch(dataRNG, cfg.BatchSize, cfg.NumNodes)
			res, err := trainer.TrainingStep(batch)
			if err != nil {
				return run, fmt.Errorf("training: step %d: %w", step+1, err)
			}

			step++
			m := &nco.StepMetrics{
				RunID:        run.ID,
				Step:         step,
				MeanReward:   res.MeanReward,
				Loss:         res.Loss,
				ClipFraction: res.ClipFraction,
				NumUpdates:   res.NumUpdates,
				LR:           res.LR,
				RecordedAt:   time.Now(),
			}
			if err := s.store.AppendStep(ctx, m); err != nil {
				return run, err
			}
			if progress != nil {
				progress(m)
			}
		}
		trainer.OnEpochEnd()
	}

	if cfg.CheckpointPath != "" {
		if err := SaveCheckpoint(cfg.CheckpointPath, run.ID, pol, critic); err != nil {
			return run, err
		}
	}
	return run, nil
}

// EvalResult summarizes a greedy evaluation over a batch of instances.
type EvalResult struct {
	NumInstances  int     `json:"numInstances"`
	MeanReward    float64 `json:"meanReward"`
	MeanTourLen   float64 `json:"meanTourLength"`
	BestTourLen   float64 `json:"bestTourLength"`
	MeanTwoOptLen float64 `json:"meanTwoOptLength,omitempty"`
}

// Evaluate decodes a fresh instance batch greedily and reports tour lengths.
// With twoOpt set, each tour is additionally refined by 2-opt local search.
func Evaluate(pol *policyinfra.AttentionPolicy, numNodes, batchSize int, seed int64, twoOpt bool) (*EvalResult, error) {
	if numNodes < 2 {
		return nil, fmt.Errorf("training: need at least 2 nodes, got %d", numNodes)
	}
	env := routing.NewEnv()
	rng := rand.New(rand.NewSource(seed))
	batch := routing.GenerateBatch(rng, batchSize, numNodes)
	state, err := env.Reset(batch)
	if err != nil {
		return nil, err
	}

	out, err := pol.Decode(state, env, nco.DecodeOptions{Type: nco.DecodeGreedy})
	if err != nil {
		return nil, err
	}

	st := state.(*routing.State)
	res := &EvalResult{NumInstances: st.Len(), BestTourLen: -1}
	for i := 0; i < st.Len(); i++ {
		res.MeanReward += out.Reward[i]
		length := routing.TourLength(st.Coords[i], out.Actions[i])
		res.MeanTourLen += length
		if res.BestTourLen < 0 || length < res.BestTourLen {
			res.BestTourLen = length
		}
		if twoOpt {
			_, improved := routing.TwoOpt(st.Coords[i], out.Actions[i])
			res.MeanTwoOptLen += improved
		}
	}
	n := float64(st.Len())
	res.MeanReward /= n
	res.MeanTourLen /= n
	if twoOpt {
		res.MeanTwoOptLen /= n
	}
	return res, nil
}
