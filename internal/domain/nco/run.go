package nco

import "time"

// TrainingRun identifies one training invocation and its configuration.
type TrainingRun struct {
	// ID is the run identifier (UUID).
	ID string `json:"id"`

	// Env is the environment name the run trains on.
	Env string `json:"env"`

	// Config is the PPO configuration used.
	Config PPOConfig `json:"config"`

	// Seed is the RNG seed.
	Seed int64 `json:"seed"`

	// CreatedAt is when the run started.
	CreatedAt time.Time `json:"createdAt"`
}

// StepMetrics is the reported result of one outer training step: the mean
// rollout reward plus the loss components of the step's last mini-batch.
type StepMetrics struct {
	// RunID is the owning run.
	RunID string `json:"runId"`

	// Step is the outer step index, starting at 1.
	Step int `json:"step"`

	// MeanReward is the mean realized reward of the step's rollout.
	MeanReward float64 `json:"meanReward"`

	// Loss holds the last mini-batch's loss components.
	Loss LossComponents `json:"loss"`

	// ClipFraction is the fraction of instances whose ratio left the clip
	// range, averaged over the step's mini-batches.
	ClipFraction float64 `json:"clipFraction"`

	// NumUpdates is the number of optimizer steps performed.
	NumUpdates int `json:"numUpdates"`

	// LR is the learning rate in effect.
	LR float64 `json:"lr"`

	// RecordedAt is when the step finished.
	RecordedAt time.Time `json:"recordedAt"`
}
