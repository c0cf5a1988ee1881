package ppo

import (
	"math"
	"testing"

	"github.com/Ashirog1/rl4co/internal/domain/nco"
)

func testConfig() nco.PPOConfig {
	return nco.PPOConfig{
		ClipRange:     0.2,
		PPOEpochs:     2,
		MiniBatchSize: nco.FractionMiniBatch(0.25),
		VFLambda:      0.5,
		EntropyLambda: 0,
		MaxGradNorm:   0.5,
		LearningRate:  3e-4,
	}
}

func mbFromState(st *stubState, oldLogProbs []float64) *minibatch {
	actions := make([][]int, st.Len())
	for i := range actions {
		actions[i] = []int{i}
	}
	return &minibatch{
		state:       st,
		actions:     actions,
		oldLogProbs: oldLogProbs,
		rewards:     st.rewards,
	}
}

func TestComputeLossRatioOne(t *testing.T) {
	// Identical old and new log-probabilities make every ratio exactly one,
	// so the surrogate is the negated mean advantage.
	st := &stubState{
		logProbs: []float64{-1, -2, -3},
		values:   []float64{0, 0, 0},
		rewards:  []float64{1, 2, 3},
	}
	mb := mbFromState(st, []float64{-1, -2, -3})

	res, err := computeLoss(newStubPolicy(), newStubCritic(), &stubEnv{}, testConfig(), mb)
	if err != nil {
		t.Fatalf("computeLoss() error: %v", err)
	}

	if math.Abs(res.components.Surrogate-(-2)) > 1e-12 {
		t.Errorf("surrogate = %v, want -2", res.components.Surrogate)
	}
	if res.clipFraction != 0 {
		t.Errorf("clip fraction = %v, want 0", res.clipFraction)
	}

	// At ratio one the unclipped branch ties the min and carries the gradient.
	wantGrad := []float64{-1.0 / 3, -2.0 / 3, -1}
	for i, w := range wantGrad {
		if math.Abs(res.gradLogLik[i]-w) > 1e-12 {
			t.Errorf("gradLogLik[%d] = %v, want %v", i, res.gradLogLik[i], w)
		}
	}
}

func TestComputeLossZeroAdvantage(t *testing.T) {
	st := &stubState{
		logProbs: []float64{-1, -2},
		values:   []float64{3, -5},
		rewards:  []float64{3, -5},
	}
	mb := mbFromState(st, []float64{-0.5, -2.5})

	res, err := computeLoss(newStubPolicy(), newStubCritic(), &stubEnv{}, testConfig(), mb)
	if err != nil {
		t.Fatalf("computeLoss() error: %v", err)
	}

	if res.components.Surrogate != 0 {
		t.Errorf("surrogate = %v, want 0", res.components.Surrogate)
	}
	if res.components.Value != 0 {
		t.Errorf("value loss = %v, want 0", res.components.Value)
	}
	for i := range res.gradLogLik {
		if res.gradLogLik[i] != 0 || res.gradValue[i] != 0 {
			t.Errorf("instance %d: gradLogLik = %v, gradValue = %v, want 0",
				i, res.gradLogLik[i], res.gradValue[i])
		}
	}
}

func TestComputeLossClipBinding(t *testing.T) {
	// ratio 1.5 exceeds the clip range on both signs of the advantage.
	newLP, oldLP := -1.0, -1.0-math.Log(1.5)

	t.Run("positive advantage", func(t *testing.T) {
		st := &stubState{
			logProbs: []float64{newLP},
			values:   []float64{0},
			rewards:  []float64{1},
		}
		res, err := computeLoss(newStubPolicy(), newStubCritic(), &stubEnv{}, testConfig(),
			mbFromState(st, []float64{oldLP}))
		if err != nil {
			t.Fatalf("computeLoss() error: %v", err)
		}

		// The clamped branch 1.2 * adv attains the min; no gradient flows.
		if math.Abs(res.components.Surrogate-(-1.2)) > 1e-12 {
			t.Errorf("surrogate = %v, want -1.2", res.components.Surrogate)
		}
		if res.gradLogLik[0] != 0 {
			t.Errorf("gradLogLik = %v, want 0 when the clamp binds", res.gradLogLik[0])
		}
		if res.clipFraction != 1 {
			t.Errorf("clip fraction = %v, want 1", res.clipFraction)
		}
	})

	t.Run("negative advantage", func(t *testing.T) {
		st := &stubState{
			logProbs: []float64{newLP},
			values:   []float64{0},
			rewards:  []float64{-1},
		}
		res, err := computeLoss(newStubPolicy(), newStubCritic(), &stubEnv{}, testConfig(),
			mbFromState(st, []float64{oldLP}))
		if err != nil {
			t.Fatalf("computeLoss() error: %v", err)
		}

		// With a negative advantage the unclipped branch is smaller, so the
		// pessimistic min keeps it and its gradient.
		if math.Abs(res.components.Surrogate-1.5) > 1e-12 {
			t.Errorf("surrogate = %v, want 1.5", res.components.Surrogate)
		}
		if math.Abs(res.gradLogLik[0]-1.5) > 1e-12 {
			t.Errorf("gradLogLik = %v, want 1.5", res.gradLogLik[0])
		}
	})
}

func TestComputeLossHuberValue(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		reward   float64
		wantLoss float64
		wantGrad float64 // times VFLambda / n, here both 0.5 and n=1
	}{
		{"small error quadratic", 0.5, 0, 0.125, 0.25},
		{"unit error boundary", 1, 0, 0.5, 0.5},
		{"large error linear", 2, 0, 1.5, 0.5},
		{"large negative error", -2, 0, 1.5, -0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &stubState{
				logProbs: []float64{-1},
				values:   []float64{tt.value},
				rewards:  []float64{tt.reward},
			}
			res, err := computeLoss(newStubPolicy(), newStubCritic(), &stubEnv{}, testConfig(),
				mbFromState(st, []float64{-1}))
			if err != nil {
				t.Fatalf("computeLoss() error: %v", err)
			}

			if res.components.Value < 0 {
				t.Errorf("value loss = %v, must be non-negative", res.components.Value)
			}
			if math.Abs(res.components.Value-tt.wantLoss) > 1e-12 {
				t.Errorf("value loss = %v, want %v", res.components.Value, tt.wantLoss)
			}
			if math.Abs(res.gradValue[0]-tt.wantGrad) > 1e-12 {
				t.Errorf("gradValue = %v, want %v", res.gradValue[0], tt.wantGrad)
			}
		})
	}
}

func TestComputeLossNormalizedAdvantage(t *testing.T) {
	cfg := testConfig()
	cfg.NormalizeAdv = true

	t.Run("mean cancels at ratio one", func(t *testing.T) {
		st := &stubState{
			logProbs: []float64{-1, -1, -1},
			values:   []float64{0, 0, 0},
			rewards:  []float64{1, 2, 3},
		}
		res, err := computeLoss(newStubPolicy(), newStubCritic(), &stubEnv{}, cfg,
			mbFromState(st, []float64{-1, -1, -1}))
		if err != nil {
			t.Fatalf("computeLoss() error: %v", err)
		}
		// Standardized advantages have zero mean, and at ratio one the
		// surrogate is their negated mean.
		if math.Abs(res.components.Surrogate) > 1e-8 {
			t.Errorf("surrogate = %v, want ~0", res.components.Surrogate)
		}
	})

	t.Run("unit sample std", func(t *testing.T) {
		// Advantages {-1, 1}: mean 0, sample std sqrt(2), standardized to
		// roughly +-1/sqrt(2). The second ratio of 1.1 exposes the scale.
		st := &stubState{
			logProbs: []float64{-1, -1},
			values:   []float64{1, 1},
			rewards:  []float64{0, 2},
		}
		oldLP := []float64{-1, -1 - math.Log(1.1)}
		res, err := computeLoss(newStubPolicy(), newStubCritic(), &stubEnv{}, cfg,
			mbFromState(st, oldLP))
		if err != nil {
			t.Fatalf("computeLoss() error: %v", err)
		}

		x := 1 / (math.Sqrt2 + 1e-8)
		want := -((-x) + 1.1*x) / 2
		if math.Abs(res.components.Surrogate-want) > 1e-9 {
			t.Errorf("surrogate = %v, want %v", res.components.Surrogate, want)
		}
	})
}

func TestComputeLossEntropyBonus(t *testing.T) {
	cfg := testConfig()
	cfg.EntropyLambda = 0.1

	st := &stubState{
		logProbs: []float64{-2, -4},
		values:   []float64{1, 1},
		rewards:  []float64{1, 1},
	}
	res, err := computeLoss(newStubPolicy(), newStubCritic(), &stubEnv{}, cfg,
		mbFromState(st, []float64{-2, -4}))
	if err != nil {
		t.Fatalf("computeLoss() error: %v", err)
	}

	if math.Abs(res.components.Entropy-3) > 1e-12 {
		t.Errorf("entropy = %v, want 3", res.components.Entropy)
	}
	// Zero advantage and zero value error leave only the entropy bonus.
	if math.Abs(res.components.Total-(-0.3)) > 1e-12 {
		t.Errorf("total = %v, want -0.3", res.components.Total)
	}
	for i := range res.gradLogLik {
		if math.Abs(res.gradLogLik[i]-0.05) > 1e-12 {
			t.Errorf("gradLogLik[%d] = %v, want 0.05", i, res.gradLogLik[i])
		}
	}
}

func TestGather(t *testing.T) {
	st := &stubState{
		logProbs: []float64{-1, -2, -3, -4},
		values:   []float64{1, 2, 3, 4},
		rewards:  []float64{10, 20, 30, 40},
	}
	rollout := &nco.Rollout{
		State:       st,
		Actions:     [][]int{{0}, {1}, {2}, {3}},
		OldLogProbs: []float64{-1, -2, -3, -4},
		Rewards:     []float64{10, 20, 30, 40},
	}

	mb := gather(rollout, []int{3, 1})
	if mb.state.Len() != 2 {
		t.Fatalf("state Len() = %d, want 2", mb.state.Len())
	}
	if mb.actions[0][0] != 3 || mb.actions[1][0] != 1 {
		t.Errorf("actions = %v, want [[3] [1]]", mb.actions)
	}
	if mb.oldLogProbs[0] != -4 || mb.oldLogProbs[1] != -2 {
		t.Errorf("oldLogProbs = %v, want [-4 -2]", mb.oldLogProbs)
	}
	if mb.rewards[0] != 40 || mb.rewards[1] != 20 {
		t.Errorf("rewards = %v, want [40 20]", mb.rewards)
	}
}
