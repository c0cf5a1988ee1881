package ppo

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/Ashirog1/rl4co/internal/domain/nco"
)

// advEpsilon guards the advantage-normalization denominator.
const advEpsilon = 1e-8

// minibatch is an index view of a rollout, gathered for one update.
type minibatch struct {
	state       nco.State
	actions     [][]int
	oldLogProbs []float64
	rewards     []float64
}

// gather materializes the mini-batch at the given rollout indices.
func gather(rollout *nco.Rollout, idx []int) *minibatch {
	mb := &minibatch{
		state:       rollout.State.Subset(idx),
		actions:     make([][]int, len(idx)),
		oldLogProbs: make([]float64, len(idx)),
		rewards:     make([]float64, len(idx)),
	}
	for i, j := range idx {
		mb.actions[i] = rollout.Actions[j]
		mb.oldLogProbs[i] = rollout.OldLogProbs[j]
		mb.rewards[i] = rollout.Rewards[j]
	}
	return mb
}

// lossResult is the outcome of one mini-batch loss evaluation: the scalar
// components plus the analytic upstream gradients that the backward pass
// feeds into policy and critic.
type lossResult struct {
	components nco.LossComponents

	// gradLogLik[i] = dTotal / d newLogProb_i. Routed through whichever
	// branch of the clipped-surrogate min is active; zero where the clip is
	// binding. Includes the entropy-bonus path.
	gradLogLik []float64

	// gradValue[i] = dTotal / d value_i, from the Huber term only. The
	// advantage uses a detached value estimate, so no surrogate gradient
	// reaches the critic.
	gradValue []float64

	// clipFraction is the fraction of instances whose ratio left the clip
	// range.
	clipFraction float64
}

// computeLoss recomputes log-probabilities and entropy of the stored action
// sequences under the current policy, forms the importance ratios against the
// stored old log-probabilities, and combines the clipped surrogate, the Huber
// value loss, and the entropy bonus into one total. Numerical pathologies
// (NaN, exploding ratios) propagate to the caller; the ratio is deliberately
// not clamped before exponentiation, only the clipped branch is.
func computeLoss(policy TrainablePolicy, critic TrainableCritic, env nco.Environment, cfg nco.PPOConfig, mb *minibatch) (*lossResult, error) {
	out, err := policy.Decode(mb.state, env, nco.DecodeOptions{
		Actions:       mb.actions,
		ReturnEntropy: true,
	})
	if err != nil {
		return nil, err
	}

	values, err := critic.Estimate(mb.state)
	if err != nil {
		return nil, err
	}

	n := len(mb.actions)
	fn := float64(n)

	// Advantage from the detached value estimate; full episodic reward is
	// the target in the single-step framing.
	adv := make([]float64, n)
	for i := range adv {
		adv[i] = mb.rewards[i] - values[i]
	}
	if cfg.NormalizeAdv {
		mean := stat.Mean(adv, nil)
		std := stat.StdDev(adv, nil)
		for i := range adv {
			adv[i] = (adv[i] - mean) / (std + advEpsilon)
		}
	}

	res := &lossResult{
		gradLogLik: make([]float64, n),
		gradValue:  make([]float64, n),
	}

	lo, hi := 1-cfg.ClipRange, 1+cfg.ClipRange
	var surrogate, valueLoss, entropySum, clipped float64
	for i := 0; i < n; i++ {
		ratio := math.Exp(out.LogLikelihood[i] - mb.oldLogProbs[i])
		unclipped := ratio * adv[i]
		clampedRatio := math.Max(lo, math.Min(hi, ratio))
		surr := math.Min(unclipped, clampedRatio*adv[i])
		surrogate -= surr / fn

		if math.Abs(ratio-1) > cfg.ClipRange {
			clipped++
		}

		// The surrogate gradient flows only when the unclipped branch
		// attains the min; otherwise the clamp is binding and the gradient
		// is zero. d ratio / d logProb = ratio.
		if unclipped <= clampedRatio*adv[i] {
			res.gradLogLik[i] -= unclipped / fn
		}
		// Entropy bonus: entropy_i = -logProb_i, total subtracts
		// EntropyLambda * mean(entropy).
		res.gradLogLik[i] += cfg.EntropyLambda / fn

		e := values[i] - mb.rewards[i]
		if math.Abs(e) <= 1 {
			valueLoss += 0.5 * e * e / fn
			res.gradValue[i] = cfg.VFLambda * e / fn
		} else {
			valueLoss += (math.Abs(e) - 0.5) / fn
			res.gradValue[i] = cfg.VFLambda * sign(e) / fn
		}

		entropySum += out.Entropy[i]
	}

	meanEntropy := entropySum / fn
	res.components = nco.LossComponents{
		Surrogate: surrogate,
		Value:     valueLoss,
		Entropy:   meanEntropy,
		Total:     surrogate + cfg.VFLambda*valueLoss - cfg.EntropyLambda*meanEntropy,
	}
	res.clipFraction = clipped / fn
	return res, nil
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}
