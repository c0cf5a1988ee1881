// Package ppo implements Proximal Policy Optimization for autoregressive
// neural combinatorial optimization policies.
//
// Solution construction is treated as a single-step MDP: the whole decoded
// tour is one action, so there is no GAE or multi-step bootstrapping, the
// advantage is the episodic reward minus the critic estimate, and the policy
// entropy is a Monte Carlo proxy over complete solutions rather than a sum of
// per-decoding-step entropies.
package ppo

import (
	"github.com/Ashirog1/rl4co/internal/domain/nco"
)

// Collect runs the current policy over a problem batch and snapshots the
// behaviour-policy rollout PPO compares against: sampled action sequences,
// their summed log-probabilities, and the realized rewards. Decoding performs
// no gradient accumulation and leaves the policy untouched. Environment and
// policy errors propagate unmodified.
func Collect(policy nco.Policy, env nco.Environment, batch nco.Batch) (*nco.Rollout, error) {
	state, err := env.Reset(batch)
	if err != nil {
		return nil, err
	}

	out, err := policy.Decode(state, env, nco.DecodeOptions{Type: nco.DecodeSampling})
	if err != nil {
		return nil, err
	}

	rewards := out.Reward
	if rewards == nil {
		rewards, err = env.Reward(state, out.Actions)
		if err != nil {
			return nil, err
		}
	}

	return &nco.Rollout{
		State:       state,
		Actions:     out.Actions,
		OldLogProbs: out.LogLikelihood,
		Rewards:     rewards,
	}, nil
}
