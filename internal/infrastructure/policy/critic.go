package policy

import (
	"fmt"

	"github.com/Ashirog1/rl4co/internal/domain/nco"
	"github.com/Ashirog1/rl4co/internal/infrastructure/routing"
	"github.com/Ashirog1/rl4co/internal/infrastructure/tensor"
)

// ValueCritic estimates the expected reward of an instance from mean-pooled
// ReLU node features: v = mean_j ReLU(x_j W1 + b1) . w2 + b2.
type ValueCritic struct {
	w1 *tensor.Tensor // 2 x h
	b1 *tensor.Tensor // 1 x h
	w2 *tensor.Tensor // h x 1
	b2 *tensor.Tensor // 1 x 1
}

// NewCritic creates a critic with the given hidden width.
func NewCritic(hidden int, seed int64) *ValueCritic {
	p := New(Config{EmbedDim: hidden}, seed)
	return NewCriticFromPolicy(p)
}

// NewCriticFromPolicy derives a critic structurally from a policy: the hidden
// width follows the policy's embedding dimension and the weights are drawn
// from the policy's initializer stream.
func NewCriticFromPolicy(p *AttentionPolicy) *ValueCritic {
	h := p.cfg.EmbedDim
	return &ValueCritic{
		w1: tensor.NewXavier(p.rng, 2, h),
		b1: tensor.New(1, h),
		w2: tensor.NewXavier(p.rng, h, 1),
		b2: tensor.New(1, 1),
	}
}

// Parameters returns the trainable parameters.
func (c *ValueCritic) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{c.w1, c.b1, c.w2, c.b2}
}

// Estimate returns one value estimate per instance.
func (c *ValueCritic) Estimate(state nco.State) ([]float64, error) {
	st, ok := state.(*routing.State)
	if !ok {
		return nil, fmt.Errorf("policy: unsupported state type %T", state)
	}
	h := c.w1.Cols()
	values := make([]float64, st.Len())
	for i, coords := range st.Coords {
		pooled := make([]float64, h)
		for _, pt := range coords {
			for k := 0; k < h; k++ {
				z := pt.X*c.w1.At(0, k) + pt.Y*c.w1.At(1, k) + c.b1.Data[k]
				if z > 0 {
					pooled[k] += z
				}
			}
		}
		v := c.b2.Data[0]
		for k := 0; k < h; k++ {
			pooled[k] /= float64(len(coords))
			v += pooled[k] * c.w2.Data[k]
		}
		values[i] = v
	}
	return values, nil
}

// Backward accumulates into the parameter gradients the exact gradient of
// sum_i upstream[i] * value_i.
func (c *ValueCritic) Backward(state nco.State, upstream []float64) error {
	st, ok := state.(*routing.State)
	if !ok {
		return fmt.Errorf("policy: unsupported state type %T", state)
	}
	if len(upstream) != st.Len() {
		return fmt.Errorf("policy: backward arity mismatch: %d instances, %d coefficients", st.Len(), len(upstream))
	}
	h := c.w1.Cols()
	for i, coords := range st.Coords {
		g := upstream[i]
		if g == 0 {
			continue
		}
		inv := 1 / float64(len(coords))

		// v = pooled . w2 + b2, pooled = mean_j ReLU(z_j).
		pooled := make([]float64, h)
		for _, pt := range coords {
			for k := 0; k < h; k++ {
				z := pt.X*c.w1.At(0, k) + pt.Y*c.w1.At(1, k) + c.b1.Data[k]
				if z > 0 {
					pooled[k] += z * inv
				}
			}
		}
		for k := 0; k < h; k++ {
			c.w2.Grad[k] += g * pooled[k]
		}
		c.b2.Grad[0] += g

		w1g0 := c.w1.GradRow(0)
		w1g1 := c.w1.GradRow(1)
		b1g := c.b1.Grad
		for _, pt := range coords {
			for k := 0; k < h; k++ {
				z := pt.X*c.w1.At(0, k) + pt.Y*c.w1.At(1, k) + c.b1.Data[k]
				if z <= 0 {
					continue
				}
				dz := g * c.w2.Data[k] * inv
				w1g0[k] += dz * pt.X
				w1g1[k] += dz * pt.Y
				b1g[k] += dz
			}
		}
	}
	return nil
}
