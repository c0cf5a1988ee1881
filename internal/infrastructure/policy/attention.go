// Package policy provides autoregressive construction policies and critics
// for routing problems.
package policy

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/Ashirog1/rl4co/internal/domain/nco"
	"github.com/Ashirog1/rl4co/internal/infrastructure/routing"
	"github.com/Ashirog1/rl4co/internal/infrastructure/tensor"
)

// Config holds the attention policy hyperparameters.
type Config struct {
	// EmbedDim is the node embedding dimension.
	EmbedDim int `json:"embedDim"`

	// TanhClip bounds the pre-softmax compatibilities to [-TanhClip, TanhClip].
	TanhClip float64 `json:"tanhClip"`
}

// DefaultConfig returns the default policy configuration.
func DefaultConfig() Config {
	return Config{
		EmbedDim: 32,
		TanhClip: 10.0,
	}
}

// AttentionPolicy is a single-layer attention pointer network for tour
// construction. Nodes are embedded linearly; at each decoding step a query is
// projected from the graph embedding and the embeddings of the current and
// first nodes, and tanh-clipped compatibilities over unvisited nodes form the
// action distribution.
type AttentionPolicy struct {
	cfg Config
	rng *rand.Rand

	we     *tensor.Tensor // 2 x d node embedding
	be     *tensor.Tensor // 1 x d embedding bias
	wq     *tensor.Tensor // 3d x d query projection
	vStart *tensor.Tensor // 1 x d placeholder for current/first at step 0
}

// New creates an attention policy with Xavier-initialized parameters.
func New(cfg Config, seed int64) *AttentionPolicy {
	if cfg.EmbedDim <= 0 {
		cfg.EmbedDim = DefaultConfig().EmbedDim
	}
	if cfg.TanhClip <= 0 {
		cfg.TanhClip = DefaultConfig().TanhClip
	}
	rng := rand.New(rand.NewSource(seed))
	d := cfg.EmbedDim
	return &AttentionPolicy{
		cfg:    cfg,
		rng:    rng,
		we:     tensor.NewXavier(rng, 2, d),
		be:     tensor.New(1, d),
		wq:     tensor.NewXavier(rng, 3*d, d),
		vStart: tensor.NewXavier(rng, 1, d),
	}
}

// Config returns the policy configuration.
func (p *AttentionPolicy) Config() Config { return p.cfg }

// Parameters returns the trainable parameters.
func (p *AttentionPolicy) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{p.we, p.be, p.wq, p.vStart}
}

// Decode runs the policy over the state. With opts.Actions set, the stored
// sequences are scored under the current parameters without resampling;
// otherwise new tours are decoded per opts.Type. Decoding never touches
// gradient buffers.
func (p *AttentionPolicy) Decode(state nco.State, env nco.Environment, opts nco.DecodeOptions) (*nco.PolicyOutput, error) {
	st, ok := state.(*routing.State)
	if !ok {
		return nil, fmt.Errorf("policy: unsupported state type %T", state)
	}
	n := st.Len()
	scoreOnly := opts.Actions != nil
	if scoreOnly && len(opts.Actions) != n {
		return nil, fmt.Errorf("policy: %d action sequences for %d instances", len(opts.Actions), n)
	}

	out := &nco.PolicyOutput{
		Actions:       make([][]int, n),
		LogLikelihood: make([]float64, n),
	}
	if opts.ReturnEntropy {
		out.Entropy = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		var given []int
		if scoreOnly {
			given = opts.Actions[i]
		}
		trace, err := p.decodeInstance(st.Coords[i], given, opts.Type)
		if err != nil {
			return nil, fmt.Errorf("policy: instance %d: %w", i, err)
		}
		out.Actions[i] = trace.actions
		out.LogLikelihood[i] = trace.logLikelihood
		if opts.ReturnEntropy {
			// Single-sample Monte Carlo proxy for the entropy of the
			// distribution over complete solutions.
			out.Entropy[i] = -trace.logLikelihood
		}
	}

	if !scoreOnly && env != nil {
		rewards, err := env.Reward(state, out.Actions)
		if err != nil {
			return nil, err
		}
		out.Reward = rewards
	}

	return out, nil
}

// stepTrace caches one decoding step for backpropagation.
type stepTrace struct {
	ctx    []float64 // 1 x 3d decoder context
	q      []float64 // 1 x d query
	tanhs  []float64 // per-node tanh(z_j), defined where mask is true
	probs  []float64 // masked softmax over nodes
	mask   []bool    // true = still unvisited
	action int
}

// decodeTrace is the full decoding record of one instance.
type decodeTrace struct {
	embed         *tensor.Tensor // n x d node embeddings
	graph         []float64      // mean node embedding
	steps         []stepTrace
	actions       []int
	logLikelihood float64
}

// decodeInstance decodes (or scores) one instance and returns the trace.
// given selects score-only mode.
func (p *AttentionPolicy) decodeInstance(coords []routing.Point, given []int, decode nco.DecodeType) (*decodeTrace, error) {
	numNodes := len(coords)
	if numNodes < 2 {
		return nil, fmt.Errorf("instance needs at least 2 nodes, got %d", numNodes)
	}
	if given != nil && len(given) != numNodes {
		return nil, fmt.Errorf("stored tour length %d != %d nodes", len(given), numNodes)
	}
	d := p.cfg.EmbedDim
	scale := 1 / math.Sqrt(float64(d))

	// Encoder: E = X @ We + be, graph embedding = mean row.
	x := tensor.New(numNodes, 2)
	for j, pt := range coords {
		x.Set(j, 0, pt.X)
		x.Set(j, 1, pt.Y)
	}
	embed := tensor.MatMul(x, p.we)
	for j := 0; j < numNodes; j++ {
		row := embed.Row(j)
		for k := 0; k < d; k++ {
			row[k] += p.be.Data[k]
		}
	}
	graph := make([]float64, d)
	for j := 0; j < numNodes; j++ {
		row := embed.Row(j)
		for k := 0; k < d; k++ {
			graph[k] += row[k]
		}
	}
	for k := 0; k < d; k++ {
		graph[k] /= float64(numNodes)
	}

	trace := &decodeTrace{
		embed:   embed,
		graph:   graph,
		steps:   make([]stepTrace, 0, numNodes),
		actions: make([]int, 0, numNodes),
	}

	mask := make([]bool, numNodes)
	for j := range mask {
		mask[j] = true
	}
	first, current := -1, -1

	for t := 0; t < numNodes; t++ {
		// Context: [graph; current; first], learned placeholder before the
		// first selection.
		ctx := make([]float64, 3*d)
		copy(ctx[:d], graph)
		if current < 0 {
			copy(ctx[d:2*d], p.vStart.Data)
			copy(ctx[2*d:], p.vStart.Data)
		} else {
			copy(ctx[d:2*d], embed.Row(current))
			copy(ctx[2*d:], embed.Row(first))
		}

		// Query projection q = ctx @ Wq.
		q := make([]float64, d)
		for k := 0; k < d; k++ {
			var sum float64
			for m := 0; m < 3*d; m++ {
				sum += ctx[m] * p.wq.At(m, k)
			}
			q[k] = sum
		}

		// Tanh-clipped compatibilities over unvisited nodes.
		scores := make([]float64, numNodes)
		tanhs := make([]float64, numNodes)
		for j := 0; j < numNodes; j++ {
			if !mask[j] {
				continue
			}
			row := embed.Row(j)
			var z float64
			for k := 0; k < d; k++ {
				z += q[k] * row[k]
			}
			tanhs[j] = math.Tanh(z * scale)
			scores[j] = p.cfg.TanhClip * tanhs[j]
		}
		probs := tensor.MaskedSoftmax(scores, mask)

		var action int
		switch {
		case given != nil:
			action = given[t]
			if action < 0 || action >= numNodes || !mask[action] {
				return nil, fmt.Errorf("stored action %d infeasible at step %d", action, t)
			}
		case decode == nco.DecodeGreedy:
			action = argmaxMasked(probs, mask)
		default:
			action = sampleMasked(p.rng, probs, mask)
		}

		trace.logLikelihood += math.Log(probs[action])
		trace.steps = append(trace.steps, stepTrace{
			ctx:    ctx,
			q:      q,
			tanhs:  tanhs,
			probs:  probs,
			mask:   mask,
			action: action,
		})
		trace.actions = append(trace.actions, action)

		next := make([]bool, numNodes)
		copy(next, mask)
		next[action] = false
		mask = next
		if first < 0 {
			first = action
		}
		current = action
	}

	return trace, nil
}

// BackwardLogLikelihood accumulates into the parameter gradients the exact
// gradient of sum_i upstream[i] * logLikelihood_i for the stored action
// sequences, recomputing the forward decode per instance.
func (p *AttentionPolicy) BackwardLogLikelihood(state nco.State, actions [][]int, upstream []float64) error {
	st, ok := state.(*routing.State)
	if !ok {
		return fmt.Errorf("policy: unsupported state type %T", state)
	}
	if len(actions) != st.Len() || len(upstream) != st.Len() {
		return fmt.Errorf("policy: backward arity mismatch: %d instances, %d sequences, %d coefficients",
			st.Len(), len(actions), len(upstream))
	}

	for i := 0; i < st.Len(); i++ {
		if upstream[i] == 0 {
			continue
		}
		trace, err := p.decodeInstance(st.Coords[i], actions[i], "")
		if err != nil {
			return fmt.Errorf("policy: instance %d: %w", i, err)
		}
		p.backwardInstance(st.Coords[i], trace, upstream[i])
	}
	return nil
}

// backwardInstance backpropagates c * d(logLikelihood)/d(params) for one
// decoded instance.
func (p *AttentionPolicy) backwardInstance(coords []routing.Point, trace *decodeTrace, c float64) {
	numNodes := len(coords)
	d := p.cfg.EmbedDim
	scale := 1 / math.Sqrt(float64(d))

	// Gradient buffers for the node embeddings and the graph embedding.
	dEmbed := make([]float64, numNodes*d)
	dGraph := make([]float64, d)

	first := trace.actions[0]
	for t, step := range trace.steps {
		// d logprob / d scores is the softmax-categorical gradient over the
		// feasible positions.
		dq := make([]float64, d)
		for j := 0; j < numNodes; j++ {
			if !step.mask[j] {
				continue
			}
			du := -step.probs[j]
			if j == step.action {
				du++
			}
			du *= c
			// u_j = clip * tanh(z_j), z_j = (q . e_j) / sqrt(d).
			dz := du * p.cfg.TanhClip * tensor.TanhBackward(step.tanhs[j])
			row := trace.embed.Row(j)
			dRow := dEmbed[j*d : (j+1)*d]
			for k := 0; k < d; k++ {
				dq[k] += dz * row[k] * scale
				dRow[k] += dz * step.q[k] * scale
			}
		}

		// q = ctx @ Wq: accumulate Wq gradient and pull dq back to the context.
		dCtx := make([]float64, 3*d)
		for m := 0; m < 3*d; m++ {
			gRow := p.wq.GradRow(m)
			for k := 0; k < d; k++ {
				gRow[k] += step.ctx[m] * dq[k]
				dCtx[m] += p.wq.At(m, k) * dq[k]
			}
		}

		// Context pieces: graph mean, current node, first node.
		for k := 0; k < d; k++ {
			dGraph[k] += dCtx[k]
		}
		if t == 0 {
			g := p.vStart.Grad
			for k := 0; k < d; k++ {
				g[k] += dCtx[d+k] + dCtx[2*d+k]
			}
		} else {
			current := trace.actions[t-1]
			dCur := dEmbed[current*d : (current+1)*d]
			dFirst := dEmbed[first*d : (first+1)*d]
			for k := 0; k < d; k++ {
				dCur[k] += dCtx[d+k]
				dFirst[k] += dCtx[2*d+k]
			}
		}
	}

	// Graph embedding is the mean over nodes.
	inv := 1 / float64(numNodes)
	for j := 0; j < numNodes; j++ {
		dRow := dEmbed[j*d : (j+1)*d]
		for k := 0; k < d; k++ {
			dRow[k] += dGraph[k] * inv
		}
	}

	// E = X @ We + be.
	beGrad := p.be.Grad
	for j := 0; j < numNodes; j++ {
		pt := coords[j]
		dRow := dEmbed[j*d : (j+1)*d]
		weGrad0 := p.we.GradRow(0)
		weGrad1 := p.we.GradRow(1)
		for k := 0; k < d; k++ {
			weGrad0[k] += pt.X * dRow[k]
			weGrad1[k] += pt.Y * dRow[k]
			beGrad[k] += dRow[k]
		}
	}
}

func argmaxMasked(probs []float64, mask []bool) int {
	best := -1
	bestP := -1.0
	for j, p := range probs {
		if mask[j] && p > bestP {
			best, bestP = j, p
		}
	}
	return best
}

func sampleMasked(rng *rand.Rand, probs []float64, mask []bool) int {
	r := rng.Float64()
	var cum float64
	last := -1
	for j, p := range probs {
		if !mask[j] {
			continue
		}
		last = j
		cum += p
		if r < cum {
			return j
		}
	}
	return last
}
