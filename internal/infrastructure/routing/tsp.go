// Package routing provides routing environments for NCO training.
package routing

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/Ashirog1/rl4co/internal/domain/nco"
)

// Point is a node location in the unit square.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Batch is a batch of raw TSP instances.
type Batch struct {
	Coords [][]Point
}

// Len returns the number of instances.
func (b *Batch) Len() int { return len(b.Coords) }

// GenerateBatch samples batchSize instances of numNodes uniform points in
// the unit square.
func GenerateBatch(rng *rand.Rand, batchSize, numNodes int) *Batch {
	coords := make([][]Point, batchSize)
	for i := range coords {
		nodes := make([]Point, numNodes)
		for j := range nodes {
			nodes[j] = Point{X: rng.Float64(), Y: rng.Float64()}
		}
		coords[i] = nodes
	}
	return &Batch{Coords: coords}
}

// State is the environment state for a batch of TSP instances. The tour is
// constructed by the policy; the state carries only the instances.
type State struct {
	Coords [][]Point
}

// Len returns the number of instances.
func (s *State) Len() int { return len(s.Coords) }

// Subset returns a view restricted to the given instance indices.
func (s *State) Subset(idx []int) nco.State {
	coords := make([][]Point, len(idx))
	for i, j := range idx {
		coords[i] = s.Coords[j]
	}
	return &State{Coords: coords}
}

// NumNodes returns the instance size. All instances in a batch share it.
func (s *State) NumNodes() int {
	if len(s.Coords) == 0 {
		return 0
	}
	return len(s.Coords[0])
}

// Env is the Euclidean TSP environment. Reward is the negative closed-tour
// length, so higher is better.
type Env struct{}

// NewEnv creates a TSP environment.
func NewEnv() *Env { return &Env{} }

// Name returns "tsp".
func (e *Env) Name() string { return "tsp" }

// Reset initializes the state for a batch of instances.
func (e *Env) Reset(batch nco.Batch) (nco.State, error) {
	b, ok := batch.(*Batch)
	if !ok {
		return nil, fmt.Errorf("routing: unsupported batch type %T", batch)
	}
	if b.Len() == 0 {
		return nil, nco.ErrEmptyBatch
	}
	coords := make([][]Point, len(b.Coords))
	copy(coords, b.Coords)
	return &State{Coords: coords}, nil
}

// Reward returns the negative tour length per instance. A tour that is not a
// permutation of all nodes is infeasible and yields an error.
func (e *Env) Reward(state nco.State, actions [][]int) ([]float64, error) {
	s, ok := state.(*State)
	if !ok {
		return nil, fmt.Errorf("routing: unsupported state type %T", state)
	}
	if len(actions) != s.Len() {
		return nil, fmt.Errorf("routing: %d action sequences for %d instances", len(actions), s.Len())
	}
	rewards := make([]float64, len(actions))
	for i, tour := range actions {
		if err := ValidateTour(tour, len(s.Coords[i])); err != nil {
			return nil, fmt.Errorf("routing: instance %d: %w", i, err)
		}
		rewards[i] = -TourLength(s.Coords[i], tour)
	}
	return rewards, nil
}

// ValidateTour checks that tour visits each of n nodes exactly once.
func ValidateTour(tour []int, n int) error {
	if len(tour) != n {
		return fmt.Errorf("tour length %d != %d nodes", len(tour), n)
	}
	seen := make([]bool, n)
	for _, node := range tour {
		if node < 0 || node >= n {
			return fmt.Errorf("node %d out of range [0, %d)", node, n)
		}
		if seen[node] {
			return fmt.Errorf("node %d visited twice", node)
		}
		seen[node] = true
	}
	return nil
}

// TourLength returns the length of the closed tour over coords.
func TourLength(coords []Point, tour []int) float64 {
	var length float64
	for i := range tour {
		a := coords[tour[i]]
		b := coords[tour[(i+1)%len(tour)]]
		length += math.Hypot(a.X-b.X, a.Y-b.Y)
	}
	return length
}

// TwoOpt improves a closed tour with deterministic first-improvement 2-opt:
// reverse segment [i..k] whenever replacing arcs (a,b),(c,d) with (a,c),(b,d)
// shortens the tour. Returns the improved tour and its length.
func TwoOpt(coords []Point, tour []int) ([]int, float64) {
	n := len(tour)
	best := make([]int, n)
	copy(best, tour)

	dist := func(a, b int) float64 {
		pa, pb := coords[a], coords[b]
		return math.Hypot(pa.X-pb.X, pa.Y-pb.Y)
	}

	improved := true
	for improved {
		improved = false
		for i := 1; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				a, b := best[i-1], best[i]
				c, d := best[k], best[(k+1)%n]
				delta := dist(a, c) + dist(b, d) - dist(a, b) - dist(c, d)
				if delta < -1e-12 {
					for lo, hi := i, k; lo < hi; lo, hi = lo+1, hi-1 {
						best[lo], best[hi] = best[hi], best[lo]
					}
					improved = true
				}
			}
		}
	}
	return best, TourLength(coords, best)
}
