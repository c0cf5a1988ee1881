// Package tensor provides the float64 matrix substrate for policy and critic
// networks: parameter storage with paired gradient buffers, matrix products,
// and the explicit backward helpers used by manual backpropagation.
package tensor

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Tensor is a row-major float64 matrix with a gradient buffer of the same
// shape. Vectors are 1×n tensors.
type Tensor struct {
	rows, cols int

	// Data holds the values, Grad the accumulated gradients.
	Data []float64
	Grad []float64
}

// New creates a zero tensor of the given shape.
func New(rows, cols int) *Tensor {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("tensor: invalid shape %dx%d", rows, cols))
	}
	return &Tensor{
		rows: rows,
		cols: cols,
		Data: make([]float64, rows*cols),
		Grad: make([]float64, rows*cols),
	}
}

// NewXavier creates a tensor with Xavier-style uniform initialization.
func NewXavier(rng *rand.Rand, rows, cols int) *Tensor {
	t := New(rows, cols)
	scale := math.Sqrt(2.0 / float64(rows+cols))
	for i := range t.Data {
		t.Data[i] = (rng.Float64()*2 - 1) * scale
	}
	return t
}

// Rows returns the row count.
func (t *Tensor) Rows() int { return t.rows }

// Cols returns the column count.
func (t *Tensor) Cols() int { return t.cols }

// At returns the element at (i, j).
func (t *Tensor) At(i, j int) float64 {
	return t.Data[i*t.cols+j]
}

// Set assigns the element at (i, j).
func (t *Tensor) Set(i, j int, v float64) {
	t.Data[i*t.cols+j] = v
}

// Row returns the i-th row as a slice view.
func (t *Tensor) Row(i int) []float64 {
	return t.Data[i*t.cols : (i+1)*t.cols]
}

// GradRow returns the i-th gradient row as a slice view.
func (t *Tensor) GradRow(i int) []float64 {
	return t.Grad[i*t.cols : (i+1)*t.cols]
}

// ZeroGrad clears the gradient buffer.
func (t *Tensor) ZeroGrad() {
	for i := range t.Grad {
		t.Grad[i] = 0
	}
}

// Clone returns a deep copy (values only, gradients zeroed).
func (t *Tensor) Clone() *Tensor {
	c := New(t.rows, t.cols)
	copy(c.Data, t.Data)
	return c
}

// dense wraps the value buffer as a gonum matrix without copying.
func (t *Tensor) dense() *mat.Dense {
	return mat.NewDense(t.rows, t.cols, t.Data)
}

// MatMul returns a @ b.
func MatMul(a, b *Tensor) *Tensor {
	if a.cols != b.rows {
		panic(fmt.Sprintf("tensor: matmul shape mismatch %dx%d @ %dx%d", a.rows, a.cols, b.rows, b.cols))
	}
	out := New(a.rows, b.cols)
	out.dense().Mul(a.dense(), b.dense())
	return out
}

// MatMulBackward computes the input gradients of c = a @ b given the
// upstream gradient on c:
//
//	gradA = gradC @ bᵀ
//	gradB = aᵀ @ gradC
//
// The gradients are accumulated into a.Grad and b.Grad.
func MatMulBackward(a, b *Tensor, gradC []float64) {
	gc := mat.NewDense(a.rows, b.cols, gradC)

	ga := mat.NewDense(a.rows, a.cols, nil)
	ga.Mul(gc, b.dense().T())
	for i, v := range ga.RawMatrix().Data {
		a.Grad[i] += v
	}

	gb := mat.NewDense(b.rows, b.cols, nil)
	gb.Mul(a.dense().T(), gc)
	for i, v := range gb.RawMatrix().Data {
		b.Grad[i] += v
	}
}

// Softmax returns the softmax of the scores, shifted by the maximum for
// numerical stability.
func Softmax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	maxv := scores[0]
	for _, s := range scores[1:] {
		if s > maxv {
			maxv = s
		}
	}
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(s - maxv)
		sum += out[i]
	}
	if sum > 0 {
		for i := range out {
			out[i] /= sum
		}
	}
	return out
}

// MaskedSoftmax is Softmax restricted to positions where mask is true.
// Masked positions receive probability zero.
func MaskedSoftmax(scores []float64, mask []bool) []float64 {
	out := make([]float64, len(scores))
	maxv := math.Inf(-1)
	for i, s := range scores {
		if mask[i] && s > maxv {
			maxv = s
		}
	}
	if math.IsInf(maxv, -1) {
		return out
	}
	var sum float64
	for i, s := range scores {
		if !mask[i] {
			continue
		}
		out[i] = math.Exp(s - maxv)
		sum += out[i]
	}
	if sum > 0 {
		for i := range out {
			out[i] /= sum
		}
	}
	return out
}

// TanhBackward returns the local derivative of tanh given the forward
// output y = tanh(x): dy/dx = 1 - y².
func TanhBackward(y float64) float64 {
	return 1 - y*y
}

// ReLUBackward routes the upstream gradient through max(0, x).
func ReLUBackward(x, upstream float64) float64 {
	if x > 0 {
		return upstream
	}
	return 0
}

// GradNorm returns the global L2 norm of the gradients across parameters.
func GradNorm(params []*Tensor) float64 {
	var sq float64
	for _, p := range params {
		for _, g := range p.Grad {
			sq += g * g
		}
	}
	return math.Sqrt(sq)
}

// ClipGradNorm rescales all gradients jointly so their global L2 norm does
// not exceed maxNorm. It returns the pre-clip norm.
func ClipGradNorm(params []*Tensor, maxNorm float64) float64 {
	norm := GradNorm(params)
	if norm > maxNorm && norm > 0 {
		scale := maxNorm / norm
		for _, p := range params {
			for i := range p.Grad {
				p.Grad[i] *= scale
			}
		}
	}
	return norm
}

// ZeroGrads clears the gradients of all parameters.
func ZeroGrads(params []*Tensor) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
