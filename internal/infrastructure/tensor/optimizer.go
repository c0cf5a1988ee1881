package tensor

import "math"

// Optimizer updates parameters from their accumulated gradients.
type Optimizer interface {
	// Step applies one update and leaves the gradients untouched.
	Step()

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// SetLR changes the learning rate (used by LR schedules).
	SetLR(lr float64)

	// LR returns the current learning rate.
	LR() float64
}

// Adam implements the Adam update rule with bias correction.
type Adam struct {
	params []*Tensor
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64

	m [][]float64
	v [][]float64
	t int
}

// NewAdam creates an Adam optimizer over the given parameters.
func NewAdam(params []*Tensor, lr float64) *Adam {
	m := make([][]float64, len(params))
	v := make([][]float64, len(params))
	for i, p := range params {
		m[i] = make([]float64, len(p.Data))
		v[i] = make([]float64, len(p.Data))
	}
	return &Adam{
		params: params,
		lr:     lr,
		beta1:  0.9,
		beta2:  0.999,
		eps:    1e-8,
		m:      m,
		v:      v,
	}
}

// Step applies one Adam update.
func (o *Adam) Step() {
	o.t++
	bias1 := 1 - math.Pow(o.beta1, float64(o.t))
	bias2 := 1 - math.Pow(o.beta2, float64(o.t))

	for i, p := range o.params {
		m, v := o.m[i], o.v[i]
		for j, g := range p.Grad {
			m[j] = o.beta1*m[j] + (1-o.beta1)*g
			v[j] = o.beta2*v[j] + (1-o.beta2)*g*g
			mHat := m[j] / bias1
			vHat := v[j] / bias2
			p.Data[j] -= o.lr * mHat / (math.Sqrt(vHat) + o.eps)
		}
	}
}

// ZeroGrad clears all parameter gradients.
func (o *Adam) ZeroGrad() { ZeroGrads(o.params) }

// SetLR changes the learning rate.
func (o *Adam) SetLR(lr float64) { o.lr = lr }

// LR returns the current learning rate.
func (o *Adam) LR() float64 { return o.lr }

// SGD implements stochastic gradient descent with momentum.
type SGD struct {
	params   []*Tensor
	lr       float64
	momentum float64

	vel [][]float64
}

// NewSGD creates an SGD optimizer with the given momentum.
func NewSGD(params []*Tensor, lr, momentum float64) *SGD {
	vel := make([][]float64, len(params))
	for i, p := range params {
		vel[i] = make([]float64, len(p.Data))
	}
	return &SGD{params: params, lr: lr, momentum: momentum, vel: vel}
}

// Step applies one momentum-SGD update.
func (o *SGD) Step() {
	for i, p := range o.params {
		vel := o.vel[i]
		for j, g := range p.Grad {
			vel[j] = o.momentum*vel[j] + (1-o.momentum)*g
			p.Data[j] -= o.lr * vel[j]
		}
	}
}

// ZeroGrad clears all parameter gradients.
func (o *SGD) ZeroGrad() { ZeroGrads(o.params) }

// SetLR changes the learning rate.
func (o *SGD) SetLR(lr float64) { o.lr = lr }

// LR returns the current learning rate.
func (o *SGD) LR() float64 { return o.lr }
