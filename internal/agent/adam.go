package agent

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Adam is the Adam optimizer with bias correction.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	m, v []layer
	t    int
}

// NewAdam allocates moment buffers shaped like net.
func NewAdam(net *QNetwork, lr float64) *Adam {
	return &Adam{
		LR:    lr,
		Beta1: 0.9,
		Beta2: 0.999,
		Eps:   1e-8,
		m:     zeroLike(net.layers),
		v:     zeroLike(net.layers),
	}
}

// Step applies one update to net given grads from backward.
func (a *Adam) Step(net *QNetwork, grads []layer) {
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for i := range net.layers {
		a.apply(net.layers[i].W, grads[i].W, a.m[i].W, a.v[i].W, c1, c2)
		a.apply(net.layers[i].B, grads[i].B, a.m[i].B, a.v[i].B, c1, c2)
	}
}

func (a *Adam) apply(p, g, m, v *mat.Dense, c1, c2 float64) {
	pd := p.RawMatrix().Data
	gd := g.RawMatrix().Data
	md := m.RawMatrix().Data
	vd := v.RawMatrix().Data
	for k := range pd {
		md[k] = a.Beta1*md[k] + (1-a.Beta1)*gd[k]
		vd[k] = a.Beta2*vd[k] + (1-a.Beta2)*gd[k]*gd[k]
		mHat := md[k] / c1
		vHat := vd[k] / c2
		pd[k] -= a.LR * mHat / (math.Sqrt(vHat) + a.Eps)
	}
}
