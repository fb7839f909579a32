package agent

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// layer is a fully connected layer: out = in·W + B.
type layer struct {
	W *mat.Dense // in x out
	B *mat.Dense // 1 x out
}

// QNetwork is a ReLU multilayer perceptron mapping a state to one value per action.
type QNetwork struct {
	layers []layer
}

// NewQNetwork builds an in→hidden→hidden→out network with weights drawn
// uniformly from ±1/sqrt(fan_in).
func NewQNetwork(in, hidden, out int, rng *rand.Rand) *QNetwork {
	sizes := []int{in, hidden, hidden, out}
	n := &QNetwork{}
	for i := 0; i < len(sizes)-1; i++ {
		fanIn, fanOut := sizes[i], sizes[i+1]
		bound := 1 / math.Sqrt(float64(fanIn))
		w := make([]float64, fanIn*fanOut)
		for j := range w {
			w[j] = (rng.Float64()*2 - 1) * bound
		}
		b := make([]float64, fanOut)
		for j := range b {
			b[j] = (rng.Float64()*2 - 1) * bound
		}
		n.layers = append(n.layers, layer{
			W: mat.NewDense(fanIn, fanOut, w),
			B: mat.NewDense(1, fanOut, b),
		})
	}
	return n
}

// InputDim is the expected state length.
func (n *QNetwork) InputDim() int {
	r, _ := n.layers[0].W.Dims()
	return r
}

// OutputDim is the number of actions.
func (n *QNetwork) OutputDim() int {
	_, c := n.layers[len(n.layers)-1].W.Dims()
	return c
}

// forward returns the input followed by every layer's activation; the last
// entry is the linear output.
func (n *QNetwork) forward(x *mat.Dense) []*mat.Dense {
	acts := make([]*mat.Dense, 0, len(n.layers)+1)
	acts = append(acts, x)
	cur := x
	for i, l := range n.layers {
		rows, _ := cur.Dims()
		_, cols := l.W.Dims()
		z := mat.NewDense(rows, cols, nil)
		z.Mul(cur, l.W)
		bias := l.B.RawRowView(0)
		last := i == len(n.layers)-1
		for r := 0; r < rows; r++ {
			zr := z.RawRowView(r)
			for j := range zr {
				zr[j] += bias[j]
				if !last && zr[j] < 0 {
					zr[j] = 0
				}
			}
		}
		acts = append(acts, z)
		cur = z
	}
	return acts
}

// PredictBatch evaluates every row of x.
func (n *QNetwork) PredictBatch(x *mat.Dense) *mat.Dense {
	acts := n.forward(x)
	return acts[len(acts)-1]
}

// Predict evaluates a single state.
func (n *QNetwork) Predict(state []float64) []float64 {
	x := mat.NewDense(1, len(state), append([]float64(nil), state...))
	out := n.PredictBatch(x)
	return append([]float64(nil), out.RawRowView(0)...)
}

// backward propagates dOut (gradient of the loss w.r.t. the output) through
// the activations recorded by forward and returns per-layer gradients.
func (n *QNetwork) backward(acts []*mat.Dense, dOut *mat.Dense) []layer {
	grads := make([]layer, len(n.layers))
	delta := dOut
	for i := len(n.layers) - 1; i >= 0; i-- {
		in := acts[i]

		var gW mat.Dense
		gW.Mul(in.T(), delta)

		rows, cols := delta.Dims()
		gB := mat.NewDense(1, cols, nil)
		sums := gB.RawRowView(0)
		for r := 0; r < rows; r++ {
			for j, v := range delta.RawRowView(r) {
				sums[j] += v
			}
		}
		grads[i] = layer{W: &gW, B: gB}

		if i == 0 {
			break
		}
		var prev mat.Dense
		prev.Mul(delta, n.layers[i].W.T())
		pr, _ := prev.Dims()
		for r := 0; r < pr; r++ {
			row := prev.RawRowView(r)
			act := in.RawRowView(r)
			for j := range row {
				if act[j] <= 0 {
					row[j] = 0
				}
			}
		}
		delta = &prev
	}
	return grads
}

// Clone returns a deep copy.
func (n *QNetwork) Clone() *QNetwork {
	c := &QNetwork{layers: make([]layer, len(n.layers))}
	for i, l := range n.layers {
		c.layers[i] = layer{W: mat.DenseCopyOf(l.W), B: mat.DenseCopyOf(l.B)}
	}
	return c
}

// CopyFrom overwrites n's parameters with src's.
func (n *QNetwork) CopyFrom(src *QNetwork) {
	for i := range n.layers {
		n.layers[i].W.Copy(src.layers[i].W)
		n.layers[i].B.Copy(src.layers[i].B)
	}
}

// Equal reports whether both networks hold identical parameters.
func (n *QNetwork) Equal(o *QNetwork) bool {
	if len(n.layers) != len(o.layers) {
		return false
	}
	for i := range n.layers {
		if !mat.Equal(n.layers[i].W, o.layers[i].W) || !mat.Equal(n.layers[i].B, o.layers[i].B) {
			return false
		}
	}
	return true
}

// LayerState is the serialisable form of one layer.
type LayerState struct {
	In  int       `json:"in"`
	Out int       `json:"out"`
	W   []float64 `json:"w"`
	B   []float64 `json:"b"`
}

func exportLayers(ls []layer) []LayerState {
	out := make([]LayerState, len(ls))
	for i, l := range ls {
		r, c := l.W.Dims()
		out[i] = LayerState{
			In:  r,
			Out: c,
			W:   append([]float64(nil), l.W.RawMatrix().Data...),
			B:   append([]float64(nil), l.B.RawRowView(0)...),
		}
	}
	return out
}

func checkLayers(dst []layer, src []LayerState) error {
	if len(dst) != len(src) {
		return fmt.Errorf("layer count mismatch: have %d, checkpoint %d", len(dst), len(src))
	}
	for i, s := range src {
		r, c := dst[i].W.Dims()
		if s.In != r || s.Out != c || len(s.W) != r*c || len(s.B) != c {
			return fmt.Errorf("layer %d shape mismatch: have %dx%d, checkpoint %dx%d", i, r, c, s.In, s.Out)
		}
	}
	return nil
}

// importLayers copies src into dst. Shapes must have passed checkLayers.
func importLayers(dst []layer, src []LayerState) {
	for i, s := range src {
		r, c := dst[i].W.Dims()
		dst[i].W.Copy(mat.NewDense(r, c, append([]float64(nil), s.W...)))
		dst[i].B.Copy(mat.NewDense(1, c, append([]float64(nil), s.B...)))
	}
}

func zeroLike(ls []layer) []layer {
	out := make([]layer, len(ls))
	for i, l := range ls {
		r, c := l.W.Dims()
		out[i] = layer{W: mat.NewDense(r, c, nil), B: mat.NewDense(1, c, nil)}
	}
	return out
}
