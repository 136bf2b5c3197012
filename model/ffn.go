package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

/*
FFNConfig shapes the reference feed-forward network. Depth stands in for
the message-passing encoder depth and FFNNumLayers for the readout head,
so the network carries Depth+FFNNumLayers-1 hidden layers of HiddenSize
units between InputSize and Tasks.
*/
type FFNConfig struct {
	InputSize    int     `json:"input_size"`
	Tasks        int     `json:"tasks"`
	HiddenSize   int     `json:"hidden_size"`
	Depth        int     `json:"depth"`
	FFNNumLayers int     `json:"ffn_num_layers"`
	Dropout      float64 `json:"dropout"`
	Activation   string  `json:"activation"` // output activation
	Seed         int64   `json:"-"`
}

type denseLayer struct {
	w *mat.Dense // out x in
	b []float64

	// forward cache
	in  *mat.Dense
	pre *mat.Dense
	drop [][]float64 // inverted dropout mask, nil outside training
}

/*
FFN is the reference Network: dense ReLU layers with inverted dropout,
plain SGD updates, and a configurable output activation.
*/
type FFN struct {
	cfg    FFNConfig
	layers []*denseLayer
	rng    *rand.Rand
	out    *mat.Dense // activated output cache
}

// NewFFN initializes the network with Glorot-style uniform weights drawn
// from the given seed.
func NewFFN(cfg FFNConfig) *FFN {
	if cfg.HiddenSize <= 0 {
		cfg.HiddenSize = DefaultHyper.HiddenSize
	}
	if cfg.Depth <= 0 {
		cfg.Depth = DefaultHyper.Depth
	}
	if cfg.FFNNumLayers <= 0 {
		cfg.FFNNumLayers = DefaultHyper.FFNNumLayers
	}
	if cfg.Activation == "" {
		cfg.Activation = ActIdentity
	}
	n := &FFN{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
	hidden := cfg.Depth + cfg.FFNNumLayers - 1
	sizes := []int{cfg.InputSize}
	for i := 0; i < hidden; i++ {
		sizes = append(sizes, cfg.HiddenSize)
	}
	sizes = append(sizes, cfg.Tasks)
	for i := 0; i+1 < len(sizes); i++ {
		n.layers = append(n.layers, n.newLayer(sizes[i], sizes[i+1]))
	}
	return n
}

func (n *FFN) newLayer(in, out int) *denseLayer {
	w := mat.NewDense(out, in, nil)
	limit := math.Sqrt(6 / float64(in+out))
	for i := 0; i < out; i++ {
		for j := 0; j < in; j++ {
			w.Set(i, j, (n.rng.Float64()*2-1)*limit)
		}
	}
	return &denseLayer{w: w, b: make([]float64, out)}
}

func (n *FFN) Clone(seed int64) Network {
	cfg := n.cfg
	cfg.Seed = seed
	return NewFFN(cfg)
}

func (n *FFN) Forward(x [][]float64, train bool) [][]float64 {
	h := denseFromRows(x, n.cfg.InputSize)
	last := len(n.layers) - 1
	for li, l := range n.layers {
		rows, _ := h.Dims()
		out, _ := l.w.Dims()
		pre := mat.NewDense(rows, out, nil)
		pre.Mul(h, l.w.T())
		for i := 0; i < rows; i++ {
			for j := 0; j < out; j++ {
				pre.Set(i, j, pre.At(i, j)+l.b[j])
			}
		}
		l.in, l.pre, l.drop = h, pre, nil
		act := mat.NewDense(rows, out, nil)
		if li == last {
			for i := 0; i < rows; i++ {
				for j := 0; j < out; j++ {
					act.Set(i, j, outputAct(n.cfg.Activation, pre.At(i, j)))
				}
			}
		} else {
			var drop [][]float64
			if train && n.cfg.Dropout > 0 {
				drop = make([][]float64, rows)
			}
			keep := 1 - n.cfg.Dropout
			for i := 0; i < rows; i++ {
				if drop != nil {
					drop[i] = make([]float64, out)
				}
				for j := 0; j < out; j++ {
					v := pre.At(i, j)
					if v < 0 {
						v = 0 // relu
					}
					if drop != nil {
						m := 0.0
						if n.rng.Float64() < keep {
							m = 1 / keep
						}
						drop[i][j] = m
						v *= m
					}
					act.Set(i, j, v)
				}
			}
			l.drop = drop
		}
		h = act
	}
	n.out = h
	return rowsFromDense(h)
}

func (n *FFN) Backward(grad [][]float64, lr float64) {
	rows := len(grad)
	if rows == 0 || n.out == nil {
		return
	}
	last := len(n.layers) - 1
	// delta starts as dLoss/dPre of the output layer
	delta := mat.NewDense(rows, n.cfg.Tasks, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < n.cfg.Tasks; j++ {
			delta.Set(i, j, grad[i][j]*outputActDeriv(n.cfg.Activation, n.out.At(i, j)))
		}
	}
	for li := last; li >= 0; li-- {
		l := n.layers[li]
		out, in := l.w.Dims()
		// gradient wrt the layer input, before updating weights
		var dIn *mat.Dense
		if li > 0 {
			dIn = mat.NewDense(rows, in, nil)
			dIn.Mul(delta, l.w)
		}
		dw := mat.NewDense(out, in, nil)
		dw.Mul(delta.T(), l.in)
		for i := 0; i < out; i++ {
			for j := 0; j < in; j++ {
				l.w.Set(i, j, l.w.At(i, j)-lr*dw.At(i, j))
			}
			var db float64
			for r := 0; r < rows; r++ {
				db += delta.At(r, i)
			}
			l.b[i] -= lr * db
		}
		if li == 0 {
			break
		}
		prev := n.layers[li-1]
		// chain through dropout and relu of the previous layer
		for i := 0; i < rows; i++ {
			for j := 0; j < in; j++ {
				v := dIn.At(i, j)
				if prev.drop != nil {
					v *= prev.drop[i][j]
				}
				if prev.pre.At(i, j) <= 0 {
					v = 0
				}
				dIn.Set(i, j, v)
			}
		}
		delta = dIn
	}
}

func (n *FFN) Predict(x []float64) []float64 {
	return n.Forward([][]float64{x}, false)[0]
}

func (n *FFN) Snapshot() []float64 {
	var w []float64
	for _, l := range n.layers {
		w = append(w, l.w.RawMatrix().Data...)
		w = append(w, l.b...)
	}
	return w
}

func (n *FFN) Restore(w []float64) {
	for _, l := range n.layers {
		d := l.w.RawMatrix().Data
		copy(d, w[:len(d)])
		w = w[len(d):]
		copy(l.b, w[:len(l.b)])
		w = w[len(l.b):]
	}
}

func outputAct(name string, v float64) float64 {
	switch name {
	case ActSigmoid:
		return 1 / (1 + math.Exp(-v))
	case ActSoftplus:
		if v > 30 {
			return v
		}
		return math.Log1p(math.Exp(v))
	}
	return v
}

// outputActDeriv is the activation derivative expressed through the
// activated value a.
func outputActDeriv(name string, a float64) float64 {
	switch name {
	case ActSigmoid:
		return a * (1 - a)
	case ActSoftplus:
		return 1 - math.Exp(-a) // sigmoid(pre) = 1 - exp(-softplus(pre))
	}
	return 1
}

func denseFromRows(x [][]float64, cols int) *mat.Dense {
	d := mat.NewDense(len(x), cols, nil)
	for i, row := range x {
		d.SetRow(i, row)
	}
	return d
}

func rowsFromDense(d *mat.Dense) [][]float64 {
	rows, cols := d.Dims()
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		r := make([]float64, cols)
		mat.Row(r, i, d)
		out[i] = r
	}
	return out
}
