/*
Package model defines the trainable network abstraction, the closed set of
loss functions, and checkpoint serialization. Message-passing encoder
internals are external collaborators: anything satisfying Network can be
trained, and the package ships a reference feed-forward network over
feature vectors.
*/
package model

import (
	"math"
	"path/filepath"

	"go-ml.dev/pkg/iokit"
)

/*
Params is a set of hyper-parameters used by hyper-parameter optimization to
generate new model configurations.
*/
type Params map[string]float64

/*
Get value of the parameter by name if exists and dflt value otherwise
*/
func (p Params) Get(name string, dflt float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return dflt
}

/*
Hyper is the tuned hyper-parameter subset: message-passing depth, hidden
layer width, feed-forward head depth, and dropout probability.
*/
type Hyper struct {
	Depth        int     `json:"depth"`
	HiddenSize   int     `json:"hidden_size"`
	FFNNumLayers int     `json:"ffn_num_layers"`
	Dropout      float64 `json:"dropout"`
}

// DefaultHyper mirrors the stock configuration.
var DefaultHyper = Hyper{Depth: 3, HiddenSize: 300, FFNNumLayers: 2, Dropout: 0}

// HyperFromParams overlays sampled params onto the defaults, rounding the
// integer-valued dimensions.
func HyperFromParams(p Params) Hyper {
	h := DefaultHyper
	h.Depth = int(math.Round(p.Get("depth", float64(h.Depth))))
	h.HiddenSize = int(math.Round(p.Get("hidden_size", float64(h.HiddenSize))))
	h.FFNNumLayers = int(math.Round(p.Get("ffn_num_layers", float64(h.FFNNumLayers))))
	h.Dropout = p.Get("dropout", h.Dropout)
	return h
}

// Params renders the tuned subset back as a parameter map.
func (h Hyper) Params() Params {
	return Params{
		"depth":          float64(h.Depth),
		"hidden_size":    float64(h.HiddenSize),
		"ffn_num_layers": float64(h.FFNNumLayers),
		"dropout":        h.Dropout,
	}
}

// Path resolves a relative artifact location to the shared model cache;
// absolute paths pass through unchanged.
func Path(s string) string {
	if filepath.IsAbs(s) {
		return s
	}
	return iokit.CacheFile(filepath.Join("go-chem", "Models", s))
}
