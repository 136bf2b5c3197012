package model

import (
	"testing"

	"gotest.tools/assert"
)

func Test_ParamsGet(t *testing.T) {
	p := Params{"depth": 4}
	assert.Equal(t, p.Get("depth", 3), 4.0)
	assert.Equal(t, p.Get("dropout", 0.1), 0.1)
}

func Test_HyperFromParams(t *testing.T) {
	h := HyperFromParams(Params{"depth": 4.4, "hidden_size": 899.7, "dropout": 0.25})
	assert.Equal(t, h.Depth, 4)
	assert.Equal(t, h.HiddenSize, 900)
	assert.Equal(t, h.FFNNumLayers, DefaultHyper.FFNNumLayers)
	assert.Equal(t, h.Dropout, 0.25)

	assert.Equal(t, HyperFromParams(nil), DefaultHyper)
}

func Test_HyperParamsRoundtrip(t *testing.T) {
	h := Hyper{Depth: 5, HiddenSize: 1200, FFNNumLayers: 3, Dropout: 0.35}
	assert.Equal(t, HyperFromParams(h.Params()), h)
}
