package hyperopt

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"go-ml.dev/pkg/iokit"
	"golang.org/x/xerrors"
	"gotest.tools/assert"

	"go-chem.dev/pkg/molnet"
	"go-chem.dev/pkg/molnet/data"
	"go-chem.dev/pkg/molnet/model"
	"go-chem.dev/pkg/molnet/split"
	"go-chem.dev/pkg/molnet/train"
)

func synthDataset(n int) *data.Dataset {
	ds := &data.Dataset{
		SmilesColumns: []string{"smiles"},
		TaskNames:     []string{"y"},
	}
	for i := 0; i < n; i++ {
		a := float64(i%11) / 11
		ds.Points = append(ds.Points, &data.Datapoint{
			Smiles:   []string{fmt.Sprintf("C%d", i)},
			Targets:  []float64{2*a - 1},
			Features: []float64{a, 1 - a},
		})
	}
	return ds
}

func Test_ValidateParams(t *testing.T) {
	s := Space{Variance: DefaultVariance()}
	assert.NilError(t, s.ValidateParams(model.Params{"depth": 4, "dropout": 0.2}))

	err := s.ValidateParams(model.Params{"depth": 7})
	assert.Assert(t, xerrors.Is(err, molnet.ErrSearchSpace))

	err = s.ValidateParams(model.Params{"dropout": -0.1})
	assert.Assert(t, xerrors.Is(err, molnet.ErrSearchSpace))

	err = s.ValidateParams(model.Params{"learning_rate": 0.01})
	assert.Assert(t, xerrors.Is(err, molnet.ErrSearchSpace))
}

func Test_Partition(t *testing.T) {
	history := []trial{
		{params: model.Params{"x": 1}, score: 0.1},
		{params: model.Params{"x": 2}, score: 0.9},
		{params: model.Params{"x": 3}, score: 0.5},
		{params: model.Params{"x": 4}, score: 0.7},
	}
	good, bad := partition(history, "x", 0.25)
	assert.Equal(t, len(good), 2) // gamma quantile plus one
	assert.Equal(t, len(bad), 2)
	assert.Equal(t, good[0], 2.0) // best score first
	assert.Equal(t, good[1], 4.0)
}

func Test_WriteConfig(t *testing.T) {
	dir, err := ioutil.TempDir("", "molnet-hyperopt")
	assert.NilError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.json")
	p := model.Params{"depth": 5.2, "hidden_size": 1200, "ffn_num_layers": 2, "dropout": 0.15}
	assert.NilError(t, WriteConfig(iokit.File(path), p))

	b, err := ioutil.ReadFile(path)
	assert.NilError(t, err)
	var got map[string]interface{}
	assert.NilError(t, json.Unmarshal(b, &got))
	assert.Equal(t, got["depth"], 5.0) // rounded to an integer dimension
	assert.Equal(t, got["hidden_size"], 1200.0)
	assert.Equal(t, got["ffn_num_layers"], 2.0)
	assert.Equal(t, got["dropout"], 0.15)
}

func Test_SearchFindsConfiguration(t *testing.T) {
	dir, err := ioutil.TempDir("", "molnet-hyperopt")
	assert.NilError(t, err)
	defer os.RemoveAll(dir)

	s := Space{
		Dataset: synthDataset(60),
		Config: train.Config{
			Training: train.Training{DatasetType: train.Regression, Epochs: 5, Seed: 1},
			NumFolds: 1,
			Split:    split.Options{Strategy: split.Random},
		},
		Variance: Variance{
			"depth":          IntRange{2, 3},
			"hidden_size":    IntRange{8, 16},
			"ffn_num_layers": Value(1),
			"dropout":        Range{0, 0.1},
		},
		Iterations: 3,
		Startup:    2,
		Seed:       7,
		ConfigFile: iokit.File(filepath.Join(dir, "config.json")),
	}
	r, err := s.Search()
	assert.NilError(t, err)
	assert.Equal(t, r.Trials, 3)
	assert.NilError(t, s.ValidateParams(r.Params))
	assert.Assert(t, r.Score < 1.0)

	h := model.HyperFromParams(r.Params)
	assert.Assert(t, h.Depth >= 2 && h.Depth <= 3)
	assert.Assert(t, h.HiddenSize >= 8 && h.HiddenSize <= 16)
	assert.Equal(t, h.FFNNumLayers, 1)

	_, err = os.Stat(filepath.Join(dir, "config.json"))
	assert.NilError(t, err)
}

func Test_SearchRejectsBadConfig(t *testing.T) {
	s := Space{
		Dataset: synthDataset(20),
		Config: train.Config{
			Training: train.Training{DatasetType: train.Regression, Loss: model.BCE, LossSet: true},
		},
		Iterations: 1,
	}
	_, err := s.Search()
	assert.Assert(t, xerrors.Is(err, molnet.ErrConfiguration))
}
