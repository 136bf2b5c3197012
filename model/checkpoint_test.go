package model

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"go-ml.dev/pkg/iokit"
	"gotest.tools/assert"

	"go-chem.dev/pkg/molnet/data"
)

func Test_CheckpointRoundtrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "molnet-ckpt")
	assert.NilError(t, err)
	defer os.RemoveAll(dir)

	cfg := FFNConfig{InputSize: 4, Tasks: 2, HiddenSize: 8, Depth: 2, FFNNumLayers: 1, Seed: 11}
	n := NewFFN(cfg)
	c := &Checkpoint{
		SmilesColumns: []string{"smiles"},
		TaskNames:     []string{"logp", "logs"},
		Hyper:         Hyper{Depth: 2, HiddenSize: 8, FFNNumLayers: 1},
		Config:        cfg,
		Weights:       n.Snapshot(),
		TargetScaler:  &data.StandardScaler{Means: []float64{1, 2}, Stds: []float64{3, 4}},
	}
	path := filepath.Join(dir, "model_0.json")
	assert.NilError(t, Save(iokit.File(path), c))

	got, err := Load(path)
	assert.NilError(t, err)
	assert.DeepEqual(t, got.TaskNames, c.TaskNames)
	assert.DeepEqual(t, got.TargetScaler.Means, c.TargetScaler.Means)
	assert.Assert(t, got.FeatureScaler == nil)

	probe := []float64{0.1, 0.2, 0.3, 0.4}
	want := n.Predict(probe)
	restored := got.Network().Predict(probe)
	for i := range want {
		assert.Equal(t, restored[i], want[i])
	}
}

func Test_LoadDirWalksFolds(t *testing.T) {
	dir, err := ioutil.TempDir("", "molnet-ckpt")
	assert.NilError(t, err)
	defer os.RemoveAll(dir)

	cfg := FFNConfig{InputSize: 2, Tasks: 1, HiddenSize: 4, Depth: 2, FFNNumLayers: 1}
	for fold := 0; fold < 2; fold++ {
		sub := filepath.Join(dir, "fold_"+string(rune('0'+fold)))
		assert.NilError(t, os.MkdirAll(sub, 0755))
		for m := 0; m < 2; m++ {
			c := &Checkpoint{
				TaskNames: []string{"y"},
				Config:    cfg,
				Weights:   NewFFN(cfg).Snapshot(),
			}
			name := filepath.Join(sub, "model_"+string(rune('0'+m))+".json")
			assert.NilError(t, Save(iokit.File(name), c))
		}
		// non-checkpoint artifacts are skipped
		assert.NilError(t, ioutil.WriteFile(filepath.Join(sub, "test_scores.csv"), []byte("x"), 0644))
	}

	cs, err := LoadDir(dir)
	assert.NilError(t, err)
	assert.Equal(t, len(cs), 4)

	_, err = LoadDir(filepath.Join(dir, "fold_0", "missing"))
	assert.Assert(t, err != nil)
}
