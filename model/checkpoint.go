package model

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go-ml.dev/pkg/iokit"
	"golang.org/x/xerrors"

	"go-chem.dev/pkg/molnet/data"
)

/*
Checkpoint is one serialized ensemble member plus everything needed to
rebuild a predictor without the original training configuration: task
names, identifier columns, hyper-parameters, scaler parameters, network
shape and weights.
*/
type Checkpoint struct {
	SmilesColumns []string             `json:"smiles_columns"`
	TaskNames     []string             `json:"task_names"`
	Hyper         Hyper                `json:"hyperparameters"`
	Config        FFNConfig            `json:"config"`
	Weights       []float64            `json:"weights"`
	TargetScaler  *data.StandardScaler `json:"target_scaler,omitempty"`
	FeatureScaler *data.StandardScaler `json:"feature_scaler,omitempty"`
	SavedAt       time.Time            `json:"saved_at"`
}

// Network rebuilds the trained reference network from the checkpoint.
func (c *Checkpoint) Network() Network {
	n := NewFFN(c.Config)
	n.Restore(c.Weights)
	return n
}

// Save writes the checkpoint as JSON through an iokit output, committing
// atomically.
func Save(out iokit.Output, c *Checkpoint) error {
	c.SavedAt = time.Now()
	b, err := json.Marshal(c)
	if err != nil {
		return xerrors.Errorf("encode checkpoint: %w", err)
	}
	wh, err := out.Create()
	if err != nil {
		return xerrors.Errorf("create checkpoint: %w", err)
	}
	defer wh.End()
	if _, err = wh.Write(b); err != nil {
		return xerrors.Errorf("write checkpoint: %w", err)
	}
	if err = wh.Commit(); err != nil {
		return xerrors.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// Load reads one checkpoint file.
func Load(path string) (*Checkpoint, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("read checkpoint %s: %w", path, err)
	}
	c := &Checkpoint{}
	if err = json.Unmarshal(b, c); err != nil {
		return nil, xerrors.Errorf("decode checkpoint %s: %w", path, err)
	}
	return c, nil
}

/*
LoadDir collects every model_*.json under a checkpoint directory tree,
fold subdirectories included, in deterministic path order.
*/
func LoadDir(dir string) ([]*Checkpoint, error) {
	var paths []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".json" && matchModel(filepath.Base(path)) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("scan checkpoints %s: %w", dir, err)
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, xerrors.Errorf("no checkpoints under %s", dir)
	}
	cs := make([]*Checkpoint, len(paths))
	for i, p := range paths {
		if cs[i], err = Load(p); err != nil {
			return nil, err
		}
	}
	return cs, nil
}

func matchModel(base string) bool {
	ok, _ := filepath.Match("model_*.json", base)
	return ok
}
