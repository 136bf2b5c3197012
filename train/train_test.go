package train

import (
	"encoding/csv"
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/xerrors"
	"gotest.tools/assert"

	"go-chem.dev/pkg/molnet"
	"go-chem.dev/pkg/molnet/data"
	"go-chem.dev/pkg/molnet/metrics"
	"go-chem.dev/pkg/molnet/model"
	"go-chem.dev/pkg/molnet/split"
)

// synthDataset builds a regression dataset whose single target is a linear
// function of the attached features, so a small network can fit it quickly.
func synthDataset(n int) *data.Dataset {
	ds := &data.Dataset{
		SmilesColumns: []string{"smiles"},
		TaskNames:     []string{"y"},
	}
	for i := 0; i < n; i++ {
		a := float64(i%17) / 17
		b := float64(i%5) / 5
		ds.Points = append(ds.Points, &data.Datapoint{
			Smiles:   []string{fmt.Sprintf("C%d", i)},
			Targets:  []float64{3*a - 2*b + 1},
			Features: []float64{a, b},
		})
	}
	return ds
}

func Test_ParseDatasetType(t *testing.T) {
	dt, err := ParseDatasetType("spectra")
	assert.NilError(t, err)
	assert.Equal(t, dt, Spectra)
	_, err = ParseDatasetType("multiclass")
	assert.Assert(t, xerrors.Is(err, molnet.ErrConfiguration))
}

func Test_DatasetTypeDefaults(t *testing.T) {
	assert.Equal(t, Regression.DefaultMetric(), metrics.RMSE)
	assert.Equal(t, Classification.DefaultMetric(), metrics.AUC)
	assert.Equal(t, Spectra.DefaultMetric(), metrics.SID)
	assert.Equal(t, Regression.DefaultLoss(), model.MSE)
	assert.Equal(t, Classification.DefaultLoss(), model.BCE)
	assert.Equal(t, Spectra.DefaultLoss(), model.SIDLoss)
	assert.Equal(t, Classification.Activation(), model.ActSigmoid)
	assert.Equal(t, Spectra.Activation(), model.ActSoftplus)
}

func Test_ValidateConfig(t *testing.T) {
	assert.NilError(t, Training{DatasetType: Regression}.Validate())

	err := Training{DatasetType: Regression, Loss: model.BCE, LossSet: true}.Validate()
	assert.Assert(t, xerrors.Is(err, molnet.ErrConfiguration))

	err = Training{DatasetType: Regression, Metric: metrics.AUC, MetricSet: true}.Validate()
	assert.Assert(t, xerrors.Is(err, molnet.ErrConfiguration))

	err = Training{DatasetType: Classification, ExtraMetrics: []metrics.Metric{metrics.RMSE}}.Validate()
	assert.Assert(t, xerrors.Is(err, molnet.ErrConfiguration))

	err = Training{DatasetType: Regression, ClassBalance: true}.Validate()
	assert.Assert(t, xerrors.Is(err, molnet.ErrConfiguration))

	assert.NilError(t, Training{
		DatasetType:  Classification,
		ClassBalance: true,
		ExtraMetrics: []metrics.Metric{metrics.MCC, metrics.F1},
	}.Validate())
}

func Test_RunCrossValidation(t *testing.T) {
	dir, err := ioutil.TempDir("", "molnet-train")
	assert.NilError(t, err)
	defer os.RemoveAll(dir)

	ds := synthDataset(120)
	cfg := Config{
		Training: Training{
			DatasetType:  Regression,
			Epochs:       40,
			BatchSize:    16,
			EnsembleSize: 2,
			Seed:         1,
		},
		Hyper:    model.Hyper{Depth: 2, HiddenSize: 16, FFNNumLayers: 1},
		NumFolds: 3,
		Split:    split.Options{Strategy: split.Random},
		SaveDir:  dir,
	}
	report, err := Run(ds, cfg)
	assert.NilError(t, err)
	assert.Equal(t, len(report.Folds), 3)
	assert.Assert(t, !math.IsNaN(report.Score(metrics.RMSE)))
	assert.Assert(t, report.Score(metrics.RMSE) < 1.0, "rmse %v", report.Score(metrics.RMSE))

	for fold := 0; fold < 3; fold++ {
		assert.Equal(t, report.Folds[fold].Fold, fold)
		assert.Equal(t, len(report.Folds[fold].Checkpoints), 2)
		for m := 0; m < 2; m++ {
			p := filepath.Join(dir, fmt.Sprintf("fold_%d", fold), fmt.Sprintf("model_%d.json", m))
			_, err = os.Stat(p)
			assert.NilError(t, err)
		}
	}

	b, err := ioutil.ReadFile(filepath.Join(dir, TestScoresFileName))
	assert.NilError(t, err)
	rows, err := csv.NewReader(strings.NewReader(string(b))).ReadAll()
	assert.NilError(t, err)
	assert.Equal(t, len(rows), 2) // header plus one aggregate row
	assert.Equal(t, rows[0][0], "Mean rmse")
	assert.Equal(t, rows[0][1], "Standard deviation rmse")

	b, err = ioutil.ReadFile(filepath.Join(dir, FoldScoresFileName))
	assert.NilError(t, err)
	rows, err = csv.NewReader(strings.NewReader(string(b))).ReadAll()
	assert.NilError(t, err)
	assert.Equal(t, len(rows), 4) // header plus three folds
}

func Test_RunDeterminism(t *testing.T) {
	ds := synthDataset(80)
	cfg := Config{
		Training: Training{DatasetType: Regression, Epochs: 10, Seed: 5},
		Hyper:    model.Hyper{Depth: 2, HiddenSize: 8, FFNNumLayers: 1},
		NumFolds: 1,
		Split:    split.Options{Strategy: split.Random},
	}
	a, err := Run(ds, cfg)
	assert.NilError(t, err)
	b, err := Run(ds, cfg)
	assert.NilError(t, err)
	assert.Equal(t, a.Score(metrics.RMSE), b.Score(metrics.RMSE))
}

func Test_RunRejectsBadConfig(t *testing.T) {
	ds := synthDataset(20)
	_, err := Run(ds, Config{
		Training: Training{DatasetType: Regression, Loss: model.SIDLoss, LossSet: true},
	})
	assert.Assert(t, xerrors.Is(err, molnet.ErrConfiguration))
}

func Test_RunSingleFoldSplitFailureIsFatal(t *testing.T) {
	ds := synthDataset(20)
	_, err := Run(ds, Config{
		Training: Training{DatasetType: Regression, Epochs: 1},
		NumFolds: 1,
		Split:    split.Options{Strategy: split.Random, Fractions: [3]float64{0.5, 0.2, 0.2}},
	})
	assert.Assert(t, xerrors.Is(err, molnet.ErrInvalidSplit))
}

func Test_TrainFoldScoresPartitions(t *testing.T) {
	ds := synthDataset(60)
	tr := Training{DatasetType: Regression, Epochs: 15, Seed: 2}
	sp, err := split.New(ds, split.Options{Strategy: split.Random, Seed: 2})
	assert.NilError(t, err)
	res, err := tr.TrainFold(ds, sp, model.Hyper{Depth: 2, HiddenSize: 8, FFNNumLayers: 1}, 0, 2)
	assert.NilError(t, err)
	assert.Equal(t, len(res.Checkpoints), 1)
	assert.Equal(t, res.FailedMembers, 0)
	assert.Assert(t, !math.IsNaN(res.Val[metrics.RMSE].Mean))
	assert.Assert(t, !math.IsNaN(res.Test[metrics.RMSE].Mean))
	// checkpoints carry the fold's scalers for standalone prediction
	assert.Assert(t, res.Checkpoints[0].TargetScaler != nil)
	assert.Assert(t, res.Checkpoints[0].FeatureScaler != nil)
}

// synthSpectra builds a spectra dataset: three intensity positions, two
// phases, targets smooth in the features.
func synthSpectra(n int) *data.Dataset {
	ds := &data.Dataset{
		SmilesColumns: []string{"smiles"},
		TaskNames:     []string{"i1", "i2", "i3"},
	}
	for i := 0; i < n; i++ {
		a := float64(i%13) / 13
		phase := []float64{1, 0}
		if i%2 == 1 {
			phase = []float64{0, 1}
		}
		ds.Points = append(ds.Points, &data.Datapoint{
			Smiles:        []string{fmt.Sprintf("C%d", i)},
			Targets:       []float64{1 + a, 2 - a, 0.5 + a/2},
			Features:      []float64{a, 1 - a},
			PhaseFeatures: phase,
		})
	}
	return ds
}

func Test_TrainFoldSpectra(t *testing.T) {
	ds := synthSpectra(60)
	mask := [][]bool{{true, true, false}, {true, true, true}} // phase 0 excludes position 3
	tr := Training{DatasetType: Spectra, Epochs: 8, PhaseMask: mask, Seed: 4}
	sp, err := split.New(ds, split.Options{Strategy: split.Random, Seed: 4})
	assert.NilError(t, err)
	res, err := tr.TrainFold(ds, sp, model.Hyper{Depth: 2, HiddenSize: 8, FFNNumLayers: 1}, 0, 4)
	assert.NilError(t, err)
	assert.Equal(t, res.FailedMembers, 0)
	assert.Equal(t, len(res.Checkpoints), 1)
	sid := res.Test[metrics.SID].Mean
	assert.Assert(t, !math.IsNaN(sid) && sid >= 0, "sid %v", sid)
	// spectra members train on normalized targets through a softplus head,
	// no target scaler
	assert.Equal(t, res.Checkpoints[0].Config.Activation, model.ActSoftplus)
	assert.Assert(t, res.Checkpoints[0].TargetScaler == nil)
}

func Test_NonFiniteMembersAbandoned(t *testing.T) {
	ds := synthDataset(60)
	tr := Training{
		DatasetType:  Regression,
		Epochs:       5,
		EnsembleSize: 2,
		LearningRate: 1e280, // blows the weights up on the first step
		Seed:         3,
	}
	sp, err := split.New(ds, split.Options{Strategy: split.Random, Seed: 3})
	assert.NilError(t, err)
	res, err := tr.TrainFold(ds, sp, model.Hyper{Depth: 2, HiddenSize: 8, FFNNumLayers: 1}, 0, 3)
	assert.NilError(t, err)
	assert.Equal(t, res.FailedMembers, 2)
	assert.Equal(t, len(res.Checkpoints), 0)
	assert.Assert(t, math.IsNaN(res.Val[metrics.RMSE].Mean))
	assert.Assert(t, math.IsNaN(res.Test[metrics.RMSE].Mean))

	// all-member failure is recovered per fold: the run still completes and
	// the all-NaN folds aggregate to NaN
	report, err := Run(ds, Config{
		Training: tr,
		Hyper:    model.Hyper{Depth: 2, HiddenSize: 8, FFNNumLayers: 1},
		NumFolds: 2,
		Split:    split.Options{Strategy: split.Random},
	})
	assert.NilError(t, err)
	assert.Equal(t, len(report.Folds), 2)
	assert.Assert(t, math.IsNaN(report.Score(metrics.RMSE)))
}

func Test_BalanceWeights(t *testing.T) {
	y := [][]float64{{1}, {0}, {0}, {0}, {math.NaN()}}
	w := balanceWeights(y)
	// one positive against three negatives: the positive samples heavier
	assert.Assert(t, w[0] > w[1])
	assert.Equal(t, w[1], w[2])
	assert.Equal(t, w[4], 1.0) // unmeasured row keeps neutral weight
	assert.Assert(t, math.Abs(w[0]-2) < 1e-9)
	assert.Assert(t, math.Abs(w[1]-4.0/6) < 1e-9)
}

func Test_EnsemblePredictAverages(t *testing.T) {
	a := model.NewFFN(model.FFNConfig{InputSize: 2, Tasks: 1, HiddenSize: 4, Depth: 2, FFNNumLayers: 1, Seed: 1})
	b := model.NewFFN(model.FFNConfig{InputSize: 2, Tasks: 1, HiddenSize: 4, Depth: 2, FFNNumLayers: 1, Seed: 2})
	x := [][]float64{{0.5, 0.5}}
	want := (a.Predict(x[0])[0] + b.Predict(x[0])[0]) / 2
	got := EnsemblePredict([]model.Network{a, b}, x)
	assert.Equal(t, len(got), 1)
	assert.Assert(t, math.Abs(got[0][0]-want) < 1e-12)
}

func Test_SignedScore(t *testing.T) {
	assert.Equal(t, signedScore(metrics.RMSE, 0.3), -0.3)
	assert.Equal(t, signedScore(metrics.AUC, 0.8), 0.8)
	assert.Equal(t, signedScore(metrics.RMSE, math.NaN()), math.Inf(-1))
	assert.Equal(t, rawScore(metrics.RMSE, -0.3), 0.3)
}
