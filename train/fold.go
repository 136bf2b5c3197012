package train

import (
	"fmt"
	"os"
	"path/filepath"

	"go-ml.dev/pkg/iokit"
	"go-ml.dev/pkg/zorros"
	"go-ml.dev/pkg/zorros/zlog"
	"golang.org/x/xerrors"

	"go-chem.dev/pkg/molnet"
	"go-chem.dev/pkg/molnet/data"
	"go-chem.dev/pkg/molnet/fu"
	"go-chem.dev/pkg/molnet/metrics"
	"go-chem.dev/pkg/molnet/model"
	"go-chem.dev/pkg/molnet/split"
)

// TestScoresFileName is the aggregate scores table written under SaveDir.
const TestScoresFileName = "test_scores.csv"

// FoldScoresFileName is the per-fold detail table written alongside it.
const FoldScoresFileName = "fold_scores.csv"

/*
Config drives a full cross-validation run: NumFolds independent splits and
trainings, each incrementing the base seed, followed by cross-fold mean and
standard deviation of every requested metric.
*/
type Config struct {
	Training
	Hyper    model.Hyper
	NumFolds int
	Split    split.Options
	SaveDir  string // checkpoint and score artifacts; empty disables persistence
}

/*
Report is the cross-validation outcome: per-fold detail plus the cross-fold
mean and standard deviation of each metric's test score. Folds that failed
entirely score NaN and are excluded from the aggregates.
*/
type Report struct {
	Folds   []*FoldResult
	Metrics []metrics.Metric
	Mean    map[metrics.Metric]float64
	Std     map[metrics.Metric]float64
}

// Score is the cross-fold mean of the primary metric, the hyperopt
// objective value.
func (r *Report) Score(primary metrics.Metric) float64 { return r.Mean[primary] }

/*
Run performs the whole orchestration. Configuration and feature problems
surface before any fold trains; an invalid split is fatal only for its own
fold, which is recorded as all-NaN and skipped in aggregation.
*/
func Run(ds *data.Dataset, cfg Config) (*Report, error) {
	t := cfg.Training.withDefaults()
	if err := cfg.Training.Validate(); err != nil {
		return nil, err
	}
	if cfg.NumFolds <= 0 {
		cfg.NumFolds = 1
	}
	if cfg.SaveDir != "" {
		cfg.SaveDir = model.Path(cfg.SaveDir)
	}
	if ds.FeatureMatrix() == nil {
		if err := data.GenerateFeatures(ds, t.Generator); err != nil {
			return nil, zorros.Wrapf(err, "featurization failed: %v", err)
		}
	}

	ms := t.allMetrics()
	report := &Report{
		Metrics: ms,
		Mean:    map[metrics.Metric]float64{},
		Std:     map[metrics.Metric]float64{},
	}
	for fold := 0; fold < cfg.NumFolds; fold++ {
		seed := t.Seed + int64(fold)
		opt := cfg.Split
		opt.Seed = seed
		sp, err := split.New(ds, opt)
		if err != nil {
			if xerrors.Is(err, molnet.ErrInvalidSplit) && cfg.NumFolds > 1 {
				zlog.Warning(fmt.Sprintf("fold %d split failed: %v", fold, err))
				report.Folds = append(report.Folds, &FoldResult{
					Fold: fold, Seed: seed,
					Val: nanScores(ms), Test: nanScores(ms),
				})
				continue
			}
			return nil, err
		}
		res, err := t.TrainFold(ds, sp, cfg.Hyper, fold, seed)
		if err != nil {
			return nil, zorros.Wrapf(err, "fold %d failed: %v", fold, err)
		}
		if err = saveFold(cfg.SaveDir, res); err != nil {
			return nil, err
		}
		if t.Verbose != nil {
			t.Verbose(fmt.Sprintf("fold %d %v: %.6f", fold, t.Metric, res.Test[t.Metric].Mean))
		}
		report.Folds = append(report.Folds, res)
	}

	// aggregation waits for every fold; identity order is by construction
	for _, m := range ms {
		scores := make([]float64, len(report.Folds))
		for i, f := range report.Folds {
			scores[i] = f.Test[m].Mean
		}
		report.Mean[m], report.Std[m] = fu.NanMeanStd(scores)
	}
	if cfg.SaveDir != "" {
		if err := WriteTestScores(iokit.File(filepath.Join(cfg.SaveDir, TestScoresFileName)), report); err != nil {
			return nil, err
		}
		if err := WriteFoldScores(iokit.File(filepath.Join(cfg.SaveDir, FoldScoresFileName)), report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

/*
LuckyRun is Run throwing any occurred error as a panic.
*/
func LuckyRun(ds *data.Dataset, cfg Config) *Report {
	r, err := Run(ds, cfg)
	if err != nil {
		panic(zorros.Panic(err))
	}
	return r
}

// saveFold persists the fold's surviving members under
// SaveDir/fold_<i>/model_<j>.json.
func saveFold(dir string, res *FoldResult) error {
	if dir == "" {
		return nil
	}
	foldDir := filepath.Join(dir, fmt.Sprintf("fold_%d", res.Fold))
	if err := os.MkdirAll(foldDir, 0755); err != nil {
		return zorros.Wrapf(err, "create %s: %v", foldDir, err)
	}
	for j, c := range res.Checkpoints {
		out := iokit.File(filepath.Join(foldDir, fmt.Sprintf("model_%d.json", j)))
		if err := model.Save(out, c); err != nil {
			return zorros.Trace(err)
		}
	}
	return nil
}
