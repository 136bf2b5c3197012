/*
Package train drives k-fold cross-validated ensemble training: for each
fold it splits the dataset, trains EnsembleSize independently initialized
networks with early stopping on a validation metric, evaluates the ensemble
on the held-out partitions, and aggregates test scores across folds.
*/
package train

import (
	"golang.org/x/xerrors"

	"go-chem.dev/pkg/molnet"
	"go-chem.dev/pkg/molnet/data"
	"go-chem.dev/pkg/molnet/fu"
	"go-chem.dev/pkg/molnet/metrics"
	"go-chem.dev/pkg/molnet/model"
)

type DatasetType int

const (
	Regression DatasetType = iota
	Classification
	Spectra
)

// ParseDatasetType resolves a dataset type name; unknown names are a
// configuration error.
func ParseDatasetType(name string) (DatasetType, error) {
	switch name {
	case "regression":
		return Regression, nil
	case "classification":
		return Classification, nil
	case "spectra":
		return Spectra, nil
	}
	return 0, xerrors.Errorf("unknown dataset type %q: %w", name, molnet.ErrConfiguration)
}

func (t DatasetType) String() string {
	switch t {
	case Regression:
		return "regression"
	case Classification:
		return "classification"
	case Spectra:
		return "spectra"
	}
	return "unknown"
}

// DefaultMetric is the stock early-stopping metric per dataset type.
func (t DatasetType) DefaultMetric() metrics.Metric {
	switch t {
	case Classification:
		return metrics.AUC
	case Spectra:
		return metrics.SID
	}
	return metrics.RMSE
}

// DefaultLoss is the stock training loss per dataset type.
func (t DatasetType) DefaultLoss() model.LossKind {
	switch t {
	case Classification:
		return model.BCE
	case Spectra:
		return model.SIDLoss
	}
	return model.MSE
}

// Activation is the output activation the reference network uses for this
// dataset type.
func (t DatasetType) Activation() string {
	switch t {
	case Classification:
		return model.ActSigmoid
	case Spectra:
		return model.ActSoftplus
	}
	return model.ActIdentity
}

/*
Training is the per-fold trainer configuration. Zero values fall back to
the defaults below; Validate rejects incompatible combinations before any
training starts.
*/
type Training struct {
	DatasetType  DatasetType
	Epochs       int     // optimization epochs, default 30
	BatchSize    int     // default 50
	LearningRate float64 // SGD step, default 0.05
	EnsembleSize int     // independently initialized members, default 1

	Loss         model.LossKind    // default DatasetType.DefaultLoss()
	LossSet      bool              // distinguishes explicit MSE from the zero value
	Metric       metrics.Metric    // early stopping + primary metric
	MetricSet    bool              // distinguishes explicit RMSE from the zero value
	ExtraMetrics []metrics.Metric  // evaluated on top of Metric

	Patience          int  // epochs without improvement before training stops, default 5
	ClassBalance      bool // balanced batch resampling per task
	NoFeaturesScaling bool // skip external feature standardization

	Generator data.Generator // featurizer for rows without attached features
	PhaseMask [][]bool       // spectra phase exclusion mask

	Workers int   // ensemble worker pool size, default EnsembleSize
	Seed    int64 // base seed for initialization and batching

	Verbose func(string) // optional progress print hook
}

const (
	DefaultEpochs       = 30
	DefaultBatchSize    = 50
	DefaultLearningRate = 0.05
	DefaultPatience     = 5
)

// withDefaults resolves the zero-value fields.
func (t Training) withDefaults() Training {
	t.Epochs = fu.Fnzi(t.Epochs, DefaultEpochs)
	t.BatchSize = fu.Fnzi(t.BatchSize, DefaultBatchSize)
	t.EnsembleSize = fu.Fnzi(t.EnsembleSize, 1)
	t.Patience = fu.Fnzi(t.Patience, DefaultPatience)
	if t.LearningRate <= 0 {
		t.LearningRate = DefaultLearningRate
	}
	if !t.LossSet {
		t.Loss = t.DatasetType.DefaultLoss()
	}
	if !t.MetricSet {
		t.Metric = t.DatasetType.DefaultMetric()
	}
	if t.Generator == nil {
		t.Generator = data.HashedFingerprint{}
	}
	t.Workers = fu.Fnzi(t.Workers, t.EnsembleSize)
	return t
}

// Validate checks loss/metric compatibility with the dataset type.
func (t Training) Validate() error {
	t = t.withDefaults()
	lossFor := map[model.LossKind]DatasetType{
		model.MSE:        Regression,
		model.BoundedMSE: Regression,
		model.BCE:        Classification,
		model.MCCLoss:    Classification,
		model.SIDLoss:    Spectra,
	}
	if want, ok := lossFor[t.Loss]; !ok || want != t.DatasetType {
		return xerrors.Errorf("loss %v is incompatible with dataset type %v: %w",
			t.Loss, t.DatasetType, molnet.ErrConfiguration)
	}
	for _, m := range append([]metrics.Metric{t.Metric}, t.ExtraMetrics...) {
		if err := t.checkMetric(m); err != nil {
			return err
		}
	}
	if t.ClassBalance && t.DatasetType != Classification {
		return xerrors.Errorf("class balance requires a classification dataset: %w", molnet.ErrConfiguration)
	}
	return nil
}

func (t Training) checkMetric(m metrics.Metric) error {
	classOnly := m == metrics.AUC || m == metrics.MCC || m == metrics.F1 || m == metrics.Accuracy
	switch {
	case m == metrics.SID && t.DatasetType != Spectra,
		classOnly && t.DatasetType != Classification,
		(m == metrics.RMSE || m == metrics.MAE) && t.DatasetType == Classification:
		return xerrors.Errorf("metric %v is incompatible with dataset type %v: %w",
			m, t.DatasetType, molnet.ErrConfiguration)
	}
	return nil
}

// allMetrics is the requested metric list, primary first, deduplicated.
func (t Training) allMetrics() []metrics.Metric {
	ms := []metrics.Metric{t.Metric}
	for _, m := range t.ExtraMetrics {
		dup := false
		for _, k := range ms {
			if k == m {
				dup = true
			}
		}
		if !dup {
			ms = append(ms, m)
		}
	}
	return ms
}
