/*
Package predict loads trained ensembles from checkpoint artifacts and maps
new inputs to averaged predictions. Row alignment with the input order is a
hard invariant: a row whose featurization fails yields NaN for every task
instead of being dropped or aborting the batch.
*/
package predict

import (
	"encoding/csv"
	"math"
	"strconv"

	"go-ml.dev/pkg/iokit"
	"go-ml.dev/pkg/zorros/zlog"
	"golang.org/x/xerrors"

	"go-chem.dev/pkg/molnet"
	"go-chem.dev/pkg/molnet/data"
	"go-chem.dev/pkg/molnet/model"
)

type member struct {
	net           model.Network
	targetScaler  *data.StandardScaler
	featureScaler *data.StandardScaler
}

/*
Predictor is a loaded ensemble. Members may come from different folds and
carry their own scaler parameters, which are applied per member before the
predictions are averaged.
*/
type Predictor struct {
	SmilesColumns []string
	TaskNames     []string
	Generator     data.Generator // used when no external features are supplied
	members       []member
}

// Load collects every checkpoint under a directory tree into one ensemble.
func Load(dir string) (*Predictor, error) {
	cs, err := model.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return New(cs)
}

// New builds a predictor from already-loaded checkpoints, which must agree
// on their task names.
func New(cs []*model.Checkpoint) (*Predictor, error) {
	if len(cs) == 0 {
		return nil, xerrors.Errorf("no checkpoints: %w", molnet.ErrConfiguration)
	}
	p := &Predictor{
		SmilesColumns: cs[0].SmilesColumns,
		TaskNames:     cs[0].TaskNames,
		Generator:     data.HashedFingerprint{},
	}
	for _, c := range cs {
		if len(c.TaskNames) != len(p.TaskNames) {
			return nil, xerrors.Errorf("checkpoints disagree on task count: %w", molnet.ErrConfiguration)
		}
		p.members = append(p.members, member{
			net:           c.Network(),
			targetScaler:  c.TargetScaler,
			featureScaler: c.FeatureScaler,
		})
	}
	return p, nil
}

/*
Predict maps each input row independently to the arithmetic mean of the
member predictions. features may be nil, in which case the generator
featurizes the first molecule of each row; a generator failure marks that
row NaN across all tasks and the batch continues.
*/
func (p *Predictor) Predict(rows [][]string, features [][]float64) ([][]float64, error) {
	if features != nil && len(features) != len(rows) {
		return nil, xerrors.Errorf("feature file has %d rows, input has %d: %w",
			len(features), len(rows), molnet.ErrFeatureMismatch)
	}
	out := make([][]float64, len(rows))
	for i, row := range rows {
		var x []float64
		var err error
		switch {
		case features != nil:
			x = features[i]
		case len(row) == 0:
			err = xerrors.Errorf("row has no identifier")
		default:
			x, err = p.Generator.Generate(row[0])
		}
		if err != nil {
			zlog.Warning("featurization failed for row " + strconv.Itoa(i) + ": " + err.Error())
			out[i] = nanRow(len(p.TaskNames))
			continue
		}
		out[i] = p.predictRow(x)
	}
	return out, nil
}

func (p *Predictor) predictRow(x []float64) []float64 {
	acc := make([]float64, len(p.TaskNames))
	for _, m := range p.members {
		v := x
		if !m.featureScaler.Empty() {
			v = m.featureScaler.Transform([][]float64{x})[0]
		}
		pred := m.net.Predict(v)
		if !m.targetScaler.Empty() {
			pred = m.targetScaler.InverseTransform([][]float64{pred})[0]
		}
		for j := range acc {
			acc[j] += pred[j]
		}
	}
	for j := range acc {
		acc[j] /= float64(len(p.members))
	}
	return acc
}

func nanRow(n int) []float64 {
	r := make([]float64, n)
	for i := range r {
		r[i] = math.NaN()
	}
	return r
}

/*
WritePredictions writes the predictions table: the identifier columns
preserved in input order, then one column per task. Failed rows render as
NaN cells.
*/
func (p *Predictor) WritePredictions(out iokit.Output, rows [][]string, preds [][]float64) error {
	wh, err := out.Create()
	if err != nil {
		return xerrors.Errorf("create predictions file: %w", err)
	}
	defer wh.End()
	cw := csv.NewWriter(wh)
	if err = cw.Write(append(append([]string{}, p.SmilesColumns...), p.TaskNames...)); err != nil {
		return xerrors.Errorf("write predictions: %w", err)
	}
	for i, row := range rows {
		rec := append([]string{}, row...)
		for _, v := range preds[i] {
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err = cw.Write(rec); err != nil {
			return xerrors.Errorf("write predictions: %w", err)
		}
	}
	cw.Flush()
	if err = cw.Error(); err != nil {
		return xerrors.Errorf("write predictions: %w", err)
	}
	if err = wh.Commit(); err != nil {
		return xerrors.Errorf("commit predictions: %w", err)
	}
	return nil
}
