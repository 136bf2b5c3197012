/*
Package metrics scores held-out predictions per task and aggregated across
tasks. Missing targets (NaN) are filtered per entry, never raised: a task
with zero valid entries scores NaN and drops out of the cross-task mean.
*/
package metrics

import (
	"math"
	"sort"

	"golang.org/x/xerrors"

	"go-chem.dev/pkg/molnet"
	"go-chem.dev/pkg/molnet/fu"
)

type Metric int

const (
	RMSE Metric = iota
	MAE
	AUC
	MCC
	F1
	Accuracy
	SID
)

// Parse resolves a metric name; unknown names are a configuration error.
func Parse(name string) (Metric, error) {
	switch name {
	case "rmse":
		return RMSE, nil
	case "mae":
		return MAE, nil
	case "auc":
		return AUC, nil
	case "mcc":
		return MCC, nil
	case "f1":
		return F1, nil
	case "accuracy":
		return Accuracy, nil
	case "sid":
		return SID, nil
	}
	return 0, xerrors.Errorf("unknown metric %q: %w", name, molnet.ErrConfiguration)
}

func (m Metric) String() string {
	switch m {
	case RMSE:
		return "rmse"
	case MAE:
		return "mae"
	case AUC:
		return "auc"
	case MCC:
		return "mcc"
	case F1:
		return "f1"
	case Accuracy:
		return "accuracy"
	case SID:
		return "sid"
	}
	return "unknown"
}

// LowerIsBetter is the metric polarity: early stopping and the hyperopt
// objective minimize when true and maximize otherwise.
func (m Metric) LowerIsBetter() bool {
	switch m {
	case RMSE, MAE, SID:
		return true
	}
	return false
}

/*
Result is one metric over one evaluation: a score per task plus their
NaN-excluded mean. SID is scored over the whole spectrum, so its PerTask
holds a single entry.
*/
type Result struct {
	PerTask []float64
	Mean    float64
}

/*
Options carries the spectra context needed by SID: per-row phase feature
vectors and the phase exclusion mask. Both are optional.
*/
type Options struct {
	PhaseFeatures [][]float64
	PhaseMask     [][]bool
}

/*
Evaluate scores aligned prediction and target matrices (rows = datapoints,
columns = tasks) with every requested metric. Classification metrics
binarize predictions at 0.5 (AUC ranks raw scores). Rows whose prediction
is NaN for a task (failed featurization) and rows whose target is missing
are both excluded from that task's score.
*/
func Evaluate(ms []Metric, preds, targets [][]float64, opt Options) (map[Metric]Result, error) {
	if len(preds) != len(targets) {
		return nil, xerrors.Errorf("prediction rows %d != target rows %d: %w",
			len(preds), len(targets), molnet.ErrConfiguration)
	}
	out := make(map[Metric]Result, len(ms))
	for _, m := range ms {
		var r Result
		var err error
		if m == SID {
			r, err = evalSID(preds, targets, opt)
		} else {
			r = evalColumns(m, preds, targets)
		}
		if err != nil {
			return nil, err
		}
		out[m] = r
	}
	return out, nil
}

func evalColumns(m Metric, preds, targets [][]float64) Result {
	tasks := 0
	if len(targets) > 0 {
		tasks = len(targets[0])
	}
	per := make([]float64, tasks)
	for t := 0; t < tasks; t++ {
		var p, y []float64
		for i := range targets {
			if math.IsNaN(targets[i][t]) || math.IsNaN(preds[i][t]) {
				continue
			}
			p = append(p, preds[i][t])
			y = append(y, targets[i][t])
		}
		per[t] = scoreColumn(m, p, y)
	}
	return Result{PerTask: per, Mean: fu.NanMean(per)}
}

func scoreColumn(m Metric, p, y []float64) float64 {
	if len(p) == 0 {
		return math.NaN()
	}
	switch m {
	case RMSE:
		return math.Sqrt(fu.Mse(p, y))
	case MAE:
		var c float64
		for i := range p {
			c += math.Abs(p[i] - y[i])
		}
		return c / float64(len(p))
	case AUC:
		return rocAUC(p, y)
	case MCC, F1, Accuracy:
		var tp, fp, tn, fn float64
		for i := range p {
			pos := p[i] >= 0.5
			truth := y[i] >= 0.5
			switch {
			case pos && truth:
				tp++
			case pos && !truth:
				fp++
			case !pos && truth:
				fn++
			default:
				tn++
			}
		}
		switch m {
		case MCC:
			d := math.Sqrt((tp + fp) * (tp + fn) * (tn + fp) * (tn + fn))
			if d == 0 {
				return 0
			}
			return (tp*tn - fp*fn) / d
		case F1:
			if 2*tp+fp+fn == 0 {
				return 0
			}
			return 2 * tp / (2*tp + fp + fn)
		default:
			return (tp + tn) / float64(len(p))
		}
	}
	return math.NaN()
}

// rocAUC is the Mann-Whitney formulation of ROC AUC with midrank tie
// handling. NaN when only one class is present.
func rocAUC(p, y []float64) float64 {
	idx := make([]int, len(p))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return p[idx[a]] < p[idx[b]] })
	ranks := make([]float64, len(p))
	for i := 0; i < len(idx); {
		j := i
		for j < len(idx) && p[idx[j]] == p[idx[i]] {
			j++
		}
		r := float64(i+j+1) / 2 // midrank, 1-based
		for k := i; k < j; k++ {
			ranks[idx[k]] = r
		}
		i = j
	}
	var nPos, rankSum float64
	for i := range y {
		if y[i] >= 0.5 {
			nPos++
			rankSum += ranks[i]
		}
	}
	nNeg := float64(len(y)) - nPos
	if nPos == 0 || nNeg == 0 {
		return math.NaN()
	}
	return (rankSum - nPos*(nPos+1)/2) / (nPos * nNeg)
}

/*
evalSID normalizes both matrices under the phase mask, then averages the
per-row spectral information divergence over its unmasked positions. A
position that is NaN in either matrix contributes zero to the sum and is
excluded from the normalizing denominator.
*/
func evalSID(preds, targets [][]float64, opt Options) (Result, error) {
	np, _, err := Normalize(preds, opt.PhaseFeatures, opt.PhaseMask)
	if err != nil {
		return Result{}, err
	}
	nt, _, err := Normalize(targets, opt.PhaseFeatures, opt.PhaseMask)
	if err != nil {
		return Result{}, err
	}
	var rows []float64
	for i := range np {
		var sid float64
		n := 0
		for j := range np[i] {
			p, t := np[i][j], nt[i][j]
			if math.IsNaN(p) || math.IsNaN(t) {
				continue
			}
			sid += p*math.Log(p/t) + t*math.Log(t/p)
			n++
		}
		if n > 0 {
			rows = append(rows, sid)
		}
	}
	mean := fu.NanMean(rows)
	return Result{PerTask: []float64{mean}, Mean: mean}, nil
}
