package model

import (
	"math"

	"golang.org/x/xerrors"

	"go-chem.dev/pkg/molnet"
	"go-chem.dev/pkg/molnet/data"
)

type LossKind int

const (
	MSE LossKind = iota
	BoundedMSE
	BCE
	MCCLoss
	SIDLoss
)

// ParseLoss resolves a loss function name at configuration time; unknown
// names are rejected before any training starts.
func ParseLoss(name string) (LossKind, error) {
	switch name {
	case "mse":
		return MSE, nil
	case "bounded_mse":
		return BoundedMSE, nil
	case "binary_cross_entropy", "bce":
		return BCE, nil
	case "mcc":
		return MCCLoss, nil
	case "sid":
		return SIDLoss, nil
	}
	return 0, xerrors.Errorf("unknown loss function %q: %w", name, molnet.ErrConfiguration)
}

func (k LossKind) String() string {
	switch k {
	case MSE:
		return "mse"
	case BoundedMSE:
		return "bounded_mse"
	case BCE:
		return "binary_cross_entropy"
	case MCCLoss:
		return "mcc"
	case SIDLoss:
		return "sid"
	}
	return "unknown"
}

/*
Loss scores a batch of activated network outputs against targets and
produces the gradient with respect to those outputs. Missing targets (NaN)
contribute nothing to either. Bounds carries per-entry inequality markers
and may be nil.
*/
type Loss interface {
	Eval(preds, targets [][]float64, bounds [][]data.Bound) float64
	Grad(preds, targets [][]float64, bounds [][]data.Bound) [][]float64
}

// NewLoss builds the evaluation function for a loss kind.
func NewLoss(k LossKind) Loss {
	switch k {
	case BoundedMSE:
		return boundedMSE{}
	case BCE:
		return bceLoss{}
	case MCCLoss:
		return mccLoss{}
	case SIDLoss:
		return sidLoss{}
	default:
		return mseLoss{}
	}
}

func zeros(like [][]float64) [][]float64 {
	g := make([][]float64, len(like))
	for i := range like {
		g[i] = make([]float64, len(like[i]))
	}
	return g
}

type mseLoss struct{}

func (mseLoss) Eval(preds, targets [][]float64, _ [][]data.Bound) float64 {
	var c float64
	n := 0
	for i := range targets {
		for j, t := range targets[i] {
			if math.IsNaN(t) {
				continue
			}
			q := preds[i][j] - t
			c += q * q
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return c / float64(n)
}

func (mseLoss) Grad(preds, targets [][]float64, _ [][]data.Bound) [][]float64 {
	g := zeros(preds)
	n := countValid(targets)
	if n == 0 {
		return g
	}
	for i := range targets {
		for j, t := range targets[i] {
			if !math.IsNaN(t) {
				g[i][j] = 2 * (preds[i][j] - t) / float64(n)
			}
		}
	}
	return g
}

/*
boundedMSE is squared error for exact targets; for inequality targets only
a violation of the bound is penalized, so a prediction already on the right
side of ">= v" or "<= v" contributes exactly zero.
*/
type boundedMSE struct{}

func (boundedMSE) satisfied(p, t float64, b data.Bound) bool {
	return (b == data.BoundGreater && p >= t) || (b == data.BoundLess && p <= t)
}

func (l boundedMSE) Eval(preds, targets [][]float64, bounds [][]data.Bound) float64 {
	var c float64
	n := 0
	for i := range targets {
		for j, t := range targets[i] {
			if math.IsNaN(t) {
				continue
			}
			n++
			if bounds != nil && bounds[i] != nil && l.satisfied(preds[i][j], t, bounds[i][j]) {
				continue
			}
			q := preds[i][j] - t
			c += q * q
		}
	}
	if n == 0 {
		return 0
	}
	return c / float64(n)
}

func (l boundedMSE) Grad(preds, targets [][]float64, bounds [][]data.Bound) [][]float64 {
	g := zeros(preds)
	n := countValid(targets)
	if n == 0 {
		return g
	}
	for i := range targets {
		for j, t := range targets[i] {
			if math.IsNaN(t) {
				continue
			}
			if bounds != nil && bounds[i] != nil && l.satisfied(preds[i][j], t, bounds[i][j]) {
				continue
			}
			g[i][j] = 2 * (preds[i][j] - t) / float64(n)
		}
	}
	return g
}

// bceLoss is binary cross-entropy over sigmoid-activated outputs, the
// stock classification loss. Probabilities are clamped away from 0 and 1.
type bceLoss struct{}

const probEps = 1e-7

func clampProb(p float64) float64 {
	if p < probEps {
		return probEps
	}
	if p > 1-probEps {
		return 1 - probEps
	}
	return p
}

func (bceLoss) Eval(preds, targets [][]float64, _ [][]data.Bound) float64 {
	var c float64
	n := 0
	for i := range targets {
		for j, t := range targets[i] {
			if math.IsNaN(t) {
				continue
			}
			p := clampProb(preds[i][j])
			c += -t*math.Log(p) - (1-t)*math.Log(1-p)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return c / float64(n)
}

func (bceLoss) Grad(preds, targets [][]float64, _ [][]data.Bound) [][]float64 {
	g := zeros(preds)
	n := countValid(targets)
	if n == 0 {
		return g
	}
	for i := range targets {
		for j, t := range targets[i] {
			if !math.IsNaN(t) {
				p := clampProb(preds[i][j])
				g[i][j] = (p - t) / (p * (1 - p)) / float64(n)
			}
		}
	}
	return g
}

/*
mccLoss is a differentiable relaxation of the Matthews correlation
coefficient built from soft confusion counts per task; the loss is the
mean of 1 - mcc over tasks, so maximizing the coefficient minimizes it.
*/
type mccLoss struct{}

type softCounts struct{ tp, fp, fn, tn float64 }

func (softCounts) derive(y float64) softCounts {
	// d(count)/dp for one sample with label y
	return softCounts{tp: y, fp: 1 - y, fn: -y, tn: -(1 - y)}
}

func (mccLoss) counts(preds, targets [][]float64, task int) softCounts {
	var c softCounts
	for i := range targets {
		t := targets[i][task]
		if math.IsNaN(t) {
			continue
		}
		p := clampProb(preds[i][task])
		c.tp += p * t
		c.fp += p * (1 - t)
		c.fn += (1 - p) * t
		c.tn += (1 - p) * (1 - t)
	}
	return c
}

func mcc(c softCounts) (coef, denom float64) {
	denom = math.Sqrt((c.tp + c.fp) * (c.tp + c.fn) * (c.tn + c.fp) * (c.tn + c.fn))
	if denom == 0 {
		return 0, 0
	}
	return (c.tp*c.tn - c.fp*c.fn) / denom, denom
}

func (l mccLoss) Eval(preds, targets [][]float64, _ [][]data.Bound) float64 {
	tasks := numTasks(targets)
	if tasks == 0 {
		return 0
	}
	var c float64
	for t := 0; t < tasks; t++ {
		coef, _ := mcc(l.counts(preds, targets, t))
		c += 1 - coef
	}
	return c / float64(tasks)
}

func (l mccLoss) Grad(preds, targets [][]float64, _ [][]data.Bound) [][]float64 {
	g := zeros(preds)
	tasks := numTasks(targets)
	if tasks == 0 {
		return g
	}
	for t := 0; t < tasks; t++ {
		c := l.counts(preds, targets, t)
		coef, denom := mcc(c)
		if denom == 0 {
			continue
		}
		for i := range targets {
			y := targets[i][t]
			if math.IsNaN(y) {
				continue
			}
			d := softCounts{}.derive(y)
			dnum := d.tp*c.tn + c.tp*d.tn - d.fp*c.fn - c.fp*d.fn
			// d(denom)/dp = denom/2 * sum of f'/f over the four factors
			ddenom := denom / 2 * ((d.tp+d.fp)/(c.tp+c.fp) +
				(d.tp+d.fn)/(c.tp+c.fn) +
				(d.tn+d.fp)/(c.tn+c.fp) +
				(d.tn+d.fn)/(c.tn+c.fn))
			dcoef := (dnum - coef*ddenom) / denom
			g[i][t] += -dcoef / float64(tasks)
		}
	}
	return g
}

/*
sidLoss is the spectral information divergence between the row-normalized
prediction and the already-normalized target distribution. Positions with
NaN targets (masked or missing) are excluded from both the normalization
and the sum. Predictions are clipped to the spectra floor so the divergence
stays finite; clipped entries get zero gradient. Rows without a single
measured position drop out of the batch mean entirely.
*/
type sidLoss struct{}

const sidFloor = 1e-8

func (sidLoss) rowLoss(pred, target []float64) (sid float64, grad []float64) {
	n := len(pred)
	clipped := make([]bool, n)
	p := make([]float64, n)
	var sum float64
	valid := 0
	for j, t := range target {
		if math.IsNaN(t) {
			p[j] = math.NaN()
			continue
		}
		v := pred[j]
		if v < sidFloor {
			v = sidFloor
			clipped[j] = true
		}
		p[j] = v
		sum += v
		valid++
	}
	if valid == 0 || sum == 0 {
		return 0, nil
	}
	grad = make([]float64, n)
	gdot := 0.0 // sum over j of phat_j * g_j
	gs := make([]float64, n)
	for j, t := range target {
		if math.IsNaN(t) {
			continue
		}
		ph := p[j] / sum
		sid += ph*math.Log(ph/t) + t*math.Log(t/ph)
		gj := math.Log(ph/t) + 1 - t/ph
		gs[j] = gj
		gdot += ph * gj
	}
	for j, t := range target {
		if math.IsNaN(t) || clipped[j] {
			continue
		}
		grad[j] = (gs[j] - gdot) / sum
	}
	return sid, grad
}

func (l sidLoss) Eval(preds, targets [][]float64, _ [][]data.Bound) float64 {
	var c float64
	n := 0
	for i := range targets {
		sid, g := l.rowLoss(preds[i], targets[i])
		if g == nil {
			continue // no measured positions in this row
		}
		c += sid
		n++
	}
	if n == 0 {
		return 0
	}
	return c / float64(n)
}

func (l sidLoss) Grad(preds, targets [][]float64, _ [][]data.Bound) [][]float64 {
	g := zeros(preds)
	rows := make([][]float64, len(targets))
	n := 0
	for i := range targets {
		_, row := l.rowLoss(preds[i], targets[i])
		if row == nil {
			continue
		}
		rows[i] = row
		n++
	}
	if n == 0 {
		return g
	}
	scale := 1 / float64(n)
	for i, row := range rows {
		for j := range row {
			g[i][j] = row[j] * scale
		}
	}
	return g
}

func countValid(targets [][]float64) int {
	n := 0
	for i := range targets {
		for _, t := range targets[i] {
			if !math.IsNaN(t) {
				n++
			}
		}
	}
	return n
}

func numTasks(targets [][]float64) int {
	if len(targets) == 0 {
		return 0
	}
	return len(targets[0])
}
