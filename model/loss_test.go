package model

import (
	"math"
	"testing"

	"golang.org/x/xerrors"
	"gotest.tools/assert"

	"go-chem.dev/pkg/molnet"
	"go-chem.dev/pkg/molnet/data"
)

func Test_ParseLoss(t *testing.T) {
	k, err := ParseLoss("bounded_mse")
	assert.NilError(t, err)
	assert.Equal(t, k, BoundedMSE)
	k, err = ParseLoss("bce")
	assert.NilError(t, err)
	assert.Equal(t, k, BCE)
	_, err = ParseLoss("hinge")
	assert.Assert(t, xerrors.Is(err, molnet.ErrConfiguration))
}

func Test_MSEIgnoresMissing(t *testing.T) {
	l := NewLoss(MSE)
	preds := [][]float64{{1, 5}, {3, 5}}
	targets := [][]float64{{2, math.NaN()}, {3, math.NaN()}}
	assert.Equal(t, l.Eval(preds, targets, nil), 0.5)
	g := l.Grad(preds, targets, nil)
	assert.Equal(t, g[0][1], 0.0)
	assert.Equal(t, g[1][1], 0.0)
}

func Test_BoundedMSESatisfiedIsZero(t *testing.T) {
	l := NewLoss(BoundedMSE)
	preds := [][]float64{{5, 1}}
	targets := [][]float64{{3, 3}}
	bounds := [][]data.Bound{{data.BoundGreater, data.BoundLess}}
	assert.Equal(t, l.Eval(preds, targets, bounds), 0.0)
	g := l.Grad(preds, targets, bounds)
	assert.Equal(t, g[0][0], 0.0)
	assert.Equal(t, g[0][1], 0.0)

	// violated bounds fall back to squared error
	viol := [][]float64{{1, 5}}
	assert.Equal(t, l.Eval(viol, targets, bounds), 4.0)
	g = l.Grad(viol, targets, bounds)
	assert.Assert(t, g[0][0] < 0)
	assert.Assert(t, g[0][1] > 0)
}

// checkGrad compares the analytic gradient against central differences.
func checkGrad(t *testing.T, l Loss, preds, targets [][]float64, tol float64) {
	t.Helper()
	g := l.Grad(preds, targets, nil)
	const h = 1e-6
	for i := range preds {
		for j := range preds[i] {
			orig := preds[i][j]
			preds[i][j] = orig + h
			up := l.Eval(preds, targets, nil)
			preds[i][j] = orig - h
			dn := l.Eval(preds, targets, nil)
			preds[i][j] = orig
			num := (up - dn) / (2 * h)
			assert.Assert(t, math.Abs(num-g[i][j]) < tol,
				"entry (%d,%d): numeric %v analytic %v", i, j, num, g[i][j])
		}
	}
}

func Test_MSEGradient(t *testing.T) {
	preds := [][]float64{{0.3, -1.2}, {2.1, 0.4}, {0.9, 0.0}}
	targets := [][]float64{{1, 0}, {2, math.NaN()}, {0.5, -1}}
	checkGrad(t, NewLoss(MSE), preds, targets, 1e-5)
}

func Test_BCEGradient(t *testing.T) {
	preds := [][]float64{{0.3, 0.8}, {0.6, 0.2}}
	targets := [][]float64{{1, 0}, {0, math.NaN()}}
	checkGrad(t, NewLoss(BCE), preds, targets, 1e-4)
}

func Test_MCCGradient(t *testing.T) {
	preds := [][]float64{{0.7}, {0.3}, {0.6}, {0.2}}
	targets := [][]float64{{1}, {0}, {0}, {1}}
	checkGrad(t, NewLoss(MCCLoss), preds, targets, 1e-4)
}

func Test_MCCPerfectPredictions(t *testing.T) {
	l := NewLoss(MCCLoss)
	preds := [][]float64{{0.999}, {0.001}, {0.999}, {0.001}}
	targets := [][]float64{{1}, {0}, {1}, {0}}
	assert.Assert(t, l.Eval(preds, targets, nil) < 0.01)
}

func Test_SIDIdenticalIsZero(t *testing.T) {
	l := NewLoss(SIDLoss)
	x := [][]float64{{0.2, 0.3, 0.5}}
	assert.Assert(t, math.Abs(l.Eval(x, x, nil)) < 1e-9)
	g := l.Grad(x, x, nil)
	for _, v := range g[0] {
		assert.Assert(t, math.Abs(v) < 1e-9)
	}
}

func Test_SIDSkipsAllMissingRows(t *testing.T) {
	l := NewLoss(SIDLoss)
	preds := [][]float64{{0.1, 0.5, 0.4}, {0.2, 0.2, 0.6}}
	targets := [][]float64{{0.3, 0.3, 0.4}, {math.NaN(), math.NaN(), math.NaN()}}
	// an unmeasured row must not dilute the mean
	assert.Equal(t, l.Eval(preds, targets, nil), l.Eval(preds[:1], targets[:1], nil))
	g := l.Grad(preds, targets, nil)
	for _, v := range g[1] {
		assert.Equal(t, v, 0.0)
	}
	checkGrad(t, l, preds, targets, 1e-4)
}

func Test_SIDGradient(t *testing.T) {
	preds := [][]float64{{0.1, 0.5, 0.4}, {0.4, 0.3, 0.3}}
	targets := [][]float64{{0.3, 0.3, 0.4}, {0.2, 0.2, math.NaN()}}
	checkGrad(t, NewLoss(SIDLoss), preds, targets, 1e-4)
}
