package train

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pbenner/threadpool"
	"go-ml.dev/pkg/zorros/zlog"
	"golang.org/x/xerrors"

	"go-chem.dev/pkg/molnet"
	"go-chem.dev/pkg/molnet/data"
	"go-chem.dev/pkg/molnet/fu"
	"go-chem.dev/pkg/molnet/metrics"
	"go-chem.dev/pkg/molnet/model"
	"go-chem.dev/pkg/molnet/split"
)

/*
FoldResult is one fold's split, its surviving ensemble checkpoints, and the
metric scores of the ensemble on the validation and test partitions. When
every member of the fold fails with a non-finite loss the checkpoints are
empty and all scores are NaN; the orchestrator still aggregates the
remaining folds.
*/
type FoldResult struct {
	Fold          int
	Seed          int64
	Split         split.Split
	Checkpoints   []*model.Checkpoint
	Val, Test     map[metrics.Metric]metrics.Result
	FailedMembers int
}

// foldData is the immutable per-fold view shared by all ensemble members.
type foldData struct {
	trainX, valX, testX [][]float64
	trainY              [][]float64 // scaled (regression) or normalized (spectra)
	trainB              [][]data.Bound
	rawValY, rawTestY   [][]float64
	valPhase, testPhase [][]float64
	trainWeights        []float64 // class-balance sampling weights, nil when disabled
	scaler              *data.StandardScaler
	featScaler          *data.StandardScaler
	cfg                 model.FFNConfig
}

/*
TrainFold trains one fold's ensemble on the split's train partition with
early stopping on the validation partition, then scores the ensemble on
validation and test. Ensemble members run on a worker pool; they share the
fold's immutable data and nothing else.
*/
func (t Training) TrainFold(ds *data.Dataset, sp split.Split, hyper model.Hyper, fold int, seed int64) (*FoldResult, error) {
	t = t.withDefaults()
	fd, err := t.prepare(ds, sp, hyper, seed)
	if err != nil {
		return nil, err
	}
	res := &FoldResult{Fold: fold, Seed: seed, Split: sp}
	loss := model.NewLoss(t.Loss)

	nets := make([]model.Network, t.EnsembleSize)
	errs := make([]error, t.EnsembleSize)
	pool := threadpool.New(fu.Mini(t.Workers, t.EnsembleSize), 100)
	pool.RangeJob(0, t.EnsembleSize, func(k int, pool threadpool.ThreadPool, erf func() error) error {
		nets[k], errs[k] = t.trainMember(fd, loss, seed+int64(k))
		return nil
	})
	for k, err := range errs {
		if err != nil {
			if !xerrors.Is(err, molnet.ErrNonFiniteLoss) {
				return nil, err
			}
			zlog.Warning(fmt.Sprintf("fold %d member %d abandoned: %v", fold, k, err))
			res.FailedMembers++
			nets[k] = nil
		}
	}

	var live []model.Network
	for _, n := range nets {
		if n == nil {
			continue
		}
		live = append(live, n)
		res.Checkpoints = append(res.Checkpoints, &model.Checkpoint{
			SmilesColumns: ds.SmilesColumns,
			TaskNames:     ds.TaskNames,
			Hyper:         hyper,
			Config:        fd.cfg,
			Weights:       n.Snapshot(),
			TargetScaler:  fd.scaler,
			FeatureScaler: fd.featScaler,
		})
	}
	ms := t.allMetrics()
	if len(live) == 0 {
		res.Val, res.Test = nanScores(ms), nanScores(ms)
		return res, nil
	}
	if res.Val, err = t.score(ms, live, fd.valX, fd.rawValY, fd.valPhase, fd.scaler); err != nil {
		return nil, err
	}
	if res.Test, err = t.score(ms, live, fd.testX, fd.rawTestY, fd.testPhase, fd.scaler); err != nil {
		return nil, err
	}
	return res, nil
}

func nanScores(ms []metrics.Metric) map[metrics.Metric]metrics.Result {
	out := make(map[metrics.Metric]metrics.Result, len(ms))
	for _, m := range ms {
		out[m] = metrics.Result{Mean: math.NaN()}
	}
	return out
}

// prepare builds the fold's immutable training view: featurized and scaled
// inputs, scaled or normalized training targets, and sampling weights.
func (t Training) prepare(ds *data.Dataset, sp split.Split, hyper model.Hyper, seed int64) (*foldData, error) {
	trainSet := ds.Subset(sp.Train)
	valSet := ds.Subset(sp.Val)
	testSet := ds.Subset(sp.Test)

	fd := &foldData{
		trainX:    featureRows(trainSet),
		valX:      featureRows(valSet),
		testX:     featureRows(testSet),
		rawValY:   valSet.Targets(),
		rawTestY:  testSet.Targets(),
		valPhase:  valSet.PhaseMatrix(),
		testPhase: testSet.PhaseMatrix(),
	}
	if !t.NoFeaturesScaling {
		fd.featScaler = data.FitScaler(fd.trainX)
		fd.trainX = fd.featScaler.Transform(fd.trainX)
		fd.valX = fd.featScaler.Transform(fd.valX)
		fd.testX = fd.featScaler.Transform(fd.testX)
	}

	fd.trainY = trainSet.Targets()
	switch t.DatasetType {
	case Regression:
		fd.scaler = data.FitScaler(fd.trainY)
		fd.trainY = fd.scaler.Transform(fd.trainY)
	case Spectra:
		y, _, err := metrics.Normalize(fd.trainY, trainSet.PhaseMatrix(), t.PhaseMask)
		if err != nil {
			return nil, err
		}
		fd.trainY = y
	}
	for _, p := range trainSet.Points {
		fd.trainB = append(fd.trainB, p.Bounds)
	}
	if t.ClassBalance {
		fd.trainWeights = balanceWeights(fd.trainY)
	}

	inputs := 0
	if len(fd.trainX) > 0 {
		inputs = len(fd.trainX[0])
	}
	fd.cfg = model.FFNConfig{
		InputSize:    inputs,
		Tasks:        ds.NumTasks(),
		HiddenSize:   hyper.HiddenSize,
		Depth:        hyper.Depth,
		FFNNumLayers: hyper.FFNNumLayers,
		Dropout:      hyper.Dropout,
		Activation:   t.DatasetType.Activation(),
		Seed:         seed,
	}
	return fd, nil
}

func featureRows(ds *data.Dataset) [][]float64 {
	x := make([][]float64, ds.Len())
	for i, p := range ds.Points {
		x[i] = p.Features
	}
	return x
}

/*
balanceWeights gives each row a sampling weight so positive and negative
labels carry equal expected frequency per task: every task contributes its
class weight n/(2*classCount) and a row averages the contributions of its
measured labels.
*/
func balanceWeights(y [][]float64) []float64 {
	if len(y) == 0 {
		return nil
	}
	tasks := len(y[0])
	pos := make([]float64, tasks)
	neg := make([]float64, tasks)
	for _, row := range y {
		for t, v := range row {
			if math.IsNaN(v) {
				continue
			}
			if v >= 0.5 {
				pos[t]++
			} else {
				neg[t]++
			}
		}
	}
	w := make([]float64, len(y))
	for i, row := range y {
		var c float64
		n := 0
		for t, v := range row {
			if math.IsNaN(v) || pos[t] == 0 || neg[t] == 0 {
				continue
			}
			total := pos[t] + neg[t]
			if v >= 0.5 {
				c += total / (2 * pos[t])
			} else {
				c += total / (2 * neg[t])
			}
			n++
		}
		if n == 0 {
			w[i] = 1
		} else {
			w[i] = c / float64(n)
		}
	}
	return w
}

/*
trainMember optimizes one independently initialized network. Per epoch it
shuffles (or class-balance resamples) the train rows into batches, steps
the network against the configured loss, then scores the validation
partition and snapshots the weights whenever the score improves. The best
snapshot is always what is returned. Two consecutive non-finite epoch
losses abandon the member with ErrNonFiniteLoss.
*/
func (t Training) trainMember(fd *foldData, loss model.Loss, seed int64) (model.Network, error) {
	rng := rand.New(rand.NewSource(seed))
	net := model.NewFFN(withSeed(fd.cfg, seed))

	var scorlog []float64
	var best []float64
	nonFinite := 0
	for epoch := 0; epoch < t.Epochs; epoch++ {
		order := t.epochOrder(fd, rng)
		var epochLoss float64
		nb := 0
		for lo := 0; lo < len(order); lo += t.BatchSize {
			hi := fu.Mini(lo+t.BatchSize, len(order))
			bx, by, bb := gatherBatch(fd, order[lo:hi])
			preds := net.Forward(bx, true)
			epochLoss += loss.Eval(preds, by, bb)
			nb++
			net.Backward(loss.Grad(preds, by, bb), t.LearningRate)
		}
		if nb > 0 {
			epochLoss /= float64(nb)
		}
		if !fu.Finite(epochLoss) {
			nonFinite++
			if nonFinite >= 2 {
				return nil, xerrors.Errorf("loss %v non-finite at epoch %d: %w",
					epochLoss, epoch, molnet.ErrNonFiniteLoss)
			}
		} else {
			nonFinite = 0
		}

		score, err := t.validationScore(net, fd)
		if err != nil {
			return nil, err
		}
		scorlog = append(scorlog, score)
		if fu.Indmaxd(scorlog) == len(scorlog)-1 {
			best = net.Snapshot()
		}
		if t.Verbose != nil {
			t.Verbose(fmt.Sprintf("[%3d] loss: %.5f, %v: %.5f", epoch, epochLoss, t.Metric, rawScore(t.Metric, score)))
		}
		if len(scorlog)-1-fu.Indmaxd(scorlog) >= t.Patience {
			break
		}
	}
	if best != nil {
		net.Restore(best)
	}
	return net, nil
}

func withSeed(cfg model.FFNConfig, seed int64) model.FFNConfig {
	cfg.Seed = seed
	return cfg
}

// epochOrder yields the training row order for one epoch: a plain shuffle,
// or weighted resampling with replacement under class balance.
func (t Training) epochOrder(fd *foldData, rng *rand.Rand) []int {
	n := len(fd.trainX)
	if fd.trainWeights == nil {
		return rng.Perm(n)
	}
	var total float64
	for _, w := range fd.trainWeights {
		total += w
	}
	order := make([]int, n)
	for i := range order {
		r := rng.Float64() * total
		for j, w := range fd.trainWeights {
			r -= w
			if r <= 0 || j == n-1 {
				order[i] = j
				break
			}
		}
	}
	return order
}

func gatherBatch(fd *foldData, idx []int) (bx, by [][]float64, bb [][]data.Bound) {
	bx = make([][]float64, len(idx))
	by = make([][]float64, len(idx))
	for i, j := range idx {
		bx[i] = fd.trainX[j]
		by[i] = fd.trainY[j]
		if fd.trainB != nil && fd.trainB[j] != nil {
			if bb == nil {
				bb = make([][]data.Bound, len(idx))
			}
			bb[i] = fd.trainB[j]
		}
	}
	return
}

// validationScore evaluates the early-stopping metric for one member,
// signed so that higher is always better.
func (t Training) validationScore(net model.Network, fd *foldData) (float64, error) {
	res, err := t.score([]metrics.Metric{t.Metric}, []model.Network{net}, fd.valX, fd.rawValY, fd.valPhase, fd.scaler)
	if err != nil {
		return 0, err
	}
	return signedScore(t.Metric, res[t.Metric].Mean), nil
}

func signedScore(m metrics.Metric, v float64) float64 {
	if math.IsNaN(v) {
		return math.Inf(-1)
	}
	if m.LowerIsBetter() {
		return -v
	}
	return v
}

func rawScore(m metrics.Metric, signed float64) float64 {
	if m.LowerIsBetter() {
		return -signed
	}
	return signed
}

// score evaluates the averaged ensemble prediction on one partition,
// mapping regression outputs back to the original target scale first.
func (t Training) score(ms []metrics.Metric, nets []model.Network, x, rawY, phase [][]float64, scaler *data.StandardScaler) (map[metrics.Metric]metrics.Result, error) {
	preds := EnsemblePredict(nets, x)
	if t.DatasetType == Regression && scaler != nil {
		preds = scaler.InverseTransform(preds)
	}
	return metrics.Evaluate(ms, preds, rawY, metrics.Options{
		PhaseFeatures: phase,
		PhaseMask:     t.PhaseMask,
	})
}

/*
EnsemblePredict averages the per-member predictions row by row. Members
never share state, so this is safe to call with networks trained in
parallel workers.
*/
func EnsemblePredict(nets []model.Network, x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		var acc []float64
		for _, n := range nets {
			p := n.Predict(row)
			if acc == nil {
				acc = make([]float64, len(p))
			}
			for j, v := range p {
				acc[j] += v
			}
		}
		for j := range acc {
			acc[j] /= float64(len(nets))
		}
		out[i] = acc
	}
	return out
}
