/*
Package hyperopt implements SMBO/TPE hyper-parameter optimization for
property-prediction training.

Many thanks to Masashi SHIBATA for his excellent work on goptuna
I used github.com/c-bata/goptuna as a reference implementation
for the paper 'Algorithms for Hyper-Parameter Optimization'
https://papers.nips.cc/paper/4443-algorithms-for-hyper-parameter-optimization.pdf
*/
package hyperopt

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"go-ml.dev/pkg/iokit"
	"go-ml.dev/pkg/zorros"
	"go-ml.dev/pkg/zorros/zlog"
	"golang.org/x/xerrors"

	"go-chem.dev/pkg/molnet"
	"go-chem.dev/pkg/molnet/data"
	"go-chem.dev/pkg/molnet/model"
	"go-chem.dev/pkg/molnet/train"
)

const epsilon = 1e-12

/*
Range is a closed float range specified by min and max values [min,max]
*/
type Range [2]float64

/*
LogRange is a closed float logarithmic range specified by min and max values [min,max]
*/
type LogRange [2]float64

/*
IntRange is a closed integer range specified by min and max values [min,max]
*/
type IntRange [2]int

/*
List is a list of possible parameter values
*/
type List []float64

/*
Value is a single value parameter
*/
type Value float64

// type limitation interface
type distribution interface {
	sample1(*sampler) float64
	sample2(*sampler, []float64, []float64) float64
	bounds() (lo, hi float64)
}

/*
Variance is a space of hyper-parameters used by Search to generate trials
*/
type Variance map[string]distribution

// DefaultVariance is the stock search space over the four tuned
// hyper-parameters.
func DefaultVariance() Variance {
	return Variance{
		"depth":          IntRange{2, 6},
		"hidden_size":    IntRange{300, 2400},
		"ffn_num_layers": IntRange{1, 3},
		"dropout":        Range{0.0, 0.4},
	}
}

/*
Report is a result of hyper-parameters optimization
*/
type Report struct {
	Params model.Params
	Score  float64 // cross-fold mean of the primary metric
	Trials int
}

/*
Space is a definition of the hyper-parameters optimization problem: the
dataset, a base cross-validation configuration the trial parameters are
substituted into, and the parameter variance to search.
*/
type Space struct {
	Dataset    *data.Dataset
	Config     train.Config // base configuration, Hyper overridden per trial
	Variance   Variance     // nil means DefaultVariance
	Iterations int          // trial budget
	Startup    int          // random trials before TPE kicks in, default 5
	Gamma      float64      // fraction of trials considered good, default 0.25
	Seed       int64

	Storage    *Storage     // optional sqlite trial log
	ConfigFile iokit.Output // best-found configuration artifact
}

type trial struct {
	params model.Params
	score  float64 // signed, higher is better
}

/*
Search runs the trial budget, each trial invoking the fold orchestrator
with sampled hyper-parameters, and returns the best configuration by the
cross-fold mean of the primary metric (direction given by the metric's
polarity). The best parameters are persisted to ConfigFile when set.
*/
func (s Space) Search() (Report, error) {
	if s.Variance == nil {
		s.Variance = DefaultVariance()
	}
	if s.Iterations <= 0 {
		s.Iterations = 1
	}
	if s.Startup <= 0 {
		s.Startup = 5
	}
	if s.Gamma <= 0 {
		s.Gamma = 0.25
	}
	if err := s.Config.Training.Validate(); err != nil {
		return Report{}, err
	}
	smp := newSampler(s.Seed)
	primary := s.Config.Metric
	var history []trial
	var best Report
	bestSigned := 0.0
	found := false
	for it := 0; it < s.Iterations; it++ {
		params := s.sample(smp, history)
		if err := s.ValidateParams(params); err != nil {
			zlog.Warning(fmt.Sprintf("trial %d rejected: %v", it, err))
			continue
		}
		cfg := s.Config
		cfg.Hyper = model.HyperFromParams(params)
		if cfg.SaveDir != "" {
			cfg.SaveDir = filepath.Join(cfg.SaveDir, fmt.Sprintf("trial_%d", it))
		}
		report, err := train.Run(s.Dataset, cfg)
		if err != nil {
			return Report{}, zorros.Wrapf(err, "trial %d with %v failed: %v", it, params, err)
		}
		raw := report.Score(primary)
		signed := raw
		if primary.LowerIsBetter() {
			signed = -raw
		}
		history = append(history, trial{params: params, score: signed})
		if s.Storage != nil {
			if err = s.Storage.Record(params, raw); err != nil {
				return Report{}, err
			}
		}
		zlog.Info(fmt.Sprintf("trial %d: %v %v = %.6f", it, params, primary, raw))
		if !found || signed > bestSigned {
			best = Report{Params: params, Score: raw}
			bestSigned = signed
			found = true
		}
	}
	best.Trials = len(history)
	if !found {
		return Report{}, xerrors.Errorf("no successful trials: %w", molnet.ErrSearchSpace)
	}
	if s.ConfigFile != nil {
		if err := WriteConfig(s.ConfigFile, best.Params); err != nil {
			return Report{}, err
		}
	}
	return best, nil
}

/*
LuckySearch does Search and throws any occurred error as a panic
*/
func (s Space) LuckySearch() Report {
	r, err := s.Search()
	if err != nil {
		panic(zorros.Panic(err))
	}
	return r
}

// sample draws one parameter set: random until Startup trials exist, TPE
// afterwards.
func (s Space) sample(smp *sampler, history []trial) model.Params {
	p := model.Params{}
	for name, d := range s.Variance {
		if len(history) < s.Startup {
			p[name] = d.sample1(smp)
			continue
		}
		good, bad := partition(history, name, s.Gamma)
		p[name] = d.sample2(smp, good, bad)
	}
	return p
}

/*
ValidateParams checks every parameter against its declared closed interval,
failing with ErrSearchSpace on a violation or an undeclared name.
*/
func (s Space) ValidateParams(p model.Params) error {
	for name, v := range p {
		d, ok := s.Variance[name]
		if !ok {
			return xerrors.Errorf("parameter %q is not in the search space: %w", name, molnet.ErrSearchSpace)
		}
		lo, hi := d.bounds()
		if v < lo-epsilon || v > hi+epsilon {
			return xerrors.Errorf("parameter %q = %v outside [%v,%v]: %w",
				name, v, lo, hi, molnet.ErrSearchSpace)
		}
	}
	return nil
}

// partition splits the observed values of one parameter into good and bad
// by the gamma quantile of the signed score.
func partition(history []trial, name string, gamma float64) (good, bad []float64) {
	n := int(gamma*float64(len(history))) + 1
	order := make([]int, len(history))
	for i := range order {
		order[i] = i
	}
	// selection by score, descending
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			if history[order[j]].score > history[order[i]].score {
				order[i], order[j] = order[j], order[i]
			}
		}
	}
	for i, k := range order {
		v, ok := history[k].params[name]
		if !ok {
			continue
		}
		if i < n {
			good = append(good, v)
		} else {
			bad = append(bad, v)
		}
	}
	return
}

/*
WriteConfig persists a parameter set as the JSON configuration artifact,
keyed by hyper-parameter name with integer dimensions rendered as
integers.
*/
func WriteConfig(out iokit.Output, p model.Params) error {
	b, err := json.MarshalIndent(model.HyperFromParams(p), "", "  ")
	if err != nil {
		return xerrors.Errorf("encode config: %w", err)
	}
	wh, err := out.Create()
	if err != nil {
		return xerrors.Errorf("create config: %w", err)
	}
	defer wh.End()
	if _, err = wh.Write(b); err != nil {
		return xerrors.Errorf("write config: %w", err)
	}
	if err = wh.Commit(); err != nil {
		return xerrors.Errorf("commit config: %w", err)
	}
	return nil
}
