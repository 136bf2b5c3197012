package hyperopt

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// nCandidates is how many candidates the TPE step scores per parameter.
const nCandidates = 24

type sampler struct {
	rng *rand.Rand
}

func newSampler(seed int64) *sampler {
	return &sampler{rng: rand.New(rand.NewSource(seed))}
}

/*
tpe draws candidates from a Parzen estimator over the good observations and
keeps the candidate maximizing the density ratio l(x)/g(x) against the bad
observations. Everything happens in the (possibly log-transformed)
continuous domain; callers clamp and round afterwards.
*/
func (s *sampler) tpe(lo, hi float64, good, bad []float64) float64 {
	if len(good) == 0 {
		return s.uniform(lo, hi)
	}
	sigma := (hi - lo) / math.Sqrt(float64(len(good))+1)
	if sigma < epsilon {
		sigma = epsilon
	}
	best, bestRatio := 0.0, math.Inf(-1)
	for c := 0; c < nCandidates; c++ {
		mu := good[s.rng.Intn(len(good))]
		x := mu + s.rng.NormFloat64()*sigma
		if x < lo {
			x = lo
		}
		if x > hi {
			x = hi
		}
		ratio := math.Log(parzen(x, good, sigma)+epsilon) - math.Log(parzen(x, bad, sigma)+epsilon)
		if ratio > bestRatio {
			best, bestRatio = x, ratio
		}
	}
	return best
}

// parzen is the average Gaussian kernel density of x over the points.
func parzen(x float64, points []float64, sigma float64) float64 {
	if len(points) == 0 {
		return 0
	}
	var d float64
	for _, p := range points {
		d += distuv.Normal{Mu: p, Sigma: sigma}.Prob(x)
	}
	return d / float64(len(points))
}

func (s *sampler) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func (r Range) bounds() (float64, float64) { return r[0], r[1] }

func (r Range) sample1(s *sampler) float64 { return s.uniform(r[0], r[1]) }

func (r Range) sample2(s *sampler, good, bad []float64) float64 {
	return s.tpe(r[0], r[1], good, bad)
}

func (r LogRange) bounds() (float64, float64) { return r[0], r[1] }

func (r LogRange) sample1(s *sampler) float64 {
	return math.Exp(s.uniform(math.Log(r[0]), math.Log(r[1])))
}

func (r LogRange) sample2(s *sampler, good, bad []float64) float64 {
	lg := make([]float64, len(good))
	for i, v := range good {
		lg[i] = math.Log(v)
	}
	lb := make([]float64, len(bad))
	for i, v := range bad {
		lb[i] = math.Log(v)
	}
	return math.Exp(s.tpe(math.Log(r[0]), math.Log(r[1]), lg, lb))
}

func (r IntRange) bounds() (float64, float64) { return float64(r[0]), float64(r[1]) }

func (r IntRange) sample1(s *sampler) float64 {
	return float64(r[0] + s.rng.Intn(r[1]-r[0]+1))
}

func (r IntRange) sample2(s *sampler, good, bad []float64) float64 {
	v := math.Round(s.tpe(float64(r[0]), float64(r[1]), good, bad))
	return math.Min(math.Max(v, float64(r[0])), float64(r[1]))
}

func (l List) bounds() (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range l {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	return lo, hi
}

func (l List) sample1(s *sampler) float64 { return l[s.rng.Intn(len(l))] }

func (l List) sample2(s *sampler, good, bad []float64) float64 {
	lo, hi := l.bounds()
	x := s.tpe(lo, hi, good, bad)
	// snap to the nearest listed value
	best, dist := l[0], math.Inf(1)
	for _, v := range l {
		if d := math.Abs(v - x); d < dist {
			best, dist = v, d
		}
	}
	return best
}

func (v Value) bounds() (float64, float64) { return float64(v), float64(v) }

func (v Value) sample1(*sampler) float64 { return float64(v) }

func (v Value) sample2(*sampler, []float64, []float64) float64 { return float64(v) }
