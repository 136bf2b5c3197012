/*
Package split partitions a dataset into train/validation/test index sets.
All strategies are deterministic under a fixed seed and never mutate the
dataset. Scaffold-aware strategies guarantee that a scaffold bucket is
never divided across partitions.
*/
package split

import (
	"math"
	"math/rand"
	"sort"
	"strings"

	"golang.org/x/xerrors"

	"go-chem.dev/pkg/molnet"
	"go-chem.dev/pkg/molnet/data"
)

type Strategy int

const (
	Random Strategy = iota
	ScaffoldBalanced
	RandomWithRepeatedSmiles
	Predetermined
)

// ParseStrategy resolves a strategy name; unknown names are a
// configuration error.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "random":
		return Random, nil
	case "scaffold_balanced":
		return ScaffoldBalanced, nil
	case "random_with_repeated_smiles":
		return RandomWithRepeatedSmiles, nil
	case "predetermined":
		return Predetermined, nil
	}
	return 0, xerrors.Errorf("unknown split type %q: %w", name, molnet.ErrConfiguration)
}

func (s Strategy) String() string {
	switch s {
	case Random:
		return "random"
	case ScaffoldBalanced:
		return "scaffold_balanced"
	case RandomWithRepeatedSmiles:
		return "random_with_repeated_smiles"
	case Predetermined:
		return "predetermined"
	}
	return "unknown"
}

/*
Split is three disjoint, exhaustive index sets over a dataset.
*/
type Split struct {
	Train, Val, Test []int
}

// Len is the total number of indices across the three partitions.
func (s Split) Len() int { return len(s.Train) + len(s.Val) + len(s.Test) }

/*
Options configures New. Fractions defaults to 0.8/0.1/0.1. ScaffoldKey
defaults to SkeletonScaffold over the molecule at ScaffoldMolecule (the
first molecule of multi-molecule rows unless configured otherwise).
*/
type Options struct {
	Strategy         Strategy
	Fractions        [3]float64
	Seed             int64
	ScaffoldMolecule int
	ScaffoldKey      func(smiles string) string
	Predetermined    *Split // required for the Predetermined strategy
}

var defaultFractions = [3]float64{0.8, 0.1, 0.1}

/*
New partitions the dataset under the chosen strategy. It fails with
ErrInvalidSplit when the fractions do not sum to 1 or when a partition
with a non-zero fraction comes out empty, and with ErrConfiguration when
predetermined indices do not exactly partition the dataset.
*/
func New(ds *data.Dataset, opt Options) (Split, error) {
	if opt.Fractions == [3]float64{} {
		opt.Fractions = defaultFractions
	}
	if opt.Strategy == Predetermined {
		return predetermined(ds, opt)
	}
	sum := opt.Fractions[0] + opt.Fractions[1] + opt.Fractions[2]
	if math.Abs(sum-1) > 1e-6 {
		return Split{}, xerrors.Errorf("split fractions %v sum to %v, not 1: %w",
			opt.Fractions, sum, molnet.ErrInvalidSplit)
	}
	var sp Split
	var err error
	switch opt.Strategy {
	case Random:
		sp = randomSplit(ds.Len(), opt)
	case ScaffoldBalanced:
		sp = bucketSplit(scaffoldBuckets(ds, opt), ds.Len(), opt, true)
	case RandomWithRepeatedSmiles:
		sp = bucketSplit(smilesBuckets(ds), ds.Len(), opt, false)
	default:
		return Split{}, xerrors.Errorf("unknown split strategy %d: %w", opt.Strategy, molnet.ErrConfiguration)
	}
	if err = checkNonEmpty(sp, opt.Fractions); err != nil {
		return Split{}, err
	}
	return sp, nil
}

func checkNonEmpty(sp Split, fr [3]float64) error {
	parts := [3][]int{sp.Train, sp.Val, sp.Test}
	names := [3]string{"train", "validation", "test"}
	for i := range parts {
		if fr[i] > 0 && len(parts[i]) == 0 {
			return xerrors.Errorf("%s partition is empty for fractions %v: %w",
				names[i], fr, molnet.ErrInvalidSplit)
		}
	}
	return nil
}

func randomSplit(n int, opt Options) Split {
	rng := rand.New(rand.NewSource(opt.Seed))
	perm := rng.Perm(n)
	nTrain := int(opt.Fractions[0] * float64(n))
	nVal := int(opt.Fractions[1] * float64(n))
	return Split{
		Train: sorted(perm[:nTrain]),
		Val:   sorted(perm[nTrain : nTrain+nVal]),
		Test:  sorted(perm[nTrain+nVal:]),
	}
}

type bucket struct {
	key  string
	rows []int
}

func scaffoldBuckets(ds *data.Dataset, opt Options) []bucket {
	key := opt.ScaffoldKey
	if key == nil {
		key = SkeletonScaffold
	}
	mol := opt.ScaffoldMolecule
	index := map[string]int{}
	var buckets []bucket
	for i, p := range ds.Points {
		k := key(p.Smiles[mol])
		j, ok := index[k]
		if !ok {
			j = len(buckets)
			index[k] = j
			buckets = append(buckets, bucket{key: k})
		}
		buckets[j].rows = append(buckets[j].rows, i)
	}
	return buckets
}

func smilesBuckets(ds *data.Dataset) []bucket {
	index := map[string]int{}
	var buckets []bucket
	for i, p := range ds.Points {
		k := strings.Join(p.Smiles, "|")
		j, ok := index[k]
		if !ok {
			j = len(buckets)
			index[k] = j
			buckets = append(buckets, bucket{key: k})
		}
		buckets[j].rows = append(buckets[j].rows, i)
	}
	return buckets
}

/*
bucketSplit assigns whole buckets to partitions. When balance is set
(scaffold_balanced) the buckets are ordered by descending size, discovery
order breaking ties, and each bucket goes to the partition currently
furthest below its target count. Otherwise (repeated-smiles split) the
buckets are shuffled and assigned the same way, which reduces to a random
split when every bucket has size one.
*/
func bucketSplit(buckets []bucket, n int, opt Options, balance bool) Split {
	rng := rand.New(rand.NewSource(opt.Seed))
	if balance {
		sort.SliceStable(buckets, func(i, j int) bool {
			return len(buckets[i].rows) > len(buckets[j].rows)
		})
	} else {
		rng.Shuffle(len(buckets), func(i, j int) {
			buckets[i], buckets[j] = buckets[j], buckets[i]
		})
	}
	targets := [3]float64{
		opt.Fractions[0] * float64(n),
		opt.Fractions[1] * float64(n),
		opt.Fractions[2] * float64(n),
	}
	var parts [3][]int
	var counts [3]int
	for _, b := range buckets {
		// deficit-weighted round robin: the partition furthest below its
		// target takes the next whole bucket
		best, deficit := 0, math.Inf(-1)
		for i := range parts {
			d := targets[i] - float64(counts[i])
			if d > deficit {
				best, deficit = i, d
			}
		}
		parts[best] = append(parts[best], b.rows...)
		counts[best] += len(b.rows)
	}
	return Split{Train: sorted(parts[0]), Val: sorted(parts[1]), Test: sorted(parts[2])}
}

func predetermined(ds *data.Dataset, opt Options) (Split, error) {
	if opt.Predetermined == nil {
		return Split{}, xerrors.Errorf("predetermined split requires indices: %w", molnet.ErrConfiguration)
	}
	sp := *opt.Predetermined
	seen := make([]bool, ds.Len())
	for _, part := range [][]int{sp.Train, sp.Val, sp.Test} {
		for _, i := range part {
			if i < 0 || i >= ds.Len() || seen[i] {
				return Split{}, xerrors.Errorf("predetermined indices do not partition the dataset: %w",
					molnet.ErrConfiguration)
			}
			seen[i] = true
		}
	}
	if sp.Len() != ds.Len() {
		return Split{}, xerrors.Errorf("predetermined indices cover %d of %d rows: %w",
			sp.Len(), ds.Len(), molnet.ErrConfiguration)
	}
	return sp, nil
}

func sorted(a []int) []int {
	r := append([]int{}, a...)
	sort.Ints(r)
	return r
}
