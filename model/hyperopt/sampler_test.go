package hyperopt

import (
	"math"
	"testing"

	"gotest.tools/assert"
)

func Test_Sample1WithinBounds(t *testing.T) {
	s := newSampler(1)
	cases := []distribution{
		Range{0.1, 0.4},
		LogRange{1e-4, 1e-1},
		IntRange{2, 6},
		List{16, 32, 64},
		Value(0.3),
	}
	for _, d := range cases {
		lo, hi := d.bounds()
		for i := 0; i < 200; i++ {
			v := d.sample1(s)
			assert.Assert(t, v >= lo && v <= hi, "%T sampled %v outside [%v,%v]", d, v, lo, hi)
		}
	}
}

func Test_IntRangeSamplesIntegers(t *testing.T) {
	s := newSampler(2)
	d := IntRange{1, 3}
	seen := map[float64]bool{}
	for i := 0; i < 100; i++ {
		v := d.sample1(s)
		assert.Equal(t, v, math.Trunc(v))
		seen[v] = true
	}
	assert.Assert(t, seen[1] && seen[2] && seen[3])
}

func Test_ListSnapsToValues(t *testing.T) {
	s := newSampler(3)
	d := List{10, 20, 40}
	good := []float64{19, 21, 20}
	bad := []float64{10, 40}
	for i := 0; i < 50; i++ {
		v := d.sample2(s, good, bad)
		assert.Assert(t, v == 10 || v == 20 || v == 40)
	}
}

func Test_TPEPrefersGoodRegion(t *testing.T) {
	s := newSampler(4)
	good := []float64{0.2, 0.22, 0.18}
	bad := []float64{0.8, 0.85, 0.9, 0.78}
	near := 0
	const draws = 100
	for i := 0; i < draws; i++ {
		v := s.tpe(0, 1, good, bad)
		assert.Assert(t, v >= 0 && v <= 1)
		if math.Abs(v-0.2) < math.Abs(v-0.84) {
			near++
		}
	}
	assert.Assert(t, near > draws*3/4, "only %d of %d draws near the good cluster", near, draws)
}

func Test_TPEEmptyGoodFallsBackToUniform(t *testing.T) {
	s := newSampler(5)
	for i := 0; i < 50; i++ {
		v := s.tpe(2, 6, nil, nil)
		assert.Assert(t, v >= 2 && v <= 6)
	}
}

func Test_SamplerDeterminism(t *testing.T) {
	d := Range{0, 1}
	a, b := newSampler(9), newSampler(9)
	for i := 0; i < 20; i++ {
		assert.Equal(t, d.sample1(a), d.sample1(b))
	}
}
