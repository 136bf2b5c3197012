package fu

import (
	"math"
	"testing"

	"gotest.tools/assert"
)

func Test_NanMeanStd(t *testing.T) {
	mean, std := NanMeanStd([]float64{1, math.NaN(), 3})
	assert.Equal(t, mean, 2.0)
	assert.Equal(t, std, 1.0)

	mean, std = NanMeanStd([]float64{math.NaN(), math.NaN()})
	assert.Assert(t, math.IsNaN(mean))
	assert.Assert(t, math.IsNaN(std))

	mean, std = NanMeanStd([]float64{5})
	assert.Equal(t, mean, 5.0)
	assert.Equal(t, std, 0.0)
}

func Test_Indmaxd(t *testing.T) {
	assert.Equal(t, Indmaxd([]float64{1, 5, 3}), 1)
	assert.Equal(t, Indmaxd([]float64{2, 2, 2}), 0)
}

func Test_Fnzi(t *testing.T) {
	assert.Equal(t, Fnzi(0, 0, 7), 7)
	assert.Equal(t, Fnzi(3, 7), 3)
	assert.Equal(t, Fnzi(), 0)
}
