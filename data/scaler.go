package data

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

/*
StandardScaler standardizes a matrix column-wise to zero mean and unit
deviation, skipping NaN entries. Regression targets are fitted on the train
partition only; the fitted parameters travel with the checkpoint so the
predictor can invert them without the training configuration.
*/
type StandardScaler struct {
	Means []float64 `json:"means"`
	Stds  []float64 `json:"stds"`
}

// FitScaler computes per-column mean and deviation over the finite entries.
// A column with no finite entries, or zero deviation, scales as identity
// shifted by its mean (std forced to 1).
func FitScaler(x [][]float64) *StandardScaler {
	if len(x) == 0 {
		return &StandardScaler{}
	}
	cols := len(x[0])
	s := &StandardScaler{
		Means: make([]float64, cols),
		Stds:  make([]float64, cols),
	}
	col := make([]float64, 0, len(x))
	for j := 0; j < cols; j++ {
		col = col[:0]
		for _, row := range x {
			if !math.IsNaN(row[j]) {
				col = append(col, row[j])
			}
		}
		if len(col) == 0 {
			s.Means[j], s.Stds[j] = 0, 1
			continue
		}
		m, sd := stat.MeanStdDev(col, nil)
		if len(col) < 2 || sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		s.Means[j], s.Stds[j] = m, sd
	}
	return s
}

// Empty reports whether the scaler carries no fitted parameters.
func (s *StandardScaler) Empty() bool { return s == nil || len(s.Means) == 0 }

// Transform returns a standardized copy; NaN entries stay NaN.
func (s *StandardScaler) Transform(x [][]float64) [][]float64 {
	return s.apply(x, func(v float64, j int) float64 { return (v - s.Means[j]) / s.Stds[j] })
}

// InverseTransform maps standardized values back to the original scale.
func (s *StandardScaler) InverseTransform(x [][]float64) [][]float64 {
	return s.apply(x, func(v float64, j int) float64 { return v*s.Stds[j] + s.Means[j] })
}

func (s *StandardScaler) apply(x [][]float64, f func(float64, int) float64) [][]float64 {
	if s.Empty() {
		return x
	}
	y := make([][]float64, len(x))
	for i, row := range x {
		yr := make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) {
				yr[j] = v
			} else {
				yr[j] = f(v, j)
			}
		}
		y[i] = yr
	}
	return y
}
