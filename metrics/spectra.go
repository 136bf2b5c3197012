package metrics

import (
	"math"

	"golang.org/x/xerrors"

	"go-chem.dev/pkg/molnet"
	"go-chem.dev/pkg/molnet/data"
)

// SpectraFloor is the positive clip applied before normalization so the
// information divergence stays finite.
const SpectraFloor = 1e-8

/*
Normalize rescales each row of a non-negative intensity matrix to sum to 1
over its unmasked positions. The mask row for a datapoint is selected by
the one-hot phase feature vector (data.PhaseIndex); masked positions become
NaN and stay NaN through scoring. Sub-floor and negative values are clipped
to SpectraFloor, never zero. The returned tally counts every NaN entry in
the output, masked entries included, for observability.

Invariant: for any row with at least one unmasked finite entry, the
unmasked entries of the result sum to 1 within floating tolerance.
*/
func Normalize(x [][]float64, phaseFeatures [][]float64, mask [][]bool) ([][]float64, int, error) {
	if phaseFeatures != nil && len(phaseFeatures) != len(x) {
		return nil, 0, xerrors.Errorf("phase features cover %d of %d rows: %w",
			len(phaseFeatures), len(x), molnet.ErrFeatureMismatch)
	}
	out := make([][]float64, len(x))
	nanTally := 0
	for i, row := range x {
		var rowMask []bool
		if mask != nil && phaseFeatures != nil {
			k := data.PhaseIndex(phaseFeatures[i])
			if k < 0 || k >= len(mask) {
				return nil, 0, xerrors.Errorf("row %d phase index %d outside mask of %d phases: %w",
					i, k, len(mask), molnet.ErrConfiguration)
			}
			rowMask = mask[k]
			if len(rowMask) != len(row) {
				return nil, 0, xerrors.Errorf("phase mask width %d != %d tasks: %w",
					len(rowMask), len(row), molnet.ErrConfiguration)
			}
		}
		y := make([]float64, len(row))
		sum := 0.0
		for j, v := range row {
			if (rowMask != nil && !rowMask[j]) || math.IsNaN(v) {
				y[j] = math.NaN()
				continue
			}
			if v < SpectraFloor {
				v = SpectraFloor
			}
			y[j] = v
			sum += v
		}
		for j := range y {
			if math.IsNaN(y[j]) {
				nanTally++
			} else {
				y[j] /= sum
			}
		}
		out[i] = y
	}
	return out, nanTally, nil
}
