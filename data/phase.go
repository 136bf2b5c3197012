package data

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"go-chem.dev/pkg/molnet"
	"go-chem.dev/pkg/molnet/fu"
)

/*
LoadPhaseMask reads the phase exclusion table: one row per phase, one
boolean column per spectral position. A leading non-numeric header row and
a leading phase-name column are both tolerated and skipped. True means the
position is kept for that phase, false means it is excluded from
normalization, loss, and scoring.
*/
func LoadPhaseMask(path string) ([][]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("open phase mask %s: %w", path, err)
	}
	defer f.Close()
	return ReadPhaseMask(f)
}

func ReadPhaseMask(r io.Reader) ([][]bool, error) {
	recs, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, xerrors.Errorf("phase mask: %w", err)
	}
	if len(recs) == 0 {
		return nil, xerrors.Errorf("phase mask is empty: %w", molnet.ErrConfiguration)
	}
	if !boolish(recs[0][len(recs[0])-1]) {
		recs = recs[1:] // header row
	}
	var mask [][]bool
	for i, rec := range recs {
		if len(rec) > 0 && !boolish(rec[0]) {
			rec = rec[1:] // phase-name column
		}
		row := make([]bool, len(rec))
		for j, cell := range rec {
			v, err := parseBool(cell)
			if err != nil {
				return nil, xerrors.Errorf("phase mask row %d col %d: %w", i, j, err)
			}
			row[j] = v
		}
		if len(mask) > 0 && len(row) != len(mask[0]) {
			return nil, xerrors.Errorf("phase mask rows have uneven width: %w", molnet.ErrConfiguration)
		}
		mask = append(mask, row)
	}
	return mask, nil
}

func boolish(s string) bool {
	_, err := parseBool(s)
	return err == nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes":
		return true, nil
	case "0", "false", "f", "no":
		return false, nil
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return v != 0, nil
	}
	return false, xerrors.Errorf("bad boolean %q", s)
}

/*
PhaseIndex resolves which mask row applies to a datapoint: the phase
feature vector is one-hot, and the index of its maximal entry selects the
row. Returns -1 for a nil or empty vector.
*/
func PhaseIndex(phaseFeatures []float64) int {
	if len(phaseFeatures) == 0 {
		return -1
	}
	return fu.Indmaxd(phaseFeatures)
}
