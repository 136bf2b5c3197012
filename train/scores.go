package train

import (
	"encoding/csv"
	"strconv"

	"go-ml.dev/pkg/iokit"
	"golang.org/x/xerrors"
)

/*
WriteTestScores writes the aggregate scores table: a single row with
columns "Mean <metric>" and "Standard deviation <metric>" per requested
metric, primary metric first.
*/
func WriteTestScores(out iokit.Output, r *Report) error {
	header := make([]string, 0, 2*len(r.Metrics))
	row := make([]string, 0, 2*len(r.Metrics))
	for _, m := range r.Metrics {
		header = append(header, "Mean "+m.String(), "Standard deviation "+m.String())
		row = append(row, formatScore(r.Mean[m]), formatScore(r.Std[m]))
	}
	return writeCSV(out, [][]string{header, row})
}

// WriteFoldScores writes the per-fold detail table: one row per fold with
// each metric's test score.
func WriteFoldScores(out iokit.Output, r *Report) error {
	header := []string{"Fold"}
	for _, m := range r.Metrics {
		header = append(header, m.String())
	}
	rows := [][]string{header}
	for _, f := range r.Folds {
		row := []string{strconv.Itoa(f.Fold)}
		for _, m := range r.Metrics {
			row = append(row, formatScore(f.Test[m].Mean))
		}
		rows = append(rows, row)
	}
	return writeCSV(out, rows)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeCSV(out iokit.Output, rows [][]string) error {
	wh, err := out.Create()
	if err != nil {
		return xerrors.Errorf("create scores file: %w", err)
	}
	defer wh.End()
	cw := csv.NewWriter(wh)
	for _, row := range rows {
		if err = cw.Write(row); err != nil {
			return xerrors.Errorf("write scores file: %w", err)
		}
	}
	cw.Flush()
	if err = cw.Error(); err != nil {
		return xerrors.Errorf("write scores file: %w", err)
	}
	if err = wh.Commit(); err != nil {
		return xerrors.Errorf("commit scores file: %w", err)
	}
	return nil
}
