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
LoadCSV reads a dataset table: the first numMolecules columns are molecule
(or reaction) identifiers, every remaining column is one prediction task.
Empty cells are missing labels. Cells of the form ">v", ">=v", "<v", "<=v"
are inequality-bounded targets for the bounded-mse loss.
*/
func LoadCSV(path string, numMolecules int) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("open dataset %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f, numMolecules)
}

// ReadCSV is LoadCSV over an already-open reader.
func ReadCSV(r io.Reader, numMolecules int) (*Dataset, error) {
	numMolecules = fu.Maxi(numMolecules, 1)
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, xerrors.Errorf("dataset header: %w", err)
	}
	if len(header) <= numMolecules {
		return nil, xerrors.Errorf("dataset has %d columns, need at least %d identifiers plus one task: %w",
			len(header), numMolecules, molnet.ErrConfiguration)
	}
	ds := &Dataset{
		SmilesColumns: header[:numMolecules],
		TaskNames:     header[numMolecules:],
	}
	anyBound := false
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, xerrors.Errorf("dataset line %d: %w", line, err)
		}
		p := &Datapoint{
			Smiles:  append([]string{}, rec[:numMolecules]...),
			Targets: make([]float64, len(ds.TaskNames)),
			Bounds:  make([]Bound, len(ds.TaskNames)),
		}
		for t, cell := range rec[numMolecules:] {
			v, b, err := parseTarget(cell)
			if err != nil {
				return nil, xerrors.Errorf("dataset line %d task %q: %w", line, ds.TaskNames[t], err)
			}
			p.Targets[t] = v
			p.Bounds[t] = b
			if b != BoundNone {
				anyBound = true
			}
		}
		ds.Points = append(ds.Points, p)
	}
	if !anyBound {
		for _, p := range ds.Points {
			p.Bounds = nil
		}
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

func parseTarget(cell string) (float64, Bound, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nan, BoundNone, nil
	}
	bound := BoundNone
	switch {
	case strings.HasPrefix(cell, ">="), strings.HasPrefix(cell, ">"):
		bound = BoundGreater
		cell = strings.TrimLeft(cell, ">=")
	case strings.HasPrefix(cell, "<="), strings.HasPrefix(cell, "<"):
		bound = BoundLess
		cell = strings.TrimLeft(cell, "<=")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0, BoundNone, xerrors.Errorf("bad target %q: %w", cell, err)
	}
	return v, bound, nil
}
