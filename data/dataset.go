/*
Package data holds the dataset model of molnet: ordered datapoints with one
or more molecule columns, a fixed-width target vector per row, and optional
external/phase feature vectors. Missing labels are NaN entries of the target
vector. That is a first-class data state, not an error, and must not be
confused with a failed prediction (which also renders as NaN in output
files but is produced by the predictor, never stored here).
*/
package data

import (
	"math"

	"golang.org/x/xerrors"

	"go-chem.dev/pkg/molnet"
)

/*
Bound marks an inequality target for the bounded-mse loss. A BoundGreater
target of value v means the true label is known to be >= v, so a prediction
already above v contributes zero loss.
*/
var nan = math.NaN()

type Bound int8

const (
	BoundNone Bound = iota
	BoundGreater
	BoundLess
)

/*
Datapoint is a single row: the molecule (or reaction) identifiers it owns,
its target vector, and whatever optional per-row vectors were attached.
*/
type Datapoint struct {
	Smiles        []string  // one entry per molecule column
	Targets       []float64 // NaN = missing label
	Bounds        []Bound   // nil, or one marker per target
	Features      []float64 // nil, or external feature vector
	PhaseFeatures []float64 // nil, or one-hot phase vector (spectra)
}

// HasTarget reports whether task t has a measured label.
func (p *Datapoint) HasTarget(t int) bool {
	return !math.IsNaN(p.Targets[t])
}

/*
Dataset is an ordered, immutable-after-construction sequence of datapoints.
Every datapoint has the same task count and the same molecule arity, which
Validate enforces; readers may share a Dataset across goroutines freely.
*/
type Dataset struct {
	SmilesColumns []string // identifier column names, in file order
	TaskNames     []string
	Points        []*Datapoint
}

func (d *Dataset) Len() int      { return len(d.Points) }
func (d *Dataset) NumTasks() int { return len(d.TaskNames) }

// NumMolecules is the molecule arity of every row.
func (d *Dataset) NumMolecules() int { return len(d.SmilesColumns) }

// Validate checks the dataset invariants: uniform task count and uniform
// molecule arity across all rows.
func (d *Dataset) Validate() error {
	for i, p := range d.Points {
		if len(p.Smiles) != len(d.SmilesColumns) {
			return xerrors.Errorf("row %d has %d molecules, want %d: %w",
				i, len(p.Smiles), len(d.SmilesColumns), molnet.ErrConfiguration)
		}
		if len(p.Targets) != len(d.TaskNames) {
			return xerrors.Errorf("row %d has %d targets, want %d: %w",
				i, len(p.Targets), len(d.TaskNames), molnet.ErrConfiguration)
		}
		if p.Bounds != nil && len(p.Bounds) != len(d.TaskNames) {
			return xerrors.Errorf("row %d has %d bound markers, want %d: %w",
				i, len(p.Bounds), len(d.TaskNames), molnet.ErrConfiguration)
		}
	}
	return nil
}

// Subset returns a dataset view over the given row indices. Datapoints are
// shared, not copied.
func (d *Dataset) Subset(idx []int) *Dataset {
	pts := make([]*Datapoint, len(idx))
	for i, j := range idx {
		pts[i] = d.Points[j]
	}
	return &Dataset{SmilesColumns: d.SmilesColumns, TaskNames: d.TaskNames, Points: pts}
}

// Targets collects the target matrix, rows aligned with Points.
func (d *Dataset) Targets() [][]float64 {
	t := make([][]float64, len(d.Points))
	for i, p := range d.Points {
		row := make([]float64, len(p.Targets))
		copy(row, p.Targets)
		t[i] = row
	}
	return t
}

// FeatureMatrix collects the attached feature vectors, or nil when no row
// carries features.
func (d *Dataset) FeatureMatrix() [][]float64 {
	if len(d.Points) == 0 || d.Points[0].Features == nil {
		return nil
	}
	f := make([][]float64, len(d.Points))
	for i, p := range d.Points {
		f[i] = p.Features
	}
	return f
}

// PhaseMatrix collects the attached phase feature vectors, or nil.
func (d *Dataset) PhaseMatrix() [][]float64 {
	if len(d.Points) == 0 || d.Points[0].PhaseFeatures == nil {
		return nil
	}
	f := make([][]float64, len(d.Points))
	for i, p := range d.Points {
		f[i] = p.PhaseFeatures
	}
	return f
}
