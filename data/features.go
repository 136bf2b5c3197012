package data

import (
	"encoding/binary"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ulikunitz/xz"
	"golang.org/x/xerrors"

	"go-chem.dev/pkg/molnet"
)

/*
Generator produces an extra per-molecule feature vector from a raw SMILES
string. Real chemistry featurizers (Morgan fingerprints and friends) are
external collaborators that plug in through this interface; the predictor
treats a Generate error as a failed row and emits NaN for it instead of
aborting the batch.
*/
type Generator interface {
	Generate(smiles string) ([]float64, error)
}

/*
HashedFingerprint is the built-in generator: a hashed bag of SMILES
substrings of length 1..Radius folded into Bits counters. It is not a
chemistry-aware fingerprint, but it is deterministic, cheap, and gives the
reference network something structure-correlated to learn from when no
feature file is supplied.
*/
type HashedFingerprint struct {
	Bits   int // vector length, default 2048
	Radius int // max substring length, default 3
}

func (g HashedFingerprint) Generate(smiles string) ([]float64, error) {
	bits := g.Bits
	if bits <= 0 {
		bits = 2048
	}
	radius := g.Radius
	if radius <= 0 {
		radius = 3
	}
	smiles = strings.TrimSpace(smiles)
	if smiles == "" {
		return nil, xerrors.Errorf("empty smiles")
	}
	v := make([]float64, bits)
	for n := 1; n <= radius; n++ {
		for i := 0; i+n <= len(smiles); i++ {
			h := fnv32(smiles[i : i+n])
			v[int(h%uint32(bits))]++
		}
	}
	return v, nil
}

func fnv32(s string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

const packedMagic = "MNFT"

/*
LoadFeatures reads an external feature matrix. Delimited tables (.csv) and
packed little-endian arrays (.bin) are supported, each optionally
xz-compressed (.csv.xz, .bin.xz). The packed layout stands in for the
Python-side .npz files: magic "MNFT", uint32 rows, uint32 cols, then
rows*cols float64 values.
*/
func LoadFeatures(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("open features %s: %w", path, err)
	}
	defer f.Close()
	var r io.Reader = f
	name := path
	if filepath.Ext(name) == ".xz" {
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, xerrors.Errorf("xz features %s: %w", path, err)
		}
		r = xr
		name = strings.TrimSuffix(name, ".xz")
	}
	switch filepath.Ext(name) {
	case ".bin", ".npy":
		return readPacked(r, path)
	default:
		return readFeatureCSV(r, path)
	}
}

func readFeatureCSV(r io.Reader, path string) ([][]float64, error) {
	cr := csv.NewReader(r)
	recs, err := cr.ReadAll()
	if err != nil {
		return nil, xerrors.Errorf("features %s: %w", path, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	// a non-numeric first row is a header
	start := 0
	if _, err := strconv.ParseFloat(strings.TrimSpace(recs[0][0]), 64); err != nil {
		start = 1
	}
	out := make([][]float64, 0, len(recs)-start)
	for i, rec := range recs[start:] {
		row := make([]float64, len(rec))
		for j, cell := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, xerrors.Errorf("features %s row %d col %d: %w", path, i, j, err)
			}
			row[j] = v
		}
		out = append(out, row)
	}
	return out, nil
}

func readPacked(r io.Reader, path string) ([][]float64, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, xerrors.Errorf("packed features %s: %w", path, err)
	}
	if string(magic[:]) != packedMagic {
		return nil, xerrors.Errorf("packed features %s: bad magic %q: %w", path, magic, molnet.ErrConfiguration)
	}
	var rows, cols uint32
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return nil, xerrors.Errorf("packed features %s: %w", path, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &cols); err != nil {
		return nil, xerrors.Errorf("packed features %s: %w", path, err)
	}
	out := make([][]float64, rows)
	for i := range out {
		row := make([]float64, cols)
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return nil, xerrors.Errorf("packed features %s row %d: %w", path, i, err)
		}
		out[i] = row
	}
	return out, nil
}

// WriteFeatures writes the packed feature layout, xz-compressed when the
// path ends in .xz.
func WriteFeatures(path string, x [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("create features %s: %w", path, err)
	}
	defer f.Close()
	var w io.Writer = f
	var xw *xz.Writer
	if filepath.Ext(path) == ".xz" {
		if xw, err = xz.NewWriter(f); err != nil {
			return xerrors.Errorf("xz features %s: %w", path, err)
		}
		w = xw
	}
	cols := uint32(0)
	if len(x) > 0 {
		cols = uint32(len(x[0]))
	}
	if _, err = io.WriteString(w, packedMagic); err == nil {
		err = binary.Write(w, binary.LittleEndian, uint32(len(x)))
	}
	if err == nil {
		err = binary.Write(w, binary.LittleEndian, cols)
	}
	for i := 0; err == nil && i < len(x); i++ {
		err = binary.Write(w, binary.LittleEndian, x[i])
	}
	if err != nil {
		return xerrors.Errorf("write features %s: %w", path, err)
	}
	if xw != nil {
		if err = xw.Close(); err != nil {
			return xerrors.Errorf("write features %s: %w", path, err)
		}
	}
	return nil
}

/*
AttachFeatures binds an external feature matrix to the dataset row-for-row.
The row counts must match exactly.
*/
func AttachFeatures(ds *Dataset, x [][]float64) error {
	if len(x) != ds.Len() {
		return xerrors.Errorf("feature file has %d rows, dataset has %d: %w",
			len(x), ds.Len(), molnet.ErrFeatureMismatch)
	}
	for i, p := range ds.Points {
		p.Features = x[i]
	}
	return nil
}

// AttachPhaseFeatures binds per-row phase feature vectors (spectra mode).
func AttachPhaseFeatures(ds *Dataset, x [][]float64) error {
	if len(x) != ds.Len() {
		return xerrors.Errorf("phase feature file has %d rows, dataset has %d: %w",
			len(x), ds.Len(), molnet.ErrFeatureMismatch)
	}
	for i, p := range ds.Points {
		p.PhaseFeatures = x[i]
	}
	return nil
}

/*
GenerateFeatures runs the generator over every row, using the first
molecule of multi-molecule rows, and attaches the results. A generator
failure here is fatal: at training time every row must featurize. Predict
time uses the generator directly so failures can degrade to NaN rows.
*/
func GenerateFeatures(ds *Dataset, g Generator) error {
	for i, p := range ds.Points {
		v, err := g.Generate(p.Smiles[0])
		if err != nil {
			return xerrors.Errorf("featurize row %d (%s): %w", i, p.Smiles[0], err)
		}
		p.Features = v
	}
	return nil
}
