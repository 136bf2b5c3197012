package data

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/xerrors"
	"gotest.tools/assert"

	"go-chem.dev/pkg/molnet"
)

func Test_HashedFingerprint(t *testing.T) {
	g := HashedFingerprint{Bits: 64, Radius: 2}
	a, err := g.Generate("CCO")
	assert.NilError(t, err)
	b, err := g.Generate("CCO")
	assert.NilError(t, err)
	assert.Equal(t, len(a), 64)
	assert.DeepEqual(t, a, b) // deterministic

	c, err := g.Generate("c1ccccc1")
	assert.NilError(t, err)
	diff := false
	for i := range a {
		if a[i] != c[i] {
			diff = true
		}
	}
	assert.Assert(t, diff)

	_, err = g.Generate("  ")
	assert.Assert(t, err != nil)
}

func Test_PackedFeaturesRoundtrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "molnet-features")
	assert.NilError(t, err)
	defer os.RemoveAll(dir)

	x := [][]float64{{1, 2, 3}, {4, 5, 6}}
	for _, name := range []string{"f.bin", "f.bin.xz"} {
		path := filepath.Join(dir, name)
		assert.NilError(t, WriteFeatures(path, x))
		y, err := LoadFeatures(path)
		assert.NilError(t, err)
		assert.DeepEqual(t, x, y)
	}
}

func Test_LoadFeaturesCSV(t *testing.T) {
	dir, err := ioutil.TempDir("", "molnet-features")
	assert.NilError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "f.csv")
	assert.NilError(t, ioutil.WriteFile(path, []byte("f1,f2\n1.5,2\n3,4\n"), 0644))
	x, err := LoadFeatures(path)
	assert.NilError(t, err)
	assert.Equal(t, len(x), 2)
	assert.Equal(t, x[0][0], 1.5)
	assert.Equal(t, x[1][1], 4.0)
}

func Test_AttachFeaturesMismatch(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(sampleCSV), 1)
	assert.NilError(t, err)
	err = AttachFeatures(ds, [][]float64{{1}})
	assert.Assert(t, xerrors.Is(err, molnet.ErrFeatureMismatch))

	err = AttachFeatures(ds, [][]float64{{1}, {2}, {3}})
	assert.NilError(t, err)
	assert.Equal(t, ds.Points[2].Features[0], 3.0)
}
