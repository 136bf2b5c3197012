package data

import (
	"strings"
	"testing"

	"gotest.tools/assert"
)

func Test_ReadPhaseMask(t *testing.T) {
	mask, err := ReadPhaseMask(strings.NewReader("1,1,0\n0,1,1\n"))
	assert.NilError(t, err)
	assert.Equal(t, len(mask), 2)
	assert.DeepEqual(t, mask[0], []bool{true, true, false})
	assert.DeepEqual(t, mask[1], []bool{false, true, true})
}

func Test_ReadPhaseMask_HeaderAndNames(t *testing.T) {
	mask, err := ReadPhaseMask(strings.NewReader("phase,p1,p2\ngas,1,0\nliquid,0,1\n"))
	assert.NilError(t, err)
	assert.Equal(t, len(mask), 2)
	assert.DeepEqual(t, mask[0], []bool{true, false})
	assert.DeepEqual(t, mask[1], []bool{false, true})
}

func Test_PhaseIndex(t *testing.T) {
	assert.Equal(t, PhaseIndex([]float64{0, 1, 0}), 1)
	assert.Equal(t, PhaseIndex([]float64{1, 0}), 0)
	assert.Equal(t, PhaseIndex(nil), -1)
}
