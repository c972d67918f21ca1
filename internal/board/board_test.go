package board

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRows(t *testing.T) {
	t.Parallel()

	b, err := FromRows([][]int{
		{1, 0, 1},
		{2, -1, 2},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, b.Rows())
	assert.Equal(t, 3, b.Cols())
	assert.Equal(t, 1, b.At(0, 0))
	assert.Equal(t, -1, b.At(1, 1))
	assert.Equal(t, 4, b.CountPositive())

	_, err = FromRows([][]int{{1, 2}, {3}})
	assert.Error(t, err, "ragged rows must be rejected")

	_, err = FromRows(nil)
	assert.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()

	b, err := FromRows([][]int{{1, 2}, {3, 4}})
	require.NoError(t, err)

	cp := b.Clone()
	cp.Set(0, 0, 9)

	assert.Equal(t, 1, b.At(0, 0), "clone write must not leak into the original")
	assert.Equal(t, 9, cp.At(0, 0))
}

func TestBoardJSONRoundTrip(t *testing.T) {
	t.Parallel()

	b, err := FromRows([][]int{
		{1, 0, 1},
		{2, -1, 2},
	})
	require.NoError(t, err)

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `[[1,0,1],[2,-1,2]]`, string(data))

	var back Board
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, b.Rows(), back.Rows())
	assert.Equal(t, b.At(1, 1), back.At(1, 1))
}

func TestConfidenceMapClampsOnSet(t *testing.T) {
	t.Parallel()

	m := NewConfidenceMap(2, 2)
	m.Set(0, 0, -0.4) // NCC can go negative
	m.Set(0, 1, 1.8)
	m.Set(1, 0, 0.5)

	assert.Equal(t, 0.0, m.At(0, 0))
	assert.Equal(t, 1.0, m.At(0, 1))
	assert.Equal(t, 0.5, m.At(1, 0))
}

func TestConfidenceMapStats(t *testing.T) {
	t.Parallel()

	m := NewConfidenceMap(1, 4)
	for c, v := range []float64{0.2, 0.4, 0.6, 0.8} {
		m.Set(0, c, v)
	}

	assert.InDelta(t, 0.5, m.Mean(), 1e-9)
	assert.InDelta(t, 0.2, m.Min(), 1e-9)

	var nilMap *ConfidenceMap
	assert.True(t, nilMap.Empty())
	assert.Equal(t, 0.0, nilMap.Mean())
	assert.Equal(t, 0.0, nilMap.Min())
}

func TestCellOrdering(t *testing.T) {
	t.Parallel()

	assert.True(t, Cell{0, 5}.Less(Cell{1, 0}))
	assert.True(t, Cell{2, 1}.Less(Cell{2, 3}))
	assert.False(t, Cell{2, 3}.Less(Cell{2, 3}))
	assert.Equal(t, "(1,2)", Cell{1, 2}.String())
}
