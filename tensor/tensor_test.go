package tensor

import (
	"errors"
	"testing"

	"github.com/notargets/discretize/grid"
	"github.com/notargets/discretize/mesh"
	"github.com/notargets/discretize/mesherr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestUniform3DCounts(t *testing.T) {
	m, err := Uniform([]int{2, 3, 4}, []float64{2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, mesh.Tensor, m.Kind())
	assert.Equal(t, [3]int{2, 3, 4}, m.Shape())

	tp, err := m.Topology()
	require.NoError(t, err)
	assert.Equal(t, 24, tp.NCells)
	assert.Equal(t, [3]int{36, 32, 30}, tp.NFaces)
	assert.Equal(t, [3]int{40, 45, 48}, tp.NEdges)
	assert.Equal(t, 60, tp.NNodes)
	assert.True(t, tp.Orthogonal)
	assert.InDelta(t, 24.0, floats.Sum(tp.CellVolumes), 1e-12)

	lengths, err := m.EdgeLengths()
	require.NoError(t, err)
	for _, l := range lengths {
		assert.InDelta(t, 1.0, l, 1e-15)
	}
}

func TestStretchedGeometry(t *testing.T) {
	m, err := New([][]float64{{1, 2}, {0.5, 1.5}}, []float64{-1, 0})
	require.NoError(t, err)
	tp, err := m.Topology()
	require.NoError(t, err)

	assert.Equal(t, []float64{0.5, 1, 1.5, 3}, tp.CellVolumes)
	assert.Equal(t, [3]float64{-0.5, 0.25, 0}, tp.CellCenters[0])
	assert.Equal(t, [3]float64{1, 1.25, 0}, tp.CellCenters[3])

	// face between cells 0 and 1 sits at x = 0
	f := tp.CellFaces[0][1].ID
	assert.Equal(t, [2]int{0, 1}, tp.FaceCells[f])
	assert.Equal(t, [2]float64{0.5, 1}, tp.FaceDistances[f])
	assert.Equal(t, 0.5, tp.FaceAreas[f])
	assert.Equal(t, [3]float64{0, 0.25, 0}, tp.FaceCenters[f])
}

func TestFromGridPadded(t *testing.T) {
	h, err := grid.Pad(
		grid.Segment{Width: 1, Count: 2, Factor: -1.5},
		grid.Segment{Width: 1, Count: 4},
		grid.Segment{Width: 1, Count: 2, Factor: 1.5},
	)
	require.NoError(t, err)
	g, err := grid.New([][]float64{h}, nil)
	require.NoError(t, err)
	m, err := FromGrid(g)
	require.NoError(t, err)
	assert.Same(t, g, m.Grid())

	vols, err := m.CellVolumes()
	require.NoError(t, err)
	assert.Len(t, vols, 8)
	assert.InDelta(t, g.Extent(0), floats.Sum(vols), 1e-12)
}

func TestRejectsBadWidths(t *testing.T) {
	_, err := New([][]float64{{1, -1}}, nil)
	assert.True(t, errors.Is(err, mesherr.ErrConfiguration))
	_, err = Uniform([]int{0}, []float64{1})
	assert.True(t, errors.Is(err, mesherr.ErrConfiguration))
	_, err = Uniform(nil, nil)
	assert.True(t, errors.Is(err, mesherr.ErrConfiguration))
}
