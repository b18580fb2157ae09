package tree

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/notargets/discretize/mesherr"
	"github.com/notargets/discretize/operators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refinedBlock(t *testing.T) *Mesh {
	m, err := New(unitWidths(3, 2), []float64{-1, -1, -1}, WithMaxLevel(4))
	require.NoError(t, err)
	require.NoError(t, m.RefineBall([3]float64{0, 0, 0}, 0.3, 2))
	require.NoError(t, m.Finalize())
	return m
}

func TestStateRoundTrip(t *testing.T) {
	m := refinedBlock(t)
	want, err := m.Topology()
	require.NoError(t, err)

	raw, err := json.Marshal(m.State())
	require.NoError(t, err)
	var s State
	require.NoError(t, json.Unmarshal(raw, &s))

	back, err := FromState(s)
	require.NoError(t, err)
	assert.True(t, back.Finalized())
	got, err := back.Topology()
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("restored topology differs (-want +got):\n%s", diff)
	}
	assert.Equal(t, m.Levels(), back.Levels())
}

func TestFromStateRejectsInconsistentLeaves(t *testing.T) {
	s := refinedBlock(t).State()

	short := s
	short.Leaves = s.Leaves[:len(s.Leaves)-1]
	_, err := FromState(short)
	assert.True(t, errors.Is(err, mesherr.ErrTopology))

	deep := s
	deep.Leaves = append([]Leaf{{Level: 9}}, s.Leaves[1:]...)
	_, err = FromState(deep)
	assert.True(t, errors.Is(err, mesherr.ErrTopology))

	// a level 3 leaf at the center of a single root touches level 1 leaves
	unbalanced := State{Widths: unitWidths(2, 1), MaxLevel: 3}
	m, err := New(unbalanced.Widths, nil, WithMaxLevel(3))
	require.NoError(t, err)
	m.split(0)
	m.split(1)
	m.split(8)
	unbalanced.Leaves = m.State().Leaves
	_, err = FromState(unbalanced)
	assert.True(t, errors.Is(err, mesherr.ErrTopology))
}

func TestFromStateRejectsReorderedLeaves(t *testing.T) {
	m, err := New(unitWidths(3, 1), nil, WithMaxLevel(2), WithInitialLevel(1))
	require.NoError(t, err)
	require.NoError(t, m.Finalize())
	s := m.State()
	require.Len(t, s.Leaves, 8)
	_, err = FromState(s)
	require.NoError(t, err)

	dup := s
	dup.Leaves = append([]Leaf(nil), s.Leaves...)
	dup.Leaves[3] = dup.Leaves[0]
	_, err = FromState(dup)
	assert.True(t, errors.Is(err, mesherr.ErrTopology), "got %v", err)
	assert.ErrorContains(t, err, "leaf 3")

	swapped := s
	swapped.Leaves = append([]Leaf(nil), s.Leaves...)
	swapped.Leaves[0], swapped.Leaves[1] = swapped.Leaves[1], swapped.Leaves[0]
	_, err = FromState(swapped)
	assert.True(t, errors.Is(err, mesherr.ErrTopology), "got %v", err)
	assert.ErrorContains(t, err, "leaf 0")
}

func TestTreeOperatorIdentities(t *testing.T) {
	m := refinedBlock(t)
	tp, err := m.Topology()
	require.NoError(t, err)

	div, err := m.Divergence()
	require.NoError(t, err)
	curl, err := m.EdgeCurl()
	require.NoError(t, err)
	grad, err := m.NodalGradient()
	require.NoError(t, err)

	// uniform field along y: exact zero divergence through hanging faces
	u := make([]float64, tp.TotalFaces())
	for f := range u {
		if tp.FaceAxis[f] == 1 {
			u[f] = 1
		}
	}
	for c, v := range operators.MulVec(div, u) {
		assert.InDelta(t, 0, v, 1e-12, "cell %d", c)
	}

	e := make([]float64, tp.TotalEdges())
	for i := range e {
		e[i] = float64(i%7) - 3
	}
	for c, v := range operators.MulVec(div, operators.MulVec(curl, e)) {
		assert.InDelta(t, 0, v, 1e-10, "div curl, cell %d", c)
	}

	phi := make([]float64, tp.NNodes)
	for i, p := range tp.NodeCoords {
		phi[i] = p[0]*p[0] - 2*p[1] + p[2]
	}
	for f, v := range operators.MulVec(curl, operators.MulVec(grad, phi)) {
		assert.InDelta(t, 0, v, 1e-10, "curl grad, face %d", f)
	}
}

func TestTreeInnerProductIsSymmetricPositive(t *testing.T) {
	m := centralRefined(t)
	mf, _, err := m.FaceInnerProduct(operators.Scalar(2), operators.InnerProductOptions{})
	require.NoError(t, err)
	r, c := mf.Dims()
	require.Equal(t, r, c)
	d := mf.ToDense()
	for i := 0; i < r; i++ {
		assert.Greater(t, d.At(i, i), 0.0)
		for j := 0; j < i; j++ {
			assert.InDelta(t, d.At(i, j), d.At(j, i), 1e-14)
		}
	}
}

func TestTreeAveragingKeepsConstants(t *testing.T) {
	for name, m := range map[string]*Mesh{"2d": centralRefined(t), "3d": refinedBlock(t)} {
		t.Run(name, func(t *testing.T) {
			tp, err := m.Topology()
			require.NoError(t, err)
			cc2f, err := m.AveCC2F(operators.InverseDistance, operators.Extrapolate)
			require.NoError(t, err)
			f2cc, err := m.AveF2CC()
			require.NoError(t, err)

			ones := make([]float64, tp.NCells)
			for i := range ones {
				ones[i] = 1
			}
			faces := operators.MulVec(cc2f, ones)
			for f, v := range faces {
				assert.InDelta(t, 1, v, 1e-14, "face %d", f)
			}
			for c, v := range operators.MulVec(f2cc, faces) {
				assert.InDelta(t, 1, v, 1e-14, "cell %d", c)
			}
		})
	}
}

func TestTreeDivergenceTheorem(t *testing.T) {
	for name, m := range map[string]*Mesh{"2d": centralRefined(t), "3d": refinedBlock(t)} {
		t.Run(name, func(t *testing.T) {
			tp, err := m.Topology()
			require.NoError(t, err)
			div, err := m.Divergence()
			require.NoError(t, err)

			u := make([]float64, tp.TotalFaces())
			for f := range u {
				x := tp.FaceCenters[f]
				u[f] = math.Sin(3*x[0]-x[1]) + math.Cos(x[2]+float64(tp.FaceAxis[f]))
			}
			interior := 0.0
			for c, v := range operators.MulVec(div, u) {
				interior += tp.CellVolumes[c] * v
			}
			boundary := 0.0
			for _, f := range tp.BoundaryFaces() {
				sign := 1.0
				if tp.FaceCells[f][0] < 0 {
					sign = -1
				}
				boundary += sign * tp.FaceAreas[f] * u[f]
			}
			assert.InDelta(t, boundary, interior, 1e-12)
		})
	}
}
