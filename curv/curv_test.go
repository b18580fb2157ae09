package curv

import (
	"errors"
	"math"
	"testing"

	"github.com/notargets/discretize/grid"
	"github.com/notargets/discretize/mesherr"
	"github.com/notargets/discretize/operators"
	"github.com/notargets/discretize/tensor"
	"github.com/notargets/discretize/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

var widths = [][]float64{{0.5, 1, 1.5}, {1, 0.5}, {0.25, 0.75}}

func TestRectilinearMatchesTensor(t *testing.T) {
	g, err := grid.New(widths, []float64{1, -1, 0})
	require.NoError(t, err)
	cm, err := FromGrid(g, nil)
	require.NoError(t, err)
	tm, err := tensor.FromGrid(g)
	require.NoError(t, err)

	ct, err := cm.Topology()
	require.NoError(t, err)
	tt, err := tm.Topology()
	require.NoError(t, err)
	assert.False(t, ct.Orthogonal)
	assert.InDeltaSlice(t, tt.CellVolumes, ct.CellVolumes, 1e-13)
	assert.InDeltaSlice(t, tt.FaceAreas, ct.FaceAreas, 1e-13)
	assert.InDeltaSlice(t, tt.EdgeLengths, ct.EdgeLengths, 1e-13)
	for f := range tt.FaceAreas {
		want, got := tt.FaceNormal(f), ct.FaceNormal(f)
		assert.InDeltaSlice(t, want[:], got[:], 1e-14, "face %d", f)
	}

	p := operators.Property{Kind: operators.Diagonal, Values: []float64{1, 2, 3}}
	cf, _, err := cm.FaceInnerProduct(p, operators.InnerProductOptions{})
	require.NoError(t, err)
	tf, _, err := tm.FaceInnerProduct(p, operators.InnerProductOptions{})
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(tf.ToDense(), cf.ToDense(), 1e-12))

	cd, err := cm.Divergence()
	require.NoError(t, err)
	td, err := tm.Divergence()
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(td.ToDense(), cd.ToDense(), 1e-12))
}

func TestShearPreservesVolume(t *testing.T) {
	g, err := grid.New(widths, nil)
	require.NoError(t, err)
	m, err := FromGrid(g, func(p [3]float64) [3]float64 {
		return [3]float64{p[0] + 0.5*p[1], p[1] - 0.25*p[2], p[2]}
	})
	require.NoError(t, err)
	vols, err := m.CellVolumes()
	require.NoError(t, err)
	assert.InDelta(t, 3*1.5*1, floats.Sum(vols), 1e-12)
	for _, v := range vols {
		assert.Greater(t, v, 0.0)
	}

	d, err := m.Divergence()
	require.NoError(t, err)
	curl, err := m.EdgeCurl()
	require.NoError(t, err)
	tp, err := m.Topology()
	require.NoError(t, err)
	e := make([]float64, tp.TotalEdges())
	for i := range e {
		e[i] = math.Sin(float64(3 * i))
	}
	for _, v := range operators.MulVec(d, operators.MulVec(curl, e)) {
		assert.InDelta(t, 0, v, 1e-10)
	}
}

func TestRotationInvariance(t *testing.T) {
	g, err := grid.New(widths, nil)
	require.NoError(t, err)
	flat, err := FromGrid(g, nil)
	require.NoError(t, err)

	tilt := r3.Unit(r3.Vec{X: 1, Y: 1, Z: 1})
	rotated, err := FromGrid(g, func(p [3]float64) [3]float64 {
		out, err := utils.RotatePointsFromNormals([]r3.Vec{{X: p[0], Y: p[1], Z: p[2]}}, r3.Vec{Z: 1}, tilt, r3.Vec{})
		require.NoError(t, err)
		return [3]float64{out[0].X, out[0].Y, out[0].Z}
	})
	require.NoError(t, err)

	fv, err := flat.CellVolumes()
	require.NoError(t, err)
	rv, err := rotated.CellVolumes()
	require.NoError(t, err)
	assert.InDeltaSlice(t, fv, rv, 1e-12)

	a, _, err := flat.FaceInnerProduct(operators.Scalar(2), operators.InnerProductOptions{})
	require.NoError(t, err)
	b, _, err := rotated.FaceInnerProduct(operators.Scalar(2), operators.InnerProductOptions{})
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(a.ToDense(), b.ToDense(), 1e-11))

	ea, err := flat.EdgeInnerProduct(operators.Scalar(1), operators.InnerProductOptions{})
	require.NoError(t, err)
	eb, err := rotated.EdgeInnerProduct(operators.Scalar(1), operators.InnerProductOptions{})
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(ea.ToDense(), eb.ToDense(), 1e-11))
}

func TestRotated2DNormals(t *testing.T) {
	g, err := grid.New([][]float64{{1, 1}, {1}}, nil)
	require.NoError(t, err)
	c, s := math.Cos(math.Pi/6), math.Sin(math.Pi/6)
	m, err := FromGrid(g, func(p [3]float64) [3]float64 {
		return [3]float64{c*p[0] - s*p[1], s*p[0] + c*p[1], 0}
	})
	require.NoError(t, err)
	tp, err := m.Topology()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 1}, tp.CellVolumes, 1e-14)
	for f := 0; f < tp.NFaces[0]; f++ {
		n := tp.FaceNormal(f)
		assert.InDeltaSlice(t, []float64{c, s, 0}, n[:], 1e-14)
	}
	for f := tp.FaceOffset(1); f < tp.TotalFaces(); f++ {
		n := tp.FaceNormal(f)
		assert.InDeltaSlice(t, []float64{-s, c, 0}, n[:], 1e-14)
	}
}

func TestRejectsBadNodes(t *testing.T) {
	_, err := New([]int{2, 2}, make([][3]float64, 8))
	assert.True(t, errors.Is(err, mesherr.ErrConfiguration))
	_, err = New([]int{2}, make([][3]float64, 3))
	assert.True(t, errors.Is(err, mesherr.ErrConfiguration))
	_, err = New([]int{0, 1}, nil)
	assert.True(t, errors.Is(err, mesherr.ErrConfiguration))
}
