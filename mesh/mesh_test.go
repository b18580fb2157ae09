package mesh_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/james-bowman/sparse"
	"github.com/notargets/discretize/mesh"
	"github.com/notargets/discretize/mesherr"
	"github.com/notargets/discretize/operators"
	"github.com/notargets/discretize/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func square(t *testing.T, opts ...mesh.Option) *tensor.Mesh {
	t.Helper()
	m, err := tensor.Uniform([]int{3, 3}, []float64{1, 1}, opts...)
	require.NoError(t, err)
	return m
}

func TestOperatorsAreCached(t *testing.T) {
	m := square(t)
	d1, err := m.Divergence()
	require.NoError(t, err)
	d2, err := m.Divergence()
	require.NoError(t, err)
	assert.Same(t, d1, d2)

	hits, misses := m.Cache().Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)

	_, err = m.CellGradient(operators.BoundaryZero)
	require.NoError(t, err)
	_, err = m.CellGradient(operators.BoundaryDirichlet)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Cache().Len())
}

func TestInnerProductKeys(t *testing.T) {
	m := square(t)
	a, _, err := m.FaceInnerProduct(operators.Scalar(1), operators.InnerProductOptions{})
	require.NoError(t, err)
	b, _, err := m.FaceInnerProduct(operators.Scalar(2), operators.InnerProductOptions{})
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	c, _, err := m.FaceInnerProduct(operators.Scalar(1), operators.InnerProductOptions{InvertMatrix: true})
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	again, _, err := m.FaceInnerProduct(operators.Scalar(1), operators.InnerProductOptions{})
	require.NoError(t, err)
	assert.Same(t, a, again)

	robin := func(beta float64) *operators.Robin {
		return &operators.Robin{Alpha: []float64{1}, Beta: []float64{beta}, Gamma: []float64{0}}
	}
	r1, _, err := m.FaceInnerProduct(operators.Scalar(1), operators.InnerProductOptions{Robin: robin(1)})
	require.NoError(t, err)
	r2, _, err := m.FaceInnerProduct(operators.Scalar(1), operators.InnerProductOptions{Robin: robin(2)})
	require.NoError(t, err)
	assert.NotSame(t, r1, r2)
	assert.Equal(t, 5, m.Cache().Len())
}

func TestErrorsAreCached(t *testing.T) {
	m := square(t)
	_, err := m.EdgeCurl()
	assert.True(t, errors.Is(err, mesherr.ErrNotSupported))
	_, err = m.EdgeCurl()
	assert.True(t, errors.Is(err, mesherr.ErrNotSupported))
	hits, _ := m.Cache().Stats()
	assert.Equal(t, 1, hits)
}

func TestConcurrentCallersShareOneBuild(t *testing.T) {
	m := square(t, mesh.WithWorkers(3))
	const n = 16
	out := make([]*sparse.CSR, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := m.AveCC2F(operators.InverseDistance, operators.Extrapolate)
			assert.NoError(t, err)
			out[i] = a
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		assert.Same(t, out[0], out[i])
	}
	_, misses := m.Cache().Stats()
	assert.Equal(t, 1, misses)
}

func TestInvalidateClearsState(t *testing.T) {
	m := square(t)
	gen := m.Generation()
	_, err := m.Divergence()
	require.NoError(t, err)

	m.Invalidate()
	assert.Greater(t, m.Generation(), gen)
	assert.Zero(t, m.Cache().Len())

	for _, call := range []func() error{
		func() error { _, err := m.Topology(); return err },
		func() error { _, err := m.CellVolumes(); return err },
		func() error { _, err := m.BoundaryFaces(); return err },
		func() error { _, err := m.Divergence(); return err },
		func() error { _, _, err := m.FaceInnerProduct(operators.Scalar(1), operators.InnerProductOptions{}); return err },
	} {
		assert.True(t, errors.Is(call(), mesherr.ErrState))
	}
	assert.Contains(t, m.Summary(), "not finalized")
}

func TestGeometryQueries(t *testing.T) {
	m := square(t)
	vols, err := m.CellVolumes()
	require.NoError(t, err)
	assert.Len(t, vols, 9)
	areas, err := m.FaceAreas()
	require.NoError(t, err)
	assert.Len(t, areas, 24)
	_, err = m.EdgeLengths()
	assert.True(t, errors.Is(err, mesherr.ErrNotSupported))

	bc, err := m.BoundaryCells()
	require.NoError(t, err)
	assert.Len(t, bc, 8)
	bf, err := m.BoundaryFaces()
	require.NoError(t, err)
	assert.Len(t, bf, 12)
	bn, err := m.BoundaryNodes()
	require.NoError(t, err)
	assert.Len(t, bn, 12)
}

func TestSummaryAndLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	m := square(t, mesh.WithLogger(zap.New(core)))
	assert.Equal(t, 1, logs.FilterMessage("topology installed").Len())

	_, err := m.Divergence()
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("assembled operator").Len())

	s := m.Summary()
	assert.Contains(t, s, "=== tensor mesh (2-D) ===")
	assert.Contains(t, s, "Cells: 9")
	assert.Contains(t, s, "Boundary faces: 12")
	assert.Contains(t, s, "Orthogonal: true")
	assert.Contains(t, s, "Entries: 1")
}

func TestKindNames(t *testing.T) {
	assert.Equal(t, "tensor", mesh.Tensor.String())
	assert.Equal(t, "cylindrical", mesh.Cylindrical.String())
	assert.Equal(t, "curvilinear", mesh.Curvilinear.String())
	assert.Equal(t, "tree", mesh.Tree.String())
}
