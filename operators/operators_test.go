package operators_test

import (
	"errors"
	"math"
	"testing"

	"github.com/james-bowman/sparse"
	"github.com/notargets/discretize/curv"
	"github.com/notargets/discretize/grid"
	"github.com/notargets/discretize/mesherr"
	"github.com/notargets/discretize/operators"
	"github.com/notargets/discretize/tensor"
	"github.com/notargets/discretize/topo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func assembler(t *testing.T, widths [][]float64, opts ...operators.Option) *operators.Assembler {
	t.Helper()
	m, err := tensor.New(widths, nil)
	require.NoError(t, err)
	tp, err := m.Topology()
	require.NoError(t, err)
	return operators.New(tp, opts...)
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

var stretched3D = [][]float64{{0.5, 1, 2}, {1, 0.25}, {0.5, 0.5, 1.5}}

func TestDivergenceFreeField(t *testing.T) {
	a := assembler(t, [][]float64{ones(4), ones(4)})
	d, err := a.Divergence()
	require.NoError(t, err)
	r, c := d.Dims()
	assert.Equal(t, 16, r)
	assert.Equal(t, 40, c)

	tp := a.Topo
	u := make([]float64, c)
	for f := range u {
		x := tp.FaceCenters[f]
		if tp.FaceAxis[f] == 0 {
			u[f] = x[1]
		} else {
			u[f] = x[0]
		}
	}
	for i, v := range operators.MulVec(d, u) {
		assert.InDelta(t, 0, v, 1e-13, "cell %d", i)
	}
}

func TestDivergenceTheorem(t *testing.T) {
	a := assembler(t, stretched3D)
	tp := a.Topo
	d, err := a.Divergence()
	require.NoError(t, err)

	u := make([]float64, tp.TotalFaces())
	for f := range u {
		x := tp.FaceCenters[f]
		u[f] = math.Sin(x[0]+2*x[1]) + x[2]*float64(tp.FaceAxis[f]+1)
	}
	interior := 0.0
	for c, v := range operators.MulVec(d, u) {
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
}

func divergenceError(t *testing.T, n int) float64 {
	h, err := grid.Uniform(n, 1)
	require.NoError(t, err)
	a := assembler(t, [][]float64{h, h})
	tp := a.Topo
	d, err := a.Divergence()
	require.NoError(t, err)
	u := make([]float64, tp.TotalFaces())
	for f := range u {
		x := tp.FaceCenters[f]
		if tp.FaceAxis[f] == 0 {
			u[f] = math.Sin(math.Pi * x[0])
		} else {
			u[f] = math.Cos(math.Pi * x[1])
		}
	}
	worst := 0.0
	for c, v := range operators.MulVec(d, u) {
		x := tp.CellCenters[c]
		exact := math.Pi*math.Cos(math.Pi*x[0]) - math.Pi*math.Sin(math.Pi*x[1])
		worst = math.Max(worst, math.Abs(v-exact))
	}
	return worst
}

func TestDivergenceSecondOrder(t *testing.T) {
	e1, e2 := divergenceError(t, 16), divergenceError(t, 32)
	rate := math.Log2(e1 / e2)
	assert.InDelta(t, 2, rate, 0.1)
}

func TestCurlIdentities(t *testing.T) {
	a := assembler(t, stretched3D)
	tp := a.Topo
	d, err := a.Divergence()
	require.NoError(t, err)
	curl, err := a.EdgeCurl()
	require.NoError(t, err)
	grad, err := a.NodalGradient()
	require.NoError(t, err)

	e := make([]float64, tp.TotalEdges())
	for i := range e {
		e[i] = math.Cos(float64(i))
	}
	for c, v := range operators.MulVec(d, operators.MulVec(curl, e)) {
		assert.InDelta(t, 0, v, 1e-11, "div curl, cell %d", c)
	}
	phi := make([]float64, tp.NNodes)
	for i, p := range tp.NodeCoords {
		phi[i] = p[0]*p[1] - p[2]*p[2]
	}
	for f, v := range operators.MulVec(curl, operators.MulVec(grad, phi)) {
		assert.InDelta(t, 0, v, 1e-11, "curl grad, face %d", f)
	}

	fc, err := a.FaceCurl()
	require.NoError(t, err)
	r, c := fc.Dims()
	assert.Equal(t, tp.TotalEdges(), r)
	assert.Equal(t, tp.TotalFaces(), c)
	assert.True(t, mat.Equal(curl.T(), fc.ToDense()))
}

func TestCurlNotSupportedIn2D(t *testing.T) {
	a := assembler(t, [][]float64{ones(3), ones(3)})
	_, err := a.EdgeCurl()
	assert.True(t, errors.Is(err, mesherr.ErrNotSupported))
	_, err = a.FaceCurl()
	assert.True(t, errors.Is(err, mesherr.ErrNotSupported))
	_, err = a.NodalGradient()
	assert.True(t, errors.Is(err, mesherr.ErrNotSupported))
	_, err = a.EdgeInnerProduct(operators.Scalar(1), operators.InnerProductOptions{})
	assert.True(t, errors.Is(err, mesherr.ErrNotSupported))
	_, err = a.AveE2CC()
	assert.True(t, errors.Is(err, mesherr.ErrNotSupported))
}

func TestCellGradientPolicies(t *testing.T) {
	a := assembler(t, [][]float64{ones(3)})

	g, err := a.CellGradient(operators.BoundaryZero)
	require.NoError(t, err)
	dense := g.ToDense()
	assert.Equal(t, []float64{0, 0, 0}, mat.Row(nil, 0, dense))
	assert.Equal(t, []float64{-1, 1, 0}, mat.Row(nil, 1, dense))
	assert.Equal(t, []float64{0, 0, 0}, mat.Row(nil, 3, dense))

	g, err = a.CellGradient(operators.BoundaryDirichlet)
	require.NoError(t, err)
	dense = g.ToDense()
	assert.Equal(t, []float64{2, 0, 0}, mat.Row(nil, 0, dense))
	assert.Equal(t, []float64{0, 0, -2}, mat.Row(nil, 3, dense))

	// a linear field has an exact interior gradient on stretched cells
	a = assembler(t, [][]float64{{0.5, 1, 2, 0.25}})
	g, err = a.CellGradient(operators.BoundaryZero)
	require.NoError(t, err)
	u := make([]float64, a.Topo.NCells)
	for c, x := range a.Topo.CellCenters {
		u[c] = 3*x[0] - 1
	}
	grad := operators.MulVec(g, u)
	for f := 1; f < 4; f++ {
		assert.InDelta(t, 3, grad[f], 1e-13)
	}
}

func TestAveragingPreservesConstants(t *testing.T) {
	a := assembler(t, stretched3D)
	tp := a.Topo
	for name, build := range map[string]func() (*sparse.CSR, error){
		"cc2f":  func() (*sparse.CSR, error) { return a.AveCC2F(operators.InverseDistance, operators.Extrapolate) },
		"cc2fv": func() (*sparse.CSR, error) { return a.AveCC2F(operators.VolumeWeighted, operators.Extrapolate) },
		"f2cc":  a.AveF2CC,
		"n2cc":  a.AveN2CC,
		"e2cc":  a.AveE2CC,
		"n2f":   a.AveN2F,
		"n2e":   a.AveN2E,
		"cc2n":  func() (*sparse.CSR, error) { return a.AveCC2N(operators.Extrapolate) },
		"cc2e":  func() (*sparse.CSR, error) { return a.AveCC2E(operators.Extrapolate) },
	} {
		m, err := build()
		require.NoError(t, err, name)
		_, c := m.Dims()
		for i, v := range operators.MulVec(m, ones(c)) {
			assert.InDelta(t, 1, v, 1e-13, "%s row %d", name, i)
		}
	}

	v, err := a.AveF2CCV()
	require.NoError(t, err)
	r, c := v.Dims()
	assert.Equal(t, 3*tp.NCells, r)
	assert.Equal(t, tp.TotalFaces(), c)
	ev, err := a.AveE2CCV()
	require.NoError(t, err)
	r, _ = ev.Dims()
	assert.Equal(t, 3*tp.NCells, r)
}

func TestAveragingBoundaryFill(t *testing.T) {
	a := assembler(t, [][]float64{ones(3), ones(3)})
	tp := a.Topo

	m, err := a.AveCC2F(operators.InverseDistance, operators.ZeroPad)
	require.NoError(t, err)
	got := operators.MulVec(m, ones(tp.NCells))
	for f := range got {
		want := 1.0
		if tp.FaceCells[f][0] < 0 || tp.FaceCells[f][1] < 0 {
			want = 0.5
		}
		assert.InDelta(t, want, got[f], 1e-15)
	}

	m, err = a.AveCC2N(operators.ZeroPad)
	require.NoError(t, err)
	got = operators.MulVec(m, ones(tp.NCells))
	for n := range got {
		assert.InDelta(t, math.Pow(2, -float64(tp.NodeBoundary[n])), got[n], 1e-15)
	}
}

func TestAveragingReproducesLinear(t *testing.T) {
	a := assembler(t, [][]float64{{0.5, 1, 2, 0.25}, {1, 3}})
	tp := a.Topo
	m, err := a.AveCC2F(operators.InverseDistance, operators.Extrapolate)
	require.NoError(t, err)
	u := make([]float64, tp.NCells)
	for c, x := range tp.CellCenters {
		u[c] = 2*x[0] - x[1]
	}
	got := operators.MulVec(m, u)
	for f, x := range tp.FaceCenters {
		if tp.FaceCells[f][0] < 0 || tp.FaceCells[f][1] < 0 {
			continue
		}
		want := 2*x[0] - x[1]
		assert.InDelta(t, want, got[f], 1e-13, "face %d", f)
	}
}

func TestUnitInnerProduct(t *testing.T) {
	a := assembler(t, [][]float64{ones(4), ones(4)})
	tp := a.Topo
	m, rhs, err := a.FaceInnerProduct(operators.Scalar(1), operators.InnerProductOptions{})
	require.NoError(t, err)
	assert.Nil(t, rhs)
	require.True(t, operators.IsDiagonal(m))
	for f, v := range operators.DiagonalOf(m) {
		want := 1.0
		if tp.FaceCells[f][0] < 0 || tp.FaceCells[f][1] < 0 {
			want = 0.5
		}
		assert.InDelta(t, want, v, 1e-15, "face %d", f)
	}
}

func TestInnerProductPositiveDefinite(t *testing.T) {
	anisotropic := operators.Property{Kind: operators.Full, Values: []float64{3, 2, 1.5, 0.4, -0.3, 0.2}}

	skew, err := grid.New(stretched3D, nil)
	require.NoError(t, err)
	cm, err := curv.FromGrid(skew, func(p [3]float64) [3]float64 {
		return [3]float64{p[0] + 0.2*p[1], p[1] + 0.1*p[2]*p[0], p[2] - 0.15*p[0]}
	})
	require.NoError(t, err)
	ctp, err := cm.Topology()
	require.NoError(t, err)

	for name, a := range map[string]*operators.Assembler{
		"tensor":      assembler(t, stretched3D),
		"curvilinear": operators.New(ctp),
	} {
		for _, faces := range []bool{true, false} {
			var m *sparse.CSR
			if faces {
				m, _, err = a.FaceInnerProduct(anisotropic, operators.InnerProductOptions{})
			} else {
				m, err = a.EdgeInnerProduct(anisotropic, operators.InnerProductOptions{})
			}
			require.NoError(t, err, name)
			n, _ := m.Dims()
			dense := m.ToDense()
			assert.True(t, mat.EqualApprox(dense, dense.T(), 1e-13), "%s symmetric", name)
			var ch mat.Cholesky
			assert.True(t, ch.Factorize(mat.NewSymDense(n, dense.RawMatrix().Data)), "%s positive definite", name)
		}
	}
}

func TestFirstOrderAndInverse(t *testing.T) {
	a := assembler(t, stretched3D)
	full := operators.Property{Kind: operators.Full, Values: []float64{2, 2, 2, 0.5, 0.5, 0.5}}

	m, _, err := a.FaceInnerProduct(full, operators.InnerProductOptions{Order: operators.FirstOrder})
	require.NoError(t, err)
	assert.True(t, operators.IsDiagonal(m))

	_, _, err = a.FaceInnerProduct(full, operators.InnerProductOptions{InvertMatrix: true})
	assert.True(t, errors.Is(err, mesherr.ErrNotSupported))

	fwd, _, err := a.FaceInnerProduct(operators.Scalar(2), operators.InnerProductOptions{})
	require.NoError(t, err)
	inv, _, err := a.FaceInnerProduct(operators.Scalar(2), operators.InnerProductOptions{InvertMatrix: true})
	require.NoError(t, err)
	d, di := operators.DiagonalOf(fwd), operators.DiagonalOf(inv)
	for i := range d {
		assert.InDelta(t, 1, d[i]*di[i], 1e-13)
	}

	// inverting the property of a scalar field halves against doubling
	half, _, err := a.FaceInnerProduct(operators.Scalar(0.5), operators.InnerProductOptions{})
	require.NoError(t, err)
	inverted, _, err := a.FaceInnerProduct(operators.Scalar(2), operators.InnerProductOptions{InvertProperty: true})
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(half.ToDense(), inverted.ToDense(), 1e-14))

	_, _, err = a.FaceInnerProduct(operators.Scalar(0), operators.InnerProductOptions{InvertMatrix: true})
	assert.True(t, errors.Is(err, mesherr.ErrConfiguration))
}

func TestPropertyShapes(t *testing.T) {
	a := assembler(t, [][]float64{ones(2), ones(2)})
	for _, p := range []operators.Property{
		{Kind: operators.Isotropic, Values: []float64{1, 2}},
		{Kind: operators.Diagonal, Values: []float64{1, 2, 3}},
		{Kind: operators.Full, Values: []float64{1, 1, 1, 0}},
		{Kind: operators.Isotropic, Values: []float64{math.NaN()}},
	} {
		_, _, err := a.FaceInnerProduct(p, operators.InnerProductOptions{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, mesherr.ErrShape), "%v", p)
		var me *mesherr.Error
		require.True(t, errors.As(err, &me))
	}

	perCell := operators.Property{Kind: operators.Diagonal, Values: []float64{1, 2, 3, 4, 1, 1, 1, 1}}
	require.NoError(t, operators.ValidateProperty(perCell, 4, 2))
	k := perCell.Tensor(3, 4, 2)
	assert.Equal(t, 4.0, k.At(0, 0))
	assert.Equal(t, 1.0, k.At(1, 1))

	assert.NotEqual(t, operators.Scalar(1).Fingerprint(), operators.Scalar(2).Fingerprint())
	assert.Equal(t, 6, operators.Full.Components(3))
	assert.Equal(t, 3, operators.Full.Components(2))
}

func TestRobinBoundary(t *testing.T) {
	a := assembler(t, [][]float64{ones(2), ones(2)})
	tp := a.Topo
	robin := &operators.Robin{Alpha: []float64{1}, Beta: []float64{2}, Gamma: []float64{3}}
	m, rhs, err := a.FaceInnerProduct(operators.Scalar(1), operators.InnerProductOptions{Robin: robin})
	require.NoError(t, err)
	require.Len(t, rhs, tp.TotalFaces())
	d := operators.DiagonalOf(m)
	boundary := make(map[int]bool)
	for _, f := range tp.BoundaryFaces() {
		boundary[f] = true
	}
	for f := range d {
		if boundary[f] {
			assert.InDelta(t, 2.5, d[f], 1e-15)
			assert.InDelta(t, 3, rhs[f], 1e-15)
		} else {
			assert.InDelta(t, 1, d[f], 1e-15)
			assert.Zero(t, rhs[f])
		}
	}

	_, _, err = a.FaceInnerProduct(operators.Scalar(1), operators.InnerProductOptions{
		Robin: &operators.Robin{Alpha: []float64{0}, Beta: []float64{1}, Gamma: []float64{1}}})
	assert.True(t, errors.Is(err, mesherr.ErrConfiguration))
	_, _, err = a.FaceInnerProduct(operators.Scalar(1), operators.InnerProductOptions{
		Robin: &operators.Robin{Alpha: []float64{1, 1}, Beta: []float64{1}, Gamma: []float64{1}}})
	assert.True(t, errors.Is(err, mesherr.ErrShape))
	_, _, err = a.FaceInnerProduct(operators.Scalar(1), operators.InnerProductOptions{
		Order: operators.FirstOrder, Robin: robin})
	assert.True(t, errors.Is(err, mesherr.ErrNotSupported))
}

func TestParallelAssemblyMatchesSerial(t *testing.T) {
	serial := assembler(t, stretched3D)
	parallel := assembler(t, stretched3D, operators.WithWorkers(4))
	p := operators.Property{Kind: operators.Diagonal, Values: []float64{1, 2, 3}}

	s1, err := serial.Divergence()
	require.NoError(t, err)
	p1, err := parallel.Divergence()
	require.NoError(t, err)
	assert.True(t, mat.Equal(s1.ToDense(), p1.ToDense()))

	s2, _, err := serial.FaceInnerProduct(p, operators.InnerProductOptions{})
	require.NoError(t, err)
	p2, _, err := parallel.FaceInnerProduct(p, operators.InnerProductOptions{})
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(s2.ToDense(), p2.ToDense(), 1e-15))

	s3, err := serial.EdgeCurl()
	require.NoError(t, err)
	p3, err := parallel.EdgeCurl()
	require.NoError(t, err)
	assert.Equal(t, s3.NNZ(), p3.NNZ())
}

func TestTripletsToCSR(t *testing.T) {
	var tr operators.Triplets
	tr.Add(1, 2, 1.5)
	tr.Add(0, 1, 2)
	tr.Add(1, 2, 0.5)
	tr.Add(1, 0, 3)
	tr.Add(0, 0, 1)
	tr.Add(0, 0, -1)
	tr.AddRouted(2, []topo.Weight{{ID: 0, W: 0.5}, {ID: 2, W: 0.5}}, 4)
	assert.Equal(t, 8, tr.Len())

	m := tr.ToCSR(3, 3)
	assert.Equal(t, 5, m.NNZ())
	want := mat.NewDense(3, 3, []float64{
		0, 2, 0,
		3, 0, 2,
		2, 0, 2,
	})
	assert.True(t, mat.Equal(want, m.ToDense()))
	assert.True(t, mat.Equal(want.T(), operators.Transpose(m).ToDense()))
	assert.False(t, operators.IsDiagonal(m))
	assert.Equal(t, []float64{0, 0, 2}, operators.DiagonalOf(m))
	assert.Equal(t, []float64{2, 5, 4}, operators.MulVec(m, []float64{1, 1, 1}))

	sum := operators.AddDiagonal(m, []float64{1, 0, -2})
	assert.Equal(t, 5, sum.NNZ())
	assert.True(t, mat.Equal(mat.NewDense(3, 3, []float64{
		1, 2, 0,
		3, 0, 2,
		2, 0, 0,
	}), sum.ToDense()))
	d := operators.DiagonalMatrix([]float64{4, 0, 5})
	assert.True(t, operators.IsDiagonal(d))
	assert.Equal(t, []float64{4, 0, 5}, operators.DiagonalOf(d))
}

func TestTripletsRepeatedLeadingEntry(t *testing.T) {
	var tr operators.Triplets
	for _, v := range []float64{1, 2, 3} {
		tr.Add(0, 0, v)
		tr.Add(1, 1, v)
		tr.Add(1, 0, -v)
	}
	m := tr.ToCSR(2, 2)
	assert.Equal(t, 3, m.NNZ())
	assert.InDelta(t, 6, m.At(0, 0), 0)
	assert.InDelta(t, -6, m.At(1, 0), 0)
	assert.InDelta(t, 6, m.At(1, 1), 0)
	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{6, 0, -6, 6}), m.ToDense()))
}
