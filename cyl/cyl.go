// Package cyl is the cylindrical mesh. Two dimensional meshes are
// axisymmetric over (r, z); three dimensional meshes span (r, theta, z) and
// wrap in theta when the widths sum to a full turn.
package cyl

import (
	"math"

	"github.com/notargets/discretize/grid"
	"github.com/notargets/discretize/mesh"
	"github.com/notargets/discretize/mesherr"
	"github.com/notargets/discretize/topo"
	"github.com/notargets/discretize/utils"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

const turnTolerance = 1e-10

// Mesh is a finalized cylindrical mesh.
type Mesh struct {
	*mesh.Base
	grid     *grid.Grid
	periodic bool
}

var _ mesh.BaseMesh = (*Mesh)(nil)

// New builds a cylindrical mesh from (r, z) or (r, theta, z) widths. The
// radial origin must be non-negative. A mesh touching the axis has no
// faces at r = 0, and in 3-D carries no edges or nodes.
func New(widths [][]float64, origin []float64, opts ...mesh.Option) (*Mesh, error) {
	g, err := grid.New(widths, origin)
	if err != nil {
		return nil, err
	}
	dim := g.Dim()
	if dim < 2 {
		return nil, mesherr.Configuration("cyl.New", "cylindrical meshes are 2-D or 3-D, got %d-D", dim)
	}
	if g.Origin[0] < 0 {
		return nil, mesherr.Configuration("cyl.New", "radial origin %g is negative", g.Origin[0])
	}
	m := &Mesh{Base: mesh.NewBase(mesh.Cylindrical, dim, opts...), grid: g}
	onAxis := g.Origin[0] == 0
	sopts := topo.StructuredOptions{SkipLowerFace: [3]bool{onAxis}}
	var geo topo.Geometry
	if dim == 2 {
		geo = newAxisymmetric(g)
	} else {
		if g.Extent(1) > 2*math.Pi+turnTolerance {
			return nil, mesherr.Configuration("cyl.New", "theta widths sum to %g, more than a full turn", g.Extent(1))
		}
		m.periodic = math.Abs(g.Extent(1)-2*math.Pi) < turnTolerance
		sopts.Periodic[1] = m.periodic
		sopts.NoEdges = onAxis
		sopts.NoNodes = onAxis
		geo = newPolar(g)
	}
	t, err := topo.Structured(dim, g.Shape(), geo, sopts)
	if err != nil {
		return nil, err
	}
	m.SetTopology(t)
	return m, nil
}

// Grid returns the base coordinates.
func (m *Mesh) Grid() *grid.Grid { return m.grid }

// Periodic reports whether theta wraps a full turn.
func (m *Mesh) Periodic() bool { return m.periodic }

// CartesianCellCenters returns the cell centers in (x, y, z). Two
// dimensional meshes place cells at theta = 0.
func (m *Mesh) CartesianCellCenters() ([]r3.Vec, error) {
	cc, err := m.CellCenters()
	if err != nil {
		return nil, err
	}
	pts := make([]r3.Vec, len(cc))
	for i, c := range cc {
		if m.Dim() == 2 {
			pts[i] = r3.Vec{X: c[0], Z: c[1]}
		} else {
			pts[i] = r3.Vec{X: c[0], Y: c[1], Z: c[2]}
		}
	}
	return utils.CylindricalToCartesian(pts), nil
}

// axes holds node and center coordinates per axis, unused axes padded.
type axes struct {
	h       [3][]float64
	nodes   [3][]float64
	centers [3][]float64
}

func newAxes(g *grid.Grid) axes {
	var ax axes
	for a := 0; a < 3; a++ {
		if a < g.Dim() {
			ax.h[a] = g.H[a]
			ax.nodes[a] = g.Nodes(a)
			ax.centers[a] = g.Centers(a)
			continue
		}
		ax.h[a] = []float64{1}
		ax.nodes[a] = []float64{0, 1}
		ax.centers[a] = []float64{0}
	}
	return ax
}

// node returns the node coordinate along axis a, wrapping a periodic index
// past the last node.
func (ax *axes) node(a, i int) float64 {
	if i >= len(ax.nodes[a]) {
		i %= len(ax.nodes[a]) - 1
	}
	return ax.nodes[a][i]
}

// axisymmetric is the (r, z) geometry of a body of revolution.
type axisymmetric struct{ axes }

func newAxisymmetric(g *grid.Grid) *axisymmetric { return &axisymmetric{newAxes(g)} }

func (g *axisymmetric) ring(i int) float64 {
	r1, r2 := g.nodes[0][i], g.nodes[0][i+1]
	return math.Pi * (r2*r2 - r1*r1)
}

func (g *axisymmetric) CellVolume(ijk [3]int) float64 { return g.ring(ijk[0]) * g.h[1][ijk[1]] }

func (g *axisymmetric) CellCenter(ijk [3]int) [3]float64 {
	return [3]float64{g.centers[0][ijk[0]], g.centers[1][ijk[1]]}
}

func (g *axisymmetric) FaceArea(axis int, ijk [3]int) float64 {
	if axis == 0 {
		return 2 * math.Pi * g.nodes[0][ijk[0]] * g.h[1][ijk[1]]
	}
	return g.ring(ijk[0])
}

func (g *axisymmetric) FaceCenter(axis int, ijk [3]int) [3]float64 {
	if axis == 0 {
		return [3]float64{g.nodes[0][ijk[0]], g.centers[1][ijk[1]]}
	}
	return [3]float64{g.centers[0][ijk[0]], g.nodes[1][ijk[1]]}
}

func (g *axisymmetric) EdgeLength(axis int, ijk [3]int) float64 { return g.h[axis][ijk[axis]] }

func (g *axisymmetric) EdgeCenter(axis int, ijk [3]int) [3]float64 {
	c := g.NodeCoord(ijk)
	c[axis] = g.centers[axis][ijk[axis]]
	return c
}

func (g *axisymmetric) NodeCoord(ijk [3]int) [3]float64 {
	return [3]float64{g.nodes[0][ijk[0]], g.nodes[1][ijk[1]]}
}

func (g *axisymmetric) Distance(p, q [3]float64, axis int) float64 { return math.Abs(q[axis] - p[axis]) }

// polar is the (r, theta, z) geometry.
type polar struct{ axes }

func newPolar(g *grid.Grid) *polar { return &polar{newAxes(g)} }

func (g *polar) CellVolume(ijk [3]int) float64 {
	r1, r2 := g.nodes[0][ijk[0]], g.nodes[0][ijk[0]+1]
	return 0.5 * (r2*r2 - r1*r1) * g.h[1][ijk[1]] * g.h[2][ijk[2]]
}

func (g *polar) CellCenter(ijk [3]int) [3]float64 {
	return [3]float64{g.centers[0][ijk[0]], g.centers[1][ijk[1]], g.centers[2][ijk[2]]}
}

func (g *polar) FaceArea(axis int, ijk [3]int) float64 {
	switch axis {
	case 0:
		return g.nodes[0][ijk[0]] * g.h[1][ijk[1]] * g.h[2][ijk[2]]
	case 1:
		return g.h[0][ijk[0]] * g.h[2][ijk[2]]
	}
	r1, r2 := g.nodes[0][ijk[0]], g.nodes[0][ijk[0]+1]
	return 0.5 * (r2*r2 - r1*r1) * g.h[1][ijk[1]]
}

func (g *polar) FaceCenter(axis int, ijk [3]int) [3]float64 {
	c := [3]float64{}
	for a := 0; a < 3; a++ {
		if a == axis {
			c[a] = g.node(a, ijk[a])
		} else {
			c[a] = g.centers[a][ijk[a]]
		}
	}
	return c
}

func (g *polar) EdgeLength(axis int, ijk [3]int) float64 {
	if axis == 1 {
		return g.nodes[0][ijk[0]] * g.h[1][ijk[1]]
	}
	return g.h[axis][ijk[axis]]
}

func (g *polar) EdgeCenter(axis int, ijk [3]int) [3]float64 {
	c := g.NodeCoord(ijk)
	c[axis] = g.centers[axis][ijk[axis]]
	return c
}

func (g *polar) NodeCoord(ijk [3]int) [3]float64 {
	return [3]float64{g.node(0, ijk[0]), g.node(1, ijk[1]), g.node(2, ijk[2])}
}

// Distance measures theta separations as arcs at the mean radius.
func (g *polar) Distance(p, q [3]float64, axis int) float64 {
	if axis != 1 {
		return math.Abs(q[axis] - p[axis])
	}
	d := math.Mod(q[1]-p[1], 2*math.Pi)
	if d > math.Pi {
		d -= 2 * math.Pi
	} else if d < -math.Pi {
		d += 2 * math.Pi
	}
	return 0.5 * (p[0] + q[0]) * math.Abs(d)
}

// Volume returns the exact volume of the meshed region.
func (m *Mesh) Volume() float64 {
	g := m.grid
	r1 := g.Origin[0]
	r2 := r1 + g.Extent(0)
	if m.Dim() == 2 {
		return math.Pi * (r2*r2 - r1*r1) * g.Extent(1)
	}
	return 0.5 * (r2*r2 - r1*r1) * floats.Sum(g.H[1]) * g.Extent(2)
}
