// Package tensor is the regular tensor product mesh: axis aligned cells with
// per axis widths.
package tensor

import (
	"github.com/notargets/discretize/grid"
	"github.com/notargets/discretize/mesh"
	"github.com/notargets/discretize/topo"
)

// Mesh is a finalized tensor product mesh.
type Mesh struct {
	*mesh.Base
	grid *grid.Grid
}

var _ mesh.BaseMesh = (*Mesh)(nil)

// New builds a mesh from per axis cell widths and an origin (nil for zero).
func New(widths [][]float64, origin []float64, opts ...mesh.Option) (*Mesh, error) {
	g, err := grid.New(widths, origin)
	if err != nil {
		return nil, err
	}
	return FromGrid(g, opts...)
}

// Uniform builds a mesh of counts[a] equal cells spanning extents[a].
func Uniform(counts []int, extents []float64, opts ...mesh.Option) (*Mesh, error) {
	widths := make([][]float64, len(counts))
	for a, n := range counts {
		ext := 1.0
		if a < len(extents) {
			ext = extents[a]
		}
		h, err := grid.Uniform(n, ext)
		if err != nil {
			return nil, err
		}
		widths[a] = h
	}
	return New(widths, nil, opts...)
}

// FromGrid builds a mesh over g.
func FromGrid(g *grid.Grid, opts ...mesh.Option) (*Mesh, error) {
	m := &Mesh{Base: mesh.NewBase(mesh.Tensor, g.Dim(), opts...), grid: g}
	t, err := topo.Structured(g.Dim(), g.Shape(), newGeometry(g), topo.StructuredOptions{})
	if err != nil {
		return nil, err
	}
	m.SetTopology(t)
	return m, nil
}

// Grid returns the base coordinates.
func (m *Mesh) Grid() *grid.Grid { return m.grid }

// Shape returns the cell count per axis.
func (m *Mesh) Shape() [3]int { return m.grid.Shape() }

type geometry struct {
	dim     int
	h       [3][]float64
	nodes   [3][]float64
	centers [3][]float64
}

func newGeometry(g *grid.Grid) *geometry {
	geo := &geometry{dim: g.Dim()}
	for a := 0; a < 3; a++ {
		if a < geo.dim {
			geo.h[a] = g.H[a]
			geo.nodes[a] = g.Nodes(a)
			geo.centers[a] = g.Centers(a)
			continue
		}
		geo.h[a] = []float64{1}
		geo.nodes[a] = []float64{0}
		geo.centers[a] = []float64{0}
	}
	return geo
}

func (g *geometry) CellVolume(ijk [3]int) float64 {
	v := 1.0
	for a := 0; a < g.dim; a++ {
		v *= g.h[a][ijk[a]]
	}
	return v
}

func (g *geometry) CellCenter(ijk [3]int) [3]float64 {
	var c [3]float64
	for a := 0; a < g.dim; a++ {
		c[a] = g.centers[a][ijk[a]]
	}
	return c
}

func (g *geometry) FaceArea(axis int, ijk [3]int) float64 {
	v := 1.0
	for a := 0; a < g.dim; a++ {
		if a != axis {
			v *= g.h[a][ijk[a]]
		}
	}
	return v
}

func (g *geometry) FaceCenter(axis int, ijk [3]int) [3]float64 {
	var c [3]float64
	for a := 0; a < g.dim; a++ {
		if a == axis {
			c[a] = g.nodes[a][ijk[a]]
		} else {
			c[a] = g.centers[a][ijk[a]]
		}
	}
	return c
}

func (g *geometry) EdgeLength(axis int, ijk [3]int) float64 { return g.h[axis][ijk[axis]] }

func (g *geometry) EdgeCenter(axis int, ijk [3]int) [3]float64 {
	c := g.NodeCoord(ijk)
	c[axis] = g.centers[axis][ijk[axis]]
	return c
}

func (g *geometry) NodeCoord(ijk [3]int) [3]float64 {
	var c [3]float64
	for a := 0; a < g.dim; a++ {
		c[a] = g.nodes[a][ijk[a]]
	}
	return c
}

func (g *geometry) Distance(p, q [3]float64, axis int) float64 {
	d := q[axis] - p[axis]
	if d < 0 {
		return -d
	}
	return d
}
