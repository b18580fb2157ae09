// Package curv is the logically rectangular mesh with arbitrary node
// locations. Faces carry their own normals and edges their own tangents.
package curv

import (
	"math"

	"github.com/notargets/discretize/grid"
	"github.com/notargets/discretize/mesh"
	"github.com/notargets/discretize/mesherr"
	"github.com/notargets/discretize/topo"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is a finalized curvilinear mesh.
type Mesh struct {
	*mesh.Base
	shape [3]int
	nodes []r3.Vec
}

var _ mesh.BaseMesh = (*Mesh)(nil)

// New builds a mesh of shape cells per axis (2-D or 3-D) from node
// coordinates ordered with the first axis fastest, prod(shape+1) of them.
func New(shape []int, nodes [][3]float64, opts ...mesh.Option) (*Mesh, error) {
	dim := len(shape)
	if dim < 2 || dim > 3 {
		return nil, mesherr.Configuration("curv.New", "curvilinear meshes are 2-D or 3-D, got %d-D", dim)
	}
	var n [3]int
	want := 1
	for a := 0; a < 3; a++ {
		n[a] = 1
		if a < dim {
			if shape[a] < 1 {
				return nil, mesherr.Configuration("curv.New", "axis %d has %d cells", a, shape[a])
			}
			n[a] = shape[a]
			want *= shape[a] + 1
		}
	}
	if len(nodes) != want {
		return nil, mesherr.Configuration("curv.New", "%d nodes for a %v cell mesh, want %d", len(nodes), shape, want)
	}
	m := &Mesh{Base: mesh.NewBase(mesh.Curvilinear, dim, opts...), shape: n}
	m.nodes = make([]r3.Vec, len(nodes))
	for i, p := range nodes {
		m.nodes[i] = r3.Vec{X: p[0], Y: p[1], Z: p[2]}
	}
	geo := &geometry{dim: dim, n: n, nodes: m.nodes}
	t, err := topo.Structured(dim, n, geo, topo.StructuredOptions{})
	if err != nil {
		return nil, err
	}
	m.SetTopology(t)
	return m, nil
}

// FromGrid maps the nodes of a tensor grid through fn. A nil fn keeps the
// rectilinear nodes.
func FromGrid(g *grid.Grid, fn func(p [3]float64) [3]float64, opts ...mesh.Option) (*Mesh, error) {
	axes := make([][]float64, g.Dim())
	for a := range axes {
		axes[a] = g.Nodes(a)
	}
	pts := grid.Points(axes...)
	if fn != nil {
		for i, p := range pts {
			pts[i] = fn(p)
		}
	}
	shape := g.Shape()
	return New(shape[:g.Dim()], pts, opts...)
}

// Nodes returns the node coordinates.
func (m *Mesh) Nodes() []r3.Vec { return m.nodes }

type geometry struct {
	dim   int
	n     [3]int
	nodes []r3.Vec
}

func (g *geometry) node(ijk [3]int) r3.Vec {
	nx, ny := g.n[0]+1, 1
	if g.dim > 1 {
		ny = g.n[1] + 1
	}
	return g.nodes[ijk[0]+nx*(ijk[1]+ny*ijk[2])]
}

func (g *geometry) corner(ijk [3]int, s int) r3.Vec {
	p := ijk
	for a := 0; a < g.dim; a++ {
		p[a] += (s >> a) & 1
	}
	return g.node(p)
}

func vec(v r3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// tets split a hexahedron along its 0-7 diagonal.
var tets = [6][4]int{{0, 1, 3, 7}, {0, 3, 2, 7}, {0, 2, 6, 7}, {0, 6, 4, 7}, {0, 4, 5, 7}, {0, 5, 1, 7}}

func (g *geometry) CellVolume(ijk [3]int) float64 {
	if g.dim == 2 {
		q := [4]r3.Vec{g.corner(ijk, 0), g.corner(ijk, 1), g.corner(ijk, 3), g.corner(ijk, 2)}
		area := 0.0
		for k := range q {
			p1, p2 := q[k], q[(k+1)%4]
			area += p1.X*p2.Y - p2.X*p1.Y
		}
		return 0.5 * area
	}
	v := 0.0
	for _, tet := range tets {
		a := g.corner(ijk, tet[0])
		v += r3.Dot(r3.Sub(g.corner(ijk, tet[1]), a),
			r3.Cross(r3.Sub(g.corner(ijk, tet[2]), a), r3.Sub(g.corner(ijk, tet[3]), a)))
	}
	return v / 6
}

func (g *geometry) CellCenter(ijk [3]int) [3]float64 {
	var c r3.Vec
	nc := 1 << g.dim
	for s := 0; s < nc; s++ {
		c = r3.Add(c, g.corner(ijk, s))
	}
	return vec(r3.Scale(1/float64(nc), c))
}

// faceCorners returns the face corners p00, p10, p01, p11 over the cyclic
// axes b = a+1 and c = a+2.
func (g *geometry) faceCorners(axis int, ijk [3]int) [4]r3.Vec {
	b, c := (axis+1)%3, (axis+2)%3
	var q [4]r3.Vec
	for s := 0; s < 4; s++ {
		p := ijk
		p[b] += s & 1
		p[c] += s >> 1
		q[s] = g.node(p)
	}
	return q
}

// faceSegment returns the 2-D face as a segment from its low to high node.
func (g *geometry) faceSegment(axis int, ijk [3]int) (r3.Vec, r3.Vec) {
	other := 1 - axis
	p := ijk
	p[other]++
	return g.node(ijk), g.node(p)
}

func (g *geometry) FaceArea(axis int, ijk [3]int) float64 {
	if g.dim == 2 {
		p0, p1 := g.faceSegment(axis, ijk)
		return r3.Norm(r3.Sub(p1, p0))
	}
	q := g.faceCorners(axis, ijk)
	return 0.5 * r3.Norm(r3.Cross(r3.Sub(q[3], q[0]), r3.Sub(q[2], q[1])))
}

func (g *geometry) FaceCenter(axis int, ijk [3]int) [3]float64 {
	if g.dim == 2 {
		p0, p1 := g.faceSegment(axis, ijk)
		return vec(r3.Scale(0.5, r3.Add(p0, p1)))
	}
	q := g.faceCorners(axis, ijk)
	return vec(r3.Scale(0.25, r3.Add(r3.Add(q[0], q[1]), r3.Add(q[2], q[3]))))
}

// FaceNormal points along increasing index on axis.
func (g *geometry) FaceNormal(axis int, ijk [3]int) [3]float64 {
	if g.dim == 2 {
		p0, p1 := g.faceSegment(axis, ijk)
		t := r3.Unit(r3.Sub(p1, p0))
		if axis == 0 {
			return [3]float64{t.Y, -t.X, 0}
		}
		return [3]float64{-t.Y, t.X, 0}
	}
	q := g.faceCorners(axis, ijk)
	return vec(r3.Unit(r3.Cross(r3.Sub(q[3], q[0]), r3.Sub(q[2], q[1]))))
}

func (g *geometry) edgeEnds(axis int, ijk [3]int) (r3.Vec, r3.Vec) {
	p := ijk
	p[axis]++
	return g.node(ijk), g.node(p)
}

func (g *geometry) EdgeLength(axis int, ijk [3]int) float64 {
	p0, p1 := g.edgeEnds(axis, ijk)
	return r3.Norm(r3.Sub(p1, p0))
}

func (g *geometry) EdgeCenter(axis int, ijk [3]int) [3]float64 {
	p0, p1 := g.edgeEnds(axis, ijk)
	return vec(r3.Scale(0.5, r3.Add(p0, p1)))
}

func (g *geometry) EdgeTangent(axis int, ijk [3]int) [3]float64 {
	p0, p1 := g.edgeEnds(axis, ijk)
	return vec(r3.Unit(r3.Sub(p1, p0)))
}

func (g *geometry) NodeCoord(ijk [3]int) [3]float64 { return vec(g.node(ijk)) }

func (g *geometry) Distance(p, q [3]float64, _ int) float64 {
	return math.Sqrt((q[0]-p[0])*(q[0]-p[0]) + (q[1]-p[1])*(q[1]-p[1]) + (q[2]-p[2])*(q[2]-p[2]))
}
