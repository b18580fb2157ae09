package topo

import (
	"github.com/notargets/discretize/mesherr"
)

// Geometry supplies the metric quantities of a structured mesh. Index
// triples use cell indices, except along the face normal axis (node plane
// index) and across edge transverse axes (node indices). Unused axes are 0.
type Geometry interface {
	CellVolume(ijk [3]int) float64
	CellCenter(ijk [3]int) [3]float64
	FaceArea(axis int, ijk [3]int) float64
	FaceCenter(axis int, ijk [3]int) [3]float64
	EdgeLength(axis int, ijk [3]int) float64
	EdgeCenter(axis int, ijk [3]int) [3]float64
	NodeCoord(ijk [3]int) [3]float64
	// Distance is the length between p and q measured along axis.
	Distance(p, q [3]float64, axis int) float64
}

// NormalGeometry is implemented by geometries whose faces and edges are not
// aligned with the coordinate axes.
type NormalGeometry interface {
	FaceNormal(axis int, ijk [3]int) [3]float64
	EdgeTangent(axis int, ijk [3]int) [3]float64
}

// StructuredOptions adjusts the entity sets of a structured mesh.
type StructuredOptions struct {
	Periodic      [3]bool // wrap the last node plane onto the first
	SkipLowerFace [3]bool // drop the first face plane normal to axis
	NoEdges       bool
	NoNodes       bool
}

type lattice struct {
	dim   int
	n     [3]int // cells
	nn    [3]int // node planes
	opts  StructuredOptions
	first [3]int // first face plane kept per axis
}

func newLattice(dim int, n [3]int, opts StructuredOptions) *lattice {
	l := &lattice{dim: dim, opts: opts}
	for a := 0; a < 3; a++ {
		l.n[a], l.nn[a] = 1, 1
		if a < dim {
			l.n[a] = n[a]
			l.nn[a] = n[a] + 1
			if opts.Periodic[a] {
				l.nn[a] = n[a]
			}
			if opts.SkipLowerFace[a] && !opts.Periodic[a] {
				l.first[a] = 1
			}
		}
	}
	return l
}

func linear(ijk, r [3]int) int { return ijk[0] + r[0]*(ijk[1]+r[1]*ijk[2]) }

func (l *lattice) wrap(a, i int) int {
	if l.opts.Periodic[a] && a < l.dim {
		i %= l.n[a]
		if i < 0 {
			i += l.n[a]
		}
	}
	return i
}

func (l *lattice) cellID(ijk [3]int) int {
	for a := 0; a < l.dim; a++ {
		ijk[a] = l.wrap(a, ijk[a])
		if ijk[a] < 0 || ijk[a] >= l.n[a] {
			return -1
		}
	}
	return linear(ijk, l.n)
}

func (l *lattice) faceRange(a int) [3]int {
	r := l.n
	r[a] = l.nn[a] - l.first[a]
	return r
}

func (l *lattice) faceLocal(a int, ijk [3]int) int {
	ijk[a] = l.wrap(a, ijk[a])
	if ijk[a] < l.first[a] {
		return -1
	}
	ijk[a] -= l.first[a]
	return linear(ijk, l.faceRange(a))
}

func (l *lattice) edgeRange(a int) [3]int {
	r := l.nn
	r[a] = l.n[a]
	return r
}

func (l *lattice) edgeLocal(a int, ijk [3]int) int {
	for b := 0; b < 3; b++ {
		if b != a {
			ijk[b] = l.wrap(b, ijk[b])
		}
	}
	return linear(ijk, l.edgeRange(a))
}

func (l *lattice) nodeID(ijk [3]int) int {
	for a := 0; a < l.dim; a++ {
		ijk[a] = l.wrap(a, ijk[a])
	}
	return linear(ijk, l.nn)
}

func (l *lattice) onBoundary(a, i int) bool {
	return a < l.dim && !l.opts.Periodic[a] && (i == 0 || i == l.n[a])
}

func each(r [3]int, fn func(ijk [3]int)) {
	for k := 0; k < r[2]; k++ {
		for j := 0; j < r[1]; j++ {
			for i := 0; i < r[0]; i++ {
				fn([3]int{i, j, k})
			}
		}
	}
}

func others(a int) (b, c int) {
	switch a {
	case 0:
		return 1, 2
	case 1:
		return 0, 2
	}
	return 0, 1
}

// Structured builds the topology of a logically rectangular mesh with n cells
// per axis, ordered with the first axis fastest.
func Structured(dim int, n [3]int, geom Geometry, opts StructuredOptions) (*Topology, error) {
	if dim < 1 || dim > 3 {
		return nil, mesherr.Configuration("topo.Structured", "dimension %d", dim)
	}
	for a := 0; a < dim; a++ {
		if n[a] < 1 {
			return nil, mesherr.Configuration("topo.Structured", "axis %d has %d cells", a, n[a])
		}
	}
	l := newLattice(dim, n, opts)
	ng, skewed := geom.(NormalGeometry)
	t := &Topology{Dim: dim, Orthogonal: !skewed}
	buildEdges := dim == 3 && !opts.NoEdges
	buildNodes := !opts.NoNodes

	var faceOff [3]int
	for a := 0; a < dim; a++ {
		r := l.faceRange(a)
		t.NFaces[a] = r[0] * r[1] * r[2]
		if a+1 < 3 {
			faceOff[a+1] = faceOff[a] + t.NFaces[a]
		}
	}
	faceRef := func(a int, ijk [3]int) Ref {
		loc := l.faceLocal(a, ijk)
		if loc < 0 {
			return None
		}
		return Ref{ID: faceOff[a] + loc}
	}
	var edgeOff [3]int
	if buildEdges {
		for a := 0; a < 3; a++ {
			r := l.edgeRange(a)
			t.NEdges[a] = r[0] * r[1] * r[2]
			if a+1 < 3 {
				edgeOff[a+1] = edgeOff[a] + t.NEdges[a]
			}
		}
	}
	edgeRef := func(a int, ijk [3]int) Ref { return Ref{ID: edgeOff[a] + l.edgeLocal(a, ijk)} }
	nodeRef := func(ijk [3]int) Ref { return Ref{ID: l.nodeID(ijk)} }

	// cells
	t.NCells = l.n[0] * l.n[1] * l.n[2]
	t.CellVolumes = make([]float64, 0, t.NCells)
	t.CellCenters = make([][3]float64, 0, t.NCells)
	t.CellFaces = make([][]Ref, 0, t.NCells)
	each(l.n, func(ijk [3]int) {
		t.CellVolumes = append(t.CellVolumes, geom.CellVolume(ijk))
		t.CellCenters = append(t.CellCenters, geom.CellCenter(ijk))
		faces := make([]Ref, 2*dim)
		for a := 0; a < dim; a++ {
			up := ijk
			up[a]++
			faces[2*a] = faceRef(a, ijk)
			faces[2*a+1] = faceRef(a, up)
		}
		t.CellFaces = append(t.CellFaces, faces)
		if buildEdges {
			edges := make([]Ref, 12)
			for a := 0; a < 3; a++ {
				b, c := others(a)
				for s := 0; s < 4; s++ {
					e := ijk
					e[b] += s & 1
					e[c] += s >> 1
					edges[4*a+s] = edgeRef(a, e)
				}
			}
			t.CellEdges = append(t.CellEdges, edges)
		}
		if buildNodes {
			nodes := make([]Ref, 1<<dim)
			for s := range nodes {
				p := ijk
				for a := 0; a < dim; a++ {
					p[a] += (s >> a) & 1
				}
				nodes[s] = nodeRef(p)
			}
			t.CellNodes = append(t.CellNodes, nodes)
		}
	})

	// faces
	nF := t.TotalFaces()
	t.FaceAxis = make([]int, 0, nF)
	t.FaceAreas = make([]float64, 0, nF)
	t.FaceCenters = make([][3]float64, 0, nF)
	t.FaceCells = make([][2]int, 0, nF)
	t.FaceDistances = make([][2]float64, 0, nF)
	if skewed {
		t.FaceNormals = make([][3]float64, 0, nF)
	}
	for a := 0; a < dim; a++ {
		each(l.faceRange(a), func(loc [3]int) {
			ijk := loc
			ijk[a] += l.first[a]
			back := ijk
			back[a]--
			cb, cf := l.cellID(back), l.cellID(ijk)
			center := geom.FaceCenter(a, ijk)
			var dist [2]float64
			if cb >= 0 {
				dist[0] = geom.Distance(t.CellCenters[cb], center, a)
			}
			if cf >= 0 {
				dist[1] = geom.Distance(center, t.CellCenters[cf], a)
			}
			t.FaceAxis = append(t.FaceAxis, a)
			t.FaceAreas = append(t.FaceAreas, geom.FaceArea(a, ijk))
			t.FaceCenters = append(t.FaceCenters, center)
			t.FaceCells = append(t.FaceCells, [2]int{cb, cf})
			t.FaceDistances = append(t.FaceDistances, dist)
			if skewed {
				t.FaceNormals = append(t.FaceNormals, ng.FaceNormal(a, ijk))
			}
			if buildEdges {
				b, c := (a+1)%3, (a+2)%3
				hiC, hiB := ijk, ijk
				hiC[c]++
				hiB[b]++
				t.FaceEdges = append(t.FaceEdges, [4]Ref{
					edgeRef(b, ijk), edgeRef(b, hiC), edgeRef(c, ijk), edgeRef(c, hiB),
				})
			}
			if buildNodes {
				var corners []Ref
				for s := 0; s < 1<<dim; s++ {
					if (s>>a)&1 == 1 {
						continue
					}
					p := ijk
					for d := 0; d < dim; d++ {
						p[d] += (s >> d) & 1
					}
					corners = append(corners, nodeRef(p))
				}
				t.FaceNodes = append(t.FaceNodes, corners)
			}
		})
	}

	// edges
	if buildEdges {
		nE := t.TotalEdges()
		t.EdgeAxis = make([]int, 0, nE)
		t.EdgeLengths = make([]float64, 0, nE)
		t.EdgeCenters = make([][3]float64, 0, nE)
		t.EdgeNodes = make([][2]Ref, 0, nE)
		t.EdgeBoundary = make([]uint8, 0, nE)
		if skewed {
			t.EdgeTangents = make([][3]float64, 0, nE)
		}
		for a := 0; a < 3; a++ {
			each(l.edgeRange(a), func(ijk [3]int) {
				end := ijk
				end[a]++
				var nb uint8
				for b := 0; b < 3; b++ {
					if b != a && l.onBoundary(b, ijk[b]) {
						nb++
					}
				}
				t.EdgeAxis = append(t.EdgeAxis, a)
				t.EdgeLengths = append(t.EdgeLengths, geom.EdgeLength(a, ijk))
				t.EdgeCenters = append(t.EdgeCenters, geom.EdgeCenter(a, ijk))
				t.EdgeNodes = append(t.EdgeNodes, [2]Ref{nodeRef(ijk), nodeRef(end)})
				t.EdgeBoundary = append(t.EdgeBoundary, nb)
				if skewed {
					t.EdgeTangents = append(t.EdgeTangents, ng.EdgeTangent(a, ijk))
				}
			})
		}
		if !buildNodes {
			t.EdgeNodes = nil
		}
	}

	// nodes
	if buildNodes {
		t.NNodes = l.nn[0] * l.nn[1] * l.nn[2]
		t.NodeCoords = make([][3]float64, 0, t.NNodes)
		t.NodeBoundary = make([]uint8, 0, t.NNodes)
		each(l.nn, func(ijk [3]int) {
			var nb uint8
			for a := 0; a < dim; a++ {
				if l.onBoundary(a, ijk[a]) {
					nb++
				}
			}
			t.NodeCoords = append(t.NodeCoords, geom.NodeCoord(ijk))
			t.NodeBoundary = append(t.NodeBoundary, nb)
		})
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
