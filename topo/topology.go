// Package topo is the finalized entity and connectivity contract every mesh
// variant hands to the operator assemblers. A Topology is immutable once
// built; assemblers read it concurrently without locks.
package topo

// EntityKind names a mesh entity family.
type EntityKind uint8

const (
	Cell EntityKind = iota
	Face
	Edge
	Node
)

func (k EntityKind) String() string {
	switch k {
	case Cell:
		return "cell"
	case Face:
		return "face"
	case Edge:
		return "edge"
	case Node:
		return "node"
	}
	return "unknown"
}

// Ref names either an active entity (Hanging false, ID into the active
// arrays) or a hanging entity (Hanging true, ID into the hanging table).
// ID -1 marks an absent slot.
type Ref struct {
	ID      int
	Hanging bool
}

// None is the absent slot.
var None = Ref{ID: -1}

// Valid reports whether r names an entity.
func (r Ref) Valid() bool { return r.ID >= 0 }

// Weight is one term of a hanging constraint: the active entity ID scaled by
// W.
type Weight struct {
	ID int
	W  float64
}

// Hanging records an entity that is not a degree of freedom. Its value is
// the weighted sum of active entities in Weights.
type Hanging struct {
	Axis    int        // orientation axis, -1 for nodes
	Measure float64    // area for faces, length for edges, 0 for nodes
	Center  [3]float64 // centroid, or location for nodes
	Cell    int        // coarse cell owning the entity, -1 for nodes
	On      EntityKind // nodes only: the coarse entity the node lies on
	OnID    int        // nodes only: hanging id of that entity
	Weights []Weight
}

// Topology carries the finalized entities of a mesh. Per-cell slot orders:
//
//	CellFaces: 2*Dim refs ordered (-x, +x, -y, +y, -z, +z)
//	CellEdges: 12 refs in 3-D, axis major; within an axis the two other axes
//	           b < c select edge 4*axis + bb + 2*bc
//	CellNodes: 2^Dim refs, bit a of the slot selects the upper side on axis a
//
// FaceEdges lists, for a face normal to axis a with cyclic b = (a+1)%3 and
// c = (a+2)%3, the b edge at low c, the b edge at high c, the c edge at low
// b and the c edge at high b. The right hand rule signs are +, -, -, +.
type Topology struct {
	Dim int

	// Orthogonal is true when face normals and edge tangents are the axis
	// unit vectors, so FaceNormals and EdgeTangents may be nil.
	Orthogonal bool

	NCells      int
	CellVolumes []float64
	CellCenters [][3]float64
	CellFaces   [][]Ref
	CellEdges   [][]Ref
	CellNodes   [][]Ref

	NFaces        [3]int // active faces per axis
	FaceAxis      []int
	FaceAreas     []float64
	FaceCenters   [][3]float64
	FaceNormals   [][3]float64
	FaceCells     [][2]int     // back and front cells, -1 when absent
	FaceDistances [][2]float64 // back center to face, face to front center
	FaceEdges     [][4]Ref
	FaceNodes     [][]Ref
	HangingFaces  []Hanging

	NEdges       [3]int
	EdgeAxis     []int
	EdgeLengths  []float64
	EdgeCenters  [][3]float64
	EdgeTangents [][3]float64
	EdgeNodes    [][2]Ref
	// EdgeBoundary counts the transverse axes on which an edge touches the
	// domain boundary.
	EdgeBoundary []uint8
	HangingEdges []Hanging

	NNodes       int
	NodeCoords   [][3]float64
	NodeBoundary []uint8 // axes on which a node touches the domain boundary
	HangingNodes []Hanging
}

// TotalFaces returns the number of active faces.
func (t *Topology) TotalFaces() int { return t.NFaces[0] + t.NFaces[1] + t.NFaces[2] }

// TotalEdges returns the number of active edges.
func (t *Topology) TotalEdges() int { return t.NEdges[0] + t.NEdges[1] + t.NEdges[2] }

// HasEdges reports whether edge entities were built.
func (t *Topology) HasEdges() bool { return t.Dim == 3 && t.EdgeLengths != nil }

// HasNodes reports whether node entities were built.
func (t *Topology) HasNodes() bool { return t.NodeCoords != nil }

// FaceOffset returns the global id of the first face normal to axis.
func (t *Topology) FaceOffset(axis int) int {
	off := 0
	for a := 0; a < axis; a++ {
		off += t.NFaces[a]
	}
	return off
}

// EdgeOffset returns the global id of the first edge along axis.
func (t *Topology) EdgeOffset(axis int) int {
	off := 0
	for a := 0; a < axis; a++ {
		off += t.NEdges[a]
	}
	return off
}

// Route expands a face, edge or node reference into active ids and weights.
// Active references expand to themselves with weight one.
func (t *Topology) Route(kind EntityKind, r Ref) []Weight {
	if !r.Valid() {
		return nil
	}
	if !r.Hanging {
		return []Weight{{ID: r.ID, W: 1}}
	}
	switch kind {
	case Face:
		return t.HangingFaces[r.ID].Weights
	case Edge:
		return t.HangingEdges[r.ID].Weights
	case Node:
		return t.HangingNodes[r.ID].Weights
	}
	return nil
}

// FaceMeasure returns the area of an active or hanging face.
func (t *Topology) FaceMeasure(r Ref) float64 {
	if r.Hanging {
		return t.HangingFaces[r.ID].Measure
	}
	return t.FaceAreas[r.ID]
}

// EdgeMeasure returns the length of an active or hanging edge.
func (t *Topology) EdgeMeasure(r Ref) float64 {
	if r.Hanging {
		return t.HangingEdges[r.ID].Measure
	}
	return t.EdgeLengths[r.ID]
}

// BoundaryFaces returns the active faces bounded by a single cell.
func (t *Topology) BoundaryFaces() []int {
	var ids []int
	for f, c := range t.FaceCells {
		if c[0] < 0 || c[1] < 0 {
			ids = append(ids, f)
		}
	}
	return ids
}

// BoundaryCells returns the cells owning at least one boundary face.
func (t *Topology) BoundaryCells() []int {
	mark := make([]bool, t.NCells)
	for _, f := range t.BoundaryFaces() {
		for _, c := range t.FaceCells[f] {
			if c >= 0 {
				mark[c] = true
			}
		}
	}
	var ids []int
	for c, m := range mark {
		if m {
			ids = append(ids, c)
		}
	}
	return ids
}

// BoundaryEdges returns the active edges lying on the domain boundary.
func (t *Topology) BoundaryEdges() []int {
	var ids []int
	for e, b := range t.EdgeBoundary {
		if b > 0 {
			ids = append(ids, e)
		}
	}
	return ids
}

// BoundaryNodes returns the active nodes lying on the domain boundary.
func (t *Topology) BoundaryNodes() []int {
	var ids []int
	for n, b := range t.NodeBoundary {
		if b > 0 {
			ids = append(ids, n)
		}
	}
	return ids
}

// FaceNormal returns the unit normal of active face f.
func (t *Topology) FaceNormal(f int) [3]float64 {
	if t.Orthogonal || t.FaceNormals == nil {
		var n [3]float64
		n[t.FaceAxis[f]] = 1
		return n
	}
	return t.FaceNormals[f]
}

// EdgeTangent returns the unit tangent of active edge e.
func (t *Topology) EdgeTangent(e int) [3]float64 {
	if t.Orthogonal || t.EdgeTangents == nil {
		var n [3]float64
		n[t.EdgeAxis[e]] = 1
		return n
	}
	return t.EdgeTangents[e]
}
