package operators

import (
	"github.com/james-bowman/sparse"
	"github.com/notargets/discretize/mesherr"
	"github.com/notargets/discretize/topo"
)

// BoundaryPolicy selects the gradient row of a face with one bounding cell.
type BoundaryPolicy uint8

const (
	// BoundaryZero leaves boundary rows empty.
	BoundaryZero BoundaryPolicy = iota
	// BoundaryDirichlet imposes a zero value on the face through a mirrored
	// ghost cell.
	BoundaryDirichlet
)

func (p BoundaryPolicy) String() string {
	switch p {
	case BoundaryZero:
		return "zero"
	case BoundaryDirichlet:
		return "dirichlet"
	}
	return "unknown"
}

// faceSign is the outward orientation of cell face slot s.
func faceSign(s int) float64 {
	if s%2 == 0 {
		return -1
	}
	return 1
}

// Divergence returns the cells x faces operator. Row c sums the outward
// face fluxes of cell c scaled by area over volume.
func (a *Assembler) Divergence() (*sparse.CSR, error) {
	t := a.Topo
	nF := t.TotalFaces()
	return a.assemble("divergence", t.NCells, t.NCells, nF, nil, func(c int, out *Triplets) error {
		inv := 1 / t.CellVolumes[c]
		for s, r := range t.CellFaces[c] {
			if !r.Valid() {
				continue
			}
			out.AddRouted(c, t.Route(topo.Face, r), faceSign(s)*t.FaceMeasure(r)*inv)
		}
		return nil
	})
}

// CellGradient returns the faces x cells operator: the difference of the
// front and back cell values over the distance between their centers.
func (a *Assembler) CellGradient(policy BoundaryPolicy) (*sparse.CSR, error) {
	t := a.Topo
	nF := t.TotalFaces()
	return a.assemble("cell gradient", nF, nF, t.NCells, nil, func(f int, out *Triplets) error {
		back, front := t.FaceCells[f][0], t.FaceCells[f][1]
		d := t.FaceDistances[f]
		switch {
		case back >= 0 && front >= 0:
			h := d[0] + d[1]
			out.Add(f, front, 1/h)
			out.Add(f, back, -1/h)
		case policy == BoundaryDirichlet && back >= 0:
			out.Add(f, back, -1/d[0])
		case policy == BoundaryDirichlet && front >= 0:
			out.Add(f, front, 1/d[1])
		}
		return nil
	})
}

// NodalGradient returns the edges x nodes operator: the difference of the
// end and start node values over the edge length.
func (a *Assembler) NodalGradient() (*sparse.CSR, error) {
	t := a.Topo
	if !t.HasEdges() || !t.HasNodes() || t.EdgeNodes == nil {
		return nil, mesherr.NotSupported("NodalGradient", "mesh of dimension %d has no edges", t.Dim)
	}
	nE := t.TotalEdges()
	return a.assemble("nodal gradient", nE, nE, t.NNodes, nil, func(e int, out *Triplets) error {
		inv := 1 / t.EdgeLengths[e]
		ends := t.EdgeNodes[e]
		out.AddRouted(e, t.Route(topo.Node, ends[1]), inv)
		out.AddRouted(e, t.Route(topo.Node, ends[0]), -inv)
		return nil
	})
}

// curlSigns orients the four edges of a face counterclockwise about its
// normal.
var curlSigns = [4]float64{1, -1, -1, 1}

// EdgeCurl returns the faces x edges operator: the circulation of edge
// tangential values around each face over the face area.
func (a *Assembler) EdgeCurl() (*sparse.CSR, error) {
	t := a.Topo
	if !t.HasEdges() || t.FaceEdges == nil {
		return nil, mesherr.NotSupported("EdgeCurl", "mesh of dimension %d has no edges", t.Dim)
	}
	nF, nE := t.TotalFaces(), t.TotalEdges()
	return a.assemble("edge curl", nF, nF, nE, nil, func(f int, out *Triplets) error {
		inv := 1 / t.FaceAreas[f]
		for k, r := range t.FaceEdges[f] {
			if !r.Valid() {
				continue
			}
			out.AddRouted(f, t.Route(topo.Edge, r), curlSigns[k]*t.EdgeMeasure(r)*inv)
		}
		return nil
	})
}

// FaceCurl returns the edges x faces operator, the transpose of EdgeCurl.
func (a *Assembler) FaceCurl() (*sparse.CSR, error) {
	c, err := a.EdgeCurl()
	if err != nil {
		return nil, mesherr.NotSupported("FaceCurl", "mesh of dimension %d has no edges", a.Topo.Dim)
	}
	return Transpose(c), nil
}
