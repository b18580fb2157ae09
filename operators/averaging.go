package operators

import (
	"math"

	"github.com/james-bowman/sparse"
	"github.com/notargets/discretize/mesherr"
	"github.com/notargets/discretize/topo"
)

// AveragingScheme weights the two cells of a face.
type AveragingScheme uint8

const (
	// InverseDistance interpolates linearly between the cell centers.
	InverseDistance AveragingScheme = iota
	// VolumeWeighted weights each cell by its volume.
	VolumeWeighted
)

// BoundaryFill selects the value of an averaged boundary entity.
type BoundaryFill uint8

const (
	// Extrapolate copies the adjacent interior value.
	Extrapolate BoundaryFill = iota
	// ZeroPad averages against a zero exterior value.
	ZeroPad
)

// AveCC2F returns the faces x cells average.
func (a *Assembler) AveCC2F(scheme AveragingScheme, fill BoundaryFill) (*sparse.CSR, error) {
	t := a.Topo
	nF := t.TotalFaces()
	return a.assemble("ave cc2f", nF, nF, t.NCells, nil, func(f int, out *Triplets) error {
		back, front := t.FaceCells[f][0], t.FaceCells[f][1]
		if back < 0 || front < 0 {
			c := back
			if c < 0 {
				c = front
			}
			w := 1.0
			if fill == ZeroPad {
				w = 0.5
			}
			out.Add(f, c, w)
			return nil
		}
		var wb, wf float64
		switch scheme {
		case VolumeWeighted:
			vb, vf := t.CellVolumes[back], t.CellVolumes[front]
			wb, wf = vb/(vb+vf), vf/(vb+vf)
		default:
			d := t.FaceDistances[f]
			wb, wf = d[1]/(d[0]+d[1]), d[0]/(d[0]+d[1])
		}
		out.Add(f, back, wb)
		out.Add(f, front, wf)
		return nil
	})
}

// addAxisPair averages the lower and upper slots of one axis, falling back
// to the present side when the other is absent.
func addAxisPair(out *Triplets, row int, t *topo.Topology, lo, hi topo.Ref, scale float64) {
	switch {
	case lo.Valid() && hi.Valid():
		out.AddRouted(row, t.Route(topo.Face, lo), 0.5*scale)
		out.AddRouted(row, t.Route(topo.Face, hi), 0.5*scale)
	case lo.Valid():
		out.AddRouted(row, t.Route(topo.Face, lo), scale)
	case hi.Valid():
		out.AddRouted(row, t.Route(topo.Face, hi), scale)
	}
}

// AveF2CC returns the cells x faces average of all bounding faces.
func (a *Assembler) AveF2CC() (*sparse.CSR, error) {
	t := a.Topo
	nF := t.TotalFaces()
	scale := 1 / float64(t.Dim)
	return a.assemble("ave f2cc", t.NCells, t.NCells, nF, nil, func(c int, out *Triplets) error {
		slots := t.CellFaces[c]
		for ax := 0; ax < t.Dim; ax++ {
			addAxisPair(out, c, t, slots[2*ax], slots[2*ax+1], scale)
		}
		return nil
	})
}

// AveF2CCV returns the (Dim*cells) x faces map from face normal components
// to cell centered vector components, component major.
func (a *Assembler) AveF2CCV() (*sparse.CSR, error) {
	t := a.Topo
	nF := t.TotalFaces()
	n := t.NCells
	return a.assemble("ave f2ccv", n, t.Dim*n, nF, nil, func(c int, out *Triplets) error {
		slots := t.CellFaces[c]
		for ax := 0; ax < t.Dim; ax++ {
			addAxisPair(out, ax*n+c, t, slots[2*ax], slots[2*ax+1], 1)
		}
		return nil
	})
}

// AveN2CC returns the cells x nodes average of cell corners.
func (a *Assembler) AveN2CC() (*sparse.CSR, error) {
	t := a.Topo
	if !t.HasNodes() {
		return nil, mesherr.NotSupported("AveN2CC", "mesh has no nodes")
	}
	return a.assemble("ave n2cc", t.NCells, t.NCells, t.NNodes, nil, func(c int, out *Triplets) error {
		w := 1 / float64(len(t.CellNodes[c]))
		for _, r := range t.CellNodes[c] {
			out.AddRouted(c, t.Route(topo.Node, r), w)
		}
		return nil
	})
}

// AveE2CC returns the cells x edges average of the twelve cell edges.
func (a *Assembler) AveE2CC() (*sparse.CSR, error) {
	t := a.Topo
	if !t.HasEdges() {
		return nil, mesherr.NotSupported("AveE2CC", "mesh of dimension %d has no edges", t.Dim)
	}
	return a.assemble("ave e2cc", t.NCells, t.NCells, t.TotalEdges(), nil, func(c int, out *Triplets) error {
		for _, r := range t.CellEdges[c] {
			out.AddRouted(c, t.Route(topo.Edge, r), 1.0/12)
		}
		return nil
	})
}

// AveE2CCV returns the (3*cells) x edges map from edge tangential
// components to cell centered vector components, component major.
func (a *Assembler) AveE2CCV() (*sparse.CSR, error) {
	t := a.Topo
	if !t.HasEdges() {
		return nil, mesherr.NotSupported("AveE2CCV", "mesh of dimension %d has no edges", t.Dim)
	}
	n := t.NCells
	return a.assemble("ave e2ccv", n, 3*n, t.TotalEdges(), nil, func(c int, out *Triplets) error {
		for s, r := range t.CellEdges[c] {
			out.AddRouted((s/4)*n+c, t.Route(topo.Edge, r), 0.25)
		}
		return nil
	})
}

// AveN2F returns the faces x nodes average of face corners.
func (a *Assembler) AveN2F() (*sparse.CSR, error) {
	t := a.Topo
	if !t.HasNodes() || t.FaceNodes == nil {
		return nil, mesherr.NotSupported("AveN2F", "mesh has no nodes")
	}
	nF := t.TotalFaces()
	return a.assemble("ave n2f", nF, nF, t.NNodes, nil, func(f int, out *Triplets) error {
		w := 1 / float64(len(t.FaceNodes[f]))
		for _, r := range t.FaceNodes[f] {
			out.AddRouted(f, t.Route(topo.Node, r), w)
		}
		return nil
	})
}

// AveN2E returns the edges x nodes average of edge ends.
func (a *Assembler) AveN2E() (*sparse.CSR, error) {
	t := a.Topo
	if !t.HasEdges() || !t.HasNodes() || t.EdgeNodes == nil {
		return nil, mesherr.NotSupported("AveN2E", "mesh of dimension %d has no edges", t.Dim)
	}
	nE := t.TotalEdges()
	return a.assemble("ave n2e", nE, nE, t.NNodes, nil, func(e int, out *Triplets) error {
		for _, r := range t.EdgeNodes[e] {
			out.AddRouted(e, t.Route(topo.Node, r), 0.5)
		}
		return nil
	})
}

// AveCC2N returns the nodes x cells volume weighted reverse of AveN2CC.
func (a *Assembler) AveCC2N(fill BoundaryFill) (*sparse.CSR, error) {
	fwd, err := a.AveN2CC()
	if err != nil {
		return nil, err
	}
	return reverse(fwd, a.Topo.CellVolumes, a.Topo.NodeBoundary, fill), nil
}

// AveCC2E returns the edges x cells volume weighted reverse of AveE2CC.
func (a *Assembler) AveCC2E(fill BoundaryFill) (*sparse.CSR, error) {
	fwd, err := a.AveE2CC()
	if err != nil {
		return nil, err
	}
	return reverse(fwd, a.Topo.CellVolumes, a.Topo.EdgeBoundary, fill), nil
}

// reverse forms fwdᵀ diag(vol) with unit row sums. Under ZeroPad, rows of
// entities touching the boundary on b axes are scaled by 2^-b.
func reverse(fwd *sparse.CSR, vol []float64, boundary []uint8, fill BoundaryFill) *sparse.CSR {
	rows, cols := fwd.Dims()
	sum := make([]float64, cols)
	fwd.DoNonZero(func(i, j int, v float64) {
		sum[j] += v * vol[i]
	})
	var t Triplets
	fwd.DoNonZero(func(i, j int, v float64) {
		w := v * vol[i] / sum[j]
		if fill == ZeroPad && boundary != nil && boundary[j] > 0 {
			w *= math.Pow(2, -float64(boundary[j]))
		}
		t.Add(j, i, w)
	})
	return t.ToCSR(cols, rows)
}
