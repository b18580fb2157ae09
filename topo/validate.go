package topo

import (
	"math"

	"github.com/notargets/discretize/mesherr"
)

// WeightTolerance bounds the deviation of a hanging constraint's weight sum
// from one.
const WeightTolerance = 1e-12

// Validate checks sizes, reference ranges and hanging constraints.
func (t *Topology) Validate() error {
	const op = "topo.Validate"
	if t.Dim < 1 || t.Dim > 3 {
		return mesherr.Topology(op, -1, "dimension %d", t.Dim)
	}
	if len(t.CellVolumes) != t.NCells || len(t.CellCenters) != t.NCells || len(t.CellFaces) != t.NCells {
		return mesherr.Topology(op, -1, "cell arrays do not match %d cells", t.NCells)
	}
	nF := t.TotalFaces()
	if len(t.FaceAreas) != nF || len(t.FaceCells) != nF || len(t.FaceAxis) != nF || len(t.FaceDistances) != nF {
		return mesherr.Topology(op, -1, "face arrays do not match %d faces", nF)
	}
	for c, v := range t.CellVolumes {
		if !(v > 0) {
			return mesherr.Topology(op, c, "cell volume %g", v)
		}
		if len(t.CellFaces[c]) != 2*t.Dim {
			return mesherr.Topology(op, c, "%d face slots", len(t.CellFaces[c]))
		}
		for _, r := range t.CellFaces[c] {
			if err := t.checkRef(op, c, r, nF, len(t.HangingFaces)); err != nil {
				return err
			}
		}
	}
	for f, cells := range t.FaceCells {
		if cells[0] < 0 && cells[1] < 0 {
			return mesherr.Topology(op, -1, "face %d has no cells", f)
		}
		for _, c := range cells {
			if c >= t.NCells {
				return mesherr.Topology(op, c, "face %d names a missing cell", f)
			}
		}
	}
	if err := checkHanging(op, t.HangingFaces, nF); err != nil {
		return err
	}
	if t.HasEdges() {
		nE := t.TotalEdges()
		if len(t.EdgeLengths) != nE || len(t.EdgeNodes) != nE || len(t.EdgeAxis) != nE {
			return mesherr.Topology(op, -1, "edge arrays do not match %d edges", nE)
		}
		for c, refs := range t.CellEdges {
			if len(refs) != 12 {
				return mesherr.Topology(op, c, "%d edge slots", len(refs))
			}
			for _, r := range refs {
				if err := t.checkRef(op, c, r, nE, len(t.HangingEdges)); err != nil {
					return err
				}
			}
		}
		if err := checkHanging(op, t.HangingEdges, nE); err != nil {
			return err
		}
	}
	if t.HasNodes() {
		if len(t.NodeCoords) != t.NNodes || len(t.NodeBoundary) != t.NNodes {
			return mesherr.Topology(op, -1, "node arrays do not match %d nodes", t.NNodes)
		}
		for c, refs := range t.CellNodes {
			if len(refs) != 1<<t.Dim {
				return mesherr.Topology(op, c, "%d node slots", len(refs))
			}
			for _, r := range refs {
				if err := t.checkRef(op, c, r, t.NNodes, len(t.HangingNodes)); err != nil {
					return err
				}
			}
		}
		if err := checkHanging(op, t.HangingNodes, t.NNodes); err != nil {
			return err
		}
	}
	return nil
}

func (t *Topology) checkRef(op string, cell int, r Ref, nActive, nHanging int) error {
	if !r.Valid() {
		return nil
	}
	limit := nActive
	if r.Hanging {
		limit = nHanging
	}
	if r.ID >= limit {
		return mesherr.Topology(op, cell, "reference %d out of range %d", r.ID, limit)
	}
	return nil
}

func checkHanging(op string, hs []Hanging, nActive int) error {
	for h, hang := range hs {
		if len(hang.Weights) == 0 {
			return mesherr.Topology(op, hang.Cell, "hanging entity %d has no constraint", h)
		}
		sum := 0.0
		for _, w := range hang.Weights {
			if w.ID < 0 || w.ID >= nActive {
				return mesherr.Topology(op, hang.Cell, "hanging entity %d references %d", h, w.ID)
			}
			sum += w.W
		}
		if math.Abs(sum-1) > WeightTolerance {
			return mesherr.Topology(op, hang.Cell, "hanging entity %d weights sum to %g", h, sum)
		}
	}
	return nil
}
