package mesh

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Summary returns a human readable report of the mesh entities.
func (b *Base) Summary() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("=== %s mesh (%d-D) ===\n", b.kind, b.dim))
	t, gen, err := b.current("Summary")
	sb.WriteString(fmt.Sprintf("  Generation: %d\n", gen))
	if err != nil {
		sb.WriteString("  Topology: not finalized\n")
		return sb.String()
	}

	sb.WriteString("\n--- Entities ---\n")
	sb.WriteString(fmt.Sprintf("  Cells: %d\n", t.NCells))
	sb.WriteString(fmt.Sprintf("  Faces: %d %v (hanging %d)\n", t.TotalFaces(), t.NFaces[:t.Dim], len(t.HangingFaces)))
	if t.HasEdges() {
		sb.WriteString(fmt.Sprintf("  Edges: %d %v (hanging %d)\n", t.TotalEdges(), t.NEdges, len(t.HangingEdges)))
	}
	if t.HasNodes() {
		sb.WriteString(fmt.Sprintf("  Nodes: %d (hanging %d)\n", t.NNodes, len(t.HangingNodes)))
	}

	sb.WriteString("\n--- Geometry ---\n")
	if t.NCells > 0 {
		sb.WriteString(fmt.Sprintf("  Volume: %.6g\n", floats.Sum(t.CellVolumes)))
		sb.WriteString(fmt.Sprintf("  Cell volume range: [%.4g, %.4g]\n",
			floats.Min(t.CellVolumes), floats.Max(t.CellVolumes)))
	}
	if len(t.FaceAreas) > 0 {
		sb.WriteString(fmt.Sprintf("  Face area range: [%.4g, %.4g]\n",
			floats.Min(t.FaceAreas), floats.Max(t.FaceAreas)))
	}
	sb.WriteString(fmt.Sprintf("  Boundary faces: %d\n", len(t.BoundaryFaces())))
	sb.WriteString(fmt.Sprintf("  Orthogonal: %t\n", t.Orthogonal))

	hits, misses := b.cache.Stats()
	sb.WriteString("\n--- Operator cache ---\n")
	sb.WriteString(fmt.Sprintf("  Entries: %d (hits %d, misses %d)\n", b.cache.Len(), hits, misses))
	return sb.String()
}
