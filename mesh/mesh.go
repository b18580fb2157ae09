// Package mesh is the contract shared by every mesh variant: geometric
// quantities, boundary sets and lazily cached operators over a finalized
// topology.
package mesh

import (
	"github.com/james-bowman/sparse"
	"github.com/notargets/discretize/operators"
	"github.com/notargets/discretize/topo"
)

// Kind tags a mesh variant.
type Kind uint8

const (
	Tensor Kind = iota
	Cylindrical
	Curvilinear
	Tree
)

func (k Kind) String() string {
	switch k {
	case Tensor:
		return "tensor"
	case Cylindrical:
		return "cylindrical"
	case Curvilinear:
		return "curvilinear"
	case Tree:
		return "tree"
	}
	return "unknown"
}

// BaseMesh is implemented by Tensor, Cylindrical, Curvilinear and Tree
// meshes. Every query fails with a state error while the topology is not
// finalized.
type BaseMesh interface {
	Kind() Kind
	Dim() int
	// Generation increases on every topology change.
	Generation() uint64
	Topology() (*topo.Topology, error)

	CellVolumes() ([]float64, error)
	FaceAreas() ([]float64, error)
	EdgeLengths() ([]float64, error)
	CellCenters() ([][3]float64, error)

	BoundaryCells() ([]int, error)
	BoundaryFaces() ([]int, error)
	BoundaryEdges() ([]int, error)
	BoundaryNodes() ([]int, error)

	Divergence() (*sparse.CSR, error)
	CellGradient(policy operators.BoundaryPolicy) (*sparse.CSR, error)
	NodalGradient() (*sparse.CSR, error)
	EdgeCurl() (*sparse.CSR, error)
	FaceCurl() (*sparse.CSR, error)

	AveCC2F(scheme operators.AveragingScheme, fill operators.BoundaryFill) (*sparse.CSR, error)
	AveF2CC() (*sparse.CSR, error)
	AveF2CCV() (*sparse.CSR, error)
	AveN2CC() (*sparse.CSR, error)
	AveCC2N(fill operators.BoundaryFill) (*sparse.CSR, error)
	AveE2CC() (*sparse.CSR, error)
	AveE2CCV() (*sparse.CSR, error)
	AveCC2E(fill operators.BoundaryFill) (*sparse.CSR, error)
	AveN2F() (*sparse.CSR, error)
	AveN2E() (*sparse.CSR, error)

	FaceInnerProduct(p operators.Property, o operators.InnerProductOptions) (*sparse.CSR, []float64, error)
	EdgeInnerProduct(p operators.Property, o operators.InnerProductOptions) (*sparse.CSR, error)

	Summary() string
}
