package operators

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/notargets/discretize/mesherr"
	"gonum.org/v1/gonum/mat"
)

// PropertyKind is the symmetry class of a material tensor.
type PropertyKind uint8

const (
	Isotropic PropertyKind = iota
	Diagonal
	Full
)

func (k PropertyKind) String() string {
	switch k {
	case Isotropic:
		return "isotropic"
	case Diagonal:
		return "diagonal"
	case Full:
		return "full"
	}
	return "unknown"
}

// Components returns the number of values per cell in dim dimensions.
func (k PropertyKind) Components(dim int) int {
	switch k {
	case Diagonal:
		return dim
	case Full:
		return dim * (dim + 1) / 2
	}
	return 1
}

// Property is a per cell material tensor. Values holds either one tensor
// broadcast to every cell or one per cell, component major: component j of
// cell c is Values[j*nCells+c]. Full tensors list (xx, yy, xy) in 2-D and
// (xx, yy, zz, xy, xz, yz) in 3-D.
type Property struct {
	Kind   PropertyKind
	Values []float64
}

// Scalar is the isotropic property v in every cell.
func Scalar(v float64) Property { return Property{Kind: Isotropic, Values: []float64{v}} }

// ValidateProperty checks p against the cell count and dimension.
func ValidateProperty(p Property, nCells, dim int) error {
	if p.Kind > Full {
		return mesherr.Shape("Property", -1, int(p.Kind), "unknown tensor kind")
	}
	nc := p.Kind.Components(dim)
	if len(p.Values) != nc && len(p.Values) != nc*nCells {
		return mesherr.Shape("Property", nc*nCells, len(p.Values),
			"%s tensor in %d-D needs %d or %d values", p.Kind, dim, nc, nc*nCells)
	}
	for _, v := range p.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return mesherr.Shape("Property", nc*nCells, len(p.Values), "non-finite value %g", v)
		}
	}
	return nil
}

func (p Property) component(j, c, nCells, dim int) float64 {
	if len(p.Values) == p.Kind.Components(dim) {
		return p.Values[j]
	}
	return p.Values[j*nCells+c]
}

// fullIndex maps (row, col) to the flattened component of a full tensor.
func fullIndex(dim, r, c int) int {
	if r == c {
		return r
	}
	if r > c {
		r, c = c, r
	}
	if dim == 2 {
		return 2
	}
	return 3 + r + c - 1
}

// Tensor returns the dim x dim tensor of cell c.
func (p Property) Tensor(c, nCells, dim int) *mat.SymDense {
	k := mat.NewSymDense(dim, nil)
	for r := 0; r < dim; r++ {
		switch p.Kind {
		case Isotropic:
			k.SetSym(r, r, p.component(0, c, nCells, dim))
		case Diagonal:
			k.SetSym(r, r, p.component(r, c, nCells, dim))
		case Full:
			for s := r; s < dim; s++ {
				k.SetSym(r, s, p.component(fullIndex(dim, r, s), c, nCells, dim))
			}
		}
	}
	return k
}

// invertTensor returns K⁻¹.
func invertTensor(k *mat.SymDense, cell int) (*mat.SymDense, error) {
	n := k.SymmetricDim()
	var inv mat.Dense
	if err := inv.Inverse(k); err != nil {
		return nil, mesherr.Configuration("InvertProperty", "singular property in cell %d: %v", cell, err)
	}
	out := mat.NewSymDense(n, nil)
	for r := 0; r < n; r++ {
		for s := r; s < n; s++ {
			out.SetSym(r, s, 0.5*(inv.At(r, s)+inv.At(s, r)))
		}
	}
	return out, nil
}

// Fingerprint identifies p for cache keys.
func (p Property) Fingerprint() string {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range p.Values {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return fmt.Sprintf("%s/%d/%x", p.Kind, len(p.Values), h.Sum64())
}
