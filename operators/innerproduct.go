package operators

import (
	"github.com/james-bowman/sparse"
	"github.com/notargets/discretize/mesherr"
	"github.com/notargets/discretize/topo"
	"gonum.org/v1/gonum/mat"
)

// Order is the accuracy of an inner product reconstruction.
type Order uint8

const (
	// SecondOrder uses the full corner stencil, cross terms included.
	SecondOrder Order = iota
	// FirstOrder keeps only the lumped diagonal.
	FirstOrder
)

func (o Order) String() string {
	if o == FirstOrder {
		return "first"
	}
	return "second"
}

// Robin holds the coefficients of alpha*u + beta*du/dn = gamma on boundary
// faces, one value broadcast or one per boundary face in BoundaryFaces
// order.
type Robin struct {
	Alpha, Beta, Gamma []float64
}

// InnerProductOptions selects variants of an inner product.
type InnerProductOptions struct {
	Order          Order
	InvertProperty bool
	InvertMatrix   bool
	Robin          *Robin
}

// cornerFrame is the set of entity references meeting at one cell corner,
// one per axis, with their unit directions.
type cornerFrame struct {
	refs [3]topo.Ref
	dirs [3][3]float64
}

// localTensor returns the tensor acting on the entity components of a
// corner: K itself for axis aligned entities, else D⁻ᵀ K D⁻¹ where the rows
// of D are the entity directions.
func localTensor(k *mat.SymDense, fr *cornerFrame, dim int, orthogonal bool, cell int) (mat.Matrix, error) {
	if orthogonal {
		return k, nil
	}
	d := mat.NewDense(dim, dim, nil)
	for r := 0; r < dim; r++ {
		for s := 0; s < dim; s++ {
			d.Set(r, s, fr.dirs[r][s])
		}
	}
	var dinv mat.Dense
	if err := dinv.Inverse(d); err != nil {
		return nil, mesherr.Topology("InnerProduct", cell, "degenerate corner: %v", err)
	}
	var tmp, out mat.Dense
	tmp.Mul(k, &dinv)
	out.Mul(dinv.T(), &tmp)
	return &out, nil
}

// cornerProduct accumulates (V/2^d) Pᵀ K P for one corner.
func cornerProduct(out *Triplets, t *topo.Topology, kind topo.EntityKind, fr *cornerFrame,
	local mat.Matrix, coef float64, order Order, dim int) {
	for a := 0; a < dim; a++ {
		if !fr.refs[a].Valid() {
			continue
		}
		wa := t.Route(kind, fr.refs[a])
		if order == FirstOrder {
			kaa := coef * local.At(a, a)
			for _, w := range wa {
				out.Add(w.ID, w.ID, kaa*w.W)
			}
			continue
		}
		for b := 0; b < dim; b++ {
			if !fr.refs[b].Valid() {
				continue
			}
			kab := coef * local.At(a, b)
			if kab == 0 {
				continue
			}
			for _, wi := range wa {
				for _, wj := range t.Route(kind, fr.refs[b]) {
					out.Add(wi.ID, wj.ID, kab*wi.W*wj.W)
				}
			}
		}
	}
}

func (a *Assembler) cellTensor(p Property, c int, invert bool) (*mat.SymDense, error) {
	k := p.Tensor(c, a.Topo.NCells, a.Topo.Dim)
	if invert {
		return invertTensor(k, c)
	}
	return k, nil
}

func hangingCost(refs []topo.Ref) int {
	n := 1
	for _, r := range refs {
		if r.Hanging {
			n += 4
		}
	}
	return n
}

// FaceInnerProduct returns the faces x faces inner product of face normal
// fields weighted by p, and the boundary right hand side of the Robin terms
// (nil without Robin).
func (a *Assembler) FaceInnerProduct(p Property, o InnerProductOptions) (*sparse.CSR, []float64, error) {
	t := a.Topo
	if err := ValidateProperty(p, t.NCells, t.Dim); err != nil {
		return nil, nil, err
	}
	if o.Robin != nil && o.Order == FirstOrder {
		return nil, nil, mesherr.NotSupported("FaceInnerProduct", "Robin terms need the second order inner product")
	}
	nF := t.TotalFaces()
	dim := t.Dim
	corners := 1 << dim
	m, err := a.assemble("face inner product", t.NCells, nF, nF,
		func(c int) int { return hangingCost(t.CellFaces[c]) },
		func(c int, out *Triplets) error {
			k, err := a.cellTensor(p, c, o.InvertProperty)
			if err != nil {
				return err
			}
			coef := t.CellVolumes[c] / float64(corners)
			slots := t.CellFaces[c]
			for s := 0; s < corners; s++ {
				var fr cornerFrame
				for ax := 0; ax < dim; ax++ {
					r := slots[2*ax+(s>>ax)&1]
					fr.refs[ax] = r
					if !t.Orthogonal {
						fr.dirs[ax] = faceDirection(t, r, ax)
					}
				}
				local, err := localTensor(k, &fr, dim, t.Orthogonal, c)
				if err != nil {
					return err
				}
				cornerProduct(out, t, topo.Face, &fr, local, coef, o.Order, dim)
			}
			return nil
		})
	if err != nil {
		return nil, nil, err
	}
	var rhs []float64
	if o.Robin != nil {
		if m, rhs, err = addRobin(t, m, o.Robin); err != nil {
			return nil, nil, err
		}
	}
	if o.InvertMatrix {
		if m, err = invertDiagonal("FaceInnerProduct", m); err != nil {
			return nil, nil, err
		}
	}
	return m, rhs, nil
}

// EdgeInnerProduct returns the edges x edges inner product of edge tangential
// fields weighted by p.
func (a *Assembler) EdgeInnerProduct(p Property, o InnerProductOptions) (*sparse.CSR, error) {
	t := a.Topo
	if !t.HasEdges() {
		return nil, mesherr.NotSupported("EdgeInnerProduct", "mesh of dimension %d has no edges", t.Dim)
	}
	if err := ValidateProperty(p, t.NCells, t.Dim); err != nil {
		return nil, err
	}
	if o.Robin != nil {
		return nil, mesherr.NotSupported("EdgeInnerProduct", "Robin terms apply to face inner products")
	}
	nE := t.TotalEdges()
	m, err := a.assemble("edge inner product", t.NCells, nE, nE,
		func(c int) int { return hangingCost(t.CellEdges[c]) },
		func(c int, out *Triplets) error {
			k, err := a.cellTensor(p, c, o.InvertProperty)
			if err != nil {
				return err
			}
			coef := t.CellVolumes[c] / 8
			slots := t.CellEdges[c]
			for s := 0; s < 8; s++ {
				var fr cornerFrame
				for ax := 0; ax < 3; ax++ {
					b, cc := otherAxes(ax)
					r := slots[4*ax+(s>>b)&1+2*((s>>cc)&1)]
					fr.refs[ax] = r
					if !t.Orthogonal {
						fr.dirs[ax] = edgeDirection(t, r, ax)
					}
				}
				local, err := localTensor(k, &fr, 3, t.Orthogonal, c)
				if err != nil {
					return err
				}
				cornerProduct(out, t, topo.Edge, &fr, local, coef, o.Order, 3)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	if o.InvertMatrix {
		return invertDiagonal("EdgeInnerProduct", m)
	}
	return m, nil
}

func otherAxes(a int) (int, int) {
	switch a {
	case 0:
		return 1, 2
	case 1:
		return 0, 2
	}
	return 0, 1
}

func faceDirection(t *topo.Topology, r topo.Ref, axis int) [3]float64 {
	if r.Valid() && !r.Hanging {
		return t.FaceNormal(r.ID)
	}
	var n [3]float64
	n[axis] = 1
	return n
}

func edgeDirection(t *topo.Topology, r topo.Ref, axis int) [3]float64 {
	if r.Valid() && !r.Hanging {
		return t.EdgeTangent(r.ID)
	}
	var n [3]float64
	n[axis] = 1
	return n
}

func pick(v []float64, i int) float64 {
	if len(v) == 1 {
		return v[0]
	}
	return v[i]
}

// addRobin adds A*beta/alpha to the diagonal of each boundary face and
// returns the right hand side A*gamma/alpha.
func addRobin(t *topo.Topology, m *sparse.CSR, rb *Robin) (*sparse.CSR, []float64, error) {
	bf := t.BoundaryFaces()
	for _, v := range [][]float64{rb.Alpha, rb.Beta, rb.Gamma} {
		if len(v) != 1 && len(v) != len(bf) {
			return nil, nil, mesherr.Shape("Robin", len(bf), len(v), "boundary coefficients")
		}
	}
	nF := t.TotalFaces()
	diag := make([]float64, nF)
	rhs := make([]float64, nF)
	for i, f := range bf {
		alpha := pick(rb.Alpha, i)
		if alpha == 0 {
			return nil, nil, mesherr.Configuration("Robin", "alpha is zero on boundary face %d", f)
		}
		area := t.FaceAreas[f]
		diag[f] = area * pick(rb.Beta, i) / alpha
		rhs[f] = area * pick(rb.Gamma, i) / alpha
	}
	return AddDiagonal(m, diag), rhs, nil
}

func invertDiagonal(op string, m *sparse.CSR) (*sparse.CSR, error) {
	if !IsDiagonal(m) {
		return nil, mesherr.NotSupported(op, "inverse of a non-diagonal inner product")
	}
	d := DiagonalOf(m)
	for i, v := range d {
		if v == 0 {
			return nil, mesherr.Configuration(op, "zero diagonal at row %d", i)
		}
		d[i] = 1 / v
	}
	return DiagonalMatrix(d), nil
}
