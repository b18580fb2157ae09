// Package grid builds the base coordinate arrays of structured meshes: cell
// widths per axis and the origin. It carries no topology.
package grid

import (
	"math"
	"strconv"
	"strings"

	"github.com/notargets/discretize/mesherr"
	"gonum.org/v1/gonum/floats"
)

// Grid holds per-axis cell widths and the origin of a tensor grid.
type Grid struct {
	H      [][]float64 // H[axis][i] is the width of cell i along axis
	Origin []float64   // Coordinate of the first node along each axis
}

// New validates widths and origin. The dimension is len(widths), 1 to 3.
func New(widths [][]float64, origin []float64) (*Grid, error) {
	dim := len(widths)
	if dim < 1 || dim > 3 {
		return nil, mesherr.Configuration("grid.New", "dimension must be 1, 2 or 3, got %d", dim)
	}
	if origin == nil {
		origin = make([]float64, dim)
	}
	if len(origin) != dim {
		return nil, mesherr.Configuration("grid.New", "origin has %d coordinates for %d axes", len(origin), dim)
	}
	g := &Grid{
		H:      make([][]float64, dim),
		Origin: append([]float64(nil), origin...),
	}
	for a, h := range widths {
		if len(h) == 0 {
			return nil, mesherr.Configuration("grid.New", "axis %d has no cells", a)
		}
		for i, w := range h {
			if !(w > 0) || math.IsInf(w, 0) {
				return nil, mesherr.Configuration("grid.New", "axis %d cell %d has width %g", a, i, w)
			}
		}
		g.H[a] = append([]float64(nil), h...)
	}
	for a, x := range g.Origin {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, mesherr.Configuration("grid.New", "origin %d is %g", a, x)
		}
	}
	return g, nil
}

// Dim returns the number of axes.
func (g *Grid) Dim() int { return len(g.H) }

// Shape returns the number of cells along each axis, padded to three axes
// with ones.
func (g *Grid) Shape() [3]int {
	s := [3]int{1, 1, 1}
	for a, h := range g.H {
		s[a] = len(h)
	}
	return s
}

// NCells returns the total number of cells.
func (g *Grid) NCells() int {
	s := g.Shape()
	return s[0] * s[1] * s[2]
}

// Nodes returns the node coordinates along axis, len(H[axis])+1 values.
func (g *Grid) Nodes(axis int) []float64 {
	h := g.H[axis]
	x := make([]float64, len(h)+1)
	x[0] = g.Origin[axis]
	copy(x[1:], h)
	floats.CumSum(x, x)
	return x
}

// Centers returns the cell center coordinates along axis.
func (g *Grid) Centers(axis int) []float64 {
	x := g.Nodes(axis)
	c := make([]float64, len(x)-1)
	for i := range c {
		c[i] = 0.5 * (x[i] + x[i+1])
	}
	return c
}

// Extent returns the domain length along axis.
func (g *Grid) Extent(axis int) float64 { return floats.Sum(g.H[axis]) }

// Uniform returns count equal widths spanning extent.
func Uniform(count int, extent float64) ([]float64, error) {
	if count < 1 {
		return nil, mesherr.Configuration("grid.Uniform", "count must be positive, got %d", count)
	}
	if !(extent > 0) {
		return nil, mesherr.Configuration("grid.Uniform", "extent must be positive, got %g", extent)
	}
	h := make([]float64, count)
	for i := range h {
		h[i] = extent / float64(count)
	}
	return h, nil
}

// Segment describes a run of cells: Count cells of Width, each multiplied by
// successive powers of Factor when Factor is not 0 or 1. A negative Factor
// expands the run in reverse, which is how left padding is written.
type Segment struct {
	Width  float64
	Count  int
	Factor float64
}

// Pad expands segments into a width list.
func Pad(segments ...Segment) ([]float64, error) {
	var h []float64
	for i, s := range segments {
		if s.Count < 1 || !(s.Width > 0) {
			return nil, mesherr.Configuration("grid.Pad", "segment %d has width %g and count %d", i, s.Width, s.Count)
		}
		f := math.Abs(s.Factor)
		run := make([]float64, s.Count)
		for j := range run {
			run[j] = s.Width
			if f != 0 && f != 1 {
				run[j] = s.Width * math.Pow(f, float64(j+1))
			}
		}
		if s.Factor < 0 {
			for l, r := 0, len(run)-1; l < r; l, r = l+1, r-1 {
				run[l], run[r] = run[r], run[l]
			}
		}
		h = append(h, run...)
	}
	return h, nil
}

// Anchor positions the origin of one axis: a number, "0" (origin at zero),
// "C" (domain centered on zero) or "N" (domain ends at zero).
type Anchor string

const (
	AnchorZero     Anchor = "0"
	AnchorCenter   Anchor = "C"
	AnchorNegative Anchor = "N"
)

// Resolve returns the origin coordinate for an axis with the given widths.
func (an Anchor) Resolve(h []float64) (float64, error) {
	switch s := strings.ToUpper(strings.TrimSpace(string(an))); s {
	case "", string(AnchorZero):
		return 0, nil
	case string(AnchorCenter):
		return -0.5 * floats.Sum(h), nil
	case string(AnchorNegative):
		return -floats.Sum(h), nil
	default:
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, mesherr.Configuration("grid.Anchor", "cannot parse origin %q", string(an))
		}
		return x, nil
	}
}

// ResolveOrigin resolves one anchor per axis.
func ResolveOrigin(widths [][]float64, anchors []Anchor) ([]float64, error) {
	if len(anchors) != len(widths) {
		return nil, mesherr.Configuration("grid.ResolveOrigin", "%d anchors for %d axes", len(anchors), len(widths))
	}
	x0 := make([]float64, len(widths))
	for a := range widths {
		x, err := anchors[a].Resolve(widths[a])
		if err != nil {
			return nil, err
		}
		x0[a] = x
	}
	return x0, nil
}

// Points returns the tensor product of coordinate lists with the first axis
// varying fastest. Missing axes are zero.
func Points(axes ...[]float64) [][3]float64 {
	n := [3]int{1, 1, 1}
	for a, x := range axes {
		n[a] = len(x)
	}
	pts := make([][3]float64, 0, n[0]*n[1]*n[2])
	for k := 0; k < n[2]; k++ {
		for j := 0; j < n[1]; j++ {
			for i := 0; i < n[0]; i++ {
				var p [3]float64
				idx := [3]int{i, j, k}
				for a, x := range axes {
					p[a] = x[idx[a]]
				}
				pts = append(pts, p)
			}
		}
	}
	return pts
}
