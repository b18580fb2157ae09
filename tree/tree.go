// Package tree is the adaptively refined quadtree and octree mesh over a base
// tensor grid of root cells.
//
// Cells live in a flat arena addressed by integer ids. Geometry is kept in
// integer units of the finest level: a cell at level l spans 2^(MaxLevel-l)
// units per axis, and root cells sit at level 0. Every mutation restores
// 2:1 balance across face, edge and corner neighbours. Finalize numbers the
// leaves and their faces, edges and nodes; refining a finalized mesh is a
// state error until Reset.
package tree

import (
	"fmt"
	"sort"

	"github.com/notargets/discretize/grid"
	"github.com/notargets/discretize/mesh"
	"github.com/notargets/discretize/mesherr"
	"github.com/notargets/discretize/topo"
	"go.uber.org/zap"
)

// DefaultMaxLevel bounds refinement when WithMaxLevel is not given.
const DefaultMaxLevel = 10

const maxSupportedLevel = 30

type config struct {
	maxLevel     int
	initialLevel int
	meshOpts     []mesh.Option
}

// Option configures a tree mesh.
type Option func(*config)

// WithMaxLevel sets the deepest level refinement may reach.
func WithMaxLevel(l int) Option { return func(c *config) { c.maxLevel = l } }

// WithInitialLevel refines every root uniformly to level l.
func WithInitialLevel(l int) Option { return func(c *config) { c.initialLevel = l } }

// WithLogger sets the debug logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.meshOpts = append(c.meshOpts, mesh.WithLogger(l)) }
}

// WithWorkers sets the number of goroutines used by operator assembly.
func WithWorkers(n int) Option {
	return func(c *config) { c.meshOpts = append(c.meshOpts, mesh.WithWorkers(n)) }
}

// node is one arena record.
type node struct {
	parent   int
	children [8]int // first 2^dim used, -1 for leaves
	level    int
	origin   [3]int
	alive    bool // false once merged away by Coarsen
}

func (n *node) leaf() bool { return n.children[0] < 0 }

// Mesh is a tree mesh.
type Mesh struct {
	*mesh.Base
	grid     *grid.Grid
	dim      int
	maxLevel int
	nRoot    [3]int
	extent   [3]int // domain size in finest units
	nodes    [3][]float64

	arena []node
	roots []int // arena id per root, first axis fastest

	finalized bool
	leaves    []int       // arena ids in traversal order, set by Finalize
	index     map[int]int // arena id to active index
}

var _ mesh.BaseMesh = (*Mesh)(nil)

// New builds a tree mesh over the base grid given by per axis root widths
// and an origin (nil for zero).
func New(widths [][]float64, origin []float64, opts ...Option) (*Mesh, error) {
	cfg := config{maxLevel: DefaultMaxLevel}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.maxLevel < 0 || cfg.maxLevel > maxSupportedLevel {
		return nil, mesherr.Configuration("tree.New", "max level %d outside [0, %d]", cfg.maxLevel, maxSupportedLevel)
	}
	if cfg.initialLevel < 0 || cfg.initialLevel > cfg.maxLevel {
		return nil, mesherr.Configuration("tree.New", "initial level %d outside [0, %d]", cfg.initialLevel, cfg.maxLevel)
	}
	g, err := grid.New(widths, origin)
	if err != nil {
		return nil, err
	}
	m := &Mesh{
		Base:     mesh.NewBase(mesh.Tree, g.Dim(), cfg.meshOpts...),
		grid:     g,
		dim:      g.Dim(),
		maxLevel: cfg.maxLevel,
		nRoot:    g.Shape(),
	}
	for a := 0; a < 3; a++ {
		m.extent[a] = m.nRoot[a] << cfg.maxLevel
		if a < m.dim {
			m.nodes[a] = g.Nodes(a)
		} else {
			m.extent[a] = 1
		}
	}
	for k := 0; k < m.nRoot[2]; k++ {
		for j := 0; j < m.nRoot[1]; j++ {
			for i := 0; i < m.nRoot[0]; i++ {
				o := [3]int{i << cfg.maxLevel, j << cfg.maxLevel, k << cfg.maxLevel}
				for a := m.dim; a < 3; a++ {
					o[a] = 0
				}
				m.roots = append(m.roots, m.newNode(-1, 0, o))
			}
		}
	}
	if cfg.initialLevel > 0 {
		lvl := cfg.initialLevel
		if err := m.Refine(func(Cell) int { return lvl }); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Mesh) newNode(parent, level int, origin [3]int) int {
	n := node{parent: parent, level: level, origin: origin, alive: true}
	for i := range n.children {
		n.children[i] = -1
	}
	m.arena = append(m.arena, n)
	return len(m.arena) - 1
}

// MaxLevel returns the deepest permitted level.
func (m *Mesh) MaxLevel() int { return m.maxLevel }

// Grid returns the base grid of root cells.
func (m *Mesh) Grid() *grid.Grid { return m.grid }

// Finalized reports whether indices are assigned.
func (m *Mesh) Finalized() bool { return m.finalized }

func (m *Mesh) size(level int) int { return 1 << (m.maxLevel - level) }

func (m *Mesh) nChildren() int { return 1 << m.dim }

// split creates the children of leaf id.
func (m *Mesh) split(id int) {
	n := m.arena[id]
	half := m.size(n.level) >> 1
	var kids [8]int
	for i := range kids {
		kids[i] = -1
	}
	for s := 0; s < m.nChildren(); s++ {
		o := n.origin
		for a := 0; a < m.dim; a++ {
			o[a] += ((s >> a) & 1) * half
		}
		kids[s] = m.newNode(id, n.level+1, o)
	}
	m.arena[id].children = kids
}

// inside reports whether integer point p lies in the domain.
func (m *Mesh) inside(p [3]int) bool {
	for a := 0; a < m.dim; a++ {
		if p[a] < 0 || p[a] >= m.extent[a] {
			return false
		}
	}
	return true
}

// leafAt returns the leaf containing integer point p, or -1 outside.
func (m *Mesh) leafAt(p [3]int) int {
	if !m.inside(p) {
		return -1
	}
	var r [3]int
	for a := 0; a < m.dim; a++ {
		r[a] = p[a] >> m.maxLevel
	}
	id := m.roots[r[0]+m.nRoot[0]*(r[1]+m.nRoot[1]*r[2])]
	for !m.arena[id].leaf() {
		n := &m.arena[id]
		half := m.size(n.level) >> 1
		s := 0
		for a := 0; a < m.dim; a++ {
			if p[a]-n.origin[a] >= half {
				s |= 1 << a
			}
		}
		id = n.children[s]
	}
	return id
}

// coord maps an integer coordinate on axis a to physical space.
func (m *Mesh) coord(a, x int) float64 {
	if a >= m.dim {
		return 0
	}
	r := x >> m.maxLevel
	if r >= m.nRoot[a] {
		r = m.nRoot[a] - 1
	}
	frac := float64(x-r<<m.maxLevel) / float64(int(1)<<m.maxLevel)
	return m.nodes[a][r] + frac*m.grid.H[a][r]
}

// toInt maps physical coordinate x on axis a to integer units, or -1 if
// it lies outside the domain.
func (m *Mesh) toInt(a int, x float64) int {
	if a >= m.dim {
		return 0
	}
	nodes := m.nodes[a]
	if x < nodes[0] || x > nodes[len(nodes)-1] {
		return -1
	}
	r := sort.SearchFloat64s(nodes, x) - 1
	if r < 0 {
		r = 0
	}
	if r >= m.nRoot[a] {
		r = m.nRoot[a] - 1
	}
	frac := (x - nodes[r]) / m.grid.H[a][r]
	v := r<<m.maxLevel + int(frac*float64(int(1)<<m.maxLevel))
	if v >= m.extent[a] {
		v = m.extent[a] - 1
	}
	return v
}

// Cell describes one cell of the tree.
type Cell struct {
	ID     int // arena id
	Parent int // arena id of the parent, -1 for roots
	Level  int
	Origin [3]float64 // lower corner
	Width  [3]float64
	Center [3]float64
	Index  int // active index, -1 before Finalize
}

func (m *Mesh) cell(id int) Cell {
	n := &m.arena[id]
	c := Cell{ID: id, Parent: n.parent, Level: n.level, Index: -1}
	s := m.size(n.level)
	for a := 0; a < m.dim; a++ {
		lo, hi := m.coord(a, n.origin[a]), m.coord(a, n.origin[a]+s)
		c.Origin[a] = lo
		c.Width[a] = hi - lo
		c.Center[a] = 0.5 * (lo + hi)
	}
	if m.finalized {
		if i, ok := m.index[id]; ok {
			c.Index = i
		}
	}
	return c
}

// traverse visits the leaves depth first: roots in order, children by bit
// index.
func (m *Mesh) traverse(fn func(id int)) {
	var walk func(id int)
	walk = func(id int) {
		n := &m.arena[id]
		if n.leaf() {
			fn(id)
			return
		}
		for s := 0; s < m.nChildren(); s++ {
			walk(n.children[s])
		}
	}
	for _, r := range m.roots {
		walk(r)
	}
}

// Leaves returns the current leaf cells in traversal order.
func (m *Mesh) Leaves() []Cell {
	var out []Cell
	m.traverse(func(id int) { out = append(out, m.cell(id)) })
	return out
}

// NLeaves returns the number of leaf cells.
func (m *Mesh) NLeaves() int {
	n := 0
	m.traverse(func(int) { n++ })
	return n
}

// Cells returns the active cells in index order.
func (m *Mesh) Cells() ([]Cell, error) {
	if !m.finalized {
		return nil, mesherr.State("tree.Cells", "mesh is not finalized")
	}
	out := make([]Cell, len(m.leaves))
	for i, id := range m.leaves {
		out[i] = m.cell(id)
	}
	return out, nil
}

// CellAt returns the active index of the cell containing point p.
func (m *Mesh) CellAt(p [3]float64) (int, error) {
	if !m.finalized {
		return -1, mesherr.State("tree.CellAt", "mesh is not finalized")
	}
	var q [3]int
	for a := 0; a < m.dim; a++ {
		q[a] = m.toInt(a, p[a])
		if q[a] < 0 {
			return -1, mesherr.Configuration("tree.CellAt", "point %v lies outside the domain", p)
		}
	}
	return m.index[m.leafAt(q)], nil
}

// Neighbors returns the active cells across the face of cell on axis, on the
// lower (side 0) or upper (side 1) side. Boundary faces have none.
func (m *Mesh) Neighbors(cell, axis, side int) ([]int, error) {
	t, err := m.Topology()
	if err != nil {
		return nil, err
	}
	if cell < 0 || cell >= t.NCells || axis < 0 || axis >= m.dim || side < 0 || side > 1 {
		return nil, mesherr.Configuration("tree.Neighbors", "cell %d axis %d side %d", cell, axis, side)
	}
	r := t.CellFaces[cell][2*axis+side]
	var out []int
	for _, w := range t.Route(topo.Face, r) {
		for _, c := range t.FaceCells[w.ID] {
			if c >= 0 && c != cell {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// Levels returns the number of leaves per level.
func (m *Mesh) Levels() []int {
	counts := make([]int, m.maxLevel+1)
	m.traverse(func(id int) { counts[m.arena[id].level]++ })
	return counts
}

// Summary extends the entity report with the leaf count per level.
func (m *Mesh) Summary() string {
	return m.Base.Summary() + fmt.Sprintf("\n--- Levels ---\n  Max level: %d\n  Leaves per level: %v\n", m.maxLevel, m.Levels())
}
