package tree

import (
	"github.com/notargets/discretize/mesherr"
	"go.uber.org/zap"
)

func (m *Mesh) mutable(op string) error {
	if m.finalized {
		return mesherr.State(op, "mesh is finalized, call Reset before changing it")
	}
	return nil
}

func (m *Mesh) snapshot() []node { return append([]node(nil), m.arena...) }

func (m *Mesh) children(id int) []int {
	kids := make([]int, m.nChildren())
	copy(kids, m.arena[id].children[:])
	return kids
}

// refine splits leaves until each reaches the level target returns for it.
// Children are offered to target in turn. On error the tree is unchanged.
func (m *Mesh) refine(op string, target func(id int) int) error {
	if err := m.mutable(op); err != nil {
		return err
	}
	saved := m.snapshot()
	var work, created []int
	m.traverse(func(id int) { work = append(work, id) })
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		want := target(id)
		if want <= m.arena[id].level {
			continue
		}
		if want > m.maxLevel {
			m.arena = saved
			return mesherr.Topology(op, id, "target level %d exceeds max level %d", want, m.maxLevel)
		}
		m.split(id)
		kids := m.children(id)
		work = append(work, kids...)
		created = append(created, kids...)
	}
	added := m.balance(created)
	m.Logger().Debug("tree refined",
		zap.String("op", op),
		zap.Int("created", len(created)),
		zap.Int("balance_splits", added),
		zap.Int("leaves", m.NLeaves()))
	return nil
}

// Refine splits every leaf whose target level, as reported by fn, exceeds
// its own, then restores 2:1 balance. A target past the max level is a
// topology error and leaves the tree unchanged.
func (m *Mesh) Refine(fn func(Cell) int) error {
	return m.refine("tree.Refine", func(id int) int { return fn(m.cell(id)) })
}

// RefineWhere splits each current leaf for which fn is true once.
func (m *Mesh) RefineWhere(fn func(Cell) bool) error {
	marked := make(map[int]bool)
	m.traverse(func(id int) {
		if fn(m.cell(id)) {
			marked[id] = true
		}
	})
	return m.refine("tree.RefineWhere", func(id int) int {
		if marked[id] {
			return m.arena[id].level + 1
		}
		return m.arena[id].level
	})
}

// RefineBall refines cells intersecting the ball to level.
func (m *Mesh) RefineBall(center [3]float64, radius float64, level int) error {
	if radius < 0 {
		return mesherr.Configuration("tree.RefineBall", "radius %g is negative", radius)
	}
	return m.refine("tree.RefineBall", func(id int) int {
		c := m.cell(id)
		d2 := 0.0
		for a := 0; a < m.dim; a++ {
			lo, hi := c.Origin[a], c.Origin[a]+c.Width[a]
			var d float64
			switch {
			case center[a] < lo:
				d = lo - center[a]
			case center[a] > hi:
				d = center[a] - hi
			}
			d2 += d * d
		}
		if d2 <= radius*radius {
			return level
		}
		return c.Level
	})
}

// RefineBox refines cells overlapping the open box (lo, hi) to level.
func (m *Mesh) RefineBox(lo, hi [3]float64, level int) error {
	for a := 0; a < m.dim; a++ {
		if hi[a] < lo[a] {
			return mesherr.Configuration("tree.RefineBox", "axis %d bounds [%g, %g] are reversed", a, lo[a], hi[a])
		}
	}
	return m.refine("tree.RefineBox", func(id int) int {
		c := m.cell(id)
		for a := 0; a < m.dim; a++ {
			if c.Origin[a] >= hi[a] || c.Origin[a]+c.Width[a] <= lo[a] {
				return c.Level
			}
		}
		return level
	})
}

// InsertPoints refines the cells containing each point to level. Points
// outside the domain are a configuration error.
func (m *Mesh) InsertPoints(points [][3]float64, level int) error {
	const op = "tree.InsertPoints"
	pts := make([][3]int, len(points))
	for i, p := range points {
		for a := 0; a < m.dim; a++ {
			pts[i][a] = m.toInt(a, p[a])
			if pts[i][a] < 0 {
				return mesherr.Configuration(op, "point %d %v lies outside the domain", i, p)
			}
		}
	}
	return m.refine(op, func(id int) int {
		n := &m.arena[id]
		s := m.size(n.level)
		for _, q := range pts {
			in := true
			for a := 0; a < m.dim; a++ {
				if q[a] < n.origin[a] || q[a] >= n.origin[a]+s {
					in = false
					break
				}
			}
			if in {
				return level
			}
		}
		return n.level
	})
}

// offsets lists the face, edge and corner neighbour directions.
func (m *Mesh) offsets() [][3]int {
	var out [][3]int
	total := 1
	for a := 0; a < m.dim; a++ {
		total *= 3
	}
	for i := 0; i < total; i++ {
		var o [3]int
		zero := true
		v := i
		for a := 0; a < m.dim; a++ {
			o[a] = v%3 - 1
			v /= 3
			if o[a] != 0 {
				zero = false
			}
		}
		if !zero {
			out = append(out, o)
		}
	}
	return out
}

// probe returns the sampling point of the same-size region next to leaf n
// in direction o.
func (m *Mesh) probe(n *node, o [3]int) [3]int {
	s := m.size(n.level)
	q := n.origin
	for a := 0; a < m.dim; a++ {
		q[a] += o[a] * s
	}
	return q
}

// balance splits coarse leaves until no leaf in work, or created on the
// way, sits next to a leaf more than one level coarser. It returns the
// number of splits made.
func (m *Mesh) balance(work []int) int {
	offs := m.offsets()
	splits := 0
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		if !m.arena[id].alive || !m.arena[id].leaf() {
			continue
		}
		for _, o := range offs {
			q := m.probe(&m.arena[id], o)
			for {
				nb := m.leafAt(q)
				if nb < 0 || m.arena[nb].level >= m.arena[id].level-1 {
					break
				}
				m.split(nb)
				splits++
				work = append(work, m.children(nb)...)
			}
		}
	}
	return splits
}

// checkBalance reports the first pair of leaves more than one level apart.
func (m *Mesh) checkBalance(op string) error {
	offs := m.offsets()
	var err error
	m.traverse(func(id int) {
		if err != nil {
			return
		}
		n := &m.arena[id]
		for _, o := range offs {
			nb := m.leafAt(m.probe(n, o))
			if nb >= 0 && m.arena[nb].level < n.level-1 {
				err = mesherr.Topology(op, nb, "level %d cell borders level %d cell %d", m.arena[nb].level, n.level, id)
				return
			}
		}
	})
	return err
}

// Coarsen merges the children of each parent back into it. Every child must
// be a leaf and the result must stay 2:1 balanced; otherwise nothing
// changes.
func (m *Mesh) Coarsen(parents []int) error {
	const op = "tree.Coarsen"
	if err := m.mutable(op); err != nil {
		return err
	}
	seen := make(map[int]bool, len(parents))
	for _, p := range parents {
		if seen[p] {
			continue
		}
		seen[p] = true
		if p < 0 || p >= len(m.arena) || !m.arena[p].alive {
			return mesherr.Topology(op, p, "no such cell")
		}
		if m.arena[p].leaf() {
			return mesherr.Topology(op, p, "cell has no children")
		}
		for _, k := range m.children(p) {
			if !m.arena[k].leaf() {
				return mesherr.Topology(op, p, "child %d is refined", k)
			}
		}
	}
	saved := m.snapshot()
	for p := range seen {
		for _, k := range m.children(p) {
			m.arena[k].alive = false
		}
		for i := range m.arena[p].children {
			m.arena[p].children[i] = -1
		}
	}
	if err := m.checkBalance(op); err != nil {
		m.arena = saved
		return err
	}
	m.Logger().Debug("tree coarsened", zap.Int("parents", len(seen)), zap.Int("leaves", m.NLeaves()))
	return nil
}

// Reset returns a finalized mesh to the mutable state and drops every
// index and cached operator.
func (m *Mesh) Reset() {
	if !m.finalized {
		return
	}
	m.finalized = false
	m.leaves = nil
	m.index = nil
	m.Invalidate()
}
