package tree

import (
	"math"
	"time"

	"github.com/notargets/discretize/mesherr"
	"github.com/notargets/discretize/topo"
	"go.uber.org/zap"
)

// key names a face, edge or node by its orientation axis, lower corner and
// size in finest units.
type key struct {
	axis   int
	origin [3]int
	size   int
}

// registry numbers keys in encounter order, active ones per axis.
type registry struct {
	active    [3][]key
	activeID  map[key]int
	hanging   []key
	hangingID map[key]int
	owner     map[key][2]int // first registering cell and slot side
	offset    [3]int
}

func newRegistry() *registry {
	return &registry{
		activeID:  make(map[key]int),
		hangingID: make(map[key]int),
		owner:     make(map[key][2]int),
	}
}

func (r *registry) add(k key, hanging bool, cell, side int) {
	if hanging {
		if _, ok := r.hangingID[k]; !ok {
			r.hangingID[k] = len(r.hanging)
			r.hanging = append(r.hanging, k)
			r.owner[k] = [2]int{cell, side}
		}
		return
	}
	if _, ok := r.activeID[k]; !ok {
		r.activeID[k] = len(r.active[k.axis])
		r.active[k.axis] = append(r.active[k.axis], k)
	}
}

// seal fixes the global offsets of each axis block.
func (r *registry) seal() int {
	n := 0
	for a := 0; a < 3; a++ {
		r.offset[a] = n
		n += len(r.active[a])
	}
	return n
}

func (r *registry) ref(k key) topo.Ref {
	if id, ok := r.activeID[k]; ok {
		return topo.Ref{ID: r.offset[k.axis] + id}
	}
	if id, ok := r.hangingID[k]; ok {
		return topo.Ref{ID: id, Hanging: true}
	}
	return topo.None
}

func (r *registry) activeRef(k key) (int, bool) {
	id, ok := r.activeID[k]
	return r.offset[k.axis] + id, ok
}

// Finalize assigns indices to leaves, faces, edges and nodes, resolves
// hanging entities and publishes the topology. Calling it again on a
// finalized mesh does nothing.
func (m *Mesh) Finalize() error {
	if m.finalized {
		return nil
	}
	start := time.Now()
	m.leaves = nil
	m.index = make(map[int]int)
	m.traverse(func(id int) {
		m.index[id] = len(m.leaves)
		m.leaves = append(m.leaves, id)
	})
	ix := &indexer{m: m}
	t, err := ix.build()
	if err != nil {
		m.leaves, m.index = nil, nil
		return err
	}
	m.finalized = true
	m.SetTopology(t)
	m.Logger().Debug("tree finalized",
		zap.Int("cells", t.NCells),
		zap.Int("faces", t.TotalFaces()),
		zap.Int("hanging_faces", len(t.HangingFaces)),
		zap.Int("edges", t.TotalEdges()),
		zap.Int("hanging_edges", len(t.HangingEdges)),
		zap.Int("nodes", t.NNodes),
		zap.Int("hanging_nodes", len(t.HangingNodes)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

type indexer struct {
	m     *Mesh
	t     *topo.Topology
	faces *registry
	edges *registry
	nodes *registry

	cellFaces [][]key
	cellEdges [][]key
	cellNodes [][]key
}

const opFinalize = "tree.Finalize"

func (ix *indexer) build() (*topo.Topology, error) {
	m := ix.m
	ix.t = &topo.Topology{Dim: m.dim, Orthogonal: true, NCells: len(m.leaves)}
	ix.cells()
	if err := ix.buildFaces(); err != nil {
		return nil, err
	}
	if m.dim == 3 {
		if err := ix.buildEdges(); err != nil {
			return nil, err
		}
	}
	if err := ix.buildNodes(); err != nil {
		return nil, err
	}
	ix.wire()
	return ix.t, ix.t.Validate()
}

func (ix *indexer) cells() {
	m, t := ix.m, ix.t
	t.CellVolumes = make([]float64, t.NCells)
	t.CellCenters = make([][3]float64, t.NCells)
	for ci, id := range m.leaves {
		n := &m.arena[id]
		s := m.size(n.level)
		v := 1.0
		for a := 0; a < m.dim; a++ {
			lo, hi := m.coord(a, n.origin[a]), m.coord(a, n.origin[a]+s)
			v *= hi - lo
			t.CellCenters[ci][a] = 0.5 * (lo + hi)
		}
		t.CellVolumes[ci] = v
	}
}

// boxMeasure is the product of the physical widths of the box at origin o
// and size s over every axis but skip (and the unused ones).
func (m *Mesh) boxMeasure(o [3]int, s, skip int) float64 {
	v := 1.0
	for a := 0; a < m.dim; a++ {
		if a != skip {
			v *= m.coord(a, o[a]+s) - m.coord(a, o[a])
		}
	}
	return v
}

// boxCenter is the center of the box at o spanning s on every axis but
// flat, which stays at o.
func (m *Mesh) boxCenter(o [3]int, s, flat int) [3]float64 {
	var c [3]float64
	for a := 0; a < m.dim; a++ {
		if a == flat {
			c[a] = m.coord(a, o[a])
		} else {
			c[a] = 0.5 * (m.coord(a, o[a]) + m.coord(a, o[a]+s))
		}
	}
	return c
}

func (m *Mesh) onBoundary(a, x int) bool { return x == 0 || x == m.extent[a] }

func (ix *indexer) buildFaces() error {
	m, t := ix.m, ix.t
	ix.faces = newRegistry()
	ix.cellFaces = make([][]key, t.NCells)
	for ci, id := range m.leaves {
		n := &m.arena[id]
		s := m.size(n.level)
		ix.cellFaces[ci] = make([]key, 2*m.dim)
		for a := 0; a < m.dim; a++ {
			for side := 0; side < 2; side++ {
				k := key{axis: a, origin: n.origin, size: s}
				k.origin[a] += side * s
				q := n.origin
				if side == 0 {
					q[a]--
				} else {
					q[a] += s
				}
				hanging := false
				if nb := m.leafAt(q); nb >= 0 {
					lv := m.arena[nb].level
					if lv > n.level+1 {
						return mesherr.Topology(opFinalize, ci, "face neighbour on axis %d is %d levels finer", a, lv-n.level)
					}
					hanging = lv > n.level
				}
				ix.faces.add(k, hanging, ci, side)
				ix.cellFaces[ci][2*a+side] = k
			}
		}
	}
	nF := ix.faces.seal()
	for a := 0; a < 3; a++ {
		t.NFaces[a] = len(ix.faces.active[a])
	}
	t.FaceAxis = make([]int, nF)
	t.FaceAreas = make([]float64, nF)
	t.FaceCenters = make([][3]float64, nF)
	t.FaceCells = make([][2]int, nF)
	t.FaceDistances = make([][2]float64, nF)
	for a := 0; a < 3; a++ {
		for i, k := range ix.faces.active[a] {
			f := ix.faces.offset[a] + i
			t.FaceAxis[f] = a
			t.FaceAreas[f] = m.boxMeasure(k.origin, k.size, a)
			t.FaceCenters[f] = m.boxCenter(k.origin, k.size, a)
			t.FaceCells[f] = [2]int{-1, -1}
		}
	}

	t.CellFaces = make([][]topo.Ref, t.NCells)
	for ci, keys := range ix.cellFaces {
		t.CellFaces[ci] = make([]topo.Ref, len(keys))
		for slot, k := range keys {
			r := ix.faces.ref(k)
			t.CellFaces[ci][slot] = r
			if !r.Hanging {
				ix.attach(r.ID, ci, slot%2, k)
			}
		}
	}

	t.HangingFaces = make([]topo.Hanging, len(ix.faces.hanging))
	for h, k := range ix.faces.hanging {
		own := ix.faces.owner[k]
		area := m.boxMeasure(k.origin, k.size, k.axis)
		hf := topo.Hanging{
			Axis:    k.axis,
			Measure: area,
			Center:  m.boxCenter(k.origin, k.size, k.axis),
			Cell:    own[0],
		}
		others := otherAxes(k.axis, m.dim)
		half := k.size / 2
		for mask := 0; mask < 1<<len(others); mask++ {
			sub := key{axis: k.axis, origin: k.origin, size: half}
			for j, b := range others {
				sub.origin[b] += ((mask >> j) & 1) * half
			}
			f, ok := ix.faces.activeRef(sub)
			if !ok {
				return mesherr.Topology(opFinalize, own[0], "hanging face on axis %d has no fine subface at %v", k.axis, sub.origin)
			}
			ix.attach(f, own[0], own[1], k)
			hf.Weights = append(hf.Weights, topo.Weight{ID: f, W: t.FaceAreas[f] / area})
		}
		t.HangingFaces[h] = hf
	}
	return nil
}

// attach records cell as the back (upper slot) or front (lower slot) cell
// of active face f lying on plane k.
func (ix *indexer) attach(f, cell, side int, k key) {
	t := ix.t
	d := math.Abs(ix.m.coord(k.axis, k.origin[k.axis]) - t.CellCenters[cell][k.axis])
	if side == 0 {
		t.FaceCells[f][1] = cell
		t.FaceDistances[f][1] = d
	} else {
		t.FaceCells[f][0] = cell
		t.FaceDistances[f][0] = d
	}
}

func otherAxes(a, dim int) []int {
	var out []int
	for b := 0; b < dim; b++ {
		if b != a {
			out = append(out, b)
		}
	}
	return out
}

// edgeSplit reports whether a leaf finer than the edge touches it.
func (m *Mesh) edgeSplit(k key) bool {
	others := otherAxes(k.axis, 3)
	b, c := others[0], others[1]
	for q := 0; q < 4; q++ {
		p := k.origin
		p[b] -= q & 1
		p[c] -= q >> 1
		if nb := m.leafAt(p); nb >= 0 && m.size(m.arena[nb].level) < k.size {
			return true
		}
	}
	return false
}

func (ix *indexer) buildEdges() error {
	m, t := ix.m, ix.t
	ix.edges = newRegistry()
	ix.cellEdges = make([][]key, t.NCells)
	for ci, id := range m.leaves {
		n := &m.arena[id]
		s := m.size(n.level)
		ix.cellEdges[ci] = make([]key, 12)
		for a := 0; a < 3; a++ {
			others := otherAxes(a, 3)
			b, c := others[0], others[1]
			for q := 0; q < 4; q++ {
				k := key{axis: a, origin: n.origin, size: s}
				k.origin[b] += (q & 1) * s
				k.origin[c] += (q >> 1) * s
				ix.edges.add(k, m.edgeSplit(k), ci, 0)
				ix.cellEdges[ci][4*a+q] = k
			}
		}
	}
	nE := ix.edges.seal()
	for a := 0; a < 3; a++ {
		t.NEdges[a] = len(ix.edges.active[a])
	}
	t.EdgeAxis = make([]int, nE)
	t.EdgeLengths = make([]float64, nE)
	t.EdgeCenters = make([][3]float64, nE)
	t.EdgeBoundary = make([]uint8, nE)
	for a := 0; a < 3; a++ {
		for i, k := range ix.edges.active[a] {
			e := ix.edges.offset[a] + i
			t.EdgeAxis[e] = a
			t.EdgeLengths[e] = m.edgeLength(k)
			t.EdgeCenters[e] = m.edgeCenter(k)
			for _, b := range otherAxes(a, 3) {
				if m.onBoundary(b, k.origin[b]) {
					t.EdgeBoundary[e]++
				}
			}
		}
	}
	t.CellEdges = make([][]topo.Ref, t.NCells)
	for ci, keys := range ix.cellEdges {
		t.CellEdges[ci] = make([]topo.Ref, len(keys))
		for slot, k := range keys {
			t.CellEdges[ci][slot] = ix.edges.ref(k)
		}
	}
	t.HangingEdges = make([]topo.Hanging, len(ix.edges.hanging))
	for h, k := range ix.edges.hanging {
		own := ix.edges.owner[k]
		length := m.edgeLength(k)
		he := topo.Hanging{Axis: k.axis, Measure: length, Center: m.edgeCenter(k), Cell: own[0]}
		half := k.size / 2
		for j := 0; j < 2; j++ {
			sub := key{axis: k.axis, origin: k.origin, size: half}
			sub.origin[k.axis] += j * half
			e, ok := ix.edges.activeRef(sub)
			if !ok {
				return mesherr.Topology(opFinalize, own[0], "hanging edge on axis %d has no fine half at %v", k.axis, sub.origin)
			}
			he.Weights = append(he.Weights, topo.Weight{ID: e, W: t.EdgeLengths[e] / length})
		}
		t.HangingEdges[h] = he
	}
	return nil
}

func (m *Mesh) edgeLength(k key) float64 {
	return m.coord(k.axis, k.origin[k.axis]+k.size) - m.coord(k.axis, k.origin[k.axis])
}

func (m *Mesh) edgeCenter(k key) [3]float64 {
	var c [3]float64
	for a := 0; a < m.dim; a++ {
		c[a] = m.coord(a, k.origin[a])
	}
	c[k.axis] = 0.5 * (c[k.axis] + m.coord(k.axis, k.origin[k.axis]+k.size))
	return c
}

// coarseAt returns a leaf touching p that does not have p as a corner, or
// -1 when p is a corner of every leaf around it.
func (m *Mesh) coarseAt(p [3]int) int {
	for mask := 0; mask < 1<<m.dim; mask++ {
		q := p
		for a := 0; a < m.dim; a++ {
			q[a] -= (mask >> a) & 1
		}
		nb := m.leafAt(q)
		if nb < 0 {
			continue
		}
		n := &m.arena[nb]
		s := m.size(n.level)
		for a := 0; a < m.dim; a++ {
			if p[a] != n.origin[a] && p[a] != n.origin[a]+s {
				return nb
			}
		}
	}
	return -1
}

func nodeKey(p [3]int) key { return key{origin: p} }

func (ix *indexer) buildNodes() error {
	m, t := ix.m, ix.t
	ix.nodes = newRegistry()
	ix.cellNodes = make([][]key, t.NCells)
	coarse := make(map[key]int)
	for ci, id := range m.leaves {
		n := &m.arena[id]
		s := m.size(n.level)
		ix.cellNodes[ci] = make([]key, 1<<m.dim)
		for slot := 0; slot < 1<<m.dim; slot++ {
			p := n.origin
			for a := 0; a < m.dim; a++ {
				p[a] += ((slot >> a) & 1) * s
			}
			k := nodeKey(p)
			if _, done := coarse[k]; !done {
				coarse[k] = m.coarseAt(p)
			}
			ix.nodes.add(k, coarse[k] >= 0, ci, 0)
			ix.cellNodes[ci][slot] = k
		}
	}
	t.NNodes = ix.nodes.seal()
	t.NodeCoords = make([][3]float64, t.NNodes)
	t.NodeBoundary = make([]uint8, t.NNodes)
	for i, k := range ix.nodes.active[0] {
		for a := 0; a < m.dim; a++ {
			t.NodeCoords[i][a] = m.coord(a, k.origin[a])
			if m.onBoundary(a, k.origin[a]) {
				t.NodeBoundary[i]++
			}
		}
	}
	t.CellNodes = make([][]topo.Ref, t.NCells)
	for ci, keys := range ix.cellNodes {
		t.CellNodes[ci] = make([]topo.Ref, len(keys))
		for slot, k := range keys {
			t.CellNodes[ci][slot] = ix.nodes.ref(k)
		}
	}
	t.HangingNodes = make([]topo.Hanging, len(ix.nodes.hanging))
	for h, k := range ix.nodes.hanging {
		hn, err := ix.hangingNode(k.origin, coarse[k], ix.nodes.owner[k][0])
		if err != nil {
			return err
		}
		t.HangingNodes[h] = hn
	}
	return nil
}

// hangingNode constrains node p, which lies inside a face or edge of the
// coarse leaf nb, to the corners of that entity.
func (ix *indexer) hangingNode(p [3]int, nb, cell int) (topo.Hanging, error) {
	m := ix.m
	n := &m.arena[nb]
	s := m.size(n.level)
	var interior, flat []int
	for a := 0; a < m.dim; a++ {
		switch p[a] {
		case n.origin[a], n.origin[a] + s:
			flat = append(flat, a)
		case n.origin[a] + s/2:
			interior = append(interior, a)
		default:
			return topo.Hanging{}, mesherr.Topology(opFinalize, cell, "node %v is off the midpoint of a coarse entity", p)
		}
	}
	if len(interior) == m.dim {
		return topo.Hanging{}, mesherr.Topology(opFinalize, cell, "node %v lies inside a coarse cell", p)
	}
	hn := topo.Hanging{Axis: -1, Cell: -1, OnID: -1}
	for a := 0; a < m.dim; a++ {
		hn.Center[a] = m.coord(a, p[a])
	}
	w := 1 / float64(int(1)<<len(interior))
	for mask := 0; mask < 1<<len(interior); mask++ {
		q := p
		for j, a := range interior {
			q[a] = n.origin[a] + ((mask>>j)&1)*s
		}
		id, ok := ix.nodes.activeRef(nodeKey(q))
		if !ok {
			return topo.Hanging{}, mesherr.Topology(opFinalize, cell, "node %v constrains to inactive corner %v", p, q)
		}
		hn.Weights = append(hn.Weights, topo.Weight{ID: id, W: w})
	}
	base := p
	for _, a := range interior {
		base[a] = n.origin[a]
	}
	if len(interior) == m.dim-1 {
		hn.On = topo.Face
		if id, ok := ix.faces.hangingID[key{axis: flat[0], origin: base, size: s}]; ok {
			hn.OnID = id
		}
	} else {
		hn.On = topo.Edge
		if id, ok := ix.edges.hangingID[key{axis: interior[0], origin: base, size: s}]; ok {
			hn.OnID = id
		}
	}
	return hn, nil
}

// wire fills the face to edge, face to node and edge to node maps.
func (ix *indexer) wire() {
	m, t := ix.m, ix.t
	nF := t.TotalFaces()
	t.FaceNodes = make([][]topo.Ref, nF)
	if m.dim == 3 {
		t.FaceEdges = make([][4]topo.Ref, nF)
	}
	for a := 0; a < 3; a++ {
		for i, k := range ix.faces.active[a] {
			f := ix.faces.offset[a] + i
			var corners []topo.Ref
			for s := 0; s < 1<<m.dim; s++ {
				if (s>>a)&1 == 1 {
					continue
				}
				p := k.origin
				for d := 0; d < m.dim; d++ {
					p[d] += ((s >> d) & 1) * k.size
				}
				corners = append(corners, ix.nodes.ref(nodeKey(p)))
			}
			t.FaceNodes[f] = corners
			if m.dim == 3 {
				b, c := (a+1)%3, (a+2)%3
				hiC, hiB := k.origin, k.origin
				hiC[c] += k.size
				hiB[b] += k.size
				t.FaceEdges[f] = [4]topo.Ref{
					ix.edges.ref(key{axis: b, origin: k.origin, size: k.size}),
					ix.edges.ref(key{axis: b, origin: hiC, size: k.size}),
					ix.edges.ref(key{axis: c, origin: k.origin, size: k.size}),
					ix.edges.ref(key{axis: c, origin: hiB, size: k.size}),
				}
			}
		}
	}
	if m.dim == 3 {
		t.EdgeNodes = make([][2]topo.Ref, t.TotalEdges())
		for a := 0; a < 3; a++ {
			for i, k := range ix.edges.active[a] {
				end := k.origin
				end[a] += k.size
				t.EdgeNodes[ix.edges.offset[a]+i] = [2]topo.Ref{ix.nodes.ref(nodeKey(k.origin)), ix.nodes.ref(nodeKey(end))}
			}
		}
	}
}
