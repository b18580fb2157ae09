package tree

import (
	"github.com/notargets/discretize/mesherr"
)

// Leaf is one leaf of a serialized tree in finest level units.
type Leaf struct {
	Level  int    `json:"level" yaml:"level"`
	Origin [3]int `json:"origin" yaml:"origin"`
}

// State is the serializable form of a tree: the base grid, the max level
// and the leaves in traversal order.
type State struct {
	Widths   [][]float64 `json:"widths" yaml:"widths"`
	Origin   []float64   `json:"origin" yaml:"origin"`
	MaxLevel int         `json:"max_level" yaml:"max_level"`
	Leaves   []Leaf      `json:"leaves" yaml:"leaves"`
}

// State exports the tree. Rebuilding it with FromState reproduces the same
// cell order and entity indices.
func (m *Mesh) State() State {
	s := State{
		Origin:   append([]float64(nil), m.grid.Origin...),
		MaxLevel: m.maxLevel,
	}
	for _, h := range m.grid.H {
		s.Widths = append(s.Widths, append([]float64(nil), h...))
	}
	m.traverse(func(id int) {
		n := &m.arena[id]
		s.Leaves = append(s.Leaves, Leaf{Level: n.level, Origin: n.origin})
	})
	return s
}

// FromState rebuilds and finalizes a tree exported by State. The leaves
// must be listed exactly once each, in traversal order.
func FromState(s State, opts ...Option) (*Mesh, error) {
	const op = "tree.FromState"
	opts = append(opts, WithMaxLevel(s.MaxLevel), WithInitialLevel(0))
	m, err := New(s.Widths, s.Origin, opts...)
	if err != nil {
		return nil, err
	}
	for i, l := range s.Leaves {
		if l.Level < 0 || l.Level > m.maxLevel {
			return nil, mesherr.Topology(op, -1, "leaf %d has level %d outside [0, %d]", i, l.Level, m.maxLevel)
		}
		id := m.leafAt(l.Origin)
		if id < 0 {
			return nil, mesherr.Topology(op, -1, "leaf %d origin %v lies outside the domain", i, l.Origin)
		}
		for m.arena[id].level < l.Level {
			m.split(id)
			id = m.leafAt(l.Origin)
		}
		if n := &m.arena[id]; n.level != l.Level || n.origin != l.Origin {
			return nil, mesherr.Topology(op, -1, "leaf %d at level %d %v does not match the tree", i, l.Level, l.Origin)
		}
	}
	if got := m.NLeaves(); got != len(s.Leaves) {
		return nil, mesherr.Topology(op, -1, "state lists %d leaves, tree has %d", len(s.Leaves), got)
	}
	for i, l := range m.State().Leaves {
		if want := s.Leaves[i]; l != want {
			return nil, mesherr.Topology(op, -1, "leaf %d at level %d %v is out of order, traversal gives level %d %v",
				i, want.Level, want.Origin, l.Level, l.Origin)
		}
	}
	if err := m.checkBalance(op); err != nil {
		return nil, err
	}
	if err := m.Finalize(); err != nil {
		return nil, err
	}
	return m, nil
}
