// Package config reads YAML mesh descriptions and builds the meshes they
// describe.
//
//	kind: tree
//	axes:
//	  - {count: 8, extent: 1}
//	  - segments: [{width: 0.1, count: 4, factor: -1.3}, {width: 0.1, count: 8}]
//	origin: ["0", "C"]
//	tree:
//	  max_level: 6
//	  refine:
//	    - ball: {center: [0.5, 0], radius: 0.2, level: 4}
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/notargets/discretize/curv"
	"github.com/notargets/discretize/cyl"
	"github.com/notargets/discretize/grid"
	"github.com/notargets/discretize/mesh"
	"github.com/notargets/discretize/mesherr"
	"github.com/notargets/discretize/tensor"
	"github.com/notargets/discretize/tree"
	"gopkg.in/yaml.v3"
)

// MeshConfig is the top level document.
type MeshConfig struct {
	Kind   string       `yaml:"kind"`
	Axes   []AxisConfig `yaml:"axes"`
	Origin []string     `yaml:"origin,omitempty"`

	Tree        *TreeConfig `yaml:"tree,omitempty"`
	Curvilinear *MapConfig  `yaml:"curvilinear,omitempty"`
}

// AxisConfig gives the cell widths of one axis in exactly one of three
// forms: count and extent, explicit widths, or padding segments.
type AxisConfig struct {
	Count    int             `yaml:"count,omitempty"`
	Extent   float64         `yaml:"extent,omitempty"`
	Widths   []float64       `yaml:"widths,omitempty"`
	Segments []SegmentConfig `yaml:"segments,omitempty"`
}

type SegmentConfig struct {
	Width  float64 `yaml:"width"`
	Count  int     `yaml:"count"`
	Factor float64 `yaml:"factor,omitempty"`
}

// TreeConfig controls tree meshes. A zero MaxLevel selects
// tree.DefaultMaxLevel.
type TreeConfig struct {
	MaxLevel     int          `yaml:"max_level,omitempty"`
	InitialLevel int          `yaml:"initial_level,omitempty"`
	Refine       []RefineRule `yaml:"refine,omitempty"`
}

// RefineRule sets exactly one of its fields. Rules apply in order.
type RefineRule struct {
	Ball   *BallRule   `yaml:"ball,omitempty"`
	Box    *BoxRule    `yaml:"box,omitempty"`
	Points *PointsRule `yaml:"points,omitempty"`
}

type BallRule struct {
	Center []float64 `yaml:"center"`
	Radius float64   `yaml:"radius"`
	Level  int       `yaml:"level"`
}

type BoxRule struct {
	Lo    []float64 `yaml:"lo"`
	Hi    []float64 `yaml:"hi"`
	Level int       `yaml:"level"`
}

type PointsRule struct {
	Points [][]float64 `yaml:"points"`
	Level  int         `yaml:"level"`
}

// MapConfig maps the rectilinear nodes x to Transform*x + Offset for
// curvilinear meshes.
type MapConfig struct {
	Transform [][]float64 `yaml:"transform,omitempty"`
	Offset    []float64   `yaml:"offset,omitempty"`
}

// Load reads and validates a config file.
func Load(path string) (*MeshConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	c, err := Parse(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates one YAML document. Unknown keys are rejected.
func Parse(r io.Reader) (*MeshConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var c MeshConfig
	if err := dec.Decode(&c); err != nil {
		return nil, mesherr.Configuration("config.Parse", "decode yaml: %v", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// MeshKind resolves the kind name, case insensitively.
func (c *MeshConfig) MeshKind() (mesh.Kind, error) {
	for _, k := range []mesh.Kind{mesh.Tensor, mesh.Cylindrical, mesh.Curvilinear, mesh.Tree} {
		if strings.EqualFold(strings.TrimSpace(c.Kind), k.String()) {
			return k, nil
		}
	}
	return 0, mesherr.Configuration("config.Validate", "unknown mesh kind %q", c.Kind)
}

// Validate checks the document without building anything.
func (c *MeshConfig) Validate() error {
	const op = "config.Validate"
	kind, err := c.MeshKind()
	if err != nil {
		return err
	}
	dim := len(c.Axes)
	if dim < 1 || dim > 3 {
		return mesherr.Configuration(op, "%d axes, want 1 to 3", dim)
	}
	for a, ax := range c.Axes {
		forms := 0
		if ax.Count != 0 || ax.Extent != 0 {
			forms++
		}
		if len(ax.Widths) > 0 {
			forms++
		}
		if len(ax.Segments) > 0 {
			forms++
		}
		if forms != 1 {
			return mesherr.Configuration(op, "axis %d must give exactly one of count/extent, widths or segments", a)
		}
	}
	if len(c.Origin) != 0 && len(c.Origin) != dim {
		return mesherr.Configuration(op, "%d origin anchors for %d axes", len(c.Origin), dim)
	}
	if c.Tree != nil && kind != mesh.Tree {
		return mesherr.Configuration(op, "tree section given for a %v mesh", kind)
	}
	if c.Curvilinear != nil && kind != mesh.Curvilinear {
		return mesherr.Configuration(op, "curvilinear section given for a %v mesh", kind)
	}
	if c.Tree != nil {
		for i, r := range c.Tree.Refine {
			if err := r.validate(dim); err != nil {
				return fmt.Errorf("refine rule %d: %w", i, err)
			}
		}
	}
	if m := c.Curvilinear; m != nil {
		if len(m.Transform) != 0 {
			if len(m.Transform) != dim {
				return mesherr.Configuration(op, "transform has %d rows for %d axes", len(m.Transform), dim)
			}
			for i, row := range m.Transform {
				if len(row) != dim {
					return mesherr.Configuration(op, "transform row %d has %d entries, want %d", i, len(row), dim)
				}
			}
		}
		if len(m.Offset) != 0 && len(m.Offset) != dim {
			return mesherr.Configuration(op, "offset has %d entries for %d axes", len(m.Offset), dim)
		}
	}
	return nil
}

func (r RefineRule) validate(dim int) error {
	const op = "config.Validate"
	set := 0
	for _, p := range []bool{r.Ball != nil, r.Box != nil, r.Points != nil} {
		if p {
			set++
		}
	}
	if set != 1 {
		return mesherr.Configuration(op, "exactly one of ball, box or points must be set")
	}
	switch {
	case r.Ball != nil:
		if len(r.Ball.Center) != dim {
			return mesherr.Configuration(op, "ball center has %d coordinates, want %d", len(r.Ball.Center), dim)
		}
	case r.Box != nil:
		if len(r.Box.Lo) != dim || len(r.Box.Hi) != dim {
			return mesherr.Configuration(op, "box corners need %d coordinates", dim)
		}
	default:
		for i, p := range r.Points.Points {
			if len(p) != dim {
				return mesherr.Configuration(op, "point %d has %d coordinates, want %d", i, len(p), dim)
			}
		}
	}
	return nil
}

// Widths expands every axis into its cell widths.
func (c *MeshConfig) Widths() ([][]float64, error) {
	h := make([][]float64, len(c.Axes))
	for a, ax := range c.Axes {
		var err error
		switch {
		case len(ax.Widths) > 0:
			h[a] = append([]float64(nil), ax.Widths...)
		case len(ax.Segments) > 0:
			segs := make([]grid.Segment, len(ax.Segments))
			for i, s := range ax.Segments {
				segs[i] = grid.Segment{Width: s.Width, Count: s.Count, Factor: s.Factor}
			}
			h[a], err = grid.Pad(segs...)
		default:
			h[a], err = grid.Uniform(ax.Count, ax.Extent)
		}
		if err != nil {
			return nil, fmt.Errorf("axis %d: %w", a, err)
		}
	}
	return h, nil
}

// Grid resolves widths and origin anchors.
func (c *MeshConfig) Grid() (*grid.Grid, error) {
	h, err := c.Widths()
	if err != nil {
		return nil, err
	}
	var x0 []float64
	if len(c.Origin) > 0 {
		anchors := make([]grid.Anchor, len(c.Origin))
		for i, s := range c.Origin {
			anchors[i] = grid.Anchor(s)
		}
		if x0, err = grid.ResolveOrigin(h, anchors); err != nil {
			return nil, err
		}
	}
	return grid.New(h, x0)
}

// Build constructs the mesh. Tree meshes are refined by the configured
// rules and returned finalized.
func (c *MeshConfig) Build(opts ...mesh.Option) (mesh.BaseMesh, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	kind, _ := c.MeshKind()
	g, err := c.Grid()
	if err != nil {
		return nil, err
	}
	var m mesh.BaseMesh
	switch kind {
	case mesh.Tensor:
		m, err = tensor.FromGrid(g, opts...)
	case mesh.Cylindrical:
		m, err = cyl.New(g.H, g.Origin, opts...)
	case mesh.Curvilinear:
		m, err = curv.FromGrid(g, c.Curvilinear.mapping(g.Dim()), opts...)
	default:
		m, err = c.buildTree(g, opts...)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MapConfig) mapping(dim int) func([3]float64) [3]float64 {
	if m == nil || (len(m.Transform) == 0 && len(m.Offset) == 0) {
		return nil
	}
	return func(p [3]float64) [3]float64 {
		var q [3]float64
		for i := 0; i < dim; i++ {
			if len(m.Transform) == 0 {
				q[i] = p[i]
			} else {
				for j := 0; j < dim; j++ {
					q[i] += m.Transform[i][j] * p[j]
				}
			}
			if len(m.Offset) != 0 {
				q[i] += m.Offset[i]
			}
		}
		return q
	}
}

func vec3(v []float64) [3]float64 {
	var p [3]float64
	copy(p[:], v)
	return p
}

func (c *MeshConfig) buildTree(g *grid.Grid, opts ...mesh.Option) (*tree.Mesh, error) {
	o := mesh.Apply(opts...)
	topts := []tree.Option{tree.WithLogger(o.Logger), tree.WithWorkers(o.Workers)}
	tc := c.Tree
	if tc == nil {
		tc = &TreeConfig{}
	}
	if tc.MaxLevel != 0 {
		topts = append(topts, tree.WithMaxLevel(tc.MaxLevel))
	}
	topts = append(topts, tree.WithInitialLevel(tc.InitialLevel))
	t, err := tree.New(g.H, g.Origin, topts...)
	if err != nil {
		return nil, err
	}
	for i, r := range tc.Refine {
		switch {
		case r.Ball != nil:
			err = t.RefineBall(vec3(r.Ball.Center), r.Ball.Radius, r.Ball.Level)
		case r.Box != nil:
			err = t.RefineBox(vec3(r.Box.Lo), vec3(r.Box.Hi), r.Box.Level)
		default:
			pts := make([][3]float64, len(r.Points.Points))
			for j, p := range r.Points.Points {
				pts[j] = vec3(p)
			}
			err = t.InsertPoints(pts, r.Points.Level)
		}
		if err != nil {
			return nil, fmt.Errorf("refine rule %d: %w", i, err)
		}
	}
	if err := t.Finalize(); err != nil {
		return nil, err
	}
	return t, nil
}
