package mesh

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/james-bowman/sparse"
	"github.com/notargets/discretize/mesherr"
	"github.com/notargets/discretize/operators"
	"github.com/notargets/discretize/topo"
	"go.uber.org/zap"
)

// Options carries the ambient settings of a mesh.
type Options struct {
	Logger  *zap.Logger
	Workers int
}

// Option configures a mesh.
type Option func(*Options)

// WithLogger sets the debug logger. The default discards output.
func WithLogger(l *zap.Logger) Option { return func(o *Options) { o.Logger = l } }

// WithWorkers sets the number of goroutines used by operator assembly.
func WithWorkers(n int) Option { return func(o *Options) { o.Workers = n } }

// Apply resolves opts over the defaults.
func Apply(opts ...Option) Options {
	o := Options{Logger: zap.NewNop(), Workers: 1}
	for _, fn := range opts {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	return o
}

// Base implements BaseMesh over a topology installed by the variant.
// Variants embed it and call SetTopology when a topology is finalized and
// Invalidate when it changes.
type Base struct {
	kind Kind
	dim  int
	opts Options

	mu    sync.RWMutex
	top   *topo.Topology
	gen   uint64
	cache *Cache
}

// NewBase returns a Base with no topology.
func NewBase(kind Kind, dim int, opts ...Option) *Base {
	return &Base{kind: kind, dim: dim, opts: Apply(opts...), cache: NewCache()}
}

func (b *Base) Kind() Kind          { return b.kind }
func (b *Base) Dim() int            { return b.dim }
func (b *Base) Logger() *zap.Logger { return b.opts.Logger }
func (b *Base) Workers() int        { return b.opts.Workers }
func (b *Base) Cache() *Cache       { return b.cache }

// Generation increases on every SetTopology and Invalidate.
func (b *Base) Generation() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.gen
}

// SetTopology installs a finalized topology and drops cached operators.
func (b *Base) SetTopology(t *topo.Topology) {
	b.mu.Lock()
	b.top = t
	b.gen++
	gen := b.gen
	b.mu.Unlock()
	b.cache.Invalidate()
	b.opts.Logger.Debug("topology installed",
		zap.Stringer("kind", b.kind),
		zap.Uint64("generation", gen),
		zap.Int("cells", t.NCells),
		zap.Int("faces", t.TotalFaces()),
		zap.Int("edges", t.TotalEdges()),
		zap.Int("nodes", t.NNodes))
}

// Invalidate removes the topology and drops cached operators.
func (b *Base) Invalidate() {
	b.mu.Lock()
	had := b.top != nil
	b.top = nil
	b.gen++
	gen := b.gen
	b.mu.Unlock()
	b.cache.Invalidate()
	if had {
		b.opts.Logger.Debug("topology invalidated", zap.Stringer("kind", b.kind), zap.Uint64("generation", gen))
	}
}

// Topology returns the finalized topology.
func (b *Base) Topology() (*topo.Topology, error) {
	t, _, err := b.current("Topology")
	return t, err
}

func (b *Base) current(op string) (*topo.Topology, uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.top == nil {
		return nil, b.gen, mesherr.State(op, "%s mesh is not finalized", b.kind)
	}
	return b.top, b.gen, nil
}

func (b *Base) assembler(t *topo.Topology) *operators.Assembler {
	return operators.New(t, operators.WithWorkers(b.opts.Workers), operators.WithLogger(b.opts.Logger))
}

// cached returns the entry for key, assembling it over the current
// topology on first use.
func cached[T any](b *Base, key Key, build func(a *operators.Assembler) (T, error)) (T, error) {
	var zero T
	t, gen, err := b.current(key.Op)
	if err != nil {
		return zero, err
	}
	key.Generation = gen
	v, err := b.cache.Get(key, func() (interface{}, error) {
		return build(b.assembler(t))
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func (b *Base) CellVolumes() ([]float64, error) {
	t, _, err := b.current("CellVolumes")
	if err != nil {
		return nil, err
	}
	return t.CellVolumes, nil
}

func (b *Base) FaceAreas() ([]float64, error) {
	t, _, err := b.current("FaceAreas")
	if err != nil {
		return nil, err
	}
	return t.FaceAreas, nil
}

// EdgeLengths fails with a not supported error on meshes without edges.
func (b *Base) EdgeLengths() ([]float64, error) {
	t, _, err := b.current("EdgeLengths")
	if err != nil {
		return nil, err
	}
	if !t.HasEdges() {
		return nil, mesherr.NotSupported("EdgeLengths", "%d-D %s mesh has no edges", t.Dim, b.kind)
	}
	return t.EdgeLengths, nil
}

func (b *Base) CellCenters() ([][3]float64, error) {
	t, _, err := b.current("CellCenters")
	if err != nil {
		return nil, err
	}
	return t.CellCenters, nil
}

func (b *Base) boundary(op string, fn func(t *topo.Topology) []int) ([]int, error) {
	return cached(b, Key{Op: op}, func(a *operators.Assembler) ([]int, error) {
		return fn(a.Topo), nil
	})
}

func (b *Base) BoundaryCells() ([]int, error) {
	return b.boundary("BoundaryCells", (*topo.Topology).BoundaryCells)
}

func (b *Base) BoundaryFaces() ([]int, error) {
	return b.boundary("BoundaryFaces", (*topo.Topology).BoundaryFaces)
}

func (b *Base) BoundaryEdges() ([]int, error) {
	return b.boundary("BoundaryEdges", (*topo.Topology).BoundaryEdges)
}

func (b *Base) BoundaryNodes() ([]int, error) {
	return b.boundary("BoundaryNodes", (*topo.Topology).BoundaryNodes)
}

func (b *Base) Divergence() (*sparse.CSR, error) {
	return cached(b, Key{Op: "Divergence"}, (*operators.Assembler).Divergence)
}

func (b *Base) CellGradient(policy operators.BoundaryPolicy) (*sparse.CSR, error) {
	return cached(b, Key{Op: "CellGradient", Variant: policy.String()}, func(a *operators.Assembler) (*sparse.CSR, error) {
		return a.CellGradient(policy)
	})
}

func (b *Base) NodalGradient() (*sparse.CSR, error) {
	return cached(b, Key{Op: "NodalGradient"}, (*operators.Assembler).NodalGradient)
}

func (b *Base) EdgeCurl() (*sparse.CSR, error) {
	return cached(b, Key{Op: "EdgeCurl"}, (*operators.Assembler).EdgeCurl)
}

func (b *Base) FaceCurl() (*sparse.CSR, error) {
	return cached(b, Key{Op: "FaceCurl"}, (*operators.Assembler).FaceCurl)
}

func (b *Base) AveCC2F(scheme operators.AveragingScheme, fill operators.BoundaryFill) (*sparse.CSR, error) {
	key := Key{Op: "AveCC2F", Variant: fmt.Sprintf("%d/%d", scheme, fill)}
	return cached(b, key, func(a *operators.Assembler) (*sparse.CSR, error) {
		return a.AveCC2F(scheme, fill)
	})
}

func (b *Base) AveF2CC() (*sparse.CSR, error) {
	return cached(b, Key{Op: "AveF2CC"}, (*operators.Assembler).AveF2CC)
}

func (b *Base) AveF2CCV() (*sparse.CSR, error) {
	return cached(b, Key{Op: "AveF2CCV"}, (*operators.Assembler).AveF2CCV)
}

func (b *Base) AveN2CC() (*sparse.CSR, error) {
	return cached(b, Key{Op: "AveN2CC"}, (*operators.Assembler).AveN2CC)
}

func (b *Base) AveCC2N(fill operators.BoundaryFill) (*sparse.CSR, error) {
	return cached(b, Key{Op: "AveCC2N", Variant: fmt.Sprint(fill)}, func(a *operators.Assembler) (*sparse.CSR, error) {
		return a.AveCC2N(fill)
	})
}

func (b *Base) AveE2CC() (*sparse.CSR, error) {
	return cached(b, Key{Op: "AveE2CC"}, (*operators.Assembler).AveE2CC)
}

func (b *Base) AveE2CCV() (*sparse.CSR, error) {
	return cached(b, Key{Op: "AveE2CCV"}, (*operators.Assembler).AveE2CCV)
}

func (b *Base) AveCC2E(fill operators.BoundaryFill) (*sparse.CSR, error) {
	return cached(b, Key{Op: "AveCC2E", Variant: fmt.Sprint(fill)}, func(a *operators.Assembler) (*sparse.CSR, error) {
		return a.AveCC2E(fill)
	})
}

func (b *Base) AveN2F() (*sparse.CSR, error) {
	return cached(b, Key{Op: "AveN2F"}, (*operators.Assembler).AveN2F)
}

func (b *Base) AveN2E() (*sparse.CSR, error) {
	return cached(b, Key{Op: "AveN2E"}, (*operators.Assembler).AveN2E)
}

type faceProduct struct {
	m   *sparse.CSR
	rhs []float64
}

func innerKey(op string, p operators.Property, o operators.InnerProductOptions) Key {
	variant := fmt.Sprintf("invprop=%t/invmat=%t", o.InvertProperty, o.InvertMatrix)
	if o.Robin != nil {
		variant += fmt.Sprintf("/robin=%x", fingerprint(o.Robin.Alpha, o.Robin.Beta, o.Robin.Gamma))
	}
	return Key{Op: op, Order: int(o.Order), Shape: p.Fingerprint(), Variant: variant}
}

func (b *Base) FaceInnerProduct(p operators.Property, o operators.InnerProductOptions) (*sparse.CSR, []float64, error) {
	v, err := cached(b, innerKey("FaceInnerProduct", p, o), func(a *operators.Assembler) (faceProduct, error) {
		m, rhs, err := a.FaceInnerProduct(p, o)
		return faceProduct{m: m, rhs: rhs}, err
	})
	if err != nil {
		return nil, nil, err
	}
	return v.m, v.rhs, nil
}

func (b *Base) EdgeInnerProduct(p operators.Property, o operators.InnerProductOptions) (*sparse.CSR, error) {
	return cached(b, innerKey("EdgeInnerProduct", p, o), func(a *operators.Assembler) (*sparse.CSR, error) {
		return a.EdgeInnerProduct(p, o)
	})
}

func fingerprint(vs ...[]float64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range vs {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(v)))
		h.Write(buf[:])
		for _, x := range v {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
			h.Write(buf[:])
		}
	}
	return h.Sum64()
}
