// Package operators assembles the mimetic sparse operators of a finalized
// topology: divergence, gradients, curls, averaging maps and inner
// products. Every assembler is a pure function of the topology, so one
// Assembler may be used from several goroutines.
package operators

import (
	"time"

	"github.com/james-bowman/sparse"
	"github.com/notargets/discretize/partitions"
	"github.com/notargets/discretize/topo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Assembler builds operators over one topology.
type Assembler struct {
	Topo    *topo.Topology
	Workers int
	Logger  *zap.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithWorkers distributes output rows over n goroutines.
func WithWorkers(n int) Option { return func(a *Assembler) { a.Workers = n } }

// WithLogger sets the debug logger.
func WithLogger(l *zap.Logger) Option { return func(a *Assembler) { a.Logger = l } }

// New returns an Assembler for t.
func New(t *topo.Topology, opts ...Option) *Assembler {
	a := &Assembler{Topo: t, Workers: 1, Logger: zap.NewNop()}
	for _, o := range opts {
		o(a)
	}
	if a.Workers < 1 {
		a.Workers = 1
	}
	if a.Logger == nil {
		a.Logger = zap.NewNop()
	}
	return a
}

// Triplets is an append-only coordinate list. Duplicate entries are summed
// when converted.
type Triplets struct {
	Rows, Cols []int
	Vals       []float64
}

// Add appends v at (i, j).
func (t *Triplets) Add(i, j int, v float64) {
	t.Rows = append(t.Rows, i)
	t.Cols = append(t.Cols, j)
	t.Vals = append(t.Vals, v)
}

// AddRouted appends v spread over the active entities named by ws.
func (t *Triplets) AddRouted(i int, ws []topo.Weight, v float64) {
	for _, w := range ws {
		t.Add(i, w.ID, v*w.W)
	}
}

// Len returns the number of stored entries.
func (t *Triplets) Len() int { return len(t.Vals) }

func (t *Triplets) appendAll(o *Triplets) {
	t.Rows = append(t.Rows, o.Rows...)
	t.Cols = append(t.Cols, o.Cols...)
	t.Vals = append(t.Vals, o.Vals...)
}

// ToCSR sums duplicates and drops exact zeros.
func (t *Triplets) ToCSR(rows, cols int) *sparse.CSR {
	return canonical(sparse.NewCOO(rows, cols, t.Rows, t.Cols, t.Vals).ToCSR())
}

// canonical accumulates every row through a sparse accumulator, so each
// column is stored once, and drops entries that summed to exactly zero.
// COO.ToCSR alone keeps repeats of the first entry of a row.
func canonical(m *sparse.CSR) *sparse.CSR {
	raw := m.RawMatrix()
	spa := sparse.NewSPA(raw.J)
	ia := make([]int, raw.I+1)
	ja := make([]int, 0, len(raw.Data))
	data := make([]float64, 0, len(raw.Data))
	for i := 0; i < raw.I; i++ {
		b, e := raw.Indptr[i], raw.Indptr[i+1]
		spa.Scatter(raw.Data[b:e], raw.Ind[b:e], 1, &ja)
		spa.GatherAndZero(&data, &ja)
		ia[i+1] = len(ja)
	}
	nz := 0
	for i := 0; i < raw.I; i++ {
		start := nz
		for k := ia[i]; k < ia[i+1]; k++ {
			if data[k] != 0 {
				ja[nz], data[nz] = ja[k], data[k]
				nz++
			}
		}
		ia[i] = start
	}
	ia[raw.I] = nz
	return sparse.NewCSR(raw.I, raw.J, ia, ja[:nz], data[:nz])
}

// assemble runs fn for every item, distributing contiguous item blocks over
// the workers, and merges the blocks in order.
func (a *Assembler) assemble(name string, items, rows, cols int, cost func(int) int,
	fn func(item int, out *Triplets) error) (*sparse.CSR, error) {
	start := time.Now()
	pb := &partitions.PartitionBuilder{NumRows: items, NumPartitions: a.Workers}
	if cost != nil && a.Workers > 1 {
		pb.Strategy = partitions.WeightedPartition
		pb.Weights = make([]int, items)
		for i := range pb.Weights {
			pb.Weights[i] = cost(i)
		}
	}
	layout, err := pb.BuildPartitions()
	if err != nil {
		return nil, err
	}
	blocks := make([]Triplets, layout.NumPartitions)
	var g errgroup.Group
	for p := range layout.Partitions {
		part := &layout.Partitions[p]
		out := &blocks[p]
		g.Go(func() error {
			for _, item := range part.Rows {
				if err := fn(item, out); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all Triplets
	for p := range blocks {
		all.appendAll(&blocks[p])
	}
	m := all.ToCSR(rows, cols)
	a.Logger.Debug("assembled operator",
		zap.String("op", name),
		zap.Int("rows", rows),
		zap.Int("cols", cols),
		zap.Int("nnz", m.NNZ()),
		zap.Int("blocks", layout.NumPartitions),
		zap.Duration("elapsed", time.Since(start)))
	return m, nil
}

// MulVec returns A x.
func MulVec(A *sparse.CSR, x []float64) []float64 {
	r, _ := A.Dims()
	y := make([]float64, r)
	A.MulVecTo(y, false, x)
	return y
}

// Transpose returns Aᵀ as a CSR matrix.
func Transpose(A *sparse.CSR) *sparse.CSR {
	return A.T().(*sparse.CSC).ToCSR()
}

// IsDiagonal reports whether every stored entry of A lies on the diagonal.
func IsDiagonal(A *sparse.CSR) bool {
	diag := true
	A.DoNonZero(func(i, j int, v float64) {
		if i != j {
			diag = false
		}
	})
	return diag
}

// DiagonalOf returns the diagonal of a square A.
func DiagonalOf(A *sparse.CSR) []float64 {
	r, _ := A.Dims()
	d := make([]float64, r)
	for i := range d {
		d[i] = A.At(i, i)
	}
	return d
}

// DiagonalMatrix returns diag(d).
func DiagonalMatrix(d []float64) *sparse.CSR {
	n := len(d)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return sparse.NewCOO(n, n, idx, append([]int(nil), idx...), append([]float64(nil), d...)).ToCSR()
}

// AddDiagonal returns A + diag(d) for a square A.
func AddDiagonal(A *sparse.CSR, d []float64) *sparse.CSR {
	var sum sparse.CSR
	sum.Add(A, DiagonalMatrix(d))
	return canonical(&sum)
}
