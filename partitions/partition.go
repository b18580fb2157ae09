// Package partitions splits the output rows of an operator into blocks that
// assemble independently. It does not partition the mesh itself.
package partitions

import (
	"fmt"
)

// Partition is a set of output rows assembled together by one worker
type Partition struct {
	ID int

	// Row membership, increasing
	Rows    []int
	NumRows int

	// Cost is the summed row weight
	Cost int
}

// PartitionLayout manages the complete row decomposition
type PartitionLayout struct {
	Partitions []Partition

	TotalRows     int
	NumPartitions int

	// Row to partition mapping
	RToP []int // Length TotalRows: row r belongs to partition RToP[r]
}

// GetPartition returns the partition containing row r
func (pl *PartitionLayout) GetPartition(row int) int {
	if row < 0 || row >= len(pl.RToP) {
		return -1
	}
	return pl.RToP[row]
}

// ValidateLayout checks that every row is owned exactly once
func (pl *PartitionLayout) ValidateLayout() error {
	if len(pl.Partitions) != pl.NumPartitions {
		return fmt.Errorf("%d partitions, layout records %d", len(pl.Partitions), pl.NumPartitions)
	}
	if len(pl.RToP) != pl.TotalRows {
		return fmt.Errorf("row map has %d entries for %d rows", len(pl.RToP), pl.TotalRows)
	}
	seen := make([]bool, pl.TotalRows)
	total := 0
	for _, p := range pl.Partitions {
		if p.NumRows != len(p.Rows) {
			return fmt.Errorf("partition %d: NumRows %d != %d rows", p.ID, p.NumRows, len(p.Rows))
		}
		for _, r := range p.Rows {
			if r < 0 || r >= pl.TotalRows {
				return fmt.Errorf("partition %d: row %d out of range", p.ID, r)
			}
			if seen[r] {
				return fmt.Errorf("partition %d: row %d already owned", p.ID, r)
			}
			if pl.RToP[r] != p.ID {
				return fmt.Errorf("partition %d: row %d mapped to %d", p.ID, r, pl.RToP[r])
			}
			seen[r] = true
		}
		total += p.NumRows
	}
	if total != pl.TotalRows {
		return fmt.Errorf("partitions own %d of %d rows", total, pl.TotalRows)
	}
	return nil
}

// Contiguous reports whether each partition is an unbroken run of rows, in
// partition order.
func (pl *PartitionLayout) Contiguous() bool {
	next := 0
	for _, p := range pl.Partitions {
		for _, r := range p.Rows {
			if r != next {
				return false
			}
			next++
		}
	}
	return true
}
