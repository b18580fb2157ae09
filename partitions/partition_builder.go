package partitions

import (
	"fmt"
	"math"
)

// PartitionBuilder constructs row partitions for parallel assembly
type PartitionBuilder struct {
	NumRows int

	// Weights is the assembly cost of each row, nil for unit cost
	Weights []int

	// Partitioning parameters
	NumPartitions       int // Fixed partition count, 0 to derive from TargetPartitionSize
	TargetPartitionSize int // Desired rows per partition
	Strategy            PartitionStrategy
}

// PartitionStrategy defines how rows are grouped
type PartitionStrategy int

const (
	BlockPartition    PartitionStrategy = iota // Consecutive rows, equal counts
	WeightedPartition                          // Consecutive rows, balanced by weight
	RoundRobin                                 // Distribute cyclically
)

func (s PartitionStrategy) String() string {
	switch s {
	case BlockPartition:
		return "block"
	case WeightedPartition:
		return "weighted"
	case RoundRobin:
		return "round-robin"
	}
	return fmt.Sprintf("PartitionStrategy(%d)", int(s))
}

// BuildPartitions creates a partition layout for the rows
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.NumRows < 0 {
		return nil, fmt.Errorf("negative row count %d", pb.NumRows)
	}
	if pb.Weights != nil && len(pb.Weights) != pb.NumRows {
		return nil, fmt.Errorf("%d weights for %d rows", len(pb.Weights), pb.NumRows)
	}
	numPartitions := pb.calculateNumPartitions()

	rToP := pb.partitionRows(numPartitions)

	layout := &PartitionLayout{
		Partitions:    pb.createPartitions(rToP, numPartitions),
		TotalRows:     pb.NumRows,
		NumPartitions: numPartitions,
		RToP:          rToP,
	}

	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	return layout, nil
}

// calculateNumPartitions determines the partition count, never more than
// there are rows and never less than one
func (pb *PartitionBuilder) calculateNumPartitions() int {
	n := pb.NumPartitions
	if n <= 0 && pb.TargetPartitionSize > 0 {
		n = int(math.Ceil(float64(pb.NumRows) / float64(pb.TargetPartitionSize)))
	}
	if n > pb.NumRows {
		n = pb.NumRows
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (pb *PartitionBuilder) weight(r int) int {
	if pb.Weights == nil {
		return 1
	}
	return pb.Weights[r]
}

// partitionRows assigns rows to partitions
func (pb *PartitionBuilder) partitionRows(numPartitions int) []int {
	rToP := make([]int, pb.NumRows)

	switch pb.Strategy {
	case RoundRobin:
		for r := range rToP {
			rToP[r] = r % numPartitions
		}

	case WeightedPartition:
		total := 0
		for r := 0; r < pb.NumRows; r++ {
			total += pb.weight(r)
		}
		target := float64(total) / float64(numPartitions)
		p, acc := 0, 0
		for r := range rToP {
			// close the block once its share is met, leaving a row for each
			// remaining block
			if r > 0 && p < numPartitions-1 && float64(acc) >= target*float64(p+1) &&
				pb.NumRows-r >= numPartitions-p-1 {
				p++
			}
			rToP[r] = p
			acc += pb.weight(r)
		}

	default:
		rowsPerPartition := int(math.Ceil(float64(pb.NumRows) / float64(numPartitions)))
		for r := range rToP {
			rToP[r] = r / rowsPerPartition
			if rToP[r] >= numPartitions {
				rToP[r] = numPartitions - 1
			}
		}
	}

	return rToP
}

// createPartitions builds partition structures from row assignments
func (pb *PartitionBuilder) createPartitions(rToP []int, numPartitions int) []Partition {
	partitions := make([]Partition, numPartitions)
	for i := range partitions {
		partitions[i] = Partition{ID: i, Rows: make([]int, 0)}
	}
	for row, part := range rToP {
		partitions[part].Rows = append(partitions[part].Rows, row)
		partitions[part].NumRows++
		partitions[part].Cost += pb.weight(row)
	}
	return partitions
}

// PartitionStatistics computes load balance metrics
func (pl *PartitionLayout) PartitionStatistics() PartitionStats {
	stats := PartitionStats{
		NumPartitions: pl.NumPartitions,
		MinRows:       math.MaxInt32,
		MaxRows:       0,
		AvgRows:       float64(pl.TotalRows) / float64(pl.NumPartitions),
	}
	for _, p := range pl.Partitions {
		if p.NumRows < stats.MinRows {
			stats.MinRows = p.NumRows
		}
		if p.NumRows > stats.MaxRows {
			stats.MaxRows = p.NumRows
		}
	}
	if stats.AvgRows > 0 {
		stats.Imbalance = float64(stats.MaxRows) / stats.AvgRows
	}
	return stats
}

type PartitionStats struct {
	NumPartitions int
	MinRows       int
	MaxRows       int
	AvgRows       float64
	Imbalance     float64 // MaxRows / AvgRows
}
