package types

// PartitionStrategy defines how rows of a table are spread over its partitions.
type PartitionStrategy string

const (
	// StrategyHash routes a row by murmur3 hash of its id (modulo partition count)
	StrategyHash PartitionStrategy = "hash"
	// StrategyRange routes contiguous id ranges to the same partition
	StrategyRange PartitionStrategy = "range"
)

// PartitionConfig holds configuration for routing rows to partitions.
type PartitionConfig struct {
	// Strategy is the partitioning strategy to use
	Strategy PartitionStrategy `json:"strategy" yaml:"strategy"`

	// Count is the number of partitions of each table (>= 1)
	Count int `json:"count" yaml:"count"`
}
