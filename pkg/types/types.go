package types

// DatasetID identifies a distributed dataset whose partitions may be cached.
type DatasetID int64

// HostID identifies a cluster node recorded as holding a cached partition.
type HostID string

// PartitionIndex is the position of a partition inside its dataset.
type PartitionIndex = int
