package rpc

import (
	"context"

	"partcache/pkg/protocol"
	"partcache/pkg/types"
)

// Coordinator defines the calls a node makes against the master.
type Coordinator interface {
	RegisterDataset(ctx context.Context, id types.DatasetID, numPartitions int) error
	AddedToCache(ctx context.Context, id types.DatasetID, partition int, host types.HostID) error
	DroppedFromCache(ctx context.Context, id types.DatasetID, partition int, host types.HostID) error
	HostLost(ctx context.Context, host types.HostID) error
	Locations(ctx context.Context) (protocol.Snapshot, error)
	Stop(ctx context.Context) error
}

var _ Coordinator = (*Client)(nil)
