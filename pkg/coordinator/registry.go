package coordinator

import (
	"fmt"
	"sort"

	"github.com/zhangyunhao116/skipmap"

	"partcache/pkg/dberrors"
	"partcache/pkg/protocol"
	"partcache/pkg/types"
)

type hostSet map[types.HostID]struct{}

type datasetEntry struct {
	partitions []hostSet
}

// Registry maps each registered dataset to per-partition sets of hosts.
//
// Mutations are not synchronised beyond the ordered dataset table: the
// Service loop is the only writer.
type Registry struct {
	datasets *skipmap.FuncMap[types.DatasetID, *datasetEntry]
}

func NewRegistry() *Registry {
	return &Registry{
		datasets: skipmap.NewFunc[types.DatasetID, *datasetEntry](func(a, b types.DatasetID) bool {
			return a < b
		}),
	}
}

// Register creates numPartitions empty location sets for id. Registering a
// known dataset is a no-op and keeps its partition count and locations.
func (r *Registry) Register(id types.DatasetID, numPartitions int) (bool, error) {
	if numPartitions < 0 {
		return false, fmt.Errorf("%w: dataset %d: negative partition count %d",
			dberrors.ErrInvalidArgument, id, numPartitions)
	}

	entry := &datasetEntry{partitions: make([]hostSet, numPartitions)}
	for i := range entry.partitions {
		entry.partitions[i] = make(hostSet)
	}
	_, loaded := r.datasets.LoadOrStore(id, entry)
	return !loaded, nil
}

// Add records host as holding the partition. Adding twice is a no-op.
func (r *Registry) Add(id types.DatasetID, partition int, host types.HostID) error {
	set, err := r.partition(id, partition)
	if err != nil {
		return err
	}
	set[host] = struct{}{}
	return nil
}

// Drop forgets host for the partition. Dropping an absent host is a no-op.
func (r *Registry) Drop(id types.DatasetID, partition int, host types.HostID) error {
	set, err := r.partition(id, partition)
	if err != nil {
		return err
	}
	delete(set, host)
	return nil
}

// HostLost removes host from every partition of every dataset and returns
// how many locations were forgotten.
func (r *Registry) HostLost(host types.HostID) int {
	removed := 0
	r.datasets.Range(func(_ types.DatasetID, entry *datasetEntry) bool {
		for _, set := range entry.partitions {
			if _, ok := set[host]; ok {
				delete(set, host)
				removed++
			}
		}
		return true
	})
	return removed
}

// Snapshot deep-copies the registry. Datasets come in id order, hosts of a
// partition in lexical order.
func (r *Registry) Snapshot() protocol.Snapshot {
	snap := make(protocol.Snapshot, 0, r.datasets.Len())
	r.datasets.Range(func(id types.DatasetID, entry *datasetEntry) bool {
		locs := protocol.DatasetLocations{
			Dataset:    id,
			Partitions: make([][]types.HostID, len(entry.partitions)),
		}
		for i, set := range entry.partitions {
			hosts := make([]types.HostID, 0, len(set))
			for h := range set {
				hosts = append(hosts, h)
			}
			sort.Slice(hosts, func(a, b int) bool { return hosts[a] < hosts[b] })
			locs.Partitions[i] = hosts
		}
		snap = append(snap, locs)
		return true
	})
	return snap
}

// Len returns the number of registered datasets.
func (r *Registry) Len() int {
	return r.datasets.Len()
}

func (r *Registry) partition(id types.DatasetID, partition int) (hostSet, error) {
	entry, ok := r.datasets.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", dberrors.ErrUnknownDataset, id)
	}
	if partition < 0 || partition >= len(entry.partitions) {
		return nil, fmt.Errorf("%w: dataset %d has %d partitions, got %d",
			dberrors.ErrPartitionOutOfRange, id, len(entry.partitions), partition)
	}
	return entry.partitions[partition], nil
}
