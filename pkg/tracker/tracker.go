// Package tracker is the per-node side of the partition cache tracker. A
// Tracker computes partitions at most once per node, keeps them in a shared
// cache and tells the coordinator which hosts hold what.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"partcache/pkg/cache"
	"partcache/pkg/listener"
	"partcache/pkg/metrics"
	"partcache/pkg/protocol"
	"partcache/pkg/rpc"
	"partcache/pkg/types"
)

const dropQueueSize = 1024

// ComputeFunc materialises one partition. Its error is returned verbatim
// by GetOrCompute and nothing is cached.
type ComputeFunc func(ctx context.Context) (any, error)

type Tracker struct {
	host    types.HostID
	space   *cache.KeySpace
	coord   rpc.Coordinator
	metrics metrics.Collector

	// regMu is held across the registration RPC so a dataset is reported once
	regMu      sync.Mutex
	registered map[types.DatasetID]struct{}

	mu      sync.Mutex
	cond    *sync.Cond
	pending map[cache.RawKey]struct{}

	drops   chan cache.RawKey
	dropper *listener.Listener[cache.RawKey]

	master   *master
	stopOnce sync.Once
	stopErr  error
}

func newTracker(c cache.Cache, host types.HostID, coord rpc.Coordinator, m metrics.Collector) *Tracker {
	t := &Tracker{
		host:       host,
		space:      cache.NewKeySpace(c),
		coord:      coord,
		metrics:    metrics.OrNop(m),
		registered: make(map[types.DatasetID]struct{}),
		pending:    make(map[cache.RawKey]struct{}),
		drops:      make(chan cache.RawKey, dropQueueSize),
	}
	t.cond = sync.NewCond(&t.mu)

	if t.space.OnEvict(t.enqueueDrop) {
		t.dropper = listener.New("drop-forwarder", t.drops, t.forwardDrop)
		t.dropper.Start(context.Background())
	}
	return t
}

// Host is the identity this node reports to the coordinator.
func (t *Tracker) Host() types.HostID {
	return t.host
}

// KeySpace is the namespace of the shared cache owned by this tracker.
func (t *Tracker) KeySpace() *cache.KeySpace {
	return t.space
}

// MasterAddr is the published coordinator address this tracker talks to.
func (t *Tracker) MasterAddr() string {
	if c, ok := t.coord.(*rpc.Client); ok {
		return c.BaseURL()
	}
	return ""
}

// RegisterDataset announces a dataset to the coordinator. Repeated calls for
// an id this node already registered do not reach the coordinator.
func (t *Tracker) RegisterDataset(ctx context.Context, id types.DatasetID, numPartitions int) error {
	t.regMu.Lock()
	defer t.regMu.Unlock()

	if _, ok := t.registered[id]; ok {
		return nil
	}
	if err := t.coord.RegisterDataset(ctx, id, numPartitions); err != nil {
		return fmt.Errorf("register dataset %d: %w", id, err)
	}
	t.registered[id] = struct{}{}

	slog.Info("dataset registered", "dataset", id, "partitions", numPartitions, "host", t.host)
	return nil
}

// GetOrCompute returns the cached partition or computes it. Concurrent
// callers for the same partition wait for the one computing it and then
// retry the cache. When the coordinator cannot be told about a fresh value
// the value is still returned, along with the error.
//
// Nothing is pinned: on a reference counted cache the entry goes away as
// soon as no other reference holds it. Use GetOrComputeRef there.
func (t *Tracker) GetOrCompute(
	ctx context.Context,
	id types.DatasetID,
	partition types.PartitionIndex,
	compute ComputeFunc,
) (any, error) {
	v, _, err := t.getOrCompute(ctx, id, partition, compute, false)
	return v, err
}

// GetOrComputeRef is GetOrCompute that also takes a reference on the
// entry. On a reference counted cache (cache.Weak) the partition stays
// resident until the returned Ref is released. On other caches the Ref is
// nil; releasing it is still safe.
func (t *Tracker) GetOrComputeRef(
	ctx context.Context,
	id types.DatasetID,
	partition types.PartitionIndex,
	compute ComputeFunc,
) (any, *cache.Ref, error) {
	return t.getOrCompute(ctx, id, partition, compute, true)
}

func (t *Tracker) getOrCompute(
	ctx context.Context,
	id types.DatasetID,
	partition types.PartitionIndex,
	compute ComputeFunc,
	pin bool,
) (any, *cache.Ref, error) {
	key := cache.RawKey{Dataset: id, Partition: partition}

	t.mu.Lock()
	for t.isPending(key) {
		t.cond.Wait()
	}
	if v, ref, ok := t.lookup(key, pin); ok {
		t.mu.Unlock()
		t.metrics.IncCounter(metrics.CacheHits, nil, 1)
		slog.Debug("partition cache hit", "dataset", id, "partition", partition)
		return v, ref, nil
	}
	t.pending[key] = struct{}{}
	t.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.pending, key)
			t.cond.Broadcast()
			t.mu.Unlock()
		})
	}
	defer release()

	t.metrics.IncCounter(metrics.CacheMisses, nil, 1)

	start := time.Now()
	v, err := compute(ctx)
	t.metrics.IncCounter(metrics.Computations, nil, 1)
	t.metrics.ObserveHistogram(metrics.ComputeSeconds, nil, time.Since(start).Seconds())
	if err != nil {
		return nil, nil, err
	}

	t.space.Put(key, v)
	var ref *cache.Ref
	if pin {
		_, ref, _ = t.space.Acquire(key)
	}
	release()

	err = t.coord.AddedToCache(ctx, id, partition, t.host)
	// the producer reference goes after the report, so an eviction it
	// triggers reaches the coordinator after the addition
	t.space.Disown(key)
	if err != nil {
		return v, ref, fmt.Errorf("report partition %d/%d cached: %w", id, partition, err)
	}
	return v, ref, nil
}

// lookup is called with t.mu held.
func (t *Tracker) lookup(key cache.RawKey, pin bool) (any, *cache.Ref, bool) {
	if pin {
		return t.space.Acquire(key)
	}
	v, ok := t.space.Get(key)
	return v, nil, ok
}

func (t *Tracker) isPending(key cache.RawKey) bool {
	_, ok := t.pending[key]
	return ok
}

// Drop removes a partition from the local cache and withdraws this host
// from its locations.
func (t *Tracker) Drop(ctx context.Context, id types.DatasetID, partition types.PartitionIndex) error {
	t.space.Evict(cache.RawKey{Dataset: id, Partition: partition})

	if err := t.coord.DroppedFromCache(ctx, id, partition, t.host); err != nil {
		return fmt.Errorf("report partition %d/%d dropped: %w", id, partition, err)
	}
	return nil
}

// ReportHostLost withdraws host from every partition it was recorded for.
func (t *Tracker) ReportHostLost(ctx context.Context, host types.HostID) error {
	if err := t.coord.HostLost(ctx, host); err != nil {
		return fmt.Errorf("report host %s lost: %w", host, err)
	}
	return nil
}

// Locations fetches a full copy of the coordinator's registry.
func (t *Tracker) Locations(ctx context.Context) (protocol.Snapshot, error) {
	return t.coord.Locations(ctx)
}

// Stop releases local resources. A tracker owning the coordinator also
// stops it; workers leave it running. Registrations are forgotten, so a
// later RegisterDataset reaches the coordinator again.
func (t *Tracker) Stop(ctx context.Context) error {
	t.stopOnce.Do(func() {
		if t.dropper != nil {
			t.dropper.Stop()
		}

		t.regMu.Lock()
		clear(t.registered)
		t.regMu.Unlock()

		if t.master != nil {
			t.stopErr = t.master.stop(ctx, t.coord)
		}
	})
	return t.stopErr
}

// enqueueDrop runs on the evicting goroutine and must not block.
func (t *Tracker) enqueueDrop(raw cache.RawKey) {
	select {
	case t.drops <- raw:
	default:
		slog.Warn("drop queue full, coordinator not told about eviction",
			"dataset", raw.Dataset, "partition", raw.Partition)
	}
}

func (t *Tracker) forwardDrop(raw cache.RawKey) error {
	// recomputed since the eviction: its AddedToCache already went out
	if _, ok := t.space.Get(raw); ok {
		return nil
	}

	t.metrics.IncCounter(metrics.DropNotifications, nil, 1)
	if err := t.coord.DroppedFromCache(context.Background(), raw.Dataset, raw.Partition, t.host); err != nil {
		return fmt.Errorf("forward eviction of %d/%d: %w", raw.Dataset, raw.Partition, err)
	}
	return nil
}

func defaultHost() types.HostID {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "localhost"
	}
	return types.HostID(name)
}
