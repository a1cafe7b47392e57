// Package cache holds the node-local partition caches: the Cache contract,
// its eviction variants and KeySpace, which lets unrelated owners share one
// Cache without key collisions.
package cache

import "partcache/pkg/types"

// RawKey is a key as its owner sees it.
type RawKey struct {
	Dataset   types.DatasetID
	Partition types.PartitionIndex
}

// Key is a RawKey qualified by the key space it belongs to.
type Key struct {
	Space uint64
	RawKey
}

// Cache is the capability set every variant implements.
// Values are opaque; Get reports whether the key was present.
type Cache interface {
	Get(key Key) (any, bool)
	Put(key Key, value any)
	Evict(key Key)
}

// EvictionListener is told about entries removed by an eviction policy.
// Explicit Evict calls are not reported. Listeners run outside cache locks
// and must not block.
type EvictionListener func(key Key)

// Observable is implemented by caches that evict on their own.
type Observable interface {
	AddEvictionListener(fn EvictionListener)
}

// RefCounted is implemented by caches that keep an entry only while it is
// referenced. Put hands the producer a reference that Disown returns.
type RefCounted interface {
	Acquire(key Key) (any, *Ref, bool)
	Disown(key Key)
}

var _ RefCounted = (*Weak)(nil)

type listeners struct {
	fns []EvictionListener
}

func (l *listeners) add(fn EvictionListener) {
	l.fns = append(l.fns, fn)
}

// snapshot is taken under the owning cache's lock.
func (l *listeners) snapshot() []EvictionListener {
	if len(l.fns) == 0 {
		return nil
	}
	return append([]EvictionListener(nil), l.fns...)
}

func notify(fns []EvictionListener, evicted []Key) {
	for _, k := range evicted {
		for _, fn := range fns {
			fn(k)
		}
	}
}
