package cache

import (
	"log/slog"
	"sync"

	"partcache/pkg/clock"
	"partcache/pkg/metrics"
)

// DefaultMaxBytes is the capacity used when BoundedOptions.MaxBytes is zero.
const DefaultMaxBytes int64 = 512 * 1024 * 1024

type BoundedOptions struct {
	MaxBytes int64
	// SizeOf estimates an entry's footprint. Defaults to SizeOf.
	SizeOf  func(value any) int64
	Metrics metrics.Collector
}

// Bounded is an LRU cache limited by the total size estimate of its entries.
// The running total never exceeds MaxBytes; a single entry larger than
// MaxBytes is rejected instead of flushing the whole cache.
type Bounded struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	items    map[Key]*cacheItem
	head     *cacheItem // most recently used
	tail     *cacheItem
	ticks    clock.Sequence

	sizeOf    func(any) int64
	metrics   metrics.Collector
	listeners listeners
}

type cacheItem struct {
	key      Key
	value    any
	size     int64
	lastUsed uint64
	prev     *cacheItem
	next     *cacheItem
}

// NewBounded creates a capacity-bounded cache
func NewBounded(opts BoundedOptions) *Bounded {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.SizeOf == nil {
		opts.SizeOf = SizeOf
	}
	return &Bounded{
		maxBytes: opts.MaxBytes,
		items:    make(map[Key]*cacheItem),
		sizeOf:   opts.SizeOf,
		metrics:  metrics.OrNop(opts.Metrics),
	}
}

// Get retrieves a value and marks it as most recently used. Hits and misses
// are counted by the tracker.
func (b *Bounded) Get(key Key) (any, bool) {
	b.mu.Lock()
	item, found := b.items[key]
	if found {
		item.lastUsed = b.ticks.Next()
		b.moveToHead(item)
	}
	b.mu.Unlock()

	if !found {
		return nil, false
	}
	return item.value, true
}

// Put stores a value, evicting least recently used entries until it fits.
func (b *Bounded) Put(key Key, value any) {
	size := b.sizeOf(value)
	if size < 0 {
		size = 0
	}
	if size > b.maxBytes {
		slog.Warn("cache: entry exceeds capacity, not cached",
			"dataset", key.Dataset, "partition", key.Partition,
			"size", size, "max_bytes", b.maxBytes)
		b.metrics.IncCounter(metrics.CacheRejected, nil, 1)
		// the previous value under key is stale now
		b.Evict(key)
		return
	}

	b.mu.Lock()
	// replacing: the old size leaves the total before the new one enters
	if old, found := b.items[key]; found {
		b.remove(old)
		delete(b.items, key)
		b.curBytes -= old.size
	}

	var evicted []Key
	for b.curBytes+size > b.maxBytes && b.tail != nil {
		evicted = append(evicted, b.evictLRU())
	}

	item := &cacheItem{
		key:      key,
		value:    value,
		size:     size,
		lastUsed: b.ticks.Next(),
	}
	b.addToHead(item)
	b.items[key] = item
	b.curBytes += size

	used := b.curBytes
	fns := b.listeners.snapshot()
	b.mu.Unlock()

	b.metrics.SetGauge(metrics.CacheBytes, nil, float64(used))
	if len(evicted) > 0 {
		b.metrics.IncCounter(metrics.CacheEvictions, nil, float64(len(evicted)))
		notify(fns, evicted)
	}
}

// Evict drops key if present. Listeners are not notified.
func (b *Bounded) Evict(key Key) {
	b.mu.Lock()
	defer b.mu.Unlock()

	item, found := b.items[key]
	if !found {
		return
	}
	b.remove(item)
	delete(b.items, key)
	b.curBytes -= item.size
}

func (b *Bounded) AddEvictionListener(fn EvictionListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners.add(fn)
}

func (b *Bounded) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// UsedBytes is the sum of size estimates of resident entries.
func (b *Bounded) UsedBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.curBytes
}

func (b *Bounded) MaxBytes() int64 {
	return b.maxBytes
}

// Keys lists resident keys from most to least recently used.
func (b *Bounded) Keys() []Key {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make([]Key, 0, len(b.items))
	for it := b.head; it != nil; it = it.next {
		keys = append(keys, it.key)
	}
	return keys
}

// moveToHead moves an item to the head of the list
func (b *Bounded) moveToHead(item *cacheItem) {
	if item == b.head {
		return
	}
	b.remove(item)
	b.addToHead(item)
}

// remove detaches an item from the list
func (b *Bounded) remove(item *cacheItem) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		b.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		b.tail = item.prev
	}
	item.prev, item.next = nil, nil
}

// addToHead adds an item to the head of the list
func (b *Bounded) addToHead(item *cacheItem) {
	item.prev = nil
	item.next = b.head

	if b.head != nil {
		b.head.prev = item
	}
	b.head = item

	if b.tail == nil {
		b.tail = item
	}
}

// evictLRU removes the least recently used item and returns its key
func (b *Bounded) evictLRU() Key {
	victim := b.tail
	b.remove(victim)
	delete(b.items, victim.key)
	b.curBytes -= victim.size
	return victim.key
}
