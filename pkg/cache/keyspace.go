package cache

import "partcache/pkg/clock"

// process-wide source of namespace ids
var spaceIDs clock.Sequence

// KeySpace is a view of a shared Cache in which every key is prefixed with
// the space id. Any number of KeySpaces may share one Cache.
type KeySpace struct {
	cache Cache
	id    uint64
}

// NewKeySpace allocates a fresh namespace id and binds it to c.
func NewKeySpace(c Cache) *KeySpace {
	return &KeySpace{cache: c, id: spaceIDs.Next()}
}

func (ks *KeySpace) ID() uint64 {
	return ks.id
}

func (ks *KeySpace) Key(raw RawKey) Key {
	return Key{Space: ks.id, RawKey: raw}
}

// Owns reports whether key was produced by this key space.
func (ks *KeySpace) Owns(key Key) bool {
	return key.Space == ks.id
}

func (ks *KeySpace) Get(raw RawKey) (any, bool) {
	return ks.cache.Get(ks.Key(raw))
}

func (ks *KeySpace) Put(raw RawKey, value any) {
	ks.cache.Put(ks.Key(raw), value)
}

func (ks *KeySpace) Evict(raw RawKey) {
	ks.cache.Evict(ks.Key(raw))
}

// OnEvict subscribes fn to policy evictions of this space's keys. It returns
// false when the underlying cache never evicts on its own.
func (ks *KeySpace) OnEvict(fn func(raw RawKey)) bool {
	obs, ok := ks.cache.(Observable)
	if !ok {
		return false
	}
	obs.AddEvictionListener(func(key Key) {
		if ks.Owns(key) {
			fn(key.RawKey)
		}
	})
	return true
}

// RefCounted reports whether the underlying cache only keeps referenced
// entries.
func (ks *KeySpace) RefCounted() bool {
	_, ok := ks.cache.(RefCounted)
	return ok
}

// Acquire takes a reference on a resident entry. On caches that do not
// count references it behaves like Get and returns a nil Ref.
func (ks *KeySpace) Acquire(raw RawKey) (any, *Ref, bool) {
	rc, ok := ks.cache.(RefCounted)
	if !ok {
		v, found := ks.Get(raw)
		return v, nil, found
	}
	return rc.Acquire(ks.Key(raw))
}

// Disown returns the reference Put handed to the producer.
func (ks *KeySpace) Disown(raw RawKey) {
	if rc, ok := ks.cache.(RefCounted); ok {
		rc.Disown(ks.Key(raw))
	}
}
