package cache

import "testing"

func TestKeySpace_IsolatesOwners(t *testing.T) {
	shared := NewUnbounded()
	a := NewKeySpace(shared)
	b := NewKeySpace(shared)

	if a.ID() == b.ID() {
		t.Fatalf("key spaces must get distinct ids, both got %d", a.ID())
	}

	raw := RawKey{Dataset: 5, Partition: 3}
	a.Put(raw, "from-a")
	b.Put(raw, "from-b")

	if v, _ := a.Get(raw); v != "from-a" {
		t.Fatalf("expected from-a, got %v", v)
	}
	if v, _ := b.Get(raw); v != "from-b" {
		t.Fatalf("expected from-b, got %v", v)
	}
	if shared.Len() != 2 {
		t.Fatalf("expected 2 entries in shared cache, got %d", shared.Len())
	}

	a.Evict(raw)
	if _, ok := a.Get(raw); ok {
		t.Fatal("expected a's entry to be evicted")
	}
	if _, ok := b.Get(raw); !ok {
		t.Fatal("evicting a's key must not touch b's")
	}
}

func TestKeySpace_RewritesKeys(t *testing.T) {
	shared := NewUnbounded()
	ks := NewKeySpace(shared)

	raw := RawKey{Dataset: 1, Partition: 2}
	ks.Put(raw, 42)

	if _, ok := shared.Get(Key{Space: ks.ID(), RawKey: raw}); !ok {
		t.Fatal("expected the key to be stored under the space id")
	}
	if !ks.Owns(ks.Key(raw)) {
		t.Fatal("expected key space to own its keys")
	}
}

func TestKeySpace_OnEvictFiltersBySpace(t *testing.T) {
	shared := NewBounded(BoundedOptions{MaxBytes: 2, SizeOf: fixedSize(1)})
	a := NewKeySpace(shared)
	b := NewKeySpace(shared)

	var evictedA []RawKey
	if !a.OnEvict(func(raw RawKey) { evictedA = append(evictedA, raw) }) {
		t.Fatal("bounded cache must support eviction listeners")
	}

	b.Put(RawKey{Dataset: 1}, 1)
	a.Put(RawKey{Dataset: 2}, 2)
	a.Put(RawKey{Dataset: 3}, 3) // evicts b's entry
	b.Put(RawKey{Dataset: 4}, 4) // evicts a's dataset 2

	if len(evictedA) != 1 || evictedA[0].Dataset != 2 {
		t.Fatalf("expected only a's dataset 2 eviction, got %v", evictedA)
	}
}

func TestKeySpace_OnEvictUnsupported(t *testing.T) {
	ks := NewKeySpace(NewUnbounded())
	if ks.OnEvict(func(RawKey) {}) {
		t.Fatal("unbounded cache never evicts, OnEvict must report false")
	}
}

func TestKeySpace_AcquireOnWeak(t *testing.T) {
	w := NewWeak()
	ks := NewKeySpace(w)
	if !ks.RefCounted() {
		t.Fatal("weak cache must be reported as reference counted")
	}

	raw := RawKey{Dataset: 1, Partition: 0}
	ks.Put(raw, "v")
	v, ref, ok := ks.Acquire(raw)
	if !ok || v != "v" || ref == nil {
		t.Fatalf("unexpected acquire result %v %v %v", v, ref, ok)
	}

	ks.Disown(raw)
	if w.Len() != 1 {
		t.Fatal("entry must stay while a reference is held")
	}
	ref.Release()
	if w.Len() != 0 {
		t.Fatal("entry must go with its last reference")
	}
}

func TestKeySpace_AcquireOnPlainCache(t *testing.T) {
	ks := NewKeySpace(NewUnbounded())
	if ks.RefCounted() {
		t.Fatal("unbounded cache does not count references")
	}

	raw := RawKey{Dataset: 1, Partition: 0}
	ks.Put(raw, "v")
	v, ref, ok := ks.Acquire(raw)
	if !ok || v != "v" || ref != nil {
		t.Fatalf("unexpected acquire result %v %v %v", v, ref, ok)
	}
	ref.Release()
	ks.Disown(raw)
	if _, ok := ks.Get(raw); !ok {
		t.Fatal("disown must not touch a plain cache")
	}
}
