package cache

import (
	"sync/atomic"
	"testing"
)

func TestPressure_KeepsEverythingWithoutSignal(t *testing.T) {
	p := NewPressure(PressureOptions{SizeOf: fixedSize(100)})
	for i := 0; i < 50; i++ {
		p.Put(key(0, i), i)
	}
	if p.Len() != 50 {
		t.Fatalf("expected 50 entries, got %d", p.Len())
	}
	if p.UsedBytes() != 5000 {
		t.Fatalf("expected 5000 bytes, got %d", p.UsedBytes())
	}
}

func TestPressure_ShedsOldestOnSignal(t *testing.T) {
	var underPressure atomic.Bool
	p := NewPressure(PressureOptions{
		Signal:       underPressure.Load,
		ShedFraction: 0.5,
		SizeOf:       fixedSize(10),
	})

	var evicted []Key
	p.AddEvictionListener(func(k Key) { evicted = append(evicted, k) })

	for i := 0; i < 4; i++ {
		p.Put(key(0, i), i)
	}
	p.Get(key(0, 0)) // 0 is now most recent

	underPressure.Store(true)
	p.Put(key(0, 4), 4) // 50 bytes resident, shed down to 25

	if p.UsedBytes() > 25 {
		t.Fatalf("expected at most 25 bytes after shedding, got %d", p.UsedBytes())
	}
	for _, k := range []Key{key(0, 0), key(0, 4)} {
		if _, ok := p.Get(k); !ok {
			t.Fatalf("recent key %v must survive", k)
		}
	}
	if len(evicted) != 3 || evicted[0] != key(0, 1) {
		t.Fatalf("expected oldest keys shed first, got %v", evicted)
	}
}

func TestPressure_ReplaceAdjustsSize(t *testing.T) {
	p := NewPressure(PressureOptions{SizeOf: bytesSize})
	k := key(0, 1)
	p.Put(k, make([]byte, 30))
	p.Put(k, make([]byte, 5))
	if p.UsedBytes() != 5 {
		t.Fatalf("expected 5 bytes, got %d", p.UsedBytes())
	}
	p.Evict(k)
	if p.UsedBytes() != 0 || p.Len() != 0 {
		t.Fatal("expected empty cache")
	}
}

func TestHeapPressure(t *testing.T) {
	if !HeapPressure(0)() {
		t.Fatal("a running program always has heap above zero bytes")
	}
	if HeapPressure(^uint64(0))() {
		t.Fatal("heap cannot exceed max uint64")
	}
}
