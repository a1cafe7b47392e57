package cache

import "sync"

// Weak retains a value only while someone holds a reference to it.
//
// Put hands one reference to the producer; it is returned with Disown.
// Acquire takes additional references which are returned with Ref.Release.
// When the last reference goes away the entry is dropped and eviction
// listeners are notified.
type Weak struct {
	mu        sync.Mutex
	entries   map[Key]*weakEntry
	listeners listeners
}

type weakEntry struct {
	value any
	refs  int
	owned bool
}

// Ref is a held reference to a Weak entry.
type Ref struct {
	w     *Weak
	key   Key
	entry *weakEntry
	once  sync.Once
}

func NewWeak() *Weak {
	return &Weak{entries: make(map[Key]*weakEntry)}
}

// Get peeks at a value without taking a reference.
func (w *Weak) Get(key Key) (any, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Put stores value holding the producer's reference. A previous entry under
// the same key is replaced; references to it become no-ops.
func (w *Weak) Put(key Key, value any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries[key] = &weakEntry{value: value, refs: 1, owned: true}
}

func (w *Weak) Evict(key Key) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entries, key)
}

// Acquire returns the value under key together with a reference that keeps
// it resident until released.
func (w *Weak) Acquire(key Key) (any, *Ref, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[key]
	if !ok {
		return nil, nil, false
	}
	e.refs++
	return e.value, &Ref{w: w, key: key, entry: e}, true
}

// Disown returns the producer's reference taken by Put.
func (w *Weak) Disown(key Key) {
	w.mu.Lock()
	e, ok := w.entries[key]
	if !ok || !e.owned {
		w.mu.Unlock()
		return
	}
	e.owned = false
	w.release(key, e)
}

// Release returns the reference. Calling it more than once, or on a nil
// Ref, is a no-op.
func (r *Ref) Release() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		r.w.mu.Lock()
		r.w.release(r.key, r.entry)
	})
}

// release is called with w.mu held and unlocks it.
func (w *Weak) release(key Key, e *weakEntry) {
	e.refs--
	if e.refs > 0 || w.entries[key] != e {
		w.mu.Unlock()
		return
	}
	delete(w.entries, key)
	fns := w.listeners.snapshot()
	w.mu.Unlock()

	notify(fns, []Key{key})
}

func (w *Weak) AddEvictionListener(fn EvictionListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners.add(fn)
}

func (w *Weak) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
