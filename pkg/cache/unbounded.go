package cache

import "sync"

// Unbounded never evicts. Suitable for small, static namespaces.
type Unbounded struct {
	mu    sync.RWMutex
	items map[Key]any
}

func NewUnbounded() *Unbounded {
	return &Unbounded{items: make(map[Key]any)}
}

func (u *Unbounded) Get(key Key) (any, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	v, ok := u.items[key]
	return v, ok
}

func (u *Unbounded) Put(key Key, value any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.items[key] = value
}

func (u *Unbounded) Evict(key Key) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.items, key)
}

func (u *Unbounded) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.items)
}
