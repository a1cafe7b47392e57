package cache

import (
	"container/list"
	"runtime"
	"sync"

	"partcache/pkg/metrics"
)

// DefaultShedFraction is the share of resident bytes released per pressure signal.
const DefaultShedFraction = 0.5

// PressureFunc reports whether the host is under memory pressure.
type PressureFunc func() bool

type PressureOptions struct {
	// Signal is polled after every Put. Nil means only explicit Relieve calls evict.
	Signal       PressureFunc
	ShedFraction float64
	SizeOf       func(value any) int64
	Metrics      metrics.Collector
}

// Pressure keeps everything until the host signals memory pressure, then
// sheds least recently used entries.
type Pressure struct {
	mu    sync.Mutex
	ll    *list.List
	items map[Key]*list.Element
	used  int64

	signal    PressureFunc
	shed      float64
	sizeOf    func(any) int64
	metrics   metrics.Collector
	listeners listeners
}

type pressureEntry struct {
	key   Key
	value any
	size  int64
}

func NewPressure(opts PressureOptions) *Pressure {
	if opts.ShedFraction <= 0 || opts.ShedFraction > 1 {
		opts.ShedFraction = DefaultShedFraction
	}
	if opts.SizeOf == nil {
		opts.SizeOf = SizeOf
	}
	return &Pressure{
		ll:      list.New(),
		items:   make(map[Key]*list.Element),
		signal:  opts.Signal,
		shed:    opts.ShedFraction,
		sizeOf:  opts.SizeOf,
		metrics: metrics.OrNop(opts.Metrics),
	}
}

// HeapPressure signals pressure once the Go heap grows past limit bytes.
func HeapPressure(limit uint64) PressureFunc {
	return func() bool {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return ms.HeapAlloc > limit
	}
}

func (p *Pressure) Get(key Key) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ele, ok := p.items[key]
	if !ok {
		return nil, false
	}
	p.ll.MoveToFront(ele)
	return ele.Value.(*pressureEntry).value, true
}

func (p *Pressure) Put(key Key, value any) {
	size := p.sizeOf(value)
	if size < 0 {
		size = 0
	}

	p.mu.Lock()
	if ele, ok := p.items[key]; ok {
		e := ele.Value.(*pressureEntry)
		p.used += size - e.size
		e.value, e.size = value, size
		p.ll.MoveToFront(ele)
	} else {
		p.items[key] = p.ll.PushFront(&pressureEntry{key: key, value: value, size: size})
		p.used += size
	}
	p.mu.Unlock()

	if p.signal != nil && p.signal() {
		p.Relieve()
	}
}

func (p *Pressure) Evict(key Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ele, ok := p.items[key]; ok {
		p.removeElement(ele)
	}
}

// Relieve sheds the configured fraction of resident bytes, oldest first.
// It is the hook for platform-specific memory pressure callbacks.
func (p *Pressure) Relieve() {
	p.mu.Lock()
	target := int64(float64(p.used) * (1 - p.shed))
	var evicted []Key
	for p.used > target && p.ll.Len() > 0 {
		ele := p.ll.Back()
		evicted = append(evicted, ele.Value.(*pressureEntry).key)
		p.removeElement(ele)
	}
	used := p.used
	fns := p.listeners.snapshot()
	p.mu.Unlock()

	p.metrics.SetGauge(metrics.CacheBytes, nil, float64(used))
	if len(evicted) > 0 {
		p.metrics.IncCounter(metrics.CacheEvictions, nil, float64(len(evicted)))
		notify(fns, evicted)
	}
}

func (p *Pressure) AddEvictionListener(fn EvictionListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners.add(fn)
}

func (p *Pressure) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ll.Len()
}

func (p *Pressure) UsedBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used
}

// removeElement is called with p.mu held.
func (p *Pressure) removeElement(ele *list.Element) {
	p.ll.Remove(ele)
	e := ele.Value.(*pressureEntry)
	delete(p.items, e.key)
	p.used -= e.size
}
