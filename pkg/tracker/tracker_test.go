package tracker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"partcache/pkg/cache"
	"partcache/pkg/metrics"
	"partcache/pkg/protocol"
	"partcache/pkg/types"
)

type call struct {
	kind      protocol.Kind
	dataset   types.DatasetID
	partition int
	host      types.HostID
}

// fakeCoordinator records calls instead of talking to a master
type fakeCoordinator struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeCoordinator) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.err
}

func (f *fakeCoordinator) RegisterDataset(_ context.Context, id types.DatasetID, n int) error {
	return f.record(call{kind: protocol.KindRegisterDataset, dataset: id, partition: n})
}

func (f *fakeCoordinator) AddedToCache(_ context.Context, id types.DatasetID, p int, h types.HostID) error {
	return f.record(call{kind: protocol.KindAddedToCache, dataset: id, partition: p, host: h})
}

func (f *fakeCoordinator) DroppedFromCache(_ context.Context, id types.DatasetID, p int, h types.HostID) error {
	return f.record(call{kind: protocol.KindDroppedFromCache, dataset: id, partition: p, host: h})
}

func (f *fakeCoordinator) HostLost(_ context.Context, h types.HostID) error {
	return f.record(call{kind: protocol.KindHostLost, host: h})
}

func (f *fakeCoordinator) Locations(context.Context) (protocol.Snapshot, error) {
	return protocol.Snapshot{}, f.record(call{kind: protocol.KindGetLocations})
}

func (f *fakeCoordinator) Stop(context.Context) error {
	return f.record(call{kind: protocol.KindStop})
}

func (f *fakeCoordinator) count(kind protocol.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

func (f *fakeCoordinator) find(kind protocol.Kind) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func newTestTracker(t *testing.T, c cache.Cache) (*Tracker, *fakeCoordinator) {
	t.Helper()
	coord := &fakeCoordinator{}
	tr := newTracker(c, "node-A", coord, nil)
	t.Cleanup(func() { _ = tr.Stop(context.Background()) })
	return tr, coord
}

func TestGetOrCompute_ConcurrentCallersComputeOnce(t *testing.T) {
	tr, coord := newTestTracker(t, cache.NewUnbounded())

	var computed atomic.Int32
	started := make(chan struct{})
	unblock := make(chan struct{})
	compute := func(context.Context) (any, error) {
		if computed.Add(1) == 1 {
			close(started)
		}
		<-unblock
		return []int{1, 2, 3}, nil
	}

	results := make([]any, 2)
	g, ctx := errgroup.WithContext(context.Background())
	for i := range results {
		i := i
		g.Go(func() error {
			v, err := tr.GetOrCompute(ctx, 5, 3, compute)
			results[i] = v
			return err
		})
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(unblock)
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), computed.Load())
	for _, v := range results {
		assert.Equal(t, []int{1, 2, 3}, v)
	}
	assert.Equal(t, []call{{kind: protocol.KindAddedToCache, dataset: 5, partition: 3, host: "node-A"}},
		coord.find(protocol.KindAddedToCache))
}

func TestGetOrCompute_CacheShortCircuit(t *testing.T) {
	tr, coord := newTestTracker(t, cache.NewUnbounded())
	ctx := context.Background()

	var computed int
	compute := func(context.Context) (any, error) {
		computed++
		return "value", nil
	}

	for i := 0; i < 3; i++ {
		v, err := tr.GetOrCompute(ctx, 1, 0, compute)
		require.NoError(t, err)
		assert.Equal(t, "value", v)
	}

	assert.Equal(t, 1, computed)
	assert.Equal(t, 1, coord.count(protocol.KindAddedToCache))
}

func TestGetOrCompute_ComputeErrorPropagates(t *testing.T) {
	tr, coord := newTestTracker(t, cache.NewUnbounded())
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := tr.GetOrCompute(ctx, 1, 0, func(context.Context) (any, error) {
		return nil, boom
	})
	require.Same(t, boom, err)
	assert.Zero(t, coord.count(protocol.KindAddedToCache))

	// the key was released and nothing was cached
	done := make(chan struct{})
	go func() {
		defer close(done)
		v, err := tr.GetOrCompute(ctx, 1, 0, func(context.Context) (any, error) { return 42, nil })
		assert.NoError(t, err)
		assert.Equal(t, 42, v)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second caller blocked on a failed computation")
	}
}

func TestGetOrCompute_PanicReleasesPendingKey(t *testing.T) {
	tr, _ := newTestTracker(t, cache.NewUnbounded())
	ctx := context.Background()

	assert.Panics(t, func() {
		_, _ = tr.GetOrCompute(ctx, 1, 0, func(context.Context) (any, error) { panic("compute") })
	})

	tr.mu.Lock()
	pending := len(tr.pending)
	tr.mu.Unlock()
	assert.Zero(t, pending)
}

func TestGetOrCompute_ReportFailureStillReturnsValue(t *testing.T) {
	tr, coord := newTestTracker(t, cache.NewUnbounded())
	coord.err = errors.New("unreachable")

	v, err := tr.GetOrCompute(context.Background(), 1, 0, func(context.Context) (any, error) { return "v", nil })
	require.Error(t, err)
	assert.Equal(t, "v", v)

	got, ok := tr.KeySpace().Get(cache.RawKey{Dataset: 1, Partition: 0})
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestRegisterDataset_LocallyDeduplicated(t *testing.T) {
	tr, coord := newTestTracker(t, cache.NewUnbounded())
	ctx := context.Background()

	require.NoError(t, tr.RegisterDataset(ctx, 5, 10))
	require.NoError(t, tr.RegisterDataset(ctx, 5, 20))
	require.NoError(t, tr.RegisterDataset(ctx, 6, 1))

	assert.Equal(t, 2, coord.count(protocol.KindRegisterDataset))
}

func TestRegisterDataset_FailureIsRetried(t *testing.T) {
	tr, coord := newTestTracker(t, cache.NewUnbounded())
	ctx := context.Background()

	coord.err = errors.New("down")
	require.Error(t, tr.RegisterDataset(ctx, 5, 10))

	coord.err = nil
	require.NoError(t, tr.RegisterDataset(ctx, 5, 10))
	assert.Equal(t, 2, coord.count(protocol.KindRegisterDataset))
}

func TestDrop_EvictsAndReports(t *testing.T) {
	tr, coord := newTestTracker(t, cache.NewUnbounded())
	ctx := context.Background()

	_, err := tr.GetOrCompute(ctx, 2, 1, func(context.Context) (any, error) { return "x", nil })
	require.NoError(t, err)

	require.NoError(t, tr.Drop(ctx, 2, 1))
	_, ok := tr.KeySpace().Get(cache.RawKey{Dataset: 2, Partition: 1})
	assert.False(t, ok)
	assert.Equal(t, []call{{kind: protocol.KindDroppedFromCache, dataset: 2, partition: 1, host: "node-A"}},
		coord.find(protocol.KindDroppedFromCache))
}

func TestEvictionsAreForwarded(t *testing.T) {
	c := cache.NewBounded(cache.BoundedOptions{
		MaxBytes: 100,
		SizeOf:   func(any) int64 { return 60 },
	})
	tr, coord := newTestTracker(t, c)
	ctx := context.Background()

	for p := 0; p < 2; p++ {
		_, err := tr.GetOrCompute(ctx, 5, p, func(context.Context) (any, error) { return p, nil })
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return coord.count(protocol.KindDroppedFromCache) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, call{kind: protocol.KindDroppedFromCache, dataset: 5, partition: 0, host: "node-A"},
		coord.find(protocol.KindDroppedFromCache)[0])
}

func TestEvictionsOfOtherSpacesAreIgnored(t *testing.T) {
	c := cache.NewBounded(cache.BoundedOptions{
		MaxBytes: 100,
		SizeOf:   func(any) int64 { return 60 },
	})
	_, coord := newTestTracker(t, c)

	other := cache.NewKeySpace(c)
	other.Put(cache.RawKey{Dataset: 1, Partition: 0}, "a")
	other.Put(cache.RawKey{Dataset: 1, Partition: 1}, "b")

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, coord.count(protocol.KindDroppedFromCache))
}

func TestWorkerStopLeavesCoordinatorRunning(t *testing.T) {
	coord := &fakeCoordinator{}
	tr := newTracker(cache.NewUnbounded(), "node-A", coord, nil)

	require.NoError(t, tr.Stop(context.Background()))
	require.NoError(t, tr.Stop(context.Background()))
	assert.Zero(t, coord.count(protocol.KindStop))
}

func TestNew_WorkerRequiresMasterAddr(t *testing.T) {
	_, err := New(cache.NewUnbounded(), Options{Host: "node-A"})
	require.Error(t, err)
}

func TestGetOrCompute_HitsAndMissesCountedOnce(t *testing.T) {
	prom := metrics.NewPrometheus("partcache")
	c := cache.NewBounded(cache.BoundedOptions{MaxBytes: 1 << 20, Metrics: prom})
	tr := newTracker(c, "node-A", &fakeCoordinator{}, prom)
	t.Cleanup(func() { _ = tr.Stop(context.Background()) })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := tr.GetOrCompute(ctx, 1, 0, func(context.Context) (any, error) { return "v", nil })
		require.NoError(t, err)
	}

	rr := httptest.NewRecorder()
	prom.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "partcache_cache_hits_total 1\n"), body)
	assert.True(t, strings.Contains(body, "partcache_cache_misses_total 1\n"), body)
}

func TestGetOrCompute_WeakEntryGoesWithoutReference(t *testing.T) {
	w := cache.NewWeak()
	tr, coord := newTestTracker(t, w)
	ctx := context.Background()

	for p := 0; p < 100; p++ {
		_, err := tr.GetOrCompute(ctx, 3, p, func(context.Context) (any, error) { return p, nil })
		require.NoError(t, err)
	}

	assert.Zero(t, w.Len())
	require.Eventually(t, func() bool {
		return coord.count(protocol.KindDroppedFromCache) == 100
	}, time.Second, 10*time.Millisecond)
}

func TestGetOrComputeRef_WeakEntryHeldUntilRelease(t *testing.T) {
	w := cache.NewWeak()
	tr, coord := newTestTracker(t, w)
	ctx := context.Background()

	var computed atomic.Int32
	compute := func(context.Context) (any, error) {
		computed.Add(1)
		return "part", nil
	}

	v, ref, err := tr.GetOrComputeRef(ctx, 3, 0, compute)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "part", v)
	assert.Equal(t, 1, w.Len())

	v, again, err := tr.GetOrComputeRef(ctx, 3, 0, compute)
	require.NoError(t, err)
	assert.Equal(t, "part", v)
	assert.Equal(t, int32(1), computed.Load())

	ref.Release()
	assert.Equal(t, 1, w.Len())
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, coord.count(protocol.KindDroppedFromCache))

	again.Release()
	assert.Zero(t, w.Len())
	require.Eventually(t, func() bool {
		return coord.count(protocol.KindDroppedFromCache) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, call{kind: protocol.KindDroppedFromCache, dataset: 3, partition: 0, host: "node-A"},
		coord.find(protocol.KindDroppedFromCache)[0])
}

func TestGetOrComputeRef_PlainCacheHasNoRef(t *testing.T) {
	tr, _ := newTestTracker(t, cache.NewUnbounded())

	v, ref, err := tr.GetOrComputeRef(context.Background(), 1, 0, func(context.Context) (any, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Nil(t, ref)
	ref.Release()

	_, ok := tr.KeySpace().Get(cache.RawKey{Dataset: 1, Partition: 0})
	assert.True(t, ok)
}

func TestForwardDrop_SkipsRecomputedPartition(t *testing.T) {
	tr, coord := newTestTracker(t, cache.NewUnbounded())
	raw := cache.RawKey{Dataset: 4, Partition: 2}

	// evicted and computed again before the queued drop went out
	tr.KeySpace().Put(raw, "fresh")
	require.NoError(t, tr.forwardDrop(raw))
	assert.Zero(t, coord.count(protocol.KindDroppedFromCache))

	tr.KeySpace().Evict(raw)
	require.NoError(t, tr.forwardDrop(raw))
	assert.Equal(t, 1, coord.count(protocol.KindDroppedFromCache))
}

func TestStop_ForgetsRegistrations(t *testing.T) {
	coord := &fakeCoordinator{}
	tr := newTracker(cache.NewUnbounded(), "node-A", coord, nil)
	ctx := context.Background()

	require.NoError(t, tr.RegisterDataset(ctx, 1, 4))
	require.NoError(t, tr.Stop(ctx))
	require.NoError(t, tr.RegisterDataset(ctx, 1, 4))
	assert.Equal(t, 2, coord.count(protocol.KindRegisterDataset))
}
