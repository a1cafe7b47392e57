package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partcache/pkg/cache"
	"partcache/pkg/dberrors"
	"partcache/pkg/types"
)

func TestMasterAndWorker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	master, err := New(cache.NewUnbounded(), Options{
		Master:        true,
		ListenAddr:    "127.0.0.1:0",
		AdvertiseHost: "127.0.0.1",
		Host:          "node-A",
		Timeout:       5 * time.Second,
	})
	require.NoError(t, err)
	require.NotEmpty(t, master.MasterAddr())

	worker, err := New(cache.NewUnbounded(), Options{
		MasterAddr: master.MasterAddr(),
		Host:       "node-B",
		Timeout:    5 * time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, master.RegisterDataset(ctx, 5, 10))
	require.NoError(t, worker.RegisterDataset(ctx, 5, 10))

	snap, err := worker.Locations(ctx)
	require.NoError(t, err)
	d, ok := snap.Lookup(5)
	require.True(t, ok)
	assert.Len(t, d.Partitions, 10)

	compute := func(context.Context) (any, error) { return []int{1, 2, 3}, nil }
	_, err = master.GetOrCompute(ctx, 5, 3, compute)
	require.NoError(t, err)
	_, err = worker.GetOrCompute(ctx, 5, 3, compute)
	require.NoError(t, err)

	snap, err = master.Locations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.HostID{"node-A", "node-B"}, snap.Hosts(5, 3))

	require.NoError(t, master.ReportHostLost(ctx, "node-A"))
	require.NoError(t, worker.Drop(ctx, 5, 3))
	snap, err = worker.Locations(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Hosts(5, 3))

	require.NoError(t, worker.Stop(ctx))
	require.NoError(t, master.Stop(ctx))

	_, err = worker.Locations(ctx)
	assert.ErrorIs(t, err, dberrors.ErrTransport)
}
