// Command demo runs a single-node master, caches one partition of a
// 100-element dataset split ten ways and prints the resulting locations.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"partcache/pkg/cache"
	"partcache/pkg/tracker"
	"partcache/pkg/types"
)

const (
	datasetID  types.DatasetID = 1
	elements                   = 100
	partitions                 = 10
)

// partition returns the numbers belonging to split idx of [0, elements).
func partition(idx int) tracker.ComputeFunc {
	return func(context.Context) (any, error) {
		per := elements / partitions
		out := make([]int, 0, per)
		for i := idx * per; i < (idx+1)*per; i++ {
			out = append(out, i)
		}
		slog.Info("computing partition", "dataset", datasetID, "partition", idx)
		return out, nil
	}
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(context.Background()); err != nil {
		slog.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	tr, err := tracker.New(cache.NewBounded(cache.BoundedOptions{}), tracker.Options{
		Master:     true,
		ListenAddr: "127.0.0.1:0",
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := tr.Stop(ctx); err != nil {
			slog.Error("stop tracker", "error", err)
		}
	}()

	if err := tr.RegisterDataset(ctx, datasetID, partitions); err != nil {
		return err
	}

	// the second call is served from the cache
	for i := 0; i < 2; i++ {
		v, err := tr.GetOrCompute(ctx, datasetID, 0, partition(0))
		if err != nil {
			return err
		}
		fmt.Println(v)
	}

	snap, err := tr.Locations(ctx)
	if err != nil {
		return err
	}
	for _, d := range snap {
		fmt.Printf("dataset %d:\n", d.Dataset)
		for idx, hosts := range d.Partitions {
			fmt.Printf("  partition %d: %v\n", idx, hosts)
		}
	}
	return nil
}
