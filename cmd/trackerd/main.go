package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	httpserver "partcache/internal/http"
	"partcache/pkg/cluster"
	"partcache/pkg/config"
	"partcache/pkg/metrics"
	"partcache/pkg/tracker"
	"partcache/pkg/types"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("trackerd failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := initConfig(configPath)
	if err != nil {
		return err
	}
	initLogger(&cfg)

	prom := metrics.NewPrometheus("partcache")

	c, closer, err := buildCache(cfg.Cache, prom)
	if err != nil {
		return fmt.Errorf("build cache: %w", err)
	}
	defer closer.Close()

	tr, err := tracker.New(c, tracker.Options{
		Master:         cfg.Node.Role == config.RoleMaster,
		MasterAddr:     cfg.Node.MasterAddr,
		ListenAddr:     cfg.Node.Listen,
		AdvertiseHost:  cfg.Node.Advertise,
		Host:           types.HostID(cfg.Node.Host),
		Timeout:        cfg.RPC.Timeout,
		Metrics:        prom,
		MetricsHandler: prom.Handler(),
	})
	if err != nil {
		return fmt.Errorf("start tracker: %w", err)
	}

	// workers expose no coordinator endpoint but still serve health and metrics
	var status *httpserver.Server
	if cfg.Node.Role != config.RoleMaster {
		status = httpserver.NewServer(nil, cfg.Node.Listen)
		status.SetAdvertiseHost(cfg.Node.Advertise)
		status.SetMetricsHandler(prom.Handler())
		if err := status.Start(); err != nil {
			return errors.Join(fmt.Errorf("start status server: %w", err), tr.Stop(context.Background()))
		}
	}

	slog.Info("trackerd running", "role", cfg.Node.Role, "host", tr.Host(), "master", tr.MasterAddr())

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Membership.Enabled() {
		membership, err := cluster.NewZKMembership(
			cfg.Membership.ZKServers, cfg.Membership.Root, tr.Host(), cfg.Membership.SessionTimeout)
		if err != nil {
			return errors.Join(err, tr.Stop(context.Background()))
		}
		defer membership.Close()

		if err := membership.RegisterSelf(); err != nil {
			return errors.Join(err, tr.Stop(context.Background()))
		}

		// only the coordinator's node turns departures into host loss
		if cfg.Node.Role == config.RoleMaster {
			g.Go(func() error {
				membership.RunWatch(gctx, tr)
				return nil
			})
		}
	}

	g.Go(func() error {
		<-gctx.Done()

		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		err := tr.Stop(stopCtx)
		if status != nil {
			err = errors.Join(err, status.Stop())
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("trackerd stopped")
	return nil
}
