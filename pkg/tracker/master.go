package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	httpserver "partcache/internal/http"
	"partcache/pkg/cache"
	"partcache/pkg/coordinator"
	"partcache/pkg/dberrors"
	"partcache/pkg/metrics"
	"partcache/pkg/rpc"
	"partcache/pkg/types"
)

// Options configures New.
type Options struct {
	// Master starts the coordinator in this process and serves it on
	// ListenAddr. Otherwise MasterAddr must point at a running one.
	Master        bool
	MasterAddr    string
	ListenAddr    string
	AdvertiseHost string

	// Host defaults to the machine's hostname.
	Host types.HostID

	// Timeout bounds each coordinator call; zero waits indefinitely.
	Timeout time.Duration

	Metrics        metrics.Collector
	MetricsHandler http.Handler
}

// master is the coordinator owned by a tracker built with Options.Master.
type master struct {
	service *coordinator.Service
	server  *httpserver.Server
	cancel  context.CancelFunc
	runErr  chan error
}

// New builds the tracker for this node on top of the shared cache c.
func New(c cache.Cache, opts Options) (*Tracker, error) {
	host := opts.Host
	if host == "" {
		host = defaultHost()
	}

	var (
		m    *master
		addr = opts.MasterAddr
	)
	if opts.Master {
		var err error
		if m, err = startMaster(opts); err != nil {
			return nil, err
		}
		addr = m.server.URL
	}
	if addr == "" {
		return nil, fmt.Errorf("%w: worker needs a master address", dberrors.ErrInvalidArgument)
	}

	t := newTracker(c, host, rpc.NewClient(addr, opts.Timeout), opts.Metrics)
	t.master = m

	slog.Info("tracker started", "host", host, "master", addr, "is_master", opts.Master)
	return t, nil
}

func startMaster(opts Options) (*master, error) {
	svc := coordinator.NewService(opts.Metrics)
	ctx, cancel := context.WithCancel(context.Background())

	m := &master{
		service: svc,
		cancel:  cancel,
		runErr:  make(chan error, 1),
	}
	go func() { m.runErr <- svc.Run(ctx) }()

	m.server = httpserver.NewServer(svc, opts.ListenAddr)
	m.server.SetAdvertiseHost(opts.AdvertiseHost)
	if opts.MetricsHandler != nil {
		m.server.SetMetricsHandler(opts.MetricsHandler)
	}
	if err := m.server.Start(); err != nil {
		cancel()
		<-svc.Done()
		return nil, fmt.Errorf("start coordinator endpoint: %w", err)
	}
	return m, nil
}

// stop asks the coordinator to stop through the regular protocol, then
// shuts the endpoint down. The loop is cancelled if the request fails.
func (m *master) stop(ctx context.Context, coord rpc.Coordinator) error {
	var errs []error

	if err := coord.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop coordinator: %w", err))
		m.cancel()
	}

	select {
	case err := <-m.runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	case <-ctx.Done():
		m.cancel()
		errs = append(errs, ctx.Err())
	}
	m.cancel()

	if err := m.server.Stop(); err != nil {
		errs = append(errs, err)
	}

	slog.Info("coordinator endpoint stopped", "addr", m.server.URL)
	return errors.Join(errs...)
}
