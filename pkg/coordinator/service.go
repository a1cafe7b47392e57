// Package coordinator holds the master side of the cache tracker: the
// location registry and the single actor that serialises every mutation.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"partcache/pkg/dberrors"
	"partcache/pkg/metrics"
	"partcache/pkg/protocol"
)

type call struct {
	req   protocol.Request
	reply chan protocol.Reply
}

// Service processes coordinator requests one at a time. All registry state
// is touched only from the Run loop, so no locking is needed around it.
//
// Lifecycle: Running until a Stop request is answered or the Run context is
// cancelled, then Stopped for good.
type Service struct {
	registry *Registry
	calls    chan call
	done     chan struct{}
	metrics  metrics.Collector
}

func NewService(m metrics.Collector) *Service {
	return &Service{
		registry: NewRegistry(),
		calls:    make(chan call),
		done:     make(chan struct{}),
		metrics:  metrics.OrNop(m),
	}
}

// Run executes the request loop. It returns nil after a Stop request and
// ctx.Err() on cancellation.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.done)

	slog.Info("coordinator started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("coordinator cancelled")
			return ctx.Err()
		case c := <-s.calls:
			reply, stop := s.handle(c.req)
			c.reply <- reply
			if stop {
				slog.Info("coordinator stopped")
				return nil
			}
		}
	}
}

// Submit hands req to the loop and waits for its reply. Once the loop has
// stopped every Submit fails with dberrors.ErrStopped.
func (s *Service) Submit(ctx context.Context, req protocol.Request) (protocol.Reply, error) {
	c := call{req: req, reply: make(chan protocol.Reply, 1)}

	select {
	case s.calls <- c:
	case <-s.done:
		return protocol.Reply{}, dberrors.ErrStopped
	case <-ctx.Done():
		return protocol.Reply{}, ctx.Err()
	}

	// the loop always answers a call it accepted
	return <-c.reply, nil
}

// Done is closed once the loop has exited.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) handle(req protocol.Request) (protocol.Reply, bool) {
	var (
		reply protocol.Reply
		err   error
		stop  bool
	)

	switch req.Kind {
	case protocol.KindRegisterDataset:
		var created bool
		created, err = s.registry.Register(req.Dataset, req.Partitions)
		if created {
			slog.Info("dataset registered", "dataset", req.Dataset, "partitions", req.Partitions)
			s.metrics.SetGauge(metrics.RegistryDatasets, nil, float64(s.registry.Len()))
		}
	case protocol.KindAddedToCache:
		err = s.registry.Add(req.Dataset, req.Partition, req.Host)
	case protocol.KindDroppedFromCache:
		err = s.registry.Drop(req.Dataset, req.Partition, req.Host)
	case protocol.KindHostLost:
		removed := s.registry.HostLost(req.Host)
		slog.Info("host lost", "host", req.Host, "locations_removed", removed)
	case protocol.KindGetLocations:
		reply = protocol.OK(req.ID)
		reply.Locations = s.registry.Snapshot()
	case protocol.KindStop:
		stop = true
	default:
		err = fmt.Errorf("%w: unknown message kind %q", dberrors.ErrProtocol, req.Kind)
		slog.Warn("coordinator: rejected request", "id", req.ID, "kind", req.Kind, "error", err)
	}

	switch {
	case err != nil:
		reply = protocol.Fail(req.ID, err)
	case reply.Status == "":
		reply = protocol.OK(req.ID)
	}

	kind := string(req.Kind)
	if !req.Kind.Known() {
		kind = "unknown"
	}
	s.metrics.IncCounter(metrics.RPCRequests, map[string]string{
		"kind":   kind,
		"status": string(reply.Status),
	}, 1)
	return reply, stop
}
