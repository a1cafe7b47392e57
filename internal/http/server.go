package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"partcache/pkg/dberrors"
	"partcache/pkg/protocol"
	"partcache/pkg/rpc"
)

const (
	contentTypeJSON        = "application/json"
	defaultListenAddr      = ":0"
	defaultShutdownTimeout = time.Second * 5
)

type iCoordinator interface {
	Submit(ctx context.Context, req protocol.Request) (protocol.Reply, error)
}

// Server exposes a coordinator over HTTP
type Server struct {
	coord      iCoordinator
	metrics    http.Handler
	httpServer *http.Server
	listener   net.Listener
	advertise  string
	addr       string

	// URL is the published address, known after Start.
	URL string
}

// NewServer creates a new server instance. addr may use port 0 to bind a
// random free port. With a nil coord only health and metrics are served.
func NewServer(coord iCoordinator, addr string) *Server {
	if addr == "" {
		addr = defaultListenAddr
	}
	return &Server{
		coord: coord,
		addr:  addr,
	}
}

// SetMetricsHandler plugs in the handler served on /metrics.
func (s *Server) SetMetricsHandler(h http.Handler) {
	s.metrics = h
}

// SetAdvertiseHost overrides the host part of the published URL.
func (s *Server) SetAdvertiseHost(host string) {
	s.advertise = host
}

// Start binds the listener and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.URL = publishedURL(ln.Addr(), s.advertise)

	s.httpServer = &http.Server{
		Handler:           s.createRouter(),
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", s.URL)
	return nil
}

// Stop stops the server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// Handler returns the router without binding a listener.
func (s *Server) Handler() http.Handler {
	return s.createRouter()
}

// createRouter builds chi router
func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	if s.coord != nil {
		r.Post(rpc.TrackerEndpoint, s.handleTracker)
	}

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics != nil {
		s.metrics.ServeHTTP(w, r)
		return
	}
	if _, err := w.Write([]byte("# partcache metrics disabled\n")); err != nil {
		slog.Warn("Failed to write metrics response", "error", err)
	}
}

func (s *Server) handleTracker(w http.ResponseWriter, r *http.Request) {
	var req protocol.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		err = fmt.Errorf("%w: decode request: %v", dberrors.ErrProtocol, err)
		slog.Warn("tracker endpoint: bad request", "error", err)
		s.writeJSON(w, http.StatusBadRequest, protocol.Fail(uuid.Nil, err))
		return
	}

	reply, err := s.coord.Submit(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, dberrors.ErrStopped) {
			status = http.StatusServiceUnavailable
		}
		s.writeJSON(w, status, protocol.Fail(req.ID, err))
		return
	}

	s.writeJSON(w, http.StatusOK, reply)
}

func publishedURL(addr net.Addr, advertise string) string {
	host, port := advertise, ""
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = strconv.Itoa(tcp.Port)
		if host == "" && !tcp.IP.IsUnspecified() {
			host = tcp.IP.String()
		}
	} else if h, p, err := net.SplitHostPort(addr.String()); err == nil {
		port = p
		if host == "" {
			host = h
		}
	}
	if host == "" {
		name, err := os.Hostname()
		if err != nil {
			name = "localhost"
		}
		host = name
	}
	return "http://" + net.JoinHostPort(host, port)
}
