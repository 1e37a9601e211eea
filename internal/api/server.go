// Package api exposes the sample ingest and snapshot read endpoints.
package api

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/metricsd/internal/errors"
	"codeberg.org/mutker/metricsd/internal/logger"
	"codeberg.org/mutker/metricsd/internal/metrics"
	"codeberg.org/mutker/metricsd/internal/window"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Server serves the HTTP API and doubles as the connected-clients
// provider: open connections are counted via the http.Server ConnState
// hook.
type Server struct {
	ring       *window.Ring
	store      metrics.Store
	log        logger.Logger
	httpServer *http.Server
	openConns  atomic.Int64
	clock      func() time.Time
}

func NewServer(addr string, ring *window.Ring, store metrics.Store, log logger.Logger) (*Server, error) {
	errFactory := errors.New()

	if ring == nil || store == nil {
		return nil, errFactory.WithMessage(ErrInvalidConfig, "api server requires a ring and a store")
	}
	if log == nil {
		log = logger.Default()
	}

	s := &Server{
		ring:  ring,
		store: store,
		log:   log,
		clock: time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		// Ingest carries its own latency value; only the read side is timed
		r.Post("/samples", s.handleRecordSample)
		r.Group(func(r chi.Router) {
			r.Use(s.recordTiming)
			r.Get("/snapshots", s.handleListSnapshots)
			r.Get("/snapshots/latest", s.handleLatestSnapshot)
		})
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
		ConnState:         s.trackConnState,
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	errFactory := errors.New()

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return errFactory.Wrap(ErrListenFailed, err)
	}

	s.log.Info().Str("addr", ln.Addr().String()).Msg("API server listening")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("API server terminated")
		}
	}()

	return nil
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	errFactory := errors.New()

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}

// ConnectedClients implements metrics.ClientProvider.
func (s *Server) ConnectedClients() int {
	n := s.openConns.Load()
	if n < 0 {
		return 0
	}

	return int(n)
}

func (s *Server) trackConnState(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.openConns.Add(1)
	case http.StateClosed, http.StateHijacked:
		s.openConns.Add(-1)
	}
}

// recordTiming folds the handling time of every API request into the
// window ring, so the daemon's own work shows up in its rate metrics.
func (s *Server) recordTiming(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock()
		next.ServeHTTP(w, r)
		s.ring.Record(start, float64(s.clock().Sub(start))/float64(time.Millisecond))
	})
}
