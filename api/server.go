// Package api serves the card collection over HTTP for other front ends,
// such as a browser new-tab page, that cannot link the Go packages.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/philtim/figured/app"
	"github.com/philtim/figured/cards"
	"github.com/philtim/figured/clock"
	"github.com/philtim/figured/metrics"
)

// Service is the part of app.Service the handlers use.
type Service interface {
	Rows(at time.Time) []cards.Row
	AddCity(ctx context.Context, query string) (app.Notice, error)
	RemoveCard(ctx context.Context, key clock.GroupKey) (app.Notice, error)
	SetHome(ctx context.Context, query string) (app.Notice, error)
	Search(q string) []cards.Location
	HomeSet() bool
	Unsaved() bool
}

var _ Service = (*app.Service)(nil)

// Server is the HTTP front end.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// New builds a server listening on addr. Ticks published on broker are
// streamed to /api/ticks subscribers.
func New(addr string, logger *slog.Logger, svc Service, broker *Broker, m *metrics.Metrics) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(logger, svc, broker, m),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler returns the router with middleware and routes installed.
func NewHandler(logger *slog.Logger, svc Service, broker *Broker, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newStructuredLogger(logger))
	r.Use(middleware.Recoverer)

	addRoutes(r, logger, svc, broker, m)
	return r
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run(_ context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}

	s.logger.Info("server starting", "addr", ln.Addr().String())
	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server, waiting up to ten seconds for open requests.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func newStructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.InfoContext(r.Context(), "http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
