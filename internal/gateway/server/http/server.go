// Package http exposes the gateway's REST API: pump control and
// feedback ingestion, current state, history queries, gateway liveness
// and the usual health and metrics endpoints.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pumpgate-io/pumpgate/pkg/log"
	"github.com/pumpgate-io/pumpgate/pkg/options"
)

// Server wraps the HTTP listener lifecycle around the API handler.
type Server struct {
	options *options.HttpOptions
	server  *http.Server
	logger  log.Logger
}

// NewServer builds the router and binds the handler's routes to it.
func NewServer(opts *options.HttpOptions, h *Handler) *Server {
	router := mux.NewRouter()
	h.Register(router)
	return &Server{
		options: opts,
		server: &http.Server{
			Addr:         opts.Addr,
			Handler:      router,
			ReadTimeout:  opts.Timeout,
			WriteTimeout: opts.Timeout,
		},
		logger: log.Std().WithName("http"),
	}
}

// Name implements server.Server.
func (s *Server) Name() string {
	return "http"
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.options.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
