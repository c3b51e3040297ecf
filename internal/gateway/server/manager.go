// Package server defines the lifecycle contract shared by the gateway's
// long-running components and a manager that runs them as a group.
package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/pumpgate-io/pumpgate/pkg/log"
)

// Server is a long-running component. Start blocks until the context is
// canceled or the component fails.
type Server interface {
	// Name returns the server's name for logging.
	Name() string

	// Start runs the server. It must be blocking and respect ctx cancel.
	Start(ctx context.Context) error
}

// Manager runs a set of servers and stops all of them when any one
// fails or the parent context is canceled.
type Manager struct {
	servers []Server
	logger  log.Logger
}

// NewManager creates a Manager for the given servers.
func NewManager(servers ...Server) *Manager {
	return &Manager{
		servers: servers,
		logger:  log.Std().WithName("manager"),
	}
}

// Start launches every server and blocks until the group exits. The
// first error wins; context cancellation counts as a clean stop.
func (m *Manager) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, srv := range m.servers {
		m.logger.Info("starting server", "name", srv.Name())
		eg.Go(func() error {
			if err := srv.Start(ctx); err != nil && ctx.Err() == nil {
				m.logger.Error(err, "server exited", "name", srv.Name())
				return err
			}
			m.logger.Info("server stopped", "name", srv.Name())
			return nil
		})
	}
	return eg.Wait()
}
