package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/bestk/zeeho-widgets/pkg/log"
)

// Server is a long running component stopped by cancelling ctx.
type Server interface {
	Start(ctx context.Context) error
}

// Func adapts a function to Server.
type Func func(ctx context.Context) error

func (f Func) Start(ctx context.Context) error { return f(ctx) }

// Manager runs servers together. The first failure stops all of them.
type Manager struct {
	servers []Server
}

// NewManager creates a Manager. Nil servers are skipped.
func NewManager(servers ...Server) *Manager {
	m := &Manager{}
	for _, s := range servers {
		if s != nil {
			m.servers = append(m.servers, s)
		}
	}
	return m
}

// Start launches all servers and waits for them to return.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting", "count", len(m.servers))
	return g.Wait()
}
