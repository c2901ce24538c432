package widget

import (
	"context"

	"github.com/bestk/zeeho-widgets/internal/telemetry/poller"
	"github.com/bestk/zeeho-widgets/internal/widget/server"
	"github.com/bestk/zeeho-widgets/pkg/log"
)

// Daemon polls the vehicle and serves the results until stopped.
type Daemon struct {
	poller  *poller.Poller
	manager *server.Manager
}

// Run blocks until ctx is cancelled or a component fails.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.poller.Config()
	log.Info("Starting widget daemon", "vehicleID", cfg.VehicleID, "interval", cfg.UpdateInterval)

	err := d.manager.Start(ctx)

	log.Info("Widget daemon stopped", "state", d.poller.State())
	return err
}

// Poller exposes the daemon's poller.
func (d *Daemon) Poller() *poller.Poller {
	return d.poller
}
