package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/viper"
	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/bestk/zeeho-widgets/cmd/zeeho-widget/app/options"
	"github.com/bestk/zeeho-widgets/internal/widget"
	"github.com/bestk/zeeho-widgets/pkg/app"
	"github.com/bestk/zeeho-widgets/pkg/log"
)

const (
	commandName = "zeeho-widget"
	commandDesc = `zeeho-widget polls the Zeeho cloud for the state of one motorcycle and
serves the latest snapshot to desktop and home-screen widgets over a local
HTTP API and, optionally, MQTT.

Configuration is read from flags, ZEEHO_* style environment variables and the
config file, by default ~/.zeeho-config.json as written by the desktop widget.`

	defaultConfigFile = "~/.zeeho-config.json"
)

func NewApp() *app.App {
	opts := options.NewWidgetOptions()
	application := app.NewApp(
		commandName,
		"Poll a Zeeho vehicle and serve its state to widgets",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithDefaultConfigFile(defaultConfigFile),
		app.WithConfigHook(foldLegacyKeys),
		app.WithCommands(
			newShowCommand(opts),
			newVehiclesCommand(opts),
			newConfigureCommand(opts),
		),
		app.WithRunFunc(run(opts)),
	)
	return application
}

// legacyKeys maps the desktop widget's flat keys to option keys.
var legacyKeys = map[string]string{
	"token":          "zeeho.token",
	"vehicleId":      "zeeho.vehicle-id",
	"updateInterval": "zeeho.update-interval",
}

// foldLegacyKeys makes flat keys act as defaults for their option keys, so
// flags, environment and nested keys still take precedence.
func foldLegacyKeys(v *viper.Viper) error {
	for legacy, key := range legacyKeys {
		if v.IsSet(legacy) {
			v.SetDefault(key, v.Get(legacy))
		}
	}
	return nil
}

func run(opts *options.WidgetOptions) app.RunFunc {
	return func() error {
		ctx := genericapiserver.SetupSignalContext()

		log.Init(opts.Log)
		defer log.Sync()

		changed := make(chan struct{}, 1)
		if app.WatchConfig(func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		}) {
			log.Info("Watching configuration file", "path", app.ConfigFileUsed())
		}

		daemon, err := newDaemon(opts)
		if err != nil {
			return err
		}

		for {
			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func(d *widget.Daemon) { done <- d.Run(runCtx) }(daemon)

			var next *widget.Daemon
		wait:
			for {
				select {
				case err := <-done:
					cancel()
					return err
				case <-changed:
					next, err = reload()
					if err != nil {
						log.Error(err, "Ignoring invalid configuration change")
						continue
					}
					break wait
				}
			}

			log.Info("Configuration changed, restarting")
			cancel()
			if err := <-done; err != nil {
				return err
			}
			daemon = next
		}
	}
}

func newDaemon(opts *options.WidgetOptions) (*widget.Daemon, error) {
	cfg, err := opts.Config()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	daemon, err := cfg.NewDaemon()
	if err != nil {
		return nil, fmt.Errorf("failed to create widget daemon: %w", err)
	}
	return daemon, nil
}

// reload decodes the re-read configuration into fresh options and builds a
// daemon from them without touching the running one.
func reload() (*widget.Daemon, error) {
	if err := foldLegacyKeys(viper.GetViper()); err != nil {
		return nil, err
	}

	opts := options.NewWidgetOptions()
	if err := app.Unmarshal(opts); err != nil {
		return nil, err
	}
	return newDaemon(opts)
}

// commandTimeout bounds one-shot commands.
func commandTimeout(opts *options.WidgetOptions) time.Duration {
	return 2*opts.ZeehoOptions.Timeout + opts.GeoOptions.Timeout
}
