package widget

import (
	"context"
	"fmt"

	"github.com/bestk/zeeho-widgets/internal/telemetry/decrypt"
	"github.com/bestk/zeeho-widgets/internal/telemetry/fetcher"
	"github.com/bestk/zeeho-widgets/internal/telemetry/geocode"
	"github.com/bestk/zeeho-widgets/internal/telemetry/mapper"
	"github.com/bestk/zeeho-widgets/internal/telemetry/model"
	"github.com/bestk/zeeho-widgets/internal/telemetry/poller"
	"github.com/bestk/zeeho-widgets/internal/widget/notifier"
	"github.com/bestk/zeeho-widgets/internal/widget/server"
	httpserver "github.com/bestk/zeeho-widgets/internal/widget/server/http"
	"github.com/bestk/zeeho-widgets/pkg/log"
	"github.com/bestk/zeeho-widgets/pkg/options"
)

type Config struct {
	ZeehoOptions *options.ZeehoOptions
	GeoOptions   *options.GeoOptions
	HttpOptions  *options.HttpOptions
	MqttOptions  *options.MqttOptions
}

// NewFetcher returns an upstream client configured from ZeehoOptions.
func (cfg *Config) NewFetcher() *fetcher.Client {
	o := cfg.ZeehoOptions
	return fetcher.New(
		fetcher.WithBaseURL(o.BaseURL),
		fetcher.WithUserAgent(o.UserAgent),
		fetcher.WithCookie(o.Cookie),
		fetcher.WithTimeout(o.Timeout),
	)
}

// NewMapper returns a mapper that decrypts encryptInfo with the configured
// key encoding.
func (cfg *Config) NewMapper(opts ...mapper.Option) (*mapper.Mapper, error) {
	d, err := decrypt.New(cfg.ZeehoOptions.KeyEncoding)
	if err != nil {
		return nil, err
	}
	return mapper.New(append([]mapper.Option{
		mapper.WithDecryptor(d),
		mapper.WithLogger(log.WithName("mapper").Logr()),
	}, opts...)...), nil
}

// NewEnricher returns the reverse geocoder, or nil when it is disabled.
func (cfg *Config) NewEnricher() poller.Enricher {
	o := cfg.GeoOptions
	if !o.Enabled() {
		return nil
	}
	return geocode.New(o.AmapKey,
		geocode.WithEndpoint(o.Endpoint),
		geocode.WithTimeout(o.Timeout),
		geocode.WithCacheTTL(o.CacheTTL),
		geocode.WithLogger(log.WithName("geocode")),
	)
}

// NewDaemon wires the poller and the enabled presentation servers.
func (cfg *Config) NewDaemon() (*Daemon, error) {
	m, err := cfg.NewMapper()
	if err != nil {
		return nil, err
	}

	opts := []poller.Option{poller.WithMaxBackoff(cfg.ZeehoOptions.EffectiveMaxBackoff())}
	if e := cfg.NewEnricher(); e != nil {
		opts = append(opts, poller.WithEnricher(e))
	}

	p, err := poller.New(cfg.ZeehoOptions.ToConfig(), cfg.NewFetcher(), m, opts...)
	if err != nil {
		return nil, err
	}

	servers := []server.Server{server.Func(p.Run)}

	if cfg.HttpOptions.Enabled {
		servers = append(servers, httpserver.NewServer(cfg.HttpOptions, p))
	}

	if cfg.MqttOptions.Enabled() {
		n, err := notifier.NewMQTTNotifier(cfg.MqttOptions, p.Config().VehicleID, p)
		if err != nil {
			return nil, fmt.Errorf("failed to init notifier: %w", err)
		}
		servers = append(servers, n)
	}

	return &Daemon{
		poller:  p,
		manager: server.NewManager(servers...),
	}, nil
}

// FetchOnce runs a single fetch, map and enrich pass outside the poller.
func (cfg *Config) FetchOnce(ctx context.Context) (*model.VehicleData, error) {
	tc := cfg.ZeehoOptions.ToConfig()
	if err := tc.Validate(); err != nil {
		return nil, err
	}

	m, err := cfg.NewMapper()
	if err != nil {
		return nil, err
	}

	raw, err := cfg.NewFetcher().Fetch(ctx, tc)
	if err != nil {
		return nil, err
	}

	v, err := m.Map(raw.Data)
	if err != nil {
		return nil, err
	}

	if e := cfg.NewEnricher(); e != nil {
		v = e.Enrich(ctx, v)
	}
	return v, nil
}

// ListVehicles returns the vehicles bound to the configured token. Entries
// without an identifier or with malformed fields are skipped.
func (cfg *Config) ListVehicles(ctx context.Context) ([]*model.VehicleData, error) {
	m, err := cfg.NewMapper(mapper.ForListing())
	if err != nil {
		return nil, err
	}

	raws, err := cfg.NewFetcher().ListVehicles(ctx, cfg.ZeehoOptions.Token)
	if err != nil {
		return nil, err
	}

	e := cfg.NewEnricher()
	vehicles := make([]*model.VehicleData, 0, len(raws))
	for i, raw := range raws {
		v, err := m.Map(raw)
		if err != nil {
			log.Warn("Skipping vehicle entry", "index", i, "error", err)
			continue
		}
		if e != nil {
			v = e.Enrich(ctx, v)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}
