// Package geocode resolves vehicle coordinates to a street address with the
// Amap reverse geocoding web service.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	gocachestore "github.com/eko/gocache/store/go_cache/v4"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/bestk/zeeho-widgets/internal/pkg/metrics"
	"github.com/bestk/zeeho-widgets/internal/telemetry/model"
	"github.com/bestk/zeeho-widgets/pkg/log"
)

const DefaultEndpoint = "https://restapi.amap.com/v3/geocode/regeo"

// Geocoder looks up and caches addresses.
type Geocoder struct {
	endpoint string
	key      string
	ttl      time.Duration
	http     *http.Client
	cache    *cache.Cache[string]
	group    singleflight.Group
	log      log.Logger
}

// Option configures a Geocoder.
type Option func(*Geocoder)

func WithEndpoint(u string) Option { return func(g *Geocoder) { g.endpoint = u } }

func WithTimeout(d time.Duration) Option {
	return func(g *Geocoder) {
		if d > 0 {
			g.http.Timeout = d
		}
	}
}

func WithCacheTTL(d time.Duration) Option { return func(g *Geocoder) { g.ttl = d } }

func WithLogger(l log.Logger) Option { return func(g *Geocoder) { g.log = l } }

// New returns a Geocoder authenticating with key.
func New(key string, opts ...Option) *Geocoder {
	g := &Geocoder{
		endpoint: DefaultEndpoint,
		key:      key,
		ttl:      time.Hour,
		http:     &http.Client{Timeout: 5 * time.Second},
		log:      log.WithName("geocode"),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.cache = cache.New[string](gocachestore.NewGoCache(gocache.New(g.ttl, 2*g.ttl)))

	return g
}

// Enrich returns v with Location.Address filled in. v itself is never
// modified. Lookup failures are logged and leave the address empty.
func (g *Geocoder) Enrich(ctx context.Context, v *model.VehicleData) *model.VehicleData {
	if v == nil || !v.Location.HasFix() || v.Location.Address != "" {
		return v
	}

	addr, err := g.Lookup(ctx, v.Location.Longitude, v.Location.Latitude)
	if err != nil {
		if ctx.Err() == nil {
			g.log.Warn("Reverse geocoding failed", "error", err)
		}
		return v
	}

	out := v.Clone()
	out.Location.Address = addr
	return out
}

// Lookup returns the formatted address for a coordinate pair.
func (g *Geocoder) Lookup(ctx context.Context, lon, lat float64) (string, error) {
	key := fmt.Sprintf("%.4f,%.4f", lon, lat)

	if addr, err := g.cache.Get(ctx, key); err == nil && addr != "" {
		metrics.GeocodeRequests.WithLabelValues("hit").Inc()
		return addr, nil
	}

	v, err, _ := g.group.Do(key, func() (any, error) {
		addr, err := g.request(ctx, lon, lat)
		if err != nil {
			return "", err
		}
		if err := g.cache.Set(ctx, key, addr, store.WithExpiration(g.ttl)); err != nil {
			g.log.Debug("Failed to cache address", "error", err)
		}
		return addr, nil
	})
	if err != nil {
		metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return "", err
	}

	metrics.GeocodeRequests.WithLabelValues("miss").Inc()
	return v.(string), nil
}

type regeoResponse struct {
	Status    string `json:"status"`
	Info      string `json:"info"`
	Regeocode struct {
		// Amap sends [] instead of "" when there is no address.
		FormattedAddress json.RawMessage `json:"formatted_address"`
	} `json:"regeocode"`
}

func (g *Geocoder) request(ctx context.Context, lon, lat float64) (string, error) {
	q := url.Values{}
	q.Set("output", "json")
	q.Set("location", strconv.FormatFloat(lon, 'f', 6, 64)+","+strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("key", g.key)
	q.Set("extensions", "base")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("regeo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("regeo request: unexpected status %d", resp.StatusCode)
	}

	var body regeoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode regeo response: %w", err)
	}
	if body.Status != "1" {
		return "", fmt.Errorf("regeo failed: %s", body.Info)
	}

	var addr string
	if err := json.Unmarshal(body.Regeocode.FormattedAddress, &addr); err != nil || addr == "" {
		return "", errors.New("regeo returned no address")
	}

	return addr, nil
}
