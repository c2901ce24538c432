package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*GeoOptions)(nil)

// GeoOptions configures reverse geocoding of the vehicle location through
// the Amap web service. An empty AmapKey disables it.
type GeoOptions struct {
	AmapKey  string        `json:"amap-key" mapstructure:"amap-key"`
	Endpoint string        `json:"endpoint" mapstructure:"endpoint"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`

	// CacheTTL is how long a resolved address is reused for nearby coordinates.
	CacheTTL time.Duration `json:"cache-ttl" mapstructure:"cache-ttl"`
}

// NewGeoOptions creates a GeoOptions object with default parameters.
func NewGeoOptions() *GeoOptions {
	return &GeoOptions{
		Endpoint: "https://restapi.amap.com/v3/geocode/regeo",
		Timeout:  5 * time.Second,
		CacheTTL: time.Hour,
	}
}

// Enabled reports whether reverse geocoding is configured.
func (o *GeoOptions) Enabled() bool {
	return o != nil && o.AmapKey != ""
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *GeoOptions) Validate() []error {
	if !o.Enabled() {
		return nil
	}

	var errs []error
	if u, err := url.Parse(o.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid geocoding endpoint %q", o.Endpoint))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("--geo.timeout must be positive"))
	}
	if o.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("--geo.cache-ttl must not be negative"))
	}

	return errs
}

// AddFlags adds flags for GeoOptions to the specified FlagSet.
func (o *GeoOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.AmapKey, join(prefixes, "geo.amap-key"), o.AmapKey, "Amap web service key. Empty disables reverse geocoding.")
	fs.StringVar(&o.Endpoint, join(prefixes, "geo.endpoint"), o.Endpoint, "Amap reverse geocoding endpoint.")
	fs.DurationVar(&o.Timeout, join(prefixes, "geo.timeout"), o.Timeout, "Timeout of a reverse geocoding request.")
	fs.DurationVar(&o.CacheTTL, join(prefixes, "geo.cache-ttl"), o.CacheTTL, "How long resolved addresses are cached.")
}
