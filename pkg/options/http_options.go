package options

import (
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HttpOptions)(nil)

// HttpOptions configures the local API the widget frontends read from.
type HttpOptions struct {
	// Enabled turns the API server on.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Addr is the bind address. Loopback by default: the API carries
	// personal location data.
	Addr string `json:"addr" mapstructure:"addr"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewHttpOptions creates a HttpOptions object with default parameters.
func NewHttpOptions() *HttpOptions {
	return &HttpOptions{
		Enabled:         true,
		Addr:            "127.0.0.1:8787",
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *HttpOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	if err := ValidateAddress(o.Addr); err != nil {
		errs = append(errs, err)
	}

	return errs
}

// AddFlags adds flags for the local HTTP API to the specified FlagSet.
func (o *HttpOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, join(prefixes, "http.enabled"), o.Enabled, "Serve the local HTTP API.")
	fs.StringVar(&o.Addr, join(prefixes, "http.addr"), o.Addr, "Bind address and port of the local HTTP API.")
	fs.DurationVar(&o.ShutdownTimeout, join(prefixes, "http.shutdown-timeout"), o.ShutdownTimeout, "Maximum time to wait for in-flight requests on shutdown.")
}
