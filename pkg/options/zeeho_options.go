package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"

	"github.com/bestk/zeeho-widgets/internal/telemetry"
)

var _ IOptions = (*ZeehoOptions)(nil)

// ZeehoOptions configures access to the manufacturer's vehicle API.
type ZeehoOptions struct {
	// BaseURL is the API origin, without path.
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	Token     string `json:"token" mapstructure:"token"`
	VehicleID string `json:"vehicle-id" mapstructure:"vehicle-id"`

	// UpdateInterval is the polling cadence after a successful cycle.
	UpdateInterval time.Duration `json:"update-interval" mapstructure:"update-interval"`

	// MaxBackoff caps the retry delay after consecutive failures.
	MaxBackoff time.Duration `json:"max-backoff" mapstructure:"max-backoff"`

	// Timeout bounds a single upstream request.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// UserAgent is sent as the client identifier.
	UserAgent string `json:"user-agent" mapstructure:"user-agent"`

	// Cookie is sent verbatim when set.
	Cookie string `json:"cookie" mapstructure:"cookie"`

	// KeyEncoding selects how encryptInfo key and iv strings turn into bytes:
	// utf8, hex or base64.
	KeyEncoding string `json:"key-encoding" mapstructure:"key-encoding"`
}

// NewZeehoOptions creates a ZeehoOptions object with default parameters.
func NewZeehoOptions() *ZeehoOptions {
	return &ZeehoOptions{
		BaseURL:        "https://tapi.zeehoev.com",
		UpdateInterval: 5 * time.Minute,
		MaxBackoff:     30 * time.Minute,
		Timeout:        10 * time.Second,
		UserAgent:      "Apifox/1.0.0 (https://apifox.com)",
		KeyEncoding:    "utf8",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts. Token and vehicle id are checked
// by telemetry.Config so that commands which only list vehicles can run
// without a vehicle id.
func (o *ZeehoOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error

	if u, err := url.Parse(o.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid zeeho base url %q", o.BaseURL))
	}

	if o.UpdateInterval < telemetry.MinUpdateInterval {
		errs = append(errs, fmt.Errorf("--zeeho.update-interval must be at least %s, got %s", telemetry.MinUpdateInterval, o.UpdateInterval))
	}

	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("--zeeho.timeout must be positive"))
	}

	if o.MaxBackoff <= 0 {
		errs = append(errs, fmt.Errorf("--zeeho.max-backoff must be positive"))
	}

	switch o.KeyEncoding {
	case "utf8", "hex", "base64":
	default:
		errs = append(errs, fmt.Errorf("--zeeho.key-encoding must be one of utf8, hex, base64, got %q", o.KeyEncoding))
	}

	return errs
}

// AddFlags adds flags for ZeehoOptions to the specified FlagSet.
func (o *ZeehoOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.BaseURL, join(prefixes, "zeeho.base-url"), o.BaseURL, "Origin of the Zeeho vehicle API.")
	fs.StringVar(&o.Token, join(prefixes, "zeeho.token"), o.Token, "Bearer token of the Zeeho account.")
	fs.StringVar(&o.VehicleID, join(prefixes, "zeeho.vehicle-id"), o.VehicleID, "Identifier of the vehicle to poll.")
	fs.DurationVar(&o.UpdateInterval, join(prefixes, "zeeho.update-interval"), o.UpdateInterval, "Time between successful polls (at least 5s).")
	fs.DurationVar(&o.MaxBackoff, join(prefixes, "zeeho.max-backoff"), o.MaxBackoff, "Upper bound of the retry delay after failed polls.")
	fs.DurationVar(&o.Timeout, join(prefixes, "zeeho.timeout"), o.Timeout, "Timeout of a single upstream request.")
	fs.StringVar(&o.UserAgent, join(prefixes, "zeeho.user-agent"), o.UserAgent, "Client identifier sent as User-Agent.")
	fs.StringVar(&o.Cookie, join(prefixes, "zeeho.cookie"), o.Cookie, "Optional Cookie header sent with every request.")
	fs.StringVar(&o.KeyEncoding, join(prefixes, "zeeho.key-encoding"), o.KeyEncoding, "Encoding of encryptInfo key and iv: utf8, hex or base64.")
}

// ToConfig returns the poller configuration.
func (o *ZeehoOptions) ToConfig() telemetry.Config {
	return telemetry.Config{
		Token:          o.Token,
		VehicleID:      o.VehicleID,
		UpdateInterval: o.UpdateInterval,
	}
}

// EffectiveMaxBackoff returns MaxBackoff, raised to UpdateInterval when lower.
func (o *ZeehoOptions) EffectiveMaxBackoff() time.Duration {
	if o.MaxBackoff < o.UpdateInterval {
		return o.UpdateInterval
	}
	return o.MaxBackoff
}
