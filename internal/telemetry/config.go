// Package telemetry holds the configuration shared by the acquisition
// pipeline: fetcher, decryptor, mapper and poller.
package telemetry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// MinUpdateInterval is the shortest polling cadence accepted by the poller.
const MinUpdateInterval = 5 * time.Second

// ErrInvalidConfig matches every *ConfigError through errors.Is.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the immutable input of a poller.
type Config struct {
	// Token is the bearer credential of the account owning the vehicle.
	Token string
	// VehicleID identifies the vehicle upstream.
	VehicleID string
	// UpdateInterval is the nominal time between successful polls.
	UpdateInterval time.Duration
}

// ConfigError describes one invalid Config field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Validate returns an aggregate of every problem found, or nil.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Token) == "" {
		errs = append(errs, &ConfigError{Field: "token", Reason: "must not be empty"})
	}
	if strings.TrimSpace(c.VehicleID) == "" {
		errs = append(errs, &ConfigError{Field: "vehicleId", Reason: "must not be empty"})
	}
	if c.UpdateInterval < MinUpdateInterval {
		errs = append(errs, &ConfigError{
			Field:  "updateInterval",
			Reason: fmt.Sprintf("must be at least %s, got %s", MinUpdateInterval, c.UpdateInterval),
		})
	}

	return utilerrors.NewAggregate(errs)
}

// String redacts the token so a Config can be logged.
func (c Config) String() string {
	return fmt.Sprintf("{vehicleId:%s updateInterval:%s token:%s}", c.VehicleID, c.UpdateInterval, redact(c.Token))
}

func redact(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + "..." + s[len(s)-4:]
}
