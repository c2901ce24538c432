// Package mapper turns the upstream vehicle object into model.VehicleData.
//
// Mapping is explicit: every known field has a declared kind, unknown fields
// are ignored, required fields depend on the response shape. The same input
// always produces the same output.
package mapper

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/bestk/zeeho-widgets/internal/pkg/metrics"
	"github.com/bestk/zeeho-widgets/internal/telemetry/decrypt"
	"github.com/bestk/zeeho-widgets/internal/telemetry/model"
)

// Decryptor recovers the plaintext of an EncryptInfo.
type Decryptor interface {
	Decrypt(info model.EncryptInfo) (string, error)
}

// Mapper maps raw vehicle objects. It is safe for concurrent use.
type Mapper struct {
	log       logr.Logger
	decryptor Decryptor
	listing   bool
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithLogger sets the logger used for dropped elements and degraded fields.
func WithLogger(l logr.Logger) Option {
	return func(m *Mapper) { m.log = l }
}

// WithDecryptor sets the decryptor applied to encryptInfo. Without one the
// decrypted field is reported unavailable.
func WithDecryptor(d Decryptor) Option {
	return func(m *Mapper) { m.decryptor = d }
}

// ForListing maps vehicleHomePage entries. Battery, range and the
// shape-specific fields may be absent; one of vinNo, deviceName or
// vehicleName must be present.
func ForListing() Option {
	return func(m *Mapper) { m.listing = true }
}

// New returns a Mapper.
func New(opts ...Option) *Mapper {
	m := &Mapper{log: logr.Discard()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Map converts raw into a VehicleData or returns a *MappingError.
func (m *Mapper) Map(raw map[string]any) (*model.VehicleData, error) {
	v := &model.VehicleData{Shape: shapeOf(raw)}

	for _, f := range fields {
		val, ok := raw[f.name]
		if !ok || val == nil {
			continue
		}
		if err := f.apply(v, val); err != nil {
			return nil, err
		}
	}

	if err := m.checkRequired(v); err != nil {
		return nil, err
	}

	if val, ok := raw["location"]; ok && val != nil {
		loc, err := mapLocation(val)
		if err != nil {
			return nil, err
		}
		v.Location = loc
	}

	if val, ok := raw["iotProperties"]; ok && val != nil {
		props, err := m.mapIotProperties(val)
		if err != nil {
			return nil, err
		}
		v.IotProperties = props
	}

	if val, ok := raw["encryptInfo"]; ok && val != nil {
		info, err := mapEncryptInfo(val)
		if err != nil {
			return nil, err
		}
		v.EncryptInfo = info
		v.Decrypted = m.decrypt(*info)
	}

	return v, nil
}

func (m *Mapper) checkRequired(v *model.VehicleData) error {
	if m.listing {
		for _, r := range identifiers {
			if r.get(v) != "" {
				return nil
			}
		}
		return missing(identifiers[0].name)
	}

	for _, set := range [][]required{requiredByShape[v.Shape], requiredCommon} {
		for _, r := range set {
			if r.get(v) == "" {
				return missing(r.name)
			}
		}
	}
	return nil
}

func shapeOf(raw map[string]any) model.Shape {
	for _, k := range extendedMarkers {
		if val, ok := raw[k]; ok && val != nil {
			return model.ShapeExtended
		}
	}
	return model.ShapeMinimal
}

func mapLocation(raw any) (*model.Location, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, mismatch("location", "object", raw)
	}

	loc := &model.Location{}

	coords := []struct {
		name     string
		dst      *float64
		required bool
		limit    float64
	}{
		{"longitude", &loc.Longitude, true, 180},
		{"latitude", &loc.Latitude, true, 90},
		{"altitude", &loc.Altitude, false, 0},
	}
	for _, c := range coords {
		path := "location." + c.name
		val, ok := obj[c.name]
		if !ok || val == nil {
			if c.required {
				return nil, missing(path)
			}
			continue
		}
		f, err := toFloat(path, val)
		if err != nil {
			if !c.required && isMissing(err) {
				continue
			}
			return nil, err
		}
		if c.limit > 0 && (f < -c.limit || f > c.limit) {
			return nil, &MappingError{Kind: OutOfRange, Field: path, Detail: fmt.Sprintf("%v not in [-%v, %v]", f, c.limit, c.limit)}
		}
		*c.dst = f
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"coordinateSystem", &loc.CoordinateSystem},
		{"locationTime", &loc.LocationTime},
		{"address", &loc.Address},
	}
	for _, s := range strs {
		val, ok := obj[s.name]
		if !ok || val == nil {
			continue
		}
		str, err := toScalar("location."+s.name, val)
		if err != nil {
			return nil, err
		}
		*s.dst = str
	}

	return loc, nil
}

func mapEncryptInfo(raw any) (*model.EncryptInfo, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, mismatch("encryptInfo", "object", raw)
	}

	info := &model.EncryptInfo{}
	parts := []struct {
		name string
		dst  *string
	}{
		{"key", &info.Key},
		{"iv", &info.IV},
		{"encryptValue", &info.EncryptValue},
	}
	for _, p := range parts {
		val, ok := obj[p.name]
		if !ok || val == nil {
			continue
		}
		s, err := toString("encryptInfo."+p.name, val)
		if err != nil {
			return nil, err
		}
		*p.dst = s
	}

	return info, nil
}

func (m *Mapper) mapIotProperties(raw any) ([]model.IotProperty, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, mismatch("iotProperties", "array", raw)
	}

	props := make([]model.IotProperty, 0, len(items))
	for i, item := range items {
		p, err := mapIotProperty(i, item)
		if err != nil {
			m.log.Info("dropping malformed iot property", "index", i, "reason", err.Error())
			metrics.IotPropertiesDropped.Inc()
			continue
		}
		props = append(props, p)
	}

	return props, nil
}

func mapIotProperty(index int, raw any) (model.IotProperty, error) {
	prefix := fmt.Sprintf("iotProperties[%d].", index)

	obj, ok := raw.(map[string]any)
	if !ok {
		return model.IotProperty{}, mismatch(prefix[:len(prefix)-1], "object", raw)
	}

	var p model.IotProperty
	parts := []struct {
		name     string
		dst      *string
		required bool
		conv     func(string, any) (string, error)
	}{
		{"name", &p.Name, true, toString},
		{"identify", &p.Identify, true, toString},
		{"value", &p.Value, true, toScalar},
		{"time", &p.Time, true, toScalar},
		{"dbUpdateTime", &p.DBUpdateTime, false, toScalar},
		{"describe", &p.Describe, false, toString},
	}
	for _, part := range parts {
		val, ok := obj[part.name]
		if !ok || val == nil {
			if part.required {
				return model.IotProperty{}, missing(prefix + part.name)
			}
			continue
		}
		s, err := part.conv(prefix+part.name, val)
		if err != nil {
			return model.IotProperty{}, err
		}
		*part.dst = s
	}

	if p.Identify == "" {
		return model.IotProperty{}, missing(prefix + "identify")
	}

	return p, nil
}

func (m *Mapper) decrypt(info model.EncryptInfo) *model.DecryptedField {
	if m.decryptor == nil {
		return &model.DecryptedField{Status: model.FieldUnavailable, Reason: "no decryptor configured"}
	}

	plain, err := m.decryptor.Decrypt(info)
	if err != nil {
		m.log.Info("encrypted field unavailable", "reason", err.Error())
		kind := string(decrypt.KindOf(err))
		if kind == "" {
			kind = "unknown"
		}
		metrics.DecryptFailures.WithLabelValues(kind).Inc()
		return &model.DecryptedField{Status: model.FieldUnavailable, Reason: err.Error()}
	}

	return &model.DecryptedField{Status: model.FieldAvailable, Value: plain}
}

func isMissing(err error) bool {
	me, ok := err.(*MappingError)
	return ok && me.Kind == MissingRequiredField
}
