package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/bestk/zeeho-widgets/internal/widget"
	"github.com/bestk/zeeho-widgets/pkg/app"
	"github.com/bestk/zeeho-widgets/pkg/log"
	"github.com/bestk/zeeho-widgets/pkg/options"
)

type WidgetOptions struct {
	ZeehoOptions *options.ZeehoOptions `json:"zeeho" mapstructure:"zeeho"`
	GeoOptions   *options.GeoOptions   `json:"geo" mapstructure:"geo"`
	HttpOptions  *options.HttpOptions  `json:"http" mapstructure:"http"`
	MqttOptions  *options.MqttOptions  `json:"mqtt" mapstructure:"mqtt"`
	Log          *log.Options          `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*WidgetOptions)(nil)

func NewWidgetOptions() *WidgetOptions {
	o := &WidgetOptions{
		ZeehoOptions: options.NewZeehoOptions(),
		GeoOptions:   options.NewGeoOptions(),
		HttpOptions:  options.NewHttpOptions(),
		MqttOptions:  options.NewMqttOptions(),
		Log:          log.NewOptions(),
	}

	return o
}

func (o *WidgetOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.ZeehoOptions.AddFlags(fss.FlagSet("zeeho"))
	o.GeoOptions.AddFlags(fss.FlagSet("geo"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *WidgetOptions) Complete() error {
	return nil
}

func (o *WidgetOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.ZeehoOptions.Validate()...)
	errs = append(errs, o.GeoOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *WidgetOptions) Config() (*widget.Config, error) {
	return &widget.Config{
		ZeehoOptions: o.ZeehoOptions,
		GeoOptions:   o.GeoOptions,
		HttpOptions:  o.HttpOptions,
		MqttOptions:  o.MqttOptions,
	}, nil
}
