package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/flightrelay/internal/relay"
	"github.com/autopeer-io/flightrelay/pkg/app"
	"github.com/autopeer-io/flightrelay/pkg/log"
	"github.com/autopeer-io/flightrelay/pkg/options"
)

type RelayServerOptions struct {
	RelayOptions   *options.RelayOptions   `json:"relay" mapstructure:"relay"`
	TimingOptions  *options.TimingOptions  `json:"timing" mapstructure:"timing"`
	VehicleOptions *options.VehicleOptions `json:"vehicle" mapstructure:"vehicle"`
	HttpOptions    *options.HttpOptions    `json:"http" mapstructure:"http"`
	MqttOptions    *options.MqttOptions    `json:"mqtt" mapstructure:"mqtt"`
	Log            *log.Options            `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*RelayServerOptions)(nil)

func NewRelayServerOptions() *RelayServerOptions {
	return &RelayServerOptions{
		RelayOptions:   options.NewRelayOptions(),
		TimingOptions:  options.NewTimingOptions(),
		VehicleOptions: options.NewVehicleOptions(),
		HttpOptions:    options.NewHttpOptions(),
		MqttOptions:    options.NewMqttOptions(),
		Log:            log.NewOptions(),
	}
}

func (o *RelayServerOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.RelayOptions.AddFlags(fss.FlagSet("relay"))
	o.TimingOptions.AddFlags(fss.FlagSet("timing"))
	o.VehicleOptions.AddFlags(fss.FlagSet("vehicle"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

// Complete names the logger after the vehicle when results are published.
func (o *RelayServerOptions) Complete() error {
	if o.Log.Name == "" && o.MqttOptions.Enabled {
		o.Log.Name = o.MqttOptions.VehicleID
	}
	return nil
}

func (o *RelayServerOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.RelayOptions.Validate()...)
	errs = append(errs, o.TimingOptions.Validate()...)
	errs = append(errs, o.VehicleOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *RelayServerOptions) Config() (*relay.Config, error) {
	return &relay.Config{
		RelayOptions:   o.RelayOptions,
		TimingOptions:  o.TimingOptions,
		VehicleOptions: o.VehicleOptions,
		HttpOptions:    o.HttpOptions,
		MqttOptions:    o.MqttOptions,
	}, nil
}
