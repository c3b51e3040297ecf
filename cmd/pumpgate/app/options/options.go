// Package options aggregates every flag block of the pumpgate command.
package options

import (
	"errors"

	"github.com/spf13/pflag"

	"github.com/pumpgate-io/pumpgate/internal/gateway"
	"github.com/pumpgate-io/pumpgate/pkg/log"
	"github.com/pumpgate-io/pumpgate/pkg/options"
)

// Options runs the pumpgate server. Field names double as the config
// file section names.
type Options struct {
	Log    *log.Options           `json:"log" mapstructure:"log"`
	Mqtt   *options.MqttOptions   `json:"mqtt" mapstructure:"mqtt"`
	Http   *options.HttpOptions   `json:"http" mapstructure:"http"`
	Sqlite *options.SqliteOptions `json:"sqlite" mapstructure:"sqlite"`
}

// NewOptions builds an Options with defaults for every component.
func NewOptions() *Options {
	return &Options{
		Log:    log.NewOptions(),
		Mqtt:   options.NewMqttOptions(),
		Http:   options.NewHttpOptions(),
		Sqlite: options.NewSqliteOptions(),
	}
}

// AddFlags registers every component's flags on the flag set.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.Log.AddFlags(fs)
	o.Mqtt.AddFlags(fs)
	o.Http.AddFlags(fs)
	o.Sqlite.AddFlags(fs)
}

// Validate collects validation failures from every component.
func (o *Options) Validate() error {
	var errs []error
	errs = append(errs, o.Log.Validate()...)
	errs = append(errs, o.Mqtt.Validate()...)
	errs = append(errs, o.Http.Validate()...)
	errs = append(errs, o.Sqlite.Validate()...)
	return errors.Join(errs...)
}

// Config converts the validated options into the gateway configuration.
func (o *Options) Config() (*gateway.Config, error) {
	return &gateway.Config{
		Mqtt:   o.Mqtt,
		Http:   o.Http,
		Sqlite: o.Sqlite,
	}, nil
}
