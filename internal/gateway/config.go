// Package gateway assembles the pump gateway: MQTT ingest and status
// publishing, the HTTP API, the shared state store and sqlite history.
package gateway

import (
	"github.com/pumpgate-io/pumpgate/pkg/options"
)

// Config is the fully validated runtime configuration.
type Config struct {
	Mqtt   *options.MqttOptions
	Http   *options.HttpOptions
	Sqlite *options.SqliteOptions
}

// NewConfig returns a Config with defaults for every component.
func NewConfig() *Config {
	return &Config{
		Mqtt:   options.NewMqttOptions(),
		Http:   options.NewHttpOptions(),
		Sqlite: options.NewSqliteOptions(),
	}
}

// New builds a Gateway from the configuration.
func (cfg *Config) New() (*Gateway, error) {
	return newGateway(cfg)
}
