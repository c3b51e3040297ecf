// Package app builds the pumpgate command.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pumpgate-io/pumpgate/cmd/pumpgate/app/options"
	"github.com/pumpgate-io/pumpgate/pkg/log"
)

const description = `The pumpgate server bridges field pump hardware to a REST API.

It subscribes to the gateway's MQTT topics, maintains the authoritative
pump state with change detection, serves control and history over HTTP,
publishes a retained status snapshot and persists significant changes to
a local sqlite database.`

// NewServerCommand creates the root cobra command.
func NewServerCommand() *cobra.Command {
	opts := options.NewOptions()
	var configFile string

	cmd := &cobra.Command{
		Use:          "pumpgate",
		Long:         description,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(configFile, cmd.Flags(), opts); err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			return run(opts)
		},
	}

	opts.AddFlags(cmd.Flags())
	cmd.Flags().StringVar(&configFile, "config", "", "Path to a YAML configuration file.")
	return cmd
}

func run(opts *options.Options) error {
	log.Init(opts.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	gw, err := cfg.New()
	if err != nil {
		return err
	}
	log.Info("starting pumpgate", "http", cfg.Http.Addr, "broker", cfg.Mqtt.Broker)
	return gw.Run(ctx)
}

// loadConfig merges an optional YAML file under the flag values. Flags
// set on the command line win over the file; the file wins over
// defaults.
func loadConfig(configFile string, flags *pflag.FlagSet, opts *options.Options) error {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("pumpgate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pumpgate")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("read config file: %w", err)
			}
		}
	}
	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	if err := v.Unmarshal(opts); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// Run executes the command, printing the failure to stderr.
func Run() {
	if err := NewServerCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
