// Package config loads go-ev3way settings from the environment.
//
// Every variable is prefixed with EV3WAY_, control constants additionally
// with CREW_ (for example EV3WAY_CREW_TAIL_GAIN). Command-line flags in
// cmd/ev3way override what is loaded here.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"

	"github.com/teslashibe/go-ev3way/pkg/crew"
)

// Prefix is prepended to every environment variable.
const Prefix = "EV3WAY_"

// Config is the full process configuration.
type Config struct {
	Env      string `env:"ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTPAddr serves the status dashboard and operator link. Empty disables it.
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// SerialPort is the Bluetooth SPP device for remote start. Empty disables it.
	SerialPort string `env:"SERIAL_PORT"`
	SerialBaud int    `env:"SERIAL_BAUD" envDefault:"115200"`

	// Logbook is the SQLite file missions are recorded to. Empty disables it.
	Logbook string `env:"LOGBOOK" envDefault:"ev3way.db"`

	// OTelEndpoint is an OTLP/HTTP collector. Empty disables tracing.
	OTelEndpoint string `env:"OTEL_ENDPOINT"`

	Crew crew.Config `envPrefix:"CREW_"`
}

// ParseEnv loads target from prefixed environment variables.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: Prefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load returns the process configuration, validated.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Crew.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
