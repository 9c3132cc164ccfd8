package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Storage holds the storage backend location.
type Storage struct {
	URL       string `envconfig:"STORAGE"`
	AuthToken string `envconfig:"AUTH_TOKEN"`
}

// Otel holds the OTLP metrics exporter settings.
type Otel struct {
	Enabled        bool   `envconfig:"OTEL_ENABLED" default:"false"`
	Endpoint       string `envconfig:"OTEL_ENDPOINT" default:"localhost:4317"`
	Insecure       bool   `envconfig:"OTEL_INSECURE" default:"true"`
	ServiceName    string `envconfig:"OTEL_SERVICE_NAME" default:"mtune"`
	ExportInterval int    `envconfig:"OTEL_EXPORT_INTERVAL_SECONDS" default:"10"`
}

// Config is the process-wide configuration read from MTUNE_* variables.
type Config struct {
	Storage   Storage `ignored:"true"`
	Otel      Otel    `ignored:"true"`
	ServePort int     `envconfig:"SERVE_PORT" default:"8080"`
	OutputDir string  `envconfig:"OUTPUT_DIR"`
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("mtune", &cfg.Storage); err != nil {
		return nil, err
	}
	if err := envconfig.Process("mtune", &cfg.Otel); err != nil {
		return nil, err
	}
	if err := envconfig.Process("mtune", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
