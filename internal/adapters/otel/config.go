package otel

import (
	"time"

	"github.com/emiliopalmerini/mtune/internal/infrastructure/config"
)

// Config holds OTEL exporter configuration.
type Config struct {
	Endpoint       string
	Enabled        bool
	Insecure       bool
	ServiceName    string
	ExportInterval time.Duration
}

// ConfigFrom converts the MTUNE_OTEL_* settings.
func ConfigFrom(c config.Otel) Config {
	return Config{
		Endpoint:       c.Endpoint,
		Enabled:        c.Enabled,
		Insecure:       c.Insecure,
		ServiceName:    c.ServiceName,
		ExportInterval: time.Duration(c.ExportInterval) * time.Second,
	}
}
