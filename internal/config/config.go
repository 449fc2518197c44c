// Package config loads process configuration from PULSEMETRIC_* environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const prefix = "PULSEMETRIC"

// Server holds the dashboard HTTP server configuration.
type Server struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	DefaultPageSize int           `envconfig:"DEFAULT_PAGE_SIZE" default:"20"`
}

// API holds the analytics backend connection.
type API struct {
	BaseURL string        `envconfig:"API_BASE_URL" default:"http://localhost:8081/api"`
	Timeout time.Duration `envconfig:"API_TIMEOUT" default:"10s"`
	Key     string        `envconfig:"API_KEY"`
}

// Cache holds query cache tuning.
type Cache struct {
	GCTime               time.Duration `envconfig:"CACHE_GC_TIME" default:"5m"`
	Retries              int           `envconfig:"CACHE_RETRIES" default:"3"`
	RealtimePollInterval time.Duration `envconfig:"REALTIME_POLL_INTERVAL" default:"10s"`
}

type Log struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"text"`
}

// OTel holds the OTLP metrics exporter configuration.
type OTel struct {
	Enabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	Endpoint string `envconfig:"OTEL_ENDPOINT"`
	Insecure bool   `envconfig:"OTEL_INSECURE" default:"false"`
}

// DevAPI holds the configuration of the local stub backend.
type DevAPI struct {
	Addr string `envconfig:"DEVAPI_ADDR" default:":8081"`
	// DatabaseURL is a libsql URL; empty uses a file in the XDG data dir.
	DatabaseURL string `envconfig:"DEVAPI_DATABASE_URL"`
	Seed        bool   `envconfig:"DEVAPI_SEED" default:"true"`
}

// Serve is the configuration of `pulsemetric serve`.
type Serve struct {
	Server Server
	API    API
	Cache  Cache
	Log    Log
	OTel   OTel
}

// Dev is the configuration of `pulsemetric devapi`.
type Dev struct {
	DevAPI DevAPI
	Log    Log
}

// LoadServe loads serve configuration from environment variables.
func LoadServe() (*Serve, error) {
	var cfg Serve
	for _, part := range []any{&cfg.Server, &cfg.API, &cfg.Cache, &cfg.Log, &cfg.OTel} {
		if err := envconfig.Process(prefix, part); err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDev loads devapi configuration from environment variables.
func LoadDev() (*Dev, error) {
	var cfg Dev
	for _, part := range []any{&cfg.DevAPI, &cfg.Log} {
		if err := envconfig.Process(prefix, part); err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}
	return &cfg, nil
}

func (c *Serve) validate() error {
	switch {
	case c.API.BaseURL == "":
		return fmt.Errorf("%s_API_BASE_URL is required", prefix)
	case c.Cache.RealtimePollInterval < time.Second:
		return fmt.Errorf("%s_REALTIME_POLL_INTERVAL must be at least 1s", prefix)
	case c.OTel.Enabled && c.OTel.Endpoint == "":
		return fmt.Errorf("%s_OTEL_ENDPOINT is required when OTEL is enabled", prefix)
	}
	switch c.Server.DefaultPageSize {
	case 10, 20, 50, 100:
	default:
		return fmt.Errorf("%s_DEFAULT_PAGE_SIZE must be one of 10, 20, 50, 100", prefix)
	}
	return nil
}
