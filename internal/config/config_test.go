package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadServe_Defaults(t *testing.T) {
	cfg, err := LoadServe()
	if err != nil {
		t.Fatalf("LoadServe() error = %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Cache.GCTime != 5*time.Minute || cfg.Cache.RealtimePollInterval != 10*time.Second {
		t.Errorf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.OTel.Enabled {
		t.Error("OTEL should be disabled by default")
	}
}

func TestLoadServe_FromEnv(t *testing.T) {
	t.Setenv("PULSEMETRIC_ADDR", ":9090")
	t.Setenv("PULSEMETRIC_API_BASE_URL", "https://api.example.com")
	t.Setenv("PULSEMETRIC_API_TIMEOUT", "3s")
	t.Setenv("PULSEMETRIC_LOG_FORMAT", "json")
	t.Setenv("PULSEMETRIC_DEFAULT_PAGE_SIZE", "50")

	cfg, err := LoadServe()
	if err != nil {
		t.Fatalf("LoadServe() error = %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.API.BaseURL != "https://api.example.com" || cfg.API.Timeout != 3*time.Second {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.Log.Format != "json" || cfg.Server.DefaultPageSize != 50 {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestLoadServe_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"otel without endpoint", map[string]string{"PULSEMETRIC_OTEL_ENABLED": "true"}, "OTEL_ENDPOINT"},
		{"poll too fast", map[string]string{"PULSEMETRIC_REALTIME_POLL_INTERVAL": "100ms"}, "POLL_INTERVAL"},
		{"page size", map[string]string{"PULSEMETRIC_DEFAULT_PAGE_SIZE": "7"}, "PAGE_SIZE"},
		{"bad duration", map[string]string{"PULSEMETRIC_API_TIMEOUT": "soon"}, "API_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadServe()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadServe() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoadDev(t *testing.T) {
	t.Setenv("PULSEMETRIC_DEVAPI_DATABASE_URL", "file::memory:")
	cfg, err := LoadDev()
	if err != nil {
		t.Fatalf("LoadDev() error = %v", err)
	}
	if cfg.DevAPI.Addr != ":8081" || cfg.DevAPI.DatabaseURL != "file::memory:" || !cfg.DevAPI.Seed {
		t.Errorf("unexpected config %+v", cfg.DevAPI)
	}
}
