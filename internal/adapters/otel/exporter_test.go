package otel

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewExporter_Disabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"disabled", Config{Enabled: false, Endpoint: "localhost:4317"}},
		{"no endpoint", Config{Enabled: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewExporter(context.Background(), tt.cfg); !errors.Is(err, ErrDisabled) {
				t.Errorf("expected ErrDisabled, got %v", err)
			}
		})
	}
}

func TestNew_FallsBackToNoOp(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	m := New(context.Background(), Config{Enabled: true}, log)
	if _, ok := m.(*NoOpExporter); !ok {
		t.Fatalf("expected NoOpExporter, got %T", m)
	}

	counter, err := m.Meter().Int64Counter("test_total")
	if err != nil {
		t.Fatalf("Int64Counter() error = %v", err)
	}
	counter.Add(context.Background(), 1)

	if err := m.Close(context.Background()); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
