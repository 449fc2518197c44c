package querystate

import (
	"net/http/httptest"
	"net/url"
	"testing"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestStore_WriteReadRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		param Param
		value string
	}{
		{"app", App, "app-1"},
		{"range", Range, "7d"},
		{"metric", Metric, "dau"},
		{"page", Page, "3"},
		{"undeclared", Param{Name: "foo"}, "bar"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(mustURL(t, "/"), Dashboard...)
			s.Write(tt.param.Name, tt.value)

			got, ok := s.Read(tt.param.Name)
			if !ok || got != tt.value {
				t.Errorf("Read(%q) = %q, %v; want %q, true", tt.param.Name, got, ok, tt.value)
			}
			if g := s.Get(tt.param.Name); g != tt.value {
				t.Errorf("Get(%q) = %q, want %q", tt.param.Name, g, tt.value)
			}
		})
	}
}

func TestStore_DeleteFallsBackToDefault(t *testing.T) {
	s := New(mustURL(t, "/?range=7d&metric=dau"), Dashboard...)

	s.Delete("range")
	if _, ok := s.Read("range"); ok {
		t.Error("expected range to be absent after delete")
	}
	if got := s.Get("range"); got != "30d" {
		t.Errorf("expected default 30d, got %q", got)
	}

	s.Write("metric", "")
	if got := s.Get("metric"); got != "total" {
		t.Errorf("expected empty write to remove metric, got %q", got)
	}
}

func TestStore_InvalidValueReadsAsDefault(t *testing.T) {
	s := New(mustURL(t, "/?range=9y&pageSize=7"), Dashboard...)

	if got := s.Get("range"); got != "30d" {
		t.Errorf("expected default range, got %q", got)
	}
	if got := s.Int("pageSize", 20); got != 20 {
		t.Errorf("expected default page size, got %d", got)
	}
	if raw, _ := s.Read("range"); raw != "9y" {
		t.Errorf("Read should return the raw value, got %q", raw)
	}
}

func TestStore_AbsentAppHasNoDefault(t *testing.T) {
	s := FromRequest(httptest.NewRequest("GET", "/users?range=7d", nil))
	if _, ok := s.Read("app"); ok {
		t.Error("expected app to be absent")
	}
	if got := s.Get("app"); got != "" {
		t.Errorf("expected empty app, got %q", got)
	}
}

func TestStore_BatchSingleNotificationPerParam(t *testing.T) {
	s := New(mustURL(t, "/?range=30d&page=4"), Dashboard...)

	var rangeCalls, pageCalls int
	s.Subscribe("range", func(old, new string) {
		rangeCalls++
		if old != "30d" || new != "7d" {
			t.Errorf("range change = %q -> %q", old, new)
		}
		// The batch is applied before anyone is told about it.
		if p := s.Get("page"); p != "1" {
			t.Errorf("expected page reset visible during notification, got %q", p)
		}
	})
	s.Subscribe("page", func(old, new string) { pageCalls++ })

	s.Batch(func(tx *Tx) {
		tx.Set("range", "180d")
		tx.Set("range", "7d")
		tx.Delete("page")
	})

	if rangeCalls != 1 {
		t.Errorf("expected 1 range notification, got %d", rangeCalls)
	}
	if pageCalls != 1 {
		t.Errorf("expected 1 page notification, got %d", pageCalls)
	}
	if got := s.URL(); got != "/?range=7d" {
		t.Errorf("URL() = %q", got)
	}
}

func TestStore_NoNotificationWithoutChange(t *testing.T) {
	s := New(mustURL(t, "/"), Dashboard...)
	called := false
	s.Subscribe("range", func(string, string) { called = true })

	// Writing the default explicitly does not change the effective value.
	s.Write("range", "30d")
	if called {
		t.Error("subscriber should not fire when the effective value is unchanged")
	}
}

func TestStore_Unsubscribe(t *testing.T) {
	s := New(mustURL(t, "/"), Dashboard...)
	calls := 0
	stop := s.Subscribe("metric", func(string, string) { calls++ })

	s.Write("metric", "dau")
	stop()
	s.Write("metric", "new")

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestStore_With(t *testing.T) {
	s := New(mustURL(t, "/?app=a1&range=30d&page=2"), Dashboard...)

	got := s.With("/sections/timeseries", "range", "7d", "page", "")
	want := "/sections/timeseries?app=a1&range=7d"
	if got != want {
		t.Errorf("With() = %q, want %q", got, want)
	}
	if s.Get("range") != "30d" {
		t.Error("With must not modify the store")
	}
}
