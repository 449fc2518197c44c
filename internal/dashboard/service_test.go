package dashboard

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/apiclient"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/querycache"
)

func newTestService(t *testing.T, clock quartz.Clock, backend Backend) *Service {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	cache, err := querycache.New(querycache.Config{Clock: clock, Retries: -1, Logger: log})
	if err != nil {
		t.Fatalf("querycache.New() error = %v", err)
	}
	t.Cleanup(cache.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewService(ctx, backend, cache, Options{Logger: log})
}

func TestInvalidationTable_CoversEveryMutation(t *testing.T) {
	for _, m := range Mutations() {
		t.Run(m.String(), func(t *testing.T) {
			fn, ok := InvalidationTable[m]
			if !ok {
				t.Fatalf("no invalidation entry for %s", m)
			}
			if len(fn("app-1")) == 0 {
				t.Errorf("%s invalidates nothing", m)
			}
		})
	}
	if len(InvalidationTable) != len(Mutations()) {
		t.Errorf("table has %d entries for %d mutations", len(InvalidationTable), len(Mutations()))
	}
}

func TestService_NoAppNeverCallsBackend(t *testing.T) {
	var calls atomic.Int32
	count := func() { calls.Add(1) }
	mock := &MockBackend{
		RealtimeStatsFunc: func(context.Context, string, string) (apiclient.RealtimeStats, error) {
			count()
			return apiclient.RealtimeStats{}, nil
		},
		OverviewFunc: func(context.Context, string, string) (apiclient.Overview, error) {
			count()
			return apiclient.Overview{}, nil
		},
		ListUsersFunc: func(context.Context, string, apiclient.PageParams) (apiclient.Page[apiclient.User], error) {
			count()
			return apiclient.Page[apiclient.User]{}, nil
		},
		ListAPIKeysFunc: func(context.Context, string) ([]apiclient.APIKey, error) {
			count()
			return nil, nil
		},
	}
	s := newTestService(t, quartz.NewMock(t), mock)
	ctx := context.Background()

	results := []error{
		Load(ctx, s, s.Realtime("", "30m")).Err,
		Load(ctx, s, s.Overview("", "30d")).Err,
		Load(ctx, s, s.Users("", apiclient.PageParams{Page: 1, PageSize: 20})).Err,
		Load(ctx, s, s.APIKeys("")).Err,
	}
	for i, err := range results {
		if !errors.Is(err, ErrNoApp) {
			t.Errorf("query %d: expected ErrNoApp, got %v", i, err)
		}
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("expected zero backend calls, got %d", n)
	}
	if len(s.polled) != 0 {
		t.Error("no poller should start without an app")
	}
}

func TestService_RangeChangeIsolatesSections(t *testing.T) {
	release30d := make(chan struct{})
	mock := &MockBackend{
		TimeSeriesFunc: func(ctx context.Context, appID, rng, metric string) (apiclient.TimeSeries, error) {
			if rng == "30d" {
				select {
				case <-release30d:
				case <-ctx.Done():
					return apiclient.TimeSeries{}, ctx.Err()
				}
			}
			return apiclient.TimeSeries{Range: rng, Metric: metric, Points: []apiclient.Point{{Date: "2026-01-01", Value: 1}}}, nil
		},
	}
	s := newTestService(t, quartz.NewMock(t), mock)
	ctx := context.Background()

	// The 30d request is still in flight when the range switches to 7d.
	pending, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Load(pending, s, s.TimeSeries("app-1", "30d", "total"))
	}()

	r := Load(ctx, s, s.TimeSeries("app-1", "7d", "total"))
	if r.Value.Range != "7d" {
		t.Fatalf("expected 7d series, got %+v", r)
	}

	cancel()
	<-done
	close(release30d)

	got := querycache.Peek[apiclient.TimeSeries](s.cache, StatsKey("timeseries", "app-1", "7d", "total"))
	if got.Value.Range != "7d" {
		t.Errorf("late 30d response leaked into the 7d entry: %+v", got)
	}
}

type keyStore struct {
	mu    sync.Mutex
	keys  []apiclient.APIKey
	lists atomic.Int32
}

func (ks *keyStore) backend() *MockBackend {
	return &MockBackend{
		ListAPIKeysFunc: func(context.Context, string) ([]apiclient.APIKey, error) {
			ks.lists.Add(1)
			ks.mu.Lock()
			defer ks.mu.Unlock()
			return slices.Clone(ks.keys), nil
		},
		DeleteAPIKeyFunc: func(_ context.Context, _, id string) error {
			ks.mu.Lock()
			defer ks.mu.Unlock()
			ks.keys = slices.DeleteFunc(ks.keys, func(k apiclient.APIKey) bool { return k.ID == id })
			return nil
		},
		CreateAPIKeyFunc: func(_ context.Context, _ string, in apiclient.CreateAPIKeyRequest) (apiclient.APIKey, error) {
			ks.mu.Lock()
			defer ks.mu.Unlock()
			k := apiclient.APIKey{ID: "k" + in.Name, Name: in.Name, Key: "pm_secret"}
			ks.keys = append(ks.keys, k)
			return k, nil
		},
	}
}

func TestService_DeleteAPIKeyInvalidatesList(t *testing.T) {
	store := &keyStore{keys: []apiclient.APIKey{{ID: "k1"}, {ID: "k2"}, {ID: "k3"}}}
	s := newTestService(t, quartz.NewMock(t), store.backend())
	ctx := context.Background()

	if r := Load(ctx, s, s.APIKeys("app-1")); len(r.Value) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(r.Value))
	}

	if err := s.DeleteAPIKey(ctx, "app-1", "k2"); err != nil {
		t.Fatalf("DeleteAPIKey() error = %v", err)
	}

	r := Load(ctx, s, s.APIKeys("app-1"))
	if len(r.Value) != 2 || r.Stale {
		t.Errorf("expected fresh list of 2 keys, got %+v", r)
	}
	if n := store.lists.Load(); n != 2 {
		t.Errorf("expected list to be refetched once, got %d fetches", n)
	}
}

func TestService_CreateAPIKey(t *testing.T) {
	store := &keyStore{}
	s := newTestService(t, quartz.NewMock(t), store.backend())
	ctx := context.Background()

	if r := Load(ctx, s, s.APIKeys("app-1")); r.Status != querycache.StatusEmpty {
		t.Fatalf("expected empty list, got %v", r.Status)
	}

	key, err := s.CreateAPIKey(ctx, "app-1", "  ci  ")
	if err != nil {
		t.Fatalf("CreateAPIKey() error = %v", err)
	}
	if key.Name != "ci" || key.Key == "" {
		t.Errorf("unexpected key %+v", key)
	}

	if r := Load(ctx, s, s.APIKeys("app-1")); len(r.Value) != 1 {
		t.Errorf("expected new key in list, got %+v", r)
	}

	if _, err := s.CreateAPIKey(ctx, "app-1", " "); !errors.Is(err, ErrNameRequired) {
		t.Errorf("expected ErrNameRequired, got %v", err)
	}
}

func TestService_FailedMutationKeepsCachedState(t *testing.T) {
	store := &keyStore{keys: []apiclient.APIKey{{ID: "k1"}}}
	mock := store.backend()
	mock.DeleteAPIKeyFunc = func(context.Context, string, string) error {
		return &apiclient.StatusError{Status: 500, Message: "boom"}
	}
	s := newTestService(t, quartz.NewMock(t), mock)
	ctx := context.Background()

	Load(ctx, s, s.APIKeys("app-1"))

	err := s.DeleteAPIKey(ctx, "app-1", "k1")
	var se *apiclient.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected wrapped StatusError, got %v", err)
	}

	r := Load(ctx, s, s.APIKeys("app-1"))
	if len(r.Value) != 1 || store.lists.Load() != 1 {
		t.Errorf("failed delete must leave the cached list alone, got %+v after %d fetches", r, store.lists.Load())
	}
}

func TestService_UpdateSettingsStoresResponse(t *testing.T) {
	var gets atomic.Int32
	mock := &MockBackend{
		GetSettingsFunc: func(context.Context, string) (apiclient.Settings, error) {
			gets.Add(1)
			return apiclient.Settings{AppName: "old", RetentionDays: 30, SessionTimeout: 30}, nil
		},
		UpdateSettingsFunc: func(_ context.Context, _ string, in apiclient.Settings) (apiclient.Settings, error) {
			in.Timezone = "UTC"
			return in, nil
		},
	}
	s := newTestService(t, quartz.NewMock(t), mock)
	ctx := context.Background()

	Load(ctx, s, s.Settings("app-1"))

	in := apiclient.Settings{AppName: "new", RetentionDays: 90, SessionTimeout: 15}
	if _, err := s.UpdateSettings(ctx, "app-1", in); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	r := Load(ctx, s, s.Settings("app-1"))
	if r.Value.AppName != "new" || r.Value.Timezone != "UTC" {
		t.Errorf("expected saved settings, got %+v", r.Value)
	}
	if n := gets.Load(); n != 1 {
		t.Errorf("expected no refetch after update, got %d gets", n)
	}
}

func TestValidateSettings(t *testing.T) {
	valid := apiclient.Settings{AppName: "Shop", RetentionDays: 30, SessionTimeout: 30}

	tests := []struct {
		name    string
		mutate  func(*apiclient.Settings)
		wantErr bool
	}{
		{"valid", func(*apiclient.Settings) {}, false},
		{"blank name", func(s *apiclient.Settings) { s.AppName = "  " }, true},
		{"zero retention", func(s *apiclient.Settings) { s.RetentionDays = 0 }, true},
		{"zero session timeout", func(s *apiclient.Settings) { s.SessionTimeout = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			err := ValidateSettings(in)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSettings() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("expected ErrInvalidSettings, got %v", err)
			}
		})
	}
}

func TestService_RealtimeStartsOnePollerPerKey(t *testing.T) {
	var calls atomic.Int32
	mock := &MockBackend{
		RealtimeStatsFunc: func(_ context.Context, _, tr string) (apiclient.RealtimeStats, error) {
			calls.Add(1)
			return apiclient.RealtimeStats{ActiveUsers: 7, TimeRange: tr}, nil
		},
	}
	mClock := quartz.NewMock(t)
	s := newTestService(t, mClock, mock)

	s.Realtime("app-1", "30m")
	s.Realtime("app-1", "30m")

	if len(s.polled) != 1 {
		t.Fatalf("expected 1 poller, got %d", len(s.polled))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mClock.Advance(DefaultPollInterval).MustWait(ctx)

	r := querycache.Peek[apiclient.RealtimeStats](s.cache, RealtimeKey("app-1", "30m"))
	if r.Value.ActiveUsers != 7 {
		t.Errorf("expected polled stats, got %+v", r)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 fetch per tick, got %d", n)
	}
}

func TestService_IdleRealtimePollerIsReleased(t *testing.T) {
	var calls atomic.Int32
	mock := &MockBackend{
		RealtimeStatsFunc: func(_ context.Context, _, tr string) (apiclient.RealtimeStats, error) {
			calls.Add(1)
			return apiclient.RealtimeStats{ActiveUsers: 7, TimeRange: tr}, nil
		},
	}
	mClock := quartz.NewMock(t)
	s := newTestService(t, mClock, mock)

	s.Realtime("app-1", "30m")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Default GCTime is five minutes: 29 polling ticks, then the idle check.
	for range 30 {
		mClock.Advance(DefaultPollInterval).MustWait(ctx)
	}

	polled := func() int {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.polled)
	}
	deadline := time.Now().Add(5 * time.Second)
	for polled() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("idle poller was never released")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n := calls.Load(); n != 29 {
		t.Errorf("expected 29 fetches, got %d", n)
	}

	s.Realtime("app-1", "30m")
	if n := polled(); n != 1 {
		t.Errorf("a new read should start a new poller, have %d", n)
	}
}
