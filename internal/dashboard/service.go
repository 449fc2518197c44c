// Package dashboard defines what the dashboard reads and writes: one cached
// query per backend resource, the keys that are polled, and the mutations
// together with the cache entries each one invalidates.
package dashboard

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/apiclient"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/querycache"
)

// Staleness windows.
const (
	RealtimeStaleTime = 5 * time.Second
	StatsStaleTime    = time.Minute
	ListStaleTime     = 30 * time.Second
	ConfigStaleTime   = 5 * time.Minute

	DefaultPollInterval = 10 * time.Second
	TopEventsLimit      = 10
)

// ErrNoApp is returned by app-scoped queries when no app is selected.
var ErrNoApp = errors.New("no app selected")

// Service builds cached queries over a Backend and runs mutations.
type Service struct {
	backend      Backend
	cache        *querycache.Cache
	log          logrus.FieldLogger
	pollInterval time.Duration

	// pollCtx scopes realtime pollers.
	pollCtx context.Context
	mu      sync.Mutex
	polled  map[string]struct{}
}

type Options struct {
	PollInterval time.Duration
	Logger       logrus.FieldLogger
}

// NewService creates a Service. Pollers it starts run until ctx is done, the
// cache is closed or their key goes unread for the cache's GCTime.
func NewService(ctx context.Context, backend Backend, cache *querycache.Cache, opts Options) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Service{
		backend:      backend,
		cache:        cache,
		log:          opts.Logger.WithField("component", "dashboard"),
		pollInterval: opts.PollInterval,
		pollCtx:      ctx,
		polled:       map[string]struct{}{},
	}
}

// Load reads q through the service's cache.
func Load[T any](ctx context.Context, s *Service, q querycache.Query[T]) querycache.Result[T] {
	return querycache.Fetch(ctx, s.cache, q)
}

// Prefetch warms q in the background.
func Prefetch[T any](s *Service, q querycache.Query[T]) {
	querycache.Prefetch(s.cache, q)
}

// appQuery builds an app-scoped query. Without an app the fetch fails with
// ErrNoApp and never reaches the backend.
func appQuery[T any](appID string, staleTime time.Duration, key querycache.Key, fetch func(ctx context.Context) (T, error)) querycache.Query[T] {
	return querycache.Query[T]{
		Key:       key,
		StaleTime: staleTime,
		Fetch: func(ctx context.Context) (T, error) {
			if appID == "" {
				var zero T
				return zero, ErrNoApp
			}
			return fetch(ctx)
		},
	}
}

// Keys. The first part names the resource family used for invalidation.

func AppsKey() querycache.Key { return querycache.NewKey("apps") }

func RealtimeKey(appID, timeRange string) querycache.Key {
	return querycache.NewKey("stats", "realtime", appID, timeRange)
}

func StatsKey(kind, appID string, params ...string) querycache.Key {
	return querycache.NewKey(append([]string{"stats", kind, appID}, params...)...)
}

func UsersKey(appID string, p apiclient.PageParams) querycache.Key {
	return querycache.NewKey("users", "list", appID, strconv.Itoa(p.Page), strconv.Itoa(p.PageSize))
}

func UserKey(appID, userID string) querycache.Key {
	return querycache.NewKey("users", "detail", appID, userID)
}

func SessionsKey(appID string, f apiclient.SessionFilter) querycache.Key {
	return querycache.NewKey("sessions", "list", appID, strconv.Itoa(f.Page), strconv.Itoa(f.PageSize), f.Platform)
}

func EventsKey(appID string, f apiclient.EventFilter) querycache.Key {
	return querycache.NewKey("events", "list", appID, strconv.Itoa(f.Page), strconv.Itoa(f.PageSize), f.Name)
}

func TopEventsKey(appID, rng string) querycache.Key {
	return querycache.NewKey("events", "top", appID, rng)
}

func SettingsKey(appID string) querycache.Key { return querycache.NewKey("settings", appID) }

func APIKeysKey(appID string) querycache.Key { return querycache.NewKey("apikeys", appID) }

// Queries.

func (s *Service) Apps() querycache.Query[[]apiclient.App] {
	return querycache.Query[[]apiclient.App]{
		Key:       AppsKey(),
		StaleTime: ConfigStaleTime,
		Fetch:     s.backend.ListApps,
	}
}

// Realtime returns the realtime stats query and makes sure its key is being
// polled, so the widget stays live between reads.
func (s *Service) Realtime(appID, timeRange string) querycache.Query[apiclient.RealtimeStats] {
	q := appQuery(appID, RealtimeStaleTime, RealtimeKey(appID, timeRange), func(ctx context.Context) (apiclient.RealtimeStats, error) {
		return s.backend.RealtimeStats(ctx, appID, timeRange)
	})
	if appID != "" {
		s.poll(q)
	}
	return q
}

func (s *Service) poll(q querycache.Query[apiclient.RealtimeStats]) {
	ks := q.Key.String()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.polled[ks]; ok {
		return
	}
	s.polled[ks] = struct{}{}
	s.log.WithField("key", ks).Debug("starting realtime poller")
	done := querycache.Poll(s.pollCtx, s.cache, q, s.pollInterval)

	// The poller stops by itself once nobody reads the key; the next read
	// starts a new one.
	go func() {
		<-done
		s.mu.Lock()
		delete(s.polled, ks)
		s.mu.Unlock()
	}()
}

func (s *Service) Overview(appID, rng string) querycache.Query[apiclient.Overview] {
	return appQuery(appID, StatsStaleTime, StatsKey("overview", appID, rng), func(ctx context.Context) (apiclient.Overview, error) {
		return s.backend.Overview(ctx, appID, rng)
	})
}

func (s *Service) TimeSeries(appID, rng, metric string) querycache.Query[apiclient.TimeSeries] {
	return appQuery(appID, StatsStaleTime, StatsKey("timeseries", appID, rng, metric), func(ctx context.Context) (apiclient.TimeSeries, error) {
		return s.backend.TimeSeries(ctx, appID, rng, metric)
	})
}

func (s *Service) Geo(appID, rng string) querycache.Query[[]apiclient.Bucket] {
	return appQuery(appID, StatsStaleTime, StatsKey("geo", appID, rng), func(ctx context.Context) ([]apiclient.Bucket, error) {
		return s.backend.GeoDistribution(ctx, appID, rng)
	})
}

func (s *Service) Platforms(appID, rng string) querycache.Query[[]apiclient.Bucket] {
	return appQuery(appID, StatsStaleTime, StatsKey("platforms", appID, rng), func(ctx context.Context) ([]apiclient.Bucket, error) {
		return s.backend.PlatformDistribution(ctx, appID, rng)
	})
}

func (s *Service) Users(appID string, p apiclient.PageParams) querycache.Query[apiclient.Page[apiclient.User]] {
	return appQuery(appID, ListStaleTime, UsersKey(appID, p), func(ctx context.Context) (apiclient.Page[apiclient.User], error) {
		return s.backend.ListUsers(ctx, appID, p)
	})
}

func (s *Service) User(appID, userID string) querycache.Query[apiclient.User] {
	return appQuery(appID, ListStaleTime, UserKey(appID, userID), func(ctx context.Context) (apiclient.User, error) {
		return s.backend.GetUser(ctx, appID, userID)
	})
}

func (s *Service) Sessions(appID string, f apiclient.SessionFilter) querycache.Query[apiclient.Page[apiclient.Session]] {
	return appQuery(appID, ListStaleTime, SessionsKey(appID, f), func(ctx context.Context) (apiclient.Page[apiclient.Session], error) {
		return s.backend.ListSessions(ctx, appID, f)
	})
}

func (s *Service) Events(appID string, f apiclient.EventFilter) querycache.Query[apiclient.Page[apiclient.Event]] {
	return appQuery(appID, ListStaleTime, EventsKey(appID, f), func(ctx context.Context) (apiclient.Page[apiclient.Event], error) {
		return s.backend.ListEvents(ctx, appID, f)
	})
}

func (s *Service) TopEvents(appID, rng string) querycache.Query[[]apiclient.Bucket] {
	return appQuery(appID, StatsStaleTime, TopEventsKey(appID, rng), func(ctx context.Context) ([]apiclient.Bucket, error) {
		return s.backend.TopEvents(ctx, appID, rng, TopEventsLimit)
	})
}

func (s *Service) Settings(appID string) querycache.Query[apiclient.Settings] {
	return appQuery(appID, ConfigStaleTime, SettingsKey(appID), func(ctx context.Context) (apiclient.Settings, error) {
		return s.backend.GetSettings(ctx, appID)
	})
}

func (s *Service) APIKeys(appID string) querycache.Query[[]apiclient.APIKey] {
	return appQuery(appID, ConfigStaleTime, APIKeysKey(appID), func(ctx context.Context) ([]apiclient.APIKey, error) {
		return s.backend.ListAPIKeys(ctx, appID)
	})
}
