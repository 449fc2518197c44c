package dashboard

import (
	"context"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/apiclient"
)

// MockBackend is a mock implementation of Backend for testing.
type MockBackend struct {
	ListAppsFunc             func(ctx context.Context) ([]apiclient.App, error)
	RealtimeStatsFunc        func(ctx context.Context, appID, timeRange string) (apiclient.RealtimeStats, error)
	OverviewFunc             func(ctx context.Context, appID, rng string) (apiclient.Overview, error)
	TimeSeriesFunc           func(ctx context.Context, appID, rng, metric string) (apiclient.TimeSeries, error)
	GeoDistributionFunc      func(ctx context.Context, appID, rng string) ([]apiclient.Bucket, error)
	PlatformDistributionFunc func(ctx context.Context, appID, rng string) ([]apiclient.Bucket, error)
	ListUsersFunc            func(ctx context.Context, appID string, p apiclient.PageParams) (apiclient.Page[apiclient.User], error)
	GetUserFunc              func(ctx context.Context, appID, userID string) (apiclient.User, error)
	ListSessionsFunc         func(ctx context.Context, appID string, f apiclient.SessionFilter) (apiclient.Page[apiclient.Session], error)
	ListEventsFunc           func(ctx context.Context, appID string, f apiclient.EventFilter) (apiclient.Page[apiclient.Event], error)
	TopEventsFunc            func(ctx context.Context, appID, rng string, limit int) ([]apiclient.Bucket, error)
	GetSettingsFunc          func(ctx context.Context, appID string) (apiclient.Settings, error)
	UpdateSettingsFunc       func(ctx context.Context, appID string, s apiclient.Settings) (apiclient.Settings, error)
	ListAPIKeysFunc          func(ctx context.Context, appID string) ([]apiclient.APIKey, error)
	CreateAPIKeyFunc         func(ctx context.Context, appID string, in apiclient.CreateAPIKeyRequest) (apiclient.APIKey, error)
	DeleteAPIKeyFunc         func(ctx context.Context, appID, keyID string) error
}

func (m *MockBackend) ListApps(ctx context.Context) ([]apiclient.App, error) {
	if m.ListAppsFunc != nil {
		return m.ListAppsFunc(ctx)
	}
	return nil, nil
}

func (m *MockBackend) RealtimeStats(ctx context.Context, appID, timeRange string) (apiclient.RealtimeStats, error) {
	if m.RealtimeStatsFunc != nil {
		return m.RealtimeStatsFunc(ctx, appID, timeRange)
	}
	return apiclient.RealtimeStats{}, nil
}

func (m *MockBackend) Overview(ctx context.Context, appID, rng string) (apiclient.Overview, error) {
	if m.OverviewFunc != nil {
		return m.OverviewFunc(ctx, appID, rng)
	}
	return apiclient.Overview{}, nil
}

func (m *MockBackend) TimeSeries(ctx context.Context, appID, rng, metric string) (apiclient.TimeSeries, error) {
	if m.TimeSeriesFunc != nil {
		return m.TimeSeriesFunc(ctx, appID, rng, metric)
	}
	return apiclient.TimeSeries{}, nil
}

func (m *MockBackend) GeoDistribution(ctx context.Context, appID, rng string) ([]apiclient.Bucket, error) {
	if m.GeoDistributionFunc != nil {
		return m.GeoDistributionFunc(ctx, appID, rng)
	}
	return nil, nil
}

func (m *MockBackend) PlatformDistribution(ctx context.Context, appID, rng string) ([]apiclient.Bucket, error) {
	if m.PlatformDistributionFunc != nil {
		return m.PlatformDistributionFunc(ctx, appID, rng)
	}
	return nil, nil
}

func (m *MockBackend) ListUsers(ctx context.Context, appID string, p apiclient.PageParams) (apiclient.Page[apiclient.User], error) {
	if m.ListUsersFunc != nil {
		return m.ListUsersFunc(ctx, appID, p)
	}
	return apiclient.Page[apiclient.User]{}, nil
}

func (m *MockBackend) GetUser(ctx context.Context, appID, userID string) (apiclient.User, error) {
	if m.GetUserFunc != nil {
		return m.GetUserFunc(ctx, appID, userID)
	}
	return apiclient.User{}, nil
}

func (m *MockBackend) ListSessions(ctx context.Context, appID string, f apiclient.SessionFilter) (apiclient.Page[apiclient.Session], error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx, appID, f)
	}
	return apiclient.Page[apiclient.Session]{}, nil
}

func (m *MockBackend) ListEvents(ctx context.Context, appID string, f apiclient.EventFilter) (apiclient.Page[apiclient.Event], error) {
	if m.ListEventsFunc != nil {
		return m.ListEventsFunc(ctx, appID, f)
	}
	return apiclient.Page[apiclient.Event]{}, nil
}

func (m *MockBackend) TopEvents(ctx context.Context, appID, rng string, limit int) ([]apiclient.Bucket, error) {
	if m.TopEventsFunc != nil {
		return m.TopEventsFunc(ctx, appID, rng, limit)
	}
	return nil, nil
}

func (m *MockBackend) GetSettings(ctx context.Context, appID string) (apiclient.Settings, error) {
	if m.GetSettingsFunc != nil {
		return m.GetSettingsFunc(ctx, appID)
	}
	return apiclient.Settings{}, nil
}

func (m *MockBackend) UpdateSettings(ctx context.Context, appID string, s apiclient.Settings) (apiclient.Settings, error) {
	if m.UpdateSettingsFunc != nil {
		return m.UpdateSettingsFunc(ctx, appID, s)
	}
	return s, nil
}

func (m *MockBackend) ListAPIKeys(ctx context.Context, appID string) ([]apiclient.APIKey, error) {
	if m.ListAPIKeysFunc != nil {
		return m.ListAPIKeysFunc(ctx, appID)
	}
	return nil, nil
}

func (m *MockBackend) CreateAPIKey(ctx context.Context, appID string, in apiclient.CreateAPIKeyRequest) (apiclient.APIKey, error) {
	if m.CreateAPIKeyFunc != nil {
		return m.CreateAPIKeyFunc(ctx, appID, in)
	}
	return apiclient.APIKey{Name: in.Name}, nil
}

func (m *MockBackend) DeleteAPIKey(ctx context.Context, appID, keyID string) error {
	if m.DeleteAPIKeyFunc != nil {
		return m.DeleteAPIKeyFunc(ctx, appID, keyID)
	}
	return nil
}
