package dashboard

import (
	"context"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/apiclient"
)

// Backend is the analytics REST API as seen by the dashboard.
// *apiclient.Client implements it.
type Backend interface {
	ListApps(ctx context.Context) ([]apiclient.App, error)

	RealtimeStats(ctx context.Context, appID, timeRange string) (apiclient.RealtimeStats, error)
	Overview(ctx context.Context, appID, rng string) (apiclient.Overview, error)
	TimeSeries(ctx context.Context, appID, rng, metric string) (apiclient.TimeSeries, error)
	GeoDistribution(ctx context.Context, appID, rng string) ([]apiclient.Bucket, error)
	PlatformDistribution(ctx context.Context, appID, rng string) ([]apiclient.Bucket, error)

	ListUsers(ctx context.Context, appID string, p apiclient.PageParams) (apiclient.Page[apiclient.User], error)
	GetUser(ctx context.Context, appID, userID string) (apiclient.User, error)
	ListSessions(ctx context.Context, appID string, f apiclient.SessionFilter) (apiclient.Page[apiclient.Session], error)
	ListEvents(ctx context.Context, appID string, f apiclient.EventFilter) (apiclient.Page[apiclient.Event], error)
	TopEvents(ctx context.Context, appID, rng string, limit int) ([]apiclient.Bucket, error)

	GetSettings(ctx context.Context, appID string) (apiclient.Settings, error)
	UpdateSettings(ctx context.Context, appID string, s apiclient.Settings) (apiclient.Settings, error)
	ListAPIKeys(ctx context.Context, appID string) ([]apiclient.APIKey, error)
	CreateAPIKey(ctx context.Context, appID string, in apiclient.CreateAPIKeyRequest) (apiclient.APIKey, error)
	DeleteAPIKey(ctx context.Context, appID, keyID string) error
}

var _ Backend = (*apiclient.Client)(nil)
