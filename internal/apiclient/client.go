// Package apiclient is a typed client for the PulseMetric analytics backend.
// Each method maps one backend route to one result type. Requests are not
// retried here; retry policy belongs to the query cache.
package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"resty.dev/v3"
)

// Config holds backend client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// APIKey is sent as a bearer token when set.
	APIKey string
}

type Client struct {
	rest *resty.Client
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	rest := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		rest.SetAuthToken(cfg.APIKey)
	}

	return &Client{rest: rest}
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.rest.Close()
}

type call struct {
	method string
	path   string
	query  map[string]string
	params map[string]string
	body   any
	out    any
}

func (c *Client) do(ctx context.Context, cl call) error {
	req := c.rest.R().SetContext(ctx)
	if len(cl.query) > 0 {
		req.SetQueryParams(cl.query)
	}
	if len(cl.params) > 0 {
		req.SetPathParams(cl.params)
	}
	if cl.body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(cl.body)
	}
	if cl.out != nil {
		req.SetResult(cl.out)
	}

	resp, err := req.Execute(cl.method, cl.path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", ErrUnreachable, cl.method, cl.path, err)
	}

	if resp.IsError() {
		return &StatusError{
			Method:  cl.method,
			Path:    cl.path,
			Status:  resp.StatusCode(),
			Message: strings.TrimSpace(resp.String()),
		}
	}
	return nil
}

func appQuery(appID string, kv ...string) map[string]string {
	q := map[string]string{"app": appID}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			q[kv[i]] = kv[i+1]
		}
	}
	return q
}

func pageQuery(appID string, p PageParams, kv ...string) map[string]string {
	q := appQuery(appID, kv...)
	if p.Page > 0 {
		q["page"] = strconv.Itoa(p.Page)
	}
	if p.PageSize > 0 {
		q["pageSize"] = strconv.Itoa(p.PageSize)
	}
	return q
}

func (c *Client) ListApps(ctx context.Context) ([]App, error) {
	var out []App
	err := c.do(ctx, call{method: http.MethodGet, path: "/apps", out: &out})
	return out, err
}

func (c *Client) RealtimeStats(ctx context.Context, appID, timeRange string) (RealtimeStats, error) {
	var out RealtimeStats
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/stats/realtime",
		query:  appQuery(appID, "timeRange", timeRange),
		out:    &out,
	})
	return out, err
}

func (c *Client) Overview(ctx context.Context, appID, rng string) (Overview, error) {
	var out Overview
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/stats/overview",
		query:  appQuery(appID, "range", rng),
		out:    &out,
	})
	return out, err
}

func (c *Client) TimeSeries(ctx context.Context, appID, rng, metric string) (TimeSeries, error) {
	var out TimeSeries
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/stats/timeseries",
		query:  appQuery(appID, "range", rng, "metric", metric),
		out:    &out,
	})
	return out, err
}

func (c *Client) GeoDistribution(ctx context.Context, appID, rng string) ([]Bucket, error) {
	var out []Bucket
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/stats/geo",
		query:  appQuery(appID, "range", rng),
		out:    &out,
	})
	return out, err
}

func (c *Client) PlatformDistribution(ctx context.Context, appID, rng string) ([]Bucket, error) {
	var out []Bucket
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/stats/platforms",
		query:  appQuery(appID, "range", rng),
		out:    &out,
	})
	return out, err
}

func (c *Client) ListUsers(ctx context.Context, appID string, p PageParams) (Page[User], error) {
	var out Page[User]
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/users",
		query:  pageQuery(appID, p),
		out:    &out,
	})
	return out, err
}

func (c *Client) GetUser(ctx context.Context, appID, userID string) (User, error) {
	var out User
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/users/{id}",
		query:  appQuery(appID),
		params: map[string]string{"id": userID},
		out:    &out,
	})
	return out, err
}

func (c *Client) ListSessions(ctx context.Context, appID string, f SessionFilter) (Page[Session], error) {
	var out Page[Session]
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/sessions",
		query:  pageQuery(appID, f.PageParams, "platform", f.Platform),
		out:    &out,
	})
	return out, err
}

func (c *Client) ListEvents(ctx context.Context, appID string, f EventFilter) (Page[Event], error) {
	var out Page[Event]
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/events",
		query:  pageQuery(appID, f.PageParams, "name", f.Name),
		out:    &out,
	})
	return out, err
}

func (c *Client) TopEvents(ctx context.Context, appID, rng string, limit int) ([]Bucket, error) {
	var out []Bucket
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/events/top",
		query:  appQuery(appID, "range", rng, "limit", strconv.Itoa(limit)),
		out:    &out,
	})
	return out, err
}

func (c *Client) GetSettings(ctx context.Context, appID string) (Settings, error) {
	var out Settings
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/settings",
		query:  appQuery(appID),
		out:    &out,
	})
	return out, err
}

// UpdateSettings replaces the app settings and returns the stored values.
func (c *Client) UpdateSettings(ctx context.Context, appID string, s Settings) (Settings, error) {
	var out Settings
	err := c.do(ctx, call{
		method: http.MethodPut,
		path:   "/settings",
		query:  appQuery(appID),
		body:   s,
		out:    &out,
	})
	return out, err
}

func (c *Client) ListAPIKeys(ctx context.Context, appID string) ([]APIKey, error) {
	var out []APIKey
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/apikeys",
		query:  appQuery(appID),
		out:    &out,
	})
	return out, err
}

// CreateAPIKey returns the created key. Key holds the secret; it is only
// present in this response.
func (c *Client) CreateAPIKey(ctx context.Context, appID string, in CreateAPIKeyRequest) (APIKey, error) {
	var out APIKey
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/apikeys",
		query:  appQuery(appID),
		body:   in,
		out:    &out,
	})
	return out, err
}

func (c *Client) DeleteAPIKey(ctx context.Context, appID, keyID string) error {
	return c.do(ctx, call{
		method: http.MethodDelete,
		path:   "/apikeys/{id}",
		query:  appQuery(appID),
		params: map[string]string{"id": keyID},
	})
}
