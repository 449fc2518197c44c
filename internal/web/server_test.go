package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/coder/quartz"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/apiclient"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/dashboard"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/logging"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/querycache"
)

const testOrigin = "http://localhost:8080"

func newTestServer(t *testing.T, backend dashboard.Backend) *Server {
	t.Helper()
	log := logging.Discard()
	clock := quartz.NewMock(t)

	cache, err := querycache.New(querycache.Config{Clock: clock, Retries: -1, Logger: log})
	if err != nil {
		t.Fatalf("querycache.New() error = %v", err)
	}
	t.Cleanup(cache.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	svc := dashboard.NewService(ctx, backend, cache, dashboard.Options{Logger: log})

	s, err := NewServer(Config{Addr: ":0"}, svc, Options{Logger: log, Clock: clock})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return s
}

// hxRequest builds a request as htmx would send it from the page at current.
func hxRequest(method, target, current string, form url.Values) *http.Request {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Current-URL", testOrigin+current)
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

// countingBackend counts every app-scoped read.
func countingBackend(calls *atomic.Int32) *dashboard.MockBackend {
	count := func() { calls.Add(1) }
	return &dashboard.MockBackend{
		RealtimeStatsFunc: func(context.Context, string, string) (apiclient.RealtimeStats, error) {
			count()
			return apiclient.RealtimeStats{}, nil
		},
		OverviewFunc: func(context.Context, string, string) (apiclient.Overview, error) {
			count()
			return apiclient.Overview{}, nil
		},
		TimeSeriesFunc: func(context.Context, string, string, string) (apiclient.TimeSeries, error) {
			count()
			return apiclient.TimeSeries{}, nil
		},
		GeoDistributionFunc: func(context.Context, string, string) ([]apiclient.Bucket, error) {
			count()
			return nil, nil
		},
		PlatformDistributionFunc: func(context.Context, string, string) ([]apiclient.Bucket, error) {
			count()
			return nil, nil
		},
		TopEventsFunc: func(context.Context, string, string, int) ([]apiclient.Bucket, error) {
			count()
			return nil, nil
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
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &dashboard.MockBackend{})
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("GET /health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestNoAppSelected_NeverCallsBackend(t *testing.T) {
	var calls atomic.Int32
	s := newTestServer(t, countingBackend(&calls))

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"overview page", httptest.NewRequest(http.MethodGet, "/?range=7d", nil)},
		{"users page", httptest.NewRequest(http.MethodGet, "/users", nil)},
		{"overview section", hxRequest(http.MethodGet, "/sections/overview", "/?range=7d", nil)},
		{"realtime section", hxRequest(http.MethodGet, "/sections/realtime", "/", nil)},
		{"apikeys section", hxRequest(http.MethodGet, "/sections/apikeys", "/settings", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, tt.req)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), "No App Selected") {
				t.Errorf("expected placeholder, got:\n%s", rec.Body.String())
			}
		})
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("expected zero app-scoped backend calls, got %d", n)
	}
}

func TestPage_RendersLayoutAndSkeletons(t *testing.T) {
	s := newTestServer(t, &dashboard.MockBackend{
		ListAppsFunc: func(context.Context) ([]apiclient.App, error) {
			return []apiclient.App{{ID: "a1", Name: "Shop"}, {ID: "a2", Name: "Blog"}}, nil
		},
	})
	req := httptest.NewRequest(http.MethodGet, "/?app=a1", nil)
	req.AddCookie(&http.Cookie{Name: themeCookie, Value: "dark"})
	rec := serve(s, req)

	body := rec.Body.String()
	for _, want := range []string{
		`data-theme="dark"`,
		`<option value="a1" selected>Shop</option>`,
		`hx-get="/sections/overview"`,
		`hx-get="/sections/realtime"`,
		`id="page"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if c := rec.Result().Cookies(); !slices.ContainsFunc(c, func(c *http.Cookie) bool { return c.Name == visitorCookie }) {
		t.Error("expected a visitor cookie")
	}
}

func TestRangeChange_ReplacesURLAndRefetches(t *testing.T) {
	var (
		mu     sync.Mutex
		ranges []string
	)
	s := newTestServer(t, &dashboard.MockBackend{
		OverviewFunc: func(_ context.Context, appID, rng string) (apiclient.Overview, error) {
			mu.Lock()
			ranges = append(ranges, rng)
			mu.Unlock()
			return apiclient.Overview{TotalUsers: 1500}, nil
		},
	})

	rec := serve(s, hxRequest(http.MethodGet, "/?range=7d", "/?app=a1&range=30d", nil))
	if got := rec.Header().Get("HX-Replace-Url"); got != "/?app=a1&range=7d" {
		t.Errorf("HX-Replace-Url = %q, want /?app=a1&range=7d", got)
	}
	body := rec.Body.String()
	if strings.Contains(body, "<html") {
		t.Error("htmx page request should get the page body only")
	}
	if !strings.Contains(body, `<a href="/?app=a1&amp;range=7d" hx-get="/?range=7d" hx-target="#page" hx-swap="outerHTML" class="active"`) {
		t.Errorf("expected 7d to be the active range, got:\n%s", body)
	}

	rec = serve(s, hxRequest(http.MethodGet, "/sections/overview", "/?app=a1&range=7d", nil))
	if !strings.Contains(rec.Body.String(), "1.5K") {
		t.Errorf("expected overview data, got:\n%s", rec.Body.String())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ranges) == 0 || slices.Contains(ranges, "30d") {
		t.Errorf("overview fetched for ranges %v, want only 7d", ranges)
	}
}

func TestSection_FilterChangeResetsPage(t *testing.T) {
	var got apiclient.SessionFilter
	s := newTestServer(t, &dashboard.MockBackend{
		ListSessionsFunc: func(_ context.Context, _ string, f apiclient.SessionFilter) (apiclient.Page[apiclient.Session], error) {
			got = f
			return apiclient.Page[apiclient.Session]{
				Items: []apiclient.Session{{ID: "s1", UserID: "u1", Platform: f.Platform}},
				Page:  f.Page, PageSize: f.PageSize, Total: 1,
			}, nil
		},
	})

	rec := serve(s, hxRequest(http.MethodGet, "/sections/sessions?platform=ios", "/sessions?app=a1&page=3", nil))

	if want := "/sessions?app=a1&platform=ios"; rec.Header().Get("HX-Replace-Url") != want {
		t.Errorf("HX-Replace-Url = %q, want %q", rec.Header().Get("HX-Replace-Url"), want)
	}
	if got.Page != 1 || got.Platform != "ios" || got.PageSize != 20 {
		t.Errorf("ListSessions filter = %+v", got)
	}
	if !strings.Contains(rec.Body.String(), `id="section-sessions"`) {
		t.Errorf("expected the sessions section, got:\n%s", rec.Body.String())
	}
}

func TestSection_Unknown(t *testing.T) {
	s := newTestServer(t, &dashboard.MockBackend{})
	rec := serve(s, hxRequest(http.MethodGet, "/sections/nope", "/?app=a1", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSection_RealtimePolls(t *testing.T) {
	s := newTestServer(t, &dashboard.MockBackend{
		RealtimeStatsFunc: func(_ context.Context, _, tr string) (apiclient.RealtimeStats, error) {
			return apiclient.RealtimeStats{ActiveUsers: 4, TimeRange: tr}, nil
		},
	})
	rec := serve(s, hxRequest(http.MethodGet, "/sections/realtime?timeRange=1h", "/?app=a1", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `hx-trigger="every 10s"`) || !strings.Contains(body, "last 1h") {
		t.Errorf("expected polling realtime section, got:\n%s", body)
	}
}

// keyStore backs the API key endpoints of a mock backend.
type keyStore struct {
	mu   sync.Mutex
	keys []apiclient.APIKey
}

func (k *keyStore) backend() *dashboard.MockBackend {
	return &dashboard.MockBackend{
		ListAPIKeysFunc: func(context.Context, string) ([]apiclient.APIKey, error) {
			k.mu.Lock()
			defer k.mu.Unlock()
			return slices.Clone(k.keys), nil
		},
		CreateAPIKeyFunc: func(_ context.Context, _ string, in apiclient.CreateAPIKeyRequest) (apiclient.APIKey, error) {
			k.mu.Lock()
			defer k.mu.Unlock()
			key := apiclient.APIKey{ID: "k9", Name: in.Name, Prefix: "pm_k9", Key: "pm_k9_secret"}
			k.keys = append(k.keys, apiclient.APIKey{ID: key.ID, Name: key.Name, Prefix: key.Prefix})
			return key, nil
		},
		DeleteAPIKeyFunc: func(_ context.Context, _, id string) error {
			k.mu.Lock()
			defer k.mu.Unlock()
			k.keys = slices.DeleteFunc(k.keys, func(a apiclient.APIKey) bool { return a.ID == id })
			return nil
		},
	}
}

func TestDeleteAPIKey_RerendersListWithoutKey(t *testing.T) {
	store := &keyStore{keys: []apiclient.APIKey{{ID: "k1", Name: "ci"}, {ID: "k2", Name: "prod"}}}
	s := newTestServer(t, store.backend())

	rec := serve(s, hxRequest(http.MethodGet, "/sections/apikeys", "/settings?app=a1", nil))
	if !strings.Contains(rec.Body.String(), `hx-delete="/apikeys/k1?app=a1"`) {
		t.Fatalf("expected k1 in the list, got:\n%s", rec.Body.String())
	}

	rec = serve(s, hxRequest(http.MethodDelete, "/apikeys/k1?app=a1", "/settings?app=a1", nil))
	body := rec.Body.String()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(body, "/apikeys/k1") {
		t.Errorf("deleted key still listed:\n%s", body)
	}
	if !strings.Contains(body, `hx-delete="/apikeys/k2?app=a1"`) {
		t.Errorf("remaining key missing:\n%s", body)
	}
}

func TestCreateAPIKey_ShowsSecretOnce(t *testing.T) {
	store := &keyStore{}
	s := newTestServer(t, store.backend())

	rec := serve(s, hxRequest(http.MethodPost, "/apikeys?app=a1", "/settings?app=a1", url.Values{"name": {"deploy"}}))
	if !strings.Contains(rec.Body.String(), "pm_k9_secret") {
		t.Errorf("expected the new secret, got:\n%s", rec.Body.String())
	}

	rec = serve(s, hxRequest(http.MethodGet, "/sections/apikeys", "/settings?app=a1", nil))
	if strings.Contains(rec.Body.String(), "pm_k9_secret") {
		t.Error("secret shown again on reload")
	}
	if !strings.Contains(rec.Body.String(), "deploy") {
		t.Errorf("expected the created key in the list, got:\n%s", rec.Body.String())
	}
}

func TestCreateAPIKey_PlainFormRedirects(t *testing.T) {
	s := newTestServer(t, (&keyStore{}).backend())
	req := httptest.NewRequest(http.MethodPost, "/apikeys?app=a1", strings.NewReader("name=deploy"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := serve(s, req)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/settings?app=a1" {
		t.Errorf("got %d Location=%q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestMutationFailure_ShowsToast(t *testing.T) {
	s := newTestServer(t, &dashboard.MockBackend{
		DeleteAPIKeyFunc: func(context.Context, string, string) error {
			return &apiclient.StatusError{Status: http.StatusInternalServerError}
		},
	})

	tests := []struct {
		name string
		req  *http.Request
		want string
	}{
		{
			name: "backend error",
			req:  hxRequest(http.MethodDelete, "/apikeys/k1?app=a1", "/settings?app=a1", nil),
			want: "answered 500",
		},
		{
			name: "missing name",
			req:  hxRequest(http.MethodPost, "/apikeys?app=a1", "/settings?app=a1", url.Values{"name": {"  "}}),
			want: "Give the key a name.",
		},
		{
			name: "invalid settings",
			req: hxRequest(http.MethodPost, "/settings?app=a1", "/settings?app=a1", url.Values{
				"appName": {"Shop"}, "retentionDays": {"0"}, "sessionTimeoutMinutes": {"30"},
			}),
			want: "Invalid settings: retention must be at least one day",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, tt.req)
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200 so htmx swaps the toast", rec.Code)
			}
			if rec.Header().Get("HX-Retarget") != "#toast" {
				t.Errorf("HX-Retarget = %q", rec.Header().Get("HX-Retarget"))
			}
			body := rec.Body.String()
			if !strings.Contains(body, "toast-error") || !strings.Contains(body, tt.want) {
				t.Errorf("expected toast with %q, got:\n%s", tt.want, body)
			}
		})
	}
}

func TestUpdateSettings_RendersSavedForm(t *testing.T) {
	var saved apiclient.Settings
	s := newTestServer(t, &dashboard.MockBackend{
		UpdateSettingsFunc: func(_ context.Context, _ string, in apiclient.Settings) (apiclient.Settings, error) {
			saved = in
			return in, nil
		},
	})
	form := url.Values{
		"appName":               {"Shop"},
		"timezone":              {"UTC"},
		"retentionDays":         {"90"},
		"sessionTimeoutMinutes": {"30"},
		"trackAnonymous":        {"true"},
	}
	rec := serve(s, hxRequest(http.MethodPost, "/settings?app=a1", "/settings?app=a1", form))

	want := apiclient.Settings{AppName: "Shop", Timezone: "UTC", RetentionDays: 90, SessionTimeout: 30, TrackAnonymous: true}
	if saved != want {
		t.Errorf("saved %+v, want %+v", saved, want)
	}
	if body := rec.Body.String(); !strings.Contains(body, "Settings saved.") || !strings.Contains(body, `value="Shop"`) {
		t.Errorf("expected saved form, got:\n%s", body)
	}
}

func TestPageSizePreference_AppliesToTables(t *testing.T) {
	var sizes []int
	var mu sync.Mutex
	s := newTestServer(t, &dashboard.MockBackend{
		ListUsersFunc: func(_ context.Context, _ string, p apiclient.PageParams) (apiclient.Page[apiclient.User], error) {
			mu.Lock()
			sizes = append(sizes, p.PageSize)
			mu.Unlock()
			return apiclient.Page[apiclient.User]{}, nil
		},
	})

	req := hxRequest(http.MethodPost, "/prefs/page-size", "/users?app=a1", url.Values{"pageSize": {"50"}})
	rec := serve(s, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("HX-Refresh") != "true" {
		t.Fatalf("got %d HX-Refresh=%q", rec.Code, rec.Header().Get("HX-Refresh"))
	}
	var visitor *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == visitorCookie {
			visitor = c
		}
	}
	if visitor == nil {
		t.Fatal("no visitor cookie")
	}

	req = hxRequest(http.MethodGet, "/sections/users", "/users?app=a1", nil)
	req.AddCookie(visitor)
	serve(s, req)

	mu.Lock()
	defer mu.Unlock()
	if !slices.Contains(sizes, 50) {
		t.Errorf("ListUsers page sizes = %v, want 50", sizes)
	}
}

func TestPageSizePreference_RejectsUnknownSize(t *testing.T) {
	s := newTestServer(t, &dashboard.MockBackend{})
	rec := serve(s, hxRequest(http.MethodPost, "/prefs/page-size", "/users", url.Values{"pageSize": {"7"}}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestThemePreference(t *testing.T) {
	plain := func(theme string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/prefs/theme", strings.NewReader(url.Values{"theme": {theme}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Referer", testOrigin+"/users?app=a1")
		return req
	}

	tests := []struct {
		name         string
		req          *http.Request
		wantCode     int
		wantLocation string
		wantCookie   string
	}{
		{
			name:       "htmx dark",
			req:        hxRequest(http.MethodPost, "/prefs/theme", "/users?app=a1", url.Values{"theme": {"dark"}}),
			wantCode:   http.StatusNoContent,
			wantCookie: "dark",
		},
		{
			name:         "plain form light",
			req:          plain("light"),
			wantCode:     http.StatusSeeOther,
			wantLocation: "/users?app=a1",
			wantCookie:   "light",
		},
		{
			name:     "unknown theme",
			req:      plain("purple"),
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &dashboard.MockBackend{})
			rec := serve(s, tt.req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := rec.Header().Get("Location"); got != tt.wantLocation {
				t.Errorf("Location = %q, want %q", got, tt.wantLocation)
			}
			var got string
			for _, c := range rec.Result().Cookies() {
				if c.Name == themeCookie {
					got = c.Value
				}
			}
			if got != tt.wantCookie {
				t.Errorf("theme cookie = %q, want %q", got, tt.wantCookie)
			}
		})
	}
}

func TestThemePreference_CookieSelectsTheme(t *testing.T) {
	s := newTestServer(t, &dashboard.MockBackend{})
	rec := serve(s, hxRequest(http.MethodPost, "/prefs/theme", "/", url.Values{"theme": {"dark"}}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	body := serve(s, req).Body.String()
	if !strings.Contains(body, `data-theme="dark"`) {
		t.Error("page did not pick up the dark theme")
	}
	if !strings.Contains(body, `name="theme" value="light"`) {
		t.Error("toggle should offer the light theme")
	}
}
