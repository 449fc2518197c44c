package components

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/apiclient"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/dashboard"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/querycache"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var b strings.Builder
	if err := c.Render(context.Background(), &b); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return b.String()
}

func overviewProps() SectionProps {
	return SectionProps{Name: "overview", Title: "Overview", URL: "/sections/overview?app=a1&range=7d"}
}

func overviewBody(o apiclient.Overview) templ.Component { return OverviewCards(o) }

func TestSection_RendersEachState(t *testing.T) {
	tests := []struct {
		name   string
		result querycache.Result[apiclient.Overview]
		want   []string
		reject []string
	}{
		{
			name:   "loading",
			result: querycache.Loading[apiclient.Overview](),
			want:   []string{`hx-trigger="load"`, `aria-busy="true"`, `hx-get="/sections/overview?app=a1&amp;range=7d"`},
		},
		{
			name:   "error",
			result: querycache.Failed[apiclient.Overview](fmt.Errorf("overview: %w", apiclient.ErrUnreachable)),
			want:   []string{`role="alert"`, "unreachable", ">Retry</button>", `hx-target="#section-overview"`},
			reject: []string{"stat-card"},
		},
		{
			name:   "no app",
			result: querycache.Failed[apiclient.Overview](dashboard.ErrNoApp),
			want:   []string{"No App Selected"},
			reject: []string{"Retry"},
		},
		{
			name:   "success",
			result: querycache.Succeeded(apiclient.Overview{TotalUsers: 1500}),
			want:   []string{`class="section ready"`, "1.5K"},
			reject: []string{"refresh-failed"},
		},
		{
			name: "stale after failed refresh",
			result: querycache.Result[apiclient.Overview]{
				Status: querycache.StatusSuccess,
				Value:  apiclient.Overview{TotalUsers: 12},
				Err:    &apiclient.StatusError{Status: 503},
				Stale:  true,
			},
			want: []string{"section ready stale", "Showing earlier data", "503", ">12<"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := render(t, Section(overviewProps(), tt.result, overviewBody))
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			for _, r := range tt.reject {
				if strings.Contains(out, r) {
					t.Errorf("output should not contain %q:\n%s", r, out)
				}
			}
		})
	}
}

func TestSection_Empty(t *testing.T) {
	p := SectionProps{Name: "geo", URL: "/sections/geo", EmptyText: "No visitors yet."}
	out := render(t, Section(p, querycache.Succeeded([]apiclient.Bucket{}), func(b []apiclient.Bucket) templ.Component {
		return DistributionBars(b, nil)
	}))
	if !strings.Contains(out, "No visitors yet.") || strings.Contains(out, "<ul") {
		t.Errorf("expected empty panel, got:\n%s", out)
	}
}

func TestSection_PollingSectionReloadsItself(t *testing.T) {
	p := SectionProps{Name: "realtime", URL: "/sections/realtime?app=a1", PollSeconds: 10}
	r := querycache.Succeeded(apiclient.RealtimeStats{ActiveUsers: 3, TimeRange: "30m"})
	out := render(t, Section(p, r, func(s apiclient.RealtimeStats) templ.Component {
		return RealtimeCard(s, time.Now(), nil)
	}))
	if !strings.Contains(out, `hx-trigger="every 10s"`) {
		t.Errorf("expected polling trigger, got:\n%s", out)
	}
}

func TestDistributionBars_EscapesKeys(t *testing.T) {
	buckets := []apiclient.Bucket{{Key: "<script>x</script>", Count: 3}, {Key: "ios", Count: 1}}
	out := render(t, DistributionBars(buckets, func(k string) string { return "/sessions?platform=" + k }))

	if strings.Contains(out, "<script>") {
		t.Fatalf("bucket key not escaped:\n%s", out)
	}
	if !strings.Contains(out, "75%") || !strings.Contains(out, "25%") {
		t.Errorf("expected shares, got:\n%s", out)
	}
	if !strings.Contains(out, `href="/sessions?platform=ios"`) {
		t.Errorf("expected platform filter link, got:\n%s", out)
	}
}

func TestChartPath(t *testing.T) {
	tests := []struct {
		name   string
		values []int64
		want   string
	}{
		{"empty", nil, ""},
		{"single", []int64{5}, "8.0,8.0"},
		{"rising", []int64{0, 10}, "8.0,192.0 632.0,8.0"},
		{"all zero", []int64{0, 0}, "8.0,192.0 632.0,192.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChartPath(tt.values); got != tt.want {
				t.Errorf("ChartPath(%v) = %q, want %q", tt.values, got, tt.want)
			}
		})
	}
}

func TestTimeSeriesChart_MarksActiveTab(t *testing.T) {
	ts := apiclient.TimeSeries{Metric: "dau", Range: "7d", Points: []apiclient.Point{{Date: "2026-01-01", Value: 4}, {Date: "2026-01-07", Value: 6}}}
	metrics := []Link{
		{Label: "Total", Href: "/?metric=total", Get: "/sections/timeseries?metric=total"},
		{Label: "DAU", Href: "/?metric=dau", Get: "/sections/timeseries?metric=dau", Active: true},
	}
	out := render(t, TimeSeriesChart(ts, metrics, nil))

	if !strings.Contains(out, `hx-get="/sections/timeseries?metric=dau" hx-target="#section-timeseries" hx-swap="outerHTML" class="active"`) {
		t.Errorf("expected active DAU tab, got:\n%s", out)
	}
	if !strings.Contains(out, "Jan 1") || !strings.Contains(out, "Total: 10") {
		t.Errorf("expected axis and total, got:\n%s", out)
	}
}

func TestPagination(t *testing.T) {
	link := func(n int) Link {
		return Link{Href: fmt.Sprintf("/users?page=%d", n), Get: fmt.Sprintf("/sections/users?page=%d", n)}
	}
	page := apiclient.Page[apiclient.User]{Items: []apiclient.User{{ID: "u1"}}, Page: 1, PageSize: 20, Total: 45}
	pg := Pagination{Section: "users", Page: 1, TotalPages: page.TotalPages(), Total: page.Total, PageLink: link}

	out := render(t, UsersTable(page, func(id string) string { return "/users/" + id }, pg))

	if strings.Contains(out, "Previous") {
		t.Error("first page should have no previous link")
	}
	if !strings.Contains(out, `href="/users?page=2"`) || !strings.Contains(out, "Page 1 of 3") {
		t.Errorf("expected next link and status, got:\n%s", out)
	}
}

func TestAPIKeyList_ShowsSecretOnce(t *testing.T) {
	keys := []apiclient.APIKey{{ID: "k1", Name: "ci", Prefix: "pm_ab12"}}
	props := APIKeyProps{
		CreateURL: "/apikeys?app=a1",
		DeleteURL: func(id string) string { return "/apikeys/" + id + "?app=a1" },
	}

	out := render(t, APIKeyList(keys, props))
	if strings.Contains(out, "new-key") {
		t.Error("no secret should be shown without a created key")
	}
	if !strings.Contains(out, `hx-delete="/apikeys/k1?app=a1"`) {
		t.Errorf("expected delete action, got:\n%s", out)
	}

	props.Created = &apiclient.APIKey{ID: "k2", Key: "pm_secret_value"}
	out = render(t, APIKeyList(keys, props))
	if !strings.Contains(out, "pm_secret_value") {
		t.Errorf("expected created secret, got:\n%s", out)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("x: %w", apiclient.ErrUnreachable), "The analytics service is unreachable."},
		{&apiclient.StatusError{Status: 404}, "Not found."},
		{&apiclient.StatusError{Status: 500}, "The analytics service answered 500 Internal Server Error."},
		{&apiclient.StatusError{Status: 400, Message: "bad range"}, "The analytics service answered 400: bad range"},
		{errors.New("other"), "Something went wrong while loading this section."},
	}
	for _, tt := range tests {
		if got := ErrorMessage(tt.err); got != tt.want {
			t.Errorf("ErrorMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestLayout_AppliesTheme(t *testing.T) {
	out := render(t, Layout(LayoutProps{Title: "Overview", Theme: "dark"}, NoAppSelected()))
	if !strings.Contains(out, `data-theme="dark"`) || !strings.Contains(out, "Switch to light theme") {
		t.Errorf("expected dark theme, got:\n%s", out)
	}
	out = render(t, Layout(LayoutProps{Title: "Overview", Theme: "neon"}, NoAppSelected()))
	if !strings.Contains(out, `data-theme="light"`) {
		t.Error("unknown theme should fall back to light")
	}
}

func TestDistributionBars_BarValues(t *testing.T) {
	out := render(t, DistributionBars([]apiclient.Bucket{{Key: "web", Count: 1}, {Key: "ios", Count: 3}}, nil))
	for _, want := range []string{`<progress class="bar" max="100" value="25.0">`, `<progress class="bar" max="100" value="75.0">`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<a ") {
		t.Errorf("buckets without a link func should not link:\n%s", out)
	}
}

func TestSettingsForm_ChecksTrackAnonymous(t *testing.T) {
	s := apiclient.Settings{AppName: "Shop", RetentionDays: 90, SessionTimeout: 30, TrackAnonymous: true}
	out := render(t, SettingsForm(s, "/settings?app=a1", ""))
	for _, want := range []string{
		`name="trackAnonymous" value="true" checked>`,
		`name="retentionDays" value="90" min="1" required>`,
		`hx-post="/settings?app=a1" hx-target="#section-settings"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	s.TrackAnonymous = false
	if out := render(t, SettingsForm(s, "/settings?app=a1", "")); strings.Contains(out, "checked") {
		t.Errorf("unchecked box rendered as checked:\n%s", out)
	}
}
