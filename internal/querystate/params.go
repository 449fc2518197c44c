package querystate

import "slices"

// Param declares a named URL parameter, its default and, optionally, the
// values it accepts. Values outside Allowed read as the default.
type Param struct {
	Name    string
	Default string
	Allowed []string
}

func (p Param) accepts(v string) bool {
	if len(p.Allowed) == 0 {
		return true
	}
	return slices.Contains(p.Allowed, v)
}

// Parameters recognised by the dashboard.
var (
	App = Param{Name: "app"}

	Range = Param{
		Name:    "range",
		Default: "30d",
		Allowed: []string{"7d", "30d", "180d", "360d"},
	}

	Metric = Param{
		Name:    "metric",
		Default: "total",
		Allowed: []string{"total", "dau", "new"},
	}

	// TimeRange scopes the realtime widgets.
	TimeRange = Param{
		Name:    "timeRange",
		Default: "30m",
		Allowed: []string{"30m", "1h", "24h"},
	}

	Page = Param{Name: "page", Default: "1"}

	PageSize = Param{
		Name:    "pageSize",
		Default: "20",
		Allowed: []string{"10", "20", "50", "100"},
	}

	Platform = Param{Name: "platform"}

	EventName = Param{Name: "name"}

	Tab = Param{
		Name:    "tab",
		Default: "overview",
		Allowed: []string{"overview", "users", "sessions", "events"},
	}
)

// Dashboard is the full set of declared parameters.
var Dashboard = []Param{App, Range, Metric, TimeRange, Page, PageSize, Platform, EventName, Tab}
