package web

import (
	"net/url"
	"strconv"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/dashboard"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/querystate"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/web/components"
)

const sectionsPath = "/sections/"

var (
	metricLabels = map[string]string{
		"total": "Total users",
		"dau":   "Daily active",
		"new":   "New users",
	}
	rangeLabels = map[string]string{
		"7d":   "7 days",
		"30d":  "30 days",
		"180d": "180 days",
		"360d": "360 days",
	}
	timeRangeLabels = map[string]string{
		"30m": "30 min",
		"1h":  "1 hour",
		"24h": "24 hours",
	}
)

// fragment returns path with pairs as its query, keeping empty values so the
// server can tell "remove" from "unchanged".
func fragment(path string, pairs ...string) string {
	v := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		v.Set(pairs[i], pairs[i+1])
	}
	if len(v) == 0 {
		return path
	}
	return path + "?" + v.Encode()
}

// view is what a handler knows about the page being rendered.
type view struct {
	st   *querystate.Store
	sel  dashboard.Selection
	page string
	// userID is set on the user detail page.
	userID string
}

// sectionLink changes pairs and reloads only the named section.
func (v view) sectionLink(name, label string, active bool, pairs ...string) components.Link {
	return components.Link{
		Label:  label,
		Href:   v.st.With(v.page, pairs...),
		Get:    fragment(sectionsPath+name, pairs...),
		Active: active,
	}
}

// pageLink changes pairs and reloads every section of the page.
func (v view) pageLink(label string, active bool, pairs ...string) components.Link {
	return components.Link{
		Label:  label,
		Href:   v.st.With(v.page, pairs...),
		Get:    fragment(v.page, pairs...),
		Target: components.PageID,
		Active: active,
	}
}

func (v view) metricLinks() []components.Link {
	out := make([]components.Link, 0, len(querystate.Metric.Allowed))
	for _, m := range querystate.Metric.Allowed {
		out = append(out, v.sectionLink("timeseries", metricLabels[m], m == v.sel.Metric, querystate.Metric.Name, m))
	}
	return out
}

func (v view) rangeLinks() []components.Link {
	out := make([]components.Link, 0, len(querystate.Range.Allowed))
	for _, r := range querystate.Range.Allowed {
		out = append(out, v.pageLink(rangeLabels[r], r == v.sel.Range, querystate.Range.Name, r))
	}
	return out
}

func (v view) timeRangeLinks() []components.Link {
	out := make([]components.Link, 0, len(querystate.TimeRange.Allowed))
	for _, r := range querystate.TimeRange.Allowed {
		out = append(out, v.sectionLink("realtime", timeRangeLabels[r], r == v.sel.TimeRange, querystate.TimeRange.Name, r))
	}
	return out
}

func (v view) pagination(section string, totalPages int, total int64) components.Pagination {
	sizes := make([]components.Link, 0, len(querystate.PageSize.Allowed))
	for _, n := range querystate.PageSize.Allowed {
		sizes = append(sizes, v.sectionLink(section, n+" / page", n == strconv.Itoa(v.sel.PageSize), querystate.PageSize.Name, n))
	}
	return components.Pagination{
		Section:    section,
		Page:       v.sel.Page,
		TotalPages: totalPages,
		Total:      total,
		PageLink: func(n int) components.Link {
			return v.sectionLink(section, strconv.Itoa(n), false, querystate.Page.Name, strconv.Itoa(n))
		},
		Sizes: sizes,
	}
}

func (v view) userURL(id string) string {
	return v.st.With("/users/"+url.PathEscape(id), querystate.Page.Name, "", querystate.PageSize.Name, "")
}

func (v view) platformFilterURL(platform string) string {
	return v.st.With("/sessions", querystate.Platform.Name, platform, querystate.Page.Name, "")
}

func (v view) eventFilterURL(name string) string {
	return v.st.With("/events", querystate.EventName.Name, name, querystate.Page.Name, "")
}

func (v view) nav() []components.Link {
	keep := func(path string) string {
		return v.st.With(path,
			querystate.Page.Name, "",
			querystate.Platform.Name, "",
			querystate.EventName.Name, "",
		)
	}
	items := []struct{ label, path string }{
		{"Overview", "/"},
		{"Users", "/users"},
		{"Sessions", "/sessions"},
		{"Events", "/events"},
		{"Settings", "/settings"},
	}
	out := make([]components.Link, 0, len(items))
	for _, it := range items {
		out = append(out, components.Link{Label: it.label, Href: keep(it.path), Active: it.path == v.page})
	}
	return out
}

// platforms offered by the session filter.
var platforms = []string{"ios", "android", "web"}

func (v view) platformLinks() []components.Link {
	out := []components.Link{v.sectionLink("sessions", "All", v.sel.Platform == "", querystate.Platform.Name, "", querystate.Page.Name, "")}
	for _, p := range platforms {
		out = append(out, v.sectionLink("sessions", p, p == v.sel.Platform, querystate.Platform.Name, p, querystate.Page.Name, ""))
	}
	return out
}

// settingsAction and apiKeyAction carry the app in the query so plain form
// posts work without htmx.
func (v view) settingsAction() string {
	return "/settings?" + url.Values{querystate.App.Name: {v.sel.App}}.Encode()
}

func (v view) apiKeyAction(id string) string {
	q := "?" + url.Values{querystate.App.Name: {v.sel.App}}.Encode()
	if id == "" {
		return "/apikeys" + q
	}
	return "/apikeys/" + url.PathEscape(id) + q
}
