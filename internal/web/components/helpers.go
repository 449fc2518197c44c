// Package components renders the dashboard's HTML fragments. Components are
// pure: they receive data and links and never fetch anything.
package components

//go:generate templ generate

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/apiclient"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/dashboard"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/querycache"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/util"
)

const (
	chartWidth  = 640
	chartHeight = 200
	chartPad    = 8
)

// SectionID is the DOM id of a named section.
func SectionID(name string) string { return "section-" + name }

// Section renders r in the state it is in.
func Section[T any](p SectionProps, r querycache.Result[T], body func(T) templ.Component) templ.Component {
	switch r.Status {
	case querycache.StatusError:
		if errors.Is(r.Err, dashboard.ErrNoApp) {
			return NoAppSelected()
		}
		return ErrorPanel(p, r.Err)
	case querycache.StatusEmpty:
		return EmptyPanel(p)
	case querycache.StatusSuccess:
		return ready(p, r.Stale, r.Err, body(r.Value))
	default:
		return Skeleton(p)
	}
}

// ErrorMessage turns a load error into text for the user.
func ErrorMessage(err error) string {
	var se *apiclient.StatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, apiclient.ErrUnreachable):
		return "The analytics service is unreachable."
	case apiclient.IsNotFound(err):
		return "Not found."
	case errors.As(err, &se):
		if se.Message != "" {
			return fmt.Sprintf("The analytics service answered %d: %s", se.Status, se.Message)
		}
		return fmt.Sprintf("The analytics service answered %d %s.", se.Status, http.StatusText(se.Status))
	default:
		return "Something went wrong while loading this section."
	}
}

// ChartPath returns the SVG polyline points for values scaled into the
// chart area, left to right.
func ChartPath(values []int64) string {
	if len(values) == 0 {
		return ""
	}
	var top int64 = 1
	for _, v := range values {
		top = max(top, v)
	}

	w := float64(chartWidth - 2*chartPad)
	hgt := float64(chartHeight - 2*chartPad)
	step := 0.0
	if len(values) > 1 {
		step = w / float64(len(values)-1)
	}

	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(' ')
		}
		x := chartPad + step*float64(i)
		y := chartPad + hgt - hgt*float64(v)/float64(top)
		b.WriteString(strconv.FormatFloat(x, 'f', 1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(y, 'f', 1, 64))
	}
	return b.String()
}

func chartViewBox() string { return fmt.Sprintf("0 0 %d %d", chartWidth, chartHeight) }

func pointValues(ps []apiclient.Point) []int64 {
	values := make([]int64, len(ps))
	for i, p := range ps {
		values[i] = p.Value
	}
	return values
}

func pointTotal(ps []apiclient.Point) int64 {
	var total int64
	for _, p := range ps {
		total += p.Value
	}
	return total
}

func linkTarget(l Link, target string) string {
	if l.Target != "" {
		return "#" + l.Target
	}
	return "#" + target
}

func themeOf(theme string) string {
	if theme == "dark" {
		return "dark"
	}
	return "light"
}

func nextTheme(current string) string {
	if current == "dark" {
		return "light"
	}
	return "dark"
}

func emptyText(p SectionProps) string {
	if p.EmptyText == "" {
		return "No data for this period."
	}
	return p.EmptyText
}

func readyClass(stale bool) string {
	if stale {
		return "ready stale"
	}
	return "ready"
}

func bucketTotal(buckets []apiclient.Bucket) int64 {
	var total int64
	for _, b := range buckets {
		total += b.Count
	}
	return total
}

func share(n, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// barValue is a bucket's share in percent, for a <progress max="100">.
func barValue(n, total int64) string {
	return strconv.FormatFloat(share(n, total)*100, 'f', 1, 64)
}

func (p Pagination) pageLink(n int, label string) Link {
	return labeled(p.PageLink(n), label)
}

func pageStatus(p Pagination) string {
	return fmt.Sprintf("Page %d of %d (%s total)", p.Page, max(p.TotalPages, 1), util.FormatNumber(p.Total))
}

func labeled(l Link, label string) Link {
	l.Label = label
	return l
}

// formatProperties renders props as "k=v" pairs sorted by key.
func formatProperties(props map[string]string) string {
	pairs := make([]string, 0, len(props))
	for _, k := range slices.Sorted(maps.Keys(props)) {
		pairs = append(pairs, k+"="+props[k])
	}
	return strings.Join(pairs, ", ")
}

func userRows(u apiclient.User) [][2]string {
	return [][2]string{
		{"User", u.ID},
		{"Country", u.Country},
		{"Platform", u.Platform},
		{"Sessions", util.FormatNumber(u.Sessions)},
		{"Events", util.FormatNumber(u.Events)},
		{"First seen", util.FormatDateTime(u.FirstSeen)},
		{"Last seen", util.FormatDateTime(u.LastSeen)},
	}
}

func lastUsed(k apiclient.APIKey) string {
	if k.LastUsed == nil {
		return "never"
	}
	return util.FormatDateTime(*k.LastUsed)
}
