package dashboard

import (
	"net/url"
	"testing"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/querystate"
)

func TestSelectionFrom(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		prefPageSize int
		want         Selection
	}{
		{
			name:         "defaults",
			query:        "",
			prefPageSize: 20,
			want: Selection{
				Range: "30d", Metric: "total", TimeRange: "30m", Tab: "overview",
				Page: 1, PageSize: 20,
			},
		},
		{
			name:         "stored page size applies when URL has none",
			query:        "app=a1",
			prefPageSize: 50,
			want: Selection{
				App: "a1", Range: "30d", Metric: "total", TimeRange: "30m", Tab: "overview",
				Page: 1, PageSize: 50,
			},
		},
		{
			name:         "URL page size wins over preference",
			query:        "app=a1&pageSize=100&page=3&range=7d&platform=ios",
			prefPageSize: 50,
			want: Selection{
				App: "a1", Range: "7d", Metric: "total", TimeRange: "30m", Tab: "overview",
				Platform: "ios", Page: 3, PageSize: 100,
			},
		},
		{
			name:         "invalid values fall back",
			query:        "app=a1&pageSize=7&page=-2&metric=bogus",
			prefPageSize: 10,
			want: Selection{
				App: "a1", Range: "30d", Metric: "total", TimeRange: "30m", Tab: "overview",
				Page: 1, PageSize: 10,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, _ := url.Parse("/?" + tt.query)
			got := SelectionFrom(querystate.New(u, querystate.Dashboard...), tt.prefPageSize)
			if got != tt.want {
				t.Errorf("SelectionFrom() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
