package dashboard

import (
	"github.com/ycagraoglu/PulseMetric-sub001/internal/apiclient"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/querystate"
)

// Selection is the UI parameter set of one request, resolved to effective
// values.
type Selection struct {
	App       string
	Range     string
	Metric    string
	TimeRange string
	Platform  string
	EventName string
	Tab       string
	Page      int
	PageSize  int
}

// SelectionFrom resolves st. pageSize is used when the URL does not carry an
// accepted page size, typically the visitor's stored preference.
func SelectionFrom(st *querystate.Store, pageSize int) Selection {
	sel := Selection{
		App:       st.Get(querystate.App.Name),
		Range:     st.Get(querystate.Range.Name),
		Metric:    st.Get(querystate.Metric.Name),
		TimeRange: st.Get(querystate.TimeRange.Name),
		Platform:  st.Get(querystate.Platform.Name),
		EventName: st.Get(querystate.EventName.Name),
		Tab:       st.Get(querystate.Tab.Name),
		Page:      st.Int(querystate.Page.Name, 1),
		PageSize:  pageSize,
	}
	if v, ok := st.Read(querystate.PageSize.Name); ok && v == st.Get(querystate.PageSize.Name) {
		sel.PageSize = st.Int(querystate.PageSize.Name, pageSize)
	}
	if sel.PageSize < 1 {
		sel.PageSize = st.Int(querystate.PageSize.Name, 20)
	}
	return sel
}

func (s Selection) HasApp() bool { return s.App != "" }

func (s Selection) PageParams() apiclient.PageParams {
	return apiclient.PageParams{Page: s.Page, PageSize: s.PageSize}
}

func (s Selection) SessionFilter() apiclient.SessionFilter {
	return apiclient.SessionFilter{PageParams: s.PageParams(), Platform: s.Platform}
}

func (s Selection) EventFilter() apiclient.EventFilter {
	return apiclient.EventFilter{PageParams: s.PageParams(), Name: s.EventName}
}
