package web

import (
	"net/http"
	"net/url"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/dashboard"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/querystate"
	sharedmw "github.com/ycagraoglu/PulseMetric-sub001/internal/shared/middleware"
)

// resetsPaging lists the parameters whose change sends tables back to the
// first page.
var resetsPaging = []string{
	querystate.App.Name,
	querystate.PageSize.Name,
	querystate.Platform.Name,
	querystate.EventName.Name,
}

// requestState returns the UI parameter set of r.
//
// htmx requests carry only the parameters they change, so they start from
// the page URL the browser shows (HX-Current-URL) and apply their own query
// on top in one batch. An empty value removes a parameter.
func requestState(r *http.Request) *querystate.Store {
	if !sharedmw.IsHTMX(r) {
		return querystate.FromRequest(r)
	}
	cur, err := url.Parse(r.Header.Get("HX-Current-URL"))
	if err != nil {
		return querystate.FromRequest(r)
	}

	st := querystate.New(&url.URL{Path: r.URL.Path, RawQuery: cur.RawQuery}, querystate.Dashboard...)
	for _, name := range resetsPaging {
		st.Subscribe(name, func(_, _ string) { st.Delete(querystate.Page.Name) })
	}

	delta := r.URL.Query()
	st.Batch(func(tx *querystate.Tx) {
		for name, vs := range delta {
			if len(vs) == 0 || vs[0] == "" {
				tx.Delete(name)
				continue
			}
			tx.Set(name, vs[0])
		}
	})
	return st
}

func (s *Server) selection(r *http.Request, st *querystate.Store) dashboard.Selection {
	return dashboard.SelectionFrom(st, s.pageSize(r))
}
