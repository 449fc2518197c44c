package web

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/apiclient"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/dashboard"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/querycache"
	sharedmw "github.com/ycagraoglu/PulseMetric-sub001/internal/shared/middleware"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/web/components"
)

// pageDef composes sections into a routed page.
type pageDef struct {
	title    string
	path     string
	sections []string
	// ranged pages show the date range picker.
	ranged bool
}

var (
	overviewPage = pageDef{
		title:    "Overview",
		path:     "/",
		sections: []string{"realtime", "overview", "timeseries", "geo", "platforms", "topevents"},
		ranged:   true,
	}
	usersPage    = pageDef{title: "Users", path: "/users", sections: []string{"users"}}
	userPage     = pageDef{title: "User", path: "/users/{id}", sections: []string{"user"}}
	sessionsPage = pageDef{title: "Sessions", path: "/sessions", sections: []string{"platforms", "sessions"}, ranged: true}
	eventsPage   = pageDef{title: "Events", path: "/events", sections: []string{"topevents", "events"}, ranged: true}
	settingsPage = pageDef{title: "Settings", path: "/settings", sections: []string{"settings", "apikeys"}}
)

// handlePage renders a page. Sections start as skeletons that load
// themselves; their queries are started here so the first section request
// usually finds data in flight or cached.
//
// An htmx request for a page (a range change) gets the page body only and
// moves the address bar to the new URL.
func (s *Server) handlePage(def pageDef) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := requestState(r)
		s.rememberPageSize(r, st)

		v := view{st: st, sel: s.selection(r, st), page: r.URL.Path, userID: chi.URLParam(r, "id")}
		body := s.pageBody(def, v)

		if sharedmw.IsHTMX(r) {
			sharedmw.ReplaceURL(w, st.URL())
			s.render(w, r, body)
			return
		}

		apps := dashboard.Load(r.Context(), s.svc, s.svc.Apps())
		s.render(w, r, components.Layout(s.layoutProps(def, v, apps, prefsFrom(r).Theme), body))
	}
}

func (s *Server) pageBody(def pageDef, v view) templ.Component {
	var controls []components.Link
	if def.ranged {
		controls = v.rangeLinks()
	}
	if !v.sel.HasApp() {
		return components.PageBody(def.title, nil, components.NoAppSelected())
	}

	parts := make([]templ.Component, 0, len(def.sections))
	for _, name := range def.sections {
		sec := sections[name]
		sec.prefetch(s, v)
		parts = append(parts, components.Skeleton(s.sectionProps(name, sec, v)))
	}
	return components.PageBody(def.title, controls, parts...)
}

func (s *Server) layoutProps(def pageDef, v view, apps querycache.Result[[]apiclient.App], theme string) components.LayoutProps {
	list := apps.Value
	if list == nil {
		list = []apiclient.App{}
	}
	if apps.Err != nil {
		s.log.WithError(apps.Err).Warn("loading app list")
	}

	// Switching apps from a detail page lands on its list.
	action := v.page
	if def.path == userPage.path {
		action = usersPage.path
	}
	return components.LayoutProps{
		Title:        def.title,
		Theme:        theme,
		Nav:          v.nav(),
		Apps:         list,
		SelectedApp:  v.sel.App,
		PickerAction: action,
	}
}
