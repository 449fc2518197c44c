package web

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/apiclient"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/dashboard"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/querycache"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/querystate"
	sharedmw "github.com/ycagraoglu/PulseMetric-sub001/internal/shared/middleware"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/web/components"
)

// sectionDef is one independently loading region.
type sectionDef struct {
	title string
	empty string
	// home is the page a section belongs to when its own URL is opened.
	home string
	poll bool
	// load reads the section's query and renders it in whatever state it is.
	load func(ctx context.Context, s *Server, v view, p components.SectionProps) templ.Component
	// prefetch warms the section's query.
	prefetch func(s *Server, v view)
}

// renderQuery loads q and renders the result through body.
func renderQuery[T any](ctx context.Context, s *Server, q querycache.Query[T], p components.SectionProps, body func(T) templ.Component) templ.Component {
	return components.Section(p, dashboard.Load(ctx, s.svc, q), body)
}

var sections = map[string]sectionDef{
	"realtime": {
		title: "Right now",
		home:  "/",
		poll:  true,
		load: func(ctx context.Context, s *Server, v view, p components.SectionProps) templ.Component {
			return renderQuery(ctx, s, s.svc.Realtime(v.sel.App, v.sel.TimeRange), p, func(rs apiclient.RealtimeStats) templ.Component {
				return components.RealtimeCard(rs, s.clock.Now(), v.timeRangeLinks())
			})
		},
		prefetch: func(s *Server, v view) { dashboard.Prefetch(s.svc, s.svc.Realtime(v.sel.App, v.sel.TimeRange)) },
	},
	"overview": {
		title: "Overview",
		home:  "/",
		load: func(ctx context.Context, s *Server, v view, p components.SectionProps) templ.Component {
			return renderQuery(ctx, s, s.svc.Overview(v.sel.App, v.sel.Range), p, components.OverviewCards)
		},
		prefetch: func(s *Server, v view) { dashboard.Prefetch(s.svc, s.svc.Overview(v.sel.App, v.sel.Range)) },
	},
	"timeseries": {
		title: "Users over time",
		home:  "/",
		load: func(ctx context.Context, s *Server, v view, p components.SectionProps) templ.Component {
			return renderQuery(ctx, s, s.svc.TimeSeries(v.sel.App, v.sel.Range, v.sel.Metric), p, func(ts apiclient.TimeSeries) templ.Component {
				return components.TimeSeriesChart(ts, v.metricLinks(), nil)
			})
		},
		prefetch: func(s *Server, v view) {
			dashboard.Prefetch(s.svc, s.svc.TimeSeries(v.sel.App, v.sel.Range, v.sel.Metric))
		},
	},
	"geo": {
		title: "Countries",
		empty: "No visitors in this period.",
		home:  "/",
		load: func(ctx context.Context, s *Server, v view, p components.SectionProps) templ.Component {
			return renderQuery(ctx, s, s.svc.Geo(v.sel.App, v.sel.Range), p, func(b []apiclient.Bucket) templ.Component {
				return components.DistributionBars(b, nil)
			})
		},
		prefetch: func(s *Server, v view) { dashboard.Prefetch(s.svc, s.svc.Geo(v.sel.App, v.sel.Range)) },
	},
	"platforms": {
		title: "Platforms",
		empty: "No sessions in this period.",
		home:  "/",
		load: func(ctx context.Context, s *Server, v view, p components.SectionProps) templ.Component {
			return renderQuery(ctx, s, s.svc.Platforms(v.sel.App, v.sel.Range), p, func(b []apiclient.Bucket) templ.Component {
				return components.DistributionBars(b, v.platformFilterURL)
			})
		},
		prefetch: func(s *Server, v view) { dashboard.Prefetch(s.svc, s.svc.Platforms(v.sel.App, v.sel.Range)) },
	},
	"topevents": {
		title: "Top events",
		empty: "No events in this period.",
		home:  "/events",
		load: func(ctx context.Context, s *Server, v view, p components.SectionProps) templ.Component {
			return renderQuery(ctx, s, s.svc.TopEvents(v.sel.App, v.sel.Range), p, func(b []apiclient.Bucket) templ.Component {
				return components.TopEvents(b, v.eventFilterURL)
			})
		},
		prefetch: func(s *Server, v view) { dashboard.Prefetch(s.svc, s.svc.TopEvents(v.sel.App, v.sel.Range)) },
	},
	"users": {
		title: "Users",
		empty: "No users yet.",
		home:  "/users",
		load: func(ctx context.Context, s *Server, v view, p components.SectionProps) templ.Component {
			return renderQuery(ctx, s, s.svc.Users(v.sel.App, v.sel.PageParams()), p, func(pg apiclient.Page[apiclient.User]) templ.Component {
				return components.UsersTable(pg, v.userURL, v.pagination("users", pg.TotalPages(), pg.Total))
			})
		},
		prefetch: func(s *Server, v view) { dashboard.Prefetch(s.svc, s.svc.Users(v.sel.App, v.sel.PageParams())) },
	},
	"user": {
		title: "User",
		load: func(ctx context.Context, s *Server, v view, p components.SectionProps) templ.Component {
			return renderQuery(ctx, s, s.svc.User(v.sel.App, v.userID), p, components.UserDetail)
		},
		prefetch: func(s *Server, v view) { dashboard.Prefetch(s.svc, s.svc.User(v.sel.App, v.userID)) },
	},
	"sessions": {
		title: "Sessions",
		empty: "No sessions match.",
		home:  "/sessions",
		load: func(ctx context.Context, s *Server, v view, p components.SectionProps) templ.Component {
			return renderQuery(ctx, s, s.svc.Sessions(v.sel.App, v.sel.SessionFilter()), p, func(pg apiclient.Page[apiclient.Session]) templ.Component {
				return components.SessionsTable(pg, v.userURL, v.platformLinks(), v.pagination("sessions", pg.TotalPages(), pg.Total))
			})
		},
		prefetch: func(s *Server, v view) { dashboard.Prefetch(s.svc, s.svc.Sessions(v.sel.App, v.sel.SessionFilter())) },
	},
	"events": {
		title: "Events",
		empty: "No events match.",
		home:  "/events",
		load: func(ctx context.Context, s *Server, v view, p components.SectionProps) templ.Component {
			return renderQuery(ctx, s, s.svc.Events(v.sel.App, v.sel.EventFilter()), p, func(pg apiclient.Page[apiclient.Event]) templ.Component {
				clearLink := v.sectionLink("events", "Clear", false, querystate.EventName.Name, "")
				return components.EventsTable(pg, v.sel.EventName, clearLink, v.pagination("events", pg.TotalPages(), pg.Total))
			})
		},
		prefetch: func(s *Server, v view) { dashboard.Prefetch(s.svc, s.svc.Events(v.sel.App, v.sel.EventFilter())) },
	},
	"settings": {
		title: "App settings",
		home:  "/settings",
		load: func(ctx context.Context, s *Server, v view, p components.SectionProps) templ.Component {
			return renderQuery(ctx, s, s.svc.Settings(v.sel.App), p, func(st apiclient.Settings) templ.Component {
				return components.SettingsForm(st, v.settingsAction(), "")
			})
		},
		prefetch: func(s *Server, v view) { dashboard.Prefetch(s.svc, s.svc.Settings(v.sel.App)) },
	},
	"apikeys": {
		title: "API keys",
		home:  "/settings",
		load: func(ctx context.Context, s *Server, v view, p components.SectionProps) templ.Component {
			return s.apiKeysSection(ctx, v, p, nil)
		},
		prefetch: func(s *Server, v view) { dashboard.Prefetch(s.svc, s.svc.APIKeys(v.sel.App)) },
	},
}

// apiKeysSection renders the key list. An app without keys still gets the
// create form, so an empty list renders as a ready section.
func (s *Server) apiKeysSection(ctx context.Context, v view, p components.SectionProps, created *apiclient.APIKey) templ.Component {
	res := dashboard.Load(ctx, s.svc, s.svc.APIKeys(v.sel.App))
	if res.Status == querycache.StatusEmpty {
		res.Status = querycache.StatusSuccess
	}
	props := components.APIKeyProps{
		CreateURL: v.apiKeyAction(""),
		DeleteURL: v.apiKeyAction,
		Created:   created,
	}
	return components.Section(p, res, func(keys []apiclient.APIKey) templ.Component {
		return components.APIKeyList(keys, props)
	})
}

func (s *Server) sectionProps(name string, def sectionDef, v view) components.SectionProps {
	p := components.SectionProps{
		Name:      name,
		Title:     def.title,
		URL:       sectionsPath + name,
		EmptyText: def.empty,
	}
	if name == "user" {
		p.URL = sectionsPath + "user/" + url.PathEscape(v.userID)
	}
	if def.poll {
		p.PollSeconds = s.cfg.PollSeconds
	}
	return p
}

// handleSection serves one section fragment. It is what skeletons, pollers,
// retry buttons and in-section controls request.
func (s *Server) handleSection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	userID := chi.URLParam(r, "id")
	if userID != "" {
		name = "user"
	}
	def, ok := sections[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	st := requestState(r)
	s.rememberPageSize(r, st)

	home := def.home
	if name == "user" {
		home = "/users/" + url.PathEscape(userID)
	}
	v := view{st: st, sel: s.selection(r, st), page: sharedmw.CurrentPath(r, home), userID: userID}

	if sharedmw.IsHTMX(r) {
		sharedmw.ReplaceURL(w, st.With(v.page))
	}
	if !v.sel.HasApp() {
		s.render(w, r, components.NoAppSelected())
		return
	}
	s.render(w, r, def.load(r.Context(), s, v, s.sectionProps(name, def, v)))
}

// rememberPageSize keeps an explicitly chosen page size as the visitor's
// preference.
func (s *Server) rememberPageSize(r *http.Request, st *querystate.Store) {
	v, ok := st.Read(querystate.PageSize.Name)
	if !ok {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		s.prefs.Set(visitorID(r), n)
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("rendering response")
	}
}
