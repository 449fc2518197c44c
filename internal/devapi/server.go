// Package devapi is a local stand-in for the analytics backend. It serves the
// backend REST API from a libsql database filled with demo data.
package devapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/apiclient"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/logging"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/querystate"
)

type Server struct {
	store  *Store
	log    logrus.FieldLogger
	router chi.Router
}

// NewServer serves store under /api.
func NewServer(store *Store, log logrus.FieldLogger) *Server {
	s := &Server{store: store, log: log.WithField("component", "devapi"), router: chi.NewRouter()}

	r := s.router
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(log))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/apps", s.handleListApps)

		r.Get("/stats/realtime", s.handleRealtime)
		r.Get("/stats/overview", s.handleOverview)
		r.Get("/stats/timeseries", s.handleTimeSeries)
		r.Get("/stats/geo", s.handleGeo)
		r.Get("/stats/platforms", s.handlePlatforms)

		r.Get("/users", s.handleListUsers)
		r.Get("/users/{id}", s.handleGetUser)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/events", s.handleListEvents)
		r.Get("/events/top", s.handleTopEvents)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)
		r.Get("/apikeys", s.handleListAPIKeys)
		r.Post("/apikeys", s.handleCreateAPIKey)
		r.Delete("/apikeys/{id}", s.handleDeleteAPIKey)
	})
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithField("addr", addr).Info("starting dev api")

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// authenticate checks a bearer token when one is sent. Requests without one
// are let through; this server only runs locally.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			next.ServeHTTP(w, r)
			return
		}
		valid, err := s.store.Authenticate(r.Context(), token)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !valid {
			http.Error(w, "unknown api key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fail maps store errors to plain text responses.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		logging.FromContext(r.Context(), s.log).WithError(err).Error("dev api request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func respond[T any](s *Server, w http.ResponseWriter, r *http.Request, v T, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func app(r *http.Request) string { return r.URL.Query().Get("app") }

// param reads a declared dashboard parameter, rejecting values it does not
// accept.
func param(r *http.Request, p querystate.Param) (string, error) {
	v := r.URL.Query().Get(p.Name)
	if v == "" {
		return p.Default, nil
	}
	st := querystate.New(r.URL, p)
	if st.Get(p.Name) != v {
		return "", errors.New(p.Name + " must be one of " + strings.Join(p.Allowed, ", "))
	}
	return v, nil
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func pageParams(r *http.Request) apiclient.PageParams {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("pageSize"))
	return apiclient.PageParams{Page: page, PageSize: size}
}

func (s *Server) handleListApps(w http.ResponseWriter, r *http.Request) {
	apps, err := s.store.ListApps(r.Context())
	respond(s, w, r, apps, err)
}

func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	tr, err := param(r, querystate.TimeRange)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	out, err := s.store.RealtimeStats(r.Context(), app(r), tr)
	respond(s, w, r, out, err)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	rng, err := param(r, querystate.Range)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	out, err := s.store.Overview(r.Context(), app(r), rng)
	respond(s, w, r, out, err)
}

func (s *Server) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	rng, err := param(r, querystate.Range)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	metric, err := param(r, querystate.Metric)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	out, err := s.store.TimeSeries(r.Context(), app(r), rng, metric)
	respond(s, w, r, out, err)
}

func (s *Server) handleGeo(w http.ResponseWriter, r *http.Request) {
	rng, err := param(r, querystate.Range)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	out, err := s.store.GeoDistribution(r.Context(), app(r), rng)
	respond(s, w, r, out, err)
}

func (s *Server) handlePlatforms(w http.ResponseWriter, r *http.Request) {
	rng, err := param(r, querystate.Range)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	out, err := s.store.PlatformDistribution(r.Context(), app(r), rng)
	respond(s, w, r, out, err)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	out, err := s.store.ListUsers(r.Context(), app(r), pageParams(r))
	respond(s, w, r, out, err)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	out, err := s.store.GetUser(r.Context(), app(r), chi.URLParam(r, "id"))
	respond(s, w, r, out, err)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	f := apiclient.SessionFilter{PageParams: pageParams(r), Platform: r.URL.Query().Get("platform")}
	out, err := s.store.ListSessions(r.Context(), app(r), f)
	respond(s, w, r, out, err)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	f := apiclient.EventFilter{PageParams: pageParams(r), Name: r.URL.Query().Get("name")}
	out, err := s.store.ListEvents(r.Context(), app(r), f)
	respond(s, w, r, out, err)
}

func (s *Server) handleTopEvents(w http.ResponseWriter, r *http.Request) {
	rng, err := param(r, querystate.Range)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := s.store.TopEvents(r.Context(), app(r), rng, limit)
	respond(s, w, r, out, err)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	out, err := s.store.GetSettings(r.Context(), app(r))
	respond(s, w, r, out, err)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var in apiclient.Settings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.badRequest(w, errors.New("invalid settings body"))
		return
	}
	out, err := s.store.UpdateSettings(r.Context(), app(r), in)
	respond(s, w, r, out, err)
}

func (s *Server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	out, err := s.store.ListAPIKeys(r.Context(), app(r))
	respond(s, w, r, out, err)
}

func (s *Server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var in apiclient.CreateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.badRequest(w, errors.New("invalid api key body"))
		return
	}
	key, err := s.store.CreateAPIKey(r.Context(), app(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

func (s *Server) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAPIKey(r.Context(), app(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
