package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/dashboard"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/logging"
	sharedmw "github.com/ycagraoglu/PulseMetric-sub001/internal/shared/middleware"
)

//go:embed static/*
var staticFiles embed.FS

// Config holds server-specific configuration.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	DefaultPageSize int
	// PollSeconds is how often realtime widgets reload in the browser.
	PollSeconds int
}

type Server struct {
	cfg    Config
	svc    *dashboard.Service
	log    logrus.FieldLogger
	clock  quartz.Clock
	prefs  *PageSizeStore
	router chi.Router
}

type Options struct {
	Logger logrus.FieldLogger
	Meter  metric.Meter
	Clock  quartz.Clock
}

func NewServer(cfg Config, svc *dashboard.Service, opts Options) (*Server, error) {
	if cfg.DefaultPageSize == 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.PollSeconds == 0 {
		cfg.PollSeconds = int(dashboard.DefaultPollInterval / time.Second)
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}

	s := &Server{
		cfg:    cfg,
		svc:    svc,
		log:    opts.Logger.WithField("component", "web"),
		clock:  opts.Clock,
		prefs:  NewPageSizeStore(),
		router: chi.NewRouter(),
	}

	inst, err := newHTTPInstruments(opts.Meter)
	if err != nil {
		return nil, err
	}
	if err := s.setupRoutes(opts.Logger, inst); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) setupRoutes(logger logrus.FieldLogger, inst *httpInstruments) error {
	r := s.router
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(inst.middleware)
	r.Use(sharedmw.HTMX)
	r.Use(visitor)

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("creating static filesystem: %w", err)
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Pages
	r.Get("/", s.handlePage(overviewPage))
	r.Get("/users", s.handlePage(usersPage))
	r.Get("/users/{id}", s.handlePage(userPage))
	r.Get("/sessions", s.handlePage(sessionsPage))
	r.Get("/events", s.handlePage(eventsPage))
	r.Get("/settings", s.handlePage(settingsPage))

	// Sections, loaded independently by htmx
	r.Get("/sections/user/{id}", s.handleSection)
	r.Get("/sections/{name}", s.handleSection)

	// Mutations
	r.Post("/apikeys", s.handleCreateAPIKey)
	r.Delete("/apikeys/{id}", s.handleDeleteAPIKey)
	r.Post("/settings", s.handleUpdateSettings)

	// Preferences
	r.Post("/prefs/theme", s.handleThemePref)
	r.Post("/prefs/page-size", s.handlePageSizePref)

	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.WithField("addr", s.cfg.Addr).Info("starting dashboard server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("dashboard server stopped")
	return nil
}
