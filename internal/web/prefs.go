package web

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/querystate"
	sharedmw "github.com/ycagraoglu/PulseMetric-sub001/internal/shared/middleware"
)

const (
	themeCookie   = "theme"
	visitorCookie = "pm_visitor"
	cookieMaxAge  = 365 * 24 * time.Hour
)

// Prefs are the per-browser display preferences.
type Prefs struct {
	Theme string
}

func prefsFrom(r *http.Request) Prefs {
	p := Prefs{Theme: "light"}
	if c, err := r.Cookie(themeCookie); err == nil && c.Value == "dark" {
		p.Theme = "dark"
	}
	return p
}

type visitorKey struct{}

// visitor makes sure every browser carries a visitor id cookie.
func visitor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(visitorCookie); err == nil {
			if _, err := uuid.Parse(c.Value); err == nil {
				id = c.Value
			}
		}
		if id == "" {
			id = uuid.NewString()
			setCookie(w, visitorCookie, id)
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), visitorKey{}, id)))
	})
}

func visitorID(r *http.Request) string {
	id, _ := r.Context().Value(visitorKey{}).(string)
	return id
}

func setCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(cookieMaxAge / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// PageSizeStore remembers each visitor's table page size for the life of the
// process.
type PageSizeStore struct {
	mu    sync.RWMutex
	sizes map[string]int
}

func NewPageSizeStore() *PageSizeStore {
	return &PageSizeStore{sizes: map[string]int{}}
}

func (s *PageSizeStore) Get(visitor string, def int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.sizes[visitor]; ok {
		return n
	}
	return def
}

// Set stores size for visitor. Sizes outside the accepted page sizes are
// ignored.
func (s *PageSizeStore) Set(visitor string, size int) bool {
	if visitor == "" || !slices.Contains(querystate.PageSize.Allowed, strconv.Itoa(size)) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sizes[visitor] = size
	return true
}

func (s *Server) pageSize(r *http.Request) int {
	return s.prefs.Get(visitorID(r), s.cfg.DefaultPageSize)
}

func (s *Server) handleThemePref(w http.ResponseWriter, r *http.Request) {
	theme := r.FormValue("theme")
	if theme != "light" && theme != "dark" {
		http.Error(w, "theme must be light or dark", http.StatusBadRequest)
		return
	}
	setCookie(w, themeCookie, theme)
	s.back(w, r)
}

func (s *Server) handlePageSizePref(w http.ResponseWriter, r *http.Request) {
	size, err := strconv.Atoi(r.FormValue("pageSize"))
	if err != nil || !s.prefs.Set(visitorID(r), size) {
		http.Error(w, "pageSize must be one of 10, 20, 50, 100", http.StatusBadRequest)
		return
	}
	s.back(w, r)
}

// back reloads the current page after a preference change.
func (s *Server) back(w http.ResponseWriter, r *http.Request) {
	if sharedmw.IsHTMX(r) {
		sharedmw.Refresh(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	to := "/"
	if u, err := url.Parse(r.Referer()); err == nil && u.Path != "" {
		to = u.RequestURI()
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}
