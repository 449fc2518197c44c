package middleware

import (
	"context"
	"net/http"
	"net/url"
)

type contextKey string

const htmxKey contextKey = "htmx"

// HTMX marks requests issued by htmx so handlers can answer with fragments.
func HTMX(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		isHTMX := r.Header.Get("HX-Request") == "true"
		ctx := context.WithValue(r.Context(), htmxKey, isHTMX)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func IsHTMX(r *http.Request) bool {
	if v, ok := r.Context().Value(htmxKey).(bool); ok {
		return v
	}
	return false
}

// CurrentPath returns the path of the page that issued an htmx request, or
// fallback when the request did not come from htmx.
func CurrentPath(r *http.Request, fallback string) string {
	u, err := url.Parse(r.Header.Get("HX-Current-URL"))
	if err != nil || u.Path == "" {
		return fallback
	}
	return u.Path
}

// ReplaceURL updates the browser address bar without adding a history entry.
func ReplaceURL(w http.ResponseWriter, u string) {
	w.Header().Set("HX-Replace-Url", u)
}

// Retarget swaps the response into selector instead of the request's target.
func Retarget(w http.ResponseWriter, selector, swap string) {
	w.Header().Set("HX-Retarget", selector)
	w.Header().Set("HX-Reswap", swap)
}

// Refresh asks htmx to reload the whole page.
func Refresh(w http.ResponseWriter) {
	w.Header().Set("HX-Refresh", "true")
}
