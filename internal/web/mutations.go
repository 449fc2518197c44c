package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/apiclient"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/dashboard"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/querycache"
	sharedmw "github.com/ycagraoglu/PulseMetric-sub001/internal/shared/middleware"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/web/components"
)

func (s *Server) mutationView(r *http.Request) view {
	st := requestState(r)
	return view{st: st, sel: s.selection(r, st), page: settingsPage.path}
}

func (s *Server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	v := s.mutationView(r)
	key, err := s.svc.CreateAPIKey(r.Context(), v.sel.App, r.FormValue("name"))
	if err != nil {
		s.mutationFailed(w, r, dashboard.MutationCreateAPIKey, err)
		return
	}
	s.mutationDone(w, r, v, func() {
		s.render(w, r, s.apiKeysSection(r.Context(), v, s.sectionProps("apikeys", sections["apikeys"], v), &key))
	})
}

func (s *Server) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	v := s.mutationView(r)
	if err := s.svc.DeleteAPIKey(r.Context(), v.sel.App, chi.URLParam(r, "id")); err != nil {
		s.mutationFailed(w, r, dashboard.MutationDeleteAPIKey, err)
		return
	}
	s.mutationDone(w, r, v, func() {
		s.render(w, r, s.apiKeysSection(r.Context(), v, s.sectionProps("apikeys", sections["apikeys"], v), nil))
	})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	v := s.mutationView(r)
	in, err := settingsFromForm(r)
	if err != nil {
		s.mutationFailed(w, r, dashboard.MutationUpdateSettings, err)
		return
	}
	out, err := s.svc.UpdateSettings(r.Context(), v.sel.App, in)
	if err != nil {
		s.mutationFailed(w, r, dashboard.MutationUpdateSettings, err)
		return
	}
	s.mutationDone(w, r, v, func() {
		p := s.sectionProps("settings", sections["settings"], v)
		form := components.SettingsForm(out, v.settingsAction(), "Settings saved.")
		s.render(w, r, components.Section(p, querycache.Succeeded(out), func(apiclient.Settings) templ.Component { return form }))
	})
}

// settingsFromForm parses the settings form. Missing numbers read as zero
// and are rejected by validation.
func settingsFromForm(r *http.Request) (apiclient.Settings, error) {
	if err := r.ParseForm(); err != nil {
		return apiclient.Settings{}, err
	}
	atoi := func(name string) (int, error) {
		v := strings.TrimSpace(r.PostFormValue(name))
		if v == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be a number", dashboard.ErrInvalidSettings, name)
		}
		return n, nil
	}
	retention, err := atoi("retentionDays")
	if err != nil {
		return apiclient.Settings{}, err
	}
	timeout, err := atoi("sessionTimeoutMinutes")
	if err != nil {
		return apiclient.Settings{}, err
	}
	return apiclient.Settings{
		AppName:        strings.TrimSpace(r.PostFormValue("appName")),
		Timezone:       strings.TrimSpace(r.PostFormValue("timezone")),
		RetentionDays:  retention,
		SessionTimeout: timeout,
		TrackAnonymous: r.PostFormValue("trackAnonymous") == "true",
	}, nil
}

// mutationDone re-renders the affected section for htmx, or sends a plain
// form post back to the settings page.
func (s *Server) mutationDone(w http.ResponseWriter, r *http.Request, v view, render func()) {
	if !sharedmw.IsHTMX(r) {
		http.Redirect(w, r, v.st.With(settingsPage.path), http.StatusSeeOther)
		return
	}
	render()
}

// mutationFailed reports err in the toast region and leaves the section as
// it is. htmx only swaps 2xx responses, so the toast goes out as 200.
func (s *Server) mutationFailed(w http.ResponseWriter, r *http.Request, m dashboard.Mutation, err error) {
	msg, status := mutationMessage(err)
	s.log.WithError(err).WithField("mutation", m.String()).Warn("mutation failed")

	if !sharedmw.IsHTMX(r) {
		http.Error(w, msg, status)
		return
	}
	sharedmw.Retarget(w, "#toast", "outerHTML")
	s.render(w, r, components.Toast("error", msg))
}

func mutationMessage(err error) (string, int) {
	switch {
	case errors.Is(err, dashboard.ErrNoApp):
		return "Select an app first.", http.StatusBadRequest
	case errors.Is(err, dashboard.ErrNameRequired):
		return "Give the key a name.", http.StatusBadRequest
	case errors.Is(err, dashboard.ErrInvalidSettings):
		msg := err.Error()
		if i := strings.LastIndex(msg, ": "); i >= 0 {
			msg = msg[i+2:]
		}
		return "Invalid settings: " + msg, http.StatusBadRequest
	default:
		return components.ErrorMessage(err), http.StatusBadGateway
	}
}
