package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hamed0406/dashwatch/internal/domain"
	apimw "github.com/hamed0406/dashwatch/internal/httpapi/middleware"
	"github.com/hamed0406/dashwatch/internal/repo"
	"github.com/hamed0406/dashwatch/internal/watchdog"
)

// Server exposes the watchdog registry and alert preferences over HTTP.
type Server struct {
	Logger    *zap.Logger
	Watchdogs *watchdog.Registry
	Prefs     repo.PreferenceStore
	// Live serves the page websocket; nil disables /ws.
	Live http.Handler
	Now  func() time.Time

	validate *validator.Validate
}

func NewServer(l *zap.Logger, reg *watchdog.Registry, prefs repo.PreferenceStore, live http.Handler) *Server {
	return &Server{
		Logger:    l,
		Watchdogs: reg,
		Prefs:     prefs,
		Live:      live,
		Now:       time.Now,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Router builds the HTTP routes. Reads need a public or admin key, writes
// need an admin key; each group has its own per-IP rate limit.
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.accessLog)
	r.Use(corsHandler(allowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	if s.Live != nil {
		r.Handle("/ws", s.Live)
	}

	r.Route("/api", func(api chi.Router) {
		api.Group(func(pub chi.Router) {
			pub.Use(apimw.RequireAny(keys))
			pub.Use(apimw.RateLimit(pubRPM, pubBurst))
			pub.Get("/watchdogs", s.handleListWatchdogs)
			pub.Get("/watchdogs/{id}", s.handleGetWatchdog)
			pub.Get("/preferences", s.handleListPreferences)
		})
		api.Group(func(adm chi.Router) {
			adm.Use(apimw.RequireAdmin(keys))
			adm.Use(apimw.RateLimit(admRPM, admBurst))
			adm.Post("/watchdogs/{id}/start", s.handleStart)
			adm.Post("/watchdogs/{id}/stop", s.handleStop)
			adm.Post("/watchdogs/{id}/check", s.handleCheck)
			adm.Put("/preferences/{id}", s.handleSetPreference)
		})
	})
	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.Logger.Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

// ---- watchdogs ----

func (s *Server) handleListWatchdogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Watchdogs.States())
}

func (s *Server) handleGetWatchdog(w http.ResponseWriter, r *http.Request) {
	id, ok := signalID(w, r)
	if !ok {
		return
	}
	st, err := s.Watchdogs.State(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, "watchdog_started_via_api", s.Watchdogs.Start)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, "watchdog_stopped_via_api", s.Watchdogs.Stop)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, "watchdog_checked_via_api", s.Watchdogs.ForceCheck)
}

func (s *Server) control(w http.ResponseWriter, r *http.Request, event string, op func(string) error) {
	id, ok := signalID(w, r)
	if !ok {
		return
	}
	if err := op(id); err != nil {
		s.writeError(w, err)
		return
	}
	s.Logger.Info(event, zap.String("signal", id))
	st, err := s.Watchdogs.State(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ---- preferences ----

type preferenceView struct {
	SignalID      string    `json:"signal_id"`
	AlertsEnabled bool      `json:"alerts_enabled"`
	UpdatedAt     time.Time `json:"updated_at,omitzero"`
}

// handleListPreferences reports one entry per registered signal; signals the
// user never touched report the default, alerts on.
func (s *Server) handleListPreferences(w http.ResponseWriter, r *http.Request) {
	stored, err := s.Prefs.ListPreferences(r.Context())
	if err != nil {
		s.Logger.Error("preferences_list_error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "could not list preferences"})
		return
	}
	byID := make(map[string]domain.Preference, len(stored))
	for _, p := range stored {
		byID[p.SignalID] = p
	}
	out := make([]preferenceView, 0, len(s.Watchdogs.IDs()))
	for _, id := range s.Watchdogs.IDs() {
		v := preferenceView{SignalID: id, AlertsEnabled: true}
		if p, ok := byID[id]; ok {
			v.AlertsEnabled, v.UpdatedAt = p.AlertsEnabled, p.UpdatedAt
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

type setPreferencePayload struct {
	AlertsEnabled *bool `json:"alerts_enabled" validate:"required"`
}

func (s *Server) handleSetPreference(w http.ResponseWriter, r *http.Request) {
	id, ok := signalID(w, r)
	if !ok {
		return
	}
	if !s.Watchdogs.Known(id) {
		s.writeError(w, watchdog.ErrUnknownSignal)
		return
	}

	var p setPreferencePayload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad payload"})
		return
	}
	if err := s.validate.Struct(p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "alerts_enabled is required"})
		return
	}

	pref := domain.Preference{SignalID: id, AlertsEnabled: *p.AlertsEnabled, UpdatedAt: s.Now().UTC()}
	if err := s.Prefs.SetPreference(r.Context(), pref); err != nil {
		s.Logger.Error("preference_write_error", zap.String("signal", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "could not save preference"})
		return
	}
	s.Logger.Info("preference_updated", zap.String("signal", id), zap.Bool("alerts_enabled", pref.AlertsEnabled))
	writeJSON(w, http.StatusOK, preferenceView{SignalID: id, AlertsEnabled: pref.AlertsEnabled, UpdatedAt: pref.UpdatedAt})
}

// ---- helpers ----

// signalID reads the {id} route parameter. chi matches on the raw path, so an
// id sent as platform%3Agithub arrives still escaped.
func signalID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad signal id"})
		return "", false
	}
	return id, true
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, watchdog.ErrUnknownSignal):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown watchdog"})
	case errors.Is(err, watchdog.ErrNotActive):
		writeJSON(w, http.StatusConflict, errorBody{Error: "watchdog is not running"})
	default:
		s.Logger.Error("api_error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
