// Package web provides the HTTP status server for the tent controller.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/sweeney/tent-controller/internal/config"
	"github.com/sweeney/tent-controller/internal/energy"
	"github.com/sweeney/tent-controller/internal/status"
)

// maxSettingsBody bounds POST /settings.json.
const maxSettingsBody = 64 << 10

// Options are the optional collaborators of the server.
type Options struct {
	// Settings enables GET/POST /settings.json when set.
	Settings *config.SettingsStore

	// Metrics is served at /metrics when set.
	Metrics http.Handler

	Logger *zap.Logger
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	settings   *config.SettingsStore
	logger     *zap.Logger
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{tracker: tracker, settings: opts.Settings, logger: logger.Named("web")}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/energy.json", s.handleEnergy)
	if s.settings != nil {
		mux.HandleFunc("/settings.json", s.handleSettings)
	}
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.logger.Warn("render index", zap.Error(err))
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// EnergyJSON is the /energy.json response.
type EnergyJSON struct {
	Currency string         `json:"currency"`
	Price    float64        `json:"kwh_price"`
	Today    energy.Record  `json:"today"`
	Month    energy.Record  `json:"month"`
	Year     energy.Record  `json:"year"`
	History  []energy.Day   `json:"history"`
	Monthly  []energy.Month `json:"monthly"`
}

func (s *Server) handleEnergy(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	e := snap.Energy
	out := EnergyJSON{
		Currency: snap.Config.Currency,
		Price:    snap.Config.Price,
		Today:    e.Today,
		Month:    e.Month,
		Year:     e.Year,
		History:  e.History,
		Monthly:  e.Monthly,
	}
	if out.History == nil {
		out.History = []energy.Day{}
	}
	if out.Monthly == nil {
		out.Monthly = []energy.Month{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.settings.Get())
	case http.MethodPost, http.MethodPut:
		// Start from the current settings so a partial body only changes
		// the fields it names.
		next := s.settings.Get()
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&next); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		if err := next.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.settings.Update(next); err != nil {
			s.logger.Error("save settings", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "settings applied but not saved: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, s.settings.Get())
	default:
		w.Header().Set("Allow", "GET, POST, PUT")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
