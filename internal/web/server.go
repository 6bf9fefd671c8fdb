// Package web serves the rig's HTTP API, status page and metrics.
package web

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/brew-controller/internal/config"
	"github.com/sweeney/brew-controller/internal/logger"
	"github.com/sweeney/brew-controller/internal/sensor"
	"github.com/sweeney/brew-controller/internal/session"
	"github.com/sweeney/brew-controller/internal/status"
)

// quietPaths are polled by the UI every second or so and kept out of the
// request log.
var quietPaths = map[string]bool{
	"/api/hardware/temperature": true,
}

// Rig is the set of operations the API exposes.
type Rig interface {
	Initialize() error
	SetPotPower(pot string, on bool) error
	SetPotEfficiency(pot string, value float64) error
	SetPumpPower(pump string, on bool) error
	SetPumpSpeed(pump string, value float64) error
	Temperatures() (sensor.Readings, error)
	Settings() (config.Config, error)
	SaveSettings(cfg config.Config) error
	History() []session.Record
}

// Options configures a Server. Gatherer and StaticDir are optional.
type Options struct {
	Addr     string
	Rig      Rig
	Tracker  *status.Tracker
	Gatherer prometheus.Gatherer

	// StaticDir, if it exists, holds a built single-page UI served at "/".
	StaticDir string

	Log *logger.Logger
}

// Server serves the API over HTTP.
type Server struct {
	httpServer *http.Server
	rig        Rig
	tracker    *status.Tracker
	log        *logger.Logger
}

// New creates a Server.
func New(o Options) *Server {
	s := &Server{
		rig:     o.Rig,
		tracker: o.Tracker,
		log:     o.Log.WithTag("http"),
	}

	r := mux.NewRouter()
	r.Use(s.logRequests)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handlePostSettings).Methods(http.MethodPost)
	api.HandleFunc("/hardware/initialize", s.handleInitialize).Methods(http.MethodPost)
	api.HandleFunc("/hardware/pot/{pot}/power", s.handlePotPower).Methods(http.MethodPost)
	api.HandleFunc("/hardware/pot/{pot}/efficiency", s.handlePotEfficiency).Methods(http.MethodPost)
	api.HandleFunc("/hardware/pump/{pump}/power", s.handlePumpPower).Methods(http.MethodPost)
	api.HandleFunc("/hardware/pump/{pump}/speed", s.handlePumpSpeed).Methods(http.MethodPost)
	api.HandleFunc("/hardware/temperature", s.handleTemperature).Methods(http.MethodGet)
	api.HandleFunc("/session/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatusJSON).Methods(http.MethodGet)

	if o.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(o.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.HandleFunc("/status", s.handleIndex).Methods(http.MethodGet)

	if fi, err := os.Stat(o.StaticDir); o.StaticDir != "" && err == nil && fi.IsDir() {
		r.PathPrefix("/").Handler(spaHandler{dir: o.StaticDir}).Methods(http.MethodGet)
	} else {
		r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
		r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	s.httpServer = &http.Server{
		Addr:              o.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler. Useful for tests.
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

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if quietPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.With("method", r.Method, "path", r.URL.Path, "status", rec.code,
			"took", time.Since(start).Round(time.Millisecond)).Infof("request")
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.rig.Settings()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePostSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := decodeSettings(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.rig.SaveSettings(cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{Status: "success", Message: "Settings updated successfully"})
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	if err := s.rig.Initialize(); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handlePotPower(w http.ResponseWriter, r *http.Request) {
	on, err := decodePower(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.rig.SetPotPower(mux.Vars(r)["pot"], on); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handlePotEfficiency(w http.ResponseWriter, r *http.Request) {
	v, err := decodeValue(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.rig.SetPotEfficiency(mux.Vars(r)["pot"], v); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handlePumpPower(w http.ResponseWriter, r *http.Request) {
	on, err := decodePower(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.rig.SetPumpPower(mux.Vars(r)["pump"], on); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handlePumpSpeed(w http.ResponseWriter, r *http.Request) {
	v, err := decodeValue(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.rig.SetPumpSpeed(mux.Vars(r)["pump"], v); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleTemperature(w http.ResponseWriter, r *http.Request) {
	readings, err := s.rig.Temperatures()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	hist := s.rig.History()
	if hist == nil {
		hist = []session.Record{}
	}
	writeJSON(w, http.StatusOK, hist)
}

func (s *Server) handleStatusJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.With("err", err).Errorf("render status page")
	}
}

// spaHandler serves files from dir and falls back to index.html so client
// side routes resolve.
type spaHandler struct {
	dir string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := filepath.Join(h.dir, filepath.FromSlash(filepathClean(r.URL.Path)))
	if fi, err := os.Stat(name); err == nil && !fi.IsDir() {
		http.ServeFile(w, r, name)
		return
	}
	http.ServeFile(w, r, filepath.Join(h.dir, "index.html"))
}

// filepathClean roots p so ".." cannot escape the static dir.
func filepathClean(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return filepath.ToSlash(filepath.Clean(p))
}
