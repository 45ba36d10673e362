package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fsindex/internal/filetypes"
	"fsindex/internal/logging"
	"fsindex/internal/query"
	"fsindex/internal/store"
)

// Config tunes the HTTP surface.
type Config struct {
	Port           string
	MetricsPort    string
	MetricsEnabled bool
}

// Server serves the read-side API. It owns no index state; everything goes
// through the query service.
type Server struct {
	svc *query.Service
	cfg Config
}

// New creates a Server over svc.
func New(svc *query.Service, cfg Config) *Server {
	return &Server{svc: svc, cfg: cfg}
}

// Router builds the API router. Exposed separately so tests can drive
// handlers without binding a port.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(instrument)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/browse", s.handleBrowse).Methods(http.MethodGet)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/media", s.handleMedia).Methods(http.MethodGet)
	api.HandleFunc("/entry", s.handleEntry).Methods(http.MethodGet)
	api.HandleFunc("/random", s.handleRandom).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully. The metrics
// listener, when enabled, runs on its own port.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if s.cfg.MetricsEnabled {
		mr := http.NewServeMux()
		mr.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:    ":" + s.cfg.MetricsPort,
			Handler: mr,
		}
		go func() {
			logging.Info("Metrics listening on :%s", s.cfg.MetricsPort)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("API listening on :%s", s.cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListOptions{
		Parent:    q.Get("path"),
		Category:  filetypes.Category(q.Get("type")),
		SortField: store.SortField(q.Get("sort")),
		SortOrder: store.SortOrder(q.Get("order")),
		Page:      intParam(q.Get("page")),
		PageSize:  intParam(q.Get("pageSize")),
	}

	dir, err := s.svc.Browse(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dir)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.SearchOptions{
		Term:      q.Get("q"),
		Scope:     q.Get("scope"),
		Recursive: q.Get("recursive") != "false",
		Category:  filetypes.Category(q.Get("type")),
		SortField: store.SortField(q.Get("sort")),
		SortOrder: store.SortOrder(q.Get("order")),
		Page:      intParam(q.Get("page")),
		PageSize:  intParam(q.Get("pageSize")),
	}

	result, err := s.svc.Search(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.MediaOptions{
		Scope:     q.Get("scope"),
		Category:  filetypes.Category(q.Get("type")),
		SortField: store.SortField(q.Get("sort")),
		SortOrder: store.SortOrder(q.Get("order")),
		Page:      intParam(q.Get("page")),
		PageSize:  intParam(q.Get("pageSize")),
	}

	result, err := s.svc.Media(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.svc.Get(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	e, err := s.svc.Random(r.Context(), q.Get("scope"), filetypes.Category(q.Get("type")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports ready only once a complete index exists, so load
// balancers hold traffic during an initial build.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !s.svc.Ready(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "building"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, query.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		logging.Error("Request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func intParam(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
