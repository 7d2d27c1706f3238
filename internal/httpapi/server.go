// Package httpapi serves the watch-mode HTTP surface: current state,
// a liveness endpoint, and the Prometheus registry.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psantana5/svcguard/internal/logging"
	"github.com/psantana5/svcguard/internal/metrics"
	"github.com/psantana5/svcguard/internal/store"
	"github.com/psantana5/svcguard/pkg/models"
)

// Server routes status queries against the shared store. Readers
// tolerate stale state; the check loop is the single writer.
type Server struct {
	st       store.Store
	exporter *metrics.Exporter
	log      *logging.Logger
}

// New creates a Server
func New(st store.Store, exporter *metrics.Exporter, log *logging.Logger) *Server {
	return &Server{st: st, exporter: exporter, log: log}
}

// Router builds the mux router
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.exporter.Registry(), promhttp.HandlerOpts{}))
	return r
}

type statusResponse struct {
	State  *models.WatchdogState `json:"state"`
	Events []models.Event        `json:"recent_events,omitempty"`
	Sample *models.MetricSample  `json:"last_sample,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.st.LoadState()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := statusResponse{State: state}
	if events, err := s.st.RecentEvents(10); err == nil {
		resp.Events = events
	}
	if samples, err := s.st.Samples(); err == nil && len(samples) > 0 {
		last := samples[len(samples)-1]
		resp.Sample = &last
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Warn("failed to encode status response", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	state, err := s.st.LoadState()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if models.IsDegraded(state.Status) {
		http.Error(w, string(state.Status), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
