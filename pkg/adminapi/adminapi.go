// Package adminapi exposes the Task Computer's local HTTP+JSON admin
// surface: progress and stats for observability, quit and reconfigure
// for operator control. The route layout and JSON envelope follow the
// mux.NewRouter()/subrouter/sendJSON pattern used by the noisefs pack
// repo's webui servers; request accounting follows warren's own
// instrumentation of its cluster API, here adapted to Prometheus
// middleware instead of a gRPC interceptor.
package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/cuemby/taskcomputer/pkg/config"
	"github.com/cuemby/taskcomputer/pkg/metrics"
	"github.com/cuemby/taskcomputer/pkg/storage"
	"github.com/cuemby/taskcomputer/pkg/types"
)

// Response is the envelope every admin API endpoint replies with, the
// Go analogue of the noisefs webui's APIResponse.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Computer is the subset of pkg/taskcomputer.Computer the admin API
// needs. Defined here, consumer-side, so the API can be tested without
// a live Computer.
type Computer interface {
	GetProgresses() map[string]types.Progress
	Quit(ctx context.Context)
	ChangeConfig(ctx context.Context, desc config.ConfigDesc, inBackground, runBenchmarks bool) error
}

// StatsSource is the subset of pkg/stats.Counter the admin API needs.
type StatsSource interface {
	Snapshot() storage.StatsSnapshot
}

// ReconfigureRequest is the POST /api/reconfigure request body: a full
// config descriptor plus the two change_config flags the original
// exposes as separate keyword arguments.
type ReconfigureRequest struct {
	Config        config.ConfigDesc `json:"config"`
	InBackground  bool              `json:"in_background"`
	RunBenchmarks bool              `json:"run_benchmarks"`
}

// Server wires a Computer and its stats counter into an HTTP+JSON
// admin surface, plus the health and metrics endpoints pkg/metrics
// already builds.
type Server struct {
	computer Computer
	stats    StatsSource
	logger   zerolog.Logger

	httpServer *http.Server
}

// New builds the admin API's router and binds it to addr. The server
// does not start listening until Serve is called.
func New(addr string, computer Computer, stats StatsSource, logger zerolog.Logger) *Server {
	s := &Server{
		computer: computer,
		stats:    stats,
		logger:   logger.With().Str("component", "adminapi").Logger(),
	}

	router := mux.NewRouter()
	router.Use(s.instrument)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/progress", s.handleProgress).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/quit", s.handleQuit).Methods(http.MethodPost)
	api.HandleFunc("/reconfigure", s.handleReconfigure).Methods(http.MethodPost)

	router.Handle("/metrics", metrics.Handler())
	router.HandleFunc("/health", metrics.HealthHandler())
	router.HandleFunc("/ready", metrics.ReadyHandler())
	router.HandleFunc("/live", metrics.LivenessHandler())

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: router,
	}

	return s
}

// Serve runs the admin API until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("admin API listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// instrument records request counts and latency the way warren's
// ReadOnlyInterceptor gates its gRPC calls, here observing rather than
// blocking.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		metrics.AdminAPIRequestDuration.WithLabelValues(r.Method).Observe(time.Since(started).Seconds())
		metrics.AdminAPIRequestsTotal.WithLabelValues(r.Method, http.StatusText(sw.status)).Inc()
	})
}

// statusWriter captures the status code a handler wrote, since
// http.ResponseWriter has no getter for it.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode admin API response")
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, Response{Success: true, Data: s.computer.GetProgresses()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, Response{Success: true, Data: s.stats.Snapshot()})
}

func (s *Server) handleQuit(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, Response{Success: true})
	go s.computer.Quit(context.Background())
}

func (s *Server) handleReconfigure(w http.ResponseWriter, r *http.Request) {
	var req ReconfigureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "invalid reconfigure request: " + err.Error()})
		return
	}

	if err := s.computer.ChangeConfig(r.Context(), req.Config, req.InBackground, req.RunBenchmarks); err != nil {
		s.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: err.Error()})
		return
	}

	s.sendJSON(w, http.StatusOK, Response{Success: true})
}
