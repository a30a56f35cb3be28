package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"casesync/pkg/config"
	"casesync/pkg/logger"
	"casesync/pkg/metrics"
	"casesync/pkg/models"
	syncengine "casesync/pkg/sync"
)

// triggerHeader carries the shared secret on trigger requests
const triggerHeader = "X-Sync-Secret"

// SyncEngine is the engine surface the server needs. *sync.Engine satisfies
// it; tests substitute a fake.
type SyncEngine interface {
	RunFullSync(ctx context.Context) (*models.Report, error)
	Resume(ctx context.Context) (*models.Report, error)
	RequestStop()
	Status(ctx context.Context, runID string) (*models.RunStatusInfo, error)
	CurrentStatus(ctx context.Context) (*models.RunStatusInfo, error)
}

// Server exposes the remote trigger endpoint and run status over HTTP so the
// hosting application can drive syncs without shell access.
type Server struct {
	cfg     *config.Config
	engine  SyncEngine
	logger  logger.Logger
	metrics *metrics.Metrics
	httpSrv *http.Server
}

// New creates a server around the given engine
func New(cfg *config.Config, engine SyncEngine, m *metrics.Metrics, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	s := &Server{
		cfg:     cfg,
		engine:  engine,
		logger:  log,
		metrics: m,
	}
	s.httpSrv = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sync", s.handleTrigger)
	mux.HandleFunc("POST /api/v1/sync/stop", s.handleStop)
	mux.HandleFunc("GET /api/v1/runs/current", s.handleCurrentRun)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleRunStatus)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe starts the HTTP server and blocks
func (s *Server) ListenAndServe() error {
	s.logger.InfoWithFields("trigger server listening", map[string]interface{}{
		"addr": s.cfg.Server.Addr,
	})
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops the HTTP server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// authorized compares the presented secret against the configured one in
// constant time. An unset secret disables the endpoint rather than leaving
// it open.
func (s *Server) authorized(r *http.Request) bool {
	secret := s.cfg.Server.TriggerSecret
	if secret == "" {
		return false
	}
	presented := r.Header.Get(triggerHeader)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1
}

// handleTrigger starts a sync in the background. When a paused run exists it
// resumes; otherwise a fresh full sync starts.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.logger.Warn("rejected sync trigger with bad secret")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	mode := "full"
	if info, err := s.engine.CurrentStatus(r.Context()); err == nil && info.Status == models.StatusPaused {
		mode = "resume"
	}

	go func() {
		// Detached from the request context: the sync outlives the response
		ctx := context.Background()
		var err error
		if mode == "resume" {
			_, err = s.engine.Resume(ctx)
		} else {
			_, err = s.engine.RunFullSync(ctx)
		}
		if err != nil && !errors.Is(err, syncengine.ErrAlreadyRunning) {
			s.logger.WithError(err).Error("triggered sync failed")
		}
	}()

	s.logger.InfoWithFields("sync triggered remotely", map[string]interface{}{
		"mode": mode,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "mode": mode})
}

// handleStop sets the cooperative stop flag
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	s.engine.RequestStop()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stop requested"})
}

// handleRunStatus returns the status of one run by id
func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleCurrentRun returns the status of the current run, if any
func (s *Server) handleCurrentRun(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.CurrentStatus(r.Context())
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no current run"})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
