// internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/jobs"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server exposes the job API: submit a search, stream its progress, fetch the
// result, and relay operator input to a suspended mission.
type Server struct {
	logger *zap.Logger
	store  jobs.Store
	gate   *jobs.InputGate
	hub    *Hub
	runner MissionRunner
	cfg    config.Interface

	// slots bounds the number of concurrently running missions.
	slots *semaphore.Weighted

	// baseCtx is the lifetime of background missions; it outlives individual
	// requests and is cancelled on shutdown.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	httpServer *http.Server
}

func New(
	logger *zap.Logger,
	store jobs.Store,
	gate *jobs.InputGate,
	hub *Hub,
	runner MissionRunner,
	cfg config.Interface,
) *Server {
	maxConcurrent := cfg.Server().MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		logger:     logger.Named("server"),
		store:      store,
		gate:       gate,
		hub:        hub,
		runner:     runner,
		cfg:        cfg,
		slots:      semaphore.NewWeighted(int64(maxConcurrent)),
		baseCtx:    ctx,
		cancelBase: cancel,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Server().Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the chi router. Exposed for httptest.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/search", s.handleSearch)
	r.Get("/stream/{job_id}", s.handleStream)
	r.Get("/result/{job_id}", s.handleResult)
	r.Get("/jobs/{job_id}/status", s.handleStatus)
	r.Get("/screenshots/{job_id}/{file}", s.handleScreenshot)
	r.Get("/user-input-request/{job_id}", s.handleInputRequest)
	r.Post("/user-input-response", s.handleInputResponse)

	return r
}

// ListenAndServe blocks until the context is cancelled, then drains within
// the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		s.cancelBase()
		return err
	case <-ctx.Done():
	}

	s.cancelBase()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server().ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return <-errCh
}

// -- Handlers --

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req schemas.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	req.URL = strings.TrimSpace(req.URL)
	if req.Query == "" || req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "query and url are required")
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		s.writeError(w, http.StatusBadRequest, "url must be absolute (http or https)")
		return
	}

	agentCfg := s.cfg.Agent()
	if req.TopK <= 0 {
		req.TopK = agentCfg.DefaultTopK
	}
	if req.MaxSteps <= 0 || req.MaxSteps > agentCfg.MaxSteps {
		req.MaxSteps = agentCfg.MaxSteps
	}

	rec := schemas.JobRecord{
		ID:       uuid.NewString(),
		Query:    req.Query,
		URL:      req.URL,
		TopK:     req.TopK,
		MaxSteps: req.MaxSteps,
		State:    schemas.JobPending,
	}
	if err := s.store.Create(r.Context(), rec); err != nil {
		s.logger.Error("Failed to create job", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	go s.launch(rec)

	s.logger.Info("Job accepted",
		zap.String("job_id", rec.ID),
		zap.String("url", rec.URL),
		zap.Int("top_k", rec.TopK))
	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": rec.ID,
		"state":  rec.State,
	})
}

// launch runs the mission once a concurrency slot frees up. It uses the
// server's base context, not the submit request's, so the mission survives
// the HTTP exchange that created it.
func (s *Server) launch(rec schemas.JobRecord) {
	if err := s.slots.Acquire(s.baseCtx, 1); err != nil {
		s.hub.Push(rec.ID, "error", map[string]interface{}{"message": "server shutting down"})
		s.hub.Push(rec.ID, "finished", map[string]interface{}{"stop_reason": "server shutting down"})
		return
	}
	defer s.slots.Release(1)
	s.runner.Run(s.baseCtx, rec)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if _, err := s.store.Get(r.Context(), jobID); err != nil {
		s.jobError(w, jobID, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	replay, live, cancel := s.hub.Subscribe(jobID)
	defer cancel()

	for _, ev := range replay {
		s.writeSSE(w, ev)
	}
	flusher.Flush()

	keepAlive := s.cfg.Server().SSEKeepAlive
	if keepAlive <= 0 {
		keepAlive = 60 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, open := <-live:
			if !open {
				return
			}
			s.writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func (s *Server) writeSSE(w http.ResponseWriter, ev schemas.StatusEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("Failed to encode status event", zap.Error(err))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Event, data)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	rec, err := s.store.Get(r.Context(), jobID)
	if err != nil {
		s.jobError(w, jobID, err)
		return
	}

	switch rec.State {
	case schemas.JobCompleted:
		s.writeJSON(w, http.StatusOK, rec.Result)
	case schemas.JobFailed:
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"job_id": rec.ID,
			"state":  rec.State,
		})
	default:
		s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"job_id": rec.ID,
			"state":  rec.State,
		})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	rec, err := s.store.Get(r.Context(), jobID)
	if err != nil {
		s.jobError(w, jobID, err)
		return
	}

	resp := map[string]interface{}{
		"job_id":     rec.ID,
		"state":      rec.State,
		"created_at": rec.CreatedAt,
		"updated_at": rec.UpdatedAt,
	}
	if events, err := s.store.Events(r.Context(), jobID); err == nil && len(events) > 0 {
		resp["last_event"] = events[len(events)-1].Event
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	file := chi.URLParam(r, "file")

	// Path components must not escape the screenshot root.
	if jobID != filepath.Base(jobID) || file != filepath.Base(file) ||
		strings.HasPrefix(file, ".") || strings.HasPrefix(jobID, ".") {
		s.writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	base := s.cfg.Agent().ScreenshotDir
	if base == "" {
		s.writeError(w, http.StatusNotFound, "screenshots disabled")
		return
	}
	http.ServeFile(w, r, filepath.Join(base, jobID, file))
}

func (s *Server) handleInputRequest(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	req, ok := s.gate.Pending(jobID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "no pending input request")
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleInputResponse(w http.ResponseWriter, r *http.Request) {
	var resp schemas.UserInputResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if resp.JobID == "" {
		s.writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}

	// The submitted value is never logged; it may be a credential.
	if err := s.gate.Respond(resp.JobID, resp.Value); err != nil {
		if errors.Is(err, jobs.ErrNoPendingRequest) {
			s.writeError(w, http.StatusNotFound, "no pending input request")
			return
		}
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.logger.Info("Operator input delivered", zap.String("job_id", resp.JobID))
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "delivered"})
}

// -- Response helpers --

func (s *Server) jobError(w http.ResponseWriter, jobID string, err error) {
	if errors.Is(err, jobs.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "unknown job: "+jobID)
		return
	}
	s.logger.Error("Job lookup failed", zap.String("job_id", jobID), zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "job lookup failed")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("Failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{"error": message})
}
