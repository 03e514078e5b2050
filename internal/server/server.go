// Package server exposes harvest jobs over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/config"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/service"
)

// UserHeader names the caller that started a job.
const UserHeader = "X-Harvest-User"

// watchInterval is how often a watched job's snapshot is pushed.
const watchInterval = 500 * time.Millisecond

// JobDetail is a job together with its recorded errors.
type JobDetail struct {
	Job    models.HarvestJob     `json:"job"`
	Errors []models.HarvestError `json:"errors"`
}

// Server routes HTTP requests to the job manager.
type Server struct {
	jobs     *service.JobManager
	router   *mux.Router
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// New creates the server and its routes.
func New(jobs *service.JobManager, logger *slog.Logger) *Server {
	s := &Server{
		jobs:   jobs,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}

	s.router.Use(LoggingMiddleware(logger))
	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	s.router.HandleFunc("/sources", s.listSources).Methods(http.MethodGet)
	s.router.HandleFunc("/sources/{name}/run", s.runSource).Methods(http.MethodPost)
	s.router.HandleFunc("/jobs", s.listJobs).Methods(http.MethodGet)
	s.router.HandleFunc("/jobs/{id}", s.getJob).Methods(http.MethodGet)
	s.router.HandleFunc("/jobs/{id}/watch", s.watchJob).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.stats).Methods(http.MethodGet)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) listSources(w http.ResponseWriter, _ *http.Request) {
	sources := s.jobs.Sources()
	out := make([]config.Source, 0, len(sources))
	for _, src := range sources {
		// Source configs may carry paths; only identity is exposed.
		out = append(out, config.Source{Name: src.Name, ID: src.ID, Type: src.Type, URL: src.URL})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) runSource(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	job, err := s.jobs.Start(r.Context(), name, r.Header.Get(UserHeader))
	switch {
	case errors.Is(err, service.ErrUnknownSource):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, service.ErrJobRunning):
		s.writeError(w, http.StatusConflict, err)
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err)
	default:
		s.writeJSON(w, http.StatusAccepted, job.Snapshot())
	}
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}

	jobs, err := s.jobs.ListJobs(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, errors.New("job not found"))
		return
	}

	errs, err := s.jobs.Errors(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, JobDetail{Job: *job, Errors: errs})
}

// watchJob streams job snapshots over a websocket until the job is done.
// Jobs that are no longer in memory get their stored state once.
func (s *Server) watchJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job := s.jobs.Job(id)
	if job == nil {
		stored, err := s.jobs.GetJob(r.Context(), id)
		if err != nil || stored == nil {
			s.writeError(w, http.StatusNotFound, errors.New("job not found"))
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()

	if job == nil {
		stored, _ := s.jobs.GetJob(r.Context(), id)
		_ = conn.WriteJSON(stored)
		s.closeStream(conn)
		return
	}

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()
	for {
		if err := conn.WriteJSON(job.Snapshot()); err != nil {
			s.logger.Debug("watcher went away", "job_id", id, "error", err)
			return
		}
		select {
		case <-job.Done():
			_ = conn.WriteJSON(job.Snapshot())
			s.closeStream(conn)
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) closeStream(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.jobs.Metrics().Snapshot())
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     s,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("harvest server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
