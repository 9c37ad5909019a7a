// Package api exposes the detector over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/hed1ad/gostatsig/internal/config"
	"github.com/hed1ad/gostatsig/internal/logger"
	"github.com/hed1ad/gostatsig/pkg/detectors"
	sio "github.com/hed1ad/gostatsig/pkg/io"
	"github.com/hed1ad/gostatsig/pkg/io/sqlstore"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Server serves the detection API. A nil store disables persistence.
type Server struct {
	cfg    config.Config
	log    zerolog.Logger
	store  *sqlstore.Store
	router *mux.Router
}

// New wires the routes.
func New(cfg config.Config, log zerolog.Logger, store *sqlstore.Store) *Server {
	s := &Server{cfg: cfg, log: log, store: store}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/detect", s.handleDetect).Methods(http.MethodPost)
	r.HandleFunc("/v1/config/serialize", s.handleSerialize).Methods(http.MethodPost)
	r.HandleFunc("/v1/runs/{id}", s.handleRun).Methods(http.MethodGet)
	r.Use(s.withRequestID, s.withRequestLogging)

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.log.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"persistence": s.store != nil,
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "persistence is disabled")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	results, err := s.store.Results(r.Context(), id)
	if err != nil {
		logger.C(r.Context(), &s.log).Error().Err(err).Msg("loading run")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if len(results) == 0 {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": id.String(), "results": results})
}

// statusFor maps detector errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, detectors.ErrConfiguration), errors.Is(err, detectors.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequest(r.Context(), id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)
		logger.C(r.Context(), &s.log).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sr.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

// resultsPayload is the body of a successful detect call.
type resultsPayload struct {
	RunID            string       `json:"run_id,omitempty"`
	TimeUnit         string       `json:"time_unit"`
	BigDataTransform bool         `json:"big_data_transform"`
	Results          []sio.Result `json:"results"`
}
