// Package bridge exposes the app operations over HTTP for a host bot
// runtime.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mCat-0/mCat-ac/internal/app"
	"github.com/mCat-0/mCat-ac/internal/metrics"
	"github.com/mCat-0/mCat-ac/internal/render"
)

// maxBodyBytes caps uploaded exports.
const maxBodyBytes = 16 << 20

type Options struct {
	Logger logrus.FieldLogger
	// AccessLog receives one line per request; nil discards.
	AccessLog io.Writer
	Metrics   *metrics.Metrics
	// Gatherer backs /metrics; nil disables the route.
	Gatherer  prometheus.Gatherer
	UserRate  float64
	UserBurst int
	PageSize  int
}

type Server struct {
	app      *app.App
	log      logrus.FieldLogger
	limiter  *userLimiter
	pageSize int
	handler  http.Handler
}

func New(a *app.App, opts Options) *Server {
	s := &Server{
		app:      a,
		log:      opts.Logger,
		pageSize: opts.PageSize,
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.pageSize <= 0 {
		s.pageSize = render.DefaultPageSize
	}
	if opts.UserRate <= 0 {
		opts.UserRate = 5
	}
	if opts.UserBurst <= 0 {
		opts.UserBurst = 30
	}
	s.limiter = newUserLimiter(opts.UserRate, opts.UserBurst)

	r := mux.NewRouter()
	r.Use(opts.Metrics.Middleware)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(s.limiter.middleware)
	api.HandleFunc("/users/{id}/achievements", s.recordAchievements).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}/import", s.importPayload).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}/sharecode/{code}", s.importShareCode).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}/input", s.startInput).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}/progress", s.checkProgress).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/progress", s.resetProgress).Methods(http.MethodDelete)
	api.HandleFunc("/users/{id}/status", s.status).Methods(http.MethodGet)
	api.HandleFunc("/catalog/refresh", s.refreshCatalog).Methods(http.MethodPost)
	api.HandleFunc("/messages", s.handleMessage).Methods(http.MethodPost)

	accessLog := opts.AccessLog
	if accessLog == nil {
		accessLog = io.Discard
	}
	s.handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(s.log),
		handlers.PrintRecoveryStack(false),
	)(handlers.LoggingHandler(accessLog, r))
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
// Idle rate-limit entries and expired input windows are swept every minute.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("http bridge listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case err, ok := <-errCh:
			if ok {
				return fmt.Errorf("http bridge: %w", err)
			}
			return nil
		case now := <-ticker.C:
			s.limiter.cleanup(3 * time.Minute)
			s.app.Awaiting().Sweep(now)
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			s.log.Info("http bridge shutting down")
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		}
	}
}

type recordRequest struct {
	Tokens []string `json:"tokens"`
}

func (s *Server) recordAchievements(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.app.RecordAchievements(r.Context(), mux.Vars(r)["id"], req.Tokens)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recordJSON(res))
}

func (s *Server) importPayload(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: read body: %v", errBadRequest, err))
		return
	}
	res, err := s.app.ImportPayload(r.Context(), mux.Vars(r)["id"], raw, app.SourceFile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importJSON(res))
}

func (s *Server) importShareCode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	res, err := s.app.ImportShareCode(r.Context(), vars["id"], vars["code"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importJSON(res))
}

func (s *Server) startInput(w http.ResponseWriter, r *http.Request) {
	deadline, err := s.app.StartInput(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": "awaiting_share_code", "deadline": deadline})
}

func (s *Server) checkProgress(w http.ResponseWriter, r *http.Request) {
	page, err := intQuery(r, "page", 1)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	size, err := intQuery(r, "size", s.pageSize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.app.CheckProgress(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progressJSON(res, page, size, s.app.Resolver().Label))
}

func (s *Server) resetProgress(w http.ResponseWriter, r *http.Request) {
	if err := s.app.ResetProgress(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	st, err := s.app.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) refreshCatalog(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: force must be a boolean", errBadRequest))
			return
		}
		force = b
	}
	report, err := s.app.RefreshCatalog(r.Context(), force)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshJSON(report))
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg app.Message
	if err := decodeJSON(r, &msg); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.app.HandleMessage(r.Context(), msg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := map[string]any{"handled": res.Handled}
	if res.Import != nil {
		out["import"] = importJSON(res.Import)
	}
	writeJSON(w, http.StatusOK, out)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errBadRequest, key)
	}
	return n, nil
}
