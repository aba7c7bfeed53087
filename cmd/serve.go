package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/market-validator/internal/catalog"
	"github.com/sells-group/market-validator/internal/model"
	"github.com/sells-group/market-validator/internal/pipeline"
	"github.com/sells-group/market-validator/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for triggering and browsing sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		api := newAPI(ctx, env.Orchestrator, env.Registry, env.Store)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 30*time.Second)
			defer cancel()
			err := srv.Shutdown(shutdownCtx)
			api.wait()
			return eris.Wrap(err, "server shutdown")
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// sessionRunner runs one validation session.
type sessionRunner interface {
	Run(ctx context.Context, opts pipeline.RunOptions) (*pipeline.Outcome, error)
}

// api serves the session endpoints. Sessions triggered over HTTP run in the
// background on the server's base context.
type api struct {
	base     context.Context
	runner   sessionRunner
	registry *catalog.Registry
	history  store.Store // nil disables the history endpoints
	runs     sync.WaitGroup
}

func newAPI(base context.Context, runner sessionRunner, reg *catalog.Registry, history store.Store) *api {
	return &api{base: base, runner: runner, registry: reg, history: history}
}

func (a *api) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Route("/runs", func(r chi.Router) {
		r.Post("/", a.createRun)
		r.Get("/", a.listRuns)
		r.Get("/{id}", a.getRun)
		r.Get("/{id}/report", a.getReport)
	})
	return r
}

// wait blocks until every background session has finished.
func (a *api) wait() {
	a.runs.Wait()
}

type runRequest struct {
	Date    string   `json:"date"`
	Sources []string `json:"sources"`
	DryRun  bool     `json:"dry_run"`
	// Verbose defaults to true when omitted.
	Verbose *bool `json:"verbose"`
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) createRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Date != "" {
		if _, err := time.Parse(pipeline.DateLayout, req.Date); err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}
	if _, err := a.registry.Resolve(req.Sources); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runID := uuid.NewString()
	opts := pipeline.RunOptions{
		RunID:   runID,
		Date:    req.Date,
		Sources: req.Sources,
		DryRun:  req.DryRun,
		Verbose: req.Verbose == nil || *req.Verbose,
	}

	a.runs.Add(1)
	go func() {
		defer a.runs.Done()
		log := zap.L().With(zap.String("run_id", runID))
		out, err := a.runner.Run(a.base, opts)
		if err != nil {
			log.Error("session failed to start", zap.Error(err))
			return
		}
		log.Info("session complete",
			zap.String("status", string(out.Snapshot.Totals.Status)),
			zap.Int("items_validated", out.Snapshot.Totals.ItemsValidated),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"run_id": runID,
	})
}

func (a *api) listRuns(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, http.StatusServiceUnavailable, "run history disabled")
		return
	}
	q := r.URL.Query()
	filter := store.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Date:   q.Get("date"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	runs, err := a.history.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *api) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := a.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *api) getReport(w http.ResponseWriter, r *http.Request) {
	run, ok := a.lookup(w, r)
	if !ok {
		return
	}
	text, err := storedReport(run, r.URL.Query().Get("kind") == "tasks")
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

func (a *api) lookup(w http.ResponseWriter, r *http.Request) (*model.Run, bool) {
	if a.history == nil {
		writeError(w, http.StatusServiceUnavailable, "run history disabled")
		return nil, false
	}
	id := chi.URLParam(r, "id")
	run, err := a.history.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return nil, false
	}
	if err != nil {
		zap.L().Error("get run", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get run failed")
		return nil, false
	}
	return run, true
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
