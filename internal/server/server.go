// Package server exposes the pipeline over HTTP for the web UI.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/checkpoint"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
)

// Runner is the part of the pipeline the server drives.
type Runner interface {
	Run(ctx context.Context, params model.RunParams) (*model.PipelineResult, error)
	Feed() *pipeline.Feed
}

// RunnerFactory builds a fresh Runner (with its own feed) per request.
type RunnerFactory func() (Runner, error)

// tailWindow is how many trailing feed lines the active-run endpoint
// returns.
const tailWindow = 50

// Server serves the web UI API. At most one pipeline run is active per
// process; concurrent start attempts are rejected so two runs never fight
// over the same checkpoint directory.
type Server struct {
	factory     RunnerFactory
	checkpoints *checkpoint.Store

	mu     sync.Mutex
	active *activeRun
}

type activeRun struct {
	params model.RunParams
	runner Runner
	status model.RunStatus
	result *model.RunResult
	done   chan struct{}
}

// New creates a Server.
func New(factory RunnerFactory, checkpoints *checkpoint.Store) *Server {
	return &Server{
		factory:     factory,
		checkpoints: checkpoints,
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/runs", s.handleStartRun)
		r.Get("/runs/active", s.handleActiveRun)
		r.Get("/checkpoints", s.handleCheckpoints)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var params model.RunParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := params.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil && s.active.status != model.RunStatusComplete && s.active.status != model.RunStatusFailed {
		writeError(w, http.StatusConflict, "a run is already active")
		return
	}

	runner, err := s.factory()
	if err != nil {
		zap.L().Error("server: build pipeline", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start pipeline")
		return
	}

	run := &activeRun{
		params: params,
		runner: runner,
		status: model.RunStatusScraping,
		done:   make(chan struct{}),
	}
	s.active = run

	go s.execute(run)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"params": params,
	})
}

// execute runs the pipeline on a worker goroutine. The handler goroutines
// only ever read the feed.
func (s *Server) execute(run *activeRun) {
	defer close(run.done)

	result, err := run.runner.Run(context.Background(), run.params)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		run.status = model.RunStatusFailed
		run.result = &model.RunResult{Error: err.Error()}
		zap.L().Error("server: pipeline run failed", zap.Error(err))
		return
	}
	run.status = model.RunStatusComplete
	run.result = &model.RunResult{
		LeadCount:  len(result.Leads),
		OutputPath: result.OutputPath,
	}
}

func (s *Server) handleActiveRun(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	run := s.active
	var status model.RunStatus
	var result *model.RunResult
	if run != nil {
		status = run.status
		result = run.result
	}
	s.mu.Unlock()

	if run == nil {
		writeError(w, http.StatusNotFound, "no run has been started")
		return
	}

	// Tail is read after the status snapshot: a terminal status therefore
	// always comes with the complete trailing window.
	resp := map[string]any{
		"params": run.params,
		"status": status,
		"log":    run.runner.Feed().Tail(tailWindow),
	}
	if result != nil {
		resp["result"] = result
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheckpoints(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"any":      s.checkpoints.ExistsAny(),
		"scraped":  s.checkpoints.Exists(checkpoint.SlotScraped),
		"enriched": s.checkpoints.Exists(checkpoint.SlotEnriched),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
