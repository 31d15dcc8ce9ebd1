// Package api exposes schedule generation and replay over HTTP.
package api

import (
	"bytes"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"trialrand/adapters/export"
	"trialrand/app"
	"trialrand/domain/core"
	"trialrand/internal/config"
	"trialrand/internal/errors"
	"trialrand/internal/report"
)

// maxPlanBytes bounds request bodies.
const maxPlanBytes = 1 << 20

// Server routes HTTP requests to the schedule service
type Server struct {
	router  *chi.Mux
	service *app.ScheduleService
}

// NewServer creates the router and registers every route
func NewServer(service *app.ScheduleService) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		service: service,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/schedules", s.handleGenerate)
		r.Post("/schedules/verify", s.handleVerify)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/rows", s.handleGetRows)
	})

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGenerate accepts a YAML or JSON plan. The response is the manifest and
// audit as JSON, the rows as CSV with ?format=csv, or an HTML audit report
// with ?format=html.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	plan, err := config.ParsePlan(body)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.service.Generate(r.Context(), plan)
	if err != nil {
		writeError(w, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("X-Run-ID", result.Manifest.RunID.String())
		w.Header().Set("X-Fingerprint", result.Manifest.Fingerprint.String())
		if err := export.WriteCSV(w, result.Schedule.Rows); err != nil {
			log.Printf("[API] failed to stream rows of run %s: %v", result.Manifest.RunID, err)
		}
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(report.HTML(result.Manifest, result.Audit))
	default:
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"manifest":   result.Manifest,
			"audit":      result.Audit,
			"rows":       result.Schedule.Rows,
			"runtime_ms": result.RuntimeMs,
		})
	}
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	manifest, err := export.ReadManifest(bytes.NewReader(body))
	if err != nil {
		writeError(w, errors.FromDomain(err, "invalid manifest"))
		return
	}

	if _, err := s.service.Verify(r.Context(), manifest); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":      manifest.RunID,
		"fingerprint": manifest.Fingerprint,
		"reproduced":  true,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, errors.InvalidInput("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	manifests, err := s.service.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": manifests})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errors.FromDomain(err, "invalid run id"))
		return
	}
	manifest, err := s.service.Get(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, manifest)
}

func (s *Server) handleGetRows(w http.ResponseWriter, r *http.Request) {
	runID, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errors.FromDomain(err, "invalid run id"))
		return
	}
	rows, err := s.service.Rows(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		if err := export.WriteCSV(w, rows); err != nil {
			log.Printf("[API] failed to stream rows of run %s: %v", runID, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"run_id": runID, "rows": rows})
}
