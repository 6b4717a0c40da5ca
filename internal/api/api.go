package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/joescharf/autograde/internal/config"
	"github.com/joescharf/autograde/internal/models"
	"github.com/joescharf/autograde/internal/output"
	"github.com/joescharf/autograde/internal/service"
	"github.com/joescharf/autograde/internal/store"
)

// maxBodyBytes bounds request bodies, which carry at most a rubric.
const maxBodyBytes = 1 << 20

// Server provides the REST API handlers.
type Server struct {
	svc     *service.Service
	rubric  *config.Rubric
	metrics http.Handler
	version string
	log     zerolog.Logger
}

// NewServer creates a new API server. rubric is the default for grade
// requests that do not include one; rubric and metrics may be nil.
func NewServer(svc *service.Service, rubric *config.Rubric, metrics http.Handler, version string, log zerolog.Logger) *Server {
	return &Server{svc: svc, rubric: rubric, metrics: metrics, version: version, log: log}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", s.health)

	mux.HandleFunc("POST /api/v1/check", s.check)
	mux.HandleFunc("POST /api/v1/grade", s.grade)
	mux.HandleFunc("POST /api/v1/penalty", s.penalty)

	mux.HandleFunc("GET /api/v1/submissions", s.listSubmissions)
	mux.HandleFunc("GET /api/v1/submissions/{id}", s.getSubmission)
	mux.HandleFunc("DELETE /api/v1/submissions/{id}", s.deleteSubmission)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return s.logRequests(corsMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

// --- Health ---

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"version":           s.version,
		"backend":           s.svc.Backend,
		"grading_available": s.svc.Pipeline.GradingAvailable(),
		"default_rubric":    s.rubric != nil,
	})
}

// --- Grading ---

type checkRequest struct {
	RepoURL string `json:"repo_url"`
}

func (s *Server) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RepoURL == "" {
		writeError(w, http.StatusBadRequest, "repo_url is required")
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Check(r.Context(), req.RepoURL))
}

type gradeRequest struct {
	RepoURL     string          `json:"repo_url"`
	Student     string          `json:"student"`
	Assignment  string          `json:"assignment"`
	Rubric      json.RawMessage `json:"rubric"`
	DueAt       *time.Time      `json:"due_at"`
	SubmittedAt *time.Time      `json:"submitted_at"`
	AnalyzeOnly bool            `json:"analyze_only"`
}

type gradeResponse struct {
	service.Result
	RubricWarnings []string `json:"rubric_warnings,omitempty"`
}

func (s *Server) grade(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RepoURL == "" {
		writeError(w, http.StatusBadRequest, "repo_url is required")
		return
	}

	in := service.Submission{
		RepoURL:     req.RepoURL,
		Student:     req.Student,
		Assignment:  req.Assignment,
		DueAt:       req.DueAt,
		SubmittedAt: req.SubmittedAt,
		AnalyzeOnly: req.AnalyzeOnly,
	}

	var warnings []string
	if !req.AnalyzeOnly {
		rubric := s.rubric
		if len(req.Rubric) > 0 && string(req.Rubric) != "null" {
			parsed, err := config.ParseRubric(req.Rubric, true)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			rubric = parsed
		}
		if rubric == nil {
			writeError(w, http.StatusBadRequest, "rubric is required: none supplied and no default configured")
			return
		}
		in.Criteria = rubric.Criteria
		in.Context = rubric.Assignment
		if in.Assignment == "" && rubric.Assignment != nil {
			in.Assignment = rubric.Assignment.Name
		}
		warnings = rubric.Warnings
	}

	res, err := s.svc.Grade(r.Context(), in)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Pipeline failures are results, not transport errors.
	writeJSON(w, http.StatusOK, gradeResponse{Result: res, RubricWarnings: warnings})
}

type penaltyRequest struct {
	Grade       float64   `json:"grade"`
	MaxPoints   float64   `json:"max_points"`
	DueAt       time.Time `json:"due_at"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func (s *Server) penalty(w http.ResponseWriter, r *http.Request) {
	var req penaltyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DueAt.IsZero() || req.SubmittedAt.IsZero() {
		writeError(w, http.StatusBadRequest, "due_at and submitted_at are required")
		return
	}
	if req.MaxPoints <= 0 {
		req.MaxPoints = 100
	}
	info, applied := s.svc.Penalty(req.Grade, req.MaxPoints, req.DueAt, req.SubmittedAt)
	writeJSON(w, http.StatusOK, map[string]any{
		"penalty": info,
		"applied": applied,
	})
}

// --- Submissions ---

func (s *Server) listSubmissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SubmissionListFilter{
		Student:     q.Get("student"),
		Assignment:  q.Get("assignment"),
		Status:      models.SubmissionStatus(q.Get("status")),
		NeedsReview: q.Get("needs_review") == "true",
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	subs, err := s.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if q.Get("format") == output.FormatCSV {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="submissions.csv"`)
		if err := output.WriteSubmissionsCSV(w, subs); err != nil {
			s.log.Error().Err(err).Msg("write csv")
		}
		return
	}
	if subs == nil {
		subs = []*models.Submission{}
	}
	writeJSON(w, http.StatusOK, subs)
}

type submissionDetail struct {
	*models.Submission
	Result json.RawMessage `json:"result,omitempty"`
}

func (s *Server) getSubmission(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sub, err := s.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	detail := submissionDetail{Submission: sub}
	if sub.ResultJSON != "" {
		detail.Result = json.RawMessage(sub.ResultJSON)
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) deleteSubmission(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.svc.Store == nil {
		writeError(w, http.StatusInternalServerError, "no result store configured")
		return
	}
	if err := s.svc.Store.DeleteSubmission(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
