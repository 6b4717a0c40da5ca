// Package service connects the grading pipeline to persistence and metrics.
// The CLI, MCP and REST surfaces all go through it.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/joescharf/autograde/internal/models"
	"github.com/joescharf/autograde/internal/penalty"
	"github.com/joescharf/autograde/internal/pipeline"
	"github.com/joescharf/autograde/internal/repo"
	"github.com/joescharf/autograde/internal/store"
)

// Checker is the existence check used by Check.
type Checker interface {
	Exists(ctx context.Context, ref repo.Reference) repo.ExistenceResult
}

// Observer receives finished outcomes.
type Observer interface {
	Observe(out pipeline.Outcome)
}

// Service runs submissions and records the results.
type Service struct {
	Pipeline    *pipeline.Pipeline
	Checker     Checker
	Store       store.Store // nil disables persistence
	Observer    Observer
	Backend     string
	Policy      penalty.Policy
	Concurrency int

	Log zerolog.Logger
}

// Submission is one piece of student work to grade.
type Submission struct {
	RepoURL     string                    `json:"repo_url"`
	Student     string                    `json:"student,omitempty"`
	Assignment  string                    `json:"assignment,omitempty"`
	Criteria    models.GradingCriteria    `json:"-"`
	Context     *models.AssignmentContext `json:"-"`
	DueAt       *time.Time                `json:"due_at,omitempty"`
	SubmittedAt *time.Time                `json:"submitted_at,omitempty"`
	AnalyzeOnly bool                      `json:"analyze_only,omitempty"`
}

// Result pairs a pipeline outcome with its stored record.
type Result struct {
	Outcome pipeline.Outcome   `json:"outcome"`
	Record  *models.Submission `json:"submission,omitempty"`
}

func (s *Service) request(in Submission) pipeline.Request {
	req := pipeline.Request{
		RepoURL:     in.RepoURL,
		Criteria:    in.Criteria,
		Assignment:  in.Context,
		DueAt:       in.DueAt,
		SubmittedAt: in.SubmittedAt,
		AnalyzeOnly: in.AnalyzeOnly,
	}
	if in.DueAt != nil && in.SubmittedAt != nil {
		policy := s.Policy
		req.Policy = &policy
	}
	return req
}

// Grade runs one submission. The returned error reports persistence
// failures only; pipeline failures are described by the outcome.
func (s *Service) Grade(ctx context.Context, in Submission) (Result, error) {
	req := s.request(in)
	out := s.Pipeline.Run(ctx, req)
	return s.finish(ctx, in, req, out)
}

// GradeAll runs every submission with the configured concurrency. Results
// are in input order. onDone is called as each submission finishes.
func (s *Service) GradeAll(ctx context.Context, ins []Submission, onDone func(i int, r Result)) ([]Result, error) {
	reqs := make([]pipeline.Request, len(ins))
	for i, in := range ins {
		reqs[i] = s.request(in)
	}

	results := make([]Result, len(ins))
	var errs []error
	b := &pipeline.Batch{Pipeline: s.Pipeline, Concurrency: s.Concurrency}
	b.Run(ctx, reqs, func(i int, out pipeline.Outcome) {
		// Batch serializes this callback, so the store sees one writer.
		r, err := s.finish(context.WithoutCancel(ctx), ins[i], reqs[i], out)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ins[i].RepoURL, err))
		}
		results[i] = r
		if onDone != nil {
			onDone(i, r)
		}
	})
	return results, errors.Join(errs...)
}

func (s *Service) finish(ctx context.Context, in Submission, req pipeline.Request, out pipeline.Outcome) (Result, error) {
	if s.Observer != nil {
		s.Observer.Observe(out)
	}
	res := Result{Outcome: out}
	if s.Store == nil || in.AnalyzeOnly {
		return res, nil
	}

	rec, err := out.Record(req, in.Student, in.Assignment, s.Backend)
	if err != nil {
		return res, err
	}
	if err := s.Store.CreateSubmission(ctx, rec); err != nil {
		s.Log.Error().Err(err).Str("repo", in.RepoURL).Msg("failed to record submission")
		return res, err
	}
	res.Record = rec
	return res, nil
}

// CheckResult is the outcome of a reference check.
type CheckResult struct {
	Reference *repo.Reference       `json:"reference,omitempty"`
	Valid     bool                  `json:"valid"`
	Existence *repo.ExistenceResult `json:"existence,omitempty"`
	Failure   *pipeline.Failure     `json:"failure,omitempty"`
}

// Check validates rawURL and asks the remote whether it exists.
func (s *Service) Check(ctx context.Context, rawURL string) CheckResult {
	ref, err := repo.ParseReference(rawURL)
	if err != nil {
		f := pipeline.Failure{
			Kind:    pipeline.KindInvalidReference,
			Message: pipeline.KindInvalidReference.Message(),
			Stage:   pipeline.StateValidatingReference,
			Err:     err,
		}
		return CheckResult{Failure: &f}
	}
	res := CheckResult{Reference: &ref, Valid: true}
	if s.Checker != nil {
		ex := s.Checker.Exists(ctx, ref)
		res.Existence = &ex
	}
	return res
}

// Penalty computes and applies the late penalty for a raw grade.
func (s *Service) Penalty(grade, maxPoints float64, dueAt, submittedAt time.Time) (models.PenaltyInfo, models.AppliedPenalty) {
	info := penalty.Compute(dueAt, submittedAt, s.Policy)
	return info, penalty.Apply(grade, maxPoints, info)
}

// List returns stored submissions.
func (s *Service) List(ctx context.Context, filter store.SubmissionListFilter) ([]*models.Submission, error) {
	if s.Store == nil {
		return nil, errors.New("no result store configured")
	}
	return s.Store.ListSubmissions(ctx, filter)
}

// Get returns one stored submission.
func (s *Service) Get(ctx context.Context, id string) (*models.Submission, error) {
	if s.Store == nil {
		return nil, errors.New("no result store configured")
	}
	return s.Store.GetSubmission(ctx, id)
}
