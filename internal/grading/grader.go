package grading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/joescharf/autograde/internal/analysis"
	"github.com/joescharf/autograde/internal/models"
)

const (
	DefaultTimeout   = 120 * time.Second
	DefaultMaxTokens = 4096
)

// Grader renders, dispatches and parses one grading request.
type Grader struct {
	Backend   Backend
	Timeout   time.Duration
	MaxTokens int

	log zerolog.Logger
}

// NewGrader returns a Grader using b with the default dispatch bound.
func NewGrader(b Backend, log zerolog.Logger) *Grader {
	return &Grader{Backend: b, Timeout: DefaultTimeout, MaxTokens: DefaultMaxTokens, log: log}
}

// Available reports whether the grader has a usable backend.
func (g *Grader) Available() bool {
	return g != nil && g.Backend != nil && g.Backend.Available()
}

// Grade grades a project against criteria. Dispatch failures are returned as
// *DispatchError or ErrUnavailable; undecodable responses are not errors.
func (g *Grader) Grade(ctx context.Context, pa *analysis.ProjectAnalysis, criteria models.GradingCriteria, assignment *models.AssignmentContext) (*models.GradeResult, error) {
	if !g.Available() {
		return nil, ErrUnavailable
	}

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := Request{
		System:    SystemPrompt,
		Prompt:    RenderPrompt(pa, criteria, assignment),
		MaxTokens: g.MaxTokens,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}

	name := g.Backend.Name()
	start := time.Now()
	text, err := g.Backend.Complete(ctx, req)
	if err != nil {
		g.log.Warn().Err(err).Str("backend", name).Dur("elapsed", time.Since(start)).Msg("grading dispatch failed")
		return nil, asDispatchError(name, err)
	}

	result := ParseResult(text, criteria)
	ev := g.log.Debug()
	if result.ParseFailed {
		ev = g.log.Warn()
	}
	ev.Str("backend", name).
		Dur("elapsed", time.Since(start)).
		Bool("parse_failed", result.ParseFailed).
		Float64("grade", result.Grade).
		Msg("grading complete")
	return result, nil
}

// asDispatchError normalizes backend errors so callers can rely on the
// *DispatchError type for every dispatch failure.
func asDispatchError(backend string, err error) error {
	var de *DispatchError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &DispatchError{Backend: backend, Err: fmt.Errorf("no response within deadline: %w", err)}
	}
	return &DispatchError{Backend: backend, Err: err}
}
