// Package pipeline sequences reference validation, checkout, project
// discovery, analysis, grading and late penalties for one submission.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/joescharf/autograde/internal/analysis"
	"github.com/joescharf/autograde/internal/grading"
	"github.com/joescharf/autograde/internal/models"
	"github.com/joescharf/autograde/internal/penalty"
	"github.com/joescharf/autograde/internal/project"
	"github.com/joescharf/autograde/internal/repo"
)

// State is a stage of a pipeline run.
type State string

const (
	StateValidatingReference State = "validating_reference"
	StateCheckingExistence   State = "checking_existence"
	StateAcquiring           State = "acquiring"
	StateLocatingProject     State = "locating_project"
	StateAnalyzing           State = "analyzing"
	StateGrading             State = "grading"
	StateApplyingPenalty     State = "applying_penalty"
	StateDone                State = "done"
	StateFailed              State = "failed"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// Locator checks that a remote repository exists.
type Locator interface {
	Exists(ctx context.Context, ref repo.Reference) repo.ExistenceResult
}

// Acquirer checks out a repository and deletes the checkout afterwards.
type Acquirer interface {
	Acquire(ctx context.Context, ref repo.Reference) (*repo.Workspace, error)
	Release(ws *repo.Workspace) error
}

// Finder locates the project inside a checkout.
type Finder interface {
	Locate(root string) (*project.Location, bool)
}

// Analyzer produces the static analysis of a project.
type Analyzer interface {
	Analyze(ctx context.Context, loc *project.Location) (*analysis.ProjectAnalysis, error)
}

// Grader grades an analysis against a rubric.
type Grader interface {
	Available() bool
	Grade(ctx context.Context, pa *analysis.ProjectAnalysis, criteria models.GradingCriteria, assignment *models.AssignmentContext) (*models.GradeResult, error)
}

// Request is one submission to process.
type Request struct {
	RepoURL    string
	Criteria   models.GradingCriteria
	Assignment *models.AssignmentContext

	// AnalyzeOnly stops after analysis even when a grader is available.
	AnalyzeOnly bool

	// The penalty is applied only when all three are set.
	DueAt       *time.Time
	SubmittedAt *time.Time
	Policy      *penalty.Policy
}

// Outcome is the terminal result of a run. Exactly one of Success or
// Failure is set. A successful outcome may lack a Grade when grading was
// skipped.
type Outcome struct {
	Success   bool                      `json:"success"`
	Stage     State                     `json:"stage"`
	Reference *repo.Reference           `json:"reference,omitempty"`
	Analysis  *analysis.ProjectAnalysis `json:"analysis,omitempty"`
	Grade     *models.GradeResult       `json:"grade,omitempty"`
	Penalty   *models.PenaltyInfo       `json:"penalty,omitempty"`
	Failure   *Failure                  `json:"failure,omitempty"`
	Duration  time.Duration             `json:"duration"`
}

// Graded reports whether the outcome carries a grade.
func (o Outcome) Graded() bool { return o.Success && o.Grade != nil }

// Options wires a Pipeline. Grader may be nil.
type Options struct {
	Locator  Locator
	Acquirer Acquirer
	Finder   Finder
	Analyzer Analyzer
	Grader   Grader
	Logger   zerolog.Logger

	// OnTransition is called synchronously on every state change. It must be
	// safe for concurrent use when runs execute in parallel.
	OnTransition func(from, to State)
}

// Pipeline runs submissions through every stage. It holds no per-run state
// and may be shared across goroutines.
type Pipeline struct {
	locator      Locator
	acquirer     Acquirer
	finder       Finder
	analyzer     Analyzer
	grader       Grader
	log          zerolog.Logger
	onTransition func(from, to State)
}

// New validates opts and returns a Pipeline.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Locator == nil:
		return nil, errors.New("pipeline: locator is required")
	case opts.Acquirer == nil:
		return nil, errors.New("pipeline: acquirer is required")
	case opts.Finder == nil:
		return nil, errors.New("pipeline: finder is required")
	case opts.Analyzer == nil:
		return nil, errors.New("pipeline: analyzer is required")
	}
	return &Pipeline{
		locator:      opts.Locator,
		acquirer:     opts.Acquirer,
		finder:       opts.Finder,
		analyzer:     opts.Analyzer,
		grader:       opts.Grader,
		log:          opts.Logger,
		onTransition: opts.OnTransition,
	}, nil
}

// GradingAvailable reports whether runs will include the grading stage.
func (p *Pipeline) GradingAvailable() bool {
	return p.grader != nil && p.grader.Available()
}

// run tracks the state of a single invocation.
type run struct {
	p     *Pipeline
	state State
	log   zerolog.Logger
}

func (r *run) enter(next State) {
	prev := r.state
	r.state = next
	r.log.Debug().Str("from", string(prev)).Str("to", string(next)).Msg("pipeline transition")
	if r.p.onTransition != nil {
		r.p.onTransition(prev, next)
	}
}

// fail moves the run to StateFailed and records the stage that failed.
func (r *run) fail(out *Outcome, kind ErrorKind, err error) {
	f := newFailure(kind, r.state, err)
	ev := r.log.Warn()
	if kind == KindUnexpected {
		ev = r.log.Error()
	}
	ev.Err(err).Str("kind", string(kind)).Str("stage", string(r.state)).Msg("pipeline failed")

	r.enter(StateFailed)
	out.Success = false
	out.Stage = StateFailed
	out.Failure = f
}

// Run processes one submission. It never panics and never returns an error:
// every problem is reported through Outcome.Failure. A workspace acquired
// during the run is released exactly once before Run returns.
func (p *Pipeline) Run(ctx context.Context, req Request) (out Outcome) {
	start := time.Now()
	r := &run{p: p, state: StateValidatingReference, log: p.log.With().Str("repo", req.RepoURL).Logger()}

	var ws *repo.Workspace
	defer func() {
		if rec := recover(); rec != nil {
			r.fail(&out, KindUnexpected, fmt.Errorf("panic: %v", rec))
		}
		if ws != nil {
			if err := p.acquirer.Release(ws); err != nil {
				r.log.Warn().Err(err).Msg("workspace cleanup failed")
			}
		}
		out.Duration = time.Since(start)
	}()

	if p.onTransition != nil {
		p.onTransition("", StateValidatingReference)
	}
	ref, err := repo.ParseReference(req.RepoURL)
	if err != nil {
		r.fail(&out, KindInvalidReference, err)
		return out
	}
	out.Reference = &ref

	r.enter(StateCheckingExistence)
	switch res := p.locator.Exists(ctx, ref); res.Status {
	case repo.StatusExists:
	case repo.StatusNotFound:
		r.fail(&out, KindNotFound, errors.New(res.Reason))
		return out
	case repo.StatusPrivate:
		r.fail(&out, KindPrivate, errors.New(res.Reason))
		return out
	default:
		// An inconclusive check is not fatal; the checkout classifies the
		// failure more precisely if the remote is really unreachable.
		r.log.Info().Str("reason", res.Reason).Msg("existence check inconclusive, attempting checkout")
	}

	r.enter(StateAcquiring)
	ws, err = p.acquirer.Acquire(ctx, ref)
	if err != nil {
		ws = nil
		r.fail(&out, acquireKind(err), err)
		return out
	}

	r.enter(StateLocatingProject)
	loc, ok := p.finder.Locate(ws.Path)
	if !ok {
		r.fail(&out, KindInvalidLayout, errors.New("no project directory within search depth"))
		return out
	}

	r.enter(StateAnalyzing)
	pa, err := p.analyzer.Analyze(ctx, loc)
	if err != nil {
		r.fail(&out, KindUnexpected, err)
		return out
	}
	out.Analysis = pa

	if req.AnalyzeOnly || !p.GradingAvailable() {
		if !req.AnalyzeOnly {
			r.log.Info().Msg("grading backend unavailable, returning analysis only")
		}
		r.enter(StateDone)
		out.Success = true
		out.Stage = StateDone
		return out
	}

	r.enter(StateGrading)
	result, err := p.grader.Grade(ctx, pa, req.Criteria, req.Assignment)
	if err != nil {
		kind := KindDispatchFailed
		if errors.Is(err, grading.ErrUnavailable) {
			kind = KindBackendUnavailable
		}
		r.fail(&out, kind, err)
		return out
	}
	out.Grade = result

	if req.DueAt != nil && req.SubmittedAt != nil && req.Policy != nil {
		r.enter(StateApplyingPenalty)
		info := penalty.Compute(*req.DueAt, *req.SubmittedAt, *req.Policy)
		out.Penalty = &info
		if err := penalty.ApplyToResult(result, info); err != nil {
			r.fail(&out, KindUnexpected, err)
			return out
		}
	}

	r.enter(StateDone)
	out.Success = true
	out.Stage = StateDone
	r.log.Info().
		Float64("grade", result.FinalGrade()).
		Float64("max", result.MaxPoints).
		Bool("parse_failed", result.ParseFailed).
		Msg("submission graded")
	return out
}

func acquireKind(err error) ErrorKind {
	var ae *repo.AcquireError
	if !errors.As(err, &ae) {
		return KindAcquisitionFailed
	}
	switch ae.Kind {
	case repo.AcquireNotFound:
		return KindNotFound
	case repo.AcquireAuth:
		return KindPrivate
	default:
		return KindAcquisitionFailed
	}
}
