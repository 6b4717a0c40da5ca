package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/autograde/internal/analysis"
	"github.com/joescharf/autograde/internal/grading"
	"github.com/joescharf/autograde/internal/models"
	"github.com/joescharf/autograde/internal/penalty"
	"github.com/joescharf/autograde/internal/project"
	"github.com/joescharf/autograde/internal/repo"
)

const validURL = "https://github.com/student/roll-a-ball"

type fakeLocator struct {
	result repo.ExistenceResult
	calls  atomic.Int32
}

func (f *fakeLocator) Exists(context.Context, repo.Reference) repo.ExistenceResult {
	f.calls.Add(1)
	return f.result
}

// dirAcquirer creates real directories so cleanup can be verified on disk.
type dirAcquirer struct {
	root     string
	layout   bool
	err      error
	acquired atomic.Int32
	released atomic.Int32

	mu    sync.Mutex
	paths []string
}

func (a *dirAcquirer) Acquire(_ context.Context, ref repo.Reference) (*repo.Workspace, error) {
	if a.err != nil {
		return nil, a.err
	}
	dir, err := os.MkdirTemp(a.root, ref.Name+"_")
	if err != nil {
		return nil, err
	}
	if a.layout {
		for _, d := range []string{project.AssetsDir, project.SettingsDir} {
			if err := os.Mkdir(filepath.Join(dir, d), 0o755); err != nil {
				return nil, err
			}
		}
	}
	a.acquired.Add(1)
	a.mu.Lock()
	a.paths = append(a.paths, dir)
	a.mu.Unlock()
	return &repo.Workspace{Path: dir, RepoName: ref.Name, CreatedAt: time.Now()}, nil
}

func (a *dirAcquirer) Release(ws *repo.Workspace) error {
	a.released.Add(1)
	return os.RemoveAll(ws.Path)
}

type fakeAnalyzer struct {
	err      error
	panicMsg string
	delay    time.Duration

	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeAnalyzer) Analyze(_ context.Context, loc *project.Location) (*analysis.ProjectAnalysis, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &analysis.ProjectAnalysis{ProjectPath: loc.Path, TotalFiles: 3, EngineVersion: analysis.Unknown, SceneCount: -1}, nil
}

type fakeGrader struct {
	available bool
	result    *models.GradeResult
	err       error
	calls     atomic.Int32
}

func (g *fakeGrader) Available() bool { return g.available }

func (g *fakeGrader) Grade(context.Context, *analysis.ProjectAnalysis, models.GradingCriteria, *models.AssignmentContext) (*models.GradeResult, error) {
	g.calls.Add(1)
	if g.err != nil {
		return nil, g.err
	}
	r := *g.result
	return &r, nil
}

type harness struct {
	locator  *fakeLocator
	acquirer *dirAcquirer
	analyzer *fakeAnalyzer
	grader   *fakeGrader

	mu          sync.Mutex
	transitions []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		locator:  &fakeLocator{result: repo.ExistenceResult{Exists: true, Accessible: true, Status: repo.StatusExists}},
		acquirer: &dirAcquirer{root: t.TempDir(), layout: true},
		analyzer: &fakeAnalyzer{},
		grader:   &fakeGrader{available: true, result: &models.GradeResult{Grade: 80, MaxPoints: 100, CriteriaScores: map[string]models.CriterionScore{}}},
	}
}

func (h *harness) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(Options{
		Locator:  h.locator,
		Acquirer: h.acquirer,
		Finder:   project.NewFinder(),
		Analyzer: h.analyzer,
		Grader:   h.grader,
		Logger:   zerolog.Nop(),
		OnTransition: func(from, to State) {
			h.mu.Lock()
			h.transitions = append(h.transitions, string(to))
			h.mu.Unlock()
		},
	})
	require.NoError(t, err)
	return p
}

func (h *harness) assertCleanedUp(t *testing.T) {
	t.Helper()
	assert.Equal(t, h.acquirer.acquired.Load(), h.acquirer.released.Load(), "every workspace released exactly once")
	entries, err := os.ReadDir(h.acquirer.root)
	require.NoError(t, err)
	assert.Empty(t, entries, "no workspace left on disk")
}

func TestNew_RequiresComponents(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorContains(t, err, "locator is required")

	h := newHarness(t)
	_, err = New(Options{Locator: h.locator, Acquirer: h.acquirer, Finder: project.NewFinder()})
	assert.ErrorContains(t, err, "analyzer is required")
}

func TestRun_InvalidReference(t *testing.T) {
	for _, raw := range []string{"", "not a url", "ftp://host/a/b", "https://github.com/only-owner", "https://github.com/a/b/c"} {
		t.Run(raw, func(t *testing.T) {
			h := newHarness(t)
			out := h.pipeline(t).Run(context.Background(), Request{RepoURL: raw})

			require.NotNil(t, out.Failure)
			assert.False(t, out.Success)
			assert.Equal(t, KindInvalidReference, out.Failure.Kind)
			assert.Equal(t, StateValidatingReference, out.Failure.Stage)
			assert.Equal(t, StateFailed, out.Stage)
			assert.False(t, out.Failure.NeedsHumanReview)
			assert.Zero(t, h.locator.calls.Load(), "no network call")
			assert.Zero(t, h.acquirer.acquired.Load(), "no filesystem work")
			assert.Equal(t, []string{"validating_reference", "failed"}, h.transitions)
		})
	}
}

func TestRun_ExistenceFailures(t *testing.T) {
	tests := []struct {
		status repo.Status
		kind   ErrorKind
		review bool
	}{
		{repo.StatusNotFound, KindNotFound, false},
		{repo.StatusPrivate, KindPrivate, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			h := newHarness(t)
			h.locator.result = repo.ExistenceResult{Status: tt.status, Reason: "remote says no"}
			out := h.pipeline(t).Run(context.Background(), Request{RepoURL: validURL})

			require.NotNil(t, out.Failure)
			assert.Equal(t, tt.kind, out.Failure.Kind)
			assert.Equal(t, StateCheckingExistence, out.Failure.Stage)
			assert.Equal(t, tt.review, out.Failure.NeedsHumanReview)
			assert.Zero(t, h.acquirer.acquired.Load())
		})
	}
}

func TestRun_InconclusiveCheckProceeds(t *testing.T) {
	h := newHarness(t)
	h.locator.result = repo.ExistenceResult{Status: repo.StatusCheckFailed, Reason: "proxy hiccup"}
	out := h.pipeline(t).Run(context.Background(), Request{RepoURL: validURL})

	assert.True(t, out.Success)
	assert.Equal(t, int32(1), h.acquirer.acquired.Load())
	h.assertCleanedUp(t)
}

func TestRun_AcquireFailures(t *testing.T) {
	tests := []struct {
		err  error
		kind ErrorKind
	}{
		{&repo.AcquireError{Kind: repo.AcquireNotFound, Err: errors.New("x")}, KindNotFound},
		{&repo.AcquireError{Kind: repo.AcquireAuth, Err: errors.New("x")}, KindPrivate},
		{&repo.AcquireError{Kind: repo.AcquireNetwork, Err: errors.New("x")}, KindAcquisitionFailed},
		{&repo.AcquireError{Kind: repo.AcquireUnknown, Err: errors.New("x")}, KindAcquisitionFailed},
		{errors.New("plain"), KindAcquisitionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := newHarness(t)
			h.acquirer.err = tt.err
			out := h.pipeline(t).Run(context.Background(), Request{RepoURL: validURL})

			require.NotNil(t, out.Failure)
			assert.Equal(t, tt.kind, out.Failure.Kind)
			assert.Equal(t, StateAcquiring, out.Failure.Stage)
			assert.Zero(t, h.acquirer.released.Load(), "nothing to release when checkout failed")
		})
	}
}

func TestRun_InvalidLayout(t *testing.T) {
	h := newHarness(t)
	h.acquirer.layout = false
	out := h.pipeline(t).Run(context.Background(), Request{RepoURL: validURL})

	require.NotNil(t, out.Failure)
	assert.Equal(t, KindInvalidLayout, out.Failure.Kind)
	assert.True(t, out.Failure.NeedsHumanReview)
	assert.NotContains(t, out.Failure.Message, h.acquirer.root, "messages never expose paths")
	h.assertCleanedUp(t)
}

func TestRun_SuccessWithPenalty(t *testing.T) {
	h := newHarness(t)
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	submitted := time.Date(2024, 1, 4, 1, 0, 0, 0, time.UTC)
	policy := penalty.Policy{PerDayRate: 10, CapRate: 25}

	out := h.pipeline(t).Run(context.Background(), Request{
		RepoURL:     validURL + ".git/",
		DueAt:       &due,
		SubmittedAt: &submitted,
		Policy:      &policy,
	})

	require.True(t, out.Success, "failure: %v", out.Failure)
	assert.Nil(t, out.Failure)
	assert.Equal(t, StateDone, out.Stage)
	assert.Equal(t, validURL, out.Reference.URL)
	require.NotNil(t, out.Analysis)
	require.NotNil(t, out.Grade)
	require.NotNil(t, out.Penalty)
	assert.Equal(t, 4, out.Penalty.DaysLate)
	assert.Equal(t, 80.0, out.Grade.Grade, "original grade kept")
	assert.Equal(t, 60.0, out.Grade.FinalGrade())
	assert.True(t, out.Graded())
	assert.Positive(t, out.Duration)

	assert.Equal(t, []string{
		"validating_reference", "checking_existence", "acquiring", "locating_project",
		"analyzing", "grading", "applying_penalty", "done",
	}, h.transitions)
	h.assertCleanedUp(t)
}

func TestRun_PenaltyNeedsAllInputs(t *testing.T) {
	h := newHarness(t)
	due := time.Now().Add(-72 * time.Hour)
	now := time.Now()
	out := h.pipeline(t).Run(context.Background(), Request{RepoURL: validURL, DueAt: &due, SubmittedAt: &now})

	require.True(t, out.Success)
	assert.Nil(t, out.Penalty)
	assert.Nil(t, out.Grade.Penalty)
	assert.NotContains(t, h.transitions, "applying_penalty")
}

func TestRun_GradingSkippedWhenUnavailable(t *testing.T) {
	h := newHarness(t)
	h.grader.available = false
	out := h.pipeline(t).Run(context.Background(), Request{RepoURL: validURL})

	assert.True(t, out.Success)
	assert.NotNil(t, out.Analysis)
	assert.Nil(t, out.Grade)
	assert.False(t, out.Graded())
	assert.Zero(t, h.grader.calls.Load())
	assert.NotContains(t, h.transitions, "grading")
	h.assertCleanedUp(t)
}

func TestRun_AnalyzeOnly(t *testing.T) {
	h := newHarness(t)
	out := h.pipeline(t).Run(context.Background(), Request{RepoURL: validURL, AnalyzeOnly: true})

	assert.True(t, out.Success)
	assert.NotNil(t, out.Analysis)
	assert.Nil(t, out.Grade)
	assert.Zero(t, h.grader.calls.Load())
	assert.Equal(t, "done", h.transitions[len(h.transitions)-1])
	h.assertCleanedUp(t)
}

func TestRun_NilGrader(t *testing.T) {
	h := newHarness(t)
	p, err := New(Options{Locator: h.locator, Acquirer: h.acquirer, Finder: project.NewFinder(), Analyzer: h.analyzer, Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.False(t, p.GradingAvailable())

	out := p.Run(context.Background(), Request{RepoURL: validURL})
	assert.True(t, out.Success)
	assert.Nil(t, out.Grade)
}

func TestRun_GradingFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"dispatch", &grading.DispatchError{Backend: "fake", StatusCode: 500, Err: errors.New("boom")}, KindDispatchFailed},
		{"rejected credentials", &grading.DispatchError{Backend: "fake", StatusCode: 401, Err: fmt.Errorf("%w: bad key", grading.ErrUnavailable)}, KindBackendUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.grader.err = tt.err
			out := h.pipeline(t).Run(context.Background(), Request{RepoURL: validURL})

			require.NotNil(t, out.Failure)
			assert.Equal(t, tt.kind, out.Failure.Kind)
			assert.Equal(t, StateGrading, out.Failure.Stage)
			assert.False(t, out.Failure.NeedsHumanReview)
			assert.ErrorIs(t, out.Failure, tt.err)
			h.assertCleanedUp(t)
		})
	}
}

func TestRun_PanicIsRecovered(t *testing.T) {
	h := newHarness(t)
	h.analyzer.panicMsg = "index out of range"

	var out Outcome
	require.NotPanics(t, func() {
		out = h.pipeline(t).Run(context.Background(), Request{RepoURL: validURL})
	})
	require.NotNil(t, out.Failure)
	assert.Equal(t, KindUnexpected, out.Failure.Kind)
	assert.Equal(t, StateAnalyzing, out.Failure.Stage)
	assert.True(t, out.Failure.NeedsHumanReview)
	assert.Equal(t, KindUnexpected.Message(), out.Failure.Message)
	h.assertCleanedUp(t)
}

func TestRun_AnalyzerError(t *testing.T) {
	h := newHarness(t)
	h.analyzer.err = errors.New("read source root: permission denied")
	out := h.pipeline(t).Run(context.Background(), Request{RepoURL: validURL})

	require.NotNil(t, out.Failure)
	assert.Equal(t, KindUnexpected, out.Failure.Kind)
	h.assertCleanedUp(t)
}

// TestRun_CleanupBalance drives randomized success and failure scenarios and
// checks that acquisitions and releases always pair up.
func TestRun_CleanupBalance(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	h := newHarness(t)
	p := h.pipeline(t)

	statuses := []repo.Status{repo.StatusExists, repo.StatusExists, repo.StatusExists, repo.StatusNotFound, repo.StatusPrivate, repo.StatusCheckFailed}
	terminal := map[bool]int{}

	for i := 0; i < 100; i++ {
		h.locator.result = repo.ExistenceResult{Status: statuses[rng.IntN(len(statuses))]}
		h.acquirer.err = nil
		if rng.IntN(5) == 0 {
			h.acquirer.err = &repo.AcquireError{Kind: repo.AcquireNetwork, Err: errors.New("reset")}
		}
		h.acquirer.layout = rng.IntN(4) != 0
		h.analyzer.err, h.analyzer.panicMsg = nil, ""
		switch rng.IntN(6) {
		case 0:
			h.analyzer.err = errors.New("walk failed")
		case 1:
			h.analyzer.panicMsg = "boom"
		}
		h.grader.available = rng.IntN(3) != 0
		h.grader.err = nil
		if rng.IntN(4) == 0 {
			h.grader.err = &grading.DispatchError{Backend: "fake", Err: errors.New("timeout")}
		}

		out := p.Run(context.Background(), Request{RepoURL: validURL})
		assert.True(t, out.Stage.Terminal())
		assert.Equal(t, out.Success, out.Failure == nil)
		assert.Equal(t, h.acquirer.acquired.Load(), h.acquirer.released.Load(), "scenario %d", i)
		terminal[out.Success]++
	}

	assert.Positive(t, terminal[true], "some scenarios succeed")
	assert.Positive(t, terminal[false], "some scenarios fail")
	assert.Positive(t, h.acquirer.acquired.Load())
	h.assertCleanedUp(t)
}

func TestErrorKinds(t *testing.T) {
	review := map[ErrorKind]bool{KindPrivate: true, KindInvalidLayout: true, KindUnexpected: true}
	seen := map[string]bool{}
	for _, k := range Kinds {
		assert.Equal(t, review[k], k.NeedsHumanReview(), string(k))
		msg := k.Message()
		assert.NotEmpty(t, msg)
		assert.False(t, seen[msg], "messages are distinct")
		seen[msg] = true
	}
	assert.Equal(t, KindUnexpected.Message(), ErrorKind("bogus").Message())

	f := newFailure(KindNotFound, StateAcquiring, errors.New("exit status 128"))
	assert.Equal(t, "not_found at acquiring: exit status 128", f.Error())
}

func TestBatch_PreservesOrder(t *testing.T) {
	h := newHarness(t)
	h.analyzer.delay = 5 * time.Millisecond
	p := h.pipeline(t)

	reqs := []Request{{RepoURL: validURL}, {RepoURL: "bad"}, {RepoURL: validURL + "-2"}, {RepoURL: "ftp://x/y/z"}}
	var done []int
	outs := (&Batch{Pipeline: p, Concurrency: 3}).Run(context.Background(), reqs, func(i int, _ Outcome) {
		done = append(done, i)
	})

	require.Len(t, outs, 4)
	assert.True(t, outs[0].Success)
	assert.Equal(t, KindInvalidReference, outs[1].Failure.Kind)
	assert.True(t, outs[2].Success)
	assert.Equal(t, "roll-a-ball-2", outs[2].Reference.Name)
	assert.Equal(t, KindInvalidReference, outs[3].Failure.Kind)
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, done)
	h.assertCleanedUp(t)
}

func TestBatch_DefaultIsSequential(t *testing.T) {
	h := newHarness(t)
	h.analyzer.delay = 2 * time.Millisecond
	p := h.pipeline(t)

	reqs := make([]Request, 6)
	for i := range reqs {
		reqs[i] = Request{RepoURL: validURL}
	}
	var order []int
	(&Batch{Pipeline: p}).Run(context.Background(), reqs, func(i int, _ Outcome) { order = append(order, i) })

	assert.Equal(t, int32(1), h.analyzer.maxSeen.Load())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, order)
}

func TestBatch_BoundedConcurrency(t *testing.T) {
	h := newHarness(t)
	h.analyzer.delay = 20 * time.Millisecond
	p := h.pipeline(t)

	reqs := make([]Request, 8)
	for i := range reqs {
		reqs[i] = Request{RepoURL: validURL}
	}
	outs := (&Batch{Pipeline: p, Concurrency: 2}).Run(context.Background(), reqs, nil)

	assert.LessOrEqual(t, h.analyzer.maxSeen.Load(), int32(2))
	for _, o := range outs {
		assert.True(t, o.Success)
	}
	h.assertCleanedUp(t)
}

func TestBatch_Cancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outs := (&Batch{Pipeline: h.pipeline(t)}).Run(ctx, []Request{{RepoURL: validURL}}, nil)
	require.NotNil(t, outs[0].Failure)
	assert.ErrorIs(t, outs[0].Failure, context.Canceled)
	assert.Zero(t, h.acquirer.acquired.Load())
}
