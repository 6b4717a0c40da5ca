package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/autograde/internal/analysis"
	"github.com/joescharf/autograde/internal/config"
	"github.com/joescharf/autograde/internal/models"
	"github.com/joescharf/autograde/internal/penalty"
	"github.com/joescharf/autograde/internal/pipeline"
	"github.com/joescharf/autograde/internal/project"
	"github.com/joescharf/autograde/internal/repo"
	"github.com/joescharf/autograde/internal/service"
	"github.com/joescharf/autograde/internal/store"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeLocator struct{}

func (fakeLocator) Exists(_ context.Context, ref repo.Reference) repo.ExistenceResult {
	if ref.Owner == "private" {
		return repo.ExistenceResult{Exists: true, Status: repo.StatusPrivate, Reason: "authentication required"}
	}
	return repo.ExistenceResult{Exists: true, Accessible: true, Status: repo.StatusExists}
}

type fakeAcquirer struct{ root string }

func (a fakeAcquirer) Acquire(_ context.Context, ref repo.Reference) (*repo.Workspace, error) {
	dir, err := os.MkdirTemp(a.root, ref.Name+"-")
	if err != nil {
		return nil, err
	}
	for _, d := range []string{project.AssetsDir, project.SettingsDir} {
		if err := os.Mkdir(filepath.Join(dir, d), 0o755); err != nil {
			return nil, err
		}
	}
	return &repo.Workspace{Path: dir}, nil
}

func (fakeAcquirer) Release(ws *repo.Workspace) error { return os.RemoveAll(ws.Path) }

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(_ context.Context, loc *project.Location) (*analysis.ProjectAnalysis, error) {
	return &analysis.ProjectAnalysis{
		ProjectPath: loc.Path,
		TotalFiles:  1,
		Files:       []analysis.FileAnalysis{{Path: "Assets/Player.cs"}},
	}, nil
}

type fakeGrader struct{}

func (fakeGrader) Available() bool { return true }

func (fakeGrader) Grade(_ context.Context, _ *analysis.ProjectAnalysis, c models.GradingCriteria, _ *models.AssignmentContext) (*models.GradeResult, error) {
	scores := map[string]models.CriterionScore{}
	for _, item := range c.Items {
		scores[item.ID] = models.CriterionScore{Score: item.Points * 0.8, MaxScore: item.Points}
	}
	return &models.GradeResult{Grade: c.TotalPoints() * 0.8, MaxPoints: c.TotalPoints(), CriteriaScores: scores, Feedback: "Good."}, nil
}

const rubricYAML = `
assignment:
  name: lab3
criteria:
  - id: move
    name: Movement
    points: 50
`

func newTestServer(t *testing.T) (*Server, *store.SQLiteStore) {
	t.Helper()
	p, err := pipeline.New(pipeline.Options{
		Locator:  fakeLocator{},
		Acquirer: fakeAcquirer{root: t.TempDir()},
		Finder:   project.NewFinder(),
		Analyzer: fakeAnalyzer{},
		Grader:   fakeGrader{},
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	svc := &service.Service{
		Pipeline: p,
		Checker:  fakeLocator{},
		Store:    st,
		Backend:  "fake",
		Policy:   penalty.DefaultPolicy(),
		Log:      zerolog.Nop(),
	}
	rubric, err := config.ParseRubric([]byte(rubricYAML), false)
	require.NoError(t, err)

	srv := NewServer(svc, rubric, "test")
	require.NotNil(t, srv)
	return srv, st
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

// ---------------------------------------------------------------------------
// Tests: registration
// ---------------------------------------------------------------------------

func TestNewServer(t *testing.T) {
	srv, _ := newTestServer(t)
	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv, "MCPServer() should return non-nil")
}

// ---------------------------------------------------------------------------
// Tests: grade_submission
// ---------------------------------------------------------------------------

func TestHandleGradeSubmission_DefaultRubric(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	req := callToolReq("grade_submission", map[string]any{
		"repo_url": "https://github.com/ada/game",
		"student":  "ada",
	})
	result, err := srv.handleGradeSubmission(ctx, req)
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var out map[string]any
	resultJSON(t, result, &out)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, 40.0, out["final_grade"])
	require.NotEmpty(t, out["id"])

	sub, err := st.GetSubmission(ctx, out["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "ada", sub.Student)
	assert.Equal(t, "lab3", sub.Assignment)
}

func TestHandleGradeSubmission_InlineRubricAndPenalty(t *testing.T) {
	srv, _ := newTestServer(t)

	req := callToolReq("grade_submission", map[string]any{
		"repo_url":     "https://github.com/ada/game",
		"rubric":       `{"criteria":[{"id":"a","name":"A","points":100}]}`,
		"due_at":       "2026-03-01T00:00:00Z",
		"submitted_at": "2026-03-02T12:00:00Z",
	})
	result, err := srv.handleGradeSubmission(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var out map[string]any
	resultJSON(t, result, &out)
	assert.Equal(t, 60.0, out["final_grade"], "80 minus two days at 10 points")
	assert.NotNil(t, out["penalty"])
}

func TestHandleGradeSubmission_Failure(t *testing.T) {
	srv, _ := newTestServer(t)

	req := callToolReq("grade_submission", map[string]any{"repo_url": "https://github.com/private/game"})
	result, err := srv.handleGradeSubmission(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError, "pipeline failures are reported in the payload")

	var out struct {
		Success bool `json:"success"`
		Failure struct {
			Kind             string `json:"error_kind"`
			NeedsHumanReview bool   `json:"needs_human_review"`
		} `json:"failure"`
	}
	resultJSON(t, result, &out)
	assert.False(t, out.Success)
	assert.Equal(t, "private_or_inaccessible", out.Failure.Kind)
	assert.True(t, out.Failure.NeedsHumanReview)
}

func TestHandleGradeSubmission_BadInput(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing url", map[string]any{}, "repo_url"},
		{"bad rubric", map[string]any{"repo_url": "https://github.com/a/b", "rubric": "criteria: []"}, "invalid rubric"},
		{"bad due", map[string]any{"repo_url": "https://github.com/a/b", "due_at": "yesterday"}, "due_at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := srv.handleGradeSubmission(ctx, callToolReq("grade_submission", tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.want)
		})
	}
}

func TestHandleGradeSubmission_NoRubric(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.rubric = nil

	result, err := srv.handleGradeSubmission(context.Background(),
		callToolReq("grade_submission", map[string]any{"repo_url": "https://github.com/a/b"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "no rubric")
}

// ---------------------------------------------------------------------------
// Tests: analyze_repository / check_repository
// ---------------------------------------------------------------------------

func TestHandleAnalyzeRepository(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleAnalyzeRepository(ctx, callToolReq("analyze_repository", map[string]any{
		"repo_url": "https://github.com/ada/game",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out map[string]any
	resultJSON(t, result, &out)
	assert.Equal(t, true, out["success"])
	assert.NotEmpty(t, out["summary"])
	pa := out["analysis"].(map[string]any)
	assert.Nil(t, pa["files"], "files omitted by default")

	subs, err := st.ListSubmissions(ctx, store.SubmissionListFilter{})
	require.NoError(t, err)
	assert.Empty(t, subs, "analysis is not recorded")
}

func TestHandleAnalyzeRepository_IncludeFiles(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleAnalyzeRepository(context.Background(), callToolReq("analyze_repository", map[string]any{
		"repo_url":      "https://github.com/ada/game",
		"include_files": true,
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Assets/Player.cs")
}

func TestHandleCheckRepository(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleCheckRepository(ctx, callToolReq("check_repository", map[string]any{"repo_url": "https://github.com/ada/game"}))
	require.NoError(t, err)
	var ok service.CheckResult
	resultJSON(t, result, &ok)
	assert.True(t, ok.Valid)
	assert.Equal(t, repo.StatusExists, ok.Existence.Status)

	result, err = srv.handleCheckRepository(ctx, callToolReq("check_repository", map[string]any{"repo_url": "not-a-url"}))
	require.NoError(t, err)
	var bad service.CheckResult
	resultJSON(t, result, &bad)
	assert.False(t, bad.Valid)
	assert.Equal(t, pipeline.KindInvalidReference, bad.Failure.Kind)
}

// ---------------------------------------------------------------------------
// Tests: compute_penalty
// ---------------------------------------------------------------------------

func TestHandleComputePenalty(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleComputePenalty(context.Background(), callToolReq("compute_penalty", map[string]any{
		"grade":        90.0,
		"due_at":       "2026-03-01T00:00:00Z",
		"submitted_at": "2026-03-08T00:00:00Z",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var out struct {
		Penalty models.PenaltyInfo    `json:"penalty"`
		Applied models.AppliedPenalty `json:"applied"`
	}
	resultJSON(t, result, &out)
	assert.Equal(t, 7, out.Penalty.DaysLate)
	assert.Equal(t, 50.0, out.Penalty.PenaltyPercentage, "capped")
	assert.Equal(t, 40.0, out.Applied.AdjustedGrade)
}

func TestHandleComputePenalty_MissingArgs(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleComputePenalty(context.Background(), callToolReq("compute_penalty", map[string]any{"grade": 50.0}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "due_at")
}

// ---------------------------------------------------------------------------
// Tests: list_results / get_result
// ---------------------------------------------------------------------------

func TestHandleListAndGetResults(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	for _, u := range []string{"https://github.com/ada/game", "https://github.com/private/game"} {
		_, err := srv.handleGradeSubmission(ctx, callToolReq("grade_submission", map[string]any{"repo_url": u, "student": "ada"}))
		require.NoError(t, err)
	}

	result, err := srv.handleListResults(ctx, callToolReq("list_results", map[string]any{"needs_review": true}))
	require.NoError(t, err)
	var subs []models.Submission
	resultJSON(t, result, &subs)
	require.Len(t, subs, 1)
	assert.Equal(t, models.SubmissionStatusFailed, subs[0].Status)

	result, err = srv.handleListResults(ctx, callToolReq("list_results", map[string]any{"status": "graded"}))
	require.NoError(t, err)
	resultJSON(t, result, &subs)
	require.Len(t, subs, 1)

	result, err = srv.handleGetResult(ctx, callToolReq("get_result", map[string]any{"id": subs[0].ID}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), `"feedback":"Good."`)

	result, err = srv.handleGetResult(ctx, callToolReq("get_result", map[string]any{"id": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleListResults_Empty(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleListResults(context.Background(), callToolReq("list_results", nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", resultText(t, result))
}
