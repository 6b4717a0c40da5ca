package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/autograde/internal/config"
	"github.com/joescharf/autograde/internal/models"
	"github.com/joescharf/autograde/internal/service"
	"github.com/joescharf/autograde/internal/store"
)

// Server exposes the grading service as MCP tools.
type Server struct {
	svc     *service.Service
	rubric  *config.Rubric
	version string
}

// NewServer creates the MCP server wrapper. rubric is used when a tool call
// does not supply one and may be nil.
func NewServer(svc *service.Service, rubric *config.Rubric, version string) *Server {
	return &Server{svc: svc, rubric: rubric, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("autograde", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.gradeSubmissionTool())
	srv.AddTool(s.analyzeRepositoryTool())
	srv.AddTool(s.checkRepositoryTool())
	srv.AddTool(s.computePenaltyTool())
	srv.AddTool(s.listResultsTool())
	srv.AddTool(s.getResultTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// grade_submission
func (s *Server) gradeSubmissionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("grade_submission",
		mcp.WithDescription("Clone a student repository, analyze its Unity project, grade it against a rubric and record the result. Returns the outcome as JSON, including error_kind and a human-readable message on failure."),
		mcp.WithString("repo_url", mcp.Required(), mcp.Description("Repository URL of the form https://host/owner/name")),
		mcp.WithString("rubric", mcp.Description("Rubric document (YAML or JSON). Defaults to the configured rubric.")),
		mcp.WithString("student", mcp.Description("Student identifier stored with the result")),
		mcp.WithString("assignment", mcp.Description("Assignment name stored with the result")),
		mcp.WithString("due_at", mcp.Description("Deadline, RFC3339")),
		mcp.WithString("submitted_at", mcp.Description("Submission time, RFC3339")),
	)
	return tool, s.handleGradeSubmission
}

func (s *Server) handleGradeSubmission(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoURL, err := request.RequireString("repo_url")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: repo_url"), nil
	}

	rubric, err := s.resolveRubric(request.GetString("rubric", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dueAt, err := optionalTime(request.GetString("due_at", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid due_at: %v", err)), nil
	}
	submittedAt, err := optionalTime(request.GetString("submitted_at", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid submitted_at: %v", err)), nil
	}

	in := service.Submission{
		RepoURL:     repoURL,
		Student:     request.GetString("student", ""),
		Assignment:  request.GetString("assignment", ""),
		Criteria:    rubric.Criteria,
		Context:     rubric.Assignment,
		DueAt:       dueAt,
		SubmittedAt: submittedAt,
	}
	if in.Assignment == "" && rubric.Assignment != nil {
		in.Assignment = rubric.Assignment.Name
	}

	res, err := s.svc.Grade(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("graded but failed to record result: %v", err)), nil
	}
	return jsonResult(gradeOut(res, rubric.Warnings))
}

// analyze_repository
func (s *Server) analyzeRepositoryTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("analyze_repository",
		mcp.WithDescription("Clone a student repository and return the static analysis of its Unity project without grading it."),
		mcp.WithString("repo_url", mcp.Required(), mcp.Description("Repository URL of the form https://host/owner/name")),
		mcp.WithBoolean("include_files", mcp.Description("Include per-file analysis entries (default false)")),
	)
	return tool, s.handleAnalyzeRepository
}

func (s *Server) handleAnalyzeRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoURL, err := request.RequireString("repo_url")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: repo_url"), nil
	}

	res, err := s.svc.Grade(ctx, service.Submission{RepoURL: repoURL, AnalyzeOnly: true})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := res.Outcome
	if out.Analysis != nil && !request.GetBool("include_files", false) {
		pa := *out.Analysis
		pa.Files = nil
		out.Analysis = &pa
	}

	result := map[string]any{
		"success":  out.Success,
		"analysis": out.Analysis,
	}
	if out.Analysis != nil {
		result["summary"] = out.Analysis.Summary()
	}
	if out.Failure != nil {
		result["failure"] = out.Failure
	}
	return jsonResult(result)
}

// check_repository
func (s *Server) checkRepositoryTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("check_repository",
		mcp.WithDescription("Validate a repository URL and check whether the remote exists and is publicly readable, without cloning it."),
		mcp.WithString("repo_url", mcp.Required(), mcp.Description("Repository URL to check")),
	)
	return tool, s.handleCheckRepository
}

func (s *Server) handleCheckRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoURL, err := request.RequireString("repo_url")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: repo_url"), nil
	}
	return jsonResult(s.svc.Check(ctx, repoURL))
}

// compute_penalty
func (s *Server) computePenaltyTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("compute_penalty",
		mcp.WithDescription("Compute the late penalty for a grade using the configured policy."),
		mcp.WithNumber("grade", mcp.Required(), mcp.Description("Grade before the penalty")),
		mcp.WithNumber("max_points", mcp.Description("Maximum points of the rubric (default 100)")),
		mcp.WithString("due_at", mcp.Required(), mcp.Description("Deadline, RFC3339")),
		mcp.WithString("submitted_at", mcp.Required(), mcp.Description("Submission time, RFC3339")),
	)
	return tool, s.handleComputePenalty
}

func (s *Server) handleComputePenalty(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	grade, err := request.RequireFloat("grade")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: grade"), nil
	}
	maxPoints := request.GetFloat("max_points", 100)

	due, err := requiredTime(request, "due_at")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	submitted, err := requiredTime(request, "submitted_at")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	info, applied := s.svc.Penalty(grade, maxPoints, due, submitted)
	return jsonResult(map[string]any{
		"penalty": info,
		"applied": applied,
	})
}

// list_results
func (s *Server) listResultsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("list_results",
		mcp.WithDescription("List recorded grading results, newest first."),
		mcp.WithString("student", mcp.Description("Filter by student")),
		mcp.WithString("assignment", mcp.Description("Filter by assignment")),
		mcp.WithString("status", mcp.Description("Filter by status: graded, analyzed, failed")),
		mcp.WithBoolean("needs_review", mcp.Description("Only results routed to manual review")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 50)")),
	)
	return tool, s.handleListResults
}

func (s *Server) handleListResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.SubmissionListFilter{
		Student:     request.GetString("student", ""),
		Assignment:  request.GetString("assignment", ""),
		Status:      models.SubmissionStatus(request.GetString("status", "")),
		NeedsReview: request.GetBool("needs_review", false),
		Limit:       request.GetInt("limit", 50),
	}
	subs, err := s.svc.List(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list results: %v", err)), nil
	}
	if subs == nil {
		subs = []*models.Submission{}
	}
	return jsonResult(subs)
}

// get_result
func (s *Server) getResultTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("get_result",
		mcp.WithDescription("Get one recorded result by ID, including the per-criterion scores and feedback."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Result ID")),
	)
	return tool, s.handleGetResult
}

func (s *Server) handleGetResult(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	sub, err := s.svc.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("result not found: %s", id)), nil
	}

	out := map[string]any{"submission": sub}
	if sub.ResultJSON != "" {
		out["grade"] = json.RawMessage(sub.ResultJSON)
	}
	return jsonResult(out)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *Server) resolveRubric(doc string) (*config.Rubric, error) {
	if strings.TrimSpace(doc) == "" {
		if s.rubric == nil {
			return nil, fmt.Errorf("no rubric supplied and none configured")
		}
		return s.rubric, nil
	}
	asJSON := strings.HasPrefix(strings.TrimSpace(doc), "{")
	r, err := config.ParseRubric([]byte(doc), asJSON)
	if err != nil {
		return nil, fmt.Errorf("invalid rubric: %v", err)
	}
	return r, nil
}

func gradeOut(res service.Result, warnings []string) map[string]any {
	out := res.Outcome
	m := map[string]any{
		"success": out.Success,
		"stage":   out.Stage,
	}
	if out.Grade != nil {
		m["grade"] = out.Grade
		m["final_grade"] = out.Grade.FinalGrade()
	}
	if out.Penalty != nil {
		m["penalty"] = out.Penalty
	}
	if out.Analysis != nil {
		m["summary"] = out.Analysis.Summary()
	}
	if out.Failure != nil {
		m["failure"] = out.Failure
	}
	if res.Record != nil {
		m["id"] = res.Record.ID
	}
	if len(warnings) > 0 {
		m["rubric_warnings"] = warnings
	}
	return m
}

func optionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func requiredTime(request mcp.CallToolRequest, name string) (time.Time, error) {
	raw, err := request.RequireString(name)
	if err != nil {
		return time.Time{}, fmt.Errorf("missing required parameter: %s", name)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %v", name, err)
	}
	return t, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
