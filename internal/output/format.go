package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/joescharf/autograde/internal/models"
)

// Result formats accepted by WriteSubmissions.
const (
	FormatTable    = "table"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
)

// Formats lists every supported result format.
var Formats = []string{FormatTable, FormatJSON, FormatCSV, FormatMarkdown}

var csvHeader = []string{
	"id", "student", "assignment", "repo_url", "status", "grade", "final_grade",
	"max_points", "error_kind", "needs_human_review", "submitted_at", "created_at",
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSubmissions renders subs to the UI in the given format.
func (u *UI) WriteSubmissions(subs []*models.Submission, format string) error {
	switch format {
	case FormatJSON:
		if subs == nil {
			subs = []*models.Submission{}
		}
		return WriteJSON(u.Out, subs)
	case FormatCSV:
		return WriteSubmissionsCSV(u.Out, subs)
	case FormatMarkdown:
		_, err := io.WriteString(u.Out, SubmissionsMarkdown(subs))
		return err
	case FormatTable, "":
		return u.submissionsTable(subs)
	default:
		return fmt.Errorf("unknown format %q (expected one of %s)", format, strings.Join(Formats, ", "))
	}
}

func (u *UI) submissionsTable(subs []*models.Submission) error {
	table := u.Table([]string{"ID", "Student", "Assignment", "Status", "Grade", "Review", "Created"})
	for _, s := range subs {
		review := ""
		if s.NeedsHumanReview {
			review = Yellow("yes")
		}
		if err := table.Append([]string{
			s.ID,
			s.Student,
			s.Assignment,
			StatusColor(string(s.Status)),
			gradeCell(s),
			review,
			s.CreatedAt.Local().Format(time.DateTime),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func gradeCell(s *models.Submission) string {
	if s.FinalGrade == nil {
		if s.ErrorKind != "" {
			return s.ErrorKind
		}
		return "-"
	}
	return GradeColor(*s.FinalGrade, s.MaxPoints)
}

// WriteSubmissionsCSV writes one row per submission with a header.
func WriteSubmissionsCSV(w io.Writer, subs []*models.Submission) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range subs {
		if err := cw.Write([]string{
			s.ID,
			s.Student,
			s.Assignment,
			s.RepoURL,
			string(s.Status),
			optionalPoints(s.Grade),
			optionalPoints(s.FinalGrade),
			FormatPoints(s.MaxPoints),
			s.ErrorKind,
			fmt.Sprintf("%t", s.NeedsHumanReview),
			optionalTime(s.SubmittedAt),
			s.CreatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SubmissionsMarkdown renders subs as a GitHub-flavored markdown table.
func SubmissionsMarkdown(subs []*models.Submission) string {
	var b strings.Builder
	b.WriteString("| Student | Assignment | Status | Grade | Needs review | Repository |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, s := range subs {
		grade := optionalPoints(s.FinalGrade)
		if grade != "" {
			grade += "/" + FormatPoints(s.MaxPoints)
		} else if s.ErrorKind != "" {
			grade = s.ErrorKind
		}
		review := ""
		if s.NeedsHumanReview {
			review = "yes"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			mdEscape(s.Student), mdEscape(s.Assignment), s.Status, grade, review, mdEscape(s.RepoURL))
	}
	return b.String()
}

// GradeMarkdown renders one grade as a markdown report.
func GradeMarkdown(r *models.GradeResult, criteria models.GradingCriteria) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Grade: %s / %s\n\n", FormatPoints(r.FinalGrade()), FormatPoints(r.MaxPoints))
	if p := r.Penalty; p != nil {
		fmt.Fprintf(&b, "Late penalty: %s%% (%d days late), %s points deducted from %s.\n\n",
			FormatPoints(p.PenaltyPercentage), p.DaysLate, FormatPoints(p.PenaltyPoints), FormatPoints(p.OriginalGrade))
	}
	if r.ParseFailed {
		b.WriteString("> The grading response could not be decoded. This grade needs manual review.\n\n")
	}

	if len(criteria.Items) > 0 {
		b.WriteString("## Criteria\n\n| Criterion | Score | Rationale |\n|---|---|---|\n")
		for _, c := range criteria.Items {
			cs, ok := r.CriteriaScores[c.ID]
			score := "-"
			if ok {
				score = FormatPoints(cs.Score) + "/" + FormatPoints(c.Points)
			}
			fmt.Fprintf(&b, "| %s | %s | %s |\n", mdEscape(c.Name), score, mdEscape(cs.Rationale))
		}
		b.WriteString("\n")
	}

	if r.Feedback != "" {
		b.WriteString("## Feedback\n\n")
		b.WriteString(r.Feedback)
		b.WriteString("\n")
	}
	return b.String()
}

// RenderMarkdown renders md for a terminal of the given width. The input is
// returned unchanged if rendering fails.
func RenderMarkdown(md string, width int) string {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

func optionalPoints(f *float64) string {
	if f == nil {
		return ""
	}
	return FormatPoints(*f)
}

func optionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
