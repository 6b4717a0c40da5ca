package grading

import (
	"encoding/json"
	"strings"

	"github.com/joescharf/autograde/internal/models"
)

// DegradedFeedback is attached to results whose backend output could not be decoded.
const DegradedFeedback = "The automatic grader's response could not be read. A default score was assigned; the raw response is attached for manual review."

type wireResult struct {
	Grade          *float64                         `json:"grade"`
	MaxPoints      *float64                         `json:"max_points"`
	Feedback       string                           `json:"feedback"`
	CriteriaScores map[string]models.CriterionScore `json:"criteria_scores"`
}

// DefaultScore is the mid-range grade assigned when a response cannot be parsed.
func DefaultScore(criteria models.GradingCriteria) float64 {
	return maxPoints(criteria) / 2
}

// ParseResult extracts the first json fenced block from text and decodes it.
// It never fails: undecodable output yields a degraded result flagged with
// ParseFailed and carrying the raw text.
func ParseResult(text string, criteria models.GradingCriteria) *models.GradeResult {
	block, ok := extractFencedBlock(text)
	if !ok {
		return degradedResult(text, criteria)
	}

	var w wireResult
	if err := json.Unmarshal([]byte(block), &w); err != nil {
		return degradedResult(text, criteria)
	}
	if w.Grade == nil && len(w.CriteriaScores) == 0 {
		return degradedResult(text, criteria)
	}

	r := &models.GradeResult{
		MaxPoints:      maxPoints(criteria),
		Feedback:       strings.TrimSpace(w.Feedback),
		CriteriaScores: map[string]models.CriterionScore{},
	}
	if w.MaxPoints != nil && *w.MaxPoints > 0 {
		r.MaxPoints = *w.MaxPoints
	}

	var sum float64
	for id, cs := range w.CriteriaScores {
		if cs.MaxScore == 0 {
			if c, found := criteria.Find(id); found {
				cs.MaxScore = c.Points
			}
		}
		r.CriteriaScores[id] = cs
		sum += cs.Score
	}

	if w.Grade != nil {
		r.Grade = *w.Grade
	} else {
		r.Grade = sum
	}
	return r
}

func degradedResult(raw string, criteria models.GradingCriteria) *models.GradeResult {
	return &models.GradeResult{
		Grade:          DefaultScore(criteria),
		MaxPoints:      maxPoints(criteria),
		Feedback:       DegradedFeedback,
		CriteriaScores: map[string]models.CriterionScore{},
		RawResponse:    raw,
		ParseFailed:    true,
	}
}

// extractFencedBlock returns the body of the first fenced block tagged json
// or left untagged. Blocks tagged with another language are skipped.
func extractFencedBlock(text string) (string, bool) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var (
		open    bool
		wanted  bool
		content []string
	)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "```") {
			if open && wanted {
				content = append(content, line)
			}
			continue
		}

		if open {
			if wanted {
				return strings.Join(content, "\n"), true
			}
			open = false
			continue
		}

		rest := strings.TrimPrefix(trimmed, "```")
		if len(rest) > 3 && strings.HasSuffix(rest, "```") {
			if body, ok := inlineBlock(strings.TrimSuffix(rest, "```")); ok {
				return body, true
			}
		}
		lang := strings.ToLower(strings.TrimSpace(rest))
		open = true
		wanted = lang == "" || lang == "json"
		content = content[:0]
	}
	// An unterminated block still counts; truncated JSON fails to decode later.
	if open && wanted && len(content) > 0 {
		return strings.Join(content, "\n"), true
	}
	return "", false
}

// inlineBlock handles a block opened and closed on one line.
func inlineBlock(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = strings.TrimSpace(s[4:])
	}
	return s, strings.HasPrefix(s, "{")
}
