package grading

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/joescharf/autograde/internal/analysis"
	"github.com/joescharf/autograde/internal/models"
)

// Display limits for concept evidence. Captured evidence is never truncated.
const (
	maxSnippets   = 10
	maxSnippetLen = 80
	maxTypeNames  = 25
)

// SystemPrompt frames the grading task for every vendor.
const SystemPrompt = `You are an experienced game programming instructor grading a student's Unity project.
You only see a static summary of the C# sources, never the running game.
Score each rubric criterion strictly from the evidence provided and explain every score briefly.
Finish your answer with exactly one fenced json block in the requested format.`

// RenderPrompt renders the grading request for a project. The output is
// deterministic for identical inputs.
func RenderPrompt(pa *analysis.ProjectAnalysis, criteria models.GradingCriteria, assignment *models.AssignmentContext) string {
	var sb strings.Builder

	writeAssignment(&sb, assignment)
	if pa != nil {
		writeFacts(&sb, pa)
		writePatterns(&sb, pa.Patterns)
		writeConcepts(&sb, pa.Concepts)
		writeQuality(&sb, pa.Quality)
	}
	writeRubric(&sb, criteria)
	writeFormat(&sb, criteria)

	return sb.String()
}

func writeAssignment(sb *strings.Builder, a *models.AssignmentContext) {
	if a == nil || (a.Name == "" && a.Description == "" && a.Instructions == "") {
		return
	}
	name := a.Name
	if name == "" {
		name = "Unnamed assignment"
	}
	fmt.Fprintf(sb, "# Assignment: %s\n\n", name)
	if a.Description != "" {
		sb.WriteString(strings.TrimSpace(a.Description))
		sb.WriteString("\n\n")
	}
	if a.Instructions != "" {
		sb.WriteString("## Instructions\n\n")
		sb.WriteString(strings.TrimSpace(a.Instructions))
		sb.WriteString("\n\n")
	}
}

func writeFacts(sb *strings.Builder, pa *analysis.ProjectAnalysis) {
	sb.WriteString("# Project facts\n\n")
	fmt.Fprintf(sb, "- Engine version: %s\n", pa.EngineVersion)
	fmt.Fprintf(sb, "- C# source files: %d", pa.TotalFiles)
	if pa.ErroredFiles > 0 {
		fmt.Fprintf(sb, " (%d could not be read)", pa.ErroredFiles)
	}
	sb.WriteString("\n")
	fmt.Fprintf(sb, "- Lines of code: %d\n", pa.TotalLines)
	fmt.Fprintf(sb, "- Type declarations: %d\n", pa.TotalTypes)
	fmt.Fprintf(sb, "- Method declarations: %d\n", pa.TotalMembers)

	if pa.SceneCount < 0 {
		sb.WriteString("- Scenes: unknown\n")
	} else {
		fmt.Fprintf(sb, "- Scenes: %d\n", pa.SceneCount)
	}

	switch {
	case !pa.ManifestFound:
		sb.WriteString("- Third-party packages: unknown\n")
	case len(pa.ThirdPartyPackages) == 0:
		sb.WriteString("- Third-party packages: none\n")
	default:
		fmt.Fprintf(sb, "- Third-party packages: %s\n", strings.Join(pa.ThirdPartyPackages, ", "))
	}

	s := pa.Structure
	fmt.Fprintf(sb, "- Folders: Scripts %s, Scenes %s, Prefabs %s\n", yesNo(s.HasScriptsDir), yesNo(s.HasScenesDir), yesNo(s.HasPrefabsDir))
	fmt.Fprintf(sb, "- README: %s, .gitignore: %s\n", yesNo(s.HasReadme), yesNo(s.HasGitIgnore))

	if types := pa.Types(); len(types) > 0 {
		sb.WriteString("\n## Declared types\n\n")
		for i, td := range types {
			if i == maxTypeNames {
				fmt.Fprintf(sb, "- ... and %d more\n", len(types)-maxTypeNames)
				break
			}
			fmt.Fprintf(sb, "- %s %s", td.Kind, td.Name)
			if len(td.Inherits) > 0 {
				fmt.Fprintf(sb, " : %s", strings.Join(td.Inherits, ", "))
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")
}

func writePatterns(sb *strings.Builder, p analysis.PatternCounts) {
	sb.WriteString("# Engine API usage (match counts)\n\n")
	fmt.Fprintf(sb, "- MonoBehaviour-derived classes: %d\n", p.MonoBehaviour)
	fmt.Fprintf(sb, "- Vector and Quaternion usage: %d\n", p.VectorUsage)
	fmt.Fprintf(sb, "- Transform access: %d\n", p.TransformAccess)
	fmt.Fprintf(sb, "- Physics usage: %d\n", p.PhysicsUsage)
	fmt.Fprintf(sb, "- Coroutines: %d\n", p.Coroutines)
	fmt.Fprintf(sb, "- Events and delegates: %d\n\n", p.Events)
}

func writeConcepts(sb *strings.Builder, c analysis.ConceptEvidence) {
	sb.WriteString("# Concept evidence\n\n")
	for _, cat := range c.Categories() {
		fmt.Fprintf(sb, "## %s (%d found)\n\n", cat.Name, len(cat.Evidence))
		if len(cat.Evidence) == 0 {
			sb.WriteString("- none\n\n")
			continue
		}
		for i, snippet := range cat.Evidence {
			if i == maxSnippets {
				fmt.Fprintf(sb, "- ... and %d more\n", len(cat.Evidence)-maxSnippets)
				break
			}
			fmt.Fprintf(sb, "- `%s`\n", truncate(snippet, maxSnippetLen))
		}
		sb.WriteString("\n")
	}
}

func writeQuality(sb *strings.Builder, q analysis.CodeQuality) {
	sb.WriteString("# Code quality\n\n")
	fmt.Fprintf(sb, "- Comment lines: %d of %d non-empty lines (%.1f%%)\n", q.CommentLines, q.NonEmptyLines, q.CommentRatio*100)
	fmt.Fprintf(sb, "- Uses #region markers: %s\n", yesNo(q.HasRegions))
	fmt.Fprintf(sb, "- Uses using directives: %s\n", yesNo(q.HasUsings))
	fmt.Fprintf(sb, "- Declares namespaces: %s\n\n", yesNo(q.HasNamespace))
}

func writeRubric(sb *strings.Builder, criteria models.GradingCriteria) {
	fmt.Fprintf(sb, "# Rubric (%s points total)\n\n", formatPoints(criteria.TotalPoints()))
	if len(criteria.Items) == 0 {
		sb.WriteString("No rubric items were provided. Grade the overall quality out of 100 points.\n\n")
		return
	}
	for _, c := range criteria.Items {
		fmt.Fprintf(sb, "## [%s] %s (%s points)\n\n", c.ID, c.Name, formatPoints(c.Points))
		if c.Description != "" {
			sb.WriteString(strings.TrimSpace(c.Description))
			sb.WriteString("\n\n")
		}
		if len(c.Ratings) > 0 {
			sb.WriteString("Rating levels:\n")
			for _, r := range c.Ratings {
				fmt.Fprintf(sb, "- %s (%s points)", r.Name, formatPoints(r.Points))
				if r.Description != "" {
					fmt.Fprintf(sb, ": %s", r.Description)
				}
				sb.WriteString("\n")
			}
			sb.WriteString("\n")
		}
	}
}

func writeFormat(sb *strings.Builder, criteria models.GradingCriteria) {
	sb.WriteString("# Response format\n\n")
	sb.WriteString("Explain your reasoning first if you like, then end the response with one fenced json block of this shape:\n\n")
	sb.WriteString("```json\n{\n")
	fmt.Fprintf(sb, "  \"grade\": <number between 0 and %s>,\n", formatPoints(maxPoints(criteria)))
	fmt.Fprintf(sb, "  \"max_points\": %s,\n", formatPoints(maxPoints(criteria)))
	sb.WriteString("  \"feedback\": \"<overall feedback addressed to the student>\",\n")
	sb.WriteString("  \"criteria_scores\": {\n")
	for i, c := range criteria.Items {
		fmt.Fprintf(sb, "    %q: {\"score\": <number>, \"max_score\": %s, \"rationale\": \"<why>\"}", c.ID, formatPoints(c.Points))
		if i < len(criteria.Items)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("  }\n}\n```\n")
	sb.WriteString("\nUse the criterion ids exactly as given. The grade must equal the sum of the criterion scores.\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatPoints(f float64) string {
	return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
}

// maxPoints is the rubric total, or 100 for an empty rubric.
func maxPoints(criteria models.GradingCriteria) float64 {
	if total := criteria.TotalPoints(); total > 0 {
		return total
	}
	return 100
}
