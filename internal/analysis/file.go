package analysis

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// AnalyzeSource extracts all per-file facts from source text. Invalid
// UTF-8 sequences are replaced, so legacy-encoded comments do not discard
// the rest of the file.
func AnalyzeSource(rel string, src []byte) FileAnalysis {
	fa := FileAnalysis{Path: rel, Bytes: int64(len(src))}

	if bytes.IndexByte(src, 0) >= 0 {
		return degraded(rel, fmt.Errorf("binary content"))
	}

	text := strings.ToValidUTF8(string(bytes.TrimPrefix(src, utf8BOM)), "\uFFFD")
	fa.Types = extractTypes(text)
	fa.Members = extractMembers(text)
	fa.Patterns = countPatterns(text)
	fa.Concepts = collectConcepts(text)
	fa.Quality = measureQuality(text)
	fa.Lines = fa.Quality.TotalLines
	return fa
}

// degraded records a file that could not be analyzed.
func degraded(rel string, err error) FileAnalysis {
	return FileAnalysis{Path: rel, Error: err.Error()}
}

func extractTypes(text string) []TypeDecl {
	var out []TypeDecl
	for _, m := range typeDeclRe.FindAllStringSubmatch(text, -1) {
		td := TypeDecl{Access: m[1], Kind: m[2], Name: m[3]}
		if m[4] != "" {
			td.Inherits = splitInherits(m[4])
		}
		out = append(out, td)
	}
	return out
}

// splitInherits splits "Base, IFoo<T>, IBar" into names, dropping any
// trailing generic constraint clause.
func splitInherits(clause string) []string {
	if i := strings.Index(clause, " where "); i >= 0 {
		clause = clause[:i]
	}
	var out []string
	depth := 0
	start := 0
	for i, r := range clause {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				if s := strings.TrimSpace(clause[start:i]); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(clause[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func extractMembers(text string) []MemberDecl {
	var out []MemberDecl
	for _, m := range memberDeclRe.FindAllStringSubmatch(text, -1) {
		ret, name := m[2], m[3]
		if memberKeywords[ret] || memberKeywords[name] {
			continue
		}
		out = append(out, MemberDecl{Access: m[1], ReturnType: ret, Name: name})
	}
	return out
}

func countPatterns(text string) PatternCounts {
	count := func(re *regexp.Regexp) int { return len(re.FindAllStringIndex(text, -1)) }
	return PatternCounts{
		MonoBehaviour:   count(patternRes.monoBehaviour),
		VectorUsage:     count(patternRes.vectorUsage),
		TransformAccess: count(patternRes.transformAccess),
		PhysicsUsage:    count(patternRes.physicsUsage),
		Coroutines:      count(patternRes.coroutines),
		Events:          count(patternRes.events),
	}
}

func collectConcepts(text string) ConceptEvidence {
	find := func(re *regexp.Regexp) []string {
		matches := re.FindAllString(text, -1)
		for i := range matches {
			matches[i] = strings.TrimSpace(matches[i])
		}
		return matches
	}
	return ConceptEvidence{
		VectorOperations:   find(conceptRes.vector),
		RotationOperations: find(conceptRes.rotation),
		TransformMutations: find(conceptRes.transform),
		PhysicsForces:      find(conceptRes.physics),
		Trigonometry:       find(conceptRes.trig),
		Interpolation:      find(conceptRes.interp),
	}
}

func measureQuality(text string) CodeQuality {
	q := CodeQuality{
		HasRegions:   regionRe.MatchString(text),
		HasUsings:    usingRe.MatchString(text),
		HasNamespace: namespaceRe.MatchString(text),
	}

	text = strings.TrimSuffix(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if text == "" {
		return q
	}

	inBlock := false
	for _, line := range strings.Split(text, "\n") {
		q.TotalLines++
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		q.NonEmptyLines++

		switch {
		case inBlock:
			q.CommentLines++
			if strings.Contains(trimmed, "*/") {
				inBlock = false
			}
		case strings.HasPrefix(trimmed, "//"):
			q.CommentLines++
		case strings.HasPrefix(trimmed, "/*"):
			q.CommentLines++
			if !strings.Contains(trimmed[2:], "*/") {
				inBlock = true
			}
		}
	}

	if q.NonEmptyLines > 0 {
		q.CommentRatio = float64(q.CommentLines) / float64(q.NonEmptyLines)
	}
	return q
}
