package analysis

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Summary renders a short human-readable description of the analysis.
func (p *ProjectAnalysis) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s source files (%s, %s lines)",
		humanize.Comma(int64(p.TotalFiles)),
		humanize.Bytes(uint64(p.SourceBytes)),
		humanize.Comma(int64(p.TotalLines)))
	if p.ErroredFiles > 0 {
		fmt.Fprintf(&b, ", %d unreadable", p.ErroredFiles)
	}
	fmt.Fprintf(&b, "; %d types, %d members", p.TotalTypes, p.TotalMembers)
	fmt.Fprintf(&b, "; engine %s", p.EngineVersion)
	switch {
	case p.SceneCount < 0:
		b.WriteString("; scenes unknown")
	default:
		fmt.Fprintf(&b, "; %d %s", p.SceneCount, plural(p.SceneCount, "scene", "scenes"))
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
