// Package analysis extracts lexical facts from the C# sources of a Unity project.
package analysis

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/joescharf/autograde/internal/project"
)

// Analyzer walks a project's source tree and aggregates per-file analyses.
type Analyzer struct {
	Extension string // e.g. ".cs"
	SourceDir string // relative to the project root

	readFile func(string) ([]byte, error)
	log      zerolog.Logger
}

// New returns an Analyzer for C# scripts under Assets.
func New(log zerolog.Logger) *Analyzer {
	return &Analyzer{
		Extension: ".cs",
		SourceDir: project.AssetsDir,
		readFile:  os.ReadFile,
		log:       log,
	}
}

// AnalyzeFile reads and analyzes a single file. Read failures produce a
// degraded entry instead of an error.
func (a *Analyzer) AnalyzeFile(path, rel string) FileAnalysis {
	src, err := a.readFile(path)
	if err != nil {
		a.log.Warn().Err(err).Str("file", rel).Msg("source file unreadable")
		return degraded(rel, fmt.Errorf("read file: %w", err))
	}
	fa := AnalyzeSource(rel, src)
	if fa.Error != "" {
		a.log.Warn().Str("file", rel).Str("error", fa.Error).Msg("source file skipped")
	}
	return fa
}

// Analyze produces the ProjectAnalysis for loc. Only an unreadable source
// root is an error; individual file failures are recorded and counted.
func (a *Analyzer) Analyze(ctx context.Context, loc *project.Location) (*ProjectAnalysis, error) {
	if loc == nil {
		return nil, fmt.Errorf("analyze: no project location")
	}

	files, err := a.sourceFiles(loc.Path)
	if err != nil {
		return nil, err
	}

	var analyses []FileAnalysis
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("analyze: %w", err)
		}
		rel, _ := filepath.Rel(loc.Path, f)
		analyses = append(analyses, a.AnalyzeFile(f, filepath.ToSlash(rel)))
	}

	pa := Aggregate(loc.Path, analyses)
	a.readFacts(pa, loc.Path)

	a.log.Debug().
		Str("project", loc.Path).
		Int("files", pa.TotalFiles).
		Int("errored", pa.ErroredFiles).
		Int("patterns", pa.Patterns.Total()).
		Msg("analysis complete")
	return pa, nil
}

// sourceFiles lists matching files under the source dir in lexical order.
func (a *Analyzer) sourceFiles(root string) ([]string, error) {
	srcRoot := filepath.Join(root, a.SourceDir)
	if _, err := os.Stat(srcRoot); err != nil {
		return nil, fmt.Errorf("read source root: %w", err)
	}

	var files []string
	err := filepath.WalkDir(srcRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == srcRoot {
				return err
			}
			a.log.Warn().Err(err).Str("path", p).Msg("skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != srcRoot && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(p), a.Extension) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk source root: %w", err)
	}
	return files, nil
}

// Aggregate sums pattern counts and concatenates evidence across files.
// Errored files count toward TotalFiles and contribute nothing else.
func Aggregate(projectPath string, files []FileAnalysis) *ProjectAnalysis {
	pa := &ProjectAnalysis{
		ProjectPath:   projectPath,
		EngineVersion: Unknown,
		SceneCount:    -1,
		Files:         files,
	}

	for _, f := range files {
		pa.TotalFiles++
		if f.Error != "" {
			pa.ErroredFiles++
			continue
		}
		pa.TotalLines += f.Lines
		pa.SourceBytes += f.Bytes
		pa.TotalTypes += len(f.Types)
		pa.TotalMembers += len(f.Members)
		pa.Patterns.Add(f.Patterns)
		pa.Concepts.Append(f.Concepts)

		pa.Quality.TotalLines += f.Quality.TotalLines
		pa.Quality.NonEmptyLines += f.Quality.NonEmptyLines
		pa.Quality.CommentLines += f.Quality.CommentLines
		pa.Quality.HasRegions = pa.Quality.HasRegions || f.Quality.HasRegions
		pa.Quality.HasUsings = pa.Quality.HasUsings || f.Quality.HasUsings
		pa.Quality.HasNamespace = pa.Quality.HasNamespace || f.Quality.HasNamespace
	}
	if pa.Quality.NonEmptyLines > 0 {
		pa.Quality.CommentRatio = float64(pa.Quality.CommentLines) / float64(pa.Quality.NonEmptyLines)
	}
	return pa
}
