package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/autograde/internal/analysis"
	"github.com/joescharf/autograde/internal/logging"
	"github.com/joescharf/autograde/internal/output"
	"github.com/joescharf/autograde/internal/pipeline"
	"github.com/joescharf/autograde/internal/repo"
	"github.com/joescharf/autograde/internal/service"
)

var (
	analyzeJSON  bool
	analyzeFiles bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <repo-url|path>",
	Short: "Statically analyze a Unity project without grading it",
	Long: `Analyze a Unity project. A repository URL is checked out to a temporary
workspace first; a local directory is analyzed in place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return analyzeRun(cmd, args[0])
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Output as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeFiles, "files", false, "Include per-file results")
	rootCmd.AddCommand(analyzeCmd)
}

func analyzeRun(cmd *cobra.Command, target string) error {
	ctx := cmd.Context()

	if info, err := os.Stat(target); err == nil && info.IsDir() {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return analyzeLocal(cmd, target, cfg.Finder())
	}

	if !repo.ValidateSyntax(target) {
		return fmt.Errorf("%q is neither a directory nor a repository URL", target)
	}

	d, err := buildService(ctx, false)
	if err != nil {
		return err
	}
	ui.VerboseLog("Checking out %s", target)
	res, err := d.svc.Grade(ctx, service.Submission{RepoURL: target, AnalyzeOnly: true})
	if err != nil {
		return err
	}
	out := res.Outcome
	if out.Failure != nil {
		if analyzeJSON {
			return output.WriteJSON(ui.Out, out)
		}
		ui.Error("%s", out.Failure.Message)
		return fmt.Errorf("analysis failed: %s", out.Failure.Kind)
	}
	return printAnalysis(out.Analysis)
}

func analyzeLocal(cmd *cobra.Command, dir string, finder pipeline.Finder) error {
	loc, ok := finder.Locate(dir)
	if !ok {
		return fmt.Errorf("no Unity project (Assets and ProjectSettings) found under %s", dir)
	}
	ui.VerboseLog("Project root: %s", loc.Path)

	pa, err := analysis.New(logging.Component("analysis")).Analyze(cmd.Context(), loc)
	if err != nil {
		return fmt.Errorf("analyze project: %w", err)
	}
	return printAnalysis(pa)
}

func printAnalysis(pa *analysis.ProjectAnalysis) error {
	if !analyzeFiles {
		trimmed := *pa
		trimmed.Files = nil
		pa = &trimmed
	}
	if analyzeJSON {
		return output.WriteJSON(ui.Out, pa)
	}

	ui.Info("Project: %s", output.Cyan(pa.ProjectPath))
	fmt.Fprintf(ui.Out, "  %s\n\n", pa.Summary())

	table := ui.Table([]string{"Pattern", "Count"})
	rows := [][]string{
		{"MonoBehaviour", strconv.Itoa(pa.Patterns.MonoBehaviour)},
		{"Vector usage", strconv.Itoa(pa.Patterns.VectorUsage)},
		{"Transform access", strconv.Itoa(pa.Patterns.TransformAccess)},
		{"Physics", strconv.Itoa(pa.Patterns.PhysicsUsage)},
		{"Coroutines", strconv.Itoa(pa.Patterns.Coroutines)},
		{"Events", strconv.Itoa(pa.Patterns.Events)},
	}
	for _, c := range pa.Concepts.Categories() {
		rows = append(rows, []string{c.Name, strconv.Itoa(len(c.Evidence))})
	}
	for _, row := range rows {
		_ = table.Append(row)
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "  Comment ratio: %.1f%%\n", pa.Quality.CommentRatio*100)
	if len(pa.ThirdPartyPackages) > 0 {
		fmt.Fprintf(ui.Out, "  Packages: %d third-party\n", len(pa.ThirdPartyPackages))
		for _, p := range pa.ThirdPartyPackages {
			ui.VerboseLog("    %s", p)
		}
	}
	for _, f := range pa.Files {
		if f.Error != "" {
			ui.Warning("%s: %s", f.Path, f.Error)
		}
	}
	return nil
}
