package cmd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joescharf/autograde/internal/config"
	"github.com/joescharf/autograde/internal/models"
	"github.com/joescharf/autograde/internal/output"
	"github.com/joescharf/autograde/internal/pipeline"
	"github.com/joescharf/autograde/internal/service"
)

var (
	batchRubric      string
	batchAssignment  string
	batchDue         string
	batchConcurrency int
	batchFormat      string
	batchNoStore     bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <roster.csv>",
	Short: "Grade every submission in a roster",
	Long: `Grade a roster of submissions. The roster is CSV with the columns
student, repo_url and submitted_at. A header row naming the columns is
optional; without one the columns are read in that order. submitted_at may
be empty, in which case no late penalty is applied to that row.

Submissions are graded one at a time unless --concurrency is raised.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return batchRun(cmd, args[0])
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchRubric, "rubric", "r", "", "Rubric file (YAML or JSON)")
	batchCmd.Flags().StringVar(&batchAssignment, "assignment", "", "Assignment name (default: from rubric)")
	batchCmd.Flags().StringVar(&batchDue, "due", "", "Due date (RFC3339 or YYYY-MM-DD[ HH:MM])")
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "c", 0, "Submissions graded in parallel (default: batch.concurrency)")
	batchCmd.Flags().StringVarP(&batchFormat, "format", "f", output.FormatTable, "Output format: "+strings.Join(output.Formats, ", "))
	batchCmd.Flags().BoolVar(&batchNoStore, "no-store", false, "Do not record results")
	_ = batchCmd.MarkFlagRequired("rubric")
	rootCmd.AddCommand(batchCmd)
}

// rosterEntry is one row of a roster file.
type rosterEntry struct {
	Line        int
	Student     string
	RepoURL     string
	SubmittedAt *time.Time
}

var rosterColumns = []string{"student", "repo_url", "submitted_at"}

// readRoster parses a roster CSV. Blank lines are skipped.
func readRoster(r io.Reader) ([]rosterEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var records [][]string
	var lines []int
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read roster: %w", err)
		}
		line, _ := cr.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	if len(records) == 0 {
		return nil, errors.New("roster is empty")
	}

	index := map[string]int{"student": 0, "repo_url": 1, "submitted_at": 2}
	start := 0
	if header := normalizeHeader(records[0]); header["repo_url"] >= 0 {
		index = header
		start = 1
	}

	var entries []rosterEntry
	var errs []error
	for i := start; i < len(records); i++ {
		rec := records[i]
		line := lines[i]
		field := func(name string) string {
			j := index[name]
			if j < 0 || j >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[j])
		}
		if strings.TrimSpace(strings.Join(rec, "")) == "" {
			continue
		}

		e := rosterEntry{Line: line, Student: field("student"), RepoURL: field("repo_url")}
		if e.RepoURL == "" {
			errs = append(errs, fmt.Errorf("line %d: repo_url is empty", line))
			continue
		}
		at, err := parseTime(field("submitted_at"))
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		e.SubmittedAt = at
		entries = append(entries, e)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("roster has no submissions")
	}
	return entries, nil
}

// normalizeHeader maps known column names to their position, -1 if absent.
func normalizeHeader(row []string) map[string]int {
	pos := map[string]int{}
	for _, c := range rosterColumns {
		pos[c] = -1
	}
	for i, cell := range row {
		name := strings.ToLower(strings.TrimSpace(cell))
		name = strings.ReplaceAll(name, " ", "_")
		if _, ok := pos[name]; ok {
			pos[name] = i
		}
	}
	return pos
}

func batchRun(cmd *cobra.Command, rosterPath string) error {
	f, err := os.Open(rosterPath)
	if err != nil {
		return fmt.Errorf("open roster: %w", err)
	}
	entries, err := readRoster(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	rubric, err := config.LoadRubric(batchRubric)
	if err != nil {
		return err
	}
	for _, w := range rubric.Warnings {
		ui.Warning("Rubric: %s", w)
	}
	due, err := parseTime(batchDue)
	if err != nil {
		return fmt.Errorf("--due: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would grade %d submissions against %s", len(entries), batchRubric)
		for _, e := range entries {
			fmt.Fprintf(ui.Out, "  %s  %s\n", e.Student, e.RepoURL)
		}
		return nil
	}

	d, err := buildService(cmd.Context(), !batchNoStore)
	if err != nil {
		return err
	}
	defer closeStore()
	if batchConcurrency > 0 {
		d.svc.Concurrency = batchConcurrency
	}
	if !d.svc.Pipeline.GradingAvailable() {
		ui.Warning("No grading backend available (%s); analysis only", d.cfg.Grading.Provider)
	}

	ins := make([]service.Submission, len(entries))
	for i, e := range entries {
		in := submissionFor(rubric, e.RepoURL, e.Student, batchAssignment)
		in.SubmittedAt = e.SubmittedAt
		if e.SubmittedAt != nil {
			in.DueAt = due
		}
		ins[i] = in
	}

	ui.Info("Grading %d submissions (concurrency %d)", len(ins), max(d.svc.Concurrency, 1))
	started := time.Now()
	done := 0
	results, storeErr := d.svc.GradeAll(cmd.Context(), ins, func(i int, r service.Result) {
		done++
		progress(done, len(ins), ins[i], r)
	})
	ui.Info("Finished %s submissions in %s", humanize.Comma(int64(len(results))), time.Since(started).Round(time.Second))

	rows := batchRows(results, ins, d.svc.Backend)
	if err := ui.WriteSubmissions(rows, batchFormat); err != nil {
		return err
	}
	if storeErr != nil {
		return fmt.Errorf("record results: %w", storeErr)
	}
	return nil
}

func progress(done, total int, in service.Submission, r service.Result) {
	who := in.Student
	if who == "" {
		who = in.RepoURL
	}
	out := r.Outcome
	switch {
	case out.Failure != nil:
		fmt.Fprintf(ui.ErrOut, "[%d/%d] %s %s\n", done, total, who, output.Red(string(out.Failure.Kind)))
	case out.Grade != nil:
		fmt.Fprintf(ui.ErrOut, "[%d/%d] %s %s\n", done, total, who,
			output.GradeColor(out.Grade.FinalGrade(), out.Grade.MaxPoints))
	default:
		fmt.Fprintf(ui.ErrOut, "[%d/%d] %s %s\n", done, total, who, output.Yellow("analyzed"))
	}
}

// batchRows returns one submission row per result, building unsaved rows
// when results were not recorded.
func batchRows(results []service.Result, ins []service.Submission, backend string) []*models.Submission {
	rows := make([]*models.Submission, 0, len(results))
	for i, r := range results {
		if r.Record != nil {
			rows = append(rows, r.Record)
			continue
		}
		in := ins[i]
		req := pipeline.Request{RepoURL: in.RepoURL, Criteria: in.Criteria, SubmittedAt: in.SubmittedAt}
		rec, err := r.Outcome.Record(req, in.Student, in.Assignment, backend)
		if err != nil {
			ui.Warning("%s: %v", in.RepoURL, err)
			continue
		}
		rows = append(rows, rec)
	}
	return rows
}
