package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/autograde/internal/config"
	"github.com/joescharf/autograde/internal/models"
	"github.com/joescharf/autograde/internal/output"
	"github.com/joescharf/autograde/internal/service"
)

var (
	gradeRubric     string
	gradeStudent    string
	gradeAssignment string
	gradeDue        string
	gradeSubmitted  string
	gradeJSON       bool
	gradeNoStore    bool
)

var gradeCmd = &cobra.Command{
	Use:   "grade <repo-url>",
	Short: "Check out, analyze and grade one submission",
	Long: `Run the full grading pipeline for one repository: validate the URL,
confirm it exists, clone it, locate the Unity project, analyze it, grade it
against the rubric and apply any late penalty.

When --due is given without --submitted, the submission time is now.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return gradeRun(cmd, args[0])
	},
}

func init() {
	gradeCmd.Flags().StringVarP(&gradeRubric, "rubric", "r", "", "Rubric file (YAML or JSON)")
	gradeCmd.Flags().StringVar(&gradeStudent, "student", "", "Student name or id")
	gradeCmd.Flags().StringVar(&gradeAssignment, "assignment", "", "Assignment name (default: from rubric)")
	gradeCmd.Flags().StringVar(&gradeDue, "due", "", "Due date (RFC3339 or YYYY-MM-DD[ HH:MM])")
	gradeCmd.Flags().StringVar(&gradeSubmitted, "submitted", "", "Submission time (same formats as --due)")
	gradeCmd.Flags().BoolVar(&gradeJSON, "json", false, "Output as JSON")
	gradeCmd.Flags().BoolVar(&gradeNoStore, "no-store", false, "Do not record the result")
	_ = gradeCmd.MarkFlagRequired("rubric")
	rootCmd.AddCommand(gradeCmd)
}

func gradeRun(cmd *cobra.Command, url string) error {
	rubric, err := config.LoadRubric(gradeRubric)
	if err != nil {
		return err
	}
	for _, w := range rubric.Warnings {
		ui.Warning("Rubric: %s", w)
	}

	due, submitted, err := lateness(gradeDue, gradeSubmitted)
	if err != nil {
		return err
	}

	withStore := !gradeNoStore && !dryRun
	d, err := buildService(cmd.Context(), withStore)
	if err != nil {
		return err
	}
	defer closeStore()
	if !d.svc.Pipeline.GradingAvailable() {
		ui.Warning("No grading backend available (%s); analysis only", d.cfg.Grading.Provider)
	}

	in := submissionFor(rubric, url, gradeStudent, gradeAssignment)
	in.DueAt, in.SubmittedAt = due, submitted

	ui.VerboseLog("Grading %s", url)
	res, err := d.svc.Grade(cmd.Context(), in)
	if err != nil {
		ui.Error("Failed to record result: %v", err)
	}

	if gradeJSON {
		if jerr := output.WriteJSON(ui.Out, res); jerr != nil {
			return jerr
		}
		return outcomeError(res)
	}
	return errors.Join(printResult(res, rubric.Criteria), err)
}

// lateness parses the --due/--submitted pair. A due date alone means the
// work is being submitted now.
func lateness(dueFlag, submittedFlag string) (*time.Time, *time.Time, error) {
	due, err := parseTime(dueFlag)
	if err != nil {
		return nil, nil, fmt.Errorf("--due: %w", err)
	}
	submitted, err := parseTime(submittedFlag)
	if err != nil {
		return nil, nil, fmt.Errorf("--submitted: %w", err)
	}
	if due != nil && submitted == nil {
		now := time.Now()
		submitted = &now
	}
	return due, submitted, nil
}

// submissionFor builds a service submission graded against rubric.
func submissionFor(rubric *config.Rubric, url, student, assignment string) service.Submission {
	in := service.Submission{
		RepoURL:    url,
		Student:    student,
		Assignment: assignment,
		Criteria:   rubric.Criteria,
		Context:    rubric.Assignment,
	}
	if in.Assignment == "" && rubric.Assignment != nil {
		in.Assignment = rubric.Assignment.Name
	}
	return in
}

func outcomeError(res service.Result) error {
	if f := res.Outcome.Failure; f != nil {
		return fmt.Errorf("grading failed: %s", f.Kind)
	}
	return nil
}

func printResult(res service.Result, criteria models.GradingCriteria) error {
	out := res.Outcome
	if f := out.Failure; f != nil {
		ui.Error("%s", f.Message)
		fmt.Fprintf(ui.Out, "  Kind:   %s\n", output.Red(string(f.Kind)))
		fmt.Fprintf(ui.Out, "  Stage:  %s\n", f.Stage)
		if f.NeedsHumanReview {
			fmt.Fprintf(ui.Out, "  Review: %s\n", output.Yellow("needs human review"))
		}
		ui.VerboseLog("  Cause: %v", f.Err)
		return outcomeError(res)
	}

	if out.Analysis != nil {
		ui.Info("Analyzed %s", output.Cyan(out.Reference.String()))
		fmt.Fprintf(ui.Out, "  %s\n", out.Analysis.Summary())
	}
	if out.Grade == nil {
		ui.Warning("Not graded")
	} else {
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, output.RenderMarkdown(output.GradeMarkdown(out.Grade, criteria), 0))
	}
	if res.Record != nil {
		ui.Success("Recorded as %s", res.Record.ID)
	}
	return nil
}
