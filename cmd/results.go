package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/autograde/internal/models"
	"github.com/joescharf/autograde/internal/output"
	"github.com/joescharf/autograde/internal/store"
)

var (
	resultsStudent     string
	resultsAssignment  string
	resultsStatus      string
	resultsNeedsReview bool
	resultsLimit       int
	resultsFormat      string
)

var resultsCmd = &cobra.Command{
	Use:     "results [id]",
	Aliases: []string{"ls"},
	Short:   "List or show recorded submissions",
	Long: `List recorded submissions, newest first, or show one in detail.
The list can be exported with --format json, csv or markdown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return resultsShowRun(cmd, args[0])
		}
		return resultsListRun(cmd)
	},
}

var resultsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a recorded submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resultsRmRun(cmd, args[0])
	},
}

func init() {
	resultsCmd.Flags().StringVar(&resultsStudent, "student", "", "Filter by student")
	resultsCmd.Flags().StringVar(&resultsAssignment, "assignment", "", "Filter by assignment")
	resultsCmd.Flags().StringVar(&resultsStatus, "status", "", "Filter by status (graded, analyzed, failed)")
	resultsCmd.Flags().BoolVar(&resultsNeedsReview, "needs-review", false, "Only submissions flagged for human review")
	resultsCmd.Flags().IntVar(&resultsLimit, "limit", 0, "Maximum rows (0 for all)")
	resultsCmd.Flags().StringVarP(&resultsFormat, "format", "f", output.FormatTable, "Output format: "+strings.Join(output.Formats, ", "))
	resultsCmd.AddCommand(resultsRmCmd)
	rootCmd.AddCommand(resultsCmd)
}

func openResults() (store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return getStore(cfg.DBPath)
}

func resultsListRun(cmd *cobra.Command) error {
	if resultsLimit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}
	s, err := openResults()
	if err != nil {
		return err
	}
	defer closeStore()

	subs, err := s.ListSubmissions(cmd.Context(), store.SubmissionListFilter{
		Student:     resultsStudent,
		Assignment:  resultsAssignment,
		Status:      models.SubmissionStatus(resultsStatus),
		NeedsReview: resultsNeedsReview,
		Limit:       resultsLimit,
	})
	if err != nil {
		return err
	}
	if len(subs) == 0 && resultsFormat == output.FormatTable {
		ui.Info("No submissions recorded")
		return nil
	}
	return ui.WriteSubmissions(subs, resultsFormat)
}

func resultsShowRun(cmd *cobra.Command, id string) error {
	s, err := openResults()
	if err != nil {
		return err
	}
	defer closeStore()

	sub, err := s.GetSubmission(cmd.Context(), id)
	if err != nil {
		return err
	}
	if resultsFormat == output.FormatJSON {
		v := map[string]any{"submission": sub}
		if sub.ResultJSON != "" {
			v["result"] = json.RawMessage(sub.ResultJSON)
		}
		return output.WriteJSON(ui.Out, v)
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(sub.ID), output.StatusColor(string(sub.Status)))
	fmt.Fprintf(ui.Out, "  Repo:       %s\n", sub.RepoURL)
	if sub.Student != "" {
		fmt.Fprintf(ui.Out, "  Student:    %s\n", sub.Student)
	}
	if sub.Assignment != "" {
		fmt.Fprintf(ui.Out, "  Assignment: %s\n", sub.Assignment)
	}
	if sub.Backend != "" {
		fmt.Fprintf(ui.Out, "  Backend:    %s\n", sub.Backend)
	}
	if sub.SubmittedAt != nil {
		fmt.Fprintf(ui.Out, "  Submitted:  %s\n", sub.SubmittedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(ui.Out, "  Recorded:   %s\n", sub.CreatedAt.Local().Format("2006-01-02 15:04"))
	if sub.NeedsHumanReview {
		fmt.Fprintf(ui.Out, "  Review:     %s\n", output.Yellow("needs human review"))
	}
	if sub.ErrorKind != "" {
		fmt.Fprintf(ui.Out, "  Error:      %s (%s)\n", sub.Message, output.Red(sub.ErrorKind))
	}

	if sub.ResultJSON == "" {
		return nil
	}
	var r models.GradeResult
	if err := json.Unmarshal([]byte(sub.ResultJSON), &r); err != nil {
		return fmt.Errorf("decode stored grade: %w", err)
	}
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, output.RenderMarkdown(output.GradeMarkdown(&r, storedCriteria(&r)), 0))
	return nil
}

// storedCriteria rebuilds a minimal rubric from stored scores so the report
// can list them. Names are the criterion ids.
func storedCriteria(r *models.GradeResult) models.GradingCriteria {
	ids := make([]string, 0, len(r.CriteriaScores))
	for id := range r.CriteriaScores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var c models.GradingCriteria
	for _, id := range ids {
		c.Items = append(c.Items, models.Criterion{ID: id, Name: id, Points: r.CriteriaScores[id].MaxScore})
	}
	return c
}

func resultsRmRun(cmd *cobra.Command, id string) error {
	if dryRun {
		ui.DryRunMsg("Would delete submission %s", id)
		return nil
	}
	s, err := openResults()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := s.DeleteSubmission(cmd.Context(), id); err != nil {
		return err
	}
	ui.Success("Deleted %s", id)
	return nil
}
