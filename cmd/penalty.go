package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/autograde/internal/output"
	"github.com/joescharf/autograde/internal/penalty"
)

var (
	penaltyDue       string
	penaltySubmitted string
	penaltyGrade     float64
	penaltyMax       float64
	penaltyPerDay    float64
	penaltyCap       float64
	penaltyGrace     float64
	penaltyJSON      bool
)

var penaltyCmd = &cobra.Command{
	Use:   "penalty",
	Short: "Compute a late penalty",
	Long: `Compute the late penalty for a submission and, with --grade, the
adjusted grade. Rates default to the penalty section of the config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return penaltyRun(cmd)
	},
}

func init() {
	penaltyCmd.Flags().StringVar(&penaltyDue, "due", "", "Due date (RFC3339 or YYYY-MM-DD[ HH:MM])")
	penaltyCmd.Flags().StringVar(&penaltySubmitted, "submitted", "", "Submission time (default: now)")
	penaltyCmd.Flags().Float64Var(&penaltyGrade, "grade", 0, "Grade before the penalty")
	penaltyCmd.Flags().Float64Var(&penaltyMax, "max", 100, "Maximum points")
	penaltyCmd.Flags().Float64Var(&penaltyPerDay, "per-day", 0, "Percent deducted per day late")
	penaltyCmd.Flags().Float64Var(&penaltyCap, "cap", 0, "Maximum percent deducted")
	penaltyCmd.Flags().Float64Var(&penaltyGrace, "grace", 0, "Grace period in hours")
	penaltyCmd.Flags().BoolVar(&penaltyJSON, "json", false, "Output as JSON")
	_ = penaltyCmd.MarkFlagRequired("due")
	rootCmd.AddCommand(penaltyCmd)
}

func penaltyRun(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	policy := cfg.Penalty
	if cmd.Flags().Changed("per-day") {
		policy.PerDayRate = penaltyPerDay
	}
	if cmd.Flags().Changed("cap") {
		policy.CapRate = penaltyCap
	}
	if cmd.Flags().Changed("grace") {
		policy.GraceHours = penaltyGrace
	}
	if policy.PerDayRate < 0 || policy.CapRate < 0 || policy.CapRate > 100 || policy.GraceHours < 0 {
		return errors.New("rates must be between 0 and 100 and grace must not be negative")
	}
	if penaltyMax <= 0 {
		return errors.New("--max must be positive")
	}

	due, submitted, err := lateness(penaltyDue, penaltySubmitted)
	if err != nil {
		return err
	}
	if due == nil {
		return errors.New("--due is required")
	}

	info := penalty.Compute(*due, *submitted, policy)
	applied := penalty.Apply(penaltyGrade, penaltyMax, info)

	if penaltyJSON {
		v := map[string]any{"policy": policy, "penalty": info}
		if cmd.Flags().Changed("grade") {
			v["applied"] = applied
		}
		return output.WriteJSON(ui.Out, v)
	}

	if !info.IsLate {
		ui.Success("On time")
		return nil
	}
	ui.Warning("Late by %.1f hours (%d %s)", info.HoursLate, info.DaysLate, plural(info.DaysLate, "day", "days"))
	fmt.Fprintf(ui.Out, "  Penalty: %s%%\n", output.FormatPoints(info.PenaltyPercentage))
	if cmd.Flags().Changed("grade") {
		fmt.Fprintf(ui.Out, "  Grade:   %s -> %s (-%s)\n",
			output.FormatPoints(applied.OriginalGrade),
			output.GradeColor(applied.AdjustedGrade, penaltyMax),
			output.FormatPoints(applied.PenaltyPoints))
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
