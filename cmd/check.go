package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/autograde/internal/output"
	"github.com/joescharf/autograde/internal/service"
)

var checkJSON bool

var checkCmd = &cobra.Command{
	Use:   "check <repo-url>",
	Short: "Validate a repository URL and confirm it exists",
	Long: `Check that a submission URL is well formed and that the remote
repository exists and is readable. Nothing is cloned.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildService(cmd.Context(), false)
		if err != nil {
			return err
		}
		res := d.svc.Check(cmd.Context(), args[0])
		return printCheck(res)
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(checkCmd)
}

func printCheck(res service.CheckResult) error {
	if checkJSON {
		return output.WriteJSON(ui.Out, res)
	}
	if res.Failure != nil {
		ui.Error("%s", res.Failure.Message)
		return fmt.Errorf("%s", res.Failure.Kind)
	}

	ui.Info("Repository: %s", output.Cyan(res.Reference.String()))
	if res.Existence == nil {
		ui.Success("URL is valid")
		return nil
	}
	ex := res.Existence
	fmt.Fprintf(ui.Out, "  Status: %s\n", output.StatusColor(string(ex.Status)))
	if ex.Reason != "" {
		fmt.Fprintf(ui.Out, "  Reason: %s\n", ex.Reason)
	}
	if !ex.Exists || !ex.Accessible {
		return fmt.Errorf("repository is not available: %s", ex.Status)
	}
	return nil
}
