package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/autograde/internal/config"
	"github.com/joescharf/autograde/internal/logging"
	agmcp "github.com/joescharf/autograde/internal/mcp"
)

var mcpRubric string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio so assistants
can grade and inspect submissions. Configure it in an MCP client with:

  {
    "mcpServers": {
      "autograde": { "command": "autograde", "args": ["mcp", "--rubric", "rubric.yaml"] }
    }
  }

Available tools: grade_submission, analyze_repository, check_repository,
compute_penalty, list_results, get_result`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun(cmd)
	},
}

func init() {
	mcpCmd.Flags().StringVarP(&mcpRubric, "rubric", "r", "", "Default rubric for grade_submission")
	rootCmd.AddCommand(mcpCmd)
}

// loadDefaultRubric loads path, or returns nil when path is empty.
func loadDefaultRubric(path string) (*config.Rubric, error) {
	if path == "" {
		return nil, nil
	}
	r, err := config.LoadRubric(path)
	if err != nil {
		return nil, err
	}
	rlog := logging.Component("rubric")
	for _, w := range r.Warnings {
		rlog.Warn().Str("path", path).Msg(w)
	}
	return r, nil
}

func mcpRun(cmd *cobra.Command) error {
	// stdout carries the protocol; keep logs and notices on stderr.
	logging.Init(debug, true)
	ui.Out = ui.ErrOut

	rubric, err := loadDefaultRubric(mcpRubric)
	if err != nil {
		return err
	}
	d, err := buildService(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer closeStore()

	srv := agmcp.NewServer(d.svc, rubric, buildVersion)
	return srv.ServeStdio(cmd.Context())
}
