package cli

import (
	"github.com/spf13/cobra"

	"risk-sentinel/internal/app"
)

var (
	analyzeJSON   bool
	analyzeScores string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <address>",
	Short: "Score a single address through the scoring interface",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Analyze(cmd.Context(), app.AnalyzeOptions{
			Address:    args[0],
			AsJSON:     analyzeJSON,
			ScoresFile: analyzeScores,
		})
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the raw assessment as JSON")
	analyzeCmd.Flags().StringVar(&analyzeScores, "scores", "", "Aggregate sub-analyzer results from this JSON file instead of calling the scoring backend")
}
