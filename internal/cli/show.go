package cli

import (
	"github.com/spf13/cobra"

	"risk-sentinel/internal/app"
)

var (
	showLimit   int
	showAddress string
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show persisted alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowAlerts(cmd.Context(), app.ShowOptions{
			Limit:   showLimit,
			Address: showAddress,
		})
	},
}

var disclosureCmd = &cobra.Command{
	Use:   "disclosure",
	Short: "Show the disclosure history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowDisclosures(cmd.Context(), app.ShowOptions{
			Limit:   showLimit,
			Address: showAddress,
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{alertsCmd, disclosureCmd} {
		cmd.Flags().IntVar(&showLimit, "limit", 20, "Maximum entries to show")
		cmd.Flags().StringVar(&showAddress, "address", "", "Filter by address")
	}
}
