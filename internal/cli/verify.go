package cli

import (
	"github.com/spf13/cobra"

	"risk-sentinel/internal/app"
)

var verifyHash string

var verifyCmd = &cobra.Command{
	Use:   "verify <address>",
	Short: "Verify a recorded report hash against the on-chain registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Verify(cmd.Context(), app.VerifyOptions{
			Address: args[0],
			Hash:    verifyHash,
		})
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyHash, "hash", "", "Report hash to verify (defaults to the local disclosure history)")
}
