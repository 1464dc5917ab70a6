package cli

import (
	"github.com/spf13/cobra"

	"risk-sentinel/internal/app"
)

var (
	scanFromBlock uint64
	scanBlocks    int
	scanDecide    bool
	scanWatch     bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a block range for analysis candidates without submitting",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Scan(cmd.Context(), app.ScanOptions{
			FromBlock: scanFromBlock,
			Blocks:    scanBlocks,
			Decide:    scanDecide,
			Watch:     scanWatch,
		})
	},
}

func init() {
	scanCmd.Flags().Uint64Var(&scanFromBlock, "from-block", 0, "Block cursor to scan from (0 starts behind the head)")
	scanCmd.Flags().IntVar(&scanBlocks, "blocks", 0, "Number of blocks to scan (defaults to config)")
	scanCmd.Flags().BoolVar(&scanDecide, "decide", false, "Also run dry-run decisions on discovered targets")
	scanCmd.Flags().BoolVar(&scanWatch, "watch", false, "Stream targets continuously from the chain head")
}
