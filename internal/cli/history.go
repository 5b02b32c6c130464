package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"wallet-score/internal/app"
)

var (
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history [<chain> <address>]",
	Short: "Display stored scoring records of a wallet, or the latest records of all wallets",
	Args:  historyArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.HistoryOptions{Limit: historyLimit}
		if len(args) == 2 {
			opts.Chain = args[0]
			opts.Address = args[1]
		}

		return getApp().History(cmd.Context(), opts)
	},
}

func historyArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 0 && len(args) != 2 {
		return fmt.Errorf("accepts either no args or <chain> <address>, received %d", len(args))
	}
	return nil
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of records to display")
}
