package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"wallet-score/internal/app"
)

var rescoreOpts app.RescoreOptions

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Re-score every chain:address listed in a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if rescoreOpts.File == "" {
			return fmt.Errorf("--file must be provided")
		}
		if rescoreOpts.Workers <= 0 {
			return fmt.Errorf("--workers must be greater than zero")
		}
		return getApp().Rescore(cmd.Context(), rescoreOpts)
	},
}

func init() {
	rescoreCmd.Flags().StringVar(&rescoreOpts.File, "file", "", "File with one chain:address per line")
	rescoreCmd.Flags().BoolVar(&rescoreOpts.DryRun, "dry-run", false, "Run without writing to storage")
	rescoreCmd.Flags().IntVar(&rescoreOpts.Workers, "workers", 2, "Number of concurrent workers")
	addDataFlags(rescoreCmd.Flags(), &rescoreOpts.Flags)
}
