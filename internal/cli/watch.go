package cli

import (
	"github.com/spf13/cobra"

	"wallet-score/internal/app"
	"wallet-score/internal/domain"
)

var watchFlags domain.Flags

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Periodically re-score watch.addresses and alert on large score moves",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Watch(cmd.Context(), app.WatchOptions{Flags: watchFlags})
	},
}

func init() {
	addDataFlags(watchCmd.Flags(), &watchFlags)
}
