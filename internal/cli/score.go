package cli

import (
	"github.com/spf13/cobra"

	"wallet-score/internal/app"
	"wallet-score/internal/domain"
)

var (
	scoreRequest   domain.ScoreRequest
	scoreType      string
	scoreNoPersist bool
)

var scoreCmd = &cobra.Command{
	Use:   "score <chain> <address|name>",
	Short: "Score one wallet and print the signed result as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := scoreRequest
		req.Chain = args[0]
		req.Address = args[1]
		req.ScoreType = domain.ScoreType(scoreType)

		return getApp().Score(cmd.Context(), app.ScoreOptions{
			Request:   req,
			NoPersist: scoreNoPersist,
		})
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreType, "type", "finance", "Score type: finance or token")
	scoreCmd.Flags().StringVar(&scoreRequest.TokenAddress, "token", "", "Token contract for token-scoped scores")
	scoreCmd.Flags().BoolVar(&scoreNoPersist, "no-persist", false, "Skip the database and event broker")
	addDataFlags(scoreCmd.Flags(), &scoreRequest.Flags)
}
