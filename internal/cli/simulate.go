package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"wallet-score/internal/app"
)

var (
	simulateStats    string
	simulatePrevious float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "离线计算一份 WalletStats JSON 的评分，可选触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateStats == "" {
			return errors.New("--stats 必须提供")
		}

		opts := app.SimulateOptions{StatsPath: simulateStats}
		if cmd.Flags().Changed("previous") {
			if simulatePrevious < 0 || simulatePrevious > 1 {
				return errors.New("--previous 必须在 0 到 1 之间")
			}
			opts.PreviousScore = &simulatePrevious
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateStats, "stats", "", "WalletStats JSON 文件路径")
	simulateCmd.Flags().Float64Var(&simulatePrevious, "previous", 0, "上一次评分, 设置后发送评分变化告警")
}
