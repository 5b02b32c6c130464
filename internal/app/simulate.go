package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"wallet-score/internal/alerting"
	"wallet-score/internal/domain"
	"wallet-score/internal/scoring"
)

// SimulateOptions configure an offline scoring run.
type SimulateOptions struct {
	StatsPath string
	// PreviousScore, when set, sends a score-change alert as the watch loop would.
	PreviousScore *float64
}

// Simulate scores a WalletStats JSON file without touching any provider.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	raw, err := os.ReadFile(opts.StatsPath)
	if err != nil {
		return fmt.Errorf("read stats file: %w", err)
	}
	var stats domain.WalletStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return fmt.Errorf("decode stats file: %w", err)
	}

	weights, err := scoring.ParseWeights(a.Config.Scoring.Weights)
	if err != nil {
		return err
	}
	model, err := scoring.NewModel(weights)
	if err != nil {
		return err
	}

	score := model.Score(stats)
	minted := scoring.MintedScore(score)

	subs := scoring.SubScores(stats)
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Category\tWeight\tSub-score\tContribution")
	for _, c := range scoring.Categories {
		fmt.Fprintf(writer, "%s\t%.4f\t%.4f\t%.4f\n", c, weights[c], subs[c], weights[c]*subs[c])
	}
	fmt.Fprintf(writer, "score\t\t\t%.4f\n", score)
	fmt.Fprintf(writer, "minted\t\t\t%d\n", minted)
	if err := writer.Flush(); err != nil {
		return err
	}

	if opts.PreviousScore == nil {
		return nil
	}
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}
	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	return notifier.Notify(ctx, alerting.Notification{
		At:            time.Now().UTC(),
		Address:       "simulated",
		Chain:         "simulated",
		ScoreType:     string(domain.ScoreTypeFinance),
		PreviousScore: decimal.NewFromFloat(*opts.PreviousScore),
		Score:         decimal.NewFromFloat(score),
		Threshold:     decimal.NewFromFloat(a.Config.Watch.AlertDelta),
		MintedScore:   minted,
		Channels:      a.Config.Alerting.Channels,
		AdditionalMsg: "simulated from " + opts.StatsPath,
	})
}
