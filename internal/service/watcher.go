package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wallet-score/internal/alerting"
	"wallet-score/internal/chain"
	"wallet-score/internal/domain"
	"wallet-score/internal/scheduler"
	"wallet-score/internal/storage"
)

// WalletScorer scores one wallet.
type WalletScorer interface {
	Score(ctx context.Context, req domain.ScoreRequest) (domain.ScoreResponse, error)
}

// RecordReader reads persisted scoring history.
type RecordReader interface {
	LatestScoringRecord(ctx context.Context, address, chain string) (storage.ScoringRecord, error)
}

// Target is one watched wallet.
type Target struct {
	Chain   string
	Address string
}

// ParseTarget parses "chain:address".
func ParseTarget(v string) (Target, error) {
	chainName, address, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok || chainName == "" || address == "" {
		return Target{}, fmt.Errorf("watch target %q must look like chain:address", v)
	}
	return Target{Chain: strings.ToLower(chainName), Address: address}, nil
}

// WatcherOptions configure the watch loop.
type WatcherOptions struct {
	Targets    []Target
	Flags      domain.Flags
	AlertDelta float64
	Channels   []string
	LockKey    int64
}

// Watcher periodically re-scores a fixed set of wallets and alerts on large moves.
type Watcher struct {
	opts      WatcherOptions
	scheduler *scheduler.Scheduler
	scorer    WalletScorer
	chains    ChainLookup
	history   RecordReader
	notifier  alerting.Notifier
	locker    storage.AdvisoryLocker
	logger    zerolog.Logger
	threshold decimal.Decimal
}

// NewWatcher constructs the watch loop. chains, history, notifier and locker are optional;
// without chains, history is looked up with the target exactly as configured.
func NewWatcher(opts WatcherOptions, sched *scheduler.Scheduler, scorer WalletScorer, chains ChainLookup, history RecordReader, notifier alerting.Notifier, locker storage.AdvisoryLocker, logger zerolog.Logger) *Watcher {
	return &Watcher{
		opts:      opts,
		scheduler: sched,
		scorer:    scorer,
		chains:    chains,
		history:   history,
		notifier:  notifier,
		locker:    locker,
		logger:    logger.With().Str("component", "watcher").Logger(),
		threshold: decimal.NewFromFloat(opts.AlertDelta),
	}
}

// Run begins the scheduled re-scoring loop.
func (w *Watcher) Run(ctx context.Context) error {
	if w.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return w.scheduler.Run(ctx, w.RunOnce)
}

// RunOnce re-scores every target. One failing wallet does not stop the others.
func (w *Watcher) RunOnce(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := w.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		w.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	var failed int
	for _, target := range w.opts.Targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.rescore(ctx, tick, target); err != nil {
			failed++
			w.logger.Error().Err(err).Str("chain", target.Chain).Str("address", target.Address).Msg("rescore failed")
		}
	}

	w.logger.Info().Time("tick", tick).
		Int("targets", len(w.opts.Targets)).
		Int("failed", failed).
		Msg("watch tick complete")
	if failed > 0 && failed == len(w.opts.Targets) {
		return fmt.Errorf("all %d watched wallets failed", failed)
	}
	return nil
}

func (w *Watcher) rescore(ctx context.Context, tick time.Time, target Target) error {
	previous, hasPrevious, err := w.previous(ctx, target)
	if err != nil {
		w.logger.Warn().Err(err).Str("address", target.Address).Msg("could not load previous score")
	}

	resp, err := w.scorer.Score(ctx, domain.ScoreRequest{
		Address: target.Address,
		Chain:   target.Chain,
		Flags:   w.opts.Flags,
	})
	if err != nil {
		return err
	}
	if !hasPrevious || w.notifier == nil || w.threshold.IsZero() {
		return nil
	}

	prevScore := decimal.NewFromFloat(previous.Score)
	score := decimal.NewFromFloat(resp.Score)
	if score.Sub(prevScore).Abs().LessThan(w.threshold) {
		return nil
	}

	note := alerting.Notification{
		At:            tick,
		Address:       resp.ResolvedAddress,
		Chain:         resp.Chain,
		ScoreType:     string(resp.ScoreType),
		PreviousScore: prevScore,
		Score:         score,
		Threshold:     w.threshold,
		MintedScore:   resp.MintedScore,
		Version:       resp.Version,
		Channels:      w.opts.Channels,
	}
	if err := w.notifier.Notify(ctx, note); err != nil {
		w.logger.Error().Err(err).Str("address", resp.ResolvedAddress).Msg("failed to dispatch alert")
	}
	return nil
}

func (w *Watcher) previous(ctx context.Context, target Target) (storage.ScoringRecord, bool, error) {
	if w.history == nil {
		return storage.ScoringRecord{}, false, nil
	}
	key, err := w.recordKey(ctx, target)
	if err != nil {
		return storage.ScoringRecord{}, false, err
	}
	rec, err := w.history.LatestScoringRecord(ctx, key.Address, key.Chain)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.ScoringRecord{}, false, nil
	}
	if err != nil {
		return storage.ScoringRecord{}, false, err
	}
	return rec, true, nil
}

// recordKey maps a target to the canonical chain name and resolved address that
// scoring records are stored under.
func (w *Watcher) recordKey(ctx context.Context, target Target) (Target, error) {
	if w.chains == nil {
		return target, nil
	}
	adapter, err := w.chains.Lookup(target.Chain)
	if err != nil {
		return Target{}, err
	}
	address := target.Address
	if chain.IsName(address) {
		if address, err = adapter.ResolveName(ctx, address); err != nil {
			return Target{}, err
		}
	}
	if address, err = adapter.ValidateAddress(address); err != nil {
		return Target{}, err
	}
	return Target{Chain: adapter.Info().Name, Address: address}, nil
}

func (w *Watcher) acquireLock(ctx context.Context) (func(), bool, error) {
	if w.opts.LockKey == 0 || w.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := w.locker.TryAdvisoryLock(ctx, w.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
