package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"wallet-score/internal/domain"
	"wallet-score/internal/service"
)

// ScoreOptions configure a one-off score.
type ScoreOptions struct {
	Request domain.ScoreRequest
	// NoPersist skips the database and the event broker.
	NoPersist bool
}

// Score scores one wallet and prints the response as JSON.
func (a *App) Score(ctx context.Context, opts ScoreOptions) error {
	rt, err := a.newRuntime(ctx, !opts.NoPersist)
	if err != nil {
		return err
	}
	defer rt.Close()

	if timeout := a.Config.Server.RequestTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, scoreErr := rt.scorer.Score(ctx, opts.Request)
	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	return scoreErr
}

// RescoreOptions configure a batch re-score.
type RescoreOptions struct {
	File    string
	Flags   domain.Flags
	DryRun  bool
	Workers int
}

// Rescore scores every "chain:address" line of a file. Blank lines and # comments are skipped.
func (a *App) Rescore(ctx context.Context, opts RescoreOptions) error {
	f, err := os.Open(opts.File)
	if err != nil {
		return fmt.Errorf("open rescore file: %w", err)
	}
	defer f.Close()

	targets, err := readTargets(f)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return errors.New("rescore file lists no wallets")
	}

	if opts.DryRun {
		a.Logger.Warn().Msg("rescore dry-run: nothing is written to the database")
	}
	rt, err := a.newRuntime(ctx, !opts.DryRun)
	if err != nil {
		return err
	}
	defer rt.Close()

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	var processed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, target := range targets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			resp, err := rt.scorer.Score(gctx, domain.ScoreRequest{
				Address: target.Address,
				Chain:   target.Chain,
				Flags:   opts.Flags,
			})
			if err != nil {
				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					return err
				}
				failed.Add(1)
				a.Logger.Error().Err(err).Str("chain", target.Chain).Str("address", target.Address).Msg("rescore failed")
				return nil
			}
			processed.Add(1)
			a.Logger.Info().
				Str("chain", resp.Chain).
				Str("address", resp.ResolvedAddress).
				Float64("score", resp.Score).
				Int("version", resp.Version).
				Msg("rescored")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	a.Logger.Info().Int64("processed", processed.Load()).Int64("failed", failed.Load()).Msg("rescore complete")
	if failed.Load() > 0 {
		return fmt.Errorf("%d of %d wallets failed to rescore, check the logs", failed.Load(), len(targets))
	}
	return nil
}

func readTargets(r io.Reader) ([]service.Target, error) {
	var targets []service.Target
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		t, err := service.ParseTarget(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		targets = append(targets, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read rescore file: %w", err)
	}
	return targets, nil
}
