package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"wallet-score/internal/chain"
	"wallet-score/internal/storage"
)

// HistoryOptions configure the history command. Without a chain and address the
// most recent records across all wallets are shown.
type HistoryOptions struct {
	Chain   string
	Address string
	Limit   int
}

type historyLister interface {
	ListScoringRecords(ctx context.Context, address, chain string, limit int) ([]storage.ScoringRecord, error)
	ListRecentRecords(ctx context.Context, limit int) ([]storage.ScoringRecord, error)
}

// History prints stored scoring records, newest first.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	if (opts.Chain == "") != (opts.Address == "") {
		return errors.New("chain and address must be given together")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	return a.printHistory(ctx, store, opts)
}

func (a *App) printHistory(ctx context.Context, store historyLister, opts HistoryOptions) error {
	var (
		records []storage.ScoringRecord
		err     error
	)
	if opts.Address == "" {
		records, err = store.ListRecentRecords(ctx, opts.Limit)
	} else {
		var adapter chain.Adapter
		var address string
		adapter, address, err = a.resolveWallet(opts.Chain, opts.Address)
		if err != nil {
			return err
		}
		records, err = store.ListScoringRecords(ctx, address, adapter.Info().Name, opts.Limit)
	}
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.Out, "no scoring records found")
		return nil
	}
	return writeHistory(a.Out, records)
}

func writeHistory(out io.Writer, records []storage.ScoringRecord) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tChain\tAddress\tVersion\tType\tScore\tMinted\tBalance USD\tTxs\tAge (days)\tRequest")
	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%s\t%.4f\t%d\t%s\t%d\t%d\t%s\n",
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.Chain,
			rec.Address,
			rec.Version,
			rec.ScoreType,
			rec.Score,
			rec.MintedScore,
			rec.Stats.NativeBalanceUSD.StringFixed(2),
			rec.Stats.TotalTransactions,
			rec.Stats.WalletAge,
			rec.RequestID,
		)
	}
	return writer.Flush()
}

// resolveWallet checks the chain and address without touching the network.
// ENS names are not accepted here since records are keyed by address.
func (a *App) resolveWallet(chainKey, address string) (chain.Adapter, string, error) {
	adapter, err := chain.FromConfig(a.Config, a.Logger).Lookup(chainKey)
	if err != nil {
		return nil, "", err
	}
	checksummed, err := adapter.ValidateAddress(address)
	if err != nil {
		return nil, "", err
	}
	return adapter, checksummed, nil
}
