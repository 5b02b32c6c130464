// Package chain adapts per-chain explorers and name services to one scoring engine.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wallet-score/internal/domain"
	"wallet-score/internal/explorer"
	"wallet-score/internal/units"
)

// Info is the static description of a chain.
type Info struct {
	Name           string
	ChainID        uint64
	NativeSymbol   string
	NativeDecimals int32
	PriceID        string
	LlamaSlug      string
	RPCURL         string
	AavePool       string
	SwapsSubgraph  string
	HapiNetwork    string
	Contracts      map[domain.ScoreType]string
	// ListDelay spaces consecutive list fetches against the chain's explorer.
	ListDelay time.Duration
}

// Contract returns the soulbound-token contract for a score type.
func (i Info) Contract(t domain.ScoreType) string {
	return i.Contracts[t]
}

// Adapter is everything the scoring engine needs from a chain.
type Adapter interface {
	Info() Info
	ValidateAddress(address string) (string, error)
	ResolveName(ctx context.Context, name string) (string, error)
	GetBalance(ctx context.Context, address string) (string, error)
	ToNative(minor decimal.Decimal) decimal.Decimal
	Transactions(ctx context.Context, address string) ([]domain.RawTransaction, error)
	InternalTransactions(ctx context.Context, address string) ([]domain.RawTransaction, error)
	ERC20Transfers(ctx context.Context, address string) ([]domain.TokenTransferEvent, error)
	NFTTransfers(ctx context.Context, address string) ([]domain.TokenTransferEvent, error)
	TokenBalance(ctx context.Context, address, contract string) (decimal.Decimal, error)
}

// NameResolver maps a name to an address.
type NameResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// EVMOptions parameterise an EVM adapter.
type EVMOptions struct {
	Info     Info
	Explorer *explorer.Client
	Resolver NameResolver
	ERC1155  bool
}

// EVM is an adapter for Etherscan-compatible EVM chains.
type EVM struct {
	opts   EVMOptions
	logger zerolog.Logger
}

// NewEVM constructs an EVM adapter.
func NewEVM(opts EVMOptions, logger zerolog.Logger) *EVM {
	return &EVM{
		opts:   opts,
		logger: logger.With().Str("component", "chain").Str("chain", opts.Info.Name).Logger(),
	}
}

func (e *EVM) Info() Info { return e.opts.Info }

func (e *EVM) ValidateAddress(address string) (string, error) {
	return ValidateAddress(address)
}

func (e *EVM) ResolveName(ctx context.Context, name string) (string, error) {
	if e.opts.Resolver == nil {
		return "", domain.InvalidAddress(name, fmt.Errorf("name resolution is not supported on %s", e.opts.Info.Name))
	}
	return e.opts.Resolver.Resolve(ctx, name)
}

func (e *EVM) GetBalance(ctx context.Context, address string) (string, error) {
	return e.opts.Explorer.GetBalance(ctx, address)
}

func (e *EVM) ToNative(minor decimal.Decimal) decimal.Decimal {
	return units.ToNative(minor, e.opts.Info.NativeDecimals)
}

func (e *EVM) Transactions(ctx context.Context, address string) ([]domain.RawTransaction, error) {
	items, err := explorer.FetchAll[explorer.NormalTx](ctx, e.opts.Explorer, address, explorer.ActionTxList)
	if err != nil {
		return nil, err
	}
	return explorer.NormalTransactions(items), nil
}

func (e *EVM) InternalTransactions(ctx context.Context, address string) ([]domain.RawTransaction, error) {
	items, err := explorer.FetchAll[explorer.InternalTx](ctx, e.opts.Explorer, address, explorer.ActionTxListInternal)
	if err != nil {
		return nil, err
	}
	return explorer.InternalTransactions(items), nil
}

func (e *EVM) ERC20Transfers(ctx context.Context, address string) ([]domain.TokenTransferEvent, error) {
	items, err := explorer.FetchAll[explorer.TokenTransfer](ctx, e.opts.Explorer, address, explorer.ActionTokenTx)
	if err != nil {
		return nil, err
	}
	return explorer.TransferEvents(items), nil
}

// NFTTransfers merges ERC-721 and, where supported, ERC-1155 transfers.
func (e *EVM) NFTTransfers(ctx context.Context, address string) ([]domain.TokenTransferEvent, error) {
	items, err := explorer.FetchAll[explorer.TokenTransfer](ctx, e.opts.Explorer, address, explorer.ActionTokenNFTTx)
	if err != nil {
		return nil, err
	}
	if e.opts.ERC1155 {
		if err := Pause(ctx, e.opts.Info.ListDelay); err != nil {
			return nil, err
		}
		multi, err := explorer.FetchAll[explorer.TokenTransfer](ctx, e.opts.Explorer, address, explorer.ActionToken1155Tx)
		if err != nil {
			return nil, err
		}
		items = append(items, multi...)
	}

	return explorer.TransferEvents(items), nil
}

func (e *EVM) TokenBalance(ctx context.Context, address, contract string) (decimal.Decimal, error) {
	raw, err := e.opts.Explorer.GetTokenBalance(ctx, address, contract)
	if err != nil {
		return decimal.Zero, err
	}
	return units.ParseMinor(raw), nil
}

// Pause waits for d or until ctx is done.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Adapter = (*EVM)(nil)
