// Package fetcher holds the auxiliary protocol clients: pricing, token balances,
// DEX pairs, lending, governance, social graph and risk lists.
package fetcher

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"wallet-score/internal/chain"
	"wallet-score/internal/domain"
)

// PriceOracle quotes USD prices keyed by provider token id.
type PriceOracle interface {
	GetPrice(ctx context.Context, ids []string) (map[string]Quote, error)
}

// TokenBalanceFetcher values the ERC-20 holdings of a wallet.
type TokenBalanceFetcher interface {
	GetTokenBalances(ctx context.Context, adapter chain.Adapter, address string, tokens []TokenRef) ([]domain.TokenBalance, error)
}

// SwapPairFetcher lists DEX pairs containing any of the given tokens.
type SwapPairFetcher interface {
	GetSwapPairs(ctx context.Context, info chain.Info, tokens []string, page Pagination) ([]domain.SwapPair, error)
}

// DataFetcher reads one optional per-wallet block. Providers return domain.ErrNoData
// when they have nothing on the wallet.
type DataFetcher[T any] interface {
	GetData(ctx context.Context, address string, info chain.Info) (*T, error)
}

// Quote is one USD price.
type Quote struct {
	Price     decimal.Decimal `json:"price"`
	Symbol    string          `json:"symbol,omitempty"`
	Decimals  int32           `json:"decimals,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// TokenRef identifies an ERC-20 token seen in the wallet's transfers.
type TokenRef struct {
	Contract string
	Symbol   string
	Decimals int32
}

// Pagination bounds a list query.
type Pagination struct {
	First int
	Skip  int
}

// Optional runs a DataFetcher and folds "no data" into a nil block.
func Optional[T any](ctx context.Context, f DataFetcher[T], address string, info chain.Info) (*T, error) {
	if f == nil {
		return nil, nil
	}
	v, err := f.GetData(ctx, address, info)
	if errors.Is(err, domain.ErrNoData) {
		return nil, nil
	}
	return v, err
}

var (
	_ DataFetcher[domain.LendingStats]     = (*Lending)(nil)
	_ DataFetcher[domain.GovernanceStats]  = (*Governance)(nil)
	_ DataFetcher[domain.SocialStats]      = (*Social)(nil)
	_ DataFetcher[domain.GreysafeStats]    = (*Greysafe)(nil)
	_ DataFetcher[domain.ChainalysisStats] = (*Chainalysis)(nil)
	_ DataFetcher[domain.HapiStats]        = (*Hapi)(nil)
	_ PriceOracle                          = (*DefiLlama)(nil)
	_ PriceOracle                          = (*CachedPriceOracle)(nil)
	_ TokenBalanceFetcher                  = (*TokenBalances)(nil)
	_ SwapPairFetcher                      = (*SwapPairs)(nil)
)
