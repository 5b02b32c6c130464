package fetcher

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wallet-score/internal/chain"
	"wallet-score/internal/domain"
	"wallet-score/internal/units"
)

// TokenBalancesOptions throttle per-contract balance lookups.
type TokenBalancesOptions struct {
	Delay     time.Duration
	MaxTokens int
}

// TokenBalances looks balances up one contract at a time and values them in USD.
type TokenBalances struct {
	opts    TokenBalancesOptions
	prices  PriceOracle
	limiter Limiter
	logger  zerolog.Logger
}

// NewTokenBalances constructs the aggregator. A nil limiter means no shared throttling.
func NewTokenBalances(opts TokenBalancesOptions, prices PriceOracle, limiter Limiter, logger zerolog.Logger) *TokenBalances {
	if limiter == nil {
		limiter = NopLimiter{}
	}
	return &TokenBalances{
		opts:    opts,
		prices:  prices,
		limiter: limiter,
		logger:  logger.With().Str("component", "token_balances").Logger(),
	}
}

// TokensFromTransfers lists the distinct ERC-20 contracts seen in transfers.
func TokensFromTransfers(events []domain.TokenTransferEvent) []TokenRef {
	seen := make(map[string]struct{})
	out := make([]TokenRef, 0)
	for _, e := range events {
		contract := strings.ToLower(strings.TrimSpace(e.ContractAddress))
		if contract == "" {
			continue
		}
		if _, ok := seen[contract]; ok {
			continue
		}
		seen[contract] = struct{}{}
		out = append(out, TokenRef{Contract: contract, Symbol: e.TokenSymbol, Decimals: e.TokenDecimals})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Contract < out[j].Contract })
	return out
}

// GetTokenBalances returns the non-zero holdings sorted by USD value, or nil when there are none.
// Lookups are sequential with a fixed delay between calls; the first failing lookup aborts.
func (t *TokenBalances) GetTokenBalances(ctx context.Context, adapter chain.Adapter, address string, tokens []TokenRef) ([]domain.TokenBalance, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	if t.opts.MaxTokens > 0 && len(tokens) > t.opts.MaxTokens {
		t.logger.Debug().Int("tokens", len(tokens)).Int("max", t.opts.MaxTokens).Msg("truncating token list")
		tokens = tokens[:t.opts.MaxTokens]
	}

	info := adapter.Info()
	held := make([]domain.TokenBalance, 0)
	for i, tok := range tokens {
		if i > 0 {
			if err := sleep(ctx, t.opts.Delay); err != nil {
				return nil, err
			}
		}
		if err := t.limiter.Wait(ctx, info.Name+":tokenbalance"); err != nil {
			return nil, err
		}

		minor, err := adapter.TokenBalance(ctx, address, tok.Contract)
		if err != nil {
			return nil, err
		}
		if !minor.IsPositive() {
			continue
		}
		held = append(held, domain.TokenBalance{
			Contract: tok.Contract,
			Symbol:   tok.Symbol,
			Decimals: tok.Decimals,
			Amount:   minor,
			Price:    decimal.Zero,
			ValueUSD: decimal.Zero,
		})
	}
	if len(held) == 0 {
		return nil, nil
	}

	ids := make([]string, len(held))
	for i, h := range held {
		ids[i] = TokenPriceID(info.LlamaSlug, h.Contract)
	}
	quotes, err := t.prices.GetPrice(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i := range held {
		h := &held[i]
		q, ok := quotes[ids[i]]
		if ok && h.Decimals == 0 && q.Decimals > 0 {
			h.Decimals = q.Decimals
		}
		if ok && h.Symbol == "" {
			h.Symbol = q.Symbol
		}
		h.Amount = units.ToNative(h.Amount, h.Decimals)
		if ok {
			h.Price = q.Price
			h.ValueUSD = units.USD(h.Amount, q.Price)
		}
	}

	sort.SliceStable(held, func(i, j int) bool {
		if c := held[i].ValueUSD.Cmp(held[j].ValueUSD); c != 0 {
			return c > 0
		}
		return held[i].Contract < held[j].Contract
	})
	return held, nil
}
