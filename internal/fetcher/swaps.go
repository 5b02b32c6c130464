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
)

const pairsQuery = `
	query Pairs($tokens: [String!]!, $first: Int!, $skip: Int!) {
		asToken0: pairs(first: $first, skip: $skip, orderBy: reserveUSD, orderDirection: desc, where: { token0_in: $tokens }) {
			id
			reserveUSD
			token0 { id symbol }
			token1 { id symbol }
		}
		asToken1: pairs(first: $first, skip: $skip, orderBy: reserveUSD, orderDirection: desc, where: { token1_in: $tokens }) {
			id
			reserveUSD
			token0 { id symbol }
			token1 { id symbol }
		}
	}
`

// SwapPairsOptions bound subgraph queries.
type SwapPairsOptions struct {
	DefaultFirst int
	MaxFirst     int
	Timeout      time.Duration
}

// SwapPairs queries Uniswap-v2 style subgraphs for pairs holding the wallet's tokens.
type SwapPairs struct {
	opts   SwapPairsOptions
	http   *httpDoer
	logger zerolog.Logger
}

// NewSwapPairs constructs the pair client.
func NewSwapPairs(opts SwapPairsOptions, logger zerolog.Logger) *SwapPairs {
	if opts.DefaultFirst <= 0 {
		opts.DefaultFirst = 100
	}
	if opts.MaxFirst <= 0 {
		opts.MaxFirst = 1000
	}
	l := logger.With().Str("component", "swap_pairs").Logger()
	return &SwapPairs{
		opts:   opts,
		http:   newHTTPDoer(httpOptions{Provider: "subgraph", Timeout: opts.Timeout}, l),
		logger: l,
	}
}

type subgraphPair struct {
	ID         string          `json:"id"`
	ReserveUSD decimal.Decimal `json:"reserveUSD"`
	Token0     struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
	} `json:"token0"`
	Token1 struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
	} `json:"token1"`
}

// GetSwapPairs returns pairs sorted by reserve, or nil when the chain has no subgraph
// or no pair matched.
func (s *SwapPairs) GetSwapPairs(ctx context.Context, info chain.Info, tokens []string, page Pagination) ([]domain.SwapPair, error) {
	if info.SwapsSubgraph == "" || len(tokens) == 0 {
		return nil, nil
	}

	first := page.First
	if first <= 0 {
		first = s.opts.DefaultFirst
	}
	if first > s.opts.MaxFirst {
		first = s.opts.MaxFirst
	}
	skip := page.Skip
	if skip < 0 {
		skip = 0
	}

	lowered := make([]string, len(tokens))
	for i, t := range tokens {
		lowered[i] = strings.ToLower(t)
	}

	var data struct {
		AsToken0 []subgraphPair `json:"asToken0"`
		AsToken1 []subgraphPair `json:"asToken1"`
	}
	vars := map[string]any{"tokens": lowered, "first": first, "skip": skip}
	if err := s.http.graphql(ctx, "pairs", info.SwapsSubgraph, pairsQuery, vars, &data); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	pairs := make([]domain.SwapPair, 0, len(data.AsToken0)+len(data.AsToken1))
	for _, p := range append(data.AsToken0, data.AsToken1...) {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		pairs = append(pairs, domain.SwapPair{
			ID:         p.ID,
			Token0:     domain.PairToken{Address: p.Token0.ID, Symbol: p.Token0.Symbol},
			Token1:     domain.PairToken{Address: p.Token1.ID, Symbol: p.Token1.Symbol},
			ReserveUSD: p.ReserveUSD,
		})
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if c := pairs[i].ReserveUSD.Cmp(pairs[j].ReserveUSD); c != 0 {
			return c > 0
		}
		return pairs[i].ID < pairs[j].ID
	})
	return pairs, nil
}
