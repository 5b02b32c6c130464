// Package scoring turns wallet statistics into a normalized score.
package scoring

import (
	"fmt"
	"sort"
	"strings"
)

// Category names one sub-score.
type Category string

const (
	CategoryBalance      Category = "balance"
	CategoryAge          Category = "age"
	CategoryTransactions Category = "transactions"
	CategoryStability    Category = "stability"
	CategoryTurnover     Category = "turnover"
	CategoryTokens       Category = "tokens"
	CategoryNFT          Category = "nft"
	CategoryContracts    Category = "contracts"
	CategoryLending      Category = "lending"
	CategoryGovernance   Category = "governance"
	CategorySocial       Category = "social"
)

// Categories lists every known category in a stable order.
var Categories = []Category{
	CategoryBalance,
	CategoryAge,
	CategoryTransactions,
	CategoryStability,
	CategoryTurnover,
	CategoryTokens,
	CategoryNFT,
	CategoryContracts,
	CategoryLending,
	CategoryGovernance,
	CategorySocial,
}

// Weights maps categories to their share of the final score. Normalized weights sum to 1.
type Weights map[Category]float64

var defaultWeights = Weights{
	CategoryBalance:      0.18,
	CategoryAge:          0.18,
	CategoryTransactions: 0.14,
	CategoryStability:    0.10,
	CategoryTurnover:     0.10,
	CategoryTokens:       0.08,
	CategoryNFT:          0.06,
	CategoryContracts:    0.04,
	CategoryLending:      0.04,
	CategoryGovernance:   0.04,
	CategorySocial:       0.04,
}

// DefaultWeights returns a copy of the built-in weights.
func DefaultWeights() Weights {
	out := make(Weights, len(defaultWeights))
	for k, v := range defaultWeights {
		out[k] = v
	}
	return out
}

// ParseWeights builds normalized weights from configuration. Missing categories weigh zero.
// Unknown categories, negative weights and an all-zero set are rejected.
func ParseWeights(raw map[string]float64) (Weights, error) {
	if len(raw) == 0 {
		return DefaultWeights(), nil
	}

	known := make(map[Category]struct{}, len(Categories))
	for _, c := range Categories {
		known[c] = struct{}{}
	}

	w := make(Weights, len(raw))
	var unknown []string
	for k, v := range raw {
		c := Category(strings.ToLower(strings.TrimSpace(k)))
		if _, ok := known[c]; !ok {
			unknown = append(unknown, k)
			continue
		}
		if v < 0 {
			return nil, fmt.Errorf("weight %s must not be negative", k)
		}
		w[c] = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown score categories: %s", strings.Join(unknown, ", "))
	}
	return w.Normalize()
}

// Normalize scales the weights so they sum to 1.
func (w Weights) Normalize() (Weights, error) {
	var total float64
	for _, v := range w {
		total += v
	}
	if total <= 0 {
		return nil, fmt.Errorf("score weights must not all be zero")
	}
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v / total
	}
	return out, nil
}
