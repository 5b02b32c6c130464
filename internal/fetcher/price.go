package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wallet-score/internal/domain"
)

const defaultLlamaURL = "https://coins.llama.fi"

// DefiLlamaOptions parameterise the DefiLlama price client.
type DefiLlamaOptions struct {
	BaseURL   string
	Freshness time.Duration
	Timeout   time.Duration
}

// DefiLlama reads current prices from the DefiLlama coins API.
type DefiLlama struct {
	opts    DefiLlamaOptions
	http    *httpDoer
	logger  zerolog.Logger
	baseURL string
	now     func() time.Time
}

// NewDefiLlama constructs a price oracle.
func NewDefiLlama(opts DefiLlamaOptions, logger zerolog.Logger) *DefiLlama {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultLlamaURL
	}
	if opts.Freshness <= 0 {
		opts.Freshness = 4 * time.Hour
	}
	l := logger.With().Str("component", "price_oracle").Logger()
	return &DefiLlama{
		opts:    opts,
		http:    newHTTPDoer(httpOptions{Provider: "defillama", Timeout: opts.Timeout}, l),
		logger:  l,
		baseURL: baseURL,
		now:     time.Now,
	}
}

type llamaResponse struct {
	Coins map[string]struct {
		Price      decimal.Decimal `json:"price"`
		Symbol     string          `json:"symbol"`
		Decimals   int32           `json:"decimals"`
		Timestamp  int64           `json:"timestamp"`
		Confidence float64         `json:"confidence"`
	} `json:"coins"`
}

// GetPrice returns quotes for ids such as "coingecko:ethereum" or "ethereum:0x...".
// Ids without a fresh quote are left out of the result.
func (d *DefiLlama) GetPrice(ctx context.Context, ids []string) (map[string]Quote, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return map[string]Quote{}, nil
	}

	endpoint := fmt.Sprintf("%s/prices/current/%s?searchWidth=%s",
		d.baseURL, strings.Join(ids, ","), searchWidth(d.opts.Freshness))

	var resp llamaResponse
	if err := d.http.getJSON(ctx, "prices", endpoint, &resp); err != nil {
		if errors.Is(err, domain.ErrNoData) {
			return map[string]Quote{}, nil
		}
		return nil, err
	}

	cutoff := d.now().Add(-d.opts.Freshness).Unix()
	out := make(map[string]Quote, len(resp.Coins))
	for id, c := range resp.Coins {
		if c.Timestamp > 0 && c.Timestamp < cutoff {
			d.logger.Debug().Str("id", id).Int64("timestamp", c.Timestamp).Msg("dropping stale price")
			continue
		}
		out[strings.ToLower(id)] = Quote{Price: c.Price, Symbol: c.Symbol, Decimals: c.Decimals, Timestamp: c.Timestamp}
	}
	return out, nil
}

// TokenPriceID is the DefiLlama id of an ERC-20 contract on a chain.
func TokenPriceID(slug, contract string) string {
	return strings.ToLower(slug + ":" + contract)
}

func searchWidth(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return fmt.Sprintf("%dm", int(d/time.Minute))
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
