package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wallet-score/internal/chain"
	"wallet-score/internal/domain"
)

// RiskOptions configure one risk-list provider.
type RiskOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Greysafe lists scam reports filed against a wallet.
type Greysafe struct {
	baseURL string
	http    *httpDoer
}

// NewGreysafe constructs the Greysafe client.
func NewGreysafe(opts RiskOptions, logger zerolog.Logger) *Greysafe {
	l := logger.With().Str("component", "risk").Str("provider", "greysafe").Logger()
	return &Greysafe{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http: newHTTPDoer(httpOptions{
			Provider: "greysafe",
			Timeout:  opts.Timeout,
			Headers:  map[string]string{"Authorization": bearer(opts.APIKey)},
		}, l),
	}
}

// GetData returns the reports; an empty list means the wallet was checked and is clean.
func (g *Greysafe) GetData(ctx context.Context, address string, _ chain.Info) (*domain.GreysafeStats, error) {
	var resp struct {
		Reports []struct {
			ID          string    `json:"id"`
			ReportType  string    `json:"reportType"`
			Description string    `json:"description"`
			CreatedAt   time.Time `json:"createdAt"`
		} `json:"reports"`
	}
	endpoint := fmt.Sprintf("%s/reports?address=%s", g.baseURL, url.QueryEscape(address))
	if err := g.http.getJSON(ctx, "reports", endpoint, &resp); err != nil {
		return nil, err
	}

	stats := &domain.GreysafeStats{Reports: make([]domain.GreysafeReport, 0, len(resp.Reports))}
	for _, r := range resp.Reports {
		stats.Reports = append(stats.Reports, domain.GreysafeReport{
			ID:          r.ID,
			ReportType:  r.ReportType,
			Description: r.Description,
			CreatedAt:   r.CreatedAt,
		})
	}
	return stats, nil
}

// Chainalysis checks a wallet against the sanctions oracle API.
type Chainalysis struct {
	baseURL string
	http    *httpDoer
}

// NewChainalysis constructs the sanctions client.
func NewChainalysis(opts RiskOptions, logger zerolog.Logger) *Chainalysis {
	l := logger.With().Str("component", "risk").Str("provider", "chainalysis").Logger()
	return &Chainalysis{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http: newHTTPDoer(httpOptions{
			Provider: "chainalysis",
			Timeout:  opts.Timeout,
			Headers:  map[string]string{"X-API-Key": opts.APIKey},
		}, l),
	}
}

// GetData returns the sanctions identifications; an empty list means no hit.
func (c *Chainalysis) GetData(ctx context.Context, address string, _ chain.Info) (*domain.ChainalysisStats, error) {
	var resp struct {
		Identifications []domain.Identification `json:"identifications"`
	}
	endpoint := fmt.Sprintf("%s/address/%s", c.baseURL, url.PathEscape(address))
	if err := c.http.getJSON(ctx, "address", endpoint, &resp); err != nil {
		return nil, err
	}
	if resp.Identifications == nil {
		resp.Identifications = []domain.Identification{}
	}
	return &domain.ChainalysisStats{Identifications: resp.Identifications}, nil
}

// Hapi reads HAPI protocol risk scores.
type Hapi struct {
	baseURL string
	http    *httpDoer
}

// NewHapi constructs the HAPI client.
func NewHapi(opts RiskOptions, logger zerolog.Logger) *Hapi {
	l := logger.With().Str("component", "risk").Str("provider", "hapi").Logger()
	return &Hapi{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http: newHTTPDoer(httpOptions{
			Provider: "hapi",
			Timeout:  opts.Timeout,
			Headers:  map[string]string{"Authorization": bearer(opts.APIKey)},
		}, l),
	}
}

// GetData returns the risk rating. Unknown wallets (404) and chains HAPI does not
// cover yield domain.ErrNoData.
func (h *Hapi) GetData(ctx context.Context, address string, info chain.Info) (*domain.HapiStats, error) {
	if info.HapiNetwork == "" {
		return nil, domain.ErrNoData
	}
	var resp struct {
		Risk     int    `json:"risk"`
		Category string `json:"category"`
	}
	endpoint := fmt.Sprintf("%s/v1/risk/%s/%s", h.baseURL, url.PathEscape(info.HapiNetwork), url.PathEscape(strings.ToLower(address)))
	if err := h.http.getJSON(ctx, "risk", endpoint, &resp); err != nil {
		return nil, err
	}
	return &domain.HapiStats{Risk: resp.Risk, Category: resp.Category}, nil
}

func bearer(key string) string {
	if key == "" {
		return ""
	}
	return "Bearer " + key
}
