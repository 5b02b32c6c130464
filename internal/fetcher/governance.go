package fetcher

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wallet-score/internal/chain"
	"wallet-score/internal/domain"
)

const (
	defaultSnapshotURL = "https://hub.snapshot.org/graphql"
	snapshotPageSize   = 1000
)

const governanceQuery = `
	query Activity($voter: String!, $first: Int!) {
		votes(first: $first, where: { voter: $voter }, orderBy: "created", orderDirection: desc) {
			id
			created
			space { id }
		}
		proposals(first: $first, where: { author: $voter }, orderBy: "created", orderDirection: desc) {
			id
			space { id }
		}
	}
`

// GovernanceOptions configure the Snapshot hub client.
type GovernanceOptions struct {
	URL     string
	Timeout time.Duration
}

// Governance reads off-chain voting activity from Snapshot.
type Governance struct {
	url  string
	http *httpDoer
}

// NewGovernance constructs the Snapshot client.
func NewGovernance(opts GovernanceOptions, logger zerolog.Logger) *Governance {
	url := opts.URL
	if url == "" {
		url = defaultSnapshotURL
	}
	l := logger.With().Str("component", "governance").Logger()
	return &Governance{
		url:  url,
		http: newHTTPDoer(httpOptions{Provider: "snapshot", Timeout: opts.Timeout}, l),
	}
}

type snapshotSpace struct {
	ID string `json:"id"`
}

// GetData summarises votes and proposals; a wallet with neither yields domain.ErrNoData.
func (g *Governance) GetData(ctx context.Context, address string, _ chain.Info) (*domain.GovernanceStats, error) {
	var data struct {
		Votes []struct {
			ID      string        `json:"id"`
			Created int64         `json:"created"`
			Space   snapshotSpace `json:"space"`
		} `json:"votes"`
		Proposals []struct {
			ID    string        `json:"id"`
			Space snapshotSpace `json:"space"`
		} `json:"proposals"`
	}
	vars := map[string]any{"voter": strings.ToLower(address), "first": snapshotPageSize}
	if err := g.http.graphql(ctx, "activity", g.url, governanceQuery, vars, &data); err != nil {
		return nil, err
	}
	if len(data.Votes) == 0 && len(data.Proposals) == 0 {
		return nil, domain.ErrNoData
	}

	spaces := make(map[string]struct{})
	stats := &domain.GovernanceStats{Votes: len(data.Votes), Proposals: len(data.Proposals)}
	var last int64
	for _, v := range data.Votes {
		if v.Space.ID != "" {
			spaces[v.Space.ID] = struct{}{}
		}
		if v.Created > last {
			last = v.Created
		}
	}
	for _, p := range data.Proposals {
		if p.Space.ID != "" {
			spaces[p.Space.ID] = struct{}{}
		}
	}
	stats.Spaces = len(spaces)
	if last > 0 {
		at := time.Unix(last, 0).UTC()
		stats.LastVoteAt = &at
	}
	return stats, nil
}
