package chain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"wallet-score/internal/config"
	"wallet-score/internal/domain"
	"wallet-score/internal/explorer"
)

// Registry looks adapters up by chain name or chain id.
type Registry struct {
	byName map[string]Adapter
	byID   map[uint64]Adapter
}

// NewRegistry indexes the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{byName: map[string]Adapter{}, byID: map[uint64]Adapter{}}
	for _, a := range adapters {
		info := a.Info()
		r.byName[strings.ToLower(info.Name)] = a
		r.byID[info.ChainID] = a
	}
	return r
}

// FromConfig builds one long-lived adapter per configured chain.
func FromConfig(cfg *config.Config, logger zerolog.Logger) *Registry {
	adapters := make([]Adapter, 0, len(cfg.Chains))
	for _, name := range cfg.ChainNames() {
		c := cfg.Chains[name]

		client := explorer.NewClient(explorer.Options{
			Name:          name,
			BaseURL:       c.ExplorerURL,
			APIKey:        c.APIKey,
			PageSize:      cfg.Explorer.PageSize,
			PageDelay:     cfg.Explorer.PageDelay,
			Timeout:       cfg.Explorer.RequestTimeout,
			RetryAttempts: cfg.Explorer.RetryAttempts,
			RetryDelay:    cfg.Explorer.RetryDelay,
		}, logger)

		var resolver NameResolver
		if c.ENS && c.RPCURL != "" {
			resolver = NewENSResolver(ENSOptions{RPCURL: c.RPCURL, Timeout: cfg.Explorer.RequestTimeout}, logger)
		}

		adapters = append(adapters, NewEVM(EVMOptions{
			Info: Info{
				Name:           name,
				ChainID:        c.ChainID,
				NativeSymbol:   c.NativeSymbol,
				NativeDecimals: c.NativeDecimals,
				PriceID:        c.PriceID,
				LlamaSlug:      c.LlamaSlug,
				RPCURL:         c.RPCURL,
				AavePool:       c.AavePool,
				SwapsSubgraph:  c.SwapsSubgraph,
				HapiNetwork:    c.HapiNetwork,
				Contracts: map[domain.ScoreType]string{
					domain.ScoreTypeFinance: c.SBTFinance,
					domain.ScoreTypeToken:   c.SBTToken,
				},
				ListDelay: cfg.Explorer.PageDelay,
			},
			Explorer: client,
			Resolver: resolver,
			ERC1155:  c.ERC1155,
		}, logger))
	}
	return NewRegistry(adapters...)
}

// Lookup accepts a chain name or a decimal chain id.
func (r *Registry) Lookup(key string) (Adapter, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if a, ok := r.byName[key]; ok {
		return a, nil
	}
	if id, err := strconv.ParseUint(key, 10, 64); err == nil {
		if a, ok := r.byID[id]; ok {
			return a, nil
		}
	}
	return nil, domain.NewError(domain.CodeMissingRequiredInput, fmt.Sprintf("unsupported chain %q", key), nil)
}

// Names lists the registered chain names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
