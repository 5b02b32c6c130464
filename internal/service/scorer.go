package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"wallet-score/internal/chain"
	"wallet-score/internal/domain"
	"wallet-score/internal/events"
	"wallet-score/internal/fetcher"
	"wallet-score/internal/metrics"
	"wallet-score/internal/scoring"
	"wallet-score/internal/signing"
	"wallet-score/internal/stats"
	"wallet-score/internal/storage"
	"wallet-score/internal/units"
)

// State is a step of one scoring request.
type State string

const (
	StateValidating        State = "validating"
	StateResolvingName     State = "resolving_name"
	StateFetchingPrimary   State = "fetching_primary"
	StateFetchingAuxiliary State = "fetching_auxiliary"
	StateCalculating       State = "calculating"
	StateScoring           State = "scoring"
	StatePersisting        State = "persisting"
	StateSigning           State = "signing"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// ChainLookup resolves a chain name or id to its adapter.
type ChainLookup interface {
	Lookup(key string) (chain.Adapter, error)
}

// RecordSaver persists scoring records.
type RecordSaver interface {
	SaveScoringRecord(ctx context.Context, rec storage.ScoringRecord) (storage.ScoringRecord, error)
}

// Signer attests minted scores.
type Signer interface {
	Sign(ctx context.Context, req signing.Request) (*domain.Signature, []string, error)
}

// EventPublisher announces persisted records.
type EventPublisher interface {
	PublishScoringUpdated(ctx context.Context, evt events.ScoringUpdated)
}

// Dependencies wires the scorer. Optional fetchers left nil are skipped even when flagged.
type Dependencies struct {
	Chains        ChainLookup
	Prices        fetcher.PriceOracle
	TokenBalances fetcher.TokenBalanceFetcher
	SwapPairs     fetcher.SwapPairFetcher
	Lending       fetcher.DataFetcher[domain.LendingStats]
	Governance    fetcher.DataFetcher[domain.GovernanceStats]
	Social        fetcher.DataFetcher[domain.SocialStats]
	Greysafe      fetcher.DataFetcher[domain.GreysafeStats]
	Chainalysis   fetcher.DataFetcher[domain.ChainalysisStats]
	Hapi          fetcher.DataFetcher[domain.HapiStats]
	Model         *scoring.Model
	Store         RecordSaver
	Signer        Signer
	Events        EventPublisher
	Now           func() time.Time
}

// Scorer runs the scoring pipeline for one wallet at a time; it is safe for concurrent use.
type Scorer struct {
	deps   Dependencies
	logger zerolog.Logger
}

// NewScorer constructs the orchestrator.
func NewScorer(deps Dependencies, logger zerolog.Logger) *Scorer {
	if deps.Model == nil {
		deps.Model, _ = scoring.NewModel(nil)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Scorer{
		deps:   deps,
		logger: logger.With().Str("component", "scorer").Logger(),
	}
}

// fetched is everything gathered before calculation.
type fetched struct {
	balance      decimal.Decimal
	txs          []domain.RawTransaction
	internal     []domain.RawTransaction
	erc20        []domain.TokenTransferEvent
	nft          []domain.TokenTransferEvent
	tokenBalance decimal.Decimal

	nativePrice decimal.Decimal
	tokenQuote  *fetcher.Quote

	aux stats.Aux
}

type run struct {
	id      string
	req     domain.ScoreRequest
	adapter chain.Adapter
	info    chain.Info
	address string
	token   string
	state   State
	logger  zerolog.Logger
}

func (r *run) enter(s State) {
	r.state = s
	r.logger.Debug().Str("state", string(s)).Msg("scoring state")
}

// Score validates, fetches, calculates, scores, persists and signs. The returned
// response always carries RequestID and Messages; on error the caller should
// report domain.CodeOf(err) and domain.PublicMessage(err).
func (s *Scorer) Score(ctx context.Context, req domain.ScoreRequest) (resp domain.ScoreResponse, err error) {
	started := time.Now()
	r := &run{id: uuid.NewString(), req: req}
	r.logger = s.logger.With().Str("request_id", r.id).Str("chain", req.Chain).Str("address", req.Address).Logger()
	resp = domain.ScoreResponse{RequestID: r.id, Address: req.Address, Chain: req.Chain, Messages: []string{}}

	defer func() {
		code := string(domain.CodeOf(err))
		if err == nil {
			code = "ok"
		} else {
			lvl := r.logger.Warn()
			if code == string(domain.CodeInternal) || code == string(domain.CodeSignatureFailure) {
				lvl = r.logger.Error()
			}
			lvl.Err(err).Str("state", string(r.state)).Str("code", code).Msg("scoring failed")
			r.state = StateFailed
			resp.Messages = append(resp.Messages, domain.PublicMessage(err))
		}
		metrics.RecordScoring(time.Since(started), chainLabel(r), code)
	}()

	if err := s.validate(ctx, r); err != nil {
		return resp, err
	}
	resp.ResolvedAddress = r.address
	resp.Chain = r.info.Name
	resp.ChainID = r.info.ChainID
	resp.ScoreType = r.req.ScoreType
	r.logger = r.logger.With().Str("resolved", r.address).Str("score_type", string(r.req.ScoreType)).Logger()

	data, err := s.fetch(ctx, r)
	if err != nil {
		return resp, err
	}

	r.enter(StateCalculating)
	now := s.deps.Now().UTC()
	in := stats.Input{
		Address:              r.address,
		Now:                  now,
		NativeDecimals:       r.info.NativeDecimals,
		NativeBalance:        r.adapter.ToNative(data.balance),
		NativePrice:          data.nativePrice,
		Transactions:         data.txs,
		InternalTransactions: data.internal,
		ERC20Transfers:       data.erc20,
		NFTTransfers:         data.nft,
		Aux:                  data.aux,
	}
	if r.token != "" {
		in.Token = tokenInput(r.token, data)
		if in.Token.Price.IsZero() {
			resp.Messages = append(resp.Messages, fmt.Sprintf("No USD price for token %s; balance valued at 0.", r.token))
		}
	}
	walletStats := stats.Calculate(in)

	r.enter(StateScoring)
	score := s.deps.Model.Score(walletStats)
	minted := scoring.MintedScore(score)
	resp.Stats = walletStats
	resp.Score = score
	resp.MintedScore = minted

	// Nothing is written for a request that was canceled before persisting.
	if err := ctx.Err(); err != nil {
		return resp, err
	}

	r.enter(StatePersisting)
	s.persist(ctx, r, &resp)

	r.enter(StateSigning)
	if s.deps.Signer == nil {
		return resp, domain.NewError(domain.CodeSignatureFailure, "signer is not configured", nil)
	}
	sig, messages, err := s.deps.Signer.Sign(ctx, signing.Request{
		Address:     r.address,
		MintedScore: minted,
		ChainID:     r.info.ChainID,
		ScoreType:   r.req.ScoreType,
		Contract:    r.info.Contract(r.req.ScoreType),
		Data:        walletStats.IncludedData(),
	})
	if err != nil {
		if domain.CodeOf(err) != domain.CodeCanceled && domain.CodeOf(err) != domain.CodeSignatureFailure {
			err = domain.NewError(domain.CodeSignatureFailure, "signing failed", err)
		}
		return resp, err
	}
	resp.Signature = sig
	resp.Messages = append(resp.Messages, messages...)

	r.enter(StateDone)
	metrics.RecordScore(r.info.Name, string(r.req.ScoreType), score)
	r.logger.Info().
		Float64("score", score).
		Uint16("minted", minted).
		Int("version", resp.Version).
		Bool("persisted", resp.Persisted).
		Dur("elapsed", time.Since(started)).
		Msg("wallet scored")
	return resp, nil
}

func (s *Scorer) validate(ctx context.Context, r *run) error {
	r.enter(StateValidating)

	if s.deps.Chains == nil {
		return domain.NewError(domain.CodeInternal, "no chains configured", nil)
	}
	adapter, err := s.deps.Chains.Lookup(r.req.Chain)
	if err != nil {
		return err
	}
	r.adapter = adapter
	r.info = adapter.Info()

	scoreType, err := domain.ParseScoreType(string(r.req.ScoreType))
	if err != nil {
		return err
	}
	r.req.ScoreType = scoreType

	address := strings.TrimSpace(r.req.Address)
	if address == "" {
		return domain.NewError(domain.CodeMissingRequiredInput, "address is required", nil)
	}
	if chain.IsName(address) {
		r.enter(StateResolvingName)
		resolved, err := adapter.ResolveName(ctx, address)
		if err != nil {
			return err
		}
		r.logger.Debug().Str("name", address).Str("resolved", resolved).Msg("name resolved")
		address = resolved
	}
	if r.address, err = adapter.ValidateAddress(address); err != nil {
		return err
	}

	if scoreType == domain.ScoreTypeToken {
		if strings.TrimSpace(r.req.TokenAddress) == "" {
			return domain.NewError(domain.CodeMissingRequiredInput, "tokenAddress is required for token scoring", nil)
		}
		token, err := adapter.ValidateAddress(r.req.TokenAddress)
		if err != nil {
			return err
		}
		r.token = strings.ToLower(token)
	}
	return nil
}

// fetch runs the primary chain reads on one goroutine, sequentially since they
// share the explorer's rate limit, alongside the independent auxiliary reads.
func (s *Scorer) fetch(ctx context.Context, r *run) (*fetched, error) {
	r.enter(StateFetchingPrimary)

	data := &fetched{}
	flags := r.req.Flags
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.fetchPrimary(gctx, r, data)
	})

	g.Go(func() error {
		return s.fetchPrices(gctx, r, data)
	})

	r.enter(StateFetchingAuxiliary)
	if flags.Lending {
		g.Go(func() (err error) {
			data.aux.Lending, err = fetcher.Optional(gctx, s.deps.Lending, r.address, r.info)
			return err
		})
	}
	if flags.Governance {
		g.Go(func() (err error) {
			data.aux.Governance, err = fetcher.Optional(gctx, s.deps.Governance, r.address, r.info)
			return err
		})
	}
	if flags.Social {
		g.Go(func() (err error) {
			data.aux.Social, err = fetcher.Optional(gctx, s.deps.Social, r.address, r.info)
			return err
		})
	}
	if flags.Greysafe {
		g.Go(func() (err error) {
			data.aux.Greysafe, err = fetcher.Optional(gctx, s.deps.Greysafe, r.address, r.info)
			return err
		})
	}
	if flags.Chainalysis {
		g.Go(func() (err error) {
			data.aux.Chainalysis, err = fetcher.Optional(gctx, s.deps.Chainalysis, r.address, r.info)
			return err
		})
	}
	if flags.Hapi {
		g.Go(func() (err error) {
			data.aux.Hapi, err = fetcher.Optional(gctx, s.deps.Hapi, r.address, r.info)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		// Report the caller's cancellation rather than whichever fetch noticed it first.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return data, nil
}

type primaryStep struct {
	name string
	load func() error
}

func (s *Scorer) fetchPrimary(ctx context.Context, r *run, data *fetched) error {
	var err error

	steps := []primaryStep{
		{"balance", func() error {
			raw, err := r.adapter.GetBalance(ctx, r.address)
			if err != nil {
				return err
			}
			data.balance = units.ParseMinor(raw)
			return nil
		}},
		{"transactions", func() (err error) {
			data.txs, err = r.adapter.Transactions(ctx, r.address)
			return err
		}},
		{"internal transactions", func() (err error) {
			data.internal, err = r.adapter.InternalTransactions(ctx, r.address)
			return err
		}},
		{"erc20 transfers", func() (err error) {
			data.erc20, err = r.adapter.ERC20Transfers(ctx, r.address)
			return err
		}},
		{"nft transfers", func() (err error) {
			data.nft, err = r.adapter.NFTTransfers(ctx, r.address)
			return err
		}},
	}
	if r.token != "" {
		steps = append(steps, primaryStep{"token balance", func() (err error) {
			data.tokenBalance, err = r.adapter.TokenBalance(ctx, r.address, r.token)
			return err
		}})
	}
	// All primary calls hit the same explorer, so every call after the first waits ListDelay.
	for i, step := range steps {
		if i > 0 {
			if err := chain.Pause(ctx, r.info.ListDelay); err != nil {
				return err
			}
		}
		if err := step.load(); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	r.logger.Debug().
		Int("txs", len(data.txs)).
		Int("internal", len(data.internal)).
		Int("erc20", len(data.erc20)).
		Int("nft", len(data.nft)).
		Msg("primary data fetched")

	tokens := fetcher.TokensFromTransfers(data.erc20)
	if len(tokens) == 0 {
		return nil
	}
	flags := r.req.Flags

	if flags.TokenBalances && s.deps.TokenBalances != nil {
		if data.aux.TokenBalances, err = s.deps.TokenBalances.GetTokenBalances(ctx, r.adapter, r.address, tokens); err != nil {
			return fmt.Errorf("token balances: %w", err)
		}
	}
	if flags.SwapPairs && s.deps.SwapPairs != nil {
		contracts := make([]string, len(tokens))
		for i, t := range tokens {
			contracts[i] = t.Contract
		}
		page := fetcher.Pagination{First: flags.SwapPairsFirst, Skip: flags.SwapPairsSkip}
		if data.aux.SwapPairs, err = s.deps.SwapPairs.GetSwapPairs(ctx, r.info, contracts, page); err != nil {
			return fmt.Errorf("swap pairs: %w", err)
		}
	}
	return nil
}

// fetchPrices loads the native USD price, which is required, and the token price
// for token-scoped requests, which is not.
func (s *Scorer) fetchPrices(ctx context.Context, r *run, data *fetched) error {
	if s.deps.Prices == nil {
		return domain.Upstream("pricing", errors.New("price oracle is not configured"))
	}
	nativeID := strings.ToLower(r.info.PriceID)
	ids := []string{nativeID}
	tokenID := ""
	if r.token != "" {
		tokenID = fetcher.TokenPriceID(r.info.LlamaSlug, r.token)
		ids = append(ids, tokenID)
	}

	quotes, err := s.deps.Prices.GetPrice(ctx, ids)
	if err != nil {
		return fmt.Errorf("prices: %w", err)
	}
	q, ok := quotes[nativeID]
	if !ok {
		return domain.Upstream("pricing", fmt.Errorf("no fresh price for %s", nativeID))
	}
	data.nativePrice = q.Price
	if tq, ok := quotes[tokenID]; ok && tokenID != "" {
		data.tokenQuote = &tq
	}
	return nil
}

func tokenInput(contract string, data *fetched) *stats.TokenInput {
	in := &stats.TokenInput{Contract: contract, Price: decimal.Zero}
	for _, e := range data.erc20 {
		if strings.EqualFold(e.ContractAddress, contract) {
			in.Symbol = e.TokenSymbol
			in.Decimals = e.TokenDecimals
			break
		}
	}
	if q := data.tokenQuote; q != nil {
		in.Price = q.Price
		if in.Symbol == "" {
			in.Symbol = q.Symbol
		}
		if in.Decimals == 0 {
			in.Decimals = q.Decimals
		}
	}
	in.Balance = units.ToNative(data.tokenBalance, in.Decimals)
	return in
}

// persist stores the record; failures leave Persisted false and add a warning.
func (s *Scorer) persist(ctx context.Context, r *run, resp *domain.ScoreResponse) {
	if s.deps.Store == nil {
		resp.Messages = append(resp.Messages, "Scoring history is disabled; the result was not recorded.")
		return
	}

	rec, err := s.deps.Store.SaveScoringRecord(ctx, storage.ScoringRecord{
		RequestID:      r.id,
		RequestAddress: r.req.Address,
		Address:        r.address,
		Chain:          r.info.Name,
		ChainID:        r.info.ChainID,
		ScoreType:      r.req.ScoreType,
		Score:          resp.Score,
		MintedScore:    resp.MintedScore,
		Stats:          resp.Stats,
	})
	if err != nil {
		metrics.IncPersistFailures()
		r.logger.Error().Err(err).Msg("failed to persist scoring record")
		resp.Messages = append(resp.Messages, "Warning: the score could not be recorded and will be missing from history.")
		return
	}

	resp.Persisted = true
	resp.RecordID = rec.ID.String()
	resp.Version = rec.Version

	if s.deps.Events != nil {
		s.deps.Events.PublishScoringUpdated(ctx, events.ScoringUpdated{
			RecordID:    resp.RecordID,
			Address:     rec.Address,
			Chain:       rec.Chain,
			ChainID:     rec.ChainID,
			ScoreType:   string(rec.ScoreType),
			Score:       rec.Score,
			MintedScore: rec.MintedScore,
			Version:     rec.Version,
			CreatedAt:   rec.CreatedAt,
		})
	}
}

func chainLabel(r *run) string {
	if r.info.Name != "" {
		return r.info.Name
	}
	return "unknown"
}
