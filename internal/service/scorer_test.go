package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-score/internal/chain"
	"wallet-score/internal/domain"
	"wallet-score/internal/events"
	"wallet-score/internal/fetcher"
	"wallet-score/internal/signing"
	"wallet-score/internal/storage"
	"wallet-score/internal/units"
)

const (
	testWallet   = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	testToken    = "0xdac17f958d2ee523a2206206994597c13d831ec7"
	testContract = "0x000000000000000000000000000000000000c0de"
	testKey      = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

var testNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

type fakeAdapter struct {
	info     chain.Info
	names    map[string]string
	balance  string
	txs      []domain.RawTransaction
	erc20    []domain.TokenTransferEvent
	tokenBal decimal.Decimal
	txErr    error

	mu     sync.Mutex
	calls  []string
	called []time.Time
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		info: chain.Info{
			Name:           "ethereum",
			ChainID:        1,
			NativeSymbol:   "ETH",
			NativeDecimals: 18,
			PriceID:        "coingecko:ethereum",
			LlamaSlug:      "ethereum",
			Contracts:      map[domain.ScoreType]string{domain.ScoreTypeFinance: testContract, domain.ScoreTypeToken: testContract},
		},
		balance: "0",
	}
}

func (f *fakeAdapter) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	f.called = append(f.called, time.Now())
}

func (f *fakeAdapter) Info() chain.Info { return f.info }
func (f *fakeAdapter) ValidateAddress(a string) (string, error) {
	return chain.ValidateAddress(a)
}
func (f *fakeAdapter) ResolveName(_ context.Context, name string) (string, error) {
	if a, ok := f.names[name]; ok {
		return a, nil
	}
	return "", domain.InvalidAddress(name, errors.New("not found"))
}
func (f *fakeAdapter) GetBalance(context.Context, string) (string, error) {
	f.record("balance")
	return f.balance, nil
}
func (f *fakeAdapter) ToNative(minor decimal.Decimal) decimal.Decimal {
	return units.ToNative(minor, f.info.NativeDecimals)
}
func (f *fakeAdapter) Transactions(context.Context, string) ([]domain.RawTransaction, error) {
	f.record("txlist")
	return f.txs, f.txErr
}
func (f *fakeAdapter) InternalTransactions(context.Context, string) ([]domain.RawTransaction, error) {
	f.record("txlistinternal")
	return nil, nil
}
func (f *fakeAdapter) ERC20Transfers(context.Context, string) ([]domain.TokenTransferEvent, error) {
	f.record("tokentx")
	return f.erc20, nil
}
func (f *fakeAdapter) NFTTransfers(context.Context, string) ([]domain.TokenTransferEvent, error) {
	f.record("tokennfttx")
	return nil, nil
}
func (f *fakeAdapter) TokenBalance(context.Context, string, string) (decimal.Decimal, error) {
	f.record("tokenbalance")
	return f.tokenBal, nil
}

type fakePrices struct {
	quotes map[string]fetcher.Quote
	err    error
}

func (p fakePrices) GetPrice(_ context.Context, ids []string) (map[string]fetcher.Quote, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := map[string]fetcher.Quote{}
	for _, id := range ids {
		if q, ok := p.quotes[strings.ToLower(id)]; ok {
			out[strings.ToLower(id)] = q
		}
	}
	return out, nil
}

type fakeStore struct {
	mu      sync.Mutex
	err     error
	records []storage.ScoringRecord
}

func (s *fakeStore) SaveScoringRecord(_ context.Context, rec storage.ScoringRecord) (storage.ScoringRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return storage.ScoringRecord{}, s.err
	}
	rec.ID = uuid.New()
	rec.Version = len(s.records) + 1
	rec.CreatedAt = testNow
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type fakeEvents struct {
	published []events.ScoringUpdated
}

func (e *fakeEvents) PublishScoringUpdated(_ context.Context, evt events.ScoringUpdated) {
	e.published = append(e.published, evt)
}

type dataFunc[T any] func(ctx context.Context) (*T, error)

func (f dataFunc[T]) GetData(ctx context.Context, _ string, _ chain.Info) (*T, error) {
	return f(ctx)
}

func ethPrice() fakePrices {
	return fakePrices{quotes: map[string]fetcher.Quote{
		"coingecko:ethereum": {Price: decimal.NewFromInt(2000), Symbol: "ETH"},
	}}
}

func newTestSigner(t *testing.T) *signing.Signer {
	t.Helper()
	s, err := signing.New(signing.Options{PrivateKey: testKey})
	require.NoError(t, err)
	return s
}

func newTestScorer(t *testing.T, adapter *fakeAdapter, deps Dependencies) *Scorer {
	t.Helper()
	deps.Chains = chain.NewRegistry(adapter)
	if deps.Prices == nil {
		deps.Prices = ethPrice()
	}
	if deps.Signer == nil {
		deps.Signer = newTestSigner(t)
	}
	deps.Now = func() time.Time { return testNow }
	return NewScorer(deps, zerolog.Nop())
}

func TestScoreZeroTransactionWallet(t *testing.T) {
	adapter := newFakeAdapter()
	store := &fakeStore{}
	evts := &fakeEvents{}
	signer := newTestSigner(t)
	scorer := newTestScorer(t, adapter, Dependencies{Store: store, Events: evts, Signer: signer})

	resp, err := scorer.Score(context.Background(), domain.ScoreRequest{
		Address: strings.ToLower(testWallet),
		Chain:   "ethereum",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, testWallet, resp.ResolvedAddress)
	assert.Equal(t, uint64(1), resp.ChainID)
	assert.Equal(t, domain.ScoreTypeFinance, resp.ScoreType)
	assert.Equal(t, 1, resp.Stats.WalletAge)
	assert.True(t, resp.Stats.Cadence.NoData)
	assert.True(t, resp.Stats.NativeBalance.IsZero())
	assert.Zero(t, resp.Stats.IncludedData())
	assert.Zero(t, resp.Score)
	assert.Equal(t, uint16(0), resp.MintedScore)

	require.NotNil(t, resp.Signature)
	assert.Equal(t, signer.Address().Hex(), resp.Signature.Signer)
	assert.Greater(t, resp.Signature.Deadline, time.Now().Unix())
	assert.Equal(t, domain.DataMask(0), resp.Signature.Data)
	assert.NotEmpty(t, resp.Messages)

	assert.True(t, resp.Persisted)
	assert.Equal(t, 1, resp.Version)
	require.Equal(t, 1, store.count())
	assert.Equal(t, resp.Score, store.records[0].Score)
	assert.Equal(t, resp.MintedScore, store.records[0].MintedScore)

	require.Len(t, evts.published, 1)
	assert.Equal(t, resp.RecordID, evts.published[0].RecordID)

	assert.Equal(t, []string{"balance", "txlist", "txlistinternal", "tokentx", "tokennfttx"}, adapter.calls,
		"primary reads run sequentially in a fixed order")
}

func TestScoreSignatureRecoverable(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.balance = "1500000000000000000"
	adapter.txs = []domain.RawTransaction{
		{Hash: "0x1", Timestamp: testNow.AddDate(-2, 0, 0), From: "0xaaa", To: strings.ToLower(testWallet), Value: decimal.RequireFromString("2000000000000000000")},
		{Hash: "0x2", Timestamp: testNow.AddDate(0, -1, 0), From: strings.ToLower(testWallet), To: "0xbbb", Value: decimal.RequireFromString("500000000000000000")},
	}
	signer := newTestSigner(t)
	scorer := newTestScorer(t, adapter, Dependencies{Signer: signer})

	resp, err := scorer.Score(context.Background(), domain.ScoreRequest{Address: testWallet, Chain: "1"})
	require.NoError(t, err)

	assert.True(t, resp.Stats.NativeBalance.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, resp.Stats.NativeBalanceUSD.Equal(decimal.NewFromInt(3000)))
	assert.Greater(t, resp.Score, 0.0)
	assert.LessOrEqual(t, resp.Score, 1.0)
	assert.False(t, resp.Persisted)

	recovered, err := signer.Recover(signing.Request{
		Address:     resp.ResolvedAddress,
		MintedScore: resp.MintedScore,
		ChainID:     resp.ChainID,
		ScoreType:   resp.ScoreType,
		Contract:    testContract,
		Data:        resp.Signature.Data,
		Deadline:    time.Unix(resp.Signature.Deadline, 0),
	}, resp.Signature.Signature)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestScorePersistenceFailureStillSigns(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	scorer := newTestScorer(t, newFakeAdapter(), Dependencies{Store: store})

	resp, err := scorer.Score(context.Background(), domain.ScoreRequest{Address: testWallet, Chain: "ethereum"})
	require.NoError(t, err)

	assert.False(t, resp.Persisted)
	assert.Empty(t, resp.RecordID)
	assert.NotNil(t, resp.Signature)
	found := false
	for _, m := range resp.Messages {
		if strings.HasPrefix(m, "Warning:") {
			found = true
		}
	}
	assert.True(t, found, "persistence failure should surface a warning: %v", resp.Messages)
}

func TestScoreSigningFailureIsFatal(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.info.Contracts = nil
	store := &fakeStore{}
	scorer := newTestScorer(t, adapter, Dependencies{Store: store})

	resp, err := scorer.Score(context.Background(), domain.ScoreRequest{Address: testWallet, Chain: "ethereum"})
	require.Error(t, err)
	assert.Equal(t, domain.CodeSignatureFailure, domain.CodeOf(err))
	assert.Nil(t, resp.Signature)
	assert.Equal(t, 1, store.count(), "persistence is attempted before signing")
	assert.NotEmpty(t, resp.Messages)
}

func TestScoreValidationErrors(t *testing.T) {
	scorer := newTestScorer(t, newFakeAdapter(), Dependencies{})

	cases := []struct {
		name string
		req  domain.ScoreRequest
		code domain.Code
	}{
		{"bad address", domain.ScoreRequest{Address: "0x1234", Chain: "ethereum"}, domain.CodeInvalidAddress},
		{"bad checksum", domain.ScoreRequest{Address: "0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", Chain: "ethereum"}, domain.CodeInvalidAddress},
		{"empty address", domain.ScoreRequest{Chain: "ethereum"}, domain.CodeMissingRequiredInput},
		{"unknown chain", domain.ScoreRequest{Address: testWallet, Chain: "solana"}, domain.CodeMissingRequiredInput},
		{"unknown score type", domain.ScoreRequest{Address: testWallet, Chain: "ethereum", ScoreType: "nft"}, domain.CodeMissingRequiredInput},
		{"token without address", domain.ScoreRequest{Address: testWallet, Chain: "ethereum", ScoreType: domain.ScoreTypeToken}, domain.CodeMissingRequiredInput},
		{"unresolvable name", domain.ScoreRequest{Address: "nobody.eth", Chain: "ethereum"}, domain.CodeInvalidAddress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := scorer.Score(context.Background(), tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.code, domain.CodeOf(err))
		})
	}
}

func TestScoreResolvesName(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.names = map[string]string{"vitalik.eth": strings.ToLower(testWallet)}
	scorer := newTestScorer(t, adapter, Dependencies{})

	resp, err := scorer.Score(context.Background(), domain.ScoreRequest{Address: "vitalik.eth", Chain: "ethereum"})
	require.NoError(t, err)
	assert.Equal(t, "vitalik.eth", resp.Address)
	assert.Equal(t, testWallet, resp.ResolvedAddress)
}

func TestScorePrimaryFailureIsFatal(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.txErr = domain.Upstream("etherscan", errors.New("502"))
	store := &fakeStore{}
	scorer := newTestScorer(t, adapter, Dependencies{Store: store})

	_, err := scorer.Score(context.Background(), domain.ScoreRequest{Address: testWallet, Chain: "ethereum"})
	require.Error(t, err)
	assert.Equal(t, domain.CodeUpstreamUnavailable, domain.CodeOf(err))
	assert.Zero(t, store.count())
}

func TestScoreSpacesPrimaryFetches(t *testing.T) {
	const delay = 20 * time.Millisecond
	adapter := newFakeAdapter()
	adapter.info.ListDelay = delay
	scorer := newTestScorer(t, adapter, Dependencies{})

	_, err := scorer.Score(context.Background(), domain.ScoreRequest{Address: testWallet, Chain: "ethereum"})
	require.NoError(t, err)

	require.Len(t, adapter.called, 5)
	for i := 1; i < len(adapter.called); i++ {
		gap := adapter.called[i].Sub(adapter.called[i-1])
		assert.GreaterOrEqual(t, gap, delay, "%s ran %s after %s", adapter.calls[i], gap, adapter.calls[i-1])
	}
}

func TestScorePrimaryDelayHonorsCancel(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.info.ListDelay = time.Hour
	scorer := newTestScorer(t, adapter, Dependencies{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := scorer.Score(ctx, domain.ScoreRequest{Address: testWallet, Chain: "ethereum"})
	require.Error(t, err)
	assert.Equal(t, []string{"balance"}, adapter.calls)
}

func TestScoreMissingNativePriceIsFatal(t *testing.T) {
	store := &fakeStore{}
	scorer := newTestScorer(t, newFakeAdapter(), Dependencies{Store: store, Prices: fakePrices{}})

	_, err := scorer.Score(context.Background(), domain.ScoreRequest{Address: testWallet, Chain: "ethereum"})
	require.Error(t, err)
	assert.Equal(t, domain.CodeUpstreamUnavailable, domain.CodeOf(err))
	assert.Zero(t, store.count())
}

func TestScoreAuxiliaryBlocks(t *testing.T) {
	store := &fakeStore{}
	scorer := newTestScorer(t, newFakeAdapter(), Dependencies{
		Store: store,
		Lending: dataFunc[domain.LendingStats](func(context.Context) (*domain.LendingStats, error) {
			return nil, domain.ErrNoData
		}),
		Governance: dataFunc[domain.GovernanceStats](func(context.Context) (*domain.GovernanceStats, error) {
			return &domain.GovernanceStats{Votes: 12, Spaces: 3}, nil
		}),
		Hapi: dataFunc[domain.HapiStats](func(context.Context) (*domain.HapiStats, error) {
			return &domain.HapiStats{Risk: 2, Category: "none"}, nil
		}),
		Social: dataFunc[domain.SocialStats](func(context.Context) (*domain.SocialStats, error) {
			t.Error("social must not be fetched when not flagged")
			return nil, nil
		}),
	})

	resp, err := scorer.Score(context.Background(), domain.ScoreRequest{
		Address: testWallet,
		Chain:   "ethereum",
		Flags:   domain.Flags{Lending: true, Governance: true, Hapi: true, Greysafe: true},
	})
	require.NoError(t, err)

	assert.Nil(t, resp.Stats.Lending, "no data folds into an absent block")
	assert.Nil(t, resp.Stats.Greysafe, "unconfigured provider is skipped")
	require.NotNil(t, resp.Stats.Governance)
	assert.Equal(t, 12, resp.Stats.Governance.Votes)
	require.NotNil(t, resp.Stats.Hapi)
	assert.Equal(t, domain.DataGovernance|domain.DataHapi, resp.Signature.Data)
	assert.Greater(t, resp.Score, 0.0)
}

func TestScoreAuxiliaryFailurePropagates(t *testing.T) {
	store := &fakeStore{}
	scorer := newTestScorer(t, newFakeAdapter(), Dependencies{
		Store: store,
		Social: dataFunc[domain.SocialStats](func(context.Context) (*domain.SocialStats, error) {
			return nil, domain.Upstream("cyberconnect", errors.New("500"))
		}),
	})

	_, err := scorer.Score(context.Background(), domain.ScoreRequest{
		Address: testWallet, Chain: "ethereum", Flags: domain.Flags{Social: true},
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeUpstreamUnavailable, domain.CodeOf(err))
	assert.Zero(t, store.count())
}

func TestScoreCanceledDuringAuxiliaryDoesNotPersist(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	store := &fakeStore{}
	scorer := newTestScorer(t, newFakeAdapter(), Dependencies{
		Store: store,
		Lending: dataFunc[domain.LendingStats](func(ctx context.Context) (*domain.LendingStats, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	})

	go func() {
		<-started
		cancel()
	}()

	_, err := scorer.Score(ctx, domain.ScoreRequest{Address: testWallet, Chain: "ethereum", Flags: domain.Flags{Lending: true}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, domain.CodeCanceled, domain.CodeOf(err))
	assert.Zero(t, store.count(), "a canceled request must not write a record")
}

type fakeTokenBalances struct {
	called []fetcher.TokenRef
}

func (f *fakeTokenBalances) GetTokenBalances(_ context.Context, _ chain.Adapter, _ string, tokens []fetcher.TokenRef) ([]domain.TokenBalance, error) {
	f.called = tokens
	return []domain.TokenBalance{{Contract: tokens[0].Contract, Symbol: "USDT", Decimals: 6, Amount: decimal.NewFromInt(10), ValueUSD: decimal.NewFromInt(10)}}, nil
}

type fakeSwapPairs struct {
	page fetcher.Pagination
}

func (f *fakeSwapPairs) GetSwapPairs(_ context.Context, _ chain.Info, tokens []string, page fetcher.Pagination) ([]domain.SwapPair, error) {
	f.page = page
	return []domain.SwapPair{{ID: "0xpair", Token0: domain.PairToken{Address: tokens[0]}, ReserveUSD: decimal.NewFromInt(1)}}, nil
}

func TestScoreTokenBalancesAndSwapPairs(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.erc20 = []domain.TokenTransferEvent{
		{Hash: "0x1", Timestamp: testNow.AddDate(0, -2, 0), From: "0xaaa", To: strings.ToLower(testWallet), ContractAddress: testToken, TokenSymbol: "USDT", TokenDecimals: 6, Value: decimal.NewFromInt(10_000_000)},
	}
	balances := &fakeTokenBalances{}
	pairs := &fakeSwapPairs{}
	scorer := newTestScorer(t, adapter, Dependencies{TokenBalances: balances, SwapPairs: pairs})

	resp, err := scorer.Score(context.Background(), domain.ScoreRequest{
		Address: testWallet,
		Chain:   "ethereum",
		Flags:   domain.Flags{TokenBalances: true, SwapPairs: true, SwapPairsFirst: 5, SwapPairsSkip: 10},
	})
	require.NoError(t, err)

	require.Len(t, balances.called, 1)
	assert.Equal(t, testToken, balances.called[0].Contract)
	assert.Equal(t, fetcher.Pagination{First: 5, Skip: 10}, pairs.page)
	assert.Len(t, resp.Stats.TokenBalances, 1)
	assert.Len(t, resp.Stats.SwapPairs, 1)
	assert.Equal(t, domain.DataTokenBalances|domain.DataSwapPairs, resp.Signature.Data)
}

func TestScoreTokenScoped(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.tokenBal = decimal.NewFromInt(25_000_000)
	adapter.erc20 = []domain.TokenTransferEvent{
		{Hash: "0x1", Timestamp: testNow.AddDate(0, 0, -30), From: "0xaaa", To: strings.ToLower(testWallet), ContractAddress: testToken, TokenSymbol: "USDT", TokenDecimals: 6, Value: decimal.NewFromInt(25_000_000)},
	}
	prices := ethPrice()
	prices.quotes["ethereum:"+testToken] = fetcher.Quote{Price: decimal.RequireFromString("0.999")}
	scorer := newTestScorer(t, adapter, Dependencies{Prices: prices})

	resp, err := scorer.Score(context.Background(), domain.ScoreRequest{
		Address:      testWallet,
		Chain:        "ethereum",
		ScoreType:    domain.ScoreTypeToken,
		TokenAddress: "0x1234",
	})
	require.Error(t, err, "malformed token address is rejected")
	assert.Equal(t, domain.CodeInvalidAddress, domain.CodeOf(err))

	resp, err = scorer.Score(context.Background(), domain.ScoreRequest{
		Address:      testWallet,
		Chain:        "ethereum",
		ScoreType:    domain.ScoreTypeToken,
		TokenAddress: testToken,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Stats.Token)
	assert.Equal(t, "USDT", resp.Stats.Token.Symbol)
	assert.True(t, resp.Stats.Token.Balance.Equal(decimal.NewFromInt(25)))
	assert.True(t, resp.Stats.Token.BalanceUSD.Equal(decimal.RequireFromString("24.98")))
	assert.Equal(t, 1, resp.Stats.TotalTransactions)
	assert.Equal(t, domain.ScoreTypeToken, resp.ScoreType)
	assert.Contains(t, adapter.calls, "tokenbalance")
}
