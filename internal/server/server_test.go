package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-score/internal/chain"
	"wallet-score/internal/domain"
	"wallet-score/internal/storage"
)

const testWallet = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

type stubAdapter struct {
	chain.Adapter
	info chain.Info
}

func (a stubAdapter) Info() chain.Info { return a.info }
func (a stubAdapter) ValidateAddress(address string) (string, error) {
	return chain.ValidateAddress(address)
}

type stubChains struct{}

func (stubChains) Lookup(key string) (chain.Adapter, error) {
	if key == "ethereum" || key == "1" {
		return stubAdapter{info: chain.Info{Name: "ethereum", ChainID: 1}}, nil
	}
	return nil, domain.NewError(domain.CodeMissingRequiredInput, "unknown chain", nil)
}

type stubScorer struct {
	got  domain.ScoreRequest
	resp domain.ScoreResponse
	err  error
}

func (s *stubScorer) Score(ctx context.Context, req domain.ScoreRequest) (domain.ScoreResponse, error) {
	s.got = req
	if _, ok := ctx.Deadline(); !ok {
		return domain.ScoreResponse{}, errors.New("missing request deadline")
	}
	return s.resp, s.err
}

type stubHistory struct {
	address string
	chain   string
	limit   int
	records []storage.ScoringRecord
	err     error
}

func (h *stubHistory) ListScoringRecords(_ context.Context, address, chainName string, limit int) ([]storage.ScoringRecord, error) {
	h.address, h.chain, h.limit = address, chainName, limit
	return h.records, h.err
}

type decoded struct {
	Succeeded bool            `json:"succeeded"`
	Data      json.RawMessage `json:"data"`
	Messages  []string        `json:"messages"`
	Error     *errorBody      `json:"error"`
}

func do(t *testing.T, srv *Server, target string) (*httptest.ResponseRecorder, decoded) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body decoded
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func newTestServer(scorer Scorer, history HistoryReader) *Server {
	return New(Options{RequestTimeout: time.Minute}, scorer, stubChains{}, history, zerolog.Nop())
}

func TestScoreParsesFlags(t *testing.T) {
	scorer := &stubScorer{resp: domain.ScoreResponse{
		Address:     testWallet,
		Chain:       "ethereum",
		Score:       0.42,
		MintedScore: 4200,
		Persisted:   true,
		Messages:    []string{"ok"},
	}}
	srv := newTestServer(scorer, nil)

	rec, body := do(t, srv, "/v1/ethereum/wallets/"+testWallet+
		"/score?lending=true&hapi=1&swapPairs=true&swapPairsFirst=5&swapPairsSkip=10&scoreType=token&tokenAddress=0xdac17f958d2ee523a2206206994597c13d831ec7")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Succeeded)
	assert.Equal(t, []string{"ok"}, body.Messages)

	got := scorer.got
	assert.Equal(t, testWallet, got.Address)
	assert.Equal(t, "ethereum", got.Chain)
	assert.Equal(t, domain.ScoreType("token"), got.ScoreType)
	assert.Equal(t, "0xdac17f958d2ee523a2206206994597c13d831ec7", got.TokenAddress)
	assert.True(t, got.Flags.Lending)
	assert.True(t, got.Flags.Hapi)
	assert.True(t, got.Flags.SwapPairs)
	assert.False(t, got.Flags.Governance)
	assert.Equal(t, 5, got.Flags.SwapPairsFirst)
	assert.Equal(t, 10, got.Flags.SwapPairsSkip)

	var resp domain.ScoreResponse
	require.NoError(t, json.Unmarshal(body.Data, &resp))
	assert.Equal(t, uint16(4200), resp.MintedScore)
}

func TestScoreRejectsBadParams(t *testing.T) {
	scorer := &stubScorer{}
	srv := newTestServer(scorer, nil)

	for _, q := range []string{"lending=maybe", "swapPairsFirst=-1", "swapPairsSkip=abc"} {
		rec, body := do(t, srv, "/v1/ethereum/wallets/"+testWallet+"/score?"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		require.NotNil(t, body.Error, q)
		assert.Equal(t, domain.CodeMissingRequiredInput, body.Error.Code, q)
	}
	assert.Empty(t, scorer.got.Address, "参数错误时不应调用评分")
}

func TestScoreErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domain.InvalidAddress("nope", nil), http.StatusBadRequest},
		{domain.Upstream("explorer", errors.New("secret upstream detail")), http.StatusBadGateway},
		{domain.NewError(domain.CodeSignatureFailure, "signer key is not configured", nil), http.StatusInternalServerError},
		{context.DeadlineExceeded, statusClientClosedRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		scorer := &stubScorer{err: tc.err}
		rec, body := do(t, newTestServer(scorer, nil), "/v1/ethereum/wallets/"+testWallet+"/score")
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.False(t, body.Succeeded)
		require.NotNil(t, body.Error)
		assert.Equal(t, domain.CodeOf(tc.err), body.Error.Code)
		assert.NotContains(t, rec.Body.String(), "secret upstream detail")
	}
}

func TestHistory(t *testing.T) {
	id := uuid.New()
	history := &stubHistory{records: []storage.ScoringRecord{{
		ID:          id,
		Address:     "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		Chain:       "ethereum",
		ChainID:     1,
		ScoreType:   domain.ScoreTypeFinance,
		Score:       0.5,
		MintedScore: 5000,
		Version:     2,
	}}}
	srv := newTestServer(&stubScorer{}, history)

	rec, body := do(t, srv, "/v1/1/wallets/"+testWallet+"/history?limit=1000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ethereum", history.chain, "链 id 应解析为链名")
	assert.Equal(t, maxHistoryLimit, history.limit)
	assert.Equal(t, testWallet, history.address)

	var items []historyItem
	require.NoError(t, json.Unmarshal(body.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, id.String(), items[0].RecordID)
	assert.Equal(t, 2, items[0].Version)

	rec, _ = do(t, srv, "/v1/ethereum/wallets/"+testWallet+"/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultHistoryLimit, history.limit)

	rec, _ = do(t, srv, "/v1/ethereum/wallets/"+testWallet+"/history?limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, srv, "/v1/ethereum/wallets/not-an-address/history")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, srv, "/v1/solana/wallets/"+testWallet+"/history")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryDisabled(t *testing.T) {
	rec, body := do(t, newTestServer(&stubScorer{}, nil), "/v1/ethereum/wallets/"+testWallet+"/history")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, domain.CodeNoData, body.Error.Code)

	history := &stubHistory{err: storage.ErrNotConfigured}
	rec, _ = do(t, newTestServer(&stubScorer{}, history), "/v1/ethereum/wallets/"+testWallet+"/history")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(&stubScorer{}, nil)

	rec, body := do(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Succeeded)

	rec, _ = do(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}
