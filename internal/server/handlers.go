package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"wallet-score/internal/domain"
	"wallet-score/internal/storage"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{
		Succeeded: true,
		Data: map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
		Messages: []string{},
	})
}

// GET /v1/{chain}/wallets/{address}/score
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	req, err := parseScoreRequest(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	resp, err := s.scorer.Score(r.Context(), req)
	if err != nil {
		writeError(w, err, resp.Messages)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Succeeded: true, Data: resp, Messages: resp.Messages})
}

// GET /v1/{chain}/wallets/{address}/history?limit=
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, domain.NewError(domain.CodeNoData, "scoring history is disabled", nil), nil)
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	adapter, err := s.chains.Lookup(chi.URLParam(r, "chain"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	address, err := adapter.ValidateAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err, nil)
		return
	}

	records, err := s.history.ListScoringRecords(r.Context(), address, adapter.Info().Name, limit)
	if err != nil {
		if !errors.Is(err, storage.ErrNotConfigured) {
			s.logger.Error().Err(err).Str("address", address).Msg("list history failed")
		}
		writeError(w, domain.NewError(domain.CodeInternal, "history unavailable", err), nil)
		return
	}

	items := make([]historyItem, 0, len(records))
	for _, rec := range records {
		items = append(items, toHistoryItem(rec))
	}
	writeJSON(w, http.StatusOK, envelope{Succeeded: true, Data: items, Messages: []string{}})
}

type historyItem struct {
	RecordID    string             `json:"recordId"`
	RequestID   string             `json:"requestId"`
	Address     string             `json:"address"`
	Chain       string             `json:"chain"`
	ChainID     uint64             `json:"chainId"`
	ScoreType   domain.ScoreType   `json:"scoreType"`
	Score       float64            `json:"score"`
	MintedScore uint16             `json:"mintedScore"`
	Version     int                `json:"version"`
	Stats       domain.WalletStats `json:"stats"`
	CreatedAt   time.Time          `json:"createdAt"`
}

func toHistoryItem(rec storage.ScoringRecord) historyItem {
	return historyItem{
		RecordID:    rec.ID.String(),
		RequestID:   rec.RequestID,
		Address:     rec.Address,
		Chain:       rec.Chain,
		ChainID:     rec.ChainID,
		ScoreType:   rec.ScoreType,
		Score:       rec.Score,
		MintedScore: rec.MintedScore,
		Version:     rec.Version,
		Stats:       rec.Stats,
		CreatedAt:   rec.CreatedAt,
	}
}

func parseScoreRequest(r *http.Request) (domain.ScoreRequest, error) {
	q := r.URL.Query()
	req := domain.ScoreRequest{
		Address:      chi.URLParam(r, "address"),
		Chain:        chi.URLParam(r, "chain"),
		ScoreType:    domain.ScoreType(q.Get("scoreType")),
		TokenAddress: q.Get("tokenAddress"),
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"lending", &req.Flags.Lending},
		{"governance", &req.Flags.Governance},
		{"social", &req.Flags.Social},
		{"greysafe", &req.Flags.Greysafe},
		{"chainalysis", &req.Flags.Chainalysis},
		{"hapi", &req.Flags.Hapi},
		{"tokenBalances", &req.Flags.TokenBalances},
		{"swapPairs", &req.Flags.SwapPairs},
	}
	for _, b := range bools {
		v := q.Get(b.name)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return req, badParam(b.name, v)
		}
		*b.dst = parsed
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"swapPairsFirst", &req.Flags.SwapPairsFirst},
		{"swapPairsSkip", &req.Flags.SwapPairsSkip},
	}
	for _, i := range ints {
		v := q.Get(i.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, badParam(i.name, v)
		}
		*i.dst = n
	}
	return req, nil
}

func parseLimit(v string) (int, error) {
	if strings.TrimSpace(v) == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, badParam("limit", v)
	}
	if n > maxHistoryLimit {
		n = maxHistoryLimit
	}
	return n, nil
}

func badParam(name, value string) error {
	return domain.NewError(domain.CodeMissingRequiredInput, fmt.Sprintf("invalid %s %q", name, value), nil)
}
