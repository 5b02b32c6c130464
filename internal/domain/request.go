package domain

import (
	"fmt"
	"strings"
)

// ScoreType selects what is being scored.
type ScoreType string

const (
	ScoreTypeFinance ScoreType = "finance"
	ScoreTypeToken   ScoreType = "token"
)

// ParseScoreType accepts the type names case-insensitively; empty means finance.
func ParseScoreType(v string) (ScoreType, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", string(ScoreTypeFinance):
		return ScoreTypeFinance, nil
	case string(ScoreTypeToken):
		return ScoreTypeToken, nil
	default:
		return "", NewError(CodeMissingRequiredInput, fmt.Sprintf("unknown score type %q", v), nil)
	}
}

// Ordinal is the on-chain numeric value of the score type.
func (t ScoreType) Ordinal() uint8 {
	if t == ScoreTypeToken {
		return 1
	}
	return 0
}

// Flags selects optional data per request.
type Flags struct {
	Lending        bool `json:"lending"`
	Governance     bool `json:"governance"`
	Social         bool `json:"social"`
	Greysafe       bool `json:"greysafe"`
	Chainalysis    bool `json:"chainalysis"`
	Hapi           bool `json:"hapi"`
	TokenBalances  bool `json:"tokenBalances"`
	SwapPairs      bool `json:"swapPairs"`
	SwapPairsFirst int  `json:"swapPairsFirst,omitempty"`
	SwapPairsSkip  int  `json:"swapPairsSkip,omitempty"`
}

// DataMask is a bit set of optional data blocks.
type DataMask uint64

const (
	DataLending DataMask = 1 << iota
	DataGovernance
	DataSocial
	DataGreysafe
	DataChainalysis
	DataHapi
	DataTokenBalances
	DataSwapPairs
)

// Has reports whether every bit of o is set.
func (m DataMask) Has(o DataMask) bool { return m&o == o }

// ScoreRequest is one wallet-score request.
type ScoreRequest struct {
	Address      string    `json:"address"`
	Chain        string    `json:"chain"`
	ScoreType    ScoreType `json:"scoreType"`
	TokenAddress string    `json:"tokenAddress,omitempty"`
	Flags        Flags     `json:"flags"`
}

// Signature is the attestation returned with a score.
type Signature struct {
	Signature string   `json:"signature"`
	Signer    string   `json:"signer"`
	Contract  string   `json:"contract"`
	Deadline  int64    `json:"deadline"`
	Data      DataMask `json:"data"`
}

// ScoreResponse is the composed result of one scoring request.
type ScoreResponse struct {
	RequestID       string      `json:"requestId"`
	Address         string      `json:"address"`
	ResolvedAddress string      `json:"resolvedAddress"`
	Chain           string      `json:"chain"`
	ChainID         uint64      `json:"chainId"`
	ScoreType       ScoreType   `json:"scoreType"`
	Stats           WalletStats `json:"stats"`
	Score           float64     `json:"score"`
	MintedScore     uint16      `json:"mintedScore"`
	Signature       *Signature  `json:"signature,omitempty"`
	RecordID        string      `json:"recordId,omitempty"`
	Version         int         `json:"version,omitempty"`
	Persisted       bool        `json:"persisted"`
	Messages        []string    `json:"messages"`
}
