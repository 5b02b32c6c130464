package explorer

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"wallet-score/internal/domain"
	"wallet-score/internal/units"
)

// Item is a list entry that can act as a pagination cursor.
type Item interface {
	Block() string
}

// NormalTx is an entry of the txlist action.
type NormalTx struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	IsError         string `json:"isError"`
}

func (t NormalTx) Block() string { return t.BlockNumber }

// InternalTx is an entry of the txlistinternal action.
type InternalTx struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	Type            string `json:"type"`
	IsError         string `json:"isError"`
}

func (t InternalTx) Block() string { return t.BlockNumber }

// TokenTransfer is an entry of the tokentx, tokennfttx and token1155tx actions.
type TokenTransfer struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	ContractAddress string `json:"contractAddress"`
	Value           string `json:"value"`
	TokenID         string `json:"tokenID"`
	TokenValue      string `json:"tokenValue"`
	TokenName       string `json:"tokenName"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
}

func (t TokenTransfer) Block() string { return t.BlockNumber }

// NormalTransactions converts txlist entries, sorted by timestamp.
func NormalTransactions(items []NormalTx) []domain.RawTransaction {
	out := make([]domain.RawTransaction, 0, len(items))
	for _, it := range items {
		out = append(out, domain.RawTransaction{
			Hash:            it.Hash,
			BlockNumber:     parseUint(it.BlockNumber),
			Timestamp:       parseUnix(it.TimeStamp),
			From:            strings.ToLower(it.From),
			To:              strings.ToLower(it.To),
			Value:           units.ParseMinor(it.Value),
			ContractAddress: strings.ToLower(it.ContractAddress),
			IsError:         it.IsError == "1",
		})
	}
	sortTransactions(out)
	return out
}

// InternalTransactions converts txlistinternal entries, sorted by timestamp.
func InternalTransactions(items []InternalTx) []domain.RawTransaction {
	out := make([]domain.RawTransaction, 0, len(items))
	for _, it := range items {
		out = append(out, domain.RawTransaction{
			Hash:            it.Hash,
			BlockNumber:     parseUint(it.BlockNumber),
			Timestamp:       parseUnix(it.TimeStamp),
			From:            strings.ToLower(it.From),
			To:              strings.ToLower(it.To),
			Value:           units.ParseMinor(it.Value),
			ContractAddress: strings.ToLower(it.ContractAddress),
			IsError:         it.IsError == "1",
		})
	}
	sortTransactions(out)
	return out
}

// TransferEvents converts token transfer entries, sorted by timestamp.
func TransferEvents(items []TokenTransfer) []domain.TokenTransferEvent {
	out := make([]domain.TokenTransferEvent, 0, len(items))
	for _, it := range items {
		value := it.Value
		if value == "" {
			value = it.TokenValue
		}
		decimals, _ := strconv.ParseInt(strings.TrimSpace(it.TokenDecimal), 10, 32)
		out = append(out, domain.TokenTransferEvent{
			Hash:            it.Hash,
			BlockNumber:     parseUint(it.BlockNumber),
			Timestamp:       parseUnix(it.TimeStamp),
			From:            strings.ToLower(it.From),
			To:              strings.ToLower(it.To),
			ContractAddress: strings.ToLower(it.ContractAddress),
			TokenID:         it.TokenID,
			TokenSymbol:     it.TokenSymbol,
			TokenDecimals:   int32(decimals),
			Value:           units.ParseMinor(value),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func sortTransactions(txs []domain.RawTransaction) {
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Timestamp.Before(txs[j].Timestamp) })
}

func parseUnix(v string) time.Time {
	sec, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func parseUint(v string) uint64 {
	n, _ := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	return n
}
