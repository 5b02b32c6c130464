// Package stats derives wallet statistics from raw chain data.
package stats

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wallet-score/internal/domain"
	"wallet-score/internal/units"
)

// Input is everything fetched for one wallet. Raw values are in minor units.
type Input struct {
	Address        string
	Now            time.Time
	NativeDecimals int32
	NativeBalance  decimal.Decimal
	NativePrice    decimal.Decimal

	Transactions         []domain.RawTransaction
	InternalTransactions []domain.RawTransaction
	ERC20Transfers       []domain.TokenTransferEvent
	NFTTransfers         []domain.TokenTransferEvent

	// Token switches to token-scoped statistics when set.
	Token *TokenInput
	Aux   Aux
}

// TokenInput describes the token of a token-scoped request. Balance is in token units.
type TokenInput struct {
	Contract string
	Symbol   string
	Decimals int32
	Balance  decimal.Decimal
	Price    decimal.Decimal
}

// Aux holds optional auxiliary blocks; nil means no data.
type Aux struct {
	TokenBalances []domain.TokenBalance
	SwapPairs     []domain.SwapPair
	Lending       *domain.LendingStats
	Governance    *domain.GovernanceStats
	Social        *domain.SocialStats
	Greysafe      *domain.GreysafeStats
	Chainalysis   *domain.ChainalysisStats
	Hapi          *domain.HapiStats
}

// Calculate builds WalletStats. It is pure: the same input always yields the same output.
func Calculate(in Input) domain.WalletStats {
	now := in.Now.UTC()
	address := strings.ToLower(in.Address)

	s := domain.WalletStats{
		NativeBalance:    in.NativeBalance,
		NativeBalanceUSD: units.USD(in.NativeBalance, in.NativePrice),
		NftTrading:       decimal.Zero,
		NftWorth:         decimal.Zero,
	}

	var (
		times []time.Time
		flows []Flow
	)
	if in.Token != nil {
		events := tokenEvents(in.ERC20Transfers, in.Token.Contract)
		times = eventTimes(events)
		flows = tokenFlows(events, address, in.Token.Decimals)
		s.TotalTransactions = len(events)
		s.Token = &domain.TokenStats{
			Contract:   strings.ToLower(in.Token.Contract),
			Symbol:     in.Token.Symbol,
			Decimals:   in.Token.Decimals,
			Balance:    in.Token.Balance,
			BalanceUSD: units.USD(in.Token.Balance, in.Token.Price),
			Transfers:  len(events),
		}
	} else {
		txs := sortedTransactions(in.Transactions)
		times = txTimes(txs)
		flows = nativeFlows(txs, in.InternalTransactions, address, in.NativeDecimals)
		s.TotalTransactions = len(txs)
		s.TotalRejectedTransactions = countRejected(txs)
	}

	var first time.Time
	if len(times) > 0 {
		first = times[0]
	}
	s.WalletAge = WalletAge(times, now)
	if !first.IsZero() {
		s.WalletAgeMonths = monthsBetween(first, now)
	}
	s.Cadence = Cadence(times, now)
	s.WalletTurnover = turnover(flows)
	s.TurnoverIntervals = TurnoverIntervals(first, flows, now)
	s.BalanceChangeInLastMonth = balanceChangeSince(s.TurnoverIntervals, now.AddDate(0, -1, 0))
	s.BalanceChangeInLastYear = balanceChangeSince(s.TurnoverIntervals, now.AddDate(-1, 0, 0))

	s.TokensHolding = TokensHolding(in.ERC20Transfers)
	s.DeployedContracts = DeployedContracts(in.Transactions)

	nft := NFTActivity(address, in.NFTTransfers, in.InternalTransactions, in.NativeDecimals)
	s.NftHolding = nft.Holding
	s.NftCollections = nft.Collections
	s.NftTrading = nft.Trading()
	s.NftWorth = nft.Worth()

	s.TokenBalances = in.Aux.TokenBalances
	s.SwapPairs = in.Aux.SwapPairs
	s.Lending = in.Aux.Lending
	s.Governance = in.Aux.Governance
	s.Social = in.Aux.Social
	s.Greysafe = in.Aux.Greysafe
	s.Chainalysis = in.Aux.Chainalysis
	s.Hapi = in.Aux.Hapi

	return s
}

// WalletAge is the number of whole days since the first timestamp, at least 1.
func WalletAge(sorted []time.Time, now time.Time) int {
	if len(sorted) == 0 {
		return 1
	}
	days := int(now.Sub(sorted[0]).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

// TokensHolding counts distinct ERC-20 symbols seen in transfers.
func TokensHolding(events []domain.TokenTransferEvent) int {
	symbols := make(map[string]struct{})
	for _, e := range events {
		symbol := strings.ToUpper(strings.TrimSpace(e.TokenSymbol))
		if symbol == "" {
			continue
		}
		symbols[symbol] = struct{}{}
	}
	return len(symbols)
}

// DeployedContracts counts contract-creation transactions.
func DeployedContracts(txs []domain.RawTransaction) int {
	n := 0
	for _, tx := range txs {
		if strings.TrimSpace(tx.ContractAddress) != "" {
			n++
		}
	}
	return n
}

func sortedTransactions(txs []domain.RawTransaction) []domain.RawTransaction {
	out := make([]domain.RawTransaction, len(txs))
	copy(out, txs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func txTimes(sorted []domain.RawTransaction) []time.Time {
	out := make([]time.Time, 0, len(sorted))
	for _, tx := range sorted {
		out = append(out, tx.Timestamp)
	}
	return out
}

func eventTimes(events []domain.TokenTransferEvent) []time.Time {
	out := make([]time.Time, 0, len(events))
	for _, e := range events {
		out = append(out, e.Timestamp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func tokenEvents(events []domain.TokenTransferEvent, contract string) []domain.TokenTransferEvent {
	contract = strings.ToLower(contract)
	out := make([]domain.TokenTransferEvent, 0)
	for _, e := range events {
		if strings.EqualFold(e.ContractAddress, contract) {
			out = append(out, e)
		}
	}
	return out
}

func countRejected(txs []domain.RawTransaction) int {
	n := 0
	for _, tx := range txs {
		if tx.IsError {
			n++
		}
	}
	return n
}

// monthsBetween counts whole calendar months from a to b.
func monthsBetween(a, b time.Time) int {
	if !b.After(a) {
		return 0
	}
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if b.Day() < a.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
