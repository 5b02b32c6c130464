package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletStats is the aggregate of all metrics derived for one wallet on one chain.
// Optional blocks stay nil when the data was not requested or the provider had none.
type WalletStats struct {
	NativeBalance             decimal.Decimal    `json:"nativeBalance"`
	NativeBalanceUSD          decimal.Decimal    `json:"nativeBalanceUSD"`
	WalletAge                 int                `json:"walletAge"`
	WalletAgeMonths           int                `json:"walletAgeMonths"`
	TotalTransactions         int                `json:"totalTransactions"`
	TotalRejectedTransactions int                `json:"totalRejectedTransactions"`
	WalletTurnover            decimal.Decimal    `json:"walletTurnover"`
	Cadence                   TransactionCadence `json:"cadence"`
	BalanceChangeInLastMonth  decimal.Decimal    `json:"balanceChangeInLastMonth"`
	BalanceChangeInLastYear   decimal.Decimal    `json:"balanceChangeInLastYear"`
	TurnoverIntervals         []TurnoverInterval `json:"turnoverIntervals"`
	TokensHolding             int                `json:"tokensHolding"`
	DeployedContracts         int                `json:"deployedContracts"`
	NftHolding                int                `json:"nftHolding"`
	NftCollections            int                `json:"nftCollections"`
	NftTrading                decimal.Decimal    `json:"nftTrading"`
	NftWorth                  decimal.Decimal    `json:"nftWorth"`

	Token         *TokenStats       `json:"token,omitempty"`
	TokenBalances []TokenBalance    `json:"tokenBalances,omitempty"`
	SwapPairs     []SwapPair        `json:"swapPairs,omitempty"`
	Lending       *LendingStats     `json:"lending,omitempty"`
	Governance    *GovernanceStats  `json:"governance,omitempty"`
	Social        *SocialStats      `json:"social,omitempty"`
	Greysafe      *GreysafeStats    `json:"greysafe,omitempty"`
	Chainalysis   *ChainalysisStats `json:"chainalysis,omitempty"`
	Hapi          *HapiStats        `json:"hapi,omitempty"`
}

// TransactionCadence describes the spacing between transactions in hours.
// NoData is set when fewer than two transactions exist.
type TransactionCadence struct {
	NoData          bool    `json:"noData"`
	MinHours        float64 `json:"minHours"`
	MaxHours        float64 `json:"maxHours"`
	AvgHours        float64 `json:"avgHours"`
	LastMonth       int     `json:"lastMonth"`
	LastYear        int     `json:"lastYear"`
	MonthsSinceLast int     `json:"monthsSinceLast"`
}

// TurnoverInterval aggregates native-unit value moved within [StartDate, EndDate).
// AmountSum is the net flow, inflow minus outflow.
type TurnoverInterval struct {
	StartDate    time.Time       `json:"startDate"`
	EndDate      time.Time       `json:"endDate"`
	AmountSum    decimal.Decimal `json:"amountSum"`
	AmountInSum  decimal.Decimal `json:"amountInSum"`
	AmountOutSum decimal.Decimal `json:"amountOutSum"`
	Count        int             `json:"count"`
}

// TokenStats is present for token-scoped scoring.
type TokenStats struct {
	Contract   string          `json:"contract"`
	Symbol     string          `json:"symbol"`
	Decimals   int32           `json:"decimals"`
	Balance    decimal.Decimal `json:"balance"`
	BalanceUSD decimal.Decimal `json:"balanceUSD"`
	Transfers  int             `json:"transfers"`
}

// TokenBalance is a non-zero ERC-20 holding valued in USD.
type TokenBalance struct {
	Contract string          `json:"contract"`
	Symbol   string          `json:"symbol"`
	Decimals int32           `json:"decimals"`
	Amount   decimal.Decimal `json:"amount"`
	Price    decimal.Decimal `json:"price"`
	ValueUSD decimal.Decimal `json:"valueUSD"`
}

// PairToken is one side of a DEX pair.
type PairToken struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

// SwapPair is a DEX liquidity pair that contains one of the wallet's tokens.
type SwapPair struct {
	ID         string          `json:"id"`
	Token0     PairToken       `json:"token0"`
	Token1     PairToken       `json:"token1"`
	ReserveUSD decimal.Decimal `json:"reserveUSD"`
}

// LendingStats is the wallet's lending position in USD.
type LendingStats struct {
	Protocol             string          `json:"protocol"`
	TotalCollateralUSD   decimal.Decimal `json:"totalCollateralUSD"`
	TotalDebtUSD         decimal.Decimal `json:"totalDebtUSD"`
	AvailableBorrowsUSD  decimal.Decimal `json:"availableBorrowsUSD"`
	LiquidationThreshold decimal.Decimal `json:"liquidationThreshold"`
	LTV                  decimal.Decimal `json:"ltv"`
	HealthFactor         decimal.Decimal `json:"healthFactor"`
}

// GovernanceStats summarises off-chain governance participation.
type GovernanceStats struct {
	Votes      int        `json:"votes"`
	Proposals  int        `json:"proposals"`
	Spaces     int        `json:"spaces"`
	LastVoteAt *time.Time `json:"lastVoteAt,omitempty"`
}

// SocialStats summarises the wallet's social-graph profile.
type SocialStats struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
	Followers   int    `json:"followers"`
	Followings  int    `json:"followings"`
	Essences    int    `json:"essences"`
}

// GreysafeReport is a scam report filed against the wallet.
type GreysafeReport struct {
	ID          string    `json:"id"`
	ReportType  string    `json:"reportType"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// GreysafeStats lists scam reports.
type GreysafeStats struct {
	Reports []GreysafeReport `json:"reports"`
}

// Identification is a sanctions-list hit.
type Identification struct {
	Category    string `json:"category"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

// ChainalysisStats lists sanctions identifications.
type ChainalysisStats struct {
	Identifications []Identification `json:"identifications"`
}

// HapiStats is the HAPI protocol risk rating, 0 to 10.
type HapiStats struct {
	Risk     int    `json:"risk"`
	Category string `json:"category"`
}

// IncludedData reports which optional blocks carry data.
func (s WalletStats) IncludedData() DataMask {
	var m DataMask
	if s.Lending != nil {
		m |= DataLending
	}
	if s.Governance != nil {
		m |= DataGovernance
	}
	if s.Social != nil {
		m |= DataSocial
	}
	if s.Greysafe != nil {
		m |= DataGreysafe
	}
	if s.Chainalysis != nil {
		m |= DataChainalysis
	}
	if s.Hapi != nil {
		m |= DataHapi
	}
	if len(s.TokenBalances) > 0 {
		m |= DataTokenBalances
	}
	if len(s.SwapPairs) > 0 {
		m |= DataSwapPairs
	}
	return m
}
