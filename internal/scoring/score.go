package scoring

import (
	"math"

	"github.com/shopspring/decimal"

	"wallet-score/internal/domain"
)

// MaxMinted is the on-chain value of a perfect score.
const MaxMinted = 10000

// Saturation points: a signal at or beyond its cap earns the full sub-score.
const (
	balanceCapUSD      = 100_000
	ageCapDays         = 5 * 365
	transactionsCap    = 1_000
	activeMonthsCap    = 24
	yearlyTxCap        = 120
	turnoverCap        = 1_000
	tokensCap          = 50
	nftHoldingCap      = 100
	nftWorthCap        = 100
	nftCollectionsCap  = 20
	contractsCap       = 20
	collateralCapUSD   = 100_000
	healthFactorCap    = 2
	governanceCap      = 100
	spacesCap          = 10
	followersCap       = 1_000
	followingsCap      = 500
	essencesCap        = 50
	hapiMaxRisk        = 10
	hapiMaxPenalty     = 0.5
	proposalVoteWeight = 5
)

// Model is a weighted combination of saturating sub-scores.
type Model struct {
	weights Weights
}

// NewModel builds a model; nil or empty weights fall back to the defaults.
func NewModel(w Weights) (*Model, error) {
	if len(w) == 0 {
		w = DefaultWeights()
	}
	normalized, err := w.Normalize()
	if err != nil {
		return nil, err
	}
	return &Model{weights: normalized}, nil
}

var defaultModel = &Model{weights: DefaultWeights()}

// CalculateScore scores stats with the default weights.
func CalculateScore(s domain.WalletStats) float64 {
	return defaultModel.Score(s)
}

// Score returns a deterministic value in [0,1]. Raising any positive signal never lowers it.
func (m *Model) Score(s domain.WalletStats) float64 {
	if sanctioned(s) {
		return 0
	}

	subs := SubScores(s)
	var total float64
	for _, c := range Categories {
		total += m.weights[c] * subs[c]
	}
	return clamp(total * riskFactor(s))
}

// SubScores returns every category score in [0,1].
func SubScores(s domain.WalletStats) map[Category]float64 {
	return map[Category]float64{
		CategoryBalance:      balanceScore(s),
		CategoryAge:          saturate(float64(s.WalletAge-1), ageCapDays),
		CategoryTransactions: saturate(float64(s.TotalTransactions-s.TotalRejectedTransactions), transactionsCap),
		CategoryStability:    stabilityScore(s),
		CategoryTurnover:     saturate(toFloat(s.WalletTurnover), turnoverCap),
		CategoryTokens:       saturate(float64(s.TokensHolding), tokensCap),
		CategoryNFT:          nftScore(s),
		CategoryContracts:    saturate(float64(s.DeployedContracts), contractsCap),
		CategoryLending:      lendingScore(s.Lending),
		CategoryGovernance:   governanceScore(s.Governance),
		CategorySocial:       socialScore(s.Social),
	}
}

// MintedScore converts a score to the integer stored on-chain.
func MintedScore(score float64) uint16 {
	return uint16(math.Round(clamp(score) * MaxMinted))
}

func balanceScore(s domain.WalletStats) float64 {
	usd := s.NativeBalanceUSD
	if s.Token != nil {
		usd = usd.Add(s.Token.BalanceUSD)
	}
	for _, b := range s.TokenBalances {
		usd = usd.Add(b.ValueUSD)
	}
	return saturate(toFloat(usd), balanceCapUSD)
}

func stabilityScore(s domain.WalletStats) float64 {
	active := 0
	for _, iv := range s.TurnoverIntervals {
		if iv.Count > 0 {
			active++
		}
	}
	score := 0.5 * saturate(float64(active), activeMonthsCap)
	if !s.Cadence.NoData {
		score += 0.5 * saturate(float64(s.Cadence.LastYear), yearlyTxCap)
	}
	return score
}

func nftScore(s domain.WalletStats) float64 {
	return 0.5*saturate(float64(s.NftHolding), nftHoldingCap) +
		0.25*saturate(toFloat(s.NftWorth), nftWorthCap) +
		0.25*saturate(float64(s.NftCollections), nftCollectionsCap)
}

func lendingScore(l *domain.LendingStats) float64 {
	if l == nil {
		return 0
	}
	health := 1.0
	if l.TotalDebtUSD.IsPositive() {
		health = saturate(toFloat(l.HealthFactor)-1, healthFactorCap)
	}
	return 0.5*saturate(toFloat(l.TotalCollateralUSD), collateralCapUSD) + 0.5*health
}

func governanceScore(g *domain.GovernanceStats) float64 {
	if g == nil {
		return 0
	}
	activity := float64(g.Votes + proposalVoteWeight*g.Proposals)
	return 0.7*saturate(activity, governanceCap) + 0.3*saturate(float64(g.Spaces), spacesCap)
}

func socialScore(p *domain.SocialStats) float64 {
	if p == nil {
		return 0
	}
	return 0.6*saturate(float64(p.Followers), followersCap) +
		0.2*saturate(float64(p.Followings), followingsCap) +
		0.2*saturate(float64(p.Essences), essencesCap)
}

func sanctioned(s domain.WalletStats) bool {
	return s.Chainalysis != nil && len(s.Chainalysis.Identifications) > 0
}

// riskFactor shrinks the score for reported scams and HAPI risk.
func riskFactor(s domain.WalletStats) float64 {
	factor := 1.0
	if s.Greysafe != nil && len(s.Greysafe.Reports) > 0 {
		factor /= float64(1 + len(s.Greysafe.Reports))
	}
	if s.Hapi != nil {
		risk := math.Min(math.Max(float64(s.Hapi.Risk), 0), hapiMaxRisk)
		factor *= 1 - hapiMaxPenalty*risk/hapiMaxRisk
	}
	return factor
}

// saturate maps [0,inf) onto [0,1] with log1p(x)/log1p(limit), non-decreasing in x.
func saturate(x, limit float64) float64 {
	if math.IsNaN(x) || x <= 0 {
		return 0
	}
	return clamp(math.Log1p(x) / math.Log1p(limit))
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
