package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wallet-score/internal/domain"
)

func emptyStats() domain.WalletStats {
	return domain.WalletStats{
		WalletAge: 1,
		Cadence:   domain.TransactionCadence{NoData: true},
	}
}

func activeStats() domain.WalletStats {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return domain.WalletStats{
		NativeBalance:     decimal.NewFromInt(3),
		NativeBalanceUSD:  decimal.NewFromInt(9000),
		WalletAge:         700,
		TotalTransactions: 250,
		WalletTurnover:    decimal.NewFromInt(40),
		Cadence:           domain.TransactionCadence{LastYear: 60, LastMonth: 4},
		TurnoverIntervals: []domain.TurnoverInterval{
			{StartDate: now.AddDate(0, -2, 0), EndDate: now.AddDate(0, -1, 0), Count: 3},
			{StartDate: now.AddDate(0, -1, 0), EndDate: now, Count: 1},
		},
		TokensHolding:     12,
		DeployedContracts: 2,
		NftHolding:        5,
		NftCollections:    2,
		NftWorth:          decimal.NewFromInt(3),
	}
}

func TestZeroStatsScoreZero(t *testing.T) {
	score := CalculateScore(emptyStats())
	if score != 0 {
		t.Fatalf("空钱包得分应为 0, 实际 %v", score)
	}
	if MintedScore(score) != 0 {
		t.Fatalf("空钱包 minted 应为 0, 实际 %d", MintedScore(score))
	}
}

func TestScoreWithinBounds(t *testing.T) {
	huge := activeStats()
	huge.NativeBalanceUSD = decimal.NewFromInt(1_000_000_000)
	huge.WalletAge = 100_000
	huge.TotalTransactions = 10_000_000
	huge.WalletTurnover = decimal.NewFromInt(1_000_000_000)
	huge.TokensHolding = 10_000
	huge.NftHolding = 10_000
	huge.NftWorth = decimal.NewFromInt(-50)
	huge.Lending = &domain.LendingStats{TotalCollateralUSD: decimal.NewFromInt(1e9)}
	huge.Governance = &domain.GovernanceStats{Votes: 1e6, Spaces: 1e3}
	huge.Social = &domain.SocialStats{Followers: 1e7}

	for _, s := range []domain.WalletStats{emptyStats(), activeStats(), huge} {
		score := CalculateScore(s)
		if score < 0 || score > 1 || math.IsNaN(score) {
			t.Fatalf("得分越界: %v", score)
		}
		if MintedScore(score) > MaxMinted {
			t.Fatalf("minted 越界: %d", MintedScore(score))
		}
	}
}

func TestScoreMonotonic(t *testing.T) {
	bumps := map[string]func(*domain.WalletStats){
		"balance":      func(s *domain.WalletStats) { s.NativeBalanceUSD = s.NativeBalanceUSD.Mul(decimal.NewFromInt(10)) },
		"age":          func(s *domain.WalletStats) { s.WalletAge *= 2 },
		"transactions": func(s *domain.WalletStats) { s.TotalTransactions += 100 },
		"turnover":     func(s *domain.WalletStats) { s.WalletTurnover = s.WalletTurnover.Add(decimal.NewFromInt(100)) },
		"tokens":       func(s *domain.WalletStats) { s.TokensHolding += 5 },
		"nft":          func(s *domain.WalletStats) { s.NftHolding += 5 },
		"contracts":    func(s *domain.WalletStats) { s.DeployedContracts++ },
		"lending": func(s *domain.WalletStats) {
			s.Lending = &domain.LendingStats{TotalCollateralUSD: decimal.NewFromInt(500)}
		},
	}

	base := activeStats()
	before := CalculateScore(base)
	for name, bump := range bumps {
		s := activeStats()
		bump(&s)
		if after := CalculateScore(s); after < before {
			t.Fatalf("%s 增加后得分下降: %v -> %v", name, before, after)
		}
	}
}

func TestSanctionedWalletScoresZero(t *testing.T) {
	s := activeStats()
	s.Chainalysis = &domain.ChainalysisStats{Identifications: []domain.Identification{{Category: "sanctions", Name: "OFAC"}}}
	if score := CalculateScore(s); score != 0 {
		t.Fatalf("制裁地址得分应为 0, 实际 %v", score)
	}

	s.Chainalysis = &domain.ChainalysisStats{}
	if CalculateScore(s) == 0 {
		t.Fatal("没有识别记录时不应归零")
	}
}

func TestRiskPenalty(t *testing.T) {
	clean := CalculateScore(activeStats())

	reported := activeStats()
	reported.Greysafe = &domain.GreysafeStats{Reports: []domain.GreysafeReport{{ID: "1"}}}
	if got := CalculateScore(reported); math.Abs(got-clean/2) > 1e-9 {
		t.Fatalf("一条举报应使得分减半: %v vs %v", got, clean)
	}

	risky := activeStats()
	risky.Hapi = &domain.HapiStats{Risk: 10}
	if got := CalculateScore(risky); math.Abs(got-clean/2) > 1e-9 {
		t.Fatalf("HAPI 最高风险应使得分减半: %v vs %v", got, clean)
	}

	safe := activeStats()
	safe.Hapi = &domain.HapiStats{Risk: 0}
	if got := CalculateScore(safe); got != clean {
		t.Fatalf("HAPI 零风险不应改变得分: %v vs %v", got, clean)
	}
}

func TestMintedScoreRounding(t *testing.T) {
	cases := map[float64]uint16{0: 0, 1: 10000, 0.1234: 1234, 0.56789: 5679, 0.99994: 9999, 1.5: 10000, -0.2: 0}
	for in, want := range cases {
		if got := MintedScore(in); got != want {
			t.Fatalf("MintedScore(%v) = %d, 期望 %d", in, got, want)
		}
	}
	if MintedScore(math.NaN()) != 0 {
		t.Fatal("NaN 应视为 0")
	}
}

func TestParseWeights(t *testing.T) {
	w, err := ParseWeights(map[string]float64{"balance": 3, "Age": 1})
	if err != nil {
		t.Fatalf("解析权重失败: %v", err)
	}
	if w[CategoryBalance] != 0.75 || w[CategoryAge] != 0.25 {
		t.Fatalf("权重未归一化: %#v", w)
	}

	if _, err := ParseWeights(map[string]float64{"luck": 1}); err == nil {
		t.Fatal("未知类别应报错")
	}
	if _, err := ParseWeights(map[string]float64{"age": -1}); err == nil {
		t.Fatal("负权重应报错")
	}
	if _, err := ParseWeights(map[string]float64{"age": 0}); err == nil {
		t.Fatal("全零权重应报错")
	}

	defaults, err := ParseWeights(nil)
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, v := range defaults {
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("默认权重之和应为 1, 实际 %v", sum)
	}
}

func TestModelUsesConfiguredWeights(t *testing.T) {
	m, err := NewModel(Weights{CategoryAge: 1})
	if err != nil {
		t.Fatal(err)
	}
	s := emptyStats()
	s.WalletAge = ageCapDays + 1
	if got := m.Score(s); got != 1 {
		t.Fatalf("仅按年龄加权且已饱和时应得 1, 实际 %v", got)
	}
}
