package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestErrorMatchesSentinelByCode(t *testing.T) {
	err := fmt.Errorf("fetch balance: %w", Upstream("etherscan", errors.New("boom")))

	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatal("包装后的错误应匹配 ErrUpstreamUnavailable")
	}
	if errors.Is(err, ErrNoData) {
		t.Fatal("不同错误码不应匹配")
	}
	if CodeOf(err) != CodeUpstreamUnavailable {
		t.Fatalf("错误码不正确: %s", CodeOf(err))
	}
	if PublicMessage(err) != "etherscan unavailable" {
		t.Fatalf("对外消息不正确: %q", PublicMessage(err))
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("错误信息应包含原因: %s", err)
	}
}

func TestCodeOfContextErrors(t *testing.T) {
	if CodeOf(context.Canceled) != CodeCanceled {
		t.Fatal("context.Canceled 应归类为 canceled")
	}
	if CodeOf(fmt.Errorf("wrap: %w", context.DeadlineExceeded)) != CodeCanceled {
		t.Fatal("DeadlineExceeded 应归类为 canceled")
	}
	if CodeOf(errors.New("other")) != CodeInternal {
		t.Fatal("未分类错误应为 internal")
	}
	if CodeOf(nil) != "" {
		t.Fatal("nil 错误码应为空")
	}
	if PublicMessage(errors.New("secret dsn")) != "internal error" {
		t.Fatal("内部错误不应泄露细节")
	}
}

func TestParseScoreType(t *testing.T) {
	cases := map[string]ScoreType{"": ScoreTypeFinance, "Finance": ScoreTypeFinance, " token ": ScoreTypeToken}
	for in, want := range cases {
		got, err := ParseScoreType(in)
		if err != nil {
			t.Fatalf("%q 解析失败: %v", in, err)
		}
		if got != want {
			t.Fatalf("%q 解析为 %s, 期望 %s", in, got, want)
		}
	}
	if _, err := ParseScoreType("nft"); !errors.Is(err, ErrMissingRequiredInput) {
		t.Fatalf("未知类型应报 missing_required_input: %v", err)
	}
	if ScoreTypeToken.Ordinal() != 1 || ScoreTypeFinance.Ordinal() != 0 {
		t.Fatal("Ordinal 不正确")
	}
}

func TestIncludedData(t *testing.T) {
	var s WalletStats
	if s.IncludedData() != 0 {
		t.Fatal("空统计不应包含任何数据块")
	}
	s.Lending = &LendingStats{}
	s.Hapi = &HapiStats{}
	s.SwapPairs = []SwapPair{{ID: "0x1"}}
	mask := s.IncludedData()
	if !mask.Has(DataLending | DataHapi | DataSwapPairs) {
		t.Fatalf("缺少数据位: %b", mask)
	}
	if mask.Has(DataGovernance) || mask.Has(DataTokenBalances) {
		t.Fatalf("多余数据位: %b", mask)
	}
}

func TestScoreResponseJSONKeepsDecimalPrecision(t *testing.T) {
	resp := ScoreResponse{
		Address: "0xabc",
		Stats: WalletStats{
			NativeBalance: decimal.RequireFromString("123456789.123456789123456789"),
			Lending:       &LendingStats{Protocol: "aave-v3", HealthFactor: decimal.RequireFromString("1.05")},
		},
		Score:       0.4321,
		MintedScore: 4321,
		Messages:    []string{},
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), `"governance"`) || strings.Contains(string(raw), `"signature"`) {
		t.Fatalf("空数据块应省略: %s", raw)
	}

	var back ScoreResponse
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Stats.NativeBalance.Equal(resp.Stats.NativeBalance) {
		t.Fatalf("精度丢失: %s", back.Stats.NativeBalance)
	}
	if back.Stats.Lending == nil || back.Stats.Lending.Protocol != "aave-v3" {
		t.Fatalf("lending 数据块丢失: %+v", back.Stats.Lending)
	}
	if back.MintedScore != 4321 {
		t.Fatalf("mintedScore = %d", back.MintedScore)
	}
}
