package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wallet-score/internal/config"
	"wallet-score/internal/domain"
	"wallet-score/internal/storage"
)

func testApp(out *bytes.Buffer) *App {
	a := NewApp(&config.Config{Export: config.ExportConfig{MaxDataPoints: 600}}, zerolog.Nop())
	a.Out = out
	return a
}

func TestReadTargets(t *testing.T) {
	input := `
# watched wallets
ethereum:0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed

Polygon:vitalik.eth
`
	targets, err := readTargets(strings.NewReader(input))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("期望 2 个目标, 实际 %d", len(targets))
	}
	if targets[1].Chain != "polygon" || targets[1].Address != "vitalik.eth" {
		t.Fatalf("目标解析不正确: %+v", targets[1])
	}

	if _, err := readTargets(strings.NewReader("ethereum-0xabc\n")); err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("格式错误应报告行号: %v", err)
	}
}

func turnover(n int) []domain.TurnoverInterval {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.TurnoverInterval, n)
	for i := range out {
		from := start.AddDate(0, i, 0)
		out[i] = domain.TurnoverInterval{
			StartDate:    from,
			EndDate:      from.AddDate(0, 1, 0),
			AmountInSum:  decimal.NewFromInt(int64(i)),
			AmountOutSum: decimal.NewFromInt(1),
			AmountSum:    decimal.NewFromInt(int64(i + 1)),
			Count:        i + 1,
		}
	}
	return out
}

func TestDownsampleIntervals(t *testing.T) {
	all := turnover(10)
	if got := downsampleIntervals(all, 20); len(got) != 10 {
		t.Fatalf("不足上限时不应降采样: %d", len(got))
	}
	got := downsampleIntervals(all, 4)
	if len(got) != 4 {
		t.Fatalf("降采样数量不正确: %d", len(got))
	}
	if !got[0].StartDate.Equal(all[0].StartDate) || !got[3].StartDate.Equal(all[9].StartDate) {
		t.Fatal("降采样应保留首尾区间")
	}
	if got := downsampleIntervals(all, 1); len(got) != 1 || got[0].Count != 10 {
		t.Fatalf("上限为 1 时应保留最新区间: %+v", got)
	}
}

func TestWriteTurnoverCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "turnover.csv")
	if err := writeTurnoverCSV(path, turnover(3)); err != nil {
		t.Fatalf("写入 CSV 失败: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("期望表头加 3 行, 实际 %d", len(rows))
	}
	if rows[0][0] != "start_date" || rows[3][5] != "3" || rows[2][3] != "1" {
		t.Fatalf("CSV 内容不正确: %v", rows)
	}
}

func TestSimulate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	stats := `{"nativeBalanceUSD":"2500","walletAge":400,"totalTransactions":120,"tokensHolding":4}`
	if err := os.WriteFile(path, []byte(stats), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	a := testApp(&out)
	if err := a.Simulate(context.Background(), SimulateOptions{StatsPath: path}); err != nil {
		t.Fatalf("模拟评分失败: %v", err)
	}
	text := out.String()
	for _, want := range []string{"Category", "balance", "age", "score", "minted"} {
		if !strings.Contains(text, want) {
			t.Fatalf("输出缺少 %q:\n%s", want, text)
		}
	}

	prev := 0.1
	if err := a.Simulate(context.Background(), SimulateOptions{StatsPath: path, PreviousScore: &prev}); err == nil {
		t.Fatal("告警未启用时应报错")
	}
	if err := a.Simulate(context.Background(), SimulateOptions{StatsPath: filepath.Join(t.TempDir(), "missing.json")}); err == nil {
		t.Fatal("文件不存在应报错")
	}
}

func TestExportRequiresOutput(t *testing.T) {
	var out bytes.Buffer
	if err := testApp(&out).Export(context.Background(), ExportOptions{Chain: "ethereum"}); err == nil {
		t.Fatal("未指定输出路径应报错")
	}
}

type fakeHistory struct {
	recentLimit int
	wallet      string
	chain       string
	records     []storage.ScoringRecord
}

func (f *fakeHistory) ListScoringRecords(_ context.Context, address, chainName string, limit int) ([]storage.ScoringRecord, error) {
	f.wallet, f.chain = address, chainName
	return f.records, nil
}

func (f *fakeHistory) ListRecentRecords(_ context.Context, limit int) ([]storage.ScoringRecord, error) {
	f.recentLimit = limit
	return f.records, nil
}

func TestHistoryListsRecentRecordsWithoutWallet(t *testing.T) {
	var out bytes.Buffer
	a := testApp(&out)
	store := &fakeHistory{records: []storage.ScoringRecord{{
		Address:     "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		Chain:       "polygon",
		ScoreType:   domain.ScoreTypeFinance,
		Score:       0.25,
		MintedScore: 2500,
		Version:     3,
	}}}

	if err := a.printHistory(context.Background(), store, HistoryOptions{Limit: 7}); err != nil {
		t.Fatalf("列出最近记录失败: %v", err)
	}
	if store.recentLimit != 7 || store.wallet != "" {
		t.Fatalf("未指定钱包时应查询最近记录: %+v", store)
	}
	text := out.String()
	for _, want := range []string{"polygon", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "0.2500", "2500"} {
		if !strings.Contains(text, want) {
			t.Fatalf("输出缺少 %q:\n%s", want, text)
		}
	}

	if err := a.History(context.Background(), HistoryOptions{Chain: "ethereum", Limit: 1}); err == nil {
		t.Fatal("只给出链而没有地址应报错")
	}
}
