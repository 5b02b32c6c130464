package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"wallet-score/internal/domain"
	"wallet-score/internal/storage"
)

// ExportOptions hold parameters for exporting the turnover history of a wallet.
type ExportOptions struct {
	Chain     string
	Address   string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// Export renders the monthly turnover of the wallet's latest record as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	adapter, address, err := a.resolveWallet(opts.Chain, opts.Address)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	rec, err := store.LatestScoringRecord(ctx, address, adapter.Info().Name)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no scoring record for %s on %s; score it first", address, adapter.Info().Name)
	}
	if err != nil {
		return err
	}

	intervals := rec.Stats.TurnoverIntervals
	if len(intervals) == 0 {
		a.Logger.Info().Str("address", address).Msg("latest record has no turnover intervals")
		return nil
	}

	downsampled := downsampleIntervals(intervals, opts.MaxPoints)
	a.Logger.Info().
		Int("total", len(intervals)).
		Int("exported", len(downsampled)).
		Int("version", rec.Version).
		Msg("exporting turnover")

	if opts.CSVPath != "" {
		if err := writeTurnoverCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" && len(downsampled) < 2 {
		a.Logger.Warn().Msg("need at least two turnover intervals to draw a chart; skipping png")
	} else if opts.PNGPath != "" {
		title := fmt.Sprintf("%s on %s, v%d", address, adapter.Info().Name, rec.Version)
		if err := writeTurnoverPNG(opts.PNGPath, title, adapter.Info().NativeSymbol, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleIntervals(intervals []domain.TurnoverInterval, max int) []domain.TurnoverInterval {
	if max <= 0 || len(intervals) <= max {
		return intervals
	}
	if max == 1 {
		return intervals[len(intervals)-1:]
	}

	result := make([]domain.TurnoverInterval, 0, max)
	step := float64(len(intervals)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(intervals) {
			idx = len(intervals) - 1
		}
		result = append(result, intervals[idx])
	}
	return result
}

func writeTurnoverCSV(path string, intervals []domain.TurnoverInterval) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"start_date", "end_date", "amount_sum", "amount_in_sum", "amount_out_sum", "count"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, iv := range intervals {
		record := []string{
			iv.StartDate.UTC().Format(time.RFC3339),
			iv.EndDate.UTC().Format(time.RFC3339),
			iv.AmountSum.String(),
			iv.AmountInSum.String(),
			iv.AmountOutSum.String(),
			strconv.Itoa(iv.Count),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeTurnoverPNG(path, title, symbol string, intervals []domain.TurnoverInterval) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(intervals))
	in := make([]float64, len(intervals))
	out := make([]float64, len(intervals))
	count := make([]float64, len(intervals))

	for i, iv := range intervals {
		x[i] = iv.StartDate
		in[i] = iv.AmountInSum.InexactFloat64()
		out[i] = iv.AmountOutSum.InexactFloat64()
		count[i] = float64(iv.Count)
	}

	amountFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.3f")
	}
	graph := chart.Chart{
		Title:  title,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Turnover (" + symbol + ")",
			ValueFormatter: amountFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Transactions",
			ValueFormatter: chart.IntValueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Incoming",
				XValues: x,
				YValues: in,
			},
			chart.TimeSeries{
				Name:    "Outgoing",
				XValues: x,
				YValues: out,
			},
			chart.TimeSeries{
				Name:    "Transactions",
				XValues: x,
				YValues: count,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
