package stats

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wallet-score/internal/domain"
	"wallet-score/internal/units"
)

// Flow is value moving into or out of the wallet at one instant, in token units.
type Flow struct {
	At  time.Time
	In  decimal.Decimal
	Out decimal.Decimal
}

func nativeFlows(txs, internal []domain.RawTransaction, address string, decimals int32) []Flow {
	flows := make([]Flow, 0, len(txs)+len(internal))
	add := func(tx domain.RawTransaction) {
		if tx.IsError {
			return
		}
		amount := units.ToNative(tx.Value, decimals)
		f := Flow{At: tx.Timestamp, In: decimal.Zero, Out: decimal.Zero}
		if strings.EqualFold(tx.To, address) {
			f.In = amount
		}
		if strings.EqualFold(tx.From, address) {
			f.Out = amount
		}
		flows = append(flows, f)
	}
	for _, tx := range txs {
		add(tx)
	}
	for _, tx := range internal {
		add(tx)
	}
	sortFlows(flows)
	return flows
}

func tokenFlows(events []domain.TokenTransferEvent, address string, decimals int32) []Flow {
	flows := make([]Flow, 0, len(events))
	for _, e := range events {
		amount := units.ToNative(e.Value, decimals)
		f := Flow{At: e.Timestamp, In: decimal.Zero, Out: decimal.Zero}
		if strings.EqualFold(e.To, address) {
			f.In = amount
		}
		if strings.EqualFold(e.From, address) {
			f.Out = amount
		}
		flows = append(flows, f)
	}
	sortFlows(flows)
	return flows
}

func sortFlows(flows []Flow) {
	sort.SliceStable(flows, func(i, j int) bool { return flows[i].At.Before(flows[j].At) })
}

// TurnoverIntervals splits [first, now] into consecutive calendar-month windows.
// first is the earliest transaction, failed ones included; an earlier flow or a zero
// first moves the span back to that flow. Each window starts where the previous one
// ended and the last one ends at now. flows must be sorted by time.
func TurnoverIntervals(first time.Time, flows []Flow, now time.Time) []domain.TurnoverInterval {
	if len(flows) > 0 && (first.IsZero() || flows[0].At.Before(first)) {
		first = flows[0].At
	}
	if first.IsZero() {
		return nil
	}

	start := first.UTC()
	end := now.UTC()
	if end.Before(start) {
		end = start
	}

	intervals := make([]domain.TurnoverInterval, 0)
	for s := start; ; {
		e := s.AddDate(0, 1, 0)
		last := !e.Before(end)
		if last {
			e = end
		}
		intervals = append(intervals, domain.TurnoverInterval{
			StartDate:    s,
			EndDate:      e,
			AmountSum:    decimal.Zero,
			AmountInSum:  decimal.Zero,
			AmountOutSum: decimal.Zero,
		})
		if last {
			break
		}
		s = e
	}

	i := 0
	for _, f := range flows {
		for i < len(intervals)-1 && !f.At.Before(intervals[i].EndDate) {
			i++
		}
		iv := &intervals[i]
		iv.AmountInSum = iv.AmountInSum.Add(f.In)
		iv.AmountOutSum = iv.AmountOutSum.Add(f.Out)
		iv.AmountSum = iv.AmountInSum.Sub(iv.AmountOutSum)
		iv.Count++
	}
	return intervals
}

// balanceChangeSince sums the net flow of the windows that end after since.
func balanceChangeSince(intervals []domain.TurnoverInterval, since time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, iv := range intervals {
		if iv.EndDate.After(since) {
			total = total.Add(iv.AmountSum)
		}
	}
	return total
}

func turnover(flows []Flow) decimal.Decimal {
	total := decimal.Zero
	for _, f := range flows {
		total = total.Add(f.In).Add(f.Out)
	}
	return total
}
