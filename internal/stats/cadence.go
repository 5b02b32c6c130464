package stats

import (
	"time"

	"wallet-score/internal/domain"
)

// Cadence computes the spacing of sorted timestamps. With fewer than two
// timestamps there is no interval to measure and the NoData sentinel is returned.
func Cadence(sorted []time.Time, now time.Time) domain.TransactionCadence {
	if len(sorted) < 2 {
		return domain.TransactionCadence{NoData: true}
	}

	var lo, hi, sum float64
	first := true
	for i := 1; i < len(sorted); i++ {
		h := sorted[i].Sub(sorted[i-1]).Hours()
		if first || h < lo {
			lo = h
		}
		if first || h > hi {
			hi = h
		}
		first = false
		sum += h
	}

	monthAgo := now.AddDate(0, -1, 0)
	yearAgo := now.AddDate(-1, 0, 0)
	var lastMonth, lastYear int
	for _, ts := range sorted {
		if !ts.Before(monthAgo) {
			lastMonth++
		}
		if !ts.Before(yearAgo) {
			lastYear++
		}
	}

	return domain.TransactionCadence{
		MinHours:        lo,
		MaxHours:        hi,
		AvgHours:        sum / float64(len(sorted)-1),
		LastMonth:       lastMonth,
		LastYear:        lastYear,
		MonthsSinceLast: monthsBetween(sorted[len(sorted)-1], now),
	}
}
