package kpi

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maverick250/aml-interactive-dashboard/internal/core"
)

const (
	burstThreshold     = 3.0
	imbalanceThreshold = 1.2
	historyLookback    = 90 * 24 * time.Hour
)

// ComputeSpotlights evaluates the deterministic alert rules over the
// windowed rows, using the full upload as baseline history.
//
// Burst compares the busiest hour inside the window against the median
// hourly activity over the trailing 90 days of history (ending at the
// window's latest timestamp). Imbalance compares total withdrawal
// value against total deposit value.
func ComputeSpotlights(windowed, history []core.Transaction) core.Spotlights {
	return core.Spotlights{
		Burst:     burstSpotlight(windowed, history),
		Imbalance: imbalanceSpotlight(windowed),
	}
}

func burstSpotlight(windowed, history []core.Transaction) core.BurstSpotlight {
	if len(windowed) == 0 {
		return core.BurstSpotlight{}
	}

	var winMax int
	var latest time.Time
	winCounts := map[int]int{}
	for _, tx := range windowed {
		h := tx.Timestamp.Hour()
		winCounts[h]++
		if winCounts[h] > winMax {
			winMax = winCounts[h]
		}
		if tx.Timestamp.After(latest) {
			latest = tx.Timestamp
		}
	}

	histStart := latest.Add(-historyLookback)
	histCounts := map[int]int{}
	for _, tx := range history {
		if tx.Timestamp.Before(histStart) {
			continue
		}
		histCounts[tx.Timestamp.Hour()]++
	}

	baseline := medianCounts(histCounts)
	if baseline < 1 {
		baseline = 1
	}
	score := float64(winMax) / baseline
	return core.BurstSpotlight{Flag: score > burstThreshold, Score: score}
}

func imbalanceSpotlight(windowed []core.Transaction) core.ImbalanceSpotlight {
	dep := decimal.Zero
	wd := decimal.Zero
	for _, tx := range windowed {
		switch {
		case tx.IsDeposit():
			dep = dep.Add(tx.Amount)
		case tx.IsWithdrawal():
			wd = wd.Add(tx.Amount.Abs())
		}
	}

	if dep.IsZero() {
		// Ratio undefined. Flag only when there is withdrawal activity
		// with nothing coming in; an empty window raises nothing.
		return core.ImbalanceSpotlight{
			Flag:       !wd.IsZero(),
			NoDeposits: true,
		}
	}

	ratio, _ := wd.Div(dep).Float64()
	return core.ImbalanceSpotlight{Flag: ratio > imbalanceThreshold, Ratio: ratio}
}

// medianCounts returns the median of the map values, averaging the two
// middle values for even-sized sets. Zero when the map is empty.
func medianCounts(counts map[int]int) float64 {
	if len(counts) == 0 {
		return 0
	}
	vals := make([]int, 0, len(counts))
	for _, v := range counts {
		vals = append(vals, v)
	}
	sort.Ints(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return float64(vals[mid])
	}
	return float64(vals[mid-1]+vals[mid]) / 2
}
