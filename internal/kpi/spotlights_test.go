package kpi

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maverick250/aml-interactive-dashboard/internal/core"
)

func TestImbalanceFlagsHighWithdrawalRatio(t *testing.T) {
	rows := []core.Transaction{
		tx("2024-03-01T09:00:00", "100.00", "ZA", "online"),
		tx("2024-03-01T10:00:00", "-130.00", "ZA", "online"),
	}

	spots := ComputeSpotlights(rows, rows)
	assert.True(t, spots.Imbalance.Flag)
	assert.InDelta(t, 1.3, spots.Imbalance.Ratio, 0.0001)
	assert.False(t, spots.Imbalance.NoDeposits)
}

func TestImbalanceRatioAtThresholdDoesNotFlag(t *testing.T) {
	rows := []core.Transaction{
		tx("2024-03-01T09:00:00", "100.00", "ZA", "online"),
		tx("2024-03-01T10:00:00", "-120.00", "ZA", "online"),
	}

	spots := ComputeSpotlights(rows, rows)
	assert.False(t, spots.Imbalance.Flag)
}

func TestImbalanceWithNoDepositsFlags(t *testing.T) {
	rows := []core.Transaction{
		tx("2024-03-01T09:00:00", "-75.00", "ZA", "online"),
	}

	spots := ComputeSpotlights(rows, rows)
	assert.True(t, spots.Imbalance.Flag)
	assert.True(t, spots.Imbalance.NoDeposits)
}

func TestImbalanceEmptyWindowRaisesNothing(t *testing.T) {
	spots := ComputeSpotlights(nil, sampleRows())
	assert.False(t, spots.Imbalance.Flag)
	assert.False(t, spots.Burst.Flag)
}

func TestBurstFlagsSpikeAgainstBaseline(t *testing.T) {
	// Baseline history: one transaction per hour-of-day, median 1.
	var history []core.Transaction
	for h := 0; h < 24; h++ {
		history = append(history, tx(fmt.Sprintf("2024-02-01T%02d:00:00", h), "10.00", "ZA", "online"))
	}

	// Four transactions in one hour inside the window: score 4 > 3.
	var windowed []core.Transaction
	for i := 0; i < 4; i++ {
		windowed = append(windowed, tx(fmt.Sprintf("2024-02-01T09:%02d:00", i), "10.00", "ZA", "online"))
	}
	history = append(history, windowed...)

	spots := ComputeSpotlights(windowed, history)
	assert.True(t, spots.Burst.Flag)
	assert.Greater(t, spots.Burst.Score, 3.0)
}

func TestBurstQuietWindowDoesNotFlag(t *testing.T) {
	rows := sampleRows()
	spots := ComputeSpotlights(rows, rows)
	assert.False(t, spots.Burst.Flag)
	assert.LessOrEqual(t, spots.Burst.Score, 3.0)
}

func TestBurstIgnoresHistoryOlderThanLookback(t *testing.T) {
	windowed := []core.Transaction{
		tx("2024-06-01T09:00:00", "10.00", "ZA", "online"),
		tx("2024-06-01T09:10:00", "10.00", "ZA", "online"),
	}

	// Dense history from a year earlier must not raise the baseline.
	var history []core.Transaction
	for i := 0; i < 50; i++ {
		history = append(history, tx("2023-01-01T09:00:00", "10.00", "ZA", "online"))
	}
	history = append(history, windowed...)

	spots := ComputeSpotlights(windowed, history)
	// Only the two in-window transactions survive the cutoff, so the
	// baseline equals the window peak.
	assert.InDelta(t, 1.0, spots.Burst.Score, 0.01)
}

func TestMedianCounts(t *testing.T) {
	assert.Equal(t, 0.0, medianCounts(map[int]int{}))
	assert.Equal(t, 3.0, medianCounts(map[int]int{1: 3}))
	assert.Equal(t, 2.5, medianCounts(map[int]int{1: 2, 2: 3}))
	assert.Equal(t, 2.0, medianCounts(map[int]int{1: 1, 2: 2, 3: 9}))
}
