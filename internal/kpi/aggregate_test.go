package kpi

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maverick250/aml-interactive-dashboard/internal/core"
)

func tx(ts string, amount string, country, channel string) core.Transaction {
	parsed, err := time.Parse("2006-01-02T15:04:05", ts)
	if err != nil {
		panic(err)
	}
	return core.Transaction{
		Timestamp:   parsed,
		Amount:      decimal.RequireFromString(amount),
		CountryCode: country,
		Channel:     channel,
	}
}

func sampleRows() []core.Transaction {
	return []core.Transaction{
		tx("2024-03-01T09:15:00", "1500.00", "ZA", "branch"),
		tx("2024-03-01T09:45:00", "-850.00", "GB", "online"),
		tx("2024-03-01T14:00:00", "200.00", "za", "online"),
		tx("2024-03-02T09:30:00", "-50.00", "US", "atm"),
		tx("2024-03-02T23:59:59", "0.00", "ZA", "atm"),
	}
}

func window(start, end string) core.Window {
	s, _ := time.Parse("2006-01-02", start)
	e, _ := time.Parse("2006-01-02", end)
	return core.NewWindow(s, e)
}

func TestFilterWindowIsInclusive(t *testing.T) {
	rows := sampleRows()
	win := window("2024-03-02", "2024-03-02")

	got := FilterWindow(rows, win)
	require.Len(t, got, 2)
	assert.Equal(t, "-50", got[0].Amount.String())
	assert.Equal(t, "0", got[1].Amount.String())
}

func TestAggregateDepositsAndWithdrawals(t *testing.T) {
	win := window("2024-03-01", "2024-03-02")
	s := Aggregate(sampleRows(), win, "ZA")

	assert.Equal(t, 2, s.Deposits.Count)
	assert.Equal(t, "1700", s.Deposits.Value.String())

	// Withdrawal totals are reported as absolute values.
	assert.Equal(t, 2, s.Withdrawals.Count)
	assert.Equal(t, "900", s.Withdrawals.Value.String())

	assert.Equal(t, 1, s.ZeroAmountCount)
	assert.Equal(t, 5, s.RowCount)
	assert.False(t, s.Empty)

	// Every row belongs to exactly one class.
	assert.Equal(t, s.RowCount, s.Deposits.Count+s.Withdrawals.Count+s.ZeroAmountCount)
}

func TestAggregateHourlyBuckets(t *testing.T) {
	win := window("2024-03-01", "2024-03-02")
	s := Aggregate(sampleRows(), win, "ZA")

	assert.Equal(t, 3, s.Hourly[9])
	assert.Equal(t, 1, s.Hourly[14])
	assert.Equal(t, 1, s.Hourly[23])

	total := 0
	for _, c := range s.Hourly {
		total += c
	}
	assert.Equal(t, s.RowCount, total)
}

func TestAggregateDomesticSplitFoldsCase(t *testing.T) {
	win := window("2024-03-01", "2024-03-02")
	s := Aggregate(sampleRows(), win, "ZA")

	// "za" counts as domestic; split covers every row.
	assert.Equal(t, 3, s.Domestic.Count)
	assert.Equal(t, 2, s.International.Count)
	assert.Equal(t, s.RowCount, s.Domestic.Count+s.International.Count)

	assert.Equal(t, "1700", s.Domestic.Value.String())
	assert.Equal(t, "900", s.International.Value.String())
}

func TestAggregateExtremes(t *testing.T) {
	win := window("2024-03-01", "2024-03-02")
	s := Aggregate(sampleRows(), win, "ZA")

	require.NotNil(t, s.LargestDeposit)
	assert.Equal(t, "1500", s.LargestDeposit.Amount.String())

	// Largest withdrawal keeps its sign; largest means most negative.
	require.NotNil(t, s.LargestWithdrawal)
	assert.Equal(t, "-850", s.LargestWithdrawal.Amount.String())
}

func TestAggregateExtremeTiesKeepFirstInFileOrder(t *testing.T) {
	rows := []core.Transaction{
		tx("2024-03-01T08:00:00", "100.00", "ZA", "branch"),
		tx("2024-03-01T09:00:00", "100.00", "GB", "online"),
	}
	s := Aggregate(rows, window("2024-03-01", "2024-03-01"), "ZA")

	require.NotNil(t, s.LargestDeposit)
	assert.Equal(t, 8, s.LargestDeposit.Timestamp.Hour())
}

func TestAggregateChannelsSortedByValueDesc(t *testing.T) {
	win := window("2024-03-01", "2024-03-02")
	s := Aggregate(sampleRows(), win, "ZA")

	require.Len(t, s.Channels, 3)
	assert.Equal(t, "branch", s.Channels[0].Channel)
	assert.Equal(t, "1500", s.Channels[0].Value.String())
	assert.Equal(t, "online", s.Channels[1].Channel)
	assert.Equal(t, "1050", s.Channels[1].Value.String())
	assert.Equal(t, "atm", s.Channels[2].Channel)
	assert.Equal(t, 2, s.Channels[2].Count)
}

func TestAggregateChannelTiesBreakByName(t *testing.T) {
	rows := []core.Transaction{
		tx("2024-03-01T08:00:00", "10.00", "ZA", "zebra"),
		tx("2024-03-01T09:00:00", "10.00", "ZA", "atm"),
	}
	s := Aggregate(rows, window("2024-03-01", "2024-03-01"), "ZA")

	require.Len(t, s.Channels, 2)
	assert.Equal(t, "atm", s.Channels[0].Channel)
	assert.Equal(t, "zebra", s.Channels[1].Channel)
}

func TestAggregateEmptyWindowYieldsZeroSummary(t *testing.T) {
	win := window("2030-01-01", "2030-01-02")
	windowed := FilterWindow(sampleRows(), win)
	s := Aggregate(windowed, win, "ZA")

	assert.True(t, s.Empty)
	assert.Equal(t, 0, s.RowCount)
	assert.Equal(t, 0, s.Deposits.Count)
	assert.True(t, s.Deposits.Value.IsZero())
	assert.Nil(t, s.LargestDeposit)
	assert.Nil(t, s.LargestWithdrawal)
	assert.Empty(t, s.Channels)
	for _, c := range s.Hourly {
		assert.Equal(t, 0, c)
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	win := window("2024-03-01", "2024-03-02")
	a := Aggregate(sampleRows(), win, "ZA")
	b := Aggregate(sampleRows(), win, "ZA")

	assert.Equal(t, a.Channels, b.Channels)
	assert.Equal(t, a.Hourly, b.Hourly)
	assert.True(t, a.Deposits.Value.Equal(b.Deposits.Value))
}
