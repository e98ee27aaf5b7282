// Package kpi computes the dashboard metric set from validated
// transactions. Everything here is pure: the same rows, window, and
// home country always yield the same Summary.
package kpi

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/maverick250/aml-interactive-dashboard/internal/core"
)

// FilterWindow returns the rows whose timestamp falls inside the
// inclusive window, preserving input order.
func FilterWindow(rows []core.Transaction, win core.Window) []core.Transaction {
	out := make([]core.Transaction, 0, len(rows))
	for _, tx := range rows {
		if win.Contains(tx.Timestamp) {
			out = append(out, tx)
		}
	}
	return out
}

// Aggregate computes the full KPI summary for the given rows in one
// pass. Rows are expected to be window-filtered already; win and home
// are recorded on the summary for display and narrative payloads.
//
// Classification rules:
//   - amount > 0 is a deposit, amount < 0 a withdrawal; zero amounts
//     belong to neither class and are counted in ZeroAmountCount.
//   - domestic/international compares the counterparty country code to
//     home, case-insensitive and whitespace-trimmed.
//   - channel grouping is literal (no case or whitespace folding).
func Aggregate(rows []core.Transaction, win core.Window, home string) core.Summary {
	s := core.Summary{
		HomeCountry: home,
		Window:      win,
		RowCount:    len(rows),
		Empty:       len(rows) == 0,
	}
	s.Deposits.Value = decimal.Zero
	s.Withdrawals.Value = decimal.Zero
	s.Domestic.Value = decimal.Zero
	s.International.Value = decimal.Zero

	type channelAgg struct {
		count int
		value decimal.Decimal
	}
	channels := map[string]*channelAgg{}
	var channelOrder []string

	for i := range rows {
		tx := rows[i]
		abs := tx.Amount.Abs()

		switch {
		case tx.IsDeposit():
			s.Deposits.Count++
			s.Deposits.Value = s.Deposits.Value.Add(tx.Amount)
			if s.LargestDeposit == nil || tx.Amount.GreaterThan(s.LargestDeposit.Amount) {
				s.LargestDeposit = &rows[i]
			}
		case tx.IsWithdrawal():
			s.Withdrawals.Count++
			s.Withdrawals.Value = s.Withdrawals.Value.Add(abs)
			if s.LargestWithdrawal == nil || tx.Amount.LessThan(s.LargestWithdrawal.Amount) {
				s.LargestWithdrawal = &rows[i]
			}
		default:
			s.ZeroAmountCount++
		}

		s.Hourly[tx.Timestamp.Hour()]++

		if tx.IsDomestic(home) {
			s.Domestic.Count++
			s.Domestic.Value = s.Domestic.Value.Add(abs)
		} else {
			s.International.Count++
			s.International.Value = s.International.Value.Add(abs)
		}

		agg, ok := channels[tx.Channel]
		if !ok {
			agg = &channelAgg{value: decimal.Zero}
			channels[tx.Channel] = agg
			channelOrder = append(channelOrder, tx.Channel)
		}
		agg.count++
		agg.value = agg.value.Add(abs)
	}

	s.Channels = make([]core.ChannelStat, 0, len(channels))
	for _, name := range channelOrder {
		agg := channels[name]
		s.Channels = append(s.Channels, core.ChannelStat{
			Channel: name,
			Count:   agg.count,
			Value:   agg.value,
		})
	}
	// Descending by total value; ties resolved by name so the order is
	// stable across runs.
	sort.SliceStable(s.Channels, func(i, j int) bool {
		if !s.Channels[i].Value.Equal(s.Channels[j].Value) {
			return s.Channels[i].Value.GreaterThan(s.Channels[j].Value)
		}
		return s.Channels[i].Channel < s.Channels[j].Channel
	})

	return s
}
