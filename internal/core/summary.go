package core

import "github.com/shopspring/decimal"

type (
	// ClassTotal is a count + total value pair for one transaction class.
	// Value is reported as an absolute amount for display.
	ClassTotal struct {
		Count int             `json:"count"`
		Value decimal.Decimal `json:"value"`
	}

	// ChannelStat aggregates one distinct channel label.
	ChannelStat struct {
		Channel string          `json:"channel"`
		Count   int             `json:"count"`
		Value   decimal.Decimal `json:"value"`
	}

	// BurstSpotlight flags an hourly activity burst relative to the
	// trailing-history baseline.
	BurstSpotlight struct {
		Flag  bool    `json:"flag"`
		Score float64 `json:"score"`
	}

	// ImbalanceSpotlight flags withdrawal value outpacing deposits.
	// NoDeposits marks the degenerate case where the ratio is undefined
	// because the window holds withdrawals but no deposits.
	ImbalanceSpotlight struct {
		Flag       bool    `json:"flag"`
		Ratio      float64 `json:"ratio"`
		NoDeposits bool    `json:"no_deposits,omitempty"`
	}

	Spotlights struct {
		Burst     BurstSpotlight     `json:"burst"`
		Imbalance ImbalanceSpotlight `json:"imbalance"`
	}

	// Summary is the full KPI set for one windowed dataset. It is a
	// pure function of (rows, window, home country); nothing here is
	// mutated after aggregation.
	Summary struct {
		HomeCountry string `json:"home_country"`
		Window      Window `json:"window"`

		RowCount        int `json:"row_count"`
		ZeroAmountCount int `json:"zero_amount_count"`

		Deposits    ClassTotal `json:"deposits"`
		Withdrawals ClassTotal `json:"withdrawals"`

		// Hourly always holds all 24 buckets, zero-filled.
		Hourly [24]int `json:"hourly"`

		Domestic      ClassTotal `json:"domestic"`
		International ClassTotal `json:"international"`

		// Extremes are nil when the window has no qualifying rows.
		LargestDeposit    *Transaction `json:"largest_deposit,omitempty"`
		LargestWithdrawal *Transaction `json:"largest_withdrawal,omitempty"`

		// Channels is sorted by descending total value.
		Channels []ChannelStat `json:"channels"`

		// Empty marks a window that matched zero rows. Not an error.
		Empty bool `json:"empty"`
	}
)
