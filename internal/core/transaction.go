package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultHomeCountry is the home jurisdiction used for the
// domestic/international split when none is configured.
const DefaultHomeCountry = "ZA"

type (
	// Transaction is one validated row of an uploaded statement.
	// Amount sign carries the direction: positive = deposit,
	// negative = withdrawal, zero = neither.
	Transaction struct {
		Timestamp   time.Time       `json:"timestamp"`
		Amount      decimal.Decimal `json:"amount"`
		CountryCode string          `json:"country_code"` // 2-letter counterparty country code
		Channel     string          `json:"channel"`      // free-text channel label, grouped literally
	}

	// Window is an inclusive [Start, End] date range chosen by the
	// analyst. End is interpreted as end-of-day so every timestamp
	// on the end date is inside the window.
	Window struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	}
)

var (
	ErrWindowInverted = errors.New("window end before start")
	ErrWindowZero     = errors.New("window dates cannot be zero")
)

// IsDeposit reports whether the transaction amount is strictly positive.
func (t Transaction) IsDeposit() bool {
	return t.Amount.Sign() > 0
}

// IsWithdrawal reports whether the transaction amount is strictly negative.
func (t Transaction) IsWithdrawal() bool {
	return t.Amount.Sign() < 0
}

// IsDomestic compares the counterparty country against home using
// case-insensitive, whitespace-trimmed equality.
func (t Transaction) IsDomestic(home string) bool {
	return strings.EqualFold(strings.TrimSpace(t.CountryCode), strings.TrimSpace(home))
}

// NewWindow builds a window from two dates, normalizing Start to the
// beginning of its day and End to the last nanosecond of its day.
func NewWindow(start, end time.Time) Window {
	return Window{
		Start: startOfDay(start),
		End:   endOfDay(end),
	}
}

func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return ErrWindowZero
	}
	if w.End.Before(w.Start) {
		return ErrWindowInverted
	}
	return nil
}

// Contains reports whether ts falls inside the inclusive window.
func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && !ts.After(w.End)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
