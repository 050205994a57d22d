package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-day format used for quote dates
const DateLayout = "2006-01-02"

// Quote represents one trading day of OHLCV data for a symbol
type Quote struct {
	Date          time.Time           `json:"date"`
	Symbol        string              `json:"symbol"`
	Open          decimal.Decimal     `json:"open"`
	High          decimal.Decimal     `json:"high"`
	Low           decimal.Decimal     `json:"low"`
	Close         decimal.Decimal     `json:"close"`
	AdjustedClose decimal.NullDecimal `json:"adjusted_close"`
	Volume        int64               `json:"volume"`
}

// DateKey returns the quote's calendar day as YYYY-MM-DD
func (q *Quote) DateKey() string {
	return q.Date.Format(DateLayout)
}

// SameValues reports whether both quotes carry identical prices and volume.
// Dates are not compared.
func (q *Quote) SameValues(other *Quote) bool {
	if q.Symbol != other.Symbol || q.Volume != other.Volume {
		return false
	}
	if !q.Open.Equal(other.Open) || !q.High.Equal(other.High) ||
		!q.Low.Equal(other.Low) || !q.Close.Equal(other.Close) {
		return false
	}
	if q.AdjustedClose.Valid != other.AdjustedClose.Valid {
		return false
	}
	return !q.AdjustedClose.Valid || q.AdjustedClose.Decimal.Equal(other.AdjustedClose.Decimal)
}

// Day truncates t to a UTC midnight holding the same calendar day
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a UTC calendar day
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
