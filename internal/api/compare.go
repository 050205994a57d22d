package api

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-dashboard/internal/models"
)

// Field is a plottable quote attribute
type Field string

const (
	FieldOpen   Field = "open"
	FieldHigh   Field = "high"
	FieldLow    Field = "low"
	FieldClose  Field = "close"
	FieldVolume Field = "volume"
)

var defaultFields = []Field{FieldOpen, FieldClose}

var million = decimal.NewFromInt(1_000_000)

// Label is the series label shown for the field
func (f Field) Label() string {
	switch f {
	case FieldOpen:
		return "Open"
	case FieldHigh:
		return "High"
	case FieldLow:
		return "Low"
	case FieldClose:
		return "Close"
	case FieldVolume:
		return "Volume in Mil"
	}
	return string(f)
}

func (f Field) value(q *models.Quote) decimal.Decimal {
	switch f {
	case FieldOpen:
		return q.Open
	case FieldHigh:
		return q.High
	case FieldLow:
		return q.Low
	case FieldClose:
		return q.Close
	default:
		return decimal.NewFromInt(q.Volume).Div(million)
	}
}

// ParseFields parses a comma-separated field list. Empty means open and close.
func ParseFields(s string) ([]Field, error) {
	if strings.TrimSpace(s) == "" {
		return defaultFields, nil
	}

	var fields []Field
	seen := make(map[Field]bool)
	for _, part := range strings.Split(s, ",") {
		f := Field(strings.ToLower(strings.TrimSpace(part)))
		switch f {
		case FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume:
		default:
			return nil, fmt.Errorf("unknown field %q", part)
		}
		if !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	return fields, nil
}

// Point is one dated value of a series
type Point struct {
	Date  string          `json:"date"`
	Value decimal.Decimal `json:"value"`
}

// Series is one plotted line
type Series struct {
	Label  string  `json:"label"`
	Points []Point `json:"points"`
}

// Plot is one chart of the comparison view
type Plot struct {
	Title  string   `json:"title"`
	Series []Series `json:"series"`
}

// Comparison holds the two single-symbol plots and the combined plot
type Comparison struct {
	A        Plot `json:"a"`
	B        Plot `json:"b"`
	Combined Plot `json:"combined"`
}

// BuildComparison lays out the selected fields of two quote series
func BuildComparison(a string, quotesA []models.Quote, b string, quotesB []models.Quote, fields []Field) Comparison {
	cmp := Comparison{
		A:        Plot{Title: "Stock Data for " + a},
		B:        Plot{Title: "Stock Data for " + b},
		Combined: Plot{Title: a + " vs " + b},
	}
	for _, f := range fields {
		sa := series(f.Label(), quotesA, f)
		sb := series(f.Label(), quotesB, f)
		cmp.A.Series = append(cmp.A.Series, sa)
		cmp.B.Series = append(cmp.B.Series, sb)

		sa.Label = a + " " + f.Label()
		sb.Label = b + " " + f.Label()
		cmp.Combined.Series = append(cmp.Combined.Series, sa, sb)
	}
	return cmp
}

func series(label string, quotes []models.Quote, f Field) Series {
	s := Series{Label: label, Points: make([]Point, 0, len(quotes))}
	for i := range quotes {
		s.Points = append(s.Points, Point{Date: quotes[i].DateKey(), Value: f.value(&quotes[i])})
	}
	return s
}
