package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/trogers1052/stock-dashboard/internal/models"
)

var (
	// ErrNoData is returned when the provider answers without any usable bars
	ErrNoData = errors.New("no data returned")
	// ErrSymbolNotFound is returned when the provider does not know the symbol
	ErrSymbolNotFound = errors.New("symbol not found")
)

// Fetcher retrieves daily OHLCV quotes for a single symbol
type Fetcher interface {
	// Latest returns the most recent trading day for symbol
	Latest(ctx context.Context, symbol string) ([]models.Quote, error)
	// History returns daily quotes with start <= date < end, ordered by date
	History(ctx context.Context, symbol string, start, end time.Time) ([]models.Quote, error)
	Name() string
}
