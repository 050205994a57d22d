package models

// WatchlistEntry maps a ticker symbol to its display name
type WatchlistEntry struct {
	Symbol string `json:"symbol" yaml:"symbol"`
	Name   string `json:"name" yaml:"name"`
}

// Watchlist is the ordered set of symbols the dashboard tracks
type Watchlist []WatchlistEntry

// Symbols returns the watchlist symbols in configured order
func (w Watchlist) Symbols() []string {
	symbols := make([]string, 0, len(w))
	for _, e := range w {
		symbols = append(symbols, e.Symbol)
	}
	return symbols
}

// Name returns the display name for symbol, or the symbol itself if unknown
func (w Watchlist) Name(symbol string) string {
	for _, e := range w {
		if e.Symbol == symbol && e.Name != "" {
			return e.Name
		}
	}
	return symbol
}

// Contains reports whether symbol is on the watchlist
func (w Watchlist) Contains(symbol string) bool {
	for _, e := range w {
		if e.Symbol == symbol {
			return true
		}
	}
	return false
}

// Label renders an entry the way the ticker dropdowns show it, e.g. "AAPL (Apple)"
func (e WatchlistEntry) Label() string {
	if e.Name == "" {
		return e.Symbol
	}
	return e.Symbol + " (" + e.Name + ")"
}
