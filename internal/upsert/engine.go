// Package upsert appends freshly fetched quotes to a quote table, skipping
// rows that are already stored. Stored rows are never updated or deleted.
package upsert

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/trogers1052/stock-dashboard/internal/config"
	"github.com/trogers1052/stock-dashboard/internal/database"
	"github.com/trogers1052/stock-dashboard/internal/models"
)

// Mode decides when a fetched row counts as already stored
type Mode int

const (
	// MatchRow treats a row as stored when an existing row has the same
	// date and identical values. A changed bar for a known date is appended.
	MatchRow Mode = iota
	// MatchDate treats a row as stored when any existing row has the same
	// date. The first write for a date wins.
	MatchDate
	// MatchValues ignores dates and treats a row as stored when any
	// existing row for the symbol has identical values. A new trading day
	// whose bar repeats an older bar exactly is dropped.
	MatchValues
)

// ParseMode maps a configuration value to a Mode
func ParseMode(s string) (Mode, error) {
	switch s {
	case config.DedupRow, "":
		return MatchRow, nil
	case config.DedupDate:
		return MatchDate, nil
	case config.DedupValues:
		return MatchValues, nil
	default:
		return 0, fmt.Errorf("unknown dedup mode %q", s)
	}
}

func (m Mode) String() string {
	switch m {
	case MatchDate:
		return config.DedupDate
	case MatchValues:
		return config.DedupValues
	default:
		return config.DedupRow
	}
}

// Sessions hands out a QuoteStore scoped to one unit of work
type Sessions interface {
	QuoteSession(ctx context.Context, fn func(database.QuoteStore) error) error
}

// Result summarises one Upsert call
type Result struct {
	Inserted []models.Quote
	Skipped  int
}

// Engine deduplicates and appends quotes
type Engine struct {
	sessions Sessions
	mode     Mode
	logger   logrus.FieldLogger
}

// NewEngine creates a new Engine
func NewEngine(sessions Sessions, mode Mode, logger logrus.FieldLogger) *Engine {
	return &Engine{
		sessions: sessions,
		mode:     mode,
		logger:   logger,
	}
}

// Mode returns the engine's dedup mode
func (e *Engine) Mode() Mode {
	return e.mode
}

// Upsert appends every row of quotes that is not already stored in table.
// Rows are compared and inserted in the table's projection, so a value the
// table has no column for never makes a row look new. Existing rows are
// loaded once per symbol; each insert commits on its own, so a failure
// part-way leaves earlier inserts in place.
func (e *Engine) Upsert(ctx context.Context, table database.Table, quotes []models.Quote) (Result, error) {
	var result Result
	if len(quotes) == 0 {
		return result, nil
	}

	err := e.sessions.QuoteSession(ctx, func(store database.QuoteStore) error {
		if err := store.EnsureQuoteTable(ctx, table); err != nil {
			return err
		}

		existing := make(map[string][]models.Quote)
		for i := range quotes {
			q := table.Project(quotes[i])

			stored, loaded := existing[q.Symbol]
			if !loaded {
				rows, err := store.QuotesBySymbol(ctx, table, q.Symbol)
				if err != nil {
					return err
				}
				stored = rows
			}

			if e.isStored(&q, stored) {
				result.Skipped++
				existing[q.Symbol] = stored
				continue
			}

			if err := store.InsertQuote(ctx, table, &q); err != nil {
				return err
			}
			result.Inserted = append(result.Inserted, q)
			existing[q.Symbol] = append(stored, q)

			e.logger.WithFields(logrus.Fields{
				"table":  table.String(),
				"symbol": q.Symbol,
				"date":   q.DateKey(),
			}).Debug("Inserted quote")
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("failed to upsert into %s: %w", table, err)
	}

	e.logger.WithFields(logrus.Fields{
		"table":    table.String(),
		"inserted": len(result.Inserted),
		"skipped":  result.Skipped,
		"mode":     e.mode.String(),
	}).Info("Upsert finished")
	return result, nil
}

func (e *Engine) isStored(q *models.Quote, stored []models.Quote) bool {
	key := q.DateKey()
	for i := range stored {
		s := &stored[i]
		switch e.mode {
		case MatchDate:
			if s.DateKey() == key {
				return true
			}
		case MatchValues:
			if q.SameValues(s) {
				return true
			}
		default:
			if s.DateKey() == key && q.SameValues(s) {
				return true
			}
		}
	}
	return false
}
