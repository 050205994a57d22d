// Package scheduler drives the fetch and upsert cycle over the watchlist.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/trogers1052/stock-dashboard/internal/database"
	"github.com/trogers1052/stock-dashboard/internal/marketdata"
	"github.com/trogers1052/stock-dashboard/internal/models"
	"github.com/trogers1052/stock-dashboard/internal/notice"
	"github.com/trogers1052/stock-dashboard/internal/upsert"
)

const (
	msgInserted = "New data inserted into the SQL table successfully!"
	msgNoNew    = "No new data to insert."
)

// Upserter appends quotes that are not yet stored
type Upserter interface {
	Upsert(ctx context.Context, table database.Table, quotes []models.Quote) (upsert.Result, error)
}

// Publisher announces inserted quotes
type Publisher interface {
	PublishQuoteInserted(ctx context.Context, table string, quote *models.Quote) error
}

// LatestCache remembers the newest quote per symbol
type LatestCache interface {
	SetLatest(ctx context.Context, quote *models.Quote) error
}

// CycleStats summarises one pass over the watchlist
type CycleStats struct {
	Symbols  int
	Failed   int
	Empty    int
	Inserted int
	Skipped  int
}

// Scheduler fetches every watchlist symbol in turn and upserts the result
type Scheduler struct {
	watchlist []string
	fetcher   marketdata.Fetcher
	engine    Upserter
	table     database.Table
	interval  time.Duration

	history      Upserter
	historyTable database.Table

	publisher Publisher
	cache     LatestCache
	notices   *notice.Board
	logger    logrus.FieldLogger

	cron *cron.Cron
	now  func() time.Time
}

// New creates a Scheduler that upserts the latest bar of each symbol into table
func New(watchlist []string, fetcher marketdata.Fetcher, engine Upserter, table database.Table,
	interval time.Duration, notices *notice.Board, logger logrus.FieldLogger) *Scheduler {
	if notices == nil {
		notices = notice.NewBoard(notice.DefaultCapacity)
	}
	return &Scheduler{
		watchlist: watchlist,
		fetcher:   fetcher,
		engine:    engine,
		table:     table,
		interval:  interval,
		notices:   notices,
		logger:    logger,
		cron:      cron.New(cron.WithSeconds()),
		now:       time.Now,
	}
}

// SetPublisher enables QUOTE_INSERTED events for inserted rows
func (s *Scheduler) SetPublisher(p Publisher) {
	s.publisher = p
}

// SetCache enables the latest-quote cache refresh after inserts
func (s *Scheduler) SetCache(c LatestCache) {
	s.cache = c
}

// SetHistory configures the engine and table used by history backfills
func (s *Scheduler) SetHistory(engine Upserter, table database.Table) {
	s.history = engine
	s.historyTable = table
}

// RunCycle performs one strictly sequential pass over the watchlist.
// Fetch failures are reported and skipped; a storage failure ends the pass.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats
	for _, symbol := range s.watchlist {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Symbols++

		quotes, err := s.fetcher.Latest(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			if errors.Is(err, marketdata.ErrNoData) {
				stats.Empty++
				continue
			}
			stats.Failed++
			s.fetchFailed(symbol, err)
			continue
		}
		if len(quotes) == 0 {
			stats.Empty++
			continue
		}

		result, err := s.persist(ctx, s.engine, s.table, symbol, quotes)
		if err != nil {
			return stats, err
		}
		stats.Inserted += len(result.Inserted)
		stats.Skipped += result.Skipped
	}

	s.logger.WithFields(logrus.Fields{
		"symbols":  stats.Symbols,
		"failed":   stats.Failed,
		"inserted": stats.Inserted,
		"skipped":  stats.Skipped,
	}).Info("Cycle complete")
	return stats, nil
}

// Run repeats RunCycle, waiting interval after each pass, until ctx is done.
// A storage failure stops the loop and is returned.
func (s *Scheduler) Run(ctx context.Context) error {
	return s.RunCycles(ctx, 0)
}

// RunCycles runs at most n cycles. n <= 0 runs until ctx is done.
func (s *Scheduler) RunCycles(ctx context.Context, n int) error {
	s.logger.WithFields(logrus.Fields{
		"symbols":  len(s.watchlist),
		"interval": s.interval.String(),
		"provider": s.fetcher.Name(),
	}).Info("Scheduler started")

	for i := 0; n <= 0 || i < n; i++ {
		if i > 0 {
			timer := time.NewTimer(s.interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				s.logger.Info("Scheduler stopped")
				return nil
			case <-timer.C:
			}
		}

		if _, err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("Scheduler stopped")
				return nil
			}
			s.logger.WithError(err).Error("Cycle failed")
			return err
		}
	}
	return nil
}

// BackfillHistory fetches the last days of daily bars for every symbol and
// upserts them into the history table
func (s *Scheduler) BackfillHistory(ctx context.Context, days int) (CycleStats, error) {
	var stats CycleStats
	if s.history == nil {
		return stats, errors.New("history backfill is not configured")
	}
	if days <= 0 {
		return stats, fmt.Errorf("invalid backfill window: %d days", days)
	}

	end := models.Day(s.now()).AddDate(0, 0, 1)
	start := end.AddDate(0, 0, -days)

	for _, symbol := range s.watchlist {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Symbols++

		quotes, err := s.fetcher.History(ctx, symbol, start, end)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			if errors.Is(err, marketdata.ErrNoData) {
				stats.Empty++
				continue
			}
			stats.Failed++
			s.fetchFailed(symbol, err)
			continue
		}
		if len(quotes) == 0 {
			stats.Empty++
			continue
		}

		result, err := s.persist(ctx, s.history, s.historyTable, symbol, quotes)
		if err != nil {
			return stats, err
		}
		stats.Inserted += len(result.Inserted)
		stats.Skipped += result.Skipped
	}

	s.logger.WithFields(logrus.Fields{
		"days":     days,
		"symbols":  stats.Symbols,
		"inserted": stats.Inserted,
	}).Info("History backfill complete")
	return stats, nil
}

// ScheduleHistory registers a backfill job on a six-field cron spec
func (s *Scheduler) ScheduleHistory(ctx context.Context, spec string, days int) error {
	if s.history == nil {
		return errors.New("history backfill is not configured")
	}
	if _, err := s.cron.AddFunc(spec, func() {
		if _, err := s.BackfillHistory(ctx, days); err != nil && ctx.Err() == nil {
			s.logger.WithError(err).Error("History backfill failed")
		}
	}); err != nil {
		return fmt.Errorf("register history backfill: %w", err)
	}
	return nil
}

// Start starts the cron scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the cron scheduler and waits for a running job to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Notices returns the board the scheduler reports to
func (s *Scheduler) Notices() *notice.Board {
	return s.notices
}

func (s *Scheduler) fetchFailed(symbol string, err error) {
	s.notices.Error(symbol, fmt.Sprintf("Error fetching data for %s: %v", symbol, err))
	s.logger.WithError(err).WithField("symbol", symbol).Warn("Fetch failed")
}

func (s *Scheduler) persist(ctx context.Context, engine Upserter, table database.Table, symbol string, quotes []models.Quote) (upsert.Result, error) {
	result, err := engine.Upsert(ctx, table, quotes)
	if err != nil {
		return result, err
	}

	if len(result.Inserted) == 0 {
		s.notices.Info(symbol, msgNoNew)
		return result, nil
	}
	s.notices.Success(symbol, msgInserted)

	for i := range result.Inserted {
		q := &result.Inserted[i]
		if s.publisher != nil {
			if err := s.publisher.PublishQuoteInserted(ctx, table.String(), q); err != nil {
				s.logger.WithError(err).WithField("symbol", symbol).Warn("Failed to publish quote event")
			}
		}
		if s.cache != nil {
			if err := s.cache.SetLatest(ctx, q); err != nil {
				s.logger.WithError(err).WithField("symbol", symbol).Warn("Failed to update quote cache")
			}
		}
	}
	return result, nil
}
