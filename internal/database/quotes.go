package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-dashboard/internal/models"
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Table identifies a quote table. Adjusted tables carry an adjusted_close
// column between close and volume.
type Table struct {
	Schema   string
	Name     string
	Adjusted bool
}

// Validate checks that schema and name are plain lower-case identifiers
func (t Table) Validate() error {
	if !identPattern.MatchString(t.Schema) {
		return fmt.Errorf("invalid schema name %q", t.Schema)
	}
	if !identPattern.MatchString(t.Name) {
		return fmt.Errorf("invalid table name %q", t.Name)
	}
	return nil
}

// Ident returns the quoted schema-qualified table name
func (t Table) Ident() string {
	return pq.QuoteIdentifier(t.Schema) + "." + pq.QuoteIdentifier(t.Name)
}

// String returns the unquoted schema-qualified table name
func (t Table) String() string {
	return t.Schema + "." + t.Name
}

// Project returns q as the table stores it: tables without an
// adjusted_close column drop the adjusted close.
func (t Table) Project(q models.Quote) models.Quote {
	if !t.Adjusted {
		q.AdjustedClose = decimal.NullDecimal{}
	}
	return q
}

func (t Table) columns() []string {
	if t.Adjusted {
		return []string{"date", "symbol", "open", "high", "low", "close", "adjusted_close", "volume"}
	}
	return []string{"date", "symbol", "open", "high", "low", "close", "volume"}
}

func (t Table) selectList() string {
	return strings.Join(t.columns(), ", ")
}

// QuoteStore is the set of quote table operations available in a Session
type QuoteStore interface {
	EnsureQuoteTable(ctx context.Context, t Table) error
	QuotesBySymbol(ctx context.Context, t Table, symbol string) ([]models.Quote, error)
	InsertQuote(ctx context.Context, t Table, q *models.Quote) error
}

// QuoteSession runs fn against a Session exposed as a QuoteStore
func (db *DB) QuoteSession(ctx context.Context, fn func(QuoteStore) error) error {
	return db.Session(ctx, func(s *Session) error {
		return fn(s)
	})
}

// EnsureQuoteTable creates the schema and table if they do not exist
func (s *Session) EnsureQuoteTable(ctx context.Context, t Table) error {
	if err := t.Validate(); err != nil {
		return err
	}

	if _, err := s.conn.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(t.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", t.Schema, err)
	}

	adjusted := ""
	if t.Adjusted {
		adjusted = "adjusted_close NUMERIC, "
	}
	query := "CREATE TABLE IF NOT EXISTS " + t.Ident() + " (" +
		"date DATE NOT NULL, symbol VARCHAR(16) NOT NULL, " +
		"open NUMERIC, high NUMERIC, low NUMERIC, close NUMERIC, " +
		adjusted + "volume BIGINT)"

	if _, err := s.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", t, err)
	}
	return nil
}

// QuotesBySymbol retrieves every stored row for symbol, ordered by date
func (s *Session) QuotesBySymbol(ctx context.Context, t Table, symbol string) ([]models.Quote, error) {
	query := "SELECT " + t.selectList() + " FROM " + t.Ident() + " WHERE symbol = $1 ORDER BY date ASC"

	rows, err := s.conn.QueryContext(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get quotes for %s: %w", symbol, err)
	}
	defer rows.Close()

	return scanQuotes(rows, t)
}

// QuotesRange retrieves stored rows for symbol with start <= date <= end
func (s *Session) QuotesRange(ctx context.Context, t Table, symbol string, start, end time.Time) ([]models.Quote, error) {
	query := "SELECT " + t.selectList() + " FROM " + t.Ident() +
		" WHERE symbol = $1 AND date >= $2 AND date <= $3 ORDER BY date ASC"

	rows, err := s.conn.QueryContext(ctx, query, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote range for %s: %w", symbol, err)
	}
	defer rows.Close()

	return scanQuotes(rows, t)
}

// InsertQuote appends one row. Existing rows are never updated.
func (s *Session) InsertQuote(ctx context.Context, t Table, q *models.Quote) error {
	var query string
	var args []interface{}
	if t.Adjusted {
		query = "INSERT INTO " + t.Ident() + " (" + t.selectList() + ") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)"
		args = []interface{}{q.Date, q.Symbol, q.Open, q.High, q.Low, q.Close, q.AdjustedClose, q.Volume}
	} else {
		query = "INSERT INTO " + t.Ident() + " (" + t.selectList() + ") VALUES ($1, $2, $3, $4, $5, $6, $7)"
		args = []interface{}{q.Date, q.Symbol, q.Open, q.High, q.Low, q.Close, q.Volume}
	}

	if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert quote for %s on %s: %w", q.Symbol, q.DateKey(), err)
	}
	return nil
}

// CountQuotes returns the number of stored rows for symbol
func (s *Session) CountQuotes(ctx context.Context, t Table, symbol string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.Ident()+" WHERE symbol = $1", symbol).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count quotes for %s: %w", symbol, err)
	}
	return n, nil
}

// GetQuotesRange retrieves stored rows for symbol on a short-lived session
func (db *DB) GetQuotesRange(ctx context.Context, t Table, symbol string, start, end time.Time) ([]models.Quote, error) {
	var quotes []models.Quote
	err := db.Session(ctx, func(s *Session) error {
		var err error
		quotes, err = s.QuotesRange(ctx, t, symbol, start, end)
		return err
	})
	return quotes, err
}

func scanQuotes(rows *sql.Rows, t Table) ([]models.Quote, error) {
	var quotes []models.Quote
	for rows.Next() {
		var q models.Quote
		var volume sql.NullInt64

		dest := []interface{}{&q.Date, &q.Symbol, &q.Open, &q.High, &q.Low, &q.Close}
		if t.Adjusted {
			dest = append(dest, &q.AdjustedClose)
		}
		dest = append(dest, &volume)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		q.Date = models.Day(q.Date)
		q.Volume = volume.Int64
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quotes: %w", err)
	}
	return quotes, nil
}
