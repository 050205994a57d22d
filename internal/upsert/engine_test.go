package upsert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/stock-dashboard/internal/database"
	"github.com/trogers1052/stock-dashboard/internal/logging"
	"github.com/trogers1052/stock-dashboard/internal/models"
)

var stockTable = database.Table{Schema: "student", Name: "stock"}

// MockStore is an in-memory quote table
type MockStore struct {
	rows      map[string][]models.Quote // key: table
	insertErr error
	failAfter int

	SessionCalls int
	EnsureCalls  int
	LoadCalls    int
	InsertCalls  int
}

func NewMockStore() *MockStore {
	return &MockStore{rows: make(map[string][]models.Quote), failAfter: -1}
}

func (m *MockStore) QuoteSession(ctx context.Context, fn func(database.QuoteStore) error) error {
	m.SessionCalls++
	return fn(m)
}

func (m *MockStore) EnsureQuoteTable(ctx context.Context, t database.Table) error {
	m.EnsureCalls++
	return nil
}

func (m *MockStore) QuotesBySymbol(ctx context.Context, t database.Table, symbol string) ([]models.Quote, error) {
	m.LoadCalls++
	var out []models.Quote
	for _, q := range m.rows[t.String()] {
		if q.Symbol == symbol {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *MockStore) InsertQuote(ctx context.Context, t database.Table, q *models.Quote) error {
	if m.insertErr != nil && m.InsertCalls == m.failAfter {
		return m.insertErr
	}
	m.InsertCalls++
	// columns the table lacks are lost on the way in, as with a real table
	m.rows[t.String()] = append(m.rows[t.String()], t.Project(*q))
	return nil
}

func (m *MockStore) Rows(t database.Table) []models.Quote {
	return m.rows[t.String()]
}

func quote(date, symbol string, open, high, low, cls float64, volume int64) models.Quote {
	d, err := models.ParseDay(date)
	if err != nil {
		panic(err)
	}
	return models.Quote{
		Date:   d,
		Symbol: symbol,
		Open:   decimal.NewFromFloat(open),
		High:   decimal.NewFromFloat(high),
		Low:    decimal.NewFromFloat(low),
		Close:  decimal.NewFromFloat(cls),
		Volume: volume,
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": MatchRow, "row": MatchRow, "date": MatchDate, "values": MatchValues} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("fuzzy")
	assert.Error(t, err)
	assert.Equal(t, "values", MatchValues.String())
}

func TestUpsertInsertsIntoEmptyTable(t *testing.T) {
	store := NewMockStore()
	engine := NewEngine(store, MatchRow, logging.Discard())

	result, err := engine.Upsert(context.Background(), stockTable, []models.Quote{
		quote("2024-01-02", "AAPL", 185.0, 186.0, 184.0, 185.5, 50000000),
	})
	require.NoError(t, err)

	assert.Len(t, result.Inserted, 1)
	assert.Equal(t, 0, result.Skipped)
	assert.Len(t, store.Rows(stockTable), 1)
	assert.Equal(t, 1, store.EnsureCalls)
}

func TestUpsertSkipsIdenticalRow(t *testing.T) {
	for _, mode := range []Mode{MatchRow, MatchDate, MatchValues} {
		t.Run(mode.String(), func(t *testing.T) {
			store := NewMockStore()
			engine := NewEngine(store, mode, logging.Discard())
			row := quote("2024-01-02", "AAPL", 185.0, 186.0, 184.0, 185.5, 50000000)

			_, err := engine.Upsert(context.Background(), stockTable, []models.Quote{row})
			require.NoError(t, err)

			result, err := engine.Upsert(context.Background(), stockTable, []models.Quote{row})
			require.NoError(t, err)
			assert.Empty(t, result.Inserted)
			assert.Equal(t, 1, result.Skipped)
			assert.Len(t, store.Rows(stockTable), 1)
		})
	}
}

func TestUpsertAppendsChangedRowWithoutTouchingExisting(t *testing.T) {
	store := NewMockStore()
	engine := NewEngine(store, MatchRow, logging.Discard())

	original := quote("2024-01-02", "AAPL", 185.0, 186.0, 184.0, 185.5, 50000000)
	_, err := engine.Upsert(context.Background(), stockTable, []models.Quote{original})
	require.NoError(t, err)

	// same day, the close moved intraday
	changed := original
	changed.Close = decimal.NewFromFloat(185.75)

	result, err := engine.Upsert(context.Background(), stockTable, []models.Quote{changed})
	require.NoError(t, err)
	require.Len(t, result.Inserted, 1)

	rows := store.Rows(stockTable)
	require.Len(t, rows, 2)
	assert.True(t, original.SameValues(&rows[0]), "existing row must not be modified")
	assert.True(t, changed.SameValues(&rows[1]))
}

func TestUpsertAdjustedCloseOnPlainTable(t *testing.T) {
	row := quote("2024-01-03", "AAPL", 185.5, 187.0, 185.0, 186.2, 48000000)
	row.AdjustedClose = decimal.NewNullDecimal(decimal.RequireFromString("185.92"))

	for _, mode := range []Mode{MatchRow, MatchDate, MatchValues} {
		t.Run(mode.String(), func(t *testing.T) {
			store := NewMockStore()
			engine := NewEngine(store, mode, logging.Discard())

			for i := 0; i < 3; i++ {
				_, err := engine.Upsert(context.Background(), stockTable, []models.Quote{row})
				require.NoError(t, err)
			}

			rows := store.Rows(stockTable)
			require.Len(t, rows, 1, "repeated cycles of one bar must store it once")
			assert.False(t, rows[0].AdjustedClose.Valid)
		})
	}
}

func TestUpsertKeepsAdjustedCloseOnAdjustedTable(t *testing.T) {
	historicTable := database.Table{Schema: "student", Name: "historic_stock", Adjusted: true}
	row := quote("2024-01-03", "AAPL", 185.5, 187.0, 185.0, 186.2, 48000000)
	row.AdjustedClose = decimal.NewNullDecimal(decimal.RequireFromString("185.92"))
	store := NewMockStore()
	engine := NewEngine(store, MatchRow, logging.Discard())

	result, err := engine.Upsert(context.Background(), historicTable, []models.Quote{row})
	require.NoError(t, err)
	require.Len(t, result.Inserted, 1)
	assert.True(t, result.Inserted[0].AdjustedClose.Valid)

	_, err = engine.Upsert(context.Background(), historicTable, []models.Quote{row})
	require.NoError(t, err)

	rows := store.Rows(historicTable)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].AdjustedClose.Decimal.Equal(decimal.RequireFromString("185.92")))
}

func TestUpsertEndToEndScenario(t *testing.T) {
	store := NewMockStore()
	store.rows[stockTable.String()] = []models.Quote{
		quote("2024-01-02", "AAPL", 185.0, 186.0, 184.0, 185.5, 50000000),
	}
	engine := NewEngine(store, MatchRow, logging.Discard())

	result, err := engine.Upsert(context.Background(), stockTable, []models.Quote{
		quote("2024-01-03", "AAPL", 185.5, 187.0, 185.0, 186.2, 48000000),
	})
	require.NoError(t, err)

	assert.Len(t, result.Inserted, 1)
	assert.Equal(t, 1, store.InsertCalls)
	assert.Len(t, store.Rows(stockTable), 2)
}

// A new trading day whose bar equals an older bar exactly. Value-only
// matching drops it; the default row matching keeps it.
func TestUpsertRepeatedBarOnNewDate(t *testing.T) {
	old := quote("2024-01-02", "AAPL", 185.0, 186.0, 184.0, 185.5, 50000000)
	repeat := old
	repeat.Date = old.Date.AddDate(0, 0, 1)

	t.Run("values mode drops it", func(t *testing.T) {
		store := NewMockStore()
		store.rows[stockTable.String()] = []models.Quote{old}
		engine := NewEngine(store, MatchValues, logging.Discard())

		result, err := engine.Upsert(context.Background(), stockTable, []models.Quote{repeat})
		require.NoError(t, err)
		assert.Empty(t, result.Inserted)
		assert.Len(t, store.Rows(stockTable), 1)
	})

	t.Run("row mode keeps it", func(t *testing.T) {
		store := NewMockStore()
		store.rows[stockTable.String()] = []models.Quote{old}
		engine := NewEngine(store, MatchRow, logging.Discard())

		result, err := engine.Upsert(context.Background(), stockTable, []models.Quote{repeat})
		require.NoError(t, err)
		assert.Len(t, result.Inserted, 1)
		assert.Len(t, store.Rows(stockTable), 2)
	})
}

func TestUpsertDateModeFirstWriteWins(t *testing.T) {
	store := NewMockStore()
	engine := NewEngine(store, MatchDate, logging.Discard())

	first := quote("2024-01-02", "MSFT", 370.0, 375.0, 368.0, 373.0, 30000000)
	second := first
	second.Close = decimal.NewFromFloat(374.0)
	next := quote("2024-01-03", "MSFT", 373.0, 376.0, 371.0, 372.0, 28000000)

	result, err := engine.Upsert(context.Background(), stockTable, []models.Quote{first, second, next})
	require.NoError(t, err)

	assert.Len(t, result.Inserted, 2)
	assert.Equal(t, 1, result.Skipped)
	rows := store.Rows(stockTable)
	require.Len(t, rows, 2)
	assert.True(t, decimal.NewFromFloat(373.0).Equal(rows[0].Close))
}

func TestUpsertSkipsDuplicatesWithinBatch(t *testing.T) {
	store := NewMockStore()
	engine := NewEngine(store, MatchRow, logging.Discard())

	row := quote("2024-01-02", "AAPL", 185.0, 186.0, 184.0, 185.5, 50000000)
	result, err := engine.Upsert(context.Background(), stockTable, []models.Quote{row, row, row})
	require.NoError(t, err)

	assert.Len(t, result.Inserted, 1)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 1, store.LoadCalls, "existing rows are loaded once per symbol")
}

func TestUpsertComparesPerSymbol(t *testing.T) {
	store := NewMockStore()
	store.rows[stockTable.String()] = []models.Quote{
		quote("2024-01-02", "AAPL", 100, 101, 99, 100.5, 1000),
	}
	engine := NewEngine(store, MatchValues, logging.Discard())

	other := quote("2024-01-02", "MSFT", 100, 101, 99, 100.5, 1000)
	result, err := engine.Upsert(context.Background(), stockTable, []models.Quote{other})
	require.NoError(t, err)
	assert.Len(t, result.Inserted, 1)
}

func TestUpsertEmptyInputDoesNotTouchStore(t *testing.T) {
	store := NewMockStore()
	engine := NewEngine(store, MatchRow, logging.Discard())

	result, err := engine.Upsert(context.Background(), stockTable, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Inserted)
	assert.Equal(t, 0, store.SessionCalls)
}

func TestUpsertInsertErrorKeepsEarlierRows(t *testing.T) {
	store := NewMockStore()
	store.insertErr = errors.New("connection reset")
	store.failAfter = 1
	engine := NewEngine(store, MatchRow, logging.Discard())

	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	first := quote("2024-01-02", "AAPL", 185.0, 186.0, 184.0, 185.5, 50000000)
	second := first
	second.Date = day.AddDate(0, 0, 1)

	result, err := engine.Upsert(context.Background(), stockTable, []models.Quote{first, second})
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset")
	assert.ErrorContains(t, err, "student.stock")
	assert.Len(t, result.Inserted, 1)
	assert.Len(t, store.Rows(stockTable), 1)
}
