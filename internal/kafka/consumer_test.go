package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/stock-dashboard/internal/logging"
	"github.com/trogers1052/stock-dashboard/internal/models"
)

// MockCache records SetLatest calls
type MockCache struct {
	mu     sync.Mutex
	quotes []*models.Quote
	err    error
}

func (m *MockCache) SetLatest(ctx context.Context, q *models.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.quotes = append(m.quotes, q)
	return nil
}

func (m *MockCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.quotes)
}

// MockReader replays queued messages, then blocks until ctx is done
type MockReader struct {
	messages []kafka.Message
	errs     []error
	closed   bool
}

func (m *MockReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return kafka.Message{}, err
	}
	if len(m.messages) > 0 {
		msg := m.messages[0]
		m.messages = m.messages[1:]
		return msg, nil
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *MockReader) Close() error {
	m.closed = true
	return nil
}

func eventMessage(t *testing.T, event models.QuoteEvent) kafka.Message {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(event.Symbol), Value: data}
}

func sampleQuote() *models.Quote {
	return &models.Quote{
		Date:   time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		Symbol: "AAPL",
		Open:   decimal.RequireFromString("185.5"),
		High:   decimal.RequireFromString("187"),
		Low:    decimal.RequireFromString("185"),
		Close:  decimal.RequireFromString("186.2"),
		Volume: 48000000,
	}
}

func TestProcessMessage(t *testing.T) {
	t.Run("quote inserted refreshes cache", func(t *testing.T) {
		cache := &MockCache{}
		consumer := &Consumer{cache: cache, logger: logging.Discard()}

		err := consumer.processMessage(context.Background(), eventMessage(t, models.QuoteEvent{
			EventType: models.EventQuoteInserted,
			Table:     "student.stock",
			Symbol:    "AAPL",
			Quote:     sampleQuote(),
		}))
		require.NoError(t, err)
		require.Equal(t, 1, cache.Len())
		assert.Equal(t, "2024-01-03", cache.quotes[0].DateKey())
		assert.True(t, decimal.RequireFromString("186.2").Equal(cache.quotes[0].Close))
	})

	t.Run("other event types are ignored", func(t *testing.T) {
		cache := &MockCache{}
		consumer := &Consumer{cache: cache, logger: logging.Discard()}

		err := consumer.processMessage(context.Background(), eventMessage(t, models.QuoteEvent{
			EventType: "QUOTE_DELETED",
			Symbol:    "AAPL",
		}))
		require.NoError(t, err)
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("malformed payload", func(t *testing.T) {
		consumer := &Consumer{cache: &MockCache{}, logger: logging.Discard()}

		err := consumer.processMessage(context.Background(), kafka.Message{Value: []byte("{")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal quote event")
	})

	t.Run("event without quote", func(t *testing.T) {
		consumer := &Consumer{cache: &MockCache{}, logger: logging.Discard()}

		err := consumer.processMessage(context.Background(), eventMessage(t, models.QuoteEvent{
			EventType: models.EventQuoteInserted,
			Symbol:    "AAPL",
		}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "has no quote")
	})

	t.Run("cache failure is reported", func(t *testing.T) {
		consumer := &Consumer{cache: &MockCache{err: errors.New("redis down")}, logger: logging.Discard()}

		err := consumer.processMessage(context.Background(), eventMessage(t, models.QuoteEvent{
			EventType: models.EventQuoteInserted,
			Symbol:    "AAPL",
			Quote:     sampleQuote(),
		}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis down")
	})
}

func TestConsumerStartKeepsGoingAfterBadMessages(t *testing.T) {
	cache := &MockCache{}
	reader := &MockReader{
		errs: []error{errors.New("broker unavailable")},
		messages: []kafka.Message{
			{Value: []byte("garbage")},
			eventMessage(t, models.QuoteEvent{EventType: models.EventQuoteInserted, Symbol: "AAPL", Quote: sampleQuote()}),
		},
	}
	consumer := &Consumer{reader: reader, cache: cache, logger: logging.Discard()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()

	require.Eventually(t, func() bool { return cache.Len() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
}
