package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/trogers1052/stock-dashboard/internal/models"
)

// LatestQuoteCache is the cache refreshed from quote events
type LatestQuoteCache interface {
	SetLatest(ctx context.Context, q *models.Quote) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer refreshes the latest-quote cache from quote events
type Consumer struct {
	reader messageReader
	cache  LatestQuoteCache
	logger logrus.FieldLogger
}

// NewConsumer creates a new Kafka consumer for quote events
func NewConsumer(brokers []string, topic, groupID string, cache LatestQuoteCache, logger logrus.FieldLogger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader: reader,
		cache:  cache,
		logger: logger,
	}
}

// Start consumes messages until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting Kafka quote consumer")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Kafka consumer shutting down...")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil // Context cancelled, normal shutdown
				}
				c.logger.WithError(err).Error("Error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.logger.WithError(err).Error("Error processing message")
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	c.logger.WithFields(logrus.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
		"key":       string(msg.Key),
	}).Debug("Received message")

	var event models.QuoteEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal quote event: %w", err)
	}

	if event.EventType != models.EventQuoteInserted {
		c.logger.WithField("event_type", event.EventType).Debug("Ignoring event type")
		return nil
	}
	if event.Quote == nil {
		return fmt.Errorf("quote event for %s has no quote", event.Symbol)
	}

	if err := c.cache.SetLatest(ctx, event.Quote); err != nil {
		return fmt.Errorf("failed to refresh cache for %s: %w", event.Quote.Symbol, err)
	}
	return nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
