package models

import "time"

// Event type constants
const (
	EventQuoteInserted = "QUOTE_INSERTED"
)

// QuoteEvent represents a Kafka event emitted when a quote row is persisted
type QuoteEvent struct {
	EventType string    `json:"event_type"`
	Table     string    `json:"table"`
	Symbol    string    `json:"symbol"`
	Quote     *Quote    `json:"quote,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notice level constants
const (
	NoticeError   = "ERROR"
	NoticeInfo    = "INFO"
	NoticeSuccess = "SUCCESS"
)

// Notice is a user-visible banner message
type Notice struct {
	Level   string    `json:"level"`
	Symbol  string    `json:"symbol,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}
