// Package stream distributes real-time events to connected consumers.
package stream

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Event names exchanged on the stream.
const (
	EventConnectionResponse    = "connection_response"
	EventSubscribe             = "subscribe"
	EventUnsubscribe           = "unsubscribe"
	EventSubscriptionConfirmed = "subscription_confirmed"
	EventMarketUpdate          = "market_update"
	EventPriceUpdate           = "price_update"
	EventError                 = "error"
)

// Envelope is the wire frame for both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// ConnectionResponse is sent once right after a consumer connects.
type ConnectionResponse struct {
	Status    string    `json:"status"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// TopicRequest is the payload of subscribe and unsubscribe.
type TopicRequest struct {
	Symbol string `json:"symbol"`
	Type   string `json:"type"`
}

// SubscriptionConfirmed acknowledges a subscribe to the requester only.
type SubscriptionConfirmed struct {
	Symbol    string    `json:"symbol"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceUpdate is the topic-scoped value of one snapshot instrument.
type PriceUpdate struct {
	Symbol    string          `json:"symbol"`
	Type      string          `json:"type"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// ErrorMessage reports a rejected request to its sender.
type ErrorMessage struct {
	Message string `json:"message"`
}
