// Package events publishes batch lifecycle events to a message broker so
// external collaborators (alerting, reporting) can react without polling the
// engine. The processing loop never depends on a publish succeeding.
package events

import (
	"context"
	"time"
)

// Lifecycle event kinds, used as routing key suffixes.
const (
	KindStarted     = "started"
	KindCompleted   = "completed"
	KindInterrupted = "interrupted"
	KindFailed      = "failed"
)

// BatchEvent describes one batch lifecycle transition.
type BatchEvent struct {
	BatchID   string    `json:"batchId"`
	OwnerID   string    `json:"ownerId"`
	Kind      string    `json:"kind"`
	Category  string    `json:"category"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Valid     int       `json:"valid"`
	Invalid   int       `json:"invalid"`
	At        time.Time `json:"at"`
}

// Publisher is the outbound lifecycle event port.
type Publisher interface {
	PublishBatchEvent(ctx context.Context, ev BatchEvent) error
	Close() error
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishBatchEvent(context.Context, BatchEvent) error { return nil }
func (NopPublisher) Close() error                                       { return nil }
