package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// EventVersion is the schema version of exported envelopes.
const EventVersion = 1

// Envelope is the Kafka message body for one committed event.
type Envelope struct {
	EventID      string             `json:"event_id"`
	EventType    string             `json:"event_type"`
	EventVersion int                `json:"event_version"`
	Timestamp    time.Time          `json:"timestamp"`
	Event        domain.MarketEvent `json:"event"`
}

// DeterministicEventID derives a stable uuid from the event's chain
// position so consumers can deduplicate redeliveries.
func DeterministicEventID(ev domain.MarketEvent) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("nftmarket|"+ev.ID)).String()
}

// NewEnvelope wraps ev.
func NewEnvelope(ev domain.MarketEvent) (Envelope, error) {
	if ev.Name == "" {
		return Envelope{}, fmt.Errorf("kafka: event name is required")
	}
	if ev.ID == "" {
		return Envelope{}, fmt.Errorf("kafka: event id is required")
	}
	ts := ev.CommittedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return Envelope{
		EventID:      DeterministicEventID(ev),
		EventType:    ev.Name,
		EventVersion: EventVersion,
		Timestamp:    ts.UTC(),
		Event:        ev,
	}, nil
}

// PartitionKey keys events by emitting contract. A sale does not name its
// order, so per-order keys could reorder it ahead of the listing.
func PartitionKey(ev domain.MarketEvent) string {
	return ev.Contract.Hex()
}

// Exporter publishes committed events to one topic.
type Exporter struct {
	pub   Publisher
	topic string
}

// NewExporter creates an Exporter.
func NewExporter(pub Publisher, topic string) *Exporter {
	return &Exporter{pub: pub, topic: topic}
}

// Export publishes ev.
func (e *Exporter) Export(ctx context.Context, ev domain.MarketEvent) error {
	env, err := NewEnvelope(ev)
	if err != nil {
		return err
	}
	if _, _, err := e.pub.PublishJSON(ctx, e.topic, PartitionKey(ev), env); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying publisher.
func (e *Exporter) Close() error {
	return e.pub.Close()
}
