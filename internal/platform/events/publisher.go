// Package events publishes list mutation events to NATS JetStream so other
// tooling can follow what a training run changed on the remote list.
package events

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectEntrySaved   = "trainer.list.saved"
	SubjectEntryUpdated = "trainer.list.updated"
	SubjectEntryDeleted = "trainer.list.deleted"
)

// Event is the envelope sent to every trainer.* subject.
type Event struct {
	EventID    string         `json:"event_id"`
	RunID      string         `json:"run_id"`
	EventName  string         `json:"event_name"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// asyncPublisher is the subset of nats.JetStreamContext used here.
type asyncPublisher interface {
	PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error)
}

// Publisher is fire-and-forget. The zero value and a nil pointer are no-ops.
type Publisher struct {
	js    asyncPublisher
	log   *zap.Logger
	runID string
}

// New creates a Publisher. Pass js=nil for a no-op stub.
func New(js nats.JetStreamContext, runID string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Publisher{log: log, runID: runID}
	if js != nil {
		p.js = js
	}
	return p
}

// Publish never surfaces failures to the caller; they are logged as warnings.
func (p *Publisher) Publish(subject, eventName string, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}
	ev := Event{
		EventID:    uuid.NewString(),
		RunID:      p.runID,
		EventName:  eventName,
		OccurredAt: time.Now().UTC(),
		Properties: props,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("events: marshal failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.Warn("events: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
