package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"erp-notification-be/internal/pkg/logger"
	"erp-notification-be/pkg/events"

	"github.com/nats-io/nats.go"
)

const (
	headerEventType  = "Event-Type"
	headerOccurredAt = "Occurred-At"
)

// Publisher sends events to the JetStream EVENTS stream.
type Publisher struct {
	s *session
}

// NewPublisher connects and ensures the EVENTS stream exists.
func NewPublisher(url string, log logger.ILogger) (*Publisher, error) {
	s, err := dial(url, log)
	if err != nil {
		return nil, err
	}
	s.ensureStream()
	return &Publisher{s: s}, nil
}

func encode(event events.Event) (*nats.Msg, error) {
	data, err := json.Marshal(events.ToEnvelope(event))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	msg := nats.NewMsg(Subject(event.EventType()))
	msg.Data = data
	msg.Header.Set(headerEventType, event.EventType())
	msg.Header.Set(headerOccurredAt, event.Timestamp().UTC().Format(time.RFC3339Nano))
	return msg, nil
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	msg, err := encode(event)
	if err != nil {
		return err
	}
	if _, err := p.s.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", msg.Subject, err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.s.close()
}
