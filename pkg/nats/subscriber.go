package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"erp-notification-be/pkg/events"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	handlerTimeout  = 30 * time.Second
	redeliveryDelay = 5 * time.Second
	maxDeliver      = 5
)

// Subscriber consumes events through durable JetStream consumers.
type Subscriber struct {
	s        *session
	contexts []jetstream.ConsumeContext
}

// decodeMessage accepts both the envelope form and a bare payload map. For the
// latter the type is taken from the subject.
func decodeMessage(subject string, data []byte) (events.BaseEvent, error) {
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return events.BaseEvent{}, err
	}
	if env.Type != "" && env.Data != nil {
		return env.Event(), nil
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return events.BaseEvent{}, err
	}
	return events.BaseEvent{
		Type: strings.TrimPrefix(subject, subjectPrefix),
		Data: payload,
	}, nil
}

// Subscribe registers a handler for a subject pattern on a durable consumer.
// Failed handlers are redelivered after a delay, up to maxDeliver attempts.
func (sub *Subscriber) Subscribe(subject string, durableName string, handler events.Handler) error {
	log := sub.s.log

	consumer, err := sub.s.js.CreateOrUpdateConsumer(context.Background(), streamName, jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    maxDeliver,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		event, err := decodeMessage(msg.Subject(), msg.Data())
		if err != nil {
			log.Error(moduleName, "Undecodable event, terminating", map[string]interface{}{"subject": msg.Subject(), "error": err.Error()})
			_ = msg.Term()
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		if err := handler(ctx, event); err != nil {
			log.Warn(moduleName, "Handler failed, redelivering", map[string]interface{}{"subject": msg.Subject(), "error": err.Error()})
			_ = msg.NakWithDelay(redeliveryDelay)
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	sub.contexts = append(sub.contexts, cc)

	log.Info(moduleName, "Subscribed", map[string]interface{}{"subject": subject, "durable": durableName})
	return nil
}

func (sub *Subscriber) stop() {
	for _, cc := range sub.contexts {
		cc.Stop()
	}
	sub.contexts = nil
}

// Close stops consumers and closes the connection.
func (sub *Subscriber) Close() {
	sub.stop()
	sub.s.close()
}
