package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// GoChannelBus is an in-process Bus backed by watermill's gochannel pub/sub.
// Subjects are collapsed to their first token, so "events.>" and
// "events.PAYROLL_DONE" share the "events" topic.
type GoChannelBus struct {
	pubSub *gochannel.GoChannel
	ctx    context.Context
	cancel context.CancelFunc
}

func NewGoChannelBus(logger watermill.LoggerAdapter) *GoChannelBus {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GoChannelBus{
		pubSub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger),
		ctx:    ctx,
		cancel: cancel,
	}
}

func topicOf(subject string) string {
	if i := strings.Index(subject, "."); i > 0 {
		return subject[:i]
	}
	return subject
}

func (b *GoChannelBus) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(ToEnvelope(event))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	return b.pubSub.Publish(topicOf("events."+event.EventType()), msg)
}

func (b *GoChannelBus) Subscribe(subject string, _ string, handler Handler) error {
	messages, err := b.pubSub.Subscribe(b.ctx, topicOf(subject))
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	go func() {
		for msg := range messages {
			var env Envelope
			if err := json.Unmarshal(msg.Payload, &env); err != nil {
				msg.Ack() // Ack invalid messages to prevent infinite retry
				continue
			}
			if err := handler(msg.Context(), env.Event()); err != nil {
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}()
	return nil
}

func (b *GoChannelBus) Close() {
	b.cancel()
	_ = b.pubSub.Close()
}
