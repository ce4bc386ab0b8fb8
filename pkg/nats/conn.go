package nats

import (
	"context"
	"fmt"
	"time"

	"erp-notification-be/internal/pkg/logger"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	moduleName = "NATS"

	streamName    = "EVENTS"
	subjectPrefix = "events."

	// Events older than this are of no use to a notification feed.
	streamMaxAge = 72 * time.Hour
)

// session is a connection plus its JetStream context, shared by a Bus.
type session struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	log logger.ILogger
}

func dial(url string, log logger.ILogger) (*session, error) {
	if log == nil {
		log = logger.NewNop()
	}

	nc, err := nats.Connect(url,
		nats.Name("erp-notification-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn(moduleName, "Disconnected", map[string]interface{}{"error": err.Error()})
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info(moduleName, "Reconnected", map[string]interface{}{"url": c.ConnectedUrl()})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return &session{nc: nc, js: js, log: log}, nil
}

// ensureStream creates the EVENTS stream if needed. Failure is logged only:
// the stream may be managed externally or NATS may still be starting.
func (s *session) ensureStream() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectPrefix + ">"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
		MaxAge:    streamMaxAge,
	})
	if err != nil {
		s.log.Warn(moduleName, "Failed to ensure stream", map[string]interface{}{"stream": streamName, "error": err.Error()})
	}
}

func (s *session) close() {
	if s.nc != nil {
		s.nc.Close()
	}
}

// Subject returns the subject an event type is published on.
func Subject(eventType string) string {
	return subjectPrefix + eventType
}
