package nats

import (
	"erp-notification-be/internal/pkg/logger"
	"erp-notification-be/pkg/events"
)

// Bus publishes and consumes over a single NATS connection.
type Bus struct {
	*Publisher
	*Subscriber
	s *session
}

var _ events.Bus = (*Bus)(nil)

func NewBus(url string, log logger.ILogger) (*Bus, error) {
	s, err := dial(url, log)
	if err != nil {
		return nil, err
	}
	s.ensureStream()
	return &Bus{Publisher: &Publisher{s: s}, Subscriber: &Subscriber{s: s}, s: s}, nil
}

func (b *Bus) Close() {
	b.Subscriber.stop()
	b.s.close()
}
