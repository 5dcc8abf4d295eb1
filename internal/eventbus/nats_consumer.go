package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/matthewbaird/propmaint/internal/event"
)

// DefaultSubject is the subject prefix events are forwarded under. The event
// type is appended, e.g. "propmaint.events.task_created".
const DefaultSubject = "propmaint.events"

// publisher is the subset of *nats.Conn the consumer needs.
type publisher interface {
	Publish(subj string, data []byte) error
}

// NATSConsumer forwards every domain event as JSON to NATS.
type NATSConsumer struct {
	pub     publisher
	conn    *nats.Conn
	subject string
	log     *slog.Logger
}

// DialNATS connects to url and returns a consumer publishing under subject.
func DialNATS(url, subject string, log *slog.Logger) (*NATSConsumer, error) {
	if log == nil {
		log = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("propmaint"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	c := newNATSConsumer(nc, subject, log)
	c.conn = nc
	log.Info("nats connected", "url", url, "subject", c.subject)
	return c, nil
}

func newNATSConsumer(pub publisher, subject string, log *slog.Logger) *NATSConsumer {
	if subject == "" {
		subject = DefaultSubject
	}
	if log == nil {
		log = slog.Default()
	}
	return &NATSConsumer{pub: pub, subject: strings.TrimSuffix(subject, "."), log: log}
}

// Subject returns the subject evt is published on.
func (c *NATSConsumer) Subject(evt event.DomainEvent) string {
	return c.subject + "." + evt.EventType
}

func (c *NATSConsumer) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", evt.ID, err)
	}
	if err := c.pub.Publish(c.Subject(evt), data); err != nil {
		return fmt.Errorf("publishing event %s: %w", evt.ID, err)
	}
	return nil
}

// Close drains the connection opened by DialNATS.
func (c *NATSConsumer) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Drain()
}
