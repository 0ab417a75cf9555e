package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Conn is the subset of *nats.Conn used by NATSPublisher.
type Conn interface {
	PublishMsg(msg *nats.Msg) error
	Drain() error
}

// NATSPublisher publishes events as JSON over core NATS.
type NATSPublisher struct {
	conn    Conn
	subject string
}

// Connect dials NATS with reconnect-forever semantics and returns a publisher.
func Connect(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("cleanroute"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return NewNATSPublisher(conn, subject), nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn Conn, subject string) *NATSPublisher {
	if subject == "" {
		subject = SubjectRoutePlanned
	}
	return &NATSPublisher{conn: conn, subject: subject}
}

// PublishRoutePlanned publishes the event. The event ID is sent as
// Nats-Msg-Id so JetStream streams bound to the subject deduplicate retries.
func (p *NATSPublisher) PublishRoutePlanned(ctx context.Context, event *RoutePlanned) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal route.planned: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, event.ID)
	msg.Header.Set("Content-Type", "application/json")

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	_ = p.conn.Drain()
}
