package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

const DefaultSubject = "pulseops.incidents"

// NATS publishes incident events as JSON on a subject.
type NATS struct {
	Subject string
	conn    *nats.Conn
	publish func(subject string, data []byte) error
}

func NewNATS(url, subject string) (*NATS, error) {
	conn, err := nats.Connect(url, nats.Name("pulseops"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{Subject: subject, conn: conn, publish: conn.Publish}, nil
}

func (n *NATS) Send(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("nats payload: %w", err)
	}
	return n.publish(n.Subject, data)
}

func (n *NATS) Close() {
	if n.conn != nil {
		_ = n.conn.Drain()
		n.conn.Close()
	}
}
