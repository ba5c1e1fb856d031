package bus

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	DefaultAlarmSubject = "autoheal.alarms"
	DefaultEventSubject = "autoheal.events"
)

// Connect dials NATS with reconnects enabled for long-running processes.
func Connect(url string) (*nats.Conn, error) {
	if url == "" {
		return nil, errors.New("nats url required")
	}
	return nats.Connect(url,
		nats.Name("autoheal"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

func Close(nc *nats.Conn) {
	if nc != nil {
		_ = nc.Drain()
		nc.Close()
	}
}

type publishConn interface {
	Publish(subject string, data []byte) error
}

// Event is an incident lifecycle notification.
type Event struct {
	Type       string    `json:"type"`
	IncidentID string    `json:"incident_id"`
	Status     string    `json:"status,omitempty"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
}

const (
	EventDetected         = "incident.detected"
	EventApprovalRequired = "incident.approval_required"
	EventHealed           = "incident.healed"
	EventFailed           = "incident.failed"
)

// Publisher publishes lifecycle events. A nil Publisher drops them.
type Publisher struct {
	Conn    publishConn
	Subject string
	Now     func() time.Time
}

func NewPublisher(nc *nats.Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultEventSubject
	}
	p := &Publisher{Subject: subject}
	if nc != nil {
		p.Conn = nc
	}
	return p
}

func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if p == nil || p.Conn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.At.IsZero() {
		ev.At = p.now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.Conn.Publish(p.subject(ev), data)
}

// subject returns Subject.<type>, e.g. autoheal.events.incident.healed.
func (p *Publisher) subject(ev Event) string {
	if ev.Type == "" {
		return p.Subject
	}
	return p.Subject + "." + ev.Type
}

func (p *Publisher) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
