package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"autoheal/internal/incident"
)

type fakeConn struct {
	mu       sync.Mutex
	subjects []string
	data     [][]byte
	err      error
	handler  nats.MsgHandler
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.data = append(f.data, data)
	return f.err
}

func (f *fakeConn) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.subjects = append(f.subjects, subject)
	f.handler = cb
	return nil, nil
}

func (f *fakeConn) deliver(data string) {
	f.mu.Lock()
	cb := f.handler
	f.mu.Unlock()
	cb(&nats.Msg{Subject: DefaultAlarmSubject, Data: []byte(data)})
}

type fakeDetector struct {
	mu     sync.Mutex
	events []incident.AlarmEvent
	err    error
}

func (f *fakeDetector) Detect(ctx context.Context, ev incident.AlarmEvent) (incident.Incident, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return incident.Incident{}, true, f.err
}

func TestPublishEvent(t *testing.T) {
	conn := &fakeConn{}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p := &Publisher{Conn: conn, Subject: DefaultEventSubject, Now: func() time.Time { return now }}
	if err := p.Publish(context.Background(), Event{Type: EventHealed, IncidentID: "inc_1", Status: "RESOLVED"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if conn.subjects[0] != "autoheal.events.incident.healed" {
		t.Fatalf("subject: %s", conn.subjects[0])
	}
	var ev Event
	if err := json.Unmarshal(conn.data[0], &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.IncidentID != "inc_1" || !ev.At.Equal(now) {
		t.Fatalf("event: %#v", ev)
	}
}

func TestPublisherNilAndErrors(t *testing.T) {
	var p *Publisher
	if err := p.Publish(context.Background(), Event{}); err != nil {
		t.Fatalf("nil publisher: %v", err)
	}
	if err := NewPublisher(nil, "").Publish(context.Background(), Event{}); err != nil {
		t.Fatalf("unconnected publisher: %v", err)
	}
	conn := &fakeConn{err: errors.New("disconnected")}
	if err := (&Publisher{Conn: conn, Subject: "x"}).Publish(context.Background(), Event{Type: EventFailed}); err == nil {
		t.Fatalf("expected publish error")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (&Publisher{Conn: &fakeConn{}, Subject: "x"}).Publish(ctx, Event{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestAlarmSubscriberFeedsDetector(t *testing.T) {
	conn := &fakeConn{}
	det := &fakeDetector{}
	s := &AlarmSubscriber{Conn: conn, Subject: DefaultAlarmSubject, Detector: det, Timeout: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.mu.Lock()
		ready := conn.handler != nil
		conn.mu.Unlock()
		if ready {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("subscription not started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	conn.deliver(`{"detail":{"alarmName":"HighCPU","state":{"value":"ALARM"}}}`)
	conn.deliver(`not json`)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run: %v", err)
	}
	if len(det.events) != 1 || det.events[0].Detail.AlarmName != "HighCPU" {
		t.Fatalf("events: %#v", det.events)
	}
}

func TestAlarmSubscriberErrors(t *testing.T) {
	if err := NewAlarmSubscriber(nil, "", &fakeDetector{}, nil).Run(context.Background()); err == nil {
		t.Fatalf("expected error without connection")
	}
	s := &AlarmSubscriber{Conn: &fakeConn{err: errors.New("no responders")}, Detector: &fakeDetector{}}
	if err := s.Run(context.Background()); err == nil {
		t.Fatalf("expected subscribe error")
	}
}
