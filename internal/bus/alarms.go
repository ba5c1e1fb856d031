package bus

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"autoheal/internal/incident"
)

type subscribeConn interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

type AlarmDetector interface {
	Detect(ctx context.Context, ev incident.AlarmEvent) (incident.Incident, bool, error)
}

// AlarmSubscriber feeds alarm events published on Subject to the detector.
type AlarmSubscriber struct {
	Conn     subscribeConn
	Subject  string
	Detector AlarmDetector
	Timeout  time.Duration
	Logger   *slog.Logger
}

func NewAlarmSubscriber(nc *nats.Conn, subject string, detector AlarmDetector, logger *slog.Logger) *AlarmSubscriber {
	if subject == "" {
		subject = DefaultAlarmSubject
	}
	s := &AlarmSubscriber{Subject: subject, Detector: detector, Timeout: 10 * time.Second, Logger: logger}
	if nc != nil {
		s.Conn = nc
	}
	return s
}

// Run subscribes and blocks until ctx is done.
func (s *AlarmSubscriber) Run(ctx context.Context) error {
	if s.Conn == nil || s.Detector == nil {
		return errors.New("connection and detector required")
	}
	sub, err := s.Conn.Subscribe(s.Subject, func(msg *nats.Msg) {
		s.handle(ctx, msg)
	})
	if err != nil {
		return err
	}
	s.logger().Info("alarm subscription started", "subject", s.Subject)
	<-ctx.Done()
	if sub != nil {
		_ = sub.Unsubscribe()
	}
	return ctx.Err()
}

func (s *AlarmSubscriber) handle(ctx context.Context, msg *nats.Msg) {
	logger := s.logger()
	ev, err := incident.ParseAlarmEvent(msg.Data)
	if err != nil {
		logger.Warn("alarm message dropped", "subject", msg.Subject, "error", err)
		return
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	if _, _, err := s.Detector.Detect(ctx, ev); err != nil {
		logger.Error("alarm intake failed", "alarm_name", ev.Detail.AlarmName, "error", err)
	}
}

func (s *AlarmSubscriber) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
