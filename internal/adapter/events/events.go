// internal/adapter/events/events.go

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"spotit/internal/domain/spot"
	"spotit/internal/service/session"
)

// NotifyPrefix is the subject prefix of per-user sink messages
const NotifyPrefix = "notify"

// Message is the payload a sink delivers to a user's devices
type Message struct {
	Type     string        `json:"type"`
	UserID   string        `json:"user_id"`
	Message  string        `json:"message"`
	Severity spot.Severity `json:"severity"`
	Time     time.Time     `json:"time"`
}

// NotifySubject returns the subject carrying userID's sink messages
func NotifySubject(userID string) string {
	return fmt.Sprintf("%s.%s", NotifyPrefix, userID)
}

// SpotSubject returns the subject a spot event type is published on
func SpotSubject(topic, eventType string) string {
	return fmt.Sprintf("%s.%s", topic, eventType)
}

// Publisher publishes spot lifecycle events on NATS
type Publisher struct {
	conn  *nats.Conn
	topic string
}

// NewPublisher creates a publisher that prefixes subjects with topic
func NewPublisher(conn *nats.Conn, topic string) *Publisher {
	return &Publisher{
		conn:  conn,
		topic: topic,
	}
}

// Publish sends an event to <topic>.<event type>
func (p *Publisher) Publish(ctx context.Context, event session.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("error marshaling event: %w", err)
	}
	return p.conn.Publish(SpotSubject(p.topic, event.Type), data)
}

// Subscribe delivers every spot event under topic to handler. Malformed
// payloads are logged and dropped.
func Subscribe(conn *nats.Conn, topic string, logger *slog.Logger, handler func(session.Event)) (*nats.Subscription, error) {
	sub, err := conn.Subscribe(topic+".>", func(msg *nats.Msg) {
		var event session.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.Warn("Dropping malformed spot event", "subject", msg.Subject, "error", err)
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to spot events: %w", err)
	}
	return sub, nil
}

// NATSSink publishes sink messages to notify.<user>, where the WebSocket
// endpoint picks them up
type NATSSink struct {
	conn   *nats.Conn
	logger *slog.Logger
	now    func() time.Time
}

// NewNATSSink creates a sink backed by NATS
func NewNATSSink(conn *nats.Conn, logger *slog.Logger) *NATSSink {
	return &NATSSink{
		conn:   conn,
		logger: logger,
		now:    time.Now,
	}
}

// Show publishes a message; failures are only logged
func (s *NATSSink) Show(ctx context.Context, userID, message string, severity spot.Severity) {
	data, err := json.Marshal(Message{
		Type:     "toast",
		UserID:   userID,
		Message:  message,
		Severity: severity,
		Time:     s.now(),
	})
	if err != nil {
		s.logger.Error("Failed to marshal sink message", "error", err)
		return
	}
	if err := s.conn.Publish(NotifySubject(userID), data); err != nil {
		s.logger.Warn("Failed to publish sink message", "user", userID, "error", err)
	}
}

// LogSink writes sink messages to the log. It stands in for NATSSink when no
// event bus is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a logging sink
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Show logs the message at a level matching its severity
func (s *LogSink) Show(ctx context.Context, userID, message string, severity spot.Severity) {
	level := slog.LevelInfo
	switch severity {
	case spot.SeverityWarning:
		level = slog.LevelWarn
	case spot.SeverityError:
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, message, "user", userID, "severity", severity)
}

// FanOut shows the same message on several sinks
type FanOut []session.Sink

// Show forwards to every sink
func (f FanOut) Show(ctx context.Context, userID, message string, severity spot.Severity) {
	for _, sink := range f {
		sink.Show(ctx, userID, message, severity)
	}
}
