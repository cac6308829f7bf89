package events

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"spotit/internal/domain/spot"
)

func TestSubjects(t *testing.T) {
	if got := NotifySubject("alice"); got != "notify.alice" {
		t.Errorf("NotifySubject() = %q", got)
	}
	if got := SpotSubject("spotit", "spot.created"); got != "spotit.spot.created" {
		t.Errorf("SpotSubject() = %q", got)
	}
}

func TestLogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewLogSink(logger)

	tests := []struct {
		severity spot.Severity
		level    string
	}{
		{spot.SeverityInfo, "level=INFO"},
		{spot.SeverityWarning, "level=WARN"},
		{spot.SeverityError, "level=ERROR"},
	}

	for _, tt := range tests {
		buf.Reset()
		sink.Show(context.Background(), "alice", "Spot Created", tt.severity)
		out := buf.String()
		if !strings.Contains(out, tt.level) || !strings.Contains(out, "user=alice") {
			t.Errorf("Show(%s) logged %q, want %s", tt.severity, out, tt.level)
		}
	}
}

type countingSink struct{ n int }

func (c *countingSink) Show(ctx context.Context, userID, message string, severity spot.Severity) {
	c.n++
}

func TestFanOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	FanOut{a, b}.Show(context.Background(), "alice", "hi", spot.SeverityInfo)
	if a.n != 1 || b.n != 1 {
		t.Errorf("fan-out delivered (%d, %d), want (1, 1)", a.n, b.n)
	}
}
