package friend

import (
	"testing"
	"time"
)

func TestFormatLastActive(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ago  time.Duration
		want string
	}{
		{"seconds", 20 * time.Second, "Just now"},
		{"rounds up to a minute", 40 * time.Second, "1m ago"},
		{"minutes", 12 * time.Minute, "12m ago"},
		{"59 minutes", 59 * time.Minute, "59m ago"},
		{"one hour", 60 * time.Minute, "1h ago"},
		{"hours round", 3*time.Hour + 20*time.Minute, "3h ago"},
		{"23 hours", 23 * time.Hour, "23h ago"},
		{"one day", 24 * time.Hour, "1d ago"},
		{"days", 50 * time.Hour, "2d ago"},
		{"future clock skew", -time.Minute, "Just now"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatLastActive(now.Add(-tt.ago), now); got != tt.want {
				t.Errorf("FormatLastActive(-%v) = %q, want %q", tt.ago, got, tt.want)
			}
		})
	}
}

func TestLastActiveLabel(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seen := now.Add(-12 * time.Minute)

	tests := []struct {
		name   string
		friend Friend
		want   string
	}{
		{"online", Friend{Status: StatusOnline, LastActive: &seen}, "Online now"},
		{"offline with heartbeat", Friend{Status: StatusOffline, LastActive: &seen}, "12m ago"},
		{"offline never seen", Friend{Status: StatusOffline}, "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.friend.LastActiveLabel(now); got != tt.want {
				t.Errorf("LastActiveLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWithPresence(t *testing.T) {
	seen := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	f := Friend{ID: "bob"}

	online := f.WithPresence(true, seen)
	if online.Status != StatusOnline || online.LastActive != nil {
		t.Errorf("online friend = %+v, want online without LastActive", online)
	}

	offline := f.WithPresence(false, seen)
	if offline.Status != StatusOffline || offline.LastActive == nil || !offline.LastActive.Equal(seen) {
		t.Errorf("offline friend = %+v, want offline with LastActive %v", offline, seen)
	}

	unknown := f.WithPresence(false, time.Time{})
	if unknown.LastActive != nil {
		t.Errorf("never-seen friend should have no LastActive, got %v", unknown.LastActive)
	}
}

func TestParseDecision(t *testing.T) {
	if d, err := ParseDecision("accept"); err != nil || d != Accept {
		t.Errorf("ParseDecision(accept) = (%q, %v)", d, err)
	}
	if _, err := ParseDecision("maybe"); err == nil {
		t.Error("ParseDecision(maybe) should fail")
	}
}
