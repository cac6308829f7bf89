// internal/domain/spot/notification.go

package spot

import "time"

// Notification tells a viewer that a Spot became visible to them. Read only
// ever flips from false to true.
type Notification struct {
	ID         string    `json:"id"`
	SpotID     string    `json:"spot_id"`
	Read       bool      `json:"read"`
	ReceivedAt time.Time `json:"received_at"`
}

// Severity classifies a user-facing message
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)
