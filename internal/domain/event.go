package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TraceEvent is one atomic event delivered by a trace provider.
type TraceEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	ProviderID   uuid.UUID `json:"providerId,omitempty"`
	ProviderName string    `json:"provider,omitempty"`
	Severity     Severity  `json:"severity"`
	Keywords     uint64    `json:"keywords,omitempty"`
	ActivityID   uint64    `json:"activityId,omitempty"`
	Message      string    `json:"message"`
}

// FormatText renders the event as a single text line. This is the form
// regex filters and text-backed destinations operate on.
func (e *TraceEvent) FormatText() string {
	return fmt.Sprintf("%s [%s] %s: %s",
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Severity,
		e.ProviderName,
		e.Message)
}

// MatchesSubscriptionLevel reports whether an event at this severity
// passes a subscription's minimum level. SeverityAlways events (ordinal
// zero) pass every subscription.
func (e *TraceEvent) MatchesSubscriptionLevel(minimum Severity) bool {
	return e.Severity <= minimum
}
