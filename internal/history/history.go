package history

import (
	"context"
	"log/slog"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStarted      EventType = "started"
	EventStartFailed  EventType = "start_failed"
	EventStartTimeout EventType = "start_timeout"
	EventStopped      EventType = "stopped"
	EventRestarted    EventType = "restarted"
)

// Event represents one lifecycle transition of the managed service, exported
// to external analytics or audit systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Service    string    `json:"service"`
	PID        int       `json:"pid"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Record sends e to s when a sink is configured. Failures are logged and
// swallowed; history export must never break a lifecycle operation.
func Record(ctx context.Context, s Sink, e Event) {
	if s == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if err := s.Send(ctx, e); err != nil {
		slog.Warn("history sink send failed", "type", string(e.Type), "service", e.Service, "error", err)
	}
}
