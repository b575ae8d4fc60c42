package history

import (
	"context"
	"time"
)

// EventType names the lifecycle operation that produced an event.
type EventType string

const (
	EventInstall   EventType = "install"
	EventReinstall EventType = "reinstall"
	EventUninstall EventType = "uninstall"
	EventUpgrade   EventType = "upgrade"
	EventStartup   EventType = "startup"
	EventShutdown  EventType = "shutdown"
)

// DefaultTable is used by SQL and ClickHouse sinks when no table is configured.
const DefaultTable = "product_history"

// Event is the terminal outcome of one lifecycle operation.
type Event struct {
	Type        EventType `json:"type" db:"type"`
	Product     string    `json:"product" db:"product"`
	OperationID string    `json:"operation_id" db:"operation_id"`
	OccurredAt  time.Time `json:"occurred_at" db:"occurred_at"`
	PID         int       `json:"pid,omitempty" db:"pid"`
	Error       string    `json:"error,omitempty" db:"error"`
}

// OK reports whether the operation succeeded.
func (e Event) OK() bool { return e.Error == "" }

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Filter selects events for Query. Zero values match everything.
type Filter struct {
	Product string
	Limit   int
}

// DefaultLimit caps Query results when Filter.Limit is unset.
const DefaultLimit = 100

func (f Filter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return f.Limit
}

// Querier is implemented by sinks that can read their events back, newest first.
type Querier interface {
	Query(ctx context.Context, f Filter) ([]Event, error)
}
