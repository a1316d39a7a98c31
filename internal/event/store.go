package event

import "context"

// Store persists and retrieves events.
type Store interface {
	// Append persists one or more events atomically.
	Append(ctx context.Context, events ...Event) error
	// Load returns all events for an aggregate, ordered by version.
	Load(ctx context.Context, aggregateID string) ([]Event, error)
	// LoadByType returns events filtered by type.
	LoadByType(ctx context.Context, eventType Type) ([]Event, error)
}

// Nop is a Store that discards everything. Used when the engine runs
// without a journal (tests, dry runs).
type Nop struct{}

func (Nop) Append(context.Context, ...Event) error         { return nil }
func (Nop) Load(context.Context, string) ([]Event, error)  { return nil, nil }
func (Nop) LoadByType(context.Context, Type) ([]Event, error) { return nil, nil }
