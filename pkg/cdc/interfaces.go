package cdc

import (
	"context"
	"errors"
)

// Session executes statements on one store connection. It is owned by a single
// watcher for its whole lifetime.
type Session interface {
	// Query runs the statement and returns every row of the result.
	Query(ctx context.Context, stmt Statement) ([]Row, error)

	// Close releases the underlying connection.
	Close() error
}

// SessionProvider hands out sessions.
type SessionProvider interface {
	// Acquire returns a session dedicated to the caller.
	Acquire(ctx context.Context) (Session, error)
}

// Handlers are the per-class change callbacks. Each one is optional and receives
// the whole batch for a poll cycle.
type Handlers struct {
	OnNew    func(ctx context.Context, rows []Row) error
	OnUpdate func(ctx context.Context, rows []Row) error
	OnDelete func(ctx context.Context, ids []Identity) error
}

// MultiHandlers fans each change class out to every non-nil handler in hs.
// All handlers run; their errors are joined.
func MultiHandlers(hs ...Handlers) Handlers {
	var out Handlers
	var onNew, onUpdate []func(context.Context, []Row) error
	var onDelete []func(context.Context, []Identity) error
	for _, h := range hs {
		if h.OnNew != nil {
			onNew = append(onNew, h.OnNew)
		}
		if h.OnUpdate != nil {
			onUpdate = append(onUpdate, h.OnUpdate)
		}
		if h.OnDelete != nil {
			onDelete = append(onDelete, h.OnDelete)
		}
	}
	if len(onNew) > 0 {
		out.OnNew = fanOut(onNew)
	}
	if len(onUpdate) > 0 {
		out.OnUpdate = fanOut(onUpdate)
	}
	if len(onDelete) > 0 {
		out.OnDelete = fanOut(onDelete)
	}
	return out
}

func fanOut[T any](fns []func(context.Context, []T) error) func(context.Context, []T) error {
	return func(ctx context.Context, batch []T) error {
		var errs []error
		for _, fn := range fns {
			if err := fn(ctx, batch); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// ChangePublisher is an interface for publishing change events downstream
type ChangePublisher interface {
	// PublishChanges publishes a batch of change events to a queue, topic or stream.
	// The entire batch should succeed or fail as a unit where the transport allows it.
	PublishChanges(ctx context.Context, events []ChangeEvent) error

	// Close releases any resources used by the publisher
	Close() error
}
