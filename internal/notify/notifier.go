// Package notify turns detected row changes into rendered messages, one per row,
// and hands them to a transport with a fixed pause between messages.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/katasec/dstream-rowwatch/internal/logging"
	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// ReferenceSource resolves reference rows by name.
type ReferenceSource interface {
	Get(ctx context.Context, name string) (cdc.Row, error)
}

// Notifier sends route messages through one transport.
type Notifier struct {
	transport Transport
	refs      ReferenceSource
	delay     time.Duration
	log       hclog.Logger
	now       func() time.Time
}

// Option customizes a Notifier.
type Option func(*Notifier)

// WithDelay pauses between consecutive messages of one batch.
func WithDelay(d time.Duration) Option {
	return func(n *Notifier) { n.delay = d }
}

// WithReferences makes reference rows available to routes.
func WithReferences(refs ReferenceSource) Option {
	return func(n *Notifier) { n.refs = refs }
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(n *Notifier) { n.log = l }
}

// New creates a Notifier over transport.
func New(transport Transport, opts ...Option) *Notifier {
	n := &Notifier{transport: transport, now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	if n.log == nil {
		n.log = logging.GetLogger().Named("notify")
	}
	return n
}

// Close closes the transport.
func (n *Notifier) Close() error {
	return n.transport.Close()
}

// Handlers returns change handlers that notify through routes for the named watcher.
func (n *Notifier) Handlers(watcher, idField string, routes []*Route) cdc.Handlers {
	byChange := map[cdc.ChangeType][]*Route{}
	for _, r := range routes {
		byChange[r.change] = append(byChange[r.change], r)
	}

	var h cdc.Handlers
	if rs := byChange[cdc.Insert]; len(rs) > 0 {
		h.OnNew = func(ctx context.Context, rows []cdc.Row) error {
			return n.notifyRows(ctx, watcher, idField, cdc.Insert, rows, rs)
		}
	}
	if rs := byChange[cdc.Update]; len(rs) > 0 {
		h.OnUpdate = func(ctx context.Context, rows []cdc.Row) error {
			return n.notifyRows(ctx, watcher, idField, cdc.Update, rows, rs)
		}
	}
	if rs := byChange[cdc.Delete]; len(rs) > 0 {
		h.OnDelete = func(ctx context.Context, ids []cdc.Identity) error {
			rows := make([]cdc.Row, len(ids))
			for i, id := range ids {
				rows[i] = cdc.Row{idField: int64(id)}
			}
			return n.notifyRows(ctx, watcher, idField, cdc.Delete, rows, rs)
		}
	}
	return h
}

// notifyRows sends every matching message. A failed row does not stop the batch;
// failures are returned joined.
func (n *Notifier) notifyRows(ctx context.Context, watcher, idField string, change cdc.ChangeType, rows []cdc.Row, routes []*Route) error {
	var errs []error
	sent := 0

	for _, route := range routes {
		var ref cdc.Row
		if route.reference != "" && n.refs != nil {
			var err error
			if ref, err = n.refs.Get(ctx, route.reference); err != nil {
				errs = append(errs, err)
				continue
			}
		}

		for _, row := range rows {
			id, _ := cdc.IdentityOf(row, idField)
			data := TemplateData{Watcher: watcher, Change: change, ID: id, Row: row, Ref: ref}

			ok, err := route.Match(data)
			if err != nil {
				errs = append(errs, fmt.Errorf("row %s: %w", id, err))
				continue
			}
			if !ok {
				continue
			}
			to, body, err := route.Render(data)
			if err != nil {
				errs = append(errs, fmt.Errorf("row %s: %w", id, err))
				continue
			}
			if to == "" {
				n.log.Warn("Skipping notification with empty destination", "watcher", watcher, "id", id)
				continue
			}

			if sent > 0 && n.delay > 0 {
				if err := sleep(ctx, n.delay); err != nil {
					return errors.Join(append(errs, err)...)
				}
			}
			sent++

			msg := Message{
				ID:        uuid.NewString(),
				Watcher:   watcher,
				Change:    change,
				Identity:  id,
				To:        to,
				Body:      body,
				CreatedAt: n.now().UTC().Format(time.RFC3339),
			}
			if err := n.transport.Send(ctx, msg); err != nil {
				n.log.Error("Failed to send notification", "watcher", watcher, "to", to, "error", err)
				errs = append(errs, err)
				continue
			}
			n.log.Debug("Notification sent", "watcher", watcher, "to", to, "id", id)
		}
	}
	return errors.Join(errs...)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
