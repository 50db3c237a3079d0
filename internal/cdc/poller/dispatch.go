package poller

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"

	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// dispatcher invokes the change handlers. A failing or panicking handler is logged
// and counted; it never stops the cycle or the other handlers.
type dispatcher struct {
	handlers cdc.Handlers
	log      hclog.Logger
	failures *atomic.Int64
}

func (d *dispatcher) onNew(ctx context.Context, rows []cdc.Row) error {
	if d.handlers.OnNew == nil || len(rows) == 0 {
		return nil
	}
	return d.invoke(ctx, cdc.Insert, len(rows), func(ctx context.Context) error {
		return d.handlers.OnNew(ctx, rows)
	})
}

func (d *dispatcher) onUpdate(ctx context.Context, rows []cdc.Row) error {
	if d.handlers.OnUpdate == nil || len(rows) == 0 {
		return nil
	}
	return d.invoke(ctx, cdc.Update, len(rows), func(ctx context.Context) error {
		return d.handlers.OnUpdate(ctx, rows)
	})
}

func (d *dispatcher) onDelete(ctx context.Context, ids []cdc.Identity) error {
	if d.handlers.OnDelete == nil || len(ids) == 0 {
		return nil
	}
	return d.invoke(ctx, cdc.Delete, len(ids), func(ctx context.Context) error {
		return d.handlers.OnDelete(ctx, ids)
	})
}

func (d *dispatcher) invoke(ctx context.Context, change cdc.ChangeType, count int, fn func(context.Context) error) (err error) {
	d.log.Debug("Calling handler", "change", change, "count", count)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			d.failures.Add(1)
			d.log.Error("Handler failed", "change", change, "count", count, "error", err)
			err = &HandlerError{Change: change, Err: err}
			return
		}
		d.log.Debug("Handler completed", "change", change, "count", count)
	}()

	return fn(ctx)
}
