package ingester

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/katasec/dstream-rowwatch/internal/cdc/poller"
	"github.com/katasec/dstream-rowwatch/internal/cdc/utils"
	"github.com/katasec/dstream-rowwatch/internal/config"
	"github.com/katasec/dstream-rowwatch/internal/notify"
	"github.com/katasec/dstream-rowwatch/internal/sink"
	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// watcherActor owns one watcher and its lock for the lifetime of the run group.
type watcherActor struct {
	name    string
	watcher *poller.Watcher
	cfg     config.WatcherConfig
	locks   lockProvider
	log     hclog.Logger
}

// WatcherConfig converts a config block into a poller configuration.
func WatcherConfig(wc config.WatcherConfig) (poller.Config, error) {
	interval, err := wc.GetPollInterval()
	if err != nil {
		return poller.Config{}, fmt.Errorf("invalid poll_interval for watcher %s: %w", wc.Name, err)
	}
	return poller.Config{
		Name:         wc.Name,
		Query:        wc.Query,
		IDField:      wc.IDField,
		IDColumn:     wc.IDColumn,
		Table:        wc.Table,
		Columns:      wc.Columns,
		Where:        wc.Where,
		TrackUpdates: wc.TrackUpdates,
		TrackDeletes: wc.TrackDeletes,
		IgnoreFields: wc.Ignored(),
		PollInterval: interval,
	}, nil
}

// changeTypes maps notify block labels onto change types.
var changeTypes = map[string]cdc.ChangeType{
	"new":    cdc.Insert,
	"update": cdc.Update,
	"delete": cdc.Delete,
}

func (s *Ingester) newWatcherActor(wc config.WatcherConfig) (*watcherActor, error) {
	pcfg, err := WatcherConfig(wc)
	if err != nil {
		return nil, err
	}

	var handlers []cdc.Handlers
	if s.publisher != nil {
		handlers = append(handlers, sink.Handlers(wc.Name, wc.IDField, s.publisher))
	}
	if len(wc.Notify) > 0 {
		if s.notifier == nil {
			return nil, fmt.Errorf("watcher %s has notify blocks but no notifier is configured", wc.Name)
		}
		routes := make([]*notify.Route, 0, len(wc.Notify))
		for _, n := range wc.Notify {
			route, err := notify.NewRoute(notify.RouteConfig{
				Change:    changeTypes[n.On],
				To:        n.To,
				Message:   n.Message,
				Reference: n.Reference,
				When:      n.When,
			})
			if err != nil {
				return nil, fmt.Errorf("watcher %s notify %q: %w", wc.Name, n.On, err)
			}
			routes = append(routes, route)
		}
		handlers = append(handlers, s.notifier.Handlers(wc.Name, wc.IDField, routes))
	}

	log := s.log.Named("watcher")
	w, err := poller.New(pcfg, s.store, cdc.MultiHandlers(handlers...),
		poller.WithLogger(log),
		poller.WithPlanner(poller.PlannerFor(pcfg, s.store.Driver())))
	if err != nil {
		return nil, err
	}

	return &watcherActor{
		name:    wc.Name,
		watcher: w,
		cfg:     wc,
		locks:   s.locks,
		log:     log.With("watcher", wc.Name),
	}, nil
}

// run holds the watcher lock, starts the watcher and blocks until ctx ends. A
// watcher locked by another instance idles instead of returning, so it does not
// bring down the group.
func (a *watcherActor) run(ctx context.Context) error {
	if a.locks != nil {
		lockName := a.locks.GetLockName(a.name)
		locker, err := a.locks.CreateLocker(ctx, lockName)
		if err != nil {
			a.log.Error("Failed to create locker", "error", err)
			<-ctx.Done()
			return nil
		}
		leaseID, err := locker.AcquireLock(ctx)
		if err != nil || leaseID == "" {
			a.log.Info("Watcher already locked, skipping", "lock", lockName, "error", err)
			<-ctx.Done()
			return nil
		}
		a.log.Debug("Acquired lease", "lease_id", leaseID)
		locker.StartLockRenewal(ctx)
		defer func() {
			if err := locker.ReleaseLock(context.Background()); err != nil {
				a.log.Error("Failed to release lock", "error", err)
			}
		}()
	}

	if err := a.start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return a.watcher.Stop()
}

// start retries initialization with exponential backoff until it succeeds or ctx ends.
func (a *watcherActor) start(ctx context.Context) error {
	interval, err := a.cfg.GetPollInterval()
	if err != nil {
		return err
	}
	maxInterval, err := a.cfg.GetMaxPollInterval()
	if err != nil {
		return err
	}
	backoff := utils.NewBackoffManager(interval, maxInterval)

	for {
		err := a.watcher.Start(ctx, interval)
		if err == nil {
			return nil
		}
		var initErr *poller.InitializationError
		if !errors.As(err, &initErr) {
			return err
		}
		a.log.Warn("Watcher failed to initialize, retrying", "in", backoff.GetInterval(), "error", err)
		if backoff.Wait(ctx) != nil {
			return a.watcher.Stop()
		}
	}
}
