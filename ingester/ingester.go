// Package ingester wires a config file into running watchers: one database store,
// optional distributed locks, an optional change-event publisher, an optional
// notifier, and one actor per watcher in an oklog/run group.
package ingester

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/oklog/run"

	"github.com/katasec/dstream-rowwatch/internal/cdc/poller"
	"github.com/katasec/dstream-rowwatch/internal/config"
	"github.com/katasec/dstream-rowwatch/internal/db"
	"github.com/katasec/dstream-rowwatch/internal/locking"
	"github.com/katasec/dstream-rowwatch/internal/logging"
	"github.com/katasec/dstream-rowwatch/internal/notify"
	"github.com/katasec/dstream-rowwatch/internal/reference"
	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// lockProvider hands out per-watcher locks.
type lockProvider interface {
	GetLockName(watcherName string) string
	CreateLocker(ctx context.Context, lockName string) (locking.DistributedLocker, error)
}

type Ingester struct {
	config    *config.Config
	store     *db.Store
	locks     lockProvider
	publisher cdc.ChangePublisher
	notifier  *notify.Notifier
	refs      *reference.Cache
	watchers  []*watcherActor
	log       hclog.Logger
}

// Option customizes an Ingester.
type Option func(*Ingester)

// WithPublisher replaces the publisher described by the config.
func WithPublisher(p cdc.ChangePublisher) Option {
	return func(s *Ingester) { s.publisher = p }
}

// WithTransport replaces the notifier transport described by the config.
func WithTransport(t notify.Transport) Option {
	return func(s *Ingester) {
		s.notifier = notify.New(t, notify.WithLogger(s.log.Named("notify")))
	}
}

// WithLocks replaces the lock provider described by the config.
func WithLocks(l lockProvider) Option {
	return func(s *Ingester) { s.locks = l }
}

func New(cfg *config.Config, opts ...Option) *Ingester {
	s := &Ingester{config: cfg, log: logging.GetLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Setup connects to every configured backend and builds the watchers.
func (s *Ingester) Setup(ctx context.Context) error {
	cfg := s.config

	idle, err := cfg.Database.GetConnMaxIdle()
	if err != nil {
		return fmt.Errorf("invalid database.conn_max_idle: %w", err)
	}
	store, err := db.Connect(ctx, db.Options{
		Driver:           cfg.Database.Driver,
		ConnectionString: cfg.Database.ConnectionString,
		MaxOpenConns:     cfg.Database.MaxOpenConns,
		ConnMaxIdleTime:  idle,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	s.store = store

	if s.locks == nil && cfg.Lock != nil {
		factory, err := locking.NewLockerFactory(
			cfg.Lock.Type,
			cfg.Lock.ConnectionString,
			cfg.Lock.ContainerName,
			cfg.Database.ConnectionString,
		)
		if err != nil {
			return err
		}
		s.locks = factory
	}

	if s.publisher == nil && cfg.Publisher != nil {
		if s.publisher, err = NewPublisher(ctx, *cfg.Publisher); err != nil {
			return err
		}
	}

	if len(cfg.References) > 0 {
		defs := make([]reference.Definition, 0, len(cfg.References))
		for _, r := range cfg.References {
			ttl, err := r.GetTTL()
			if err != nil {
				return fmt.Errorf("invalid ttl for reference %s: %w", r.Name, err)
			}
			defs = append(defs, reference.Definition{Name: r.Name, Query: r.Query, TTL: ttl})
		}
		if s.refs, err = reference.New(store, defs); err != nil {
			return err
		}
	}

	if s.notifier == nil && cfg.Notifier != nil {
		transport, err := NewTransport(*cfg.Notifier, s.log.Named("notify"))
		if err != nil {
			return err
		}
		delay, err := cfg.Notifier.GetDelay()
		if err != nil {
			return fmt.Errorf("invalid notifier.delay: %w", err)
		}
		s.notifier = notify.New(transport, notify.WithDelay(delay), notify.WithLogger(s.log.Named("notify")))
	}
	if s.notifier != nil && s.refs != nil {
		notify.WithReferences(s.refs)(s.notifier)
	}

	for _, wc := range cfg.Watchers {
		actor, err := s.newWatcherActor(wc)
		if err != nil {
			return err
		}
		s.watchers = append(s.watchers, actor)
	}
	return nil
}

// Start sets up the ingester and runs it, releasing every backend on return.
func (s *Ingester) Start(ctx context.Context) error {
	s.log.Info("Starting rowwatch ingester...")
	defer s.Stop()

	if err := s.Setup(ctx); err != nil {
		return err
	}
	return s.Run(ctx)
}

// Run runs every watcher built by Setup until ctx ends or the process receives an
// interrupt.
func (s *Ingester) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g run.Group
	for _, w := range s.watchers {
		actorCtx, actorCancel := context.WithCancel(ctx)
		w := w
		g.Add(func() error {
			return w.run(actorCtx)
		}, func(error) {
			actorCancel()
		})
	}

	sigs := make(chan os.Signal, 1)
	g.Add(func() error {
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		select {
		case sig := <-sigs:
			s.log.Info("Received signal, shutting down", "signal", sig.String())
		case <-ctx.Done():
			s.log.Info("Context cancelled, shutting down rowwatch ingester")
		}
		return nil
	}, func(error) {
		signal.Stop(sigs)
		cancel()
	})

	return g.Run()
}

// Stop releases the backends opened by Setup.
func (s *Ingester) Stop() error {
	var errs []error
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.notifier != nil {
		errs = append(errs, s.notifier.Close())
	}
	if s.refs != nil {
		s.refs.Close()
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}

// Watchers returns the watchers built by Setup.
func (s *Ingester) Watchers() []*poller.Watcher {
	out := make([]*poller.Watcher, len(s.watchers))
	for i, a := range s.watchers {
		out[i] = a.watcher
	}
	return out
}
