// Package poller runs the change-detection loop for one watched query.
//
// A Watcher bootstraps a watermark (the highest identity seen) and, when update or
// delete tracking is on, a snapshot of row fingerprints. Each poll cycle fetches the
// rows above the watermark and reports them as new, then optionally re-reads the
// whole result set to find updated and deleted rows.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/katasec/dstream-rowwatch/internal/cdc/diff"
	"github.com/katasec/dstream-rowwatch/internal/cdc/query"
	"github.com/katasec/dstream-rowwatch/internal/logging"
	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// Config is the immutable description of one watcher.
type Config struct {
	Name    string
	Query   string
	IDField string

	// IDColumn is the SQL expression for the identity, e.g. "p.PatientID" in a join.
	// Defaults to IDField.
	IDColumn string

	// Table, Columns and Where select the explicit planner instead of rewriting Query.
	Table   string
	Columns []string
	Where   string

	TrackUpdates bool
	TrackDeletes bool

	// IgnoreFields are excluded from fingerprints. Nil means diff.DefaultVolatileFields.
	IgnoreFields []string

	PollInterval time.Duration
}

// Validate checks the required fields.
func (c Config) Validate() error {
	if c.Query == "" && c.Table == "" {
		return fmt.Errorf("watcher %q: query or table is required", c.Name)
	}
	if c.IDField == "" {
		return fmt.Errorf("watcher %q: id_field is required", c.Name)
	}
	return nil
}

func (c Config) tracking() bool {
	return c.TrackUpdates || c.TrackDeletes
}

func (c Config) idColumn() string {
	if c.IDColumn != "" {
		return c.IDColumn
	}
	return c.IDField
}

func (c Config) ignoreFields() []string {
	if c.IgnoreFields == nil {
		return diff.DefaultVolatileFields
	}
	return c.IgnoreFields
}

// PlannerFor picks the statement planner for cfg on the given database/sql driver.
func PlannerFor(cfg Config, driver string) query.Planner {
	if cfg.Table != "" {
		return query.TablePlanner{
			Table:       cfg.Table,
			Columns:     cfg.Columns,
			Where:       cfg.Where,
			IDColumn:    cfg.idColumn(),
			Placeholder: query.PlaceholderFor(driver),
		}
	}
	return query.TextPlanner{Base: cfg.Query, IDField: cfg.IDField, IDColumn: cfg.idColumn()}
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger; the watcher name is attached to it.
func WithLogger(l hclog.Logger) Option {
	return func(w *Watcher) {
		w.log = l
	}
}

// WithPlanner overrides the planner derived from the config.
func WithPlanner(p query.Planner) Option {
	return func(w *Watcher) {
		w.planner = p
	}
}

// Stats are point-in-time counters.
type Stats struct {
	Ticks         int64 `json:"ticks"`
	SkippedTicks  int64 `json:"skipped_ticks"`
	Polls         int64 `json:"polls"`
	QueryErrors   int64 `json:"query_errors"`
	HandlerErrors int64 `json:"handler_errors"`
	NewRows       int64 `json:"new_rows"`
	UpdatedRows   int64 `json:"updated_rows"`
	DeletedRows   int64 `json:"deleted_rows"`
	SkippedRows   int64 `json:"skipped_rows"`
}

// Watcher detects new, updated and deleted rows of one query.
// It is safe for concurrent use; at most one poll cycle runs at a time.
type Watcher struct {
	cfg      Config
	sessions cdc.SessionProvider
	planner  query.Planner
	log      hclog.Logger
	dispatch *dispatcher

	state        atomic.Int32
	skipNextTick atomic.Bool

	// lifeMu is held shared by Initialize and poll cycles, exclusively by Stop
	lifeMu sync.RWMutex

	mu           sync.Mutex
	session      cdc.Session
	watermark    cdc.Identity
	hasWatermark bool
	snapshot     cdc.Snapshot

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	ticks, skippedTicks, polls, queryErrors, handlerErrors atomic.Int64
	newRows, updatedRows, deletedRows, skippedRows         atomic.Int64
}

// New creates a Watcher in the uninitialized state.
func New(cfg Config, sessions cdc.SessionProvider, handlers cdc.Handlers, opts ...Option) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sessions == nil {
		return nil, fmt.Errorf("watcher %q: session provider cannot be nil", cfg.Name)
	}

	w := &Watcher{
		cfg:      cfg,
		sessions: sessions,
		snapshot: cdc.Snapshot{},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.planner == nil {
		w.planner = PlannerFor(cfg, "")
	}
	if w.log == nil {
		w.log = logging.GetLogger()
	}
	w.log = w.log.With("watcher", cfg.Name)
	w.dispatch = &dispatcher{handlers: handlers, log: w.log, failures: &w.handlerErrors}

	return w, nil
}

// Name returns the configured watcher name.
func (w *Watcher) Name() string { return w.cfg.Name }

// State returns the current lifecycle state.
func (w *Watcher) State() State { return State(w.state.Load()) }

// Watermark returns the highest identity seen so far, if any.
func (w *Watcher) Watermark() (cdc.Identity, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watermark, w.hasWatermark
}

// Snapshot returns a copy of the current fingerprint snapshot.
func (w *Watcher) Snapshot() cdc.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot.Clone()
}

// SnapshotSize returns the number of rows in the snapshot.
func (w *Watcher) SnapshotSize() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.snapshot)
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Ticks:         w.ticks.Load(),
		SkippedTicks:  w.skippedTicks.Load(),
		Polls:         w.polls.Load(),
		QueryErrors:   w.queryErrors.Load(),
		HandlerErrors: w.handlerErrors.Load(),
		NewRows:       w.newRows.Load(),
		UpdatedRows:   w.updatedRows.Load(),
		DeletedRows:   w.deletedRows.Load(),
		SkippedRows:   w.skippedRows.Load(),
	}
}

// Initialize acquires a session and loads the baseline: the watermark from the
// max-identity query and, when tracking changes, the snapshot from a full fetch.
// On failure nothing is kept and the watcher stays uninitialized.
func (w *Watcher) Initialize(ctx context.Context) error {
	w.lifeMu.RLock()
	defer w.lifeMu.RUnlock()

	if !w.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
		switch w.State() {
		case StateStopped:
			return ErrStopped
		case StateInitializing:
			return ErrInitializing
		default:
			return nil
		}
	}

	w.log.Info("Initializing watcher",
		"id_field", w.cfg.IDField,
		"track_updates", w.cfg.TrackUpdates,
		"track_deletes", w.cfg.TrackDeletes)

	session, err := w.sessions.Acquire(ctx)
	if err != nil {
		return w.initFailed(fmt.Errorf("failed to acquire session: %w", err))
	}

	wm, hasWM, snap, err := w.loadBaseline(ctx, session)
	if err != nil {
		session.Close()
		return w.initFailed(err)
	}

	w.mu.Lock()
	w.session = session
	w.watermark, w.hasWatermark = wm, hasWM
	w.snapshot = snap
	w.mu.Unlock()

	// the bootstrap already covers what the first tick would fetch
	w.skipNextTick.Store(true)

	if !w.state.CompareAndSwap(int32(StateInitializing), int32(StateReady)) {
		w.mu.Lock()
		w.session, w.snapshot = nil, nil
		w.mu.Unlock()
		session.Close()
		return ErrStopped
	}

	if hasWM {
		w.log.Info("Initialized watcher", "watermark", wm, "snapshot", len(snap))
	} else {
		w.log.Info("Initialized watcher, no existing rows found")
	}
	return nil
}

func (w *Watcher) initFailed(err error) error {
	w.state.CompareAndSwap(int32(StateInitializing), int32(StateUninitialized))
	w.log.Error("Initialization failed", "error", err)
	return &InitializationError{Watcher: w.cfg.Name, Err: err}
}

func (w *Watcher) loadBaseline(ctx context.Context, session cdc.Session) (cdc.Identity, bool, cdc.Snapshot, error) {
	stmt, err := w.planner.MaxIdentity()
	if err != nil {
		return 0, false, nil, err
	}
	rows, err := session.Query(ctx, stmt)
	if err != nil {
		return 0, false, nil, fmt.Errorf("max identity query failed: %w", err)
	}
	wm, hasWM, err := maxIdentity(rows)
	if err != nil {
		return 0, false, nil, err
	}

	snap := cdc.Snapshot{}
	if w.cfg.tracking() {
		stmt, err := w.planner.Full()
		if err != nil {
			return 0, false, nil, err
		}
		rows, err := session.Query(ctx, stmt)
		if err != nil {
			return 0, false, nil, fmt.Errorf("initial full query failed: %w", err)
		}
		var skipped int
		snap, skipped = diff.BuildSnapshot(rows, w.cfg.IDField, w.cfg.ignoreFields())
		w.skippedRows.Add(int64(skipped))
		w.log.Info("Loaded initial rows for change tracking", "rows", len(rows), "skipped", skipped)
	}
	return wm, hasWM, snap, nil
}

// maxIdentity reads the bound from the max-identity result. A NULL bound means the
// watched set is empty.
func maxIdentity(rows []cdc.Row) (cdc.Identity, bool, error) {
	if len(rows) == 0 {
		return 0, false, nil
	}
	v, ok := rows[0][query.MaxIDColumn]
	if !ok && len(rows[0]) == 1 {
		for _, only := range rows[0] {
			v = only
		}
	}
	if v == nil {
		return 0, false, nil
	}
	id, err := cdc.ParseIdentity(v)
	if err != nil {
		return 0, false, fmt.Errorf("invalid max identity: %w", err)
	}
	return id, true, nil
}

// Start initializes the watcher if needed and polls every interval until Stop is
// called or ctx ends. Calling Start while the loop runs does nothing; after ctx
// ended it starts a new loop. A failed
// initialization is returned as *InitializationError and not retried.
func (w *Watcher) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = w.cfg.PollInterval
	}
	if interval <= 0 {
		return fmt.Errorf("watcher %q: poll interval must be positive", w.cfg.Name)
	}

	w.runMu.Lock()
	defer w.runMu.Unlock()

	if w.done != nil {
		select {
		case <-w.done:
			// the loop ended with its parent context
			w.cancel()
			w.cancel, w.done = nil, nil
		default:
			return nil
		}
	}

	switch w.State() {
	case StateStopped:
		return ErrStopped
	case StateUninitialized:
		if err := w.Initialize(ctx); err != nil {
			return err
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(loopCtx, interval, w.done)
	return nil
}

// Running reports whether the polling loop is active. The loop ends on Stop or
// when the context given to Start is done; Start may then be called again.
func (w *Watcher) Running() bool {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

func (w *Watcher) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.log.Info("Watching for changes", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Stopping polling due to context cancellation")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	w.ticks.Add(1)

	if w.skipNextTick.CompareAndSwap(true, false) {
		w.skippedTicks.Add(1)
		w.log.Debug("Skipping first poll after initialization")
		return
	}

	changes, err := w.PollChanges(ctx)
	switch {
	case errors.Is(err, ErrPollInProgress):
		w.log.Debug("Previous poll still running, skipping tick")
	case err != nil:
		w.log.Error("Poll failed", "error", err)
	case len(changes.HandlerErrors) > 0:
		w.log.Warn("Changes detected, some handlers failed",
			"new", len(changes.New),
			"updated", len(changes.Updated),
			"deleted", len(changes.Deleted),
			"handler_errors", len(changes.HandlerErrors))
	case changes.Empty():
		w.log.Trace("No changes found")
	default:
		w.log.Info("Changes detected",
			"new", len(changes.New),
			"updated", len(changes.Updated),
			"deleted", len(changes.Deleted))
	}
}

// PollChanges runs one poll cycle. It returns ErrPollInProgress when another cycle
// holds the watcher and ErrNotReady before initialization. A failed statement is
// returned as *QueryError. Handler failures never fail the cycle; they are logged
// and collected in the change set as *HandlerError.
//
// When the full fetch fails after new rows were reported, the returned change set
// still holds those rows and the watermark stays advanced.
func (w *Watcher) PollChanges(ctx context.Context) (*cdc.ChangeSet, error) {
	w.lifeMu.RLock()
	defer w.lifeMu.RUnlock()

	if !w.state.CompareAndSwap(int32(StateReady), int32(StatePolling)) {
		switch w.State() {
		case StatePolling:
			w.skippedTicks.Add(1)
			return nil, ErrPollInProgress
		case StateStopped:
			return nil, ErrStopped
		default:
			return nil, ErrNotReady
		}
	}
	defer w.state.CompareAndSwap(int32(StatePolling), int32(StateReady))

	w.polls.Add(1)
	return w.poll(ctx)
}

func (w *Watcher) poll(ctx context.Context) (*cdc.ChangeSet, error) {
	w.mu.Lock()
	session, wm, hasWM := w.session, w.watermark, w.hasWatermark
	w.mu.Unlock()

	changes := &cdc.ChangeSet{}

	stmt, err := w.planner.Incremental(wm, hasWM)
	if err != nil {
		return nil, w.queryFailed(PhaseIncremental, err)
	}
	w.log.Debug("Polling changes", "watermark", wm, "has_watermark", hasWM)
	rows, err := session.Query(ctx, stmt)
	if err != nil {
		return nil, w.queryFailed(PhaseIncremental, err)
	}

	fresh := diff.PartitionNew(rows, w.cfg.IDField, wm, hasWM)
	changes.New = fresh.Rows
	changes.Skipped += fresh.Skipped
	w.skippedRows.Add(int64(fresh.Skipped))

	if len(fresh.Rows) > 0 {
		w.mu.Lock()
		w.watermark, w.hasWatermark = fresh.Watermark, fresh.HasWatermark
		w.mu.Unlock()
		w.newRows.Add(int64(len(fresh.Rows)))
		w.log.Info("Found new rows", "count", len(fresh.Rows), "watermark", fresh.Watermark)

		collectHandlerError(changes, w.dispatch.onNew(ctx, fresh.Rows))

		if w.cfg.tracking() {
			w.mu.Lock()
			diff.MergeSnapshot(w.snapshot, fresh.Rows, w.cfg.IDField, w.cfg.ignoreFields())
			w.mu.Unlock()
		}
	}

	if !w.cfg.tracking() {
		return changes, nil
	}

	stmt, err = w.planner.Full()
	if err != nil {
		return changes, w.queryFailed(PhaseFull, err)
	}
	rows, err = session.Query(ctx, stmt)
	if err != nil {
		return changes, w.queryFailed(PhaseFull, err)
	}

	w.mu.Lock()
	prev := w.snapshot
	w.mu.Unlock()

	full := diff.PartitionFull(prev, rows, diff.FullOptions{
		IDField:      w.cfg.IDField,
		Ignore:       w.cfg.ignoreFields(),
		TrackUpdates: w.cfg.TrackUpdates,
		TrackDeletes: w.cfg.TrackDeletes,
	})
	changes.Updated = full.Updated
	changes.Deleted = full.Deleted
	changes.Skipped += full.Skipped
	w.skippedRows.Add(int64(full.Skipped))

	if len(full.Updated) > 0 {
		w.updatedRows.Add(int64(len(full.Updated)))
		w.log.Info("Found updated rows", "count", len(full.Updated))
		collectHandlerError(changes, w.dispatch.onUpdate(ctx, full.Updated))
	}
	if len(full.Deleted) > 0 {
		w.deletedRows.Add(int64(len(full.Deleted)))
		w.log.Info("Found deleted rows", "count", len(full.Deleted))
		collectHandlerError(changes, w.dispatch.onDelete(ctx, full.Deleted))
	}

	w.mu.Lock()
	w.snapshot = full.Snapshot
	w.mu.Unlock()

	return changes, nil
}

func collectHandlerError(changes *cdc.ChangeSet, err error) {
	if err != nil {
		changes.HandlerErrors = append(changes.HandlerErrors, err)
	}
}

func (w *Watcher) queryFailed(phase Phase, err error) error {
	w.queryErrors.Add(1)
	return &QueryError{Watcher: w.cfg.Name, Phase: phase, Err: err}
}

// Stop cancels the polling loop, waits for a running cycle, releases the session and
// discards the snapshot. It is safe to call more than once and before Start.
func (w *Watcher) Stop() error {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	if w.State() == StateStopped {
		return nil
	}

	if w.cancel != nil {
		w.cancel()
		<-w.done
		w.cancel, w.done = nil, nil
	}

	w.state.Store(int32(StateStopped))

	// wait for cycles that passed the state guard before the store above
	w.lifeMu.Lock()
	defer w.lifeMu.Unlock()

	w.mu.Lock()
	session := w.session
	w.session = nil
	w.snapshot = nil
	w.mu.Unlock()

	w.log.Info("Watcher stopped", "stats", w.Stats())
	if session != nil {
		if err := session.Close(); err != nil {
			return fmt.Errorf("failed to release session: %w", err)
		}
	}
	return nil
}
