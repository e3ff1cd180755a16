// Package connector implements the durable background-task connector:
// per-type serial dispatch, a retry state machine, cooperative cancellation,
// and retention-based garbage collection, as specified in SPEC_FULL.md §4.
//
// Grounded on the teacher's scheduler.Scheduler (control-surface shape:
// Submit/Cancel/Status) and worker.Worker (the execute/heartbeatLoop
// dispatch-and-retry loop), generalized from a single FIFO queue + one
// worker goroutine to a per-type dispatch loop driven by the durable store
// itself rather than an in-memory queue.
package connector

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskengine/backgroundtask/errs"
	"github.com/taskengine/backgroundtask/observability/logging"
	"github.com/taskengine/backgroundtask/observability/metrics"
	"github.com/taskengine/backgroundtask/registry"
	"github.com/taskengine/backgroundtask/store"
	"github.com/taskengine/backgroundtask/task"
	"github.com/taskengine/backgroundtask/urn"
	"github.com/taskengine/backgroundtask/workerrt"
)

// CloneDataProvider looks up an opaque snapshot from an external engine-core
// component, passed to handlers as their first argument so they can
// reconstruct their environment in a worker process.
type CloneDataProvider interface {
	CloneData(ctx context.Context) (any, error)
}

// Notifier is invoked after every persisted task transition, so an HTTP/
// WebSocket layer can push real-time updates (see cmd/apiserver).
type Notifier func(v *task.View)

// Config holds the connector's tunables. Zero values are replaced with the
// documented defaults by New.
type Config struct {
	// TaskInterval is the delay after each processed task (or failed
	// dispatch query) before the next dispatch pass for its type. Default
	// 100ms.
	TaskInterval time.Duration
	// RetryInterval is the fallback retry delay used when a task carries
	// none of its own. Default 5s.
	RetryInterval time.Duration
	// CleanupInterval is the minimum time between retention sweeps.
	// Default 120s.
	CleanupInterval time.Duration
	// EngineName is descriptive only; the connector does not read it. The
	// CloneDataProvider is installed directly with WithCloneDataProvider.
	EngineName string
	// Now, if set, overrides time.Now for deterministic tests.
	Now func() time.Time
}

func (c *Config) setDefaults() {
	if c.TaskInterval <= 0 {
		c.TaskInterval = 100 * time.Millisecond
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 5 * time.Second
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 120 * time.Second
	}
	if c.EngineName == "" {
		c.EngineName = "engine"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// typeState tracks the single-flight marker and wake timer for one task
// type. Set/clear of task is straight-line between suspension points, so it
// serves as the mutual-exclusion mechanism in place of a held lock.
type typeState struct {
	mu    sync.Mutex
	task  *task.Task
	timer *time.Timer
}

// Option configures optional Connector collaborators.
type Option func(*Connector)

// WithCloneDataProvider installs the engine-core clone data collaborator.
func WithCloneDataProvider(p CloneDataProvider) Option {
	return func(c *Connector) { c.clone = p }
}

// WithMetrics installs a Prometheus metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Connector) { c.metrics = m }
}

// WithLogger overrides the default package-level logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Connector) { c.log = l }
}

// WithNotifier installs a callback invoked after every persisted transition.
func WithNotifier(n Notifier) Option {
	return func(c *Connector) { c.notifier = n }
}

// Connector is the durable, per-type serial executor described in
// SPEC_FULL.md §4.3.
type Connector struct {
	store    store.EntityStore
	registry *registry.Registry
	runtime  workerrt.Runtime
	clone    CloneDataProvider
	metrics  *metrics.Collector
	log      zerolog.Logger
	notifier Notifier
	cfg      Config

	mu        sync.Mutex
	started   bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	states    map[string]*typeState
	lastSweep time.Time
}

// New constructs a Connector. reg's poke callback is wired to the new
// Connector automatically.
func New(st store.EntityStore, reg *registry.Registry, rt workerrt.Runtime, cfg Config, opts ...Option) *Connector {
	cfg.setDefaults()
	c := &Connector{
		store:    st,
		registry: reg,
		runtime:  rt,
		cfg:      cfg,
		log:      logging.Logger,
		states:   make(map[string]*typeState),
	}
	for _, o := range opts {
		o(c)
	}
	reg.SetPoke(c.poke)
	return c
}

func (c *Connector) stateFor(taskType string) *typeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[taskType]
	if !ok {
		st = &typeState{}
		c.states[taskType] = st
	}
	return st
}

func (c *Connector) isStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *Connector) runningCtx() (context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil, false
	}
	return c.ctx, true
}

// poke re-evaluates the dispatch pass for taskType on a new goroutine, as
// long as the connector is started.
func (c *Connector) poke(taskType string) {
	ctx, ok := c.runningCtx()
	if !ok {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.processTasks(ctx, taskType)
	}()
}

// Start flips the started guard, runs an initial retention sweep, and pokes
// the dispatcher for every type that currently has pending or processing
// work (at-least-once resumption after a restart).
func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.ctx = runCtx
	c.cancel = cancel
	c.started = true
	c.mu.Unlock()

	c.sweep(runCtx)

	types, err := c.resumableTypes(runCtx)
	if err != nil {
		c.log.Error().Err(err).Msg("start: resumable-type scan failed")
	}
	for _, t := range types {
		c.poke(t)
	}
	return nil
}

// Stop flips the started guard off, cancels every per-type wake timer, and
// returns. In-flight worker calls are not aborted.
func (c *Connector) Stop(_ context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	cancel := c.cancel
	c.mu.Unlock()

	for _, st := range c.snapshotStates() {
		st.mu.Lock()
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		st.mu.Unlock()
	}
	cancel()
	return nil
}

func (c *Connector) snapshotStates() []*typeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*typeState, 0, len(c.states))
	for _, st := range c.states {
		out = append(out, st)
	}
	return out
}

func (c *Connector) resumableTypes(ctx context.Context) ([]string, error) {
	q := store.Query{
		Condition: store.Or(
			store.Eq("status", string(task.StatusPending)),
			store.Eq("status", string(task.StatusProcessing)),
		),
		Sort: store.Sort{Field: "dateCreated", Direction: store.Asc},
	}
	results, _, err := c.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var types []string
	for _, t := range results {
		if !seen[t.Type] {
			seen[t.Type] = true
			types = append(types, t.Type)
		}
	}
	return types, nil
}

// ── Control surface ─────────────────────────────────────────────────────────

// CreateOptions carries the caller-supplied options for Create.
type CreateOptions struct {
	RetryCount    *int
	RetryInterval *int64 // ms
	RetainFor     *int64 // ms; -1 = forever, 0 = immediate
}

func (o CreateOptions) validate() error {
	failures := map[string]string{}
	if o.RetryCount != nil && *o.RetryCount < 1 {
		failures["retryCount"] = "must be >= 1"
	}
	if o.RetryInterval != nil && *o.RetryInterval < 1 {
		failures["retryInterval"] = "must be >= 1 ms"
	}
	if o.RetainFor != nil && *o.RetainFor < -1 {
		failures["retainFor"] = "must be -1 or >= 0"
	}
	if len(failures) > 0 {
		return errs.NewValidationError(failures)
	}
	return nil
}

// Create validates opts, persists a new pending task, and pokes the
// dispatcher for taskType. Returns the task's URN id.
func (c *Connector) Create(ctx context.Context, taskType string, payload []byte, opts CreateOptions) (string, error) {
	if err := opts.validate(); err != nil {
		return "", err
	}
	now := c.cfg.Now()

	var retainFor int64
	if opts.RetainFor != nil {
		retainFor = *opts.RetainFor
	}

	var clonedPayload []byte
	if len(payload) > 0 {
		clonedPayload = make([]byte, len(payload))
		copy(clonedPayload, payload)
	}

	var retriesRemaining *int
	if opts.RetryCount != nil {
		rc := *opts.RetryCount
		retriesRemaining = &rc
	}

	t := &task.Task{
		ID:               urn.NewID(),
		Type:             taskType,
		Status:           task.StatusPending,
		Payload:          clonedPayload,
		DateCreated:      now,
		DateModified:     now,
		DateNextProcess:  &now,
		RetryInterval:    opts.RetryInterval,
		RetriesRemaining: retriesRemaining,
		RetainFor:        &retainFor,
	}
	if err := c.store.Set(ctx, t); err != nil {
		return "", err
	}
	c.poke(taskType)
	return urn.Format(t.ID), nil
}

// Get returns the task addressed by urnStr, or (nil, nil) if it does not
// exist.
func (c *Connector) Get(ctx context.Context, urnStr string) (*task.View, error) {
	id, err := urn.Parse(urnStr)
	if err != nil {
		return nil, err
	}
	t, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, nil
	}
	return task.ToView(t), nil
}

// Retry surfaces a pending task at the head of the next dispatch pass by
// resetting its dateNextProcess to now. It is a no-op if the task is absent
// or not pending.
func (c *Connector) Retry(ctx context.Context, urnStr string) error {
	id, err := urn.Parse(urnStr)
	if err != nil {
		return err
	}
	t, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if t == nil || t.Status != task.StatusPending || t.DateNextProcess == nil {
		return nil
	}
	now := c.cfg.Now()
	t.DateNextProcess = &now
	if err := c.store.Set(ctx, t); err != nil {
		return err
	}
	c.poke(t.Type)
	return nil
}

// Cancel transitions a pending task to cancelled. A task already processing
// is left unchanged (see SPEC_FULL.md §9 on the cancel/processing open
// question): it runs to completion and records its own outcome.
func (c *Connector) Cancel(ctx context.Context, urnStr string) error {
	id, err := urn.Parse(urnStr)
	if err != nil {
		return err
	}
	t, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if t == nil || t.Status != task.StatusPending {
		return nil
	}
	now := c.cfg.Now()
	t.Status = task.StatusCancelled
	t.DateCancelled = &now
	t.DateNextProcess = nil
	// dateModified is intentionally not bumped here; retention uses the
	// existing dateModified, per SPEC_FULL.md §4.2.

	if t.RetainFor != nil && *t.RetainFor == 0 {
		if err := c.store.Remove(ctx, id); err != nil {
			return err
		}
		c.recordOutcome(t)
		c.notify(t)
		return nil
	}
	if ru := task.CalculateRetainTimestamp(t); ru != nil {
		t.RetainUntil = ru
		t.RetainFor = nil
	}
	if err := c.store.Set(ctx, t); err != nil {
		return err
	}
	c.recordOutcome(t)
	c.notify(t)
	return nil
}

// Remove unconditionally deletes the task record.
func (c *Connector) Remove(ctx context.Context, urnStr string) error {
	id, err := urn.Parse(urnStr)
	if err != nil {
		return err
	}
	return c.store.Remove(ctx, id)
}

// QueryInput describes a control-surface Query call.
type QueryInput struct {
	Type          string
	Statuses      []task.Status
	SortProperty  string
	SortDirection store.SortDirection
	Cursor        store.Cursor
	PageSize      int
}

// Query lists tasks by type and/or status with cursor pagination.
func (c *Connector) Query(ctx context.Context, in QueryInput) ([]*task.View, store.Cursor, error) {
	var clauses []store.Condition
	if in.Type != "" {
		clauses = append(clauses, store.Eq("type", in.Type))
	}
	if len(in.Statuses) > 0 {
		var statusClauses []store.Condition
		for _, s := range in.Statuses {
			statusClauses = append(statusClauses, store.Eq("status", string(s)))
		}
		clauses = append(clauses, store.Or(statusClauses...))
	}
	cond := store.And(clauses...)
	if len(clauses) == 0 {
		cond = store.Condition{}
	}

	sortField := in.SortProperty
	if sortField == "" {
		sortField = "dateCreated"
	}
	dir := in.SortDirection
	if dir == "" {
		dir = store.Desc
	}

	q := store.Query{
		Condition: cond,
		Sort:      store.Sort{Field: sortField, Direction: dir},
		Cursor:    in.Cursor,
		PageSize:  in.PageSize,
	}
	results, next, err := c.store.Query(ctx, q)
	if err != nil {
		return nil, "", err
	}
	views := make([]*task.View, len(results))
	for i, t := range results {
		views[i] = task.ToView(t)
	}
	return views, next, nil
}

func (c *Connector) notify(t *task.Task) {
	if c.notifier == nil {
		return
	}
	c.notifier(task.ToView(t))
}

func (c *Connector) recordOutcome(t *task.Task) {
	if c.metrics == nil {
		return
	}
	c.metrics.TasksTotal.WithLabelValues(t.Type, string(t.Status)).Inc()
}
