// Package periodic implements the periodic scheduler sibling component: an
// in-memory table of named schedules driven by a single ticker, as
// specified in SPEC_FULL.md §4.6.
//
// Grounded on the teacher's worker.heartbeatLoop ticker pattern, generalized
// from one fixed-period heartbeat to an arbitrary table of per-id, per-entry
// next-trigger times recomputed on every tick.
package periodic

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/taskengine/backgroundtask/observability/logging"
	"github.com/taskengine/backgroundtask/observability/metrics"
)

const defaultTickInterval = 60 * time.Second

// Schedule is one trigger entry for a task. NextTriggerTime is a ms-epoch
// timestamp, nil meaning "dormant" (no further firing planned). After a
// firing, NextTriggerTime advances by the sum of all set interval fields,
// or by CronExpr when that is set (CronExpr takes precedence over the
// intervals); all nil makes the entry one-shot.
//
// CronExpr is additive: the distilled spec only has interval fields, but
// the teacher's domain.Workflow.ScheduleCron anticipates cron-expression
// entries, so AddCronTask folds a robfig/cron/v3 schedule into this same
// table instead of running a second ticker.
type Schedule struct {
	NextTriggerTime *int64
	IntervalDays    *int64
	IntervalHours   *int64
	IntervalMinutes *int64
	CronExpr        *string
}

func (s Schedule) intervalContribution() int64 {
	var ms int64
	if s.IntervalDays != nil {
		ms += *s.IntervalDays * 86_400_000
	}
	if s.IntervalHours != nil {
		ms += *s.IntervalHours * 3_600_000
	}
	if s.IntervalMinutes != nil {
		ms += *s.IntervalMinutes * 60_000
	}
	return ms
}

func (s Schedule) isOneShot() bool {
	return s.IntervalDays == nil && s.IntervalHours == nil && s.IntervalMinutes == nil && s.CronExpr == nil
}

// Callback is invoked once per fired schedule entry. A returned error is
// logged and counted in SchedulerFailures but does not remove the entry.
type Callback func(id string) error

type entry struct {
	times    []Schedule
	callback Callback
}

// Option configures an optional Scheduler collaborator.
type Option func(*Scheduler)

// WithOverrideInterval replaces the default 60s tick period.
func WithOverrideInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithNow overrides time.Now, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithMetrics installs a Prometheus metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithLogger overrides the default package-level logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// Scheduler is an in-memory, ticker-driven periodic schedule table.
type Scheduler struct {
	mu           sync.Mutex
	entries      map[string]*entry
	ticker       *time.Ticker
	stopCh       chan struct{}
	tickInterval time.Duration
	now          func() time.Time
	metrics      *metrics.Collector
	log          zerolog.Logger
}

// New returns an empty, stopped Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		entries:      make(map[string]*entry),
		tickInterval: defaultTickInterval,
		now:          time.Now,
		log:          logging.Logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddTask registers id with the given schedule entries and callback,
// computing an initial NextTriggerTime for any entry missing one. The
// ticker is started if this is the first entry in the table.
func (s *Scheduler) AddTask(id string, times []Schedule, cb Callback) {
	nowMs := s.now().UnixMilli()
	normalized := make([]Schedule, len(times))
	for i, t := range times {
		if t.NextTriggerTime == nil {
			next := nowMs + t.intervalContribution()
			t.NextTriggerTime = &next
		}
		normalized[i] = t
	}

	s.mu.Lock()
	s.entries[id] = &entry{times: normalized, callback: cb}
	needStart := s.ticker == nil
	s.mu.Unlock()

	if needStart {
		s.startTicker()
	}
}

// AddCronTask registers id with a single cron-expression-driven schedule,
// parsed with robfig/cron/v3's standard five-field parser.
func (s *Scheduler) AddCronTask(id, cronExpr string, cb Callback) error {
	parsed, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return err
	}
	next := parsed.Next(s.now()).UnixMilli()
	expr := cronExpr
	s.AddTask(id, []Schedule{{NextTriggerTime: &next, CronExpr: &expr}}, cb)
	return nil
}

// RemoveTask deletes id's entry. Safe to call from within a running
// callback for the same id. Stops the ticker if the table becomes empty.
func (s *Scheduler) RemoveTask(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	empty := len(s.entries) == 0
	s.mu.Unlock()

	if empty {
		s.stopTicker()
	}
}

// TasksInfo returns a snapshot of every registered id's schedule entries.
func (s *Scheduler) TasksInfo() map[string][]Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]Schedule, len(s.entries))
	for id, e := range s.entries {
		cp := make([]Schedule, len(e.times))
		copy(cp, e.times)
		out[id] = cp
	}
	return out
}

func (s *Scheduler) startTicker() {
	s.mu.Lock()
	if s.ticker != nil {
		s.mu.Unlock()
		return
	}
	s.ticker = time.NewTicker(s.tickInterval)
	s.stopCh = make(chan struct{})
	ticker := s.ticker
	stopCh := s.stopCh
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				s.tick()
			case <-stopCh:
				return
			}
		}
	}()
}

func (s *Scheduler) stopTicker() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	s.ticker.Stop()
	close(s.stopCh)
	s.ticker = nil
	s.stopCh = nil
	s.mu.Unlock()
}

// dueFiring names one (id, index) pair whose schedule entry is due.
type dueFiring struct {
	id  string
	idx int
	cb  Callback
}

// tick scans every entry for due schedules, fires their callbacks outside
// the lock, then recomputes or dormants each fired entry.
func (s *Scheduler) tick() {
	nowMs := s.now().UnixMilli()

	s.mu.Lock()
	var due []dueFiring
	for id, e := range s.entries {
		for idx, sch := range e.times {
			if sch.NextTriggerTime != nil && *sch.NextTriggerTime <= nowMs {
				due = append(due, dueFiring{id: id, idx: idx, cb: e.callback})
			}
		}
	}
	s.mu.Unlock()

	for _, f := range due {
		s.fire(f)
	}
}

func (s *Scheduler) fire(f dueFiring) {
	log := logging.WithSchedule(s.log, f.id)
	if s.metrics != nil {
		s.metrics.SchedulerTriggers.WithLabelValues(f.id).Inc()
	}
	err := f.cb(f.id)
	if err != nil {
		log.Error().Err(err).Msg("periodic: callback failed")
		if s.metrics != nil {
			s.metrics.SchedulerFailures.WithLabelValues(f.id).Inc()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[f.id]
	if !ok || f.idx >= len(e.times) {
		return // removed (or mutated) while the callback ran
	}
	sch := e.times[f.idx]
	if sch.isOneShot() {
		sch.NextTriggerTime = nil
		e.times[f.idx] = sch
		return
	}
	prev := *sch.NextTriggerTime
	if sch.CronExpr != nil {
		if parsed, err := cron.ParseStandard(*sch.CronExpr); err == nil {
			next := parsed.Next(time.UnixMilli(prev)).UnixMilli()
			sch.NextTriggerTime = &next
		}
	} else {
		next := prev + sch.intervalContribution()
		sch.NextTriggerTime = &next
	}
	e.times[f.idx] = sch
}
