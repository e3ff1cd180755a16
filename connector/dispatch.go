package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskengine/backgroundtask/errs"
	"github.com/taskengine/backgroundtask/observability/logging"
	"github.com/taskengine/backgroundtask/store"
	"github.com/taskengine/backgroundtask/task"
)

// processTasks runs one dispatch pass for taskType: select the next due
// task (if any), execute it inline, and arm whatever wake timer the result
// calls for. At most one pass per type runs at a time (typeState.task is
// the single-flight marker).
func (c *Connector) processTasks(ctx context.Context, taskType string) {
	if !c.isStarted() {
		return
	}
	log := logging.WithType(c.log, taskType)
	st := c.stateFor(taskType)

	st.mu.Lock()
	if st.task != nil {
		st.mu.Unlock()
		return
	}
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.mu.Unlock()

	q := store.Query{
		Condition: store.And(
			store.Eq("type", taskType),
			store.Or(
				store.Eq("status", string(task.StatusPending)),
				store.Eq("status", string(task.StatusProcessing)),
			),
		),
		Sort:     store.Sort{Field: "dateNextProcess", Direction: store.Asc},
		PageSize: 1,
	}
	results, _, err := c.store.Query(ctx, q)
	if err != nil {
		log.Error().Err(err).Msg("dispatch: query for due task failed")
		c.armTimer(taskType, c.cfg.TaskInterval)
		return
	}
	if len(results) == 0 {
		c.maybeSweep(ctx)
		return
	}

	next := results[0]
	var wait time.Duration
	if next.DateNextProcess != nil {
		wait = next.DateNextProcess.Sub(c.cfg.Now())
	}
	if wait > 0 {
		c.armTimer(taskType, wait)
		return
	}

	c.processTask(ctx, next)
	c.armTimer(taskType, c.cfg.TaskInterval)
}

// armTimer replaces taskType's wake timer with one that fires poke(taskType)
// after d. At most one timer per type is ever outstanding.
func (c *Connector) armTimer(taskType string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	st := c.stateFor(taskType)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = time.AfterFunc(d, func() {
		st.mu.Lock()
		st.timer = nil
		st.mu.Unlock()
		c.poke(taskType)
	})
}

// processTask executes a single due task to completion: marks it
// processing, invokes the bound handler through the worker runtime, applies
// the retry-or-terminal state transition, and applies retention.
func (c *Connector) processTask(ctx context.Context, t *task.Task) {
	log := logging.WithTask(c.log, t.ID, t.Type)

	binding, ok := c.registry.Lookup(t.Type)
	if !ok {
		log.Warn().Msg("dispatch: no handler registered for type, leaving task pending")
		return
	}

	st := c.stateFor(t.Type)
	now := c.cfg.Now()
	t.Status = task.StatusProcessing
	t.DateModified = now
	if err := c.store.Set(ctx, t); err != nil {
		log.Error().Err(err).Msg("dispatch: failed to persist processing transition")
		return
	}
	c.notify(t)

	st.mu.Lock()
	st.task = t
	st.mu.Unlock()
	defer func() {
		st.mu.Lock()
		st.task = nil
		st.mu.Unlock()
	}()

	var cloneData any
	if c.clone != nil {
		cd, err := c.clone.CloneData(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("dispatch: clone data provider failed, passing nil")
		} else {
			cloneData = cd
		}
	}

	args := []any{cloneData}
	if len(t.Payload) > 0 {
		args = append(args, t.Payload)
	}

	start := c.cfg.Now()
	// Stop cancels ctx; the worker call is detached from that cancellation so
	// an in-flight handler is not aborted by Stop.
	result, execErr := c.runtime.Exec(context.WithoutCancel(ctx), binding.Module, binding.Method, args...)
	if c.metrics != nil {
		c.metrics.TaskDuration.WithLabelValues(t.Type).Observe(c.cfg.Now().Sub(start).Seconds())
	}

	now = c.cfg.Now()
	t.DateModified = now

	if execErr == nil {
		c.applySuccess(t, result, now)
	} else {
		c.applyFailure(t, execErr, now, log)
	}

	if t.Status.IsTerminal() {
		if t.RetainFor != nil && *t.RetainFor == 0 {
			if err := c.store.Remove(ctx, t.ID); err != nil {
				log.Error().Err(err).Msg("dispatch: immediate-retention removal failed")
			}
			c.recordOutcome(t)
			c.notify(t)
			return
		}
		if ru := task.CalculateRetainTimestamp(t); ru != nil {
			t.RetainUntil = ru
			t.RetainFor = nil
		}
	}

	if err := c.store.Set(ctx, t); err != nil {
		log.Error().Err(err).Msg("dispatch: failed to persist task outcome")
	}
	c.recordOutcome(t)
	c.notify(t)
}

func (c *Connector) applySuccess(t *task.Task, result any, now time.Time) {
	var resBytes []byte
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			resBytes = b
		}
	}
	t.Result = resBytes
	t.Error = nil
	t.Status = task.StatusSuccess
	t.DateCompleted = &now
	t.DateNextProcess = nil
	t.RetriesRemaining = nil
	t.RetryInterval = nil
}

// applyFailure normalizes execErr, and either schedules a retry (status
// stays/returns to pending, dateNextProcess advances by the task's own
// retryInterval or the connector default) or marks the task failed. A nil
// retriesRemaining means unlimited retries (see SPEC_FULL.md §9).
func (c *Connector) applyFailure(t *task.Task, execErr error, now time.Time, log zerolog.Logger) {
	t.Error = normalizeError(execErr)

	hasRetriesLeft := t.RetriesRemaining == nil || *t.RetriesRemaining > 0
	if hasRetriesLeft {
		if t.RetriesRemaining != nil {
			rem := *t.RetriesRemaining - 1
			t.RetriesRemaining = &rem
		}
		interval := c.cfg.RetryInterval
		if t.RetryInterval != nil {
			interval = time.Duration(*t.RetryInterval) * time.Millisecond
		}
		next := now.Add(interval)
		t.Status = task.StatusPending
		t.DateNextProcess = &next
		log.Debug().Time("date_next_process", next).Msg("dispatch: scheduling retry")
		if c.metrics != nil {
			c.metrics.TaskRetriesTotal.WithLabelValues(t.Type).Inc()
		}
		return
	}

	t.Status = task.StatusFailed
	t.DateCompleted = &now
	t.DateNextProcess = nil
}

// normalizeError turns a workerrt error into the structured task.Error
// shape. A *errs.WorkerException with an inner cause is unwrapped one
// level, since the WorkerException itself is a runtime-transport artifact,
// not the handler's actual failure.
func normalizeError(err error) *task.Error {
	var we *errs.WorkerException
	if errors.As(err, &we) {
		if we.Inner != nil {
			return toTaskError(we.Inner)
		}
		return &task.Error{Name: "WorkerException", Message: we.Error()}
	}
	return toTaskError(err)
}

func toTaskError(err error) *task.Error {
	var ge *errs.GeneralError
	if errors.As(err, &ge) {
		te := &task.Error{
			Name:    "GeneralError",
			Source:  ge.Source,
			Message: fmt.Sprintf("%s.%s", strings.ToLower(ge.Source), strings.ToLower(ge.MessageKey)),
		}
		if ge.Inner != nil {
			te.Inner = toTaskError(ge.Inner)
		}
		return te
	}
	var ve *errs.ValidationError
	if errors.As(err, &ve) {
		return &task.Error{Name: "ValidationError", Message: ve.Error()}
	}
	return &task.Error{Name: "Error", Message: err.Error()}
}
