// Package task defines the Task entity persisted by the background-task
// connector and the TaskView projection exposed through the control surface.
package task

import (
	"time"

	"github.com/taskengine/backgroundtask/urn"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Error is the structured error recorded on a task, mirroring errs.Kind
// serialization without importing the errs package (keeps task dependency-
// free so storage adapters can marshal it directly).
type Error struct {
	Name    string `json:"name"`
	Source  string `json:"source,omitempty"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	Inner   *Error `json:"inner,omitempty"`
}

// Task is the authoritative, persisted record for a unit of deferred work.
// Field semantics and invariants are documented in SPEC_FULL.md §3.
type Task struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Status Status `json:"status"`

	Payload []byte `json:"payload,omitempty"`
	Result  []byte `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`

	DateCreated     time.Time  `json:"dateCreated"`
	DateModified    time.Time  `json:"dateModified"`
	DateNextProcess *time.Time `json:"dateNextProcess,omitempty"`
	DateCompleted   *time.Time `json:"dateCompleted,omitempty"`
	DateCancelled   *time.Time `json:"dateCancelled,omitempty"`

	RetryInterval    *int64 `json:"retryInterval,omitempty"` // ms
	RetriesRemaining *int   `json:"retriesRemaining,omitempty"`

	RetainFor   *int64 `json:"retainFor,omitempty"`   // ms; -1 = forever, 0 = immediate
	RetainUntil *int64 `json:"retainUntil,omitempty"` // ms epoch; -1 = never
}

// View is the exposed projection returned by Get/Query: it mirrors Task but
// renames RetainUntil to a timestamp string and omits RetainFor/
// DateNextProcess.
type View struct {
	ID               string     `json:"id"`
	Type             string     `json:"type"`
	Status           Status     `json:"status"`
	Payload          []byte     `json:"payload,omitempty"`
	Result           []byte     `json:"result,omitempty"`
	Error            *Error     `json:"error,omitempty"`
	DateCreated      time.Time  `json:"dateCreated"`
	DateModified     time.Time  `json:"dateModified"`
	DateCompleted    *time.Time `json:"dateCompleted,omitempty"`
	DateCancelled    *time.Time `json:"dateCancelled,omitempty"`
	RetryInterval    *int64     `json:"retryInterval,omitempty"`
	RetriesRemaining *int       `json:"retriesRemaining,omitempty"`
	DateRetainUntil  *time.Time `json:"dateRetainUntil,omitempty"`
}

// ToView maps a persisted Task onto its exposed projection.
func ToView(t *Task) *View {
	v := &View{
		ID:               urn.Format(t.ID),
		Type:             t.Type,
		Status:           t.Status,
		Payload:          t.Payload,
		Result:           t.Result,
		Error:            t.Error,
		DateCreated:      t.DateCreated,
		DateModified:     t.DateModified,
		DateCompleted:    t.DateCompleted,
		DateCancelled:    t.DateCancelled,
		RetryInterval:    t.RetryInterval,
		RetriesRemaining: t.RetriesRemaining,
	}
	if t.RetainUntil != nil {
		if *t.RetainUntil == -1 {
			never := time.Unix(0, 0).UTC()
			v.DateRetainUntil = &never
		} else {
			ts := time.UnixMilli(*t.RetainUntil).UTC()
			v.DateRetainUntil = &ts
		}
	}
	return v
}

// IsTerminal reports whether status is one of the three terminal states.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

// CalculateRetainTimestamp implements spec.md §4.5: derives RetainUntil (ms
// epoch) from a task entering a terminal state. Returns nil when no
// retention window applies.
func CalculateRetainTimestamp(t *Task) *int64 {
	if !t.Status.IsTerminal() {
		return nil
	}
	if t.RetainFor == nil {
		return nil
	}
	switch {
	case *t.RetainFor > 0:
		v := t.DateModified.UnixMilli() + *t.RetainFor
		return &v
	case *t.RetainFor == -1:
		v := int64(-1)
		return &v
	default:
		return nil
	}
}
