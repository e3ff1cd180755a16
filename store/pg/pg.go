// Package pg is a GORM/Postgres store.EntityStore adapter. Model mapping
// follows the teacher's internal/repository/postgres package: a private
// model struct with GORM tags and TableName(), plus toDomain/fromDomain
// conversion helpers.
package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/taskengine/backgroundtask/store"
	"github.com/taskengine/backgroundtask/task"
)

// taskModel is the GORM row shape for the tasks table.
type taskModel struct {
	ID               string     `gorm:"type:varchar(32);primaryKey;column:id"`
	Type             string     `gorm:"column:type;not null;index"`
	Status           string     `gorm:"column:status;not null;index"`
	Payload          []byte     `gorm:"column:payload;type:jsonb"`
	Result           []byte     `gorm:"column:result;type:jsonb"`
	Error            []byte     `gorm:"column:error;type:jsonb"`
	DateCreated      time.Time  `gorm:"column:date_created;not null;index"`
	DateModified     time.Time  `gorm:"column:date_modified;not null;index"`
	DateNextProcess  *time.Time `gorm:"column:date_next_process;index"`
	DateCompleted    *time.Time `gorm:"column:date_completed"`
	DateCancelled    *time.Time `gorm:"column:date_cancelled"`
	RetryInterval    *int64     `gorm:"column:retry_interval"`
	RetriesRemaining *int       `gorm:"column:retries_remaining"`
	RetainFor        *int64     `gorm:"column:retain_for"`
	RetainUntil      *int64     `gorm:"column:retain_until;index"`
}

func (taskModel) TableName() string { return "background_tasks" }

func fromDomain(t *task.Task) (*taskModel, error) {
	m := &taskModel{
		ID:               t.ID,
		Type:             t.Type,
		Status:           string(t.Status),
		Payload:          t.Payload,
		DateCreated:      t.DateCreated,
		DateModified:     t.DateModified,
		DateNextProcess:  t.DateNextProcess,
		DateCompleted:    t.DateCompleted,
		DateCancelled:    t.DateCancelled,
		RetryInterval:    t.RetryInterval,
		RetriesRemaining: t.RetriesRemaining,
		RetainFor:        t.RetainFor,
		RetainUntil:      t.RetainUntil,
	}
	if t.Result != nil {
		m.Result = t.Result
	}
	if t.Error != nil {
		b, err := json.Marshal(t.Error)
		if err != nil {
			return nil, fmt.Errorf("task %s: marshal error field: %w", t.ID, err)
		}
		m.Error = b
	}
	return m, nil
}

func (m *taskModel) toDomain() (*task.Task, error) {
	t := &task.Task{
		ID:               m.ID,
		Type:             m.Type,
		Status:           task.Status(m.Status),
		Payload:          m.Payload,
		Result:           m.Result,
		DateCreated:      m.DateCreated,
		DateModified:     m.DateModified,
		DateNextProcess:  m.DateNextProcess,
		DateCompleted:    m.DateCompleted,
		DateCancelled:    m.DateCancelled,
		RetryInterval:    m.RetryInterval,
		RetriesRemaining: m.RetriesRemaining,
		RetainFor:        m.RetainFor,
		RetainUntil:      m.RetainUntil,
	}
	if len(m.Error) > 0 {
		var e task.Error
		if err := json.Unmarshal(m.Error, &e); err != nil {
			return nil, fmt.Errorf("task %s: unmarshal error field: %w", m.ID, err)
		}
		t.Error = &e
	}
	return t, nil
}

// Store is a GORM-backed store.EntityStore.
type Store struct {
	db *gorm.DB
}

// New constructs a Store around an already-connected *gorm.DB. Callers are
// expected to run schema migration (AutoMigrate or goose, as the teacher's
// cmd/* do) before first use.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates/updates the background_tasks table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&taskModel{})
}

func (s *Store) Get(ctx context.Context, id string) (*task.Task, error) {
	var m taskModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m.toDomain()
}

func (s *Store) Set(ctx context.Context, t *task.Task) error {
	m, err := fromDomain(t)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Save(m).Error
}

func (s *Store) Remove(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&taskModel{}, "id = ?", id).Error
}

func (s *Store) Query(ctx context.Context, q store.Query) ([]*task.Task, store.Cursor, error) {
	tx := s.db.WithContext(ctx).Model(&taskModel{})
	tx = applyCondition(tx, q.Condition)

	col := sortColumn(q.Sort.Field)
	dir := "ASC"
	if q.Sort.Direction == store.Desc {
		dir = "DESC"
	}
	tx = tx.Order(fmt.Sprintf("%s %s, id ASC", col, dir))

	offset := 0
	if q.Cursor != "" {
		if n, err := strconv.Atoi(string(q.Cursor)); err == nil {
			offset = n
		}
	}
	if offset > 0 {
		tx = tx.Offset(offset)
	}
	fetch := q.PageSize
	if fetch > 0 {
		tx = tx.Limit(fetch + 1)
	}

	var models []taskModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, "", err
	}

	var next store.Cursor
	if q.PageSize > 0 && len(models) > q.PageSize {
		models = models[:q.PageSize]
		next = store.Cursor(strconv.Itoa(offset + q.PageSize))
	}

	out := make([]*task.Task, len(models))
	for i := range models {
		t, err := models[i].toDomain()
		if err != nil {
			return nil, "", err
		}
		out[i] = t
	}
	return out, next, nil
}

func sortColumn(field string) string {
	switch field {
	case "dateCreated":
		return "date_created"
	case "dateModified":
		return "date_modified"
	case "dateCompleted":
		return "date_completed"
	case "dateNextProcess":
		return "date_next_process"
	case "retainUntil":
		return "retain_until"
	case "status":
		return "status"
	case "type":
		return "type"
	default:
		return "date_created"
	}
}

func applyCondition(tx *gorm.DB, c store.Condition) *gorm.DB {
	switch c.Op {
	case "":
		return tx
	case store.OpEq:
		return tx.Where(fmt.Sprintf("%s = ?", column(c.Field)), c.Value)
	case store.OpLt:
		return tx.Where(fmt.Sprintf("%s < ?", column(c.Field)), c.Value)
	case store.OpGt:
		return tx.Where(fmt.Sprintf("%s > ?", column(c.Field)), c.Value)
	case store.OpAnd:
		for _, child := range c.Children {
			tx = applyCondition(tx, child)
		}
		return tx
	case store.OpOr:
		if len(c.Children) == 0 {
			return tx
		}
		var combined string
		var args []any
		for i, child := range c.Children {
			if i > 0 {
				combined += " OR "
			}
			clause, arg := orClause(child)
			combined += clause
			args = append(args, arg)
		}
		return tx.Where(combined, args...)
	default:
		return tx
	}
}

// orClause renders a single leaf condition as a raw SQL fragment and its
// single bind argument, used only inside an OR group.
func orClause(c store.Condition) (string, any) {
	switch c.Op {
	case store.OpLt:
		return fmt.Sprintf("%s < ?", column(c.Field)), c.Value
	case store.OpGt:
		return fmt.Sprintf("%s > ?", column(c.Field)), c.Value
	default:
		return fmt.Sprintf("%s = ?", column(c.Field)), c.Value
	}
}

func column(field string) string {
	switch field {
	case "id", "type", "status":
		return field
	case "retainUntil":
		return "retain_until"
	case "dateNextProcess":
		return "date_next_process"
	case "dateCreated":
		return "date_created"
	case "dateModified":
		return "date_modified"
	default:
		return field
	}
}
