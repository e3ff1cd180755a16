// Package memstore is an in-memory, mutex-protected store.EntityStore
// implementation. It evaluates the full Condition/Sort/Cursor contract in
// pure Go and is the zero-config default for tests and local development,
// in the same spirit as the teacher's internal/repository/mock package.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"

	"github.com/taskengine/backgroundtask/store"
	"github.com/taskengine/backgroundtask/task"
)

// Store is an in-memory store.EntityStore.
type Store struct {
	mu   sync.RWMutex
	data map[string]*task.Task
}

// New returns an empty Store ready for use.
func New() *Store {
	return &Store{data: make(map[string]*task.Task)}
}

func (s *Store) Get(_ context.Context, id string) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.data[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *Store) Set(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.data[t.ID] = &cp
	return nil
}

func (s *Store) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

func (s *Store) Query(_ context.Context, q store.Query) ([]*task.Task, store.Cursor, error) {
	s.mu.RLock()
	matched := make([]*task.Task, 0, len(s.data))
	for _, t := range s.data {
		if evaluate(q.Condition, t) {
			cp := *t
			matched = append(matched, &cp)
		}
	}
	s.mu.RUnlock()

	// Secondary tie-break on id, ascending, beneath the caller's primary key —
	// see store.Sort's doc comment for why this matters.
	sort.SliceStable(matched, func(i, j int) bool {
		pi, pj := sortKey(matched[i], q.Sort.Field), sortKey(matched[j], q.Sort.Field)
		if pi == pj {
			return matched[i].ID < matched[j].ID
		}
		if q.Sort.Direction == store.Desc {
			return less(pj, pi)
		}
		return less(pi, pj)
	})

	start := 0
	if q.Cursor != "" {
		n, err := strconv.Atoi(string(q.Cursor))
		if err == nil {
			start = n
		}
	}
	if start > len(matched) {
		start = len(matched)
	}
	page := matched[start:]
	pageSize := q.PageSize
	var next store.Cursor
	if pageSize > 0 && len(page) > pageSize {
		page = page[:pageSize]
		next = store.Cursor(strconv.Itoa(start + pageSize))
	}
	return page, next, nil
}

// sortKey returns a comparable representation of t's value for field, used
// purely for ordering (not equality matching — see evaluate for that).
func sortKey(t *task.Task, field string) any {
	switch field {
	case "dateCreated":
		return t.DateCreated.UnixNano()
	case "dateModified":
		return t.DateModified.UnixNano()
	case "dateCompleted":
		if t.DateCompleted == nil {
			return int64(0)
		}
		return t.DateCompleted.UnixNano()
	case "dateNextProcess":
		if t.DateNextProcess == nil {
			return int64(0)
		}
		return t.DateNextProcess.UnixNano()
	case "retainUntil":
		if t.RetainUntil == nil {
			return int64(0)
		}
		return *t.RetainUntil
	case "status":
		return string(t.Status)
	case "type":
		return t.Type
	default:
		return int64(0)
	}
}

// evaluate walks the condition tree against t.
func evaluate(c store.Condition, t *task.Task) bool {
	switch c.Op {
	case "":
		return true // zero-value Condition matches everything
	case store.OpEq:
		return fieldValue(t, c.Field) == c.Value
	case store.OpLt:
		return less(fieldValue(t, c.Field), c.Value)
	case store.OpGt:
		return less(c.Value, fieldValue(t, c.Field))
	case store.OpAnd:
		for _, child := range c.Children {
			if !evaluate(child, t) {
				return false
			}
		}
		return true
	case store.OpOr:
		for _, child := range c.Children {
			if evaluate(child, t) {
				return true
			}
		}
		return len(c.Children) == 0
	default:
		return false
	}
}

// fieldValue resolves a condition field name against t's attributes.
func fieldValue(t *task.Task, field string) any {
	switch field {
	case "id":
		return t.ID
	case "type":
		return t.Type
	case "status":
		return string(t.Status)
	case "retainUntil":
		if t.RetainUntil == nil {
			return int64(0)
		}
		return *t.RetainUntil
	case "dateCreated":
		return t.DateCreated.UnixMilli()
	case "dateModified":
		return t.DateModified.UnixMilli()
	case "dateNextProcess":
		if t.DateNextProcess == nil {
			return int64(0)
		}
		return t.DateNextProcess.UnixMilli()
	default:
		return nil
	}
}

func less(a, b any) bool {
	switch av := a.(type) {
	case int64:
		bv, ok := toInt64(b)
		return ok && av < bv
	case string:
		bv, ok := b.(string)
		return ok && av < bv
	default:
		return false
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

// Dump serializes the entire store contents, useful for debugging/tests.
func (s *Store) Dump() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.data)
}
