// Package service provides the API business-logic layer for the
// background-task connector. It mediates between HTTP handlers and the
// connector's control surface, mirroring the teacher's service layer shape
// (a thin struct wrapping the core component's exported operations).
package service

import (
	"context"

	"github.com/taskengine/backgroundtask/connector"
	"github.com/taskengine/backgroundtask/store"
	"github.com/taskengine/backgroundtask/task"
)

// Service wraps a *connector.Connector for the HTTP handler layer.
type Service struct {
	conn *connector.Connector
}

// New constructs a Service around conn.
func New(conn *connector.Connector) *Service {
	return &Service{conn: conn}
}

// CreateTaskInput carries the fields supplied by the caller when creating a
// new task.
type CreateTaskInput struct {
	Type          string `json:"type" binding:"required"`
	Payload       []byte `json:"payload"`
	RetryCount    *int   `json:"retryCount"`
	RetryInterval *int64 `json:"retryInterval"`
	RetainFor     *int64 `json:"retainFor"`
}

// CreateTask validates and persists a new task, returning its URN id.
func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (string, error) {
	return s.conn.Create(ctx, in.Type, in.Payload, connector.CreateOptions{
		RetryCount:    in.RetryCount,
		RetryInterval: in.RetryInterval,
		RetainFor:     in.RetainFor,
	})
}

// GetTask returns the task addressed by id, or (nil, nil) if absent.
func (s *Service) GetTask(ctx context.Context, id string) (*task.View, error) {
	return s.conn.Get(ctx, id)
}

// RetryTask resurfaces a pending task for immediate dispatch.
func (s *Service) RetryTask(ctx context.Context, id string) error {
	return s.conn.Retry(ctx, id)
}

// CancelTask cancels a pending task.
func (s *Service) CancelTask(ctx context.Context, id string) error {
	return s.conn.Cancel(ctx, id)
}

// RemoveTask unconditionally deletes a task record.
func (s *Service) RemoveTask(ctx context.Context, id string) error {
	return s.conn.Remove(ctx, id)
}

// ListTasksInput carries the optional query filters for ListTasks.
type ListTasksInput struct {
	Type          string
	Statuses      []task.Status
	SortProperty  string
	SortDirection string
	Cursor        string
	PageSize      int
}

// ListTasksResult is the paginated response for ListTasks.
type ListTasksResult struct {
	Tasks      []*task.View `json:"tasks"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

// ListTasks queries tasks by type and/or status with cursor pagination.
func (s *Service) ListTasks(ctx context.Context, in ListTasksInput) (ListTasksResult, error) {
	dir := store.SortDirection(in.SortDirection)
	if dir != store.Asc && dir != store.Desc {
		dir = ""
	}
	views, next, err := s.conn.Query(ctx, connector.QueryInput{
		Type:          in.Type,
		Statuses:      in.Statuses,
		SortProperty:  in.SortProperty,
		SortDirection: dir,
		Cursor:        store.Cursor(in.Cursor),
		PageSize:      in.PageSize,
	})
	if err != nil {
		return ListTasksResult{}, err
	}
	return ListTasksResult{Tasks: views, NextCursor: string(next)}, nil
}
