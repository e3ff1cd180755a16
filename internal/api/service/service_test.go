package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/taskengine/backgroundtask/connector"
	"github.com/taskengine/backgroundtask/internal/api/service"
	"github.com/taskengine/backgroundtask/registry"
	"github.com/taskengine/backgroundtask/store/memstore"
	"github.com/taskengine/backgroundtask/task"
	"github.com/taskengine/backgroundtask/workerrt/pool"
)

var ctx = context.Background()

// newService returns a Service backed by a fresh in-memory store and a
// connector with no handlers registered (tasks stay pending until a test
// registers one).
func newService() (*service.Service, *connector.Connector) {
	st := memstore.New()
	reg := registry.New(nil)
	rt := pool.New(0)
	conn := connector.New(st, reg, rt, connector.Config{Now: time.Now})
	return service.New(conn), conn
}

func TestCreateTask_Success(t *testing.T) {
	svc, _ := newService()
	id, err := svc.CreateTask(ctx, service.CreateTaskInput{Type: "demo.echo", Payload: []byte("hi")})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if id == "" {
		t.Error("expected non-empty task id")
	}
}

func TestCreateTask_InvalidRetryCount(t *testing.T) {
	svc, _ := newService()
	bad := 0
	_, err := svc.CreateTask(ctx, service.CreateTaskInput{Type: "demo.echo", RetryCount: &bad})
	if err == nil {
		t.Fatal("expected validation error for retryCount=0")
	}
}

func TestGetTask_RoundTrip(t *testing.T) {
	svc, _ := newService()
	id, err := svc.CreateTask(ctx, service.CreateTaskInput{Type: "demo.echo"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	v, err := svc.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if v == nil {
		t.Fatal("expected task, got nil")
	}
	if v.ID != id {
		t.Errorf("ID: got %q, want %q", v.ID, id)
	}
	if v.Status != task.StatusPending {
		t.Errorf("Status: got %q, want pending", v.Status)
	}
}

func TestGetTask_NotFound(t *testing.T) {
	svc, _ := newService()
	v, err := svc.GetTask(ctx, "background-task:entity-storage:"+"00000000000000000000000000000000"[:32])
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if v != nil {
		t.Errorf("expected nil for unknown id, got %+v", v)
	}
}

func TestGetTask_MalformedURN(t *testing.T) {
	svc, _ := newService()
	_, err := svc.GetTask(ctx, "not-a-urn")
	if err == nil {
		t.Fatal("expected namespace mismatch error for malformed urn")
	}
}

func TestCancelTask_PendingBecomesCancelled(t *testing.T) {
	svc, _ := newService()
	// A non-zero retainFor keeps the cancelled record readable.
	retainFor := int64(10_000)
	id, err := svc.CreateTask(ctx, service.CreateTaskInput{Type: "demo.echo", RetainFor: &retainFor})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := svc.CancelTask(ctx, id); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	v, err := svc.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if v.Status != task.StatusCancelled {
		t.Errorf("Status: got %q, want cancelled", v.Status)
	}
}

func TestRemoveTask_DeletesRecord(t *testing.T) {
	svc, _ := newService()
	id, err := svc.CreateTask(ctx, service.CreateTaskInput{Type: "demo.echo"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := svc.RemoveTask(ctx, id); err != nil {
		t.Fatalf("RemoveTask: %v", err)
	}
	v, err := svc.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if v != nil {
		t.Errorf("expected task to be removed, got %+v", v)
	}
}

func TestListTasks_FilterByType(t *testing.T) {
	svc, _ := newService()
	if _, err := svc.CreateTask(ctx, service.CreateTaskInput{Type: "demo.echo"}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := svc.CreateTask(ctx, service.CreateTaskInput{Type: "demo.other"}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	result, err := svc.ListTasks(ctx, service.ListTasksInput{Type: "demo.echo"})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(result.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(result.Tasks))
	}
	if result.Tasks[0].Type != "demo.echo" {
		t.Errorf("Type: got %q, want demo.echo", result.Tasks[0].Type)
	}
}

func TestListTasks_FilterByStatus(t *testing.T) {
	svc, _ := newService()
	retainFor := int64(10_000)
	id, err := svc.CreateTask(ctx, service.CreateTaskInput{Type: "demo.echo", RetainFor: &retainFor})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := svc.CancelTask(ctx, id); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	if _, err := svc.CreateTask(ctx, service.CreateTaskInput{Type: "demo.echo"}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	result, err := svc.ListTasks(ctx, service.ListTasksInput{Statuses: []task.Status{task.StatusCancelled}})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(result.Tasks) != 1 {
		t.Fatalf("expected 1 cancelled task, got %d", len(result.Tasks))
	}
}

func TestListTasks_Empty(t *testing.T) {
	svc, _ := newService()
	result, err := svc.ListTasks(ctx, service.ListTasksInput{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(result.Tasks) != 0 {
		t.Errorf("expected 0 tasks, got %d", len(result.Tasks))
	}
}

func TestRetryTask_NoopWhenNotPending(t *testing.T) {
	svc, _ := newService()
	id, err := svc.CreateTask(ctx, service.CreateTaskInput{Type: "demo.echo"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := svc.CancelTask(ctx, id); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	// Retry on a cancelled task is a documented no-op, not an error.
	if err := svc.RetryTask(ctx, id); err != nil {
		t.Fatalf("RetryTask: %v", err)
	}
}
