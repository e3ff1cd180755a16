package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/taskengine/backgroundtask/store"
	"github.com/taskengine/backgroundtask/store/memstore"
	"github.com/taskengine/backgroundtask/task"
)

func seed(t *testing.T, s *memstore.Store, tasks ...*task.Task) {
	t.Helper()
	for _, tk := range tasks {
		if err := s.Set(context.Background(), tk); err != nil {
			t.Fatalf("seed Set(%s): %v", tk.ID, err)
		}
	}
}

func mk(id, typ string, status task.Status, created time.Time) *task.Task {
	return &task.Task{ID: id, Type: typ, Status: status, DateCreated: created, DateModified: created}
}

// ── Condition evaluation ─────────────────────────────────────────────────────

func TestQuery_Eq_FiltersByTypeAndStatus(t *testing.T) {
	s := memstore.New()
	now := time.Now()
	seed(t, s,
		mk("a", "jobs.x", task.StatusPending, now),
		mk("b", "jobs.y", task.StatusPending, now),
		mk("c", "jobs.x", task.StatusSuccess, now),
	)

	results, _, err := s.Query(context.Background(), store.Query{
		Condition: store.And(store.Eq("type", "jobs.x"), store.Eq("status", string(task.StatusPending))),
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Fatalf("results = %v, want just task a", ids(results))
	}
}

func TestQuery_Lt_Gt_CompareRetainUntil(t *testing.T) {
	s := memstore.New()
	now := time.Now()
	low, mid, high := int64(100), int64(500), int64(900)
	ta := mk("a", "jobs.x", task.StatusSuccess, now)
	ta.RetainUntil = &low
	tb := mk("b", "jobs.x", task.StatusSuccess, now)
	tb.RetainUntil = &mid
	tc := mk("c", "jobs.x", task.StatusSuccess, now)
	tc.RetainUntil = &high
	seed(t, s, ta, tb, tc)

	lt, _, err := s.Query(context.Background(), store.Query{Condition: store.Lt("retainUntil", int64(500))})
	if err != nil {
		t.Fatalf("Query lt: %v", err)
	}
	if len(lt) != 1 || lt[0].ID != "a" {
		t.Fatalf("lt results = %v, want just a", ids(lt))
	}

	gt, _, err := s.Query(context.Background(), store.Query{Condition: store.Gt("retainUntil", int64(500))})
	if err != nil {
		t.Fatalf("Query gt: %v", err)
	}
	if len(gt) != 1 || gt[0].ID != "c" {
		t.Fatalf("gt results = %v, want just c", ids(gt))
	}
}

func TestQuery_Or_MatchesAnyChild(t *testing.T) {
	s := memstore.New()
	now := time.Now()
	seed(t, s,
		mk("a", "jobs.x", task.StatusSuccess, now),
		mk("b", "jobs.x", task.StatusFailed, now),
		mk("c", "jobs.x", task.StatusPending, now),
	)

	results, _, err := s.Query(context.Background(), store.Query{
		Condition: store.Or(store.Eq("status", string(task.StatusSuccess)), store.Eq("status", string(task.StatusFailed))),
		Sort:      store.Sort{Field: "id", Direction: store.Asc},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := ids(results); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("results = %v, want [a b]", got)
	}
}

func TestQuery_ZeroValueCondition_MatchesEverything(t *testing.T) {
	s := memstore.New()
	now := time.Now()
	seed(t, s, mk("a", "jobs.x", task.StatusSuccess, now), mk("b", "jobs.y", task.StatusFailed, now))

	results, _, err := s.Query(context.Background(), store.Query{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %v, want both tasks", ids(results))
	}
}

// ── Stable sort, id tie-break ────────────────────────────────────────────────

func TestQuery_Sort_TiesBreakOnAscendingID(t *testing.T) {
	s := memstore.New()
	same := time.Now()
	// All three share the same dateNextProcess; only id ordering should
	// distinguish them, regardless of insertion order.
	seed(t, s,
		withNextProcess(mk("c", "jobs.x", task.StatusPending, same), same),
		withNextProcess(mk("a", "jobs.x", task.StatusPending, same), same),
		withNextProcess(mk("b", "jobs.x", task.StatusPending, same), same),
	)

	results, _, err := s.Query(context.Background(), store.Query{
		Sort: store.Sort{Field: "dateNextProcess", Direction: store.Asc},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := ids(results); got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("order = %v, want [a b c] (stable tie-break on ascending id)", got)
	}
}

func withNextProcess(tk *task.Task, ts time.Time) *task.Task {
	cp := ts
	tk.DateNextProcess = &cp
	return tk
}

// ── Cursor pagination ────────────────────────────────────────────────────────

func TestQuery_Cursor_PaginatesInOrder(t *testing.T) {
	s := memstore.New()
	now := time.Now()
	seed(t, s,
		mk("a", "jobs.x", task.StatusPending, now),
		mk("b", "jobs.x", task.StatusPending, now),
		mk("c", "jobs.x", task.StatusPending, now),
		mk("d", "jobs.x", task.StatusPending, now),
		mk("e", "jobs.x", task.StatusPending, now),
	)

	var all []string
	var cursor store.Cursor
	for {
		page, next, err := s.Query(context.Background(), store.Query{
			Sort:     store.Sort{Field: "id", Direction: store.Asc},
			Cursor:   cursor,
			PageSize: 2,
		})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		all = append(all, ids(page)...)
		if next == "" {
			break
		}
		cursor = next
	}

	want := []string{"a", "b", "c", "d", "e"}
	if len(all) != len(want) {
		t.Fatalf("paginated ids = %v, want %v", all, want)
	}
	for i := range want {
		if all[i] != want[i] {
			t.Fatalf("paginated ids = %v, want %v", all, want)
		}
	}
}

func TestQuery_Cursor_EmptyWhenLastPageExact(t *testing.T) {
	s := memstore.New()
	now := time.Now()
	seed(t, s, mk("a", "jobs.x", task.StatusPending, now), mk("b", "jobs.x", task.StatusPending, now))

	page, next, err := s.Query(context.Background(), store.Query{
		Sort:     store.Sort{Field: "id", Direction: store.Asc},
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page) != 2 || next != "" {
		t.Fatalf("page = %v, next = %q, want 2 results and no further cursor", ids(page), next)
	}
}

func ids(tasks []*task.Task) []string {
	out := make([]string, len(tasks))
	for i, tk := range tasks {
		out[i] = tk.ID
	}
	return out
}
