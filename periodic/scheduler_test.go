package periodic_test

import (
	"sync"
	"testing"
	"time"

	"github.com/taskengine/backgroundtask/periodic"
)

func poll(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func i64p(v int64) *int64 { return &v }

// ── Scenario 8: one-shot schedule fires once, then goes dormant ────────────

func TestAddTask_OneShot_FiresOnceThenDormant(t *testing.T) {
	s := periodic.New(periodic.WithOverrideInterval(10 * time.Millisecond))

	var mu sync.Mutex
	var fired int
	next := time.Now().Add(40 * time.Millisecond).UnixMilli()
	s.AddTask("one-shot", []periodic.Schedule{{NextTriggerTime: &next}}, func(id string) error {
		mu.Lock()
		fired++
		mu.Unlock()
		return nil
	})

	poll(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired == 1
	})

	// Give the scheduler a few more ticks to prove it does not refire.
	time.Sleep(80 * time.Millisecond)
	mu.Lock()
	got := fired
	mu.Unlock()
	if got != 1 {
		t.Fatalf("fired = %d, want exactly 1 (one-shot must not refire)", got)
	}

	info := s.TasksInfo()
	entries, ok := info["one-shot"]
	if !ok || len(entries) != 1 {
		t.Fatalf("TasksInfo()[\"one-shot\"] = %v, want one entry", entries)
	}
	if entries[0].NextTriggerTime != nil {
		t.Fatalf("NextTriggerTime = %v, want nil (dormant) after a one-shot fires", entries[0].NextTriggerTime)
	}
}

// ── Scenario 9: interval schedule recomputes from the prior trigger time ───

func TestAddTask_Interval_AdvancesFromPriorTriggerTime(t *testing.T) {
	s := periodic.New(periodic.WithOverrideInterval(10 * time.Millisecond))

	prev := time.Now().Add(-59 * time.Second).UnixMilli()
	var mu sync.Mutex
	fired := 0
	s.AddTask("interval", []periodic.Schedule{{
		NextTriggerTime: &prev,
		IntervalMinutes: i64p(1),
	}}, func(id string) error {
		mu.Lock()
		fired++
		mu.Unlock()
		return nil
	})

	poll(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired == 1
	})

	info := s.TasksInfo()
	entries := info["interval"]
	if len(entries) != 1 {
		t.Fatalf("entries = %v, want one", entries)
	}
	if entries[0].NextTriggerTime == nil {
		t.Fatal("interval schedule should still have a NextTriggerTime after firing")
	}
	want := prev + 60_000
	if *entries[0].NextTriggerTime != want {
		t.Fatalf("NextTriggerTime = %d, want %d (prior trigger time + 60000ms, not now + interval)", *entries[0].NextTriggerTime, want)
	}
}

// ── Callback errors are recorded but never remove the entry ────────────────

func TestAddTask_CallbackError_EntrySurvives(t *testing.T) {
	s := periodic.New(periodic.WithOverrideInterval(10 * time.Millisecond))

	prev := time.Now().Add(-1 * time.Second).UnixMilli()
	var mu sync.Mutex
	calls := 0
	s.AddTask("flaky", []periodic.Schedule{{
		NextTriggerTime: &prev,
		IntervalMinutes: i64p(1),
	}}, func(id string) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return assertErr{}
	})

	poll(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	})

	entries := s.TasksInfo()["flaky"]
	if len(entries) != 1 || entries[0].NextTriggerTime == nil {
		t.Fatalf("entry should survive a failing callback and still carry a future trigger time, got %v", entries)
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "callback failed" }

// ── RemoveTask ───────────────────────────────────────────────────────────────

func TestRemoveTask_StopsFutureFirings(t *testing.T) {
	s := periodic.New(periodic.WithOverrideInterval(10 * time.Millisecond))

	next := time.Now().Add(20 * time.Millisecond).UnixMilli()
	var mu sync.Mutex
	fired := 0
	s.AddTask("removable", []periodic.Schedule{{NextTriggerTime: &next}}, func(id string) error {
		mu.Lock()
		fired++
		mu.Unlock()
		return nil
	})
	s.RemoveTask("removable")

	time.Sleep(80 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if fired != 0 {
		t.Fatalf("fired = %d, want 0 (removed before it became due)", fired)
	}
	if _, ok := s.TasksInfo()["removable"]; ok {
		t.Fatal("removed task should not appear in TasksInfo")
	}
}

// ── AddCronTask ──────────────────────────────────────────────────────────────

func TestAddCronTask_RegistersWithFutureTrigger(t *testing.T) {
	s := periodic.New(periodic.WithOverrideInterval(10 * time.Millisecond))

	if err := s.AddCronTask("cron-task", "* * * * *", func(id string) error { return nil }); err != nil {
		t.Fatalf("AddCronTask: %v", err)
	}

	entries := s.TasksInfo()["cron-task"]
	if len(entries) != 1 {
		t.Fatalf("entries = %v, want one", entries)
	}
	if entries[0].CronExpr == nil || *entries[0].CronExpr != "* * * * *" {
		t.Fatalf("CronExpr = %v, want \"* * * * *\"", entries[0].CronExpr)
	}
	if entries[0].NextTriggerTime == nil || *entries[0].NextTriggerTime <= time.Now().UnixMilli() {
		t.Fatal("AddCronTask should compute a NextTriggerTime in the future")
	}
}

func TestAddCronTask_InvalidExpression_ReturnsError(t *testing.T) {
	s := periodic.New()
	if err := s.AddCronTask("bad", "not a cron expr", func(id string) error { return nil }); err == nil {
		t.Fatal("expected an error for a malformed cron expression")
	}
	if _, ok := s.TasksInfo()["bad"]; ok {
		t.Fatal("a rejected cron expression should not register an entry")
	}
}

// TestCronEntry_Fires_RecomputesViaCronSchedule exercises fire()'s cron
// branch directly: a Schedule carrying CronExpr is recomputed via
// cron.Next(prev) rather than the additive interval arithmetic.
func TestCronEntry_Fires_RecomputesViaCronSchedule(t *testing.T) {
	s := periodic.New(periodic.WithOverrideInterval(10 * time.Millisecond))

	prev := time.Now().Add(-1 * time.Minute).UnixMilli()
	expr := "* * * * *"
	var mu sync.Mutex
	fired := 0
	s.AddTask("cron-direct", []periodic.Schedule{{
		NextTriggerTime: &prev,
		CronExpr:        &expr,
	}}, func(id string) error {
		mu.Lock()
		fired++
		mu.Unlock()
		return nil
	})

	poll(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired == 1
	})

	entries := s.TasksInfo()["cron-direct"]
	if len(entries) != 1 || entries[0].NextTriggerTime == nil {
		t.Fatal("cron entry should carry a recomputed NextTriggerTime after firing")
	}
	if *entries[0].NextTriggerTime <= prev {
		t.Fatal("recomputed cron NextTriggerTime should advance past the previous trigger time")
	}
}
