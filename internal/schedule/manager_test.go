package schedule

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestManager_Schedule(t *testing.T) {
	m := NewManager(2, clockwork.NewRealClock())
	m.Start()
	defer m.Stop()

	executed := false
	var mu sync.Mutex

	err := m.Schedule("test1", time.Now().Add(100*time.Millisecond), 0, func() {
		mu.Lock()
		executed = true
		mu.Unlock()
	})

	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	if !executed {
		t.Error("Task was not executed")
	}
	mu.Unlock()
}

func TestManager_Cancel(t *testing.T) {
	m := NewManager(2, clockwork.NewRealClock())
	m.Start()
	defer m.Stop()

	executed := false
	var mu sync.Mutex

	err := m.Schedule("test1", time.Now().Add(100*time.Millisecond), 0, func() {
		mu.Lock()
		executed = true
		mu.Unlock()
	})

	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	cancelled := m.Cancel("test1")
	if !cancelled {
		t.Error("Cancel returned false")
	}

	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	if executed {
		t.Error("Cancelled task was executed")
	}
	mu.Unlock()
}

func TestManager_CancelUnknownID(t *testing.T) {
	m := NewManager(2, clockwork.NewRealClock())
	m.Start()
	defer m.Stop()

	if m.Cancel("nope") {
		t.Error("Cancel of unknown ID returned true")
	}
}

func TestManager_RescheduleReplaces(t *testing.T) {
	m := NewManager(2, clockwork.NewRealClock())
	m.Start()
	defer m.Stop()

	var mu sync.Mutex
	ran := ""

	m.Schedule("job", time.Now().Add(100*time.Millisecond), 0, func() {
		mu.Lock()
		ran = "first"
		mu.Unlock()
	})
	m.Schedule("job", time.Now().Add(150*time.Millisecond), 0, func() {
		mu.Lock()
		ran = "second"
		mu.Unlock()
	})

	stats := m.Stats()
	if stats.ScheduledTasks != 1 {
		t.Errorf("Expected 1 scheduled task after reschedule, got %d", stats.ScheduledTasks)
	}

	time.Sleep(400 * time.Millisecond)

	mu.Lock()
	if ran != "second" {
		t.Errorf("Expected replacement task to run, got %q", ran)
	}
	mu.Unlock()
}

func TestManager_OrderedExecution(t *testing.T) {
	m := NewManager(1, clockwork.NewRealClock())
	m.Start()
	defer m.Stop()

	var mu sync.Mutex
	var order []string

	record := func(id string) func() {
		return func() {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
		}
	}

	now := time.Now()
	m.Schedule("third", now.Add(300*time.Millisecond), 0, record("third"))
	m.Schedule("first", now.Add(100*time.Millisecond), 0, record("first"))
	m.Schedule("second", now.Add(200*time.Millisecond), 0, record("second"))

	time.Sleep(600 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 {
		t.Fatalf("Expected 3 executions, got %d", len(order))
	}
	for i, want := range []string{"first", "second", "third"} {
		if order[i] != want {
			t.Errorf("Execution %d: expected %s, got %s", i, want, order[i])
		}
	}
}

func TestManager_ExpiredTaskDropped(t *testing.T) {
	m := NewManager(2, clockwork.NewRealClock())
	m.Start()
	defer m.Stop()

	executed := false
	var mu sync.Mutex

	// Run time and expiry are both already in the past, as if the
	// process had been paused across the window.
	err := m.Schedule("stale", time.Now().Add(-2*time.Hour), time.Hour, func() {
		mu.Lock()
		executed = true
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	if executed {
		t.Error("Expired task was executed")
	}
	mu.Unlock()

	stats := m.Stats()
	if stats.DroppedTasks != 1 {
		t.Errorf("Expected 1 dropped task, got %d", stats.DroppedTasks)
	}
}

func TestManager_ExpiryZeroNeverDrops(t *testing.T) {
	m := NewManager(2, clockwork.NewRealClock())
	m.Start()
	defer m.Stop()

	executed := false
	var mu sync.Mutex

	err := m.Schedule("old-but-valid", time.Now().Add(-2*time.Hour), 0, func() {
		mu.Lock()
		executed = true
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	if !executed {
		t.Error("Task with no expiry was dropped")
	}
	mu.Unlock()
}

func TestManager_ScheduleAfterStop(t *testing.T) {
	m := NewManager(2, clockwork.NewRealClock())
	m.Start()
	m.Stop()

	err := m.Schedule("late", time.Now().Add(time.Second), 0, func() {})
	if err != ErrManagerStopped {
		t.Errorf("Expected ErrManagerStopped, got %v", err)
	}
}

func TestNextDailyRun(t *testing.T) {
	now := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)

	// Later today.
	next, err := NextDailyRun(now, "14:30")
	if err != nil {
		t.Fatalf("NextDailyRun failed: %v", err)
	}
	want := time.Date(2026, 7, 15, 14, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Expected %v, got %v", want, next)
	}

	// Already past today, rolls to tomorrow.
	next, err = NextDailyRun(now, "02:30")
	if err != nil {
		t.Fatalf("NextDailyRun failed: %v", err)
	}
	want = time.Date(2026, 7, 16, 2, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Expected %v, got %v", want, next)
	}
}

func TestNextDailyRun_Invalid(t *testing.T) {
	now := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)

	for _, tod := range []string{"", "nope", "25:00", "12:75"} {
		if _, err := NextDailyRun(now, tod); err == nil {
			t.Errorf("Expected error for %q", tod)
		}
	}
}
