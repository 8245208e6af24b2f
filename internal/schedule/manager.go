// Package schedule runs registered jobs at scheduled times using a
// min-heap and a small worker pool. Jobs carry an expiry: if a run is
// still queued past its expiry (workers wedged, process paused), it is
// dropped rather than executed late, so a stale nightly sweep cannot
// fire on top of the next scheduled one.
package schedule

import (
	"container/heap"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Task is a unit of scheduled work.
type Task struct {
	ID       string
	RunAt    time.Time
	ExpireAt time.Time // zero means never expires
	Fn       func()
	index    int // index in the heap
}

// taskHeap is a min-heap of Tasks ordered by RunAt.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	return h[i].RunAt.Before(h[j].RunAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	n := len(*h)
	task := x.(*Task)
	task.index = n
	*h = append(*h, task)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*h = old[0 : n-1]
	return task
}

// Manager dispatches scheduled tasks to a fixed worker pool.
type Manager struct {
	heap     taskHeap
	tasks    map[string]*Task // O(1) lookup by ID
	mu       sync.Mutex
	wakeup   chan struct{}
	work     chan *Task
	clock    clockwork.Clock
	workers  int
	workerWg sync.WaitGroup
	stopped  bool
	stopCh   chan struct{}
	dropped  int
}

// NewManager creates a scheduler with the given worker count. Pass
// clockwork.NewRealClock outside tests.
func NewManager(workers int, clock clockwork.Clock) *Manager {
	if workers <= 0 {
		workers = 2
	}
	m := &Manager{
		heap:    make(taskHeap, 0),
		tasks:   make(map[string]*Task),
		wakeup:  make(chan struct{}, 1),
		work:    make(chan *Task, workers),
		clock:   clock,
		workers: workers,
		stopCh:  make(chan struct{}),
	}
	heap.Init(&m.heap)
	return m
}

// Start starts the scheduler loop and its worker pool.
func (m *Manager) Start() {
	for i := 0; i < m.workers; i++ {
		m.workerWg.Add(1)
		go m.worker()
	}
	go m.run()
}

// Stop stops the scheduler gracefully, waiting for in-flight tasks.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	close(m.stopCh)
	m.mu.Unlock()

	m.workerWg.Wait()
}

// Schedule queues fn to run at runAt. A non-zero expiry drops the task
// if it has not started within expiry of its run time. Rescheduling an
// existing ID replaces the previous entry.
func (m *Manager) Schedule(id string, runAt time.Time, expiry time.Duration, fn func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrManagerStopped
	}

	if existing, ok := m.tasks[id]; ok {
		heap.Remove(&m.heap, existing.index)
		delete(m.tasks, id)
	}

	task := &Task{
		ID:    id,
		RunAt: runAt,
		Fn:    fn,
	}
	if expiry > 0 {
		task.ExpireAt = runAt.Add(expiry)
	}

	heap.Push(&m.heap, task)
	m.tasks[id] = task

	// Wake the loop if this became the earliest task.
	if m.heap[0] == task {
		select {
		case m.wakeup <- struct{}{}:
		default:
		}
	}

	return nil
}

// Cancel removes a scheduled task.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return false
	}

	heap.Remove(&m.heap, task.index)
	delete(m.tasks, id)
	return true
}

// run is the scheduler loop: pop due tasks, hand them to workers, sleep
// until the next deadline or a wakeup.
func (m *Manager) run() {
	for {
		m.mu.Lock()

		if m.stopped {
			m.mu.Unlock()
			return
		}

		var waitDuration time.Duration
		if m.heap.Len() == 0 {
			waitDuration = 24 * time.Hour
		} else {
			next := m.heap[0]
			waitDuration = next.RunAt.Sub(m.clock.Now())

			if waitDuration <= 0 {
				task := heap.Pop(&m.heap).(*Task)
				delete(m.tasks, task.ID)

				if !task.ExpireAt.IsZero() && m.clock.Now().After(task.ExpireAt) {
					m.dropped++
					m.mu.Unlock()
					continue
				}

				m.mu.Unlock()
				select {
				case m.work <- task:
				case <-m.stopCh:
					return
				}
				continue
			}
		}

		m.mu.Unlock()

		timer := m.clock.NewTimer(waitDuration)
		select {
		case <-timer.Chan():
		case <-m.wakeup:
			timer.Stop()
		case <-m.stopCh:
			timer.Stop()
			return
		}
	}
}

// worker executes dispatched tasks, re-checking expiry at pick-up time
// in case the task sat in the queue behind a long job.
func (m *Manager) worker() {
	defer m.workerWg.Done()

	for {
		select {
		case task := <-m.work:
			if !task.ExpireAt.IsZero() && m.clock.Now().After(task.ExpireAt) {
				m.mu.Lock()
				m.dropped++
				m.mu.Unlock()
				continue
			}
			task.Fn()
		case <-m.stopCh:
			return
		}
	}
}

// Stats returns scheduler statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		ScheduledTasks: len(m.tasks),
		Workers:        m.workers,
		DroppedTasks:   m.dropped,
	}
}

// Stats contains scheduler statistics.
type Stats struct {
	ScheduledTasks int
	Workers        int
	DroppedTasks   int
}

var ErrManagerStopped = &Error{"schedule manager is stopped"}

// Error represents a scheduler error.
type Error struct {
	msg string
}

func (e *Error) Error() string {
	return e.msg
}
