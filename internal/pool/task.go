package pool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/me/worksizing/pkg/model"
)

// Task is the handle for one dispatched block search.
type Task struct {
	ID          string
	Block       model.Block
	SubmittedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	state       model.TaskState
	value       int64
	found       bool
	err         error
	startedAt   time.Time
	completedAt time.Time
}

func newTask(b model.Block, cancel context.CancelFunc) *Task {
	return &Task{
		ID:          "task_" + uuid.New().String(),
		Block:       b,
		SubmittedAt: time.Now(),
		cancel:      cancel,
		done:        make(chan struct{}),
		state:       model.TaskStatePending,
	}
}

// State returns the current lifecycle state.
func (t *Task) State() model.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Result returns the value found in the block. The boolean is false while the
// task is still in flight and when the block held no valid candidate.
func (t *Task) Result() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value, t.found
}

// Err returns the error that ended the task, if any. Cancelled tasks report
// the context error.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done is closed once the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// IsDone reports whether the task has reached a terminal state.
func (t *Task) IsDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Cancel asks the task to stop. It does not wait for the search to notice.
func (t *Task) Cancel() {
	t.cancel()
}

// Duration returns how long the search ran. Zero until the task completes or
// if it never started.
func (t *Task) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startedAt.IsZero() || t.completedAt.IsZero() {
		return 0
	}
	return t.completedAt.Sub(t.startedAt)
}

// StartedAt returns when the search acquired a worker slot.
func (t *Task) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

func (t *Task) start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.CanTransitionTo(model.TaskStateRunning) {
		return &model.InvalidTransitionError{TaskID: t.ID, From: t.state, To: model.TaskStateRunning}
	}
	t.state = model.TaskStateRunning
	t.startedAt = time.Now()
	return nil
}

// finish moves the task to a terminal state and closes Done. Finishing an
// already terminal task is a no-op.
func (t *Task) finish(state model.TaskState, value int64, found bool, err error) {
	t.mu.Lock()
	if t.state.IsTerminal() || !t.state.CanTransitionTo(state) {
		t.mu.Unlock()
		return
	}
	t.state = state
	t.value = value
	t.found = found
	t.err = err
	t.completedAt = time.Now()
	close(t.done)
	t.mu.Unlock()

	t.cancel()
}
