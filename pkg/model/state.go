package model

// TaskState represents the lifecycle state of a block search Task.
type TaskState string

const (
	TaskStatePending   TaskState = "PENDING"
	TaskStateRunning   TaskState = "RUNNING"
	TaskStateFound     TaskState = "FOUND"
	TaskStateEmpty     TaskState = "EMPTY"
	TaskStateFailed    TaskState = "FAILED"
	TaskStateCancelled TaskState = "CANCELLED"
)

// String returns the string representation of the task state.
func (s TaskState) String() string {
	return string(s)
}

// IsTerminal returns true if the task is in a final state.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateFound, TaskStateEmpty, TaskStateFailed, TaskStateCancelled:
		return true
	}
	return false
}

// ValidTaskTransitions defines the allowed state transitions for Tasks.
var ValidTaskTransitions = map[TaskState][]TaskState{
	TaskStatePending: {TaskStateRunning, TaskStateCancelled},
	TaskStateRunning: {TaskStateFound, TaskStateEmpty, TaskStateFailed, TaskStateCancelled},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s TaskState) CanTransitionTo(next TaskState) bool {
	for _, allowed := range ValidTaskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// WaitMode selects when a poll of in-flight tasks returns.
type WaitMode string

const (
	// WaitFirstCompleted returns once at least one task has finished.
	WaitFirstCompleted WaitMode = "first"
	// WaitAllCompleted returns once every task has finished.
	WaitAllCompleted WaitMode = "all"
)

// Valid reports whether m is a known wait mode.
func (m WaitMode) Valid() bool {
	return m == WaitFirstCompleted || m == WaitAllCompleted
}
