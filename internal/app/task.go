package app

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type TaskState string

const (
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskCancelled TaskState = "cancelled"
	TaskFailed    TaskState = "failed"
)

// GenerationTask tracks one streaming answer cycle. Tasks live only in
// this process; an in-flight task lost to a restart is gone, the client
// sees a broken stream and retries.
type GenerationTask struct {
	ID        string
	UserID    uint
	SessionID uint

	mu     sync.Mutex
	state  TaskState
	cancel context.CancelFunc
}

func (t *GenerationTask) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Cancel flips a running task to cancelled and stops its generation
// context. Terminal states stay put.
func (t *GenerationTask) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TaskRunning {
		return false
	}
	t.state = TaskCancelled
	if t.cancel != nil {
		t.cancel()
	}
	return true
}

// finish moves a running task to a terminal state; a concurrent Cancel
// wins and the cycle is discarded.
func (t *GenerationTask) finish(next TaskState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TaskRunning {
		return false
	}
	t.state = next
	return true
}

// TaskRegistry tracks running generation tasks so the cancel endpoint
// can find them by id.
type TaskRegistry struct {
	mu    sync.Mutex
	tasks map[string]*GenerationTask
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: make(map[string]*GenerationTask)}
}

func (r *TaskRegistry) start(userID, sessionID uint, cancel context.CancelFunc) *GenerationTask {
	task := &GenerationTask{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		state:     TaskRunning,
		cancel:    cancel,
	}
	r.mu.Lock()
	r.tasks[task.ID] = task
	r.mu.Unlock()
	return task
}

func (r *TaskRegistry) remove(taskID string) {
	r.mu.Lock()
	delete(r.tasks, taskID)
	r.mu.Unlock()
}

// Cancel requests cancellation of the caller's running task. Unknown
// ids and other users' tasks look the same to the caller.
func (r *TaskRegistry) Cancel(taskID string, userID uint) error {
	r.mu.Lock()
	task, ok := r.tasks[taskID]
	r.mu.Unlock()

	if !ok || task.UserID != userID {
		return ErrTaskNotFound
	}
	task.Cancel()
	return nil
}
