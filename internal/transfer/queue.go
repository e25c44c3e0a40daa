package transfer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cloudsdk/cloudxfer/internal/events"
)

// Queue errors
var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskNotActive = errors.New("task is not active or initializing")
)

// QueueStats holds statistics about the transfer queue.
type QueueStats struct {
	Queued       int
	Initializing int
	Active       int
	Completed    int
	Failed       int
	Cancelled    int
}

// Total returns total number of tasks in queue.
func (s QueueStats) Total() int {
	return s.Queued + s.Initializing + s.Active + s.Completed + s.Failed + s.Cancelled
}

// Queue is a passive transfer tracker that publishes events.
// It does NOT execute transfers; the orchestrator does and reports here:
//   - TrackTransfer registers a task
//   - Activate marks URL resolution, StartTransfer the first bytes
//   - UpdateProgress records byte counts
//   - Complete/Fail close the task
//   - Cancel calls the cancel function stored with SetCancel
//
// Terminal transitions are first-wins: a task cancelled by the caller stays
// cancelled when the orchestrator later reports its failure.
type Queue struct {
	tasks     []*TransferTask
	tasksByID map[string]*TransferTask
	mu        sync.RWMutex

	cancelFuncs map[string]context.CancelFunc

	bus *events.Bus
}

// NewQueue creates a new transfer queue publishing on bus (may be nil).
func NewQueue(bus *events.Bus) *Queue {
	return &Queue{
		tasks:       make([]*TransferTask, 0),
		tasksByID:   make(map[string]*TransferTask),
		cancelFuncs: make(map[string]context.CancelFunc),
		bus:         bus,
	}
}

// TrackTransfer registers a new transfer in TaskQueued state.
func (q *Queue) TrackTransfer(taskType TaskType, name, folder string, category int, size int64) *TransferTask {
	task := NewTransferTask(taskType, name, folder, category, size)

	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.tasksByID[task.ID] = task
	q.mu.Unlock()

	q.publish(events.Queued, task)
	return task
}

// Activate marks a queued task as initializing (resolving its URL).
func (q *Queue) Activate(taskID string) {
	task := q.transition(taskID, TaskQueued, TaskInitializing)
	if task != nil {
		q.publish(events.Resolving, task)
	}
}

// StartTransfer marks an initializing task as active.
// Call it when the first progress report arrives. Idempotent.
func (q *Queue) StartTransfer(taskID string) {
	task := q.transition(taskID, TaskInitializing, TaskActive)
	if task != nil {
		q.publish(events.Started, task)
	}
}

// transition moves a task from one state to another and returns it,
// or returns nil when the task is missing or not in the from state.
func (q *Queue) transition(taskID string, from, to TaskState) *TransferTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, exists := q.tasksByID[taskID]
	if !exists || task == nil {
		return nil
	}
	task.mu.Lock()
	defer task.mu.Unlock()
	if task.State != from {
		return nil
	}
	task.setStateLocked(to)
	return task
}

// SetCancel stores the cancel function of a running transfer.
func (q *Queue) SetCancel(taskID string, cancelFn context.CancelFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelFuncs[taskID] = cancelFn
}

// UpdateProgress records bytes sent out of total for a task.
func (q *Queue) UpdateProgress(taskID string, bytesSent, totalBytes int64) {
	q.mu.RLock()
	task, exists := q.tasksByID[taskID]
	q.mu.RUnlock()
	if !exists || task == nil || task.IsTerminal() {
		return
	}

	task.UpdateProgressWithBytes(bytesSent, totalBytes)
	q.publish(events.Progress, task)
}

// Complete marks a task as successfully completed.
func (q *Queue) Complete(taskID string) {
	task := q.finish(taskID, TaskCompleted, nil)
	if task != nil {
		q.publish(events.Completed, task)
	}
}

// Fail marks a task as failed with an error.
func (q *Queue) Fail(taskID string, err error) {
	task := q.finish(taskID, TaskFailed, err)
	if task != nil {
		q.publish(events.Failed, task)
	}
}

// finish applies a terminal state once and drops the cancel function.
func (q *Queue) finish(taskID string, state TaskState, err error) *TransferTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.cancelFuncs, taskID)
	task, exists := q.tasksByID[taskID]
	if !exists || task == nil {
		return nil
	}

	task.mu.Lock()
	defer task.mu.Unlock()
	if isTerminal(task.State) {
		return nil
	}
	if state == TaskCompleted {
		task.Progress = 1.0
	}
	task.Error = err
	task.setStateLocked(state)
	return task
}

// Cancel cancels an active or initializing task by calling its stored cancel function.
func (q *Queue) Cancel(taskID string) error {
	q.mu.Lock()
	task, exists := q.tasksByID[taskID]
	cancelFn := q.cancelFuncs[taskID]
	q.mu.Unlock()

	if !exists || task == nil {
		return ErrTaskNotFound
	}

	state := task.GetState()
	if state != TaskActive && state != TaskInitializing && state != TaskQueued {
		return ErrTaskNotActive
	}

	// Mark first so the orchestrator's failure report loses the race.
	if q.finish(taskID, TaskCancelled, context.Canceled) != nil {
		q.publish(events.Cancelled, task)
	}
	if cancelFn != nil {
		cancelFn()
	}
	return nil
}

// CancelAll cancels every task that has not finished.
func (q *Queue) CancelAll() {
	q.mu.RLock()
	ids := make([]string, 0, len(q.tasks))
	for _, task := range q.tasks {
		if !task.IsTerminal() {
			ids = append(ids, task.ID)
		}
	}
	q.mu.RUnlock()

	for _, id := range ids {
		_ = q.Cancel(id)
	}
}

// ClearCompleted removes all completed/failed/cancelled tasks from the queue.
func (q *Queue) ClearCompleted() {
	q.mu.Lock()
	defer q.mu.Unlock()

	filtered := make([]*TransferTask, 0, len(q.tasks))
	for _, task := range q.tasks {
		if !task.IsTerminal() {
			filtered = append(filtered, task)
		} else {
			delete(q.tasksByID, task.ID)
		}
	}
	q.tasks = filtered
}

// GetStats returns current queue statistics.
func (q *Queue) GetStats() QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := QueueStats{}
	for _, task := range q.tasks {
		switch task.GetState() {
		case TaskQueued:
			stats.Queued++
		case TaskInitializing:
			stats.Initializing++
		case TaskActive:
			stats.Active++
		case TaskCompleted:
			stats.Completed++
		case TaskFailed:
			stats.Failed++
		case TaskCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// GetTasks returns a copy of all tasks for display.
func (q *Queue) GetTasks() []TransferTask {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]TransferTask, len(q.tasks))
	for i, task := range q.tasks {
		result[i] = task.Clone()
	}
	return result
}

// GetTask returns a copy of a specific task by ID.
func (q *Queue) GetTask(taskID string) (TransferTask, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	task, exists := q.tasksByID[taskID]
	if !exists || task == nil {
		return TransferTask{}, false
	}
	return task.Clone(), true
}

// publish sends a snapshot of task to the bus.
func (q *Queue) publish(kind events.Kind, task *TransferTask) {
	if q.bus == nil {
		return
	}

	snap := task.Clone()
	q.bus.Publish(events.TransferEvent{
		Kind:      kind,
		Time:      time.Now(),
		TaskID:    snap.ID,
		Operation: string(snap.Type),
		Name:      snap.Name,
		Folder:    snap.Folder,
		Size:      snap.Size,
		BytesSent: snap.BytesSent,
		Progress:  snap.Progress,
		Speed:     snap.Speed,
		Err:       snap.Error,
	})
}
