// Package transfer tracks orchestrated uploads and downloads and publishes
// their lifecycle on the event bus.
package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskType indicates whether a task is an upload or download.
type TaskType string

const (
	TaskTypeUpload   TaskType = "upload"
	TaskTypeDownload TaskType = "download"
)

// TaskState represents the current state of a transfer task.
type TaskState string

const (
	TaskQueued       TaskState = "queued"       // Registered, not started
	TaskInitializing TaskState = "initializing" // Resolving the pre-signed URL
	TaskActive       TaskState = "active"       // Bytes are moving
	TaskCompleted    TaskState = "completed"    // Successfully completed
	TaskFailed       TaskState = "failed"       // Failed with error
	TaskCancelled    TaskState = "cancelled"    // Cancelled by the caller
)

// speedSmoothingAlpha weights the newest sample in the speed EMA.
const speedSmoothingAlpha = 0.25

// TransferTask represents a single tracked upload or download.
// Thread-safe: Use the provided methods to update state.
type TransferTask struct {
	ID       string
	Type     TaskType
	Name     string // File name
	Folder   string // Remote folder
	Category int
	Size     int64 // Payload size in bytes (0 for downloads)

	State     TaskState
	BytesSent int64
	Progress  float64 // 0.0 to 1.0
	Speed     float64 // bytes/sec (smoothed with EMA)
	Error     error

	lastBytes      int64
	lastUpdateTime time.Time

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewTransferTask creates a new task in TaskQueued state.
func NewTransferTask(taskType TaskType, name, folder string, category int, size int64) *TransferTask {
	ctx, cancel := context.WithCancel(context.Background())
	return &TransferTask{
		ID:        uuid.NewString(),
		Type:      taskType,
		Name:      name,
		Folder:    folder,
		Category:  category,
		Size:      size,
		State:     TaskQueued,
		CreatedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// GetState returns the current state (thread-safe).
func (t *TransferTask) GetState() TaskState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.State
}

// SetState updates the task state (thread-safe).
func (t *TransferTask) SetState(state TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setStateLocked(state)
}

func (t *TransferTask) setStateLocked(state TaskState) {
	t.State = state
	if state == TaskActive && t.StartedAt.IsZero() {
		t.StartedAt = time.Now()
	}
	if isTerminal(state) {
		t.CompletedAt = time.Now()
	}
}

// GetProgress returns current progress (thread-safe).
func (t *TransferTask) GetProgress() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Progress
}

// GetBytesSent returns the bytes high-water mark (thread-safe).
func (t *TransferTask) GetBytesSent() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.BytesSent
}

// UpdateProgressWithBytes updates progress and speed.
// Reports below the current high-water mark are ignored.
func (t *TransferTask) UpdateProgressWithBytes(bytesSent, totalBytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updateLocked(bytesSent, totalBytes, time.Now())
}

func (t *TransferTask) updateLocked(bytesSent, totalBytes int64, now time.Time) {
	if bytesSent < t.BytesSent {
		return
	}
	t.BytesSent = bytesSent
	if totalBytes > 0 {
		t.Progress = float64(bytesSent) / float64(totalBytes)
	}

	if t.lastUpdateTime.IsZero() {
		t.lastUpdateTime = now
		t.lastBytes = bytesSent
		return
	}

	// Need at least 100ms between samples for a meaningful rate
	elapsed := now.Sub(t.lastUpdateTime).Seconds()
	if elapsed <= 0.1 || bytesSent <= t.lastBytes {
		return
	}
	instantRate := float64(bytesSent-t.lastBytes) / elapsed
	if t.Speed > 0 {
		t.Speed = speedSmoothingAlpha*instantRate + (1-speedSmoothingAlpha)*t.Speed
	} else {
		t.Speed = instantRate
	}
	t.lastBytes = bytesSent
	t.lastUpdateTime = now
}

// GetSpeed returns current transfer speed in bytes/sec (thread-safe).
func (t *TransferTask) GetSpeed() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Speed
}

// SetError sets the error and changes state to TaskFailed (thread-safe).
func (t *TransferTask) SetError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Error = err
	t.setStateLocked(TaskFailed)
}

// GetError returns the error if any (thread-safe).
func (t *TransferTask) GetError() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Error
}

// Cancel cancels this task's context.
func (t *TransferTask) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	if !isTerminal(t.State) {
		t.setStateLocked(TaskCancelled)
	}
}

// Context returns the task's context for cancellation checking.
func (t *TransferTask) Context() context.Context {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ctx
}

// Clone returns a copy of the task's exported fields.
func (t *TransferTask) Clone() TransferTask {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TransferTask{
		ID:          t.ID,
		Type:        t.Type,
		Name:        t.Name,
		Folder:      t.Folder,
		Category:    t.Category,
		Size:        t.Size,
		State:       t.State,
		BytesSent:   t.BytesSent,
		Progress:    t.Progress,
		Speed:       t.Speed,
		Error:       t.Error,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}

// IsTerminal returns true if the task is completed, failed or cancelled.
func (t *TransferTask) IsTerminal() bool {
	return isTerminal(t.GetState())
}

func isTerminal(state TaskState) bool {
	return state == TaskCompleted || state == TaskFailed || state == TaskCancelled
}
