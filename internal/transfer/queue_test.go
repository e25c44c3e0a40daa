package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudsdk/cloudxfer/internal/events"
)

// Task tests

func TestNewTransferTask(t *testing.T) {
	task := NewTransferTask(TaskTypeUpload, "test.dat", "Cache", 0, 1024)

	if task.ID == "" {
		t.Error("Task ID should not be empty")
	}
	if task.Type != TaskTypeUpload {
		t.Errorf("Expected TaskTypeUpload, got %v", task.Type)
	}
	if task.Name != "test.dat" || task.Folder != "Cache" {
		t.Errorf("unexpected name/folder %s/%s", task.Name, task.Folder)
	}
	if task.State != TaskQueued {
		t.Errorf("Expected TaskQueued, got %v", task.State)
	}

	other := NewTransferTask(TaskTypeUpload, "test.dat", "Cache", 0, 1024)
	if other.ID == task.ID {
		t.Error("Task IDs should be unique")
	}
}

func TestTransferTaskState(t *testing.T) {
	task := NewTransferTask(TaskTypeDownload, "result.zip", "Cache", 0, 0)

	task.SetState(TaskActive)
	if task.GetState() != TaskActive {
		t.Errorf("Expected TaskActive, got %v", task.GetState())
	}
	if task.StartedAt.IsZero() {
		t.Error("StartedAt should be set when state changes to Active")
	}

	task.SetState(TaskCompleted)
	if task.CompletedAt.IsZero() {
		t.Error("CompletedAt should be set when state changes to Completed")
	}
	if !task.IsTerminal() {
		t.Error("completed task should be terminal")
	}
}

func TestTransferTaskProgressIgnoresRegression(t *testing.T) {
	task := NewTransferTask(TaskTypeUpload, "data.csv", "Cache", 0, 1000)

	task.UpdateProgressWithBytes(500, 1000)
	task.UpdateProgressWithBytes(200, 1000)

	if task.GetBytesSent() != 500 {
		t.Errorf("BytesSent = %d, want 500", task.GetBytesSent())
	}
	if task.GetProgress() != 0.5 {
		t.Errorf("Progress = %f, want 0.5", task.GetProgress())
	}
}

func TestTransferTaskSpeed(t *testing.T) {
	task := NewTransferTask(TaskTypeUpload, "speed.dat", "Cache", 0, 100000)
	start := time.Now()

	task.mu.Lock()
	task.updateLocked(10000, 100000, start)
	task.updateLocked(30000, 100000, start.Add(time.Second))
	task.mu.Unlock()

	if got := task.GetSpeed(); got != 20000 {
		t.Errorf("Speed = %f, want 20000", got)
	}
}

func TestTransferTaskCancel(t *testing.T) {
	task := NewTransferTask(TaskTypeUpload, "test.dat", "Cache", 0, 100)
	task.SetState(TaskActive)
	task.Cancel()

	if task.GetState() != TaskCancelled {
		t.Errorf("Expected TaskCancelled, got %v", task.GetState())
	}
	select {
	case <-task.Context().Done():
	default:
		t.Error("task context should be cancelled")
	}
}

func TestTransferTaskError(t *testing.T) {
	task := NewTransferTask(TaskTypeUpload, "test.dat", "Cache", 0, 100)
	task.SetError(errors.New("boom"))

	if task.GetState() != TaskFailed {
		t.Errorf("Expected TaskFailed, got %v", task.GetState())
	}
	if task.GetError() == nil || task.GetError().Error() != "boom" {
		t.Errorf("unexpected error %v", task.GetError())
	}
}

// Queue tests

func TestQueueLifecycle(t *testing.T) {
	queue := NewQueue(nil)
	task := queue.TrackTransfer(TaskTypeUpload, "a.txt", "Cache", 0, 100)

	queue.StartTransfer(task.ID) // ignored: not initializing yet
	if got, _ := queue.GetTask(task.ID); got.State != TaskQueued {
		t.Errorf("Expected TaskQueued, got %v", got.State)
	}

	queue.Activate(task.ID)
	if got, _ := queue.GetTask(task.ID); got.State != TaskInitializing {
		t.Errorf("Expected TaskInitializing, got %v", got.State)
	}

	queue.StartTransfer(task.ID)
	queue.UpdateProgress(task.ID, 50, 100)
	got, _ := queue.GetTask(task.ID)
	if got.State != TaskActive {
		t.Errorf("Expected TaskActive, got %v", got.State)
	}
	if got.Progress != 0.5 {
		t.Errorf("Expected progress 0.5, got %f", got.Progress)
	}

	queue.Complete(task.ID)
	got, _ = queue.GetTask(task.ID)
	if got.State != TaskCompleted || got.Progress != 1.0 {
		t.Errorf("Expected completed at 1.0, got %v at %f", got.State, got.Progress)
	}
}

func TestQueueTerminalIsFirstWins(t *testing.T) {
	queue := NewQueue(nil)
	task := queue.TrackTransfer(TaskTypeUpload, "a.txt", "Cache", 0, 100)
	queue.Activate(task.ID)

	cancelled := false
	queue.SetCancel(task.ID, func() { cancelled = true })
	if err := queue.Cancel(task.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if !cancelled {
		t.Error("stored cancel function was not called")
	}

	queue.Fail(task.ID, errors.New("late failure"))
	got, _ := queue.GetTask(task.ID)
	if got.State != TaskCancelled {
		t.Errorf("Expected TaskCancelled to stick, got %v", got.State)
	}
	if !errors.Is(got.Error, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", got.Error)
	}

	if err := queue.Cancel(task.ID); !errors.Is(err, ErrTaskNotActive) {
		t.Errorf("second Cancel() = %v, want ErrTaskNotActive", err)
	}
	if err := queue.Cancel("missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Cancel(missing) = %v, want ErrTaskNotFound", err)
	}
}

func TestQueueCancelAll(t *testing.T) {
	queue := NewQueue(nil)
	t1 := queue.TrackTransfer(TaskTypeUpload, "1", "Cache", 0, 1)
	t2 := queue.TrackTransfer(TaskTypeDownload, "2", "Cache", 0, 0)
	t3 := queue.TrackTransfer(TaskTypeUpload, "3", "Cache", 0, 1)
	queue.Activate(t1.ID)
	queue.Activate(t2.ID)
	queue.Activate(t3.ID)
	queue.Complete(t3.ID)

	queue.CancelAll()

	stats := queue.GetStats()
	if stats.Cancelled != 2 {
		t.Errorf("Expected 2 cancelled, got %d", stats.Cancelled)
	}
	if stats.Completed != 1 {
		t.Errorf("Expected 1 completed, got %d", stats.Completed)
	}
}

func TestQueueClearCompleted(t *testing.T) {
	queue := NewQueue(nil)
	done := queue.TrackTransfer(TaskTypeUpload, "done", "Cache", 0, 1)
	queue.Activate(done.ID)
	queue.Complete(done.ID)
	running := queue.TrackTransfer(TaskTypeUpload, "running", "Cache", 0, 1)
	queue.Activate(running.ID)

	queue.ClearCompleted()

	tasks := queue.GetTasks()
	if len(tasks) != 1 || tasks[0].ID != running.ID {
		t.Errorf("expected only the running task, got %d tasks", len(tasks))
	}
	if _, ok := queue.GetTask(done.ID); ok {
		t.Error("completed task should be removed")
	}
}

func TestQueueEvents(t *testing.T) {
	bus := events.NewBus(100)
	defer bus.Close()

	queue := NewQueue(bus)
	all := bus.Subscribe(events.Filter{})

	task := queue.TrackTransfer(TaskTypeUpload, "event.dat", "Cache", 0, 100)
	queue.Activate(task.ID)
	queue.StartTransfer(task.ID)
	queue.UpdateProgress(task.ID, 50, 100)
	queue.Complete(task.ID)
	queue.UpdateProgress(task.ID, 100, 100) // after terminal: no event

	want := []events.Kind{
		events.Queued,
		events.Resolving,
		events.Started,
		events.Progress,
		events.Completed,
	}
	for i, wantKind := range want {
		select {
		case te := <-all.C:
			if te.Kind != wantKind {
				t.Errorf("event %d: kind = %s, want %s", i, te.Kind, wantKind)
			}
			if te.Name != "event.dat" || te.Operation != "upload" {
				t.Errorf("event %d: unexpected name/operation %s/%s", i, te.Name, te.Operation)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for %s", wantKind)
		}
	}

	select {
	case ev := <-all.C:
		t.Errorf("unexpected event after terminal: %s", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}
