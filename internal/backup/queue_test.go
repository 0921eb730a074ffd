package backup

import (
	"testing"

	"github.com/calperrin/orgvault/internal/model"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()

	q.Push(NewTask(model.TaskKindDocument, "a", model.TaskPriorityNormal))
	q.Push(NewTask(model.TaskKindDocument, "b", model.TaskPriorityNormal))
	q.Push(NewTask(model.TaskKindDocument, "c", model.TaskPriorityNormal))

	for _, want := range []string{"a", "b", "c"} {
		task, ok := q.Pop()
		if !ok {
			t.Fatalf("expected task %q", want)
		}
		if task.PayloadRef != want {
			t.Errorf("payload = %q, want %q", task.PayloadRef, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("expected empty queue")
	}
}

func TestQueueHighPriorityFront(t *testing.T) {
	q := NewQueue()

	q.Push(NewTask(model.TaskKindDocument, "n1", model.TaskPriorityNormal))
	q.Push(NewTask(model.TaskKindDocument, "n2", model.TaskPriorityNormal))
	q.Push(NewTask(model.TaskKindConfiguration, "h1", model.TaskPriorityHigh))
	q.Push(NewTask(model.TaskKindConfiguration, "h2", model.TaskPriorityHigh))

	// High-priority tasks first, FIFO within each class.
	for _, want := range []string{"h1", "h2", "n1", "n2"} {
		task, _ := q.Pop()
		if task.PayloadRef != want {
			t.Errorf("payload = %q, want %q", task.PayloadRef, want)
		}
	}
}

func TestQueueLen(t *testing.T) {
	q := NewQueue()
	if q.Len() != 0 {
		t.Errorf("len = %d, want 0", q.Len())
	}
	q.Push(NewTask(model.TaskKindDocument, "a", model.TaskPriorityNormal))
	q.Push(NewTask(model.TaskKindDocument, "b", model.TaskPriorityHigh))
	if q.Len() != 2 {
		t.Errorf("len = %d, want 2", q.Len())
	}
	q.Pop()
	if q.Len() != 1 {
		t.Errorf("len = %d, want 1", q.Len())
	}
}

func TestQueueWakeSignal(t *testing.T) {
	q := NewQueue()

	select {
	case <-q.Wake():
		t.Fatal("wake before push")
	default:
	}

	q.Push(NewTask(model.TaskKindDocument, "a", model.TaskPriorityNormal))
	// Repeated pushes must not block on the full signal buffer.
	q.Push(NewTask(model.TaskKindDocument, "b", model.TaskPriorityNormal))

	select {
	case <-q.Wake():
	default:
		t.Fatal("expected wake signal after push")
	}
}

func TestNewTaskDefaults(t *testing.T) {
	task := NewTask(model.TaskKindProfile, "", model.TaskPriorityNormal)
	if task.ID == "" {
		t.Error("expected generated task id")
	}
	if task.State != model.TaskStateQueued {
		t.Errorf("state = %q, want %q", task.State, model.TaskStateQueued)
	}
	if task.EnqueuedAt.IsZero() {
		t.Error("expected enqueued_at set")
	}
}
