package backup

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calperrin/orgvault/internal/model"
)

// Queue is the in-memory replication work queue. Strictly FIFO within a
// priority class; high-priority tasks are inserted ahead of normal ones.
// A single worker drains it, so Pop never races with itself.
type Queue struct {
	mu    sync.Mutex
	tasks []model.Task
	wake  chan struct{}
}

func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// NewTask builds a queued task with a fresh id.
func NewTask(kind model.TaskKind, payloadRef string, priority model.TaskPriority) model.Task {
	return model.Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		PayloadRef: payloadRef,
		Priority:   priority,
		State:      model.TaskStateQueued,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Push enqueues a task and signals the worker.
func (q *Queue) Push(t model.Task) {
	q.mu.Lock()
	if t.Priority == model.TaskPriorityHigh {
		// Insert after any high-priority tasks already queued.
		i := 0
		for i < len(q.tasks) && q.tasks[i].Priority == model.TaskPriorityHigh {
			i++
		}
		q.tasks = append(q.tasks, model.Task{})
		copy(q.tasks[i+1:], q.tasks[i:])
		q.tasks[i] = t
	} else {
		q.tasks = append(q.tasks, t)
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop removes and returns the front task.
func (q *Queue) Pop() (model.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return model.Task{}, false
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Wake returns the channel signalled on every Push.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}
