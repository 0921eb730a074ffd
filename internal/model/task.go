package model

import "time"

type TaskKind string

const (
	TaskKindDocument      TaskKind = "document"
	TaskKindProfile       TaskKind = "profile-snapshot"
	TaskKindConfiguration TaskKind = "configuration-snapshot"
)

type TaskPriority string

const (
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityNormal TaskPriority = "normal"
)

type TaskState string

const (
	TaskStateQueued     TaskState = "queued"
	TaskStateInProgress TaskState = "in_progress"
	TaskStateCompleted  TaskState = "completed"
	TaskStateFailed     TaskState = "failed"
)

// Task is a queued replication work item. Tasks live in memory only and
// are discarded once every applicable destination attempt has completed.
type Task struct {
	ID         string       `json:"id"`
	Kind       TaskKind     `json:"kind"`
	PayloadRef string       `json:"payload_ref"`
	Priority   TaskPriority `json:"priority"`
	State      TaskState    `json:"state"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}
