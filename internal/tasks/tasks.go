// package tasks implements the tracked render task lifecycle.
//
// The core abstraction is Scheduler, which admits render requests through the
// auth gate, quota ledger and path guard, queues them FIFO, and drives each
// task through the configured provider with a bounded worker pool. Callers
// observe tasks exclusively through immutable snapshots.
package tasks

import (
	"time"

	"github.com/desertthunder/motifd/internal/providers"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are permitted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Result references the produced audio artifact plus provider metadata.
// Populated only on succeeded tasks.
type Result struct {
	AudioPath   string  `json:"audio_path"`
	AudioURL    string  `json:"audio_url"`
	Format      string  `json:"format"`
	DurationSec float64 `json:"duration_sec"`
	Provider    string  `json:"provider"`
}

// TaskError is the stable error shape recorded on failed tasks.
type TaskError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Task is one tracked render request. Instances handed out by the scheduler
// are snapshots; mutating them has no effect on the tracked task.
type Task struct {
	ID              string           `json:"id"`
	Owner           string           `json:"owner"`
	Status          Status           `json:"status"`
	InputPath       string           `json:"input_path"`
	Params          providers.Params `json:"params"`
	Progress        int              `json:"progress"`
	Result          *Result          `json:"result"`
	Error           *TaskError       `json:"error"`
	CreatedAt       time.Time        `json:"created_at"`
	StartedAt       *time.Time       `json:"started_at"`
	CompletedAt     *time.Time       `json:"completed_at"`
	CancelRequested bool             `json:"cancel_requested"`
}

// snapshot returns a copy safe to hand to callers. Nested pointers are
// duplicated so external readers can never reach scheduler-owned state.
func (t *Task) snapshot() Task {
	copied := *t
	if t.Result != nil {
		r := *t.Result
		copied.Result = &r
	}
	if t.Error != nil {
		e := *t.Error
		copied.Error = &e
	}
	if t.StartedAt != nil {
		st := *t.StartedAt
		copied.StartedAt = &st
	}
	if t.CompletedAt != nil {
		ct := *t.CompletedAt
		copied.CompletedAt = &ct
	}
	return copied
}

// Input is the MIDI to render: either a path that must pass the path guard,
// or an inline payload persisted into the output directory on admission.
type Input struct {
	Path string
	Data []byte
	Name string
}
