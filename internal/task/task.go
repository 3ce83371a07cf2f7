package task

import (
	"fmt"
	"time"
)

type Status string

const (
	Pending    Status = "pending"
	Processing Status = "processing"
	Completed  Status = "completed"
	Failed     Status = "failed"
)

func (s Status) rank() int {
	switch s {
	case Pending:
		return 0
	case Processing:
		return 1
	case Completed, Failed:
		return 2
	default:
		return -1
	}
}

// IsTerminal returns true for statuses which a task can never leave.
func (s Status) IsTerminal() bool { return s == Completed || s == Failed }

// CanTransitionTo reports whether a task in this status may move to
// the status provided. Transitions only ever move forward, and a
// terminal status can never be left (nor swapped for the other
// terminal status). Re-applying the current status is permitted.
func (s Status) CanTransitionTo(next Status) bool {
	if next.rank() < 0 {
		return false
	}
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}

	return next.rank() > s.rank()
}

// Task is the record of a single acquisition request. Values of this type
// handed out by the Registry are copies; mutating them has no effect on
// the registry.
type Task struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Platform   string    `json:"platform"`
	Status     Status    `json:"status"`
	Progress   int       `json:"progress"`
	ResultURL  string    `json:"result_url,omitempty"`
	ResultPath string    `json:"-"`
	Error      string    `json:"error,omitempty"`
	MediaType  string    `json:"media_type,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (t Task) String() string {
	return fmt.Sprintf("Task{ID=%s Platform=%s Status=%s Progress=%d}", t.ID, t.Platform, t.Status, t.Progress)
}

// Patch describes a partial update to a Task. Only non-nil fields are
// applied, all others retain their previous value.
type Patch struct {
	Status     *Status
	Progress   *int
	ResultURL  *string
	ResultPath *string
	Error      *string
}

func (p Patch) WithStatus(s Status) Patch       { p.Status = &s; return p }
func (p Patch) WithProgress(progress int) Patch { p.Progress = &progress; return p }
func (p Patch) WithResultURL(u string) Patch    { p.ResultURL = &u; return p }
func (p Patch) WithResultPath(path string) Patch {
	p.ResultPath = &path
	return p
}
func (p Patch) WithError(message string) Patch { p.Error = &message; return p }

// ClampProgress bounds the percentage provided to [0,100].
func ClampProgress(progress int) int {
	return min(100, max(0, progress))
}
