package model

import "time"

type Frequency string

const (
	FrequencyOnce    Frequency = "once"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyOnce, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// DateLayout is the on-disk and wire format of due dates.
const DateLayout = "2006-01-02"

type Task struct {
	ID          int64      `json:"id"`
	GroupID     int64      `json:"group_id"`
	CreatedBy   *int64     `json:"created_by"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Points      int        `json:"points"`
	DueDate     *time.Time `json:"due_date"`
	Frequency   Frequency  `json:"frequency"`
	CreatedAt   time.Time  `json:"created_at"`
}

type TaskAssignment struct {
	TaskID     int64     `json:"task_id"`
	UserID     int64     `json:"user_id"`
	FullName   string    `json:"full_name"`
	AvatarURL  string    `json:"avatar_url"`
	AssignedAt time.Time `json:"assigned_at"`
}

type Completion struct {
	ID          int64     `json:"id"`
	TaskID      int64     `json:"task_id"`
	UserID      int64     `json:"user_id"`
	Points      int       `json:"points"`
	CompletedAt time.Time `json:"completed_at"`
}

// Assignee is the public view of a user responsible for a task.
type Assignee struct {
	ID        int64  `json:"id"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
}

// TaskView is a task annotated for one viewer.
type TaskView struct {
	Task
	AssignedTo  []Assignee   `json:"assigned_to"`
	Completions []Completion `json:"completions"`
	Completed   bool         `json:"completed"`
}

// IsAssigned reports whether userID is one of the task's assignees.
func (v TaskView) IsAssigned(userID int64) bool {
	for _, a := range v.AssignedTo {
		if a.ID == userID {
			return true
		}
	}
	return false
}
