// Package model defines the persisted entities of the task graph: projects,
// authors, tasks, dependency edges, sub-projects, comments, and audit events.
package model

import "time"

type Project struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Author struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Task struct {
	ID             int64      `json:"id"`
	ProjectID      int64      `json:"project_id"`
	SubprojectID   *int64     `json:"subproject_id"`
	ParentID       *int64     `json:"parent_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Tag            Tag        `json:"tag"`
	Priority       Priority   `json:"priority"`
	Status         Status     `json:"status"`
	AuthorID       *int64     `json:"author_id"`
	OwnerID        *int64     `json:"owner_id"`
	DueDate        *time.Time `json:"due_date"`
	EstimatedHours *float64   `json:"estimated_hours"`
	ActualHours    *float64   `json:"actual_hours"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TaskView is a Task plus the read-time derivations layered on stored state.
// DisplayStatus is "blocked" when the stored status is open and at least one
// blocking edge points at the task from an open task; otherwise it equals
// the stored status.
type TaskView struct {
	Task
	DisplayStatus Status `json:"display_status"`
	Actionable    bool   `json:"actionable"`
}

// Edge is a directed blocking relationship: the blocking task must close
// before the blocked task is considered actionable.
type Edge struct {
	BlockingID int64     `json:"blocking_id"`
	BlockedID  int64     `json:"blocked_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type Subproject struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Number    int       `json:"number"`
	Name      string    `json:"name"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

// SubprojectView carries the derived activity flag, which is never persisted.
type SubprojectView struct {
	Subproject
	IsActive bool `json:"is_active"`
}

type Comment struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	AuthorID  *int64    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Progress is the shallow completion rollup over a task's direct sub-tasks.
type Progress struct {
	Total      int     `json:"total"`
	Completed  int     `json:"completed"`
	Percentage float64 `json:"completion_percentage"`
}
