package model

// Status is the stored workflow state of a task. "blocked" is a valid
// stored value historically but is never settable by request: the blocked
// presentation is derived at read time from open blocking edges.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
	StatusNotNeeded  Status = "not_needed"
)

type Tag string

const (
	TagBug     Tag = "bug"
	TagFeature Tag = "feature"
	TagIdea    Tag = "idea"
)

type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
)

var allStatuses = map[Status]bool{
	StatusBacklog:    true,
	StatusTodo:       true,
	StatusInProgress: true,
	StatusBlocked:    true,
	StatusReview:     true,
	StatusDone:       true,
	StatusNotNeeded:  true,
}

// Closed statuses are excluded from actionable and active computations.
var closedStatuses = map[Status]bool{
	StatusDone:      true,
	StatusNotNeeded: true,
}

var allTags = map[Tag]bool{
	TagBug:     true,
	TagFeature: true,
	TagIdea:    true,
}

var allPriorities = map[Priority]bool{
	PriorityP0: true,
	PriorityP1: true,
}

// ParseStatus validates a status string. The second return is false for
// unknown values.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, allStatuses[st]
}

func ParseTag(s string) (Tag, bool) {
	t := Tag(s)
	return t, allTags[t]
}

func ParsePriority(s string) (Priority, bool) {
	p := Priority(s)
	return p, allPriorities[p]
}

// IsClosed reports whether a status excludes its task from active and
// actionable computations.
func IsClosed(s Status) bool {
	return closedStatuses[s]
}
