package plan

import (
	"timecoach/app/pkg/civil"
)

type Priority string

const (
	PriorityMust   Priority = "must"
	PriorityShould Priority = "should"
	PriorityNice   Priority = "nice"
)

// Rank orders priorities must < should < nice for scheduling.
func (p Priority) Rank() int {
	switch p {
	case PriorityMust:
		return 0
	case PriorityShould:
		return 1
	default:
		return 2
	}
}

func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityMust, PriorityShould, PriorityNice:
		return Priority(s), true
	}
	return "", false
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusDone      Status = "done"
	StatusPostponed Status = "postponed"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusDone, StatusPostponed:
		return Status(s), true
	}
	return "", false
}

// Anchor places a task on a calendar day, optionally at a clock time.
// HasTime distinguishes "no time given" from a literal midnight anchor;
// both classify as flexible, but the representation keeps them apart.
type Anchor struct {
	Day     civil.Day       `json:"day"`
	Time    civil.TimeOfDay `json:"time"`
	HasTime bool            `json:"has_time"`
}

type Task struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	Title            string    `json:"title"`
	Subject          string    `json:"subject,omitempty"`
	EstimatedMinutes int       `json:"estimated_minutes"`
	Priority         Priority  `json:"priority"`
	Anchor           Anchor    `json:"anchor"`
	EndDay           civil.Day `json:"end_day,omitzero"`
	Status           Status    `json:"status"`
	CreatedAt        int64     `json:"created_at"`
	UpdatedAt        int64     `json:"updated_at"`
}

// MultiDay reports whether the task spans more than its anchor day.
func (t Task) MultiDay() bool {
	return !t.EndDay.IsZero()
}

// Fixed reports whether the task carries a meaningful start time for its
// day. Multi-day tasks are never fixed: their timing within any given day
// is left to placement.
func (t Task) Fixed() bool {
	return !t.MultiDay() && t.Anchor.HasTime && !t.Anchor.Time.IsMidnight()
}
