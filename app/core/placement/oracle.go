// Package placement defines the contract between the schedule composer and
// the external block-placement oracle. The oracle proposes where flexible
// tasks should land; it is never trusted to enforce scheduling invariants,
// so its output stays in raw string form until the composer validates it.
package placement

import "context"

// OccupiedBlock is a slot the oracle must route around.
type OccupiedBlock struct {
	Title string `json:"title"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// FlexibleTask is a task submitted for placement.
type FlexibleTask struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Subject          string `json:"subject"`
	EstimatedMinutes int    `json:"estimated_minutes"`
	Priority         string `json:"priority"`
}

// HistoryEntry summarizes one logged focus session from the recent window,
// used to bias placement toward historically productive slots.
type HistoryEntry struct {
	Date           string   `json:"date"`
	Start          string   `json:"start"`
	MinutesFocused int      `json:"minutes_focused"`
	Interrupted    bool     `json:"interrupted"`
	Reasons        []string `json:"reasons,omitempty"`
}

type Request struct {
	Day      string         `json:"day"`
	Occupied []OccupiedBlock `json:"occupied_blocks"`
	Tasks    []FlexibleTask `json:"flexible_tasks"`
	History  []HistoryEntry `json:"recent_history"`
}

// ProposedBlock is one oracle-suggested slot. Start and End are uninterpreted
// strings here; the composer parses and validates them.
type ProposedBlock struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Note   string `json:"note"`
}

type Proposal struct {
	Blocks  []ProposedBlock `json:"schedule"`
	Summary string          `json:"summary"`
}

// Oracle proposes placements for flexible tasks. Implementations must return
// an apperr upstream_format error for any structurally invalid response and
// must honor ctx cancellation.
type Oracle interface {
	ProposePlacement(ctx context.Context, req Request) (Proposal, error)
}
