package schedule

import (
	"sort"

	"timecoach/app/core/plan"
	"timecoach/app/pkg/apperr"
	"timecoach/app/pkg/civil"
)

// NoteUserSpecified marks blocks derived from a task the user pinned to a
// time, distinguishing them from oracle-placed blocks downstream.
const NoteUserSpecified = "user-specified time"

// Block is a concrete [Start, End) interval within one day, optionally tied
// to a task. Invariant: Start < End; a block never crosses midnight.
type Block struct {
	TaskID string          `json:"task_id,omitempty"`
	Title  string          `json:"title"`
	Start  civil.TimeOfDay `json:"start"`
	End    civil.TimeOfDay `json:"end"`
	Note   string          `json:"note,omitempty"`
}

// Overlaps implements the open-interval overlap rule:
// A and B overlap iff A.Start < B.End and B.Start < A.End.
func (b Block) Overlaps(other Block) bool {
	return b.Start.Before(other.End) && other.Start.Before(b.End)
}

// DailySchedule is the one canonical schedule for (OwnerID, Day). Blocks are
// sorted ascending by Start and pairwise non-overlapping.
type DailySchedule struct {
	OwnerID string    `json:"owner_id"`
	Day     civil.Day `json:"day"`
	Blocks  []Block   `json:"blocks"`
	Summary string    `json:"summary"`
}

// FixedBlock derives the concrete block for a fixed-time task. A task whose
// span would cross midnight is rejected: a block cannot leave its day.
func FixedBlock(t plan.Task) (Block, error) {
	if !t.Fixed() {
		return Block{}, apperr.E(apperr.KindValidation, "task %s has no fixed time", t.ID)
	}
	minutes := t.EstimatedMinutes
	if minutes <= 0 {
		minutes = plan.DefaultEstimatedMinutes
	}
	end, err := t.Anchor.Time.AddMinutes(minutes)
	if err != nil {
		return Block{}, apperr.E(apperr.KindValidation,
			"task %q at %s with %d minutes crosses midnight", t.Title, t.Anchor.Time, minutes)
	}
	return Block{
		TaskID: t.ID,
		Title:  t.Title,
		Start:  t.Anchor.Time,
		End:    end,
		Note:   NoteUserSpecified,
	}, nil
}

// sortBlocks orders blocks ascending by start time. Zero-padded HH:mm
// compares the same as minute values, so either ordering key is equivalent.
func sortBlocks(blocks []Block) {
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].Start.Before(blocks[j].Start)
	})
}

// firstOverlap scans sorted blocks and returns the first overlapping pair.
func firstOverlap(sorted []Block) (Block, Block, bool) {
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Overlaps(sorted[i]) {
			return sorted[i-1], sorted[i], true
		}
	}
	return Block{}, Block{}, false
}
