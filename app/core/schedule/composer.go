package schedule

import (
	"context"
	"sort"
	"strings"

	"timecoach/app/core/placement"
	"timecoach/app/core/plan"
	"timecoach/app/pkg/apperr"
	"timecoach/app/pkg/civil"
	"timecoach/app/pkg/logger"
)

const fixedOnlySummary = "Every task already has a user-specified time; blocks are ordered as given."

// HistorySource supplies the recent focus history the oracle uses to bias
// placement. Implemented by the session store.
type HistorySource interface {
	RecentHistory(ctx context.Context, ownerID string, from civil.Day, to civil.Day) ([]placement.HistoryEntry, error)
}

// Composer owns schedule construction for a day: classification, fixed-block
// derivation, the oracle round trip, validation, ordering, and persistence.
// Non-overlap is enforced here, never delegated to the oracle.
type Composer struct {
	tasks       *plan.Store
	schedules   *Store
	history     HistorySource
	oracle      placement.Oracle
	historyDays int
}

func NewComposer(tasks *plan.Store, schedules *Store, history HistorySource, oracle placement.Oracle, historyDays int) *Composer {
	if historyDays <= 0 {
		historyDays = 7
	}
	return &Composer{
		tasks:       tasks,
		schedules:   schedules,
		history:     history,
		oracle:      oracle,
		historyDays: historyDays,
	}
}

// Compose builds, validates, and persists the schedule for (owner, day),
// replacing any prior schedule for that day. Nothing is persisted on any
// failure, including oracle timeouts carried in via ctx.
func (c *Composer) Compose(ctx context.Context, ownerID string, day civil.Day) (DailySchedule, error) {
	tasks, err := c.tasks.ListForDay(ctx, ownerID, day)
	if err != nil {
		return DailySchedule{}, apperr.Wrap(apperr.KindStore, err, "load tasks for %s", day)
	}
	if len(tasks) == 0 {
		return DailySchedule{}, apperr.E(apperr.KindValidation, "no tasks to schedule on %s", day)
	}

	fixedTasks, flexibleTasks := plan.Classify(tasks)

	fixedBlocks := make([]Block, 0, len(fixedTasks))
	for _, t := range fixedTasks {
		block, err := FixedBlock(t)
		if err != nil {
			return DailySchedule{}, err
		}
		fixedBlocks = append(fixedBlocks, block)
	}

	if len(flexibleTasks) == 0 {
		sortBlocks(fixedBlocks)
		if a, b, found := firstOverlap(fixedBlocks); found {
			return DailySchedule{}, apperr.E(apperr.KindValidation,
				"fixed blocks %s-%s and %s-%s overlap", a.Start, a.End, b.Start, b.End)
		}
		sched := DailySchedule{OwnerID: ownerID, Day: day, Blocks: fixedBlocks, Summary: fixedOnlySummary}
		return c.persist(ctx, sched)
	}

	proposal, submitted, err := c.requestPlacement(ctx, ownerID, day, fixedBlocks, flexibleTasks)
	if err != nil {
		return DailySchedule{}, err
	}

	proposedBlocks, err := c.validateProposal(proposal, submitted)
	if err != nil {
		return DailySchedule{}, err
	}

	all := append(append([]Block{}, fixedBlocks...), proposedBlocks...)
	sortBlocks(all)
	if a, b, found := firstOverlap(all); found {
		return DailySchedule{}, apperr.E(apperr.KindUpstreamConflict,
			"proposed placement overlaps: %s-%s (%s) and %s-%s (%s)",
			a.Start, a.End, a.Title, b.Start, b.End, b.Title)
	}

	sched := DailySchedule{OwnerID: ownerID, Day: day, Blocks: all, Summary: proposal.Summary}
	return c.persist(ctx, sched)
}

func (c *Composer) requestPlacement(ctx context.Context, ownerID string, day civil.Day, fixedBlocks []Block, flexibleTasks []plan.Task) (placement.Proposal, map[string]plan.Task, error) {
	// Stable priority ordering: must, then should, then nice, preserving
	// the original order within each priority.
	ordered := append([]plan.Task{}, flexibleTasks...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority.Rank() < ordered[j].Priority.Rank()
	})

	submitted := make(map[string]plan.Task, len(ordered))
	reqTasks := make([]placement.FlexibleTask, 0, len(ordered))
	for _, t := range ordered {
		submitted[t.ID] = t
		reqTasks = append(reqTasks, placement.FlexibleTask{
			ID:               t.ID,
			Title:            t.Title,
			Subject:          t.Subject,
			EstimatedMinutes: t.EstimatedMinutes,
			Priority:         string(t.Priority),
		})
	}

	occupied := make([]placement.OccupiedBlock, 0, len(fixedBlocks))
	for _, b := range fixedBlocks {
		occupied = append(occupied, placement.OccupiedBlock{Title: b.Title, Start: b.Start.String(), End: b.End.String()})
	}

	history, err := c.history.RecentHistory(ctx, ownerID, day.AddDays(-c.historyDays), day.AddDays(1))
	if err != nil {
		return placement.Proposal{}, nil, apperr.Wrap(apperr.KindStore, err, "load focus history")
	}

	logger.Info("requesting placement for %s: %d occupied, %d flexible, %d history entries",
		day, len(occupied), len(reqTasks), len(history))

	proposal, err := c.oracle.ProposePlacement(ctx, placement.Request{
		Day:      day.String(),
		Occupied: occupied,
		Tasks:    reqTasks,
		History:  history,
	})
	if err != nil {
		if apperr.KindOf(err) != "" {
			return placement.Proposal{}, nil, err
		}
		return placement.Proposal{}, nil, apperr.Wrap(apperr.KindUpstreamFormat, err, "placement oracle failed")
	}
	return proposal, submitted, nil
}

// validateProposal turns raw proposed blocks into validated Blocks. An id
// that was never submitted, or an unparsable or inverted interval, is an
// upstream format error; overlap checking happens after merging.
func (c *Composer) validateProposal(proposal placement.Proposal, submitted map[string]plan.Task) ([]Block, error) {
	blocks := make([]Block, 0, len(proposal.Blocks))
	for i, raw := range proposal.Blocks {
		task, known := submitted[raw.TaskID]
		if !known {
			return nil, apperr.E(apperr.KindUpstreamFormat, "proposed block %d references unknown task id %q", i, raw.TaskID)
		}
		start, err := civil.ParseTimeOfDay(raw.Start)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUpstreamFormat, err, "proposed block %d start", i)
		}
		end, err := civil.ParseTimeOfDay(raw.End)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUpstreamFormat, err, "proposed block %d end", i)
		}
		if !start.Before(end) {
			return nil, apperr.E(apperr.KindUpstreamFormat, "proposed block %d has start %s not before end %s", i, start, end)
		}
		title := strings.TrimSpace(raw.Title)
		if title == "" {
			title = task.Title
		}
		blocks = append(blocks, Block{
			TaskID: raw.TaskID,
			Title:  title,
			Start:  start,
			End:    end,
			Note:   strings.TrimSpace(raw.Note),
		})
	}
	return blocks, nil
}

func (c *Composer) persist(ctx context.Context, sched DailySchedule) (DailySchedule, error) {
	if _, replaced, err := c.schedules.Replace(ctx, sched); err != nil {
		return DailySchedule{}, apperr.Wrap(apperr.KindStore, err, "persist schedule for %s", sched.Day)
	} else if replaced {
		logger.Info("replaced existing schedule for %s/%s", sched.OwnerID, sched.Day)
	}
	return sched, nil
}
