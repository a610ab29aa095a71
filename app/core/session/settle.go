package session

import (
	"context"
	"fmt"
	"time"

	"timecoach/app/core/schedule"
	"timecoach/app/pkg/apperr"
	"timecoach/app/pkg/civil"
	"timecoach/app/pkg/logger"
)

// Result reports one settlement pass over a day's schedule.
type Result struct {
	Created         int       `json:"created"`
	TotalBlocks     int       `json:"total_blocks"`
	AlreadyRecorded int       `json:"already_recorded"`
	Sessions        []Session `json:"sessions"`
}

// Settler synthesizes sessions for schedule blocks that were never
// explicitly logged, on the assumption that unreported time was spent
// focused as planned. It only ever appends to the session log; the schedule
// itself is never touched.
type Settler struct {
	schedules *schedule.Store
	sessions  *Store
	loc       *time.Location
}

func NewSettler(schedules *schedule.Store, sessions *Store) *Settler {
	return &Settler{schedules: schedules, sessions: sessions, loc: time.Local}
}

// Settle reconciles the persisted schedule for (owner, day) against the
// sessions already logged that day. Synthesized sessions are written one by
// one: a failure at block k leaves blocks 1..k-1 committed, and a retry is
// safe because their keys are then found in the recorded set.
func (s *Settler) Settle(ctx context.Context, ownerID string, day civil.Day) (Result, error) {
	sched, exists, err := s.schedules.Fetch(ctx, ownerID, day)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindStore, err, "load schedule for %s", day)
	}
	if !exists || len(sched.Blocks) == 0 {
		return Result{}, apperr.E(apperr.KindValidation, "no schedule to settle on %s", day)
	}

	dayStart := day.Start(s.loc)
	existing, err := s.sessions.ListRange(ctx, ownerID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindStore, err, "load sessions for %s", day)
	}

	// Keys are (start, end) time-of-day pairs truncated to the minute.
	recorded := make(map[string]struct{}, len(existing))
	for _, sess := range existing {
		start := civil.TimeOfDayFrom(sess.StartTime.In(s.loc))
		end := civil.TimeOfDayFrom(sess.EndTime.In(s.loc))
		recorded[spanKey(start, end)] = struct{}{}
	}

	result := Result{TotalBlocks: len(sched.Blocks), Sessions: []Session{}}
	for _, block := range sched.Blocks {
		if _, found := recorded[spanKey(block.Start, block.End)]; found {
			continue
		}
		created, err := s.sessions.Create(ctx, Session{
			OwnerID:          ownerID,
			TaskID:           block.TaskID,
			StartTime:        day.At(block.Start, s.loc),
			EndTime:          day.At(block.End, s.loc),
			Interrupted:      false,
			InterruptReasons: []string{},
			Note:             fmt.Sprintf("%s (auto-settled)", block.Title),
		})
		if err != nil {
			return Result{}, apperr.Wrap(apperr.KindStore, err,
				"settle block %s-%s (%d sessions already written this pass)", block.Start, block.End, result.Created)
		}
		result.Created++
		result.Sessions = append(result.Sessions, created)
	}
	result.AlreadyRecorded = result.TotalBlocks - result.Created

	logger.Info("settled %s/%s: %d created, %d already recorded", ownerID, day, result.Created, result.AlreadyRecorded)
	return result, nil
}

func spanKey(start civil.TimeOfDay, end civil.TimeOfDay) string {
	return start.String() + "~" + end.String()
}
