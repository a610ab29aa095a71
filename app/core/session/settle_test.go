package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"timecoach/app/core/schedule"
	"timecoach/app/pkg/apperr"
)

func storeSchedule(t *testing.T, f *fixture, ownerID string, day string, blocks []schedule.Block) {
	t.Helper()
	_, _, err := f.schedules.Replace(context.Background(), schedule.DailySchedule{
		OwnerID: ownerID,
		Day:     mustDay(t, day),
		Blocks:  blocks,
		Summary: "test day",
	})
	require.NoError(t, err)
}

func TestSettleSynthesizesUnloggedBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := mustDay(t, "2026-03-15")

	storeSchedule(t, f, "u1", "2026-03-15", []schedule.Block{
		{TaskID: "t1", Title: "Read chapter 4", Start: mustTime(t, "09:00"), End: mustTime(t, "10:00")},
		{TaskID: "t2", Title: "Problem set", Start: mustTime(t, "14:00"), End: mustTime(t, "15:30")},
	})

	settler := NewSettler(f.schedules, f.sessions)
	result, err := settler.Settle(ctx, "u1", day)
	require.NoError(t, err)
	require.Equal(t, 2, result.Created)
	require.Equal(t, 2, result.TotalBlocks)
	require.Zero(t, result.AlreadyRecorded)
	require.Len(t, result.Sessions, 2)

	first := result.Sessions[0]
	require.Equal(t, "t1", first.TaskID)
	require.Equal(t, "Read chapter 4 (auto-settled)", first.Note)
	require.Equal(t, 60, first.DurationMinutes)
	require.False(t, first.Interrupted)
	require.Equal(t, day.At(mustTime(t, "09:00"), time.Local), first.StartTime)
}

func TestSettleSkipsLoggedBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := mustDay(t, "2026-03-15")

	storeSchedule(t, f, "u1", "2026-03-15", []schedule.Block{
		{TaskID: "t1", Title: "Reading", Start: mustTime(t, "09:00"), End: mustTime(t, "10:00")},
		{TaskID: "t2", Title: "Problems", Start: mustTime(t, "14:00"), End: mustTime(t, "15:00")},
	})

	// The user already logged the morning block themselves.
	_, err := f.sessions.Create(ctx, Session{
		OwnerID:   "u1",
		TaskID:    "t1",
		StartTime: day.At(mustTime(t, "09:00"), time.Local),
		EndTime:   day.At(mustTime(t, "10:00"), time.Local),
		Note:      "logged by hand",
	})
	require.NoError(t, err)

	settler := NewSettler(f.schedules, f.sessions)
	result, err := settler.Settle(ctx, "u1", day)
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)
	require.Equal(t, 1, result.AlreadyRecorded)
	require.Equal(t, "t2", result.Sessions[0].TaskID)
}

func TestSettleIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := mustDay(t, "2026-03-15")

	storeSchedule(t, f, "u1", "2026-03-15", []schedule.Block{
		{TaskID: "t1", Title: "Reading", Start: mustTime(t, "09:00"), End: mustTime(t, "10:00")},
		{TaskID: "t2", Title: "Problems", Start: mustTime(t, "14:00"), End: mustTime(t, "15:00")},
	})

	settler := NewSettler(f.schedules, f.sessions)
	first, err := settler.Settle(ctx, "u1", day)
	require.NoError(t, err)
	require.Equal(t, 2, first.Created)

	second, err := settler.Settle(ctx, "u1", day)
	require.NoError(t, err)
	require.Zero(t, second.Created)
	require.Equal(t, 2, second.AlreadyRecorded)

	dayStart := day.Start(time.Local)
	all, err := f.sessions.ListRange(ctx, "u1", dayStart, dayStart.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestSettleWithoutScheduleIsValidationError(t *testing.T) {
	f := newFixture(t)
	settler := NewSettler(f.schedules, f.sessions)

	_, err := settler.Settle(context.Background(), "u1", mustDay(t, "2026-03-15"))
	require.Error(t, err)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
