package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"timecoach/app/core/db"
	"timecoach/app/core/schedule"
	"timecoach/app/pkg/civil"
)

type fixture struct {
	sessions  *Store
	schedules *schedule.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.NewSQLiteDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return &fixture{
		sessions:  NewStore(database),
		schedules: schedule.NewStore(database),
	}
}

func mustDay(t *testing.T, s string) civil.Day {
	t.Helper()
	day, err := civil.ParseDay(s)
	require.NoError(t, err)
	return day
}

func mustTime(t *testing.T, s string) civil.TimeOfDay {
	t.Helper()
	tod, err := civil.ParseTimeOfDay(s)
	require.NoError(t, err)
	return tod
}

func TestCreateComputesDuration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 15, 9, 0, 0, 0, time.Local)

	created, err := f.sessions.Create(ctx, Session{
		OwnerID:   "u1",
		TaskID:    "t1",
		StartTime: start,
		EndTime:   start.Add(50 * time.Minute),
		Note:      "good run",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, 50, created.DurationMinutes)
	require.NotNil(t, created.InterruptReasons)

	listed, err := f.sessions.ListRange(ctx, "u1", start.Add(-time.Hour), start.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, created.ID, listed[0].ID)
	require.Equal(t, "t1", listed[0].TaskID)
	require.Equal(t, "good run", listed[0].Note)
	require.Equal(t, []string{}, listed[0].InterruptReasons)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	_, err := f.sessions.Create(ctx, Session{StartTime: now, EndTime: now.Add(time.Hour)})
	require.Error(t, err)
	_, err = f.sessions.Create(ctx, Session{OwnerID: "u1", EndTime: now})
	require.Error(t, err)
	_, err = f.sessions.Create(ctx, Session{OwnerID: "u1", StartTime: now, EndTime: now})
	require.Error(t, err)
	_, err = f.sessions.Create(ctx, Session{OwnerID: "u1", StartTime: now, EndTime: now.Add(-time.Hour)})
	require.Error(t, err)
}

func TestListRangeWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 15, 0, 0, 0, 0, time.Local)

	for _, hour := range []int{8, 12, 23} {
		_, err := f.sessions.Create(ctx, Session{
			OwnerID:   "u1",
			StartTime: base.Add(time.Duration(hour) * time.Hour),
			EndTime:   base.Add(time.Duration(hour)*time.Hour + 30*time.Minute),
		})
		require.NoError(t, err)
	}
	_, err := f.sessions.Create(ctx, Session{
		OwnerID:   "u1",
		StartTime: base.AddDate(0, 0, 1),
		EndTime:   base.AddDate(0, 0, 1).Add(time.Hour),
	})
	require.NoError(t, err)

	listed, err := f.sessions.ListRange(ctx, "u1", base, base.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, listed, 3)
	require.True(t, listed[0].StartTime.Before(listed[1].StartTime))
	require.True(t, listed[1].StartTime.Before(listed[2].StartTime))
}

func TestRecentHistoryShape(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := mustDay(t, "2026-03-15")
	start := day.At(mustTime(t, "20:30"), time.Local)

	_, err := f.sessions.Create(ctx, Session{
		OwnerID:          "u1",
		StartTime:        start,
		EndTime:          start.Add(45 * time.Minute),
		Interrupted:      true,
		InterruptReasons: []string{"phone"},
	})
	require.NoError(t, err)

	entries, err := f.sessions.RecentHistory(ctx, "u1", day.AddDays(-7), day.AddDays(1))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "2026-03-15", entries[0].Date)
	require.Equal(t, "20:30", entries[0].Start)
	require.Equal(t, 45, entries[0].MinutesFocused)
	require.True(t, entries[0].Interrupted)
	require.Equal(t, []string{"phone"}, entries[0].Reasons)
}
