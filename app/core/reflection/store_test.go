package reflection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"timecoach/app/core/db"
	"timecoach/app/pkg/civil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.NewSQLiteDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return NewStore(database)
}

func mustDay(t *testing.T, s string) civil.Day {
	t.Helper()
	day, err := civil.ParseDay(s)
	require.NoError(t, err)
	return day
}

func TestUpsertReplacesPerDay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	day := mustDay(t, "2026-03-15")

	_, err := store.Upsert(ctx, Reflection{OwnerID: "u1", Day: day, CompletionScore: 60, WentWell: "morning reading"})
	require.NoError(t, err)

	updated, err := store.Upsert(ctx, Reflection{OwnerID: "u1", Day: day, CompletionScore: 85, ToImprove: "fewer breaks"})
	require.NoError(t, err)
	require.Equal(t, 85, updated.CompletionScore)

	items, err := store.ListRange(ctx, "u1", day, day.AddDays(1))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 85, items[0].CompletionScore)
	require.Equal(t, "fewer breaks", items[0].ToImprove)
	require.Empty(t, items[0].WentWell)
}

func TestUpsertClampsScore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	day := mustDay(t, "2026-03-15")

	saved, err := store.Upsert(ctx, Reflection{OwnerID: "u1", Day: day, CompletionScore: 150})
	require.NoError(t, err)
	require.Equal(t, 100, saved.CompletionScore)

	saved, err = store.Upsert(ctx, Reflection{OwnerID: "u1", Day: day, CompletionScore: -5})
	require.NoError(t, err)
	require.Zero(t, saved.CompletionScore)
}

func TestUpsertValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, Reflection{Day: mustDay(t, "2026-03-15")})
	require.Error(t, err)
	_, err = store.Upsert(ctx, Reflection{OwnerID: "u1"})
	require.Error(t, err)
}

func TestListRangeNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, day := range []string{"2026-03-13", "2026-03-15", "2026-03-14"} {
		_, err := store.Upsert(ctx, Reflection{OwnerID: "u1", Day: mustDay(t, day), CompletionScore: 50})
		require.NoError(t, err)
	}
	_, err := store.Upsert(ctx, Reflection{OwnerID: "u2", Day: mustDay(t, "2026-03-14"), CompletionScore: 50})
	require.NoError(t, err)

	items, err := store.ListRange(ctx, "u1", mustDay(t, "2026-03-14"), mustDay(t, "2026-03-16"))
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "2026-03-15", items[0].Day.String())
	require.Equal(t, "2026-03-14", items[1].Day.String())
}
