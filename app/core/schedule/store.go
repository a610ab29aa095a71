package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"timecoach/app/core/db"
	"timecoach/app/pkg/civil"
)

type Store struct {
	db *db.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Replace upserts the schedule for (owner, day), fully replacing any prior
// version. The previous schedule is returned when one existed, which keeps
// an audit hook open without changing the write path.
func (s *Store) Replace(ctx context.Context, sched DailySchedule) (DailySchedule, bool, error) {
	previous, existed, err := s.Fetch(ctx, sched.OwnerID, sched.Day)
	if err != nil {
		return DailySchedule{}, false, err
	}

	blocksJSON, err := json.Marshal(sched.Blocks)
	if err != nil {
		return DailySchedule{}, false, fmt.Errorf("marshal schedule blocks: %w", err)
	}
	now := time.Now().Unix()
	query := `
INSERT INTO daily_schedules (owner_id, day, blocks_json, summary, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(owner_id, day) DO UPDATE SET
	blocks_json = excluded.blocks_json,
	summary = excluded.summary,
	updated_at = excluded.updated_at`
	if _, err := s.db.Conn().ExecContext(ctx, query,
		sched.OwnerID,
		sched.Day.String(),
		string(blocksJSON),
		sched.Summary,
		now,
		now,
	); err != nil {
		return DailySchedule{}, false, err
	}
	return previous, existed, nil
}

// ListOwnersForDay returns every owner with a persisted schedule on day.
// The nightly settlement pass iterates this.
func (s *Store) ListOwnersForDay(ctx context.Context, day civil.Day) ([]string, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT owner_id FROM daily_schedules WHERE day = ? ORDER BY owner_id`, day.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	owners := make([]string, 0)
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

// Fetch loads the schedule for (owner, day). The second return value is
// false when no schedule exists yet.
func (s *Store) Fetch(ctx context.Context, ownerID string, day civil.Day) (DailySchedule, bool, error) {
	var (
		blocksJSON string
		summary    string
	)
	query := `SELECT blocks_json, summary FROM daily_schedules WHERE owner_id = ? AND day = ?`
	err := s.db.Conn().QueryRowContext(ctx, query, ownerID, day.String()).Scan(&blocksJSON, &summary)
	if err == sql.ErrNoRows {
		return DailySchedule{}, false, nil
	}
	if err != nil {
		return DailySchedule{}, false, err
	}

	sched := DailySchedule{OwnerID: ownerID, Day: day, Summary: summary}
	if err := json.Unmarshal([]byte(blocksJSON), &sched.Blocks); err != nil {
		return DailySchedule{}, false, fmt.Errorf("corrupt schedule blocks for %s/%s: %w", ownerID, day, err)
	}
	return sched, true, nil
}
