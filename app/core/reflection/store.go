// Package reflection persists one end-of-day reflection per (owner, day).
package reflection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"timecoach/app/core/db"
	"timecoach/app/pkg/civil"
)

type Reflection struct {
	OwnerID            string    `json:"owner_id"`
	Day                civil.Day `json:"day"`
	CompletionScore    int       `json:"completion_score"`
	MostProcrastinated string    `json:"most_procrastinated"`
	WentWell           string    `json:"went_well"`
	ToImprove          string    `json:"to_improve"`
	UpdatedAt          int64     `json:"updated_at"`
}

type Store struct {
	db *db.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Upsert writes the reflection for (owner, day), replacing any prior one.
func (s *Store) Upsert(ctx context.Context, r Reflection) (Reflection, error) {
	r.OwnerID = strings.TrimSpace(r.OwnerID)
	if r.OwnerID == "" {
		return Reflection{}, fmt.Errorf("owner_id is required")
	}
	if r.Day.IsZero() {
		return Reflection{}, fmt.Errorf("day is required")
	}
	if r.CompletionScore < 0 {
		r.CompletionScore = 0
	}
	if r.CompletionScore > 100 {
		r.CompletionScore = 100
	}
	r.UpdatedAt = time.Now().Unix()

	query := `
INSERT INTO reflections (owner_id, day, completion_score, most_procrastinated, went_well, to_improve, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(owner_id, day) DO UPDATE SET
	completion_score = excluded.completion_score,
	most_procrastinated = excluded.most_procrastinated,
	went_well = excluded.went_well,
	to_improve = excluded.to_improve,
	updated_at = excluded.updated_at`
	if _, err := s.db.Conn().ExecContext(ctx, query,
		r.OwnerID,
		r.Day.String(),
		r.CompletionScore,
		r.MostProcrastinated,
		r.WentWell,
		r.ToImprove,
		r.UpdatedAt,
	); err != nil {
		return Reflection{}, err
	}
	return r, nil
}

// ListRange returns reflections with day in [from, to), newest first.
func (s *Store) ListRange(ctx context.Context, ownerID string, from civil.Day, to civil.Day) ([]Reflection, error) {
	query := `SELECT owner_id, day, completion_score, most_procrastinated, went_well, to_improve, updated_at
FROM reflections
WHERE owner_id = ? AND day >= ? AND day < ?
ORDER BY day DESC`
	rows, err := s.db.Conn().QueryContext(ctx, query, ownerID, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Reflection, 0)
	for rows.Next() {
		var (
			r       Reflection
			dayText string
		)
		if err := rows.Scan(&r.OwnerID, &dayText, &r.CompletionScore, &r.MostProcrastinated, &r.WentWell, &r.ToImprove, &r.UpdatedAt); err != nil {
			return nil, err
		}
		day, err := civil.ParseDay(dayText)
		if err != nil {
			return nil, fmt.Errorf("corrupt reflection day: %w", err)
		}
		r.Day = day
		items = append(items, r)
	}
	return items, rows.Err()
}
