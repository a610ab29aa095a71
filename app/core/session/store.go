// Package session persists focus sessions and reconciles them against the
// day's schedule. Sessions are append-only: once written they are never
// edited, whether logged directly or synthesized by settlement.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"timecoach/app/core/db"
	"timecoach/app/core/placement"
	"timecoach/app/pkg/civil"
)

type Session struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	TaskID           string    `json:"task_id,omitempty"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	DurationMinutes  int       `json:"duration_minutes"`
	Interrupted      bool      `json:"interrupted"`
	InterruptReasons []string  `json:"interrupt_reasons"`
	Note             string    `json:"note,omitempty"`
	CreatedAt        int64     `json:"created_at"`
}

type Store struct {
	db *db.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

func (s *Store) Create(ctx context.Context, sess Session) (Session, error) {
	sess.OwnerID = strings.TrimSpace(sess.OwnerID)
	if sess.OwnerID == "" {
		return Session{}, fmt.Errorf("owner_id is required")
	}
	if sess.StartTime.IsZero() || sess.EndTime.IsZero() {
		return Session{}, fmt.Errorf("start_time and end_time are required")
	}
	if !sess.EndTime.After(sess.StartTime) {
		return Session{}, fmt.Errorf("end_time must be after start_time")
	}
	sess.DurationMinutes = int(math.Round(sess.EndTime.Sub(sess.StartTime).Minutes()))
	if sess.InterruptReasons == nil {
		sess.InterruptReasons = []string{}
	}
	reasonsJSON, err := json.Marshal(sess.InterruptReasons)
	if err != nil {
		return Session{}, fmt.Errorf("marshal interrupt reasons: %w", err)
	}

	sess.ID = uuid.NewString()
	sess.CreatedAt = time.Now().Unix()

	query := `INSERT INTO sessions (id, owner_id, task_id, start_time, end_time, duration_minutes, interrupted, interrupt_reasons_json, note, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.Conn().ExecContext(ctx, query,
		sess.ID,
		sess.OwnerID,
		nullIfEmpty(sess.TaskID),
		sess.StartTime.Unix(),
		sess.EndTime.Unix(),
		sess.DurationMinutes,
		boolToInt(sess.Interrupted),
		string(reasonsJSON),
		nullIfEmpty(sess.Note),
		sess.CreatedAt,
	); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// ListRange returns sessions with StartTime in [from, to), ascending.
func (s *Store) ListRange(ctx context.Context, ownerID string, from time.Time, to time.Time) ([]Session, error) {
	query := `SELECT id, owner_id, COALESCE(task_id, ''), start_time, end_time, duration_minutes, interrupted, interrupt_reasons_json, COALESCE(note, ''), created_at
FROM sessions
WHERE owner_id = ? AND start_time >= ? AND start_time < ?
ORDER BY start_time ASC`
	rows, err := s.db.Conn().QueryContext(ctx, query, ownerID, from.Unix(), to.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Session, 0)
	for rows.Next() {
		var (
			sess        Session
			startUnix   int64
			endUnix     int64
			interrupted int
			reasonsJSON string
		)
		if err := rows.Scan(
			&sess.ID,
			&sess.OwnerID,
			&sess.TaskID,
			&startUnix,
			&endUnix,
			&sess.DurationMinutes,
			&interrupted,
			&reasonsJSON,
			&sess.Note,
			&sess.CreatedAt,
		); err != nil {
			return nil, err
		}
		sess.StartTime = time.Unix(startUnix, 0)
		sess.EndTime = time.Unix(endUnix, 0)
		sess.Interrupted = interrupted != 0
		if err := json.Unmarshal([]byte(reasonsJSON), &sess.InterruptReasons); err != nil {
			return nil, fmt.Errorf("corrupt interrupt reasons for session %s: %w", sess.ID, err)
		}
		items = append(items, sess)
	}
	return items, rows.Err()
}

// RecentHistory renders the session log for [from, to) into the placement
// oracle's history shape.
func (s *Store) RecentHistory(ctx context.Context, ownerID string, from civil.Day, to civil.Day) ([]placement.HistoryEntry, error) {
	loc := time.Local
	sessions, err := s.ListRange(ctx, ownerID, from.Start(loc), to.Start(loc))
	if err != nil {
		return nil, err
	}
	entries := make([]placement.HistoryEntry, 0, len(sessions))
	for _, sess := range sessions {
		start := sess.StartTime.In(loc)
		entries = append(entries, placement.HistoryEntry{
			Date:           civil.DayOf(start).String(),
			Start:          civil.TimeOfDayFrom(start).String(),
			MinutesFocused: sess.DurationMinutes,
			Interrupted:    sess.Interrupted,
			Reasons:        sess.InterruptReasons,
		})
	}
	return entries, nil
}

func nullIfEmpty(v string) interface{} {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
