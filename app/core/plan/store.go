package plan

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"timecoach/app/core/db"
	"timecoach/app/pkg/civil"
)

const DefaultEstimatedMinutes = 60

type Store struct {
	db *db.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

func (s *Store) Create(ctx context.Context, task Task) (Task, error) {
	task.OwnerID = strings.TrimSpace(task.OwnerID)
	if task.OwnerID == "" {
		return Task{}, fmt.Errorf("owner_id is required")
	}
	task.Title = strings.TrimSpace(task.Title)
	if task.Title == "" {
		return Task{}, fmt.Errorf("title is required")
	}
	if task.Anchor.Day.IsZero() {
		return Task{}, fmt.Errorf("anchor day is required")
	}
	if task.EstimatedMinutes <= 0 {
		task.EstimatedMinutes = DefaultEstimatedMinutes
	}
	if _, ok := ParsePriority(string(task.Priority)); !ok {
		task.Priority = PriorityShould
	}
	if _, ok := ParseStatus(string(task.Status)); !ok {
		task.Status = StatusPending
	}

	now := time.Now().Unix()
	task.ID = uuid.NewString()
	task.CreatedAt = now
	task.UpdatedAt = now

	query := `INSERT INTO plans (id, owner_id, title, subject, estimated_minutes, priority, anchor_day, anchor_minute, end_day, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.Conn().ExecContext(ctx, query,
		task.ID,
		task.OwnerID,
		task.Title,
		task.Subject,
		task.EstimatedMinutes,
		string(task.Priority),
		task.Anchor.Day.String(),
		anchorMinuteValue(task.Anchor),
		dayValue(task.EndDay),
		string(task.Status),
		task.CreatedAt,
		task.UpdatedAt,
	); err != nil {
		return Task{}, err
	}
	return task, nil
}

func (s *Store) Get(ctx context.Context, ownerID string, id string) (Task, error) {
	query := `SELECT id, owner_id, title, COALESCE(subject, ''), estimated_minutes, priority, anchor_day, anchor_minute, end_day, status, created_at, updated_at
FROM plans WHERE id = ? AND owner_id = ?`
	row := s.db.Conn().QueryRowContext(ctx, query, id, ownerID)
	return scanTask(row)
}

// ListForDay returns the tasks relevant to one day: single-day tasks
// anchored on it, plus multi-day tasks whose span includes it.
func (s *Store) ListForDay(ctx context.Context, ownerID string, day civil.Day) ([]Task, error) {
	dayText := day.String()
	query := `SELECT id, owner_id, title, COALESCE(subject, ''), estimated_minutes, priority, anchor_day, anchor_minute, end_day, status, created_at, updated_at
FROM plans
WHERE owner_id = ? AND (anchor_day = ? OR (anchor_day <= ? AND end_day IS NOT NULL AND end_day >= ?))
ORDER BY created_at ASC`
	rows, err := s.db.Conn().QueryContext(ctx, query, ownerID, dayText, dayText, dayText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		task, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, task)
	}
	return items, rows.Err()
}

func (s *Store) Update(ctx context.Context, task Task) (Task, error) {
	if strings.TrimSpace(task.ID) == "" {
		return Task{}, fmt.Errorf("id is required")
	}
	task.UpdatedAt = time.Now().Unix()
	query := `UPDATE plans
SET title = ?, subject = ?, estimated_minutes = ?, priority = ?, anchor_day = ?, anchor_minute = ?, end_day = ?, status = ?, updated_at = ?
WHERE id = ? AND owner_id = ?`
	res, err := s.db.Conn().ExecContext(ctx, query,
		task.Title,
		task.Subject,
		task.EstimatedMinutes,
		string(task.Priority),
		task.Anchor.Day.String(),
		anchorMinuteValue(task.Anchor),
		dayValue(task.EndDay),
		string(task.Status),
		task.UpdatedAt,
		task.ID,
		task.OwnerID,
	)
	if err != nil {
		return Task{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Task{}, err
	}
	if affected == 0 {
		return Task{}, sql.ErrNoRows
	}
	return task, nil
}

func (s *Store) Delete(ctx context.Context, ownerID string, id string) error {
	res, err := s.db.Conn().ExecContext(ctx, `DELETE FROM plans WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (Task, error) {
	var (
		task         Task
		priority     string
		status       string
		anchorDay    string
		anchorMinute sql.NullInt64
		endDay       sql.NullString
	)
	if err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Title,
		&task.Subject,
		&task.EstimatedMinutes,
		&priority,
		&anchorDay,
		&anchorMinute,
		&endDay,
		&status,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return Task{}, err
	}
	task.Priority = Priority(priority)
	task.Status = Status(status)

	day, err := civil.ParseDay(anchorDay)
	if err != nil {
		return Task{}, fmt.Errorf("corrupt anchor day: %w", err)
	}
	task.Anchor.Day = day
	if anchorMinute.Valid {
		tod, err := civil.MinuteOfDay(int(anchorMinute.Int64))
		if err != nil {
			return Task{}, fmt.Errorf("corrupt anchor minute: %w", err)
		}
		task.Anchor.Time = tod
		task.Anchor.HasTime = true
	}
	if endDay.Valid && endDay.String != "" {
		end, err := civil.ParseDay(endDay.String)
		if err != nil {
			return Task{}, fmt.Errorf("corrupt end day: %w", err)
		}
		task.EndDay = end
	}
	return task, nil
}

func scanTaskRows(rows *sql.Rows) (Task, error) {
	return scanTask(rows)
}

func anchorMinuteValue(a Anchor) interface{} {
	if !a.HasTime {
		return nil
	}
	return a.Time.Minutes()
}

func dayValue(d civil.Day) interface{} {
	if d.IsZero() {
		return nil
	}
	return d.String()
}
