package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/libstats-api/internal/models"
)

const eventColumns = "id, kind, academic_year, scheduled_at, status, provider_handle, notes, created_at, completed_at, cancelled_at"

// EventRepository handles persistence for scheduled lifecycle events.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository instantiates an event repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// List returns events matching provided filters.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.ScheduledEvent, int, error) {
	base := "FROM scheduled_events WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.AcademicYear != 0 {
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)+1))
		args = append(args, filter.Kind)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY scheduled_at DESC LIMIT %d OFFSET %d", eventColumns, base, size, offset)

	var events []models.ScheduledEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	return events, total, nil
}

// FindByID loads an event by identifier.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.ScheduledEvent, error) {
	query := fmt.Sprintf("SELECT %s FROM scheduled_events WHERE id = $1", eventColumns)
	var event models.ScheduledEvent
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// ListDue returns pending events of a kind whose scheduled instant has passed.
func (r *EventRepository) ListDue(ctx context.Context, kind models.EventKind, now time.Time) ([]models.ScheduledEvent, error) {
	query := fmt.Sprintf("SELECT %s FROM scheduled_events WHERE kind = $1 AND status = 'PENDING' AND scheduled_at <= $2 ORDER BY scheduled_at", eventColumns)
	var events []models.ScheduledEvent
	if err := r.db.SelectContext(ctx, &events, query, kind, now); err != nil {
		return nil, fmt.Errorf("list due %s events: %w", kind, err)
	}
	return events, nil
}

// MarkCompleted transitions a pending event to COMPLETED. The status guard in
// the WHERE clause makes the write a no-op when the event already reached a
// terminal state; the affected-row count reports which case occurred.
func (r *EventRepository) MarkCompleted(ctx context.Context, id, note string, now time.Time) (bool, error) {
	const query = `UPDATE scheduled_events SET status = 'COMPLETED', completed_at = $2, notes = $3 WHERE id = $1 AND status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, query, id, now, note)
	if err != nil {
		return false, fmt.Errorf("complete event %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete event %s: %w", id, err)
	}
	return affected > 0, nil
}

// MarkCancelled transitions a pending event to CANCELLED under the same
// status guard.
func (r *EventRepository) MarkCancelled(ctx context.Context, id string, now time.Time) (bool, error) {
	const query = `UPDATE scheduled_events SET status = 'CANCELLED', cancelled_at = $2 WHERE id = $1 AND status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("cancel event %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel event %s: %w", id, err)
	}
	return affected > 0, nil
}
