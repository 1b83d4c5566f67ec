package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/libstats-api/internal/models"
)

const sessionColumns = "id, academic_year, opening_date, closing_date, is_open, notified_on_open, notified_on_close, broadcast_subject, broadcast_body, created_at, updated_at"

// SessionRepository handles persistence for survey sessions and their events.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository instantiates a session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// List returns sessions matching provided filters.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.SurveySession, int, error) {
	base := "FROM survey_sessions WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.AcademicYear != 0 {
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.IsOpen != nil {
		conditions = append(conditions, fmt.Sprintf("is_open = $%d", len(args)+1))
		args = append(args, *filter.IsOpen)
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY academic_year DESC LIMIT %d OFFSET %d", sessionColumns, base, size, offset)

	var sessions []models.SurveySession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	return sessions, total, nil
}

// FindByYear loads the session for an academic year.
func (r *SessionRepository) FindByYear(ctx context.Context, year int) (*models.SurveySession, error) {
	query := fmt.Sprintf("SELECT %s FROM survey_sessions WHERE academic_year = $1", sessionColumns)
	var session models.SurveySession
	if err := r.db.GetContext(ctx, &session, query, year); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListActiveYears returns years other than the given one whose closing
// instant is still in the future. A non-empty result means creating a
// session for excludeYear would violate the single-active-year rule.
func (r *SessionRepository) ListActiveYears(ctx context.Context, excludeYear int, now time.Time) ([]int, error) {
	const query = `SELECT academic_year FROM survey_sessions WHERE academic_year <> $1 AND closing_date > $2 ORDER BY academic_year`
	var years []int
	if err := r.db.SelectContext(ctx, &years, query, excludeYear, now); err != nil {
		return nil, fmt.Errorf("list active years: %w", err)
	}
	return years, nil
}

// ListDueForOpening returns sessions whose opening transition is due and has
// not been recorded yet.
func (r *SessionRepository) ListDueForOpening(ctx context.Context, now time.Time) ([]models.SurveySession, error) {
	query := fmt.Sprintf("SELECT %s FROM survey_sessions WHERE opening_date <= $1 AND is_open = FALSE AND notified_on_open = FALSE ORDER BY academic_year", sessionColumns)
	var sessions []models.SurveySession
	if err := r.db.SelectContext(ctx, &sessions, query, now); err != nil {
		return nil, fmt.Errorf("list sessions due for opening: %w", err)
	}
	return sessions, nil
}

// ListDueForClosing returns sessions whose closing transition is due and has
// not been recorded yet.
func (r *SessionRepository) ListDueForClosing(ctx context.Context, now time.Time) ([]models.SurveySession, error) {
	query := fmt.Sprintf("SELECT %s FROM survey_sessions WHERE closing_date <= $1 AND is_open = TRUE AND notified_on_close = FALSE ORDER BY academic_year", sessionColumns)
	var sessions []models.SurveySession
	if err := r.db.SelectContext(ctx, &sessions, query, now); err != nil {
		return nil, fmt.Errorf("list sessions due for closing: %w", err)
	}
	return sessions, nil
}

// CreateWithEvents inserts a session and its scheduled events in one
// transaction so a half-created session can never be observed.
func (r *SessionRepository) CreateWithEvents(ctx context.Context, session *models.SurveySession, events []models.ScheduledEvent) error {
	now := time.Now().UTC()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	session.CreatedAt = now
	session.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create session tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertSession = `INSERT INTO survey_sessions (id, academic_year, opening_date, closing_date, is_open, notified_on_open, notified_on_close, broadcast_subject, broadcast_body, created_at, updated_at)
		VALUES (:id, :academic_year, :opening_date, :closing_date, :is_open, :notified_on_open, :notified_on_close, :broadcast_subject, :broadcast_body, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertSession, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	if err = insertEvents(ctx, tx, events, now); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create session tx: %w", err)
	}
	return nil
}

// UpdateWithEvents rewrites a session's dates and broadcast content and
// reschedules its still-pending events. Terminal events are left untouched.
func (r *SessionRepository) UpdateWithEvents(ctx context.Context, session *models.SurveySession, events []models.ScheduledEvent) error {
	now := time.Now().UTC()
	session.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update session tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const updateSession = `UPDATE survey_sessions SET opening_date = :opening_date, closing_date = :closing_date, is_open = :is_open, notified_on_open = :notified_on_open, notified_on_close = :notified_on_close, broadcast_subject = :broadcast_subject, broadcast_body = :broadcast_body, updated_at = :updated_at WHERE academic_year = :academic_year`
	if _, err = tx.NamedExecContext(ctx, updateSession, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	for i := range events {
		ev := events[i]
		const updateEvent = `UPDATE scheduled_events SET scheduled_at = $1, status = $2, provider_handle = $3, notes = $4, completed_at = $5 WHERE academic_year = $6 AND kind = $7 AND status = 'PENDING'`
		if _, err = tx.ExecContext(ctx, updateEvent, ev.ScheduledAt, ev.Status, ev.ProviderHandle, ev.Notes, ev.CompletedAt, ev.AcademicYear, ev.Kind); err != nil {
			return fmt.Errorf("reschedule %s event: %w", ev.Kind, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update session tx: %w", err)
	}
	return nil
}

// MarkOpened records the opening transition: both session flags flip and the
// pending FORM_OPENING event completes in a single transaction. The WHERE
// guards keep the write idempotent under concurrent sweeps.
func (r *SessionRepository) MarkOpened(ctx context.Context, year int, now time.Time) error {
	return r.markTransition(ctx, year, now,
		`UPDATE survey_sessions SET is_open = TRUE, notified_on_open = TRUE, updated_at = $2 WHERE academic_year = $1 AND is_open = FALSE AND notified_on_open = FALSE`,
		models.EventKindFormOpening,
		"opened by sweep",
	)
}

// MarkClosed records the closing transition and completes the pending
// FORM_CLOSING event.
func (r *SessionRepository) MarkClosed(ctx context.Context, year int, now time.Time) error {
	return r.markTransition(ctx, year, now,
		`UPDATE survey_sessions SET is_open = FALSE, notified_on_close = TRUE, updated_at = $2 WHERE academic_year = $1 AND is_open = TRUE AND notified_on_close = FALSE`,
		models.EventKindFormClosing,
		"closed by sweep",
	)
}

func (r *SessionRepository) markTransition(ctx context.Context, year int, now time.Time, sessionUpdate string, kind models.EventKind, note string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, sessionUpdate, year, now); err != nil {
		return fmt.Errorf("record %s transition: %w", kind, err)
	}

	const completeEvent = `UPDATE scheduled_events SET status = 'COMPLETED', completed_at = $3, notes = $4 WHERE academic_year = $1 AND kind = $2 AND status = 'PENDING'`
	if _, err = tx.ExecContext(ctx, completeEvent, year, kind, now, note); err != nil {
		return fmt.Errorf("complete %s event: %w", kind, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transition tx: %w", err)
	}
	return nil
}

func insertEvents(ctx context.Context, tx *sqlx.Tx, events []models.ScheduledEvent, now time.Time) error {
	for i := range events {
		ev := &events[i]
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = now
		}
		const insertEvent = `INSERT INTO scheduled_events (id, kind, academic_year, scheduled_at, status, provider_handle, notes, created_at, completed_at, cancelled_at)
			VALUES (:id, :kind, :academic_year, :scheduled_at, :status, :provider_handle, :notes, :created_at, :completed_at, :cancelled_at)`
		if _, err := tx.NamedExecContext(ctx, insertEvent, ev); err != nil {
			return fmt.Errorf("create %s event: %w", ev.Kind, err)
		}
	}
	return nil
}
