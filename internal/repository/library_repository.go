package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/libstats-api/internal/models"
)

// LibraryRepository is the bulk record gateway over the many per-library
// form-status flags for a year. The orchestrator never addresses an
// individual library row, only the (year) aggregate.
type LibraryRepository struct {
	db *sqlx.DB
}

// NewLibraryRepository instantiates a library repository.
func NewLibraryRepository(db *sqlx.DB) *LibraryRepository {
	return &LibraryRepository{db: db}
}

// SetOpenForYear flips the editing flag for every active library's record in
// the given year, creating missing rows. Returns the number of rows touched.
func (r *LibraryRepository) SetOpenForYear(ctx context.Context, year int, open bool) (int64, error) {
	const query = `INSERT INTO library_form_statuses (library_id, academic_year, is_open, broadcast_sent, updated_at)
		SELECT id, $1, $2, FALSE, $3 FROM libraries WHERE is_active = TRUE
		ON CONFLICT (library_id, academic_year)
		DO UPDATE SET is_open = EXCLUDED.is_open, updated_at = EXCLUDED.updated_at`
	res, err := r.db.ExecContext(ctx, query, year, open, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("set open flag for year %d: %w", year, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("set open flag for year %d: %w", year, err)
	}
	return affected, nil
}

// CountStillOpenForYear reports how many records remain open for editing.
func (r *LibraryRepository) CountStillOpenForYear(ctx context.Context, year int) (int, error) {
	const query = `SELECT COUNT(*) FROM library_form_statuses WHERE academic_year = $1 AND is_open = TRUE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, year); err != nil {
		return 0, fmt.Errorf("count open records for year %d: %w", year, err)
	}
	return count, nil
}

// ListStillOpenForYear returns the per-library records still flagged open,
// for finding the rows behind a failed closure verification.
func (r *LibraryRepository) ListStillOpenForYear(ctx context.Context, year int) ([]models.LibraryFormStatus, error) {
	const query = `SELECT library_id, academic_year, is_open, broadcast_sent, updated_at FROM library_form_statuses WHERE academic_year = $1 AND is_open = TRUE ORDER BY library_id`
	var statuses []models.LibraryFormStatus
	if err := r.db.SelectContext(ctx, &statuses, query, year); err != nil {
		return nil, fmt.Errorf("list open records for year %d: %w", year, err)
	}
	return statuses, nil
}

// ListByIDs loads libraries by identifier.
func (r *LibraryRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Library, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT id, name, region, contact_email, is_active, created_at, updated_at FROM libraries WHERE id = ANY($1) ORDER BY name`
	var libraries []models.Library
	if err := r.db.SelectContext(ctx, &libraries, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list libraries by id: %w", err)
	}
	return libraries, nil
}

// MarkBroadcastSentForYear records that the year's broadcast was delivered.
func (r *LibraryRepository) MarkBroadcastSentForYear(ctx context.Context, year int) error {
	const query = `INSERT INTO library_form_statuses (library_id, academic_year, is_open, broadcast_sent, updated_at)
		SELECT id, $1, FALSE, TRUE, $2 FROM libraries WHERE is_active = TRUE
		ON CONFLICT (library_id, academic_year)
		DO UPDATE SET broadcast_sent = TRUE, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, year, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark broadcast sent for year %d: %w", year, err)
	}
	return nil
}

// IsBroadcastSentForYear reports whether the year's broadcast already went
// out through any path.
func (r *LibraryRepository) IsBroadcastSentForYear(ctx context.Context, year int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM library_form_statuses WHERE academic_year = $1 AND broadcast_sent = TRUE)`
	var sent bool
	if err := r.db.GetContext(ctx, &sent, query, year); err != nil {
		return false, fmt.Errorf("check broadcast flag for year %d: %w", year, err)
	}
	return sent, nil
}

// ListActiveContactEmails returns contact addresses of active libraries.
func (r *LibraryRepository) ListActiveContactEmails(ctx context.Context) ([]string, error) {
	const query = `SELECT contact_email FROM libraries WHERE is_active = TRUE AND contact_email <> '' ORDER BY contact_email`
	var emails []string
	if err := r.db.SelectContext(ctx, &emails, query); err != nil {
		return nil, fmt.Errorf("list library contact emails: %w", err)
	}
	return emails, nil
}
