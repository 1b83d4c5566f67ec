package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestLibraryRepositorySetOpenForYear(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLibraryRepository(db)

	mock.ExpectExec("INSERT INTO library_form_statuses").
		WillReturnResult(sqlmock.NewResult(0, 42))

	affected, err := repo.SetOpenForYear(context.Background(), 2026, true)
	require.NoError(t, err)
	require.Equal(t, int64(42), affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLibraryRepositoryCountStillOpenForYear(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLibraryRepository(db)

	rows := sqlmock.NewRows([]string{"count"}).AddRow(3)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM library_form_statuses WHERE academic_year = $1 AND is_open = TRUE")).
		WithArgs(2026).
		WillReturnRows(rows)

	count, err := repo.CountStillOpenForYear(context.Background(), 2026)
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLibraryRepositoryListStillOpenForYear(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLibraryRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"library_id", "academic_year", "is_open", "broadcast_sent", "updated_at"}).
		AddRow("lib-1", 2026, true, true, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM library_form_statuses WHERE academic_year = $1 AND is_open = TRUE ORDER BY library_id")).
		WithArgs(2026).
		WillReturnRows(rows)

	statuses, err := repo.ListStillOpenForYear(context.Background(), 2026)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	require.Equal(t, "lib-1", statuses[0].LibraryID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLibraryRepositoryListByIDs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLibraryRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "name", "region", "contact_email", "is_active", "created_at", "updated_at"}).
		AddRow("lib-1", "City Library", "North", "city@example.com", true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM libraries WHERE id = ANY($1)")).
		WillReturnRows(rows)

	libraries, err := repo.ListByIDs(context.Background(), []string{"lib-1"})
	require.NoError(t, err)
	require.Len(t, libraries, 1)
	require.Equal(t, "City Library", libraries[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())

	// Empty input short-circuits without touching the database.
	libraries, err = repo.ListByIDs(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, libraries)
}

func TestLibraryRepositoryIsBroadcastSentForYear(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLibraryRepository(db)

	rows := sqlmock.NewRows([]string{"exists"}).AddRow(true)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM library_form_statuses WHERE academic_year = $1 AND broadcast_sent = TRUE)")).
		WithArgs(2026).
		WillReturnRows(rows)

	sent, err := repo.IsBroadcastSentForYear(context.Background(), 2026)
	require.NoError(t, err)
	require.True(t, sent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLibraryRepositoryListActiveContactEmails(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLibraryRepository(db)

	rows := sqlmock.NewRows([]string{"contact_email"}).
		AddRow("a@example.com").
		AddRow("b@example.com")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT contact_email FROM libraries WHERE is_active = TRUE")).
		WillReturnRows(rows)

	emails, err := repo.ListActiveContactEmails(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, emails)
	require.NoError(t, mock.ExpectationsWereMet())
}
