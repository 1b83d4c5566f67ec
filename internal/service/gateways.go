package service

import (
	"context"

	"github.com/noah-isme/libstats-api/internal/models"
)

// bulkRecordGateway is the aggregate view over the many per-library form
// records for a year. Implemented by repository.LibraryRepository.
type bulkRecordGateway interface {
	SetOpenForYear(ctx context.Context, year int, open bool) (int64, error)
	CountStillOpenForYear(ctx context.Context, year int) (int, error)
	ListStillOpenForYear(ctx context.Context, year int) ([]models.LibraryFormStatus, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Library, error)
	MarkBroadcastSentForYear(ctx context.Context, year int) error
	IsBroadcastSentForYear(ctx context.Context, year int) (bool, error)
}

// recipientSource resolves the current notification audiences.
type recipientSource interface {
	ActiveUserRecipients(ctx context.Context) ([]string, error)
	AdminRecipients(ctx context.Context) ([]string, error)
}

// auditRecorder is the audit-log sink. Implemented by repository.UserRepository.
type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}
