package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/libstats-api/internal/models"
	appErrors "github.com/noah-isme/libstats-api/pkg/errors"
)

type eventStore interface {
	List(ctx context.Context, filter models.EventFilter) ([]models.ScheduledEvent, int, error)
	FindByID(ctx context.Context, id string) (*models.ScheduledEvent, error)
	MarkCancelled(ctx context.Context, id string, now time.Time) (bool, error)
}

type accountReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ScheduledEventService reads and cancels scheduled lifecycle events.
type ScheduledEventService struct {
	events eventStore
	users  accountReader
	audit  auditRecorder
	logger *zap.Logger
}

// NewScheduledEventService constructs the service.
func NewScheduledEventService(events eventStore, users accountReader, audit auditRecorder, logger *zap.Logger) *ScheduledEventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduledEventService{events: events, users: users, audit: audit, logger: logger}
}

// List returns events with pagination.
func (s *ScheduledEventService) List(ctx context.Context, filter models.EventFilter) ([]models.ScheduledEvent, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	events, total, err := s.events.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return events, pagination, nil
}

// Get returns an event by id.
func (s *ScheduledEventService) Get(ctx context.Context, id string) (*models.ScheduledEvent, error) {
	event, err := s.events.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}

// Cancel removes a still-pending event from the schedule. Cancellation is
// terminal and does not touch the owning session's flags: a cancelled
// closing event just means no automatic closing will occur. The guarded
// status update resolves the race with a concurrent sweep to exactly one
// winner.
func (s *ScheduledEventService) Cancel(ctx context.Context, id string, claims *models.JWTClaims) (*models.ScheduledEvent, error) {
	if claims == nil || claims.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only super administrators may cancel scheduled events")
	}

	// The token alone is not enough: a deactivated account keeps a valid
	// token until expiry.
	account, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "requester account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requester account")
	}
	if !account.IsActive {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "requester account is inactive")
	}

	event, err := s.events.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	if event.Status != models.EventStatusPending {
		err := appErrors.Clone(appErrors.ErrNotCancellable, "event is already "+string(event.Status))
		s.recordAudit(ctx, event, claims, err)
		return nil, err
	}

	now := time.Now().UTC()
	cancelled, err := s.events.MarkCancelled(ctx, id, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel event")
	}
	if !cancelled {
		// Lost the race: the sweep completed the event between our read and
		// the guarded write.
		err := appErrors.Clone(appErrors.ErrNotCancellable, "event was completed concurrently")
		s.recordAudit(ctx, event, claims, err)
		return nil, err
	}

	event.Status = models.EventStatusCancelled
	event.CancelledAt = &now
	s.recordAudit(ctx, event, claims, nil)
	return event, nil
}

func (s *ScheduledEventService) recordAudit(ctx context.Context, event *models.ScheduledEvent, claims *models.JWTClaims, opErr error) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:     models.AuditActionEventCancel,
		Resource:   "scheduled_event",
		ResourceID: &event.ID,
		Success:    opErr == nil,
	}
	if claims != nil {
		log.UserID = &claims.UserID
	}
	if opErr != nil {
		msg := opErr.Error()
		log.ErrorMessage = &msg
	}
	log.NewValues, _ = json.Marshal(map[string]interface{}{
		"kind":          event.Kind,
		"academic_year": event.AcademicYear,
		"status":        event.Status,
	})
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Error("failed to write audit log", zap.String("action", models.AuditActionEventCancel), zap.Error(err))
	}
}
