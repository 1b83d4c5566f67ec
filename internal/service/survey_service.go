package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/libstats-api/internal/models"
	appErrors "github.com/noah-isme/libstats-api/pkg/errors"
	"github.com/noah-isme/libstats-api/pkg/mailer"
)

type sessionStore interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.SurveySession, int, error)
	FindByYear(ctx context.Context, year int) (*models.SurveySession, error)
	ListActiveYears(ctx context.Context, excludeYear int, now time.Time) ([]int, error)
	CreateWithEvents(ctx context.Context, session *models.SurveySession, events []models.ScheduledEvent) error
	UpdateWithEvents(ctx context.Context, session *models.SurveySession, events []models.ScheduledEvent) error
}

// CreateSessionRequest describes payload for creating or updating a survey
// session. A request for a year that already has a session is an update.
type CreateSessionRequest struct {
	AcademicYear     int                `json:"academic_year" validate:"required,min=2000,max=2100"`
	OpeningDate      time.Time          `json:"opening_date" validate:"required"`
	ClosingDate      time.Time          `json:"closing_date" validate:"required"`
	Mode             models.SessionMode `json:"mode" validate:"required,sessionmode"`
	BroadcastSubject string             `json:"broadcast_subject"`
	BroadcastBody    string             `json:"broadcast_body"`
	RequestedBy      string             `json:"-"`
}

// CreateSessionResult returns the persisted session and its three events.
type CreateSessionResult struct {
	Session *models.SurveySession   `json:"session"`
	Events  []models.ScheduledEvent `json:"events"`
}

// SurveySessionService creates and reads survey sessions. The lifecycle
// transitions themselves belong to SweepService.
type SurveySessionService struct {
	sessions   sessionStore
	records    bulkRecordGateway
	recipients recipientSource
	mailer     mailer.Mailer
	audit      auditRecorder
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewSurveySessionService constructs the service.
func NewSurveySessionService(sessions sessionStore, records bulkRecordGateway, recipients recipientSource, sender mailer.Mailer, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *SurveySessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &SurveySessionService{
		sessions:   sessions,
		records:    records,
		recipients: recipients,
		mailer:     sender,
		audit:      audit,
		validator:  validate,
		logger:     logger,
	}
	svc.validator.RegisterValidation("sessionmode", func(fl validator.FieldLevel) bool {
		switch models.SessionMode(strings.ToUpper(fl.Field().String())) {
		case models.SessionModeImmediate, models.SessionModeScheduled:
			return true
		default:
			return false
		}
	})
	return svc
}

// List returns sessions with pagination.
func (s *SurveySessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.SurveySession, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	sessions, total, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return sessions, pagination, nil
}

// Get returns the session for an academic year.
func (s *SurveySessionService) Get(ctx context.Context, year int) (*models.SurveySession, error) {
	session, err := s.sessions.FindByYear(ctx, year)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// OpenRecords lists the form records still open for a year together with
// their owning libraries. This is the operator's view behind a closing
// transition that keeps failing verification.
func (s *SurveySessionService) OpenRecords(ctx context.Context, year int) ([]models.OpenFormRecord, error) {
	statuses, err := s.records.ListStillOpenForYear(ctx, year)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list open records")
	}
	if len(statuses) == 0 {
		return []models.OpenFormRecord{}, nil
	}

	ids := make([]string, len(statuses))
	for i, status := range statuses {
		ids[i] = status.LibraryID
	}
	libraries, err := s.records.ListByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load libraries")
	}
	byID := make(map[string]models.Library, len(libraries))
	for _, lib := range libraries {
		byID[lib.ID] = lib
	}

	records := make([]models.OpenFormRecord, 0, len(statuses))
	for _, status := range statuses {
		records = append(records, models.OpenFormRecord{Library: byID[status.LibraryID], Status: status})
	}
	return records, nil
}

// CreateSession validates and persists a session together with its three
// lifecycle events. Immediate mode opens forms and fires the broadcast right
// now; scheduled mode hands the broadcast to the provider's timer and leaves
// every transition to the sweep. Either way one audit entry records the
// outcome.
func (s *SurveySessionService) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResult, error) {
	result, action, err := s.createSession(ctx, req)
	s.recordAudit(ctx, action, req, result, err)
	return result, err
}

func (s *SurveySessionService) createSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResult, string, error) {
	action := models.AuditActionSessionCreate
	now := time.Now().UTC()

	if err := s.validator.Struct(req); err != nil {
		return nil, action, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if !req.ClosingDate.After(req.OpeningDate) {
		return nil, action, appErrors.Clone(appErrors.ErrValidation, "closing_date must be after opening_date")
	}

	conflicts, err := s.sessions.ListActiveYears(ctx, req.AcademicYear, now)
	if err != nil {
		return nil, action, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active sessions")
	}
	if len(conflicts) > 0 {
		return nil, action, appErrors.Clone(appErrors.ErrConflict, "conflicting active session for year "+joinYears(conflicts))
	}

	existing, err := s.sessions.FindByYear(ctx, req.AcademicYear)
	if err != nil && err != sql.ErrNoRows {
		return nil, action, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	session := &models.SurveySession{
		AcademicYear:     req.AcademicYear,
		OpeningDate:      req.OpeningDate,
		ClosingDate:      req.ClosingDate,
		BroadcastSubject: req.BroadcastSubject,
		BroadcastBody:    req.BroadcastBody,
	}
	if existing != nil {
		action = models.AuditActionSessionUpdate
		session.ID = existing.ID
		session.IsOpen = existing.IsOpen
		session.NotifiedOnOpen = existing.NotifiedOnOpen
		session.NotifiedOnClose = existing.NotifiedOnClose
		session.CreatedAt = existing.CreatedAt
	}

	events := []models.ScheduledEvent{
		{Kind: models.EventKindBroadcast, AcademicYear: req.AcademicYear, ScheduledAt: req.OpeningDate, Status: models.EventStatusPending},
		{Kind: models.EventKindFormOpening, AcademicYear: req.AcademicYear, ScheduledAt: req.OpeningDate, Status: models.EventStatusPending},
		{Kind: models.EventKindFormClosing, AcademicYear: req.AcademicYear, ScheduledAt: req.ClosingDate, Status: models.EventStatusPending},
	}

	switch models.SessionMode(strings.ToUpper(string(req.Mode))) {
	case models.SessionModeImmediate:
		if err := s.applyImmediate(ctx, session, events, now); err != nil {
			return nil, action, err
		}
	default:
		s.scheduleBroadcast(ctx, session, events, req.OpeningDate, now)
	}

	if existing == nil {
		err = s.sessions.CreateWithEvents(ctx, session, events)
	} else {
		err = s.sessions.UpdateWithEvents(ctx, session, events)
	}
	if err != nil {
		return nil, action, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist session")
	}

	return &CreateSessionResult{Session: session, Events: events}, action, nil
}

// scheduleBroadcast hands the broadcast to the provider's own timer. The
// handoff is best-effort: the BROADCAST event stays PENDING either way, and
// the sweep's backup path delivers anything the provider never fired. An
// opening instant beyond the provider's scheduling window skips the handoff
// entirely rather than collecting a guaranteed rejection.
func (s *SurveySessionService) scheduleBroadcast(ctx context.Context, session *models.SurveySession, events []models.ScheduledEvent, openingDate time.Time, now time.Time) {
	if openingDate.After(now.Add(mailer.ScheduleWindow)) {
		s.logger.Info("opening date beyond provider scheduling window, sweep will deliver broadcast",
			zap.Int("academic_year", session.AcademicYear),
			zap.Time("opening_date", openingDate),
		)
		return
	}

	users, err := s.recipients.ActiveUserRecipients(ctx)
	if err != nil {
		s.logger.Warn("failed to resolve broadcast recipients, sweep will deliver broadcast",
			zap.Int("academic_year", session.AcademicYear), zap.Error(err))
		return
	}
	handle, err := s.mailer.ScheduleAt(ctx, broadcastMessage(session, users), openingDate)
	if err != nil {
		s.logger.Warn("failed to schedule broadcast with provider, sweep will deliver broadcast",
			zap.Int("academic_year", session.AcademicYear), zap.Error(err))
		return
	}
	if handle != "" {
		events[0].ProviderHandle = &handle
	}
}

// applyImmediate fires the broadcast and records the opening as already done.
// The send happens before any state is persisted: a gateway failure aborts
// the whole creation, while a persistence failure after the send degrades to
// at-least-once delivery.
func (s *SurveySessionService) applyImmediate(ctx context.Context, session *models.SurveySession, events []models.ScheduledEvent, now time.Time) error {
	users, err := s.recipients.ActiveUserRecipients(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve recipients")
	}
	admins, err := s.recipients.AdminRecipients(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve admin recipients")
	}

	if _, err := s.mailer.SendNow(ctx, broadcastMessage(session, users)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrGatewayUnavailable.Code, appErrors.ErrGatewayUnavailable.Status, "failed to send broadcast")
	}
	if _, err := s.mailer.SendNow(ctx, openAdminNotice(session, admins)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrGatewayUnavailable.Code, appErrors.ErrGatewayUnavailable.Status, "failed to send admin notice")
	}

	if _, err := s.records.SetOpenForYear(ctx, session.AcademicYear, true); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open library records")
	}
	if err := s.records.MarkBroadcastSentForYear(ctx, session.AcademicYear); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to flag broadcast sent")
	}

	session.IsOpen = true
	session.NotifiedOnOpen = true

	note := "completed at creation (immediate mode)"
	for i := range events {
		if events[i].Kind == models.EventKindFormClosing {
			continue
		}
		events[i].Status = models.EventStatusCompleted
		events[i].CompletedAt = &now
		events[i].Notes = &note
	}
	return nil
}

func (s *SurveySessionService) recordAudit(ctx context.Context, action string, req CreateSessionRequest, result *CreateSessionResult, opErr error) {
	if s.audit == nil {
		return
	}

	log := &models.AuditLog{
		Action:   action,
		Resource: "survey_session",
		Success:  opErr == nil,
	}
	if req.RequestedBy != "" {
		log.UserID = &req.RequestedBy
	}
	if result != nil && result.Session != nil {
		log.ResourceID = &result.Session.ID
	}
	if opErr != nil {
		msg := opErr.Error()
		log.ErrorMessage = &msg
	}
	log.NewValues, _ = json.Marshal(map[string]interface{}{
		"academic_year": req.AcademicYear,
		"opening_date":  req.OpeningDate,
		"closing_date":  req.ClosingDate,
		"mode":          req.Mode,
	})

	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Error("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func joinYears(years []int) string {
	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = strconv.Itoa(y)
	}
	return strings.Join(parts, ", ")
}
