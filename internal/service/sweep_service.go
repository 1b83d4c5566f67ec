package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/libstats-api/internal/models"
	"github.com/noah-isme/libstats-api/pkg/mailer"
)

type sweepSessionStore interface {
	FindByYear(ctx context.Context, year int) (*models.SurveySession, error)
	ListDueForOpening(ctx context.Context, now time.Time) ([]models.SurveySession, error)
	ListDueForClosing(ctx context.Context, now time.Time) ([]models.SurveySession, error)
	MarkOpened(ctx context.Context, year int, now time.Time) error
	MarkClosed(ctx context.Context, year int, now time.Time) error
}

type sweepEventStore interface {
	ListDue(ctx context.Context, kind models.EventKind, now time.Time) ([]models.ScheduledEvent, error)
	MarkCompleted(ctx context.Context, id, note string, now time.Time) (bool, error)
}

// SweepResult summarises one reconciliation pass.
type SweepResult struct {
	BroadcastsSent []int    `json:"broadcasts_sent"`
	Opened         []int    `json:"opened"`
	Closed         []int    `json:"closed"`
	Errors         []string `json:"errors"`
}

// SweepService is the reconciliation sweep: the idempotent routine a periodic
// trigger re-enters to advance due sessions and events. Every step re-reads
// its guard (event status, session flags, broadcast-sent flag) before acting
// and performs its side effects before committing the guard update, so the
// routine is safe to invoke arbitrarily often and a crash mid-step degrades
// to an at-least-once retry on the next pass.
type SweepService struct {
	sessions   sweepSessionStore
	events     sweepEventStore
	records    bulkRecordGateway
	recipients recipientSource
	mailer     mailer.Mailer
	audit      auditRecorder
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewSweepService constructs the sweep service.
func NewSweepService(sessions sweepSessionStore, events sweepEventStore, records bulkRecordGateway, recipients recipientSource, sender mailer.Mailer, audit auditRecorder, metrics *MetricsService, logger *zap.Logger) *SweepService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepService{
		sessions:   sessions,
		events:     events,
		records:    records,
		recipients: recipients,
		mailer:     sender,
		audit:      audit,
		metrics:    metrics,
		logger:     logger,
	}
}

// RunSweep performs one pass: (a) backup broadcast recovery, (b) opening
// transitions, (c) closing transitions with verification. The fixed A→B→C
// order matters only within one session: after a long trigger outage a
// session may be due for both opening and closing in the same pass, and the
// opening must be recorded before closing is evaluated against is_open.
// Failures are accumulated per step and never abort the rest of the pass.
func (s *SweepService) RunSweep(ctx context.Context, now time.Time) *SweepResult {
	result := &SweepResult{
		BroadcastsSent: []int{},
		Opened:         []int{},
		Closed:         []int{},
		Errors:         []string{},
	}

	s.recoverBroadcasts(ctx, now, result)
	s.openDueSessions(ctx, now, result)
	s.closeDueSessions(ctx, now, result)

	if s.metrics != nil {
		s.metrics.RecordSweepRun(len(result.BroadcastsSent), len(result.Opened), len(result.Closed), len(result.Errors))
	}
	s.auditSweep(ctx, result)
	s.logger.Info("sweep completed",
		zap.Ints("broadcasts_sent", result.BroadcastsSent),
		zap.Ints("opened", result.Opened),
		zap.Ints("closed", result.Closed),
		zap.Strings("errors", result.Errors),
	)
	return result
}

// recoverBroadcasts is the backup path for broadcasts the provider's own
// timer should have fired. The broadcast-sent flag re-check is what makes
// re-running the step safe.
func (s *SweepService) recoverBroadcasts(ctx context.Context, now time.Time, result *SweepResult) {
	events, err := s.events.ListDue(ctx, models.EventKindBroadcast, now)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list due broadcasts: %v", err))
		return
	}

	for _, event := range events {
		sent, err := s.recoverBroadcast(ctx, event, now)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("broadcast year %d: %v", event.AcademicYear, err))
			s.auditTransition(ctx, models.AuditActionBroadcastSend, event.AcademicYear, err)
			continue
		}
		if sent {
			result.BroadcastsSent = append(result.BroadcastsSent, event.AcademicYear)
			s.auditTransition(ctx, models.AuditActionBroadcastSend, event.AcademicYear, nil)
		}
	}
}

func (s *SweepService) recoverBroadcast(ctx context.Context, event models.ScheduledEvent, now time.Time) (bool, error) {
	alreadySent, err := s.records.IsBroadcastSentForYear(ctx, event.AcademicYear)
	if err != nil {
		return false, fmt.Errorf("check broadcast flag: %w", err)
	}
	if alreadySent {
		if _, err := s.events.MarkCompleted(ctx, event.ID, "delivered by provider scheduled send", now); err != nil {
			return false, err
		}
		return false, nil
	}

	session, err := s.sessions.FindByYear(ctx, event.AcademicYear)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	users, err := s.recipients.ActiveUserRecipients(ctx)
	if err != nil {
		return false, fmt.Errorf("resolve recipients: %w", err)
	}
	if _, err := s.mailer.SendNow(ctx, broadcastMessage(session, users)); err != nil {
		return false, fmt.Errorf("send broadcast: %w", err)
	}
	if err := s.records.MarkBroadcastSentForYear(ctx, event.AcademicYear); err != nil {
		return false, fmt.Errorf("flag broadcast sent: %w", err)
	}
	if _, err := s.events.MarkCompleted(ctx, event.ID, "sent by sweep backup", now); err != nil {
		return false, err
	}
	return true, nil
}

// openDueSessions advances sessions whose opening instant has passed. The
// notified_on_open predicate on the listing query is the guard that prevents
// a second pass from re-sending.
func (s *SweepService) openDueSessions(ctx context.Context, now time.Time, result *SweepResult) {
	sessions, err := s.sessions.ListDueForOpening(ctx, now)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list sessions due for opening: %v", err))
		return
	}

	for i := range sessions {
		session := &sessions[i]
		if err := s.openSession(ctx, session, now); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("year %d: %v", session.AcademicYear, err))
			s.auditTransition(ctx, models.AuditActionSessionOpen, session.AcademicYear, err)
			continue
		}
		result.Opened = append(result.Opened, session.AcademicYear)
		s.auditTransition(ctx, models.AuditActionSessionOpen, session.AcademicYear, nil)
	}
}

func (s *SweepService) openSession(ctx context.Context, session *models.SurveySession, now time.Time) error {
	if _, err := s.records.SetOpenForYear(ctx, session.AcademicYear, true); err != nil {
		return fmt.Errorf("open library records: %w", err)
	}

	users, err := s.recipients.ActiveUserRecipients(ctx)
	if err != nil {
		return fmt.Errorf("resolve recipients: %w", err)
	}
	admins, err := s.recipients.AdminRecipients(ctx)
	if err != nil {
		return fmt.Errorf("resolve admin recipients: %w", err)
	}

	if _, err := s.mailer.SendNow(ctx, openUserNotice(session, users)); err != nil {
		return fmt.Errorf("send opening notice: %w", err)
	}
	if _, err := s.mailer.SendNow(ctx, openAdminNotice(session, admins)); err != nil {
		return fmt.Errorf("send admin opening notice: %w", err)
	}

	if err := s.sessions.MarkOpened(ctx, session.AcademicYear, now); err != nil {
		return fmt.Errorf("record opening: %w", err)
	}
	return nil
}

// closeDueSessions advances sessions whose closing instant has passed.
// Closing has a verification gate: after the bulk update the aggregate is
// re-read, and the transition aborts for this pass when any record still
// reports open.
func (s *SweepService) closeDueSessions(ctx context.Context, now time.Time, result *SweepResult) {
	sessions, err := s.sessions.ListDueForClosing(ctx, now)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list sessions due for closing: %v", err))
		return
	}

	for i := range sessions {
		session := &sessions[i]
		if err := s.closeSession(ctx, session, now); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("year %d: %v", session.AcademicYear, err))
			s.auditTransition(ctx, models.AuditActionSessionClose, session.AcademicYear, err)
			continue
		}
		result.Closed = append(result.Closed, session.AcademicYear)
		s.auditTransition(ctx, models.AuditActionSessionClose, session.AcademicYear, nil)
	}
}

func (s *SweepService) closeSession(ctx context.Context, session *models.SurveySession, now time.Time) error {
	if _, err := s.records.SetOpenForYear(ctx, session.AcademicYear, false); err != nil {
		return fmt.Errorf("close library records: %w", err)
	}

	stillOpen, err := s.records.CountStillOpenForYear(ctx, session.AcademicYear)
	if err != nil {
		return fmt.Errorf("verify closure: %w", err)
	}
	if stillOpen > 0 {
		return fmt.Errorf("%d record(s) still open", stillOpen)
	}

	users, err := s.recipients.ActiveUserRecipients(ctx)
	if err != nil {
		return fmt.Errorf("resolve recipients: %w", err)
	}
	admins, err := s.recipients.AdminRecipients(ctx)
	if err != nil {
		return fmt.Errorf("resolve admin recipients: %w", err)
	}

	if _, err := s.mailer.SendNow(ctx, closeUserNotice(session, users)); err != nil {
		return fmt.Errorf("send closing notice: %w", err)
	}
	if _, err := s.mailer.SendNow(ctx, closeAdminNotice(session, admins)); err != nil {
		return fmt.Errorf("send admin closing notice: %w", err)
	}

	if err := s.sessions.MarkClosed(ctx, session.AcademicYear, now); err != nil {
		return fmt.Errorf("record closing: %w", err)
	}
	return nil
}

func (s *SweepService) auditTransition(ctx context.Context, action string, year int, opErr error) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:   action,
		Resource: "survey_session",
		Success:  opErr == nil,
	}
	yearStr := fmt.Sprintf("%d", year)
	log.ResourceID = &yearStr
	if opErr != nil {
		msg := opErr.Error()
		log.ErrorMessage = &msg
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Error("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *SweepService) auditSweep(ctx context.Context, result *SweepResult) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:   models.AuditActionSweepRun,
		Resource: "survey_sweep",
		Success:  len(result.Errors) == 0,
	}
	log.NewValues, _ = json.Marshal(result)
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Error("failed to write sweep audit log", zap.Error(err))
	}
}
