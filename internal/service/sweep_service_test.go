package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/libstats-api/internal/models"
	"github.com/noah-isme/libstats-api/pkg/mailer"
)

type mockRecordGateway struct {
	openYears     map[int]bool
	stillOpen     map[int]int
	openRecords   map[int][]models.LibraryFormStatus
	libraries     map[string]models.Library
	broadcastSent map[int]bool
	setOpenCalls  []int
	setCloseCalls []int
}

func newMockRecordGateway() *mockRecordGateway {
	return &mockRecordGateway{
		openYears:     make(map[int]bool),
		stillOpen:     make(map[int]int),
		openRecords:   make(map[int][]models.LibraryFormStatus),
		libraries:     make(map[string]models.Library),
		broadcastSent: make(map[int]bool),
	}
}

func (m *mockRecordGateway) SetOpenForYear(ctx context.Context, year int, open bool) (int64, error) {
	m.openYears[year] = open
	if open {
		m.setOpenCalls = append(m.setOpenCalls, year)
	} else {
		m.setCloseCalls = append(m.setCloseCalls, year)
	}
	return 10, nil
}

func (m *mockRecordGateway) CountStillOpenForYear(ctx context.Context, year int) (int, error) {
	return m.stillOpen[year], nil
}

func (m *mockRecordGateway) ListStillOpenForYear(ctx context.Context, year int) ([]models.LibraryFormStatus, error) {
	return m.openRecords[year], nil
}

func (m *mockRecordGateway) ListByIDs(ctx context.Context, ids []string) ([]models.Library, error) {
	var libs []models.Library
	for _, id := range ids {
		if lib, ok := m.libraries[id]; ok {
			libs = append(libs, lib)
		}
	}
	return libs, nil
}

func (m *mockRecordGateway) MarkBroadcastSentForYear(ctx context.Context, year int) error {
	m.broadcastSent[year] = true
	return nil
}

func (m *mockRecordGateway) IsBroadcastSentForYear(ctx context.Context, year int) (bool, error) {
	return m.broadcastSent[year], nil
}

type mockRecipientSource struct {
	users     []string
	admins    []string
	userErr   error
	userCalls int
}

func (m *mockRecipientSource) ActiveUserRecipients(ctx context.Context) ([]string, error) {
	m.userCalls++
	if m.userErr != nil {
		return nil, m.userErr
	}
	return m.users, nil
}

func (m *mockRecipientSource) AdminRecipients(ctx context.Context) ([]string, error) {
	return m.admins, nil
}

type mockMailer struct {
	sent      []mailer.Message
	scheduled []time.Time
	handle    string
	sendErr   error
}

func (m *mockMailer) SendNow(ctx context.Context, msg mailer.Message) (string, error) {
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.sent = append(m.sent, msg)
	return m.handle, nil
}

func (m *mockMailer) ScheduleAt(ctx context.Context, msg mailer.Message, at time.Time) (string, error) {
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.scheduled = append(m.scheduled, at)
	return m.handle, nil
}

type mockAudit struct {
	logs []models.AuditLog
}

func (m *mockAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, *log)
	return nil
}

// mockSweepSessionStore mirrors the repository's guard predicates so a second
// pass over the same state lists nothing.
type mockSweepSessionStore struct {
	sessions map[int]*models.SurveySession
}

func (m *mockSweepSessionStore) FindByYear(ctx context.Context, year int) (*models.SurveySession, error) {
	if s, ok := m.sessions[year]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSweepSessionStore) ListDueForOpening(ctx context.Context, now time.Time) ([]models.SurveySession, error) {
	var due []models.SurveySession
	for _, s := range m.sessions {
		if !s.OpeningDate.After(now) && !s.IsOpen && !s.NotifiedOnOpen {
			due = append(due, *s)
		}
	}
	return due, nil
}

func (m *mockSweepSessionStore) ListDueForClosing(ctx context.Context, now time.Time) ([]models.SurveySession, error) {
	var due []models.SurveySession
	for _, s := range m.sessions {
		if !s.ClosingDate.After(now) && s.IsOpen && !s.NotifiedOnClose {
			due = append(due, *s)
		}
	}
	return due, nil
}

func (m *mockSweepSessionStore) MarkOpened(ctx context.Context, year int, now time.Time) error {
	s := m.sessions[year]
	s.IsOpen = true
	s.NotifiedOnOpen = true
	return nil
}

func (m *mockSweepSessionStore) MarkClosed(ctx context.Context, year int, now time.Time) error {
	s := m.sessions[year]
	s.IsOpen = false
	s.NotifiedOnClose = true
	return nil
}

type mockSweepEventStore struct {
	events    map[string]*models.ScheduledEvent
	completed []string
}

func (m *mockSweepEventStore) ListDue(ctx context.Context, kind models.EventKind, now time.Time) ([]models.ScheduledEvent, error) {
	var due []models.ScheduledEvent
	for _, e := range m.events {
		if e.Kind == kind && e.Status == models.EventStatusPending && !e.ScheduledAt.After(now) {
			due = append(due, *e)
		}
	}
	return due, nil
}

func (m *mockSweepEventStore) MarkCompleted(ctx context.Context, id, note string, now time.Time) (bool, error) {
	e, ok := m.events[id]
	if !ok || e.Status != models.EventStatusPending {
		return false, nil
	}
	e.Status = models.EventStatusCompleted
	e.Notes = &note
	e.CompletedAt = &now
	m.completed = append(m.completed, id)
	return true, nil
}

func sweepFixture(now time.Time) (*mockSweepSessionStore, *mockSweepEventStore, *mockRecordGateway, *mockRecipientSource, *mockMailer, *mockAudit) {
	sessions := &mockSweepSessionStore{sessions: map[int]*models.SurveySession{
		2025: {
			ID:           "sess-2025",
			AcademicYear: 2025,
			OpeningDate:  now.Add(-time.Hour),
			ClosingDate:  now.Add(30 * 24 * time.Hour),
		},
	}}
	events := &mockSweepEventStore{events: map[string]*models.ScheduledEvent{
		"ev-broadcast": {ID: "ev-broadcast", Kind: models.EventKindBroadcast, AcademicYear: 2025, ScheduledAt: now.Add(-time.Hour), Status: models.EventStatusPending},
	}}
	records := newMockRecordGateway()
	recipients := &mockRecipientSource{users: []string{"lib@example.com"}, admins: []string{"admin@example.com"}}
	sender := &mockMailer{handle: "msg-1"}
	audit := &mockAudit{}
	return sessions, events, records, recipients, sender, audit
}

func TestSweepBroadcastBackupSend(t *testing.T) {
	now := time.Now().UTC()
	sessions, events, records, recipients, sender, audit := sweepFixture(now)
	svc := NewSweepService(sessions, events, records, recipients, sender, audit, nil, zap.NewNop())

	result := svc.RunSweep(context.Background(), now)

	assert.Equal(t, []int{2025}, result.BroadcastsSent)
	assert.True(t, records.broadcastSent[2025])
	assert.Contains(t, events.completed, "ev-broadcast")
	require.NotEmpty(t, sender.sent)
	assert.Equal(t, []string{"lib@example.com"}, sender.sent[0].To)
}

func TestSweepBroadcastAlreadySentByProvider(t *testing.T) {
	now := time.Now().UTC()
	sessions, events, records, recipients, sender, audit := sweepFixture(now)
	records.broadcastSent[2025] = true
	// Keep the session out of the opening step so only the broadcast path runs.
	sessions.sessions[2025].NotifiedOnOpen = true
	svc := NewSweepService(sessions, events, records, recipients, sender, audit, nil, zap.NewNop())

	result := svc.RunSweep(context.Background(), now)

	assert.Empty(t, result.BroadcastsSent)
	assert.Empty(t, sender.sent)
	assert.Contains(t, events.completed, "ev-broadcast")
	require.NotNil(t, events.events["ev-broadcast"].Notes)
	assert.Equal(t, "delivered by provider scheduled send", *events.events["ev-broadcast"].Notes)
}

func TestSweepOpensDueSession(t *testing.T) {
	now := time.Now().UTC()
	sessions, events, records, recipients, sender, audit := sweepFixture(now)
	events.events["ev-broadcast"].Status = models.EventStatusCompleted
	svc := NewSweepService(sessions, events, records, recipients, sender, audit, nil, zap.NewNop())

	result := svc.RunSweep(context.Background(), now)

	assert.Equal(t, []int{2025}, result.Opened)
	assert.Empty(t, result.Errors)
	assert.True(t, records.openYears[2025])
	assert.True(t, sessions.sessions[2025].IsOpen)
	assert.True(t, sessions.sessions[2025].NotifiedOnOpen)
	// User notice plus admin notice.
	assert.Len(t, sender.sent, 2)
}

func TestSweepClosesDueSession(t *testing.T) {
	now := time.Now().UTC()
	sessions, events, records, recipients, sender, audit := sweepFixture(now)
	delete(events.events, "ev-broadcast")
	s := sessions.sessions[2025]
	s.IsOpen = true
	s.NotifiedOnOpen = true
	s.ClosingDate = now.Add(-time.Minute)
	svc := NewSweepService(sessions, events, records, recipients, sender, audit, nil, zap.NewNop())

	result := svc.RunSweep(context.Background(), now)

	assert.Equal(t, []int{2025}, result.Closed)
	assert.Empty(t, result.Errors)
	assert.False(t, s.IsOpen)
	assert.True(t, s.NotifiedOnClose)
	assert.Len(t, sender.sent, 2)
}

func TestSweepClosingVerificationGate(t *testing.T) {
	now := time.Now().UTC()
	sessions, events, records, recipients, sender, audit := sweepFixture(now)
	delete(events.events, "ev-broadcast")
	s := sessions.sessions[2025]
	s.IsOpen = true
	s.NotifiedOnOpen = true
	s.ClosingDate = now.Add(-time.Minute)
	records.stillOpen[2025] = 3
	svc := NewSweepService(sessions, events, records, recipients, sender, audit, nil, zap.NewNop())

	result := svc.RunSweep(context.Background(), now)

	assert.Empty(t, result.Closed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "3 record(s) still open")
	// The transition did not commit: no notices went out, flags untouched.
	assert.Empty(t, sender.sent)
	assert.True(t, s.IsOpen)
	assert.False(t, s.NotifiedOnClose)

	// Once the records actually close, the next pass succeeds.
	records.stillOpen[2025] = 0
	result = svc.RunSweep(context.Background(), now)
	assert.Equal(t, []int{2025}, result.Closed)
}

func TestSweepRerunSendsNothing(t *testing.T) {
	now := time.Now().UTC()
	sessions, events, records, recipients, sender, audit := sweepFixture(now)
	svc := NewSweepService(sessions, events, records, recipients, sender, audit, nil, zap.NewNop())

	first := svc.RunSweep(context.Background(), now)
	require.Empty(t, first.Errors)
	sentAfterFirst := len(sender.sent)

	second := svc.RunSweep(context.Background(), now)
	assert.Empty(t, second.BroadcastsSent)
	assert.Empty(t, second.Opened)
	assert.Empty(t, second.Closed)
	assert.Empty(t, second.Errors)
	assert.Len(t, sender.sent, sentAfterFirst)
}

func TestSweepOpensThenClosesInOnePass(t *testing.T) {
	// After a long trigger outage the same session can be due for opening and
	// closing in a single pass.
	now := time.Now().UTC()
	sessions, events, records, recipients, sender, audit := sweepFixture(now)
	s := sessions.sessions[2025]
	s.ClosingDate = now.Add(-time.Minute)
	svc := NewSweepService(sessions, events, records, recipients, sender, audit, nil, zap.NewNop())

	result := svc.RunSweep(context.Background(), now)

	assert.Equal(t, []int{2025}, result.BroadcastsSent)
	assert.Equal(t, []int{2025}, result.Opened)
	assert.Equal(t, []int{2025}, result.Closed)
	assert.Empty(t, result.Errors)
	assert.False(t, s.IsOpen)
	assert.True(t, s.NotifiedOnClose)
}

func TestSweepGatewayFailureDoesNotAbortPass(t *testing.T) {
	now := time.Now().UTC()
	sessions, events, records, recipients, sender, audit := sweepFixture(now)
	sender.sendErr = errors.New("gateway down")
	svc := NewSweepService(sessions, events, records, recipients, sender, audit, nil, zap.NewNop())

	result := svc.RunSweep(context.Background(), now)

	assert.Empty(t, result.BroadcastsSent)
	assert.Empty(t, result.Opened)
	// Both the broadcast and the opening report their failure.
	require.Len(t, result.Errors, 2)
	// Nothing committed: the next pass retries both.
	assert.False(t, records.broadcastSent[2025])
	assert.False(t, sessions.sessions[2025].NotifiedOnOpen)

	sender.sendErr = nil
	result = svc.RunSweep(context.Background(), now)
	assert.Equal(t, []int{2025}, result.BroadcastsSent)
	assert.Equal(t, []int{2025}, result.Opened)
	assert.Empty(t, result.Errors)
}

func TestSweepWritesAuditTrail(t *testing.T) {
	now := time.Now().UTC()
	sessions, events, records, recipients, sender, audit := sweepFixture(now)
	svc := NewSweepService(sessions, events, records, recipients, sender, audit, nil, zap.NewNop())

	svc.RunSweep(context.Background(), now)

	var actions []string
	for _, log := range audit.logs {
		actions = append(actions, log.Action)
	}
	assert.Contains(t, actions, models.AuditActionBroadcastSend)
	assert.Contains(t, actions, models.AuditActionSessionOpen)
	assert.Contains(t, actions, models.AuditActionSweepRun)
}
