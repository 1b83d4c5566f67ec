package models

import "time"

// EventKind identifies a scheduled lifecycle transition.
type EventKind string

const (
	EventKindBroadcast   EventKind = "BROADCAST"
	EventKindFormOpening EventKind = "FORM_OPENING"
	EventKindFormClosing EventKind = "FORM_CLOSING"
)

// EventStatus is terminal once it leaves PENDING.
type EventStatus string

const (
	EventStatusPending   EventStatus = "PENDING"
	EventStatusCompleted EventStatus = "COMPLETED"
	EventStatusCancelled EventStatus = "CANCELLED"
)

// SessionMode selects how a freshly created session takes effect.
type SessionMode string

const (
	SessionModeImmediate SessionMode = "IMMEDIATE"
	SessionModeScheduled SessionMode = "SCHEDULED"
)

// SurveySession tracks one academic year's data-collection window.
type SurveySession struct {
	ID               string    `db:"id" json:"id"`
	AcademicYear     int       `db:"academic_year" json:"academic_year"`
	OpeningDate      time.Time `db:"opening_date" json:"opening_date"`
	ClosingDate      time.Time `db:"closing_date" json:"closing_date"`
	IsOpen           bool      `db:"is_open" json:"is_open"`
	NotifiedOnOpen   bool      `db:"notified_on_open" json:"notified_on_open"`
	NotifiedOnClose  bool      `db:"notified_on_close" json:"notified_on_close"`
	BroadcastSubject string    `db:"broadcast_subject" json:"broadcast_subject"`
	BroadcastBody    string    `db:"broadcast_body" json:"broadcast_body"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Active reports whether the session's window has not yet closed.
func (s SurveySession) Active(now time.Time) bool {
	return s.ClosingDate.After(now)
}

// ScheduledEvent is one pending lifecycle transition tied to a session.
type ScheduledEvent struct {
	ID             string      `db:"id" json:"id"`
	Kind           EventKind   `db:"kind" json:"kind"`
	AcademicYear   int         `db:"academic_year" json:"academic_year"`
	ScheduledAt    time.Time   `db:"scheduled_at" json:"scheduled_at"`
	Status         EventStatus `db:"status" json:"status"`
	ProviderHandle *string     `db:"provider_handle" json:"provider_handle,omitempty"`
	Notes          *string     `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	CompletedAt    *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt    *time.Time  `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// SessionFilter narrows session listings.
type SessionFilter struct {
	AcademicYear int
	IsOpen       *bool
	Page         int
	PageSize     int
}

// EventFilter narrows event listings.
type EventFilter struct {
	AcademicYear int
	Kind         EventKind
	Status       EventStatus
	Page         int
	PageSize     int
}
