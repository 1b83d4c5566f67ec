package models

import "time"

// Library is a participating institution reporting yearly statistics.
type Library struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Region       string    `db:"region" json:"region"`
	ContactEmail string    `db:"contact_email" json:"contact_email"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// LibraryFormStatus is the per-(library, year) editing flag pair the
// orchestrator only ever touches in bulk.
type LibraryFormStatus struct {
	LibraryID     string    `db:"library_id" json:"library_id"`
	AcademicYear  int       `db:"academic_year" json:"academic_year"`
	IsOpen        bool      `db:"is_open" json:"is_open"`
	BroadcastSent bool      `db:"broadcast_sent" json:"broadcast_sent"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// OpenFormRecord pairs a still-open form record with its owning library,
// for diagnosing a closing transition that keeps failing verification.
type OpenFormRecord struct {
	Library Library           `json:"library"`
	Status  LibraryFormStatus `json:"status"`
}
