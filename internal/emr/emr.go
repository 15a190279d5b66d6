// Package emr defines the clinical record types and the data-store contract
// the co-pilot core reads and writes through. The store is a thin collaborator:
// point lookups, inserts, and updates with simple equality and range filters.
// No transactional semantics are required here; the only CAS in the system
// lives in the pending-operation store.
package emr

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by point lookups when no record matches.
var ErrNotFound = errors.New("record not found")

// Patient is the demographic root record.
type Patient struct {
	ID                  string    `json:"id"`
	FirstName           string    `json:"first_name"`
	LastName            string    `json:"last_name"`
	DateOfBirth         time.Time `json:"date_of_birth"`
	Gender              string    `json:"gender,omitempty"`
	MedicalRecordNumber string    `json:"medical_record_number,omitempty"`
	Allergies           []string  `json:"allergies,omitempty"`
	AssignedProvider    string    `json:"assigned_provider,omitempty"`
	CareTeam            []string  `json:"care_team,omitempty"`
	PrivacyLevel        string    `json:"privacy_level,omitempty"` // "standard" or "vip"
	CreatedAt           time.Time `json:"created_at"`
}

// FullName returns "First Last" for display and summaries.
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Encounter is a single clinical visit.
type Encounter struct {
	ID            string    `json:"id"`
	PatientID     string    `json:"patient_id"`
	ProviderID    string    `json:"provider_id,omitempty"`
	EncounterDate time.Time `json:"encounter_date"`
	Type          string    `json:"type,omitempty"`
	ChiefComplaint string   `json:"chief_complaint,omitempty"`
	Assessment    string    `json:"assessment,omitempty"`
	Plan          string    `json:"plan,omitempty"`
}

// LabResult is one reported lab value.
type LabResult struct {
	ID         string    `json:"id"`
	PatientID  string    `json:"patient_id"`
	TestName   string    `json:"test_name"`
	Value      string    `json:"value"`
	Unit       string    `json:"unit,omitempty"`
	Status     string    `json:"status"` // "Normal", "Abnormal", "Critical"
	ResultDate time.Time `json:"result_date"`
	Reviewed   bool      `json:"reviewed"`
	ReviewNote string    `json:"review_note,omitempty"`
	ReviewedBy string    `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}

// Medication is an active or historical prescription.
type Medication struct {
	ID             string    `json:"id"`
	PatientID      string    `json:"patient_id"`
	Name           string    `json:"name"`
	Dosage         string    `json:"dosage,omitempty"`
	Frequency      string    `json:"frequency,omitempty"`
	IsControlled   bool      `json:"is_controlled"`
	PrescribedDate time.Time `json:"prescribed_date"`
	PrescribedBy   string    `json:"prescribed_by,omitempty"`
	Active         bool      `json:"active"`
}

// Appointment is a scheduled or completed visit slot.
type Appointment struct {
	ID              string    `json:"id"`
	PatientID       string    `json:"patient_id"`
	ProviderID      string    `json:"provider_id,omitempty"`
	ScheduledDate   time.Time `json:"scheduled_date"`
	DurationMinutes int       `json:"duration_minutes"`
	Type            string    `json:"type"`
	Reason          string    `json:"reason,omitempty"`
	Status          string    `json:"status"` // "scheduled", "completed", "cancelled"
	CreatedByAI     bool      `json:"created_by_ai"`
	CreatedAt       time.Time `json:"created_at"`
}

// ProgressNote is clinical documentation. AI-generated notes are always
// created in "draft" status; finalization is a human act.
type ProgressNote struct {
	ID          string    `json:"id"`
	PatientID   string    `json:"patient_id"`
	EncounterID string    `json:"encounter_id,omitempty"`
	Content     string    `json:"content"`
	Status      string    `json:"status"` // "draft" or "final"
	AIGenerated bool      `json:"ai_generated"`
	CreatedAt   time.Time `json:"created_at"`
}

// Range bounds a date filter. Zero values mean unbounded on that side.
type Range struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls within the range.
func (r Range) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// Store is the data-store collaborator contract. Implementations back onto
// the hosted database; the in-memory fake backs tests.
type Store interface {
	GetPatient(ctx context.Context, id string) (*Patient, error)

	ListEncounters(ctx context.Context, patientID string, r Range) ([]Encounter, error)
	ListLabResults(ctx context.Context, patientID string, r Range) ([]LabResult, error)
	ListMedications(ctx context.Context, patientID string, r Range) ([]Medication, error)
	ListAppointments(ctx context.Context, patientID string, r Range) ([]Appointment, error)

	GetLabResult(ctx context.Context, id string) (*LabResult, error)
	UpdateLabResult(ctx context.Context, lab *LabResult) error

	GetMedication(ctx context.Context, id string) (*Medication, error)
	UpdateMedication(ctx context.Context, med *Medication) error

	CreateAppointment(ctx context.Context, appt *Appointment) error
	CreateNote(ctx context.Context, note *ProgressNote) error
}
