package postgres

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JSONB is a json.RawMessage that maps onto GORM JSONB columns.
// SQLite stores the same column as TEXT.
type JSONB json.RawMessage

// PatientModel maps to the "patients" table.
type PatientModel struct {
	ID                  string    `gorm:"primaryKey"`
	FirstName           string    `gorm:"not null"`
	LastName            string    `gorm:"not null"`
	DateOfBirth         time.Time `gorm:"not null"`
	Gender              string
	MedicalRecordNumber string `gorm:"uniqueIndex"`
	Allergies           JSONB  `gorm:"type:jsonb;not null;default:'[]'"`
	AssignedProvider    string
	CareTeam            JSONB `gorm:"type:jsonb;not null;default:'[]'"`
	PrivacyLevel        string `gorm:"not null;default:'standard'"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (PatientModel) TableName() string { return "patients" }

// EncounterModel maps to the "encounters" table.
type EncounterModel struct {
	ID             string    `gorm:"primaryKey"`
	PatientID      string    `gorm:"not null;index"`
	ProviderID     string
	EncounterDate  time.Time `gorm:"not null;index"`
	Type           string
	ChiefComplaint string `gorm:"type:text"`
	Assessment     string `gorm:"type:text"`
	Plan           string `gorm:"type:text"`
	CreatedAt      time.Time
}

func (EncounterModel) TableName() string { return "encounters" }

// LabResultModel maps to the "lab_results" table.
type LabResultModel struct {
	ID         string    `gorm:"primaryKey"`
	PatientID  string    `gorm:"not null;index"`
	TestName   string    `gorm:"not null"`
	Value      string    `gorm:"not null"`
	Unit       string
	Status     string    `gorm:"not null;default:'Normal'"`
	ResultDate time.Time `gorm:"not null;index"`
	Reviewed   bool      `gorm:"not null;default:false"`
	ReviewNote string    `gorm:"type:text"`
	ReviewedBy string
	ReviewedAt *time.Time
	CreatedAt  time.Time
}

func (LabResultModel) TableName() string { return "lab_results" }

// MedicationModel maps to the "medications" table.
type MedicationModel struct {
	ID             string    `gorm:"primaryKey"`
	PatientID      string    `gorm:"not null;index"`
	Name           string    `gorm:"not null"`
	Dosage         string
	Frequency      string
	IsControlled   bool `gorm:"not null;default:false"`
	PrescribedDate time.Time
	PrescribedBy   string
	Active         bool `gorm:"not null;default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (MedicationModel) TableName() string { return "medications" }

// AppointmentModel maps to the "appointments" table.
type AppointmentModel struct {
	ID              string    `gorm:"primaryKey"`
	PatientID       string    `gorm:"not null;index"`
	ProviderID      string
	ScheduledDate   time.Time `gorm:"not null;index"`
	DurationMinutes int       `gorm:"not null;default:30"`
	Type            string    `gorm:"not null"`
	Reason          string    `gorm:"type:text"`
	Status          string    `gorm:"not null;default:'scheduled'"`
	CreatedByAI     bool      `gorm:"not null;default:false"`
	CreatedAt       time.Time
}

func (AppointmentModel) TableName() string { return "appointments" }

// ProgressNoteModel maps to the "progress_notes" table.
type ProgressNoteModel struct {
	ID          string `gorm:"primaryKey"`
	PatientID   string `gorm:"not null;index"`
	EncounterID string
	Content     string `gorm:"type:text;not null"`
	Status      string `gorm:"not null;default:'draft'"`
	AIGenerated bool   `gorm:"not null;default:false"`
	CreatedAt   time.Time
}

func (ProgressNoteModel) TableName() string { return "progress_notes" }

// PendingOperationModel maps to the "pending_operations" table.
// Status is stored as text; consumption is a conditional update keyed on
// status = 'pending' so exactly one confirmation can win.
type PendingOperationModel struct {
	ID                string `gorm:"primaryKey"`
	OperationType     string `gorm:"not null"`
	ToolName          string `gorm:"not null"`
	ActorID           string `gorm:"not null;index"`
	PatientID         string `gorm:"index"`
	Args              JSONB  `gorm:"type:jsonb;not null;default:'{}'"`
	RiskLevel         string `gorm:"not null"`
	EstimatedDuration string
	Status            string `gorm:"not null;default:'pending';index"`
	ConfirmedBy       string
	ConfirmedAt       *time.Time
	CreatedAt         time.Time
	ExpiresAt         time.Time `gorm:"index"`
}

func (PendingOperationModel) TableName() string { return "pending_operations" }

// AuditEntryModel maps to the "audit_entries" table.
// No UpdatedAt or DeletedAt; the audit log is append-only and immutable.
type AuditEntryModel struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	ActorID            string    `gorm:"index"`
	ActorEmail         string
	ActorRole          string
	AgentID            string
	Action             string `gorm:"not null;index"`
	ToolName           string
	PatientID          string `gorm:"index"`
	ResourceType       string
	ResourceID         string
	InputArguments     JSONB  `gorm:"type:jsonb;not null;default:'{}'"`
	ResultStatus       string `gorm:"not null"`
	ResultData         JSONB  `gorm:"type:jsonb;not null;default:'{}'"`
	ErrorMessage       string `gorm:"type:text"`
	ConfirmationStatus string
	ConfirmedBy        string
	RequestedAt        time.Time `gorm:"not null;index"`
	CompletedAt        *time.Time
	DurationMS         int64
}

func (AuditEntryModel) TableName() string { return "audit_entries" }

// PatientEmbeddingModel maps to the "patient_embeddings" table. Rows hold
// indexed snippets of patient context used by the chat retriever.
type PatientEmbeddingModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	PatientID   string    `gorm:"not null;index"`
	ContentType string    `gorm:"not null"`
	ContentText string    `gorm:"type:text;not null"`
	CreatedAt   time.Time
}

func (PatientEmbeddingModel) TableName() string { return "patient_embeddings" }
