package postgres

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/docuease/copilot/internal/audit"
	"github.com/docuease/copilot/internal/emr"
	"github.com/docuease/copilot/internal/pending"
)

func marshalJSONB(v any) JSONB {
	if v == nil {
		return JSONB("{}")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return JSONB("{}")
	}
	return JSONB(b)
}

func unmarshalStrings(j JSONB) []string {
	if len(j) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(j, &out); err != nil {
		return nil
	}
	return out
}

func unmarshalMap(j JSONB) map[string]any {
	if len(j) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(j, &out); err != nil {
		return nil
	}
	return out
}

// --- Patient ---

func toPatientDomain(m *PatientModel) *emr.Patient {
	return &emr.Patient{
		ID:                  m.ID,
		FirstName:           m.FirstName,
		LastName:            m.LastName,
		DateOfBirth:         m.DateOfBirth,
		Gender:              m.Gender,
		MedicalRecordNumber: m.MedicalRecordNumber,
		Allergies:           unmarshalStrings(m.Allergies),
		AssignedProvider:    m.AssignedProvider,
		CareTeam:            unmarshalStrings(m.CareTeam),
		PrivacyLevel:        m.PrivacyLevel,
		CreatedAt:           m.CreatedAt,
	}
}

// --- Encounter ---

func toEncounterDomain(m *EncounterModel) emr.Encounter {
	return emr.Encounter{
		ID:             m.ID,
		PatientID:      m.PatientID,
		ProviderID:     m.ProviderID,
		EncounterDate:  m.EncounterDate,
		Type:           m.Type,
		ChiefComplaint: m.ChiefComplaint,
		Assessment:     m.Assessment,
		Plan:           m.Plan,
	}
}

// --- LabResult ---

func toLabDomain(m *LabResultModel) emr.LabResult {
	return emr.LabResult{
		ID:         m.ID,
		PatientID:  m.PatientID,
		TestName:   m.TestName,
		Value:      m.Value,
		Unit:       m.Unit,
		Status:     m.Status,
		ResultDate: m.ResultDate,
		Reviewed:   m.Reviewed,
		ReviewNote: m.ReviewNote,
		ReviewedBy: m.ReviewedBy,
		ReviewedAt: m.ReviewedAt,
	}
}

// --- Medication ---

func toMedicationDomain(m *MedicationModel) emr.Medication {
	return emr.Medication{
		ID:             m.ID,
		PatientID:      m.PatientID,
		Name:           m.Name,
		Dosage:         m.Dosage,
		Frequency:      m.Frequency,
		IsControlled:   m.IsControlled,
		PrescribedDate: m.PrescribedDate,
		PrescribedBy:   m.PrescribedBy,
		Active:         m.Active,
	}
}

// --- Appointment ---

func toAppointmentModel(a *emr.Appointment) AppointmentModel {
	return AppointmentModel{
		ID:              a.ID,
		PatientID:       a.PatientID,
		ProviderID:      a.ProviderID,
		ScheduledDate:   a.ScheduledDate,
		DurationMinutes: a.DurationMinutes,
		Type:            a.Type,
		Reason:          a.Reason,
		Status:          a.Status,
		CreatedByAI:     a.CreatedByAI,
		CreatedAt:       a.CreatedAt,
	}
}

func toAppointmentDomain(m *AppointmentModel) emr.Appointment {
	return emr.Appointment{
		ID:              m.ID,
		PatientID:       m.PatientID,
		ProviderID:      m.ProviderID,
		ScheduledDate:   m.ScheduledDate,
		DurationMinutes: m.DurationMinutes,
		Type:            m.Type,
		Reason:          m.Reason,
		Status:          m.Status,
		CreatedByAI:     m.CreatedByAI,
		CreatedAt:       m.CreatedAt,
	}
}

// --- PendingOperation ---

func toPendingModel(op *pending.Operation) PendingOperationModel {
	var confirmedAt *time.Time
	if !op.ConfirmedAt.IsZero() {
		t := op.ConfirmedAt
		confirmedAt = &t
	}
	return PendingOperationModel{
		ID:                op.ID,
		OperationType:     op.OperationType,
		ToolName:          op.ToolName,
		ActorID:           op.ActorID,
		PatientID:         op.PatientID,
		Args:              marshalJSONB(op.Args),
		RiskLevel:         op.RiskLevel,
		EstimatedDuration: op.EstimatedDuration,
		Status:            op.Status.String(),
		ConfirmedBy:       op.ConfirmedBy,
		ConfirmedAt:       confirmedAt,
		CreatedAt:         op.CreatedAt,
		ExpiresAt:         op.ExpiresAt,
	}
}

func toPendingDomain(m *PendingOperationModel) *pending.Operation {
	op := &pending.Operation{
		ID:                m.ID,
		OperationType:     m.OperationType,
		ToolName:          m.ToolName,
		ActorID:           m.ActorID,
		PatientID:         m.PatientID,
		Args:              unmarshalMap(m.Args),
		RiskLevel:         m.RiskLevel,
		EstimatedDuration: m.EstimatedDuration,
		Status:            pending.ParseStatus(m.Status),
		ConfirmedBy:       m.ConfirmedBy,
		CreatedAt:         m.CreatedAt,
		ExpiresAt:         m.ExpiresAt,
	}
	if m.ConfirmedAt != nil {
		op.ConfirmedAt = *m.ConfirmedAt
	}
	return op
}

// --- AuditEntry ---

func toAuditModel(e *audit.Entry) AuditEntryModel {
	id := e.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return AuditEntryModel{
		ID:                 id,
		ActorID:            e.ActorID,
		ActorEmail:         e.ActorEmail,
		ActorRole:          e.ActorRole,
		AgentID:            e.AgentID,
		Action:             e.Action,
		ToolName:           e.ToolName,
		PatientID:          e.PatientID,
		ResourceType:       e.ResourceType,
		ResourceID:         e.ResourceID,
		InputArguments:     marshalJSONB(e.InputArguments),
		ResultStatus:       e.ResultStatus,
		ResultData:         marshalJSONB(e.ResultData),
		ErrorMessage:       e.ErrorMessage,
		ConfirmationStatus: e.ConfirmationStatus,
		ConfirmedBy:        e.ConfirmedBy,
		RequestedAt:        e.RequestedAt,
		CompletedAt:        e.CompletedAt,
		DurationMS:         e.DurationMS,
	}
}

func toAuditDomain(m *AuditEntryModel) audit.Entry {
	return audit.Entry{
		ID:                 m.ID,
		ActorID:            m.ActorID,
		ActorEmail:         m.ActorEmail,
		ActorRole:          m.ActorRole,
		AgentID:            m.AgentID,
		Action:             m.Action,
		ToolName:           m.ToolName,
		PatientID:          m.PatientID,
		ResourceType:       m.ResourceType,
		ResourceID:         m.ResourceID,
		InputArguments:     unmarshalMap(m.InputArguments),
		ResultStatus:       m.ResultStatus,
		ResultData:         unmarshalMap(m.ResultData),
		ErrorMessage:       m.ErrorMessage,
		ConfirmationStatus: m.ConfirmationStatus,
		ConfirmedBy:        m.ConfirmedBy,
		RequestedAt:        m.RequestedAt,
		CompletedAt:        m.CompletedAt,
		DurationMS:         m.DurationMS,
	}
}
