package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/docuease/copilot/internal/emr"
)

// EMRRepository implements emr.Store with PostgreSQL.
type EMRRepository struct {
	db *gorm.DB
}

// NewEMRRepository creates an EMRRepository.
func NewEMRRepository(db *gorm.DB) *EMRRepository {
	return &EMRRepository{db: db}
}

func (r *EMRRepository) GetPatient(ctx context.Context, id string) (*emr.Patient, error) {
	var model PatientModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, emr.ErrNotFound
		}
		return nil, fmt.Errorf("getting patient: %w", err)
	}
	return toPatientDomain(&model), nil
}

// rangeScope applies the date window to the named column. Zero bounds are
// unbounded on that side.
func rangeScope(column string, rng emr.Range) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if !rng.From.IsZero() {
			db = db.Where(column+" >= ?", rng.From)
		}
		if !rng.To.IsZero() {
			db = db.Where(column+" <= ?", rng.To)
		}
		return db
	}
}

func (r *EMRRepository) ListEncounters(ctx context.Context, patientID string, rng emr.Range) ([]emr.Encounter, error) {
	var models []EncounterModel
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Scopes(rangeScope("encounter_date", rng)).
		Order("encounter_date DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing encounters: %w", err)
	}
	out := make([]emr.Encounter, len(models))
	for i := range models {
		out[i] = toEncounterDomain(&models[i])
	}
	return out, nil
}

func (r *EMRRepository) ListLabResults(ctx context.Context, patientID string, rng emr.Range) ([]emr.LabResult, error) {
	var models []LabResultModel
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Scopes(rangeScope("result_date", rng)).
		Order("result_date DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing lab results: %w", err)
	}
	out := make([]emr.LabResult, len(models))
	for i := range models {
		out[i] = toLabDomain(&models[i])
	}
	return out, nil
}

func (r *EMRRepository) ListMedications(ctx context.Context, patientID string, rng emr.Range) ([]emr.Medication, error) {
	var models []MedicationModel
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Scopes(rangeScope("prescribed_date", rng)).
		Order("prescribed_date DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing medications: %w", err)
	}
	out := make([]emr.Medication, len(models))
	for i := range models {
		out[i] = toMedicationDomain(&models[i])
	}
	return out, nil
}

func (r *EMRRepository) ListAppointments(ctx context.Context, patientID string, rng emr.Range) ([]emr.Appointment, error) {
	var models []AppointmentModel
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Scopes(rangeScope("scheduled_date", rng)).
		Order("scheduled_date ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing appointments: %w", err)
	}
	out := make([]emr.Appointment, len(models))
	for i := range models {
		out[i] = toAppointmentDomain(&models[i])
	}
	return out, nil
}

func (r *EMRRepository) GetLabResult(ctx context.Context, id string) (*emr.LabResult, error) {
	var model LabResultModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, emr.ErrNotFound
		}
		return nil, fmt.Errorf("getting lab result: %w", err)
	}
	lab := toLabDomain(&model)
	return &lab, nil
}

func (r *EMRRepository) UpdateLabResult(ctx context.Context, lab *emr.LabResult) error {
	result := r.db.WithContext(ctx).
		Model(&LabResultModel{}).
		Where("id = ?", lab.ID).
		Updates(map[string]any{
			"reviewed":    lab.Reviewed,
			"review_note": lab.ReviewNote,
			"reviewed_by": lab.ReviewedBy,
			"reviewed_at": lab.ReviewedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("updating lab result: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return emr.ErrNotFound
	}
	return nil
}

func (r *EMRRepository) GetMedication(ctx context.Context, id string) (*emr.Medication, error) {
	var model MedicationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, emr.ErrNotFound
		}
		return nil, fmt.Errorf("getting medication: %w", err)
	}
	med := toMedicationDomain(&model)
	return &med, nil
}

func (r *EMRRepository) UpdateMedication(ctx context.Context, med *emr.Medication) error {
	result := r.db.WithContext(ctx).
		Model(&MedicationModel{}).
		Where("id = ?", med.ID).
		Updates(map[string]any{
			"dosage":    med.Dosage,
			"frequency": med.Frequency,
			"active":    med.Active,
		})
	if result.Error != nil {
		return fmt.Errorf("updating medication: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return emr.ErrNotFound
	}
	return nil
}

func (r *EMRRepository) CreateAppointment(ctx context.Context, appt *emr.Appointment) error {
	model := toAppointmentModel(appt)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("creating appointment: %w", err)
	}
	return nil
}

func (r *EMRRepository) CreateNote(ctx context.Context, note *emr.ProgressNote) error {
	model := ProgressNoteModel{
		ID:          note.ID,
		PatientID:   note.PatientID,
		EncounterID: note.EncounterID,
		Content:     note.Content,
		Status:      note.Status,
		AIGenerated: note.AIGenerated,
		CreatedAt:   note.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("creating progress note: %w", err)
	}
	return nil
}

// compile-time interface check
var _ emr.Store = (*EMRRepository)(nil)
