package clinical

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docuease/copilot/internal/emr"
	"github.com/docuease/copilot/internal/policy"
	"github.com/docuease/copilot/internal/tools"
)

// MedicationUpdater changes dosage, frequency, or active status of an
// existing prescription. Statically high risk: medication changes reach
// the patient directly, and controlled substances escalate further
// through policy predicates.
type MedicationUpdater struct {
	store  emr.Store
	logger *slog.Logger
}

// NewMedicationUpdater creates the update_medication tool.
func NewMedicationUpdater(store emr.Store, logger *slog.Logger) *MedicationUpdater {
	return &MedicationUpdater{store: store, logger: logger}
}

func (m *MedicationUpdater) Name() string { return "update_medication" }
func (m *MedicationUpdater) Description() string {
	return "Update dosage, frequency, or active status of an existing medication"
}
func (m *MedicationUpdater) RequiredAction() string { return policy.ActionUpdateMedication }
func (m *MedicationUpdater) RiskLevel() policy.RiskLevel { return policy.RiskHigh }
func (m *MedicationUpdater) ConfirmationRequired() bool { return true }
func (m *MedicationUpdater) EstimatedDuration() string { return "2-3s" }

func (m *MedicationUpdater) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"patient_id":    map[string]any{"type": "string", "description": "Patient UUID"},
			"medication_id": map[string]any{"type": "string", "description": "Medication UUID"},
			"dosage":        map[string]any{"type": "string", "description": "New dosage, e.g. 20mg"},
			"frequency":     map[string]any{"type": "string", "description": "New frequency, e.g. twice daily"},
			"active":        map[string]any{"type": "boolean", "description": "Set false to discontinue"},
			"is_controlled": map[string]any{"type": "boolean", "description": "Set when the medication is a controlled substance"},
		},
		"required": []string{"patient_id", "medication_id"},
	}
}

func (m *MedicationUpdater) Validate(args map[string]any) error {
	var bad []string
	if _, ok := stringArg(args, "patient_id"); !ok {
		bad = append(bad, "patient_id")
	}
	if _, ok := stringArg(args, "medication_id"); !ok {
		bad = append(bad, "medication_id")
	}
	_, hasDosage := stringArg(args, "dosage")
	_, hasFreq := stringArg(args, "frequency")
	_, hasActive := boolArg(args, "active")
	if !hasDosage && !hasFreq && !hasActive {
		bad = append(bad, "dosage|frequency|active")
	}
	if len(bad) > 0 {
		return &tools.ArgumentError{Tool: m.Name(), Fields: bad}
	}
	return nil
}

func (m *MedicationUpdater) Execute(ctx context.Context, args map[string]any) (*tools.Result, error) {
	medicationID, _ := stringArg(args, "medication_id")
	patientID, _ := stringArg(args, "patient_id")

	med, err := m.store.GetMedication(ctx, medicationID)
	if err != nil {
		return nil, fmt.Errorf("medication lookup: %w", err)
	}
	if med.PatientID != patientID {
		return nil, fmt.Errorf("medication %s does not belong to patient %s: %w", medicationID, patientID, emr.ErrNotFound)
	}

	changed := make([]string, 0, 3)
	if dosage, ok := stringArg(args, "dosage"); ok {
		med.Dosage = dosage
		changed = append(changed, "dosage")
	}
	if freq, ok := stringArg(args, "frequency"); ok {
		med.Frequency = freq
		changed = append(changed, "frequency")
	}
	if active, ok := boolArg(args, "active"); ok {
		med.Active = active
		changed = append(changed, "active")
	}

	if err := m.store.UpdateMedication(ctx, med); err != nil {
		return nil, fmt.Errorf("update medication: %w", err)
	}

	m.logger.InfoContext(ctx, "medication updated",
		"medication_id", med.ID, "patient_id", med.PatientID,
		"changed", changed, "is_controlled", med.IsControlled,
		"actor_id", tools.ActorIDFromContext(ctx))

	return &tools.Result{
		Summary: fmt.Sprintf("%s updated (%d field(s) changed)", med.Name, len(changed)),
		Payload: map[string]any{
			"medication_id":  med.ID,
			"patient_id":     med.PatientID,
			"name":           med.Name,
			"dosage":         med.Dosage,
			"frequency":      med.Frequency,
			"active":         med.Active,
			"is_controlled":  med.IsControlled,
			"fields_changed": changed,
		},
	}, nil
}
