package clinical

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docuease/copilot/internal/emr"
	"github.com/docuease/copilot/internal/policy"
	"github.com/docuease/copilot/internal/tools"
)

const (
	minAppointmentMinutes     = 15
	maxAppointmentMinutes     = 180
	defaultAppointmentMinutes = 30
	defaultScheduleLead       = 7 * 24 * time.Hour
)

// Scheduler books appointments. A booking is an authoritative write, so
// this tool always goes through the confirmation workflow.
type Scheduler struct {
	store  emr.Store
	logger *slog.Logger
	now    clock
}

// NewScheduler creates the create_appointment tool.
func NewScheduler(store emr.Store, logger *slog.Logger) *Scheduler {
	return &Scheduler{store: store, logger: logger, now: realClock}
}

// WithClock overrides the time source. Test hook.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

func (s *Scheduler) Name() string { return "create_appointment" }
func (s *Scheduler) Description() string {
	return "Schedule a new appointment for a patient"
}
func (s *Scheduler) RequiredAction() string { return policy.ActionUseAIAgent }
func (s *Scheduler) RiskLevel() policy.RiskLevel { return policy.RiskMedium }
func (s *Scheduler) ConfirmationRequired() bool { return true }
func (s *Scheduler) EstimatedDuration() string { return "2-3s" }

func (s *Scheduler) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"patient_id":       map[string]any{"type": "string", "description": "Patient UUID"},
			"provider_id":      map[string]any{"type": "string", "description": "Provider UUID (optional)"},
			"appointment_type": map[string]any{"type": "string", "description": "Visit type, e.g. follow-up"},
			"preferred_date":   map[string]any{"type": "string", "description": "RFC 3339 timestamp (default: one week out)"},
			"duration_minutes": map[string]any{"type": "number", "description": "15-180 minutes (default: 30)"},
			"reason":           map[string]any{"type": "string", "description": "Reason for visit"},
		},
		"required": []string{"patient_id", "appointment_type"},
	}
}

func (s *Scheduler) Validate(args map[string]any) error {
	var bad []string
	if _, ok := stringArg(args, "patient_id"); !ok {
		bad = append(bad, "patient_id")
	}
	if _, ok := stringArg(args, "appointment_type"); !ok {
		bad = append(bad, "appointment_type")
	}
	if raw := optionalString(args, "preferred_date"); raw != "" {
		if _, err := time.Parse(time.RFC3339, raw); err != nil {
			bad = append(bad, "preferred_date")
		}
	}
	if _, present := args["duration_minutes"]; present {
		d, ok := intArg(args, "duration_minutes")
		if !ok || d < minAppointmentMinutes || d > maxAppointmentMinutes {
			bad = append(bad, "duration_minutes")
		}
	}
	if len(bad) > 0 {
		return &tools.ArgumentError{Tool: s.Name(), Fields: bad}
	}
	return nil
}

func (s *Scheduler) Execute(ctx context.Context, args map[string]any) (*tools.Result, error) {
	patientID, _ := stringArg(args, "patient_id")

	if _, err := s.store.GetPatient(ctx, patientID); err != nil {
		return nil, fmt.Errorf("patient lookup: %w", err)
	}

	scheduled := s.now().Add(defaultScheduleLead)
	if raw := optionalString(args, "preferred_date"); raw != "" {
		scheduled, _ = time.Parse(time.RFC3339, raw)
	}
	minutes := defaultAppointmentMinutes
	if d, ok := intArg(args, "duration_minutes"); ok {
		minutes = d
	}

	appt := &emr.Appointment{
		ID:              uuid.New().String(),
		PatientID:       patientID,
		ProviderID:      optionalString(args, "provider_id"),
		ScheduledDate:   scheduled,
		DurationMinutes: minutes,
		Type:            optionalString(args, "appointment_type"),
		Reason:          optionalString(args, "reason"),
		Status:          "scheduled",
		CreatedByAI:     true,
		CreatedAt:       s.now(),
	}
	if err := s.store.CreateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.logger.InfoContext(ctx, "appointment scheduled",
		"appointment_id", appt.ID, "patient_id", patientID,
		"scheduled_date", scheduled, "actor_id", tools.ActorIDFromContext(ctx))

	return &tools.Result{
		Summary: fmt.Sprintf("%s appointment scheduled for %s", appt.Type, scheduled.Format("2006-01-02 15:04")),
		Payload: map[string]any{
			"appointment_id":   appt.ID,
			"patient_id":       patientID,
			"provider_id":      appt.ProviderID,
			"scheduled_date":   scheduled.Format(time.RFC3339),
			"duration_minutes": minutes,
			"type":             appt.Type,
			"status":           "scheduled",
			"created_by_ai":    true,
		},
	}, nil
}
