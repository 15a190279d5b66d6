// Package workflow implements the patient-management operations: alert
// triage, follow-up analysis, appointment scheduling, lab review, reminder
// drafting, and the comprehensive workflow that combines triage and
// follow-up analysis. These are provider-facing batch operations, distinct
// from the per-tool confirmation protocol: they run under the caller's
// already-established authorization and log their side effects directly.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docuease/copilot/internal/audit"
	"github.com/docuease/copilot/internal/emr"
)

// Action names accepted by Run.
const (
	ActionAlertTriage         = "alert_triage"
	ActionFollowUpAnalysis    = "follow_up_analysis"
	ActionScheduleAppointment = "schedule_appointment"
	ActionReviewLab           = "review_lab"
	ActionDraftReminder       = "draft_reminder"
	ActionComprehensive       = "comprehensive_workflow"
)

// ErrUnknownAction is returned by Run for unrecognized action names.
var ErrUnknownAction = errors.New("unknown patient-management action")

// Alert priorities, highest first.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
)

// Alert is one lab-derived finding that needs attention.
type Alert struct {
	Type           string        `json:"type"`
	Priority       string        `json:"priority"`
	Message        string        `json:"message"`
	ActionRequired string        `json:"action_required"`
	Lab            emr.LabResult `json:"details"`
}

// TriageResult is the outcome of alert triage for one patient.
type TriageResult struct {
	PatientID     string  `json:"patient_id"`
	PatientName   string  `json:"patient_name"`
	AlertCount    int     `json:"alert_count"`
	CriticalCount int     `json:"critical_count"`
	Alerts        []Alert `json:"alerts"`
	Summary       string  `json:"summary"`
}

// FollowUpResult is the outcome of follow-up analysis.
type FollowUpResult struct {
	PatientID       string `json:"patient_id"`
	PatientName     string `json:"patient_name"`
	NeedsFollowUp   bool   `json:"needs_follow_up"`
	Recommendation  string `json:"recommendation"`
	PreferredWindow string `json:"preferred_window"`
	Summary         string `json:"summary"`
}

// ComprehensiveResult merges the two independent analyses.
type ComprehensiveResult struct {
	PatientID   string          `json:"patient_id"`
	AlertTriage *TriageResult   `json:"alert_triage"`
	FollowUp    *FollowUpResult `json:"follow_up_analysis"`
	Summary     string          `json:"summary"`
}

// ReminderDraft is a drafted (not sent) appointment reminder.
type ReminderDraft struct {
	ID            string `json:"id"`
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	Type          string `json:"reminder_type"`
	Message       string `json:"message"`
	Status        string `json:"status"`
}

// AppointmentDetails carries the schedule_appointment parameters.
type AppointmentDetails struct {
	ProviderID      string    `json:"provider_id,omitempty"`
	Type            string    `json:"type"`
	ScheduledDate   time.Time `json:"scheduled_date"`
	DurationMinutes int       `json:"duration_minutes,omitempty"`
	Reason          string    `json:"reason,omitempty"`
}

// Request is the dispatch envelope for Run.
type Request struct {
	PatientID       string              `json:"patient_id"`
	Action          string              `json:"action"`
	ActorID         string              `json:"actor_id,omitempty"`
	PreferredWindow string              `json:"preferred_window,omitempty"`
	LabID           string              `json:"lab_id,omitempty"`
	ReviewNotes     string              `json:"review_notes,omitempty"`
	AppointmentID   string              `json:"appointment_id,omitempty"`
	ReminderType    string              `json:"reminder_type,omitempty"`
	Appointment     *AppointmentDetails `json:"appointment_details,omitempty"`
}

// Outcome wraps any action's result for the transport layer.
type Outcome struct {
	Action    string    `json:"action"`
	PatientID string    `json:"patient_id"`
	Result    any       `json:"result"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// Service runs patient-management operations against the record store.
type Service struct {
	store   emr.Store
	auditor audit.Appender
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a workflow service.
func NewService(store emr.Store, auditor audit.Appender, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		store:   store,
		auditor: auditor,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run dispatches one patient-management request to its handler.
func (s *Service) Run(ctx context.Context, req *Request) (*Outcome, error) {
	if req.PatientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}

	var (
		result  any
		summary string
		err     error
	)
	switch req.Action {
	case ActionAlertTriage:
		var r *TriageResult
		r, err = s.AlertTriage(ctx, req.PatientID)
		if r != nil {
			result, summary = r, r.Summary
		}
	case ActionFollowUpAnalysis:
		var r *FollowUpResult
		r, err = s.FollowUpAnalysis(ctx, req.PatientID, req.PreferredWindow)
		if r != nil {
			result, summary = r, r.Summary
		}
	case ActionScheduleAppointment:
		var r *emr.Appointment
		r, err = s.ScheduleAppointment(ctx, req.PatientID, req.ActorID, req.Appointment)
		if r != nil {
			result = r
			summary = fmt.Sprintf("Appointment scheduled for %s", r.ScheduledDate.Format("2006-01-02 15:04"))
		}
	case ActionReviewLab:
		var r *emr.LabResult
		r, err = s.ReviewLab(ctx, req.PatientID, req.LabID, req.ReviewNotes, req.ActorID)
		if r != nil {
			result = r
			summary = "Lab result marked as reviewed and logged in audit trail"
		}
	case ActionDraftReminder:
		var r *ReminderDraft
		r, err = s.DraftReminder(ctx, req.PatientID, req.AppointmentID, req.ReminderType)
		if r != nil {
			result = r
			summary = fmt.Sprintf("%s reminder drafted successfully", strings.ToUpper(r.Type))
		}
	case ActionComprehensive:
		var r *ComprehensiveResult
		r, err = s.Comprehensive(ctx, req.PatientID)
		if r != nil {
			result, summary = r, r.Summary
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, req.Action)
	}
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Action:    req.Action,
		PatientID: req.PatientID,
		Result:    result,
		Summary:   summary,
		Timestamp: s.now(),
	}, nil
}

// AlertTriage scans the patient's lab results for abnormal or critical
// values and returns alerts sorted critical-first.
func (s *Service) AlertTriage(ctx context.Context, patientID string) (*TriageResult, error) {
	patient, err := s.store.GetPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("patient lookup: %w", err)
	}
	labs, err := s.store.ListLabResults(ctx, patientID, emr.Range{})
	if err != nil {
		return nil, fmt.Errorf("list lab results: %w", err)
	}

	var alerts []Alert
	for _, lab := range labs {
		if lab.Status != "Abnormal" && lab.Status != "Critical" {
			continue
		}
		priority := PriorityHigh
		action := "follow_up_needed"
		if highPriorityLab(lab) {
			priority = PriorityCritical
			action = "immediate_review"
		}
		alerts = append(alerts, Alert{
			Type:           "lab_alert",
			Priority:       priority,
			Message:        fmt.Sprintf("%s: %s %s (%s)", lab.TestName, lab.Value, lab.Unit, lab.Status),
			ActionRequired: action,
			Lab:            lab,
		})
	}
	// Critical alerts surface first.
	sortAlerts(alerts)

	critical := 0
	for _, a := range alerts {
		if a.Priority == PriorityCritical {
			critical++
		}
	}
	summary := "No alerts found requiring immediate attention."
	if len(alerts) > 0 {
		summary = fmt.Sprintf("Found %d alert(s) requiring attention. %d critical alerts need immediate review.",
			len(alerts), critical)
	}

	s.logger.InfoContext(ctx, "alert triage completed",
		"patient_id", patientID, "alert_count", len(alerts), "critical_count", critical)

	return &TriageResult{
		PatientID:     patientID,
		PatientName:   patient.FullName(),
		AlertCount:    len(alerts),
		CriticalCount: critical,
		Alerts:        alerts,
		Summary:       summary,
	}, nil
}

// highPriorityLab applies the escalation thresholds for common panels:
// any Critical status, LDL above 160, or glucose above 140.
func highPriorityLab(lab emr.LabResult) bool {
	if lab.Status == "Critical" {
		return true
	}
	v, err := strconv.ParseFloat(lab.Value, 64)
	if err != nil {
		return false
	}
	switch {
	case strings.Contains(lab.TestName, "LDL") && v > 160:
		return true
	case strings.Contains(lab.TestName, "Glucose") && v > 140:
		return true
	}
	return false
}

func sortAlerts(alerts []Alert) {
	rank := func(p string) int {
		if p == PriorityCritical {
			return 1
		}
		return 0
	}
	for i := 1; i < len(alerts); i++ {
		for j := i; j > 0 && rank(alerts[j].Priority) > rank(alerts[j-1].Priority); j-- {
			alerts[j], alerts[j-1] = alerts[j-1], alerts[j]
		}
	}
}

// FollowUpAnalysis recommends a follow-up window from the most recent
// encounter's plan.
func (s *Service) FollowUpAnalysis(ctx context.Context, patientID, preferredWindow string) (*FollowUpResult, error) {
	if preferredWindow == "" {
		preferredWindow = "next_week"
	}
	patient, err := s.store.GetPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("patient lookup: %w", err)
	}
	encounters, err := s.store.ListEncounters(ctx, patientID, emr.Range{})
	if err != nil {
		return nil, fmt.Errorf("list encounters: %w", err)
	}

	needsFollowUp := false
	recommendation := "Routine follow-up recommended in 3-6 months based on current health status."
	if len(encounters) > 0 {
		latest := encounters[0]
		if strings.Contains(strings.ToLower(latest.Plan), "follow") {
			needsFollowUp = true
			recommendation = fmt.Sprintf("Recommended follow-up in 2 weeks for %s monitoring and medication review.",
				latest.Assessment)
		}
	}

	return &FollowUpResult{
		PatientID:       patientID,
		PatientName:     patient.FullName(),
		NeedsFollowUp:   needsFollowUp,
		Recommendation:  recommendation,
		PreferredWindow: preferredWindow,
		Summary:         recommendation,
	}, nil
}

// ScheduleAppointment books an appointment directly and writes an audit
// entry for the booking.
func (s *Service) ScheduleAppointment(ctx context.Context, patientID, actorID string, details *AppointmentDetails) (*emr.Appointment, error) {
	if details == nil || details.Type == "" {
		return nil, fmt.Errorf("appointment details are required")
	}
	if _, err := s.store.GetPatient(ctx, patientID); err != nil {
		return nil, fmt.Errorf("patient lookup: %w", err)
	}

	minutes := details.DurationMinutes
	if minutes <= 0 {
		minutes = 30
	}
	scheduled := details.ScheduledDate
	if scheduled.IsZero() {
		scheduled = s.now().Add(7 * 24 * time.Hour)
	}

	appt := &emr.Appointment{
		ID:              uuid.New().String(),
		PatientID:       patientID,
		ProviderID:      details.ProviderID,
		ScheduledDate:   scheduled,
		DurationMinutes: minutes,
		Type:            details.Type,
		Reason:          details.Reason,
		Status:          "scheduled",
		CreatedAt:       s.now(),
	}
	if err := s.store.CreateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.appendAudit(ctx, &audit.Entry{
		ActorID:      actorID,
		Action:       "workflow_schedule_appointment",
		PatientID:    patientID,
		ResourceType: "Appointment",
		ResourceID:   appt.ID,
		ResultStatus: audit.ResultSuccess,
		ResultData: map[string]any{
			"appointment_id": appt.ID,
			"scheduled_date": scheduled.Format(time.RFC3339),
			"type":           appt.Type,
		},
		RequestedAt: s.now(),
	})

	return appt, nil
}

// ReviewLab marks a lab result reviewed, recording who and when, and
// writes an audit entry.
func (s *Service) ReviewLab(ctx context.Context, patientID, labID, notes, actorID string) (*emr.LabResult, error) {
	if labID == "" {
		return nil, fmt.Errorf("lab_id is required")
	}
	lab, err := s.store.GetLabResult(ctx, labID)
	if err != nil {
		return nil, fmt.Errorf("lab lookup: %w", err)
	}
	if lab.PatientID != patientID {
		return nil, fmt.Errorf("lab %s does not belong to patient %s: %w", labID, patientID, emr.ErrNotFound)
	}

	if notes == "" {
		notes = "Lab result reviewed"
	}
	now := s.now()
	lab.Reviewed = true
	lab.ReviewNote = notes
	lab.ReviewedBy = actorID
	lab.ReviewedAt = &now
	if err := s.store.UpdateLabResult(ctx, lab); err != nil {
		return nil, fmt.Errorf("update lab result: %w", err)
	}

	s.appendAudit(ctx, &audit.Entry{
		ActorID:      actorID,
		Action:       "workflow_review_lab",
		PatientID:    patientID,
		ResourceType: "LabResult",
		ResourceID:   labID,
		ResultStatus: audit.ResultSuccess,
		ResultData: map[string]any{
			"lab_id":       labID,
			"review_notes": notes,
		},
		RequestedAt: now,
	})

	return lab, nil
}

// DraftReminder produces an SMS or email reminder draft. Nothing is sent;
// the draft is returned for a human to dispatch.
func (s *Service) DraftReminder(ctx context.Context, patientID, appointmentID, reminderType string) (*ReminderDraft, error) {
	if reminderType != "sms" && reminderType != "email" {
		return nil, fmt.Errorf("reminder_type must be sms or email, got %q", reminderType)
	}
	appts, err := s.store.ListAppointments(ctx, patientID, emr.Range{})
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	var target *emr.Appointment
	for i := range appts {
		if appts[i].ID == appointmentID {
			target = &appts[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("appointment %s: %w", appointmentID, emr.ErrNotFound)
	}

	when := target.ScheduledDate.Format("Monday, January 2 at 3:04 PM")
	var message string
	if reminderType == "sms" {
		message = fmt.Sprintf("Hi! This is a reminder about your upcoming %s appointment: %s. Reply CONFIRM to confirm or call us at (555) 123-4567.",
			target.Type, when)
	} else {
		message = fmt.Sprintf("Dear Patient,\n\nThis is a friendly reminder about your upcoming %s appointment:\n\n%s\n\nPlease confirm your attendance by replying to this email or calling our office.\n\nBest regards,\nYour Healthcare Team",
			target.Type, when)
	}

	return &ReminderDraft{
		ID:            uuid.New().String(),
		AppointmentID: appointmentID,
		PatientID:     patientID,
		Type:          reminderType,
		Message:       message,
		Status:        "draft",
	}, nil
}

// Comprehensive runs alert triage and follow-up analysis concurrently and
// merges their results. These are the only two operations with no ordering
// dependency.
func (s *Service) Comprehensive(ctx context.Context, patientID string) (*ComprehensiveResult, error) {
	var (
		wg          sync.WaitGroup
		triage      *TriageResult
		followUp    *FollowUpResult
		triageErr   error
		followUpErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		triage, triageErr = s.AlertTriage(ctx, patientID)
	}()
	go func() {
		defer wg.Done()
		followUp, followUpErr = s.FollowUpAnalysis(ctx, patientID, "")
	}()
	wg.Wait()

	if triageErr != nil {
		return nil, triageErr
	}
	if followUpErr != nil {
		return nil, followUpErr
	}

	followUpNote := "not immediately needed"
	if followUp.NeedsFollowUp {
		followUpNote = "recommended"
	}
	return &ComprehensiveResult{
		PatientID:   patientID,
		AlertTriage: triage,
		FollowUp:    followUp,
		Summary: fmt.Sprintf("Comprehensive analysis completed: %d alerts found, follow-up %s",
			triage.AlertCount, followUpNote),
	}, nil
}

// appendAudit logs side-effecting workflow operations. Failures are
// logged, not surfaced, matching the orchestrator's terminal-write rule.
func (s *Service) appendAudit(ctx context.Context, entry *audit.Entry) {
	entry.Finalize(s.now())
	if err := s.auditor.Append(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "audit append failed",
			"action", entry.Action, "error", err)
	}
}
