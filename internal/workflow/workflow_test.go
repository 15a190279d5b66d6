package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/docuease/copilot/internal/audit"
	"github.com/docuease/copilot/internal/emr"
)

var testTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *emr.MemoryStore, *audit.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := emr.NewMemoryStore()
	store.AddPatient(&emr.Patient{ID: "p1", FirstName: "Jane", LastName: "Doe"})
	audits := audit.NewMemoryStore()
	svc := NewService(store, audits, logger).WithClock(func() time.Time { return testTime })
	return svc, store, audits
}

func TestAlertTriage(t *testing.T) {
	svc, store, _ := newService(t)
	store.AddLabResult(emr.LabResult{
		ID: "l1", PatientID: "p1", TestName: "LDL Cholesterol", Value: "185",
		Unit: "mg/dL", Status: "Abnormal", ResultDate: testTime.AddDate(0, 0, -2),
	})
	store.AddLabResult(emr.LabResult{
		ID: "l2", PatientID: "p1", TestName: "Hemoglobin", Value: "13.5",
		Unit: "g/dL", Status: "Normal", ResultDate: testTime.AddDate(0, 0, -2),
	})
	store.AddLabResult(emr.LabResult{
		ID: "l3", PatientID: "p1", TestName: "Potassium", Value: "6.8",
		Unit: "mmol/L", Status: "Critical", ResultDate: testTime.AddDate(0, 0, -1),
	})

	result, err := svc.AlertTriage(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AlertCount != 2 {
		t.Errorf("AlertCount = %d, want 2 (normal lab excluded)", result.AlertCount)
	}
	if result.CriticalCount != 2 {
		// Critical status and LDL > 160 both escalate.
		t.Errorf("CriticalCount = %d, want 2", result.CriticalCount)
	}
	if result.Alerts[0].Priority != PriorityCritical {
		t.Errorf("first alert priority = %q, want critical first", result.Alerts[0].Priority)
	}
	if result.PatientName != "Jane Doe" {
		t.Errorf("PatientName = %q, want Jane Doe", result.PatientName)
	}
}

func TestAlertTriage_NoAlerts(t *testing.T) {
	svc, _, _ := newService(t)

	result, err := svc.AlertTriage(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AlertCount != 0 {
		t.Errorf("AlertCount = %d, want 0", result.AlertCount)
	}
	if !strings.Contains(result.Summary, "No alerts") {
		t.Errorf("Summary = %q, want no-alerts message", result.Summary)
	}
}

func TestFollowUpAnalysis(t *testing.T) {
	svc, store, _ := newService(t)
	store.AddEncounter(emr.Encounter{
		ID: "e1", PatientID: "p1", EncounterDate: testTime.AddDate(0, 0, -7),
		Assessment: "hypertension", Plan: "Follow up in 2 weeks, continue lisinopril",
	})

	result, err := svc.FollowUpAnalysis(context.Background(), "p1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.NeedsFollowUp {
		t.Error("NeedsFollowUp = false, want true when latest plan mentions follow-up")
	}
	if !strings.Contains(result.Recommendation, "hypertension") {
		t.Errorf("Recommendation = %q, want assessment mentioned", result.Recommendation)
	}
	if result.PreferredWindow != "next_week" {
		t.Errorf("PreferredWindow = %q, want default next_week", result.PreferredWindow)
	}
}

func TestFollowUpAnalysis_Routine(t *testing.T) {
	svc, store, _ := newService(t)
	store.AddEncounter(emr.Encounter{
		ID: "e1", PatientID: "p1", EncounterDate: testTime.AddDate(0, 0, -7),
		Assessment: "healthy", Plan: "No changes needed",
	})

	result, err := svc.FollowUpAnalysis(context.Background(), "p1", "next_month")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NeedsFollowUp {
		t.Error("NeedsFollowUp = true, want false")
	}
	if !strings.Contains(result.Recommendation, "3-6 months") {
		t.Errorf("Recommendation = %q, want routine window", result.Recommendation)
	}
}

func TestScheduleAppointment(t *testing.T) {
	svc, store, audits := newService(t)

	appt, err := svc.ScheduleAppointment(context.Background(), "p1", "u1", &AppointmentDetails{
		Type:   "follow-up",
		Reason: "medication review",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Status != "scheduled" {
		t.Errorf("Status = %q, want scheduled", appt.Status)
	}
	if store.AppointmentCount() != 1 {
		t.Errorf("AppointmentCount = %d, want 1", store.AppointmentCount())
	}
	if audits.Count() != 1 {
		t.Errorf("audit count = %d, want 1", audits.Count())
	}
	entries, _ := audits.Query(context.Background(), audit.Filter{})
	if entries[0].Action != "workflow_schedule_appointment" {
		t.Errorf("audit action = %q", entries[0].Action)
	}
}

func TestReviewLab(t *testing.T) {
	svc, store, audits := newService(t)
	store.AddLabResult(emr.LabResult{
		ID: "l1", PatientID: "p1", TestName: "LDL", Value: "185",
		Status: "Abnormal", ResultDate: testTime.AddDate(0, 0, -2),
	})

	lab, err := svc.ReviewLab(context.Background(), "p1", "l1", "discussed with patient", "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !lab.Reviewed || lab.ReviewedBy != "u1" {
		t.Errorf("lab = %+v, want reviewed by u1", lab)
	}

	stored, _ := store.GetLabResult(context.Background(), "l1")
	if !stored.Reviewed || stored.ReviewNote != "discussed with patient" {
		t.Errorf("stored lab = %+v, want persisted review", stored)
	}
	if audits.Count() != 1 {
		t.Errorf("audit count = %d, want 1", audits.Count())
	}
}

func TestReviewLab_WrongPatient(t *testing.T) {
	svc, store, _ := newService(t)
	store.AddPatient(&emr.Patient{ID: "p2", FirstName: "Bob", LastName: "Smith"})
	store.AddLabResult(emr.LabResult{
		ID: "l1", PatientID: "p2", TestName: "LDL", Value: "100",
		Status: "Normal", ResultDate: testTime,
	})

	_, err := svc.ReviewLab(context.Background(), "p1", "l1", "", "u1")
	if !errors.Is(err, emr.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound for cross-patient lab", err)
	}
}

func TestDraftReminder(t *testing.T) {
	svc, _, _ := newService(t)
	appt, err := svc.ScheduleAppointment(context.Background(), "p1", "u1", &AppointmentDetails{
		Type:          "follow-up",
		ScheduledDate: testTime.AddDate(0, 0, 14),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, typ := range []string{"sms", "email"} {
		draft, err := svc.DraftReminder(context.Background(), "p1", appt.ID, typ)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if draft.Status != "draft" {
			t.Errorf("Status = %q, want draft", draft.Status)
		}
		if !strings.Contains(draft.Message, "follow-up") {
			t.Errorf("%s message = %q, want appointment type mentioned", typ, draft.Message)
		}
	}

	if _, err := svc.DraftReminder(context.Background(), "p1", appt.ID, "carrier_pigeon"); err == nil {
		t.Error("invalid reminder type accepted")
	}
}

func TestComprehensive(t *testing.T) {
	svc, store, _ := newService(t)
	store.AddLabResult(emr.LabResult{
		ID: "l1", PatientID: "p1", TestName: "Glucose", Value: "190",
		Status: "Abnormal", ResultDate: testTime.AddDate(0, 0, -1),
	})
	store.AddEncounter(emr.Encounter{
		ID: "e1", PatientID: "p1", EncounterDate: testTime.AddDate(0, 0, -7),
		Assessment: "diabetes", Plan: "follow up after lab results",
	})

	result, err := svc.Comprehensive(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AlertTriage == nil || result.FollowUp == nil {
		t.Fatal("merged result missing a branch")
	}
	if result.AlertTriage.AlertCount != 1 {
		t.Errorf("AlertCount = %d, want 1", result.AlertTriage.AlertCount)
	}
	if !result.FollowUp.NeedsFollowUp {
		t.Error("NeedsFollowUp = false, want true")
	}
	if !strings.Contains(result.Summary, "1 alerts found") {
		t.Errorf("Summary = %q", result.Summary)
	}
}

func TestRun_Dispatch(t *testing.T) {
	svc, _, _ := newService(t)

	outcome, err := svc.Run(context.Background(), &Request{
		PatientID: "p1",
		Action:    ActionAlertTriage,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Action != ActionAlertTriage {
		t.Errorf("Action = %q", outcome.Action)
	}
	if _, ok := outcome.Result.(*TriageResult); !ok {
		t.Errorf("Result type = %T, want *TriageResult", outcome.Result)
	}

	_, err = svc.Run(context.Background(), &Request{PatientID: "p1", Action: "defragment"})
	if !errors.Is(err, ErrUnknownAction) {
		t.Errorf("error = %v, want ErrUnknownAction", err)
	}

	if _, err := svc.Run(context.Background(), &Request{Action: ActionAlertTriage}); err == nil {
		t.Error("missing patient_id accepted")
	}
}
