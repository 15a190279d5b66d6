package clinical

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/docuease/copilot/internal/emr"
	"github.com/docuease/copilot/internal/tools"
)

var testTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededStore(t *testing.T) *emr.MemoryStore {
	t.Helper()
	store := emr.NewMemoryStore()
	store.AddPatient(&emr.Patient{
		ID: "p1", FirstName: "Jane", LastName: "Doe",
	})
	store.AddEncounter(emr.Encounter{
		ID: "e1", PatientID: "p1", EncounterDate: testTime.AddDate(0, 0, -5), Type: "office",
	})
	store.AddEncounter(emr.Encounter{
		ID: "e2", PatientID: "p1", EncounterDate: testTime.AddDate(0, 0, -100), Type: "office",
	})
	store.AddLabResult(emr.LabResult{
		ID: "l1", PatientID: "p1", TestName: "HbA1c", Value: "9.2",
		Status: "Abnormal", ResultDate: testTime.AddDate(0, 0, -3),
	})
	store.AddMedication(emr.Medication{
		ID: "m1", PatientID: "p1", Name: "Lisinopril", Dosage: "10mg",
		Frequency: "daily", PrescribedDate: testTime.AddDate(0, 0, -10), Active: true,
	})
	return store
}

func argFields(t *testing.T, err error) []string {
	t.Helper()
	var argErr *tools.ArgumentError
	if !errors.As(err, &argErr) {
		t.Fatalf("error = %v, want *tools.ArgumentError", err)
	}
	return argErr.Fields
}

func TestTimeline_Execute(t *testing.T) {
	tl := NewTimeline(seededStore(t), testLogger())
	tl.now = func() time.Time { return testTime }

	result, err := tl.Execute(context.Background(), map[string]any{
		"patient_id": "p1",
		"timeframe":  "30days",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// e2 is 100 days old and must fall outside the 30-day window.
	if got := result.Payload["total_items"].(int); got != 3 {
		t.Errorf("total_items = %d, want 3", got)
	}
	timeline := result.Payload["timeline"].(map[string]any)
	if got := len(timeline); got != 4 {
		t.Errorf("timeline has %d types, want 4 (all by default)", got)
	}
	if got := len(timeline["encounters"].([]emr.Encounter)); got != 1 {
		t.Errorf("encounters in window = %d, want 1", got)
	}
}

func TestTimeline_IncludeTypes(t *testing.T) {
	tl := NewTimeline(seededStore(t), testLogger())
	tl.now = func() time.Time { return testTime }

	result, err := tl.Execute(context.Background(), map[string]any{
		"patient_id":    "p1",
		"include_types": []any{"labs"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	timeline := result.Payload["timeline"].(map[string]any)
	if got := len(timeline); got != 1 {
		t.Errorf("timeline has %d types, want 1", got)
	}
	if _, ok := timeline["labs"]; !ok {
		t.Error("timeline missing labs")
	}
}

func TestTimeline_PatientNotFound(t *testing.T) {
	tl := NewTimeline(seededStore(t), testLogger())

	_, err := tl.Execute(context.Background(), map[string]any{"patient_id": "ghost"})
	if !errors.Is(err, emr.ErrNotFound) {
		t.Errorf("error = %v, want emr.ErrNotFound", err)
	}
}

func TestTimeline_Validate(t *testing.T) {
	tl := NewTimeline(seededStore(t), testLogger())

	if err := tl.Validate(map[string]any{"patient_id": "p1"}); err != nil {
		t.Errorf("valid args rejected: %v", err)
	}

	err := tl.Validate(map[string]any{"timeframe": "2weeks"})
	fields := argFields(t, err)
	if len(fields) != 2 {
		t.Errorf("violated fields = %v, want [patient_id timeframe]", fields)
	}

	err = tl.Validate(map[string]any{"patient_id": "p1", "include_types": []any{"billing"}})
	if fields := argFields(t, err); len(fields) != 1 || fields[0] != "include_types" {
		t.Errorf("violated fields = %v, want [include_types]", fields)
	}
}

func TestNoteDrafter_Execute(t *testing.T) {
	store := seededStore(t)
	nd := NewNoteDrafter(store, testLogger())
	nd.now = func() time.Time { return testTime }

	result, err := nd.Execute(context.Background(), map[string]any{
		"patient_id": "p1",
		"template":   "soap",
		"context":    "Follow-up for hypertension",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Payload["status"]; got != "draft" {
		t.Errorf("status = %v, want draft", got)
	}
	if store.NoteCount() != 1 {
		t.Errorf("NoteCount = %d, want 1", store.NoteCount())
	}
	preview := result.Payload["content_preview"].(string)
	if len(preview) > previewLen+3 {
		t.Errorf("preview length = %d, want <= %d", len(preview), previewLen+3)
	}
}

func TestNoteDrafter_Templates(t *testing.T) {
	for _, tpl := range []string{"soap", "brief", "detailed"} {
		content := draftNoteContent(tpl, "chest pain", "2025-06-15")
		if content == "" {
			t.Errorf("template %s produced empty content", tpl)
		}
	}
	soap := draftNoteContent("soap", "", "2025-06-15")
	if want := "[To be completed by clinician]"; !strings.Contains(soap, want) {
		t.Errorf("soap template without context missing %q", want)
	}
}

func TestNoteDrafter_Validate(t *testing.T) {
	nd := NewNoteDrafter(seededStore(t), testLogger())

	err := nd.Validate(map[string]any{"patient_id": "p1", "template": "haiku"})
	if fields := argFields(t, err); len(fields) != 1 || fields[0] != "template" {
		t.Errorf("violated fields = %v, want [template]", fields)
	}
}

func TestScheduler_Execute(t *testing.T) {
	store := seededStore(t)
	s := NewScheduler(store, testLogger())
	s.now = func() time.Time { return testTime }

	result, err := s.Execute(context.Background(), map[string]any{
		"patient_id":       "p1",
		"appointment_type": "follow-up",
		"duration_minutes": float64(45),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.AppointmentCount() != 1 {
		t.Errorf("AppointmentCount = %d, want 1", store.AppointmentCount())
	}
	if got := result.Payload["status"]; got != "scheduled" {
		t.Errorf("status = %v, want scheduled", got)
	}
	// No preferred_date: default is one week out.
	want := testTime.Add(defaultScheduleLead).Format(time.RFC3339)
	if got := result.Payload["scheduled_date"]; got != want {
		t.Errorf("scheduled_date = %v, want %v", got, want)
	}
	if got := result.Payload["duration_minutes"]; got != 45 {
		t.Errorf("duration_minutes = %v, want 45", got)
	}
}

func TestScheduler_Validate(t *testing.T) {
	s := NewScheduler(seededStore(t), testLogger())

	tests := []struct {
		name    string
		args    map[string]any
		invalid []string
	}{
		{"valid", map[string]any{"patient_id": "p1", "appointment_type": "follow-up"}, nil},
		{"missing type", map[string]any{"patient_id": "p1"}, []string{"appointment_type"}},
		{"duration too short", map[string]any{
			"patient_id": "p1", "appointment_type": "follow-up", "duration_minutes": float64(5),
		}, []string{"duration_minutes"}},
		{"duration too long", map[string]any{
			"patient_id": "p1", "appointment_type": "follow-up", "duration_minutes": float64(240),
		}, []string{"duration_minutes"}},
		{"bad date", map[string]any{
			"patient_id": "p1", "appointment_type": "follow-up", "preferred_date": "next tuesday",
		}, []string{"preferred_date"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(tt.args)
			if tt.invalid == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			fields := argFields(t, err)
			if len(fields) != len(tt.invalid) || fields[0] != tt.invalid[0] {
				t.Errorf("violated fields = %v, want %v", fields, tt.invalid)
			}
		})
	}
}

func TestMedicationUpdater_Execute(t *testing.T) {
	store := seededStore(t)
	mu := NewMedicationUpdater(store, testLogger())

	result, err := mu.Execute(context.Background(), map[string]any{
		"patient_id":    "p1",
		"medication_id": "m1",
		"dosage":        "20mg",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Payload["dosage"]; got != "20mg" {
		t.Errorf("dosage = %v, want 20mg", got)
	}

	med, err := store.GetMedication(context.Background(), "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if med.Dosage != "20mg" {
		t.Errorf("stored dosage = %q, want 20mg", med.Dosage)
	}
	if med.Frequency != "daily" {
		t.Errorf("frequency changed unexpectedly: %q", med.Frequency)
	}
}

func TestMedicationUpdater_RejectsOtherPatientsMedication(t *testing.T) {
	store := seededStore(t)
	store.AddPatient(&emr.Patient{ID: "p2", FirstName: "Vip", LastName: "Patient", PrivacyLevel: "vip"})
	store.AddMedication(emr.Medication{
		ID: "m2", PatientID: "p2", Name: "Oxycodone", Dosage: "40mg",
		IsControlled: true, Active: true,
	})
	mu := NewMedicationUpdater(store, testLogger())

	// The medication belongs to p2; scoping the request to p1 must fail,
	// otherwise the stated patient_id would decouple authorization from
	// the record actually being mutated.
	_, err := mu.Execute(context.Background(), map[string]any{
		"patient_id":    "p1",
		"medication_id": "m2",
		"dosage":        "80mg",
	})
	if !errors.Is(err, emr.ErrNotFound) {
		t.Fatalf("cross-patient update error = %v, want ErrNotFound", err)
	}

	med, getErr := store.GetMedication(context.Background(), "m2")
	if getErr != nil {
		t.Fatalf("unexpected error: %v", getErr)
	}
	if med.Dosage != "40mg" {
		t.Errorf("dosage = %q, want unchanged 40mg", med.Dosage)
	}
}

func TestMedicationUpdater_Validate(t *testing.T) {
	mu := NewMedicationUpdater(seededStore(t), testLogger())

	if err := mu.Validate(map[string]any{
		"patient_id": "p1", "medication_id": "m1", "active": false,
	}); err != nil {
		t.Errorf("valid args rejected: %v", err)
	}

	// At least one mutable field must be supplied.
	err := mu.Validate(map[string]any{"patient_id": "p1", "medication_id": "m1"})
	if fields := argFields(t, err); len(fields) != 1 {
		t.Errorf("violated fields = %v, want one entry", fields)
	}
}
