package emr

import (
	"context"
	"errors"
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2026, 8, d, 9, 0, 0, 0, time.UTC)
}

func TestGetPatient(t *testing.T) {
	s := NewMemoryStore()
	s.AddPatient(&Patient{ID: "p1", FirstName: "Jane", LastName: "Doe"})

	got, err := s.GetPatient(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetPatient() error: %v", err)
	}
	if got.FullName() != "Jane Doe" {
		t.Errorf("FullName() = %q, want Jane Doe", got.FullName())
	}

	if _, err := s.GetPatient(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPatient(missing) error = %v, want ErrNotFound", err)
	}
}

func TestGetPatient_ReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	s.AddPatient(&Patient{ID: "p1", FirstName: "Jane", LastName: "Doe"})

	a, _ := s.GetPatient(context.Background(), "p1")
	a.LastName = "Mutated"

	b, _ := s.GetPatient(context.Background(), "p1")
	if b.LastName != "Doe" {
		t.Errorf("stored patient mutated through returned copy: %q", b.LastName)
	}
}

func TestListEncounters_RangeAndOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.AddEncounter(Encounter{ID: "e1", PatientID: "p1", EncounterDate: day(1)})
	s.AddEncounter(Encounter{ID: "e2", PatientID: "p1", EncounterDate: day(10)})
	s.AddEncounter(Encounter{ID: "e3", PatientID: "p1", EncounterDate: day(20)})
	s.AddEncounter(Encounter{ID: "e4", PatientID: "p2", EncounterDate: day(10)})

	all, err := s.ListEncounters(ctx, "p1", Range{})
	if err != nil {
		t.Fatalf("ListEncounters() error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d encounters, want 3", len(all))
	}
	if all[0].ID != "e3" || all[2].ID != "e1" {
		t.Errorf("order = [%s %s %s], want newest first", all[0].ID, all[1].ID, all[2].ID)
	}

	window, err := s.ListEncounters(ctx, "p1", Range{From: day(5), To: day(15)})
	if err != nil {
		t.Fatalf("ListEncounters(range) error: %v", err)
	}
	if len(window) != 1 || window[0].ID != "e2" {
		t.Errorf("windowed = %+v, want only e2", window)
	}
}

func TestUpdateLabResult(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.AddLabResult(LabResult{ID: "l1", PatientID: "p1", TestName: "Potassium", Status: "Critical", ResultDate: day(1)})

	lab, err := s.GetLabResult(ctx, "l1")
	if err != nil {
		t.Fatalf("GetLabResult() error: %v", err)
	}
	lab.Reviewed = true
	lab.ReviewedBy = "dr-chen"
	if err := s.UpdateLabResult(ctx, lab); err != nil {
		t.Fatalf("UpdateLabResult() error: %v", err)
	}

	got, _ := s.GetLabResult(ctx, "l1")
	if !got.Reviewed || got.ReviewedBy != "dr-chen" {
		t.Errorf("lab after update = %+v", got)
	}

	if err := s.UpdateLabResult(ctx, &LabResult{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateLabResult(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUpdateMedication(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.AddMedication(Medication{ID: "m1", PatientID: "p1", Name: "Lisinopril", Dosage: "10mg", Active: true})

	med, err := s.GetMedication(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMedication() error: %v", err)
	}
	med.Dosage = "20mg"
	if err := s.UpdateMedication(ctx, med); err != nil {
		t.Fatalf("UpdateMedication() error: %v", err)
	}

	got, _ := s.GetMedication(ctx, "m1")
	if got.Dosage != "20mg" {
		t.Errorf("dosage = %q, want 20mg", got.Dosage)
	}
}

func TestCreateAppointmentAndNote(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	appt := &Appointment{ID: "a1", PatientID: "p1", ScheduledDate: day(5), Type: "follow_up", Status: "scheduled", CreatedByAI: true}
	if err := s.CreateAppointment(ctx, appt); err != nil {
		t.Fatalf("CreateAppointment() error: %v", err)
	}
	if got := s.AppointmentCount(); got != 1 {
		t.Errorf("AppointmentCount() = %d, want 1", got)
	}

	listed, err := s.ListAppointments(ctx, "p1", Range{})
	if err != nil {
		t.Fatalf("ListAppointments() error: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "a1" {
		t.Errorf("listed = %+v, want a1", listed)
	}

	note := &ProgressNote{ID: "n1", PatientID: "p1", Content: "S: ...", Status: "draft", AIGenerated: true}
	if err := s.CreateNote(ctx, note); err != nil {
		t.Fatalf("CreateNote() error: %v", err)
	}
	if got := s.NoteCount(); got != 1 {
		t.Errorf("NoteCount() = %d, want 1", got)
	}
}

func TestRangeContains(t *testing.T) {
	tests := []struct {
		name string
		r    Range
		t    time.Time
		want bool
	}{
		{"unbounded", Range{}, day(1), true},
		{"inside", Range{From: day(1), To: day(10)}, day(5), true},
		{"before from", Range{From: day(5)}, day(1), false},
		{"after to", Range{To: day(5)}, day(10), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.r.Contains(tc.t); got != tc.want {
				t.Errorf("Contains() = %v, want %v", got, tc.want)
			}
		})
	}
}
