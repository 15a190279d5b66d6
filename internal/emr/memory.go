package emr

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store used in tests and demo mode.
// Thread-safe. All list results are returned newest-first.
type MemoryStore struct {
	mu           sync.RWMutex
	patients     map[string]*Patient
	encounters   map[string][]Encounter
	labs         map[string]*LabResult
	medications  map[string]*Medication
	appointments map[string]*Appointment
	notes        map[string]*ProgressNote
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patients:     make(map[string]*Patient),
		encounters:   make(map[string][]Encounter),
		labs:         make(map[string]*LabResult),
		medications:  make(map[string]*Medication),
		appointments: make(map[string]*Appointment),
		notes:        make(map[string]*ProgressNote),
	}
}

// AddPatient seeds a patient record.
func (s *MemoryStore) AddPatient(p *Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.patients[p.ID] = &cp
}

// AddEncounter seeds an encounter.
func (s *MemoryStore) AddEncounter(e Encounter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encounters[e.PatientID] = append(s.encounters[e.PatientID], e)
}

// AddLabResult seeds a lab result.
func (s *MemoryStore) AddLabResult(l LabResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := l
	s.labs[l.ID] = &cp
}

// AddMedication seeds a medication.
func (s *MemoryStore) AddMedication(m Medication) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := m
	s.medications[m.ID] = &cp
}

func (s *MemoryStore) GetPatient(_ context.Context, id string) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListEncounters(_ context.Context, patientID string, r Range) ([]Encounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Encounter
	for _, e := range s.encounters[patientID] {
		if r.Contains(e.EncounterDate) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EncounterDate.After(out[j].EncounterDate) })
	return out, nil
}

func (s *MemoryStore) ListLabResults(_ context.Context, patientID string, r Range) ([]LabResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []LabResult
	for _, l := range s.labs {
		if l.PatientID == patientID && r.Contains(l.ResultDate) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResultDate.After(out[j].ResultDate) })
	return out, nil
}

func (s *MemoryStore) ListMedications(_ context.Context, patientID string, r Range) ([]Medication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Medication
	for _, m := range s.medications {
		if m.PatientID == patientID && r.Contains(m.PrescribedDate) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PrescribedDate.After(out[j].PrescribedDate) })
	return out, nil
}

func (s *MemoryStore) ListAppointments(_ context.Context, patientID string, r Range) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Appointment
	for _, a := range s.appointments {
		if a.PatientID == patientID && r.Contains(a.ScheduledDate) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate.After(out[j].ScheduledDate) })
	return out, nil
}

func (s *MemoryStore) GetLabResult(_ context.Context, id string) (*LabResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.labs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) UpdateLabResult(_ context.Context, lab *LabResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.labs[lab.ID]; !ok {
		return ErrNotFound
	}
	cp := *lab
	s.labs[lab.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMedication(_ context.Context, id string) (*Medication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.medications[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) UpdateMedication(_ context.Context, med *Medication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.medications[med.ID]; !ok {
		return ErrNotFound
	}
	cp := *med
	s.medications[med.ID] = &cp
	return nil
}

func (s *MemoryStore) CreateAppointment(_ context.Context, appt *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *appt
	s.appointments[appt.ID] = &cp
	return nil
}

func (s *MemoryStore) CreateNote(_ context.Context, note *ProgressNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *note
	s.notes[note.ID] = &cp
	return nil
}

// AppointmentCount reports stored appointments, for side-effect assertions.
func (s *MemoryStore) AppointmentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.appointments)
}

// NoteCount reports stored notes.
func (s *MemoryStore) NoteCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}
