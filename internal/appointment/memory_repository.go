package appointment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps the ledger in process memory. A single mutex makes
// every write, including the uniqueness checks, atomic.
type MemoryRepository struct {
	mu        sync.RWMutex
	nextID    int64
	byID      map[int64]Appointment
	bySlot    map[string]int64
	byPatient map[string]int64
	knowledge []KnowledgeEntry
	events    []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:      make(map[int64]Appointment),
		bySlot:    make(map[string]int64),
		byPatient: make(map[string]int64),
	}
}

func doctorSlotKey(doctorID int64, date, tm string) string {
	return slotKey("d", doctorID, date, tm)
}

func patientSlotKey(patientID int64, date, tm string) string {
	return slotKey("p", patientID, date, tm)
}

func slotKey(kind string, id int64, date, tm string) string {
	return fmt.Sprintf("%s:%d:%s:%s", kind, id, date, tm)
}

func (r *MemoryRepository) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) ListByDoctorDate(ctx context.Context, doctorID int64, date string) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.byID {
		if a.DoctorID == doctorID && a.Date == date {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (r *MemoryRepository) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dk := doctorSlotKey(a.DoctorID, a.Date, a.Time)
	if _, taken := r.bySlot[dk]; taken {
		return nil, ErrSlotTaken
	}

	var pk string
	if a.PatientID != nil {
		pk = patientSlotKey(*a.PatientID, a.Date, a.Time)
		if _, busy := r.byPatient[pk]; busy {
			return nil, ErrPatientDoubleBooked
		}
	}

	r.nextID++
	now := time.Now()
	a.ID = r.nextID
	a.CreatedAt = now
	a.UpdatedAt = now

	r.byID[a.ID] = a
	r.bySlot[dk] = a.ID
	if pk != "" {
		r.byPatient[pk] = a.ID
	}

	return &a, nil
}

// mutate applies fn to the stored row when its status is allowed.
func (r *MemoryRepository) mutate(id int64, allowed []Status, fn func(a *Appointment)) (*Appointment, error) {
	a, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !statusIn(a.Status, allowed) {
		return nil, ErrInvalidTransition
	}

	fn(&a)
	a.UpdatedAt = time.Now()
	r.byID[id] = a
	return &a, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id int64, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.mutate(id, []Status{from}, func(a *Appointment) {
		a.Status = to
	})
}

func (r *MemoryRepository) UpdateSymptoms(ctx context.Context, id int64, allowed []Status, text string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.mutate(id, allowed, func(a *Appointment) {
		a.Symptoms = text
	})
}

func (r *MemoryRepository) DeleteAppointment(ctx context.Context, id int64, allowed []Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !statusIn(a.Status, allowed) {
		return nil, ErrInvalidTransition
	}

	delete(r.byID, id)
	delete(r.bySlot, doctorSlotKey(a.DoctorID, a.Date, a.Time))
	if a.PatientID != nil {
		delete(r.byPatient, patientSlotKey(*a.PatientID, a.Date, a.Time))
	}
	return &a, nil
}

func (r *MemoryRepository) CompleteAppointment(ctx context.Context, id int64, c Completion) (*Appointment, *KnowledgeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.mutate(id, []Status{StatusConfirmed}, func(a *Appointment) {
		diagnosis, notes, meds, charges := c.Diagnosis, c.Notes, c.Medications, c.Charges
		completedAt := c.CompletedAt
		a.Status = StatusCompleted
		a.Diagnosis = &diagnosis
		a.Notes = &notes
		a.Medications = &meds
		a.Charges = &charges
		a.CompletedAt = &completedAt
		if a.ReceiptNumber == nil {
			receipt := c.ReceiptNumber
			a.ReceiptNumber = &receipt
		}
	})
	if err != nil {
		return nil, nil, err
	}

	entry := KnowledgeEntry{
		ID:             int64(len(r.knowledge) + 1),
		AppointmentID:  a.ID,
		SymptomText:    a.Symptoms,
		Diagnosis:      c.Diagnosis,
		TreatmentPlan:  c.Notes,
		MedicationPlan: nullableString(c.Medications),
		DoctorName:     c.DoctorName,
		CreatedAt:      time.Now(),
	}
	r.knowledge = append(r.knowledge, entry)

	return a, &entry, nil
}

func (r *MemoryRepository) ListReport(ctx context.Context, f ReportFilter) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.byID {
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.PatientID != nil && (a.PatientID == nil || *a.PatientID != *f.PatientID) {
			continue
		}
		if f.StartDate != "" && a.Date < f.StartDate {
			continue
		}
		if f.EndDate != "" && a.Date > f.EndDate {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) ListKnowledgeEntries(ctx context.Context, limit int) ([]KnowledgeEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []KnowledgeEntry
	for i := len(r.knowledge) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.knowledge[i])
	}
	return out, nil
}

func (r *MemoryRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}

// MemoryDirectory is a fixed doctor/patient roster.
type MemoryDirectory struct {
	mu       sync.RWMutex
	doctors  map[int64]Doctor
	patients map[int64]Patient
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		doctors:  make(map[int64]Doctor),
		patients: make(map[int64]Patient),
	}
}

func (d *MemoryDirectory) AddDoctor(doc Doctor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doctors[doc.ID] = doc
}

func (d *MemoryDirectory) AddPatient(p Patient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patients[p.ID] = p
}

func (d *MemoryDirectory) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	doc, ok := d.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &doc, nil
}

func (d *MemoryDirectory) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Directory  = (*MemoryDirectory)(nil)
)
