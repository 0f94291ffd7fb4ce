package appointment

import (
	"context"
	"errors"
)

var (
	ErrNotFound                  = errors.New("appointment not found")
	ErrSlotTaken                 = errors.New("slot is already taken")
	ErrPatientDoubleBooked       = errors.New("patient already has an appointment at this time")
	ErrInvalidTransition         = errors.New("invalid status transition")
	ErrCancellationWindowExpired = errors.New("cancellation window has expired")
	ErrInvalidSlot               = errors.New("time is not a bookable slot")
	ErrInvalidDate               = errors.New("date must be YYYY-MM-DD")
	ErrInvalidActor              = errors.New("actor must be patient, doctor or admin")
	ErrNotAppointmentOwner       = errors.New("appointment belongs to someone else")
	ErrDoctorNotFound            = errors.New("doctor not found")
	ErrPatientNotFound           = errors.New("patient not found")
	ErrCalendarBusy              = errors.New("calendar is busy, please retry")
	ErrInvalidCharges            = errors.New("charges must not be negative")
)

// Repository owns appointment persistence. Writes are conditional: a write
// whose target row is absent returns ErrNotFound, and one whose row is not
// in an allowed status returns ErrInvalidTransition.
type Repository interface {
	GetAppointment(ctx context.Context, id int64) (*Appointment, error)
	ListByDoctorDate(ctx context.Context, doctorID int64, date string) ([]Appointment, error)

	// InsertAppointment checks slot and patient uniqueness and inserts in
	// one atomic step, reporting ErrSlotTaken before ErrPatientDoubleBooked.
	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)

	UpdateStatus(ctx context.Context, id int64, from, to Status) (*Appointment, error)
	UpdateSymptoms(ctx context.Context, id int64, allowed []Status, text string) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id int64, allowed []Status) (*Appointment, error)

	// CompleteAppointment moves a CONFIRMED appointment to COMPLETED and
	// appends its knowledge entry in the same transaction.
	CompleteAppointment(ctx context.Context, id int64, c Completion) (*Appointment, *KnowledgeEntry, error)

	ListReport(ctx context.Context, f ReportFilter) ([]Appointment, error)
	ListKnowledgeEntries(ctx context.Context, limit int) ([]KnowledgeEntry, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// Directory resolves doctor and patient identities. It is read-only.
type Directory interface {
	GetDoctor(ctx context.Context, id int64) (*Doctor, error)
	GetPatient(ctx context.Context, id int64) (*Patient, error)
}

func statusIn(s Status, allowed []Status) bool {
	for _, a := range allowed {
		if a == s {
			return true
		}
	}
	return false
}
