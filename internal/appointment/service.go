package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-ledger/internal/config"
	redisclient "github.com/hackgods/clinic-slot-ledger/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventSlotBlocked          = "SLOT_BLOCKED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventSymptomsUpdated      = "SYMPTOMS_UPDATED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"

	defaultCancellationWindow = 12 * time.Hour

	defaultKnowledgeLimit = 20
	maxKnowledgeLimit     = 100
)

var ledgerErrors = []error{
	ErrNotFound,
	ErrSlotTaken,
	ErrPatientDoubleBooked,
	ErrInvalidTransition,
	ErrCancellationWindowExpired,
	ErrInvalidSlot,
	ErrInvalidDate,
	ErrInvalidActor,
	ErrNotAppointmentOwner,
	ErrDoctorNotFound,
	ErrPatientNotFound,
	ErrCalendarBusy,
	ErrInvalidCharges,
}

type Service struct {
	repo   Repository
	dir    Directory
	locker redisclient.Locker
	log    zerolog.Logger
	window time.Duration
	now    func() time.Time
}

type Option func(*Service)

// WithClock replaces the wall clock used for cancellation windows, receipt
// dates and past-slot flags.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(repo Repository, dir Directory, locker redisclient.Locker, cfg config.Config, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		dir:    dir,
		locker: locker,
		log:    logger.With().Str("component", "ledger").Logger(),
		window: cfg.CancellationWindow,
		now:    time.Now,
	}
	if s.window <= 0 {
		s.window = defaultCancellationWindow
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// wrapUnexpected keeps ledger errors as they are and adds context to the rest.
func wrapUnexpected(op string, err error) error {
	for _, le := range ledgerErrors {
		if errors.Is(err, le) {
			return err
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Service) withDayLock(ctx context.Context, doctorID int64, date string, fn func(ctx context.Context) error) error {
	err := s.locker.WithDayLock(ctx, doctorID, date, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrCalendarBusy
	}
	return err
}

// withAppointment runs fn under the lock of the appointment's calendar day,
// handing it a copy of the row read inside the critical section.
func (s *Service) withAppointment(ctx context.Context, id int64, fn func(ctx context.Context, appt *Appointment) error) error {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return wrapUnexpected("load appointment", err)
	}

	return s.withDayLock(ctx, appt.DoctorID, appt.Date, func(lockCtx context.Context) error {
		current, err := s.repo.GetAppointment(lockCtx, id)
		if err != nil {
			return wrapUnexpected("reload appointment", err)
		}
		return fn(lockCtx, current)
	})
}

// QuerySlots returns the occupied slots of one doctor's day keyed by time.
// A time missing from the map is open.
func (s *Service) QuerySlots(ctx context.Context, doctorID int64, date string) (map[string]SlotInfo, error) {
	if err := ValidateDate(date); err != nil {
		return nil, err
	}

	appts, err := s.repo.ListByDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	names := make(map[int64]string)
	slots := make(map[string]SlotInfo, len(appts))
	for _, a := range appts {
		name := blockedLabel
		if a.PatientID != nil {
			name, err = s.patientName(ctx, *a.PatientID, names)
			if err != nil {
				return nil, err
			}
		}

		slots[a.Time] = SlotInfo{
			ID:                 a.ID,
			Status:             a.Status,
			PatientID:          a.PatientID,
			PatientName:        name,
			Symptom:            a.Symptoms,
			CancellationReason: a.CancellationReason,
		}
	}

	return slots, nil
}

// DayGrid lists every slot of the clinic day in order, marking occupants and
// slots that already started.
func (s *Service) DayGrid(ctx context.Context, doctorID int64, date string) ([]DaySlot, error) {
	slots, err := s.QuerySlots(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	now := s.now()
	grid := make([]DaySlot, 0, len(slotTimes))
	for _, tm := range slotTimes {
		start, err := SlotStart(date, tm)
		if err != nil {
			return nil, err
		}

		entry := DaySlot{Time: tm, IsPast: start.Before(now)}
		if info, ok := slots[tm]; ok {
			info := info
			entry.Slot = &info
		}
		grid = append(grid, entry)
	}

	return grid, nil
}

// Book reserves a slot for a patient as PENDING. The slot and patient
// uniqueness checks and the insert happen as one step under the day lock.
func (s *Service) Book(ctx context.Context, in BookInput) (*Appointment, error) {
	if err := ValidateSlot(in.Date, in.Time); err != nil {
		return nil, err
	}

	if _, err := s.dir.GetPatient(ctx, in.PatientID); err != nil {
		return nil, wrapUnexpected("load patient", err)
	}
	if _, err := s.dir.GetDoctor(ctx, in.DoctorID); err != nil {
		return nil, wrapUnexpected("load doctor", err)
	}

	patientID := in.PatientID
	var created *Appointment

	err := s.withDayLock(ctx, in.DoctorID, in.Date, func(lockCtx context.Context) error {
		appt, err := s.repo.InsertAppointment(lockCtx, Appointment{
			DoctorID:  in.DoctorID,
			PatientID: &patientID,
			Date:      in.Date,
			Time:      in.Time,
			Status:    StatusPending,
			Symptoms:  in.Symptoms,
		})
		if err != nil {
			return wrapUnexpected("create appointment", err)
		}
		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"doctor_id":  in.DoctorID,
		"patient_id": in.PatientID,
		"date":       in.Date,
		"time":       in.Time,
	})

	return created, nil
}

// Block marks a slot unavailable with a patient-less BLOCKED appointment.
func (s *Service) Block(ctx context.Context, doctorID int64, date, tm string) (*Appointment, error) {
	if err := ValidateSlot(date, tm); err != nil {
		return nil, err
	}
	if _, err := s.dir.GetDoctor(ctx, doctorID); err != nil {
		return nil, wrapUnexpected("load doctor", err)
	}

	var created *Appointment
	err := s.withDayLock(ctx, doctorID, date, func(lockCtx context.Context) error {
		appt, err := s.repo.InsertAppointment(lockCtx, Appointment{
			DoctorID: doctorID,
			Date:     date,
			Time:     tm,
			Status:   StatusBlocked,
			Symptoms: blockedLabel,
		})
		if err != nil {
			return wrapUnexpected("create block", err)
		}
		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventSlotBlocked, map[string]any{
		"doctor_id": doctorID,
		"date":      date,
		"time":      tm,
	})

	return created, nil
}

// Approve moves a PENDING appointment to CONFIRMED.
func (s *Service) Approve(ctx context.Context, id int64) (*Appointment, error) {
	var updated *Appointment

	err := s.withAppointment(ctx, id, func(lockCtx context.Context, appt *Appointment) error {
		if appt.Status != StatusPending {
			return ErrInvalidTransition
		}
		a, err := s.repo.UpdateStatus(lockCtx, id, StatusPending, StatusConfirmed)
		if err != nil {
			return wrapUnexpected("confirm appointment", err)
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventAppointmentConfirmed, map[string]any{})
	return updated, nil
}

// Cancel rejects, cancels or unblocks an appointment by deleting it, which
// frees the slot. Patients may only cancel their own bookings, and a
// confirmed booking only until the cancellation window opens.
func (s *Service) Cancel(ctx context.Context, id int64, in CancelInput) (*Appointment, error) {
	switch in.Actor {
	case ActorPatient, ActorDoctor, ActorAdmin:
	default:
		return nil, ErrInvalidActor
	}

	var deleted *Appointment

	err := s.withAppointment(ctx, id, func(lockCtx context.Context, appt *Appointment) error {
		if appt.Status == StatusCompleted {
			return ErrInvalidTransition
		}

		switch in.Actor {
		case ActorPatient:
			if appt.PatientID == nil {
				return ErrInvalidTransition
			}
			if *appt.PatientID != in.ActorID {
				return ErrNotAppointmentOwner
			}
			if appt.Status == StatusConfirmed {
				start, err := SlotStart(appt.Date, appt.Time)
				if err != nil {
					return err
				}
				if s.now().After(start.Add(-s.window)) {
					return ErrCancellationWindowExpired
				}
			}
		case ActorDoctor:
			if in.ActorID != 0 && appt.DoctorID != in.ActorID {
				return ErrNotAppointmentOwner
			}
		}

		a, err := s.repo.DeleteAppointment(lockCtx, id, []Status{StatusPending, StatusConfirmed, StatusBlocked})
		if err != nil {
			return wrapUnexpected("delete appointment", err)
		}
		deleted = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventAppointmentCancelled, map[string]any{
		"actor":       in.Actor,
		"actor_id":    in.ActorID,
		"reason":      in.Reason,
		"prev_status": deleted.Status,
		"doctor_id":   deleted.DoctorID,
		"date":        deleted.Date,
		"time":        deleted.Time,
	})

	return deleted, nil
}

// EditSymptoms replaces the symptom text of a PENDING or CONFIRMED appointment.
func (s *Service) EditSymptoms(ctx context.Context, id int64, text string) (*Appointment, error) {
	editable := []Status{StatusPending, StatusConfirmed}
	var updated *Appointment

	err := s.withAppointment(ctx, id, func(lockCtx context.Context, appt *Appointment) error {
		if !statusIn(appt.Status, editable) {
			return ErrInvalidTransition
		}
		a, err := s.repo.UpdateSymptoms(lockCtx, id, editable, text)
		if err != nil {
			return wrapUnexpected("update symptoms", err)
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventSymptomsUpdated, map[string]any{})
	return updated, nil
}

// Complete files the consultation of a CONFIRMED appointment, issues its
// receipt and appends the knowledge entry in the same transaction.
func (s *Service) Complete(ctx context.Context, id int64, in CompleteInput) (*Appointment, error) {
	if in.Charges != nil && *in.Charges < 0 {
		return nil, ErrInvalidCharges
	}

	var completed *Appointment

	err := s.withAppointment(ctx, id, func(lockCtx context.Context, appt *Appointment) error {
		if appt.Status != StatusConfirmed {
			return ErrInvalidTransition
		}

		doc, err := s.dir.GetDoctor(lockCtx, appt.DoctorID)
		if err != nil {
			return wrapUnexpected("load doctor", err)
		}

		charges := doc.DefaultFee
		if in.Charges != nil {
			charges = *in.Charges
		}

		now := s.now()
		a, _, err := s.repo.CompleteAppointment(lockCtx, id, Completion{
			Diagnosis:     in.Diagnosis,
			Notes:         in.Notes,
			Medications:   in.Medications,
			Charges:       charges,
			ReceiptNumber: ReceiptNumber(now, appt.ID),
			DoctorName:    doc.Name,
			CompletedAt:   now,
		})
		if err != nil {
			return wrapUnexpected("complete appointment", err)
		}
		completed = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventAppointmentCompleted, map[string]any{
		"receipt_number": completed.ReceiptNumber,
		"charges":        completed.Charges,
	})

	return completed, nil
}

// GetAppointment returns one appointment with its clinical fields.
func (s *Service) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, wrapUnexpected("get appointment", err)
	}
	return appt, nil
}

// Report lists appointments matching the filter with display names resolved.
func (s *Service) Report(ctx context.Context, f ReportFilter) ([]ReportRow, error) {
	for _, d := range []string{f.StartDate, f.EndDate} {
		if d == "" {
			continue
		}
		if err := ValidateDate(d); err != nil {
			return nil, err
		}
	}

	appts, err := s.repo.ListReport(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list report: %w", err)
	}

	doctors := make(map[int64]string)
	patients := make(map[int64]string)
	rows := make([]ReportRow, 0, len(appts))

	for _, a := range appts {
		docName, ok := doctors[a.DoctorID]
		if !ok {
			doc, err := s.dir.GetDoctor(ctx, a.DoctorID)
			switch {
			case err == nil:
				docName = doc.Name
			case errors.Is(err, ErrDoctorNotFound):
				s.log.Warn().Int64("doctor_id", a.DoctorID).Msg("report row references unknown doctor")
			default:
				return nil, fmt.Errorf("load doctor: %w", err)
			}
			doctors[a.DoctorID] = docName
		}

		patName := blockedLabel
		if a.PatientID != nil {
			patName, err = s.patientName(ctx, *a.PatientID, patients)
			if err != nil {
				return nil, err
			}
		}

		row := ReportRow{
			ID:          a.ID,
			Date:        a.Date,
			Time:        a.Time,
			DoctorName:  docName,
			PatientName: patName,
			Status:      a.Status,
		}
		if a.Charges != nil {
			row.Fee = *a.Charges
		}
		if a.Diagnosis != nil {
			row.Diagnosis = *a.Diagnosis
		}
		if a.ReceiptNumber != nil {
			row.Receipt = *a.ReceiptNumber
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// KnowledgeEntries returns the most recent consultation records first.
func (s *Service) KnowledgeEntries(ctx context.Context, limit int) ([]KnowledgeEntry, error) {
	if limit <= 0 {
		limit = defaultKnowledgeLimit
	}
	if limit > maxKnowledgeLimit {
		limit = maxKnowledgeLimit
	}

	entries, err := s.repo.ListKnowledgeEntries(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list knowledge entries: %w", err)
	}
	return entries, nil
}

func (s *Service) patientName(ctx context.Context, id int64, cache map[int64]string) (string, error) {
	if name, ok := cache[id]; ok {
		return name, nil
	}

	p, err := s.dir.GetPatient(ctx, id)
	switch {
	case err == nil:
		cache[id] = p.Name
	case errors.Is(err, ErrPatientNotFound):
		s.log.Warn().Int64("patient_id", id).Msg("appointment references unknown patient")
		cache[id] = ""
	default:
		return "", fmt.Errorf("load patient: %w", err)
	}
	return cache[id], nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID int64, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Int64("appointment_id", appointmentID).Msg("failed to insert event log")
	}
}
