package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation         = "23505"
	doctorSlotConstraint    = "appointments_doctor_slot_key"
	patientSlotConstraint   = "appointments_patient_slot_key"
	appointmentSelectFields = `id, doctor_id, patient_id, to_char(appt_date, 'YYYY-MM-DD'), appt_time, status,
		symptoms, cancellation_reason, diagnosis, notes, medications, charges, receipt_number,
		created_at, updated_at, completed_at`
)

// PgPool is the slice of *pgxpool.Pool the repository uses.
type PgPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool PgPool
}

func NewPgRepository(pool PgPool) *PgRepository {
	return &PgRepository{pool: pool}
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Date,
		&a.Time,
		&status,
		&a.Symptoms,
		&a.CancellationReason,
		&a.Diagnosis,
		&a.Notes,
		&a.Medications,
		&a.Charges,
		&a.ReceiptNumber,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	a.Status = Status(status)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// mapUniqueViolation turns a unique index hit into the matching ledger error.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case doctorSlotConstraint:
			return ErrSlotTaken
		case patientSlotConstraint:
			return ErrPatientDoubleBooked
		}
	}
	return err
}

// classifyMiss explains why a conditional write touched no row.
func classifyMiss(ctx context.Context, q querier, id int64) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("classify missed write: %w", err)
	}
	if exists {
		return ErrInvalidTransition
	}
	return ErrNotFound
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Interface methods

func (r *PgRepository) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentSelectFields+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListByDoctorDate(ctx context.Context, doctorID int64, date string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentSelectFields+`
		FROM appointments
		WHERE doctor_id = $1 AND appt_date = $2::date
		ORDER BY appt_time
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var taken bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND appt_date = $2::date AND appt_time = $3
		)
	`, a.DoctorID, a.Date, a.Time).Scan(&taken)
	if err != nil {
		return nil, fmt.Errorf("check doctor slot: %w", err)
	}
	if taken {
		return nil, ErrSlotTaken
	}

	if a.PatientID != nil {
		var busy bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM appointments
				WHERE patient_id = $1 AND appt_date = $2::date AND appt_time = $3
			)
		`, *a.PatientID, a.Date, a.Time).Scan(&busy)
		if err != nil {
			return nil, fmt.Errorf("check patient slot: %w", err)
		}
		if busy {
			return nil, ErrPatientDoubleBooked
		}
	}

	// The unique indexes are the final arbiter when writers in other
	// processes pass the checks above at the same moment.
	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (doctor_id, patient_id, appt_date, appt_time, status, symptoms, created_at, updated_at)
		VALUES ($1, $2, $3::date, $4, $5, $6, now(), now())
		RETURNING `+appointmentSelectFields,
		a.DoctorID, a.PatientID, a.Date, a.Time, string(a.Status), a.Symptoms)

	created, err := scanAppointment(row)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapUniqueViolation(err)
	}

	return created, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id int64, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentSelectFields,
		id, string(to), string(from))

	a, err := scanAppointment(row)
	if errors.Is(err, ErrNotFound) {
		return nil, classifyMiss(ctx, r.pool, id)
	}
	return a, err
}

func (r *PgRepository) UpdateSymptoms(ctx context.Context, id int64, allowed []Status, text string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET symptoms = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentSelectFields,
		id, text, statusStrings(allowed))

	a, err := scanAppointment(row)
	if errors.Is(err, ErrNotFound) {
		return nil, classifyMiss(ctx, r.pool, id)
	}
	return a, err
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id int64, allowed []Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		DELETE FROM appointments
		WHERE id = $1
		  AND status = ANY($2)
		RETURNING `+appointmentSelectFields,
		id, statusStrings(allowed))

	a, err := scanAppointment(row)
	if errors.Is(err, ErrNotFound) {
		return nil, classifyMiss(ctx, r.pool, id)
	}
	return a, err
}

func (r *PgRepository) CompleteAppointment(ctx context.Context, id int64, c Completion) (*Appointment, *KnowledgeEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'COMPLETED',
		    diagnosis = $2,
		    notes = $3,
		    medications = $4,
		    charges = $5,
		    receipt_number = COALESCE(receipt_number, $6),
		    completed_at = $7,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'CONFIRMED'
		RETURNING `+appointmentSelectFields,
		id, c.Diagnosis, c.Notes, c.Medications, c.Charges, c.ReceiptNumber, c.CompletedAt)

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, classifyMiss(ctx, tx, id)
		}
		return nil, nil, fmt.Errorf("complete appointment: %w", err)
	}

	entry := KnowledgeEntry{
		AppointmentID:  a.ID,
		SymptomText:    a.Symptoms,
		Diagnosis:      c.Diagnosis,
		TreatmentPlan:  c.Notes,
		MedicationPlan: nullableString(c.Medications),
		DoctorName:     c.DoctorName,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO knowledge_entries (appointment_id, symptom_text, diagnosis, treatment_plan, medication_plan, doctor_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, created_at
	`, entry.AppointmentID, entry.SymptomText, entry.Diagnosis, entry.TreatmentPlan, entry.MedicationPlan, entry.DoctorName).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("insert knowledge entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit completion: %w", err)
	}

	return a, &entry, nil
}

func (r *PgRepository) ListReport(ctx context.Context, f ReportFilter) ([]Appointment, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.StartDate != "" {
		add("appt_date >= $%d::date", f.StartDate)
	}
	if f.EndDate != "" {
		add("appt_date <= $%d::date", f.EndDate)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	query := `SELECT ` + appointmentSelectFields + ` FROM appointments`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY appt_date, appt_time, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListKnowledgeEntries(ctx context.Context, limit int) ([]KnowledgeEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, symptom_text, diagnosis, treatment_plan, medication_plan, doctor_name, created_at
		FROM knowledge_entries
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []KnowledgeEntry
	for rows.Next() {
		var e KnowledgeEntry
		if err := rows.Scan(&e.ID, &e.AppointmentID, &e.SymptomText, &e.Diagnosis, &e.TreatmentPlan, &e.MedicationPlan, &e.DoctorName, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ Repository = (*PgRepository)(nil)
