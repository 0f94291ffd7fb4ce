package appointment

import (
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusBlocked   Status = "BLOCKED"
)

// Actor is the role on whose behalf a cancellation is made.
type Actor string

const (
	ActorPatient Actor = "patient"
	ActorDoctor  Actor = "doctor"
	ActorAdmin   Actor = "admin"
)

const blockedLabel = "Blocked"

type Doctor struct {
	ID            int64
	Name          string
	Qualification string
	DefaultFee    float64
}

type Patient struct {
	ID    int64
	Name  string
	Email *string
}

// Appointment occupies one (doctor, date, time) slot. PatientID is nil for
// doctor-created blocks. Date is YYYY-MM-DD and Time is HH:MM.
type Appointment struct {
	ID                 int64
	DoctorID           int64
	PatientID          *int64
	Date               string
	Time               string
	Status             Status
	Symptoms           string
	CancellationReason *string
	Diagnosis          *string
	Notes              *string
	Medications        *string
	Charges            *float64
	ReceiptNumber      *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        *time.Time
}

// SlotInfo is what a calendar view shows for an occupied slot.
type SlotInfo struct {
	ID                 int64   `json:"id"`
	Status             Status  `json:"status"`
	PatientID          *int64  `json:"patient_id"`
	PatientName        string  `json:"patient_name"`
	Symptom            string  `json:"symptom"`
	CancellationReason *string `json:"cancellation_reason"`
}

// DaySlot is one entry of the fixed daily grid; Slot is nil when open.
type DaySlot struct {
	Time   string    `json:"time"`
	IsPast bool      `json:"is_past"`
	Slot   *SlotInfo `json:"slot,omitempty"`
}

type BookInput struct {
	PatientID int64
	DoctorID  int64
	Date      string
	Time      string
	Symptoms  string
}

type CancelInput struct {
	Actor   Actor
	ActorID int64
	Reason  string
}

// CompleteInput carries the consultation record. A nil Charges bills the
// doctor's default fee.
type CompleteInput struct {
	Diagnosis   string
	Notes       string
	Medications string
	Charges     *float64
}

// Completion is the fully resolved write for a CONFIRMED -> COMPLETED transition.
type Completion struct {
	Diagnosis     string
	Notes         string
	Medications   string
	Charges       float64
	ReceiptNumber string
	DoctorName    string
	CompletedAt   time.Time
}

// KnowledgeEntry is appended once per completed consultation and never changed.
type KnowledgeEntry struct {
	ID             int64     `json:"id"`
	AppointmentID  int64     `json:"appointment_id"`
	SymptomText    string    `json:"symptom_text"`
	Diagnosis      string    `json:"diagnosis"`
	TreatmentPlan  string    `json:"treatment_plan"`
	MedicationPlan *string   `json:"medication_plan"`
	DoctorName     string    `json:"doctor_name"`
	CreatedAt      time.Time `json:"created_at"`
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *int64
	Payload       []byte
	CreatedAt     time.Time
}

type ReportFilter struct {
	DoctorID  *int64
	PatientID *int64
	StartDate string
	EndDate   string
	Status    Status
}

type ReportRow struct {
	ID          int64   `json:"id"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
	DoctorName  string  `json:"doctor"`
	PatientName string  `json:"patient"`
	Status      Status  `json:"status"`
	Fee         float64 `json:"fee"`
	Diagnosis   string  `json:"diagnosis"`
	Receipt     string  `json:"receipt"`
}
