package api

import (
	"time"

	"github.com/hackgods/clinic-slot-ledger/internal/appointment"
)

type BookRequest struct {
	PatientID int64  `json:"patient_id"`
	DoctorID  int64  `json:"doctor_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Symptoms  string `json:"symptoms"`
}

type BlockRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type CancelRequest struct {
	Actor   string `json:"actor"`
	ActorID int64  `json:"actor_id"`
	Reason  string `json:"reason"`
}

type SymptomsRequest struct {
	Symptoms string `json:"symptoms"`
}

// CompleteRequest leaves charges out to bill the doctor's default fee.
type CompleteRequest struct {
	Diagnosis   string   `json:"diagnosis"`
	Notes       string   `json:"notes"`
	Medications string   `json:"medications"`
	Charges     *float64 `json:"charges"`
}

type AppointmentResponse struct {
	ID            int64      `json:"id"`
	DoctorID      int64      `json:"doctor_id"`
	PatientID     *int64     `json:"patient_id"`
	Date          string     `json:"date"`
	Time          string     `json:"time"`
	Status        string     `json:"status"`
	Symptoms      string     `json:"symptoms"`
	Diagnosis     *string    `json:"diagnosis,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
	Medications   *string    `json:"medications,omitempty"`
	Charges       *float64   `json:"charges,omitempty"`
	ReceiptNumber *string    `json:"receipt_number,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

type CompleteResponse struct {
	ID            int64   `json:"id"`
	Status        string  `json:"status"`
	ReceiptNumber string  `json:"receipt_number"`
	Charges       float64 `json:"charges"`
}

type SlotsResponse struct {
	DoctorID int64                           `json:"doctor_id"`
	Date     string                          `json:"date"`
	Slots    map[string]appointment.SlotInfo `json:"slots"`
}

type DayResponse struct {
	DoctorID int64                 `json:"doctor_id"`
	Date     string                `json:"date"`
	Slots    []appointment.DaySlot `json:"slots"`
}

type ReportResponse struct {
	Rows []appointment.ReportRow `json:"rows"`
}

type KnowledgeResponse struct {
	Entries []appointment.KnowledgeEntry `json:"entries"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		Date:          a.Date,
		Time:          a.Time,
		Status:        string(a.Status),
		Symptoms:      a.Symptoms,
		Diagnosis:     a.Diagnosis,
		Notes:         a.Notes,
		Medications:   a.Medications,
		Charges:       a.Charges,
		ReceiptNumber: a.ReceiptNumber,
		CompletedAt:   a.CompletedAt,
	}
}
