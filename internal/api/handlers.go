package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-ledger/internal/appointment"
)

type handlers struct {
	svc     *appointment.Service
	metrics *Metrics
	log     zerolog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// ledgerErrorStatus maps a service error to its HTTP status and error code.
func ledgerErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, appointment.ErrNotFound):
		return http.StatusNotFound, "appointment_not_found"
	case errors.Is(err, appointment.ErrDoctorNotFound):
		return http.StatusNotFound, "doctor_not_found"
	case errors.Is(err, appointment.ErrPatientNotFound):
		return http.StatusNotFound, "patient_not_found"
	case errors.Is(err, appointment.ErrSlotTaken):
		return http.StatusConflict, "slot_taken"
	case errors.Is(err, appointment.ErrPatientDoubleBooked):
		return http.StatusConflict, "patient_double_booked"
	case errors.Is(err, appointment.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, appointment.ErrCancellationWindowExpired):
		return http.StatusConflict, "cancellation_window_expired"
	case errors.Is(err, appointment.ErrCalendarBusy):
		return http.StatusConflict, "calendar_busy"
	case errors.Is(err, appointment.ErrInvalidSlot):
		return http.StatusBadRequest, "invalid_slot"
	case errors.Is(err, appointment.ErrInvalidDate):
		return http.StatusBadRequest, "invalid_date"
	case errors.Is(err, appointment.ErrInvalidActor):
		return http.StatusBadRequest, "invalid_actor"
	case errors.Is(err, appointment.ErrInvalidCharges):
		return http.StatusBadRequest, "invalid_charges"
	case errors.Is(err, appointment.ErrNotAppointmentOwner):
		return http.StatusForbidden, "not_appointment_owner"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// fail writes the error response for a failed ledger operation and counts it.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := ledgerErrorStatus(err)
	h.metrics.RecordOp(op, code)

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("op", op).Str("request_id", GetRequestID(r.Context())).Msg("ledger operation failed")
		writeError(w, status, code, "internal server error")
		return
	}
	writeError(w, status, code, err.Error())
}

func (h *handlers) succeed(w http.ResponseWriter, op string, status int, v any) {
	h.metrics.RecordOp(op, "ok")
	writeJSON(w, status, v)
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func queryID(r *http.Request, name string) (*int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, false
	}
	return &id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func (h *handlers) querySlots(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathID(r, "doctorID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a positive integer")
		return
	}
	date := r.URL.Query().Get("date")

	slots, err := h.svc.QuerySlots(r.Context(), doctorID, date)
	if err != nil {
		h.fail(w, r, "query_slots", err)
		return
	}

	h.succeed(w, "query_slots", http.StatusOK, SlotsResponse{DoctorID: doctorID, Date: date, Slots: slots})
}

func (h *handlers) dayGrid(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathID(r, "doctorID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a positive integer")
		return
	}
	date := r.URL.Query().Get("date")

	grid, err := h.svc.DayGrid(r.Context(), doctorID, date)
	if err != nil {
		h.fail(w, r, "day_grid", err)
		return
	}

	h.succeed(w, "day_grid", http.StatusOK, DayResponse{DoctorID: doctorID, Date: date, Slots: grid})
}

func (h *handlers) block(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathID(r, "doctorID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a positive integer")
		return
	}

	var req BlockRequest
	if !decodeBody(w, r, &req) {
		return
	}

	appt, err := h.svc.Block(r.Context(), doctorID, req.Date, req.Time)
	if err != nil {
		h.fail(w, r, "block", err)
		return
	}

	h.succeed(w, "block", http.StatusCreated, toAppointmentResponse(appt))
}

func (h *handlers) book(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PatientID <= 0 || req.DoctorID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "patient_id and doctor_id are required")
		return
	}

	appt, err := h.svc.Book(r.Context(), appointment.BookInput{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		Date:      req.Date,
		Time:      req.Time,
		Symptoms:  req.Symptoms,
	})
	if err != nil {
		h.fail(w, r, "book", err)
		return
	}

	h.succeed(w, "book", http.StatusCreated, toAppointmentResponse(appt))
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a positive integer")
		return
	}

	appt, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get", err)
		return
	}

	h.succeed(w, "get", http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a positive integer")
		return
	}

	appt, err := h.svc.Approve(r.Context(), id)
	if err != nil {
		h.fail(w, r, "approve", err)
		return
	}

	h.succeed(w, "approve", http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a positive integer")
		return
	}

	var req CancelRequest
	if !decodeBody(w, r, &req) {
		return
	}

	appt, err := h.svc.Cancel(r.Context(), id, appointment.CancelInput{
		Actor:   appointment.Actor(req.Actor),
		ActorID: req.ActorID,
		Reason:  req.Reason,
	})
	if err != nil {
		h.fail(w, r, "cancel", err)
		return
	}

	h.succeed(w, "cancel", http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) editSymptoms(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a positive integer")
		return
	}

	var req SymptomsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	appt, err := h.svc.EditSymptoms(r.Context(), id, req.Symptoms)
	if err != nil {
		h.fail(w, r, "edit_symptoms", err)
		return
	}

	h.succeed(w, "edit_symptoms", http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a positive integer")
		return
	}

	var req CompleteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	appt, err := h.svc.Complete(r.Context(), id, appointment.CompleteInput{
		Diagnosis:   req.Diagnosis,
		Notes:       req.Notes,
		Medications: req.Medications,
		Charges:     req.Charges,
	})
	if err != nil {
		h.fail(w, r, "complete", err)
		return
	}

	resp := CompleteResponse{ID: appt.ID, Status: string(appt.Status)}
	if appt.ReceiptNumber != nil {
		resp.ReceiptNumber = *appt.ReceiptNumber
	}
	if appt.Charges != nil {
		resp.Charges = *appt.Charges
	}

	h.succeed(w, "complete", http.StatusOK, resp)
}

func (h *handlers) report(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	doctorID, ok := queryID(r, "doctor_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a positive integer")
		return
	}
	patientID, ok := queryID(r, "patient_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a positive integer")
		return
	}

	status := appointment.Status(q.Get("status"))
	switch status {
	case "", appointment.StatusPending, appointment.StatusConfirmed, appointment.StatusCompleted, appointment.StatusBlocked:
	default:
		writeError(w, http.StatusBadRequest, "invalid_status", "status must be PENDING, CONFIRMED, COMPLETED or BLOCKED")
		return
	}

	rows, err := h.svc.Report(r.Context(), appointment.ReportFilter{
		DoctorID:  doctorID,
		PatientID: patientID,
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		Status:    status,
	})
	if err != nil {
		h.fail(w, r, "report", err)
		return
	}

	h.succeed(w, "report", http.StatusOK, ReportResponse{Rows: rows})
}

func (h *handlers) knowledge(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = n
	}

	entries, err := h.svc.KnowledgeEntries(r.Context(), limit)
	if err != nil {
		h.fail(w, r, "knowledge", err)
		return
	}

	h.succeed(w, "knowledge", http.StatusOK, KnowledgeResponse{Entries: entries})
}
