package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-slot-ledger/internal/config"
	redisclient "github.com/hackgods/clinic-slot-ledger/internal/redis"
)

const testDate = "2026-10-20"

type ledgerFixture struct {
	svc  *Service
	repo *MemoryRepository
	dir  *MemoryDirectory
}

func earlyMorning() time.Time {
	return time.Date(2026, 10, 20, 3, 0, 0, 0, time.Local)
}

func newLedgerFixture(t *testing.T, now func() time.Time) *ledgerFixture {
	t.Helper()

	repo := NewMemoryRepository()
	dir := NewMemoryDirectory()
	dir.AddDoctor(Doctor{ID: 1, Name: "Dr. Meera Rao", Qualification: "MBBS", DefaultFee: 500})
	dir.AddDoctor(Doctor{ID: 2, Name: "Dr. Arjun Shah", Qualification: "MD", DefaultFee: 800})
	for id := int64(10); id < 40; id++ {
		dir.AddPatient(Patient{ID: id, Name: fmt.Sprintf("Patient %d", id)})
	}

	cfg := config.Config{CancellationWindow: 12 * time.Hour}
	svc := NewService(repo, dir, redisclient.NewLocalDayLocker(5*time.Second), cfg, zerolog.Nop(), WithClock(now))

	return &ledgerFixture{svc: svc, repo: repo, dir: dir}
}

func (f *ledgerFixture) book(t *testing.T, patientID, doctorID int64, tm string) *Appointment {
	t.Helper()

	appt, err := f.svc.Book(context.Background(), BookInput{
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      testDate,
		Time:      tm,
		Symptoms:  "fever and cough",
	})
	require.NoError(t, err)
	return appt
}

func (f *ledgerFixture) confirmed(t *testing.T, patientID, doctorID int64, tm string) *Appointment {
	t.Helper()

	appt := f.book(t, patientID, doctorID, tm)
	appt, err := f.svc.Approve(context.Background(), appt.ID)
	require.NoError(t, err)
	return appt
}

func (f *ledgerFixture) eventTypes() []string {
	var out []string
	for _, ev := range f.repo.Events() {
		out = append(out, ev.EventType)
	}
	return out
}

type busyLocker struct{}

func (busyLocker) WithDayLock(ctx context.Context, doctorID int64, date string, fn func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestBookCreatesPendingAppointment(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)

	appt := f.book(t, 10, 1, "10:00")

	assert.Equal(t, StatusPending, appt.Status)
	require.NotNil(t, appt.PatientID)
	assert.Equal(t, int64(10), *appt.PatientID)
	assert.Equal(t, "fever and cough", appt.Symptoms)
	assert.Equal(t, []string{EventAppointmentCreated}, f.eventTypes())
}

func TestBookRejectsTakenSlot(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)
	f.book(t, 10, 1, "10:00")

	_, err := f.svc.Book(context.Background(), BookInput{PatientID: 11, DoctorID: 1, Date: testDate, Time: "10:00"})
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestBookReportsSlotTakenBeforeDoubleBooking(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)
	f.book(t, 10, 1, "10:00")

	_, err := f.svc.Book(context.Background(), BookInput{PatientID: 10, DoctorID: 1, Date: testDate, Time: "10:00"})
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestBookRejectsPatientDoubleBooking(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)
	f.book(t, 10, 1, "10:00")

	_, err := f.svc.Book(context.Background(), BookInput{PatientID: 10, DoctorID: 2, Date: testDate, Time: "10:00"})
	assert.ErrorIs(t, err, ErrPatientDoubleBooked)

	other := f.book(t, 10, 2, "10:30")
	assert.Equal(t, StatusPending, other.Status)
}

func TestBookValidation(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)

	tests := []struct {
		name string
		in   BookInput
		want error
	}{
		{"malformed date", BookInput{PatientID: 10, DoctorID: 1, Date: "20-10-2026", Time: "10:00"}, ErrInvalidDate},
		{"impossible date", BookInput{PatientID: 10, DoctorID: 1, Date: "2026-02-30", Time: "10:00"}, ErrInvalidDate},
		{"closing time", BookInput{PatientID: 10, DoctorID: 1, Date: testDate, Time: "17:00"}, ErrInvalidSlot},
		{"off grid", BookInput{PatientID: 10, DoctorID: 1, Date: testDate, Time: "09:15"}, ErrInvalidSlot},
		{"before opening", BookInput{PatientID: 10, DoctorID: 1, Date: testDate, Time: "08:30"}, ErrInvalidSlot},
		{"unknown patient", BookInput{PatientID: 999, DoctorID: 1, Date: testDate, Time: "10:00"}, ErrPatientNotFound},
		{"unknown doctor", BookInput{PatientID: 10, DoctorID: 999, Date: testDate, Time: "10:00"}, ErrDoctorNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Book(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Empty(t, f.repo.Events())
}

func TestConcurrentBookingsForOneSlot(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)

	const n = 20
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Book(context.Background(), BookInput{
				PatientID: int64(10 + i),
				DoctorID:  1,
				Date:      testDate,
				Time:      "11:00",
			})
		}(i)
	}
	wg.Wait()

	var ok, taken int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrSlotTaken):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, taken)

	slots, err := f.svc.QuerySlots(context.Background(), 1, testDate)
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}

func TestConcurrentBookingsForOnePatient(t *testing.T) {
	for round := 0; round < 100; round++ {
		f := newLedgerFixture(t, earlyMorning)

		start := make(chan struct{})
		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i, doctorID := range []int64{1, 2} {
			wg.Add(1)
			go func(i int, doctorID int64) {
				defer wg.Done()
				<-start
				_, errs[i] = f.svc.Book(context.Background(), BookInput{
					PatientID: 10,
					DoctorID:  doctorID,
					Date:      testDate,
					Time:      "11:00",
				})
			}(i, doctorID)
		}
		close(start)
		wg.Wait()

		var ok, doubled int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrPatientDoubleBooked):
				doubled++
			default:
				t.Fatalf("round %d: unexpected error: %v", round, err)
			}
		}
		require.Equal(t, 1, ok, "round %d", round)
		require.Equal(t, 1, doubled, "round %d", round)
	}
}

func TestBusyCalendar(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)
	appt := f.book(t, 10, 1, "10:00")

	busy := NewService(f.repo, f.dir, busyLocker{}, config.Config{}, zerolog.Nop(), WithClock(earlyMorning))

	_, err := busy.Book(context.Background(), BookInput{PatientID: 11, DoctorID: 1, Date: testDate, Time: "10:30"})
	assert.ErrorIs(t, err, ErrCalendarBusy)

	_, err = busy.Approve(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrCalendarBusy)
}

func TestBlockOccupiesSlot(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)
	ctx := context.Background()

	block, err := f.svc.Block(ctx, 1, testDate, "13:00")
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, block.Status)
	assert.Nil(t, block.PatientID)

	_, err = f.svc.Book(ctx, BookInput{PatientID: 10, DoctorID: 1, Date: testDate, Time: "13:00"})
	assert.ErrorIs(t, err, ErrSlotTaken)

	_, err = f.svc.Block(ctx, 1, testDate, "13:00")
	assert.ErrorIs(t, err, ErrSlotTaken)

	slots, err := f.svc.QuerySlots(ctx, 1, testDate)
	require.NoError(t, err)
	require.Contains(t, slots, "13:00")
	assert.Equal(t, StatusBlocked, slots["13:00"].Status)
	assert.Equal(t, "Blocked", slots["13:00"].PatientName)
	assert.Nil(t, slots["13:00"].PatientID)

	_, err = f.svc.Approve(ctx, block.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.EditSymptoms(ctx, block.ID, "new")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.Complete(ctx, block.ID, CompleteInput{Diagnosis: "x"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Cancel(ctx, block.ID, CancelInput{Actor: ActorDoctor, ActorID: 1})
	require.NoError(t, err)

	f.book(t, 10, 1, "13:00")
}

func TestBlockValidation(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)

	_, err := f.svc.Block(context.Background(), 999, testDate, "13:00")
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	_, err = f.svc.Block(context.Background(), 1, testDate, "13:10")
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

func TestApprove(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)
	ctx := context.Background()
	appt := f.book(t, 10, 1, "10:00")

	got, err := f.svc.Approve(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)

	_, err = f.svc.Approve(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Approve(ctx, 4242)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPatientCancellationWindow(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)
	ctx := context.Background()

	soon := f.confirmed(t, 10, 1, "14:00")
	_, err := f.svc.Cancel(ctx, soon.ID, CancelInput{Actor: ActorPatient, ActorID: 10})
	assert.ErrorIs(t, err, ErrCancellationWindowExpired)

	still, err := f.svc.GetAppointment(ctx, soon.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, still.Status)

	later := f.confirmed(t, 11, 1, "16:00")
	_, err = f.svc.Cancel(ctx, later.ID, CancelInput{Actor: ActorPatient, ActorID: 11, Reason: "travel"})
	require.NoError(t, err)

	pending := f.book(t, 12, 1, "14:30")
	_, err = f.svc.Cancel(ctx, pending.ID, CancelInput{Actor: ActorPatient, ActorID: 12})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, soon.ID, CancelInput{Actor: ActorDoctor, ActorID: 1, Reason: "emergency"})
	require.NoError(t, err)
}

func TestCancelDeletesAndFreesSlot(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)
	ctx := context.Background()
	appt := f.book(t, 10, 1, "10:00")

	deleted, err := f.svc.Cancel(ctx, appt.ID, CancelInput{Actor: ActorDoctor, ActorID: 1, Reason: "doctor unavailable"})
	require.NoError(t, err)
	assert.Equal(t, appt.ID, deleted.ID)

	_, err = f.svc.GetAppointment(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	slots, err := f.svc.QuerySlots(ctx, 1, testDate)
	require.NoError(t, err)
	assert.NotContains(t, slots, "10:00")

	f.book(t, 11, 1, "10:00")

	events := f.repo.Events()
	var cancelled *EventLog
	for i := range events {
		if events[i].EventType == EventAppointmentCancelled {
			cancelled = &events[i]
		}
	}
	require.NotNil(t, cancelled)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(cancelled.Payload, &payload))
	assert.Equal(t, "doctor unavailable", payload["reason"])
	assert.Equal(t, "PENDING", payload["prev_status"])
}

func TestCancelOwnershipRules(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)
	ctx := context.Background()
	appt := f.book(t, 10, 1, "10:00")
	block, err := f.svc.Block(ctx, 1, testDate, "12:00")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, appt.ID, CancelInput{Actor: ActorPatient, ActorID: 11})
	assert.ErrorIs(t, err, ErrNotAppointmentOwner)

	_, err = f.svc.Cancel(ctx, appt.ID, CancelInput{Actor: ActorDoctor, ActorID: 2})
	assert.ErrorIs(t, err, ErrNotAppointmentOwner)

	_, err = f.svc.Cancel(ctx, appt.ID, CancelInput{Actor: "nurse"})
	assert.ErrorIs(t, err, ErrInvalidActor)

	_, err = f.svc.Cancel(ctx, block.ID, CancelInput{Actor: ActorPatient, ActorID: 10})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Cancel(ctx, appt.ID, CancelInput{Actor: ActorAdmin})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, appt.ID, CancelInput{Actor: ActorAdmin})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEditSymptoms(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)
	ctx := context.Background()
	appt := f.book(t, 10, 1, "10:00")

	got, err := f.svc.EditSymptoms(ctx, appt.ID, "headache")
	require.NoError(t, err)
	assert.Equal(t, "headache", got.Symptoms)
	assert.Equal(t, StatusPending, got.Status)

	_, err = f.svc.Approve(ctx, appt.ID)
	require.NoError(t, err)

	got, err = f.svc.EditSymptoms(ctx, appt.ID, "headache and nausea")
	require.NoError(t, err)
	assert.Equal(t, "headache and nausea", got.Symptoms)

	_, err = f.svc.EditSymptoms(ctx, 4242, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteIssuesReceiptAndKnowledgeEntry(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)
	ctx := context.Background()

	times := []string{"09:00", "09:30", "10:00", "10:30"}
	for i, tm := range times {
		f.book(t, int64(20+i), 1, tm)
	}
	appt := f.confirmed(t, 10, 1, "11:00")
	require.Equal(t, int64(5), appt.ID)

	charges := 750.0
	done, err := f.svc.Complete(ctx, appt.ID, CompleteInput{
		Diagnosis:   "Viral fever",
		Notes:       "Rest and fluids",
		Medications: "Paracetamol 500mg",
		Charges:     &charges,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.ReceiptNumber)
	assert.Equal(t, "RCP-20261020-0005", *done.ReceiptNumber)
	require.NotNil(t, done.Charges)
	assert.Equal(t, 750.0, *done.Charges)
	require.NotNil(t, done.CompletedAt)

	entries, err := f.svc.KnowledgeEntries(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, appt.ID, entries[0].AppointmentID)
	assert.Equal(t, "fever and cough", entries[0].SymptomText)
	assert.Equal(t, "Viral fever", entries[0].Diagnosis)
	assert.Equal(t, "Rest and fluids", entries[0].TreatmentPlan)
	require.NotNil(t, entries[0].MedicationPlan)
	assert.Equal(t, "Paracetamol 500mg", *entries[0].MedicationPlan)
	assert.Equal(t, "Dr. Meera Rao", entries[0].DoctorName)

	_, err = f.svc.Complete(ctx, appt.ID, CompleteInput{Diagnosis: "again"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.Cancel(ctx, appt.ID, CancelInput{Actor: ActorAdmin})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.EditSymptoms(ctx, appt.ID, "changed")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.Approve(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	entries, err = f.svc.KnowledgeEntries(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCompleteBillsDefaultFee(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)
	appt := f.confirmed(t, 10, 2, "15:00")

	done, err := f.svc.Complete(context.Background(), appt.ID, CompleteInput{Diagnosis: "Migraine"})
	require.NoError(t, err)
	require.NotNil(t, done.Charges)
	assert.Equal(t, 800.0, *done.Charges)

	entries, err := f.svc.KnowledgeEntries(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].MedicationPlan)
}

func TestCompleteRequiresConfirmed(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)
	appt := f.book(t, 10, 1, "10:00")

	_, err := f.svc.Complete(context.Background(), appt.ID, CompleteInput{Diagnosis: "x"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	entries, err := f.svc.KnowledgeEntries(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQuerySlotsRoundTrip(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)
	ctx := context.Background()
	appt := f.book(t, 10, 1, "10:00")
	f.book(t, 11, 2, "10:00")

	first, err := f.svc.QuerySlots(ctx, 1, testDate)
	require.NoError(t, err)
	second, err := f.svc.QuerySlots(ctx, 1, testDate)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.Len(t, first, 1)
	slot := first["10:00"]
	assert.Equal(t, appt.ID, slot.ID)
	assert.Equal(t, StatusPending, slot.Status)
	assert.Equal(t, "Patient 10", slot.PatientName)
	assert.Equal(t, "fever and cough", slot.Symptom)

	empty, err := f.svc.QuerySlots(ctx, 1, "2026-10-21")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = f.svc.QuerySlots(ctx, 1, "tomorrow")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestDayGrid(t *testing.T) {
	noon := func() time.Time { return time.Date(2026, 10, 20, 12, 10, 0, 0, time.Local) }
	f := newLedgerFixture(t, noon)
	f.book(t, 10, 1, "15:30")

	grid, err := f.svc.DayGrid(context.Background(), 1, testDate)
	require.NoError(t, err)
	require.Len(t, grid, 16)

	assert.Equal(t, "09:00", grid[0].Time)
	assert.Equal(t, "16:30", grid[15].Time)

	byTime := make(map[string]DaySlot)
	for _, s := range grid {
		byTime[s.Time] = s
	}
	assert.True(t, byTime["12:00"].IsPast)
	assert.False(t, byTime["12:30"].IsPast)
	require.NotNil(t, byTime["15:30"].Slot)
	assert.Equal(t, StatusPending, byTime["15:30"].Slot.Status)
	assert.Nil(t, byTime["16:00"].Slot)
}

func TestReport(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)
	ctx := context.Background()

	a := f.confirmed(t, 10, 1, "09:00")
	f.book(t, 11, 1, "09:30")
	f.book(t, 12, 2, "09:00")
	_, err := f.svc.Block(ctx, 1, testDate, "16:30")
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, a.ID, CompleteInput{Diagnosis: "Flu"})
	require.NoError(t, err)

	rows, err := f.svc.Report(ctx, ReportFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	doctor := int64(1)
	rows, err = f.svc.Report(ctx, ReportFilter{DoctorID: &doctor})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "09:00", rows[0].Time)
	assert.Equal(t, "Dr. Meera Rao", rows[0].DoctorName)
	assert.Equal(t, "Patient 10", rows[0].PatientName)
	assert.Equal(t, "Flu", rows[0].Diagnosis)
	assert.Equal(t, 500.0, rows[0].Fee)
	assert.Equal(t, ReceiptNumber(earlyMorning(), a.ID), rows[0].Receipt)
	assert.Equal(t, "Blocked", rows[2].PatientName)

	rows, err = f.svc.Report(ctx, ReportFilter{Status: StatusCompleted})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	patient := int64(12)
	rows, err = f.svc.Report(ctx, ReportFilter{PatientID: &patient})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Dr. Arjun Shah", rows[0].DoctorName)

	rows, err = f.svc.Report(ctx, ReportFilter{StartDate: "2026-10-21"})
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = f.svc.Report(ctx, ReportFilter{EndDate: "10/20/2026"})
	assert.ErrorIs(t, err, ErrInvalidDate)
}

// Every sequence of operations leaves appointments in one of the four
// statuses and never lets a terminal COMPLETED row move again.
func TestStatusMachineIsClosed(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)
	ctx := context.Background()

	type op func(id int64) error
	ops := map[string]op{
		"approve": func(id int64) error { _, err := f.svc.Approve(ctx, id); return err },
		"edit":    func(id int64) error { _, err := f.svc.EditSymptoms(ctx, id, "edited"); return err },
		"complete": func(id int64) error {
			_, err := f.svc.Complete(ctx, id, CompleteInput{Diagnosis: "d"})
			return err
		},
	}

	valid := map[Status]bool{StatusPending: true, StatusConfirmed: true, StatusCompleted: true, StatusBlocked: true}
	order := []string{"edit", "complete", "approve", "edit", "approve", "complete", "edit", "approve", "complete"}

	appt := f.book(t, 10, 1, "10:00")
	block, err := f.svc.Block(ctx, 1, testDate, "10:30")
	require.NoError(t, err)

	for _, id := range []int64{appt.ID, block.ID} {
		for _, name := range order {
			before, err := f.svc.GetAppointment(ctx, id)
			require.NoError(t, err)

			err = ops[name](id)
			if err != nil {
				require.ErrorIs(t, err, ErrInvalidTransition, name)
			}

			after, err := f.svc.GetAppointment(ctx, id)
			require.NoError(t, err)
			assert.True(t, valid[after.Status])
			if before.Status == StatusCompleted || before.Status == StatusBlocked {
				assert.Equal(t, before.Status, after.Status, name)
			}
		}
	}

	got, err := f.svc.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "edited", got.Symptoms)
}

func TestCompleteRejectsNegativeCharges(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)
	appt := f.confirmed(t, 10, 1, "10:00")

	charges := -1.0
	_, err := f.svc.Complete(context.Background(), appt.ID, CompleteInput{Diagnosis: "x", Charges: &charges})
	assert.ErrorIs(t, err, ErrInvalidCharges)

	got, err := f.svc.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Nil(t, got.ReceiptNumber)

	entries, err := f.svc.KnowledgeEntries(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestKnowledgeEntriesLimit(t *testing.T) {
	f := newLedgerFixture(t, earlyMorning)
	for i, tm := range SlotTimes() {
		appt := f.confirmed(t, int64(10+i), 1, tm)
		_, err := f.svc.Complete(context.Background(), appt.ID, CompleteInput{Diagnosis: "Viral fever"})
		require.NoError(t, err)
	}

	all, err := f.svc.KnowledgeEntries(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 16)

	some, err := f.svc.KnowledgeEntries(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, some, 3)

	capped, err := f.svc.KnowledgeEntries(context.Background(), 500)
	require.NoError(t, err)
	assert.Len(t, capped, 16)
}
