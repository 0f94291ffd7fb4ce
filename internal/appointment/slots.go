package appointment

import (
	"fmt"
	"time"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"

	ClinicOpen  = "09:00"
	ClinicClose = "17:00"
	SlotLength  = 30 * time.Minute
)

var slotTimes = buildSlotTimes(ClinicOpen, ClinicClose, SlotLength)

func buildSlotTimes(open, close string, step time.Duration) []string {
	start, err := time.Parse(timeLayout, open)
	if err != nil {
		panic(fmt.Sprintf("bad clinic open time %q", open))
	}
	end, err := time.Parse(timeLayout, close)
	if err != nil {
		panic(fmt.Sprintf("bad clinic close time %q", close))
	}

	var out []string
	for t := start; t.Before(end); t = t.Add(step) {
		out = append(out, t.Format(timeLayout))
	}
	return out
}

// SlotTimes returns the bookable HH:MM start times of a clinic day, in order.
func SlotTimes() []string {
	out := make([]string, len(slotTimes))
	copy(out, slotTimes)
	return out
}

func IsSlotTime(t string) bool {
	for _, s := range slotTimes {
		if s == t {
			return true
		}
	}
	return false
}

// ValidateDate checks a YYYY-MM-DD calendar day.
func ValidateDate(date string) error {
	d, err := time.Parse(dateLayout, date)
	if err != nil || d.Format(dateLayout) != date {
		return ErrInvalidDate
	}
	return nil
}

// ValidateSlot rejects anything that is not a real day plus one of the grid times.
func ValidateSlot(date, tm string) error {
	if err := ValidateDate(date); err != nil {
		return err
	}
	if !IsSlotTime(tm) {
		return ErrInvalidSlot
	}
	return nil
}

// SlotStart is the wall-clock start of a slot in the server's local time.
func SlotStart(date, tm string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout+" "+timeLayout, date+" "+tm, time.Local)
	if err != nil {
		return time.Time{}, ErrInvalidSlot
	}
	return t, nil
}

// ReceiptNumber formats RCP-<YYYYMMDD>-<id padded to 4 digits>.
func ReceiptNumber(issued time.Time, appointmentID int64) string {
	return fmt.Sprintf("RCP-%s-%04d", issued.Format("20060102"), appointmentID)
}
