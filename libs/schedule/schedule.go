package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrScheduleParse wraps every failure to decode or validate a weekly
// schedule document.
var ErrScheduleParse = errors.New("invalid shift schedule")

// Interval is a working period within a day, whole hours, half-open:
// an 8 to 12 interval covers slots 8:00 through 11:55.
type Interval struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// DayAvailability describes one weekday. Shifts are ignored by the slot
// computation when Available is false.
type DayAvailability struct {
	Available bool       `json:"available"`
	Shifts    []Interval `json:"shifts"`
}

// WeekSchedule is a provider's recurring weekly availability, keyed by
// lowercase English weekday names. Providers store this as a JSON text
// attribute; every weekday must be present.
type WeekSchedule struct {
	Sunday    DayAvailability `json:"sunday"`
	Monday    DayAvailability `json:"monday"`
	Tuesday   DayAvailability `json:"tuesday"`
	Wednesday DayAvailability `json:"wednesday"`
	Thursday  DayAvailability `json:"thursday"`
	Friday    DayAvailability `json:"friday"`
	Saturday  DayAvailability `json:"saturday"`
}

var weekdayNames = [7]string{
	"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday",
}

// DayName returns the lowercase English weekday for t, independent of
// process locale.
func DayName(t time.Time) string {
	return weekdayNames[int(t.Weekday())]
}

// Day returns the availability for the named weekday and whether the
// name is a valid weekday key.
func (w *WeekSchedule) Day(name string) (DayAvailability, bool) {
	switch name {
	case "sunday":
		return w.Sunday, true
	case "monday":
		return w.Monday, true
	case "tuesday":
		return w.Tuesday, true
	case "wednesday":
		return w.Wednesday, true
	case "thursday":
		return w.Thursday, true
	case "friday":
		return w.Friday, true
	case "saturday":
		return w.Saturday, true
	}
	return DayAvailability{}, false
}

// ParseWeekSchedule decodes and validates the stored schedule JSON.
//
// Validation is strict: unknown top-level keys are rejected, all seven
// weekdays must be present, hours must be integers in [0,23], each
// interval must satisfy from < to, and intervals within a day must not
// overlap. Inverted and overlapping intervals were silently accepted by
// the legacy system; rejecting them here keeps bad schedules from ever
// being stored, while the slot computation itself stays tolerant of
// whatever it is handed.
func ParseWeekSchedule(raw string) (*WeekSchedule, error) {
	var days map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &days); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScheduleParse, err)
	}

	var week WeekSchedule
	for _, name := range weekdayNames {
		rawDay, ok := days[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing weekday %q", ErrScheduleParse, name)
		}
		delete(days, name)

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(rawDay, &fields); err != nil {
			return nil, fmt.Errorf("%w: weekday %q: %v", ErrScheduleParse, name, err)
		}
		for _, field := range []string{"available", "shifts"} {
			if _, ok := fields[field]; !ok {
				return nil, fmt.Errorf("%w: weekday %q: missing %q", ErrScheduleParse, name, field)
			}
		}

		var day DayAvailability
		if err := json.Unmarshal(rawDay, &day); err != nil {
			return nil, fmt.Errorf("%w: weekday %q: %v", ErrScheduleParse, name, err)
		}
		if err := validateDay(name, day); err != nil {
			return nil, err
		}
		setDay(&week, name, day)
	}
	for key := range days {
		return nil, fmt.Errorf("%w: unknown key %q", ErrScheduleParse, key)
	}
	return &week, nil
}

func validateDay(name string, day DayAvailability) error {
	for i, iv := range day.Shifts {
		if iv.From < 0 || iv.From > 23 || iv.To < 0 || iv.To > 23 {
			return fmt.Errorf("%w: weekday %q shift %d: hours must be within 0..23", ErrScheduleParse, name, i)
		}
		if iv.From >= iv.To {
			return fmt.Errorf("%w: weekday %q shift %d: from must be before to", ErrScheduleParse, name, i)
		}
		for j := 0; j < i; j++ {
			prev := day.Shifts[j]
			if iv.From < prev.To && prev.From < iv.To {
				return fmt.Errorf("%w: weekday %q: shifts %d and %d overlap", ErrScheduleParse, name, j, i)
			}
		}
	}
	return nil
}

func setDay(week *WeekSchedule, name string, day DayAvailability) {
	switch name {
	case "sunday":
		week.Sunday = day
	case "monday":
		week.Monday = day
	case "tuesday":
		week.Tuesday = day
	case "wednesday":
		week.Wednesday = day
	case "thursday":
		week.Thursday = day
	case "friday":
		week.Friday = day
	case "saturday":
		week.Saturday = day
	}
}
