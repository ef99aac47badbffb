package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SlotMinutes is the grid granularity. Every slot label marks the start
// of a five minute period.
const SlotMinutes = 5

// Booking is the slice of an appointment the slot grid cares about:
// when it starts and how long it runs.
type Booking struct {
	Time            string
	DurationMinutes int
}

// Label formats a slot start as the wire label: hour unpadded, minute
// always two digits ("9:00", "14:35").
func Label(hour, minute int) string {
	return strconv.Itoa(hour) + ":" + fmt.Sprintf("%02d", minute)
}

// ParseClock splits an "H:MM" label into hour and minute. It accepts
// both "9:00" and "09:00" on input.
func ParseClock(value string) (hour, minute int, err error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, 0, errors.New("invalid time, want H:MM")
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, errors.New("invalid time, want H:MM")
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, errors.New("invalid time, want H:MM")
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, errors.New("time out of range")
	}
	return hour, minute, nil
}

// SlotsFor returns the labels a booking starting at timeStr covers:
// durationMinutes/5 slots stepping forward five minutes at a time, with
// hour rollover. A 9:50 booking of 15 minutes covers 9:50, 9:55 and
// 10:00.
func SlotsFor(timeStr string, durationMinutes int) ([]string, error) {
	hour, minute, err := ParseClock(timeStr)
	if err != nil {
		return nil, err
	}
	count := durationMinutes / SlotMinutes
	labels := make([]string, 0, count)
	for i := 0; i < count; i++ {
		labels = append(labels, Label(hour, minute))
		minute += SlotMinutes
		if minute >= 60 {
			minute = 0
			hour++
		}
	}
	return labels, nil
}

// OccupiedSlots computes which slot labels are taken on a day, given the
// day's shift intervals and its bookings.
//
// With no bookings the day is trivially free and the shifts are never
// consulted. Otherwise a universe of free slots is built from the shift
// intervals, each booking punches out its covered slots (bookings may
// extend past a shift boundary, in which case labels outside the
// universe are created as occupied), and the occupied labels are
// collected. Order is not significant.
func OccupiedSlots(shifts []Interval, booked []Booking) ([]string, error) {
	if len(booked) == 0 {
		return nil, nil
	}

	occupied := map[string]bool{}
	for _, iv := range shifts {
		for hour := iv.From; hour < iv.To; hour++ {
			for minute := 0; minute < 60; minute += SlotMinutes {
				occupied[Label(hour, minute)] = false
			}
		}
	}

	for _, b := range booked {
		labels, err := SlotsFor(b.Time, b.DurationMinutes)
		if err != nil {
			return nil, err
		}
		for _, label := range labels {
			occupied[label] = true
		}
	}

	var taken []string
	for label, isTaken := range occupied {
		if isTaken {
			taken = append(taken, label)
		}
	}
	return taken, nil
}

// SlotConflictError reports which requested slots are already occupied.
type SlotConflictError struct {
	Labels []string
}

func (e *SlotConflictError) Error() string {
	return "slots already occupied: " + strings.Join(e.Labels, ", ")
}

// Validate checks a candidate booking against the already occupied
// labels and returns a *SlotConflictError naming every clash.
func Validate(timeStr string, durationMinutes int, occupied []string) error {
	candidate, err := SlotsFor(timeStr, durationMinutes)
	if err != nil {
		return err
	}
	taken := make(map[string]bool, len(occupied))
	for _, label := range occupied {
		taken[label] = true
	}
	var clashes []string
	for _, label := range candidate {
		if taken[label] {
			clashes = append(clashes, label)
		}
	}
	if len(clashes) > 0 {
		return &SlotConflictError{Labels: clashes}
	}
	return nil
}
