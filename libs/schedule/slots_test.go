package schedule

import (
	"errors"
	"sort"
	"testing"
)

func TestLabelFormatsMinuteWithTwoDigits(t *testing.T) {
	cases := []struct {
		hour, minute int
		want         string
	}{
		{9, 0, "9:00"},
		{9, 5, "9:05"},
		{10, 0, "10:00"},
		{14, 35, "14:35"},
		{0, 0, "0:00"},
		{23, 55, "23:55"},
	}
	for _, tc := range cases {
		if got := Label(tc.hour, tc.minute); got != tc.want {
			t.Fatalf("Label(%d, %d) = %q, want %q", tc.hour, tc.minute, got, tc.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	hour, minute, err := ParseClock("9:05")
	if err != nil {
		t.Fatalf("ParseClock failed: %v", err)
	}
	if hour != 9 || minute != 5 {
		t.Fatalf("ParseClock(9:05) = %d:%d", hour, minute)
	}

	if _, _, err := ParseClock("0930"); err == nil {
		t.Fatal("expected error for missing colon")
	}
	if _, _, err := ParseClock("24:00"); err == nil {
		t.Fatal("expected error for hour out of range")
	}
	if _, _, err := ParseClock("9:60"); err == nil {
		t.Fatal("expected error for minute out of range")
	}
}

func TestSlotsForStepsAcrossTheHour(t *testing.T) {
	got, err := SlotsFor("9:50", 15)
	if err != nil {
		t.Fatalf("SlotsFor failed: %v", err)
	}
	want := []string{"9:50", "9:55", "10:00"}
	if len(got) != len(want) {
		t.Fatalf("SlotsFor returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SlotsFor returned %v, want %v", got, want)
		}
	}
}

func TestOccupiedSlotsEmptyWithoutBookings(t *testing.T) {
	shifts := []Interval{{From: 9, To: 12}}
	got, err := OccupiedSlots(shifts, nil)
	if err != nil {
		t.Fatalf("OccupiedSlots failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no occupied slots, got %v", got)
	}
}

func TestOccupiedSlotsMarksBookedRanges(t *testing.T) {
	shifts := []Interval{{From: 9, To: 12}}
	booked := []Booking{
		{Time: "9:00", DurationMinutes: 30},
		{Time: "10:30", DurationMinutes: 30},
	}
	got, err := OccupiedSlots(shifts, booked)
	if err != nil {
		t.Fatalf("OccupiedSlots failed: %v", err)
	}
	sort.Strings(got)
	want := []string{
		"10:30", "10:35", "10:40", "10:45", "10:50", "10:55",
		"9:00", "9:05", "9:10", "9:15", "9:20", "9:25",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d occupied slots %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("occupied slots %v, want %v", got, want)
		}
	}
}

func TestOccupiedSlotsBookingPastShiftEnd(t *testing.T) {
	shifts := []Interval{{From: 9, To: 10}}
	booked := []Booking{{Time: "9:50", DurationMinutes: 15}}
	got, err := OccupiedSlots(shifts, booked)
	if err != nil {
		t.Fatalf("OccupiedSlots failed: %v", err)
	}
	sort.Strings(got)
	want := []string{"10:00", "9:50", "9:55"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestOccupiedSlotsIgnoresShiftsWhenEmptyDay(t *testing.T) {
	// Shifts deliberately malformed: they must never be read when there
	// are no bookings.
	shifts := []Interval{{From: 12, To: 9}}
	got, err := OccupiedSlots(shifts, nil)
	if err != nil {
		t.Fatalf("OccupiedSlots failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestValidateDetectsConflicts(t *testing.T) {
	occupied := []string{"9:00", "9:05", "9:10", "9:15", "9:20", "9:25"}

	err := Validate("9:10", 10, occupied)
	var conflict *SlotConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected SlotConflictError, got %v", err)
	}
	if len(conflict.Labels) != 2 || conflict.Labels[0] != "9:10" || conflict.Labels[1] != "9:15" {
		t.Fatalf("conflict labels = %v", conflict.Labels)
	}

	if err := Validate("10:00", 30, occupied); err != nil {
		t.Fatalf("expected 10:00 to be free: %v", err)
	}
}

func TestValidatePartialOverlapStillConflicts(t *testing.T) {
	occupied := []string{"9:30"}
	err := Validate("9:20", 15, occupied)
	var conflict *SlotConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected SlotConflictError, got %v", err)
	}
	if len(conflict.Labels) != 1 || conflict.Labels[0] != "9:30" {
		t.Fatalf("conflict labels = %v", conflict.Labels)
	}
}

func TestSlotsForZeroDuration(t *testing.T) {
	got, err := SlotsFor("9:00", 0)
	if err != nil {
		t.Fatalf("SlotsFor failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no slots for zero duration, got %v", got)
	}
}
