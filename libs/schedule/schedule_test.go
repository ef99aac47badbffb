package schedule

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const sampleSchedule = `{
	"sunday":    {"available": false, "shifts": []},
	"monday":    {"available": true,  "shifts": [{"from": 8, "to": 12}, {"from": 14, "to": 18}]},
	"tuesday":   {"available": true,  "shifts": [{"from": 8, "to": 12}]},
	"wednesday": {"available": true,  "shifts": [{"from": 9, "to": 12}]},
	"thursday":  {"available": true,  "shifts": [{"from": 8, "to": 12}]},
	"friday":    {"available": true,  "shifts": [{"from": 8, "to": 12}]},
	"saturday":  {"available": false, "shifts": []}
}`

func TestParseWeekSchedule(t *testing.T) {
	week, err := ParseWeekSchedule(sampleSchedule)
	if err != nil {
		t.Fatalf("ParseWeekSchedule failed: %v", err)
	}
	if !week.Monday.Available || len(week.Monday.Shifts) != 2 {
		t.Fatalf("monday = %+v", week.Monday)
	}
	if week.Monday.Shifts[1].From != 14 || week.Monday.Shifts[1].To != 18 {
		t.Fatalf("monday second shift = %+v", week.Monday.Shifts[1])
	}
	if week.Sunday.Available {
		t.Fatal("sunday should be unavailable")
	}
}

func TestParseWeekScheduleRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `shifts`},
		{"missing weekday", `{"monday": {"available": true, "shifts": []}}`},
		{"unknown key", sampleScheduleWith(`"someday": {"available": false, "shifts": []},`)},
		{"inverted interval", sampleScheduleReplacing(`{"from": 9, "to": 12}`, `{"from": 12, "to": 9}`)},
		{"equal bounds", sampleScheduleReplacing(`{"from": 9, "to": 12}`, `{"from": 9, "to": 9}`)},
		{"hour out of range", sampleScheduleReplacing(`{"from": 9, "to": 12}`, `{"from": 9, "to": 24}`)},
		{"overlapping shifts", sampleScheduleReplacing(`[{"from": 8, "to": 12}, {"from": 14, "to": 18}]`, `[{"from": 8, "to": 12}, {"from": 11, "to": 14}]`)},
		{"missing available field", sampleScheduleReplacing(`{"available": true,  "shifts": [{"from": 9, "to": 12}]}`, `{"shifts": [{"from": 9, "to": 12}]}`)},
		{"missing shifts field", sampleScheduleReplacing(`{"available": true,  "shifts": [{"from": 9, "to": 12}]}`, `{"available": true}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseWeekSchedule(tc.raw)
			if !errors.Is(err, ErrScheduleParse) {
				t.Fatalf("expected ErrScheduleParse, got %v", err)
			}
		})
	}
}

func TestDayName(t *testing.T) {
	// 2024-07-03 is a Wednesday.
	day := time.Date(2024, 7, 3, 0, 0, 0, 0, time.UTC)
	if got := DayName(day); got != "wednesday" {
		t.Fatalf("DayName = %q", got)
	}
	if got := DayName(day.AddDate(0, 0, 4)); got != "sunday" {
		t.Fatalf("DayName(+4d) = %q", got)
	}
}

func TestDayLookup(t *testing.T) {
	week, err := ParseWeekSchedule(sampleSchedule)
	if err != nil {
		t.Fatalf("ParseWeekSchedule failed: %v", err)
	}
	day, ok := week.Day("wednesday")
	if !ok || len(day.Shifts) != 1 || day.Shifts[0].From != 9 {
		t.Fatalf("Day(wednesday) = %+v, %v", day, ok)
	}
	if _, ok := week.Day("someday"); ok {
		t.Fatal("Day should reject unknown weekday names")
	}
}

func TestWednesdayScheduleDrivesOccupiedSlots(t *testing.T) {
	week, err := ParseWeekSchedule(sampleSchedule)
	if err != nil {
		t.Fatalf("ParseWeekSchedule failed: %v", err)
	}
	day, _ := week.Day(DayName(time.Date(2024, 7, 3, 0, 0, 0, 0, time.UTC)))
	booked := []Booking{
		{Time: "9:00", DurationMinutes: 30},
		{Time: "10:30", DurationMinutes: 30},
	}
	got, err := OccupiedSlots(day.Shifts, booked)
	if err != nil {
		t.Fatalf("OccupiedSlots failed: %v", err)
	}
	if len(got) != 12 {
		t.Fatalf("expected 12 occupied slots, got %d: %v", len(got), got)
	}
}

func sampleScheduleWith(extra string) string {
	return "{" + extra + sampleSchedule[1:]
}

func sampleScheduleReplacing(old, repl string) string {
	return strings.Replace(sampleSchedule, old, repl, 1)
}
