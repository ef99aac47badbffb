package model

import "time"

// Appointment statuses follow the patient-facing lifecycle: an
// appointment waits, is attended, and ends finished or cancelled.
const (
	StatusWaiting    = "espera"
	StatusInProgress = "en_progreso"
	StatusFinished   = "terminado"
	StatusCancelled  = "cancelado"
)

type Appointment struct {
	ID              string
	PatientID       string
	ProviderID      string
	Date            time.Time // calendar day, midnight UTC
	Time            string    // slot label, "H:MM"
	DurationMinutes int
	Reason          string
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func ValidStatus(s string) bool {
	switch s {
	case StatusWaiting, StatusInProgress, StatusFinished, StatusCancelled:
		return true
	}
	return false
}
