package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/salud-online/sos/libs/schedule"
	"github.com/salud-online/sos/services/booking-service/internal/model"
	"github.com/salud-online/sos/services/booking-service/internal/outbox"
	"github.com/salud-online/sos/services/booking-service/internal/scheduling"
	"github.com/salud-online/sos/services/booking-service/internal/storage"
)

const dateLayout = "2006-01-02"

type AppointmentHandler struct {
	repo            *storage.AppointmentRepository
	outboxRepo      *outbox.Repository
	logger          *slog.Logger
	schedules       scheduling.Provider
	defaultDuration int
}

func NewAppointmentHandler(repo *storage.AppointmentRepository, outboxRepo *outbox.Repository, logger *slog.Logger, schedules scheduling.Provider, defaultDuration int) *AppointmentHandler {
	if defaultDuration <= 0 {
		defaultDuration = 30
	}
	return &AppointmentHandler{
		repo:            repo,
		outboxRepo:      outboxRepo,
		logger:          logger,
		schedules:       schedules,
		defaultDuration: defaultDuration,
	}
}

type createAppointmentRequest struct {
	PatientID       string `json:"patientId"`
	ProviderID      string `json:"providerId"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"durationMinutes"`
	Reason          string `json:"reason"`
}

type appointmentItem struct {
	ID              string `json:"id"`
	PatientID       string `json:"patientId"`
	ProviderID      string `json:"providerId"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"durationMinutes"`
	Reason          string `json:"reason,omitempty"`
	Status          string `json:"status"`
	VideoRoom       string `json:"videoRoom,omitempty"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

type occupiedSlotsResponse struct {
	OccupiedSlots []string `json:"occupiedSlots"`
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	req.PatientID = strings.TrimSpace(req.PatientID)
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.PatientID == "" || req.ProviderID == "" {
		http.Error(w, "patientId and providerId required", http.StatusBadRequest)
		return
	}

	date, err := time.ParseInLocation(dateLayout, strings.TrimSpace(req.Date), time.UTC)
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	hour, minute, err := schedule.ParseClock(strings.TrimSpace(req.Time))
	if err != nil {
		http.Error(w, "invalid time, want H:MM", http.StatusBadRequest)
		return
	}
	duration := req.DurationMinutes
	if duration == 0 {
		duration = h.defaultDuration
	}
	if duration < schedule.SlotMinutes || duration > 8*60 {
		http.Error(w, "durationMinutes out of range", http.StatusBadRequest)
		return
	}

	appt := &model.Appointment{
		PatientID:       req.PatientID,
		ProviderID:      req.ProviderID,
		Date:            date,
		Time:            schedule.Label(hour, minute),
		DurationMinutes: duration,
		Reason:          req.Reason,
		Status:          model.StatusWaiting,
	}

	ctx := r.Context()
	week, err := h.schedules.WeekSchedule(ctx, appt.ProviderID)
	if err != nil {
		if errors.Is(err, scheduling.ErrProviderNotFound) {
			http.Error(w, "provider not found", http.StatusNotFound)
			return
		}
		h.logger.Error("provider schedule fetch failed", "err", err, "provider_id", appt.ProviderID)
		http.Error(w, "schedule service unavailable", http.StatusServiceUnavailable)
		return
	}
	day, _ := week.Day(schedule.DayName(appt.Date))

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialize bookings per provider-day so two requests cannot both see
	// the slots as free.
	if err := h.repo.LockProviderDay(ctx, tx, appt.ProviderID, appt.Date); err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	booked, err := h.repo.DayBookingsTx(ctx, tx, appt.ProviderID, appt.Date)
	if err != nil {
		http.Error(w, "failed to load bookings", http.StatusInternalServerError)
		return
	}
	occupied, err := schedule.OccupiedSlots(day.Shifts, booked)
	if err != nil {
		http.Error(w, "stored booking data is invalid", http.StatusInternalServerError)
		return
	}
	if err := schedule.Validate(appt.Time, appt.DurationMinutes, occupied); err != nil {
		var conflict *schedule.SlotConflictError
		if errors.As(err, &conflict) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":           "slot conflict",
				"conflictingSlots": conflict.Labels,
			})
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.repo.Create(ctx, tx, appt)
	if err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "time slot already booked", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}
	appt.ID = id

	evtPayload, err := json.Marshal(map[string]any{
		"appointment_id":   id,
		"patient_id":       appt.PatientID,
		"provider_id":      appt.ProviderID,
		"date":             appt.Date.Format(dateLayout),
		"time":             appt.Time,
		"duration_minutes": appt.DurationMinutes,
		"reason":           appt.Reason,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   id,
		EventType:     "booking.appointment.booked.v1",
		Payload:       evtPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	created, err := h.repo.GetByID(ctx, id)
	if err != nil {
		// The row committed; answer from what we know.
		now := time.Now().UTC()
		created = *appt
		created.CreatedAt = now
		created.UpdatedAt = now
	}
	writeJSON(w, http.StatusCreated, toItem(created, ""))
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	appts, err := h.repo.ListAll(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toItems(appts))
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.repo.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt, ""))
}

func (h *AppointmentHandler) ListByPatient(w http.ResponseWriter, r *http.Request) {
	appts, err := h.repo.ListByPatient(r.Context(), r.PathValue("patientID"))
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toItems(appts))
}

func (h *AppointmentHandler) ListByProvider(w http.ResponseWriter, r *http.Request) {
	var statuses []string
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if !model.ValidStatus(s) {
				http.Error(w, "invalid status filter", http.StatusBadRequest)
				return
			}
			statuses = append(statuses, s)
		}
	}
	appts, err := h.repo.ListByProvider(r.Context(), r.PathValue("providerID"), statuses)
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toItems(appts))
}

// OccupiedSlots answers the availability query the booking UI polls while
// the patient picks a time.
func (h *AppointmentHandler) OccupiedSlots(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("providerID")
	date, err := time.ParseInLocation(dateLayout, strings.TrimSpace(r.URL.Query().Get("date")), time.UTC)
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	week, err := h.schedules.WeekSchedule(ctx, providerID)
	if err != nil {
		if errors.Is(err, scheduling.ErrProviderNotFound) {
			http.Error(w, "provider not found", http.StatusNotFound)
			return
		}
		h.logger.Error("provider schedule fetch failed", "err", err, "provider_id", providerID)
		http.Error(w, "schedule service unavailable", http.StatusServiceUnavailable)
		return
	}

	booked, err := h.repo.DayBookings(ctx, providerID, date)
	if err != nil {
		http.Error(w, "failed to load bookings", http.StatusInternalServerError)
		return
	}

	day, _ := week.Day(schedule.DayName(date))
	occupied, err := schedule.OccupiedSlots(day.Shifts, booked)
	if err != nil {
		http.Error(w, "stored booking data is invalid", http.StatusInternalServerError)
		return
	}
	sort.Strings(occupied)
	if occupied == nil {
		occupied = []string{}
	}
	writeJSON(w, http.StatusOK, occupiedSlotsResponse{OccupiedSlots: occupied})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *AppointmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Status = strings.TrimSpace(req.Status)
	if !model.ValidStatus(req.Status) {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.repo.GetForUpdate(ctx, tx, r.PathValue("id"))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}

	if appt.Status == req.Status {
		writeJSON(w, http.StatusOK, toItem(appt, videoRoomFor(appt)))
		return
	}
	if !allowedTransition(appt.Status, req.Status) {
		http.Error(w, "invalid status transition", http.StatusConflict)
		return
	}

	updated, err := h.repo.UpdateStatus(ctx, tx, appt.ID, req.Status)
	if err != nil {
		http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		return
	}

	evtPayload, err := json.Marshal(map[string]any{
		"appointment_id": updated.ID,
		"patient_id":     updated.PatientID,
		"provider_id":    updated.ProviderID,
		"date":           updated.Date.Format(dateLayout),
		"time":           updated.Time,
		"old_status":     appt.Status,
		"new_status":     updated.Status,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   updated.ID,
		EventType:     "booking.appointment.status_changed.v1",
		Payload:       evtPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}
	if updated.Status == model.StatusCancelled {
		if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   updated.ID,
			EventType:     "booking.appointment.cancelled.v1",
			Payload:       evtPayload,
		}); err != nil {
			http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toItem(updated, videoRoomFor(updated)))
}

func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), r.PathValue("id")); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete appointment", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// allowedTransition encodes the appointment lifecycle: waiting
// appointments can start or be cancelled, in-progress ones can finish or
// be cancelled, finished and cancelled are terminal.
func allowedTransition(from, to string) bool {
	switch from {
	case model.StatusWaiting:
		return to == model.StatusInProgress || to == model.StatusCancelled
	case model.StatusInProgress:
		return to == model.StatusFinished || to == model.StatusCancelled
	}
	return false
}

// videoRoomFor derives the consultation room slug handed to the video
// frontend once an appointment starts. Deterministic so both patient and
// provider land in the same room.
func videoRoomFor(appt model.Appointment) string {
	if appt.Status != model.StatusInProgress {
		return ""
	}
	sum := sha256.Sum256([]byte("sos-room:" + appt.ID))
	return "sos-" + hex.EncodeToString(sum[:8])
}

func toItem(appt model.Appointment, videoRoom string) appointmentItem {
	return appointmentItem{
		ID:              appt.ID,
		PatientID:       appt.PatientID,
		ProviderID:      appt.ProviderID,
		Date:            appt.Date.Format(dateLayout),
		Time:            appt.Time,
		DurationMinutes: appt.DurationMinutes,
		Reason:          appt.Reason,
		Status:          appt.Status,
		VideoRoom:       videoRoom,
		CreatedAt:       appt.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       appt.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toItems(appts []model.Appointment) []appointmentItem {
	items := make([]appointmentItem, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toItem(appt, ""))
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
