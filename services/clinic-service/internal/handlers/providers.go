package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/salud-online/sos/libs/schedule"
	"github.com/salud-online/sos/services/clinic-service/internal/outbox"
	"github.com/salud-online/sos/services/clinic-service/internal/storage"
)

// EmptyWeek is the schedule a provider starts with until they configure
// their shifts.
const EmptyWeek = `{"sunday":{"available":false,"shifts":[]},"monday":{"available":false,"shifts":[]},"tuesday":{"available":false,"shifts":[]},"wednesday":{"available":false,"shifts":[]},"thursday":{"available":false,"shifts":[]},"friday":{"available":false,"shifts":[]},"saturday":{"available":false,"shifts":[]}}`

type providerRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Specialty string `json:"specialty"`
	Shifts    string `json:"shifts"`
}

type providerItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Specialty string `json:"specialty,omitempty"`
	Shifts    string `json:"shifts"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func (h *Handler) CreateProvider(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" {
		http.Error(w, "name and email required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Shifts) == "" {
		req.Shifts = EmptyWeek
	}
	if _, err := schedule.ParseWeekSchedule(req.Shifts); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	provider := &storage.Provider{
		Name:      req.Name,
		Email:     req.Email,
		Phone:     strings.TrimSpace(req.Phone),
		Specialty: strings.TrimSpace(req.Specialty),
		Shifts:    req.Shifts,
	}
	id, err := h.repo.CreateProvider(ctx, tx, provider)
	if err != nil {
		if storage.IsDuplicate(err) {
			http.Error(w, "email already registered", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create provider", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"provider_id": id,
		"name":        provider.Name,
		"email":       provider.Email,
		"specialty":   provider.Specialty,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "provider",
		AggregateID:   id,
		EventType:     "clinic.provider.created.v1",
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.repo.ListProviders(r.Context(), 200)
	if err != nil {
		http.Error(w, "failed to list providers", http.StatusInternalServerError)
		return
	}
	items := make([]providerItem, 0, len(providers))
	for _, p := range providers {
		items = append(items, toProviderItem(p))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) GetProvider(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.GetProvider(r.Context(), r.PathValue("id"))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "provider not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load provider", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toProviderItem(p))
}

func (h *Handler) UpdateProvider(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" {
		http.Error(w, "name and email required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Shifts) == "" {
		req.Shifts = EmptyWeek
	}
	if _, err := schedule.ParseWeekSchedule(req.Shifts); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := h.repo.UpdateProvider(r.Context(), storage.Provider{
		ID:        r.PathValue("id"),
		Name:      req.Name,
		Email:     req.Email,
		Phone:     strings.TrimSpace(req.Phone),
		Specialty: strings.TrimSpace(req.Specialty),
		Shifts:    req.Shifts,
	})
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "provider not found", http.StatusNotFound)
			return
		}
		if storage.IsDuplicate(err) {
			http.Error(w, "email already registered", http.StatusConflict)
			return
		}
		http.Error(w, "failed to update provider", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSchedule serves the raw weekly shift document. booking-service
// calls this when computing occupied slots.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	shifts, err := h.repo.GetProviderShifts(r.Context(), r.PathValue("id"))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "provider not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load schedule", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"shifts": shifts})
}

func (h *Handler) DeleteProvider(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteProvider(r.Context(), r.PathValue("id")); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "provider not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete provider", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toProviderItem(p storage.Provider) providerItem {
	return providerItem{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		Phone:     p.Phone,
		Specialty: p.Specialty,
		Shifts:    p.Shifts,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
