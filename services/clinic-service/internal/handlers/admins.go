package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/salud-online/sos/services/clinic-service/internal/outbox"
	"github.com/salud-online/sos/services/clinic-service/internal/storage"
)

type adminRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type adminItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
}

func (h *Handler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
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

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	admin := &storage.Admin{Name: req.Name, Email: req.Email}
	id, err := h.repo.CreateAdmin(ctx, tx, admin)
	if err != nil {
		if storage.IsDuplicate(err) {
			http.Error(w, "email already registered", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create admin", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"admin_id": id,
		"name":     admin.Name,
		"email":    admin.Email,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "admin",
		AggregateID:   id,
		EventType:     "clinic.admin.created.v1",
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

func (h *Handler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.repo.ListAdmins(r.Context(), 100)
	if err != nil {
		http.Error(w, "failed to list admins", http.StatusInternalServerError)
		return
	}
	items := make([]adminItem, 0, len(admins))
	for _, a := range admins {
		items = append(items, adminItem{
			ID:        a.ID,
			Name:      a.Name,
			Email:     a.Email,
			CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) GetAdmin(w http.ResponseWriter, r *http.Request) {
	a, err := h.repo.GetAdmin(r.Context(), r.PathValue("id"))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "admin not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load admin", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, adminItem{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) DeleteAdmin(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteAdmin(r.Context(), r.PathValue("id")); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "admin not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete admin", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
