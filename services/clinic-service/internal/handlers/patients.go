package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/salud-online/sos/services/clinic-service/internal/outbox"
	"github.com/salud-online/sos/services/clinic-service/internal/storage"
)

type patientRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	DocumentID string `json:"documentId"`
}

type patientItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

type emrResponse struct {
	PatientID string `json:"patientId"`
	EMR       string `json:"emr"`
}

func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req patientRequest
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

	patient := &storage.Patient{
		Name:       req.Name,
		Email:      req.Email,
		Phone:      strings.TrimSpace(req.Phone),
		DocumentID: strings.TrimSpace(req.DocumentID),
	}
	id, err := h.repo.CreatePatient(ctx, tx, patient)
	if err != nil {
		if storage.IsDuplicate(err) {
			http.Error(w, "email already registered", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create patient", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"patient_id": id,
		"name":       patient.Name,
		"email":      patient.Email,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "patient",
		AggregateID:   id,
		EventType:     "clinic.patient.created.v1",
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

func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.repo.ListPatients(r.Context(), 200)
	if err != nil {
		http.Error(w, "failed to list patients", http.StatusInternalServerError)
		return
	}
	items := make([]patientItem, 0, len(patients))
	for _, p := range patients {
		items = append(items, toPatientItem(p))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.GetPatient(r.Context(), r.PathValue("id"))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load patient", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toPatientItem(p))
}

func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	var req patientRequest
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
	err := h.repo.UpdatePatient(r.Context(), storage.Patient{
		ID:         r.PathValue("id"),
		Name:       req.Name,
		Email:      req.Email,
		Phone:      strings.TrimSpace(req.Phone),
		DocumentID: strings.TrimSpace(req.DocumentID),
	})
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		if storage.IsDuplicate(err) {
			http.Error(w, "email already registered", http.StatusConflict)
			return
		}
		http.Error(w, "failed to update patient", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetEMR(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.GetPatient(r.Context(), r.PathValue("id"))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load patient", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, emrResponse{PatientID: p.ID, EMR: p.EMR})
}

func (h *Handler) UpdateEMR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EMR string `json:"emr"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.EMR) == "" {
		http.Error(w, "emr required", http.StatusBadRequest)
		return
	}
	if err := h.repo.UpdateEMR(r.Context(), r.PathValue("id"), req.EMR); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update emr", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeletePatient(r.Context(), r.PathValue("id")); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete patient", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toPatientItem(p storage.Patient) patientItem {
	return patientItem{
		ID:         p.ID,
		Name:       p.Name,
		Email:      p.Email,
		Phone:      p.Phone,
		DocumentID: p.DocumentID,
		CreatedAt:  p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
