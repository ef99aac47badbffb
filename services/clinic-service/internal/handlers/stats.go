package handlers

import (
	"net/http"
	"time"
)

type statsResponse struct {
	TotalPatients       int            `json:"totalPatients"`
	TotalProviders      int            `json:"totalProviders"`
	TotalAppointments   int            `json:"totalAppointments"`
	QuarterAppointments int            `json:"quarterAppointments"`
	ByStatus            map[string]int `json:"byStatus"`
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.PlatformStats(r.Context(), quarterStart(time.Now().UTC()))
	if err != nil {
		http.Error(w, "failed to compute stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		TotalPatients:       stats.TotalPatients,
		TotalProviders:      stats.TotalProviders,
		TotalAppointments:   stats.TotalAppointments,
		QuarterAppointments: stats.QuarterAppointments,
		ByStatus:            stats.ByStatus,
	})
}

// quarterStart returns midnight UTC of the first day of t's calendar
// quarter.
func quarterStart(t time.Time) time.Time {
	quarterMonth := time.Month(((int(t.Month())-1)/3)*3 + 1)
	return time.Date(t.Year(), quarterMonth, 1, 0, 0, 0, 0, time.UTC)
}
