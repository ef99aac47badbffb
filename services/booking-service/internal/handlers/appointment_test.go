package handlers

import (
	"testing"

	"github.com/salud-online/sos/services/booking-service/internal/model"
)

func TestAllowedTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{model.StatusWaiting, model.StatusInProgress, true},
		{model.StatusWaiting, model.StatusCancelled, true},
		{model.StatusWaiting, model.StatusFinished, false},
		{model.StatusInProgress, model.StatusFinished, true},
		{model.StatusInProgress, model.StatusCancelled, true},
		{model.StatusInProgress, model.StatusWaiting, false},
		{model.StatusFinished, model.StatusInProgress, false},
		{model.StatusCancelled, model.StatusWaiting, false},
	}
	for _, tc := range cases {
		if got := allowedTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("allowedTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestVideoRoomOnlyWhileInProgress(t *testing.T) {
	appt := model.Appointment{ID: "5f2c9d1e", Status: model.StatusInProgress}
	room := videoRoomFor(appt)
	if room == "" {
		t.Fatal("expected a room slug for an in-progress appointment")
	}
	if room != videoRoomFor(appt) {
		t.Fatal("room slug must be deterministic")
	}

	other := appt
	other.ID = "a1b2c3d4"
	if videoRoomFor(other) == room {
		t.Fatal("different appointments must get different rooms")
	}

	appt.Status = model.StatusWaiting
	if videoRoomFor(appt) != "" {
		t.Fatal("waiting appointments must not expose a room")
	}
}
