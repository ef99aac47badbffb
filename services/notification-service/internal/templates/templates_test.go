package templates

import (
	"strings"
	"testing"
)

func TestRenderSubstitutesMarkers(t *testing.T) {
	body, err := Render("appointment_created", map[string]string{
		"nombre":         "Ana",
		"medico":         "Dr. Gomez",
		"fecha":          "2026-09-01",
		"hora":           "9:30",
		"appointment_id": "abc-123",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	for _, want := range []string{"Ana", "Dr. Gomez", "2026-09-01", "9:30", "abc-123"} {
		if !strings.Contains(body, want) {
			t.Fatalf("rendered body missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "{{") {
		t.Fatalf("unsubstituted marker left in body:\n%s", body)
	}
}

func TestRenderLeavesUnknownMarkers(t *testing.T) {
	body, err := Render("welcome", map[string]string{"nombre": "Ana"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(body, "{{email}}") {
		t.Fatal("unknown markers should be left in place")
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	if _, err := Render("no_such_template", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}
