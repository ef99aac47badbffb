package email

import (
	"strings"
	"testing"
)

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("no-reply@saludonlinesolidaria.com", "ana@example.com", "Turno confirmado", "<p>hola</p>")
	for _, want := range []string{
		"From: no-reply@saludonlinesolidaria.com",
		"To: ana@example.com",
		"Subject: Turno confirmado",
		"Content-Type: text/html; charset=utf-8",
		"<p>hola</p>",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
	headerEnd := strings.Index(msg, "\r\n\r\n")
	if headerEnd < 0 {
		t.Fatal("message missing header/body separator")
	}
}
