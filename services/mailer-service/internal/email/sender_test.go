package email

import (
	"strings"
	"testing"
	"time"
)

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("no-reply@slotly.local", "ana@example.com", "Confirm your appointment", "body text")
	for _, want := range []string{
		"From: no-reply@slotly.local\r\n",
		"To: ana@example.com\r\n",
		"Subject: Confirm your appointment\r\n",
		"\r\n\r\nbody text\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestConfirmationCodeBody(t *testing.T) {
	start := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	body := ConfirmationCodeBody("Ana", "482913", start)
	if !strings.Contains(body, "482913") {
		t.Fatal("body should contain the code")
	}
	if !strings.Contains(body, "Monday, January 5 at 10:00 AM") {
		t.Fatalf("body should contain the formatted start time:\n%s", body)
	}
}
