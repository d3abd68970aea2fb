package qrexport

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"hustlehub-api/domain"
)

func TestSerializeContainsOnlyTodaysTitles(t *testing.T) {
	now := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)
	tasks := []domain.Task{
		{Title: "Write report", Priority: domain.PriorityHigh, DueDate: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
		{Title: "Plan sprint", Priority: domain.PriorityLow, DueDate: time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)},
	}

	payload := Serialize(DueToday(tasks, now))
	if !strings.Contains(payload, "Write report") {
		t.Fatalf("expected today's task in payload: %q", payload)
	}
	if strings.Contains(payload, "Plan sprint") {
		t.Fatalf("tomorrow's task leaked into payload: %q", payload)
	}
}

func TestSerializeBlockShape(t *testing.T) {
	tasks := []domain.Task{
		{
			Title:       "Write report",
			Description: "quarterly numbers",
			Priority:    domain.PriorityHigh,
			DueDate:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			Title:    "Stand-up",
			Priority: domain.PriorityMedium,
			DueDate:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	payload := Serialize(tasks)
	want := "Title: Write report\n" +
		"Date: Sat Mar 01 2025\n" +
		"Priority: high\n" +
		"Description: quarterly numbers\n" +
		"---\n\n" +
		"Title: Stand-up\n" +
		"Date: Sat Mar 01 2025\n" +
		"Priority: medium\n" +
		"---"
	if payload != want {
		t.Fatalf("unexpected payload:\n%q\nwant:\n%q", payload, want)
	}
}

func TestSerializeEmpty(t *testing.T) {
	if got := Serialize(nil); got != "" {
		t.Fatalf("expected empty payload, got %q", got)
	}
}

func TestRenderPNGProducesImage(t *testing.T) {
	png, err := RenderPNG("Title: Write report\n---", 0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("expected PNG magic, got % x", png[:8])
	}
}
