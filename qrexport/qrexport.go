// Package qrexport turns the day's tasks into a scannable QR code: a
// human-readable text payload rendered as a PNG. The payload deliberately
// excludes any time-of-day detail; the schedule is a per-day summary.
package qrexport

import (
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"hustlehub-api/domain"
)

// DefaultSize is the rendered image edge in pixels.
const DefaultSize = 256

// DueToday filters tasks to those whose due date falls on now's calendar day.
func DueToday(tasks []domain.Task, now time.Time) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.DueOn(now) {
			out = append(out, t)
		}
	}
	return out
}

// Serialize renders tasks as the fixed multi-line schedule payload. Each task
// becomes a block of title, date, priority and an optional description line,
// closed by a divider; blocks are separated by a blank line.
func Serialize(tasks []domain.Task) string {
	blocks := make([]string, 0, len(tasks))
	for _, t := range tasks {
		var b strings.Builder
		b.WriteString("Title: " + t.Title + "\n")
		b.WriteString("Date: " + t.DueDate.Format("Mon Jan 02 2006") + "\n")
		b.WriteString("Priority: " + string(t.Priority) + "\n")
		if t.Description != "" {
			b.WriteString("Description: " + t.Description + "\n")
		}
		b.WriteString("---")
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

// RenderPNG encodes the payload as a QR code PNG with medium error
// correction, sized for a few hundred characters of schedule text.
func RenderPNG(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}
