package cliutil

import (
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/journal"
)

func TestFormatTimeline(t *testing.T) {
	if got := FormatTimeline(nil); got != "absent" {
		t.Fatalf("nil timeline = %q, want absent", got)
	}
	tl := journal.TimelineID(3)
	if got := FormatTimeline(&tl); got != "3" {
		t.Fatalf("timeline = %q, want 3", got)
	}
}

func TestFormatBytes(t *testing.T) {
	if got := FormatBytes(0); got != "-" {
		t.Fatalf("zero bytes = %q, want -", got)
	}
	if got := FormatBytes(1536); got != "1.5KiB" {
		t.Fatalf("1536 bytes = %q, want 1.5KiB", got)
	}
}

func TestFormatCPU(t *testing.T) {
	if got := FormatCPU(0); got != "-" {
		t.Fatalf("zero cpu = %q, want -", got)
	}
	if got := FormatCPU(12.34); got != "12.3%" {
		t.Fatalf("cpu = %q, want 12.3%%", got)
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	if got := FormatAge(time.Time{}, now); got != "-" {
		t.Fatalf("zero time = %q, want -", got)
	}
	if got := FormatAge(now.Add(-90*time.Second), now); got != "1m30s" {
		t.Fatalf("age = %q, want 1m30s", got)
	}
	if got := FormatAge(now.Add(time.Minute), now); got != "0s" {
		t.Fatalf("future start = %q, want 0s", got)
	}
}

func TestFormatAlive(t *testing.T) {
	if FormatAlive(true) != "up" || FormatAlive(false) != "down" {
		t.Fatal("unexpected liveness words")
	}
}
