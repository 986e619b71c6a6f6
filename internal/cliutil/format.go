// Package cliutil holds the rendering helpers shared by the warden CLI
// commands: value formatting, terminal colouring and secret redaction.
package cliutil

import (
	"fmt"
	"time"

	units "github.com/docker/go-units"

	"github.com/wardenhq/warden/internal/journal"
)

// FormatTimeline renders a replication position, spelling out the absent
// case instead of printing a zero.
func FormatTimeline(tl *journal.TimelineID) string {
	if tl == nil {
		return "absent"
	}
	return fmt.Sprintf("%d", uint32(*tl))
}

// FormatBytes renders a byte count in binary units (KiB, MiB, ...). Zero
// means the value was not sampled.
func FormatBytes(n uint64) string {
	if n == 0 {
		return "-"
	}
	return units.BytesSize(float64(n))
}

// FormatCPU renders a sampled CPU percentage.
func FormatCPU(pct float64) string {
	if pct == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", pct)
}

// FormatAge renders how long ago t was, truncated to the second.
func FormatAge(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := now.Sub(t)
	if age < 0 {
		age = 0
	}
	return age.Truncate(time.Second).String()
}

// FormatAlive renders process liveness as a short state word.
func FormatAlive(alive bool) string {
	if alive {
		return "up"
	}
	return "down"
}
