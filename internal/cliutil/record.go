package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wardenhq/warden/internal/journal"
)

// RecordLine renders one journal record as a single human-readable line.
func RecordLine(rec journal.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-6d tl=%d  %s  %-16s", rec.Seq, uint32(rec.Timeline), rec.At.Format(time.RFC3339), rec.Kind)
	if rec.Worker != "" {
		fmt.Fprintf(&b, "  worker=%s", rec.Worker)
	}
	if rec.PID != 0 {
		fmt.Fprintf(&b, "  pid=%d", rec.PID)
	}
	if rec.Detail != "" {
		fmt.Fprintf(&b, "  %s", rec.Detail)
	}
	return b.String()
}

// EncodeRecord encodes one journal record as JSON, reporting encode problems
// to stderr instead of aborting the listing.
func EncodeRecord(enc *json.Encoder, stderr io.Writer, rec journal.Record) {
	if enc == nil {
		return
	}
	if err := enc.Encode(&rec); err != nil {
		fmt.Fprintf(stderr, "error: encode record: %v\n", err)
	}
}
