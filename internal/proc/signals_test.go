//go:build !windows

package proc

import (
	"strings"
	"testing"
)

func TestParseSignal(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    int
		wantErr string
	}{
		{name: "bare name", in: "TERM", want: 15},
		{name: "sig prefix", in: "SIGKILL", want: 9},
		{name: "lower case", in: "hup", want: 1},
		{name: "padded", in: " int ", want: 2},
		{name: "numeric", in: "9", want: 9},
		{name: "empty", in: "", wantErr: "empty signal"},
		{name: "unknown", in: "SIGNOPE", wantErr: "unknown signal"},
		{name: "zero", in: "0", wantErr: "out of range"},
		{name: "negative", in: "-15", wantErr: "out of range"},
		{name: "huge", in: "128", wantErr: "out of range"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseSignal(tc.in)
			if tc.wantErr != "" {
				if err == nil {
					t.Fatalf("ParseSignal(%q) returned nil error", tc.in)
				}
				if !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("unexpected error: got %q want substring %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSignal(%q) returned error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("ParseSignal(%q) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestSignalName(t *testing.T) {
	if got, want := SignalName(15), "SIGTERM"; got != want {
		t.Fatalf("SignalName(15) = %q, want %q", got, want)
	}
	if got, want := SignalName(9), "SIGKILL"; got != want {
		t.Fatalf("SignalName(9) = %q, want %q", got, want)
	}
	if got, want := SignalName(63), "63"; got != want {
		t.Fatalf("SignalName(63) = %q, want %q", got, want)
	}
}
