package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, Token: "tok-test", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRejectsBadURL(t *testing.T) {
	cases := []string{"", "127.0.0.1:7878", "://nope"}
	for _, raw := range cases {
		if _, err := New(Config{BaseURL: raw}); err == nil {
			t.Errorf("New(%q): expected error", raw)
		}
	}
}

func TestStatusSendsBearerToken(t *testing.T) {
	var gotAuth, gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"daemon":         "prod",
			"version":        "1",
			"mode":           "primary",
			"supervisor_pid": 4321,
			"workers": []map[string]any{
				{"name": "web", "role": "worker", "pid": 5001, "alive": true},
			},
			"timelines": map[string]any{"current": 2},
		})
	}))

	report, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if gotAuth != "Bearer tok-test" {
		t.Fatalf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotPath != "/api/v1/status" {
		t.Fatalf("path = %q", gotPath)
	}
	if report.SupervisorPID != 4321 || len(report.Workers) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Workers[0].Name != "web" || !report.Workers[0].Alive {
		t.Fatalf("unexpected worker: %+v", report.Workers[0])
	}
	if report.Timelines.Current == nil || *report.Timelines.Current != 2 {
		t.Fatalf("unexpected current timeline: %v", report.Timelines.Current)
	}
}

func TestTimelinesAbsentPositionsAreNil(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"current":3,"last_replayed":3,"last_received":null}`))
	}))

	report, err := c.Timelines(context.Background())
	if err != nil {
		t.Fatalf("Timelines: %v", err)
	}
	if report.Current == nil || *report.Current != 3 {
		t.Fatalf("current = %v, want 3", report.Current)
	}
	if report.LastReceived != nil {
		t.Fatalf("last_received = %v, want nil", *report.LastReceived)
	}
}

func TestJournalRecordsQueryParams(t *testing.T) {
	var gotAfter, gotLimit string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAfter = r.URL.Query().Get("after")
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"records":[{"seq":8,"timeline":1,"kind":"started","worker":"web"}],"next":8}`))
	}))

	page, err := c.JournalRecords(context.Background(), 7, 64)
	if err != nil {
		t.Fatalf("JournalRecords: %v", err)
	}
	if gotAfter != "7" || gotLimit != "64" {
		t.Fatalf("query = after=%q limit=%q", gotAfter, gotLimit)
	}
	if len(page.Records) != 1 || page.Records[0].Seq != 8 || page.Next != 8 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestSignalSoftMissIsNotAnError(t *testing.T) {
	var gotBody map[string]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/signal/4242" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pid":4242,"signal":15,"delivered":false,"diagnostic":"PID 4242 is not a warden-managed process"}`))
	}))

	result, err := c.Signal(context.Background(), 4242, "TERM")
	if err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if gotBody["signal"] != "TERM" {
		t.Fatalf("body signal = %q", gotBody["signal"])
	}
	if result.Delivered {
		t.Fatal("expected a soft miss")
	}
	if result.Diagnostic == "" {
		t.Fatal("expected a diagnostic for the miss")
	}
}

func TestErrorEnvelopeBecomesAPIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"code":"insufficient_privilege","message":"send_signal: permission denied","details":{"timestamp":"2026-01-02T03:04:05Z"}}`))
	}))

	_, err := c.Signal(context.Background(), 1, "KILL")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !IsCode(err, "insufficient_privilege") {
		t.Fatalf("IsCode = false for %v", err)
	}
	if IsCode(err, "not_standby") {
		t.Fatal("IsCode matched the wrong code")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type %T, want *APIError", err)
	}
	if apiErr.Status != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", apiErr.Status)
	}
	if apiErr.Message != "send_signal: permission denied" {
		t.Fatalf("message = %q", apiErr.Message)
	}
}

func TestInduceFatalSeveredConnectionIsSuccess(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("recorder does not support hijacking")
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Fatalf("hijack: %v", err)
		}
		conn.Close()
	}))

	if err := c.InduceFatal(context.Background()); err != nil {
		t.Fatalf("InduceFatal: %v", err)
	}
}

func TestInducePanicRefusedByGate(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/crash/panic" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"code":"insufficient_privilege","message":"induce_panic: permission denied"}`))
	}))

	err := c.InducePanic(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !IsCode(err, "insufficient_privilege") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPromote(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/promote" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"timeline":4,"promoted_at":"2026-01-02T03:04:05Z"}`))
	}))

	result, err := c.Promote(context.Background())
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if result.Timeline != 4 {
		t.Fatalf("timeline = %d, want 4", result.Timeline)
	}
}

func TestPromoteOnPrimaryIsConflict(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"not_standby","message":"journal is not in standby mode"}`))
	}))

	_, err := c.Promote(context.Background())
	if !IsCode(err, "not_standby") {
		t.Fatalf("unexpected error: %v", err)
	}
}
