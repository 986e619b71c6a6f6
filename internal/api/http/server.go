// Package httpapi serves the daemon control surface over HTTP.
package httpapi

import (
	stdcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/wardenhq/warden/internal/admin"
	"github.com/wardenhq/warden/internal/api"
	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/journal"
	"github.com/wardenhq/warden/internal/metrics"
	"github.com/wardenhq/warden/internal/proc"
)

const (
	defaultAddr            = "127.0.0.1:7878"
	defaultReadHeader      = 5 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultRecordLimit     = 256
	maxRecordLimit         = 1024
	maxBodyBytes           = 1 << 16

	// Mutating routes share one small token bucket. Crash injection and
	// signal fan-out are operator actions, not a data path.
	mutationRate  = rate.Limit(5)
	mutationBurst = 10
)

// Config controls construction of the API server.
type Config struct {
	Addr              string
	Controller        api.Controller
	Identities        *identity.Store
	Logger            *slog.Logger
	Listener          net.Listener
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server wraps an http.Server exposing the daemon controls.
type Server struct {
	ctrl            api.Controller
	ids             *identity.Store
	logger          *slog.Logger
	srv             *http.Server
	listener        net.Listener
	shutdownTimeout time.Duration
	limiter         *rate.Limiter
}

// NewServer constructs a Server with sane defaults.
func NewServer(cfg Config) (*Server, error) {
	if isNilController(cfg.Controller) {
		return nil, fmt.Errorf("controller is required, got %T", cfg.Controller)
	}
	if cfg.Identities == nil {
		return nil, fmt.Errorf("identity store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	addr := normalizeAddr(cfg.Addr)
	mux := http.NewServeMux()
	server := &Server{
		ctrl:            cfg.Controller,
		ids:             cfg.Identities,
		logger:          logger,
		listener:        cfg.Listener,
		shutdownTimeout: cfg.ShutdownTimeout,
		limiter:         rate.NewLimiter(mutationRate, mutationBurst),
	}
	if server.shutdownTimeout == 0 {
		server.shutdownTimeout = defaultShutdownTimeout
	}
	server.registerRoutes(mux)
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.recoverer(mux),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	if srv.ReadHeaderTimeout == 0 {
		srv.ReadHeaderTimeout = defaultReadHeader
	}
	server.srv = srv
	return server, nil
}

// Run starts serving until the provided context is cancelled.
func (s *Server) Run(ctx stdcontext.Context) error {
	if ctx == nil {
		ctx = stdcontext.Background()
	}
	errCh := make(chan error, 1)
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := stdcontext.WithTimeout(stdcontext.Background(), s.shutdownTimeout)
			defer cancel()
			_ = s.srv.Shutdown(shutdownCtx)
		case <-stop:
		}
	}()

	go func() {
		var err error
		if s.listener != nil {
			err = s.srv.Serve(s.listener)
		} else {
			err = s.srv.ListenAndServe()
		}
		errCh <- err
	}()

	err := <-errCh
	close(stop)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.srv.Addr
}

// Handler returns the fully wrapped route tree. Exposed for tests that
// exercise the server through httptest.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	mux.Handle("/api/v1/status", s.authenticated(s.handleStatus))
	mux.Handle("/api/v1/timelines", s.authenticated(s.handleTimelines))
	mux.Handle("/api/v1/journal/records", s.authenticated(s.handleJournalRecords))
	mux.Handle("/api/v1/signal/", s.authenticated(s.limited(s.handleSignal)))
	mux.Handle("/api/v1/crash/panic", s.authenticated(s.limited(s.handleCrashPanic)))
	mux.Handle("/api/v1/crash/fatal", s.authenticated(s.limited(s.handleCrashFatal)))
	mux.Handle("/api/v1/promote", s.authenticated(s.limited(s.handlePromote)))
}

// recoverer translates an injected fatal into a severed connection. The
// sentinel panic unwinds to here and is converted to http.ErrAbortHandler so
// net/http drops exactly this connection and keeps the daemon serving.
// Anything else keeps propagating to net/http's own recovery.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, admin.ErrFatalInjected) {
				s.logger.Warn("severing connection after injected fatal",
					"remote", r.RemoteAddr,
					"path", r.URL.Path)
				panic(http.ErrAbortHandler)
			}
			panic(rec)
		}()
		next.ServeHTTP(w, r)
	})
}

type identityKey struct{}

func withIdentity(ctx stdcontext.Context, id identity.Identity) stdcontext.Context {
	return stdcontext.WithValue(ctx, identityKey{}, id)
}

func callerIdentity(ctx stdcontext.Context) identity.Identity {
	if id, ok := ctx.Value(identityKey{}).(identity.Identity); ok {
		return id
	}
	return identity.Anonymous
}

// authenticated resolves the bearer token and rejects callers that do not
// map to a configured identity. Role enforcement beyond "is authenticated"
// stays with the controller so the privilege error names the operation.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.ids.Identify(bearerToken(r))
		if id.Role == identity.RoleNone {
			w.Header().Set("WWW-Authenticate", `Bearer realm="warden"`)
			s.writeError(w, api.ErrUnauthorized)
			return
		}
		next(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.writeError(w, api.ErrRateLimited)
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	result, err := s.ctrl.Status(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTimelines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	result, err := s.ctrl.Timelines(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleJournalRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	q := r.URL.Query()
	var (
		after uint64
		limit = defaultRecordLimit
		err   error
	)
	if raw := q.Get("after"); raw != "" {
		after, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: after=%q", api.ErrInvalidArgument, raw))
			return
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.writeError(w, fmt.Errorf("%w: limit=%q", api.ErrInvalidArgument, raw))
			return
		}
	}
	if limit > maxRecordLimit {
		limit = maxRecordLimit
	}
	page, err := s.ctrl.JournalRecords(r.Context(), after, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	rawPID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/v1/signal/"))
	if rawPID == "" || strings.Contains(rawPID, "/") {
		s.writeErrorWithDetails(w, fmt.Errorf("%w: missing pid path segment", api.ErrInvalidPID), map[string]any{"pid": rawPID})
		return
	}
	pid, err := strconv.Atoi(rawPID)
	if err != nil {
		s.writeErrorWithDetails(w, fmt.Errorf("%w: %q", api.ErrInvalidPID, rawPID), map[string]any{"pid": rawPID})
		return
	}

	signum, err := decodeSignalBody(r)
	if err != nil {
		s.writeErrorWithDetails(w, err, map[string]any{"pid": pid})
		return
	}

	result, err := s.ctrl.SignalProcess(r.Context(), callerIdentity(r.Context()), pid, signum)
	if err != nil {
		s.writeErrorWithDetails(w, err, map[string]any{"pid": pid})
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// decodeSignalBody accepts {"signal": 15} and {"signal": "TERM"}.
func decodeSignalBody(r *http.Request) (int, error) {
	var req struct {
		Signal any `json:"signal"`
	}
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return 0, fmt.Errorf("%w: decode body: %v", api.ErrUnknownSignal, err)
	}
	switch v := req.Signal.(type) {
	case float64:
		n := int(v)
		if float64(n) != v || n <= 0 || n >= 64 {
			return 0, fmt.Errorf("%w: %v", api.ErrUnknownSignal, v)
		}
		return n, nil
	case string:
		n, err := proc.ParseSignal(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", api.ErrUnknownSignal, err)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("%w: signal is required", api.ErrUnknownSignal)
	default:
		return 0, fmt.Errorf("%w: signal must be a name or number", api.ErrUnknownSignal)
	}
}

func (s *Server) handleCrashPanic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	// On success the controller does not return; the daemon is gone.
	if err := s.ctrl.InducePanic(r.Context(), callerIdentity(r.Context())); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"result": "panic requested"})
}

func (s *Server) handleCrashFatal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	// On success the controller panics with the fatal sentinel, which the
	// recoverer converts into a severed connection.
	if err := s.ctrl.InduceFatal(r.Context(), callerIdentity(r.Context())); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"result": "fatal requested"})
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	result, err := s.ctrl.Promote(r.Context(), callerIdentity(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, method string) {
	w.Header().Set("Allow", method)
	s.writeJSON(w, http.StatusMethodNotAllowed, errorBody{
		Code:    "method_not_allowed",
		Message: fmt.Sprintf("method %s not allowed", method),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeErrorWithDetails(w, err, nil)
}

func (s *Server) writeErrorWithDetails(w http.ResponseWriter, err error, extra map[string]any) {
	status, code := classifyError(err)
	details := map[string]any{
		"timestamp": time.Now().UTC(),
	}
	for k, v := range extra {
		details[k] = v
	}
	body := errorBody{
		Code:    code,
		Message: err.Error(),
		Details: details,
	}
	s.writeJSON(w, status, body)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, stdcontext.Canceled):
		return 499, "context_canceled"
	case errors.Is(err, api.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, admin.ErrInsufficientPrivilege):
		return http.StatusForbidden, "insufficient_privilege"
	case errors.Is(err, api.ErrUnknownSignal):
		return http.StatusBadRequest, "unknown_signal"
	case errors.Is(err, api.ErrInvalidPID):
		return http.StatusBadRequest, "invalid_pid"
	case errors.Is(err, api.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, api.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, journal.ErrNotStandby):
		return http.StatusConflict, "not_standby"
	case errors.Is(err, journal.ErrStandby):
		return http.StatusConflict, "standby"
	case errors.Is(err, journal.ErrSequenceGap):
		return http.StatusConflict, "sequence_gap"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func isNilController(ctrl api.Controller) bool {
	if ctrl == nil {
		return true
	}
	v := reflect.ValueOf(ctrl)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func normalizeAddr(addr string) string {
	if strings.TrimSpace(addr) == "" {
		return defaultAddr
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// If parsing failed, trust caller.
		return addr
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
