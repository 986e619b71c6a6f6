package config

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// Daemon replication modes.
const (
	ModePrimary = "primary"
	ModeStandby = "standby"
)

// Config mirrors the warden.yaml document structure.
type Config struct {
	Version     string                 `yaml:"version"`
	Daemon      DaemonSpec             `yaml:"daemon"`
	Journal     JournalSpec            `yaml:"journal"`
	Mode        string                 `yaml:"mode"`
	Primary     *PrimarySpec           `yaml:"primary"`
	Auth        AuthSpec               `yaml:"auth"`
	Defaults    Defaults               `yaml:"defaults"`
	Workers     map[string]*WorkerSpec `yaml:"workers"`
	Auxiliaries map[string]*WorkerSpec `yaml:"auxiliaries"`
}

// DaemonSpec holds daemon-wide settings.
type DaemonSpec struct {
	Name   string   `yaml:"name"`
	Listen string   `yaml:"listen"`
	Grace  Duration `yaml:"grace"`
	Log    LogSpec  `yaml:"log"`
}

// LogSpec configures the daemon's structured log output.
type LogSpec struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// JournalSpec locates the timeline journal on disk.
type JournalSpec struct {
	Dir string `yaml:"dir"`
}

// PrimarySpec tells a standby where to replicate from.
type PrimarySpec struct {
	URL          string   `yaml:"url"`
	Token        string   `yaml:"token"`
	PollInterval Duration `yaml:"pollInterval"`
}

// AuthSpec lists the bearer credentials accepted by the control API.
type AuthSpec struct {
	Tokens []TokenSpec `yaml:"tokens"`
}

// TokenSpec is one bearer credential and the role it grants.
type TokenSpec struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
	Role  string `yaml:"role"`
}

// Defaults captures default policies applied to workers.
type Defaults struct {
	Restart *RestartPolicy `yaml:"restartPolicy"`
}

// WorkerSpec describes an individual managed process.
type WorkerSpec struct {
	Command         []string          `yaml:"command"`
	Env             map[string]string `yaml:"env"`
	EnvFromFile     string            `yaml:"envFromFile"`
	Workdir         string            `yaml:"workdir"`
	RestartPolicy   *RestartPolicy    `yaml:"restartPolicy"`
	ResolvedWorkdir string            `yaml:"-"`
}

// RestartPolicy defines restart behaviour for a worker.
type RestartPolicy struct {
	MaxRetries int          `yaml:"maxRetries"`
	Backoff    *BackoffSpec `yaml:"backoff"`
}

// BackoffSpec describes exponential backoff configuration.
type BackoffSpec struct {
	Min    Duration `yaml:"min"`
	Max    Duration `yaml:"max"`
	Factor float64  `yaml:"factor"`
}

// Clone creates a deep copy of the restart policy.
func (r *RestartPolicy) Clone() *RestartPolicy {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Backoff != nil {
		cp.Backoff = &BackoffSpec{
			Min:    r.Backoff.Min,
			Max:    r.Backoff.Max,
			Factor: r.Backoff.Factor,
		}
	}
	return &cp
}

// Clone creates a deep copy of the worker specification.
func (w *WorkerSpec) Clone() *WorkerSpec {
	if w == nil {
		return nil
	}
	cp := *w
	if w.Command != nil {
		cp.Command = append([]string(nil), w.Command...)
	}
	if w.Env != nil {
		cp.Env = make(map[string]string, len(w.Env))
		for k, v := range w.Env {
			cp.Env[k] = v
		}
	}
	if w.RestartPolicy != nil {
		cp.RestartPolicy = w.RestartPolicy.Clone()
	}
	return &cp
}

// ApplyDefaults fills unset fields with their documented defaults and merges
// the default restart policy onto workers that name none.
func (c *Config) ApplyDefaults() error {
	if c.Mode == "" {
		c.Mode = ModePrimary
	}
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Daemon.Listen == "" {
		c.Daemon.Listen = "127.0.0.1:7878"
	}
	if c.Daemon.Log.Level == "" {
		c.Daemon.Log.Level = "info"
	}
	if c.Daemon.Log.Format == "" {
		c.Daemon.Log.Format = "text"
	}
	if c.Primary != nil && !c.Primary.PollInterval.IsSet() {
		c.Primary.PollInterval = Duration{Duration: time.Second}
	}
	for name, w := range c.Workers {
		if w == nil {
			return fmt.Errorf("worker %q is null", name)
		}
		if w.RestartPolicy == nil && c.Defaults.Restart != nil {
			w.RestartPolicy = c.Defaults.Restart.Clone()
		}
	}
	for name, w := range c.Auxiliaries {
		if w == nil {
			return fmt.Errorf("auxiliary %q is null", name)
		}
		if w.RestartPolicy == nil && c.Defaults.Restart != nil {
			w.RestartPolicy = c.Defaults.Restart.Clone()
		}
	}
	return nil
}

// Validate enforces schema invariants.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("%s: is required", fieldPath("version"))
	}
	if c.Mode != ModePrimary && c.Mode != ModeStandby {
		return fmt.Errorf("%s: unsupported mode %q (supported values: primary, standby)", fieldPath("mode"), c.Mode)
	}
	if c.Mode == ModeStandby {
		if c.Primary == nil || strings.TrimSpace(c.Primary.URL) == "" {
			return fmt.Errorf("%s: is required in standby mode", fieldPath("primary", "url"))
		}
		u, err := url.Parse(c.Primary.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s: invalid url %q", fieldPath("primary", "url"), c.Primary.URL)
		}
		if c.Primary.PollInterval.Duration <= 0 {
			return fmt.Errorf("%s: must be positive", fieldPath("primary", "pollInterval"))
		}
	}
	if strings.TrimSpace(c.Journal.Dir) == "" {
		return fmt.Errorf("%s: is required", fieldPath("journal", "dir"))
	}
	if _, _, err := net.SplitHostPort(c.Daemon.Listen); err != nil {
		return fmt.Errorf("%s: invalid listen address %q: %w", fieldPath("daemon", "listen"), c.Daemon.Listen, err)
	}
	if c.Daemon.Grace.IsSet() && c.Daemon.Grace.Duration < 0 {
		return fmt.Errorf("%s: must be non-negative", fieldPath("daemon", "grace"))
	}
	switch c.Daemon.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s: unsupported level %q (supported values: debug, info, warn, error)", fieldPath("daemon", "log", "level"), c.Daemon.Log.Level)
	}
	switch c.Daemon.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%s: unsupported format %q (supported values: text, json)", fieldPath("daemon", "log", "format"), c.Daemon.Log.Format)
	}

	seenTokens := make(map[string]string)
	for i, tok := range c.Auth.Tokens {
		if strings.TrimSpace(tok.Name) == "" {
			return fmt.Errorf("%s: is required", tokenField(i, "name"))
		}
		if tok.Token == "" {
			return fmt.Errorf("%s: is required", tokenField(i, "token"))
		}
		switch tok.Role {
		case "admin", "observer":
		default:
			return fmt.Errorf("%s: unsupported role %q (supported values: admin, observer)", tokenField(i, "role"), tok.Role)
		}
		if prev, dup := seenTokens[tok.Token]; dup {
			return fmt.Errorf("%s: token already used by %q", tokenField(i, "token"), prev)
		}
		seenTokens[tok.Token] = tok.Name
	}

	for name, w := range c.Workers {
		if err := validateWorker("workers", name, w); err != nil {
			return err
		}
		if _, dup := c.Auxiliaries[name]; dup {
			return fmt.Errorf("%s: name also used under auxiliaries", fieldPath("workers", name))
		}
	}
	for name, w := range c.Auxiliaries {
		if err := validateWorker("auxiliaries", name, w); err != nil {
			return err
		}
	}
	return nil
}

func validateWorker(section, name string, w *WorkerSpec) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%s: worker name must be non-empty", fieldPath(section))
	}
	if len(w.Command) == 0 {
		return fmt.Errorf("%s: must contain at least one entry", fieldPath(section, name, "command"))
	}
	if w.RestartPolicy != nil && w.RestartPolicy.Backoff != nil {
		if w.RestartPolicy.Backoff.Factor == 0 {
			return fmt.Errorf("%s: must be non-zero", fieldPath(section, name, "restartPolicy", "backoff", "factor"))
		}
	}
	return nil
}

func fieldPath(parts ...string) string {
	return strings.Join(parts, ".")
}

func tokenField(index int, parts ...string) string {
	tok := fmt.Sprintf("tokens[%d]", index)
	pathParts := append([]string{"auth", tok}, parts...)
	return fieldPath(pathParts...)
}

// WorkersSorted returns worker names sorted alphabetically.
func (c *Config) WorkersSorted() []string {
	out := make([]string, 0, len(c.Workers))
	for name := range c.Workers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AuxiliariesSorted returns auxiliary names sorted alphabetically.
func (c *Config) AuxiliariesSorted() []string {
	out := make([]string, 0, len(c.Auxiliaries))
	for name := range c.Auxiliaries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
