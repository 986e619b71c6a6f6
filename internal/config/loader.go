// Package config loads and validates the warden.yaml daemon configuration.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a daemon configuration from the provided path. Unknown fields
// are rejected, environment references in worker settings are expanded and
// relative paths are resolved against the configuration file's directory.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	var doc Config
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}

	baseDir := filepath.Dir(absPath)
	for section, workers := range map[string]map[string]*WorkerSpec{
		"workers":     doc.Workers,
		"auxiliaries": doc.Auxiliaries,
	} {
		for name, w := range workers {
			if w == nil {
				continue
			}
			if err := resolveWorker(baseDir, w); err != nil {
				return nil, fmt.Errorf("%s: %w", fieldPath(section, name, "envFromFile"), err)
			}
		}
	}

	if err := doc.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return &doc, nil
}

func resolveWorker(baseDir string, w *WorkerSpec) error {
	w.ResolvedWorkdir = resolveWorkdir(baseDir, expandEnvWithDefault(w.Workdir))

	var inlineEnv map[string]string
	if len(w.Env) > 0 {
		inlineEnv = make(map[string]string, len(w.Env))
		for k, v := range w.Env {
			inlineEnv[k] = expandEnvWithDefault(v)
		}
	}

	var fileEnv map[string]string
	if w.EnvFromFile != "" {
		expanded := expandEnvWithDefault(w.EnvFromFile)
		if !filepath.IsAbs(expanded) {
			expanded = filepath.Clean(filepath.Join(baseDir, expanded))
		}
		w.EnvFromFile = expanded

		var err error
		fileEnv, err = loadEnvFile(expanded)
		if err != nil {
			return err
		}
	}

	var merged map[string]string
	if len(fileEnv) > 0 {
		merged = make(map[string]string, len(fileEnv))
		for k, v := range fileEnv {
			merged[k] = v
		}
	}
	if len(inlineEnv) > 0 {
		if merged == nil {
			merged = make(map[string]string, len(inlineEnv))
		}
		for k, v := range inlineEnv {
			merged[k] = v
		}
	}
	w.Env = merged
	return nil
}

func resolveWorkdir(base, workdir string) string {
	if workdir == "" {
		return ""
	}
	if filepath.IsAbs(workdir) {
		return filepath.Clean(workdir)
	}
	return filepath.Clean(filepath.Join(base, workdir))
}

// expandEnvWithDefault expands $VAR and ${VAR} references and additionally
// supports the shell fallback form ${VAR:-default}, where the default applies
// when VAR is unset or empty.
func expandEnvWithDefault(s string) string {
	return os.Expand(s, func(name string) string {
		if idx := strings.Index(name, ":-"); idx >= 0 {
			if v := os.Getenv(name[:idx]); v != "" {
				return v
			}
			return name[idx+2:]
		}
		return os.Getenv(name)
	})
}

func loadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	values := make(map[string]string)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if strings.HasPrefix(raw, "export ") {
			raw = strings.TrimSpace(raw[len("export "):])
		}
		sep := strings.IndexRune(raw, '=')
		if sep <= 0 {
			return nil, fmt.Errorf("load env file %q: invalid line %d", path, lineNo)
		}
		key := strings.TrimSpace(raw[:sep])
		if key == "" {
			return nil, fmt.Errorf("load env file %q: invalid key on line %d", path, lineNo)
		}
		value := strings.TrimSpace(raw[sep+1:])
		switch {
		case strings.HasPrefix(value, `"`):
			end := closingDoubleQuote(value)
			if end < 0 {
				return nil, fmt.Errorf("load env file %q: unmatched quote on line %d", path, lineNo)
			}
			if rest := strings.TrimSpace(value[end+1:]); rest != "" && !strings.HasPrefix(rest, "#") {
				return nil, fmt.Errorf("load env file %q: unexpected characters after quoted value on line %d", path, lineNo)
			}
			unquoted, err := strconv.Unquote(value[:end+1])
			if err != nil {
				return nil, fmt.Errorf("load env file %q: parse value for %s on line %d: %w", path, key, lineNo, err)
			}
			value = unquoted
		case strings.HasPrefix(value, "'"):
			end := strings.IndexByte(value[1:], '\'')
			if end < 0 {
				return nil, fmt.Errorf("load env file %q: unmatched quote on line %d", path, lineNo)
			}
			if rest := strings.TrimSpace(value[end+2:]); rest != "" && !strings.HasPrefix(rest, "#") {
				return nil, fmt.Errorf("load env file %q: unexpected characters after quoted value on line %d", path, lineNo)
			}
			value = value[1 : end+1]
		default:
			if comment := strings.IndexRune(value, '#'); comment >= 0 {
				value = strings.TrimSpace(value[:comment])
			}
		}
		values[key] = expandEnvWithDefault(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	return values, nil
}

// closingDoubleQuote returns the index of the quote terminating a
// double-quoted value, honoring backslash escapes, or -1 when unterminated.
func closingDoubleQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}
