package cliutil

import "regexp"

const redactedPlaceholder = "[redacted]"

var (
	templateVarPattern = regexp.MustCompile(`\$\{[^}]+\}`)
	secretKeyPattern   = regexp.MustCompile(`(?i)([A-Za-z0-9_]*(?:token|secret|password|passwd|api_?key|credential)[A-Za-z0-9_]*)(\s*[:=]\s*)(["']?)([^"'\s]+)(["']?)`)
)

// RedactSecrets masks values that look like credentials in user-facing
// output: unresolved ${VAR} template references and assignments to keys whose
// names suggest a secret (token, password, api key and the like). Rendered
// configuration and journal details pass through here before printing.
func RedactSecrets(message string) string {
	if message == "" {
		return message
	}
	redacted := templateVarPattern.ReplaceAllString(message, "${"+redactedPlaceholder+"}")
	return secretKeyPattern.ReplaceAllString(redacted, "$1$2$3"+redactedPlaceholder+"$5")
}
