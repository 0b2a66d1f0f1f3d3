// Package redact scrubs sensitive material from strings before they are
// logged. Errors bubbling out of job execution routinely embed portal
// credentials, session cookies, connection strings, SQL text, and file
// paths; none of that may reach a log line or an error response.
package redact

import "regexp"

// Redaction placeholders.
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedSessionPlaceholder    = "[REDACTED_SESSION]"
)

// rule pairs a pattern with its replacement marker.
type rule struct {
	pattern     *regexp.Regexp
	placeholder string
}

// rules are applied in order. Ordering is load-bearing: stack traces
// collapse before path rules shred them, URL credentials go before the
// email rule sees user:pass@host, and JWTs go before the generic
// key rule so the token value gets the more specific marker.
var rules = []rule{
	// Panic output and goroutine dumps carry paths, arguments, and
	// whatever the handler had in scope.
	{regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`), "[STACK_TRACE_REDACTED]"},

	// Credentials embedded in any URL scheme: postgres://user:pw@...,
	// https://admin:pw@portal..., and so on. The host is left in place.
	{regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^/\s@]+@`), RedactedCredentialPlaceholder},

	// Three-part base64url JWTs.
	{regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`), "[REDACTED_JWT]"},

	// Bearer and Authorization header values.
	{regexp.MustCompile(`(?i)\b(?:bearer|authorization)[:=\s]+[A-Za-z0-9._~+/-]{8,}=*`), RedactedCredentialPlaceholder},

	// Portal session cookies and anti-forgery tokens. These are the
	// working credentials of a browser-automation run.
	{regexp.MustCompile(`(?i)\b(?:session[_-]?id|sessid|phpsessid|jsessionid|csrf[_-]?token|xsrf[_-]?token|cookie)\b[=:]\s*['"]?[^'"&;\s]+['"]?`), RedactedSessionPlaceholder},

	// Password-style key=value pairs.
	{regexp.MustCompile(`(?i)\b(?:password|passwd|pwd|pass)\b[=:]\s*['"]?[^'"&\s]+['"]?`), RedactedCredentialPlaceholder},

	// API keys, access tokens, and client secrets.
	{regexp.MustCompile(`(?i)\b(?:api[_-]?key|apikey|token|access[_-]?key|client[_-]?secret|secret)\b['"\s:=]+[A-Za-z0-9_\-.~+/]{8,}=*`), RedactedKeyPlaceholder},

	// AWS-style access key identifiers.
	{regexp.MustCompile(`(AKIA|AccessKey(Id)?)([^a-zA-Z0-9])?[A-Z0-9]{8,}`), RedactedKeyPlaceholder},

	// SQL statements, including literal values in WHERE, SET, and
	// VALUES clauses. Scope IDs and payload fragments ride in those.
	{regexp.MustCompile(`(?i)(?:SELECT|INSERT|UPDATE|DELETE|CREATE|ALTER|DROP|GRANT)[\s\w,*()]+(?:FROM|INTO|SET|TABLE|DATABASE|SCHEMA|VIEW)(?:[\s\w,*()='".-]+)?`), "[REDACTED_SQL]"},

	// Filesystem paths, Unix and Windows.
	{regexp.MustCompile(`(/[\w.-]+){2,}`), RedactedPathPlaceholder},
	{regexp.MustCompile(`[A-Za-z]:\\[^\\]+(\\[^\\]+)+`), RedactedPathPlaceholder},

	// Email addresses; portal accounts are usually emails.
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[REDACTED_EMAIL]"},
}

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.placeholder)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
