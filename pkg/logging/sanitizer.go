package logging

import (
	"net/url"
	"regexp"
)

// RedactedText replaces sensitive data in log output.
const RedactedText = "[REDACTED]"

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// key=xxx style API keys as they appear in Google Maps request URLs
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// user:pass@host in URLs
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// SanitizeConnectionString removes credentials from a Postgres DSN or URL.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError renders err without passwords, API keys or URL credentials.
// Outbound HTTP errors embed the request URL, which carries the maps API key.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeURL drops the key query parameter and any user info from raw.
// Unparseable input is returned with pattern-based redaction applied.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return apiKeyPattern.ReplaceAllString(raw, "${1}="+RedactedText)
	}
	if u.User != nil {
		u.User = url.User(RedactedText)
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", RedactedText)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
