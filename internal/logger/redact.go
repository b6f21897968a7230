package logger

import (
	"bytes"
	"io"
	"regexp"
)

// RedactWriter wraps an io.Writer and masks sensitive values before writing.
// It redacts hashed license tokens and database credentials from log lines
// so that rule dumps and DSN errors stay safe to ship off-host.
type RedactWriter struct {
	w          io.Writer
	patterns   []*regexp.Regexp
	redactWith string
}

var defaultPatterns = []*regexp.Regexp{
	// License tokens in key=value or "key":"value" form (40-char hex hash)
	regexp.MustCompile(`(?i)(license["'\s:=]+)[0-9a-f]{40}`),
	// DSN with embedded credentials (user:pass@host)
	regexp.MustCompile(`(?i)(dsn["'\s:=]+\w+:)[^@\s"']+(@)`),
	// Generic password fields
	regexp.MustCompile(`(?i)(password["'\s:=]+)\S+`),
}

// NewRedactWriter returns a RedactWriter that applies all default sensitive patterns.
func NewRedactWriter(w io.Writer) *RedactWriter {
	return &RedactWriter{
		w:          w,
		patterns:   defaultPatterns,
		redactWith: "[REDACTED]",
	}
}

// Write applies all redaction patterns before forwarding to the underlying writer.
func (r *RedactWriter) Write(p []byte) (int, error) {
	sanitized := p
	for _, re := range r.patterns {
		sanitized = re.ReplaceAll(sanitized, replacement(re, r.redactWith))
	}
	n, err := r.w.Write(sanitized)
	// Return original length so callers don't get short-write errors
	// even if redaction changed the byte count.
	if n > len(sanitized) {
		n = len(sanitized)
	}
	if err != nil {
		return n, err
	}
	return len(p), nil
}

// replacement builds a replacement []byte keeping the key prefix capture
// group and, when present, the trailing delimiter group.
func replacement(re *regexp.Regexp, redact string) []byte {
	var buf bytes.Buffer
	buf.WriteString("${1}")
	buf.WriteString(redact)
	if re.NumSubexp() > 1 {
		buf.WriteString("${2}")
	}
	return buf.Bytes()
}
