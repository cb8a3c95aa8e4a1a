package logging

import (
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

// RedactedPlaceholder replaces detected sensitive values.
const RedactedPlaceholder = "[REDACTED]"

// sensitivePatterns detect credential-shaped values in free-form strings.
// Compiled once at package init.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(sk-[a-zA-Z0-9_-]{20,})`),        // OpenAI-style keys
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._-]{20,})`), // Bearer tokens
	regexp.MustCompile(`(?i)(api_key\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(apikey\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(token\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(secret\s*[:=]\s*[^\s,;]{8,})`),
}

// sensitiveFieldMarkers flag structured-log field names whose values should
// never be emitted verbatim.
var sensitiveFieldMarkers = []string{
	"api_key",
	"apikey",
	"token",
	"secret",
	"password",
}

// RedactSensitiveData scans a string and redacts any detected credentials.
// Pure function: input string in, sanitized string out.
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}
	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedPlaceholder)
	}
	return result
}

// IsSensitiveField reports whether a field name indicates a value that
// should never be emitted verbatim.
func IsSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range sensitiveFieldMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// RedactField redacts a field value when the field name indicates sensitive
// content, and otherwise scans the value itself.
func RedactField(name, value string) string {
	if IsSensitiveField(name) {
		return RedactedPlaceholder
	}
	return RedactSensitiveData(value)
}

// redactingCore wraps a zapcore.Core and redacts credential-shaped values
// from every entry before it is written, so no call site can leak a secret
// through a log field or message.
type redactingCore struct {
	zapcore.Core
}

// WithRedaction wraps core so all messages and string fields pass through
// the sensitive-value filter.
func WithRedaction(core zapcore.Core) zapcore.Core {
	return &redactingCore{Core: core}
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(redactZapFields(fields))}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = RedactSensitiveData(ent.Message)
	return c.Core.Write(ent, redactZapFields(fields))
}

func redactZapFields(fields []zapcore.Field) []zapcore.Field {
	if len(fields) == 0 {
		return fields
	}
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = redactZapField(f)
	}
	return out
}

func redactZapField(f zapcore.Field) zapcore.Field {
	// Non-string fields with a sensitive name are replaced whole.
	if IsSensitiveField(f.Key) {
		return zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: RedactedPlaceholder}
	}
	if f.Type == zapcore.StringType {
		if redacted := RedactField(f.Key, f.String); redacted != f.String {
			return zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: redacted}
		}
	}
	return f
}
