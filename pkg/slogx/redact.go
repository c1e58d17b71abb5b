package slogx

import (
	"log/slog"
	"strings"
)

const redacted = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"api_password":  {},
	"cookie":        {},
	"cookies":       {},
	"token":         {},
	"csrf_token":    {},
	"reset_token":   {},
	"authorization": {},
	"secret":        {},
	"invite_key":    {},
}

// Redact is a slog ReplaceAttr hook that masks the value of any attribute
// whose key names a credential. Groups are left alone; their members are
// visited individually by the handler.
func Redact(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		return a
	}
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	return a
}

// Prefix logs only the first n bytes of a secret value, enough to correlate
// log lines without making the value usable.
func Prefix(key, value string, n int) slog.Attr {
	if len(value) > n {
		value = value[:n] + "..."
	}
	return slog.String(key, value)
}
