package observability

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const defaultStringLimit = 256

// sanitizeString drops control characters and truncates to limit runes so request data cannot
// forge or bloat log entries.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}
	cleaned := strings.Map(func(r rune) rune {
		if r == utf8.RuneError || unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if utf8.RuneCountInString(cleaned) <= limit {
		return cleaned
	}
	return string([]rune(cleaned)[:limit])
}

// SanitizeRoute bounds a route or path for logs and span names.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

func SanitizeMethod(method string) string {
	return strings.ToUpper(sanitizeString(method, 10))
}

func SanitizeUserID(uid string) string {
	return sanitizeString(strings.TrimSpace(uid), 64)
}

// SanitizeEmail masks the local part of an address down to its first character, keeping the
// domain so support can still correlate entries.
func SanitizeEmail(email string) string {
	email = sanitizeString(strings.TrimSpace(email), 128)
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return SanitizeUserID(email)
	}
	if local == "" {
		return "@" + domain
	}
	first, _ := utf8.DecodeRuneInString(local)
	return string(first) + "***@" + domain
}
