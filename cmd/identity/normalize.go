package identity

import "strings"

// NormalizeUsername performs case-insensitive canonicalization.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidUsername reports whether a normalized username fits the accepted shape:
// 3..64 chars of [a-z0-9._-].
func ValidUsername(norm string) bool {
	if len(norm) < 3 || len(norm) > 64 {
		return false
	}
	for _, r := range norm {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// ValidEmail is a deliberately loose shape check; deliverability is not our concern.
func ValidEmail(norm string) bool {
	at := strings.IndexByte(norm, '@')
	if at <= 0 || at != strings.LastIndexByte(norm, '@') || at == len(norm)-1 {
		return false
	}
	return len(norm) <= 254 && !strings.ContainsAny(norm, " \t\r\n")
}
