package log

import (
	"regexp"
	"strings"
)

// dsnPassword matches the password segment of a user:password@host style
// connection string (MySQL DSNs, proxy URLs).
var dsnPassword = regexp.MustCompile(`(:)([^:@/]+)(@)`)

// SanitizeField masks values for keys that look like credentials, and
// strips passwords embedded in connection strings.
func SanitizeField(key, value string) string {
	if value == "" {
		return value
	}

	lowerKey := strings.ToLower(key)

	sensitiveKeywords := []string{
		"password", "passwd", "pwd",
		"secret", "token", "credential",
		"auth", "api_key", "apikey",
	}
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerKey, keyword) {
			return maskValue(value)
		}
	}

	// Connection strings carry the password inline.
	if lowerKey == "dsn" || lowerKey == "source" || strings.Contains(lowerKey, "proxy") {
		return dsnPassword.ReplaceAllString(value, "${1}****${3}")
	}

	return value
}

// maskValue shows only the first and last characters of short values, and
// the first/last four of longer ones.
func maskValue(value string) string {
	if len(value) <= 8 {
		if len(value) <= 2 {
			return strings.Repeat("*", len(value))
		}
		return string(value[0]) + strings.Repeat("*", len(value)-2) + string(value[len(value)-1])
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
