package logger

import "strings"

// secretKeys are field names whose values are platform credentials and must
// never reach logs in full.
var secretKeys = []string{"token", "access_token", "secret", "api_key", "password", "dsn"}

// RedactToken masks an access token for safe logging, keeping just enough of
// the prefix to correlate with the platform's token registry.
// "EAABsbCS1iHgBA..." → "EAAB***" ; tokens of ≤8 chars are fully masked.
func RedactToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "***"
}

func redactSecretValue(key, val string) string {
	k := strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(k, s) {
			return RedactToken(val)
		}
	}
	return val
}
