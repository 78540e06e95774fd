package auth

import "strings"

// Redact masks a secret for error messages: first 3 and last 3 characters
// kept, the middle replaced with '*' so the output keeps the original
// length. Secrets of 6 characters or fewer are returned unchanged.
func Redact(secret string) string {
	if len(secret) <= 6 {
		return secret
	}
	return secret[:3] + strings.Repeat("*", len(secret)-6) + secret[len(secret)-3:]
}
