package utils

import "strings"

// MaskSecret hides all but the last four characters of s. Short values are
// hidden entirely.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "********"
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
