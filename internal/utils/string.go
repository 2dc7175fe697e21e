package utils

import "strings"

func IsStringInSlice(s string, slice []string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

// StripNul removes NUL characters anywhere in the text. They can turn
// up mid-string from botched decodes and downstream storage rejects
// them.
func StripNul(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// SanitizeUTF8 drops byte sequences that do not form valid UTF-8,
// including encoded surrogate pairs that storage cannot accept.
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
