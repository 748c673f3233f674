package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CollapseWhitespace trims a string and collapses every internal run of
// whitespace (including NBSP and newlines) into a single space. Record
// documents are heavily indented; extracted values must not carry that.
func CollapseWhitespace(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		inSpace = false
		sb.WriteRune(r)
	}
	return sb.String()
}

// FirstLine returns the first line of a string.
// Leading newlines are trimmed before extracting the first line.
func FirstLine(s string) string {
	s = strings.TrimLeft(s, "\r\n")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		return strings.TrimRight(s[:idx], "\r")
	}
	return s
}

// Snippet returns a single-line, rune-safe preview of s at most maxRunes
// long, with "..." marking truncation.
func Snippet(s string, maxRunes int) string {
	return TruncateRunes(CollapseWhitespace(s), maxRunes)
}

// TruncateRunes truncates a string to maxRunes runes (not bytes), adding
// "..." if truncated. UTF-8 safe: never splits a multi-byte character.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// SanitizeTerminal strips control characters that could alter terminal
// state when untrusted record text (usernames, message bodies) is printed.
// Tabs are kept; newlines become spaces.
func SanitizeTerminal(s string) string {
	if !utf8.ValidString(s) {
		s = SanitizeUTF8(s)
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			sb.WriteByte(' ')
		case r == '\t':
			sb.WriteRune(r)
		case unicode.IsControl(r):
			// drop
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
