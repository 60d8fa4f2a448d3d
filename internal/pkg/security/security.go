// Package security validates caller-supplied input before it reaches file
// names, log lines or the evaluator.
package security

import (
	"strings"
	"unicode"
)

// MaxLogLength bounds a sanitized value written to the log.
const MaxLogLength = 200

// SanitizeForLog escapes line breaks and drops other control characters so a
// caller-controlled value cannot forge log records. The result is truncated
// to MaxLogLength.
func SanitizeForLog(s string) string {
	return SanitizeForLogWithLength(s, MaxLogLength)
}

var logEscapes = map[rune]string{
	'\n': `\n`,
	'\r': `\r`,
	'\t': `\t`,
}

// SanitizeForLogWithLength is SanitizeForLog with a custom length limit.
// Escapes count as two characters.
func SanitizeForLogWithLength(s string, maxLen int) string {
	var out strings.Builder
	width := 0
	for _, r := range s {
		if width >= maxLen {
			out.WriteString("...")
			break
		}
		if esc, ok := logEscapes[r]; ok {
			out.WriteString(esc)
			width += len(esc)
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		out.WriteRune(r)
		width++
	}
	return out.String()
}
