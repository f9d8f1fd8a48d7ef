package describer

import "unicode/utf8"

// Ellipsis is appended to truncated descriptions
const Ellipsis = "..."

// Truncate caps s at maxLen runes, appending Ellipsis when anything was cut.
// Counting runes keeps multi-byte characters intact.
// A negative maxLen is treated as zero.
func Truncate(s string, maxLen int) string {
	if maxLen < 0 {
		maxLen = 0
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + Ellipsis
}
