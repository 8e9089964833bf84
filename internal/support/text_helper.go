package support

import "unicode/utf8"

// TruncateString cuts s to at most max bytes without splitting a UTF-8
// sequence, so the result still fits a varchar(max) column.
func TruncateString(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
