package core

// sanitize.go cleans a CSV payload before tokenizing.
//
// Spreadsheet exports on Windows commonly start with a UTF-8 BOM and may carry
// Windows-1252 bytes that are not valid UTF-8. The BOM would otherwise end up
// glued to the first header cell and fail schema validation.

import (
	"strings"
	"unicode/utf8"
)

const utf8BOM = "\uFEFF"

// normalizePayload strips a leading BOM and replaces invalid UTF-8 bytes with
// U+FFFD.
func normalizePayload(s string) string {
	s = strings.TrimPrefix(s, utf8BOM)
	return sanitizeUTF8(s)
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "\uFFFD")
}
