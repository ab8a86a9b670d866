package protocols

import (
	"strings"
	"unicode/utf8"
)

const maxFileNameLength = 255

// IsValidFileName reports whether name can be shown and addressed by the
// application. "." and ".." and names carrying a path separator are rejected.
func IsValidFileName(name string) bool {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." {
		return false
	}
	if len(name) > maxFileNameLength || !utf8.ValidString(name) {
		return false
	}
	return !strings.ContainsAny(name, "/\x00")
}
