package domain

import (
	"strings"
	"unicode/utf8"
)

// MaskEmail keeps the first character of the local part and the domain:
// "jane@example.com" becomes "j***@example.com". Anything that does not
// look like local@domain masks to "***".
func MaskEmail(addr string) string {
	const masked = "***"

	local, domain, ok := strings.Cut(strings.TrimSpace(addr), "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return masked
	}
	first, _ := utf8.DecodeRuneInString(local)
	if first == utf8.RuneError {
		return masked
	}
	return string(first) + masked + "@" + domain
}
