package email

import (
	"strings"
	"unicode/utf8"
)

const redactKeep = 2

// RedactAddress keeps the first two characters of the local part and the
// domain: "john.doe@example.com" -> "jo***@example.com". Short or
// unparseable addresses are masked entirely.
func RedactAddress(addr string) string {
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 || at == len(addr)-1 {
		return "***@***"
	}
	local, domain := addr[:at], addr[at+1:]

	if utf8.RuneCountInString(local) <= redactKeep {
		return "***@" + domain
	}
	return string([]rune(local)[:redactKeep]) + "***@" + domain
}
