package utils

import (
	"strings"
	"unicode"
)

// NormalizePhone keeps digits only, plus a leading "+" for international
// prefixes: "+420 605-877-000" becomes "+420605877000".
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}

	var b strings.Builder
	if strings.HasPrefix(phone, "+") {
		b.WriteByte('+')
	}
	for _, r := range phone {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return b.String()
}
