package fieldcrypt

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Unavailable replaces a value that could not be decrypted.
const Unavailable = "[unavailable]"

// MaskIdentityNumber keeps the issuer prefix and the last four digits of the
// serial: "GHA-123456789-0" becomes "GHA-XXXX6789".
func MaskIdentityNumber(s string) string {
	parts := strings.Split(s, "-")
	if len(parts) >= 2 {
		return parts[0] + "-XXXX" + lastN(parts[1], 4)
	}
	return "XXXX" + lastN(s, 4)
}

// MaskDateOfBirth keeps only the day: "1990-05-01" becomes "****-**-01".
func MaskDateOfBirth(s string) string {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return "****-**-**"
	}
	return "****-**-" + t.Format("02")
}

func MaskAccountNumber(s string) string {
	return "******" + lastN(s, 4)
}

func MaskPhone(s string) string {
	n := utf8.RuneCountInString(s)
	if n <= 3 {
		return strings.Repeat("*", n)
	}
	return strings.Repeat("*", n-3) + lastN(s, 3)
}

func MaskName(s string) string {
	r, size := utf8.DecodeRuneInString(strings.TrimSpace(s))
	if size == 0 {
		return ""
	}
	return string(r) + "***"
}

func MaskAddress(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// lastN returns the trailing n characters, but never the whole of a value longer than n.
func lastN(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return ""
	}
	return string(runes[len(runes)-n:])
}
