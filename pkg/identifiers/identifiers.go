// Package identifiers recognizes book identifiers found in package metadata.
package identifiers

import (
	"strings"
	"unicode"
)

// ISBN detects an ISBN in value. A scheme of "ISBN" (any case) or a value
// carrying an "isbn" URN prefix makes the value authoritative; otherwise
// the value is accepted only if its check digit is valid. The result is the
// normalized ISBN-13 form.
func ISBN(value, scheme string) (string, bool) {
	value = strings.TrimSpace(value)
	scheme = strings.ToUpper(strings.TrimSpace(scheme))
	if scheme != "" && scheme != "ISBN" {
		return "", false
	}

	lower := strings.ToLower(value)
	lower = strings.TrimPrefix(lower, "urn:")
	if !strings.HasPrefix(lower, "isbn") && scheme == "" && !looksNumeric(value) {
		return "", false
	}

	normalized := NormalizeISBN(value)
	switch len(normalized) {
	case 13:
		if ValidateISBN13(normalized) {
			return normalized, true
		}
	case 10:
		if ValidateISBN10(normalized) {
			return ToISBN13(normalized), true
		}
	}
	return "", false
}

func looksNumeric(value string) bool {
	for _, r := range value {
		if !unicode.IsDigit(r) && r != '-' && r != ' ' && r != 'X' && r != 'x' {
			return false
		}
	}
	return value != ""
}

// NormalizeISBN removes hyphens, spaces, and "ISBN"/"urn:isbn:" prefixes.
func NormalizeISBN(value string) string {
	value = strings.ToUpper(strings.TrimSpace(value))
	value = strings.TrimPrefix(value, "URN:")
	value = strings.TrimPrefix(value, "ISBN")
	value = strings.TrimLeft(value, ":- ")

	var b strings.Builder
	for _, r := range value {
		if unicode.IsDigit(r) || r == 'X' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateISBN10 checks the modulo 11 check digit.
func ValidateISBN10(isbn string) bool {
	if len(isbn) != 10 {
		return false
	}
	sum := 0
	for i, r := range isbn {
		var digit int
		switch {
		case r == 'X' && i == 9:
			digit = 10
		case r >= '0' && r <= '9':
			digit = int(r - '0')
		default:
			return false
		}
		sum += digit * (10 - i)
	}
	return sum%11 == 0
}

// ValidateISBN13 checks the alternating 1/3 weighted check digit.
func ValidateISBN13(isbn string) bool {
	if len(isbn) != 13 {
		return false
	}
	sum := 0
	for i, r := range isbn {
		if r < '0' || r > '9' {
			return false
		}
		sum += int(r-'0') * (1 + 2*(i%2))
	}
	return sum%10 == 0
}

// ToISBN13 converts a valid ISBN-10 into its 978-prefixed ISBN-13 form.
func ToISBN13(isbn10 string) string {
	body := "978" + isbn10[:9]
	sum := 0
	for i, r := range body {
		sum += int(r-'0') * (1 + 2*(i%2))
	}
	check := (10 - sum%10) % 10
	return body + string(rune('0'+check))
}
