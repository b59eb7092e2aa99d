package auth

import (
	"fmt"
	"html"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeText cleans free text such as announcement bodies and ticket
// descriptions. Newlines and tabs survive; markup is escaped.
func SanitizeText(input string) string {
	return html.EscapeString(strings.TrimSpace(removeControlChars(input)))
}

// SanitizeName cleans a person, class, or school name. Runs of whitespace
// collapse to a single space.
func SanitizeName(name string) string {
	name = removeControlChars(name)
	name = strings.Join(strings.Fields(name), " ")
	return html.EscapeString(name)
}

// ValidateStringLength checks value's length in characters. A zero bound
// is not enforced.
func ValidateStringLength(field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	if min > 0 && n < min {
		return fmt.Errorf("%s must be at least %d characters long", field, min)
	}
	if max > 0 && n > max {
		return fmt.Errorf("%s must be at most %d characters long", field, max)
	}
	return nil
}

func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
