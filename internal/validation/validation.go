package validation

import (
	"errors"
	"strings"
	"unicode"
)

// MaxCityLength is the longest accepted city name in runes.
const MaxCityLength = 100

var (
	// ErrCityEmpty is returned when the name is empty or whitespace-only after trim.
	ErrCityEmpty = errors.New("city name is required")

	// ErrCityTooLong is returned when the name exceeds the maximum length.
	ErrCityTooLong = errors.New("city name too long")

	// ErrCityInvalidChars is returned when the name contains disallowed characters.
	ErrCityInvalidChars = errors.New("city name contains invalid characters")
)

// ValidateCity trims input and checks it is a plausible city name: 1..maxLen
// runes of letters, digits, spaces and the punctuation found in real place names
// (comma, hyphen, apostrophe, period). maxLen <= 0 means MaxCityLength.
func ValidateCity(input string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = MaxCityLength
	}
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrCityEmpty
	}
	if len(r) > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Mn, r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '\'', '.':
		return true
	}
	return false
}
