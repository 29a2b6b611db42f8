package validation

import (
	"errors"
	"unicode"
	"unicode/utf8"
)

// MaxInputLength is the default rune limit for city and country input.
const MaxInputLength = 100

// ErrInputTooLong is returned when input length exceeds the maximum.
var ErrInputTooLong = errors.New("input too long")

// ErrInputInvalidChars is returned when input contains disallowed characters.
var ErrInputInvalidChars = errors.New("input contains invalid characters")

// ValidateInput checks partial or complete city/country text as typed by the user.
// Empty input is valid. The length bound is in runes; maxLen <= 0 disables it.
// Allowed characters: letters (Unicode), digits, space, comma, hyphen, apostrophe, period.
// The input is returned unchanged so the form keeps exactly what was typed.
func ValidateInput(input string, maxLen int) (string, error) {
	if maxLen > 0 && utf8.RuneCountInString(input) > maxLen {
		return "", ErrInputTooLong
	}
	for _, c := range input {
		if !isAllowedInputRune(c) {
			return "", ErrInputInvalidChars
		}
	}
	return input, nil
}

// isAllowedInputRune returns true for letters (Unicode), marks, digits and the
// punctuation found in place names.
func isAllowedInputRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '\'', '.':
		return true
	}
	return false
}
