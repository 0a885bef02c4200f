package dedup

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DateLayout is the only date representation sent to the registry.
const DateLayout = "2006-01-02"

// CNSLength is the digit count of a Cartão Nacional de Saúde number.
const CNSLength = 15

var (
	errRequired     = errors.New("is required")
	errSingleToken  = errors.New("must contain at least two words")
	errInvalidDate  = errors.New("must start with a YYYY-MM-DD date")
	errInvalidValue = errors.New("has an unsupported value")
)

// lowerWords stay lower-case inside a title-cased personal name.
var lowerWords = map[string]bool{
	"da": true, "de": true, "di": true, "do": true, "du": true,
	"das": true, "dos": true, "e": true,
}

// collapse trims s and folds every internal whitespace run into one space.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func requireText(field, s string) (string, error) {
	s = collapse(s)
	if s == "" {
		return "", validationError(field, errRequired)
	}
	return s, nil
}

// normalizeFullName title-cases each word and requires at least two words.
func normalizeFullName(field, raw string) (string, error) {
	name, err := requireText(field, raw)
	if err != nil {
		return "", err
	}
	if len(strings.Fields(name)) < 2 {
		return "", validationError(field, errSingleToken)
	}
	return titleWords(name), nil
}

// titleWords title-cases every word of s except inner connectives.
// A Caser is stateful, so each call gets its own.
func titleWords(s string) string {
	caser := cases.Title(language.BrazilianPortuguese)
	words := strings.Fields(s)
	for i, w := range words {
		lw := strings.ToLower(w)
		if i > 0 && lowerWords[lw] {
			words[i] = lw
			continue
		}
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}

// normalizeDate accepts any string whose first ten characters are a
// calendar date, e.g. "1979-09-21T00:00:00Z".
func normalizeDate(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", validationError(field, errRequired)
	}
	if len(raw) < len(DateLayout) {
		return "", validationError(field, errInvalidDate)
	}
	t, err := time.Parse(DateLayout, raw[:len(DateLayout)])
	if err != nil {
		return "", validationError(field, errInvalidDate)
	}
	return t.Format(DateLayout), nil
}

// digitsOnly strips every non-digit and checks the resulting length.
func digitsOnly(field, raw string, length int) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return "", validationError(field, errRequired)
	}
	if len(digits) != length {
		return "", validationError(field, fmt.Errorf("must have %d digits, got %d", length, len(digits)))
	}
	return digits, nil
}

// normalizeChoice maps raw, case-insensitively, through aliases.
func normalizeChoice(field, raw string, aliases map[string]string) (string, error) {
	key := strings.ToLower(collapse(raw))
	if key == "" {
		return "", validationError(field, errRequired)
	}
	v, ok := aliases[key]
	if !ok {
		return "", validationError(field, fmt.Errorf("%w: %q", errInvalidValue, raw))
	}
	return v, nil
}

// capitalizeFirst upper-cases the first letter of free text, leaving the rest untouched.
func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
