// Package normalizers provides field normalization for identity matching.
// Every normalizer is pure and idempotent: applying one to its own output
// returns the same string. Unusable input normalizes to "", never an error,
// because ingestion must tolerate partially-filled records.
package normalizers

import (
	"regexp"
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	// Register built-in normalizers
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("nphone", Phone)
	Register("nemail", Email)
	Register("nname", Name)
	Register("naddress", AddressKey)
	Register("digits_only", DigitsOnly)
	Register("alphanumeric_upper", AlphanumericUpper)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names pass the value
// through unchanged.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// identifierNormalizers maps identifier types to registry names. Microchips,
// ear tags, and clinic ids compare case-insensitively on their alphanumeric
// content.
var identifierNormalizers = map[string]string{
	"email":     "nemail",
	"phone":     "nphone",
	"microchip": "alphanumeric_upper",
	"clinic_id": "alphanumeric_upper",
	"ear_tag":   "alphanumeric_upper",
}

// ForIdentifierType normalizes an identifier value by its type. Types with no
// registered normalizer get trimmed only.
func ForIdentifierType(idType, value string) string {
	name, ok := identifierNormalizers[idType]
	if !ok {
		return strings.TrimSpace(value)
	}
	return Apply(value, name)
}

// Built-in normalizers

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// Email normalizes an email address (lowercase, trim)
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Phone reduces a phone number to its digits and strips a leading US country
// code from 11-digit numbers. Fewer than 7 remaining digits is not a usable
// phone number and normalizes to "".
func Phone(s string) string {
	digits := DigitsOnly(s)
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		digits = digits[1:]
	}
	if len(digits) < 7 {
		return ""
	}
	return digits
}

// Name normalizes a person or animal name for matching
// - Lowercase
// - Remove extra whitespace
// - Remove common suffixes (Jr., Sr., III, etc.)
// - Remove punctuation
func Name(s string) string {
	// Lowercase
	s = strings.ToLower(s)

	// Remove common suffixes, repeating until none remain so stacked
	// suffixes ("john smith jr sr") reduce to a fixed point
	suffixes := []string{" jr.", " jr", " sr.", " sr", " iii", " ii", " iv", " phd", " md", " dvm"}
	for stripped := true; stripped; {
		stripped = false
		for _, suffix := range suffixes {
			if strings.HasSuffix(s, suffix) {
				s = strings.TrimRight(s[:len(s)-len(suffix)], " ")
				stripped = true
			}
		}
	}

	// Remove punctuation
	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) || r == '-' || r == '.' || r == '\'' {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

// streetAbbreviations folds long street-type words to their postal short
// forms so "1200 Main Street" and "1200 Main St" produce the same key. Each
// key carries a leading space to avoid rewriting inside words.
var streetAbbreviations = map[string]string{
	" street":    " st",
	" avenue":    " ave",
	" boulevard": " blvd",
	" drive":     " dr",
	" road":      " rd",
	" lane":      " ln",
	" court":     " ct",
	" circle":    " cir",
	" highway":   " hwy",
	" apartment": " apt",
	" suite":     " ste",
	" north":     " n",
	" south":     " s",
	" east":      " e",
	" west":      " w",
}

var spaceRe = regexp.MustCompile(`\s+`)

// AddressKey produces the comparison form of a postal address: case-folded,
// punctuation dropped, whitespace collapsed, street types abbreviated. The
// key exists for equality checks only; display always uses the raw text.
func AddressKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == ',' || r == '.' || r == '#' || r == '-' || r == '/':
			b.WriteRune(' ')
		}
	}
	s = b.String()

	for full, abbr := range streetAbbreviations {
		s = strings.ReplaceAll(s, full+" ", abbr+" ")
		if strings.HasSuffix(s, full) {
			s = s[:len(s)-len(full)] + abbr
		}
	}

	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// AlphanumericUpper keeps only alphanumeric characters, uppercased
func AlphanumericUpper(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(unicode.ToUpper(r))
		}
	}
	return result.String()
}
